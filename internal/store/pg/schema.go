package pg

import (
	"context"
	"fmt"
)

// schema creates all pipeline tables. The articles search_vector is a stored
// generated column so the text index stays consistent with every insert,
// update and delete without triggers.
const schema = `
CREATE TABLE IF NOT EXISTS articles (
    id               UUID PRIMARY KEY,
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    content          TEXT NOT NULL DEFAULT '',
    summary          TEXT NOT NULL DEFAULT '',
    url              TEXT NOT NULL,
    url_hash         TEXT NOT NULL,
    source_id        TEXT NOT NULL,
    source_name      TEXT NOT NULL DEFAULT '',
    author           TEXT NOT NULL DEFAULT '',
    published_at     TIMESTAMPTZ NOT NULL,
    fetched_at       TIMESTAMPTZ,
    category         TEXT NOT NULL DEFAULT 'general',
    priority         TEXT NOT NULL DEFAULT 'regular',
    confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    keywords         TEXT[] NOT NULL DEFAULT '{}',
    word_count       INT NOT NULL DEFAULT 0,
    reading_time     INT NOT NULL DEFAULT 0,
    language         TEXT NOT NULL DEFAULT 'english',
    embedding        REAL[],
    embedding_model  TEXT NOT NULL DEFAULT '',
    is_duplicate     BOOLEAN NOT NULL DEFAULT FALSE,
    duplicate_of     UUID,
    is_processed     BOOLEAN NOT NULL DEFAULT FALSE,
    view_count       BIGINT NOT NULL DEFAULT 0,
    like_count       BIGINT NOT NULL DEFAULT 0,
    share_count      BIGINT NOT NULL DEFAULT 0,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    search_vector    tsvector GENERATED ALWAYS AS (
        setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
        setweight(to_tsvector('english', coalesce(author, '')), 'B') ||
        setweight(to_tsvector('english', coalesce(description, '')), 'B') ||
        setweight(to_tsvector('english', coalesce(content, '')), 'C') ||
        setweight(to_tsvector('english', coalesce(category, '')), 'D')
    ) STORED
);

CREATE UNIQUE INDEX IF NOT EXISTS articles_url_hash_active
    ON articles (url_hash) WHERE NOT is_duplicate;
CREATE INDEX IF NOT EXISTS articles_search_idx
    ON articles USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS articles_published_idx
    ON articles (published_at);
CREATE INDEX IF NOT EXISTS articles_priority_idx
    ON articles (priority, published_at DESC);

CREATE TABLE IF NOT EXISTS sources (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL,
    type                TEXT NOT NULL,
    priority            INT NOT NULL DEFAULT 5,
    rate_limit_per_hour INT NOT NULL DEFAULT 60,
    last_fetch_at       TIMESTAMPTZ,
    consecutive_errors  INT NOT NULL DEFAULT 0,
    is_active           BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS fetch_jobs (
    id           UUID PRIMARY KEY,
    source_id    TEXT NOT NULL,
    status       TEXT NOT NULL,
    fetched      INT NOT NULL DEFAULT 0,
    new_count    INT NOT NULL DEFAULT 0,
    duplicates   INT NOT NULL DEFAULT 0,
    processed    INT NOT NULL DEFAULT 0,
    retry_count  INT NOT NULL DEFAULT 0,
    max_retries  INT NOT NULL DEFAULT 3,
    error        TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL,
    started_at   TIMESTAMPTZ,
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS fetch_jobs_created_idx ON fetch_jobs (created_at DESC);

CREATE TABLE IF NOT EXISTS similarity_records (
    article_id   UUID NOT NULL,
    duplicate_of UUID NOT NULL,
    score        DOUBLE PRECISION NOT NULL,
    method       TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS similarity_article_idx ON similarity_records (article_id);
`

// EnsureSchema creates the pipeline tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
