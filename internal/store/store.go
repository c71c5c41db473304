// Package store defines the persistence capabilities the pipeline consumes.
// Backends live in subpackages: memory (default, zero-dependency), pg
// (production, Postgres full-text search) and es (search-index mirror).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleWrite is returned by UpdateArticle when the article row was
	// modified since it was read (optimistic concurrency check).
	ErrStaleWrite = errors.New("stale write: article modified concurrently")
)

// Operator selects how multiple query terms combine.
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// TextQuery is the normalized free-text query handed to a backend. Phrase,
// when set, is an exact phrase that boosts matching documents; Terms are
// combined with Operator.
type TextQuery struct {
	Phrase   string
	Terms    []string
	Operator Operator
}

// Empty reports whether the query carries no text.
func (q TextQuery) Empty() bool {
	return q.Phrase == "" && len(q.Terms) == 0
}

// ArticleFilter is the set of hard predicates applied to article reads.
// Zero values mean "no constraint"; duplicates are excluded unless
// IncludeDuplicates is set.
type ArticleFilter struct {
	Categories        []string
	Priorities        []domain.Priority
	SourceIDs         []string
	From              time.Time
	To                time.Time
	IncludeDuplicates bool
	OnlyUnprocessed   bool
	HasEmbedding      *bool
	Limit             int
}

// ScoredArticle pairs an article with its retrieval rank.
type ScoredArticle struct {
	Article *domain.Article `json:"article"`
	Score   float64         `json:"score"`
}

// ArticleStore persists articles and serves filtered and ranked reads.
// ListArticles returns priority-tier-then-recency order; SearchArticles
// returns relevance order.
type ArticleStore interface {
	CreateArticle(ctx context.Context, a *domain.Article) error
	// UpdateArticle applies a mutation using a.UpdatedAt as the
	// compare-and-set token; returns ErrStaleWrite on concurrent change.
	UpdateArticle(ctx context.Context, a *domain.Article) error
	Article(ctx context.Context, id uuid.UUID) (*domain.Article, error)
	// ArticleByURLHash resolves a hash against non-duplicate articles only.
	ArticleByURLHash(ctx context.Context, hash string) (*domain.Article, error)
	ListArticles(ctx context.Context, f ArticleFilter) ([]*domain.Article, error)
	SearchArticles(ctx context.Context, q TextQuery, f ArticleFilter, limit, offset int) ([]ScoredArticle, int64, error)
	Suggestions(ctx context.Context, partial string, limit int) ([]string, error)
	// DeleteArticlesBefore removes articles published before cutoff and
	// returns their ids so external index mirrors can stay consistent.
	DeleteArticlesBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	ResetDailyCounters(ctx context.Context) error
}

// SourceStore persists sources. Sources are deactivated, never hard-deleted.
type SourceStore interface {
	SaveSource(ctx context.Context, s *domain.Source) error
	Source(ctx context.Context, id string) (*domain.Source, error)
	ListSources(ctx context.Context, activeOnly bool) ([]*domain.Source, error)
	DeactivateSource(ctx context.Context, id string) error
}

// JobStore persists one FetchJob row per execution.
type JobStore interface {
	SaveJob(ctx context.Context, j *domain.FetchJob) error
	RecentJobs(ctx context.Context, limit int) ([]*domain.FetchJob, error)
}

// SimilarityStore is the append-only dedup audit trail.
type SimilarityStore interface {
	AppendSimilarity(ctx context.Context, r domain.SimilarityRecord) error
	SimilaritiesFor(ctx context.Context, articleID uuid.UUID) ([]domain.SimilarityRecord, error)
}

// Store is the full persistence surface.
type Store interface {
	ArticleStore
	SourceStore
	JobStore
	SimilarityStore
	Ping(ctx context.Context) error
	Close()
}

// Compactor is implemented by backends whose text index benefits from a
// periodic compaction pass; maintenance calls it when available.
type Compactor interface {
	Compact(ctx context.Context) error
}

// IndexMirror keeps an external inverted index consistent with the article
// table on insert, update and delete.
type IndexMirror interface {
	IndexArticles(ctx context.Context, articles []*domain.Article) error
	DeleteFromIndex(ctx context.Context, ids []uuid.UUID) error
}
