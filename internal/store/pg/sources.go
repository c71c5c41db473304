package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvujovic/news-pipeline/internal/apperr"
	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) SaveSource(ctx context.Context, src *domain.Source) error {
	var lastFetch *time.Time
	if !src.LastFetchAt.IsZero() {
		lastFetch = &src.LastFetchAt
	}

	cmd := `
        INSERT INTO sources (id, name, type, priority, rate_limit_per_hour,
                             last_fetch_at, consecutive_errors, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            type = EXCLUDED.type,
            priority = EXCLUDED.priority,
            rate_limit_per_hour = EXCLUDED.rate_limit_per_hour,
            last_fetch_at = EXCLUDED.last_fetch_at,
            consecutive_errors = EXCLUDED.consecutive_errors,
            is_active = EXCLUDED.is_active`

	_, err := s.db.Exec(ctx, cmd,
		src.ID, src.Name, string(src.Type), src.Priority, src.RateLimitPerHour,
		lastFetch, src.ConsecutiveErrors, src.IsActive)
	if err != nil {
		return apperr.NewPersistence("save source", err)
	}
	return nil
}

func scanSource(row rowScanner) (*domain.Source, error) {
	var src domain.Source
	var srcType string
	var lastFetch *time.Time

	err := row.Scan(&src.ID, &src.Name, &srcType, &src.Priority,
		&src.RateLimitPerHour, &lastFetch, &src.ConsecutiveErrors, &src.IsActive)
	if err != nil {
		return nil, err
	}
	src.Type = domain.SourceType(srcType)
	if lastFetch != nil {
		src.LastFetchAt = *lastFetch
	}
	return &src, nil
}

const sourceColumns = `id, name, type, priority, rate_limit_per_hour,
    last_fetch_at, consecutive_errors, is_active`

func (s *Store) Source(ctx context.Context, id string) (*domain.Source, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context, activeOnly bool) ([]*domain.Source, error) {
	sql := `SELECT ` + sourceColumns + ` FROM sources`
	if activeOnly {
		sql += ` WHERE is_active`
	}
	sql += ` ORDER BY id`

	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []*domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateSource(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE sources SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return apperr.NewPersistence("deactivate source", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveJob(ctx context.Context, j *domain.FetchJob) error {
	var startedAt, completedAt *time.Time
	if !j.StartedAt.IsZero() {
		startedAt = &j.StartedAt
	}
	if !j.CompletedAt.IsZero() {
		completedAt = &j.CompletedAt
	}

	cmd := `
        INSERT INTO fetch_jobs (id, source_id, status, fetched, new_count,
                                duplicates, processed, retry_count, max_retries,
                                error, created_at, started_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            fetched = EXCLUDED.fetched,
            new_count = EXCLUDED.new_count,
            duplicates = EXCLUDED.duplicates,
            processed = EXCLUDED.processed,
            retry_count = EXCLUDED.retry_count,
            error = EXCLUDED.error,
            started_at = EXCLUDED.started_at,
            completed_at = EXCLUDED.completed_at`

	_, err := s.db.Exec(ctx, cmd,
		j.ID, j.SourceID, string(j.Status), j.Fetched, j.New, j.Duplicates,
		j.Processed, j.RetryCount, j.MaxRetries, j.Error, j.CreatedAt,
		startedAt, completedAt)
	if err != nil {
		return apperr.NewPersistence("save job", err)
	}
	return nil
}

func (s *Store) RecentJobs(ctx context.Context, limit int) ([]*domain.FetchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
        SELECT id, source_id, status, fetched, new_count, duplicates, processed,
               retry_count, max_retries, error, created_at, started_at, completed_at
        FROM fetch_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.FetchJob
	for rows.Next() {
		var j domain.FetchJob
		var status string
		var startedAt, completedAt *time.Time
		err := rows.Scan(&j.ID, &j.SourceID, &status, &j.Fetched, &j.New,
			&j.Duplicates, &j.Processed, &j.RetryCount, &j.MaxRetries,
			&j.Error, &j.CreatedAt, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		j.Status = domain.JobStatus(status)
		if startedAt != nil {
			j.StartedAt = *startedAt
		}
		if completedAt != nil {
			j.CompletedAt = *completedAt
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (s *Store) AppendSimilarity(ctx context.Context, r domain.SimilarityRecord) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO similarity_records (article_id, duplicate_of, score, method, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		r.ArticleID, r.DuplicateOf, r.Score, string(r.Method), r.CreatedAt)
	if err != nil {
		return apperr.NewPersistence("append similarity", err)
	}
	return nil
}

func (s *Store) SimilaritiesFor(ctx context.Context, articleID uuid.UUID) ([]domain.SimilarityRecord, error) {
	rows, err := s.db.Query(ctx, `
        SELECT article_id, duplicate_of, score, method, created_at
        FROM similarity_records WHERE article_id = $1 ORDER BY created_at`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list similarities: %w", err)
	}
	defer rows.Close()

	var out []domain.SimilarityRecord
	for rows.Next() {
		var r domain.SimilarityRecord
		var method string
		if err := rows.Scan(&r.ArticleID, &r.DuplicateOf, &r.Score, &method, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan similarity: %w", err)
		}
		r.Method = domain.SimilarityMethod(method)
		out = append(out, r)
	}
	return out, rows.Err()
}
