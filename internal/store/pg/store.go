// Package pg is the production store backend on PostgreSQL via pgx. Ranked
// retrieval uses the weighted tsvector column and ts_rank.
package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvujovic/news-pipeline/internal/apperr"
	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db   *pgxpool.Pool
	pool *ConnectionPool
}

var _ store.Store = (*Store)(nil)
var _ store.Compactor = (*Store)(nil)

func NewStore(ctx context.Context, pool *ConnectionPool) (*Store, error) {
	s := &Store{db: pool.conn, pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

const articleColumns = `
    id, title, description, content, summary, url, url_hash, source_id,
    source_name, author, published_at, fetched_at, category, priority,
    confidence_score, keywords, word_count, reading_time, language,
    embedding, embedding_model, is_duplicate, duplicate_of, is_processed,
    view_count, like_count, share_count, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// articleDest returns the scan destinations for articleColumns plus a
// finalize func moving nullable columns into the struct.
func articleDest(a *domain.Article) ([]any, func()) {
	fetchedAt := new(*time.Time)
	duplicateOf := new(*uuid.UUID)
	priority := new(string)

	dest := []any{
		&a.ID, &a.Title, &a.Description, &a.Content, &a.Summary, &a.URL,
		&a.URLHash, &a.SourceID, &a.SourceName, &a.Author, &a.PublishedAt,
		fetchedAt, &a.Category, priority, &a.ConfidenceScore, &a.Keywords,
		&a.WordCount, &a.ReadingTime, &a.Language, &a.Embedding,
		&a.EmbeddingModel, &a.IsDuplicate, duplicateOf, &a.IsProcessed,
		&a.ViewCount, &a.LikeCount, &a.ShareCount, &a.UpdatedAt,
	}
	finish := func() {
		a.Priority = domain.Priority(*priority)
		if *fetchedAt != nil {
			a.FetchedAt = **fetchedAt
		}
		if *duplicateOf != nil {
			a.DuplicateOf = **duplicateOf
		}
	}
	return dest, finish
}

func scanArticle(row rowScanner) (*domain.Article, error) {
	var a domain.Article
	dest, finish := articleDest(&a)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	finish()
	return &a, nil
}

func scanRankedArticle(row rowScanner) (*domain.Article, float64, error) {
	var a domain.Article
	var rank float64
	dest, finish := articleDest(&a)
	if err := row.Scan(append(dest, &rank)...); err != nil {
		return nil, 0, err
	}
	finish()
	return &a, rank, nil
}

func articleArgs(a *domain.Article) []any {
	var fetchedAt *time.Time
	if !a.FetchedAt.IsZero() {
		fetchedAt = &a.FetchedAt
	}
	var duplicateOf *uuid.UUID
	if a.DuplicateOf != uuid.Nil {
		duplicateOf = &a.DuplicateOf
	}
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return []any{
		a.ID, a.Title, a.Description, a.Content, a.Summary, a.URL, a.URLHash,
		a.SourceID, a.SourceName, a.Author, a.PublishedAt, fetchedAt,
		a.Category, string(a.Priority), a.ConfidenceScore, keywords,
		a.WordCount, a.ReadingTime, a.Language, a.Embedding, a.EmbeddingModel,
		a.IsDuplicate, duplicateOf, a.IsProcessed, a.ViewCount, a.LikeCount,
		a.ShareCount, a.UpdatedAt,
	}
}

func (s *Store) CreateArticle(ctx context.Context, a *domain.Article) error {
	a.UpdatedAt = time.Now()

	cmd := `
        INSERT INTO articles (` + articleColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
                $18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`
	if _, err := s.db.Exec(ctx, cmd, articleArgs(a)...); err != nil {
		return apperr.NewPersistence("insert article", err)
	}
	return nil
}

func (s *Store) UpdateArticle(ctx context.Context, a *domain.Article) error {
	token := a.UpdatedAt
	a.UpdatedAt = time.Now()

	cmd := `
        UPDATE articles SET
            title = $2, description = $3, content = $4, summary = $5,
            url = $6, url_hash = $7, source_id = $8, source_name = $9,
            author = $10, published_at = $11, fetched_at = $12,
            category = $13, priority = $14, confidence_score = $15,
            keywords = $16, word_count = $17, reading_time = $18,
            language = $19, embedding = $20, embedding_model = $21,
            is_duplicate = $22, duplicate_of = $23, is_processed = $24,
            view_count = $25, like_count = $26, share_count = $27,
            updated_at = $28
        WHERE id = $1 AND updated_at = $29`

	args := append(articleArgs(a), token)
	tag, err := s.db.Exec(ctx, cmd, args...)
	if err != nil {
		a.UpdatedAt = token
		return apperr.NewPersistence("update article", err)
	}
	if tag.RowsAffected() == 0 {
		a.UpdatedAt = token
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM articles WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return apperr.NewPersistence("update article", err)
		}
		if exists {
			return store.ErrStaleWrite
		}
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Article(ctx context.Context, id uuid.UUID) (*domain.Article, error) {
	row := s.db.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article: %w", err)
	}
	return a, nil
}

func (s *Store) ArticleByURLHash(ctx context.Context, hash string) (*domain.Article, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE url_hash = $1 AND NOT is_duplicate`, hash)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article by url hash: %w", err)
	}
	return a, nil
}

// buildFilter renders an ArticleFilter to SQL predicates, appending
// positional args. Always returns at least one condition.
func buildFilter(f store.ArticleFilter, args *[]any) string {
	conds := []string{"TRUE"}
	add := func(cond string, val any) {
		*args = append(*args, val)
		conds = append(conds, fmt.Sprintf(cond, len(*args)))
	}

	if !f.IncludeDuplicates {
		conds = append(conds, "NOT is_duplicate")
	}
	if f.OnlyUnprocessed {
		conds = append(conds, "NOT is_processed")
	}
	if len(f.Categories) > 0 {
		add("category = ANY($%d)", f.Categories)
	}
	if len(f.SourceIDs) > 0 {
		add("source_id = ANY($%d)", f.SourceIDs)
	}
	if len(f.Priorities) > 0 {
		priorities := make([]string, len(f.Priorities))
		for i, p := range f.Priorities {
			priorities[i] = string(p)
		}
		add("priority = ANY($%d)", priorities)
	}
	if !f.From.IsZero() {
		add("published_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("published_at <= $%d", f.To)
	}
	if f.HasEmbedding != nil {
		if *f.HasEmbedding {
			conds = append(conds, "embedding IS NOT NULL")
		} else {
			conds = append(conds, "embedding IS NULL")
		}
	}
	return strings.Join(conds, " AND ")
}

const tierOrder = `
    ORDER BY CASE priority
        WHEN 'breaking' THEN 0
        WHEN 'trending' THEN 1
        ELSE 2
    END, published_at DESC, id DESC`

func (s *Store) ListArticles(ctx context.Context, f store.ArticleFilter) ([]*domain.Article, error) {
	var args []any
	where := buildFilter(f, &args)

	sql := `SELECT ` + articleColumns + ` FROM articles WHERE ` + where + tierOrder
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var out []*domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeleteArticlesBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `DELETE FROM articles WHERE published_at < $1 RETURNING id`, cutoff)
	if err != nil {
		return nil, apperr.NewPersistence("delete expired articles", err)
	}
	defer rows.Close()

	var deleted []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.NewPersistence("delete expired articles", err)
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

func (s *Store) ResetDailyCounters(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`UPDATE articles SET view_count = 0, like_count = 0, share_count = 0
         WHERE view_count > 0 OR like_count > 0 OR share_count > 0`)
	if err != nil {
		return apperr.NewPersistence("reset daily counters", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

// Compact runs a vacuum/analyze pass over the article table so the GIN
// index and planner statistics stay healthy after retention deletes.
func (s *Store) Compact(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `VACUUM ANALYZE articles`); err != nil {
		return apperr.NewPersistence("compact articles", err)
	}
	return nil
}
