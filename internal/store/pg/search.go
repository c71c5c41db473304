package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvujovic/news-pipeline/internal/store"
)

// tsquery renders the normalized query for to_tsquery. Terms come from the
// query normalizer already tokenized and lower-cased; the phrase, when
// present, is OR-ed in so exact-phrase documents rank above term-only hits.
func tsquery(q store.TextQuery) string {
	join := " | "
	if q.Operator == store.OperatorAnd {
		join = " & "
	}

	var parts []string
	if len(q.Terms) > 0 {
		parts = append(parts, "("+strings.Join(q.Terms, join)+")")
	}
	if q.Phrase != "" {
		phraseTerms := strings.Fields(q.Phrase)
		if len(phraseTerms) > 1 {
			parts = append(parts, "("+strings.Join(phraseTerms, " <-> ")+")")
		}
	}
	return strings.Join(parts, " | ")
}

func (s *Store) SearchArticles(ctx context.Context, q store.TextQuery, f store.ArticleFilter, limit, offset int) ([]store.ScoredArticle, int64, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	if q.Empty() {
		return s.searchWithoutQuery(ctx, f, limit, offset)
	}

	var args []any
	where := buildFilter(f, &args)

	args = append(args, tsquery(q))
	queryArg := fmt.Sprintf("to_tsquery('english', $%d)", len(args))
	where += " AND search_vector @@ " + queryArg

	var total int64
	countSQL := `SELECT COUNT(*) FROM articles WHERE ` + where
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	rank := fmt.Sprintf("ts_rank(search_vector, %s)", queryArg)
	args = append(args, limit, offset)
	sql := fmt.Sprintf(`
        SELECT %s, %s AS rank FROM articles
        WHERE %s
        ORDER BY rank DESC, published_at DESC, id DESC
        LIMIT $%d OFFSET $%d`,
		articleColumns, rank, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search articles: %w", err)
	}
	defer rows.Close()

	var out []store.ScoredArticle
	for rows.Next() {
		a, score, err := scanRankedArticle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan search hit: %w", err)
		}
		out = append(out, store.ScoredArticle{Article: a, Score: score})
	}
	return out, total, rows.Err()
}

// searchWithoutQuery serves filter-only searches in tier-then-recency order
// with a real total, matching the ranked path's pagination contract.
func (s *Store) searchWithoutQuery(ctx context.Context, f store.ArticleFilter, limit, offset int) ([]store.ScoredArticle, int64, error) {
	var args []any
	where := buildFilter(f, &args)

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM articles WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	args = append(args, limit, offset)
	sql := fmt.Sprintf(`SELECT %s FROM articles WHERE %s %s LIMIT $%d OFFSET $%d`,
		articleColumns, where, tierOrder, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var out []store.ScoredArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan article: %w", err)
		}
		out = append(out, store.ScoredArticle{Article: a})
	}
	return out, total, rows.Err()
}

func (s *Store) Suggestions(ctx context.Context, partial string, limit int) ([]string, error) {
	partial = strings.TrimSpace(partial)
	if partial == "" || limit <= 0 {
		return []string{}, nil
	}

	rows, err := s.db.Query(ctx, `
        SELECT DISTINCT v FROM (
            SELECT title AS v FROM articles WHERE NOT is_duplicate AND title ILIKE '%' || $1 || '%'
            UNION
            SELECT author FROM articles WHERE NOT is_duplicate AND author <> '' AND author ILIKE '%' || $1 || '%'
            UNION
            SELECT category FROM articles WHERE NOT is_duplicate AND category ILIKE '%' || $1 || '%'
        ) suggestions
        ORDER BY v LIMIT $2`, partial, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestions: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
