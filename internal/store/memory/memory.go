// Package memory is the in-process store backend. It backs tests and
// single-node deployments and mirrors the semantics of the pg backend,
// including ranked retrieval via its own inverted index.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/google/uuid"
)

type Memory struct {
	mu       sync.RWMutex
	articles map[uuid.UUID]*domain.Article
	byHash   map[string]uuid.UUID // urlHash -> non-duplicate article
	sources  map[string]*domain.Source
	jobs     []*domain.FetchJob
	sims     []domain.SimilarityRecord
	index    *invertedIndex
}

var _ store.Store = (*Memory)(nil)
var _ store.Compactor = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		articles: make(map[uuid.UUID]*domain.Article),
		byHash:   make(map[string]uuid.UUID),
		sources:  make(map[string]*domain.Source),
		index:    newInvertedIndex(),
	}
}

func cloneArticle(a *domain.Article) *domain.Article {
	cp := *a
	if a.Keywords != nil {
		cp.Keywords = append([]string(nil), a.Keywords...)
	}
	if a.Embedding != nil {
		cp.Embedding = append([]float32(nil), a.Embedding...)
	}
	return &cp
}

func (m *Memory) CreateArticle(ctx context.Context, a *domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.UpdatedAt = time.Now()
	cp := cloneArticle(a)
	m.articles[cp.ID] = cp
	m.index.add(cp)
	if !cp.IsDuplicate {
		m.byHash[cp.URLHash] = cp.ID
	}
	return nil
}

func (m *Memory) UpdateArticle(ctx context.Context, a *domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.articles[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	if !existing.UpdatedAt.Equal(a.UpdatedAt) {
		return store.ErrStaleWrite
	}

	a.UpdatedAt = time.Now()
	cp := cloneArticle(a)
	m.articles[cp.ID] = cp
	m.index.add(cp)

	if cp.IsDuplicate {
		if m.byHash[cp.URLHash] == cp.ID {
			delete(m.byHash, cp.URLHash)
		}
	} else {
		m.byHash[cp.URLHash] = cp.ID
	}
	return nil
}

func (m *Memory) Article(ctx context.Context, id uuid.UUID) (*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.articles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneArticle(a), nil
}

func (m *Memory) ArticleByURLHash(ctx context.Context, hash string) (*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byHash[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneArticle(m.articles[id]), nil
}

func matchesFilter(a *domain.Article, f store.ArticleFilter) bool {
	if a.IsDuplicate && !f.IncludeDuplicates {
		return false
	}
	if f.OnlyUnprocessed && a.IsProcessed {
		return false
	}
	if len(f.Categories) > 0 && !containsString(f.Categories, a.Category) {
		return false
	}
	if len(f.SourceIDs) > 0 && !containsString(f.SourceIDs, a.SourceID) {
		return false
	}
	if len(f.Priorities) > 0 {
		found := false
		for _, p := range f.Priorities {
			if a.Priority == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && a.PublishedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.PublishedAt.After(f.To) {
		return false
	}
	if f.HasEmbedding != nil {
		if *f.HasEmbedding != (len(a.Embedding) > 0) {
			return false
		}
	}
	return true
}

func containsString(hay []string, needle string) bool {
	for _, s := range hay {
		if s == needle {
			return true
		}
	}
	return false
}

func tierRank(p domain.Priority) int {
	switch p {
	case domain.PriorityBreaking:
		return 0
	case domain.PriorityTrending:
		return 1
	default:
		return 2
	}
}

// listLocked returns filtered articles in priority-tier-then-recency order.
// Callers hold at least a read lock.
func (m *Memory) listLocked(f store.ArticleFilter) []*domain.Article {
	var out []*domain.Article
	for _, a := range m.articles {
		if matchesFilter(a, f) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := tierRank(out[i].Priority), tierRank(out[j].Priority)
		if ti != tj {
			return ti < tj
		}
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (m *Memory) ListArticles(ctx context.Context, f store.ArticleFilter) ([]*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.listLocked(f)
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	out := make([]*domain.Article, len(matched))
	for i, a := range matched {
		out[i] = cloneArticle(a)
	}
	return out, nil
}

func (m *Memory) SearchArticles(ctx context.Context, q store.TextQuery, f store.ArticleFilter, limit, offset int) ([]store.ScoredArticle, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	if q.Empty() {
		matched := m.listLocked(f)
		total := int64(len(matched))
		matched = page(matched, offset, limit)
		out := make([]store.ScoredArticle, len(matched))
		for i, a := range matched {
			out[i] = store.ScoredArticle{Article: cloneArticle(a)}
		}
		return out, total, nil
	}

	var hits []store.ScoredArticle
	for _, a := range m.articles {
		if !matchesFilter(a, f) {
			continue
		}
		score, ok := m.index.score(a.ID, q)
		if !ok {
			continue
		}
		hits = append(hits, store.ScoredArticle{Article: a, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Article.PublishedAt.Equal(hits[j].Article.PublishedAt) {
			return hits[i].Article.PublishedAt.After(hits[j].Article.PublishedAt)
		}
		return hits[i].Article.ID.String() < hits[j].Article.ID.String()
	})

	total := int64(len(hits))
	hits = page(hits, offset, limit)
	out := make([]store.ScoredArticle, len(hits))
	for i, h := range hits {
		out[i] = store.ScoredArticle{Article: cloneArticle(h.Article), Score: h.Score}
	}
	return out, total, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (m *Memory) Suggestions(ctx context.Context, partial string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	partial = strings.ToLower(strings.TrimSpace(partial))
	if partial == "" || limit <= 0 {
		return []string{}, nil
	}

	seen := make(map[string]struct{})
	out := []string{}
	add := func(v string) {
		if v == "" || !strings.Contains(strings.ToLower(v), partial) {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	for _, a := range m.articles {
		if a.IsDuplicate {
			continue
		}
		add(a.Title)
		add(a.Author)
		add(a.Category)
	}

	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteArticlesBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted []uuid.UUID
	for id, a := range m.articles {
		if a.PublishedAt.Before(cutoff) {
			deleted = append(deleted, id)
			m.index.remove(id)
			if m.byHash[a.URLHash] == id {
				delete(m.byHash, a.URLHash)
			}
			delete(m.articles, id)
		}
	}
	return deleted, nil
}

func (m *Memory) ResetDailyCounters(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.articles {
		a.ViewCount = 0
		a.LikeCount = 0
		a.ShareCount = 0
	}
	return nil
}

func (m *Memory) SaveSource(ctx context.Context, s *domain.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sources[s.ID] = &cp
	return nil
}

func (m *Memory) Source(ctx context.Context, id string) (*domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListSources(ctx context.Context, activeOnly bool) ([]*domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Source
	for _, s := range m.sources {
		if activeOnly && !s.IsActive {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeactivateSource(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sources[id]
	if !ok {
		return store.ErrNotFound
	}
	s.IsActive = false
	return nil
}

func (m *Memory) SaveJob(ctx context.Context, j *domain.FetchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *j
	for i, existing := range m.jobs {
		if existing.ID == j.ID {
			m.jobs[i] = &cp
			return nil
		}
	}
	m.jobs = append(m.jobs, &cp)
	return nil
}

func (m *Memory) RecentJobs(ctx context.Context, limit int) ([]*domain.FetchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.jobs) {
		limit = len(m.jobs)
	}
	out := make([]*domain.FetchJob, 0, limit)
	for i := len(m.jobs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.jobs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) AppendSimilarity(ctx context.Context, r domain.SimilarityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sims = append(m.sims, r)
	return nil
}

func (m *Memory) SimilaritiesFor(ctx context.Context, articleID uuid.UUID) ([]domain.SimilarityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.SimilarityRecord
	for _, r := range m.sims {
		if r.ArticleID == articleID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}

// Compact rebuilds corpus statistics dropped out of sync by deletes.
func (m *Memory) Compact(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.index.rebuild(m.articles)
	return nil
}
