// Package search fronts the store's ranked retrieval with query
// normalization, faceting and related-article lookups.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/internal/textutil"
	"github.com/dvujovic/news-pipeline/pkg/clock"
	"github.com/google/uuid"
)

const (
	defaultLimit = 10
	maxLimit     = 100

	// phraseTermLimit is the query length up to which the raw text is also
	// matched as an exact phrase.
	phraseTermLimit = 4

	similarKeywordCount = 6
)

// Params are the caller-facing search inputs.
type Params struct {
	Query      string
	Categories []string
	Priorities []domain.Priority
	SourceIDs  []string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// Facets count matching articles per dimension value, computed over the
// whole filtered corpus rather than the returned page.
type Facets struct {
	Categories map[string]int `json:"categories"`
	Sources    map[string]int `json:"sources"`
	Priorities map[string]int `json:"priorities"`
	Authors    map[string]int `json:"authors"`
	Published  map[string]int `json:"published"`
}

// Result is one search response page.
type Result struct {
	Hits   []store.ScoredArticle `json:"hits"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
	Facets *Facets               `json:"facets,omitempty"`
}

type Option func(*Engine)

// Engine serves search, suggestions and related-article queries.
type Engine struct {
	store store.ArticleStore
	clk   clock.Clock
}

func NewEngine(st store.ArticleStore, opts ...Option) *Engine {
	e := &Engine{store: st, clk: clock.Real{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

// Normalize turns raw query text into a backend query. Short queries match
// both as an exact phrase and as OR terms so phrase hits rank first; longer
// queries require every term.
func Normalize(raw string) store.TextQuery {
	raw = strings.TrimSpace(raw)
	terms := dedupeTerms(textutil.Tokenize(raw))
	if len(terms) == 0 {
		return store.TextQuery{}
	}

	if len(terms) <= phraseTermLimit {
		return store.TextQuery{
			Phrase:   strings.ToLower(raw),
			Terms:    terms,
			Operator: store.OperatorOr,
		}
	}
	return store.TextQuery{
		Terms:    terms,
		Operator: store.OperatorAnd,
	}
}

func dedupeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Search runs a ranked query with facets. Duplicates are always excluded;
// with no query text results fall back to tier-then-recency order.
func (e *Engine) Search(ctx context.Context, p Params) (*Result, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	filter := store.ArticleFilter{
		Categories: p.Categories,
		Priorities: p.Priorities,
		SourceIDs:  p.SourceIDs,
		From:       p.From,
		To:         p.To,
	}

	q := Normalize(p.Query)
	hits, total, err := e.store.SearchArticles(ctx, q, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	facets, err := e.computeFacets(ctx, q, filter)
	if err != nil {
		// Facets are a progressive enhancement over the result list.
		slog.Warn("facet computation failed", "error", err)
		facets = nil
	}

	if hits == nil {
		hits = []store.ScoredArticle{}
	}
	return &Result{
		Hits:   hits,
		Total:  total,
		Limit:  limit,
		Offset: offset,
		Facets: facets,
	}, nil
}

// computeFacets counts dimension values over every match of the same query
// and filter.
func (e *Engine) computeFacets(ctx context.Context, q store.TextQuery, filter store.ArticleFilter) (*Facets, error) {
	var matched []*domain.Article
	if q.Empty() {
		all, err := e.store.ListArticles(ctx, filter)
		if err != nil {
			return nil, err
		}
		matched = all
	} else {
		hits, _, err := e.store.SearchArticles(ctx, q, filter, maxFacetDocs, 0)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			matched = append(matched, h.Article)
		}
	}

	f := &Facets{
		Categories: make(map[string]int),
		Sources:    make(map[string]int),
		Priorities: make(map[string]int),
		Authors:    make(map[string]int),
		Published:  make(map[string]int),
	}
	now := e.clk.Now()
	for _, a := range matched {
		f.Categories[a.Category]++
		f.Sources[a.SourceID]++
		f.Priorities[string(a.Priority)]++
		if a.Author != "" {
			f.Authors[a.Author]++
		}
		f.Published[dateBucket(now, a.PublishedAt)]++
	}
	return f, nil
}

// maxFacetDocs caps how many matches feed facet counts.
const maxFacetDocs = 1000

func dateBucket(now, published time.Time) string {
	age := now.Sub(published)
	switch {
	case age <= 24*time.Hour:
		return "today"
	case age <= 7*24*time.Hour:
		return "this_week"
	case age <= 30*24*time.Hour:
		return "this_month"
	default:
		return "older"
	}
}

// FindSimilar returns articles sharing the given article's top keywords,
// ranked by relevance, the article itself excluded.
func (e *Engine) FindSimilar(ctx context.Context, id uuid.UUID, limit int) ([]store.ScoredArticle, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	a, err := e.store.Article(ctx, id)
	if err != nil {
		return nil, err
	}

	keywords := a.Keywords
	if len(keywords) == 0 {
		keywords = textutil.ExtractKeywords(a.Title+" "+a.Content, similarKeywordCount)
	}
	if len(keywords) > similarKeywordCount {
		keywords = keywords[:similarKeywordCount]
	}
	if len(keywords) == 0 {
		return []store.ScoredArticle{}, nil
	}

	q := store.TextQuery{Terms: keywords, Operator: store.OperatorOr}
	hits, _, err := e.store.SearchArticles(ctx, q, store.ArticleFilter{}, limit+1, 0)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}

	out := make([]store.ScoredArticle, 0, limit)
	for _, h := range hits {
		if h.Article.ID == id {
			continue
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Suggest returns completion candidates for a partial query. It degrades to
// an empty list rather than failing the caller.
func (e *Engine) Suggest(ctx context.Context, partial string, limit int) []string {
	if limit <= 0 {
		limit = defaultLimit
	}
	out, err := e.store.Suggestions(ctx, partial, limit)
	if err != nil {
		slog.Warn("suggestion lookup failed", "error", err)
		return []string{}
	}
	return out
}
