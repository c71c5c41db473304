// Package dedup flags duplicate articles through an ordered chain of checks:
// exact url, exact title, keyword overlap, then embedding cosine similarity.
// Each check short-circuits the rest on a hit.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/embedding"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/internal/textutil"
	"github.com/dvujovic/news-pipeline/pkg/clock"
	"github.com/google/uuid"
)

const (
	defaultTitleThreshold   = 0.95
	defaultKeywordThreshold = 0.7
	defaultCosineThreshold  = 0.85
	defaultWindow           = 7 * 24 * time.Hour
	defaultKeywordLimit     = 20
)

type Option func(*Engine)

// Engine runs the duplicate checks against recent non-duplicate articles.
// The embedder is optional: without one the cosine stage is skipped.
type Engine struct {
	store    store.Store
	embedder *embedding.Embedder
	bus      *domain.Bus
	clk      clock.Clock

	titleThreshold   float64
	keywordThreshold float64
	cosineThreshold  float64
	window           time.Duration
	keywordLimit     int
}

func NewEngine(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:            st,
		clk:              clock.Real{},
		titleThreshold:   defaultTitleThreshold,
		keywordThreshold: defaultKeywordThreshold,
		cosineThreshold:  defaultCosineThreshold,
		window:           defaultWindow,
		keywordLimit:     defaultKeywordLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithEmbedder(embedder *embedding.Embedder) Option {
	return func(e *Engine) { e.embedder = embedder }
}

func WithBus(bus *domain.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

func WithThresholds(title, keyword, cosine float64) Option {
	return func(e *Engine) {
		e.titleThreshold = title
		e.keywordThreshold = keyword
		e.cosineThreshold = cosine
	}
}

func WithWindow(window time.Duration) Option {
	return func(e *Engine) { e.window = window }
}

// Result aggregates one dedup pass.
type Result struct {
	Checked    int
	Duplicates int
	Skipped    int
}

// match is a successful duplicate check.
type match struct {
	of     *domain.Article
	score  float64
	method domain.SimilarityMethod
}

// Process runs the check chain over a batch of stored articles. Articles
// flagged as duplicates are updated in place and recorded in the similarity
// audit trail. A malformed article never aborts its siblings.
func (e *Engine) Process(ctx context.Context, articles []*domain.Article) (*Result, error) {
	res := &Result{}
	if len(articles) == 0 {
		return res, nil
	}

	now := e.clk.Now()
	loaded, err := e.store.ListArticles(ctx, store.ArticleFilter{
		From: now.Add(-e.window),
	})
	if err != nil {
		return nil, fmt.Errorf("load dedup candidates: %w", err)
	}

	// The batch is already stored; exclude its members from the candidate
	// pool so two copies in one batch do not flag each other mutually.
	// Members re-enter as candidates once they pass the checks.
	inBatch := make(map[uuid.UUID]struct{}, len(articles))
	for _, a := range articles {
		inBatch[a.ID] = struct{}{}
	}
	candidates := loaded[:0]
	for _, c := range loaded {
		if _, ok := inBatch[c.ID]; !ok {
			candidates = append(candidates, c)
		}
	}

	if err := e.backfillEmbeddings(ctx, articles); err != nil {
		// Cosine stage degrades to the lexical checks.
		slog.Warn("embedding backfill failed, cosine check disabled for batch", "error", err)
	}

	for _, a := range articles {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		if a.IsDuplicate {
			// Flagged at ingest; nothing left to compare.
			continue
		}

		res.Checked++
		m, err := e.check(a, candidates, now)
		if err != nil {
			return res, err
		}
		if m == nil {
			// Later batch members must compare against this article too.
			candidates = append(candidates, a)
			continue
		}

		a.MarkDuplicate(m.of.ID)
		if err := e.store.UpdateArticle(ctx, a); err != nil {
			slog.Error("failed to persist duplicate flag", "article_id", a.ID, "error", err)
			res.Skipped++
			continue
		}
		record := domain.SimilarityRecord{
			ArticleID:   a.ID,
			DuplicateOf: m.of.ID,
			Score:       m.score,
			Method:      m.method,
			CreatedAt:   now,
		}
		if err := e.store.AppendSimilarity(ctx, record); err != nil {
			slog.Error("failed to record similarity", "article_id", a.ID, "error", err)
		}

		res.Duplicates++
		if e.bus != nil {
			e.bus.Publish(domain.Event{
				Kind:      domain.EventDuplicateFlagged,
				ArticleID: a.ID,
				SourceID:  a.SourceID,
				At:        now,
			})
		}
		slog.Debug("duplicate flagged",
			"article_id", a.ID, "duplicate_of", m.of.ID,
			"method", m.method, "score", m.score)
	}

	return res, nil
}

// check runs the four stages in order against the candidate set.
func (e *Engine) check(a *domain.Article, candidates []*domain.Article, now time.Time) (*match, error) {
	for _, c := range candidates {
		if c.ID == a.ID {
			continue
		}
		if c.URLHash == a.URLHash {
			return &match{of: c, score: 1.0, method: domain.SimilarityExactURL}, nil
		}
	}

	// Articles without text cannot be compared beyond their url.
	if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.Content) == "" {
		return nil, nil
	}

	for _, c := range candidates {
		if c.ID == a.ID {
			continue
		}
		if score := textutil.JaccardWords(a.Title, c.Title); score >= e.titleThreshold {
			return &match{of: c, score: score, method: domain.SimilarityExactTitle}, nil
		}
	}

	aKeywords := e.topKeywords(a)
	if len(aKeywords) > 0 {
		for _, c := range candidates {
			if c.ID == a.ID {
				continue
			}
			cKeywords := e.topKeywords(c)
			if !sharesAny(aKeywords, cKeywords) {
				continue
			}
			if score := textutil.Jaccard(aKeywords, cKeywords); score >= e.keywordThreshold {
				return &match{of: c, score: score, method: domain.SimilarityFuzzyContent}, nil
			}
		}
	}

	if len(a.Embedding) > 0 {
		cutoff := now.Add(-e.window)
		for _, c := range candidates {
			if c.ID == a.ID || len(c.Embedding) == 0 {
				continue
			}
			if c.PublishedAt.Before(cutoff) {
				continue
			}
			score, err := Cosine(a.Embedding, c.Embedding)
			if err != nil {
				return nil, fmt.Errorf("compare %s with %s: %w", a.ID, c.ID, err)
			}
			if score >= e.cosineThreshold {
				return &match{of: c, score: score, method: domain.SimilarityCosine}, nil
			}
		}
	}

	return nil, nil
}

// backfillEmbeddings generates vectors for batch members missing one.
func (e *Engine) backfillEmbeddings(ctx context.Context, articles []*domain.Article) error {
	if e.embedder == nil {
		return nil
	}

	var missing []*domain.Article
	for _, a := range articles {
		if len(a.Embedding) == 0 && strings.TrimSpace(a.Title+a.Content) != "" {
			missing = append(missing, a)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	vecs, err := e.embedder.EmbedArticles(ctx, missing)
	if err != nil {
		return err
	}
	for i, vec := range vecs {
		missing[i].Embedding = vec.Embedding
		missing[i].EmbeddingModel = vec.Model
	}
	return nil
}

func (e *Engine) topKeywords(a *domain.Article) map[string]struct{} {
	keywords := a.Keywords
	if len(keywords) == 0 {
		keywords = textutil.ExtractKeywords(a.Title+" "+a.Content, e.keywordLimit)
	}
	if len(keywords) > e.keywordLimit {
		keywords = keywords[:e.keywordLimit]
	}
	return textutil.KeywordSet(keywords)
}

func sharesAny(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
