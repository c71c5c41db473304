package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dvujovic/news-pipeline/internal/apperr"
	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/internal/textutil"
	"github.com/dvujovic/news-pipeline/pkg/clock"
	"golang.org/x/sync/errgroup"
)

const (
	defaultChunkSize           = 20
	defaultConcurrency         = 4
	defaultConfidenceThreshold = 0.6
	defaultKeywordLimit        = 10
)

type Option func(*Engine)

// Engine classifies batches of articles. Low-confidence results keep the
// article's prior category; a failing classifier never fails the batch.
type Engine struct {
	store      store.ArticleStore
	classifier Classifier
	bus        *domain.Bus
	clk        clock.Clock

	chunkSize           int
	concurrency         int
	confidenceThreshold float64
	keywordLimit        int
}

func NewEngine(st store.ArticleStore, classifier Classifier, opts ...Option) *Engine {
	e := &Engine{
		store:               st,
		classifier:          classifier,
		clk:                 clock.Real{},
		chunkSize:           defaultChunkSize,
		concurrency:         defaultConcurrency,
		confidenceThreshold: defaultConfidenceThreshold,
		keywordLimit:        defaultKeywordLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithBus(bus *domain.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

func WithConfidenceThreshold(t float64) Option {
	return func(e *Engine) { e.confidenceThreshold = t }
}

// BatchResult aggregates one classification pass.
type BatchResult struct {
	Classified int64 // category updated from a confident result
	Kept       int64 // low confidence, prior category kept
	Failed     int64 // classifier unavailable or persist failure
}

// Process classifies articles in chunks, running chunk members concurrently.
// Duplicates are skipped; they never reach readers.
func (e *Engine) Process(ctx context.Context, articles []*domain.Article) (*BatchResult, error) {
	res := &BatchResult{}

	for start := 0; start < len(articles); start += e.chunkSize {
		end := min(start+e.chunkSize, len(articles))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)
		for _, a := range articles[start:end] {
			if a.IsDuplicate {
				continue
			}
			g.Go(func() error {
				e.classifyOne(gctx, a, res)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return res, fmt.Errorf("classification interrupted: %w", err)
		}
	}
	return res, nil
}

func (e *Engine) classifyOne(ctx context.Context, a *domain.Article, res *BatchResult) {
	result, err := e.classifier.Classify(ctx, a.Title, a.Content)
	if err != nil {
		atomic.AddInt64(&res.Failed, 1)
		if apperr.IsClassifierUnavailable(err) {
			slog.Warn("classifier unavailable, keeping prior category",
				"article_id", a.ID, "category", a.Category, "error", err)
		} else {
			slog.Error("classification failed", "article_id", a.ID, "error", err)
		}
		return
	}

	confident := result.Confidence >= e.confidenceThreshold
	if confident {
		a.Category = result.Category
	}
	a.ConfidenceScore = result.Confidence
	a.Keywords = textutil.ExtractKeywords(a.Title+" "+a.Content, e.keywordLimit)

	if err := e.store.UpdateArticle(ctx, a); err != nil {
		atomic.AddInt64(&res.Failed, 1)
		slog.Error("failed to persist classification", "article_id", a.ID, "error", err)
		return
	}
	if confident {
		atomic.AddInt64(&res.Classified, 1)
	} else {
		atomic.AddInt64(&res.Kept, 1)
	}

	if e.bus != nil && confident {
		e.bus.Publish(domain.Event{
			Kind:      domain.EventArticleClassified,
			ArticleID: a.ID,
			SourceID:  a.SourceID,
			At:        e.clk.Now(),
		})
	}
}
