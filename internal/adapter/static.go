package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
)

// StaticAdapter serves canned payloads keyed by source id. Tests and local
// runs use it in place of the HTTP gateway; a per-source error can be
// injected to exercise failure paths.
type StaticAdapter struct {
	mu       sync.Mutex
	payloads map[string][]*domain.Article
	errs     map[string]error
	calls    map[string]int
}

var _ SourceAdapter = (*StaticAdapter)(nil)

func NewStaticAdapter() *StaticAdapter {
	return &StaticAdapter{
		payloads: make(map[string][]*domain.Article),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

// SetPayload installs the articles returned for a source.
func (a *StaticAdapter) SetPayload(sourceID string, articles []*domain.Article) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payloads[sourceID] = articles
}

// SetError makes fetches of a source fail with err until cleared.
func (a *StaticAdapter) SetError(sourceID string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.errs, sourceID)
		return
	}
	a.errs[sourceID] = err
}

// Calls reports how many times a source was fetched.
func (a *StaticAdapter) Calls(sourceID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[sourceID]
}

func (a *StaticAdapter) FetchArticles(ctx context.Context, src *domain.Source, opts FetchOptions) (*FetchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls[src.ID]++
	if err := a.errs[src.ID]; err != nil {
		return nil, err
	}

	now := time.Now()
	stored := a.payloads[src.ID]
	articles := make([]*domain.Article, 0, len(stored))
	for _, ar := range stored {
		if opts.MaxArticles > 0 && len(articles) >= opts.MaxArticles {
			break
		}
		if !opts.Since.IsZero() && ar.PublishedAt.Before(opts.Since) {
			continue
		}
		cp := *ar
		if cp.SourceName == "" {
			cp.SourceName = src.Name
		}
		cp.FetchedAt = now
		articles = append(articles, &cp)
	}

	return &FetchResult{Articles: articles, TotalResults: len(stored)}, nil
}

func (a *StaticAdapter) HealthCheck(ctx context.Context) error { return nil }
