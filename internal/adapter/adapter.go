// Package adapter abstracts the upstream news providers the scheduler
// fetches from. The production adapter speaks JSON over HTTP; the static
// adapter serves fixed payloads for tests and local runs.
package adapter

import (
	"context"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
)

// FetchOptions bound a single fetch call.
type FetchOptions struct {
	// MaxArticles caps the number of articles requested; zero means the
	// provider default.
	MaxArticles int

	// Since, when set, asks the provider only for articles published after
	// this instant.
	Since time.Time
}

// RateLimitInfo is provider-reported quota state, when the provider
// exposes one.
type RateLimitInfo struct {
	Remaining int
	ResetAt   time.Time
}

// FetchResult is the outcome of one provider call.
type FetchResult struct {
	Articles     []*domain.Article
	TotalResults int
	RateLimit    *RateLimitInfo
}

// SourceAdapter fetches articles from one provider type. Implementations
// must treat provider failures as transient and surface quota exhaustion
// as a rate-limit error so the scheduler can back off.
type SourceAdapter interface {
	FetchArticles(ctx context.Context, src *domain.Source, opts FetchOptions) (*FetchResult, error)
	HealthCheck(ctx context.Context) error
}
