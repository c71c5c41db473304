// Package scheduler decides which sources to fetch, runs the fetches under
// a bounded worker pool and records one job per execution. Eligibility
// combines activity, error streaks, per-source spacing and the hourly
// rate-limit window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dvujovic/news-pipeline/internal/adapter"
	"github.com/dvujovic/news-pipeline/internal/apperr"
	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/pkg/clock"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConcurrent = 3
	defaultFetchTimeout  = 30 * time.Second
	defaultMaxRetries    = 3
	defaultMaxArticles   = 100
)

// ErrFetchInFlight is returned when a manual trigger races a running fetch
// of the same source.
var ErrFetchInFlight = errors.New("fetch already in flight for source")

type Option func(*Scheduler)

// Scheduler owns fetch execution. One fetch per source runs at a time,
// whether scheduled or manually triggered.
type Scheduler struct {
	store   store.Store
	adapter adapter.SourceAdapter
	bus     *domain.Bus
	clk     clock.Clock
	limiter *RateLimiter

	maxConcurrent int
	fetchTimeout  time.Duration
	maxRetries    int
	maxArticles   int

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(st store.Store, src adapter.SourceAdapter, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:         st,
		adapter:       src,
		clk:           clock.Real{},
		maxConcurrent: defaultMaxConcurrent,
		fetchTimeout:  defaultFetchTimeout,
		maxRetries:    defaultMaxRetries,
		maxArticles:   defaultMaxArticles,
		inflight:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(s.clk)
	}
	return s
}

func WithBus(bus *domain.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		s.clk = clk
		s.limiter = NewRateLimiter(clk)
	}
}

func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.fetchTimeout = d }
}

func WithMaxRetries(n int) Option {
	return func(s *Scheduler) { s.maxRetries = n }
}

func WithMaxArticles(n int) Option {
	return func(s *Scheduler) { s.maxArticles = n }
}

// Stats aggregates one scheduling cycle.
type Stats struct {
	Eligible   int
	Fetched    int
	New        int
	Duplicates int
	Failed     int
	Skipped    int
}

// RunEligible fetches every eligible source and returns the newly stored
// articles for downstream processing. Higher-priority sources (lower rank)
// are dispatched first; within a rank, the longest-unfetched source wins.
func (s *Scheduler) RunEligible(ctx context.Context) ([]*domain.Article, *Stats, error) {
	sources, err := s.store.ListSources(ctx, true)
	if err != nil {
		return nil, nil, fmt.Errorf("list sources: %w", err)
	}

	now := s.clk.Now()
	var eligible []*domain.Source
	for _, src := range sources {
		if s.eligible(src, now) {
			eligible = append(eligible, src)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		return eligible[i].LastFetchAt.Before(eligible[j].LastFetchAt)
	})

	stats := &Stats{Eligible: len(eligible)}
	var mu sync.Mutex
	var collected []*domain.Article

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for _, src := range eligible {
		g.Go(func() error {
			articles, job, err := s.FetchSource(gctx, src)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrFetchInFlight) || apperr.IsRateLimited(err):
				stats.Skipped++
			case err != nil:
				stats.Failed++
			default:
				stats.Fetched++
				stats.New += job.New
				stats.Duplicates += job.Duplicates
				collected = append(collected, articles...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return collected, stats, err
	}
	return collected, stats, nil
}

// eligible applies the scheduling gate: active, below the error streak cap,
// past the per-source spacing.
func (s *Scheduler) eligible(src *domain.Source, now time.Time) bool {
	if !src.IsActive {
		return false
	}
	if src.ConsecutiveErrors >= domain.SourceMaxConsecutiveErrors {
		return false
	}
	if !src.LastFetchAt.IsZero() && now.Sub(src.LastFetchAt) < src.MinFetchInterval() {
		return false
	}
	return true
}

// FetchSource runs one fetch for a source, with retries on transient
// failures. It returns the newly stored articles and the job record.
func (s *Scheduler) FetchSource(ctx context.Context, src *domain.Source) ([]*domain.Article, *domain.FetchJob, error) {
	if !s.acquire(src.ID) {
		return nil, nil, ErrFetchInFlight
	}
	defer s.release(src.ID)

	if !s.limiter.Allow(src) {
		// Window exhaustion is scheduling pressure, not a source failure.
		return nil, nil, apperr.NewRateLimited(src.ID, s.limiter.ResetAt(src.ID))
	}

	now := s.clk.Now()
	job := domain.NewFetchJob(src.ID, s.maxRetries, now)
	job.Status = domain.JobRunning
	job.StartedAt = now
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, nil, err
	}
	s.publish(domain.Event{Kind: domain.EventFetchStarted, SourceID: src.ID, JobID: job.ID, At: now})

	result, err := s.fetchWithRetry(ctx, src, job)
	if err != nil {
		return nil, job, s.failJob(ctx, src, job, err)
	}

	articles, duplicates := s.storeArticles(ctx, result.Articles)
	job.Fetched = len(result.Articles)
	job.New = len(articles) - duplicates
	job.Duplicates = duplicates
	job.Status = domain.JobCompleted
	job.CompletedAt = s.clk.Now()
	if err := s.store.SaveJob(ctx, job); err != nil {
		slog.Error("failed to persist completed job", "job_id", job.ID, "error", err)
	}

	src.LastFetchAt = job.CompletedAt
	src.ConsecutiveErrors = 0
	if err := s.store.SaveSource(ctx, src); err != nil {
		slog.Error("failed to persist source state", "source_id", src.ID, "error", err)
	}

	s.publish(domain.Event{
		Kind:     domain.EventFetchCompleted,
		SourceID: src.ID,
		JobID:    job.ID,
		Count:    job.New,
		At:       job.CompletedAt,
	})
	slog.Info("fetch completed",
		"source_id", src.ID, "fetched", job.Fetched,
		"new", job.New, "duplicates", job.Duplicates)
	return articles, job, nil
}

// fetchWithRetry retries transient failures with exponential backoff.
// Rate-limit responses from the provider abort immediately.
func (s *Scheduler) fetchWithRetry(ctx context.Context, src *domain.Source, job *domain.FetchJob) (*adapter.FetchResult, error) {
	opts := adapter.FetchOptions{MaxArticles: s.maxArticles}
	if !src.LastFetchAt.IsZero() {
		opts.Since = src.LastFetchAt
	}

	var lastErr error
	for attempt := 0; attempt <= job.MaxRetries; attempt++ {
		if attempt > 0 {
			job.RetryCount = attempt
			backoff := time.Duration(1<<(attempt-1)) * time.Minute
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.clk.After(backoff):
			}
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		result, err := s.adapter.FetchArticles(fetchCtx, src, opts)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if apperr.IsRateLimited(err) || !apperr.IsTransient(err) {
			return nil, err
		}
		slog.Warn("transient fetch failure, will retry",
			"source_id", src.ID, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// storeArticles persists fetched articles. A url already stored from an
// earlier fetch is persisted flagged as a duplicate of the original, with
// an exact-url similarity record, so the refetch stays auditable.
func (s *Scheduler) storeArticles(ctx context.Context, fetched []*domain.Article) ([]*domain.Article, int) {
	var stored []*domain.Article
	duplicates := 0
	for _, a := range fetched {
		existing, err := s.store.ArticleByURLHash(ctx, a.URLHash)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("url hash lookup failed", "article_url", a.URL, "error", err)
			continue
		}
		if existing != nil {
			a.MarkDuplicate(existing.ID)
		}

		if err := s.store.CreateArticle(ctx, a); err != nil {
			slog.Error("failed to store article", "article_url", a.URL, "error", err)
			continue
		}
		if existing != nil {
			record := domain.SimilarityRecord{
				ArticleID:   a.ID,
				DuplicateOf: existing.ID,
				Score:       1.0,
				Method:      domain.SimilarityExactURL,
				CreatedAt:   s.clk.Now(),
			}
			if err := s.store.AppendSimilarity(ctx, record); err != nil {
				slog.Error("failed to record similarity", "article_id", a.ID, "error", err)
			}
			duplicates++
		}
		stored = append(stored, a)
	}
	return stored, duplicates
}

func (s *Scheduler) failJob(ctx context.Context, src *domain.Source, job *domain.FetchJob, cause error) error {
	now := s.clk.Now()
	job.Status = domain.JobFailed
	job.Error = cause.Error()
	job.CompletedAt = now
	if err := s.store.SaveJob(ctx, job); err != nil {
		slog.Error("failed to persist failed job", "job_id", job.ID, "error", err)
	}

	// Rate limiting skips the source without touching its error streak.
	if !apperr.IsRateLimited(cause) {
		src.ConsecutiveErrors++
		src.LastFetchAt = now
		if err := s.store.SaveSource(ctx, src); err != nil {
			slog.Error("failed to persist source state", "source_id", src.ID, "error", err)
		}
	}

	s.publish(domain.Event{
		Kind:     domain.EventFetchFailed,
		SourceID: src.ID,
		JobID:    job.ID,
		Err:      cause.Error(),
		At:       now,
	})
	slog.Error("fetch failed", "source_id", src.ID,
		"consecutive_errors", src.ConsecutiveErrors, "error", cause)
	return cause
}

func (s *Scheduler) acquire(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[sourceID]; busy {
		return false
	}
	s.inflight[sourceID] = struct{}{}
	return true
}

func (s *Scheduler) release(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, sourceID)
}

func (s *Scheduler) publish(e domain.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
