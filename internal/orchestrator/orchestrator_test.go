package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvujovic/news-pipeline/internal/adapter"
	"github.com/dvujovic/news-pipeline/internal/classify"
	"github.com/dvujovic/news-pipeline/internal/dedup"
	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/priority"
	"github.com/dvujovic/news-pipeline/internal/scheduler"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/internal/store/memory"
	"github.com/dvujovic/news-pipeline/pkg/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	mu      sync.Mutex
	indexed int
	deleted []uuid.UUID
}

func (r *recordingMirror) IndexArticles(ctx context.Context, articles []*domain.Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed += len(articles)
	return nil
}

func (r *recordingMirror) DeleteFromIndex(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ids...)
	return nil
}

type pipeline struct {
	orch   *Orchestrator
	store  *memory.Memory
	static *adapter.StaticAdapter
	bus    *domain.Bus
	clk    *clock.Fake
	mirror *recordingMirror
}

func newPipeline(t *testing.T, opts ...Option) *pipeline {
	t.Helper()
	m := memory.New()
	static := adapter.NewStaticAdapter()
	bus := domain.NewBus()
	t.Cleanup(bus.Close)
	clk := clock.NewFake(time.Now())
	mirror := &recordingMirror{}

	sched := scheduler.New(m, static, scheduler.WithBus(bus), scheduler.WithClock(clk))
	dd := dedup.NewEngine(m, dedup.WithBus(bus), dedup.WithClock(clk))
	cl := classify.NewEngine(m, classify.NewKeywordClassifier(), classify.WithBus(bus), classify.WithClock(clk))
	pr := priority.NewEngine(m, priority.WithBus(bus), priority.WithClock(clk))

	opts = append([]Option{WithBus(bus), WithClock(clk), WithMirror(mirror)}, opts...)
	return &pipeline{
		orch:   New(m, sched, dd, cl, pr, opts...),
		store:  m,
		static: static,
		bus:    bus,
		clk:    clk,
		mirror: mirror,
	}
}

func TestFetchNewsChainsProcessing(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	src := &domain.Source{ID: "s1", Name: "Wire", Type: domain.SourceTypeAPI, Priority: 1, IsActive: true}
	require.NoError(t, p.store.SaveSource(ctx, src))

	now := p.clk.Now()
	original := domain.NewArticle("Stock market rally lifts earnings", "", "revenue beat forecasts", "https://example.com/1", "s1", now)
	rewrite := domain.NewArticle("Stock market rally lifts earnings", "", "wire rewrite", "https://example.com/2", "s1", now)
	p.static.SetPayload("s1", []*domain.Article{original, rewrite})

	stats, err := p.orch.FetchNews(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 2, stats.New)

	all, err := p.store.ListArticles(ctx, store.ArticleFilter{IncludeDuplicates: true})
	require.NoError(t, err)
	require.Len(t, all, 2)

	var dup, kept *domain.Article
	for _, a := range all {
		if a.IsDuplicate {
			dup = a
		} else {
			kept = a
		}
	}
	require.NotNil(t, dup, "identical titles should flag one duplicate")
	require.NotNil(t, kept)
	assert.True(t, kept.IsProcessed)
	assert.True(t, dup.IsProcessed, "duplicates still get a tier and the processed flag")
	assert.Equal(t, "business", kept.Category)

	// Only the surviving article reaches the mirror.
	assert.Equal(t, 1, p.mirror.indexed)
}

func TestOneJobPerType(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	t.Run("fetch", func(t *testing.T) {
		require.True(t, p.orch.acquire(jobFetch))
		defer p.orch.release(jobFetch)
		_, err := p.orch.FetchNews(ctx)
		assert.ErrorIs(t, err, ErrJobInFlight)
	})

	t.Run("processing", func(t *testing.T) {
		require.True(t, p.orch.acquire(jobProcessing))
		defer p.orch.release(jobProcessing)
		a := domain.NewArticle("T", "", "", "https://example.com/x", "s1", p.clk.Now())
		_, err := p.orch.ProcessArticles(ctx, []*domain.Article{a})
		assert.ErrorIs(t, err, ErrJobInFlight)
	})

	t.Run("maintenance", func(t *testing.T) {
		require.True(t, p.orch.acquire(jobMaintenance))
		defer p.orch.release(jobMaintenance)
		_, err := p.orch.RunMaintenance(ctx)
		assert.ErrorIs(t, err, ErrJobInFlight)
	})
}

func TestProcessUnprocessed(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	a := domain.NewArticle("Stock market update", "", "earnings season", "https://example.com/1", "s1", p.clk.Now())
	require.NoError(t, p.store.CreateArticle(ctx, a))

	stats, err := p.orch.ProcessUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 1, stats.Prioritized)

	got, err := p.store.Article(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsProcessed)

	t.Run("nothing left to process", func(t *testing.T) {
		stats, err := p.orch.ProcessUnprocessed(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Checked)
	})
}

func TestRunMaintenance(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	now := p.clk.Now()

	expired := domain.NewArticle("Expired", "", "", "https://example.com/old", "s1", now.Add(-31*24*time.Hour))
	staleBreaking := domain.NewArticle("Stale emergency", "", "", "https://example.com/stale", "s1", now.Add(-30*time.Hour))
	staleBreaking.Priority = domain.PriorityBreaking
	fresh := domain.NewArticle("Fresh", "", "", "https://example.com/fresh", "s1", now)
	fresh.ViewCount = 12
	for _, a := range []*domain.Article{expired, staleBreaking, fresh} {
		require.NoError(t, p.store.CreateArticle(ctx, a))
	}

	stats, err := p.orch.RunMaintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 1, stats.Demoted)
	assert.Equal(t, 1, stats.Compacts)

	_, err = p.store.Article(ctx, expired.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []uuid.UUID{expired.ID}, p.mirror.deleted)

	demoted, err := p.store.Article(ctx, staleBreaking.ID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.PriorityBreaking, demoted.Priority)

	reset, err := p.store.Article(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Zero(t, reset.ViewCount)
}

func TestMaintenanceDue(t *testing.T) {
	start := time.Date(2025, 6, 10, 3, 30, 0, 0, time.UTC)
	ctx := context.Background()

	m := memory.New()
	clk := clock.NewFake(start)
	sched := scheduler.New(m, adapter.NewStaticAdapter(), scheduler.WithClock(clk))
	o := New(m, sched,
		dedup.NewEngine(m, dedup.WithClock(clk)),
		classify.NewEngine(m, classify.NewKeywordClassifier()),
		priority.NewEngine(m, priority.WithClock(clk)),
		WithClock(clk))

	assert.True(t, o.maintenanceDue(), "first run in the maintenance hour")

	_, err := o.RunMaintenance(ctx)
	require.NoError(t, err)
	assert.False(t, o.maintenanceDue(), "already ran today")

	clk.Advance(12 * time.Hour)
	assert.False(t, o.maintenanceDue(), "wrong hour")

	clk.Advance(12 * time.Hour)
	assert.True(t, o.maintenanceDue(), "next day's slot")
}

type badPingStore struct {
	*memory.Memory
}

func (badPingStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy baseline", func(t *testing.T) {
		p := newPipeline(t)
		report := p.orch.Health(ctx)
		assert.Equal(t, StatusHealthy, report.Status)
	})

	t.Run("store failure is unhealthy", func(t *testing.T) {
		m := badPingStore{memory.New()}
		o := New(m, scheduler.New(m, adapter.NewStaticAdapter()),
			dedup.NewEngine(m),
			classify.NewEngine(m, classify.NewKeywordClassifier()),
			priority.NewEngine(m))

		report := o.Health(ctx)
		assert.Equal(t, StatusUnhealthy, report.Status)
		assert.Equal(t, "connection refused", report.Details["store"])
	})

	t.Run("some failed jobs degrade", func(t *testing.T) {
		p := newPipeline(t)
		ok := domain.NewFetchJob("s1", 3, p.clk.Now())
		ok.Status = domain.JobCompleted
		bad := domain.NewFetchJob("s1", 3, p.clk.Now())
		bad.Status = domain.JobFailed
		require.NoError(t, p.store.SaveJob(ctx, ok))
		require.NoError(t, p.store.SaveJob(ctx, bad))

		report := p.orch.Health(ctx)
		assert.Equal(t, StatusDegraded, report.Status)
	})

	t.Run("majority failed jobs are unhealthy", func(t *testing.T) {
		p := newPipeline(t)
		for i := 0; i < 3; i++ {
			j := domain.NewFetchJob("s1", 3, p.clk.Now())
			j.Status = domain.JobFailed
			require.NoError(t, p.store.SaveJob(ctx, j))
		}
		j := domain.NewFetchJob("s1", 3, p.clk.Now())
		j.Status = domain.JobCompleted
		require.NoError(t, p.store.SaveJob(ctx, j))

		report := p.orch.Health(ctx)
		assert.Equal(t, StatusUnhealthy, report.Status)
	})

	t.Run("overdue fetch cycle degrades", func(t *testing.T) {
		p := newPipeline(t)
		p.orch.mu.Lock()
		p.orch.lastFetchCycle = p.clk.Now()
		p.orch.mu.Unlock()

		p.clk.Advance(3 * p.orch.fetchInterval)
		report := p.orch.Health(ctx)
		assert.Equal(t, StatusDegraded, report.Status)
	})
}

func TestMetricsFolding(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	src := &domain.Source{ID: "s1", Name: "Wire", Type: domain.SourceTypeAPI, Priority: 1, IsActive: true}
	require.NoError(t, p.store.SaveSource(ctx, src))
	p.static.SetPayload("s1", []*domain.Article{
		domain.NewArticle("Stock market rally lifts earnings", "", "revenue beat forecasts", "https://example.com/1", "s1", p.clk.Now()),
	})

	p.orch.metricsWG.Add(1)
	go p.orch.foldEvents()

	_, err := p.orch.FetchNews(ctx)
	require.NoError(t, err)
	_, err = p.orch.RunMaintenance(ctx)
	require.NoError(t, err)

	p.bus.Close()
	p.orch.Wait()

	got := p.orch.Metrics()
	assert.EqualValues(t, 1, got.FetchesStarted)
	assert.EqualValues(t, 1, got.FetchesCompleted)
	assert.EqualValues(t, 1, got.ArticlesStored)
	assert.EqualValues(t, 1, got.Classified)
	assert.EqualValues(t, 1, got.MaintenanceRuns)
	assert.EqualValues(t, 1, got.Breaking+got.Trending+got.Regular)
	assert.False(t, got.LastEventAt.IsZero())
}
