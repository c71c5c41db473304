// Package orchestrator coordinates the pipeline: scheduled fetch cycles
// chain into processing (dedup, classify, prioritize), daily maintenance
// prunes and compacts, and health/metrics expose pipeline state. At most
// one job of each type runs at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dvujovic/news-pipeline/internal/classify"
	"github.com/dvujovic/news-pipeline/internal/dedup"
	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/priority"
	"github.com/dvujovic/news-pipeline/internal/scheduler"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/pkg/clock"
)

type jobType string

const (
	jobFetch       jobType = "fetch"
	jobProcessing  jobType = "processing"
	jobMaintenance jobType = "maintenance"
)

// ErrJobInFlight is returned when a job of the same type is already running.
var ErrJobInFlight = errors.New("job of this type already running")

const (
	defaultFetchInterval   = 15 * time.Minute
	defaultRetentionDays   = 30
	defaultMaintenanceHour = 3

	// maintenanceCheckInterval is how often the maintenance runner wakes to
	// check whether the daily slot has arrived.
	maintenanceCheckInterval = time.Hour

	healthJobSample = 20
)

type Option func(*Orchestrator)

type Orchestrator struct {
	store    store.Store
	sched    *scheduler.Scheduler
	dedup    *dedup.Engine
	classify *classify.Engine
	priority *priority.Engine
	mirror   store.IndexMirror
	bus      *domain.Bus
	clk      clock.Clock

	fetchInterval   time.Duration
	retention       time.Duration
	maintenanceHour int

	fetchRunner *runner
	maintRunner *runner
	metricsWG   sync.WaitGroup

	mu              sync.Mutex
	inflight        map[jobType]bool
	lastFetchCycle  time.Time
	lastMaintenance time.Time
	metrics         Metrics
}

func New(st store.Store, sched *scheduler.Scheduler, dd *dedup.Engine, cl *classify.Engine, pr *priority.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:           st,
		sched:           sched,
		dedup:           dd,
		classify:        cl,
		priority:        pr,
		clk:             clock.Real{},
		fetchInterval:   defaultFetchInterval,
		retention:       defaultRetentionDays * 24 * time.Hour,
		maintenanceHour: defaultMaintenanceHour,
		inflight:        make(map[jobType]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithBus(bus *domain.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) { o.clk = clk }
}

func WithMirror(m store.IndexMirror) Option {
	return func(o *Orchestrator) { o.mirror = m }
}

func WithFetchInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchInterval = d
		}
	}
}

func WithRetentionDays(days int) Option {
	return func(o *Orchestrator) {
		if days > 0 {
			o.retention = time.Duration(days) * 24 * time.Hour
		}
	}
}

func WithMaintenanceHour(hour int) Option {
	return func(o *Orchestrator) {
		if hour >= 0 && hour <= 23 {
			o.maintenanceHour = hour
		}
	}
}

// Start launches the fetch and maintenance loops and the metrics folder.
func (o *Orchestrator) Start(ctx context.Context) {
	if o.bus != nil {
		o.metricsWG.Add(1)
		go o.foldEvents()
	}

	o.fetchRunner = newRunner("fetch", o.fetchInterval, o.clk, func(ctx context.Context) {
		// When the store is down the pipeline pauses instead of piling up
		// fetch cycles that cannot persist anything.
		if err := o.store.Ping(ctx); err != nil {
			slog.Error("store unavailable, skipping fetch cycle", "error", err)
			return
		}
		if _, err := o.FetchNews(ctx); err != nil && !errors.Is(err, ErrJobInFlight) {
			slog.Error("scheduled fetch cycle failed", "error", err)
		}
	})
	o.maintRunner = newRunner("maintenance", maintenanceCheckInterval, o.clk, func(ctx context.Context) {
		if !o.maintenanceDue() {
			return
		}
		if _, err := o.RunMaintenance(ctx); err != nil && !errors.Is(err, ErrJobInFlight) {
			slog.Error("maintenance failed", "error", err)
		}
	})

	o.fetchRunner.Start(ctx)
	o.maintRunner.Start(ctx)
}

// Stop halts the loops. The event bus must be closed by the caller after
// all publishers have stopped.
func (o *Orchestrator) Stop() {
	if o.fetchRunner != nil {
		o.fetchRunner.Stop()
	}
	if o.maintRunner != nil {
		o.maintRunner.Stop()
	}
}

// Wait blocks until the metrics folder drains, after the bus is closed.
func (o *Orchestrator) Wait() {
	o.metricsWG.Wait()
}

// TriggerFetch schedules an immediate fetch cycle on the running loop.
func (o *Orchestrator) TriggerFetch() {
	if o.fetchRunner != nil {
		o.fetchRunner.TriggerNow()
	}
}

// FetchNews runs one fetch cycle and chains processing over the newly
// stored articles.
func (o *Orchestrator) FetchNews(ctx context.Context) (*scheduler.Stats, error) {
	if !o.acquire(jobFetch) {
		return nil, fmt.Errorf("%w: %s", ErrJobInFlight, jobFetch)
	}

	articles, stats, err := func() ([]*domain.Article, *scheduler.Stats, error) {
		defer o.release(jobFetch)
		articles, stats, err := o.sched.RunEligible(ctx)
		o.mu.Lock()
		o.lastFetchCycle = o.clk.Now()
		o.mu.Unlock()
		return articles, stats, err
	}()
	if err != nil {
		return stats, err
	}

	if len(articles) > 0 {
		if _, err := o.ProcessArticles(ctx, articles); err != nil && !errors.Is(err, ErrJobInFlight) {
			slog.Error("processing after fetch failed", "error", err)
		}
	}
	return stats, nil
}

// ProcessStats aggregates one processing pass.
type ProcessStats struct {
	Checked     int   `json:"checked"`
	Duplicates  int   `json:"duplicates"`
	Classified  int64 `json:"classified"`
	Prioritized int   `json:"prioritized"`
}

// ProcessArticles runs the fixed processing order over a batch:
// deduplication, classification, priority assignment, then the index
// mirror for surviving articles.
func (o *Orchestrator) ProcessArticles(ctx context.Context, articles []*domain.Article) (*ProcessStats, error) {
	if !o.acquire(jobProcessing) {
		return nil, fmt.Errorf("%w: %s", ErrJobInFlight, jobProcessing)
	}
	defer o.release(jobProcessing)

	stats := &ProcessStats{}
	dedupRes, err := o.dedup.Process(ctx, articles)
	if err != nil {
		return stats, fmt.Errorf("dedup: %w", err)
	}
	stats.Checked = dedupRes.Checked
	stats.Duplicates = dedupRes.Duplicates

	var survivors []*domain.Article
	for _, a := range articles {
		if !a.IsDuplicate {
			survivors = append(survivors, a)
		}
	}

	classifyRes, err := o.classify.Process(ctx, survivors)
	if err != nil {
		return stats, fmt.Errorf("classify: %w", err)
	}
	stats.Classified = classifyRes.Classified

	// Duplicates are scored too so they carry a tier and the processed flag.
	assigned, err := o.priority.Assign(ctx, articles)
	if err != nil {
		return stats, fmt.Errorf("prioritize: %w", err)
	}
	stats.Prioritized = assigned

	if o.mirror != nil && len(survivors) > 0 {
		if err := o.mirror.IndexArticles(ctx, survivors); err != nil {
			slog.Error("index mirror update failed", "error", err)
		}
	}
	return stats, nil
}

// ProcessUnprocessed picks up articles that never completed processing,
// the manual reprocessing entry point.
func (o *Orchestrator) ProcessUnprocessed(ctx context.Context) (*ProcessStats, error) {
	articles, err := o.store.ListArticles(ctx, store.ArticleFilter{
		OnlyUnprocessed:   true,
		IncludeDuplicates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	if len(articles) == 0 {
		return &ProcessStats{}, nil
	}
	return o.ProcessArticles(ctx, articles)
}

// MaintenanceStats aggregates one maintenance pass.
type MaintenanceStats struct {
	Deleted  int `json:"deleted"`
	Demoted  int `json:"demoted"`
	Compacts int `json:"compacts"`
}

// RunMaintenance prunes articles past retention, keeps the mirror in sync,
// demotes stale breaking articles, resets engagement counters and compacts
// the text index when the backend supports it.
func (o *Orchestrator) RunMaintenance(ctx context.Context) (*MaintenanceStats, error) {
	if !o.acquire(jobMaintenance) {
		return nil, fmt.Errorf("%w: %s", ErrJobInFlight, jobMaintenance)
	}
	defer o.release(jobMaintenance)

	now := o.clk.Now()
	stats := &MaintenanceStats{}

	deleted, err := o.store.DeleteArticlesBefore(ctx, now.Add(-o.retention))
	if err != nil {
		return stats, fmt.Errorf("retention delete: %w", err)
	}
	stats.Deleted = len(deleted)
	if o.mirror != nil && len(deleted) > 0 {
		if err := o.mirror.DeleteFromIndex(ctx, deleted); err != nil {
			slog.Error("mirror prune failed", "error", err)
		}
	}

	demoted, err := o.priority.DemoteStaleBreaking(ctx)
	if err != nil {
		return stats, fmt.Errorf("demote stale breaking: %w", err)
	}
	stats.Demoted = demoted

	if err := o.store.ResetDailyCounters(ctx); err != nil {
		return stats, fmt.Errorf("reset counters: %w", err)
	}

	if compactor, ok := o.store.(store.Compactor); ok {
		if err := compactor.Compact(ctx); err != nil {
			slog.Error("compaction failed", "error", err)
		} else {
			stats.Compacts = 1
		}
	}

	o.mu.Lock()
	o.lastMaintenance = now
	o.mu.Unlock()

	if o.bus != nil {
		o.bus.Publish(domain.Event{
			Kind:  domain.EventMaintenanceCompleted,
			Count: stats.Deleted,
			At:    now,
		})
	}
	slog.Info("maintenance completed",
		"deleted", stats.Deleted, "demoted", stats.Demoted)
	return stats, nil
}

func (o *Orchestrator) maintenanceDue() bool {
	now := o.clk.Now()
	if now.Hour() != o.maintenanceHour {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastMaintenance.IsZero() || now.Sub(o.lastMaintenance) > 23*time.Hour
}

func (o *Orchestrator) acquire(t jobType) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[t] {
		return false
	}
	o.inflight[t] = true
	return true
}

func (o *Orchestrator) release(t jobType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, t)
}
