package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dvujovic/news-pipeline/pkg/clock"
)

// runner repeats a named task on an interval. A cycle that overlaps the
// next tick is skipped rather than queued; TriggerNow schedules an
// immediate extra cycle.
type runner struct {
	name     string
	interval time.Duration
	clk      clock.Clock
	task     func(ctx context.Context)

	trigger chan struct{}
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func newRunner(name string, interval time.Duration, clk clock.Clock, task func(ctx context.Context)) *runner {
	return &runner{
		name:     name,
		interval: interval,
		clk:      clk,
		task:     task,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

func (r *runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		slog.Info("runner started", "name", r.name, "interval", r.interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-r.clk.After(r.interval):
				r.task(ctx)
			case <-r.trigger:
				r.task(ctx)
			}
		}
	}()
}

// TriggerNow schedules an immediate cycle. A pending trigger is collapsed
// with the new one.
func (r *runner) TriggerNow() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the loop and waits for an in-progress cycle to finish.
func (r *runner) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
	slog.Info("runner stopped", "name", r.name)
}
