package orchestrator

import (
	"context"
	"fmt"

	"github.com/dvujovic/news-pipeline/internal/domain"
)

// Health statuses, ordered by severity.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthReport summarizes pipeline state per subsystem.
type HealthReport struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details"`
}

// Health checks the store, recent job outcomes and fetch-loop liveness.
// Store failure or a majority of failing jobs is unhealthy; an overdue
// fetch cycle degrades.
func (o *Orchestrator) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:  StatusHealthy,
		Details: map[string]string{"store": "ok", "jobs": "ok", "fetch_loop": "ok"},
	}
	worsen := func(status string) {
		if status == StatusUnhealthy || report.Status == StatusHealthy {
			report.Status = status
		}
	}

	if err := o.store.Ping(ctx); err != nil {
		report.Details["store"] = err.Error()
		worsen(StatusUnhealthy)
	}

	jobs, err := o.store.RecentJobs(ctx, healthJobSample)
	if err != nil {
		report.Details["jobs"] = err.Error()
		worsen(StatusDegraded)
	} else if len(jobs) > 0 {
		failed := 0
		for _, j := range jobs {
			if j.Status == domain.JobFailed {
				failed++
			}
		}
		ratio := float64(failed) / float64(len(jobs))
		switch {
		case ratio > 0.5:
			report.Details["jobs"] = fmt.Sprintf("%d of %d recent jobs failed", failed, len(jobs))
			worsen(StatusUnhealthy)
		case failed > 0:
			report.Details["jobs"] = fmt.Sprintf("%d of %d recent jobs failed", failed, len(jobs))
			worsen(StatusDegraded)
		}
	}

	o.mu.Lock()
	last := o.lastFetchCycle
	o.mu.Unlock()
	if !last.IsZero() {
		overdue := o.clk.Now().Sub(last)
		if overdue > 2*o.fetchInterval {
			report.Details["fetch_loop"] = fmt.Sprintf("last cycle %s ago", overdue.Round(0))
			worsen(StatusDegraded)
		}
	}

	return report
}
