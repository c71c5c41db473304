package scheduler

import (
	"sync"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/pkg/clock"
)

// rateWindow tracks fetches within the current hourly window.
type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter enforces per-source hourly fetch budgets in process. Custom
// sources bypass it; api and feed sources consume one slot per fetch.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	clk     clock.Clock
}

func NewRateLimiter(clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		clk:     clk,
	}
}

// Allow consumes a slot for the source if the window has capacity.
func (r *RateLimiter) Allow(src *domain.Source) bool {
	if !src.RateLimited() || src.RateLimitPerHour <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	w, ok := r.windows[src.ID]
	if !ok || now.Sub(w.start) >= time.Hour {
		w = &rateWindow{start: now}
		r.windows[src.ID] = w
	}

	if w.count >= src.RateLimitPerHour {
		return false
	}
	w.count++
	return true
}

// ResetAt reports when the source's current window rolls over.
func (r *RateLimiter) ResetAt(sourceID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.windows[sourceID]; ok {
		return w.start.Add(time.Hour)
	}
	return r.clk.Now()
}
