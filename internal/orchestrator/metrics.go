package orchestrator

import (
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
)

// Metrics are counters folded from the event bus since startup.
type Metrics struct {
	FetchesStarted   int64     `json:"fetchesStarted"`
	FetchesCompleted int64     `json:"fetchesCompleted"`
	FetchesFailed    int64     `json:"fetchesFailed"`
	ArticlesStored   int64     `json:"articlesStored"`
	Duplicates       int64     `json:"duplicates"`
	Classified       int64     `json:"classified"`
	Breaking         int64     `json:"breaking"`
	Trending         int64     `json:"trending"`
	Regular          int64     `json:"regular"`
	MaintenanceRuns  int64     `json:"maintenanceRuns"`
	LastEventAt      time.Time `json:"lastEventAt,omitzero"`
}

// Metrics returns a snapshot of the folded counters.
func (o *Orchestrator) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metrics
}

// foldEvents consumes the bus until it is closed, updating counters.
func (o *Orchestrator) foldEvents() {
	defer o.metricsWG.Done()
	for e := range o.bus.Events() {
		o.mu.Lock()
		o.metrics.LastEventAt = e.At
		switch e.Kind {
		case domain.EventFetchStarted:
			o.metrics.FetchesStarted++
		case domain.EventFetchCompleted:
			o.metrics.FetchesCompleted++
			o.metrics.ArticlesStored += int64(e.Count)
		case domain.EventFetchFailed:
			o.metrics.FetchesFailed++
		case domain.EventDuplicateFlagged:
			o.metrics.Duplicates++
		case domain.EventArticleClassified:
			o.metrics.Classified++
		case domain.EventPriorityAssigned:
			switch e.Priority {
			case domain.PriorityBreaking:
				o.metrics.Breaking++
			case domain.PriorityTrending:
				o.metrics.Trending++
			default:
				o.metrics.Regular++
			}
		case domain.EventMaintenanceCompleted:
			o.metrics.MaintenanceRuns++
		}
		o.mu.Unlock()
	}
}
