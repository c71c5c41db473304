package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates pipeline notifications.
type EventKind int

const (
	EventFetchStarted EventKind = iota
	EventFetchCompleted
	EventFetchFailed
	EventDuplicateFlagged
	EventArticleClassified
	EventPriorityAssigned
	EventMaintenanceCompleted
)

func (k EventKind) String() string {
	switch k {
	case EventFetchStarted:
		return "fetch_started"
	case EventFetchCompleted:
		return "fetch_completed"
	case EventFetchFailed:
		return "fetch_failed"
	case EventDuplicateFlagged:
		return "duplicate_flagged"
	case EventArticleClassified:
		return "article_classified"
	case EventPriorityAssigned:
		return "priority_assigned"
	case EventMaintenanceCompleted:
		return "maintenance_completed"
	default:
		return "unknown"
	}
}

// Event is the payload published on the pipeline bus.
type Event struct {
	Kind      EventKind `json:"kind"`
	SourceID  string    `json:"sourceId,omitempty"`
	ArticleID uuid.UUID `json:"articleId,omitempty"`
	JobID     uuid.UUID `json:"jobId,omitempty"`
	Priority  Priority  `json:"priority,omitempty"`
	Count     int       `json:"count,omitempty"`
	Err       string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Bus is a typed event channel components publish to and the orchestrator
// subscribes from. Publish never blocks: when the buffer is full the event
// is dropped, since events are advisory rather than transactional.
type Bus struct {
	ch        chan Event
	closeOnce sync.Once
}

const defaultBusBuffer = 256

func NewBus() *Bus {
	return &Bus{ch: make(chan Event, defaultBusBuffer)}
}

func (b *Bus) Publish(e Event) {
	select {
	case b.ch <- e:
	default:
	}
}

// Events returns the receive side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close releases the channel. Publish after Close panics; callers stop
// publishers first during shutdown.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.ch) })
}
