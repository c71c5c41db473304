package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceType distinguishes how a provider is consumed.
type SourceType string

const (
	SourceTypeAPI    SourceType = "api"
	SourceTypeFeed   SourceType = "feed"
	SourceTypeCustom SourceType = "custom"
)

const (
	// SourceMaxConsecutiveErrors is the failure streak after which a source
	// is skipped by eligibility checks until a success resets the counter.
	SourceMaxConsecutiveErrors = 5

	// SourceMinFetchInterval is the floor between two fetches of the same
	// source regardless of its hourly rate limit.
	SourceMinFetchInterval = 5 * time.Minute
)

// Source is a news provider the scheduler fetches from. Sources are
// deactivated logically, never hard-deleted by the pipeline.
type Source struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Type              SourceType `json:"type"`
	Priority          int        `json:"priority"` // 1 = highest .. 10
	RateLimitPerHour  int        `json:"rateLimitPerHour"`
	LastFetchAt       time.Time  `json:"lastFetchAt"`
	ConsecutiveErrors int        `json:"consecutiveErrors"`
	IsActive          bool       `json:"isActive"`
}

// MinFetchInterval is the smallest allowed gap between fetches: the
// rate-limit spacing, floored at SourceMinFetchInterval.
func (s Source) MinFetchInterval() time.Duration {
	interval := SourceMinFetchInterval
	if s.RateLimitPerHour > 0 {
		spacing := time.Hour / time.Duration(s.RateLimitPerHour)
		if spacing > interval {
			interval = spacing
		}
	}
	return interval
}

// RateLimited reports whether the source type is subject to the locally
// tracked rate-limit window.
func (s Source) RateLimited() bool {
	return s.Type == SourceTypeAPI || s.Type == SourceTypeFeed
}

// JobStatus is the lifecycle state of a fetch job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// FetchJob records one scheduled or manual fetch execution for a source.
type FetchJob struct {
	ID          uuid.UUID `json:"id"`
	SourceID    string    `json:"sourceId"`
	Status      JobStatus `json:"status"`
	Fetched     int       `json:"fetched"`
	New         int       `json:"new"`
	Duplicates  int       `json:"duplicates"`
	Processed   int       `json:"processed"`
	RetryCount  int       `json:"retryCount"`
	MaxRetries  int       `json:"maxRetries"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// NewFetchJob creates a pending job for a source.
func NewFetchJob(sourceID string, maxRetries int, now time.Time) *FetchJob {
	return &FetchJob{
		ID:         uuid.New(),
		SourceID:   sourceID,
		Status:     JobPending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
	}
}

// SimilarityMethod names the dedup check that produced a similarity record.
type SimilarityMethod string

const (
	SimilarityExactURL     SimilarityMethod = "exact_url"
	SimilarityExactTitle   SimilarityMethod = "exact_title"
	SimilarityFuzzyContent SimilarityMethod = "fuzzy_content"
	SimilarityCosine       SimilarityMethod = "cosine"
)

// SimilarityRecord is an append-only audit entry linking a duplicate article
// to the article it duplicates.
type SimilarityRecord struct {
	ArticleID   uuid.UUID        `json:"articleId"`
	DuplicateOf uuid.UUID        `json:"duplicateOf"`
	Score       float64          `json:"score"`
	Method      SimilarityMethod `json:"method"`
	CreatedAt   time.Time        `json:"createdAt"`
}
