// Package apperr defines the pipeline error taxonomy. The types drive
// propagation policy: one bad source, article or classification call never
// aborts sibling work, and each failure mode maps to a distinct recovery.
package apperr

import "time"

// TransientError covers network and timeout failures on a source fetch.
// Retryable with exponential backoff.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TransientError) Unwrap() error { return e.Err }

func NewTransient(msg string, err error) *TransientError {
	return &TransientError{Message: msg, Err: err}
}

// RateLimitError means a source exhausted its local rate-limit window. The
// scheduler skips the source until the window resets; it is not a failure
// that increments error counters.
type RateLimitError struct {
	SourceID string
	ResetAt  time.Time
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded for source " + e.SourceID
}

func NewRateLimited(sourceID string, resetAt time.Time) *RateLimitError {
	return &RateLimitError{SourceID: sourceID, ResetAt: resetAt}
}

// ValidationError marks a malformed article or request. Malformed articles
// are skipped and counted, never aborting the batch.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidation(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func NewValidationWrap(msg string, err error) *ValidationError {
	return &ValidationError{Message: msg, Err: err}
}

// ClassifierUnavailableError means the classification capability failed; the
// article keeps its prior category and the pipeline continues.
type ClassifierUnavailableError struct {
	Err error
}

func (e *ClassifierUnavailableError) Error() string {
	if e.Err != nil {
		return "classifier unavailable: " + e.Err.Error()
	}
	return "classifier unavailable"
}

func (e *ClassifierUnavailableError) Unwrap() error { return e.Err }

func NewClassifierUnavailable(err error) *ClassifierUnavailableError {
	return &ClassifierUnavailableError{Err: err}
}

// PersistenceError fails the current job only; the orchestrator marks the
// job failed, flips health, and continues with other job types.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return "persistence failure in " + e.Op + ": " + e.Err.Error()
	}
	return "persistence failure in " + e.Op
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}
