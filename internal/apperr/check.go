package apperr

import "errors"

// IsTransient reports whether err is retryable with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRateLimited reports whether err signals an exhausted rate window.
func IsRateLimited(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// IsValidation reports whether err marks malformed input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsClassifierUnavailable reports whether err came from the classifier
// capability being down.
func IsClassifierUnavailable(err error) bool {
	var ce *ClassifierUnavailableError
	return errors.As(err, &ce)
}

// IsPersistence reports whether err is a storage failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
