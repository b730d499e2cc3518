package model

import (
	"context"
	"errors"
)

// Error kinds surfaced by a claim decision run. Adapters wrap these together
// with the underlying cause so both can be matched with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrRetrieval        = errors.New("retrieval error")
	ErrNotFound         = errors.New("not found")
	ErrInference        = errors.New("inference error")
	ErrSchemaValidation = errors.New("schema validation error")
	ErrTimeout          = errors.New("timeout")
)

// Kind returns the sentinel matching err, or nil when err is of no known kind
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrSchemaValidation, ErrTimeout, ErrRetrieval, ErrInference} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsRetryable reports whether the caller may reasonably submit the same claim again.
// Malformed input and missing declarations will fail the same way every time.
// A run that hit its deadline is retryable even when the interrupted call
// reported a cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrSchemaValidation) ||
		errors.Is(err, ErrInference) ||
		errors.Is(err, ErrRetrieval)
}
