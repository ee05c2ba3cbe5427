// Package errs defines the typed failures surfaced to interactive callers.
// Scheduled executions never propagate these; the scheduler records them
// into stats and moves on.
package errs

import (
	"fmt"
	"time"
)

// ValidationError reports malformed input rejected before any network action.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// RateLimitError reports a caller throttled before dispatch.
type RateLimitError struct {
	Identifier string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Identifier, e.RetryAfter)
}

// NotFoundError reports a missing endpoint or schedule.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// PersistenceError wraps a failed storage write. User-initiated writes
// surface it to the caller; background bookkeeping logs it and retries on
// the next mutation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
