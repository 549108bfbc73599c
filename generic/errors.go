/*
errors.go - Shared error types for the generic engine

PURPOSE:
  Errors that are not specific to payroll live here. Domain packages define
  their own sentinels (see payroll/errors.go) and can register them with the
  classification helpers below so transport layers map them consistently.

ERROR CATEGORIES:
  1. Client errors - bad input or a request that conflicts with state
  2. Not-found errors - a referenced record doesn't exist
  3. Everything else - internal

SEE ALSO:
  - payroll/errors.go: Domain sentinels
  - api/handlers.go: Maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"sync"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a record with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrConcurrentModification is returned when a write loses a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

var (
	classMu      sync.RWMutex
	clientErrors = []error{ErrDuplicateIdempotencyKey, ErrInvalidPeriod}
	notFoundErrs = []error{ErrNotFound}
)

// RegisterClientError marks err (and anything wrapping it) as caused by client input.
// Call from domain package init() functions.
func RegisterClientError(errs ...error) {
	classMu.Lock()
	defer classMu.Unlock()
	clientErrors = append(clientErrors, errs...)
}

// RegisterNotFoundError marks err as a not-found condition.
func RegisterNotFoundError(errs ...error) {
	classMu.Lock()
	defer classMu.Unlock()
	notFoundErrs = append(notFoundErrs, errs...)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	classMu.RLock()
	defer classMu.RUnlock()
	return matchesAny(err, clientErrors)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	classMu.RLock()
	defer classMu.RUnlock()
	return matchesAny(err, notFoundErrs)
}

func matchesAny(err error, targets []error) bool {
	if err == nil {
		return false
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
