package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores
// and services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// Validation errors, surfaced to callers
var (
	ErrInvalidLabel   = errors.New("invalid difficulty label")
	ErrInvalidOutcome = errors.New("invalid feedback outcome")
	ErrInvalidRating  = errors.New("invalid difficulty rating")
	ErrInvalidInput   = errors.New("invalid input")
)

// Soft conditions, handled inside the core
var (
	// ErrDuplicateFeedback marks an idempotency key that was already applied.
	// Callers treat it as a successful no-op.
	ErrDuplicateFeedback = errors.New("feedback already applied")

	// ErrNoCohortAvailable is returned when no peers exist even at the widest band.
	ErrNoCohortAvailable = errors.New("no cohort available")
)

// Storage errors
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// IsValidationError reports whether err should be surfaced to the caller as
// a rejected request rather than an internal failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidLabel) ||
		errors.Is(err, ErrInvalidOutcome) ||
		errors.Is(err, ErrInvalidRating) ||
		errors.Is(err, ErrInvalidInput)
}
