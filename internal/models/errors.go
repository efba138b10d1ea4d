package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services and handlers
var (
	// ErrTicketNotFound is returned when no ticket matches the lookup key
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrTripNotFound is returned when the upstream has no trip for the code
	ErrTripNotFound = errors.New("trip not found")

	// ErrInsufficientBalance is returned when the reservation provider
	// rejects a hold because the seller account balance is too low.
	// A foreseeable business condition, not an outage.
	ErrInsufficientBalance = errors.New("insufficient seller balance")

	// ErrStatusConflict is returned when a guarded status transition matched
	// zero rows - the ticket is not in the expected state (usually a
	// concurrent callback already moved it forward).
	ErrStatusConflict = errors.New("ticket is not in the expected status")
)

// ValidationError describes invalid passenger input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// UpstreamTransientError wraps a network/timeout/5xx failure from an
// external system. Callers may retry with bounded attempts.
type UpstreamTransientError struct {
	System string // "zarinpal", "ors"
	Err    error
}

func (e *UpstreamTransientError) Error() string {
	return fmt.Sprintf("%s temporarily unavailable: %v", e.System, e.Err)
}

func (e *UpstreamTransientError) Unwrap() error {
	return e.Err
}

// UpstreamRejectedError is a business-level decline from an external
// system. Terminal, carries a human-readable reason. Never retried.
type UpstreamRejectedError struct {
	System string
	Code   int
	Reason string
}

func (e *UpstreamRejectedError) Error() string {
	return fmt.Sprintf("%s rejected request (code %d): %s", e.System, e.Code, e.Reason)
}

// InconsistentStateError marks the critical case: payment verified but the
// upstream reservation could not be completed. The customer must still be
// shown a successful payment; the ticket is flagged for manual
// reconciliation and this error never reaches the user as a failure.
type InconsistentStateError struct {
	TicketID int64
	RefID    string
	Err      error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("payment collected but reservation failed for ticket %d (ref %s): %v", e.TicketID, e.RefID, e.Err)
}

func (e *InconsistentStateError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err (anywhere in its chain) is an upstream
// transient failure that is safe to retry.
func IsTransient(err error) bool {
	var te *UpstreamTransientError
	return errors.As(err, &te)
}
