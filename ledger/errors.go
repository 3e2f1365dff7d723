/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with the helpers at the bottom instead of string
  matching.

ERROR CATEGORIES:
  1. Validation errors - rejected before any write, surfaced to the user
  2. Transactional failures - rolled back and re-thrown to the caller
  3. Not-found errors - missing tenant or settings row

Illegal-state recording attempts are NOT errors: the engine returns a
no-op Result carrying a "start the day" prompt, because a conversational
caller should get a nudge, not a stack trace.

SEE ALSO:
  - engine.go: produces these errors
  - api: maps IsValidation to HTTP 400
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an amount does not parse as a
	// positive decimal. No row is written.
	ErrInvalidAmount = errors.New("amount must be a positive number")

	// ErrInvalidRate is returned for a malformed or negative rate string.
	ErrInvalidRate = errors.New("rate must be a non-negative number")

	// ErrUnknownCurrency is returned when a forex setter names a currency
	// slot that does not exist.
	ErrUnknownCurrency = errors.New("unknown currency code")

	// ErrInvalidDisplayMode is returned for a display mode outside {1,4,5}.
	ErrInvalidDisplayMode = errors.New("display mode must be 1, 4 or 5")

	// ErrTenantNotFound is returned when a referenced tenant doesn't exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrSettingsNotFound is returned when a settings row is missing.
	// Ensure semantics normally prevent this.
	ErrSettingsNotFound = errors.New("settings not found")

	// ErrTransactionFailed is returned when a write cannot be persisted
	// after rollback.
	ErrTransactionFailed = errors.New("transaction failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AmountError reports the rejected input alongside the sentinel.
type AmountError struct {
	Input string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("invalid amount %q: must be a positive number", e.Input)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// RateError reports a rejected rate mutation.
type RateError struct {
	Input string
	Rate  decimal.Decimal
}

func (e *RateError) Error() string {
	return fmt.Sprintf("invalid rate %q: must be a non-negative number", e.Input)
}

func (e *RateError) Unwrap() error { return ErrInvalidRate }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid user input.
// These are safe to surface verbatim and never indicate data corruption.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidRate) ||
		errors.Is(err, ErrUnknownCurrency) ||
		errors.Is(err, ErrInvalidDisplayMode)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrSettingsNotFound)
}
