/*
errors.go - Centralized error taxonomy for the stay engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every guard failure in the booking engine returns one of the structured
  errors below; each carries a stable machine-readable code and unwraps to
  one of six kind sentinels.

ERROR KINDS:
  ErrValidation - Malformed or missing input
  ErrNotFound   - Unit/booking/guest absent or owned by another tenant
  ErrConflict   - Interval overlap, unit occupied, duplicate check-in
  ErrPolicy     - Deposit not met
  ErrState      - Transition not allowed from the current status
  ErrIntegrity  - Delete/cancel blocked by a confirmed payment

USAGE:
  if errors.Is(err, core.ErrConflict) { ... }

  var dep *core.DepositRequiredError
  if errors.As(err, &dep) {
      fmt.Println(dep.Shortfall)
  }

  code := core.ErrorCode(err) // "deposit_required"

SEE ALSO:
  - booking/service.go: Raises these inside transactions
  - api/handlers.go: Maps kinds to HTTP statuses
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrPolicy     = errors.New("policy violation")
	ErrState      = errors.New("invalid state")
	ErrIntegrity  = errors.New("integrity violation")
)

// Stable error codes surfaced to callers.
const (
	CodeValidation       = "validation_failed"
	CodeNotFound         = "not_found"
	CodeUnitNotAvailable = "unit_not_available"
	CodeUnitOccupied     = "unit_occupied"
	CodeAlreadyCheckedIn = "already_checked_in"
	CodeDepositRequired  = "deposit_required"
	CodeInvalidState     = "invalid_state"
	CodeConfirmedPayment = "confirmed_payment_exists"
	CodeInternal         = "internal_error"
)

// Coded is implemented by every structured error in this package.
type Coded interface {
	error
	Code() string
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a malformed or missing input field.
type ValidationError struct {
	Field   string
	Message string
}

func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
func (e *ValidationError) Unwrap() error { return ErrValidation }
func (e *ValidationError) Code() string  { return CodeValidation }

// NotFoundError reports a missing row. Rows owned by another tenant are
// reported the same way.
type NotFoundError struct {
	Resource string
	ID       string
}

func NotFound(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Resource, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }
func (e *NotFoundError) Code() string  { return CodeNotFound }

// ConflictError reports an allocation conflict on a unit.
type ConflictError struct {
	Reason        string // one of CodeUnitNotAvailable, CodeUnitOccupied, CodeAlreadyCheckedIn
	UnitID        UnitID
	BookingID     BookingID // booking being written
	ConflictsWith BookingID // existing booking that blocks it, if any
}

func (e *ConflictError) Error() string {
	switch e.Reason {
	case CodeUnitOccupied:
		return fmt.Sprintf("unit %s is occupied by booking %s", e.UnitID, e.ConflictsWith)
	case CodeAlreadyCheckedIn:
		return fmt.Sprintf("booking %s is already checked in", e.BookingID)
	default:
		return fmt.Sprintf("unit %s is not available: overlaps booking %s", e.UnitID, e.ConflictsWith)
	}
}
func (e *ConflictError) Unwrap() error { return ErrConflict }
func (e *ConflictError) Code() string  { return e.Reason }

// DepositRequiredError reports that the confirmed payments don't cover the
// tenant's minimum deposit.
type DepositRequiredError struct {
	BookingID BookingID
	Required  Amount
	Paid      Amount
	Shortfall Amount
}

func (e *DepositRequiredError) Error() string {
	return fmt.Sprintf("deposit required for booking %s: required %s, paid %s, shortfall %s",
		e.BookingID, e.Required.Value.StringFixed(2), e.Paid.Value.StringFixed(2), e.Shortfall.Value.StringFixed(2))
}
func (e *DepositRequiredError) Unwrap() error { return ErrPolicy }
func (e *DepositRequiredError) Code() string  { return CodeDepositRequired }

// StateError reports a transition attempted from a status that doesn't allow
// it. Resource is "booking", "payment" or "charge".
type StateError struct {
	Resource string
	ID       string
	Status   string
	Action   string
}

// InvalidTransition builds the StateError for a booking.
func InvalidTransition(b Booking, action string) *StateError {
	return &StateError{Resource: "booking", ID: string(b.ID), Status: string(b.Status), Action: action}
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %s", e.Action, e.Resource, e.ID, e.Status)
}
func (e *StateError) Unwrap() error { return ErrState }
func (e *StateError) Code() string  { return CodeInvalidState }

// IntegrityError reports a destructive action blocked by financial records.
type IntegrityError struct {
	BookingID BookingID
	Reason    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("booking %s: %s", e.BookingID, e.Reason)
}
func (e *IntegrityError) Unwrap() error { return ErrIntegrity }
func (e *IntegrityError) Code() string  { return CodeConfirmedPayment }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// ErrorCode returns the stable code for err, or CodeInternal for anything
// that is not a domain error.
func ErrorCode(err error) string {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// IsClientError returns true if the error is a domain rejection rather than
// an infrastructure fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrPolicy) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrIntegrity)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
