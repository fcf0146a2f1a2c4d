/*
errors.go - Centralized error types for the billing engine

ERROR CATEGORIES:
  1. Validation errors - user input problems, never retried
  2. Not-found errors - referenced farmer/entry/payment missing
  3. Drift - reconciliation disagreed with the stored balance

USAGE:
  if errors.Is(err, billing.ErrValidation) { ... 400 ... }

  var verr *billing.ValidationError
  if errors.As(err, &verr) {
      fmt.Println(verr.Field, verr.Code)
  }

SEE ALSO:
  - validation.go: produces ValidationError
  - ledger.go: produces Drift
*/
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrFarmerNotFound  = errors.New("farmer not found")
	ErrSupplyNotFound  = errors.New("supply entry not found")
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrDuplicateRecord is returned when a record with the same ID already exists.
	ErrDuplicateRecord = errors.New("duplicate record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationCode string

const (
	CodeRequired    ValidationCode = "required"
	CodeMalformed   ValidationCode = "malformed"
	CodeInvalid     ValidationCode = "invalid"
	CodeNonPositive ValidationCode = "non_positive"
	CodeNegative    ValidationCode = "negative"
	CodeEndNotAfter ValidationCode = "end_not_after_start"
	CodeInactive    ValidationCode = "inactive"
)

// ValidationError names the offending field and a machine-readable code.
type ValidationError struct {
	Field   string
	Code    ValidationCode
	Message string
}

func newValidationError(field string, code ValidationCode, msg string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: msg}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies which record was missing.
type NotFoundError struct {
	Kind string // "farmer", "supply", "payment"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "farmer":
		return ErrFarmerNotFound
	case "supply":
		return ErrSupplyNotFound
	case "payment":
		return ErrPaymentNotFound
	}
	return nil
}

// FarmerNotFound, SupplyNotFound and PaymentNotFound are also used by Store
// implementations so every backend reports misses the same way.
func FarmerNotFound(id FarmerID) error   { return &NotFoundError{Kind: "farmer", ID: string(id)} }
func SupplyNotFound(id SupplyID) error   { return &NotFoundError{Kind: "supply", ID: string(id)} }
func PaymentNotFound(id PaymentID) error { return &NotFoundError{Kind: "payment", ID: string(id)} }

// DriftError describes a stored balance that disagreed with a full recompute.
// It is logged and counted, and the stored balance is replaced.
type DriftError struct {
	FarmerID   FarmerID
	Stored     decimal.Decimal
	Recomputed decimal.Decimal
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("balance drift for farmer %s: stored %s, recomputed %s (diff %s)",
		e.FarmerID, e.Stored.StringFixed(2), e.Recomputed.StringFixed(2),
		e.Recomputed.Sub(e.Stored).StringFixed(2))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true for user-input problems.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFarmerNotFound) ||
		errors.Is(err, ErrSupplyNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
