/*
validation.go - Input validation before any derivation or ledger mutation

Each predicate returns nil or a *ValidationError naming the field and a
code. Nothing here touches a store; callers run these first and only then
compute derived fields and write.
*/
package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUESTS
// =============================================================================

// SupplyRequest is what an operator submits to create or edit a supply entry.
type SupplyRequest struct {
	FarmerID     FarmerID
	Date         time.Time
	Billing      BillingInput
	RateOverride *decimal.Decimal
	Remarks      string
}

// PaymentRequest is what an operator submits to create or edit a payment.
type PaymentRequest struct {
	FarmerID  FarmerID
	Date      time.Time
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
	Remarks   string
}

// FarmerProfile is the editable part of a farmer.
type FarmerProfile struct {
	Name         string
	Mobile       string
	FarmLocation string
	DefaultRate  decimal.Decimal
}

// =============================================================================
// PREDICATES
// =============================================================================

// ValidateFarmerActive checks that the referenced farmer exists and is active.
func ValidateFarmerActive(id FarmerID, f *Farmer) error {
	if f == nil {
		return FarmerNotFound(id)
	}
	if !f.Active {
		return &ValidationError{Field: "farmer_id", Code: CodeInactive, Message: "farmer " + string(id) + " is inactive"}
	}
	return nil
}

// ValidateBillingInput checks the method-specific fields without pricing them.
func ValidateBillingInput(in BillingInput) error {
	_, err := ResolveDuration(in)
	return err
}

func ValidateElapsed(hours decimal.Decimal) error {
	if !hours.IsPositive() {
		return newValidationError("total_time_used", CodeNonPositive, "billable time must be greater than zero")
	}
	return nil
}

func ValidateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return newValidationError("rate", CodeNonPositive, "rate must be greater than zero")
	}
	return nil
}

// ValidatePaymentAmount checks the amount as it will be stored, so a
// fraction of a paisa that rounds to zero is rejected.
func ValidatePaymentAmount(amount decimal.Decimal) error {
	if !Round2(amount).IsPositive() {
		return newValidationError("amount", CodeNonPositive, "payment amount must be greater than zero")
	}
	return nil
}

func ValidatePaymentMethod(m PaymentMethod) error {
	switch m {
	case PayCash, PayUPI, PayBankTransfer, PayCheque, PayOther:
		return nil
	case "":
		return newValidationError("payment_method", CodeRequired, "payment method is required")
	}
	return newValidationError("payment_method", CodeInvalid, "unknown payment method "+string(m))
}

func validateDate(d time.Time) error {
	if d.IsZero() {
		return newValidationError("date", CodeRequired, "date is required")
	}
	return nil
}

// ValidateFarmerProfile checks a farmer's editable fields.
func ValidateFarmerProfile(p FarmerProfile) error {
	if strings.TrimSpace(p.Name) == "" {
		return newValidationError("name", CodeRequired, "name is required")
	}
	if p.DefaultRate.IsNegative() {
		return newValidationError("default_rate", CodeNegative, "default rate cannot be negative")
	}
	return nil
}

// =============================================================================
// COMPOSITES
// =============================================================================

// ValidateSupplyRequest runs every supply check in order and returns the
// resolved hours so callers don't resolve twice. rate is the already
// resolved rate (see ResolveRate).
func ValidateSupplyRequest(req SupplyRequest, farmer *Farmer, rate decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateFarmerActive(req.FarmerID, farmer); err != nil {
		return decimal.Zero, err
	}
	if err := validateDate(req.Date); err != nil {
		return decimal.Zero, err
	}
	hours, err := ResolveDuration(req.Billing)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidateElapsed(hours); err != nil {
		return decimal.Zero, err
	}
	if err := ValidateRate(rate); err != nil {
		return decimal.Zero, err
	}
	return hours, nil
}

// ValidatePaymentRequest runs every payment check in order.
func ValidatePaymentRequest(req PaymentRequest, farmer *Farmer) error {
	if err := ValidateFarmerActive(req.FarmerID, farmer); err != nil {
		return err
	}
	if err := validateDate(req.Date); err != nil {
		return err
	}
	if err := ValidatePaymentAmount(req.Amount); err != nil {
		return err
	}
	return ValidatePaymentMethod(req.Method)
}
