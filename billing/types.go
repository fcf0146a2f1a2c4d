/*
Package billing is the billing and balance-reconciliation engine for a water
irrigation supply operator.

PURPOSE:
  Turns raw supply readings (meter or wall-clock) into billed hours, water
  volume and money, and keeps every farmer's running balance consistent with
  the full history of that farmer's supply entries and payments.

KEY CONCEPTS IN THIS FILE (types.go):
  - BillingInput: tagged union of MeterReading | TimeWindow
  - SupplyEntry: a billed supply session (debit)
  - Payment: money received from a farmer (credit)
  - Farmer: owner of entries and payments, carries the derived Balance
  - Settings: operator defaults (rate, flow rate, display formatting)

SIGN CONVENTION:
  Balance = sum(payments) - sum(supply amounts).
  Negative balance means the farmer owes money; positive means advance.

PRECISION:
  All money, hours, liters and meter readings are decimal.Decimal.
  Persisted values carry two fraction digits.

SEE ALSO:
  - duration.go: meter/time resolution
  - charge.go: amount and water volume
  - ledger.go: balance deltas and reconciliation
  - statement.go: running-balance statements
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type FarmerID string
type SupplyID string
type PaymentID string

// =============================================================================
// BILLING INPUT - Tagged union over the two billing methods
// =============================================================================

type BillingMethod string

const (
	MethodMeter BillingMethod = "meter"
	MethodTime  BillingMethod = "time"
)

// BillingInput is the raw, method-specific part of a supply entry.
// Only MeterReading and TimeWindow implement it.
type BillingInput interface {
	Method() BillingMethod
	isBillingInput()
}

// MeterReading holds start/end readings in h.mm notation (5.30 = 5h30m).
// The values are kept exactly as entered; they are NOT decimal hours.
type MeterReading struct {
	Start decimal.Decimal
	End   decimal.Decimal
}

func (MeterReading) Method() BillingMethod { return MethodMeter }
func (MeterReading) isBillingInput()       {}

// TimeWindow is a wall-clock session with an optional pause in hours.
type TimeWindow struct {
	Start ClockTime
	Stop  ClockTime
	Pause decimal.Decimal
}

func (TimeWindow) Method() BillingMethod { return MethodTime }
func (TimeWindow) isBillingInput()       {}

// RawSupplyInput is the flat shape used by the API and the database.
// Billing() reads only the fields of the chosen method; the others are ignored.
type RawSupplyInput struct {
	Method     BillingMethod
	MeterStart *decimal.Decimal
	MeterEnd   *decimal.Decimal
	StartTime  string
	StopTime   string
	Pause      *decimal.Decimal
}

// Billing converts the flat input into the tagged union, enforcing that the
// chosen method's required fields are present and well-formed.
func (r RawSupplyInput) Billing() (BillingInput, error) {
	switch r.Method {
	case MethodMeter:
		if r.MeterStart == nil {
			return nil, newValidationError("meter_reading_start", CodeRequired, "meter start reading is required")
		}
		if r.MeterEnd == nil {
			return nil, newValidationError("meter_reading_end", CodeRequired, "meter end reading is required")
		}
		return MeterReading{Start: *r.MeterStart, End: *r.MeterEnd}, nil
	case MethodTime:
		if r.StartTime == "" {
			return nil, newValidationError("start_time", CodeRequired, "start time is required")
		}
		if r.StopTime == "" {
			return nil, newValidationError("stop_time", CodeRequired, "stop time is required")
		}
		start, err := ParseClockTime(r.StartTime)
		if err != nil {
			return nil, newValidationError("start_time", CodeMalformed, err.Error())
		}
		stop, err := ParseClockTime(r.StopTime)
		if err != nil {
			return nil, newValidationError("stop_time", CodeMalformed, err.Error())
		}
		pause := decimal.Zero
		if r.Pause != nil {
			pause = *r.Pause
		}
		return TimeWindow{Start: start, Stop: stop, Pause: pause}, nil
	default:
		return nil, newValidationError("billing_method", CodeInvalid, "billing method must be 'meter' or 'time'")
	}
}

// RawFromBilling flattens a BillingInput back into the storage shape.
func RawFromBilling(in BillingInput) RawSupplyInput {
	switch b := in.(type) {
	case MeterReading:
		start, end := b.Start, b.End
		return RawSupplyInput{Method: MethodMeter, MeterStart: &start, MeterEnd: &end}
	case TimeWindow:
		pause := b.Pause
		return RawSupplyInput{
			Method:    MethodTime,
			StartTime: b.Start.String(),
			StopTime:  b.Stop.String(),
			Pause:     &pause,
		}
	}
	return RawSupplyInput{}
}

// =============================================================================
// RECORDS
// =============================================================================

type Farmer struct {
	ID           FarmerID
	Name         string
	Mobile       string
	FarmLocation string
	DefaultRate  decimal.Decimal
	Balance      decimal.Decimal
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SupplyEntry is one billed supply session. TotalTimeUsed, WaterUsed and
// Amount are always derived from Billing and Rate at write time.
type SupplyEntry struct {
	ID            SupplyID
	FarmerID      FarmerID
	Date          time.Time
	Billing       BillingInput
	TotalTimeUsed decimal.Decimal
	WaterUsed     decimal.Decimal
	Rate          decimal.Decimal
	Amount        decimal.Decimal
	Remarks       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type PaymentMethod string

const (
	PayCash         PaymentMethod = "cash"
	PayUPI          PaymentMethod = "upi"
	PayBankTransfer PaymentMethod = "bank_transfer"
	PayCheque       PaymentMethod = "cheque"
	PayOther        PaymentMethod = "other"
)

type Payment struct {
	ID        PaymentID
	FarmerID  FarmerID
	Date      time.Time
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
	Remarks   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// SETTINGS
// =============================================================================

const (
	DefaultHourlyRate      = 100
	DefaultFlowRatePerHour = 1000
)

type Settings struct {
	BusinessName    string
	BusinessPhone   string
	BusinessAddress string
	DefaultRate     decimal.Decimal
	FlowRatePerHour decimal.Decimal
	Currency        string
	CurrencySymbol  string
	DateFormat      string
}

// DefaultSettings returns the settings used when the operator has saved none.
func DefaultSettings() Settings {
	return Settings{
		BusinessName:    "Water Irrigation Supply",
		DefaultRate:     decimal.NewFromInt(DefaultHourlyRate),
		FlowRatePerHour: decimal.NewFromInt(DefaultFlowRatePerHour),
		Currency:        "INR",
		CurrencySymbol:  "₹",
		DateFormat:      "DD/MM/YYYY",
	}
}

// FlowRate returns the configured flow rate, or the 1000 L/h default if unset.
func (s Settings) FlowRate() decimal.Decimal {
	if s.FlowRatePerHour.IsPositive() {
		return s.FlowRatePerHour
	}
	return decimal.NewFromInt(DefaultFlowRatePerHour)
}

// =============================================================================
// ROUNDING
// =============================================================================

// Round2 rounds half away from zero to two fraction digits.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
