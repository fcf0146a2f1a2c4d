package billing

import "github.com/shopspring/decimal"

// Charge is the money and water derived from a billed duration.
type Charge struct {
	Amount      decimal.Decimal
	WaterVolume decimal.Decimal
}

// CalculateCharge prices a duration. Amount and water volume are rounded to
// two decimals and an amount that rounds to zero is rejected. A non-positive
// flow rate falls back to 1000 L/h.
func CalculateCharge(hours, rate, flowRatePerHour decimal.Decimal) (Charge, error) {
	if err := ValidateElapsed(hours); err != nil {
		return Charge{}, err
	}
	if err := ValidateRate(rate); err != nil {
		return Charge{}, err
	}
	if !flowRatePerHour.IsPositive() {
		flowRatePerHour = decimal.NewFromInt(DefaultFlowRatePerHour)
	}
	amount := Round2(hours.Mul(rate))
	if !amount.IsPositive() {
		return Charge{}, newValidationError("amount", CodeNonPositive, "charge rounds to zero, check the hours and rate")
	}
	return Charge{
		Amount:      amount,
		WaterVolume: Round2(hours.Mul(flowRatePerHour)),
	}, nil
}

// ResolveRate picks the rate to freeze into a new entry: an explicit
// override, then the farmer's default, then the operator default.
// An explicit override is returned as given, even when non-positive, so that
// ValidateRate rejects it instead of silently falling back.
func ResolveRate(override *decimal.Decimal, farmerDefault decimal.Decimal, settings Settings) decimal.Decimal {
	if override != nil {
		return *override
	}
	if farmerDefault.IsPositive() {
		return farmerDefault
	}
	if settings.DefaultRate.IsPositive() {
		return settings.DefaultRate
	}
	return decimal.Zero
}
