/*
duration.go - Duration Resolver

PURPOSE:
  Converts a supply entry's raw billing fields into elapsed hours.

METER MODE (h.mm notation):
  A reading of 5.30 means 5 hours 30 minutes, i.e. 5.5 decimal hours.
    hours   = floor(r)
    minutes = round((r - hours) * 100)       must be in [0, 59]
    decimal = hours + minutes/60
  5.75 is rejected: 75 is not a valid minute count.

TIME MODE:
  raw = stop - start, +24h if negative (session crossed midnight).
  elapsed = max(0, raw - pause).

ROUNDING:
  ResolveDuration rounds to 2 decimals exactly once, on the way out.
*/
package billing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	sixty     = decimal.NewFromInt(60)
	hundred   = decimal.NewFromInt(100)
	dayHours  = decimal.NewFromInt(24)
	maxMinute = int64(59)
)

// =============================================================================
// METER READINGS
// =============================================================================

// meterParts splits an h.mm reading into whole hours and encoded minutes.
func meterParts(reading decimal.Decimal) (hours, minutes decimal.Decimal) {
	hours = reading.Floor()
	minutes = reading.Sub(hours).Mul(hundred).Round(0)
	return hours, minutes
}

// ConvertMeterToHours converts an h.mm reading to decimal hours (unrounded).
func ConvertMeterToHours(reading decimal.Decimal) decimal.Decimal {
	hours, minutes := meterParts(reading)
	return hours.Add(minutes.Div(sixty))
}

// ValidateMeterReading rejects negative readings and readings whose
// fractional part encodes 60 or more minutes.
func ValidateMeterReading(field string, reading decimal.Decimal) error {
	if reading.IsNegative() {
		return newValidationError(field, CodeNegative, "meter reading cannot be negative")
	}
	_, minutes := meterParts(reading)
	if minutes.IntPart() > maxMinute {
		return newValidationError(field, CodeMalformed,
			fmt.Sprintf("meter reading %s encodes %d minutes; minutes must be 00-59", reading.String(), minutes.IntPart()))
	}
	return nil
}

func resolveMeter(m MeterReading) (decimal.Decimal, error) {
	if err := ValidateMeterReading("meter_reading_start", m.Start); err != nil {
		return decimal.Zero, err
	}
	if err := ValidateMeterReading("meter_reading_end", m.End); err != nil {
		return decimal.Zero, err
	}
	if m.End.LessThanOrEqual(m.Start) {
		return decimal.Zero, newValidationError("meter_reading_end", CodeEndNotAfter,
			"end reading must be greater than start reading")
	}
	elapsed := ConvertMeterToHours(m.End).Sub(ConvertMeterToHours(m.Start))
	return decimal.Max(decimal.Zero, elapsed), nil
}

// =============================================================================
// WALL-CLOCK TIMES
// =============================================================================

// ClockTime is a wall-clock time of day in minutes after midnight.
type ClockTime int

// ParseClockTime parses "HH:MM" (24h). Seconds, if given as "HH:MM:SS", are ignored.
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("time %q has invalid hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q has invalid minute", s)
	}
	return ClockTime(h*60 + m), nil
}

// MustClockTime is ParseClockTime for literals known to be valid.
func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func resolveTime(w TimeWindow) (decimal.Decimal, error) {
	if w.Pause.IsNegative() {
		return decimal.Zero, newValidationError("pause_duration", CodeNegative, "pause duration cannot be negative")
	}
	rawMinutes := int64(w.Stop) - int64(w.Start)
	raw := decimal.NewFromInt(rawMinutes).Div(sixty)
	if raw.IsNegative() {
		raw = raw.Add(dayHours)
	}
	return decimal.Max(decimal.Zero, raw.Sub(w.Pause)), nil
}

// =============================================================================
// RESOLVER
// =============================================================================

// ResolveDuration returns the elapsed hours for a billing input, rounded to
// two decimals. It does not reject zero durations; see ValidateElapsed.
func ResolveDuration(in BillingInput) (decimal.Decimal, error) {
	var (
		hours decimal.Decimal
		err   error
	)
	switch b := in.(type) {
	case MeterReading:
		hours, err = resolveMeter(b)
	case TimeWindow:
		hours, err = resolveTime(b)
	case nil:
		return decimal.Zero, newValidationError("billing_method", CodeRequired, "billing input is required")
	default:
		return decimal.Zero, newValidationError("billing_method", CodeInvalid, "unsupported billing method")
	}
	if err != nil {
		return decimal.Zero, err
	}
	return Round2(hours), nil
}
