/*
ledger.go - Balance Ledger

PURPOSE:
  Keeps Farmer.Balance consistent with the farmer's supply entries and
  payments under insert, update and delete of either record type, without
  replaying the whole history on every mutation.

SIGN CONVENTION (applied everywhere):
  SupplyEntry -> debit  -> contributes -amount
  Payment     -> credit -> contributes +amount
  Balance = sum(payments) - sum(supplies). Negative = farmer owes.

INCREMENTAL UPDATES:
  insert:  ApplyLedgerDelta(b, nil, &next)
  update:  ApplyLedgerDelta(b, &prev, &next)   one adjustment, b - prev + next
  delete:  ApplyLedgerDelta(b, &prev, nil)

FULL RECONCILIATION:
  ReconcileBalance replays every record of one farmer. It is pure and
  idempotent, so it is safe to call after a sync batch, on a schedule,
  or whenever duplicated delivery is suspected. Records that belong to
  other farmers are ignored.

SEE ALSO:
  - service.go: applies deltas inside one store transaction
  - statement.go: running balance per transaction
*/
package billing

import "github.com/shopspring/decimal"

// DriftEpsilon is the largest stored-vs-recomputed difference treated as
// rounding noise rather than drift.
var DriftEpsilon = decimal.New(5, -3)

// =============================================================================
// CONTRIBUTION - One record's signed effect on a balance
// =============================================================================

type ContributionKind string

const (
	KindSupply  ContributionKind = "supply"
	KindPayment ContributionKind = "payment"
)

// Contribution is the effect of one record. Amount is unsigned; the sign
// comes from Kind.
type Contribution struct {
	Kind     ContributionKind
	RecordID string
	Amount   decimal.Decimal
}

// Signed returns the amount with the ledger sign applied.
func (c Contribution) Signed() decimal.Decimal {
	if c.Kind == KindSupply {
		return c.Amount.Neg()
	}
	return c.Amount
}

func SupplyContribution(e SupplyEntry) Contribution {
	return Contribution{Kind: KindSupply, RecordID: string(e.ID), Amount: e.Amount}
}

func PaymentContribution(p Payment) Contribution {
	return Contribution{Kind: KindPayment, RecordID: string(p.ID), Amount: p.Amount}
}

// =============================================================================
// INCREMENTAL DELTA
// =============================================================================

// ApplyLedgerDelta reverses prev (if any) and applies next (if any) as a
// single adjustment: balance - prev + next.
func ApplyLedgerDelta(balance decimal.Decimal, prev, next *Contribution) decimal.Decimal {
	delta := decimal.Zero
	if prev != nil {
		delta = delta.Sub(prev.Signed())
	}
	if next != nil {
		delta = delta.Add(next.Signed())
	}
	return Round2(balance.Add(delta))
}

// =============================================================================
// FULL RECONCILIATION
// =============================================================================

// ReconcileBalance recomputes a farmer's balance from scratch.
func ReconcileBalance(farmerID FarmerID, entries []SupplyEntry, payments []Payment) decimal.Decimal {
	balance := decimal.Zero
	for _, p := range payments {
		if p.FarmerID == farmerID {
			balance = balance.Add(p.Amount)
		}
	}
	for _, e := range entries {
		if e.FarmerID == farmerID {
			balance = balance.Sub(e.Amount)
		}
	}
	return Round2(balance)
}

// Drift compares a stored balance with its recomputed value.
type Drift struct {
	FarmerID   FarmerID
	Stored     decimal.Decimal
	Recomputed decimal.Decimal
}

// Diff is recomputed - stored.
func (d Drift) Diff() decimal.Decimal { return d.Recomputed.Sub(d.Stored) }

// NeedsCorrection is true whenever the stored value differs at all.
func (d Drift) NeedsCorrection() bool { return !d.Stored.Equal(d.Recomputed) }

// Significant is true when the difference exceeds rounding noise and
// indicates an upstream bug.
func (d Drift) Significant() bool { return d.Diff().Abs().GreaterThan(DriftEpsilon) }

func (d Drift) Err() error {
	if !d.Significant() {
		return nil
	}
	return &DriftError{FarmerID: d.FarmerID, Stored: d.Stored, Recomputed: d.Recomputed}
}

// CheckDrift recomputes a farmer's balance and compares it with the stored one.
func CheckDrift(f Farmer, entries []SupplyEntry, payments []Payment) Drift {
	return Drift{
		FarmerID:   f.ID,
		Stored:     f.Balance,
		Recomputed: ReconcileBalance(f.ID, entries, payments),
	}
}
