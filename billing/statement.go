/*
statement.go - Statement Builder

PURPOSE:
  Merges one farmer's supply entries (debits) and payments (credits) into a
  chronological list with a running balance, plus period totals. Used for
  receipts, reports and the export package.

ORDERING:
  Date ascending, then CreatedAt ascending, then input order with supplies
  ahead of payments. Output is deterministic for a given input.

RUNNING BALANCE:
  Starts at Opening (zero unless the caller seeds it from records before the
  window) and moves by each row's signed contribution, same sign as ledger.go.

EMPTY INPUT:
  Zero rows and zero totals, never an error.
*/
package billing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type StatementRowKind string

const (
	RowSupply  StatementRowKind = "supply"
	RowPayment StatementRowKind = "payment"
)

// StatementRow is one transaction line.
type StatementRow struct {
	Date        time.Time
	Kind        StatementRowKind
	RecordID    string
	Description string
	Hours       decimal.Decimal // supply only
	WaterUsed   decimal.Decimal // supply only
	Rate        decimal.Decimal // supply only
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.Decimal

	createdAt time.Time
	seq       int
}

type StatementTotals struct {
	Charges decimal.Decimal
	Paid    decimal.Decimal
	// Balance is Paid - Charges for the window.
	Balance decimal.Decimal
	Hours   decimal.Decimal
	Water   decimal.Decimal
}

type Statement struct {
	From    *time.Time
	To      *time.Time
	Opening decimal.Decimal
	Closing decimal.Decimal
	Rows    []StatementRow
	Totals  StatementTotals
}

// StatementOptions restricts the window (inclusive, by calendar day) and
// optionally seeds the opening balance.
type StatementOptions struct {
	From    *time.Time
	To      *time.Time
	Opening decimal.Decimal
}

// InWindow reports whether t falls inside [from, to] by calendar day.
func InWindow(t time.Time, from, to *time.Time) bool {
	d := dayOf(t)
	if from != nil && d.Before(dayOf(*from)) {
		return false
	}
	if to != nil && d.After(dayOf(*to)) {
		return false
	}
	return true
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildStatement produces the ordered rows and totals.
func BuildStatement(entries []SupplyEntry, payments []Payment, opts StatementOptions) Statement {
	rows := make([]StatementRow, 0, len(entries)+len(payments))
	seq := 0
	for _, e := range entries {
		if !InWindow(e.Date, opts.From, opts.To) {
			continue
		}
		rows = append(rows, StatementRow{
			Date:        e.Date,
			Kind:        RowSupply,
			RecordID:    string(e.ID),
			Description: supplyDescription(e),
			Hours:       e.TotalTimeUsed,
			WaterUsed:   e.WaterUsed,
			Rate:        e.Rate,
			Debit:       e.Amount,
			Credit:      decimal.Zero,
			createdAt:   e.CreatedAt,
			seq:         seq,
		})
		seq++
	}
	for _, p := range payments {
		if !InWindow(p.Date, opts.From, opts.To) {
			continue
		}
		rows = append(rows, StatementRow{
			Date:        p.Date,
			Kind:        RowPayment,
			RecordID:    string(p.ID),
			Description: paymentDescription(p),
			Debit:       decimal.Zero,
			Credit:      p.Amount,
			createdAt:   p.CreatedAt,
			seq:         seq,
		})
		seq++
	}

	sort.SliceStable(rows, func(i, j int) bool {
		di, dj := dayOf(rows[i].Date), dayOf(rows[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if !rows[i].createdAt.Equal(rows[j].createdAt) {
			return rows[i].createdAt.Before(rows[j].createdAt)
		}
		return rows[i].seq < rows[j].seq
	})

	stmt := Statement{
		From:    opts.From,
		To:      opts.To,
		Opening: Round2(opts.Opening),
		Rows:    rows,
		Totals: StatementTotals{
			Charges: decimal.Zero,
			Paid:    decimal.Zero,
			Balance: decimal.Zero,
			Hours:   decimal.Zero,
			Water:   decimal.Zero,
		},
	}

	running := stmt.Opening
	for i := range rows {
		r := &rows[i]
		running = running.Add(r.Credit).Sub(r.Debit)
		r.Balance = running
		stmt.Totals.Charges = stmt.Totals.Charges.Add(r.Debit)
		stmt.Totals.Paid = stmt.Totals.Paid.Add(r.Credit)
		if r.Kind == RowSupply {
			stmt.Totals.Hours = stmt.Totals.Hours.Add(r.Hours)
			stmt.Totals.Water = stmt.Totals.Water.Add(r.WaterUsed)
		}
	}
	stmt.Totals.Balance = stmt.Totals.Paid.Sub(stmt.Totals.Charges)
	stmt.Closing = running
	return stmt
}

// OpeningBalanceBefore sums a farmer's activity strictly before from.
func OpeningBalanceBefore(entries []SupplyEntry, payments []Payment, from time.Time) decimal.Decimal {
	cutoff := dayOf(from)
	opening := decimal.Zero
	for _, e := range entries {
		if dayOf(e.Date).Before(cutoff) {
			opening = opening.Sub(e.Amount)
		}
	}
	for _, p := range payments {
		if dayOf(p.Date).Before(cutoff) {
			opening = opening.Add(p.Amount)
		}
	}
	return Round2(opening)
}

func supplyDescription(e SupplyEntry) string {
	switch b := e.Billing.(type) {
	case MeterReading:
		return "Supply (meter " + b.Start.StringFixed(2) + " - " + b.End.StringFixed(2) + ")"
	case TimeWindow:
		return "Supply (" + b.Start.String() + " - " + b.Stop.String() + ")"
	}
	return "Supply"
}

func paymentDescription(p Payment) string {
	desc := "Payment (" + string(p.Method) + ")"
	if p.Reference != "" {
		desc += " ref " + p.Reference
	}
	return desc
}
