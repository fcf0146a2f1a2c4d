package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildStatement_RunningBalance(t *testing.T) {
	// GIVEN: Two supplies (100, 150) and one payment (80)
	entries := []billing.SupplyEntry{
		{ID: "s-1", FarmerID: "f-1", Date: day(1), Amount: dec("100"), TotalTimeUsed: dec("1"), WaterUsed: dec("1000")},
		{ID: "s-2", FarmerID: "f-1", Date: day(3), Amount: dec("150"), TotalTimeUsed: dec("1.5"), WaterUsed: dec("1500")},
	}
	payments := []billing.Payment{
		{ID: "p-1", FarmerID: "f-1", Date: day(2), Amount: dec("80"), Method: billing.PayCash},
	}

	// WHEN: Building the statement
	stmt := billing.BuildStatement(entries, payments, billing.StatementOptions{})

	// THEN: Chronological rows with a running balance and matching totals
	require.Len(t, stmt.Rows, 3)
	assert.Equal(t, "s-1", stmt.Rows[0].RecordID)
	assert.Equal(t, "p-1", stmt.Rows[1].RecordID)
	assert.Equal(t, "s-2", stmt.Rows[2].RecordID)
	assertDecimal(t, "-100", stmt.Rows[0].Balance)
	assertDecimal(t, "-20", stmt.Rows[1].Balance)
	assertDecimal(t, "-170", stmt.Rows[2].Balance)

	assertDecimal(t, "250", stmt.Totals.Charges)
	assertDecimal(t, "80", stmt.Totals.Paid)
	assertDecimal(t, "-170", stmt.Totals.Balance)
	assertDecimal(t, "2.5", stmt.Totals.Hours)
	assertDecimal(t, "2500", stmt.Totals.Water)
	assertDecimal(t, "-170", stmt.Closing)
}

func TestBuildStatement_SameDayOrdering(t *testing.T) {
	early := time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	entries := []billing.SupplyEntry{
		{ID: "s-late", Date: day(5), Amount: dec("10"), CreatedAt: late},
		{ID: "s-tie", Date: day(5), Amount: dec("10"), CreatedAt: early},
	}
	payments := []billing.Payment{
		{ID: "p-tie", Date: day(5), Amount: dec("5"), CreatedAt: early},
	}

	stmt := billing.BuildStatement(entries, payments, billing.StatementOptions{})
	require.Len(t, stmt.Rows, 3)

	// createdAt first, then supplies ahead of payments
	assert.Equal(t, "s-tie", stmt.Rows[0].RecordID)
	assert.Equal(t, "p-tie", stmt.Rows[1].RecordID)
	assert.Equal(t, "s-late", stmt.Rows[2].RecordID)
}

func TestBuildStatement_Window(t *testing.T) {
	entries := []billing.SupplyEntry{
		{ID: "s-1", Date: day(1), Amount: dec("100")},
		{ID: "s-2", Date: day(10), Amount: dec("40")},
		{ID: "s-3", Date: day(20), Amount: dec("70")},
	}
	payments := []billing.Payment{
		{ID: "p-1", Date: day(2), Amount: dec("60")},
		{ID: "p-2", Date: day(15), Amount: dec("25")},
	}
	from, to := day(5), day(15)

	opening := billing.OpeningBalanceBefore(entries, payments, from)
	assertDecimal(t, "-40", opening)

	stmt := billing.BuildStatement(entries, payments, billing.StatementOptions{From: &from, To: &to, Opening: opening})
	require.Len(t, stmt.Rows, 2, "the window is inclusive by calendar day")
	assert.Equal(t, "s-2", stmt.Rows[0].RecordID)
	assert.Equal(t, "p-2", stmt.Rows[1].RecordID)
	assertDecimal(t, "-40", stmt.Opening)
	assertDecimal(t, "-80", stmt.Rows[0].Balance)
	assertDecimal(t, "-55", stmt.Closing)
	assertDecimal(t, "-15", stmt.Totals.Balance, "window totals exclude the opening balance")
}

func TestBuildStatement_Empty(t *testing.T) {
	stmt := billing.BuildStatement(nil, nil, billing.StatementOptions{})
	assert.Empty(t, stmt.Rows)
	assert.True(t, stmt.Totals.Charges.IsZero())
	assert.True(t, stmt.Totals.Paid.IsZero())
	assert.True(t, stmt.Closing.IsZero())
}

func TestBuildStatement_Descriptions(t *testing.T) {
	entries := []billing.SupplyEntry{
		{ID: "s-1", Date: day(1), Amount: dec("1"), Billing: billing.MeterReading{Start: dec("5.3"), End: dec("10.45")}},
		{ID: "s-2", Date: day(2), Amount: dec("1"), Billing: window("22:00", "02:00", "0")},
	}
	payments := []billing.Payment{
		{ID: "p-1", Date: day(3), Amount: dec("1"), Method: billing.PayUPI, Reference: "UTR123"},
	}
	stmt := billing.BuildStatement(entries, payments, billing.StatementOptions{})
	require.Len(t, stmt.Rows, 3)
	assert.Equal(t, "Supply (meter 5.30 - 10.45)", stmt.Rows[0].Description)
	assert.Equal(t, "Supply (22:00 - 02:00)", stmt.Rows[1].Description)
	assert.Equal(t, "Payment (upi) ref UTR123", stmt.Rows[2].Description)
	assert.True(t, stmt.Rows[2].Debit.Equal(decimal.Zero))
}

func TestInWindow(t *testing.T) {
	from, to := day(5), day(10)
	lateOnTo := time.Date(2024, time.March, 10, 23, 30, 0, 0, time.UTC)

	assert.True(t, billing.InWindow(day(5), &from, &to))
	assert.True(t, billing.InWindow(lateOnTo, &from, &to))
	assert.False(t, billing.InWindow(day(4), &from, &to))
	assert.False(t, billing.InWindow(day(11), &from, &to))
	assert.True(t, billing.InWindow(day(1), nil, &to))
	assert.True(t, billing.InWindow(day(30), &from, nil))
}
