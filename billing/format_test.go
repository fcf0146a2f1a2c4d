package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
)

func TestFormatMoney(t *testing.T) {
	cases := []struct {
		amount string
		symbol string
		want   string
	}{
		{"0", "₹", "₹0.00"},
		{"550", "₹", "₹550.00"},
		{"1234.5", "₹", "₹1,234.50"},
		{"1234567.891", "₹", "₹12,34,567.89"},
		{"-170", "₹", "-₹170.00"},
		{"100000", "", "1,00,000.00"},
	}
	for _, tc := range cases {
		t.Run(tc.amount, func(t *testing.T) {
			assert.Equal(t, tc.want, billing.FormatMoney(dec(tc.amount), tc.symbol))
		})
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "07/03/2024", billing.FormatDate(d, "DD/MM/YYYY"))
	assert.Equal(t, "03/07/2024", billing.FormatDate(d, "MM/DD/YYYY"))
	assert.Equal(t, "2024-03-07", billing.FormatDate(d, "yyyy-mm-dd"))
	assert.Equal(t, "07/03/2024", billing.FormatDate(d, "unknown"))
}

func TestFormatHours(t *testing.T) {
	assert.Equal(t, "5:30", billing.FormatHours(dec("5.5")))
	assert.Equal(t, "0:20", billing.FormatHours(dec("0.33")))
	assert.Equal(t, "10:45", billing.FormatHours(dec("10.75")))
}

// =============================================================================
// STATS
// =============================================================================

func TestComputeFarmerStats(t *testing.T) {
	entries := []billing.SupplyEntry{
		{FarmerID: "f-1", Date: day(1), Amount: dec("100"), TotalTimeUsed: dec("1"), WaterUsed: dec("1000")},
		{FarmerID: "f-1", Date: day(9), Amount: dec("150"), TotalTimeUsed: dec("1.5"), WaterUsed: dec("1500")},
		{FarmerID: "f-2", Date: day(20), Amount: dec("999"), TotalTimeUsed: dec("9"), WaterUsed: dec("9000")},
	}
	payments := []billing.Payment{
		{FarmerID: "f-1", Amount: dec("80")},
		{FarmerID: "f-2", Amount: dec("1")},
	}

	s := billing.ComputeFarmerStats("f-1", entries, payments)
	assert.Equal(t, 2, s.TotalSupplies)
	assertDecimal(t, "2500", s.TotalWaterUsed)
	assertDecimal(t, "2.5", s.TotalHours)
	assertDecimal(t, "250", s.TotalCharges)
	assertDecimal(t, "80", s.TotalPayments)
	assertDecimal(t, "-170", s.Balance)
	require.NotNil(t, s.LastSupplyDate)
	assert.Equal(t, day(9), *s.LastSupplyDate)

	empty := billing.ComputeFarmerStats("f-3", entries, payments)
	assert.Zero(t, empty.TotalSupplies)
	assert.Nil(t, empty.LastSupplyDate)
}

func TestComputeDashboard(t *testing.T) {
	farmers := []billing.Farmer{
		{ID: "f-1", Active: true, Balance: dec("-170")},
		{ID: "f-2", Active: true, Balance: dec("50")},
		{ID: "f-3", Active: false, Balance: dec("-1000")},
	}
	entries := []billing.SupplyEntry{
		{FarmerID: "f-1", Date: day(1), Amount: dec("100"), TotalTimeUsed: dec("1"), WaterUsed: dec("1000")},
		{FarmerID: "f-1", Date: day(9), Amount: dec("150"), TotalTimeUsed: dec("1.5"), WaterUsed: dec("1500")},
		{FarmerID: "f-3", Date: day(9), Amount: dec("1000"), TotalTimeUsed: dec("10"), WaterUsed: dec("10000")},
	}
	payments := []billing.Payment{
		{FarmerID: "f-1", Amount: dec("80")},
		{FarmerID: "f-2", Amount: dec("50")},
		{FarmerID: "f-3", Amount: dec("7")},
	}

	today := time.Date(2024, time.March, 9, 17, 45, 0, 0, time.UTC)
	d := billing.ComputeDashboard(farmers, entries, payments, today)

	assert.Equal(t, 2, d.TotalFarmers)
	assertDecimal(t, "2500", d.TotalWaterSupplied)
	assertDecimal(t, "2.5", d.TotalHours)
	assertDecimal(t, "250", d.TotalCharges)
	assertDecimal(t, "130", d.TotalPayments)
	assertDecimal(t, "170", d.PendingDues, "inactive farmers are excluded")
	assertDecimal(t, "150", d.TodayRevenue)
	assert.Equal(t, 1, d.TodaySupplies)
}
