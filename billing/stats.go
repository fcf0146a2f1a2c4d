package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// FarmerStats summarises one farmer's lifetime activity.
type FarmerStats struct {
	FarmerID       FarmerID
	TotalSupplies  int
	TotalWaterUsed decimal.Decimal
	TotalHours     decimal.Decimal
	TotalCharges   decimal.Decimal
	TotalPayments  decimal.Decimal
	Balance        decimal.Decimal
	LastSupplyDate *time.Time
}

// ComputeFarmerStats folds a farmer's records. Records of other farmers are skipped.
func ComputeFarmerStats(farmerID FarmerID, entries []SupplyEntry, payments []Payment) FarmerStats {
	s := FarmerStats{
		FarmerID:       farmerID,
		TotalWaterUsed: decimal.Zero,
		TotalHours:     decimal.Zero,
		TotalCharges:   decimal.Zero,
		TotalPayments:  decimal.Zero,
	}
	for _, e := range entries {
		if e.FarmerID != farmerID {
			continue
		}
		s.TotalSupplies++
		s.TotalWaterUsed = s.TotalWaterUsed.Add(e.WaterUsed)
		s.TotalHours = s.TotalHours.Add(e.TotalTimeUsed)
		s.TotalCharges = s.TotalCharges.Add(e.Amount)
		if s.LastSupplyDate == nil || e.Date.After(*s.LastSupplyDate) {
			d := e.Date
			s.LastSupplyDate = &d
		}
	}
	for _, p := range payments {
		if p.FarmerID == farmerID {
			s.TotalPayments = s.TotalPayments.Add(p.Amount)
		}
	}
	s.Balance = s.TotalPayments.Sub(s.TotalCharges)
	return s
}

// Dashboard is the operator-wide overview.
type Dashboard struct {
	TotalFarmers       int
	TotalWaterSupplied decimal.Decimal
	TotalHours         decimal.Decimal
	TotalCharges       decimal.Decimal
	TotalPayments      decimal.Decimal
	// PendingDues is the sum of what farmers with a negative balance owe, as a positive number.
	PendingDues   decimal.Decimal
	TodayRevenue  decimal.Decimal
	TodaySupplies int
}

// ComputeDashboard aggregates across active farmers. today selects the
// calendar day for the Today* fields.
func ComputeDashboard(farmers []Farmer, entries []SupplyEntry, payments []Payment, today time.Time) Dashboard {
	d := Dashboard{
		TotalWaterSupplied: decimal.Zero,
		TotalHours:         decimal.Zero,
		TotalCharges:       decimal.Zero,
		TotalPayments:      decimal.Zero,
		PendingDues:        decimal.Zero,
		TodayRevenue:       decimal.Zero,
	}
	active := make(map[FarmerID]bool, len(farmers))
	for _, f := range farmers {
		if !f.Active {
			continue
		}
		active[f.ID] = true
		d.TotalFarmers++
		if f.Balance.IsNegative() {
			d.PendingDues = d.PendingDues.Add(f.Balance.Neg())
		}
	}
	day := dayOf(today)
	for _, e := range entries {
		if !active[e.FarmerID] {
			continue
		}
		d.TotalWaterSupplied = d.TotalWaterSupplied.Add(e.WaterUsed)
		d.TotalHours = d.TotalHours.Add(e.TotalTimeUsed)
		d.TotalCharges = d.TotalCharges.Add(e.Amount)
		if dayOf(e.Date).Equal(day) {
			d.TodayRevenue = d.TodayRevenue.Add(e.Amount)
			d.TodaySupplies++
		}
	}
	for _, p := range payments {
		if active[p.FarmerID] {
			d.TotalPayments = d.TotalPayments.Add(p.Amount)
		}
	}
	return d
}
