package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
	"github.com/aasavchauhan/Water-Supply-Management-System/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recordingObserver struct {
	results []string
}

func (o *recordingObserver) ObserveReconcile(result string, _ billing.Drift) {
	o.results = append(o.results, result)
}

// tickingClock advances one second per call so created-at ordering is stable.
func tickingClock() func() time.Time {
	now := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

type fixture struct {
	svc      *billing.Service
	mem      *store.Memory
	observer *recordingObserver
	logs     *bytes.Buffer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := store.NewMemory()
	obs := &recordingObserver{}
	logs := &bytes.Buffer{}
	svc := billing.NewService(mem,
		billing.WithClock(tickingClock()),
		billing.WithIDGenerator(sequentialIDs()),
		billing.WithLogger(log.New(logs, "", 0)),
		billing.WithObserver(obs),
	)
	return fixture{svc: svc, mem: mem, observer: obs, logs: logs}
}

func (fx fixture) farmer(t *testing.T, name, rate string) billing.Farmer {
	t.Helper()
	f, err := fx.svc.CreateFarmer(context.Background(), billing.FarmerProfile{Name: name, DefaultRate: dec(rate)})
	require.NoError(t, err)
	return f
}

func (fx fixture) balance(t *testing.T, id billing.FarmerID) string {
	t.Helper()
	f, err := fx.svc.GetFarmer(context.Background(), id)
	require.NoError(t, err)
	return f.Balance.StringFixed(2)
}

func hoursReq(farmer billing.FarmerID, hours int) billing.SupplyRequest {
	return billing.SupplyRequest{
		FarmerID: farmer,
		Date:     march10,
		Billing:  window("06:00", fmt.Sprintf("%02d:00", 6+hours), "0"),
	}
}

func payReq(farmer billing.FarmerID, amount string) billing.PaymentRequest {
	return billing.PaymentRequest{FarmerID: farmer, Date: march10, Amount: dec(amount), Method: billing.PayCash}
}

// =============================================================================
// FARMERS
// =============================================================================

func TestService_CreateFarmer(t *testing.T) {
	fx := newFixture(t)
	ctx := billing.WithActor(context.Background(), "operator-7")

	f, err := fx.svc.CreateFarmer(ctx, billing.FarmerProfile{Name: "Ramesh", Mobile: "98765"})
	require.NoError(t, err)
	assert.True(t, f.Active)
	assert.True(t, f.Balance.IsZero())

	audit, err := fx.svc.AuditLog(ctx, billing.AuditFilter{FarmerID: &f.ID})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, billing.AuditFarmerCreated, audit[0].Action)
	assert.Equal(t, "operator-7", audit[0].ActorID)

	items := fx.mem.SyncItems()
	require.Len(t, items, 1)
	assert.Equal(t, billing.OpCreate, items[0].Operation)
	assert.Equal(t, "farmer", items[0].EntityType)
	assert.Contains(t, string(items[0].Payload), `"name":"Ramesh"`)

	_, err = fx.svc.CreateFarmer(ctx, billing.FarmerProfile{})
	requireValidation(t, err, "name", billing.CodeRequired)
}

func TestService_UpdateFarmer_KeepsBalance(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	_, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)

	updated, err := fx.svc.UpdateFarmer(ctx, f.ID, billing.FarmerProfile{Name: "Ramesh K", DefaultRate: dec("120")})
	require.NoError(t, err)
	assert.Equal(t, "Ramesh K", updated.Name)
	assert.Equal(t, "-200.00", fx.balance(t, f.ID))
}

func TestService_DeactivateFarmer(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")

	require.NoError(t, fx.svc.DeactivateFarmer(ctx, f.ID))
	require.NoError(t, fx.svc.DeactivateFarmer(ctx, f.ID), "deactivating twice is a no-op")

	active, err := fx.svc.ListFarmers(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := fx.svc.ListFarmers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = fx.svc.RecordSupply(ctx, hoursReq(f.ID, 1))
	requireValidation(t, err, "farmer_id", billing.CodeInactive)
	_, err = fx.svc.RecordPayment(ctx, payReq(f.ID, "10"))
	requireValidation(t, err, "farmer_id", billing.CodeInactive)
}

func TestService_DeleteFarmer_Cascades(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	e, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)
	p, err := fx.svc.RecordPayment(ctx, payReq(f.ID, "50"))
	require.NoError(t, err)

	require.NoError(t, fx.svc.DeleteFarmer(ctx, f.ID))

	_, err = fx.svc.GetFarmer(ctx, f.ID)
	assert.ErrorIs(t, err, billing.ErrFarmerNotFound)
	_, err = fx.svc.GetSupplyEntry(ctx, e.ID)
	assert.ErrorIs(t, err, billing.ErrSupplyNotFound)
	_, err = fx.svc.GetPayment(ctx, p.ID)
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)

	items := fx.mem.SyncItems()
	assert.Equal(t, billing.OpDelete, items[len(items)-1].Operation)
}

// =============================================================================
// SUPPLY ENTRIES
// =============================================================================

func TestService_RecordSupply_Meter(t *testing.T) {
	// GIVEN: A farmer with no default rate; operator default is 100
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")

	// WHEN: Recording a meter session from 5h30m to 10h45m
	e, err := fx.svc.RecordSupply(ctx, billing.SupplyRequest{
		FarmerID: f.ID,
		Date:     march10,
		Billing:  billing.MeterReading{Start: dec("5.30"), End: dec("10.45")},
	})

	// THEN: 5.25 hours, 525 money, 5250 liters, balance -525
	require.NoError(t, err)
	assertDecimal(t, "5.25", e.TotalTimeUsed)
	assertDecimal(t, "100", e.Rate)
	assertDecimal(t, "525", e.Amount)
	assertDecimal(t, "5250", e.WaterUsed)
	assert.Equal(t, "-525.00", fx.balance(t, f.ID))
}

func TestService_RecordSupply_RatePriority(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "120")

	e, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 1))
	require.NoError(t, err)
	assertDecimal(t, "120", e.Rate, "farmer default beats operator default")

	req := hoursReq(f.ID, 1)
	req.RateOverride = decPtr("150")
	e, err = fx.svc.RecordSupply(ctx, req)
	require.NoError(t, err)
	assertDecimal(t, "150", e.Rate, "override beats farmer default")
}

func TestService_RecordSupply_RejectsWithoutSideEffects(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	before := len(fx.mem.SyncItems())

	zeroRate := hoursReq(f.ID, 2)
	zeroRate.RateOverride = decPtr("0")
	_, err := fx.svc.RecordSupply(ctx, zeroRate)
	requireValidation(t, err, "rate", billing.CodeNonPositive)

	_, err = fx.svc.RecordSupply(ctx, billing.SupplyRequest{
		FarmerID: f.ID,
		Date:     march10,
		Billing:  billing.MeterReading{Start: dec("8.00"), End: dec("7.00")},
	})
	requireValidation(t, err, "meter_reading_end", billing.CodeEndNotAfter)

	_, err = fx.svc.RecordSupply(ctx, hoursReq("ghost", 1))
	assert.ErrorIs(t, err, billing.ErrFarmerNotFound)

	_, err = fx.svc.RecordSupply(ctx, hoursReq("", 1))
	requireValidation(t, err, "farmer_id", billing.CodeRequired)

	assert.Equal(t, "0.00", fx.balance(t, f.ID))
	entries, err := fx.svc.ListSupplyEntries(ctx, billing.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Len(t, fx.mem.SyncItems(), before)
}

func TestService_UpdateSupply_NetsDelta(t *testing.T) {
	// GIVEN: A 200 supply (2h at 100)
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	e, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)
	require.Equal(t, "-200.00", fx.balance(t, f.ID))

	// WHEN: Editing it to 3h (300)
	updated, err := fx.svc.UpdateSupply(ctx, e.ID, hoursReq(f.ID, 3))
	require.NoError(t, err)

	// THEN: The balance moves by -100 in one audited step
	assertDecimal(t, "300", updated.Amount)
	assert.Equal(t, e.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "-300.00", fx.balance(t, f.ID))

	audit, err := fx.svc.AuditLog(ctx, billing.AuditFilter{
		FarmerID: &f.ID,
		Actions:  []billing.AuditAction{billing.AuditSupplyUpdated},
	})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assertDecimal(t, "-200", *audit[0].OldBalance)
	assertDecimal(t, "-300", *audit[0].NewBalance)
}

func TestService_UpdateSupply_KeepsFrozenRate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "100")
	e, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)

	_, err = fx.svc.UpdateFarmer(ctx, f.ID, billing.FarmerProfile{Name: "Ramesh", DefaultRate: dec("500")})
	require.NoError(t, err)

	updated, err := fx.svc.UpdateSupply(ctx, e.ID, hoursReq(f.ID, 3))
	require.NoError(t, err)
	assertDecimal(t, "100", updated.Rate, "editing hours does not re-price at the new default")
	assertDecimal(t, "300", updated.Amount)
}

func TestService_UpdateSupply_Reassign(t *testing.T) {
	// GIVEN: A 200 supply billed to farmer A
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.farmer(t, "A", "100")
	b := fx.farmer(t, "B", "150")
	e, err := fx.svc.RecordSupply(ctx, hoursReq(a.ID, 2))
	require.NoError(t, err)

	// WHEN: Moving it to farmer B
	moved, err := fx.svc.UpdateSupply(ctx, e.ID, hoursReq(b.ID, 2))
	require.NoError(t, err)

	// THEN: A is made whole and B is charged at B's rate
	assertDecimal(t, "150", moved.Rate)
	assert.Equal(t, "0.00", fx.balance(t, a.ID))
	assert.Equal(t, "-300.00", fx.balance(t, b.ID))
}

func TestService_DeleteSupply(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	e, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)

	require.NoError(t, fx.svc.DeleteSupply(ctx, e.ID))
	assert.Equal(t, "0.00", fx.balance(t, f.ID))

	err = fx.svc.DeleteSupply(ctx, e.ID)
	assert.True(t, billing.IsNotFound(err))
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestService_Payments(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	_, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)

	p, err := fx.svc.RecordPayment(ctx, payReq(f.ID, "80.005"))
	require.NoError(t, err)
	assertDecimal(t, "80.01", p.Amount, "amounts are stored with two decimals")
	assert.Equal(t, "-119.99", fx.balance(t, f.ID))

	_, err = fx.svc.UpdatePayment(ctx, p.ID, payReq(f.ID, "200"))
	require.NoError(t, err)
	assert.Equal(t, "0.00", fx.balance(t, f.ID))

	require.NoError(t, fx.svc.DeletePayment(ctx, p.ID))
	assert.Equal(t, "-200.00", fx.balance(t, f.ID))

	_, err = fx.svc.RecordPayment(ctx, payReq(f.ID, "0"))
	requireValidation(t, err, "amount", billing.CodeNonPositive)
}

func TestService_RejectsAmountsBelowOnePaisa(t *testing.T) {
	// GIVEN: A farmer with one payment on record
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	p, err := fx.svc.RecordPayment(ctx, payReq(f.ID, "50"))
	require.NoError(t, err)
	before := len(fx.mem.SyncItems())

	// WHEN: Recording or editing a payment of 0.004
	_, err = fx.svc.RecordPayment(ctx, payReq(f.ID, "0.004"))
	requireValidation(t, err, "amount", billing.CodeNonPositive)
	_, err = fx.svc.UpdatePayment(ctx, p.ID, payReq(f.ID, "0.004"))
	requireValidation(t, err, "amount", billing.CodeNonPositive)

	// AND: Recording a one-minute supply at 0.1/h
	rate := dec("0.1")
	_, err = fx.svc.RecordSupply(ctx, billing.SupplyRequest{
		FarmerID:     f.ID,
		Date:         march10,
		Billing:      billing.MeterReading{Start: dec("10.00"), End: dec("10.01")},
		RateOverride: &rate,
	})
	requireValidation(t, err, "amount", billing.CodeNonPositive)

	// THEN: Nothing was stored, moved or queued
	assert.Equal(t, "50.00", fx.balance(t, f.ID))
	kept, err := fx.svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assertDecimal(t, "50", kept.Amount)
	supplies, err := fx.svc.ListSupplyEntries(ctx, billing.RecordFilter{FarmerID: f.ID})
	require.NoError(t, err)
	assert.Empty(t, supplies)
	assert.Len(t, fx.mem.SyncItems(), before)
}

func TestService_NoCrossFarmerLeakage(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.farmer(t, "A", "0")
	b := fx.farmer(t, "B", "0")

	_, err := fx.svc.RecordSupply(ctx, hoursReq(a.ID, 3))
	require.NoError(t, err)
	p, err := fx.svc.RecordPayment(ctx, payReq(a.ID, "100"))
	require.NoError(t, err)
	_, err = fx.svc.UpdatePayment(ctx, p.ID, payReq(a.ID, "150"))
	require.NoError(t, err)

	assert.Equal(t, "-150.00", fx.balance(t, a.ID))
	assert.Equal(t, "0.00", fx.balance(t, b.ID))

	stats, err := fx.svc.FarmerStats(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSupplies)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestService_Reconcile_Idempotent(t *testing.T) {
	// GIVEN: A farmer whose stored balance was corrupted
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	_, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)
	require.NoError(t, fx.mem.SetBalance(ctx, f.ID, dec("999")))

	// WHEN: Reconciling twice
	first, err := fx.svc.Reconcile(ctx, f.ID)
	require.NoError(t, err)
	second, err := fx.svc.Reconcile(ctx, f.ID)
	require.NoError(t, err)

	// THEN: The first run repairs, the second finds nothing
	assert.True(t, first.Corrected)
	assert.True(t, first.Drift.Significant())
	assertDecimal(t, "-200", first.Drift.Recomputed)
	assert.False(t, second.Corrected)
	assert.Equal(t, "-200.00", fx.balance(t, f.ID))
	assert.Equal(t, []string{billing.ReconcileDrift, billing.ReconcileClean}, fx.observer.results)
	assert.Contains(t, fx.logs.String(), "[Reconcile] balance drift")

	audit, err := fx.svc.AuditLog(ctx, billing.AuditFilter{Actions: []billing.AuditAction{billing.AuditReconciliation}})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "-1199.00", audit[0].Payload["diff"])
}

func TestService_Reconcile_RoundingNoise(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	_, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)
	require.NoError(t, fx.mem.SetBalance(ctx, f.ID, dec("-200.003")))

	res, err := fx.svc.Reconcile(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, res.Corrected)
	assert.False(t, res.Drift.Significant())
	assert.Equal(t, []string{billing.ReconcileCorrected}, fx.observer.results)

	audit, err := fx.svc.AuditLog(ctx, billing.AuditFilter{Actions: []billing.AuditAction{billing.AuditReconciliation}})
	require.NoError(t, err)
	assert.Empty(t, audit, "noise is corrected silently")
}

func TestService_ReconcileAll(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.farmer(t, "A", "0")
	b := fx.farmer(t, "B", "0")
	require.NoError(t, fx.svc.DeactivateFarmer(ctx, b.ID))
	require.NoError(t, fx.mem.SetBalance(ctx, b.ID, dec("5")))

	results, err := fx.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 2, "inactive farmers are included")
	assert.Equal(t, "0.00", fx.balance(t, a.ID))
	assert.Equal(t, "0.00", fx.balance(t, b.ID))

	_, err = fx.svc.Reconcile(ctx, "ghost")
	assert.True(t, billing.IsNotFound(err))
}

// =============================================================================
// REPORTING
// =============================================================================

func TestService_Statement(t *testing.T) {
	// GIVEN: Supplies of 100 and 150 and a payment of 80
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	first := hoursReq(f.ID, 1)
	first.Date = day(1)
	_, err := fx.svc.RecordSupply(ctx, first)
	require.NoError(t, err)
	second := billing.SupplyRequest{FarmerID: f.ID, Date: day(3), Billing: window("06:00", "07:30", "0")}
	_, err = fx.svc.RecordSupply(ctx, second)
	require.NoError(t, err)
	pay := payReq(f.ID, "80")
	pay.Date = day(2)
	_, err = fx.svc.RecordPayment(ctx, pay)
	require.NoError(t, err)

	// WHEN: Building the full statement
	fs, err := fx.svc.Statement(ctx, f.ID, billing.StatementQuery{})
	require.NoError(t, err)

	// THEN: 3 rows, charges 250, paid 80, balance -170, matching the ledger
	assert.Equal(t, "Ramesh", fs.Farmer.Name)
	assert.Equal(t, "INR", fs.Settings.Currency)
	require.Len(t, fs.Statement.Rows, 3)
	assertDecimal(t, "250", fs.Statement.Totals.Charges)
	assertDecimal(t, "80", fs.Statement.Totals.Paid)
	assertDecimal(t, "-170", fs.Statement.Totals.Balance)
	assert.Equal(t, fx.balance(t, f.ID), fs.Statement.Closing.StringFixed(2))

	// A seeded window carries earlier activity as the opening balance.
	from := day(2)
	fs, err = fx.svc.Statement(ctx, f.ID, billing.StatementQuery{From: &from, SeedOpening: true})
	require.NoError(t, err)
	require.Len(t, fs.Statement.Rows, 2)
	assertDecimal(t, "-100", fs.Statement.Opening)
	assertDecimal(t, "-170", fs.Statement.Closing)
}

func TestService_Dashboard(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.farmer(t, "Ramesh", "0")
	_, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)

	d, err := fx.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalFarmers)
	assertDecimal(t, "200", d.PendingDues)
	assert.Equal(t, 1, d.TodaySupplies, "the service clock is on March 10")
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestService_UpdateSettings(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	s, err := fx.svc.Settings(ctx)
	require.NoError(t, err)
	assertDecimal(t, "100", s.DefaultRate)

	_, err = fx.svc.UpdateSettings(ctx, billing.Settings{DefaultRate: dec("0")})
	requireValidation(t, err, "default_rate", billing.CodeNonPositive)

	saved, err := fx.svc.UpdateSettings(ctx, billing.Settings{
		BusinessName:    "Patel Irrigation",
		DefaultRate:     dec("80"),
		FlowRatePerHour: dec("1200"),
	})
	require.NoError(t, err)
	assert.Equal(t, "INR", saved.Currency, "blank display fields fall back to defaults")

	// THEN: the saved settings are queued for the remote as an update
	items := fx.mem.SyncItems()
	require.Len(t, items, 1, "the rejected update queued nothing")
	assert.Equal(t, "settings", items[0].EntityType)
	assert.Equal(t, billing.SettingsID, items[0].EntityID)
	assert.Equal(t, billing.OpUpdate, items[0].Operation)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(items[0].Payload, &payload))
	assert.Equal(t, "Patel Irrigation", payload["business_name"])
	assert.Equal(t, "80", payload["default_hourly_rate"])

	f := fx.farmer(t, "Ramesh", "0")
	e, err := fx.svc.RecordSupply(ctx, hoursReq(f.ID, 2))
	require.NoError(t, err)
	assertDecimal(t, "160", e.Amount)
	assertDecimal(t, "2400", e.WaterUsed)
}
