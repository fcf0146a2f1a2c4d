/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	irrigation data. Every record goes through billing.Service, so balances,
	audit entries and outbox items are produced exactly as in normal use.

AVAILABLE SCENARIOS:

	single-farmer:  One farmer, meter-billed supplies, one partial payment
	mixed-methods:  Meter and clock billing, overnight session, rate overrides
	season-dues:    Several farmers with dues, an advance and an inactive account

HOW SCENARIOS WORK:
 1. Reset: delete every farmer (records cascade) and restore default settings
 2. Create farmers
 3. Record supply entries and payments dated relative to today

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mixed-methods"}

NOTE:

	Scenarios wipe all farmers. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and error helpers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
)

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-farmer",
		Name:        "Single Farmer",
		Description: "Three meter-billed supplies at the default rate and one partial payment",
	},
	{
		ID:          "mixed-methods",
		Name:        "Mixed Billing Methods",
		Description: "Meter and clock billing, an overnight session with a pause, farmer and per-entry rates",
	},
	{
		ID:          "season-dues",
		Name:        "Season Dues",
		Description: "Several farmers with outstanding dues, one paid in advance, one deactivated",
	},
}

type scenarioLoader func(ctx context.Context, svc *billing.Service, today time.Time) error

var scenarioLoaders = map[string]scenarioLoader{
	"single-farmer": loadSingleFarmerScenario,
	"mixed-methods": loadMixedMethodsScenario,
	"season-dues":   loadSeasonDuesScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the data and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := resetData(ctx, h.Service); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset data", err)
		return
	}
	if err := load(ctx, h.Service, dayOf(h.now())); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func resetData(ctx context.Context, svc *billing.Service) error {
	farmers, err := svc.ListFarmers(ctx, true)
	if err != nil {
		return err
	}
	for _, f := range farmers {
		if err := svc.DeleteFarmer(ctx, f.ID); err != nil {
			return fmt.Errorf("delete farmer %s: %w", f.ID, err)
		}
	}
	_, err = svc.UpdateSettings(ctx, billing.DefaultSettings())
	return err
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadSingleFarmerScenario(ctx context.Context, svc *billing.Service, today time.Time) error {
	s := seeder{ctx: ctx, svc: svc, today: today}

	// 1h + 1h30 + 2h15 at 100/h = 475, 300 paid
	ramesh := s.farmer("Ramesh Patil", "9800000001", "Survey 14, Canal Road", "")
	s.meter(ramesh, 20, "120.00", "121.00", "")
	s.meter(ramesh, 13, "121.00", "122.30", "")
	s.payment(ramesh, 10, "300", billing.PayCash, "")
	s.meter(ramesh, 6, "122.30", "124.45", "")
	return s.err
}

func loadMixedMethodsScenario(ctx context.Context, svc *billing.Service, today time.Time) error {
	s := seeder{ctx: ctx, svc: svc, today: today}

	sita := s.farmer("Sita Devi", "9800000002", "Lower field", "120")
	s.meter(sita, 9, "40.15", "43.45", "")
	s.clock(sita, 7, "22:00", "01:30", "0.5", "")
	s.clock(sita, 2, "06:00", "08:15", "", "90")
	s.payment(sita, 1, "500", billing.PayUPI, "UTR4401223")

	mohan := s.farmer("Mohan Kumar", "9800000003", "Well side plot", "")
	s.clock(mohan, 5, "14:00", "17:20", "0.25", "")
	s.meter(mohan, 3, "7.50", "9.10", "")
	return s.err
}

func loadSeasonDuesScenario(ctx context.Context, svc *billing.Service, today time.Time) error {
	s := seeder{ctx: ctx, svc: svc, today: today}

	arjun := s.farmer("Arjun Singh", "9800000004", "North block", "")
	for i, start := range []string{"10.00", "12.30", "15.00", "17.45"} {
		end := []string{"12.30", "15.00", "17.45", "20.00"}[i]
		s.meter(arjun, 40-7*i, start, end, "")
	}
	s.payment(arjun, 12, "400", billing.PayBankTransfer, "NEFT-88213")

	lakshmi := s.farmer("Lakshmi Bai", "9800000005", "River bank", "110")
	s.payment(lakshmi, 30, "1000", billing.PayCheque, "CHQ-000412")
	s.clock(lakshmi, 18, "05:30", "09:00", "", "")

	gopal := s.farmer("Gopal Rao", "9800000006", "", "")
	s.meter(gopal, 25, "3.00", "6.20", "")
	if s.err == nil {
		s.err = svc.DeactivateFarmer(ctx, gopal)
	}
	return s.err
}

// =============================================================================
// SEED HELPERS
// =============================================================================

// seeder records through the service and keeps the first error, so loaders
// read as a flat list of records.
type seeder struct {
	ctx   context.Context
	svc   *billing.Service
	today time.Time
	err   error
}

func (s *seeder) farmer(name, mobile, location, rate string) billing.FarmerID {
	if s.err != nil {
		return ""
	}
	p := billing.FarmerProfile{Name: name, Mobile: mobile, FarmLocation: location}
	if rate != "" {
		p.DefaultRate = decimal.RequireFromString(rate)
	}
	f, err := s.svc.CreateFarmer(s.ctx, p)
	s.err = err
	return f.ID
}

func (s *seeder) meter(id billing.FarmerID, daysAgo int, start, end, rate string) {
	from, to := decimal.RequireFromString(start), decimal.RequireFromString(end)
	s.supply(id, daysAgo, billing.RawSupplyInput{Method: billing.MethodMeter, MeterStart: &from, MeterEnd: &to}, rate)
}

func (s *seeder) clock(id billing.FarmerID, daysAgo int, start, stop, pause, rate string) {
	raw := billing.RawSupplyInput{Method: billing.MethodTime, StartTime: start, StopTime: stop}
	if pause != "" {
		p := decimal.RequireFromString(pause)
		raw.Pause = &p
	}
	s.supply(id, daysAgo, raw, rate)
}

func (s *seeder) supply(id billing.FarmerID, daysAgo int, raw billing.RawSupplyInput, rate string) {
	if s.err != nil {
		return
	}
	in, err := raw.Billing()
	if err != nil {
		s.err = err
		return
	}
	req := billing.SupplyRequest{FarmerID: id, Date: s.today.AddDate(0, 0, -daysAgo), Billing: in}
	if rate != "" {
		r := decimal.RequireFromString(rate)
		req.RateOverride = &r
	}
	_, s.err = s.svc.RecordSupply(s.ctx, req)
}

func (s *seeder) payment(id billing.FarmerID, daysAgo int, amount string, method billing.PaymentMethod, ref string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.RecordPayment(s.ctx, billing.PaymentRequest{
		FarmerID:  id,
		Date:      s.today.AddDate(0, 0, -daysAgo),
		Amount:    decimal.RequireFromString(amount),
		Method:    method,
		Reference: ref,
	})
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
