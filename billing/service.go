/*
service.go - Orchestration of validation, derivation and ledger updates

PURPOSE:
  The single writer for farmers, supply entries, payments and settings.
  Every mutation follows the same shape:

    validate -> derive (duration, charge) -> WithTx {
        save record, apply balance delta, append audit, enqueue sync item
    }

  Nothing is written if validation fails, and the four writes commit or
  roll back together.

RATE ON EDIT:
  An edited supply entry keeps its frozen rate unless the request carries
  an explicit override or the entry moves to another farmer, in which case
  the rate is resolved again for the new farmer.

REASSIGNMENT:
  Moving a supply entry or payment to another farmer reverses the old
  contribution on the old farmer and applies the new one on the new
  farmer, in the same transaction.

RECONCILIATION:
  Reconcile replays a farmer's records and overwrites the stored balance
  if it differs. Differences above DriftEpsilon are logged and audited as
  drift; smaller ones are silently corrected rounding noise.

SEE ALSO:
  - ledger.go: ApplyLedgerDelta / CheckDrift
  - store.go: TxStore contract
  - outbox/: drains the sync items enqueued here
*/
package billing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Observer receives reconciliation outcomes. The metrics package provides
// the Prometheus-backed implementation.
type Observer interface {
	ObserveReconcile(result string, d Drift)
}

type nopObserver struct{}

func (nopObserver) ObserveReconcile(string, Drift) {}

// Reconcile results reported to the Observer.
const (
	ReconcileClean     = "clean"
	ReconcileCorrected = "corrected"
	ReconcileDrift     = "drift"
	ReconcileError     = "error"
)

type actorKey struct{}

// WithActor attaches the operator ID recorded in audit entries.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func actorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "system"
}

// Service applies billing operations against a TxStore.
type Service struct {
	store    TxStore
	now      func() time.Time
	newID    func() string
	logger   *log.Logger
	observer Observer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(gen func() string) Option { return func(s *Service) { s.newID = gen } }

func WithLogger(l *log.Logger) Option { return func(s *Service) { s.logger = l } }

func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   log.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// FARMERS
// =============================================================================

func (s *Service) CreateFarmer(ctx context.Context, p FarmerProfile) (Farmer, error) {
	if err := ValidateFarmerProfile(p); err != nil {
		return Farmer{}, err
	}
	now := s.now()
	f := Farmer{
		ID:           FarmerID(s.newID()),
		Name:         p.Name,
		Mobile:       p.Mobile,
		FarmLocation: p.FarmLocation,
		DefaultRate:  p.DefaultRate,
		Balance:      decimal.Zero,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveFarmer(ctx, f); err != nil {
			return err
		}
		zero := decimal.Zero
		if err := s.audit(ctx, tx, AuditFarmerCreated, "farmer", string(f.ID), f.ID, nil, &zero, nil); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, "farmer", string(f.ID), OpCreate, NewFarmerRecord(f))
	})
	if err != nil {
		return Farmer{}, err
	}
	return f, nil
}

func (s *Service) GetFarmer(ctx context.Context, id FarmerID) (Farmer, error) {
	return s.store.GetFarmer(ctx, id)
}

func (s *Service) ListFarmers(ctx context.Context, includeInactive bool) ([]Farmer, error) {
	return s.store.ListFarmers(ctx, includeInactive)
}

// UpdateFarmer edits the profile. The balance is never touched here.
func (s *Service) UpdateFarmer(ctx context.Context, id FarmerID, p FarmerProfile) (Farmer, error) {
	if err := ValidateFarmerProfile(p); err != nil {
		return Farmer{}, err
	}
	var out Farmer
	err := s.store.WithTx(ctx, func(tx Store) error {
		f, err := tx.GetFarmer(ctx, id)
		if err != nil {
			return err
		}
		f.Name = p.Name
		f.Mobile = p.Mobile
		f.FarmLocation = p.FarmLocation
		f.DefaultRate = p.DefaultRate
		f.UpdatedAt = s.now()
		if err := tx.SaveFarmer(ctx, f); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, AuditFarmerUpdated, "farmer", string(id), id, nil, nil, nil); err != nil {
			return err
		}
		out = f
		return s.enqueue(ctx, tx, "farmer", string(id), OpUpdate, NewFarmerRecord(f))
	})
	return out, err
}

// DeactivateFarmer hides the farmer from new entries and the dashboard.
// Existing records and the balance are kept.
func (s *Service) DeactivateFarmer(ctx context.Context, id FarmerID) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		f, err := tx.GetFarmer(ctx, id)
		if err != nil {
			return err
		}
		if !f.Active {
			return nil
		}
		f.Active = false
		f.UpdatedAt = s.now()
		if err := tx.SaveFarmer(ctx, f); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, AuditFarmerDeactivated, "farmer", string(id), id, nil, nil, nil); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, "farmer", string(id), OpUpdate, NewFarmerRecord(f))
	})
}

// DeleteFarmer removes the farmer together with all owned records.
func (s *Service) DeleteFarmer(ctx context.Context, id FarmerID) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		f, err := tx.GetFarmer(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteFarmer(ctx, id); err != nil {
			return err
		}
		old := f.Balance
		if err := s.audit(ctx, tx, AuditFarmerDeleted, "farmer", string(id), id, &old, nil, map[string]string{"name": f.Name}); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, "farmer", string(id), OpDelete, deletedRecord{ID: string(id)})
	})
}

// =============================================================================
// SUPPLY ENTRIES
// =============================================================================

func (s *Service) GetSupplyEntry(ctx context.Context, id SupplyID) (SupplyEntry, error) {
	return s.store.GetSupplyEntry(ctx, id)
}

func (s *Service) ListSupplyEntries(ctx context.Context, filter RecordFilter) ([]SupplyEntry, error) {
	return s.store.ListSupplyEntries(ctx, filter)
}

// RecordSupply validates, prices and stores a new supply entry and debits
// the farmer's balance.
func (s *Service) RecordSupply(ctx context.Context, req SupplyRequest) (SupplyEntry, error) {
	var out SupplyEntry
	err := s.store.WithTx(ctx, func(tx Store) error {
		farmer, err := lookupFarmer(ctx, tx, req.FarmerID)
		if err != nil {
			return err
		}
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		rate := ResolveRate(req.RateOverride, farmerRate(farmer), settings)
		entry, err := s.priceSupply(req, farmer, rate, settings)
		if err != nil {
			return err
		}
		now := s.now()
		entry.ID = SupplyID(s.newID())
		entry.CreatedAt = now
		entry.UpdatedAt = now

		if err := tx.SaveSupplyEntry(ctx, entry); err != nil {
			return err
		}
		next := SupplyContribution(entry)
		if err := s.moveBalance(ctx, tx, *farmer, nil, &next, AuditSupplyCreated, "supply", string(entry.ID)); err != nil {
			return err
		}
		out = entry
		return s.enqueue(ctx, tx, "supply", string(entry.ID), OpCreate, NewSupplyRecord(entry))
	})
	return out, err
}

// UpdateSupply edits an entry, reassigning it if the farmer changed.
func (s *Service) UpdateSupply(ctx context.Context, id SupplyID, req SupplyRequest) (SupplyEntry, error) {
	var out SupplyEntry
	err := s.store.WithTx(ctx, func(tx Store) error {
		old, err := tx.GetSupplyEntry(ctx, id)
		if err != nil {
			return err
		}
		farmer, err := lookupFarmer(ctx, tx, req.FarmerID)
		if err != nil {
			return err
		}
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		rate := old.Rate
		if req.RateOverride != nil || req.FarmerID != old.FarmerID {
			rate = ResolveRate(req.RateOverride, farmerRate(farmer), settings)
		}
		entry, err := s.priceSupply(req, farmer, rate, settings)
		if err != nil {
			return err
		}
		entry.ID = old.ID
		entry.CreatedAt = old.CreatedAt
		entry.UpdatedAt = s.now()

		if err := tx.SaveSupplyEntry(ctx, entry); err != nil {
			return err
		}
		prev, next := SupplyContribution(old), SupplyContribution(entry)
		if err := s.reassign(ctx, tx, old.FarmerID, *farmer, prev, next, AuditSupplyUpdated, "supply", string(id)); err != nil {
			return err
		}
		out = entry
		return s.enqueue(ctx, tx, "supply", string(id), OpUpdate, NewSupplyRecord(entry))
	})
	return out, err
}

// DeleteSupply removes an entry and credits its amount back.
func (s *Service) DeleteSupply(ctx context.Context, id SupplyID) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		old, err := tx.GetSupplyEntry(ctx, id)
		if err != nil {
			return err
		}
		farmer, err := tx.GetFarmer(ctx, old.FarmerID)
		if err != nil {
			return err
		}
		if err := tx.DeleteSupplyEntry(ctx, id); err != nil {
			return err
		}
		prev := SupplyContribution(old)
		if err := s.moveBalance(ctx, tx, farmer, &prev, nil, AuditSupplyDeleted, "supply", string(id)); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, "supply", string(id), OpDelete, deletedRecord{ID: string(id)})
	})
}

func (s *Service) priceSupply(req SupplyRequest, farmer *Farmer, rate decimal.Decimal, settings Settings) (SupplyEntry, error) {
	hours, err := ValidateSupplyRequest(req, farmer, rate)
	if err != nil {
		return SupplyEntry{}, err
	}
	charge, err := CalculateCharge(hours, rate, settings.FlowRate())
	if err != nil {
		return SupplyEntry{}, err
	}
	return SupplyEntry{
		FarmerID:      req.FarmerID,
		Date:          req.Date,
		Billing:       req.Billing,
		TotalTimeUsed: hours,
		WaterUsed:     charge.WaterVolume,
		Rate:          rate,
		Amount:        charge.Amount,
		Remarks:       req.Remarks,
	}, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Service) GetPayment(ctx context.Context, id PaymentID) (Payment, error) {
	return s.store.GetPayment(ctx, id)
}

func (s *Service) ListPayments(ctx context.Context, filter RecordFilter) ([]Payment, error) {
	return s.store.ListPayments(ctx, filter)
}

// RecordPayment stores a payment and credits the farmer's balance.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	var out Payment
	err := s.store.WithTx(ctx, func(tx Store) error {
		farmer, err := lookupFarmer(ctx, tx, req.FarmerID)
		if err != nil {
			return err
		}
		if err := ValidatePaymentRequest(req, farmer); err != nil {
			return err
		}
		now := s.now()
		p := paymentFromRequest(req)
		p.ID = PaymentID(s.newID())
		p.CreatedAt = now
		p.UpdatedAt = now

		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		next := PaymentContribution(p)
		if err := s.moveBalance(ctx, tx, *farmer, nil, &next, AuditPaymentCreated, "payment", string(p.ID)); err != nil {
			return err
		}
		out = p
		return s.enqueue(ctx, tx, "payment", string(p.ID), OpCreate, NewPaymentRecord(p))
	})
	return out, err
}

// UpdatePayment edits a payment, reassigning it if the farmer changed.
func (s *Service) UpdatePayment(ctx context.Context, id PaymentID, req PaymentRequest) (Payment, error) {
	var out Payment
	err := s.store.WithTx(ctx, func(tx Store) error {
		old, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		farmer, err := lookupFarmer(ctx, tx, req.FarmerID)
		if err != nil {
			return err
		}
		if err := ValidatePaymentRequest(req, farmer); err != nil {
			return err
		}
		p := paymentFromRequest(req)
		p.ID = old.ID
		p.CreatedAt = old.CreatedAt
		p.UpdatedAt = s.now()

		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		prev, next := PaymentContribution(old), PaymentContribution(p)
		if err := s.reassign(ctx, tx, old.FarmerID, *farmer, prev, next, AuditPaymentUpdated, "payment", string(id)); err != nil {
			return err
		}
		out = p
		return s.enqueue(ctx, tx, "payment", string(id), OpUpdate, NewPaymentRecord(p))
	})
	return out, err
}

// DeletePayment removes a payment and debits its amount back.
func (s *Service) DeletePayment(ctx context.Context, id PaymentID) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		old, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		farmer, err := tx.GetFarmer(ctx, old.FarmerID)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, id); err != nil {
			return err
		}
		prev := PaymentContribution(old)
		if err := s.moveBalance(ctx, tx, farmer, &prev, nil, AuditPaymentDeleted, "payment", string(id)); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, "payment", string(id), OpDelete, deletedRecord{ID: string(id)})
	})
}

func paymentFromRequest(req PaymentRequest) Payment {
	return Payment{
		FarmerID:  req.FarmerID,
		Date:      req.Date,
		Amount:    Round2(req.Amount),
		Method:    req.Method,
		Reference: req.Reference,
		Remarks:   req.Remarks,
	}
}

// =============================================================================
// LEDGER HELPERS
// =============================================================================

// moveBalance applies one delta to one farmer and audits it.
func (s *Service) moveBalance(ctx context.Context, tx Store, f Farmer, prev, next *Contribution,
	action AuditAction, entityType, entityID string) error {
	old := f.Balance
	updated := ApplyLedgerDelta(old, prev, next)
	if err := tx.SetBalance(ctx, f.ID, updated); err != nil {
		return err
	}
	return s.audit(ctx, tx, action, entityType, entityID, f.ID, &old, &updated, nil)
}

// reassign applies an edit. If the record stays with the same farmer it is
// one adjustment; otherwise prev is reversed on the old farmer and next is
// applied on the new one.
func (s *Service) reassign(ctx context.Context, tx Store, oldFarmerID FarmerID, newFarmer Farmer,
	prev, next Contribution, action AuditAction, entityType, entityID string) error {
	if oldFarmerID == newFarmer.ID {
		return s.moveBalance(ctx, tx, newFarmer, &prev, &next, action, entityType, entityID)
	}
	oldFarmer, err := tx.GetFarmer(ctx, oldFarmerID)
	if err != nil {
		return err
	}
	if err := s.moveBalance(ctx, tx, oldFarmer, &prev, nil, action, entityType, entityID); err != nil {
		return err
	}
	return s.moveBalance(ctx, tx, newFarmer, nil, &next, action, entityType, entityID)
}

// lookupFarmer returns nil, nil for a missing farmer so validation can
// report it in order with the other checks.
func lookupFarmer(ctx context.Context, tx Store, id FarmerID) (*Farmer, error) {
	if id == "" {
		return nil, newValidationError("farmer_id", CodeRequired, "farmer is required")
	}
	f, err := tx.GetFarmer(ctx, id)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func farmerRate(f *Farmer) decimal.Decimal {
	if f == nil {
		return decimal.Zero
	}
	return f.DefaultRate
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileResult is the outcome for one farmer.
type ReconcileResult struct {
	Drift     Drift
	Corrected bool
}

// Reconcile replays one farmer's records and repairs the stored balance.
// Running it twice in a row leaves the balance unchanged.
func (s *Service) Reconcile(ctx context.Context, id FarmerID) (ReconcileResult, error) {
	var res ReconcileResult
	err := s.store.WithTx(ctx, func(tx Store) error {
		f, err := tx.GetFarmer(ctx, id)
		if err != nil {
			return err
		}
		filter := RecordFilter{FarmerID: id}
		entries, err := tx.ListSupplyEntries(ctx, filter)
		if err != nil {
			return err
		}
		payments, err := tx.ListPayments(ctx, filter)
		if err != nil {
			return err
		}
		res.Drift = CheckDrift(f, entries, payments)
		if !res.Drift.NeedsCorrection() {
			return nil
		}
		if err := tx.SetBalance(ctx, id, res.Drift.Recomputed); err != nil {
			return err
		}
		res.Corrected = true
		if !res.Drift.Significant() {
			return nil
		}
		stored, recomputed := res.Drift.Stored, res.Drift.Recomputed
		return s.audit(ctx, tx, AuditReconciliation, "farmer", string(id), id, &stored, &recomputed,
			map[string]string{"diff": res.Drift.Diff().StringFixed(2)})
	})
	if err != nil {
		s.observer.ObserveReconcile(ReconcileError, res.Drift)
		return res, err
	}

	switch {
	case res.Drift.Significant():
		s.logger.Printf("[Reconcile] %v", res.Drift.Err())
		s.observer.ObserveReconcile(ReconcileDrift, res.Drift)
	case res.Corrected:
		s.observer.ObserveReconcile(ReconcileCorrected, res.Drift)
	default:
		s.observer.ObserveReconcile(ReconcileClean, res.Drift)
	}
	return res, nil
}

// ReconcileAll reconciles every farmer, including inactive ones. A failure
// on one farmer is logged and does not stop the others; the first error is
// returned.
func (s *Service) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	farmers, err := s.store.ListFarmers(ctx, true)
	if err != nil {
		return nil, err
	}
	results := make([]ReconcileResult, 0, len(farmers))
	var firstErr error
	for _, f := range farmers {
		res, err := s.Reconcile(ctx, f.ID)
		if err != nil {
			s.logger.Printf("[Reconcile] farmer %s: %v", f.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}
	return results, firstErr
}

// =============================================================================
// STATEMENTS, STATS, DASHBOARD
// =============================================================================

// StatementQuery selects the statement window. With SeedOpening set, the
// opening balance is the farmer's net activity before From.
type StatementQuery struct {
	From        *time.Time
	To          *time.Time
	SeedOpening bool
}

// FarmerStatement bundles a statement with what a receipt needs to render it.
type FarmerStatement struct {
	Farmer    Farmer
	Settings  Settings
	Statement Statement
}

func (s *Service) Statement(ctx context.Context, id FarmerID, q StatementQuery) (FarmerStatement, error) {
	f, err := s.store.GetFarmer(ctx, id)
	if err != nil {
		return FarmerStatement{}, err
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return FarmerStatement{}, err
	}
	filter := RecordFilter{FarmerID: id}
	entries, err := s.store.ListSupplyEntries(ctx, filter)
	if err != nil {
		return FarmerStatement{}, err
	}
	payments, err := s.store.ListPayments(ctx, filter)
	if err != nil {
		return FarmerStatement{}, err
	}
	opts := StatementOptions{From: q.From, To: q.To, Opening: decimal.Zero}
	if q.SeedOpening && q.From != nil {
		opts.Opening = OpeningBalanceBefore(entries, payments, *q.From)
	}
	return FarmerStatement{
		Farmer:    f,
		Settings:  settings,
		Statement: BuildStatement(entries, payments, opts),
	}, nil
}

func (s *Service) FarmerStats(ctx context.Context, id FarmerID) (FarmerStats, error) {
	if _, err := s.store.GetFarmer(ctx, id); err != nil {
		return FarmerStats{}, err
	}
	filter := RecordFilter{FarmerID: id}
	entries, err := s.store.ListSupplyEntries(ctx, filter)
	if err != nil {
		return FarmerStats{}, err
	}
	payments, err := s.store.ListPayments(ctx, filter)
	if err != nil {
		return FarmerStats{}, err
	}
	return ComputeFarmerStats(id, entries, payments), nil
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	farmers, err := s.store.ListFarmers(ctx, false)
	if err != nil {
		return Dashboard{}, err
	}
	entries, err := s.store.ListSupplyEntries(ctx, RecordFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	payments, err := s.store.ListPayments(ctx, RecordFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	return ComputeDashboard(farmers, entries, payments, s.now()), nil
}

// =============================================================================
// SETTINGS AND AUDIT
// =============================================================================

// SettingsID is the entity id of the single settings record in the audit
// log and the sync outbox.
const SettingsID = "default"

func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return s.store.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, next Settings) (Settings, error) {
	if !next.DefaultRate.IsPositive() {
		return Settings{}, newValidationError("default_rate", CodeNonPositive, "default rate must be greater than zero")
	}
	if next.FlowRatePerHour.IsNegative() {
		return Settings{}, newValidationError("flow_rate_per_hour", CodeNegative, "flow rate cannot be negative")
	}
	defaults := DefaultSettings()
	if next.Currency == "" {
		next.Currency = defaults.Currency
	}
	if next.CurrencySymbol == "" {
		next.CurrencySymbol = defaults.CurrencySymbol
	}
	if next.DateFormat == "" {
		next.DateFormat = defaults.DateFormat
	}
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveSettings(ctx, next); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, AuditSettingsUpdated, "settings", SettingsID, "", nil, nil,
			map[string]string{"default_rate": next.DefaultRate.String()}); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, "settings", SettingsID, OpUpdate, NewSettingsRecord(next, s.now()))
	})
	if err != nil {
		return Settings{}, err
	}
	return next, nil
}

func (s *Service) AuditLog(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	return s.store.ListAudit(ctx, filter)
}

func (s *Service) audit(ctx context.Context, tx Store, action AuditAction, entityType, entityID string,
	farmerID FarmerID, oldBal, newBal *decimal.Decimal, payload map[string]string) error {
	return tx.AppendAudit(ctx, AuditEntry{
		ID:         s.newID(),
		Timestamp:  s.now(),
		ActorID:    actorFrom(ctx),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		FarmerID:   farmerID,
		OldBalance: oldBal,
		NewBalance: newBal,
		Payload:    payload,
	})
}

func (s *Service) enqueue(ctx context.Context, tx Store, entityType, entityID string, op SyncOperation, record any) error {
	now := s.now()
	if err := tx.Enqueue(ctx, SyncItem{
		ID:            s.newID(),
		EntityType:    entityType,
		EntityID:      entityID,
		Operation:     op,
		Payload:       encodePayload(record),
		Status:        SyncPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}); err != nil {
		return fmt.Errorf("enqueue %s %s: %w", entityType, entityID, err)
	}
	return nil
}
