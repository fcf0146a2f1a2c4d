// Package store provides an in-memory billing.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements billing.TxStore and the outbox queue. All methods take
// the lock; the view handed to WithTx callbacks runs under the lock already
// held by WithTx.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	farmers  map[billing.FarmerID]billing.Farmer
	supplies map[billing.SupplyID]billing.SupplyEntry
	payments map[billing.PaymentID]billing.Payment
	settings *billing.Settings
	audit    []billing.AuditEntry
	outbox   map[string]billing.SyncItem
}

func newState() *state {
	return &state{
		farmers:  make(map[billing.FarmerID]billing.Farmer),
		supplies: make(map[billing.SupplyID]billing.SupplyEntry),
		payments: make(map[billing.PaymentID]billing.Payment),
		outbox:   make(map[string]billing.SyncItem),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.farmers {
		c.farmers[k] = v
	}
	for k, v := range s.supplies {
		c.supplies[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	if s.settings != nil {
		cp := *s.settings
		c.settings = &cp
	}
	c.audit = append([]billing.AuditEntry(nil), s.audit...)
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return c
}

// =============================================================================
// LOCKED PUBLIC METHODS
// =============================================================================

func (m *Memory) read(fn func(*state) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.st)
}

func (m *Memory) write(fn func(*state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

func (m *Memory) GetFarmer(_ context.Context, id billing.FarmerID) (f billing.Farmer, err error) {
	err = m.read(func(s *state) error { f, err = s.getFarmer(id); return err })
	return f, err
}

func (m *Memory) ListFarmers(_ context.Context, includeInactive bool) (out []billing.Farmer, err error) {
	err = m.read(func(s *state) error { out = s.listFarmers(includeInactive); return nil })
	return out, err
}

func (m *Memory) SaveFarmer(_ context.Context, f billing.Farmer) error {
	return m.write(func(s *state) error { s.farmers[f.ID] = f; return nil })
}

func (m *Memory) SetBalance(_ context.Context, id billing.FarmerID, balance decimal.Decimal) error {
	return m.write(func(s *state) error { return s.setBalance(id, balance) })
}

func (m *Memory) DeleteFarmer(_ context.Context, id billing.FarmerID) error {
	return m.write(func(s *state) error { return s.deleteFarmer(id) })
}

func (m *Memory) GetSupplyEntry(_ context.Context, id billing.SupplyID) (e billing.SupplyEntry, err error) {
	err = m.read(func(s *state) error { e, err = s.getSupply(id); return err })
	return e, err
}

func (m *Memory) ListSupplyEntries(_ context.Context, f billing.RecordFilter) (out []billing.SupplyEntry, err error) {
	err = m.read(func(s *state) error { out = s.listSupplies(f); return nil })
	return out, err
}

func (m *Memory) SaveSupplyEntry(_ context.Context, e billing.SupplyEntry) error {
	return m.write(func(s *state) error { s.supplies[e.ID] = e; return nil })
}

func (m *Memory) DeleteSupplyEntry(_ context.Context, id billing.SupplyID) error {
	return m.write(func(s *state) error { return s.deleteSupply(id) })
}

func (m *Memory) GetPayment(_ context.Context, id billing.PaymentID) (p billing.Payment, err error) {
	err = m.read(func(s *state) error { p, err = s.getPayment(id); return err })
	return p, err
}

func (m *Memory) ListPayments(_ context.Context, f billing.RecordFilter) (out []billing.Payment, err error) {
	err = m.read(func(s *state) error { out = s.listPayments(f); return nil })
	return out, err
}

func (m *Memory) SavePayment(_ context.Context, p billing.Payment) error {
	return m.write(func(s *state) error { s.payments[p.ID] = p; return nil })
}

func (m *Memory) DeletePayment(_ context.Context, id billing.PaymentID) error {
	return m.write(func(s *state) error { return s.deletePayment(id) })
}

func (m *Memory) GetSettings(_ context.Context) (out billing.Settings, err error) {
	err = m.read(func(s *state) error { out = s.getSettings(); return nil })
	return out, err
}

func (m *Memory) SaveSettings(_ context.Context, settings billing.Settings) error {
	return m.write(func(s *state) error { s.settings = &settings; return nil })
}

func (m *Memory) AppendAudit(_ context.Context, e billing.AuditEntry) error {
	return m.write(func(s *state) error { s.audit = append(s.audit, e); return nil })
}

func (m *Memory) ListAudit(_ context.Context, f billing.AuditFilter) (out []billing.AuditEntry, err error) {
	err = m.read(func(s *state) error { out = s.listAudit(f); return nil })
	return out, err
}

func (m *Memory) Enqueue(_ context.Context, item billing.SyncItem) error {
	return m.write(func(s *state) error { return s.enqueue(item) })
}

// =============================================================================
// OUTBOX QUEUE
// =============================================================================

// Pending returns due pending items, oldest first. Only the oldest pending
// item of each record is eligible, so a backed-off create holds back the
// updates queued behind it.
func (m *Memory) Pending(_ context.Context, now time.Time, limit int) ([]billing.SyncItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	heads := make(map[[2]string]billing.SyncItem)
	for _, it := range m.st.outbox {
		if it.Status != billing.SyncPending {
			continue
		}
		key := [2]string{it.EntityType, it.EntityID}
		if head, ok := heads[key]; !ok || syncItemLess(it, head) {
			heads[key] = it
		}
	}

	var out []billing.SyncItem
	for _, it := range heads {
		if !it.NextAttemptAt.After(now) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return syncItemLess(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkDone(_ context.Context, id string) error {
	return m.updateItem(id, func(it *billing.SyncItem) {
		it.Status = billing.SyncDone
		it.LastError = ""
	})
}

func (m *Memory) MarkRetry(_ context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return m.updateItem(id, func(it *billing.SyncItem) {
		it.Attempts = attempts
		it.NextAttemptAt = next
		it.LastError = lastErr
	})
}

func (m *Memory) MarkFailed(_ context.Context, id string, attempts int, lastErr string) error {
	return m.updateItem(id, func(it *billing.SyncItem) {
		it.Status = billing.SyncFailed
		it.Attempts = attempts
		it.LastError = lastErr
	})
}

func (m *Memory) CountByStatus(_ context.Context) (map[billing.SyncStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[billing.SyncStatus]int)
	for _, it := range m.st.outbox {
		counts[it.Status]++
	}
	return counts, nil
}

// SyncItems returns every outbox item, oldest first.
func (m *Memory) SyncItems() []billing.SyncItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.SyncItem, 0, len(m.st.outbox))
	for _, it := range m.st.outbox {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return syncItemLess(out[i], out[j]) })
	return out
}

func syncItemLess(a, b billing.SyncItem) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (m *Memory) updateItem(id string, fn func(*billing.SyncItem)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.st.outbox[id]
	if !ok {
		return fmt.Errorf("sync item %q not found", id)
	}
	fn(&it)
	m.st.outbox[id] = it
	return nil
}

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

type txView struct {
	st *state
}

func (v *txView) GetFarmer(_ context.Context, id billing.FarmerID) (billing.Farmer, error) {
	return v.st.getFarmer(id)
}

func (v *txView) ListFarmers(_ context.Context, includeInactive bool) ([]billing.Farmer, error) {
	return v.st.listFarmers(includeInactive), nil
}

func (v *txView) SaveFarmer(_ context.Context, f billing.Farmer) error {
	v.st.farmers[f.ID] = f
	return nil
}

func (v *txView) SetBalance(_ context.Context, id billing.FarmerID, balance decimal.Decimal) error {
	return v.st.setBalance(id, balance)
}

func (v *txView) DeleteFarmer(_ context.Context, id billing.FarmerID) error {
	return v.st.deleteFarmer(id)
}

func (v *txView) GetSupplyEntry(_ context.Context, id billing.SupplyID) (billing.SupplyEntry, error) {
	return v.st.getSupply(id)
}

func (v *txView) ListSupplyEntries(_ context.Context, f billing.RecordFilter) ([]billing.SupplyEntry, error) {
	return v.st.listSupplies(f), nil
}

func (v *txView) SaveSupplyEntry(_ context.Context, e billing.SupplyEntry) error {
	v.st.supplies[e.ID] = e
	return nil
}

func (v *txView) DeleteSupplyEntry(_ context.Context, id billing.SupplyID) error {
	return v.st.deleteSupply(id)
}

func (v *txView) GetPayment(_ context.Context, id billing.PaymentID) (billing.Payment, error) {
	return v.st.getPayment(id)
}

func (v *txView) ListPayments(_ context.Context, f billing.RecordFilter) ([]billing.Payment, error) {
	return v.st.listPayments(f), nil
}

func (v *txView) SavePayment(_ context.Context, p billing.Payment) error {
	v.st.payments[p.ID] = p
	return nil
}

func (v *txView) DeletePayment(_ context.Context, id billing.PaymentID) error {
	return v.st.deletePayment(id)
}

func (v *txView) GetSettings(_ context.Context) (billing.Settings, error) {
	return v.st.getSettings(), nil
}

func (v *txView) SaveSettings(_ context.Context, settings billing.Settings) error {
	v.st.settings = &settings
	return nil
}

func (v *txView) AppendAudit(_ context.Context, e billing.AuditEntry) error {
	v.st.audit = append(v.st.audit, e)
	return nil
}

func (v *txView) ListAudit(_ context.Context, f billing.AuditFilter) ([]billing.AuditEntry, error) {
	return v.st.listAudit(f), nil
}

func (v *txView) Enqueue(_ context.Context, item billing.SyncItem) error {
	return v.st.enqueue(item)
}

// =============================================================================
// STATE OPERATIONS (caller holds the lock)
// =============================================================================

func (s *state) getFarmer(id billing.FarmerID) (billing.Farmer, error) {
	f, ok := s.farmers[id]
	if !ok {
		return billing.Farmer{}, billing.FarmerNotFound(id)
	}
	return f, nil
}

func (s *state) listFarmers(includeInactive bool) []billing.Farmer {
	out := make([]billing.Farmer, 0, len(s.farmers))
	for _, f := range s.farmers {
		if f.Active || includeInactive {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) setBalance(id billing.FarmerID, balance decimal.Decimal) error {
	f, ok := s.farmers[id]
	if !ok {
		return billing.FarmerNotFound(id)
	}
	f.Balance = balance
	s.farmers[id] = f
	return nil
}

func (s *state) deleteFarmer(id billing.FarmerID) error {
	if _, ok := s.farmers[id]; !ok {
		return billing.FarmerNotFound(id)
	}
	delete(s.farmers, id)
	for k, e := range s.supplies {
		if e.FarmerID == id {
			delete(s.supplies, k)
		}
	}
	for k, p := range s.payments {
		if p.FarmerID == id {
			delete(s.payments, k)
		}
	}
	return nil
}

func (s *state) getSupply(id billing.SupplyID) (billing.SupplyEntry, error) {
	e, ok := s.supplies[id]
	if !ok {
		return billing.SupplyEntry{}, billing.SupplyNotFound(id)
	}
	return e, nil
}

func (s *state) listSupplies(f billing.RecordFilter) []billing.SupplyEntry {
	var out []billing.SupplyEntry
	for _, e := range s.supplies {
		if f.Match(e.FarmerID, e.Date) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return recordLess(out[i].Date, out[j].Date, out[i].CreatedAt, out[j].CreatedAt, string(out[i].ID), string(out[j].ID))
	})
	return out
}

func (s *state) deleteSupply(id billing.SupplyID) error {
	if _, ok := s.supplies[id]; !ok {
		return billing.SupplyNotFound(id)
	}
	delete(s.supplies, id)
	return nil
}

func (s *state) getPayment(id billing.PaymentID) (billing.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return billing.Payment{}, billing.PaymentNotFound(id)
	}
	return p, nil
}

func (s *state) listPayments(f billing.RecordFilter) []billing.Payment {
	var out []billing.Payment
	for _, p := range s.payments {
		if f.Match(p.FarmerID, p.Date) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return recordLess(out[i].Date, out[j].Date, out[i].CreatedAt, out[j].CreatedAt, string(out[i].ID), string(out[j].ID))
	})
	return out
}

func (s *state) deletePayment(id billing.PaymentID) error {
	if _, ok := s.payments[id]; !ok {
		return billing.PaymentNotFound(id)
	}
	delete(s.payments, id)
	return nil
}

func (s *state) getSettings() billing.Settings {
	if s.settings == nil {
		return billing.DefaultSettings()
	}
	return *s.settings
}

func (s *state) enqueue(item billing.SyncItem) error {
	if _, exists := s.outbox[item.ID]; exists {
		return billing.ErrDuplicateRecord
	}
	if item.Status == "" {
		item.Status = billing.SyncPending
	}
	s.outbox[item.ID] = item
	return nil
}

func (s *state) listAudit(f billing.AuditFilter) []billing.AuditEntry {
	var out []billing.AuditEntry
	// Newest first.
	for i := len(s.audit) - 1; i >= 0; i-- {
		if f.Match(s.audit[i]) {
			out = append(out, s.audit[i])
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
	}
	return out
}

func recordLess(di, dj, ci, cj time.Time, idi, idj string) bool {
	if !di.Equal(dj) {
		return di.Before(dj)
	}
	if !ci.Equal(cj) {
		return ci.Before(cj)
	}
	return idi < idj
}
