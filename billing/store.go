/*
store.go - Persistence port for farmers, supply entries, payments and settings

PURPOSE:
  Defines the interface between the billing engine and the database. The
  engine never owns global state; the Service reads records through Store,
  runs the pure calculations, and writes the results back.

KEY INTERFACES:
  Store:   CRUD for every record type, audit log, sync outbox
  TxStore: Store + WithTx for atomic multi-record mutations

ATOMICITY:
  Every Service mutation (record + balance + audit + outbox item) runs inside
  one WithTx call. Either all of it is written or none of it is.

CASCADE:
  DeleteFarmer removes the farmer's supply entries and payments as well.

IMPLEMENTATIONS:
  - billing/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - service.go: the only writer
  - outbox/: consumes the sync items enqueued here
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

// RecordFilter selects supply entries or payments. Zero values match all.
type RecordFilter struct {
	FarmerID FarmerID
	From     *time.Time
	To       *time.Time
}

// Match applies the filter in memory. Store implementations that cannot
// push the filter down use it directly.
func (f RecordFilter) Match(farmerID FarmerID, date time.Time) bool {
	if f.FarmerID != "" && f.FarmerID != farmerID {
		return false
	}
	return InWindow(date, f.From, f.To)
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Farmers. GetFarmer returns a NotFoundError if the farmer is missing.
	GetFarmer(ctx context.Context, id FarmerID) (Farmer, error)
	ListFarmers(ctx context.Context, includeInactive bool) ([]Farmer, error)
	SaveFarmer(ctx context.Context, f Farmer) error
	SetBalance(ctx context.Context, id FarmerID, balance decimal.Decimal) error
	// DeleteFarmer hard-deletes the farmer and every owned entry and payment.
	DeleteFarmer(ctx context.Context, id FarmerID) error

	// Supply entries, ordered by date then creation time.
	GetSupplyEntry(ctx context.Context, id SupplyID) (SupplyEntry, error)
	ListSupplyEntries(ctx context.Context, filter RecordFilter) ([]SupplyEntry, error)
	SaveSupplyEntry(ctx context.Context, e SupplyEntry) error
	DeleteSupplyEntry(ctx context.Context, id SupplyID) error

	// Payments, ordered by date then creation time.
	GetPayment(ctx context.Context, id PaymentID) (Payment, error)
	ListPayments(ctx context.Context, filter RecordFilter) ([]Payment, error)
	SavePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id PaymentID) error

	// Settings. GetSettings returns DefaultSettings() if none were saved.
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	// Audit log, append-only.
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)

	// Enqueue adds an item to the remote-sync outbox.
	Enqueue(ctx context.Context, item SyncItem) error
}

// TxStore wraps Store with transaction support.
// If fn returns an error the transaction is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG
// =============================================================================

type AuditAction string

const (
	AuditFarmerCreated     AuditAction = "farmer_created"
	AuditFarmerUpdated     AuditAction = "farmer_updated"
	AuditFarmerDeactivated AuditAction = "farmer_deactivated"
	AuditFarmerDeleted     AuditAction = "farmer_deleted"
	AuditSupplyCreated     AuditAction = "supply_created"
	AuditSupplyUpdated     AuditAction = "supply_updated"
	AuditSupplyDeleted     AuditAction = "supply_deleted"
	AuditPaymentCreated    AuditAction = "payment_created"
	AuditPaymentUpdated    AuditAction = "payment_updated"
	AuditPaymentDeleted    AuditAction = "payment_deleted"
	AuditSettingsUpdated   AuditAction = "settings_updated"
	AuditReconciliation    AuditAction = "reconciliation"
)

// AuditEntry records who changed what. Old/New carry the balance before and
// after the change for farmer-affecting actions.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string
	Action     AuditAction
	EntityType string
	EntityID   string
	FarmerID   FarmerID
	OldBalance *decimal.Decimal
	NewBalance *decimal.Decimal
	Payload    map[string]string
}

type AuditFilter struct {
	FarmerID *FarmerID
	Actions  []AuditAction
	From     *time.Time
	To       *time.Time
	Limit    int
}

// Match applies the filter in memory.
func (f AuditFilter) Match(e AuditEntry) bool {
	if f.FarmerID != nil && e.FarmerID != *f.FarmerID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// SYNC OUTBOX ITEM
// =============================================================================

type SyncOperation string

const (
	OpCreate SyncOperation = "create"
	OpUpdate SyncOperation = "update"
	OpDelete SyncOperation = "delete"
)

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncDone    SyncStatus = "done"
	SyncFailed  SyncStatus = "failed"
)

// SyncItem is an already-computed record waiting to be pushed to the remote
// store. Payload is the JSON body; it is never recomputed on retry.
type SyncItem struct {
	ID            string
	EntityType    string
	EntityID      string
	Operation     SyncOperation
	Payload       []byte
	Attempts      int
	Status        SyncStatus
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}
