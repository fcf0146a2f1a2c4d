/*
Package sqlite provides a SQLite-backed implementation of billing.TxStore.

PURPOSE:
  Persists farmers, supply entries, payments, settings, the audit log and
  the sync outbox. The same Store value also satisfies outbox.Queue so the
  dispatcher drains the queue the billing Service writes to.

KEY TABLES:
  farmers:        Profile + stored running balance
  supply_entries: Raw billing inputs + derived hours, water, rate, amount
  payments:       Credits
  settings:       Single row (id = 1); defaults apply until first save
  audit_logs:     Append-only change history
  sync_queue:     Outbox items awaiting remote delivery

CASCADE:
  supply_entries and payments reference farmers ON DELETE CASCADE, so
  DeleteFarmer removes the owned records in the same statement. Farmers are
  saved with an upsert (never INSERT OR REPLACE, which would delete and
  re-insert the row and fire the cascade).

NUMBERS:
  Money, hours and readings are stored as decimal TEXT, never REAL, so a
  value read back is exactly the value written.

CONCURRENCY:
  The pool is limited to one connection. SQLite allows a single writer
  anyway, and ":memory:" databases are per-connection.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for crash recovery.

USAGE:
  store, err := sqlite.New("./data/water.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := billing.NewService(store)

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
)

// Timestamps are stored in UTC with a fixed-width layout so they sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements billing.TxStore and outbox.Queue using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS farmers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mobile TEXT NOT NULL DEFAULT '',
		farm_location TEXT NOT NULL DEFAULT '',
		default_rate TEXT NOT NULL DEFAULT '0',
		balance TEXT NOT NULL DEFAULT '0',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_farmers_active
		ON farmers(is_active, name);

	CREATE TABLE IF NOT EXISTS supply_entries (
		id TEXT PRIMARY KEY,
		farmer_id TEXT NOT NULL REFERENCES farmers(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		billing_method TEXT NOT NULL CHECK (billing_method IN ('meter', 'time')),
		meter_reading_start TEXT,
		meter_reading_end TEXT,
		start_time TEXT,
		stop_time TEXT,
		pause_duration TEXT,
		total_time_used TEXT NOT NULL,
		total_water_used TEXT NOT NULL,
		rate TEXT NOT NULL,
		amount TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Statement and reconciliation hot path
	CREATE INDEX IF NOT EXISTS idx_supply_entries_farmer_date
		ON supply_entries(farmer_id, date, created_at);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		farmer_id TEXT NOT NULL REFERENCES farmers(id) ON DELETE CASCADE,
		payment_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_farmer_date
		ON payments(farmer_id, payment_date, created_at);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		business_name TEXT NOT NULL DEFAULT '',
		business_phone TEXT NOT NULL DEFAULT '',
		business_address TEXT NOT NULL DEFAULT '',
		default_rate TEXT NOT NULL,
		flow_rate_per_hour TEXT NOT NULL,
		currency TEXT NOT NULL,
		currency_symbol TEXT NOT NULL,
		date_format TEXT NOT NULL
	);

	-- No foreign key: audit rows outlive deleted farmers.
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		farmer_id TEXT NOT NULL DEFAULT '',
		old_balance TEXT,
		new_balance TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_farmer
		ON audit_logs(farmer_id, timestamp);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		payload BLOB NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		last_error TEXT NOT NULL DEFAULT '',
		next_attempt_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sync_queue_due
		ON sync_queue(status, next_attempt_at, created_at);

	CREATE INDEX IF NOT EXISTS idx_sync_queue_entity
		ON sync_queue(entity_type, entity_id, status, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements billing.Store against either the pool or a transaction.
type queries struct {
	q dbtx
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// FARMERS
// =============================================================================

const farmerColumns = `id, name, mobile, farm_location, default_rate, balance, is_active, created_at, updated_at`

func (s *queries) GetFarmer(ctx context.Context, id billing.FarmerID) (billing.Farmer, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE id = ?`, id)
	f, err := scanFarmer(row)
	if err == sql.ErrNoRows {
		return billing.Farmer{}, billing.FarmerNotFound(id)
	}
	return f, err
}

func (s *queries) ListFarmers(ctx context.Context, includeInactive bool) ([]billing.Farmer, error) {
	query := `SELECT ` + farmerColumns + ` FROM farmers`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query farmers: %w", err)
	}
	defer rows.Close()

	var farmers []billing.Farmer
	for rows.Next() {
		f, err := scanFarmer(rows)
		if err != nil {
			return nil, err
		}
		farmers = append(farmers, f)
	}
	return farmers, rows.Err()
}

func (s *queries) SaveFarmer(ctx context.Context, f billing.Farmer) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO farmers (`+farmerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mobile = excluded.mobile,
			farm_location = excluded.farm_location,
			default_rate = excluded.default_rate,
			balance = excluded.balance,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`,
		f.ID, f.Name, f.Mobile, f.FarmLocation,
		f.DefaultRate.String(), f.Balance.String(), boolInt(f.Active),
		formatTS(f.CreatedAt), formatTS(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save farmer: %w", err)
	}
	return nil
}

func (s *queries) SetBalance(ctx context.Context, id billing.FarmerID, balance decimal.Decimal) error {
	res, err := s.q.ExecContext(ctx, `UPDATE farmers SET balance = ? WHERE id = ?`, balance.String(), id)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return requireRow(res, billing.FarmerNotFound(id))
}

func (s *queries) DeleteFarmer(ctx context.Context, id billing.FarmerID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM farmers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete farmer: %w", err)
	}
	return requireRow(res, billing.FarmerNotFound(id))
}

func scanFarmer(row scanner) (billing.Farmer, error) {
	var (
		f                    billing.Farmer
		rate, balance        string
		active               int
		createdAt, updatedAt string
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Mobile, &f.FarmLocation, &rate, &balance, &active, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return f, err
		}
		return f, fmt.Errorf("failed to scan farmer: %w", err)
	}
	f.DefaultRate = parseDecimal(rate)
	f.Balance = parseDecimal(balance)
	f.Active = active != 0
	f.CreatedAt = parseTS(createdAt)
	f.UpdatedAt = parseTS(updatedAt)
	return f, nil
}

// =============================================================================
// SUPPLY ENTRIES
// =============================================================================

const supplyColumns = `id, farmer_id, date, billing_method, meter_reading_start, meter_reading_end,
	start_time, stop_time, pause_duration, total_time_used, total_water_used, rate, amount,
	remarks, created_at, updated_at`

func (s *queries) GetSupplyEntry(ctx context.Context, id billing.SupplyID) (billing.SupplyEntry, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+supplyColumns+` FROM supply_entries WHERE id = ?`, id)
	e, err := scanSupply(row)
	if err == sql.ErrNoRows {
		return billing.SupplyEntry{}, billing.SupplyNotFound(id)
	}
	return e, err
}

func (s *queries) ListSupplyEntries(ctx context.Context, filter billing.RecordFilter) ([]billing.SupplyEntry, error) {
	where, args := recordWhere(filter, "date")
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+supplyColumns+` FROM supply_entries`+where+` ORDER BY date ASC, created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query supply entries: %w", err)
	}
	defer rows.Close()

	var entries []billing.SupplyEntry
	for rows.Next() {
		e, err := scanSupply(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *queries) SaveSupplyEntry(ctx context.Context, e billing.SupplyEntry) error {
	raw := billing.RawFromBilling(e.Billing)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO supply_entries (`+supplyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			farmer_id = excluded.farmer_id,
			date = excluded.date,
			billing_method = excluded.billing_method,
			meter_reading_start = excluded.meter_reading_start,
			meter_reading_end = excluded.meter_reading_end,
			start_time = excluded.start_time,
			stop_time = excluded.stop_time,
			pause_duration = excluded.pause_duration,
			total_time_used = excluded.total_time_used,
			total_water_used = excluded.total_water_used,
			rate = excluded.rate,
			amount = excluded.amount,
			remarks = excluded.remarks,
			updated_at = excluded.updated_at
	`,
		e.ID, e.FarmerID, e.Date.Format(billing.DateLayout), raw.Method,
		nullDecimal(raw.MeterStart), nullDecimal(raw.MeterEnd),
		nullString(raw.StartTime), nullString(raw.StopTime), nullDecimal(raw.Pause),
		e.TotalTimeUsed.String(), e.WaterUsed.String(), e.Rate.String(), e.Amount.String(),
		e.Remarks, formatTS(e.CreatedAt), formatTS(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save supply entry: %w", err)
	}
	return nil
}

func (s *queries) DeleteSupplyEntry(ctx context.Context, id billing.SupplyID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM supply_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete supply entry: %w", err)
	}
	return requireRow(res, billing.SupplyNotFound(id))
}

func scanSupply(row scanner) (billing.SupplyEntry, error) {
	var (
		e                           billing.SupplyEntry
		date, method                string
		meterStart, meterEnd, pause sql.NullString
		startTime, stopTime         sql.NullString
		hours, water, rate, amount  string
		createdAt, updatedAt        string
	)
	err := row.Scan(&e.ID, &e.FarmerID, &date, &method, &meterStart, &meterEnd,
		&startTime, &stopTime, &pause, &hours, &water, &rate, &amount,
		&e.Remarks, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return e, err
		}
		return e, fmt.Errorf("failed to scan supply entry: %w", err)
	}

	raw := billing.RawSupplyInput{
		Method:     billing.BillingMethod(method),
		MeterStart: parseNullDecimal(meterStart),
		MeterEnd:   parseNullDecimal(meterEnd),
		StartTime:  startTime.String,
		StopTime:   stopTime.String,
		Pause:      parseNullDecimal(pause),
	}
	e.Billing, err = raw.Billing()
	if err != nil {
		return e, fmt.Errorf("stored supply entry %s has invalid billing input: %w", e.ID, err)
	}
	e.Date = parseDate(date)
	e.TotalTimeUsed = parseDecimal(hours)
	e.WaterUsed = parseDecimal(water)
	e.Rate = parseDecimal(rate)
	e.Amount = parseDecimal(amount)
	e.CreatedAt = parseTS(createdAt)
	e.UpdatedAt = parseTS(updatedAt)
	return e, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, farmer_id, payment_date, amount, payment_method, transaction_id, remarks, created_at, updated_at`

func (s *queries) GetPayment(ctx context.Context, id billing.PaymentID) (billing.Payment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return billing.Payment{}, billing.PaymentNotFound(id)
	}
	return p, err
}

func (s *queries) ListPayments(ctx context.Context, filter billing.RecordFilter) ([]billing.Payment, error) {
	where, args := recordWhere(filter, "payment_date")
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments`+where+` ORDER BY payment_date ASC, created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []billing.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *queries) SavePayment(ctx context.Context, p billing.Payment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			farmer_id = excluded.farmer_id,
			payment_date = excluded.payment_date,
			amount = excluded.amount,
			payment_method = excluded.payment_method,
			transaction_id = excluded.transaction_id,
			remarks = excluded.remarks,
			updated_at = excluded.updated_at
	`,
		p.ID, p.FarmerID, p.Date.Format(billing.DateLayout), p.Amount.String(), p.Method,
		p.Reference, p.Remarks, formatTS(p.CreatedAt), formatTS(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (s *queries) DeletePayment(ctx context.Context, id billing.PaymentID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return requireRow(res, billing.PaymentNotFound(id))
}

func scanPayment(row scanner) (billing.Payment, error) {
	var (
		p                    billing.Payment
		date, amount, method string
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.FarmerID, &date, &amount, &method, &p.Reference, &p.Remarks, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return p, err
		}
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}
	p.Date = parseDate(date)
	p.Amount = parseDecimal(amount)
	p.Method = billing.PaymentMethod(method)
	p.CreatedAt = parseTS(createdAt)
	p.UpdatedAt = parseTS(updatedAt)
	return p, nil
}

// recordWhere pushes a RecordFilter down into SQL.
func recordWhere(f billing.RecordFilter, dateCol string) (string, []any) {
	var conds []string
	var args []any
	if f.FarmerID != "" {
		conds = append(conds, "farmer_id = ?")
		args = append(args, f.FarmerID)
	}
	if f.From != nil {
		conds = append(conds, dateCol+" >= ?")
		args = append(args, f.From.Format(billing.DateLayout))
	}
	if f.To != nil {
		conds = append(conds, dateCol+" <= ?")
		args = append(args, f.To.Format(billing.DateLayout))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *queries) GetSettings(ctx context.Context) (billing.Settings, error) {
	var (
		st         billing.Settings
		rate, flow string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT business_name, business_phone, business_address, default_rate,
		       flow_rate_per_hour, currency, currency_symbol, date_format
		FROM settings WHERE id = 1
	`).Scan(&st.BusinessName, &st.BusinessPhone, &st.BusinessAddress, &rate,
		&flow, &st.Currency, &st.CurrencySymbol, &st.DateFormat)
	if err == sql.ErrNoRows {
		return billing.DefaultSettings(), nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to get settings: %w", err)
	}
	st.DefaultRate = parseDecimal(rate)
	st.FlowRatePerHour = parseDecimal(flow)
	return st, nil
}

func (s *queries) SaveSettings(ctx context.Context, st billing.Settings) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO settings (id, business_name, business_phone, business_address, default_rate,
		                      flow_rate_per_hour, currency, currency_symbol, date_format)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			business_name = excluded.business_name,
			business_phone = excluded.business_phone,
			business_address = excluded.business_address,
			default_rate = excluded.default_rate,
			flow_rate_per_hour = excluded.flow_rate_per_hour,
			currency = excluded.currency,
			currency_symbol = excluded.currency_symbol,
			date_format = excluded.date_format
	`,
		st.BusinessName, st.BusinessPhone, st.BusinessAddress, st.DefaultRate.String(),
		st.FlowRatePerHour.String(), st.Currency, st.CurrencySymbol, st.DateFormat,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *queries) AppendAudit(ctx context.Context, e billing.AuditEntry) error {
	var payload sql.NullString
	if len(e.Payload) > 0 {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, timestamp, actor_id, action, entity_type, entity_id,
		                        farmer_id, old_balance, new_balance, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, formatTS(e.Timestamp), e.ActorID, e.Action, e.EntityType, e.EntityID,
		e.FarmerID, nullDecimal(e.OldBalance), nullDecimal(e.NewBalance), payload,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns matching entries, newest first.
func (s *queries) ListAudit(ctx context.Context, f billing.AuditFilter) ([]billing.AuditEntry, error) {
	var conds []string
	var args []any
	if f.FarmerID != nil {
		conds = append(conds, "farmer_id = ?")
		args = append(args, *f.FarmerID)
	}
	if len(f.Actions) > 0 {
		conds = append(conds, "action IN (?"+strings.Repeat(", ?", len(f.Actions)-1)+")")
		for _, a := range f.Actions {
			args = append(args, a)
		}
	}
	if f.From != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, formatTS(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, formatTS(*f.To))
	}

	query := `SELECT id, timestamp, actor_id, action, entity_type, entity_id, farmer_id,
	                 old_balance, new_balance, payload_json FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []billing.AuditEntry
	for rows.Next() {
		var (
			e              billing.AuditEntry
			ts, action     string
			oldBal, newBal sql.NullString
			payload        sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &e.EntityType, &e.EntityID,
			&e.FarmerID, &oldBal, &newBal, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = parseTS(ts)
		e.Action = billing.AuditAction(action)
		e.OldBalance = parseNullDecimal(oldBal)
		e.NewBalance = parseNullDecimal(newBal)
		if payload.Valid && payload.String != "" {
			json.Unmarshal([]byte(payload.String), &e.Payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SYNC OUTBOX (outbox.Queue interface)
// =============================================================================

func (s *queries) Enqueue(ctx context.Context, item billing.SyncItem) error {
	status := item.Status
	if status == "" {
		status = billing.SyncPending
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sync_queue (id, entity_type, entity_id, operation, payload, attempts,
		                        status, last_error, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.EntityType, item.EntityID, item.Operation, item.Payload, item.Attempts,
		status, item.LastError, formatTS(item.NextAttemptAt), formatTS(item.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to enqueue sync item: %w", err)
	}
	return nil
}

// Pending returns due pending items, oldest first. An item is skipped while
// an older pending item for the same record exists.
func (s *queries) Pending(ctx context.Context, now time.Time, limit int) ([]billing.SyncItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, operation, payload, attempts, status,
		       last_error, next_attempt_at, created_at
		FROM sync_queue q
		WHERE q.status = ? AND q.next_attempt_at <= ?
		  AND NOT EXISTS (
		      SELECT 1 FROM sync_queue older
		      WHERE older.entity_type = q.entity_type
		        AND older.entity_id = q.entity_id
		        AND older.status = ?
		        AND (older.created_at < q.created_at
		             OR (older.created_at = q.created_at AND older.id < q.id))
		  )
		ORDER BY q.created_at ASC, q.id ASC
		LIMIT ?
	`, billing.SyncPending, formatTS(now), billing.SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var items []billing.SyncItem
	for rows.Next() {
		var (
			it                billing.SyncItem
			op, status        string
			nextAt, createdAt string
		)
		if err := rows.Scan(&it.ID, &it.EntityType, &it.EntityID, &op, &it.Payload, &it.Attempts,
			&status, &it.LastError, &nextAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync item: %w", err)
		}
		it.Operation = billing.SyncOperation(op)
		it.Status = billing.SyncStatus(status)
		it.NextAttemptAt = parseTS(nextAt)
		it.CreatedAt = parseTS(createdAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *queries) MarkDone(ctx context.Context, id string) error {
	return s.updateItem(ctx, `UPDATE sync_queue SET status = ?, last_error = '' WHERE id = ?`,
		id, billing.SyncDone, id)
}

func (s *queries) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return s.updateItem(ctx, `UPDATE sync_queue SET attempts = ?, next_attempt_at = ?, last_error = ? WHERE id = ?`,
		id, attempts, formatTS(next), lastErr, id)
}

func (s *queries) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	return s.updateItem(ctx, `UPDATE sync_queue SET status = ?, attempts = ?, last_error = ? WHERE id = ?`,
		id, billing.SyncFailed, attempts, lastErr, id)
}

func (s *queries) updateItem(ctx context.Context, query, id string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sync item: %w", err)
	}
	return requireRow(res, fmt.Errorf("sync item %q not found", id))
}

func (s *queries) CountByStatus(ctx context.Context) (map[billing.SyncStatus]int, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync queue: %w", err)
	}
	defer rows.Close()

	counts := make(map[billing.SyncStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[billing.SyncStatus(status)] = n
	}
	return counts, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(billing.DateLayout, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d := parseDecimal(s.String)
	return &d
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
