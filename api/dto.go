/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  billing types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

NUMBERS:
  Request bodies decode money, readings and rates into decimal.Decimal, so
  both JSON numbers (5.30) and strings ("5.30") are accepted without float
  rounding. Responses use float64 values already rounded to 2 decimals.

VALIDATION:
  Validation is done by the billing package, not in DTOs. DTOs are pure
  data carriers; conversion only checks date formats.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
)

const dateLayout = billing.DateLayout

// =============================================================================
// FARMERS
// =============================================================================

// FarmerDTO represents a farmer in API responses.
type FarmerDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Mobile       string  `json:"mobile"`
	FarmLocation string  `json:"farm_location"`
	DefaultRate  float64 `json:"default_rate"`
	Balance      float64 `json:"balance"`
	IsActive     bool    `json:"is_active"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// FarmerRequest creates or edits a farmer.
type FarmerRequest struct {
	Name         string           `json:"name"`
	Mobile       string           `json:"mobile"`
	FarmLocation string           `json:"farm_location"`
	DefaultRate  *decimal.Decimal `json:"default_rate"`
}

func (r FarmerRequest) profile() billing.FarmerProfile {
	rate := decimal.Zero
	if r.DefaultRate != nil {
		rate = *r.DefaultRate
	}
	return billing.FarmerProfile{
		Name:         r.Name,
		Mobile:       r.Mobile,
		FarmLocation: r.FarmLocation,
		DefaultRate:  rate,
	}
}

func toFarmerDTO(f billing.Farmer) FarmerDTO {
	return FarmerDTO{
		ID:           string(f.ID),
		Name:         f.Name,
		Mobile:       f.Mobile,
		FarmLocation: f.FarmLocation,
		DefaultRate:  f.DefaultRate.InexactFloat64(),
		Balance:      f.Balance.InexactFloat64(),
		IsActive:     f.Active,
		CreatedAt:    f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    f.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SUPPLY ENTRIES
// =============================================================================

// SupplyEntryDTO represents a supply entry in API responses.
type SupplyEntryDTO struct {
	ID                string   `json:"id"`
	FarmerID          string   `json:"farmer_id"`
	Date              string   `json:"date"`
	BillingMethod     string   `json:"billing_method"`
	MeterReadingStart *float64 `json:"meter_reading_start,omitempty"`
	MeterReadingEnd   *float64 `json:"meter_reading_end,omitempty"`
	StartTime         string   `json:"start_time,omitempty"`
	StopTime          string   `json:"stop_time,omitempty"`
	PauseDuration     *float64 `json:"pause_duration,omitempty"`
	TotalTimeUsed     float64  `json:"total_time_used"`
	TotalWaterUsed    float64  `json:"total_water_used"`
	Rate              float64  `json:"rate"`
	Amount            float64  `json:"amount"`
	Remarks           string   `json:"remarks,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// SupplyEntryRequest creates or edits a supply entry. Only the fields of the
// chosen billing_method are read.
type SupplyEntryRequest struct {
	FarmerID          string           `json:"farmer_id"`
	Date              string           `json:"date"`
	BillingMethod     string           `json:"billing_method"`
	MeterReadingStart *decimal.Decimal `json:"meter_reading_start"`
	MeterReadingEnd   *decimal.Decimal `json:"meter_reading_end"`
	StartTime         string           `json:"start_time"`
	StopTime          string           `json:"stop_time"`
	PauseDuration     *decimal.Decimal `json:"pause_duration"`
	Rate              *decimal.Decimal `json:"rate"`
	Remarks           string           `json:"remarks"`
}

func (r SupplyEntryRequest) toBilling() (billing.SupplyRequest, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return billing.SupplyRequest{}, err
	}
	raw := billing.RawSupplyInput{
		Method:     billing.BillingMethod(r.BillingMethod),
		MeterStart: r.MeterReadingStart,
		MeterEnd:   r.MeterReadingEnd,
		StartTime:  r.StartTime,
		StopTime:   r.StopTime,
		Pause:      r.PauseDuration,
	}
	in, err := raw.Billing()
	if err != nil {
		return billing.SupplyRequest{}, err
	}
	return billing.SupplyRequest{
		FarmerID:     billing.FarmerID(r.FarmerID),
		Date:         date,
		Billing:      in,
		RateOverride: r.Rate,
		Remarks:      r.Remarks,
	}, nil
}

func toSupplyEntryDTO(e billing.SupplyEntry) SupplyEntryDTO {
	raw := billing.RawFromBilling(e.Billing)
	return SupplyEntryDTO{
		ID:                string(e.ID),
		FarmerID:          string(e.FarmerID),
		Date:              e.Date.Format(dateLayout),
		BillingMethod:     string(raw.Method),
		MeterReadingStart: floatPtr(raw.MeterStart),
		MeterReadingEnd:   floatPtr(raw.MeterEnd),
		StartTime:         raw.StartTime,
		StopTime:          raw.StopTime,
		PauseDuration:     floatPtr(raw.Pause),
		TotalTimeUsed:     e.TotalTimeUsed.InexactFloat64(),
		TotalWaterUsed:    e.WaterUsed.InexactFloat64(),
		Rate:              e.Rate.InexactFloat64(),
		Amount:            e.Amount.InexactFloat64(),
		Remarks:           e.Remarks,
		CreatedAt:         e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         e.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID            string  `json:"id"`
	FarmerID      string  `json:"farmer_id"`
	PaymentDate   string  `json:"payment_date"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Remarks       string  `json:"remarks,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// PaymentRequest creates or edits a payment.
type PaymentRequest struct {
	FarmerID      string          `json:"farmer_id"`
	PaymentDate   string          `json:"payment_date"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	TransactionID string          `json:"transaction_id"`
	Remarks       string          `json:"remarks"`
}

func (r PaymentRequest) toBilling() (billing.PaymentRequest, error) {
	date, err := parseDate("payment_date", r.PaymentDate)
	if err != nil {
		return billing.PaymentRequest{}, err
	}
	return billing.PaymentRequest{
		FarmerID:  billing.FarmerID(r.FarmerID),
		Date:      date,
		Amount:    r.Amount,
		Method:    billing.PaymentMethod(r.PaymentMethod),
		Reference: r.TransactionID,
		Remarks:   r.Remarks,
	}, nil
}

func toPaymentDTO(p billing.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            string(p.ID),
		FarmerID:      string(p.FarmerID),
		PaymentDate:   p.Date.Format(dateLayout),
		Amount:        p.Amount.InexactFloat64(),
		PaymentMethod: string(p.Method),
		TransactionID: p.Reference,
		Remarks:       p.Remarks,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// STATEMENTS
// =============================================================================

// StatementRowDTO is one transaction line.
type StatementRowDTO struct {
	Date        string  `json:"date"`
	Type        string  `json:"type"`
	RecordID    string  `json:"record_id"`
	Description string  `json:"description"`
	Hours       float64 `json:"hours,omitempty"`
	WaterUsed   float64 `json:"water_used,omitempty"`
	Rate        float64 `json:"rate,omitempty"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Balance     float64 `json:"balance"`
}

// StatementTotalsDTO carries window totals. Balance is paid - charges.
type StatementTotalsDTO struct {
	Charges float64 `json:"charges"`
	Paid    float64 `json:"paid"`
	Balance float64 `json:"balance"`
	Hours   float64 `json:"hours"`
	Water   float64 `json:"water"`
}

// StatementDTO is the full statement response.
type StatementDTO struct {
	Farmer  FarmerDTO          `json:"farmer"`
	From    string             `json:"from,omitempty"`
	To      string             `json:"to,omitempty"`
	Opening float64            `json:"opening_balance"`
	Closing float64            `json:"closing_balance"`
	Rows    []StatementRowDTO  `json:"rows"`
	Totals  StatementTotalsDTO `json:"totals"`
}

func toStatementDTO(fs billing.FarmerStatement) StatementDTO {
	stmt := fs.Statement
	dto := StatementDTO{
		Farmer:  toFarmerDTO(fs.Farmer),
		Opening: stmt.Opening.InexactFloat64(),
		Closing: stmt.Closing.InexactFloat64(),
		Rows:    make([]StatementRowDTO, len(stmt.Rows)),
		Totals: StatementTotalsDTO{
			Charges: stmt.Totals.Charges.InexactFloat64(),
			Paid:    stmt.Totals.Paid.InexactFloat64(),
			Balance: stmt.Totals.Balance.InexactFloat64(),
			Hours:   stmt.Totals.Hours.InexactFloat64(),
			Water:   stmt.Totals.Water.InexactFloat64(),
		},
	}
	if stmt.From != nil {
		dto.From = stmt.From.Format(dateLayout)
	}
	if stmt.To != nil {
		dto.To = stmt.To.Format(dateLayout)
	}
	for i, r := range stmt.Rows {
		dto.Rows[i] = StatementRowDTO{
			Date:        r.Date.Format(dateLayout),
			Type:        string(r.Kind),
			RecordID:    r.RecordID,
			Description: r.Description,
			Hours:       r.Hours.InexactFloat64(),
			WaterUsed:   r.WaterUsed.InexactFloat64(),
			Rate:        r.Rate.InexactFloat64(),
			Debit:       r.Debit.InexactFloat64(),
			Credit:      r.Credit.InexactFloat64(),
			Balance:     r.Balance.InexactFloat64(),
		}
	}
	return dto
}

// =============================================================================
// STATS, DASHBOARD, SETTINGS
// =============================================================================

type FarmerStatsDTO struct {
	FarmerID       string  `json:"farmer_id"`
	TotalSupplies  int     `json:"total_supplies"`
	TotalWaterUsed float64 `json:"total_water_used"`
	TotalHours     float64 `json:"total_hours"`
	TotalCharges   float64 `json:"total_charges"`
	TotalPayments  float64 `json:"total_payments"`
	Balance        float64 `json:"balance"`
	LastSupplyDate string  `json:"last_supply_date,omitempty"`
}

func toFarmerStatsDTO(s billing.FarmerStats) FarmerStatsDTO {
	dto := FarmerStatsDTO{
		FarmerID:       string(s.FarmerID),
		TotalSupplies:  s.TotalSupplies,
		TotalWaterUsed: s.TotalWaterUsed.InexactFloat64(),
		TotalHours:     s.TotalHours.InexactFloat64(),
		TotalCharges:   s.TotalCharges.InexactFloat64(),
		TotalPayments:  s.TotalPayments.InexactFloat64(),
		Balance:        s.Balance.InexactFloat64(),
	}
	if s.LastSupplyDate != nil {
		dto.LastSupplyDate = s.LastSupplyDate.Format(dateLayout)
	}
	return dto
}

type DashboardDTO struct {
	TotalFarmers       int     `json:"total_farmers"`
	TotalWaterSupplied float64 `json:"total_water_supplied"`
	TotalHours         float64 `json:"total_hours"`
	TotalCharges       float64 `json:"total_charges"`
	TotalPayments      float64 `json:"total_payments"`
	PendingDues        float64 `json:"pending_dues"`
	TodayRevenue       float64 `json:"today_revenue"`
	TodaySupplies      int     `json:"today_supplies"`
}

func toDashboardDTO(d billing.Dashboard) DashboardDTO {
	return DashboardDTO{
		TotalFarmers:       d.TotalFarmers,
		TotalWaterSupplied: d.TotalWaterSupplied.InexactFloat64(),
		TotalHours:         d.TotalHours.InexactFloat64(),
		TotalCharges:       d.TotalCharges.InexactFloat64(),
		TotalPayments:      d.TotalPayments.InexactFloat64(),
		PendingDues:        d.PendingDues.InexactFloat64(),
		TodayRevenue:       d.TodayRevenue.InexactFloat64(),
		TodaySupplies:      d.TodaySupplies,
	}
}

// SettingsDTO is used for both reading and writing settings.
type SettingsDTO struct {
	BusinessName    string          `json:"business_name"`
	BusinessPhone   string          `json:"business_phone"`
	BusinessAddress string          `json:"business_address"`
	DefaultRate     decimal.Decimal `json:"default_hourly_rate"`
	FlowRatePerHour decimal.Decimal `json:"water_flow_rate"`
	Currency        string          `json:"currency"`
	CurrencySymbol  string          `json:"currency_symbol"`
	DateFormat      string          `json:"date_format"`
}

func toSettingsDTO(s billing.Settings) SettingsDTO {
	return SettingsDTO(s)
}

func (d SettingsDTO) settings() billing.Settings {
	return billing.Settings(d)
}

// =============================================================================
// RECONCILIATION, SYNC, AUDIT
// =============================================================================

type ReconcileDTO struct {
	FarmerID   string  `json:"farmer_id"`
	Stored     float64 `json:"stored_balance"`
	Recomputed float64 `json:"recomputed_balance"`
	Diff       float64 `json:"diff"`
	Corrected  bool    `json:"corrected"`
	Drift      bool    `json:"drift"`
}

func toReconcileDTO(r billing.ReconcileResult) ReconcileDTO {
	return ReconcileDTO{
		FarmerID:   string(r.Drift.FarmerID),
		Stored:     r.Drift.Stored.InexactFloat64(),
		Recomputed: r.Drift.Recomputed.InexactFloat64(),
		Diff:       r.Drift.Diff().InexactFloat64(),
		Corrected:  r.Corrected,
		Drift:      r.Drift.Significant(),
	}
}

type ReconcileAllDTO struct {
	Farmers   int            `json:"farmers"`
	Corrected int            `json:"corrected"`
	Drifted   int            `json:"drifted"`
	Results   []ReconcileDTO `json:"results"`
}

type SyncStatusDTO struct {
	Enabled bool `json:"enabled"`
	Pending int  `json:"pending"`
	Done    int  `json:"done"`
	Failed  int  `json:"failed"`
}

type SyncRunDTO struct {
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

type AuditEntryDTO struct {
	ID         string            `json:"id"`
	Timestamp  string            `json:"timestamp"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	FarmerID   string            `json:"farmer_id,omitempty"`
	OldBalance *float64          `json:"old_balance,omitempty"`
	NewBalance *float64          `json:"new_balance,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
}

func toAuditEntryDTO(e billing.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		Timestamp:  e.Timestamp.Format(time.RFC3339),
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		FarmerID:   string(e.FarmerID),
		OldBalance: floatPtr(e.OldBalance),
		NewBalance: floatPtr(e.NewBalance),
		Payload:    e.Payload,
	}
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func floatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
