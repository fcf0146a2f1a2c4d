package billing

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Wire forms of the records, used as sync outbox payloads. Decimals are
// encoded as strings so the remote side receives exact values.

type FarmerRecord struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Mobile       string          `json:"mobile"`
	FarmLocation string          `json:"farm_location"`
	DefaultRate  decimal.Decimal `json:"default_rate"`
	Balance      decimal.Decimal `json:"balance"`
	Active       bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type SupplyRecord struct {
	ID                string           `json:"id"`
	FarmerID          string           `json:"farmer_id"`
	Date              string           `json:"date"`
	BillingMethod     BillingMethod    `json:"billing_method"`
	MeterReadingStart *decimal.Decimal `json:"meter_reading_start,omitempty"`
	MeterReadingEnd   *decimal.Decimal `json:"meter_reading_end,omitempty"`
	StartTime         string           `json:"start_time,omitempty"`
	StopTime          string           `json:"stop_time,omitempty"`
	PauseDuration     *decimal.Decimal `json:"pause_duration,omitempty"`
	TotalTimeUsed     decimal.Decimal  `json:"total_time_used"`
	TotalWaterUsed    decimal.Decimal  `json:"total_water_used"`
	Rate              decimal.Decimal  `json:"rate"`
	Amount            decimal.Decimal  `json:"amount"`
	Remarks           string           `json:"remarks,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

type PaymentRecord struct {
	ID            string          `json:"id"`
	FarmerID      string          `json:"farmer_id"`
	PaymentDate   string          `json:"payment_date"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Remarks       string          `json:"remarks,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type SettingsRecord struct {
	BusinessName    string          `json:"business_name"`
	BusinessPhone   string          `json:"business_phone,omitempty"`
	BusinessAddress string          `json:"business_address,omitempty"`
	DefaultRate     decimal.Decimal `json:"default_hourly_rate"`
	FlowRatePerHour decimal.Decimal `json:"water_flow_rate"`
	Currency        string          `json:"currency"`
	CurrencySymbol  string          `json:"currency_symbol"`
	DateFormat      string          `json:"date_format"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type deletedRecord struct {
	ID string `json:"id"`
}

const DateLayout = "2006-01-02"

func NewFarmerRecord(f Farmer) FarmerRecord {
	return FarmerRecord{
		ID:           string(f.ID),
		Name:         f.Name,
		Mobile:       f.Mobile,
		FarmLocation: f.FarmLocation,
		DefaultRate:  f.DefaultRate,
		Balance:      f.Balance,
		Active:       f.Active,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func NewSupplyRecord(e SupplyEntry) SupplyRecord {
	raw := RawFromBilling(e.Billing)
	return SupplyRecord{
		ID:                string(e.ID),
		FarmerID:          string(e.FarmerID),
		Date:              e.Date.Format(DateLayout),
		BillingMethod:     raw.Method,
		MeterReadingStart: raw.MeterStart,
		MeterReadingEnd:   raw.MeterEnd,
		StartTime:         raw.StartTime,
		StopTime:          raw.StopTime,
		PauseDuration:     raw.Pause,
		TotalTimeUsed:     e.TotalTimeUsed,
		TotalWaterUsed:    e.WaterUsed,
		Rate:              e.Rate,
		Amount:            e.Amount,
		Remarks:           e.Remarks,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func NewPaymentRecord(p Payment) PaymentRecord {
	return PaymentRecord{
		ID:            string(p.ID),
		FarmerID:      string(p.FarmerID),
		PaymentDate:   p.Date.Format(DateLayout),
		Amount:        p.Amount,
		PaymentMethod: p.Method,
		TransactionID: p.Reference,
		Remarks:       p.Remarks,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func NewSettingsRecord(s Settings, updatedAt time.Time) SettingsRecord {
	return SettingsRecord{
		BusinessName:    s.BusinessName,
		BusinessPhone:   s.BusinessPhone,
		BusinessAddress: s.BusinessAddress,
		DefaultRate:     s.DefaultRate,
		FlowRatePerHour: s.FlowRatePerHour,
		Currency:        s.Currency,
		CurrencySymbol:  s.CurrencySymbol,
		DateFormat:      s.DateFormat,
		UpdatedAt:       updatedAt,
	}
}

func encodePayload(v any) []byte {
	// The record types above contain nothing json.Marshal can fail on.
	b, _ := json.Marshal(v)
	return b
}
