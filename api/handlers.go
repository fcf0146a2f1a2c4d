/*
handlers.go - HTTP API handlers for the irrigation billing engine

PURPOSE:
  Exposes the billing Service via REST API. Handles HTTP request/response
  and JSON serialization and delegates everything else to billing.Service.

ENDPOINTS:
  Farmers:
    GET    /api/farmers                       List (?include_inactive=true)
    POST   /api/farmers                       Create
    GET    /api/farmers/{id}                  Get
    PUT    /api/farmers/{id}                  Edit profile
    DELETE /api/farmers/{id}                  Hard delete with all records
    POST   /api/farmers/{id}/deactivate       Soft delete
    GET    /api/farmers/{id}/supplies         Supply entries (?from&to)
    GET    /api/farmers/{id}/payments         Payments (?from&to)
    GET    /api/farmers/{id}/statement        Statement (?from&to&seed_opening)
    GET    /api/farmers/{id}/statement.{fmt}  Statement export (pdf|xlsx|csv)
    GET    /api/farmers/{id}/stats            Lifetime stats
    POST   /api/farmers/{id}/reconcile        Recompute balance

  Supply entries / payments:
    GET, POST /api/supplies      GET, PUT, DELETE /api/supplies/{id}
    GET, POST /api/payments      GET, PUT, DELETE /api/payments/{id}

  Other:
    GET, PUT /api/settings
    GET      /api/dashboard
    GET      /api/audit                   (?farmer_id&limit)
    POST     /api/admin/reconcile         Reconcile every farmer
    GET      /api/sync/status
    POST     /api/sync/run                Drain one outbox batch now

  Demo data (scenarios.go):
    GET      /api/scenarios
    GET      /api/scenarios/current
    POST     /api/scenarios/load          Wipe and load a scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors (code + field), malformed input
  - 404: Farmer, supply entry or payment not found
  - 409: Duplicate record
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
	"github.com/aasavchauhan/Water-Supply-Management-System/export"
	"github.com/aasavchauhan/Water-Supply-Management-System/outbox"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *billing.Service

	// Queue and Dispatcher are optional; without them the sync endpoints
	// report sync as disabled.
	Queue      outbox.Queue
	Dispatcher *outbox.Dispatcher

	Now func() time.Time

	// Ping checks the database for /api/health. Nil reports healthy.
	Ping func(ctx context.Context) error

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler around the billing service.
func NewHandler(svc *billing.Service) *Handler {
	return &Handler{Service: svc, Now: time.Now}
}

// =============================================================================
// FARMER HANDLERS
// =============================================================================

// ListFarmers returns active farmers, or all with ?include_inactive=true.
func (h *Handler) ListFarmers(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	farmers, err := h.Service.ListFarmers(r.Context(), includeInactive)
	if err != nil {
		writeServiceError(w, "Failed to list farmers", err)
		return
	}
	dtos := make([]FarmerDTO, len(farmers))
	for i, f := range farmers {
		dtos[i] = toFarmerDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetFarmer(w http.ResponseWriter, r *http.Request) {
	f, err := h.Service.GetFarmer(r.Context(), farmerParam(r))
	if err != nil {
		writeServiceError(w, "Failed to get farmer", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerDTO(f))
}

func (h *Handler) CreateFarmer(w http.ResponseWriter, r *http.Request) {
	var req FarmerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f, err := h.Service.CreateFarmer(r.Context(), req.profile())
	if err != nil {
		writeServiceError(w, "Failed to create farmer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFarmerDTO(f))
}

func (h *Handler) UpdateFarmer(w http.ResponseWriter, r *http.Request) {
	var req FarmerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f, err := h.Service.UpdateFarmer(r.Context(), farmerParam(r), req.profile())
	if err != nil {
		writeServiceError(w, "Failed to update farmer", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerDTO(f))
}

func (h *Handler) DeactivateFarmer(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeactivateFarmer(r.Context(), farmerParam(r)); err != nil {
		writeServiceError(w, "Failed to deactivate farmer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteFarmer(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteFarmer(r.Context(), farmerParam(r)); err != nil {
		writeServiceError(w, "Failed to delete farmer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) FarmerSupplies(w http.ResponseWriter, r *http.Request) {
	filter, ok := recordFilter(w, r)
	if !ok {
		return
	}
	filter.FarmerID = farmerParam(r)
	if _, err := h.Service.GetFarmer(r.Context(), filter.FarmerID); err != nil {
		writeServiceError(w, "Failed to get farmer", err)
		return
	}
	h.writeSupplies(w, r, filter)
}

func (h *Handler) FarmerPayments(w http.ResponseWriter, r *http.Request) {
	filter, ok := recordFilter(w, r)
	if !ok {
		return
	}
	filter.FarmerID = farmerParam(r)
	if _, err := h.Service.GetFarmer(r.Context(), filter.FarmerID); err != nil {
		writeServiceError(w, "Failed to get farmer", err)
		return
	}
	h.writePayments(w, r, filter)
}

func (h *Handler) FarmerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.FarmerStats(r.Context(), farmerParam(r))
	if err != nil {
		writeServiceError(w, "Failed to get farmer stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerStatsDTO(stats))
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

// GetStatement returns the statement as JSON.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	fs, ok := h.loadStatement(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(fs))
}

// ExportStatement renders the statement as a pdf, xlsx or csv download.
func (h *Handler) ExportStatement(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	contentType, known := export.ContentTypes[format]
	if !known {
		writeError(w, http.StatusBadRequest, "Unsupported export format (use pdf, xlsx or csv)", nil)
		return
	}
	fs, ok := h.loadStatement(w, r)
	if !ok {
		return
	}
	body, err := export.Render(format, fs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render statement", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(fs, format, h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) loadStatement(w http.ResponseWriter, r *http.Request) (billing.FarmerStatement, bool) {
	filter, ok := recordFilter(w, r)
	if !ok {
		return billing.FarmerStatement{}, false
	}
	seed, _ := strconv.ParseBool(r.URL.Query().Get("seed_opening"))
	fs, err := h.Service.Statement(r.Context(), farmerParam(r), billing.StatementQuery{
		From:        filter.From,
		To:          filter.To,
		SeedOpening: seed,
	})
	if err != nil {
		writeServiceError(w, "Failed to build statement", err)
		return billing.FarmerStatement{}, false
	}
	return fs, true
}

// =============================================================================
// SUPPLY ENTRY HANDLERS
// =============================================================================

// ListSupplies returns entries across farmers (?farmer_id&from&to).
func (h *Handler) ListSupplies(w http.ResponseWriter, r *http.Request) {
	filter, ok := recordFilter(w, r)
	if !ok {
		return
	}
	filter.FarmerID = billing.FarmerID(r.URL.Query().Get("farmer_id"))
	h.writeSupplies(w, r, filter)
}

func (h *Handler) writeSupplies(w http.ResponseWriter, r *http.Request, filter billing.RecordFilter) {
	entries, err := h.Service.ListSupplyEntries(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "Failed to list supply entries", err)
		return
	}
	dtos := make([]SupplyEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toSupplyEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetSupply(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.GetSupplyEntry(r.Context(), billing.SupplyID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Failed to get supply entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplyEntryDTO(e))
}

func (h *Handler) CreateSupply(w http.ResponseWriter, r *http.Request) {
	var body SupplyEntryRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.toBilling()
	if err != nil {
		writeServiceError(w, "Invalid supply entry", err)
		return
	}
	e, err := h.Service.RecordSupply(r.Context(), req)
	if err != nil {
		writeServiceError(w, "Failed to record supply entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupplyEntryDTO(e))
}

func (h *Handler) UpdateSupply(w http.ResponseWriter, r *http.Request) {
	var body SupplyEntryRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.toBilling()
	if err != nil {
		writeServiceError(w, "Invalid supply entry", err)
		return
	}
	e, err := h.Service.UpdateSupply(r.Context(), billing.SupplyID(chi.URLParam(r, "id")), req)
	if err != nil {
		writeServiceError(w, "Failed to update supply entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplyEntryDTO(e))
}

func (h *Handler) DeleteSupply(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteSupply(r.Context(), billing.SupplyID(chi.URLParam(r, "id"))); err != nil {
		writeServiceError(w, "Failed to delete supply entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns payments across farmers (?farmer_id&from&to).
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter, ok := recordFilter(w, r)
	if !ok {
		return
	}
	filter.FarmerID = billing.FarmerID(r.URL.Query().Get("farmer_id"))
	h.writePayments(w, r, filter)
}

func (h *Handler) writePayments(w http.ResponseWriter, r *http.Request, filter billing.RecordFilter) {
	payments, err := h.Service.ListPayments(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetPayment(r.Context(), billing.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Failed to get payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var body PaymentRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.toBilling()
	if err != nil {
		writeServiceError(w, "Invalid payment", err)
		return
	}
	p, err := h.Service.RecordPayment(r.Context(), req)
	if err != nil {
		writeServiceError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var body PaymentRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.toBilling()
	if err != nil {
		writeServiceError(w, "Invalid payment", err)
		return
	}
	p, err := h.Service.UpdatePayment(r.Context(), billing.PaymentID(chi.URLParam(r, "id")), req)
	if err != nil {
		writeServiceError(w, "Failed to update payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeletePayment(r.Context(), billing.PaymentID(chi.URLParam(r, "id"))); err != nil {
		writeServiceError(w, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SETTINGS, DASHBOARD, AUDIT
// =============================================================================

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Service.Settings(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body SettingsDTO
	if !decodeBody(w, r, &body) {
		return
	}
	s, err := h.Service.UpdateSettings(r.Context(), body.settings())
	if err != nil {
		writeServiceError(w, "Failed to update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(d))
}

// ListAudit returns recent audit entries, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.AuditFilter{Limit: 100}
	if id := q.Get("farmer_id"); id != "" {
		fid := billing.FarmerID(id)
		filter.FarmerID = &fid
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}
	entries, err := h.Service.AuditLog(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "Failed to list audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RECONCILIATION AND SYNC
// =============================================================================

func (h *Handler) ReconcileFarmer(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Reconcile(r.Context(), farmerParam(r))
	if err != nil {
		writeServiceError(w, "Failed to reconcile farmer", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileDTO(res))
}

// ReconcileAll recomputes every farmer's balance. Per-farmer failures are
// reported in details while the successful results are still returned.
func (h *Handler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.Service.ReconcileAll(r.Context())
	if err != nil && results == nil {
		writeServiceError(w, "Failed to reconcile", err)
		return
	}
	dto := ReconcileAllDTO{Farmers: len(results), Results: make([]ReconcileDTO, len(results))}
	for i, res := range results {
		dto.Results[i] = toReconcileDTO(res)
		if res.Corrected {
			dto.Corrected++
		}
		if res.Drift.Significant() {
			dto.Drifted++
		}
	}
	if err != nil {
		writeJSON(w, http.StatusMultiStatus, dto)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		writeJSON(w, http.StatusOK, SyncStatusDTO{Enabled: false})
		return
	}
	counts, err := h.Queue.CountByStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read sync queue", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncStatusDTO{
		Enabled: h.Dispatcher != nil,
		Pending: counts[billing.SyncPending],
		Done:    counts[billing.SyncDone],
		Failed:  counts[billing.SyncFailed],
	})
}

func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	if h.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "Sync is not configured", nil)
		return
	}
	report, err := h.Dispatcher.RunOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sync run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncRunDTO(report))
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func farmerParam(r *http.Request) billing.FarmerID {
	return billing.FarmerID(chi.URLParam(r, "id"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// recordFilter reads ?from and ?to (YYYY-MM-DD).
func recordFilter(w http.ResponseWriter, r *http.Request) (billing.RecordFilter, bool) {
	var f billing.RecordFilter
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+p.name+" date (use YYYY-MM-DD)", err)
			return f, false
		}
		*p.dst = &t
	}
	return f, true
}

func parseDate(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, &billing.ValidationError{Field: field, Code: billing.CodeRequired, Message: field + " is required"}
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, &billing.ValidationError{Field: field, Code: billing.CodeMalformed, Message: "use YYYY-MM-DD"}
	}
	return t, nil
}

// writeServiceError maps billing errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	var verr *billing.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   message,
			Code:    string(verr.Code),
			Field:   verr.Field,
			Details: verr.Message,
		})
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, billing.ErrDuplicateRecord):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
