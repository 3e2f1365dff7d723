/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic. This is the same
  contract a conversational command layer consumes.

ENDPOINTS:
  Lifecycle:
    POST   /api/tenants/{id}/start        Start recording
    POST   /api/tenants/{id}/stop         Close the day (final bill + archive)
    POST   /api/tenants/{id}/clear        Wipe today after archiving

  Recording:
    POST   /api/tenants/{id}/transactions Record deposit/payout
    POST   /api/tenants/{id}/corrections  Void a prior entry
    POST   /api/tenants/{id}/returns      Record a return
    GET    /api/tenants/{id}/bill         Current bill (?mode= override)
    POST   /api/tenants/{id}/sync         Recompute net amounts

  Settings:
    POST   /api/tenants/{id}/settings/rates     Fee rate
    POST   /api/tenants/{id}/settings/forex     FX rate
    POST   /api/tenants/{id}/settings/display   Display mode
    POST   /api/tenants/{id}/settings/decimals  Decimal rendering

  Share:
    GET    /share/{id}/{date}?t=          Token-verified read-only bill

  Admin:
    POST   /api/admin/rollover            Trigger an immediate rollover tick

ERROR HANDLING:
  - 400: validation errors (bad amount, bad rate, unknown currency)
  - 404: tenant/settings not found
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/engine.go: The operations these handlers front
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Ticker triggers an immediate rollover pass. Implemented by the chronos
// scheduler; kept as an interface so handlers don't depend on it.
type Ticker interface {
	Tick(ctx context.Context)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *ledger.Engine
	Share     *ledger.ShareLink
	Scheduler Ticker
	Log       *logrus.Logger
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *ledger.Engine, share *ledger.ShareLink, scheduler Ticker, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Engine: engine, Share: share, Scheduler: scheduler, Log: log}
}

// =============================================================================
// LIFECYCLE HANDLERS
// =============================================================================

// StartDay moves the tenant into RECORDING.
func (h *Handler) StartDay(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req ActorRequest
	decodeOptional(r, &req)

	msg, err := h.Engine.StartDay(r.Context(), id, actorOr(req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to start day", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// StopDay closes the current business date manually.
func (h *Handler) StopDay(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req ActorRequest
	decodeOptional(r, &req)

	res, err := h.Engine.StopDay(r.Context(), id, actorOr(req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to stop day", err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(res))
}

// ClearToday archives then wipes the current business date.
func (h *Handler) ClearToday(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req ActorRequest
	decodeOptional(r, &req)

	res, err := h.Engine.ClearToday(r.Context(), id, actorOr(req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to clear day", err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(res))
}

// =============================================================================
// RECORDING HANDLERS
// =============================================================================

// RecordTransaction records a deposit or payout.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	typ, ok := parseTxType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "Type must be DEPOSIT or PAYOUT", nil)
		return
	}

	op := ledger.Operator{ID: req.OperatorID, Name: req.OperatorName}
	res, err := h.Engine.AddTransaction(r.Context(), id, op, typ, req.Amount, req.Currency)
	if err != nil {
		h.writeDomainError(w, "Failed to record transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(res))
}

// RecordCorrection voids a prior entry by recording its negation.
func (h *Handler) RecordCorrection(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	typ, ok := parseTxType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "Type must be DEPOSIT or PAYOUT", nil)
		return
	}

	op := ledger.Operator{ID: req.OperatorID, Name: req.OperatorName}
	res, err := h.Engine.AddCorrection(r.Context(), id, op, typ, req.Amount)
	if err != nil {
		h.writeDomainError(w, "Failed to record correction", err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(res))
}

// RecordReturn records a fee-free return.
func (h *Handler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	op := ledger.Operator{ID: req.OperatorID, Name: req.OperatorName}
	res, err := h.Engine.AddReturn(r.Context(), id, op, req.Amount)
	if err != nil {
		h.writeDomainError(w, "Failed to record return", err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(res))
}

// GetBill renders the current business date's bill. ?mode=1|4|5 overrides
// the tenant's configured display mode for this response only.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}

	var (
		bill *ledger.Bill
		err  error
	)
	if modeStr := r.URL.Query().Get("mode"); modeStr != "" {
		mode, convErr := strconv.Atoi(modeStr)
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid mode", convErr)
			return
		}
		bill, err = h.Engine.GenerateBillWithMode(r.Context(), id, mode)
	} else {
		bill, err = h.Engine.GenerateBill(r.Context(), id)
	}
	if err != nil {
		h.writeDomainError(w, "Failed to generate bill", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(bill))
}

// SyncNetAmounts recomputes derived amounts for today's rows under the
// current settings.
func (h *Handler) SyncNetAmounts(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	updated, err := h.Engine.SyncNetAmounts(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to sync net amounts", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResultDTO{Updated: updated})
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// SetFeeRate sets the deposit or payout fee percentage.
func (h *Handler) SetFeeRate(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req FeeRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	dir := ledger.FeeIn
	if strings.EqualFold(req.Direction, string(ledger.FeeOut)) {
		dir = ledger.FeeOut
	}

	msg, err := h.Engine.SetFeeRate(r.Context(), id, dir, req.Rate)
	if err != nil {
		h.writeDomainError(w, "Failed to set fee rate", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// SetForexRate sets one FX rate. Rate "0" disables the currency.
func (h *Handler) SetForexRate(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req ForexRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	msg, err := h.Engine.SetForexRate(r.Context(), id, req.Currency, req.Rate)
	if err != nil {
		h.writeDomainError(w, "Failed to set forex rate", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// SetDisplayMode sets the bill rendering mode.
func (h *Handler) SetDisplayMode(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req DisplayModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	msg, err := h.Engine.SetDisplayMode(r.Context(), id, req.Mode)
	if err != nil {
		h.writeDomainError(w, "Failed to set display mode", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// SetDecimals toggles decimal rendering on bills.
func (h *Handler) SetDecimals(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req DecimalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	msg, err := h.Engine.SetDecimals(r.Context(), id, req.Show)
	if err != nil {
		h.writeDomainError(w, "Failed to set decimals", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// =============================================================================
// SHARE HANDLER
// =============================================================================

// SharedBill serves a bill to non-operators, gated on a verified token.
// The token covers exactly one tenant and date; anything else is a 403.
func (h *Handler) SharedBill(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	date := chi.URLParam(r, "date")
	token := r.URL.Query().Get("t")

	if !h.Share.Verify(id, date, token) {
		writeError(w, http.StatusForbidden, "Invalid or expired share token", nil)
		return
	}

	bill, err := h.Engine.BillForDate(r.Context(), id, date)
	if err != nil {
		h.writeDomainError(w, "Failed to load bill", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(bill))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRollover runs an immediate scheduler tick.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not running", nil)
		return
	}
	h.Scheduler.Tick(r.Context())
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Rollover tick completed"})
}

// =============================================================================
// HELPERS
// =============================================================================

func tenantID(w http.ResponseWriter, r *http.Request) (ledger.TenantID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tenant id", err)
		return 0, false
	}
	return ledger.TenantID(id), true
}

func parseTxType(s string) (ledger.TxType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ledger.TxDeposit):
		return ledger.TxDeposit, true
	case string(ledger.TxPayout):
		return ledger.TxPayout, true
	}
	return "", false
}

func actorOr(actor string) string {
	if actor == "" {
		return "operator"
	}
	return actor
}

// decodeOptional tolerates an empty body for commands whose payload is
// optional.
func decodeOptional(r *http.Request, v any) {
	_ = json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		h.Log.WithError(err).Error(message)
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
