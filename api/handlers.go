/*
handlers.go - HTTP API handlers for the timeclock engine

PURPOSE:
  Exposes the session engine, config resolver, and payroll ledger via a
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the domain packages.

ENDPOINTS:
  Workers (collaborator boundary, plain CRUD):
    GET    /api/workers                         List workers
    POST   /api/workers                         Create worker
    GET    /api/workers/{username}              Worker details

  Sessions:
    POST   /api/workers/{username}/sessions     Start (idempotent)
    GET    /api/workers/{username}/sessions     Day history (?day=YYYY-MM-DD)
    GET    /api/workers/{username}/status       Reconstructed status/elapsed
    POST   /api/sessions/{id}/pause             Pause (closes the segment)
    POST   /api/sessions/{id}/resume            Resume (opens a new segment)
    POST   /api/sessions/{id}/end               End + accrue wage

  Policy:
    GET    /api/policy/global                   Global singleton
    PUT    /api/policy/global                   Merge partial update
    GET    /api/workers/{username}/policy       Effective policy + provenance
    PUT    /api/workers/{username}/policy       Set override (partial merge)
    DELETE /api/workers/{username}/policy       Clear override (idempotent)

  Payroll:
    POST   /api/workers/{username}/payments     Record payment
    GET    /api/workers/{username}/payments     Payment history
    PATCH  /api/payments/{id}                   Revise payment
    DELETE /api/payments/{id}                   Remove payment
    GET    /api/workers/{username}/payroll      Per-worker summary
    GET    /api/payroll/summary                 Aggregate (?period=all|week|month)

AUTHORIZATION SHAPE:
  The acting identity comes from X-Actor / X-Actor-Role headers set by a
  trusting gateway. An actor may act on their own worker identity; the
  "admin" role may act on anyone; all others get Forbidden. An absent
  X-Actor header is treated as a trusted local caller.

ERROR HANDLING:
  All responses use the uniform envelope; taxonomy errors map to stable
  codes and appropriate HTTP statuses (see writeFailure).

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/timeclock/clock"
	"github.com/warp/timeclock/payroll"
	"github.com/warp/timeclock/policy"
	"github.com/warp/timeclock/track"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    track.TxStore
	Engine   *clock.Engine
	Resolver *policy.Resolver
	Ledger   *payroll.Ledger
}

// NewHandler creates a handler around already-wired domain services.
func NewHandler(store track.TxStore, engine *clock.Engine, resolver *policy.Resolver, ledger *payroll.Ledger) *Handler {
	return &Handler{Store: store, Engine: engine, Resolver: resolver, Ledger: ledger}
}

// =============================================================================
// WORKER HANDLERS (collaborator boundary)
// =============================================================================

// ListWorkers returns all workers.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Store.ListWorkers(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}

	dtos := make([]WorkerDTO, len(workers))
	for i, wk := range workers {
		dtos[i] = toWorkerDTO(wk)
	}
	writeSuccess(w, http.StatusOK, dtos)
}

// CreateWorker creates a new worker record.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, fmt.Errorf("%w: invalid request body", track.ErrInvalidArgument))
		return
	}
	if req.Username == "" {
		writeFailure(w, fmt.Errorf("%w: username is required", track.ErrInvalidArgument))
		return
	}

	wk := track.Worker{
		Username:        req.Username,
		Name:            req.Name,
		CumulativeHours: decimal.Zero,
		CumulativeWage:  decimal.Zero,
		CreatedAt:       time.Now().UTC(),
	}
	if err := h.Store.SaveWorker(r.Context(), wk); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toWorkerDTO(wk))
}

// GetWorker returns a single worker.
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	wk, err := h.Store.GetWorker(r.Context(), username)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if wk == nil {
		writeFailure(w, track.ErrWorkerNotFound)
		return
	}
	writeSuccess(w, http.StatusOK, toWorkerDTO(*wk))
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// StartSession opens (or returns the already-open) segment for a worker.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := authorize(r, username); err != nil {
		writeFailure(w, err)
		return
	}

	session, err := h.Engine.Start(r.Context(), username)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toSessionDTO(*session))
}

// PauseSession closes an active segment with status paused.
func (h *Handler) PauseSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.Pause)
}

// ResumeSession continues a paused work period with a fresh segment.
func (h *Handler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.Resume)
}

// EndSession closes an active segment and accrues wage.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.End)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (*track.WorkSession, error)) {
	id := chi.URLParam(r, "id")

	seg, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if seg == nil {
		writeFailure(w, track.ErrSessionNotFound)
		return
	}
	if err := authorize(r, seg.Username); err != nil {
		writeFailure(w, err)
		return
	}

	session, err := op(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toSessionDTO(*session))
}

// GetStatus returns the reconstructed status and elapsed time for a worker.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	st, err := h.Engine.CurrentStatus(r.Context(), username)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toStatusDTO(st))
}

// ListSessions returns a worker's segments for a calendar day (default today).
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	day := time.Now().UTC()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			writeFailure(w, fmt.Errorf("%w: day must be YYYY-MM-DD", track.ErrInvalidArgument))
			return
		}
		day = parsed
	}

	sessions, err := h.Engine.SessionsForDay(r.Context(), username, day)
	if err != nil {
		writeFailure(w, err)
		return
	}

	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s)
	}
	writeSuccess(w, http.StatusOK, dtos)
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// GetGlobalPolicy returns the singleton (created from defaults if absent).
func (h *Handler) GetGlobalPolicy(w http.ResponseWriter, r *http.Request) {
	global, err := h.Resolver.Global(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toGlobalPolicyDTO(global))
}

// UpdateGlobalPolicy merges a partial update onto the singleton.
func (h *Handler) UpdateGlobalPolicy(w http.ResponseWriter, r *http.Request) {
	if err := authorizeAdmin(r); err != nil {
		writeFailure(w, err)
		return
	}

	patch, err := decodePolicyPatch(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	global, err := h.Resolver.UpdateGlobal(r.Context(), patch)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toGlobalPolicyDTO(global))
}

// GetEffectivePolicy returns the worker's resolved policy with provenance.
func (h *Handler) GetEffectivePolicy(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	eff, err := h.Resolver.Effective(r.Context(), username)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toEffectivePolicyDTO(eff))
}

// SetOverride merges a partial policy onto the worker's override.
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	if err := authorizeAdmin(r); err != nil {
		writeFailure(w, err)
		return
	}
	username := chi.URLParam(r, "username")

	patch, err := decodePolicyPatch(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	eff, err := h.Resolver.SetOverride(r.Context(), username, patch)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toEffectivePolicyDTO(eff))
}

// ClearOverride removes the worker's override.
func (h *Handler) ClearOverride(w http.ResponseWriter, r *http.Request) {
	if err := authorizeAdmin(r); err != nil {
		writeFailure(w, err)
		return
	}
	username := chi.URLParam(r, "username")

	if err := h.Resolver.ClearOverride(r.Context(), username); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// CreatePayment records a payment against the worker's accrued balance.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	if err := authorizeAdmin(r); err != nil {
		writeFailure(w, err)
		return
	}
	username := chi.URLParam(r, "username")

	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, fmt.Errorf("%w: invalid request body", track.ErrInvalidArgument))
		return
	}

	payment, err := h.Ledger.Pay(r.Context(), username, decimal.NewFromFloat(req.Amount), req.Note)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toPaymentDTO(*payment))
}

// ListPayments returns the worker's payment history.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := authorize(r, username); err != nil {
		writeFailure(w, err)
		return
	}

	payments, err := h.Ledger.PaymentsFor(r.Context(), username)
	if err != nil {
		writeFailure(w, err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeSuccess(w, http.StatusOK, dtos)
}

// RevisePayment patches a payment, re-validated against the balance.
func (h *Handler) RevisePayment(w http.ResponseWriter, r *http.Request) {
	if err := authorizeAdmin(r); err != nil {
		writeFailure(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	var req RevisePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, fmt.Errorf("%w: invalid request body", track.ErrInvalidArgument))
		return
	}

	patch := track.PaymentPatch{Note: req.Note}
	if req.Amount != nil {
		amount := decimal.NewFromFloat(*req.Amount)
		patch.Amount = &amount
	}

	payment, err := h.Ledger.Revise(r.Context(), id, patch)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toPaymentDTO(*payment))
}

// RemovePayment deletes a payment.
func (h *Handler) RemovePayment(w http.ResponseWriter, r *http.Request) {
	if err := authorizeAdmin(r); err != nil {
		writeFailure(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.Ledger.Remove(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

// GetWorkerSummary returns the per-worker payroll position.
func (h *Handler) GetWorkerSummary(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := authorize(r, username); err != nil {
		writeFailure(w, err)
		return
	}

	summary, err := h.Ledger.SummaryFor(r.Context(), username)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toWorkerSummaryDTO(summary))
}

// GetAggregateSummary returns the company-wide payroll position.
func (h *Handler) GetAggregateSummary(w http.ResponseWriter, r *http.Request) {
	if err := authorizeAdmin(r); err != nil {
		writeFailure(w, err)
		return
	}

	period, err := payroll.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	summary, err := h.Ledger.Aggregate(r.Context(), period)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toAggregateSummaryDTO(summary))
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

// authorize allows the actor to act on their own identity, or any identity
// when elevated. An absent X-Actor header is a trusted local caller.
func authorize(r *http.Request, username string) error {
	actor := r.Header.Get("X-Actor")
	if actor == "" || actor == username || isAdmin(r) {
		return nil
	}
	return track.ErrForbidden
}

// authorizeAdmin allows only elevated actors (or trusted local callers).
func authorizeAdmin(r *http.Request) error {
	if r.Header.Get("X-Actor") == "" || isAdmin(r) {
		return nil
	}
	return track.ErrForbidden
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-Actor-Role") == "admin"
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Status: "success", Data: data})
}

// writeFailure maps a taxonomy error to a stable code and HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, track.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, track.ErrWorkerNotFound):
		status, code = http.StatusNotFound, "worker_not_found"
	case errors.Is(err, track.ErrSessionNotFound), errors.Is(err, track.ErrPaymentNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, track.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, track.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, track.ErrConflictingSession):
		status, code = http.StatusConflict, "conflicting_session"
	case errors.Is(err, track.ErrExceedsBalance):
		status, code = http.StatusUnprocessableEntity, "exceeds_remaining_balance"
	case errors.Is(err, track.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	}

	writeJSON(w, status, Envelope{Status: "error", Code: code, Message: err.Error()})
}

// decodePolicyPatch converts the JSON patch body into a domain patch.
func decodePolicyPatch(r *http.Request) (track.PolicyPatch, error) {
	var req PolicyPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return track.PolicyPatch{}, fmt.Errorf("%w: invalid request body", track.ErrInvalidArgument)
	}

	patch := track.PolicyPatch{
		AutoPauseMinutes: req.AutoPauseMinutes,
		AutoPauseEnabled: req.AutoPauseEnabled,
	}
	if req.HourlyRate != nil {
		if *req.HourlyRate <= 0 {
			return track.PolicyPatch{}, fmt.Errorf("%w: hourly rate must be positive", track.ErrInvalidArgument)
		}
		rate := decimal.NewFromFloat(*req.HourlyRate)
		patch.HourlyRate = &rate
	}
	if req.AutoPauseMinutes != nil && *req.AutoPauseMinutes <= 0 {
		return track.PolicyPatch{}, fmt.Errorf("%w: auto-pause minutes must be positive", track.ErrInvalidArgument)
	}
	return patch, nil
}
