/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll orchestrator via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Shifts:
    POST   /api/shifts                          Ingest shift feed batch
    GET    /api/shifts?from=&to=                Shifts in a date range

  Payroll:
    POST   /api/payroll/runs                    Weekly run for as_of's week
    POST   /api/payroll/bonuses                 Bonus processing pass

  Periods:
    GET    /api/periods?week=&status=           List periods
    GET    /api/periods/export?week=            xlsx export
    GET    /api/periods/{id}                    One period
    POST   /api/periods/{id}/approve            pending -> approved
    POST   /api/periods/{id}/pay                approved -> paid

  Contractors:
    GET    /api/contractors/{id}/periods?week=  Contractor periods
    GET    /api/contractors/{id}/bonuses        Contractor bonuses
    GET    /api/contractors/{id}/placement      Placement progress
    POST   /api/contractors/{id}/placement/placed  Mark placed
    PUT    /api/contractors/{id}/feedback       Record review score
    POST   /api/contractors/{id}/credits        Credit assignments

  Audit:
    GET    /api/audit?entity=&limit=            Audit trail

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator/v10 tags, then payroll rules)
  3. Call the orchestrator or store
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with a status from their classification:
  - 400: generic.IsClientError
  - 404: generic.IsNotFound
  - 409: duplicate period, immutable shift, lost race
  - 500: everything else

SECURITY NOTE:
  No authentication. Identity and roles belong to the platform in front of
  this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        payroll.Store
	Orchestrator *payroll.Orchestrator
	Logger       *zap.Logger

	// Today picks the default as_of. Tests pin it.
	Today func() generic.TimePoint

	validate *validator.Validate
}

// NewHandler creates a handler over an orchestrator and its store.
func NewHandler(store payroll.Store, orch *payroll.Orchestrator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:        store,
		Orchestrator: orch,
		Logger:       logger,
		Today:        generic.Today,
		validate:     validator.New(),
	}
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// ImportShifts stores a batch of shifts. Invalid shifts are reported per id
// and don't block the rest of the batch.
func (h *Handler) ImportShifts(w http.ResponseWriter, r *http.Request) {
	var req ImportShiftsRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp := ImportShiftsResponse{Rejected: map[string]string{}}
	for _, dto := range req.Shifts {
		if err := h.validate.Struct(dto); err != nil {
			resp.Rejected[dto.ID] = err.Error()
			continue
		}
		s, err := dto.ToShift()
		if err == nil {
			err = h.Store.SaveShift(r.Context(), s)
		}
		if err != nil {
			if !generic.IsClientError(err) {
				writeDomainError(w, "Failed to save shift", err)
				return
			}
			resp.Rejected[dto.ID] = err.Error()
			continue
		}
		resp.Saved++
	}
	if len(resp.Rejected) == 0 {
		resp.Rejected = nil
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListShifts returns shifts dated within [from, to].
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	from, err := generic.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := generic.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	if err := (generic.Period{Start: from, End: to}).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}

	shifts, err := h.Store.ShiftsInRange(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, "Failed to list shifts", err)
		return
	}
	dtos := make([]ShiftDTO, len(shifts))
	for i, s := range shifts {
		dtos[i] = toShiftDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// RunPayroll runs weekly payroll for the week containing as_of. A rerun of
// the same week returns the existing periods.
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.decodeAsOf(w, r)
	if !ok {
		return
	}
	result, err := h.Orchestrator.ProcessWeeklyPayroll(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, "Payroll run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(result))
}

// ProcessBonuses attaches earned bonuses to the week's open periods.
func (h *Handler) ProcessBonuses(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.decodeAsOf(w, r)
	if !ok {
		return
	}
	result, err := h.Orchestrator.ProcessBonuses(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, "Bonus processing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBonusRunResultDTO(result))
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// ListPeriods lists periods filtered by week and status.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	filter, ok := periodFilter(w, r)
	if !ok {
		return
	}
	periods, err := h.Store.ListPeriods(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list periods", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTOs(periods))
}

// GetPeriod returns one period by id.
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetPeriodByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get period", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*p))
}

// ApprovePeriod moves a pending period to approved.
func (h *Handler) ApprovePeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, payroll.PeriodApproved)
}

// PayPeriod moves an approved period to paid and its bonuses with it.
func (h *Handler) PayPeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, payroll.PeriodPaid)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to payroll.PeriodStatus) {
	p, err := h.Orchestrator.TransitionPeriod(r.Context(), chi.URLParam(r, "id"), to)
	if err != nil {
		writeDomainError(w, "Failed to update period", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*p))
}

// ExportPeriods streams the week's periods as an xlsx workbook.
func (h *Handler) ExportPeriods(w http.ResponseWriter, r *http.Request) {
	week := generic.WeekOf(h.Today())
	if s := r.URL.Query().Get("week"); s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid week", err)
			return
		}
		week = generic.WeekOf(d)
	}

	periods, err := h.Store.ListPeriods(r.Context(), payroll.PeriodFilter{WeekStart: &week.Start})
	if err != nil {
		writeDomainError(w, "Failed to list periods", err)
		return
	}

	var buf bytes.Buffer
	if err := report.WritePeriods(&buf, periods); err != nil {
		h.Logger.Error("export failed", zap.String("week", week.Start.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to build export", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(week)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// =============================================================================
// CONTRACTOR HANDLERS
// =============================================================================

// GetContractorPeriods lists one contractor's periods, optionally for a week.
func (h *Handler) GetContractorPeriods(w http.ResponseWriter, r *http.Request) {
	filter, ok := periodFilter(w, r)
	if !ok {
		return
	}
	filter.ContractorID = payroll.ContractorID(chi.URLParam(r, "id"))

	periods, err := h.Store.ListPeriods(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list periods", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTOs(periods))
}

// GetContractorBonuses lists one contractor's bonuses.
func (h *Handler) GetContractorBonuses(w http.ResponseWriter, r *http.Request) {
	bonuses, err := h.Store.ListBonuses(r.Context(), payroll.BonusFilter{
		ContractorID: payroll.ContractorID(chi.URLParam(r, "id")),
		Status:       payroll.BonusStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeDomainError(w, "Failed to list bonuses", err)
		return
	}
	writeJSON(w, http.StatusOK, toBonusDTOs(bonuses))
}

// GetPlacement returns placement progress and the bonus counter.
func (h *Handler) GetPlacement(w http.ResponseWriter, r *http.Request) {
	c := payroll.ContractorID(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, toPlacementDTO(h.Orchestrator.Progress(c), h.Orchestrator.BonusCounter(c)))
}

// MarkPlaced records that a contractor in consideration has been placed.
func (h *Handler) MarkPlaced(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.decodeAsOf(w, r)
	if !ok {
		return
	}
	c := payroll.ContractorID(chi.URLParam(r, "id"))
	p, err := h.Orchestrator.MarkPlaced(r.Context(), c, asOf)
	if err != nil {
		writeDomainError(w, "Failed to mark placed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlacementDTO(p, h.Orchestrator.BonusCounter(c)))
}

// SetFeedback records a contractor's average review score.
func (h *Handler) SetFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := payroll.ContractorID(chi.URLParam(r, "id"))
	if err := h.Store.SetFeedbackScore(r.Context(), c, *req.Score); err != nil {
		writeDomainError(w, "Failed to save feedback", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreditAssignments credits completions reported outside the shift feed.
func (h *Handler) CreditAssignments(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !h.decode(w, r, &req) {
		return
	}
	asOf, ok := h.parseAsOf(w, req.AsOf)
	if !ok {
		return
	}

	c := payroll.ContractorID(chi.URLParam(r, "id"))
	awarded, err := h.Orchestrator.CreditAssignments(r.Context(), c, req.Count, asOf)
	if err != nil {
		writeDomainError(w, "Failed to credit assignments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bonus_counter": h.Orchestrator.BonusCounter(c),
		"awarded":       toBonusDTOs(awarded),
	})
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAudit returns audit entries, optionally for one contractor.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	filter := generic.AuditFilter{Limit: 100}
	if e := r.URL.Query().Get("entity"); e != "" {
		id := generic.EntityID(e)
		filter.EntityID = &id
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// decodeAsOf reads an optional RunRequest body. An empty body means today.
func (h *Handler) decodeAsOf(w http.ResponseWriter, r *http.Request) (generic.TimePoint, bool) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return generic.TimePoint{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return generic.TimePoint{}, false
	}
	return h.parseAsOf(w, req.AsOf)
}

func (h *Handler) parseAsOf(w http.ResponseWriter, s string) (generic.TimePoint, bool) {
	if s == "" {
		return h.Today(), true
	}
	asOf, err := generic.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return generic.TimePoint{}, false
	}
	return asOf, true
}

func periodFilter(w http.ResponseWriter, r *http.Request) (payroll.PeriodFilter, bool) {
	var filter payroll.PeriodFilter
	if s := r.URL.Query().Get("week"); s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid week", err)
			return filter, false
		}
		start := generic.WeekOf(d).Start
		filter.WeekStart = &start
	}
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = payroll.PeriodStatus(s)
	}
	return filter, true
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

// writeDomainError picks the status from the error's classification.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, payroll.ErrPeriodExists),
		errors.Is(err, payroll.ErrShiftImmutable),
		generic.IsRetryable(err):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
