/*
handlers.go - HTTP handlers for the billing engine

PURPOSE:
  Exposes the billing workflows via REST. Handles HTTP request/response,
  JSON serialization, and delegates everything else to billing.Service.

REQUEST FLOW:
  1. Resolve actor (actor.go middleware)
  2. Parse and normalize the request body
  3. Call the service operation
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  Service errors map onto HTTP statuses by category:
  - 422: validation (bad input, unknown ids in a batch)
  - 403: authorization (role or department scope)
  - 404: unknown entry/statement
  - 409: state conflict; the body names the current status
  - 500: infrastructure; the body carries only a correlation id,
         the cause goes to the log

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - billing/errors.go: The error taxonomy mapped here
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vereinswerk/billing-engine/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *billing.Service
	Log     *zap.Logger
}

// NewHandler creates a handler around the billing service.
func NewHandler(service *billing.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: service, Log: log}
}

// =============================================================================
// TIME ENTRY HANDLERS
// =============================================================================

// CreateEntry records a new draft entry for the caller.
// POST /api/entries
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	in, err := parseEntryInput(req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	entry, err := h.Service.CreateEntry(r.Context(), actorFrom(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// ListDrafts returns the caller's entries still in Draft status.
// GET /api/entries/drafts
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.Service.Drafts(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(drafts))
}

// GetEntry returns one entry with its current pricing.
// GET /api/entries/{id}
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	priced, err := h.Service.PriceEntry(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPricedEntryDTO(*priced))
}

// UpdateEntry applies an audited correction.
// PUT /api/entries/{id}
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	in, err := parseEntryInput(req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	entry, err := h.Service.UpdateEntry(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in, req.Comment)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// DeleteEntry removes an entry (soft for linked/submitted ones).
// DELETE /api/entries/{id}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteEntry(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetEntryAudit returns the field-level correction trail.
// GET /api/entries/{id}/audit
func (h *Handler) GetEntryAudit(w http.ResponseWriter, r *http.Request) {
	trail, err := h.Service.EntryAudit(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(trail))
}

// GetEntryHistory returns the status ledger of an entry.
// GET /api/entries/{id}/history
func (h *Handler) GetEntryHistory(w http.ResponseWriter, r *http.Request) {
	log, err := h.Service.EntryHistory(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusLogDTOs(log))
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

// AssembleStatements builds statements from the listed entries.
// POST /api/statements
func (h *Handler) AssembleStatements(w http.ResponseWriter, r *http.Request) {
	var req AssembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	statements, err := h.Service.Assemble(r.Context(), actorFrom(r), req.EntryIDs)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	ids := make([]string, len(statements))
	for i, s := range statements {
		ids[i] = s.ID
	}
	writeJSON(w, http.StatusCreated, map[string]any{"statement_ids": ids})
}

// GetStatement returns one priced statement.
// GET /api/statements/{id}
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.StatementView(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(*view))
}

// ListMyStatements returns the caller's statements, priced.
// GET /api/statements/mine
func (h *Handler) ListMyStatements(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.MyStatements(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTOs(views))
}

// ListPendingStatements returns Created statements in the caller's departments.
// GET /api/statements/pending
func (h *Handler) ListPendingStatements(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.PendingForDeptHead(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTOs(views))
}

// ListApprovedStatements returns statements awaiting payment approval.
// GET /api/statements/approved
func (h *Handler) ListApprovedStatements(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.ApprovedForOffice(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTOs(views))
}

// ListPayouts returns statements ready for transfer.
// GET /api/statements/payouts
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.Payouts(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTOs(views))
}

// ListHistory returns terminal statements in the caller's scope.
// GET /api/statements/history?quarter=
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.History(r.Context(), actorFrom(r), r.URL.Query().Get("quarter"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTOs(views))
}

// AddStatementEntry lets an approver insert an entry into a statement.
// POST /api/statements/{id}/entries
func (h *Handler) AddStatementEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	in, err := parseEntryInput(req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	entry, err := h.Service.AddStatementEntry(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// ApproveStatement records the department head's approval.
// POST /api/statements/{id}/approve
func (h *Handler) ApproveStatement(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Approve(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FinalizeResponse{
		Status:     int(billing.StatusDeptHeadApproved),
		StatusName: billing.StatusDeptHeadApproved.String(),
	})
}

// RejectStatement terminates a statement and invalidates its entries.
// POST /api/statements/{id}/reject
func (h *Handler) RejectStatement(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.Service.Reject(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Reason); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FinalizeResponse{
		Status:     int(billing.StatusRejected),
		StatusName: billing.StatusRejected.String(),
	})
}

// FinalizeStatement advances one business-office step.
// POST /api/statements/{id}/finalize
func (h *Handler) FinalizeStatement(w http.ResponseWriter, r *http.Request) {
	next, err := h.Service.Finalize(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FinalizeResponse{Status: int(next), StatusName: next.String()})
}

// FinalizeBulk marks all listed ReadyForPayment statements as Paid.
// POST /api/statements/finalize-bulk
func (h *Handler) FinalizeBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkFinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	count, err := h.Service.FinalizeBulk(r.Context(), actorFrom(r), req.StatementIDs)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkFinalizeResponse{Finalized: count})
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

// ListCurrentRates returns the open rates of a department.
// GET /api/rates/current?department_id=
func (h *Handler) ListCurrentRates(w http.ResponseWriter, r *http.Request) {
	dept := r.URL.Query().Get("department_id")
	rates, err := h.Service.CurrentRates(r.Context(), actorFrom(r), dept)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRateDTOs(rates))
}

// ListRateHistory returns a worker's rate records for a department.
// GET /api/rates/history?worker_id=&department_id=
func (h *Handler) ListRateHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rates, err := h.Service.RateHistory(r.Context(), actorFrom(r), q.Get("worker_id"), q.Get("department_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRateDTOs(rates))
}

// UpdateRate performs a rate rollover.
// POST /api/rates
func (h *Handler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeServiceError(w, r, billing.Validationf("invalid amount %q", req.Amount))
		return
	}
	validFrom, err := billing.ParseDay(req.ValidFrom)
	if err != nil {
		h.writeServiceError(w, r, billing.Validationf("invalid valid_from %q (use YYYY-MM-DD)", req.ValidFrom))
		return
	}

	record, err := h.Service.UpdateRate(r.Context(), actorFrom(r), req.WorkerID, req.DepartmentID, amount, validFrom)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateDTO(*record))
}

// =============================================================================
// SURCHARGE HANDLERS
// =============================================================================

// ListSurcharges returns all surcharge rules.
// GET /api/surcharges
func (h *Handler) ListSurcharges(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Service.Surcharges(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]SurchargeDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toSurchargeDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSurcharge adds a surcharge rule.
// POST /api/surcharges
func (h *Handler) CreateSurcharge(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseSurchargeRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rule, err := h.Service.CreateSurcharge(r.Context(), actorFrom(r), *in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSurchargeDTO(*rule))
}

// UpdateSurcharge replaces a rule's fields.
// PUT /api/surcharges/{id}
func (h *Handler) UpdateSurcharge(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseSurchargeRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rule, err := h.Service.UpdateSurcharge(r.Context(), actorFrom(r), chi.URLParam(r, "id"), *in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSurchargeDTO(*rule))
}

// DeleteSurcharge removes a rule.
// DELETE /api/surcharges/{id}
func (h *Handler) DeleteSurcharge(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteSurcharge(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseSurchargeRequest(r *http.Request) (*billing.SurchargeRuleInput, error) {
	var req SurchargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, billing.Validationf("invalid request body")
	}
	multiplier, err := decimal.NewFromString(req.Multiplier)
	if err != nil {
		return nil, billing.Validationf("invalid multiplier %q", req.Multiplier)
	}
	validFrom, err := billing.ParseDay(req.ValidFrom)
	if err != nil {
		return nil, billing.Validationf("invalid valid_from %q (use YYYY-MM-DD)", req.ValidFrom)
	}
	in := billing.SurchargeRuleInput{Multiplier: multiplier, ValidFrom: validFrom}
	if req.ValidTo != "" {
		to, err := billing.ParseDay(req.ValidTo)
		if err != nil {
			return nil, billing.Validationf("invalid valid_to %q (use YYYY-MM-DD)", req.ValidTo)
		}
		in.ValidTo = &to
	}
	return &in, nil
}

// =============================================================================
// QUARTERS AND LIMITS
// =============================================================================

// ListQuarters returns the configured billing quarters.
// GET /api/quarters
func (h *Handler) ListQuarters(w http.ResponseWriter, r *http.Request) {
	quarters, err := h.Service.Quarters(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]QuarterDTO, len(quarters))
	for i, q := range quarters {
		dtos[i] = QuarterDTO{
			ID:    q.ID,
			Name:  q.Name,
			Start: q.Start.Format("2006-01-02"),
			End:   q.End.Format("2006-01-02"),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveQuarter creates or replaces a billing quarter.
// POST /api/quarters
func (h *Handler) SaveQuarter(w http.ResponseWriter, r *http.Request) {
	var req QuarterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	start, err := billing.ParseDay(req.Start)
	if err != nil {
		h.writeServiceError(w, r, billing.Validationf("invalid start %q (use YYYY-MM-DD)", req.Start))
		return
	}
	end, err := billing.ParseDay(req.End)
	if err != nil {
		h.writeServiceError(w, r, billing.Validationf("invalid end %q (use YYYY-MM-DD)", req.End))
		return
	}

	quarter, err := h.Service.SaveQuarter(r.Context(), actorFrom(r), billing.Quarter{
		ID:    req.ID,
		Name:  req.Name,
		Start: start,
		End:   end,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, QuarterDTO{
		ID:    quarter.ID,
		Name:  quarter.Name,
		Start: quarter.Start.Format("2006-01-02"),
		End:   quarter.End.Format("2006-01-02"),
	})
}

// SetLimit records a new quarterly hour limit.
// POST /api/limits
func (h *Handler) SetLimit(w http.ResponseWriter, r *http.Request) {
	var req LimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		h.writeServiceError(w, r, billing.Validationf("invalid value %q", req.Value))
		return
	}
	validFrom, err := billing.ParseDay(req.ValidFrom)
	if err != nil {
		h.writeServiceError(w, r, billing.Validationf("invalid valid_from %q (use YYYY-MM-DD)", req.ValidFrom))
		return
	}
	limit := billing.Limit{Value: value, ValidFrom: validFrom}
	if req.ValidTo != "" {
		to, err := billing.ParseDay(req.ValidTo)
		if err != nil {
			h.writeServiceError(w, r, billing.Validationf("invalid valid_to %q (use YYYY-MM-DD)", req.ValidTo))
			return
		}
		limit.ValidTo = &to
	}

	saved, err := h.Service.SetLimit(r.Context(), actorFrom(r), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         saved.ID,
		"value":      saved.Value.Round(2).String(),
		"valid_from": saved.ValidFrom.Format("2006-01-02"),
	})
}

// LimitOverview reports hours against the active quarter limit.
// GET /api/limits/overview
func (h *Handler) LimitOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Service.LimitOverview(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]LimitUsageDTO, len(overview))
	for i, u := range overview {
		dtos[i] = LimitUsageDTO{
			WorkerID:  u.WorkerID,
			Hours:     u.Hours.Round(2).String(),
			Limit:     u.Limit.Round(2).String(),
			Remaining: u.Remaining.Round(2).String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseEntryInput(req EntryRequest) (billing.EntryInput, error) {
	var in billing.EntryInput
	date, err := billing.ParseDay(req.Date)
	if err != nil {
		return in, billing.Validationf("invalid date %q (use YYYY-MM-DD)", req.Date)
	}
	start, err := billing.ParseTimeOfDay(req.Start)
	if err != nil {
		return in, billing.Validationf("invalid start time %q (use HH:MM or HH:MM:SS)", req.Start)
	}
	end, err := billing.ParseTimeOfDay(req.End)
	if err != nil {
		return in, billing.Validationf("invalid end time %q (use HH:MM or HH:MM:SS)", req.End)
	}
	return billing.EntryInput{
		Date:         date,
		Start:        start,
		End:          end,
		DepartmentID: req.DepartmentID,
		Label:        req.Label,
	}, nil
}

// writeServiceError maps the billing error taxonomy to HTTP statuses.
// Infrastructure causes are logged, never sent to the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case billing.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case billing.IsAuthorization(err):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case billing.IsState(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		correlationID := middleware.GetReqID(r.Context())
		h.Log.Error("internal error",
			zap.String("correlation_id", correlationID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:         "internal error",
			CorrelationID: correlationID,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil && !errors.Is(err, billing.ErrInfra) {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
