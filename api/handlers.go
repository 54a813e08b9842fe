/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission ledger and payout engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Agents:
    GET    /api/agents                      List all agents
    POST   /api/agents                      Register agent
    GET    /api/agents/{id}                 Get agent details
    PUT    /api/agents/{id}/active          Activate / deactivate
    PUT    /api/agents/{id}/destination     Set payout destination
    GET    /api/agents/{id}/ledger          Ledger entries for agent

  Schedules:
    GET    /api/schedules                   List schedule rows
    POST   /api/schedules                   Add a schedule row

  Policies:
    GET    /api/policies/{id}               Get policy
    POST   /api/policies                    Register issued policy
    POST   /api/policies/{id}/commissions   Process policy event into ledger

  Debt:
    GET    /api/debts/{agentId}             Debt snapshot for agent
    PUT    /api/debts/{agentId}             Upsert snapshot (debt ledger ingest)

  Payouts:
    POST   /api/payouts/preview             Dry-run payout computation
    POST   /api/payouts/commit              Create batch, settle entries
    GET    /api/payouts/{id}                Get batch with items
    POST   /api/payouts/{id}/send           Disburse a pending batch

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (run in progress, batch already sent)
  - 500: Internal errors, settlement inconsistency

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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridian/commission-engine/commission"
)

// DebtStore is the read side of the debt mirror plus its ingest hook.
type DebtStore interface {
	commission.DebtSource
	SetDebt(ctx context.Context, snapshot commission.DebtSnapshot) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Agents    commission.AgentDirectory
	Schedules commission.ScheduleStore
	Policies  commission.PolicyStore
	Ledger    commission.LedgerStore
	Debts     DebtStore
	Batches   commission.BatchStore

	Writer  *commission.Writer
	Payouts *commission.BatchBuilder
	Sender  *commission.Sender

	Log      *zap.Logger
	validate *validator.Validate
}

// HandlerDeps bundles the collaborators a Handler needs.
type HandlerDeps struct {
	Agents    commission.AgentDirectory
	Schedules commission.ScheduleStore
	Policies  commission.PolicyStore
	Ledger    commission.LedgerStore
	Debts     DebtStore
	Batches   commission.BatchStore
	Writer    *commission.Writer
	Payouts   *commission.BatchBuilder
	Sender    *commission.Sender
	Log       *zap.Logger
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(deps HandlerDeps) *Handler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Agents:    deps.Agents,
		Schedules: deps.Schedules,
		Policies:  deps.Policies,
		Ledger:    deps.Ledger,
		Debts:     deps.Debts,
		Batches:   deps.Batches,
		Writer:    deps.Writer,
		Payouts:   deps.Payouts,
		Sender:    deps.Sender,
		Log:       log,
		validate:  validator.New(),
	}
}

// =============================================================================
// AGENT HANDLERS
// =============================================================================

// ListAgents returns all agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Agents.ListAgents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list agents", err)
		return
	}

	dtos := make([]AgentDTO, len(agents))
	for i, a := range agents {
		dtos[i] = toAgentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAgent registers an agent in the recruiting forest.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if !h.decode(w, r, &req) {
		return
	}

	// Dangling recruiter references are rejected up front; the override
	// walk tolerates them, but they are always a data entry mistake here.
	if req.RecruiterID != "" {
		if _, err := h.Agents.GetAgent(r.Context(), commission.AgentID(req.RecruiterID)); err != nil {
			writeError(w, http.StatusBadRequest, "Recruiter not found", err)
			return
		}
	}

	agent := commission.Agent{
		ID:                commission.AgentID(req.ID),
		Name:              req.Name,
		Level:             commission.AgentLevel(req.Level),
		RecruiterID:       commission.AgentID(req.RecruiterID),
		IsActive:          true,
		PayoutDestination: req.PayoutDestination,
		CreatedAt:         time.Now().UTC(),
	}
	if err := h.Agents.SaveAgent(r.Context(), agent); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save agent", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAgentDTO(agent))
}

// GetAgent returns one agent.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := commission.AgentID(chi.URLParam(r, "id"))

	agent, err := h.Agents.GetAgent(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get agent", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentDTO(*agent))
}

// SetAgentActive toggles the active flag (terminated agents repay at 100%).
func (h *Handler) SetAgentActive(w http.ResponseWriter, r *http.Request) {
	id := commission.AgentID(chi.URLParam(r, "id"))

	var req SetAgentActiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Agents.SetAgentActive(r.Context(), id, req.IsActive); err != nil {
		writeDomainError(w, "Failed to update agent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": req.IsActive})
}

// SetDestination updates where an agent's payouts are sent.
func (h *Handler) SetDestination(w http.ResponseWriter, r *http.Request) {
	id := commission.AgentID(chi.URLParam(r, "id"))

	var req SetDestinationRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Agents.SetPayoutDestination(r.Context(), id, req.PayoutDestination); err != nil {
		writeDomainError(w, "Failed to update agent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "payout_destination": req.PayoutDestination})
}

// GetAgentLedger returns the full ledger history for one agent.
func (h *Handler) GetAgentLedger(w http.ResponseWriter, r *http.Request) {
	id := commission.AgentID(chi.URLParam(r, "id"))

	if _, err := h.Agents.GetAgent(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get agent", err)
		return
	}

	entries, err := h.Ledger.EntriesByAgent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query ledger", err)
		return
	}

	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ListSchedules returns all commission schedule rows.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Schedules.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}

	dtos := make([]ScheduleDTO, len(schedules))
	for i, s := range schedules {
		dtos[i] = ScheduleDTO{
			Carrier:      s.Key.Carrier,
			ProductLine:  s.Key.ProductLine,
			PolicyType:   s.Key.PolicyType,
			Level:        string(s.Key.Level),
			BaseRate:     s.BaseRate.String(),
			AdvanceRate:  s.AdvanceRate.String(),
			RenewalTrail: s.RenewalTrail.String(),
			CreatedAt:    s.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSchedule adds one schedule row. Rows are append-only; a changed rate
// is a new row for a new tuple, never an update.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	baseRate, err := parseRate(req.BaseRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid base_rate", err)
		return
	}
	advanceRate, err := parseRate(req.AdvanceRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid advance_rate", err)
		return
	}
	renewalTrail := decimal.Zero
	if req.RenewalTrail != "" {
		renewalTrail, err = parseRate(req.RenewalTrail)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid renewal_trail", err)
			return
		}
	}

	sched := commission.CommissionSchedule{
		Key: commission.ScheduleKey{
			Carrier:     req.Carrier,
			ProductLine: req.ProductLine,
			PolicyType:  req.PolicyType,
			Level:       commission.AgentLevel(req.Level),
		},
		BaseRate:     baseRate,
		AdvanceRate:  advanceRate,
		RenewalTrail: renewalTrail,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Schedules.AddSchedule(r.Context(), sched); err != nil {
		writeError(w, http.StatusConflict, "Failed to add schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// CreatePolicy registers an issued policy.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if !h.decode(w, r, &req) {
		return
	}

	premium, err := decimal.NewFromString(req.AnnualPremium)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid annual_premium", err)
		return
	}
	if !premium.IsPositive() {
		writeError(w, http.StatusBadRequest, "annual_premium must be positive", commission.ErrInvalidPremium)
		return
	}

	if _, err := h.Agents.GetAgent(r.Context(), commission.AgentID(req.AgentID)); err != nil {
		writeDomainError(w, "Writing agent not found", err)
		return
	}

	policy := commission.Policy{
		ID:            commission.PolicyID(req.ID),
		AgentID:       commission.AgentID(req.AgentID),
		Carrier:       req.Carrier,
		ProductLine:   req.ProductLine,
		PolicyType:    req.PolicyType,
		AnnualPremium: premium,
		IssuedAt:      time.Now().UTC(),
	}
	if err := h.Policies.SavePolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyDTO(policy))
}

// GetPolicy returns one policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := commission.PolicyID(chi.URLParam(r, "id"))

	policy, err := h.Policies.GetPolicy(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(*policy))
}

// ProcessPolicy runs commission processing for an issued policy: writing
// agent advance plus upline overrides, appended atomically to the ledger.
func (h *Handler) ProcessPolicy(w http.ResponseWriter, r *http.Request) {
	id := commission.PolicyID(chi.URLParam(r, "id"))

	result, err := h.Writer.ProcessPolicy(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to process policy", err)
		return
	}

	resp := ProcessPolicyResponse{
		PolicyID:      string(result.Policy.ID),
		Advance:       result.Advance.StringFixed(2),
		OverrideTotal: result.OverrideTotal.StringFixed(2),
		Entries:       make([]LedgerEntryDTO, len(result.Entries)),
	}
	for i, e := range result.Entries {
		resp.Entries[i] = toEntryDTO(e)
	}
	if result.SummaryWarning != nil {
		resp.SummaryWarning = result.SummaryWarning.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// DEBT HANDLERS
// =============================================================================

// GetDebt returns the debt snapshot for one agent. Agents with no snapshot
// report zero debt.
func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	id := commission.AgentID(chi.URLParam(r, "agentId"))

	if _, err := h.Agents.GetAgent(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get agent", err)
		return
	}

	snaps, err := h.Debts.Snapshots(r.Context(), []commission.AgentID{id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query debt", err)
		return
	}
	snap := snaps[id] // zero value means no debt
	snap.AgentID = id

	writeJSON(w, http.StatusOK, DebtDTO{
		AgentID:        string(id),
		LeadDebt:       snap.LeadDebt.StringFixed(2),
		ChargebackDebt: snap.ChargebackDebt.StringFixed(2),
		TotalDebt:      snap.TotalDebt().StringFixed(2),
	})
}

// SetDebt upserts an agent's debt snapshot. This is the ingest endpoint the
// external debt ledger pushes to.
func (h *Handler) SetDebt(w http.ResponseWriter, r *http.Request) {
	id := commission.AgentID(chi.URLParam(r, "agentId"))

	var req SetDebtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.AgentID = string(id)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	lead, err := decimal.NewFromString(req.LeadDebt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lead_debt", err)
		return
	}
	chargeback, err := decimal.NewFromString(req.ChargebackDebt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid chargeback_debt", err)
		return
	}

	snap := commission.DebtSnapshot{
		AgentID:        id,
		LeadDebt:       lead,
		ChargebackDebt: chargeback,
	}
	if err := h.Debts.SetDebt(r.Context(), snap); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save debt snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, DebtDTO{
		AgentID:        string(id),
		LeadDebt:       lead.StringFixed(2),
		ChargebackDebt: chargeback.StringFixed(2),
		TotalDebt:      snap.TotalDebt().StringFixed(2),
	})
}

// =============================================================================
// PAYOUT HANDLERS
// =============================================================================

// PreviewPayout computes a payout run without writing anything.
func (h *Handler) PreviewPayout(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.runOptions(w, r)
	if !ok {
		return
	}

	run, err := h.Payouts.Preview(r.Context(), opts)
	if err != nil {
		writeDomainError(w, "Failed to preview payout", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run, opts))
}

// CommitPayout creates the batch, writes its items, and settles the
// underlying ledger entries.
func (h *Handler) CommitPayout(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.runOptions(w, r)
	if !ok {
		return
	}

	run, err := h.Payouts.Commit(r.Context(), opts)
	if err != nil {
		writeDomainError(w, "Failed to commit payout", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(run, opts))
}

// GetBatch returns a stored batch with its items.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := commission.BatchID(chi.URLParam(r, "id"))

	batch, items, err := h.Batches.GetBatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get batch", err)
		return
	}

	dto := BatchDTO{
		ID:          string(batch.ID),
		PayDate:     batch.PayDate.Format("2006-01-02"),
		Type:        string(batch.Type),
		Status:      string(batch.Status),
		TotalAmount: batch.TotalAmount.StringFixed(2),
		CreatedAt:   batch.CreatedAt.Format(time.RFC3339),
		Items:       make([]BatchItemDTO, len(items)),
	}
	for i, item := range items {
		dto.Items[i] = BatchItemDTO{
			ID:               item.ID,
			AgentID:          string(item.AgentID),
			Amount:           item.Amount.StringFixed(2),
			Gross:            item.Gross.StringFixed(2),
			ChargebackRepaid: item.ChargebackRepaid.StringFixed(2),
			LeadRepaid:       item.LeadRepaid.StringFixed(2),
			Standing:         item.Standing,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// SendBatch disburses a pending batch through the transfer collaborator.
func (h *Handler) SendBatch(w http.ResponseWriter, r *http.Request) {
	id := commission.BatchID(chi.URLParam(r, "id"))

	report, err := h.Sender.Send(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to send batch", err)
		return
	}

	dto := SendReportDTO{
		BatchID:  string(report.BatchID),
		Sent:     report.Sent,
		Failed:   report.Failed,
		Skipped:  report.Skipped,
		Outcomes: make([]TransferOutcomeDTO, len(report.Outcomes)),
	}
	for i, o := range report.Outcomes {
		dto.Outcomes[i] = TransferOutcomeDTO{
			AgentID: string(o.AgentID),
			Amount:  o.Amount.StringFixed(2),
			Status:  string(o.Status),
			Reason:  o.Error,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates a JSON request body. Writes the error response
// itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) runOptions(w http.ResponseWriter, r *http.Request) (commission.RunOptions, bool) {
	var req PayoutRunRequest
	if !h.decode(w, r, &req) {
		return commission.RunOptions{}, false
	}

	cutoff, err := time.Parse(time.RFC3339, req.Cutoff)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cutoff", err)
		return commission.RunOptions{}, false
	}
	payDate, err := parseDate(req.PayDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pay_date", err)
		return commission.RunOptions{}, false
	}

	return commission.RunOptions{
		Cutoff:  cutoff,
		PayDate: payDate,
		Type:    commission.BatchWeeklyAdvance,
	}, true
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseRate parses a decimal and requires it to be a sane rate in [0, 2].
func parseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(2)) {
		return decimal.Zero, errors.New("rate out of range [0, 2]")
	}
	return d, nil
}

func toAgentDTO(a commission.Agent) AgentDTO {
	return AgentDTO{
		ID:                string(a.ID),
		Name:              a.Name,
		Level:             string(a.Level),
		RecruiterID:       string(a.RecruiterID),
		IsActive:          a.IsActive,
		PayoutDestination: a.PayoutDestination,
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
	}
}

func toPolicyDTO(p commission.Policy) PolicyDTO {
	return PolicyDTO{
		ID:            string(p.ID),
		AgentID:       string(p.AgentID),
		Carrier:       p.Carrier,
		ProductLine:   p.ProductLine,
		PolicyType:    p.PolicyType,
		AnnualPremium: p.AnnualPremium.StringFixed(2),
		IssuedAt:      p.IssuedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e commission.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:            string(e.ID),
		AgentID:       string(e.AgentID),
		PolicyID:      string(e.PolicyID),
		Amount:        e.Amount.StringFixed(2),
		Type:          string(e.Type),
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		IsSettled:     e.IsSettled,
		PayoutBatchID: string(e.PayoutBatchID),
	}
}

func toRunDTO(run *commission.PayoutRun, opts commission.RunOptions) PayoutRunDTO {
	dto := PayoutRunDTO{
		PayDate:   opts.PayDate.Format("2006-01-02"),
		BatchType: string(opts.Type),
		Total:     run.Total.StringFixed(2),
		Entries:   run.Entries,
		Agents:    make([]AgentPayoutDTO, len(run.Agents)),
	}
	if run.Batch != nil {
		dto.BatchID = string(run.Batch.ID)
		dto.Status = string(run.Batch.Status)
	}
	for i, a := range run.Agents {
		dto.Agents[i] = AgentPayoutDTO{
			AgentID:          string(a.AgentID),
			Gross:            a.Gross.StringFixed(2),
			AdvanceGross:     a.AdvanceGross.StringFixed(2),
			OverrideGross:    a.OverrideGross.StringFixed(2),
			ChargebackRepaid: a.ChargebackRepaid.StringFixed(2),
			LeadRepaid:       a.LeadRepaid.StringFixed(2),
			Net:              a.Net.StringFixed(2),
			Standing:         a.Standing,
			EntryCount:       len(a.EntryIDs),
		}
	}
	return dto
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case commission.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case commission.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case commission.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, commission.ErrNothingToPay):
		writeError(w, http.StatusUnprocessableEntity, "No unsettled commissions at cutoff", err)
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
