/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All monetary fields cross the wire as decimal strings ("450.00"), never
  floats. Handlers parse them with decimal.NewFromString.

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  them through Handler.validate before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
  - commission/types.go: Domain model these map to
*/
package api

import (
	"github.com/meridian/commission-engine/commission"
)

// =============================================================================
// AGENTS
// =============================================================================

// AgentDTO represents an agent in API responses.
type AgentDTO struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Level             string `json:"level"`
	RecruiterID       string `json:"recruiter_id,omitempty"`
	IsActive          bool   `json:"is_active"`
	PayoutDestination string `json:"payout_destination,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
}

// CreateAgentRequest is the request to register an agent.
type CreateAgentRequest struct {
	ID                string `json:"id" validate:"required"`
	Name              string `json:"name" validate:"required"`
	Level             string `json:"level" validate:"required,oneof=agent mit manager mga area_manager"`
	RecruiterID       string `json:"recruiter_id"`
	PayoutDestination string `json:"payout_destination"`
}

// SetAgentActiveRequest toggles an agent's active flag.
type SetAgentActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SetDestinationRequest updates an agent's payout destination.
type SetDestinationRequest struct {
	PayoutDestination string `json:"payout_destination" validate:"required"`
}

// =============================================================================
// SCHEDULES
// =============================================================================

// ScheduleDTO represents a commission schedule row.
type ScheduleDTO struct {
	Carrier      string `json:"carrier"`
	ProductLine  string `json:"product_line"`
	PolicyType   string `json:"policy_type"`
	Level        string `json:"level"`
	BaseRate     string `json:"base_rate"`
	AdvanceRate  string `json:"advance_rate"`
	RenewalTrail string `json:"renewal_trail"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// CreateScheduleRequest adds a schedule row.
type CreateScheduleRequest struct {
	Carrier      string `json:"carrier" validate:"required"`
	ProductLine  string `json:"product_line" validate:"required"`
	PolicyType   string `json:"policy_type" validate:"required"`
	Level        string `json:"level" validate:"required,oneof=agent mit manager mga area_manager"`
	BaseRate     string `json:"base_rate" validate:"required"`
	AdvanceRate  string `json:"advance_rate" validate:"required"`
	RenewalTrail string `json:"renewal_trail"`
}

// =============================================================================
// POLICIES
// =============================================================================

// PolicyDTO represents an issued policy.
type PolicyDTO struct {
	ID            string `json:"id"`
	AgentID       string `json:"agent_id"`
	Carrier       string `json:"carrier"`
	ProductLine   string `json:"product_line"`
	PolicyType    string `json:"policy_type"`
	AnnualPremium string `json:"annual_premium"`
	IssuedAt      string `json:"issued_at,omitempty"`
}

// CreatePolicyRequest registers an issued policy.
type CreatePolicyRequest struct {
	ID            string `json:"id" validate:"required"`
	AgentID       string `json:"agent_id" validate:"required"`
	Carrier       string `json:"carrier" validate:"required"`
	ProductLine   string `json:"product_line" validate:"required"`
	PolicyType    string `json:"policy_type" validate:"required"`
	AnnualPremium string `json:"annual_premium" validate:"required"`
}

// =============================================================================
// LEDGER / COMMISSION PROCESSING
// =============================================================================

// LedgerEntryDTO represents one ledger row.
type LedgerEntryDTO struct {
	ID            string `json:"id"`
	AgentID       string `json:"agent_id"`
	PolicyID      string `json:"policy_id"`
	Amount        string `json:"amount"`
	Type          string `json:"type"`
	CreatedAt     string `json:"created_at"`
	IsSettled     bool   `json:"is_settled"`
	PayoutBatchID string `json:"payout_batch_id,omitempty"`
}

// ProcessPolicyResponse reports what a policy event wrote to the ledger.
type ProcessPolicyResponse struct {
	PolicyID       string           `json:"policy_id"`
	Advance        string           `json:"advance"`
	OverrideTotal  string           `json:"override_total"`
	Entries        []LedgerEntryDTO `json:"entries"`
	SummaryWarning string           `json:"summary_warning,omitempty"`
}

// =============================================================================
// DEBT
// =============================================================================

// DebtDTO represents an agent's debt snapshot.
type DebtDTO struct {
	AgentID        string `json:"agent_id"`
	LeadDebt       string `json:"lead_debt"`
	ChargebackDebt string `json:"chargeback_debt"`
	TotalDebt      string `json:"total_debt"`
}

// SetDebtRequest upserts a debt snapshot (ingest from the debt ledger).
type SetDebtRequest struct {
	AgentID        string `json:"agent_id" validate:"required"`
	LeadDebt       string `json:"lead_debt" validate:"required"`
	ChargebackDebt string `json:"chargeback_debt" validate:"required"`
}

// =============================================================================
// PAYOUTS
// =============================================================================

// PayoutRunRequest drives both preview and commit.
type PayoutRunRequest struct {
	Cutoff  string `json:"cutoff" validate:"required"`   // RFC3339
	PayDate string `json:"pay_date" validate:"required"` // RFC3339 date
}

// AgentPayoutDTO is one agent's line in a payout run.
type AgentPayoutDTO struct {
	AgentID          string                      `json:"agent_id"`
	Gross            string                      `json:"gross"`
	AdvanceGross     string                      `json:"advance_gross"`
	OverrideGross    string                      `json:"override_gross"`
	ChargebackRepaid string                      `json:"chargeback_repaid"`
	LeadRepaid       string                      `json:"lead_repaid"`
	Net              string                      `json:"net"`
	Standing         commission.StandingSnapshot `json:"standing"`
	EntryCount       int                         `json:"entry_count"`
}

// PayoutRunDTO is the shared shape of preview and commit responses.
type PayoutRunDTO struct {
	BatchID   string           `json:"batch_id,omitempty"` // empty on preview
	Status    string           `json:"status,omitempty"`
	PayDate   string           `json:"pay_date"`
	BatchType string           `json:"batch_type"`
	Total     string           `json:"total"`
	Entries   int              `json:"entries"`
	Agents    []AgentPayoutDTO `json:"agents"`
}

// BatchDTO represents a stored payout batch with its items.
type BatchDTO struct {
	ID          string         `json:"id"`
	PayDate     string         `json:"pay_date"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	TotalAmount string         `json:"total_amount"`
	CreatedAt   string         `json:"created_at"`
	Items       []BatchItemDTO `json:"items"`
}

// BatchItemDTO is one stored payout line.
type BatchItemDTO struct {
	ID               string                      `json:"id"`
	AgentID          string                      `json:"agent_id"`
	Amount           string                      `json:"amount"`
	Gross            string                      `json:"gross"`
	ChargebackRepaid string                      `json:"chargeback_repaid"`
	LeadRepaid       string                      `json:"lead_repaid"`
	Standing         commission.StandingSnapshot `json:"standing"`
}

// TransferOutcomeDTO is one agent's disbursement result.
type TransferOutcomeDTO struct {
	AgentID string `json:"agent_id"`
	Amount  string `json:"amount"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

// SendReportDTO summarizes a batch send.
type SendReportDTO struct {
	BatchID  string               `json:"batch_id"`
	Sent     int                  `json:"sent"`
	Failed   int                  `json:"failed"`
	Skipped  int                  `json:"skipped"`
	Outcomes []TransferOutcomeDTO `json:"outcomes"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
