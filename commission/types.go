/*
Package commission is the core of the agency back office: a multi-level
commission ledger and payout engine.

PURPOSE:
  When a policy is issued, the engine computes an advance commission for the
  writing agent and override commissions for every recruiter above them, and
  records both as immutable ledger entries. On a payout cycle it groups
  unsettled entries, nets each agent's gross against outstanding debt, and
  settles the entries into a payout batch that is later handed to an external
  funds-transfer collaborator.

KEY CONCEPTS IN THIS FILE (types.go):
  - Agent: identity + recruiting-forest pointer + ordered level
  - CommissionSchedule: rate tuple keyed by (carrier, product line, policy type, level)
  - LedgerEntry: an immutable advance/override fact
  - DebtSnapshot: read-only debt input from the upstream debt ledger
  - PayoutBatch / PayoutBatchItem: settlement output

DESIGN PRINCIPLES:
  1. Immutability: ledger entries are never edited, only settled once
  2. Precision: decimal.Decimal everywhere; cents are rounded half-up at each
     computation boundary so totals reconcile with the audit trail
  3. Type safety: distinct ID types for agents, policies, entries, batches
  4. Injected collaborators: every external system is an interface (stores.go)

SEE ALSO:
  - override.go: upline traversal and spread math
  - ledger.go: atomic ledger write for one policy event
  - payout.go: preview/commit payout runs
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgentID string
type PolicyID string
type EntryID string
type BatchID string

// =============================================================================
// MONEY HELPERS
// =============================================================================

// Cents rounds to two decimal places, half away from zero. Every monetary
// boundary in the engine passes through this so stored amounts, repayments,
// and nets reconcile to the cent.
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// AGENT - node in the recruiting forest
// =============================================================================

// AgentLevel is the ordered contract level. Higher levels generally carry
// higher schedule rates, which is what produces override spread.
type AgentLevel string

const (
	LevelAgent       AgentLevel = "agent"
	LevelMIT         AgentLevel = "mit"
	LevelManager     AgentLevel = "manager"
	LevelMGA         AgentLevel = "mga"
	LevelAreaManager AgentLevel = "area_manager"
)

// Rank returns the position of the level in the hierarchy, lowest first.
// Unknown levels rank below everything.
func (l AgentLevel) Rank() int {
	switch l {
	case LevelAgent:
		return 1
	case LevelMIT:
		return 2
	case LevelManager:
		return 3
	case LevelMGA:
		return 4
	case LevelAreaManager:
		return 5
	}
	return 0
}

func (l AgentLevel) Valid() bool { return l.Rank() > 0 }

// Agent is a node in the recruiting forest. RecruiterID points at the single
// upline parent ("" for roots). Agents are never hard-deleted while ledger
// rows reference them; deactivation flips IsActive, which also moves the
// agent to the 100% repayment tier.
type Agent struct {
	ID          AgentID
	Name        string
	Level       AgentLevel
	RecruiterID AgentID
	IsActive    bool

	// PayoutDestination is the external account reference maintained by the
	// onboarding collaborator. Empty means the agent cannot be paid yet.
	PayoutDestination string

	CreatedAt time.Time
}

// GoodStanding reports whether the agent's debt is within the acceptable
// threshold. Display-only: repayment math uses the tier table in repayment.go.
func GoodStanding(debt DebtSnapshot) bool {
	return debt.TotalDebt().LessThan(tierLow)
}

// =============================================================================
// COMMISSION SCHEDULE - immutable rate row
// =============================================================================

// ScheduleKey is the exact-match lookup tuple. All fields are required and
// case-sensitive.
type ScheduleKey struct {
	Carrier     string
	ProductLine string
	PolicyType  string
	Level       AgentLevel
}

// CommissionSchedule is a rate row. Rows are append-only: once a ledger entry
// has been computed from a row, the row is never mutated; rate changes are new
// rows so historical entries stay reproducible.
type CommissionSchedule struct {
	Key          ScheduleKey
	BaseRate     decimal.Decimal // fraction of annualized premium
	AdvanceRate  decimal.Decimal // fraction of the first-year commission paid up front
	RenewalTrail decimal.Decimal // trail rate after the advance period, informational
	CreatedAt    time.Time
}

// =============================================================================
// POLICY - issued policy instance
// =============================================================================

type Policy struct {
	ID            PolicyID
	AgentID       AgentID // writing agent; must be set before commission processing
	Carrier       string
	ProductLine   string
	PolicyType    string
	AnnualPremium decimal.Decimal
	IssuedAt      time.Time
}

// ScheduleKeyFor returns the schedule tuple for this policy at a given level.
func (p Policy) ScheduleKeyFor(level AgentLevel) ScheduleKey {
	return ScheduleKey{
		Carrier:     p.Carrier,
		ProductLine: p.ProductLine,
		PolicyType:  p.PolicyType,
		Level:       level,
	}
}

// =============================================================================
// LEDGER ENTRY - immutable advance/override fact
// =============================================================================

type EntryType string

const (
	EntryAdvance  EntryType = "advance"  // writing agent's up-front commission
	EntryOverride EntryType = "override" // upline's spread commission
)

// LedgerEntry is an immutable fact. The only mutation it ever sees is the
// single settlement update: IsSettled flips true and PayoutBatchID is set,
// exactly once, by a commit-mode payout run. Entries are never deleted.
type LedgerEntry struct {
	ID            EntryID
	AgentID       AgentID
	PolicyID      PolicyID
	Amount        decimal.Decimal
	Type          EntryType
	CreatedAt     time.Time
	IsSettled     bool
	PayoutBatchID BatchID
}

// CommissionSummary is the best-effort secondary record written alongside the
// ledger rows for a policy event. The ledger rows are the source of truth; a
// failed summary write is reported as a warning, never an abort.
type CommissionSummary struct {
	ID            string
	PolicyID      PolicyID
	AgentID       AgentID // writing agent
	Advance       decimal.Decimal
	OverrideTotal decimal.Decimal
	CreatedAt     time.Time
}

// =============================================================================
// DEBT SNAPSHOT - read-only input from the debt ledger collaborator
// =============================================================================

// DebtSnapshot is what the upstream debt source reports for one agent.
// Agents with no snapshot row default to zero debt.
type DebtSnapshot struct {
	AgentID        AgentID
	LeadDebt       decimal.Decimal
	ChargebackDebt decimal.Decimal
}

func (d DebtSnapshot) TotalDebt() decimal.Decimal {
	return d.LeadDebt.Add(d.ChargebackDebt)
}

// =============================================================================
// PAYOUT BATCH - settlement output
// =============================================================================

type BatchStatus string

const (
	BatchPending BatchStatus = "pending"
	BatchSent    BatchStatus = "sent"
)

// BatchType tags a payout run (and keys the in-process run guard).
type BatchType string

const BatchWeeklyAdvance BatchType = "weekly_advance"

type PayoutBatch struct {
	ID          BatchID
	PayDate     time.Time
	Type        BatchType
	Status      BatchStatus
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
}

// StandingSnapshot captures the debt and status an allocation was computed
// from, frozen onto the batch item for audit.
type StandingSnapshot struct {
	LeadDebt       decimal.Decimal `json:"lead_debt"`
	ChargebackDebt decimal.Decimal `json:"chargeback_debt"`
	TotalDebt      decimal.Decimal `json:"total_debt"`
	IsActive       bool            `json:"is_active"`
	GoodStanding   bool            `json:"good_standing"`
}

// PayoutBatchItem is one agent's row in a batch. Amount is the net payout
// after debt repayment; the repaid splits are kept for reconciliation.
type PayoutBatchItem struct {
	ID               string
	BatchID          BatchID
	AgentID          AgentID
	Amount           decimal.Decimal // net
	Gross            decimal.Decimal
	ChargebackRepaid decimal.Decimal
	LeadRepaid       decimal.Decimal
	Standing         StandingSnapshot
}

// =============================================================================
// TRANSFER OUTCOMES - per-agent results of a batch send
// =============================================================================

type TransferStatus string

const (
	TransferSent          TransferStatus = "sent"
	TransferFailed        TransferStatus = "failed"
	TransferSkippedNoDest TransferStatus = "skipped_no_destination"
	TransferSkippedZero   TransferStatus = "skipped_non_positive"
)

// TransferOutcome records what happened to one agent's item during a send.
// Failures stay here for manual retry outside the engine; they never abort
// the rest of the batch.
type TransferOutcome struct {
	AgentID AgentID
	Amount  decimal.Decimal
	Status  TransferStatus
	Error   string
}
