/*
stores.go - Collaborator contracts consumed by the engine

PURPOSE:
  Every external system the engine talks to is an injected interface, so the
  engine is testable with in-memory fakes and indifferent to whether the
  production side is SQLite, Postgres, or another service entirely.

CONTRACTS:
  AgentDirectory:  recruiting forest + active status + payout destinations
  ScheduleStore:   append-only rate rows, exact-tuple lookup
  PolicyStore:     issued policies
  LedgerStore:     append-only entries + the single settlement update
  DebtSource:      read-only debt snapshots (owned by an external debt ledger)
  BatchStore:      payout batches and their items
  SummaryStore:    best-effort per-policy commission summaries
  TransferClient:  the external funds-transfer collaborator

IMPLEMENTATIONS:
  - store/sqlite: production store (everything except TransferClient)
  - commission/store: in-memory, for tests and dev
  - transfer: HTTP TransferClient
*/
package commission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AgentDirectory reads and maintains agents. GetAgent returns ErrAgentNotFound
// for unknown ids. AgentSet returns exactly the requested agents and fails if
// any is missing: a ledger row pointing at an unknown agent is data corruption,
// not a skippable condition.
type AgentDirectory interface {
	GetAgent(ctx context.Context, id AgentID) (*Agent, error)
	AgentSet(ctx context.Context, ids []AgentID) (map[AgentID]*Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	SaveAgent(ctx context.Context, agent Agent) error
	SetAgentActive(ctx context.Context, id AgentID, active bool) error
	SetPayoutDestination(ctx context.Context, id AgentID, destination string) error
}

// ScheduleStore holds commission rate rows. FindSchedule is exact-match and
// case-sensitive; a miss is ErrScheduleNotFound. Rows are append-only.
type ScheduleStore interface {
	FindSchedule(ctx context.Context, key ScheduleKey) (*CommissionSchedule, error)
	AddSchedule(ctx context.Context, schedule CommissionSchedule) error
	ListSchedules(ctx context.Context) ([]CommissionSchedule, error)
}

// PolicyStore holds issued policies. GetPolicy returns ErrPolicyNotFound for
// unknown ids.
type PolicyStore interface {
	GetPolicy(ctx context.Context, id PolicyID) (*Policy, error)
	SavePolicy(ctx context.Context, policy Policy) error
}

// LedgerStore persists commission ledger entries.
//
// INVARIANTS:
//   - AppendEntries is atomic: all rows for one policy event land together
//     or none do.
//   - MarkSettled is the ONLY update the entries table ever sees, and each
//     entry sees it at most once.
//   - No deletes. Ever.
type LedgerStore interface {
	AppendEntries(ctx context.Context, entries []LedgerEntry) error
	Unsettled(ctx context.Context, cutoff time.Time) ([]LedgerEntry, error)
	MarkSettled(ctx context.Context, ids []EntryID, batchID BatchID) error
	EntriesByAgent(ctx context.Context, agentID AgentID) ([]LedgerEntry, error)
}

// DebtSource reads debt snapshots for a set of agents. Agents without a
// snapshot row are simply absent from the result; callers treat absence as
// zero debt. The debt ledger itself lives upstream.
type DebtSource interface {
	Snapshots(ctx context.Context, ids []AgentID) (map[AgentID]DebtSnapshot, error)
}

// BatchStore persists payout batches. CreateBatch writes the batch row and
// all of its items as one transaction.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch PayoutBatch, items []PayoutBatchItem) error
	GetBatch(ctx context.Context, id BatchID) (*PayoutBatch, []PayoutBatchItem, error)
	UpdateBatchStatus(ctx context.Context, id BatchID, status BatchStatus) error
}

// SummaryStore persists the best-effort commission summaries. Its failures
// are warnings at the call site, never aborts.
type SummaryStore interface {
	SaveSummary(ctx context.Context, summary CommissionSummary) error
}

// TransferClient is the external funds-transfer collaborator. One call per
// agent; an error means that agent's transfer failed, nothing more.
type TransferClient interface {
	Transfer(ctx context.Context, destination string, amount decimal.Decimal, reference string) error
}
