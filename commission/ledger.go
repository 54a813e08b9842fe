/*
ledger.go - Atomic ledger write for one policy event

PURPOSE:
  Turns one issued policy into its full set of ledger rows: the writing
  agent's advance plus zero or more upline overrides, written together in a
  single batch so a partial failure never leaves an override without its
  advance (or vice versa).

VALIDATION IS FRONT-LOADED:
  Everything that can reject the event does so before any write:
    - policy must exist and have a writing agent
    - premium must be positive
    - writing agent must exist
    - writing agent must have a schedule row for the policy's tuple
  Upline schedule gaps are not errors; they just end the override walk.

SECONDARY WRITE:
  After the ledger rows land, a per-policy commission summary is written
  best-effort. The ledger rows are the source of truth, so a failed summary
  write comes back as a warning on the result instead of failing the event.
*/
package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WriteResult is the outcome of processing one policy event. Entries were
// all persisted. SummaryWarning, when non-nil, means the best-effort summary
// record failed and may need a backfill; the ledger itself is complete.
type WriteResult struct {
	Policy         Policy
	Entries        []LedgerEntry
	Advance        decimal.Decimal
	OverrideTotal  decimal.Decimal
	SummaryWarning error
}

// Writer processes policy-issued events into ledger entries.
type Writer struct {
	Agents     AgentDirectory
	Schedules  ScheduleStore
	Policies   PolicyStore
	Ledger     LedgerStore
	Summaries  SummaryStore
	Propagator *Propagator

	Log *zap.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

func NewWriter(agents AgentDirectory, schedules ScheduleStore, policies PolicyStore, ledger LedgerStore, summaries SummaryStore, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		Agents:     agents,
		Schedules:  schedules,
		Policies:   policies,
		Ledger:     ledger,
		Summaries:  summaries,
		Propagator: NewPropagator(agents, schedules),
		Log:        log,
		now:        time.Now,
	}
}

// WithClock overrides the writer's clock. Test hook.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// ProcessPolicy computes and persists all commission entries for a policy.
// All-or-nothing: validation happens up front, the ledger write is one atomic
// batch, and only the summary record is allowed to fail quietly.
func (w *Writer) ProcessPolicy(ctx context.Context, policyID PolicyID) (*WriteResult, error) {
	policy, err := w.Policies.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy.AgentID == "" {
		return nil, fmt.Errorf("policy %s: %w", policyID, ErrUnassignedPolicy)
	}
	if !policy.AnnualPremium.IsPositive() {
		return nil, fmt.Errorf("policy %s premium %s: %w", policyID, policy.AnnualPremium, ErrInvalidPremium)
	}

	writing, err := w.Agents.GetAgent(ctx, policy.AgentID)
	if err != nil {
		return nil, fmt.Errorf("writing agent %s: %w", policy.AgentID, err)
	}

	sched, err := w.Schedules.FindSchedule(ctx, policy.ScheduleKeyFor(writing.Level))
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return nil, &ScheduleNotFoundError{Key: policy.ScheduleKeyFor(writing.Level)}
		}
		return nil, err
	}

	advance := AdvanceAmount(*policy, *sched)
	overrides, err := w.Propagator.ComputeOverrides(ctx, *policy, *writing, *sched)
	if err != nil {
		return nil, err
	}

	now := w.now().UTC()
	entries := make([]LedgerEntry, 0, len(overrides)+1)
	entries = append(entries, LedgerEntry{
		ID:        EntryID(uuid.NewString()),
		AgentID:   writing.ID,
		PolicyID:  policy.ID,
		Amount:    advance,
		Type:      EntryAdvance,
		CreatedAt: now,
	})

	overrideTotal := decimal.Zero
	for _, o := range overrides {
		overrideTotal = overrideTotal.Add(o.Amount)
		entries = append(entries, LedgerEntry{
			ID:        EntryID(uuid.NewString()),
			AgentID:   o.AgentID,
			PolicyID:  policy.ID,
			Amount:    o.Amount,
			Type:      EntryOverride,
			CreatedAt: now,
		})
	}

	if err := w.Ledger.AppendEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("append ledger entries for policy %s: %w", policy.ID, err)
	}

	result := &WriteResult{
		Policy:        *policy,
		Entries:       entries,
		Advance:       advance,
		OverrideTotal: Cents(overrideTotal),
	}

	summary := CommissionSummary{
		ID:            uuid.NewString(),
		PolicyID:      policy.ID,
		AgentID:       writing.ID,
		Advance:       advance,
		OverrideTotal: result.OverrideTotal,
		CreatedAt:     now,
	}
	if err := w.Summaries.SaveSummary(ctx, summary); err != nil {
		// Ledger rows are authoritative; the summary is reporting sugar.
		result.SummaryWarning = err
		w.Log.Warn("commission summary write failed",
			zap.String("policy_id", string(policy.ID)),
			zap.String("agent_id", string(writing.ID)),
			zap.Error(err))
	}

	return result, nil
}
