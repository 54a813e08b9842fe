/*
payout.go - Payout batch builder (preview / commit)

PURPOSE:
  Turns unsettled ledger entries into a payout batch. One invocation is one
  stateless run through: collect → group → enrich → allocate → branch.

  Preview mode computes the per-agent payouts and returns them. Nothing is
  written; calling it repeatedly is idempotent modulo debt drift between
  calls.

  Commit mode persists one PayoutBatch row plus one item per agent (atomic,
  via BatchStore.CreateBatch), then marks every contributing ledger entry
  settled. If that final settlement update fails AFTER the batch rows landed,
  the run surfaces SettlementInconsistencyError and logs at error level:
  there is no automatic rollback, an operator reconciles by hand.

SINGLE WRITER:
  Two concurrent commit runs over the same unsettled entries would pay
  everyone twice. The caller is expected to serialize commits; the builder
  additionally holds an in-process guard keyed by batch type and rejects an
  overlapping commit with ErrPayoutRunInProgress.
*/
package commission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RunOptions parameterizes one payout run. Cutoff bounds which ledger
// entries are collected (created_at ≤ cutoff); re-invoking a failed run with
// the same cutoff is the retry story.
type RunOptions struct {
	Cutoff  time.Time
	PayDate time.Time
	Type    BatchType
}

// AgentPayout is one agent's computed line in a payout run.
type AgentPayout struct {
	AgentID          AgentID
	Gross            decimal.Decimal
	AdvanceGross     decimal.Decimal
	OverrideGross    decimal.Decimal
	ChargebackRepaid decimal.Decimal
	LeadRepaid       decimal.Decimal
	Net              decimal.Decimal
	Standing         StandingSnapshot
	EntryIDs         []EntryID
}

// PayoutRun is the result of a preview or commit. Batch is nil for previews.
type PayoutRun struct {
	Batch   *PayoutBatch
	Agents  []AgentPayout
	Total   decimal.Decimal // Σ net
	Entries int
}

// BatchBuilder builds payout runs from unsettled ledger entries.
type BatchBuilder struct {
	Ledger  LedgerStore
	Agents  AgentDirectory
	Debts   DebtSource
	Batches BatchStore

	Log *zap.Logger

	now func() time.Time

	mu       sync.Mutex
	inFlight map[BatchType]bool
}

func NewBatchBuilder(ledger LedgerStore, agents AgentDirectory, debts DebtSource, batches BatchStore, log *zap.Logger) *BatchBuilder {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchBuilder{
		Ledger:   ledger,
		Agents:   agents,
		Debts:    debts,
		Batches:  batches,
		Log:      log,
		now:      time.Now,
		inFlight: make(map[BatchType]bool),
	}
}

// WithClock overrides the builder's clock. Test hook.
func (b *BatchBuilder) WithClock(now func() time.Time) *BatchBuilder {
	b.now = now
	return b
}

// Preview computes the payout list without touching any state.
func (b *BatchBuilder) Preview(ctx context.Context, opts RunOptions) (*PayoutRun, error) {
	return b.run(ctx, opts)
}

// Commit computes the payout list and settles it into a new batch.
func (b *BatchBuilder) Commit(ctx context.Context, opts RunOptions) (*PayoutRun, error) {
	if !b.acquire(opts.Type) {
		return nil, fmt.Errorf("batch type %s: %w", opts.Type, ErrPayoutRunInProgress)
	}
	defer b.release(opts.Type)

	run, err := b.run(ctx, opts)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	batch := PayoutBatch{
		ID:          BatchID(uuid.NewString()),
		PayDate:     opts.PayDate,
		Type:        opts.Type,
		Status:      BatchPending,
		TotalAmount: run.Total,
		CreatedAt:   now,
	}

	items := make([]PayoutBatchItem, len(run.Agents))
	var entryIDs []EntryID
	for i, a := range run.Agents {
		items[i] = PayoutBatchItem{
			ID:               uuid.NewString(),
			BatchID:          batch.ID,
			AgentID:          a.AgentID,
			Amount:           a.Net,
			Gross:            a.Gross,
			ChargebackRepaid: a.ChargebackRepaid,
			LeadRepaid:       a.LeadRepaid,
			Standing:         a.Standing,
		}
		entryIDs = append(entryIDs, a.EntryIDs...)
	}

	// Batch row and items land in one transaction. On failure nothing was
	// settled and the run simply failed.
	if err := b.Batches.CreateBatch(ctx, batch, items); err != nil {
		return nil, fmt.Errorf("create payout batch: %w", err)
	}

	// The settlement update is the point of no return. If it fails here the
	// batch rows already exist and must be reconciled by hand.
	if err := b.Ledger.MarkSettled(ctx, entryIDs, batch.ID); err != nil {
		inconsistency := &SettlementInconsistencyError{
			BatchID:  batch.ID,
			EntryIDs: entryIDs,
			Err:      err,
		}
		b.Log.Error("ledger settlement failed after batch persisted; manual reconciliation required",
			zap.String("batch_id", string(batch.ID)),
			zap.Int("entries", len(entryIDs)),
			zap.Error(err))
		return nil, inconsistency
	}

	run.Batch = &batch
	b.Log.Info("payout batch committed",
		zap.String("batch_id", string(batch.ID)),
		zap.String("total", run.Total.String()),
		zap.Int("agents", len(run.Agents)))
	return run, nil
}

// run executes the shared collect → group → enrich → allocate pipeline.
func (b *BatchBuilder) run(ctx context.Context, opts RunOptions) (*PayoutRun, error) {
	// Collect.
	entries, err := b.Ledger.Unsettled(ctx, opts.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("load unsettled entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNothingToPay
	}

	// Group by agent, keeping advance/override subtotals.
	type grouping struct {
		advance  decimal.Decimal
		override decimal.Decimal
		entryIDs []EntryID
	}
	groups := make(map[AgentID]*grouping)
	for _, e := range entries {
		g := groups[e.AgentID]
		if g == nil {
			g = &grouping{advance: decimal.Zero, override: decimal.Zero}
			groups[e.AgentID] = g
		}
		switch e.Type {
		case EntryOverride:
			g.override = g.override.Add(e.Amount)
		default:
			g.advance = g.advance.Add(e.Amount)
		}
		g.entryIDs = append(g.entryIDs, e.ID)
	}

	ids := make([]AgentID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Enrich: debt and status for exactly the grouped agents, nothing wider.
	agents, err := b.Agents.AgentSet(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load agents for payout: %w", err)
	}
	debts, err := b.Debts.Snapshots(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load debt snapshots: %w", err)
	}

	// Allocate.
	run := &PayoutRun{Entries: len(entries), Total: decimal.Zero}
	for _, id := range ids {
		g := groups[id]
		agent := agents[id]
		debt := debts[id] // zero-valued when absent: no snapshot means no debt

		gross := Cents(g.advance.Add(g.override))
		alloc := Allocate(RepaymentInput{
			Gross:          gross,
			TotalDebt:      debt.TotalDebt(),
			ChargebackDebt: debt.ChargebackDebt,
			LeadDebt:       debt.LeadDebt,
			Active:         agent.IsActive,
		})

		run.Agents = append(run.Agents, AgentPayout{
			AgentID:          id,
			Gross:            gross,
			AdvanceGross:     Cents(g.advance),
			OverrideGross:    Cents(g.override),
			ChargebackRepaid: alloc.ChargebackRepaid,
			LeadRepaid:       alloc.LeadRepaid,
			Net:              alloc.Net,
			Standing: StandingSnapshot{
				LeadDebt:       debt.LeadDebt,
				ChargebackDebt: debt.ChargebackDebt,
				TotalDebt:      debt.TotalDebt(),
				IsActive:       agent.IsActive,
				GoodStanding:   GoodStanding(debt),
			},
			EntryIDs: g.entryIDs,
		})
		run.Total = run.Total.Add(alloc.Net)
	}
	run.Total = Cents(run.Total)

	return run, nil
}

func (b *BatchBuilder) acquire(t BatchType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight[t] {
		return false
	}
	b.inFlight[t] = true
	return true
}

func (b *BatchBuilder) release(t BatchType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inFlight, t)
}
