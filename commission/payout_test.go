package commission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/commission-engine/commission"
	"github.com/meridian/commission-engine/commission/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	cutoff  = time.Date(2026, time.March, 6, 23, 59, 59, 0, time.UTC)
	payDate = time.Date(2026, time.March, 13, 0, 0, 0, 0, time.UTC)
)

func weeklyRun() commission.RunOptions {
	return commission.RunOptions{
		Cutoff:  cutoff,
		PayDate: payDate,
		Type:    commission.BatchWeeklyAdvance,
	}
}

func seedEntry(t *testing.T, m *store.Memory, id, agentID, amount string, typ commission.EntryType, at time.Time) {
	t.Helper()
	err := m.AppendEntries(context.Background(), []commission.LedgerEntry{{
		ID:        commission.EntryID(id),
		AgentID:   commission.AgentID(agentID),
		PolicyID:  "pol-1",
		Amount:    d(amount),
		Type:      typ,
		CreatedAt: at,
	}})
	require.NoError(t, err)
}

func seedDebt(t *testing.T, m *store.Memory, agentID, lead, chargeback string) {
	t.Helper()
	err := m.SetDebt(context.Background(), commission.DebtSnapshot{
		AgentID:        commission.AgentID(agentID),
		LeadDebt:       d(lead),
		ChargebackDebt: d(chargeback),
	})
	require.NoError(t, err)
}

func newTestBuilder(m *store.Memory) *commission.BatchBuilder {
	return commission.NewBatchBuilder(m, m, m, m, nil)
}

// failingSettlement makes MarkSettled fail after the batch was persisted.
type failingSettlement struct {
	*store.Memory
}

func (f *failingSettlement) MarkSettled(ctx context.Context, ids []commission.EntryID, batchID commission.BatchID) error {
	return errors.New("ledger partition unavailable")
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_ComputesWithoutMutating(t *testing.T) {
	// GIVEN: Two unsettled entries for one agent with 500.00 lead debt
	// WHEN: Previewing twice
	// THEN: Identical results, and nothing is ever settled

	m := store.NewMemory()
	seedAgent(t, m, "agt-1", "", commission.LevelAgent)
	seedEntry(t, m, "e1", "agt-1", "450.00", commission.EntryAdvance, cutoff.Add(-48*time.Hour))
	seedEntry(t, m, "e2", "agt-1", "112.50", commission.EntryOverride, cutoff.Add(-24*time.Hour))
	seedDebt(t, m, "agt-1", "500.00", "0")

	b := newTestBuilder(m)

	first, err := b.Preview(context.Background(), weeklyRun())
	require.NoError(t, err)
	second, err := b.Preview(context.Background(), weeklyRun())
	require.NoError(t, err)

	assert.Nil(t, first.Batch, "preview must not create a batch")
	require.Len(t, first.Agents, 1)

	// gross 562.50, 30% tier → withhold 168.75, net 393.75
	line := first.Agents[0]
	assert.True(t, line.Gross.Equal(d("562.50")), "gross=%s", line.Gross)
	assert.True(t, line.AdvanceGross.Equal(d("450.00")))
	assert.True(t, line.OverrideGross.Equal(d("112.50")))
	assert.True(t, line.LeadRepaid.Equal(d("168.75")), "lead repaid=%s", line.LeadRepaid)
	assert.True(t, line.Net.Equal(d("393.75")), "net=%s", line.Net)
	assert.True(t, line.Standing.GoodStanding, "debt under the first tier is still good standing")
	assert.True(t, line.Standing.TotalDebt.Equal(d("500.00")))

	assert.True(t, first.Total.Equal(second.Total), "preview must be repeatable")

	entries, err := m.Unsettled(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "preview must leave entries unsettled")
}

func TestPreview_RespectsCutoff(t *testing.T) {
	m := store.NewMemory()
	seedAgent(t, m, "agt-1", "", commission.LevelAgent)
	seedEntry(t, m, "e1", "agt-1", "100.00", commission.EntryAdvance, cutoff.Add(-time.Hour))
	seedEntry(t, m, "e2", "agt-1", "999.00", commission.EntryAdvance, cutoff.Add(time.Hour))

	run, err := newTestBuilder(m).Preview(context.Background(), weeklyRun())

	require.NoError(t, err)
	assert.Equal(t, 1, run.Entries)
	assert.True(t, run.Total.Equal(d("100.00")), "total=%s", run.Total)
}

func TestPreview_NothingToPay(t *testing.T) {
	m := store.NewMemory()

	_, err := newTestBuilder(m).Preview(context.Background(), weeklyRun())

	assert.ErrorIs(t, err, commission.ErrNothingToPay)
}

// =============================================================================
// COMMIT
// =============================================================================

func TestCommit_CreatesBatchAndSettles(t *testing.T) {
	// GIVEN: Unsettled entries for two agents
	// WHEN: Committing a weekly advance run
	// THEN: A pending batch exists, items sum to the total, entries settled

	m := store.NewMemory()
	seedAgent(t, m, "agt-1", "", commission.LevelAgent)
	seedAgent(t, m, "agt-2", "", commission.LevelAgent)
	seedEntry(t, m, "e1", "agt-1", "450.00", commission.EntryAdvance, cutoff.Add(-time.Hour))
	seedEntry(t, m, "e2", "agt-2", "300.00", commission.EntryAdvance, cutoff.Add(-time.Hour))
	seedDebt(t, m, "agt-2", "0", "120.00")

	run, err := newTestBuilder(m).Commit(context.Background(), weeklyRun())

	require.NoError(t, err)
	require.NotNil(t, run.Batch)
	assert.Equal(t, commission.BatchPending, run.Batch.Status)
	assert.Equal(t, commission.BatchWeeklyAdvance, run.Batch.Type)

	// agt-1: no debt → 450.00. agt-2: 120 debt (30% tier, max 90) → 210.00.
	assert.True(t, run.Total.Equal(d("660.00")), "total=%s", run.Total)

	batch, items, err := m.GetBatch(context.Background(), run.Batch.ID)
	require.NoError(t, err)
	assert.True(t, batch.TotalAmount.Equal(run.Total))

	itemSum := d("0")
	for _, item := range items {
		itemSum = itemSum.Add(item.Amount)
	}
	assert.True(t, itemSum.Equal(batch.TotalAmount), "Σitems=%s batch=%s", itemSum, batch.TotalAmount)

	// All entries settled and stamped with the batch
	remaining, err := m.Unsettled(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	entries, err := m.EntriesByAgent(context.Background(), "agt-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsSettled)
	assert.Equal(t, run.Batch.ID, entries[0].PayoutBatchID)
}

func TestCommit_SecondRunSeesNothing(t *testing.T) {
	// Settled entries must never pay twice.
	m := store.NewMemory()
	seedAgent(t, m, "agt-1", "", commission.LevelAgent)
	seedEntry(t, m, "e1", "agt-1", "450.00", commission.EntryAdvance, cutoff.Add(-time.Hour))

	b := newTestBuilder(m)
	_, err := b.Commit(context.Background(), weeklyRun())
	require.NoError(t, err)

	_, err = b.Commit(context.Background(), weeklyRun())
	assert.ErrorIs(t, err, commission.ErrNothingToPay)
}

func TestCommit_InactiveAgent_StillPaidAfterClawback(t *testing.T) {
	// Termination changes the repayment rate, not batch membership.
	m := store.NewMemory()
	seedAgent(t, m, "agt-1", "", commission.LevelAgent)
	require.NoError(t, m.SetAgentActive(context.Background(), "agt-1", false))
	seedEntry(t, m, "e1", "agt-1", "450.00", commission.EntryAdvance, cutoff.Add(-time.Hour))
	seedDebt(t, m, "agt-1", "300.00", "0")

	run, err := newTestBuilder(m).Commit(context.Background(), weeklyRun())

	require.NoError(t, err)
	require.Len(t, run.Agents, 1)
	assert.True(t, run.Agents[0].LeadRepaid.Equal(d("300.00")))
	assert.True(t, run.Agents[0].Net.Equal(d("150.00")), "net=%s", run.Agents[0].Net)
	assert.False(t, run.Agents[0].Standing.IsActive)
}

func TestCommit_SettlementFailure_ReportsInconsistency(t *testing.T) {
	// GIVEN: The settlement update fails after the batch was persisted
	// WHEN: Committing
	// THEN: The error identifies the batch and entries for reconciliation

	m := store.NewMemory()
	seedAgent(t, m, "agt-1", "", commission.LevelAgent)
	seedEntry(t, m, "e1", "agt-1", "450.00", commission.EntryAdvance, cutoff.Add(-time.Hour))

	b := commission.NewBatchBuilder(&failingSettlement{m}, m, m, m, nil)
	_, err := b.Commit(context.Background(), weeklyRun())

	var inconsistency *commission.SettlementInconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	assert.NotEmpty(t, inconsistency.BatchID)
	assert.Equal(t, []commission.EntryID{"e1"}, inconsistency.EntryIDs)

	// The batch rows survived; that is exactly what reconciliation needs.
	_, items, err := m.GetBatch(context.Background(), inconsistency.BatchID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
