package commission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/commission-engine/commission"
	"github.com/meridian/commission-engine/commission/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fakeTransfers records calls and fails destinations listed in failFor.
type fakeTransfers struct {
	calls   []string // destinations in call order
	failFor map[string]bool
}

func (f *fakeTransfers) Transfer(ctx context.Context, destination string, amount decimal.Decimal, reference string) error {
	f.calls = append(f.calls, destination)
	if f.failFor[destination] {
		return errors.New("provider rejected transfer")
	}
	return nil
}

func setDestination(t *testing.T, m *store.Memory, id, dest string) {
	t.Helper()
	require.NoError(t, m.SetPayoutDestination(context.Background(), commission.AgentID(id), dest))
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_MixedOutcomes(t *testing.T) {
	// GIVEN: A pending batch with a payable agent, an agent with no
	//        destination, and an agent whose transfer the provider rejects
	// WHEN: Sending the batch
	// THEN: Each item gets its own outcome; the batch still flips to sent

	m := store.NewMemory()
	seedAgent(t, m, "agt-paid", "", commission.LevelAgent)
	seedAgent(t, m, "agt-nodest", "", commission.LevelAgent)
	seedAgent(t, m, "agt-fail", "", commission.LevelAgent)
	seedEntry(t, m, "e1", "agt-paid", "450.00", commission.EntryAdvance, cutoff.Add(-time.Hour))
	seedEntry(t, m, "e2", "agt-nodest", "200.00", commission.EntryAdvance, cutoff.Add(-time.Hour))
	seedEntry(t, m, "e3", "agt-fail", "100.00", commission.EntryAdvance, cutoff.Add(-time.Hour))
	setDestination(t, m, "agt-paid", "acct-1")
	setDestination(t, m, "agt-fail", "acct-3")

	run, err := newTestBuilder(m).Commit(context.Background(), weeklyRun())
	require.NoError(t, err)

	transfers := &fakeTransfers{failFor: map[string]bool{"acct-3": true}}
	report, err := commission.NewSender(m, m, transfers, nil).Send(context.Background(), run.Batch.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Outcomes, 3)

	byAgent := map[commission.AgentID]commission.TransferOutcome{}
	for _, o := range report.Outcomes {
		byAgent[o.AgentID] = o
	}
	assert.Equal(t, commission.TransferSent, byAgent["agt-paid"].Status)
	assert.Equal(t, commission.TransferSkippedNoDest, byAgent["agt-nodest"].Status)
	assert.Equal(t, commission.TransferFailed, byAgent["agt-fail"].Status)
	assert.NotEmpty(t, byAgent["agt-fail"].Error)

	// Batch is sent regardless of per-item failures
	batch, _, err := m.GetBatch(context.Background(), run.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, commission.BatchSent, batch.Status)

	// Only agents with destinations reached the provider
	assert.ElementsMatch(t, []string{"acct-1", "acct-3"}, transfers.calls)
}

func TestSend_NonPositiveItem_Skipped(t *testing.T) {
	// GIVEN: A committed batch where full clawback left a zero net line
	// WHEN: Sending
	// THEN: The zero line never reaches the provider

	m := store.NewMemory()
	seedAgent(t, m, "agt-1", "", commission.LevelAgent)
	require.NoError(t, m.SetAgentActive(context.Background(), "agt-1", false))
	setDestination(t, m, "agt-1", "acct-1")
	seedEntry(t, m, "e1", "agt-1", "450.00", commission.EntryAdvance, cutoff.Add(-time.Hour))
	seedDebt(t, m, "agt-1", "450.00", "0") // inactive, debt swallows everything

	run, err := newTestBuilder(m).Commit(context.Background(), weeklyRun())
	require.NoError(t, err)

	transfers := &fakeTransfers{}
	report, err := commission.NewSender(m, m, transfers, nil).Send(context.Background(), run.Batch.ID)

	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, commission.TransferSkippedZero, report.Outcomes[0].Status)
	assert.Empty(t, transfers.calls)
}

func TestSend_AlreadySentBatch_Rejected(t *testing.T) {
	m := store.NewMemory()
	seedAgent(t, m, "agt-1", "", commission.LevelAgent)
	setDestination(t, m, "agt-1", "acct-1")
	seedEntry(t, m, "e1", "agt-1", "450.00", commission.EntryAdvance, cutoff.Add(-time.Hour))

	run, err := newTestBuilder(m).Commit(context.Background(), weeklyRun())
	require.NoError(t, err)

	sender := commission.NewSender(m, m, &fakeTransfers{}, nil)
	_, err = sender.Send(context.Background(), run.Batch.ID)
	require.NoError(t, err)

	// Second send must be rejected, not re-disbursed
	_, err = sender.Send(context.Background(), run.Batch.ID)

	var stateErr *commission.InvalidBatchStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, commission.BatchSent, stateErr.Status)
	assert.True(t, commission.IsConflict(err))
}

func TestSend_UnknownBatch(t *testing.T) {
	m := store.NewMemory()

	_, err := commission.NewSender(m, m, &fakeTransfers{}, nil).Send(context.Background(), "nope")

	assert.ErrorIs(t, err, commission.ErrBatchNotFound)
}
