package commission_test

import (
	"context"
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

func seedAgent(t *testing.T, m *store.Memory, id, recruiter string, level commission.AgentLevel) commission.Agent {
	t.Helper()
	agent := commission.Agent{
		ID:          commission.AgentID(id),
		Name:        id,
		Level:       level,
		RecruiterID: commission.AgentID(recruiter),
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, m.SaveAgent(context.Background(), agent))
	return agent
}

func seedSchedule(t *testing.T, m *store.Memory, level commission.AgentLevel, baseRate, advanceRate string) commission.CommissionSchedule {
	t.Helper()
	sched := commission.CommissionSchedule{
		Key: commission.ScheduleKey{
			Carrier:     "acme-life",
			ProductLine: "term",
			PolicyType:  "individual",
			Level:       level,
		},
		BaseRate:    d(baseRate),
		AdvanceRate: d(advanceRate),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, m.AddSchedule(context.Background(), sched))
	return sched
}

func termPolicy(agentID, policyID, premium string) commission.Policy {
	return commission.Policy{
		ID:            commission.PolicyID(policyID),
		AgentID:       commission.AgentID(agentID),
		Carrier:       "acme-life",
		ProductLine:   "term",
		PolicyType:    "individual",
		AnnualPremium: d(premium),
		IssuedAt:      time.Now().UTC(),
	}
}

// =============================================================================
// ADVANCE MATH
// =============================================================================

func TestAdvanceAmount(t *testing.T) {
	// advance = ap × base_rate × advance_rate, rounded to cents
	sched := commission.CommissionSchedule{BaseRate: d("0.50"), AdvanceRate: d("0.75")}
	policy := commission.Policy{AnnualPremium: d("1200.00")}

	got := commission.AdvanceAmount(policy, sched)
	assert.True(t, got.Equal(d("450.00")), "advance=%s", got)
}

func TestAdvanceAmount_RoundsHalfUp(t *testing.T) {
	sched := commission.CommissionSchedule{BaseRate: d("0.55"), AdvanceRate: d("0.75")}
	policy := commission.Policy{AnnualPremium: d("1234.57")}

	// 1234.57 × 0.55 × 0.75 = 509.260125 → 509.26
	got := commission.AdvanceAmount(policy, sched)
	assert.True(t, got.Equal(d("509.26")), "advance=%s", got)
}

// =============================================================================
// OVERRIDE PROPAGATION
// =============================================================================

func TestComputeOverrides_SingleUpline(t *testing.T) {
	// GIVEN: writer (agent, 50%) recruited by a manager (62.5%)
	// WHEN: Computing overrides on a 1200.00 premium
	// THEN: The manager earns 1200 × 0.125 × 0.75 = 112.50

	m := store.NewMemory()
	seedAgent(t, m, "mgr-1", "", commission.LevelManager)
	writer := seedAgent(t, m, "agt-1", "mgr-1", commission.LevelAgent)
	writerSched := seedSchedule(t, m, commission.LevelAgent, "0.50", "0.75")
	seedSchedule(t, m, commission.LevelManager, "0.625", "0.75")

	p := commission.NewPropagator(m, m)
	drafts, err := p.ComputeOverrides(context.Background(), termPolicy("agt-1", "pol-1", "1200.00"), writer, writerSched)

	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, commission.AgentID("mgr-1"), drafts[0].AgentID)
	assert.True(t, drafts[0].Amount.Equal(d("112.50")), "override=%s", drafts[0].Amount)
}

func TestComputeOverrides_ChainOfUplines(t *testing.T) {
	// GIVEN: agent (50%) → manager (62.5%) → mga (70%, advance 80%)
	// WHEN: Computing overrides
	// THEN: manager earns the spread over the agent, mga the spread over the
	//       manager, each at their own advance rate

	m := store.NewMemory()
	seedAgent(t, m, "mga-1", "", commission.LevelMGA)
	seedAgent(t, m, "mgr-1", "mga-1", commission.LevelManager)
	writer := seedAgent(t, m, "agt-1", "mgr-1", commission.LevelAgent)
	writerSched := seedSchedule(t, m, commission.LevelAgent, "0.50", "0.75")
	seedSchedule(t, m, commission.LevelManager, "0.625", "0.75")
	seedSchedule(t, m, commission.LevelMGA, "0.70", "0.80")

	p := commission.NewPropagator(m, m)
	drafts, err := p.ComputeOverrides(context.Background(), termPolicy("agt-1", "pol-1", "1200.00"), writer, writerSched)

	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, commission.AgentID("mgr-1"), drafts[0].AgentID)
	assert.True(t, drafts[0].Amount.Equal(d("112.50")))

	// 1200 × (0.70 − 0.625) × 0.80 = 72.00
	assert.Equal(t, commission.AgentID("mga-1"), drafts[1].AgentID)
	assert.True(t, drafts[1].Amount.Equal(d("72.00")), "mga override=%s", drafts[1].Amount)
}

func TestComputeOverrides_ZeroSpread_SkippedButWalkContinues(t *testing.T) {
	// GIVEN: agent (50%) → mit recruiter at the same 50% → manager (62.5%)
	// WHEN: Computing overrides
	// THEN: The mit earns nothing, but the manager's spread is still computed
	//       against the 50% floor

	m := store.NewMemory()
	seedAgent(t, m, "mgr-1", "", commission.LevelManager)
	seedAgent(t, m, "mit-1", "mgr-1", commission.LevelMIT)
	writer := seedAgent(t, m, "agt-1", "mit-1", commission.LevelAgent)
	writerSched := seedSchedule(t, m, commission.LevelAgent, "0.50", "0.75")
	seedSchedule(t, m, commission.LevelMIT, "0.50", "0.75")
	seedSchedule(t, m, commission.LevelManager, "0.625", "0.75")

	p := commission.NewPropagator(m, m)
	drafts, err := p.ComputeOverrides(context.Background(), termPolicy("agt-1", "pol-1", "1200.00"), writer, writerSched)

	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, commission.AgentID("mgr-1"), drafts[0].AgentID)
	assert.True(t, drafts[0].Amount.Equal(d("112.50")))
}

func TestComputeOverrides_CycleTerminates(t *testing.T) {
	// GIVEN: Corrupted hierarchy where two agents recruit each other
	// WHEN: Computing overrides
	// THEN: The walk terminates, each upline considered at most once

	m := store.NewMemory()
	seedAgent(t, m, "a", "b", commission.LevelAgent)
	seedAgent(t, m, "b", "a", commission.LevelManager)
	writer, err := m.GetAgent(context.Background(), "a")
	require.NoError(t, err)
	writerSched := seedSchedule(t, m, commission.LevelAgent, "0.50", "0.75")
	seedSchedule(t, m, commission.LevelManager, "0.625", "0.75")

	p := commission.NewPropagator(m, m)
	drafts, err := p.ComputeOverrides(context.Background(), termPolicy("a", "pol-1", "1200.00"), *writer, writerSched)

	require.NoError(t, err)
	require.Len(t, drafts, 1, "cycle must not produce duplicate overrides")
	assert.Equal(t, commission.AgentID("b"), drafts[0].AgentID)
}

func TestComputeOverrides_MissingUplineSchedule_StopsQuietly(t *testing.T) {
	// GIVEN: A manager upline with no schedule row for the policy's product
	// WHEN: Computing overrides
	// THEN: The walk ends without error and without an override

	m := store.NewMemory()
	seedAgent(t, m, "mgr-1", "", commission.LevelManager)
	writer := seedAgent(t, m, "agt-1", "mgr-1", commission.LevelAgent)
	writerSched := seedSchedule(t, m, commission.LevelAgent, "0.50", "0.75")
	// no manager schedule

	p := commission.NewPropagator(m, m)
	drafts, err := p.ComputeOverrides(context.Background(), termPolicy("agt-1", "pol-1", "1200.00"), writer, writerSched)

	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestComputeOverrides_DanglingRecruiter_StopsQuietly(t *testing.T) {
	// GIVEN: A writer whose recruiter record was never loaded into the store
	// WHEN: Computing overrides
	// THEN: The walk ends without error

	m := store.NewMemory()
	writer := seedAgent(t, m, "agt-1", "ghost", commission.LevelAgent)
	writerSched := seedSchedule(t, m, commission.LevelAgent, "0.50", "0.75")

	p := commission.NewPropagator(m, m)
	drafts, err := p.ComputeOverrides(context.Background(), termPolicy("agt-1", "pol-1", "1200.00"), writer, writerSched)

	require.NoError(t, err)
	assert.Empty(t, drafts)
}
