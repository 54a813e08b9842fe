// Package store provides an in-memory implementation of every collaborator
// contract in the commission package, for tests and local development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meridian/commission-engine/commission"
)

// =============================================================================
// MEMORY STORE - implements all commission store interfaces
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	agents    map[commission.AgentID]commission.Agent
	schedules map[commission.ScheduleKey]commission.CommissionSchedule
	policies  map[commission.PolicyID]commission.Policy
	entries   []commission.LedgerEntry
	debts     map[commission.AgentID]commission.DebtSnapshot
	batches   map[commission.BatchID]commission.PayoutBatch
	items     map[commission.BatchID][]commission.PayoutBatchItem
	summaries []commission.CommissionSummary
}

func NewMemory() *Memory {
	return &Memory{
		agents:    make(map[commission.AgentID]commission.Agent),
		schedules: make(map[commission.ScheduleKey]commission.CommissionSchedule),
		policies:  make(map[commission.PolicyID]commission.Policy),
		debts:     make(map[commission.AgentID]commission.DebtSnapshot),
		batches:   make(map[commission.BatchID]commission.PayoutBatch),
		items:     make(map[commission.BatchID][]commission.PayoutBatchItem),
	}
}

// =============================================================================
// AGENT DIRECTORY
// =============================================================================

func (m *Memory) GetAgent(_ context.Context, id commission.AgentID) (*commission.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, commission.ErrAgentNotFound)
	}
	return &a, nil
}

func (m *Memory) AgentSet(_ context.Context, ids []commission.AgentID) (map[commission.AgentID]*commission.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[commission.AgentID]*commission.Agent, len(ids))
	for _, id := range ids {
		a, ok := m.agents[id]
		if !ok {
			return nil, fmt.Errorf("agent %s: %w", id, commission.ErrAgentNotFound)
		}
		copied := a
		result[id] = &copied
	}
	return result, nil
}

func (m *Memory) ListAgents(_ context.Context) ([]commission.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]commission.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

func (m *Memory) SaveAgent(_ context.Context, agent commission.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agent.ID] = agent
	return nil
}

func (m *Memory) SetAgentActive(_ context.Context, id commission.AgentID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, commission.ErrAgentNotFound)
	}
	a.IsActive = active
	m.agents[id] = a
	return nil
}

func (m *Memory) SetPayoutDestination(_ context.Context, id commission.AgentID, destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, commission.ErrAgentNotFound)
	}
	a.PayoutDestination = destination
	m.agents[id] = a
	return nil
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

func (m *Memory) FindSchedule(_ context.Context, key commission.ScheduleKey) (*commission.CommissionSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[key]
	if !ok {
		return nil, commission.ErrScheduleNotFound
	}
	return &s, nil
}

func (m *Memory) AddSchedule(_ context.Context, schedule commission.CommissionSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[schedule.Key] = schedule
	return nil
}

func (m *Memory) ListSchedules(_ context.Context) ([]commission.CommissionSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	schedules := make([]commission.CommissionSchedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		schedules = append(schedules, s)
	}
	sort.Slice(schedules, func(i, j int) bool {
		a, b := schedules[i].Key, schedules[j].Key
		if a.Carrier != b.Carrier {
			return a.Carrier < b.Carrier
		}
		if a.ProductLine != b.ProductLine {
			return a.ProductLine < b.ProductLine
		}
		if a.PolicyType != b.PolicyType {
			return a.PolicyType < b.PolicyType
		}
		return a.Level.Rank() < b.Level.Rank()
	})
	return schedules, nil
}

// =============================================================================
// POLICY STORE
// =============================================================================

func (m *Memory) GetPolicy(_ context.Context, id commission.PolicyID) (*commission.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", id, commission.ErrPolicyNotFound)
	}
	return &p, nil
}

func (m *Memory) SavePolicy(_ context.Context, policy commission.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[policy.ID] = policy
	return nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// AppendEntries is atomic by construction: a single append under the lock.
func (m *Memory) AppendEntries(_ context.Context, entries []commission.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *Memory) Unsettled(_ context.Context, cutoff time.Time) ([]commission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []commission.LedgerEntry
	for _, e := range m.entries {
		if !e.IsSettled && !e.CreatedAt.After(cutoff) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) MarkSettled(_ context.Context, ids []commission.EntryID, batchID commission.BatchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[commission.EntryID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range m.entries {
		if want[m.entries[i].ID] {
			m.entries[i].IsSettled = true
			m.entries[i].PayoutBatchID = batchID
		}
	}
	return nil
}

func (m *Memory) EntriesByAgent(_ context.Context, agentID commission.AgentID) ([]commission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []commission.LedgerEntry
	for _, e := range m.entries {
		if e.AgentID == agentID {
			result = append(result, e)
		}
	}
	return result, nil
}

// =============================================================================
// DEBT SOURCE
// =============================================================================

func (m *Memory) Snapshots(_ context.Context, ids []commission.AgentID) (map[commission.AgentID]commission.DebtSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[commission.AgentID]commission.DebtSnapshot)
	for _, id := range ids {
		if d, ok := m.debts[id]; ok {
			result[id] = d
		}
	}
	return result, nil
}

// SetDebt upserts a debt snapshot. Stands in for the upstream debt ledger.
func (m *Memory) SetDebt(_ context.Context, snapshot commission.DebtSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debts[snapshot.AgentID] = snapshot
	return nil
}

// =============================================================================
// BATCH STORE
// =============================================================================

func (m *Memory) CreateBatch(_ context.Context, batch commission.PayoutBatch, items []commission.PayoutBatchItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches[batch.ID] = batch
	m.items[batch.ID] = append([]commission.PayoutBatchItem{}, items...)
	return nil
}

func (m *Memory) GetBatch(_ context.Context, id commission.BatchID) (*commission.PayoutBatch, []commission.PayoutBatchItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, nil, fmt.Errorf("batch %s: %w", id, commission.ErrBatchNotFound)
	}
	items := append([]commission.PayoutBatchItem{}, m.items[id]...)
	return &b, items, nil
}

func (m *Memory) UpdateBatchStatus(_ context.Context, id commission.BatchID, status commission.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return fmt.Errorf("batch %s: %w", id, commission.ErrBatchNotFound)
	}
	b.Status = status
	m.batches[id] = b
	return nil
}

// =============================================================================
// SUMMARY STORE
// =============================================================================

func (m *Memory) SaveSummary(_ context.Context, summary commission.CommissionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
	return nil
}

// Summaries returns all stored summaries, oldest first.
func (m *Memory) Summaries() []commission.CommissionSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]commission.CommissionSummary{}, m.summaries...)
}

// Compile-time interface checks.
var (
	_ commission.AgentDirectory = (*Memory)(nil)
	_ commission.ScheduleStore  = (*Memory)(nil)
	_ commission.PolicyStore    = (*Memory)(nil)
	_ commission.LedgerStore    = (*Memory)(nil)
	_ commission.DebtSource     = (*Memory)(nil)
	_ commission.BatchStore     = (*Memory)(nil)
	_ commission.SummaryStore   = (*Memory)(nil)
)
