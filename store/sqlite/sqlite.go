/*
Package sqlite provides the SQLite-backed implementation of the commission
engine's collaborator contracts.

PURPOSE:
  Implements AgentDirectory, ScheduleStore, PolicyStore, LedgerStore,
  DebtSource, BatchStore, and SummaryStore using SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - ledger_entries: INSERT plus exactly one settlement UPDATE (is_settled,
    payout_batch_id). Nothing else touches the table. No DELETEs.
  - commission_schedules: unique on the lookup tuple, never updated in place;
    rate changes are new rows.

ATOMIC WRITES:
  - AppendEntries wraps all rows of a policy event in one transaction.
  - CreateBatch writes the batch row and its items in one transaction.
  The settlement UPDATE deliberately runs outside the batch transaction; the
  engine treats its failure as a reconciliation incident, not a rollback.

KEY TABLES:
  agents, commission_schedules, policies, ledger_entries, payout_batches,
  payout_batch_items, debt_snapshots, commission_summaries

WAL MODE:
  SQLite is opened with WAL for better read concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./data/agency.db")
  ...
  defer store.Close()

SEE ALSO:
  - commission/stores.go: interface definitions
  - commission/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian/commission-engine/commission"
)

// Store implements all persistence interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Agents (recruiting forest; soft deactivation only)
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		level TEXT NOT NULL,
		recruiter_id TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		payout_destination TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_recruiter ON agents(recruiter_id);

	-- Commission schedules (append-only rate rows)
	CREATE TABLE IF NOT EXISTS commission_schedules (
		carrier TEXT NOT NULL,
		product_line TEXT NOT NULL,
		policy_type TEXT NOT NULL,
		agent_level TEXT NOT NULL,
		base_rate TEXT NOT NULL,
		advance_rate TEXT NOT NULL,
		renewal_trail TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		PRIMARY KEY (carrier, product_line, policy_type, agent_level)
	);

	-- Issued policies
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL DEFAULT '',
		carrier TEXT NOT NULL,
		product_line TEXT NOT NULL,
		policy_type TEXT NOT NULL,
		annual_premium TEXT NOT NULL,
		issued_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_agent ON policies(agent_id);

	-- Ledger entries (immutable facts; one settlement update, no deletes)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		is_settled BOOLEAN NOT NULL DEFAULT FALSE,
		payout_batch_id TEXT NOT NULL DEFAULT ''
	);

	-- Hot path: collecting unsettled entries at a cutoff
	CREATE INDEX IF NOT EXISTS idx_ledger_unsettled
		ON ledger_entries(is_settled, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_agent
		ON ledger_entries(agent_id);

	-- Payout batches and items
	CREATE TABLE IF NOT EXISTS payout_batches (
		id TEXT PRIMARY KEY,
		pay_date TEXT NOT NULL,
		batch_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		total_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payout_batch_items (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		gross TEXT NOT NULL,
		chargeback_repaid TEXT NOT NULL,
		lead_repaid TEXT NOT NULL,
		standing_json TEXT NOT NULL,
		FOREIGN KEY (batch_id) REFERENCES payout_batches(id)
	);

	CREATE INDEX IF NOT EXISTS idx_batch_items_batch ON payout_batch_items(batch_id);
	CREATE INDEX IF NOT EXISTS idx_batch_items_agent ON payout_batch_items(agent_id);

	-- Debt snapshots (mirror of the external debt ledger)
	CREATE TABLE IF NOT EXISTS debt_snapshots (
		agent_id TEXT PRIMARY KEY,
		lead_debt TEXT NOT NULL DEFAULT '0',
		chargeback_debt TEXT NOT NULL DEFAULT '0'
	);

	-- Best-effort per-policy commission summaries
	CREATE TABLE IF NOT EXISTS commission_summaries (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		advance TEXT NOT NULL,
		override_total TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_policy ON commission_summaries(policy_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// AGENT DIRECTORY (commission.AgentDirectory interface)
// =============================================================================

func (s *Store) GetAgent(ctx context.Context, id commission.AgentID) (*commission.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAgent(ctx, id)
}

func (s *Store) getAgent(ctx context.Context, id commission.AgentID) (*commission.Agent, error) {
	var (
		a         commission.Agent
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, level, recruiter_id, is_active, payout_destination, created_at
		 FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Level, &a.RecruiterID, &a.IsActive, &a.PayoutDestination, &createdAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", id, commission.ErrAgentNotFound)
	}
	if err != nil {
		return nil, err
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func (s *Store) AgentSet(ctx context.Context, ids []commission.AgentID) (map[commission.AgentID]*commission.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[commission.AgentID]*commission.Agent, len(ids))
	for _, id := range ids {
		a, err := s.getAgent(ctx, id)
		if err != nil {
			return nil, err
		}
		result[id] = a
	}
	return result, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]commission.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, level, recruiter_id, is_active, payout_destination, created_at
		 FROM agents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []commission.Agent
	for rows.Next() {
		var (
			a         commission.Agent
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Level, &a.RecruiterID, &a.IsActive, &a.PayoutDestination, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) SaveAgent(ctx context.Context, a commission.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO agents (id, name, level, recruiter_id, is_active, payout_destination, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			level = excluded.level,
			recruiter_id = excluded.recruiter_id,
			is_active = excluded.is_active,
			payout_destination = excluded.payout_destination
	`

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Level, a.RecruiterID, a.IsActive, a.PayoutDestination,
		createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) SetAgentActive(ctx context.Context, id commission.AgentID, active bool) error {
	return s.updateAgentField(ctx, id, "is_active", active)
}

func (s *Store) SetPayoutDestination(ctx context.Context, id commission.AgentID, destination string) error {
	return s.updateAgentField(ctx, id, "payout_destination", destination)
}

func (s *Store) updateAgentField(ctx context.Context, id commission.AgentID, column string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE agents SET "+column+" = ? WHERE id = ?", value, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("agent %s: %w", id, commission.ErrAgentNotFound)
	}
	return nil
}

// =============================================================================
// SCHEDULE STORE (commission.ScheduleStore interface)
// =============================================================================

func (s *Store) FindSchedule(ctx context.Context, key commission.ScheduleKey) (*commission.CommissionSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sched                               commission.CommissionSchedule
		baseRate, advanceRate, renewalTrail string
		createdAt                           string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT carrier, product_line, policy_type, agent_level, base_rate, advance_rate, renewal_trail, created_at
		 FROM commission_schedules
		 WHERE carrier = ? AND product_line = ? AND policy_type = ? AND agent_level = ?`,
		key.Carrier, key.ProductLine, key.PolicyType, key.Level,
	).Scan(&sched.Key.Carrier, &sched.Key.ProductLine, &sched.Key.PolicyType, &sched.Key.Level,
		&baseRate, &advanceRate, &renewalTrail, &createdAt)

	if err == sql.ErrNoRows {
		return nil, commission.ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}

	sched.BaseRate = commission.MustDecimal(baseRate)
	sched.AdvanceRate = commission.MustDecimal(advanceRate)
	sched.RenewalTrail = commission.MustDecimal(renewalTrail)
	sched.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &sched, nil
}

func (s *Store) AddSchedule(ctx context.Context, sched commission.CommissionSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := sched.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commission_schedules
		 (carrier, product_line, policy_type, agent_level, base_rate, advance_rate, renewal_trail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.Key.Carrier, sched.Key.ProductLine, sched.Key.PolicyType, sched.Key.Level,
		sched.BaseRate.String(), sched.AdvanceRate.String(), sched.RenewalTrail.String(),
		createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListSchedules(ctx context.Context) ([]commission.CommissionSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT carrier, product_line, policy_type, agent_level, base_rate, advance_rate, renewal_trail, created_at
		 FROM commission_schedules
		 ORDER BY carrier, product_line, policy_type, agent_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []commission.CommissionSchedule
	for rows.Next() {
		var (
			sched                               commission.CommissionSchedule
			baseRate, advanceRate, renewalTrail string
			createdAt                           string
		)
		if err := rows.Scan(&sched.Key.Carrier, &sched.Key.ProductLine, &sched.Key.PolicyType, &sched.Key.Level,
			&baseRate, &advanceRate, &renewalTrail, &createdAt); err != nil {
			return nil, err
		}
		sched.BaseRate = commission.MustDecimal(baseRate)
		sched.AdvanceRate = commission.MustDecimal(advanceRate)
		sched.RenewalTrail = commission.MustDecimal(renewalTrail)
		sched.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

// =============================================================================
// POLICY STORE (commission.PolicyStore interface)
// =============================================================================

func (s *Store) GetPolicy(ctx context.Context, id commission.PolicyID) (*commission.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p                 commission.Policy
		premium, issuedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, carrier, product_line, policy_type, annual_premium, issued_at
		 FROM policies WHERE id = ?`, id,
	).Scan(&p.ID, &p.AgentID, &p.Carrier, &p.ProductLine, &p.PolicyType, &premium, &issuedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("policy %s: %w", id, commission.ErrPolicyNotFound)
	}
	if err != nil {
		return nil, err
	}

	p.AnnualPremium = commission.MustDecimal(premium)
	p.IssuedAt, _ = time.Parse(time.RFC3339, issuedAt)
	return &p, nil
}

func (s *Store) SavePolicy(ctx context.Context, p commission.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issuedAt := p.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policies (id, agent_id, carrier, product_line, policy_type, annual_premium, issued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			annual_premium = excluded.annual_premium`,
		p.ID, p.AgentID, p.Carrier, p.ProductLine, p.PolicyType,
		p.AnnualPremium.String(), issuedAt.Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// LEDGER STORE (commission.LedgerStore interface)
// =============================================================================

// AppendEntries inserts all rows of one policy event in a single transaction.
func (s *Store) AppendEntries(ctx context.Context, entries []commission.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (id, agent_id, policy_id, amount, entry_type, created_at, is_settled, payout_batch_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.AgentID, e.PolicyID, e.Amount.String(), e.Type,
			e.CreatedAt.Format(time.RFC3339), e.IsSettled, e.PayoutBatchID,
		)
		if err != nil {
			return fmt.Errorf("failed to append ledger entry %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) Unsettled(ctx context.Context, cutoff time.Time) ([]commission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx,
		`SELECT id, agent_id, policy_id, amount, entry_type, created_at, is_settled, payout_batch_id
		 FROM ledger_entries
		 WHERE is_settled = FALSE AND created_at <= ?
		 ORDER BY created_at ASC, id ASC`,
		cutoff.UTC().Format(time.RFC3339))
}

// MarkSettled is the single allowed update on ledger entries.
func (s *Store) MarkSettled(ctx context.Context, ids []commission.EntryID, batchID commission.BatchID) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	args := make([]any, 0, len(ids)+1)
	args = append(args, batchID)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_entries SET is_settled = TRUE, payout_batch_id = ?
		 WHERE id IN (`+placeholders+`) AND is_settled = FALSE`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to settle ledger entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("settled %d of %d ledger entries", n, len(ids))
	}
	return nil
}

func (s *Store) EntriesByAgent(ctx context.Context, agentID commission.AgentID) ([]commission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx,
		`SELECT id, agent_id, policy_id, amount, entry_type, created_at, is_settled, payout_batch_id
		 FROM ledger_entries
		 WHERE agent_id = ?
		 ORDER BY created_at ASC, id ASC`,
		agentID)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]commission.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []commission.LedgerEntry
	for rows.Next() {
		var (
			e                 commission.LedgerEntry
			amount, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &e.PolicyID, &amount, &e.Type, &createdAt, &e.IsSettled, &e.PayoutBatchID); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Amount = commission.MustDecimal(amount)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// DEBT SOURCE (commission.DebtSource interface)
// =============================================================================

func (s *Store) Snapshots(ctx context.Context, ids []commission.AgentID) (map[commission.AgentID]commission.DebtSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[commission.AgentID]commission.DebtSnapshot)
	for _, id := range ids {
		var lead, chargeback string
		err := s.db.QueryRowContext(ctx,
			"SELECT lead_debt, chargeback_debt FROM debt_snapshots WHERE agent_id = ?", id,
		).Scan(&lead, &chargeback)
		if err == sql.ErrNoRows {
			continue // absent row means zero debt
		}
		if err != nil {
			return nil, err
		}
		result[id] = commission.DebtSnapshot{
			AgentID:        id,
			LeadDebt:       commission.MustDecimal(lead),
			ChargebackDebt: commission.MustDecimal(chargeback),
		}
	}
	return result, nil
}

// SetDebt upserts a snapshot row. This is the ingest side of the external
// debt ledger mirror.
func (s *Store) SetDebt(ctx context.Context, snap commission.DebtSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO debt_snapshots (agent_id, lead_debt, chargeback_debt)
		 VALUES (?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
			lead_debt = excluded.lead_debt,
			chargeback_debt = excluded.chargeback_debt`,
		snap.AgentID, snap.LeadDebt.String(), snap.ChargebackDebt.String(),
	)
	return err
}

// =============================================================================
// BATCH STORE (commission.BatchStore interface)
// =============================================================================

// CreateBatch writes the batch row and all items in one transaction.
func (s *Store) CreateBatch(ctx context.Context, batch commission.PayoutBatch, items []commission.PayoutBatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payout_batches (id, pay_date, batch_type, status, total_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.PayDate.UTC().Format(time.RFC3339), batch.Type, batch.Status,
		batch.TotalAmount.String(), batch.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payout batch: %w", err)
	}

	for _, item := range items {
		standingJSON, err := json.Marshal(item.Standing)
		if err != nil {
			return fmt.Errorf("failed to encode standing for agent %s: %w", item.AgentID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payout_batch_items (id, batch_id, agent_id, amount, gross, chargeback_repaid, lead_repaid, standing_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.BatchID, item.AgentID,
			item.Amount.String(), item.Gross.String(),
			item.ChargebackRepaid.String(), item.LeadRepaid.String(),
			string(standingJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert batch item for agent %s: %w", item.AgentID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetBatch(ctx context.Context, id commission.BatchID) (*commission.PayoutBatch, []commission.PayoutBatchItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		batch                     commission.PayoutBatch
		payDate, total, createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pay_date, batch_type, status, total_amount, created_at
		 FROM payout_batches WHERE id = ?`, id,
	).Scan(&batch.ID, &payDate, &batch.Type, &batch.Status, &total, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("batch %s: %w", id, commission.ErrBatchNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	batch.PayDate, _ = time.Parse(time.RFC3339, payDate)
	batch.TotalAmount = commission.MustDecimal(total)
	batch.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, agent_id, amount, gross, chargeback_repaid, lead_repaid, standing_json
		 FROM payout_batch_items WHERE batch_id = ? ORDER BY agent_id`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var items []commission.PayoutBatchItem
	for rows.Next() {
		var (
			item                                          commission.PayoutBatchItem
			amount, gross, cbRepaid, leadRepaid, standing string
		)
		if err := rows.Scan(&item.ID, &item.BatchID, &item.AgentID, &amount, &gross, &cbRepaid, &leadRepaid, &standing); err != nil {
			return nil, nil, err
		}
		item.Amount = commission.MustDecimal(amount)
		item.Gross = commission.MustDecimal(gross)
		item.ChargebackRepaid = commission.MustDecimal(cbRepaid)
		item.LeadRepaid = commission.MustDecimal(leadRepaid)
		if err := json.Unmarshal([]byte(standing), &item.Standing); err != nil {
			return nil, nil, fmt.Errorf("failed to decode standing for agent %s: %w", item.AgentID, err)
		}
		items = append(items, item)
	}

	return &batch, items, rows.Err()
}

func (s *Store) UpdateBatchStatus(ctx context.Context, id commission.BatchID, status commission.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE payout_batches SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch %s: %w", id, commission.ErrBatchNotFound)
	}
	return nil
}

// =============================================================================
// SUMMARY STORE (commission.SummaryStore interface)
// =============================================================================

func (s *Store) SaveSummary(ctx context.Context, summary commission.CommissionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commission_summaries (id, policy_id, agent_id, advance, override_total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.PolicyID, summary.AgentID,
		summary.Advance.String(), summary.OverrideTotal.String(),
		summary.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// SummariesByPolicy returns the summaries recorded for a policy, oldest first.
func (s *Store) SummariesByPolicy(ctx context.Context, policyID commission.PolicyID) ([]commission.CommissionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, policy_id, agent_id, advance, override_total, created_at
		 FROM commission_summaries WHERE policy_id = ? ORDER BY created_at ASC`, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []commission.CommissionSummary
	for rows.Next() {
		var (
			sum                               commission.CommissionSummary
			advance, overrideTotal, createdAt string
		)
		if err := rows.Scan(&sum.ID, &sum.PolicyID, &sum.AgentID, &advance, &overrideTotal, &createdAt); err != nil {
			return nil, err
		}
		sum.Advance = commission.MustDecimal(advance)
		sum.OverrideTotal = commission.MustDecimal(overrideTotal)
		sum.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Compile-time interface checks.
var (
	_ commission.AgentDirectory = (*Store)(nil)
	_ commission.ScheduleStore  = (*Store)(nil)
	_ commission.PolicyStore    = (*Store)(nil)
	_ commission.LedgerStore    = (*Store)(nil)
	_ commission.DebtSource     = (*Store)(nil)
	_ commission.BatchStore     = (*Store)(nil)
	_ commission.SummaryStore   = (*Store)(nil)
)
