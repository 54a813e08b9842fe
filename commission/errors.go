/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Validation errors - bad input, rejected before any write
  2. Not-found errors  - missing policy/agent/schedule/batch
  3. Settlement errors - partial-commit conditions that need human eyes

USAGE:
  if errors.Is(err, commission.ErrScheduleNotFound) { ... }

  var inconsistency *commission.SettlementInconsistencyError
  if errors.As(err, &inconsistency) { ... }
*/
package commission

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrScheduleNotFound is returned when no schedule row matches the exact
	// (carrier, product line, policy type, level) tuple. A hard stop for the
	// writing agent; a traversal terminator for uplines.
	ErrScheduleNotFound = errors.New("commission schedule not found")

	// ErrAgentNotFound is returned when a referenced agent doesn't exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrPolicyNotFound is returned when a referenced policy doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrBatchNotFound is returned when a referenced payout batch doesn't exist.
	ErrBatchNotFound = errors.New("payout batch not found")

	// ErrInvalidPremium is returned for non-positive annualized premium.
	ErrInvalidPremium = errors.New("invalid premium: must be positive")

	// ErrUnassignedPolicy is returned when a policy has no writing agent.
	// Assignment is a precondition of commission processing, never inferred.
	ErrUnassignedPolicy = errors.New("policy has no writing agent")

	// ErrNothingToPay is the terminal response of a payout run that found
	// no unsettled ledger entries at the cutoff. No state is created.
	ErrNothingToPay = errors.New("no unsettled ledger entries to pay")

	// ErrPayoutRunInProgress is returned when a commit-mode run is already
	// in flight for the same batch type. Payout commits are single-writer.
	ErrPayoutRunInProgress = errors.New("payout run already in progress")

	// ErrInvalidBatchState is returned when sending a batch that is not pending.
	ErrInvalidBatchState = errors.New("invalid batch state")

	// ErrSettlementInconsistency marks the fatal case where batch rows were
	// persisted but the ledger settlement update failed. Requires manual
	// reconciliation; never retried automatically.
	ErrSettlementInconsistency = errors.New("settlement inconsistency")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ScheduleNotFoundError reports which tuple missed.
type ScheduleNotFoundError struct {
	Key ScheduleKey
}

func (e *ScheduleNotFoundError) Error() string {
	return fmt.Sprintf("no schedule for (%s, %s, %s, %s)",
		e.Key.Carrier, e.Key.ProductLine, e.Key.PolicyType, e.Key.Level)
}

func (e *ScheduleNotFoundError) Unwrap() error { return ErrScheduleNotFound }

// InvalidBatchStateError reports the actual status of a batch that was
// expected to be pending.
type InvalidBatchStateError struct {
	BatchID BatchID
	Status  BatchStatus
}

func (e *InvalidBatchStateError) Error() string {
	return fmt.Sprintf("batch %s is %s, expected %s", e.BatchID, e.Status, BatchPending)
}

func (e *InvalidBatchStateError) Unwrap() error { return ErrInvalidBatchState }

// SettlementInconsistencyError is raised when the batch and its items were
// written but marking the contributing ledger entries settled failed. The
// batch rows are NOT rolled back; the error carries everything an operator
// needs to reconcile by hand.
type SettlementInconsistencyError struct {
	BatchID  BatchID
	EntryIDs []EntryID
	Err      error
}

func (e *SettlementInconsistencyError) Error() string {
	return fmt.Sprintf("batch %s persisted but %d ledger entries were not settled: %v",
		e.BatchID, len(e.EntryIDs), e.Err)
}

func (e *SettlementInconsistencyError) Unwrap() error { return ErrSettlementInconsistency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrAgentNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrBatchNotFound)
}

// IsValidation returns true if the error is due to invalid input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPremium) ||
		errors.Is(err, ErrUnassignedPolicy)
}

// IsConflict returns true for state conflicts that a caller may retry later.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPayoutRunInProgress) ||
		errors.Is(err, ErrInvalidBatchState)
}
