/*
override.go - Advance and override computation for one policy event

PURPOSE:
  Computes the writing agent's advance and every upline's override for an
  issued policy. The recruiting hierarchy is a parent-pointer forest; the
  walk is iterative with an explicit visited set so a corrupted hierarchy
  (a cycle) terminates instead of spinning.

THE MATH:
  advance  = round(ap × base_rate × advance_rate, 2)
  override = round(ap × spread × advance_rate, 2)
             where spread = upline_rate − current_rate

  A zero or negative spread emits no override but still advances the walk:
  an upline with no rate advantage is skipped, and their own upline can
  still earn a spread against the higher of the two rates below them.

TERMINATION:
  The walk stops when any of these holds:
    - the current agent has no recruiter
    - the recruiter was already visited (cycle guard)
    - the recruiter's agent record is missing
    - the recruiter has no schedule row for the policy's tuple
  Missing upline schedules terminate quietly; only the WRITING agent's
  schedule is a hard requirement.
*/
package commission

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// OverrideDraft is one upline's computed override before it becomes a ledger
// entry. Amount is already rounded to cents.
type OverrideDraft struct {
	AgentID AgentID
	Level   AgentLevel
	Spread  string // informational, for logs and summaries
	Amount  decimal.Decimal
}

// Propagator walks the recruiting forest upward from a writing agent.
type Propagator struct {
	Agents    AgentDirectory
	Schedules ScheduleStore
}

func NewPropagator(agents AgentDirectory, schedules ScheduleStore) *Propagator {
	return &Propagator{Agents: agents, Schedules: schedules}
}

// ComputeOverrides walks upward from the writing agent, producing one draft
// per upline with a positive rate spread. The writing agent's own schedule
// must already be resolved; its base rate seeds the walk.
func (p *Propagator) ComputeOverrides(ctx context.Context, policy Policy, writing Agent, writingSched CommissionSchedule) ([]OverrideDraft, error) {
	visited := map[AgentID]bool{writing.ID: true}

	current := writing
	currentRate := writingSched.BaseRate

	var drafts []OverrideDraft
	for current.RecruiterID != "" {
		if visited[current.RecruiterID] {
			// Cycle in the recruiting data. Stop; everyone reachable has
			// already been considered exactly once.
			break
		}

		recruiter, err := p.Agents.GetAgent(ctx, current.RecruiterID)
		if err != nil {
			if IsNotFound(err) {
				// Dangling recruiter pointer ends the walk.
				break
			}
			return nil, fmt.Errorf("load recruiter %s: %w", current.RecruiterID, err)
		}
		visited[recruiter.ID] = true

		sched, err := p.Schedules.FindSchedule(ctx, policy.ScheduleKeyFor(recruiter.Level))
		if err != nil {
			if IsNotFound(err) {
				// No schedule at the recruiter's level terminates the walk.
				break
			}
			return nil, fmt.Errorf("schedule lookup for %s: %w", recruiter.ID, err)
		}

		spread := sched.BaseRate.Sub(currentRate)
		if spread.IsPositive() {
			amount := Cents(policy.AnnualPremium.Mul(spread).Mul(sched.AdvanceRate))
			drafts = append(drafts, OverrideDraft{
				AgentID: recruiter.ID,
				Level:   recruiter.Level,
				Spread:  spread.String(),
				Amount:  amount,
			})
		}

		// Advance the walk whether or not a spread was paid. The recruiter's
		// rate becomes the new floor for the next level up.
		current = *recruiter
		currentRate = sched.BaseRate
	}

	return drafts, nil
}

// AdvanceAmount computes the writing agent's advance for a policy.
func AdvanceAmount(policy Policy, sched CommissionSchedule) decimal.Decimal {
	return Cents(policy.AnnualPremium.Mul(sched.BaseRate).Mul(sched.AdvanceRate))
}
