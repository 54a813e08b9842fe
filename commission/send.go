/*
send.go - Hand a committed batch to the funds-transfer collaborator

PURPOSE:
  For a pending batch, attempt one transfer per agent with a positive net.
  Agents without a payout destination are skipped, not failed: onboarding
  owns destinations and the rest of the batch should still go out. Per-agent
  transfer failures are recorded and the loop continues; whoever can be paid
  gets paid. After all attempts the batch transitions pending → sent and the
  report enumerates every outcome so failures can be retried manually.
*/
package commission

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SendReport enumerates what happened to each item of a sent batch.
type SendReport struct {
	BatchID  BatchID
	Outcomes []TransferOutcome
	Sent     int
	Failed   int
	Skipped  int
}

// Sender pushes committed batches to the external transfer collaborator.
type Sender struct {
	Batches   BatchStore
	Agents    AgentDirectory
	Transfers TransferClient

	Log *zap.Logger
}

func NewSender(batches BatchStore, agents AgentDirectory, transfers TransferClient, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{Batches: batches, Agents: agents, Transfers: transfers, Log: log}
}

// Send attempts every transfer for a pending batch and marks it sent.
// Only a batch in pending status may be sent.
func (s *Sender) Send(ctx context.Context, batchID BatchID) (*SendReport, error) {
	batch, items, err := s.Batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != BatchPending {
		return nil, &InvalidBatchStateError{BatchID: batchID, Status: batch.Status}
	}

	report := &SendReport{BatchID: batchID}
	for _, item := range items {
		outcome := TransferOutcome{AgentID: item.AgentID, Amount: item.Amount}

		switch {
		case !item.Amount.IsPositive():
			outcome.Status = TransferSkippedZero
			report.Skipped++

		default:
			agent, err := s.Agents.GetAgent(ctx, item.AgentID)
			if err != nil {
				// Treat a missing agent record like a missing destination:
				// record and move on, the rest of the batch still goes out.
				outcome.Status = TransferSkippedNoDest
				outcome.Error = err.Error()
				report.Skipped++
				break
			}
			if agent.PayoutDestination == "" {
				outcome.Status = TransferSkippedNoDest
				report.Skipped++
				break
			}

			reference := fmt.Sprintf("%s/%s", batchID, item.AgentID)
			if err := s.Transfers.Transfer(ctx, agent.PayoutDestination, item.Amount, reference); err != nil {
				outcome.Status = TransferFailed
				outcome.Error = err.Error()
				report.Failed++
				s.Log.Warn("transfer failed",
					zap.String("batch_id", string(batchID)),
					zap.String("agent_id", string(item.AgentID)),
					zap.String("amount", item.Amount.String()),
					zap.Error(err))
			} else {
				outcome.Status = TransferSent
				report.Sent++
			}
		}

		report.Outcomes = append(report.Outcomes, outcome)
	}

	// The batch is sent once all transfers were attempted, regardless of
	// individual outcomes. Failed transfers are retried outside the engine.
	if err := s.Batches.UpdateBatchStatus(ctx, batchID, BatchSent); err != nil {
		return nil, fmt.Errorf("mark batch %s sent: %w", batchID, err)
	}

	s.Log.Info("payout batch sent",
		zap.String("batch_id", string(batchID)),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report, nil
}
