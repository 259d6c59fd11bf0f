package verifier

import (
	"context"
	"fmt"

	"OracleVerifier/internal/config"
	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/model"
)

// Simple completes a task with an exact result once the gate power is
// reached. It never aggregates or slashes.
//
// With GateResult the result whose own tally reached the required power
// wins. With GateTotal the gate is the total power voted across all results
// and the leading result wins.
type Simple struct {
	*controller
	cfg *config.Config
}

// Kind returns config.KindSimple.
func (s *Simple) Kind() config.Kind {
	return config.KindSimple
}

// SubmitVote records a vote and completes the task when the gate power
// reaches the required power. If marking the task completed fails the vote
// is kept, the outcome is VoteStored and the next vote retries.
func (s *Simple) SubmitVote(ctx context.Context, id model.TaskID, operator model.OperatorID, result string) (*model.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	now := s.now()

	task, power, err := s.admit(id, operator, now)
	if err != nil {
		return nil, err
	}

	tally, err := s.record(id, model.Vote{Operator: operator, Result: result, Power: power})
	if err != nil {
		return nil, err
	}

	gate, err := s.gatePower(s.cfg.Gate(), id, tally)
	if err != nil {
		return nil, err
	}

	if !gate.GTE(task.PowerRequired) {
		return s.emit(model.Outcome{TaskID: id, Operator: operator, Status: model.OutcomeVoteStored}), nil
	}

	winner := result
	if s.cfg.Gate() == config.GateTotal {
		if winner, err = s.leading(id); err != nil {
			return nil, err
		}
	}

	if !s.complete(id, winner, now) {
		return s.emit(model.Outcome{TaskID: id, Operator: operator, Status: model.OutcomeVoteStored}), nil
	}

	logger.Debug("task completed", "task", id, "result", winner, "gate", gate)

	return s.emit(model.Outcome{
		TaskID:   id,
		Operator: operator,
		Status:   model.OutcomeThresholdMet,
		Value:    &winner,
	}), nil
}

// leading returns the result with the highest tally.
// Ties go to the lexicographically smallest result.
func (s *Simple) leading(id model.TaskID) (string, error) {
	tallies, err := s.votes.Tallies(id)
	if err != nil {
		return "", fmt.Errorf("load tallies:\n%w", err)
	}

	var best *model.Tally
	for i := range tallies {
		t := &tallies[i]
		if best == nil {
			best = t
			continue
		}

		c := t.Power.Cmp(best.Power)
		if c > 0 || (c == 0 && t.Result < best.Result) {
			best = t
		}
	}

	if best == nil {
		return "", fmt.Errorf("task %d has no tallies", id)
	}

	return best.Result, nil
}
