// Package verifier decides, vote by vote, when a task's result is accepted.
//
// Two variants share the same capability: Oracle aggregates numeric
// observations around their median and flags outliers for slashing; Simple
// accepts an exact result once the task's gate power is reached.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OracleVerifier/internal/aggregation"
	"OracleVerifier/internal/config"
	"OracleVerifier/internal/model"
)

var (
	// ErrTaskNotFound is returned for a vote on an unknown task.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskCompleted is returned for a vote on a completed task.
	ErrTaskCompleted = errors.New("task already completed")

	// ErrTaskExpired is returned for a vote after the task deadline.
	ErrTaskExpired = errors.New("task expired")

	// ErrTooEarly is returned for a vote timestamped before the task was created.
	ErrTooEarly = errors.New("task not started")

	// ErrUnknownOperator is returned for a vote from an operator without voting power.
	ErrUnknownOperator = errors.New("operator has no voting power")

	// ErrAlreadyVoted is returned for a second vote by the same operator on a task.
	ErrAlreadyVoted = errors.New("operator already voted")

	// ErrInvalidResult is returned when an oracle result is not a non-negative decimal.
	ErrInvalidResult = errors.New("invalid result")
)

// reasons maps each rejection to a stable machine-readable code.
var reasons = []struct {
	err  error
	code string
}{
	{ErrTaskNotFound, "task_not_found"},
	{ErrTaskCompleted, "task_completed"},
	{ErrTaskExpired, "task_expired"},
	{ErrTooEarly, "too_early"},
	{ErrUnknownOperator, "unknown_operator"},
	{ErrAlreadyVoted, "already_voted"},
	{ErrInvalidResult, "invalid_result"},
}

// Reason returns the rejection code of err, or "" if err is not a rejection.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return ""
}

// Verifier records votes and finalizes tasks.
type Verifier interface {
	// Kind returns the verifier variant.
	Kind() config.Kind

	// SubmitVote records a vote and reports the resulting outcome.
	// A rejected vote leaves no state behind and returns one of the Err* rejections.
	SubmitVote(ctx context.Context, task model.TaskID, operator model.OperatorID, result string) (*model.Outcome, error)
}

// Previewer is implemented by variants that can aggregate a task's votes
// without deciding it.
type Previewer interface {
	Preview(id model.TaskID) (*aggregation.Result, error)
}

// PowerLedger provides operator voting power.
type PowerLedger interface {
	VotingPower(op model.OperatorID) (model.Power, error)
}

// VoteStore persists votes and per-result tallies.
type VoteStore interface {
	Record(task model.TaskID, vote model.Vote) (model.Power, error)
	HasVoted(task model.TaskID, operator model.OperatorID) (bool, error)
	Load(task model.TaskID) ([]model.Vote, error)
	Tallies(task model.TaskID) ([]model.Tally, error)
	TotalTally(task model.TaskID) (model.Power, error)
	Prune(task model.TaskID) error
}

// TaskRegistry provides task records and completion.
type TaskRegistry interface {
	Load(id model.TaskID) (*model.Task, error)
	MarkCompleted(id model.TaskID, result string, now time.Time) error
}

// Emitter receives outcome events. Emit must not block.
type Emitter interface {
	Emit(o model.Outcome)
}

// Deps are the collaborators of a verifier.
type Deps struct {
	Ledger  PowerLedger      // Ledger provides voting power
	Votes   VoteStore        // Votes persists votes and tallies
	Tasks   TaskRegistry     // Tasks provides task records
	Events  Emitter          // Events receives outcomes
	Slasher Slasher          // Slasher penalizes outliers; defaults to NoopSlasher
	Now     func() time.Time // Now is the clock; defaults to time.Now

	// PruneCompleted deletes a task's votes and tallies once it is completed.
	PruneCompleted bool
}

// New builds the verifier variant selected by cfg.
func New(cfg *config.Config, deps Deps) (Verifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	base, err := newController(deps)
	if err != nil {
		return nil, err
	}

	switch cfg.Kind() {
	case config.KindOracle:
		return &Oracle{controller: base, cfg: cfg}, nil
	case config.KindSimple:
		return &Simple{controller: base, cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownKind, cfg.Kind())
	}
}
