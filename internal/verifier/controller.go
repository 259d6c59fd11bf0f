package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OracleVerifier/internal/config"
	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/model"
	"OracleVerifier/internal/registry"
	"OracleVerifier/internal/votes"
)

// controller holds what both variants share: collaborators, the clock,
// per-task serialization and precondition checks.
type controller struct {
	ledger  PowerLedger
	votes   VoteStore
	tasks   TaskRegistry
	events  Emitter
	slasher Slasher
	now     func() time.Time
	locks   *taskLocks
	prune   bool
}

// newController checks deps and fills defaults.
func newController(deps Deps) (*controller, error) {
	if deps.Ledger == nil || deps.Votes == nil || deps.Tasks == nil || deps.Events == nil {
		return nil, fmt.Errorf("verifier deps: ledger, votes, tasks and events are required")
	}

	c := &controller{
		ledger:  deps.Ledger,
		votes:   deps.Votes,
		tasks:   deps.Tasks,
		events:  deps.Events,
		slasher: deps.Slasher,
		now:     deps.Now,
		locks:   newTaskLocks(),
		prune:   deps.PruneCompleted,
	}

	if c.slasher == nil {
		c.slasher = NoopSlasher{}
	}

	if c.now == nil {
		c.now = time.Now
	}

	return c, nil
}

// admit checks that operator may vote on task at now.
// Returns the task record and the operator's current voting power.
func (c *controller) admit(id model.TaskID, operator model.OperatorID, now time.Time) (*model.Task, model.Power, error) {
	task, err := c.loadTask(id)
	if err != nil {
		return nil, model.Power{}, err
	}

	switch task.StatusAt(now) {
	case model.TaskCompleted:
		return nil, model.Power{}, fmt.Errorf("%w: %d", ErrTaskCompleted, id)
	case model.TaskExpired:
		return nil, model.Power{}, fmt.Errorf("%w: task %d deadline %s", ErrTaskExpired, id, task.Deadline.Format(time.RFC3339))
	}

	if now.Before(task.CreatedAt) {
		return nil, model.Power{}, fmt.Errorf("%w: task %d opens at %s", ErrTooEarly, id, task.CreatedAt.Format(time.RFC3339))
	}

	power, err := c.ledger.VotingPower(operator)
	if err != nil {
		return nil, model.Power{}, fmt.Errorf("voting power:\n%w", err)
	}
	if power.IsZero() {
		return nil, model.Power{}, fmt.Errorf("%w: %q", ErrUnknownOperator, operator)
	}

	voted, err := c.votes.HasVoted(id, operator)
	if err != nil {
		return nil, model.Power{}, fmt.Errorf("check vote:\n%w", err)
	}
	if voted {
		return nil, model.Power{}, fmt.Errorf("%w: %q on task %d", ErrAlreadyVoted, operator, id)
	}

	return task, power, nil
}

// record stores the vote and returns the tally of its result.
func (c *controller) record(id model.TaskID, vote model.Vote) (model.Power, error) {
	tally, err := c.votes.Record(id, vote)
	if errors.Is(err, votes.ErrDuplicateVote) {
		return model.Power{}, fmt.Errorf("%w: %q on task %d", ErrAlreadyVoted, vote.Operator, id)
	}
	if err != nil {
		return model.Power{}, fmt.Errorf("record vote:\n%w", err)
	}

	return tally, nil
}

// loadTask loads a task, mapping a missing task to ErrTaskNotFound.
func (c *controller) loadTask(id model.TaskID) (*model.Task, error) {
	task, err := c.tasks.Load(id)
	if errors.Is(err, registry.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load task:\n%w", err)
	}

	return task, nil
}

// complete marks the task completed with value and prunes its votes when
// configured. It reports false if the task could not be marked; the vote is
// already stored, so the task stays open and the next vote retries.
func (c *controller) complete(id model.TaskID, value string, now time.Time) bool {
	if err := c.tasks.MarkCompleted(id, value, now); err != nil {
		logger.Error("complete task failed", "task", id, "error", err)
		return false
	}

	if c.prune {
		if err := c.votes.Prune(id); err != nil {
			logger.Warn("prune votes failed", "task", id, "error", err)
		}
	}

	return true
}

// gatePower returns the power compared against the task's required power:
// the tally of the vote's result, or the total voted power for GateTotal.
func (c *controller) gatePower(gate config.Gate, id model.TaskID, resultTally model.Power) (model.Power, error) {
	if gate != config.GateTotal {
		return resultTally, nil
	}

	total, err := c.votes.TotalTally(id)
	if err != nil {
		return model.Power{}, fmt.Errorf("total tally:\n%w", err)
	}

	return total, nil
}

// emit publishes the outcome and returns it.
func (c *controller) emit(o model.Outcome) *model.Outcome {
	c.events.Emit(o)
	return &o
}

// penalize invokes the slasher for each operator. Failures are logged, not returned,
// since the task is already completed.
func (c *controller) penalize(ctx context.Context, id model.TaskID, operators []model.OperatorID) {
	for _, op := range operators {
		if err := c.slasher.Penalize(ctx, op); err != nil {
			logger.Warn("penalize failed", "task", id, "operator", op, "error", err)
		}
	}
}
