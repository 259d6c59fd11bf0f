package verifier

import (
	"context"
	"fmt"

	"OracleVerifier/internal/aggregation"
	"OracleVerifier/internal/config"
	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/model"
)

// Oracle accepts the median of numeric observations once enough valid power backs it.
type Oracle struct {
	*controller
	cfg *config.Config
}

// Kind returns config.KindOracle.
func (o *Oracle) Kind() config.Kind {
	return config.KindOracle
}

// SubmitVote records a price observation. Once the gate power is reached it
// aggregates every vote of the task: if the threshold is met the task is
// completed with the median and slashable operators are penalized;
// otherwise the task stays open for more votes.
//
// The vote is stored before the task is marked completed. If marking fails
// the vote is kept, the outcome is VoteStored and the next vote retries.
func (o *Oracle) SubmitVote(ctx context.Context, id model.TaskID, operator model.OperatorID, result string) (*model.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := o.locks.lock(id)
	defer unlock()

	now := o.now()

	task, power, err := o.admit(id, operator, now)
	if err != nil {
		return nil, err
	}

	if _, err := model.ParsePrice(result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}

	tally, err := o.record(id, model.Vote{Operator: operator, Result: result, Power: power})
	if err != nil {
		return nil, err
	}

	gate, err := o.gatePower(o.cfg.Gate(), id, tally)
	if err != nil {
		return nil, err
	}

	if !gate.GTE(task.PowerRequired) {
		logger.Debug("vote stored", "task", id, "operator", operator, "gate", gate, "required", task.PowerRequired)
		return o.emit(model.Outcome{TaskID: id, Operator: operator, Status: model.OutcomeVoteStored}), nil
	}

	res, err := o.aggregate(task)
	if err != nil {
		return nil, err
	}

	if !res.ThresholdMet {
		logger.Debug("threshold not met", "task", id, "median", res.Median, "valid_power", res.ValidPower)
		return o.emit(model.Outcome{TaskID: id, Operator: operator, Status: model.OutcomeThresholdNotMet}), nil
	}

	value := res.Median.String()
	if !o.complete(id, value, now) {
		return o.emit(model.Outcome{TaskID: id, Operator: operator, Status: model.OutcomeVoteStored}), nil
	}

	o.penalize(ctx, id, res.Slashable)

	return o.emit(model.Outcome{
		TaskID:    id,
		Operator:  operator,
		Status:    model.OutcomeThresholdMet,
		Value:     &value,
		Slashable: res.Slashable,
	}), nil
}

// Preview aggregates the current votes of a task without changing anything.
func (o *Oracle) Preview(id model.TaskID) (*aggregation.Result, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	task, err := o.loadTask(id)
	if err != nil {
		return nil, err
	}

	res, err := o.aggregate(task)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// aggregate evaluates every stored vote of task.
func (o *Oracle) aggregate(task *model.Task) (aggregation.Result, error) {
	stored, err := o.votes.Load(task.ID)
	if err != nil {
		return aggregation.Result{}, fmt.Errorf("load votes:\n%w", err)
	}

	votes := make([]aggregation.Vote, 0, len(stored))
	for _, v := range stored {
		price, err := model.ParsePrice(v.Result)
		if err != nil {
			return aggregation.Result{}, fmt.Errorf("stored vote of %q on task %d:\n%w", v.Operator, task.ID, err)
		}

		votes = append(votes, aggregation.Vote{Operator: v.Operator, Value: price, Power: v.Power})
	}

	return aggregation.Evaluate(votes, task.TotalPower, aggregation.Params{
		Threshold:       o.cfg.Threshold(),
		AllowedSpread:   o.cfg.AllowedSpread(),
		SlashableSpread: o.cfg.SlashableSpread(),
	}), nil
}
