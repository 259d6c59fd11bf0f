package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"OracleVerifier/internal/model"
)

// CreateTask registers a task open for timeout.
func (c *Client) CreateTask(ctx context.Context, description string, timeout time.Duration) (*model.Task, error) {
	secs := int64(timeout / time.Second)
	if secs <= 0 {
		return nil, fmt.Errorf("timeout must be at least one second, got %s", timeout)
	}

	body := map[string]any{
		"description":    description,
		"timeoutSeconds": secs,
	}

	var task model.Task
	if err := c.doJSON(ctx, http.MethodPost, "/tasks", body, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

// Task returns a task with its status projected at the node's current time.
func (c *Client) Task(ctx context.Context, id model.TaskID) (*model.Task, error) {
	var task model.Task
	if err := c.doJSON(ctx, http.MethodGet, "/tasks/"+id.String(), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Votes returns a task's stored votes and tallies.
func (c *Client) Votes(ctx context.Context, id model.TaskID) (*Votes, error) {
	var v Votes
	if err := c.doJSON(ctx, http.MethodGet, "/tasks/"+id.String()+"/votes", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Preview returns the current aggregation of a task's votes without deciding it.
func (c *Client) Preview(ctx context.Context, id model.TaskID) (*model.Preview, error) {
	var p model.Preview
	if err := c.doJSON(ctx, http.MethodGet, "/tasks/"+id.String()+"/preview", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SubmitVote submits an operator's result for a task.
// Rejections are *APIError values that match the verifier sentinels with errors.Is.
func (c *Client) SubmitVote(ctx context.Context, id model.TaskID, op model.OperatorID, result string) (*model.Outcome, error) {
	body := map[string]string{
		"operator": string(op),
		"result":   result,
	}

	var out model.Outcome
	if err := c.doJSON(ctx, http.MethodPost, "/tasks/"+id.String()+"/votes", body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// WaitCompleted polls a task until it is completed or expired, or ctx ends.
func (c *Client) WaitCompleted(ctx context.Context, id model.TaskID, interval time.Duration) (*model.Task, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := c.Task(ctx, id)
		if err != nil {
			return nil, err
		}

		if task.Status != model.TaskOpen {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
