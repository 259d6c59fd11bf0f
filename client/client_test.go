package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"OracleVerifier/internal/api"
	"OracleVerifier/internal/config"
	"OracleVerifier/internal/events"
	"OracleVerifier/internal/model"
	"OracleVerifier/internal/registry"
	"OracleVerifier/internal/storage"
	"OracleVerifier/internal/verifier"
	"OracleVerifier/internal/votes"
)

// newTestNode starts an in-memory verifier node and returns a client for it.
func newTestNode(t *testing.T, kind config.Kind) *Client {
	t.Helper()

	db, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := config.DefaultParams()
	p.Kind = kind
	p.Gate = config.GateTotal
	cfg, err := config.New(p)
	require.NoError(t, err)

	ops := registry.NewOperators(db)
	tasks := registry.NewTasks(db)
	store := votes.NewStore(db)
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	v, err := verifier.New(cfg, verifier.Deps{Ledger: ops, Votes: store, Tasks: tasks, Events: bus})
	require.NoError(t, err)

	srv := api.New(api.Options{RequiredPercentage: cfg.RequiredPercentage()}, v, ops, tasks, store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := NewClient(context.Background(), ts.URL)
	require.NoError(t, err)

	return c
}

func TestClientOracleRound(t *testing.T) {
	ctx := context.Background()
	c := newTestNode(t, config.KindOracle)

	for op, power := range map[model.OperatorID]uint64{"a": 40, "b": 40, "c": 20} {
		_, err := c.SetPower(ctx, op, model.NewPower(power))
		require.NoError(t, err)
	}

	op, err := c.Operator(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "40", op.Power.String())

	all, err := c.Operators(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	task, err := c.CreateTask(ctx, "SOL/USD", time.Minute)
	require.NoError(t, err)
	require.Equal(t, model.TaskOpen, task.Status)

	out, err := c.SubmitVote(ctx, task.ID, "a", "150.25")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeVoteStored, out.Status)

	preview, err := c.Preview(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "150.25", preview.Median)
	require.Equal(t, "40", preview.ValidPower.String())
	require.False(t, preview.ThresholdMet)

	out, err = c.SubmitVote(ctx, task.ID, "b", "150.75")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeThresholdMet, out.Status)
	require.Equal(t, "150.5", *out.Value)

	done, err := c.WaitCompleted(ctx, task.ID, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, model.TaskCompleted, done.Status)
	require.Equal(t, "150.5", done.Result)

	v, err := c.Votes(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, v.Votes, 2)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "oracle", status.Kind)
	require.Equal(t, 3, status.Operators)
	require.Equal(t, 1, status.Tasks["completed"])
}

func TestClientRejectionsMatchSentinels(t *testing.T) {
	ctx := context.Background()
	c := newTestNode(t, config.KindSimple)

	for _, op := range []model.OperatorID{"a", "b", "c"} {
		_, err := c.SetPower(ctx, op, model.NewPower(1))
		require.NoError(t, err)
	}

	task, err := c.CreateTask(ctx, "any", time.Minute)
	require.NoError(t, err)

	// Required power is 2 of 3.
	out, err := c.SubmitVote(ctx, task.ID, "a", "yes")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeVoteStored, out.Status)

	_, err = c.SubmitVote(ctx, task.ID, "a", "yes")
	require.ErrorIs(t, err, verifier.ErrAlreadyVoted)
	require.True(t, IsRejection(err))

	_, err = c.SubmitVote(ctx, task.ID, "nobody", "yes")
	require.ErrorIs(t, err, verifier.ErrUnknownOperator)

	_, err = c.SubmitVote(ctx, 404, "a", "yes")
	require.ErrorIs(t, err, verifier.ErrTaskNotFound)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)

	_, err = c.Task(ctx, 404)
	require.ErrorIs(t, err, verifier.ErrTaskNotFound)
}

func TestClientBadRequestIsNotRejection(t *testing.T) {
	c := newTestNode(t, config.KindOracle)

	_, err := c.SubmitVote(context.Background(), 1, "", "1")
	require.Error(t, err)
	require.False(t, IsRejection(err))

	_, err = c.CreateTask(context.Background(), "x", time.Millisecond)
	require.Error(t, err)
}

func TestNewClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	_, err := NewClient(context.Background(), ts.URL)
	require.Error(t, err)
}

func TestClientSnapshotDisabled(t *testing.T) {
	c := newTestNode(t, config.KindOracle)

	_, err := c.Snapshot(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	require.False(t, IsRejection(err))
}

func TestClientPreviewErrors(t *testing.T) {
	ctx := context.Background()

	_, err := newTestNode(t, config.KindOracle).Preview(ctx, 5)
	require.ErrorIs(t, err, verifier.ErrTaskNotFound)

	_, err = newTestNode(t, config.KindSimple).Preview(ctx, 5)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotImplemented, apiErr.Status)
}
