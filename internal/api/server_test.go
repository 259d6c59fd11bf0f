package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"OracleVerifier/internal/config"
	"OracleVerifier/internal/events"
	"OracleVerifier/internal/metrics"
	"OracleVerifier/internal/model"
	"OracleVerifier/internal/registry"
	"OracleVerifier/internal/storage"
	"OracleVerifier/internal/verifier"
	"OracleVerifier/internal/votes"
)

// testClock is a settable clock shared by the server and verifier.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestServer wires a server over in-memory storage with the default oracle config and a total gate.
func newTestServer(t *testing.T) (*httptest.Server, *testClock) {
	t.Helper()

	db, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := config.DefaultParams()
	p.Gate = config.GateTotal
	cfg, err := config.New(p)
	require.NoError(t, err)

	clock := &testClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	ops := registry.NewOperators(db)
	tasks := registry.NewTasks(db)
	store := votes.NewStore(db)
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	v, err := verifier.New(cfg, verifier.Deps{
		Ledger: ops,
		Votes:  store,
		Tasks:  tasks,
		Events: bus,
		Now:    clock.Now,
	})
	require.NoError(t, err)

	srv := New(Options{RequiredPercentage: cfg.RequiredPercentage(), Now: clock.Now}, v, ops, tasks, store)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts, clock
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
func do(t *testing.T, ts *httptest.Server, method, path, body string, out any) int {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	if out != nil {
		require.NoError(t, json.Unmarshal(buf.Bytes(), out), "body: %s", buf.String())
	}

	return resp.StatusCode
}

func setPowers(t *testing.T, ts *httptest.Server, powers map[string]int) {
	t.Helper()

	for op, power := range powers {
		body, _ := json.Marshal(map[string]any{"power": power})
		require.Equal(t, http.StatusOK, do(t, ts, "PUT", "/operators/"+op, string(body), nil))
	}
}

func createTask(t *testing.T, ts *httptest.Server) model.Task {
	t.Helper()

	var task model.Task
	code := do(t, ts, "POST", "/tasks", `{"description":"ETH/USD","timeoutSeconds":60}`, &task)
	require.Equal(t, http.StatusCreated, code)

	return task
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var resp map[string]string
	require.Equal(t, http.StatusOK, do(t, ts, "GET", "/health", "", &resp))
	require.Equal(t, "ok", resp["status"])
}

func TestOperatorEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	var op operatorResponse
	require.Equal(t, http.StatusOK, do(t, ts, "PUT", "/operators/alice", `{"power":"1000000000000000000000"}`, &op))
	require.Equal(t, "1000000000000000000000", op.Power.String())

	require.Equal(t, http.StatusOK, do(t, ts, "GET", "/operators/alice", "", &op))
	require.Equal(t, model.OperatorID("alice"), op.Operator)
	require.Equal(t, "1000000000000000000000", op.Power.String())

	require.Equal(t, http.StatusOK, do(t, ts, "GET", "/operators/nobody", "", &op))
	require.True(t, op.Power.IsZero())

	var all []registry.OperatorEntry
	require.Equal(t, http.StatusOK, do(t, ts, "GET", "/operators", "", &all))
	require.Len(t, all, 1)

	require.Equal(t, http.StatusBadRequest, do(t, ts, "PUT", "/operators/alice", `{}`, nil))
	require.Equal(t, http.StatusBadRequest, do(t, ts, "PUT", "/operators/alice", `{"power":"-5"}`, nil))
	require.Equal(t, http.StatusBadRequest, do(t, ts, "PUT", "/operators/alice", `{"power":1,"extra":true}`, nil))
	require.Equal(t, http.StatusBadRequest, do(t, ts, "PUT", "/operators/alice", ``, nil))
}

func TestCreateTaskValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	require.Equal(t, http.StatusBadRequest, do(t, ts, "POST", "/tasks", `{"description":"x","timeoutSeconds":0}`, nil))
	require.Equal(t, http.StatusBadRequest, do(t, ts, "POST", "/tasks", `{"description":"x","timeoutSeconds":99999999}`, nil))
	require.Equal(t, http.StatusBadRequest, do(t, ts, "POST", "/tasks", `not json`, nil))
}

func TestVoteFlowCompletesTask(t *testing.T) {
	ts, _ := newTestServer(t)
	setPowers(t, ts, map[string]int{"a": 30, "b": 30, "c": 30, "d": 10})

	task := createTask(t, ts)
	require.Equal(t, "67", task.PowerRequired.String())
	require.Equal(t, "100", task.TotalPower.String())
	path := "/tasks/" + task.ID.String() + "/votes"

	var out model.Outcome
	require.Equal(t, http.StatusOK, do(t, ts, "POST", path, `{"operator":"a","result":"2000"}`, &out))
	require.Equal(t, model.OutcomeVoteStored, out.Status)

	require.Equal(t, http.StatusOK, do(t, ts, "POST", path, `{"operator":"d","result":"3000"}`, &out))
	require.Equal(t, http.StatusOK, do(t, ts, "POST", path, `{"operator":"b","result":"2010"}`, &out))
	require.Equal(t, model.OutcomeThresholdMet, out.Status)
	require.Equal(t, "2010", *out.Value)
	require.Equal(t, []model.OperatorID{"d"}, out.Slashable)

	var got model.Task
	require.Equal(t, http.StatusOK, do(t, ts, "GET", "/tasks/"+task.ID.String(), "", &got))
	require.Equal(t, model.TaskCompleted, got.Status)
	require.Equal(t, "2010", got.Result)

	var vr votesResponse
	require.Equal(t, http.StatusOK, do(t, ts, "GET", path, "", &vr))
	require.Len(t, vr.Votes, 3)
	require.Len(t, vr.Tallies, 3)

	var rej map[string]string
	require.Equal(t, http.StatusConflict, do(t, ts, "POST", path, `{"operator":"c","result":"2000"}`, &rej))
	require.Equal(t, "task_completed", rej["reason"])

	var status map[string]any
	require.Equal(t, http.StatusOK, do(t, ts, "GET", "/status", "", &status))
	require.Equal(t, "oracle", status["kind"])
	require.EqualValues(t, 4, status["operators"])
	require.Equal(t, "100", status["totalPower"])
}

func TestVoteRejections(t *testing.T) {
	ts, clock := newTestServer(t)
	setPowers(t, ts, map[string]int{"a": 10, "b": 10})

	task := createTask(t, ts)
	path := "/tasks/" + task.ID.String() + "/votes"

	require.Equal(t, http.StatusOK, do(t, ts, "POST", path, `{"operator":"a","result":"1"}`, nil))

	tests := []struct {
		name   string
		path   string
		body   string
		code   int
		reason string
	}{
		{"unknown task", "/tasks/999/votes", `{"operator":"a","result":"1"}`, http.StatusNotFound, "task_not_found"},
		{"unknown operator", path, `{"operator":"ghost","result":"1"}`, http.StatusForbidden, "unknown_operator"},
		{"already voted", path, `{"operator":"a","result":"1"}`, http.StatusConflict, "already_voted"},
		{"invalid result", path, `{"operator":"b","result":"one"}`, http.StatusUnprocessableEntity, "invalid_result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rej map[string]string
			require.Equal(t, tt.code, do(t, ts, "POST", tt.path, tt.body, &rej))
			require.Equal(t, tt.reason, rej["reason"])
			require.NotEmpty(t, rej["error"])
		})
	}

	require.Equal(t, http.StatusBadRequest, do(t, ts, "POST", "/tasks/abc/votes", `{"operator":"a","result":"1"}`, nil))
	require.Equal(t, http.StatusBadRequest, do(t, ts, "POST", path, `{"operator":"","result":"1"}`, nil))

	clock.Advance(2 * time.Minute)

	var rej map[string]string
	require.Equal(t, http.StatusGone, do(t, ts, "POST", path, `{"operator":"b","result":"1"}`, &rej))
	require.Equal(t, "task_expired", rej["reason"])

	var got model.Task
	require.Equal(t, http.StatusOK, do(t, ts, "GET", "/tasks/"+task.ID.String(), "", &got))
	require.Equal(t, model.TaskExpired, got.Status)
}

func TestGetTaskNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	var rej map[string]string
	require.Equal(t, http.StatusNotFound, do(t, ts, "GET", "/tasks/7", "", &rej))
	require.Equal(t, "task_not_found", rej["reason"])

	require.Equal(t, http.StatusNotFound, do(t, ts, "GET", "/tasks/7/votes", "", nil))
	require.Equal(t, http.StatusBadRequest, do(t, ts, "GET", "/tasks/x", "", nil))
}

func TestPreviewEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	setPowers(t, ts, map[string]int{"a": 50, "b": 50})
	task := createTask(t, ts)
	path := "/tasks/" + task.ID.String()

	var out model.Outcome
	require.Equal(t, http.StatusOK, do(t, ts, "POST", path+"/votes", `{"operator":"a","result":"100"}`, &out))
	require.Equal(t, model.OutcomeVoteStored, out.Status)

	var p model.Preview
	require.Equal(t, http.StatusOK, do(t, ts, "GET", path+"/preview", "", &p))
	require.Equal(t, task.ID, p.TaskID)
	require.Equal(t, "100", p.Median)
	require.Equal(t, model.PriceBand{Min: "90", Max: "110"}, p.Allowed)
	require.Equal(t, model.PriceBand{Min: "80", Max: "120"}, p.SlashableBand)
	require.Equal(t, "50", p.ValidPower.String())
	require.True(t, p.ThresholdMet)
	require.Empty(t, p.Slashable)

	// Preview does not decide the task.
	var got model.Task
	require.Equal(t, http.StatusOK, do(t, ts, "GET", path, "", &got))
	require.Equal(t, model.TaskOpen, got.Status)

	var rej map[string]string
	require.Equal(t, http.StatusNotFound, do(t, ts, "GET", "/tasks/99/preview", "", &rej))
	require.Equal(t, "task_not_found", rej["reason"])
	require.Equal(t, http.StatusBadRequest, do(t, ts, "GET", "/tasks/x/preview", "", nil))
}

// voteOnly is a verifier without preview support.
type voteOnly struct{}

func (voteOnly) Kind() config.Kind { return config.KindSimple }

func (voteOnly) SubmitVote(context.Context, model.TaskID, model.OperatorID, string) (*model.Outcome, error) {
	return nil, nil
}

func TestPreviewUnsupported(t *testing.T) {
	ts := httptest.NewServer(New(Options{}, voteOnly{}, nil, nil, nil).Handler())
	defer ts.Close()

	require.Equal(t, http.StatusNotImplemented, do(t, ts, "GET", "/tasks/1/preview", "", nil))
}

func TestRejectionStatusCoversAllReasons(t *testing.T) {
	for _, err := range []error{
		verifier.ErrTaskNotFound,
		verifier.ErrTaskCompleted,
		verifier.ErrTaskExpired,
		verifier.ErrTooEarly,
		verifier.ErrUnknownOperator,
		verifier.ErrAlreadyVoted,
		verifier.ErrInvalidResult,
	} {
		_, ok := rejectionStatus[verifier.Reason(err)]
		require.True(t, ok, "no status for %v", err)
	}
}

// staticSnapshots serves a fixed snapshot.
type staticSnapshots struct {
	data []byte
}

func (s staticSnapshots) Latest() ([]byte, time.Time) {
	return s.data, time.Unix(0, 0)
}

func TestSnapshotEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	require.Equal(t, http.StatusServiceUnavailable, do(t, ts, "GET", "/snapshot", "", nil))

	srv := New(Options{Snapshots: staticSnapshots{}}, nil, nil, nil, nil)
	empty := httptest.NewServer(srv.Handler())
	defer empty.Close()
	require.Equal(t, http.StatusServiceUnavailable, do(t, empty, "GET", "/snapshot", "", nil))

	srv = New(Options{Snapshots: staticSnapshots{data: []byte{1, 2, 3}}}, nil, nil, nil, nil)
	full := httptest.NewServer(srv.Handler())
	defer full.Close()

	resp, err := full.Client().Get(full.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/zstd", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, buf.Bytes())
}

func TestRequestIDAndMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	srv := New(Options{Metrics: collector}, nil, nil, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	_, err = uuid.Parse(resp.Header.Get(requestIDHeader))
	require.NoError(t, err)

	fixed := uuid.NewString()
	req, err := http.NewRequest("GET", ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, fixed)

	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, fixed, resp.Header.Get(requestIDHeader))

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), `verifier_http_requests_total{code="200",method="get"} 2`)
}
