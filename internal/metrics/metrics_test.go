package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"OracleVerifier/internal/model"
)

func TestOutcomeCounters(t *testing.T) {
	c := NewCollector()

	c.Outcome(model.Outcome{Status: model.OutcomeVoteStored})
	c.Outcome(model.Outcome{Status: model.OutcomeVoteStored})
	c.Outcome(model.Outcome{Status: model.OutcomeThresholdMet, Slashable: []model.OperatorID{"a", "b"}})
	c.VoteRejected("already_voted")
	c.TaskCreated()

	require.Equal(t, 2.0, testutil.ToFloat64(c.outcomes.WithLabelValues("vote_stored")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("threshold_met")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.slashable))
	require.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("already_voted")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.tasksCreated))
}

func TestRunDrainsChannel(t *testing.T) {
	c := NewCollector()

	ch := make(chan model.Outcome, 2)
	ch <- model.Outcome{Status: model.OutcomeThresholdNotMet}
	ch <- model.Outcome{Status: model.OutcomeThresholdNotMet}
	close(ch)

	c.Run(ch)

	require.Equal(t, 2.0, testutil.ToFloat64(c.outcomes.WithLabelValues("threshold_not_met")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.TaskCreated()

	ok := c.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, "verifier_tasks_created_total 1"))
	require.True(t, strings.Contains(text, `verifier_http_requests_total{code="418",method="get"} 1`))
}
