// Package metrics collects Prometheus metrics for the verifier node.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"OracleVerifier/internal/model"
)

const namespace = "verifier"

// Collector holds the node metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	outcomes      *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	tasksCreated  prometheus.Counter
	slashable     prometheus.Counter
	requests      *prometheus.CounterVec
	requestTiming *prometheus.HistogramVec
}

// NewCollector creates a collector registered on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_outcomes_total",
			Help:      "count of accepted votes by resulting outcome",
		}, []string{"status"}),

		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_rejections_total",
			Help:      "count of rejected votes by reason",
		}, []string{"reason"}),

		tasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "count of tasks created",
		}),

		slashable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slashable_operators_total",
			Help:      "count of operators reported slashable on completed tasks",
		}),

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "count of HTTP requests by status code and method",
		}, []string{"code", "method"}),

		requestTiming: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
	}
}

// Outcome records an emitted outcome.
func (c *Collector) Outcome(o model.Outcome) {
	c.outcomes.WithLabelValues(string(o.Status)).Inc()

	if o.Status == model.OutcomeThresholdMet {
		c.slashable.Add(float64(len(o.Slashable)))
	}
}

// VoteRejected records a rejected vote.
func (c *Collector) VoteRejected(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

// TaskCreated records a created task.
func (c *Collector) TaskCreated() {
	c.tasksCreated.Inc()
}

// Instrument wraps next with request counting and latency.
func (c *Collector) Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(c.requestTiming,
		promhttp.InstrumentHandlerCounter(c.requests, next))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Run records every outcome received on ch until it is closed.
func (c *Collector) Run(ch <-chan model.Outcome) {
	for o := range ch {
		c.Outcome(o)
	}
}
