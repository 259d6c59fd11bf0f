// Package api exposes the verifier over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/model"
	"OracleVerifier/internal/registry"
	"OracleVerifier/internal/verifier"
)

// OperatorLedger manages operator voting power.
type OperatorLedger interface {
	SetPower(op model.OperatorID, power model.Power) error
	VotingPower(op model.OperatorID) (model.Power, error)
	TotalPower() (model.Power, error)
	All() ([]registry.OperatorEntry, error)
}

// TaskStore creates and reads tasks.
type TaskStore interface {
	Create(nt registry.NewTask, now time.Time) (*model.Task, error)
	Load(id model.TaskID) (*model.Task, error)
	List() ([]*model.Task, error)
}

// VoteReader reads stored votes and tallies.
type VoteReader interface {
	Load(task model.TaskID) ([]model.Vote, error)
	Tallies(task model.TaskID) ([]model.Tally, error)
}

// SnapshotSource provides the latest compressed state snapshot.
type SnapshotSource interface {
	Latest() ([]byte, time.Time)
}

// Metrics records API activity.
type Metrics interface {
	VoteRejected(reason string)
	TaskCreated()
	Instrument(next http.Handler) http.Handler
	Handler() http.Handler
}

// Options configures a Server.
type Options struct {
	Addr               string           // Addr is the HTTP listen address
	RequiredPercentage uint8            // RequiredPercentage is applied to new tasks
	Snapshots          SnapshotSource   // Snapshots serves GET /snapshot; nil disables it
	Metrics            Metrics          // Metrics serves GET /metrics; nil disables it
	Now                func() time.Time // Now is the clock; defaults to time.Now
}

// Server is the HTTP API server.
type Server struct {
	opts      Options           // opts holds listen address and task defaults
	verifier  verifier.Verifier // verifier processes votes
	operators OperatorLedger    // operators is the voting power ledger
	tasks     TaskStore         // tasks is the task registry
	votes     VoteReader        // votes exposes stored votes
	server    *http.Server      // server is the underlying HTTP server
	listener  net.Listener      // listener is bound by Start
}

// New creates a new HTTP API server.
func New(opts Options, v verifier.Verifier, operators OperatorLedger, tasks TaskStore, votes VoteReader) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Server{
		opts:      opts,
		verifier:  v,
		operators: operators,
		tasks:     tasks,
		votes:     votes,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /operators", s.handleListOperators)
	mux.HandleFunc("PUT /operators/{id}", s.handleSetPower)
	mux.HandleFunc("GET /operators/{id}", s.handleGetOperator)
	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /tasks/{id}/votes", s.handleGetVotes)
	mux.HandleFunc("POST /tasks/{id}/votes", s.handleSubmitVote)
	mux.HandleFunc("GET /tasks/{id}/preview", s.handlePreview)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)

	var h http.Handler = mux
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
		h = s.opts.Metrics.Instrument(h)
	}

	return withRequestLog(h)
}

// Start binds the listen address and serves in a goroutine.
// Bind failures are returned.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s:\n%w", s.opts.Addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", ln.Addr().String())

		if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
