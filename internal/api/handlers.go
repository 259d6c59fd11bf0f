package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"OracleVerifier/internal/aggregation"
	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/model"
	"OracleVerifier/internal/registry"
	"OracleVerifier/internal/verifier"
)

// rejectionStatus maps verifier rejection codes to HTTP status codes.
var rejectionStatus = map[string]int{
	"task_not_found":   http.StatusNotFound,
	"task_completed":   http.StatusConflict,
	"task_expired":     http.StatusGone,
	"too_early":        http.StatusTooEarly,
	"unknown_operator": http.StatusForbidden,
	"already_voted":    http.StatusConflict,
	"invalid_result":   http.StatusUnprocessableEntity,
}

// operatorResponse is the body returned for a single operator.
type operatorResponse struct {
	Operator model.OperatorID `json:"operator"`
	Power    model.Power      `json:"power"`
}

// votesResponse is the body of GET /tasks/{id}/votes.
type votesResponse struct {
	Votes   []model.Vote  `json:"votes"`
	Tallies []model.Tally `json:"tallies"`
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := s.operators.All()
	if err != nil {
		s.internalError(w, "list operators", err)
		return
	}

	total, err := s.operators.TotalPower()
	if err != nil {
		s.internalError(w, "total power", err)
		return
	}

	tasks, err := s.tasks.List()
	if err != nil {
		s.internalError(w, "list tasks", err)
		return
	}

	now := s.opts.Now()
	counts := map[string]int{}
	for _, t := range tasks {
		counts[t.StatusAt(now).String()]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kind":               s.verifier.Kind(),
		"operators":          len(entries),
		"totalPower":         total,
		"requiredPercentage": s.opts.RequiredPercentage,
		"tasks":              counts,
	})
}

// handleListOperators handles GET /operators requests.
func (s *Server) handleListOperators(w http.ResponseWriter, r *http.Request) {
	entries, err := s.operators.All()
	if err != nil {
		s.internalError(w, "list operators", err)
		return
	}

	if entries == nil {
		entries = []registry.OperatorEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// handleSetPower handles PUT /operators/{id} requests.
// A zero power removes the operator.
func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	op, err := parseOperatorID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req setPowerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := validateSetPower(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.operators.SetPower(op, *req.Power); err != nil {
		s.internalError(w, "set power", err)
		return
	}

	logger.Info("operator power set", "operator", op, "power", req.Power)

	writeJSON(w, http.StatusOK, operatorResponse{Operator: op, Power: *req.Power})
}

// handleGetOperator handles GET /operators/{id} requests.
// Unknown operators report zero power.
func (s *Server) handleGetOperator(w http.ResponseWriter, r *http.Request) {
	op, err := parseOperatorID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	power, err := s.operators.VotingPower(op)
	if err != nil {
		s.internalError(w, "voting power", err)
		return
	}

	writeJSON(w, http.StatusOK, operatorResponse{Operator: op, Power: power})
}

// handleCreateTask handles POST /tasks requests.
// The task captures the current total power and the configured gate percentage.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := validateCreateTask(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	total, err := s.operators.TotalPower()
	if err != nil {
		s.internalError(w, "total power", err)
		return
	}

	task, err := s.tasks.Create(registry.NewTask{
		Description:        req.Description,
		Timeout:            time.Duration(req.TimeoutSeconds) * time.Second,
		RequiredPercentage: s.opts.RequiredPercentage,
		TotalPower:         total,
	}, s.opts.Now())
	if err != nil {
		s.internalError(w, "create task", err)
		return
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.TaskCreated()
	}

	logger.Info("task created", "task", task.ID, "required", task.PowerRequired, "deadline", task.Deadline)

	writeJSON(w, http.StatusCreated, task)
}

// handleGetTask handles GET /tasks/{id} requests.
// The returned status is projected at the current time.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r)
	if !ok {
		return
	}

	task.Status = task.StatusAt(s.opts.Now())

	writeJSON(w, http.StatusOK, task)
}

// handleGetVotes handles GET /tasks/{id}/votes requests.
func (s *Server) handleGetVotes(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r)
	if !ok {
		return
	}

	stored, err := s.votes.Load(task.ID)
	if err != nil {
		s.internalError(w, "load votes", err)
		return
	}

	tallies, err := s.votes.Tallies(task.ID)
	if err != nil {
		s.internalError(w, "load tallies", err)
		return
	}

	resp := votesResponse{Votes: stored, Tallies: tallies}
	if resp.Votes == nil {
		resp.Votes = []model.Vote{}
	}
	if resp.Tallies == nil {
		resp.Tallies = []model.Tally{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSubmitVote handles POST /tasks/{id}/votes requests.
func (s *Server) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseTaskID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var req submitVoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	op, err := validateSubmitVote(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := s.verifier.SubmitVote(r.Context(), id, op, req.Result)
	if err != nil {
		if reason := verifier.Reason(err); reason != "" {
			logger.Debug("vote rejected", "task", id, "operator", op, "reason", reason)
			if s.opts.Metrics != nil {
				s.opts.Metrics.VoteRejected(reason)
			}
			writeRejection(w, rejectionStatus[reason], reason, err.Error())
			return
		}

		s.internalError(w, "submit vote", err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// handlePreview handles GET /tasks/{id}/preview requests.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, ok := s.verifier.(verifier.Previewer)
	if !ok {
		writeError(w, http.StatusNotImplemented, "preview not supported by "+string(s.verifier.Kind())+" verifier")
		return
	}

	id, err := model.ParseTaskID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	res, err := p.Preview(id)
	if errors.Is(err, verifier.ErrTaskNotFound) {
		writeRejection(w, http.StatusNotFound, "task_not_found", err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "preview", err)
		return
	}

	writeJSON(w, http.StatusOK, newPreview(id, res))
}

// newPreview renders an aggregation result.
func newPreview(id model.TaskID, res *aggregation.Result) model.Preview {
	slashable := res.Slashable
	if slashable == nil {
		slashable = []model.OperatorID{}
	}

	return model.Preview{
		TaskID:        id,
		Median:        res.Median.String(),
		Allowed:       model.PriceBand{Min: res.Allowed.Min.String(), Max: res.Allowed.Max.String()},
		SlashableBand: model.PriceBand{Min: res.SlashableBand.Min.String(), Max: res.SlashableBand.Max.String()},
		ValidPower:    res.ValidPower,
		ThresholdMet:  res.ThresholdMet,
		Slashable:     slashable,
	}
}

// handleSnapshot handles GET /snapshot requests.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.opts.Snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots disabled")
		return
	}

	data, taken := s.opts.Snapshots.Latest()
	if data == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Last-Modified", taken.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// loadTask parses the {id} path value and loads the task, writing the error response on failure.
func (s *Server) loadTask(w http.ResponseWriter, r *http.Request) (*model.Task, bool) {
	id, err := model.ParseTaskID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return nil, false
	}

	task, err := s.tasks.Load(id)
	if errors.Is(err, registry.ErrTaskNotFound) {
		writeRejection(w, http.StatusNotFound, "task_not_found", err.Error())
		return nil, false
	}
	if err != nil {
		s.internalError(w, "load task", err)
		return nil, false
	}

	return task, true
}

// internalError logs err and writes a generic 500.
func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	logger.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeRejection writes an error response carrying a machine-readable reason.
func writeRejection(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]string{
		"error":  message,
		"reason": reason,
	})
}
