package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"OracleVerifier/internal/model"
)

const (
	// maxBodySize is the maximum request body size in bytes.
	maxBodySize = 1 << 20 // 1 MB

	// maxOperatorIDLen is the maximum operator identifier length.
	maxOperatorIDLen = 128

	// maxDescriptionLen is the maximum task description length.
	maxDescriptionLen = 4096

	// maxResultLen is the maximum vote result length.
	maxResultLen = 1024

	// maxTimeoutSeconds caps task timeouts at 30 days.
	maxTimeoutSeconds = 30 * 24 * 3600
)

// setPowerRequest is the body of PUT /operators/{id}.
type setPowerRequest struct {
	Power *model.Power `json:"power"`
}

// createTaskRequest is the body of POST /tasks.
type createTaskRequest struct {
	Description    string `json:"description"`
	TimeoutSeconds int64  `json:"timeoutSeconds"`
}

// submitVoteRequest is the body of POST /tasks/{id}/votes.
type submitVoteRequest struct {
	Operator string `json:"operator"`
	Result   string `json:"result"`
}

// decodeBody decodes a size-limited JSON body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body")
		}
		return fmt.Errorf("invalid json: %v", err)
	}

	return nil
}

// parseOperatorID validates an operator identifier from a path or body.
func parseOperatorID(s string) (model.OperatorID, error) {
	if s == "" {
		return "", fmt.Errorf("operator id is required")
	}

	if len(s) > maxOperatorIDLen {
		return "", fmt.Errorf("operator id too long: %d > %d", len(s), maxOperatorIDLen)
	}

	if strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || !unicode.IsPrint(r) }) >= 0 {
		return "", fmt.Errorf("operator id contains whitespace or control characters")
	}

	return model.OperatorID(s), nil
}

// validateSetPower checks a PUT /operators/{id} body.
func validateSetPower(req *setPowerRequest) error {
	if req.Power == nil {
		return fmt.Errorf("power is required")
	}
	return nil
}

// validateCreateTask checks a POST /tasks body.
func validateCreateTask(req *createTaskRequest) error {
	if len(req.Description) > maxDescriptionLen {
		return fmt.Errorf("description too long: %d > %d", len(req.Description), maxDescriptionLen)
	}

	if req.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeoutSeconds must be positive, got %d", req.TimeoutSeconds)
	}

	if req.TimeoutSeconds > maxTimeoutSeconds {
		return fmt.Errorf("timeoutSeconds must be <= %d, got %d", maxTimeoutSeconds, req.TimeoutSeconds)
	}

	return nil
}

// validateSubmitVote checks a POST /tasks/{id}/votes body.
// Result content is left to the verifier, which owns its format.
func validateSubmitVote(req *submitVoteRequest) (model.OperatorID, error) {
	op, err := parseOperatorID(req.Operator)
	if err != nil {
		return "", err
	}

	if len(req.Result) > maxResultLen {
		return "", fmt.Errorf("result too long: %d > %d", len(req.Result), maxResultLen)
	}

	return op, nil
}
