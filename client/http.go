package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"OracleVerifier/internal/verifier"
)

// APIError is a non-2xx response from the node.
// Rejections unwrap to the matching verifier sentinel, so errors.Is works
// across the wire.
type APIError struct {
	Method  string // Method is the HTTP method
	URL     string // URL is the request URL
	Status  int    // Status is the HTTP status code
	Reason  string // Reason is the machine-readable rejection code, if any
	Message string // Message is the server error message
}

// reasonErrors maps rejection codes back to verifier sentinels.
var reasonErrors = map[string]error{
	"task_not_found":   verifier.ErrTaskNotFound,
	"task_completed":   verifier.ErrTaskCompleted,
	"task_expired":     verifier.ErrTaskExpired,
	"too_early":        verifier.ErrTooEarly,
	"unknown_operator": verifier.ErrUnknownOperator,
	"already_voted":    verifier.ErrAlreadyVoted,
	"invalid_result":   verifier.ErrInvalidResult,
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: status %d (%s): %s", e.Method, e.URL, e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Message)
}

// Unwrap returns the verifier sentinel of the rejection, if any.
func (e *APIError) Unwrap() error {
	return reasonErrors[e.Reason]
}

// errorBody is the JSON error body written by the node.
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// doJSON sends a request with an optional JSON body and decodes the JSON
// response into result when non-nil. Any 2xx status is a success.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body:\n%w", err)
		}
		reader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build %s %s:\n%w", method, url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s:\n%w", method, url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(method, url, resp)
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode %s %s:\n%w", method, url, err)
	}

	return nil
}

// decodeError builds an APIError from a failed response.
func decodeError(method, url string, resp *http.Response) error {
	apiErr := &APIError{Method: method, URL: url, Status: resp.StatusCode}

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	apiErr.Message = body.Error
	apiErr.Reason = body.Reason

	return apiErr
}

// IsRejection reports whether err is a vote rejection returned by the node.
func IsRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Reason != ""
}
