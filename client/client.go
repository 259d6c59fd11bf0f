// Package client talks to a verifier node over its HTTP API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"OracleVerifier/internal/model"
)

// Client connects to a verifier node via HTTP.
type Client struct {
	baseURL string       // baseURL is the node URL without trailing slash
	http    *http.Client // http is the underlying HTTP client
}

// Status is the node summary returned by GET /status.
type Status struct {
	Kind               string         `json:"kind"`               // Kind is the verifier variant
	Operators          int            `json:"operators"`          // Operators is the number of operators with power
	TotalPower         model.Power    `json:"totalPower"`         // TotalPower is the sum of operator power
	RequiredPercentage uint8          `json:"requiredPercentage"` // RequiredPercentage is applied to new tasks
	Tasks              map[string]int `json:"tasks"`              // Tasks counts tasks per projected status
}

// Operator is one operator's voting power.
type Operator struct {
	Operator model.OperatorID `json:"operator"`
	Power    model.Power      `json:"power"`
}

// Votes lists a task's stored votes and per-result tallies.
type Votes struct {
	Votes   []model.Vote  `json:"votes"`
	Tallies []model.Tally `json:"tallies"`
}

// NewClient creates a client for the node at nodeAddr ("host:port" or a full URL).
// It checks reachability with GET /health.
func NewClient(ctx context.Context, nodeAddr string) (*Client, error) {
	base := strings.TrimRight(nodeAddr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	if err := c.Health(ctx); err != nil {
		return nil, fmt.Errorf("node unreachable:\n%w", err)
	}

	return c, nil
}

// Health checks that the node is serving.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}

	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}

	if resp.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", resp.Status)
	}

	return nil
}

// Status returns the node summary.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.doJSON(ctx, http.MethodGet, "/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetPower sets an operator's voting power. Zero removes the operator.
func (c *Client) SetPower(ctx context.Context, op model.OperatorID, power model.Power) (*Operator, error) {
	var out Operator
	body := map[string]model.Power{"power": power}

	if err := c.doJSON(ctx, http.MethodPut, "/operators/"+url.PathEscape(string(op)), body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Operator returns an operator's voting power. Unknown operators have zero power.
func (c *Client) Operator(ctx context.Context, op model.OperatorID) (*Operator, error) {
	var out Operator
	if err := c.doJSON(ctx, http.MethodGet, "/operators/"+url.PathEscape(string(op)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Operators lists every operator with non-zero power.
func (c *Client) Operators(ctx context.Context) ([]Operator, error) {
	var out []Operator
	if err := c.doJSON(ctx, http.MethodGet, "/operators", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
