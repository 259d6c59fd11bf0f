// Package model holds the domain types shared by the verifier components.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TaskID identifies a task. IDs are assigned sequentially from 1.
type TaskID uint64

// String returns the base-10 task ID.
func (id TaskID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseTaskID parses a base-10 task ID.
func ParseTaskID(s string) (TaskID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse task id %q:\n%w", s, err)
	}
	return TaskID(n), nil
}

// OperatorID identifies an operator.
type OperatorID string

// ErrInvalidPrice is returned when a result is not a plain non-negative decimal
// within the supported precision.
var ErrInvalidPrice = errors.New("result is not a non-negative decimal")

const (
	// MaxPriceScale is the maximum number of fractional digits in a price.
	MaxPriceScale = 18

	// MaxPriceIntegerDigits is the maximum number of integer digits in a price.
	MaxPriceIntegerDigits = 38
)

// ParsePrice parses an oracle result into an exact decimal.
// Only plain notation is accepted ("123", "0.5"); signs, exponents and
// values beyond MaxPriceIntegerDigits or MaxPriceScale are rejected.
func ParsePrice(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)

	intPart, fracPart, hasDot := strings.Cut(trimmed, ".")
	if intPart == "" || (hasDot && fracPart == "") || !isDigits(intPart) || !isDigits(fracPart) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}

	if len(fracPart) > MaxPriceScale {
		return decimal.Zero, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidPrice, s, MaxPriceScale)
	}

	if len(strings.TrimLeft(intPart, "0")) > MaxPriceIntegerDigits {
		return decimal.Zero, fmt.Errorf("%w: %q has more than %d integer digits", ErrInvalidPrice, s, MaxPriceIntegerDigits)
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}

	return d, nil
}

// isDigits reports whether s holds only ASCII digits.
func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Vote is one operator's submission for a task.
type Vote struct {
	Operator OperatorID `json:"operator"` // Operator is the submitting operator
	Result   string     `json:"result"`   // Result is the submitted result, verbatim
	Power    Power      `json:"power"`    // Power is the voting power captured at submission
}

// Tally is the accumulated power behind one distinct result of a task.
type Tally struct {
	Result string `json:"result"` // Result is the exact result string
	Power  Power  `json:"power"`  // Power is the sum of power backing Result
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus uint8

const (
	// TaskOpen accepts votes.
	TaskOpen TaskStatus = iota + 1
	// TaskCompleted has an accepted result and never reverts.
	TaskCompleted
	// TaskExpired is derived at read time, never stored.
	TaskExpired
)

// String returns the lowercase status name.
func (s TaskStatus) String() string {
	switch s {
	case TaskOpen:
		return "open"
	case TaskCompleted:
		return "completed"
	case TaskExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status name.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *TaskStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = TaskOpen
	case "completed":
		*s = TaskCompleted
	case "expired":
		*s = TaskExpired
	default:
		return fmt.Errorf("unknown task status %q", text)
	}
	return nil
}

// Task is the registry record of a unit of off-chain work.
type Task struct {
	ID            TaskID     `json:"id"`
	Description   string     `json:"description"`
	Status        TaskStatus `json:"status"`        // Status is the stored state (Open or Completed)
	PowerRequired Power      `json:"powerRequired"` // PowerRequired gates aggregation
	TotalPower    Power      `json:"totalPower"`    // TotalPower is the eligible power at creation
	CreatedAt     time.Time  `json:"createdAt"`
	Deadline      time.Time  `json:"deadline"`
	Result        string     `json:"result,omitempty"`
	CompletedAt   time.Time  `json:"completedAt,omitzero"`
}

// StatusAt projects the task status at now.
// An open task past its deadline reads as expired; completion is final.
func (t *Task) StatusAt(now time.Time) TaskStatus {
	if t.Status == TaskOpen && now.After(t.Deadline) {
		return TaskExpired
	}
	return t.Status
}

// OutcomeStatus is the kind of outcome event emitted after a vote.
type OutcomeStatus string

const (
	// OutcomeVoteStored means the gate was not reached.
	OutcomeVoteStored OutcomeStatus = "vote_stored"
	// OutcomeThresholdMet means the task was completed.
	OutcomeThresholdMet OutcomeStatus = "threshold_met"
	// OutcomeThresholdNotMet means aggregation ran but the task stays open.
	OutcomeThresholdNotMet OutcomeStatus = "threshold_not_met"
)

// Outcome reports what happened to a task after a vote.
type Outcome struct {
	TaskID    TaskID        `json:"taskId"`
	Operator  OperatorID    `json:"operator"`
	Status    OutcomeStatus `json:"status"`
	Value     *string       `json:"value,omitempty"`     // Value is the accepted result, set on ThresholdMet
	Slashable []OperatorID  `json:"slashable,omitempty"` // Slashable lists operators outside the slashable band
}

// PriceBand is an inclusive price range.
type PriceBand struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// Preview is a read-only aggregation of a task's current votes.
type Preview struct {
	TaskID        TaskID       `json:"taskId"`
	Median        string       `json:"median"`
	Allowed       PriceBand    `json:"allowed"`       // Allowed is the validity band
	SlashableBand PriceBand    `json:"slashableBand"` // SlashableBand bounds non-slashable votes
	ValidPower    Power        `json:"validPower"`
	ThresholdMet  bool         `json:"thresholdMet"` // ThresholdMet is what a decision would report now
	Slashable     []OperatorID `json:"slashable"`
}
