// Package config holds the immutable per-verifier configuration.
package config

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
)

// Kind selects the verifier variant.
type Kind string

const (
	// KindOracle aggregates numeric price observations around their median.
	KindOracle Kind = "oracle"
	// KindSimple accepts the first exact result whose power reaches the gate.
	KindSimple Kind = "simple"
)

// Gate selects which accumulated power is compared against a task's required power.
type Gate string

const (
	// GateResult compares the power behind the submitted result only.
	GateResult Gate = "result"
	// GateTotal compares the power of all votes on the task.
	GateTotal Gate = "total"
)

var (
	// ErrInvalidThreshold is returned when the threshold is not in (0, 1].
	ErrInvalidThreshold = errors.New("threshold must be in (0, 1]")

	// ErrInvalidSpread is returned when a spread is not in (0, 1].
	ErrInvalidSpread = errors.New("spread must be in (0, 1]")

	// ErrSpreadOrder is returned when the slashable spread does not exceed the allowed spread.
	ErrSpreadOrder = errors.New("slashable spread must be greater than allowed spread")

	// ErrInvalidPercentage is returned when the required percentage exceeds 100.
	ErrInvalidPercentage = errors.New("required percentage must be in [0, 100]")

	// ErrUnknownKind is returned for an unrecognized verifier kind.
	ErrUnknownKind = errors.New("unknown verifier kind")

	// ErrUnknownGate is returned for an unrecognized gate.
	ErrUnknownGate = errors.New("unknown gate")
)

var one = decimal.NewFromInt(1)

// Config is the verifier configuration. It is immutable once built by New.
type Config struct {
	kind               Kind
	gate               Gate
	threshold          decimal.Decimal
	allowedSpread      decimal.Decimal
	slashableSpread    decimal.Decimal
	requiredPercentage uint8
}

// Params are the raw configuration inputs.
type Params struct {
	Kind               Kind   // Kind is the verifier variant
	Gate               Gate   // Gate is the aggregation trigger (oracle only)
	Threshold          string // Threshold is the minimum valid-power fraction, e.g. "0.5"
	AllowedSpread      string // AllowedSpread is the validity band half-width, e.g. "0.1"
	SlashableSpread    string // SlashableSpread is the slashable band half-width, e.g. "0.2"
	RequiredPercentage int    // RequiredPercentage of total power that triggers aggregation
}

// DefaultParams returns the defaults used by the CLI.
func DefaultParams() Params {
	return Params{
		Kind:               KindOracle,
		Gate:               GateResult,
		Threshold:          "0.5",
		AllowedSpread:      "0.1",
		SlashableSpread:    "0.2",
		RequiredPercentage: 67,
	}
}

// New validates p and builds a Config.
// All violations are reported together; no Config is returned on error.
func New(p Params) (*Config, error) {
	var result *multierror.Error

	kind := p.Kind
	if kind == "" {
		kind = KindOracle
	}
	if kind != KindOracle && kind != KindSimple {
		result = multierror.Append(result, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind))
	}

	gate := p.Gate
	if gate == "" {
		gate = GateResult
	}
	if gate != GateResult && gate != GateTotal {
		result = multierror.Append(result, fmt.Errorf("%w: %q", ErrUnknownGate, p.Gate))
	}

	if p.RequiredPercentage < 0 || p.RequiredPercentage > 100 {
		result = multierror.Append(result, fmt.Errorf("%w: got %d", ErrInvalidPercentage, p.RequiredPercentage))
	}

	cfg := &Config{
		kind:               kind,
		gate:               gate,
		requiredPercentage: uint8(max(0, min(p.RequiredPercentage, 100))),
	}

	// The simple verifier has no price bands.
	if kind == KindSimple {
		if err := result.ErrorOrNil(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	var thresholdErr, allowedErr, slashableErr error

	cfg.threshold, thresholdErr = parseFraction("threshold", p.Threshold, ErrInvalidThreshold)
	cfg.allowedSpread, allowedErr = parseFraction("allowed spread", p.AllowedSpread, ErrInvalidSpread)
	cfg.slashableSpread, slashableErr = parseFraction("slashable spread", p.SlashableSpread, ErrInvalidSpread)

	for _, err := range []error{thresholdErr, allowedErr, slashableErr} {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	if allowedErr == nil && slashableErr == nil && cfg.slashableSpread.LessThanOrEqual(cfg.allowedSpread) {
		result = multierror.Append(result, fmt.Errorf("%w: slashable %s <= allowed %s",
			ErrSpreadOrder, cfg.slashableSpread, cfg.allowedSpread))
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseFraction parses s and checks it lies in (0, 1].
func parseFraction(name, s string, sentinel error) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a decimal", sentinel, name, s)
	}

	if d.Sign() <= 0 || d.GreaterThan(one) {
		return decimal.Zero, fmt.Errorf("%w: %s is %s", sentinel, name, d)
	}

	return d, nil
}

// Kind returns the verifier variant.
func (c *Config) Kind() Kind { return c.kind }

// Gate returns the aggregation trigger.
func (c *Config) Gate() Gate { return c.gate }

// Threshold returns the minimum fraction of total power that must back valid votes.
func (c *Config) Threshold() decimal.Decimal { return c.threshold }

// AllowedSpread returns the validity band half-width as a fraction of the median.
func (c *Config) AllowedSpread() decimal.Decimal { return c.allowedSpread }

// SlashableSpread returns the slashable band half-width as a fraction of the median.
func (c *Config) SlashableSpread() decimal.Decimal { return c.slashableSpread }

// RequiredPercentage returns the percent of total power that triggers aggregation.
func (c *Config) RequiredPercentage() uint8 { return c.requiredPercentage }
