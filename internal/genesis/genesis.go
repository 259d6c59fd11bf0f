package genesis

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/model"
)

var (
	// ErrNoOperators is returned when a genesis file lists no operators.
	ErrNoOperators = errors.New("genesis lists no operators")

	// ErrDuplicateOperator is returned when an operator appears twice.
	ErrDuplicateOperator = errors.New("duplicate genesis operator")
)

// Allocation is one operator's initial voting power.
type Allocation struct {
	Operator string `yaml:"operator"` // Operator is the operator identity
	Power    string `yaml:"power"`    // Power is a base-10 amount
}

// Config holds the genesis operator set used to bootstrap an empty node.
type Config struct {
	Operators []Allocation `yaml:"operators"`
}

// Ledger is the subset of the operator ledger genesis needs.
type Ledger interface {
	SetPower(op model.OperatorID, power model.Power) error
	TotalPower() (model.Power, error)
}

// Load reads and validates a genesis file. JSON is accepted as a YAML subset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis %s:\n%w", path, err)
	}

	return Parse(data)
}

// Parse decodes and validates genesis content.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode genesis:\n%w", err)
	}

	if _, err := cfg.allocations(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// allocations validates entries and returns them parsed, in file order.
func (c *Config) allocations() ([]parsedAllocation, error) {
	if len(c.Operators) == 0 {
		return nil, ErrNoOperators
	}

	seen := make(map[string]bool, len(c.Operators))
	out := make([]parsedAllocation, 0, len(c.Operators))

	for i, a := range c.Operators {
		if a.Operator == "" {
			return nil, fmt.Errorf("genesis operator %d: empty identity", i)
		}

		if seen[a.Operator] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOperator, a.Operator)
		}
		seen[a.Operator] = true

		power, err := model.ParsePower(a.Power)
		if err != nil {
			return nil, fmt.Errorf("genesis operator %s:\n%w", a.Operator, err)
		}

		out = append(out, parsedAllocation{op: model.OperatorID(a.Operator), power: power})
	}

	return out, nil
}

type parsedAllocation struct {
	op    model.OperatorID
	power model.Power
}

// Apply seeds the ledger when it holds no power yet.
// It returns false when the ledger was already initialized.
func Apply(cfg *Config, ledger Ledger) (bool, error) {
	total, err := ledger.TotalPower()
	if err != nil {
		return false, fmt.Errorf("read total power:\n%w", err)
	}

	if !total.IsZero() {
		logger.Debug("genesis skipped, ledger already initialized", "total_power", total)
		return false, nil
	}

	allocs, err := cfg.allocations()
	if err != nil {
		return false, err
	}

	for _, a := range allocs {
		if err := ledger.SetPower(a.op, a.power); err != nil {
			return false, fmt.Errorf("set genesis power for %s:\n%w", a.op, err)
		}
	}

	logger.Info("genesis applied", "operators", len(allocs))

	return true, nil
}
