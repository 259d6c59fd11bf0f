package registry

import (
	"fmt"
	"sync"

	"OracleVerifier/internal/model"
	"OracleVerifier/internal/storage"
)

var (
	// operatorKeyPrefix is the Pebble key prefix for operator voting power.
	operatorKeyPrefix = []byte("o:")

	// totalPowerKey holds the sum of all operator power.
	totalPowerKey = []byte("m:total_power")
)

// OperatorEntry pairs an operator with its voting power.
type OperatorEntry struct {
	Operator model.OperatorID `json:"operator"`
	Power    model.Power      `json:"power"`
}

// Operators is the voting power ledger.
// It is safe for concurrent access.
type Operators struct {
	mu sync.Mutex       // mu serializes updates to keep the total consistent
	db *storage.Storage // db is the underlying Pebble storage
}

// NewOperators creates an operator ledger backed by the given storage.
func NewOperators(db *storage.Storage) *Operators {
	return &Operators{db: db}
}

// SetPower sets the voting power of an operator. Zero power removes it.
// The operator entry and the total are updated in one batch.
func (o *Operators) SetPower(op model.OperatorID, power model.Power) error {
	if op == "" {
		return fmt.Errorf("empty operator id")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	entries, err := o.All()
	if err != nil {
		return err
	}

	var total model.Power
	for _, e := range entries {
		if e.Operator != op {
			total = total.Add(e.Power)
		}
	}
	total = total.Add(power)

	b := o.db.NewBatch()
	defer b.Close()

	key := makeOperatorKey(op)
	if power.IsZero() {
		err = b.Delete(key)
	} else {
		err = b.Set(key, power.Bytes())
	}
	if err != nil {
		return fmt.Errorf("queue operator:\n%w", err)
	}

	if err := b.Set(totalPowerKey, total.Bytes()); err != nil {
		return fmt.Errorf("queue total power:\n%w", err)
	}

	return b.Commit()
}

// VotingPower returns the power of an operator, zero when unknown.
func (o *Operators) VotingPower(op model.OperatorID) (model.Power, error) {
	value, err := o.db.Get(makeOperatorKey(op))
	if err != nil {
		return model.Power{}, fmt.Errorf("get operator:\n%w", err)
	}
	if value == nil {
		return model.Power{}, nil
	}

	return model.PowerFromBytes(value)
}

// TotalPower returns the sum of all operator power.
func (o *Operators) TotalPower() (model.Power, error) {
	value, err := o.db.Get(totalPowerKey)
	if err != nil {
		return model.Power{}, fmt.Errorf("get total power:\n%w", err)
	}
	if value == nil {
		return model.Power{}, nil
	}

	return model.PowerFromBytes(value)
}

// All returns every operator with non-zero power, ordered by ID.
func (o *Operators) All() ([]OperatorEntry, error) {
	var entries []OperatorEntry

	err := o.db.IteratePrefix(operatorKeyPrefix, func(key, value []byte) error {
		power, err := model.PowerFromBytes(value)
		if err != nil {
			return fmt.Errorf("decode operator %q:\n%w", key, err)
		}

		entries = append(entries, OperatorEntry{
			Operator: model.OperatorID(key[len(operatorKeyPrefix):]),
			Power:    power,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// makeOperatorKey builds "o:" + operator.
func makeOperatorKey(op model.OperatorID) []byte {
	key := make([]byte, len(operatorKeyPrefix)+len(op))
	copy(key, operatorKeyPrefix)
	copy(key[len(operatorKeyPrefix):], op)
	return key
}
