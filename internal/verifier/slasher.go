package verifier

import (
	"context"

	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/model"
)

// Slasher penalizes operators whose observations fell outside the slashable band.
type Slasher interface {
	Penalize(ctx context.Context, operator model.OperatorID) error
}

// NoopSlasher only logs. The penalty mechanism is not implemented yet.
type NoopSlasher struct{}

// Penalize logs the operator and does nothing else.
func (NoopSlasher) Penalize(_ context.Context, operator model.OperatorID) error {
	logger.Info("operator slashable", "operator", operator)
	return nil
}
