// Package aggregation reduces the votes of one task to an accepted median,
// an acceptance decision and the set of operators to penalize.
//
// Everything here is a pure function of its inputs. Prices use exact
// decimal arithmetic; powers use saturating 256-bit integers.
package aggregation

import (
	"sort"

	"github.com/shopspring/decimal"

	"OracleVerifier/internal/model"
)

var (
	one  = decimal.NewFromInt(1)
	half = decimal.New(5, -1)
)

// Vote is one numeric observation with the power behind it.
type Vote struct {
	Operator model.OperatorID // Operator is the submitting operator
	Value    decimal.Decimal  // Value is the observed price
	Power    model.Power      // Power is the power captured at submission
}

// Params are the acceptance parameters of one evaluation.
type Params struct {
	Threshold       decimal.Decimal // Threshold is the minimum valid-power fraction of total power
	AllowedSpread   decimal.Decimal // AllowedSpread is the validity band half-width
	SlashableSpread decimal.Decimal // SlashableSpread is the slashable band half-width
}

// Result is the outcome of one evaluation.
type Result struct {
	Median        decimal.Decimal    // Median is the median of all observed values
	Slashable     []model.OperatorID // Slashable lists operators outside the slashable band, in input order
	ThresholdMet  bool               // ThresholdMet is true when valid power reaches the threshold
	ValidPower    model.Power        // ValidPower is the power of votes inside the allowed band
	Allowed       Band               // Allowed is the validity band
	SlashableBand Band               // SlashableBand is the slashable band
}

// Evaluate aggregates votes against totalPower.
//
// The median is computed over every vote. Votes inside the allowed band add
// their power to the valid power; votes strictly outside the slashable band
// are reported as slashable whether or not the threshold was met.
func Evaluate(votes []Vote, totalPower model.Power, p Params) Result {
	values := make([]decimal.Decimal, len(votes))
	for i, v := range votes {
		values[i] = v.Value
	}

	median := Median(values)
	allowed := NewBand(median, p.AllowedSpread)
	slashable := NewBand(median, p.SlashableSpread)

	var validPower model.Power
	var slashed []model.OperatorID

	for _, v := range votes {
		if allowed.Contains(v.Value) {
			validPower = validPower.Add(v.Power)
		}

		if !slashable.Contains(v.Value) {
			slashed = append(slashed, v.Operator)
		}
	}

	return Result{
		Median:        median,
		Slashable:     slashed,
		ThresholdMet:  ThresholdMet(validPower, totalPower, p.Threshold),
		ValidPower:    validPower,
		Allowed:       allowed,
		SlashableBand: slashable,
	}
}

// Median returns the statistical median of values, or zero when empty.
// For an even count it is the exact mean of the two middle values.
// The input slice is not modified.
func Median(values []decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n == 0 {
		return decimal.Zero
	}

	sorted := make([]decimal.Decimal, n)
	copy(sorted, values)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	if n%2 == 1 {
		return sorted[n/2]
	}

	// Multiplying by 0.5 is exact; Div would round to DivisionPrecision.
	return sorted[n/2-1].Add(sorted[n/2]).Mul(half)
}

// ThresholdMet reports whether valid/total >= threshold, compared exactly
// as valid >= threshold*total. Equality counts as met. Zero total power
// never meets the threshold.
func ThresholdMet(valid, total model.Power, threshold decimal.Decimal) bool {
	if total.IsZero() {
		return false
	}

	required := threshold.Mul(total.Decimal())
	return valid.Decimal().GreaterThanOrEqual(required)
}
