package aggregation

import "github.com/shopspring/decimal"

// Band is an inclusive price range around a median.
type Band struct {
	Min decimal.Decimal // Min is the inclusive lower bound
	Max decimal.Decimal // Max is the inclusive upper bound
}

// NewBand returns [median*(1-spread), median*(1+spread)].
// A zero median yields [0, 0] for any spread, so only zero-valued
// observations fall inside it.
func NewBand(median, spread decimal.Decimal) Band {
	return Band{
		Min: median.Mul(one.Sub(spread)),
		Max: median.Mul(one.Add(spread)),
	}
}

// Contains reports whether v lies in the band, bounds included.
func (b Band) Contains(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(b.Min) && v.LessThanOrEqual(b.Max)
}
