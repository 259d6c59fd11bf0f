package model

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// PowerSize is the encoded size of a Power in bytes.
const PowerSize = 32

// Power is a non-negative voting weight.
// Arithmetic saturates at 2^256-1 instead of wrapping.
type Power struct {
	v uint256.Int
}

// maxPower is the saturation ceiling.
var maxPower = func() Power {
	var p Power
	p.v.SetAllOne()
	return p
}()

// NewPower returns the power for a uint64 amount.
func NewPower(n uint64) Power {
	var p Power
	p.v.SetUint64(n)
	return p
}

// MaxPower returns the largest representable power.
func MaxPower() Power {
	return maxPower
}

// ParsePower parses a base-10 power amount.
func ParsePower(s string) (Power, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Power{}, fmt.Errorf("parse power %q:\n%w", s, err)
	}

	return Power{v: *v}, nil
}

// PowerFromBytes decodes a 32-byte big-endian power.
func PowerFromBytes(b []byte) (Power, error) {
	if len(b) != PowerSize {
		return Power{}, fmt.Errorf("invalid power length: got %d, want %d", len(b), PowerSize)
	}

	var p Power
	p.v.SetBytes32(b)
	return p, nil
}

// Bytes returns the 32-byte big-endian encoding.
func (p Power) Bytes() []byte {
	b := p.v.Bytes32()
	return b[:]
}

// Add returns p + o, saturating at MaxPower.
func (p Power) Add(o Power) Power {
	var sum Power
	if _, overflow := sum.v.AddOverflow(&p.v, &o.v); overflow {
		return maxPower
	}
	return sum
}

// MulPercent returns floor(p * pct / 100).
func (p Power) MulPercent(pct uint8) Power {
	var out Power
	hundred := uint256.NewInt(100)
	factor := uint256.NewInt(uint64(pct))

	// The 512-bit intermediate cannot overflow the result for pct <= 100.
	out.v.MulDivOverflow(&p.v, factor, hundred)
	return out
}

// Cmp compares p and o, returning -1, 0 or +1.
func (p Power) Cmp(o Power) int {
	return p.v.Cmp(&o.v)
}

// GTE reports whether p >= o.
func (p Power) GTE(o Power) bool {
	return p.Cmp(o) >= 0
}

// IsZero reports whether p is zero.
func (p Power) IsZero() bool {
	return p.v.IsZero()
}

// Big returns p as a big.Int.
func (p Power) Big() *big.Int {
	return p.v.ToBig()
}

// Decimal returns p as an exact decimal.
func (p Power) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(p.v.ToBig(), 0)
}

// String returns the base-10 representation.
func (p Power) String() string {
	return p.v.ToBig().String()
}

// MarshalJSON encodes power as a decimal string so large values survive JSON.
func (p Power) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (p *Power) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("power must be a string or number:\n%w", err)
		}
		s = n.String()
	}

	parsed, err := ParsePower(s)
	if err != nil {
		return err
	}

	*p = parsed
	return nil
}
