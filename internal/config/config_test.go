package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New(DefaultParams())
	require.NoError(t, err)

	require.Equal(t, KindOracle, cfg.Kind())
	require.Equal(t, GateResult, cfg.Gate())
	require.Equal(t, "0.5", cfg.Threshold().String())
	require.Equal(t, "0.1", cfg.AllowedSpread().String())
	require.Equal(t, "0.2", cfg.SlashableSpread().String())
	require.Equal(t, uint8(67), cfg.RequiredPercentage())
}

func TestNewAcceptsFullRange(t *testing.T) {
	p := DefaultParams()
	p.Threshold = "1"
	p.AllowedSpread = "0.99"
	p.SlashableSpread = "1.0"
	p.RequiredPercentage = 100

	_, err := New(p)
	require.NoError(t, err)
}

func TestNewRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
		want   error
	}{
		{"zero threshold", func(p *Params) { p.Threshold = "0" }, ErrInvalidThreshold},
		{"threshold above one", func(p *Params) { p.Threshold = "1.01" }, ErrInvalidThreshold},
		{"threshold not decimal", func(p *Params) { p.Threshold = "half" }, ErrInvalidThreshold},
		{"zero allowed spread", func(p *Params) { p.AllowedSpread = "0" }, ErrInvalidSpread},
		{"negative slashable spread", func(p *Params) { p.SlashableSpread = "-0.2" }, ErrInvalidSpread},
		{"slashable above one", func(p *Params) { p.SlashableSpread = "2" }, ErrInvalidSpread},
		{"equal spreads", func(p *Params) { p.SlashableSpread = "0.1" }, ErrSpreadOrder},
		{"inverted spreads", func(p *Params) { p.AllowedSpread = "0.3" }, ErrSpreadOrder},
		{"percentage above 100", func(p *Params) { p.RequiredPercentage = 101 }, ErrInvalidPercentage},
		{"negative percentage", func(p *Params) { p.RequiredPercentage = -1 }, ErrInvalidPercentage},
		{"unknown kind", func(p *Params) { p.Kind = "median" }, ErrUnknownKind},
		{"unknown gate", func(p *Params) { p.Gate = "any" }, ErrUnknownGate},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := DefaultParams()
			c.mutate(&p)

			cfg, err := New(p)
			require.Nil(t, cfg)
			require.True(t, errors.Is(err, c.want), "got %v", err)
		})
	}
}

// TestNewReportsAllViolations tests that every problem is surfaced at once.
func TestNewReportsAllViolations(t *testing.T) {
	p := DefaultParams()
	p.Threshold = "0"
	p.AllowedSpread = "0"
	p.RequiredPercentage = 200

	_, err := New(p)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidThreshold))
	require.True(t, errors.Is(err, ErrInvalidSpread))
	require.True(t, errors.Is(err, ErrInvalidPercentage))
}

func TestNewSimpleIgnoresBands(t *testing.T) {
	cfg, err := New(Params{Kind: KindSimple, RequiredPercentage: 50})
	require.NoError(t, err)
	require.Equal(t, KindSimple, cfg.Kind())
	require.Equal(t, uint8(50), cfg.RequiredPercentage())
}
