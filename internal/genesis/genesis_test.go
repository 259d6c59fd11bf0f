package genesis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"OracleVerifier/internal/model"
	"OracleVerifier/internal/registry"
	"OracleVerifier/internal/storage"
)

func newLedger(t *testing.T) *registry.Operators {
	t.Helper()

	db, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return registry.NewOperators(db)
}

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	content := "operators:\n  - operator: alice\n    power: \"60\"\n  - operator: bob\n    power: \"40\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Operators, 2)

	ledger := newLedger(t)

	applied, err := Apply(cfg, ledger)
	require.NoError(t, err)
	require.True(t, applied)

	total, err := ledger.TotalPower()
	require.NoError(t, err)
	require.Equal(t, "100", total.String())

	power, err := ledger.VotingPower("bob")
	require.NoError(t, err)
	require.Equal(t, "40", power.String())
}

func TestApplySkipsInitializedLedger(t *testing.T) {
	ledger := newLedger(t)
	require.NoError(t, ledger.SetPower("carol", model.NewPower(5)))

	cfg, err := Parse([]byte(`{"operators":[{"operator":"alice","power":"60"}]}`))
	require.NoError(t, err)

	applied, err := Apply(cfg, ledger)
	require.NoError(t, err)
	require.False(t, applied)

	power, err := ledger.VotingPower("alice")
	require.NoError(t, err)
	require.True(t, power.IsZero())
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{"empty", "operators: []\n", ErrNoOperators},
		{"duplicate", "operators:\n  - {operator: a, power: \"1\"}\n  - {operator: a, power: \"2\"}\n", ErrDuplicateOperator},
		{"bad power", "operators:\n  - {operator: a, power: \"-3\"}\n", nil},
		{"missing identity", "operators:\n  - {power: \"3\"}\n", nil},
		{"not yaml", "operators: [", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
