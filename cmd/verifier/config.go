package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"OracleVerifier/internal/config"
	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/snapshot"
)

// envPrefix prefixes environment overrides, e.g. VERIFIER_HTTP.
const envPrefix = "VERIFIER"

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// LogLevel is the minimum log level.
	LogLevel slog.Level

	// Verifier holds the validated verification parameters.
	Verifier *config.Config

	// SnapshotInterval is the period between state snapshots; zero or less disables them.
	SnapshotInterval time.Duration

	// SnapshotPath is where snapshots are written; empty keeps them in memory.
	SnapshotPath string

	// Metrics enables the /metrics endpoint.
	Metrics bool

	// GenesisPath is an optional operator set applied to an empty ledger.
	GenesisPath string

	// PruneCompleted deletes a task's votes once it is completed.
	PruneCompleted bool
}

// addServeFlags registers the node flags on cmd.
func addServeFlags(flags *pflag.FlagSet) {
	def := config.DefaultParams()

	flags.String("data", "./data", "Data directory path")
	flags.String("http", ":8080", "HTTP API address")
	flags.String("kind", string(def.Kind), "Verifier kind (oracle|simple)")
	flags.String("gate", string(def.Gate), "Aggregation gate (result|total)")
	flags.String("threshold", def.Threshold, "Minimum fraction of total power that must be valid")
	flags.String("allowed-spread", def.AllowedSpread, "Validity band half-width as a fraction of the median")
	flags.String("slashable-spread", def.SlashableSpread, "Slashable band half-width as a fraction of the median")
	flags.Int("required-percentage", def.RequiredPercentage, "Percentage of total power that triggers aggregation")
	flags.Duration("snapshot-interval", snapshot.DefaultInterval, "Interval between state snapshots (0 disables snapshots)")
	flags.String("snapshot-path", "", "File to write snapshots to (empty keeps them in memory)")
	flags.Bool("metrics", true, "Serve Prometheus metrics on /metrics")
	flags.String("genesis", "", "Genesis operator file applied when the ledger is empty")
	flags.Bool("prune-completed", false, "Delete a task's votes and tallies once it is completed")
}

// newViper binds cmd's flags, VERIFIER_* environment variables and the
// optional config file, in increasing precedence: file, env, flags.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags:\n%w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s:\n%w", path, err)
		}
	}

	return v, nil
}

// loadConfig resolves and validates the node configuration.
func loadConfig(v *viper.Viper) (*Config, error) {
	level, err := logger.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}

	verifierCfg, err := config.New(config.Params{
		Kind:               config.Kind(v.GetString("kind")),
		Gate:               config.Gate(v.GetString("gate")),
		Threshold:          v.GetString("threshold"),
		AllowedSpread:      v.GetString("allowed-spread"),
		SlashableSpread:    v.GetString("slashable-spread"),
		RequiredPercentage: v.GetInt("required-percentage"),
	})
	if err != nil {
		return nil, fmt.Errorf("verifier config:\n%w", err)
	}

	return &Config{
		DataPath:         v.GetString("data"),
		HTTPAddress:      v.GetString("http"),
		LogLevel:         level,
		Verifier:         verifierCfg,
		SnapshotInterval: v.GetDuration("snapshot-interval"),
		SnapshotPath:     v.GetString("snapshot-path"),
		Metrics:          v.GetBool("metrics"),
		GenesisPath:      v.GetString("genesis"),
		PruneCompleted:   v.GetBool("prune-completed"),
	}, nil
}
