package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"OracleVerifier/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "verifier",
		Short:         "Oracle verification node and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Config file (yaml, toml or json)")
	root.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")
	root.PersistentFlags().String("node", "127.0.0.1:8080", "Node HTTP address for client commands")

	root.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newOperatorCmd(),
		newTaskCmd(),
		newVoteCmd(),
		newSnapshotCmd(),
	)

	return root
}

// newServeCmd runs a node until SIGINT or SIGTERM.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a verifier node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			logger.Init(cfg.LogLevel)

			node, err := NewNode(cfg)
			if err != nil {
				return fmt.Errorf("create node:\n%w", err)
			}

			printStartupInfo(cfg)

			return node.Run()
		},
	}

	addServeFlags(cmd.Flags())

	return cmd
}

// printStartupInfo displays node configuration at startup.
func printStartupInfo(cfg *Config) {
	logger.Info("starting verifier node",
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"kind", cfg.Verifier.Kind(),
		"gate", cfg.Verifier.Gate(),
		"threshold", cfg.Verifier.Threshold(),
		"allowed_spread", cfg.Verifier.AllowedSpread(),
		"slashable_spread", cfg.Verifier.SlashableSpread(),
		"required_percentage", cfg.Verifier.RequiredPercentage(),
	)
}
