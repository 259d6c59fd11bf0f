package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"OracleVerifier/client"
	"OracleVerifier/internal/model"
	"OracleVerifier/internal/snapshot"
	"OracleVerifier/internal/storage"
)

// connect builds a client for the --node address.
func connect(cmd *cobra.Command) (*client.Client, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}

	return client.NewClient(cmd.Context(), v.GetString("node"))
}

// printJSON writes v as indented JSON to the command output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newStatusCmd prints the node summary.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show node status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}

			s, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd, s)
		},
	}
}

// newOperatorCmd groups operator power commands.
func newOperatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage operator voting power",
	}

	set := &cobra.Command{
		Use:   "set <operator> <power>",
		Short: "Set an operator's voting power (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			power, err := model.ParsePower(args[1])
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}

			op, err := c.SetPower(cmd.Context(), model.OperatorID(args[0]), power)
			if err != nil {
				return err
			}

			return printJSON(cmd, op)
		},
	}

	get := &cobra.Command{
		Use:   "get <operator>",
		Short: "Show an operator's voting power",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}

			op, err := c.Operator(cmd.Context(), model.OperatorID(args[0]))
			if err != nil {
				return err
			}

			return printJSON(cmd, op)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List operators with voting power",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}

			ops, err := c.Operators(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd, ops)
		},
	}

	cmd.AddCommand(set, get, list)

	return cmd
}

// newTaskCmd groups task commands.
func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create and inspect tasks",
	}

	var (
		description string
		timeout     time.Duration
	)

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}

			task, err := c.CreateTask(cmd.Context(), description, timeout)
			if err != nil {
				return err
			}

			return printJSON(cmd, task)
		},
	}
	create.Flags().StringVar(&description, "description", "", "Task description")
	create.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long the task accepts votes")

	get := &cobra.Command{
		Use:   "get <task>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}

			task, err := c.Task(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printJSON(cmd, task)
		},
	}

	votesCmd := &cobra.Command{
		Use:   "votes <task>",
		Short: "Show a task's votes and tallies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}

			v, err := c.Votes(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printJSON(cmd, v)
		},
	}

	preview := &cobra.Command{
		Use:   "preview <task>",
		Short: "Show the current median, bands and slashable set of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}

			p, err := c.Preview(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printJSON(cmd, p)
		},
	}

	var interval time.Duration
	wait := &cobra.Command{
		Use:   "wait <task>",
		Short: "Wait until a task is completed or expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}

			task, err := c.WaitCompleted(cmd.Context(), id, interval)
			if err != nil {
				return err
			}

			return printJSON(cmd, task)
		},
	}
	wait.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval")

	cmd.AddCommand(create, get, votesCmd, preview, wait)

	return cmd
}

// newVoteCmd groups vote commands.
func newVoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vote",
		Short: "Submit votes",
	}

	submit := &cobra.Command{
		Use:   "submit <task> <operator> <result>",
		Short: "Submit an operator's result for a task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}

			out, err := c.SubmitVote(cmd.Context(), id, model.OperatorID(args[1]), args[2])
			if err != nil {
				return err
			}

			return printJSON(cmd, out)
		},
	}

	cmd.AddCommand(submit)

	return cmd
}

// newSnapshotCmd groups snapshot commands. Export and import open the data
// directory directly and require the node to be stopped.
func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export, import and fetch state snapshots",
	}

	var dataPath string

	export := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a snapshot of a stopped node's data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.New(filepath.Join(dataPath, "db"))
			if err != nil {
				return fmt.Errorf("open storage:\n%w", err)
			}
			defer db.Close()

			data, err := snapshot.Export(db)
			if err != nil {
				return err
			}

			if err := os.WriteFile(args[0], data, 0644); err != nil {
				return fmt.Errorf("write %s:\n%w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), args[0])
			return nil
		},
	}
	export.Flags().StringVar(&dataPath, "data", "./data", "Data directory path")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace a stopped node's state with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s:\n%w", args[0], err)
			}

			if err := os.MkdirAll(dataPath, 0755); err != nil {
				return fmt.Errorf("create data directory:\n%w", err)
			}

			db, err := storage.New(filepath.Join(dataPath, "db"))
			if err != nil {
				return fmt.Errorf("open storage:\n%w", err)
			}
			defer db.Close()

			n, err := snapshot.Import(db, data)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "restored %d entries\n", n)
			return nil
		},
	}
	importCmd.Flags().StringVar(&dataPath, "data", "./data", "Data directory path")

	fetch := &cobra.Command{
		Use:   "fetch <file>",
		Short: "Download the latest snapshot from a running node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}

			data, err := c.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			if err := os.WriteFile(args[0], data, 0644); err != nil {
				return fmt.Errorf("write %s:\n%w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), args[0])
			return nil
		},
	}

	cmd.AddCommand(export, importCmd, fetch)

	return cmd
}
