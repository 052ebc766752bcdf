package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/candecode/pkg/db"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage stored decode runs",
		Long:  "List, inspect, export and delete decode runs stored in the database",
	}

	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	cmd.AddCommand(runsExportCmd())
	cmd.AddCommand(runsDeleteCmd())
	cmd.AddCommand(runsPruneCmd())

	return cmd
}

func runsListCmd() *cobra.Command {
	var (
		source  string
		dbcName string
		limit   int
		since   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decode runs",
		Long: `List decode runs from the database, newest first.

Examples:
  # List the last 50 runs
  candecode runs list

  # Runs decoded through the web UI in the last day
  candecode runs list --source web --since 24h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			filter := db.RunFilter{
				Source:  source,
				DBCName: dbcName,
				Limit:   limit,
			}
			if since > 0 {
				start := time.Now().Add(-since)
				filter.StartTime = &start
			}

			runs, err := database.ListRuns(filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found")
				return nil
			}

			fmt.Fprintf(out, "%-6s %-6s %-20s %-20s %-20s %8s %8s\n",
				"ID", "Source", "Created", "DBC", "Trace", "Rows", "Signals")
			fmt.Fprintln(out, strings.Repeat("-", 94))

			for _, run := range runs {
				signals := len(run.Columns) - 1
				if signals < 0 {
					signals = 0
				}
				fmt.Fprintf(out, "%-6d %-6s %-20s %-20s %-20s %8d %8d\n",
					run.ID,
					run.Source,
					run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					truncate(run.DBCName, 20),
					truncate(run.TraceName, 20),
					run.Rows,
					signals,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Filter by source (web, cli, api)")
	cmd.Flags().StringVar(&dbcName, "dbc", "", "Filter by DBC file name")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of runs to show")
	cmd.Flags().DurationVar(&since, "since", 0, "Only runs created within this duration")

	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show run details",
		Long: `Show details and data-quality counters of a stored run.

Examples:
  candecode runs show 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			run, err := database.GetRun(runID)
			if err != nil {
				return fmt.Errorf("run %d not found", runID)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run ID:  %d\n", run.ID)
			fmt.Fprintf(out, "Source:  %s\n", run.Source)
			fmt.Fprintf(out, "Created: %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "DBC:     %s\n", run.DBCName)
			fmt.Fprintf(out, "Trace:   %s\n", run.TraceName)
			fmt.Fprintf(out, "Rows:    %d\n", run.Rows)
			fmt.Fprintf(out, "Columns: %s\n", strings.Join(run.Columns, ", "))
			if ms, ok := run.Meta["elapsed_ms"].(float64); ok {
				fmt.Fprintf(out, "Elapsed: %.1f ms\n", ms)
			}

			fmt.Fprintln(out, "\nData quality:")
			printQuality(out, run)
			return nil
		},
	}
}

func runsExportCmd() *cobra.Command {
	var (
		format string
		output string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export a run's table",
		Long: `Export the decoded table of a stored run, or a summary of all runs.

Examples:
  # Export run 42 as CSV to stdout
  candecode runs export 42

  # Export run 42 with its stats as JSON
  candecode runs export 42 --format json --out run42.json

  # Summary of every run
  candecode runs export --all --out runs.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("either a run id or --all must be specified")
			}
			if format != string(db.ExportFormatCSV) && format != string(db.ExportFormatJSON) {
				return fmt.Errorf("format must be either 'csv' or 'json'")
			}
			if all && format != string(db.ExportFormatCSV) {
				return fmt.Errorf("--all only supports csv")
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			out, err := createOutput(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() { _ = out.Close() }()

			if all {
				if err := database.ExportRunsCSV(out, db.RunFilter{}); err != nil {
					return fmt.Errorf("failed to export runs: %w", err)
				}
				if output != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Exported all runs to %s\n", output)
				}
				return nil
			}

			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			if _, err := database.GetRun(runID); err != nil {
				return fmt.Errorf("run %d not found", runID)
			}

			if format == string(db.ExportFormatJSON) {
				err = database.ExportJSON(out, runID)
			} else {
				err = database.ExportCSV(out, runID)
			}
			if err != nil {
				return fmt.Errorf("failed to export run: %w", err)
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported run %d to %s\n", runID, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Output format (csv or json)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&all, "all", false, "Export a summary of all runs")

	return cmd
}

func runsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			if err := database.DeleteRun(runID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %d\n", runID)
			return nil
		},
	}
}

func runsPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs",
		Long: `Delete runs created before the given age.

Examples:
  # Drop runs older than 30 days
  candecode runs prune --older-than 720h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			n, err := database.PruneRuns(time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d runs\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age of runs to delete (required)")
	_ = cmd.MarkFlagRequired("older-than")

	return cmd
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run ID: %s", s)
	}
	return id, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
