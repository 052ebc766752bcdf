package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mscrnt/candecode/pkg/db"
)

func decodeCmd() *cobra.Command {
	var (
		dbcPath   string
		tracePath string
		output    string
		asJSON    bool
		save      bool
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a trace into CSV",
		Long: `Decode a CAN trace against a DBC file and write the signal table.

The table has a Timestamp column followed by one column per signal observed in
the trace. Cells are empty where the signal's frame was not seen on that row.

Examples:
  # Decode to stdout
  candecode decode --dbc vehicle.dbc --trace drive.trc

  # Decode to a file and keep the run in the database
  candecode decode --dbc vehicle.dbc --trace drive.trc --out decoded.csv --save

  # Full result with data-quality counters as JSON
  candecode decode --dbc vehicle.dbc --trace drive.trc --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := processFiles(dbcPath, tracePath)
			if err != nil {
				return err
			}
			run := db.NewRun(db.SourceCLI, result)

			stderr := cmd.ErrOrStderr()
			if !result.Plottable() && !asJSON {
				fmt.Fprintln(stderr, "No data to plot.")
				printQuality(stderr, run)
				return nil
			}

			csvData, err := result.Table.CSV()
			if err != nil {
				return err
			}

			out, err := createOutput(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() { _ = out.Close() }()

			if asJSON {
				err = result.WriteJSON(out)
			} else {
				_, err = out.Write(csvData)
			}
			if err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}

			if output != "" && output != "-" {
				fmt.Fprintf(stderr, "Decoded %d rows, %d signals to %s\n",
					result.Table.Rows(), len(result.Table.Columns), output)
			}
			printQuality(stderr, run)

			if save && result.Plottable() {
				database, err := openDB()
				if err != nil {
					return err
				}
				defer func() { _ = database.Close() }()

				if err := database.CreateRun(run, csvData); err != nil {
					return err
				}
				fmt.Fprintf(stderr, "Saved run #%d\n", run.ID)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dbcPath, "dbc", "", "DBC signal database (required)")
	cmd.Flags().StringVar(&tracePath, "trace", "", "Trace file (required)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the full result as JSON instead of CSV")
	cmd.Flags().BoolVar(&save, "save", false, "Store the run in the database")
	_ = cmd.MarkFlagRequired("dbc")
	_ = cmd.MarkFlagRequired("trace")

	return cmd
}
