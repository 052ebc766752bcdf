package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mscrnt/candecode/pkg/chart"
)

func plotCmd() *cobra.Command {
	var (
		dbcPath   string
		tracePath string
		dir       string
		format    string
		width     int
		height    int
		signals   []string
	)

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Plot decoded signals to image files",
		Long: `Decode a trace and write one line chart per signal.

Chart size and format default to the [charts] section of the config file.

Examples:
  # One SVG per signal in ./charts
  candecode plot --dbc vehicle.dbc --trace drive.trc

  # PNG charts of two signals
  candecode plot --dbc vehicle.dbc --trace drive.trc --format png --signal Speed --signal Rpm`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts := cfg.Charts.Options()
			if cmd.Flags().Changed("format") {
				opts.Format = format
			}
			if cmd.Flags().Changed("width") {
				opts.Width = width
			}
			if cmd.Flags().Changed("height") {
				opts.Height = height
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			result, err := processFiles(dbcPath, tracePath)
			if err != nil {
				return err
			}
			if !result.Plottable() {
				fmt.Fprintln(cmd.OutOrStdout(), "No data to plot.")
				return nil
			}
			opts.Units = result.Units

			var paths []string
			if len(signals) == 0 {
				paths, err = chart.SaveAll(dir, result.Table, opts)
				if err != nil {
					return err
				}
			} else {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
				for _, name := range signals {
					c, err := chart.Render(result.Table, name, opts)
					if err != nil {
						return err
					}
					path := filepath.Join(dir, c.FileName())
					if err := os.WriteFile(path, c.Data, 0o600); err != nil {
						return fmt.Errorf("failed to write chart: %w", err)
					}
					paths = append(paths, path)
				}
			}

			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbcPath, "dbc", "", "DBC signal database (required)")
	cmd.Flags().StringVar(&tracePath, "trace", "", "Trace file (required)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "charts", "Output directory")
	cmd.Flags().StringVarP(&format, "format", "f", chart.FormatSVG, "Image format (svg or png)")
	cmd.Flags().IntVar(&width, "width", 0, "Chart width in points")
	cmd.Flags().IntVar(&height, "height", 0, "Chart height in points")
	cmd.Flags().StringArrayVarP(&signals, "signal", "s", nil, "Plot only this signal (repeatable)")
	_ = cmd.MarkFlagRequired("dbc")
	_ = cmd.MarkFlagRequired("trace")

	return cmd
}
