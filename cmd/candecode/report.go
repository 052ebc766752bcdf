package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/candecode/pkg/db"
	"github.com/mscrnt/candecode/pkg/report"
)

func reportCmd() *cobra.Command {
	var (
		format   string
		output   string
		runID    int64
		latest   bool
		portrait bool
		pageSize string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a run report",
		Long: `Generate an HTML or PDF report with charts and data-quality counters for a
stored run. PDF output needs a Chrome or Chromium browser.

Examples:
  # HTML report for the latest run
  candecode report --latest

  # PDF report for a specific run
  candecode report --run 42 --format pdf --output report.pdf

  # A4 portrait PDF
  candecode report --run 42 --format pdf --page-size A4 --portrait`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !latest && runID == 0 {
				return fmt.Errorf("either --latest or --run must be specified")
			}
			if format != "html" && format != "pdf" {
				return fmt.Errorf("format must be either 'html' or 'pdf'")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := db.Open(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = database.Close() }()

			if latest {
				runs, err := database.ListRuns(db.RunFilter{Limit: 1})
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}
				if len(runs) == 0 {
					return fmt.Errorf("no runs found")
				}
				runID = runs[0].ID
			}

			run, err := database.GetRun(runID)
			if err != nil {
				return fmt.Errorf("run %d not found", runID)
			}

			generator := report.NewGenerator(database, cfg.Charts.Options())

			if output == "" {
				timestamp := time.Now().Format("20060102_150405")
				output = fmt.Sprintf("candecode_report_%d_%s.%s", runID, timestamp, format)
			}

			switch format {
			case "html":
				html, err := generator.GenerateHTML(runID)
				if err != nil {
					return fmt.Errorf("failed to generate HTML report: %w", err)
				}
				if err := os.WriteFile(output, []byte(html), 0o600); err != nil {
					return fmt.Errorf("failed to write HTML file: %w", err)
				}

			case "pdf":
				options := report.DefaultPDFOptions()
				options.Timeout = timeout
				if err := applyPageSize(&options, pageSize, !portrait); err != nil {
					return err
				}
				if err := generator.GeneratePDF(context.Background(), runID, output, &options); err != nil {
					return fmt.Errorf("failed to generate PDF report: %w", err)
				}
			}

			absPath, _ := filepath.Abs(output)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %s report for run #%d\n", strings.ToUpper(format), runID)
			fmt.Fprintf(out, "Trace: %s\n", run.TraceName)
			fmt.Fprintf(out, "Date: %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Output: %s\n", absPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "html", "Output format (html or pdf)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path")
	cmd.Flags().Int64Var(&runID, "run", 0, "Run ID to report on")
	cmd.Flags().BoolVar(&latest, "latest", false, "Use the latest run")
	cmd.Flags().BoolVar(&portrait, "portrait", false, "Generate PDF in portrait mode")
	cmd.Flags().StringVar(&pageSize, "page-size", "LETTER", "PDF page size (A3, A4, LETTER, LEGAL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "PDF rendering timeout")

	return cmd
}

// applyPageSize sets paper dimensions in inches, swapped for landscape
func applyPageSize(options *report.PDFOptions, pageSize string, landscape bool) error {
	var width, height float64
	switch strings.ToUpper(pageSize) {
	case "A4":
		width, height = 8.27, 11.69
	case "A3":
		width, height = 11.69, 16.54
	case "LETTER":
		width, height = 8.5, 11.0
	case "LEGAL":
		width, height = 8.5, 14.0
	default:
		return fmt.Errorf("unsupported page size: %s", pageSize)
	}
	if landscape {
		width, height = height, width
	}
	options.PaperWidth, options.PaperHeight = width, height
	options.Landscape = landscape
	return nil
}
