package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mscrnt/candecode/internal/config"
	"github.com/mscrnt/candecode/pkg/db"
	"github.com/mscrnt/candecode/pkg/decode"
	"github.com/mscrnt/candecode/pkg/report"
)

// loadConfig reads settings and applies the --db override
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	return cfg, nil
}

// openDB opens the run database named by the configuration
func openDB() (*db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// processFiles decodes a DBC/trace pair with a CLI-friendly missing input error
func processFiles(dbcPath, tracePath string) (*decode.Result, error) {
	result, err := decode.ProcessFiles(dbcPath, tracePath)
	if errors.Is(err, decode.ErrMissingInput) {
		return nil, fmt.Errorf("--dbc and --trace must both name non-empty files")
	}
	return result, err
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// createOutput opens path for writing; "" and "-" mean stdout
func createOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{stdout}, nil
	}
	out, err := os.Create(path) // #nosec G304 -- path is a user-specified output file from a command line flag
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return out, nil
}

// printQuality writes the data-quality counters of a run
func printQuality(w io.Writer, run *db.Run) {
	for _, stat := range report.QualityStats(run) {
		marker := ""
		if stat.Warn {
			marker = " !"
		}
		fmt.Fprintf(w, "  %-20s %s%s\n", stat.Name+":", stat.Value, marker)
	}
}
