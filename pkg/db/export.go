package db

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mscrnt/candecode/pkg/decode"
)

// ExportCSV writes the stored decoded table of a run byte-for-byte
func (db *DB) ExportCSV(w io.Writer, runID int64) error {
	data, err := db.GetRunCSV(runID)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// ExportJSON writes a run and its decoded table as JSON
func (db *DB) ExportJSON(w io.Writer, runID int64) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return err
	}

	table, err := db.RunTable(runID)
	if err != nil {
		return err
	}

	export := struct {
		Run   *Run          `json:"run"`
		Table *decode.Table `json:"table"`
	}{
		Run:   run,
		Table: table,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// RunTable parses the stored CSV artifact of a run back into a table
func (db *DB) RunTable(runID int64) (*decode.Table, error) {
	data, err := db.GetRunCSV(runID)
	if err != nil {
		return nil, err
	}
	table, err := decode.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse run %d CSV: %w", runID, err)
	}
	return table, nil
}

// ExportRunsCSV writes one summary row per run matching filter
func (db *DB) ExportRunsCSV(w io.Writer, filter RunFilter) error {
	runs, err := db.ListRuns(filter)
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(w)

	headers := []string{
		"Run ID", "Source", "Created", "DBC", "Trace", "Version", "Format",
		"Lines", "Records", "Skipped", "Malformed", "Length Mismatches",
		"Decoded", "Unresolved", "Rows", "Columns",
	}
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for _, run := range runs {
		row := []string{
			strconv.FormatInt(run.ID, 10),
			run.Source,
			run.CreatedAt.Format("2006-01-02 15:04:05"),
			run.DBCName,
			run.TraceName,
			run.TraceVersion,
			run.Format,
			strconv.Itoa(run.Lines),
			strconv.Itoa(run.Records),
			strconv.Itoa(run.Skipped),
			strconv.Itoa(run.Malformed),
			strconv.Itoa(run.LengthMismatches),
			strconv.Itoa(run.Decoded),
			strconv.Itoa(run.Unresolved),
			strconv.Itoa(run.Rows),
			strings.Join(run.Columns, ";"),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
