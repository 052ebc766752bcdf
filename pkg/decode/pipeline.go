package decode

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mscrnt/candecode/pkg/signaldb"
	"github.com/mscrnt/candecode/pkg/trace"
)

// ErrMissingInput is returned when either upload is absent
var ErrMissingInput = errors.New("both a DBC and a trace file are required")

// Input carries the two uploads of one decode request
type Input struct {
	DBCName   string
	DBC       []byte
	TraceName string
	Trace     []byte
}

// Ready reports whether both files are present
func (in Input) Ready() bool {
	return len(in.DBC) > 0 && len(in.Trace) > 0
}

// Result is a completed decode
type Result struct {
	DBCName   string            `json:"dbc_name"`
	TraceName string            `json:"trace_name"`
	Table     *Table            `json:"table"`
	Trace     trace.Stats       `json:"trace"`
	Decode    Stats             `json:"decode"`
	Units     map[string]string `json:"units,omitempty"`
	Elapsed   time.Duration     `json:"elapsed"`
}

// Plottable reports whether the table has at least one row and one signal column
func (r *Result) Plottable() bool {
	return r != nil && r.Table != nil && r.Table.Rows() > 0 && len(r.Table.ColumnNames()) >= 2
}

// Process loads the database, reads the trace and decodes it
func Process(in Input) (*Result, error) {
	if !in.Ready() {
		return nil, ErrMissingInput
	}
	start := time.Now()

	db, err := signaldb.Load(in.DBCName, in.DBC)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal database: %w", err)
	}

	records, traceStats, err := trace.Read(bytes.NewReader(in.Trace))
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	table, stats := Decode(db, records)

	return &Result{
		DBCName:   in.DBCName,
		TraceName: in.TraceName,
		Table:     table,
		Trace:     traceStats,
		Decode:    stats,
		Units:     db.Units(),
		Elapsed:   time.Since(start),
	}, nil
}

// ProcessFiles reads both inputs from disk and decodes them
func ProcessFiles(dbcPath, tracePath string) (*Result, error) {
	in, err := ReadInput(dbcPath, tracePath)
	if err != nil {
		return nil, err
	}
	return Process(in)
}

// ReadInput loads both files into an Input
func ReadInput(dbcPath, tracePath string) (Input, error) {
	dbcData, err := os.ReadFile(dbcPath) // #nosec G304 -- path is a user-specified DBC file
	if err != nil {
		return Input{}, fmt.Errorf("failed to read DBC: %w", err)
	}
	traceData, err := os.ReadFile(tracePath) // #nosec G304 -- path is a user-specified trace file
	if err != nil {
		return Input{}, fmt.Errorf("failed to read trace: %w", err)
	}
	return Input{
		DBCName:   filepath.Base(dbcPath),
		DBC:       dbcData,
		TraceName: filepath.Base(tracePath),
		Trace:     traceData,
	}, nil
}
