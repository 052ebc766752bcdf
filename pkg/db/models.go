package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mscrnt/candecode/pkg/decode"
)

// Run represents a stored decode
type Run struct {
	ID               int64      `json:"id"`
	Source           string     `json:"source"`
	DBCName          string     `json:"dbc_name"`
	TraceName        string     `json:"trace_name"`
	TraceVersion     string     `json:"trace_version"`
	Format           string     `json:"format"`
	Lines            int        `json:"lines"`
	Records          int        `json:"records"`
	Skipped          int        `json:"skipped"`
	Malformed        int        `json:"malformed"`
	LengthMismatches int        `json:"length_mismatches"`
	Decoded          int        `json:"decoded"`
	Unresolved       int        `json:"unresolved"`
	Rows             int        `json:"rows"`
	Columns          StringList `json:"columns"`
	Meta             JSONData   `json:"meta,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Session holds the uploads and latest CSV of one browser session
type Session struct {
	ID        string    `json:"id"`
	DBCName   string    `json:"dbc_name"`
	DBC       []byte    `json:"-"`
	TraceName string    `json:"trace_name"`
	Trace     []byte    `json:"-"`
	CSV       []byte    `json:"-"`
	RunID     *int64    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input returns the session uploads as a decode input
func (s *Session) Input() decode.Input {
	return decode.Input{
		DBCName:   s.DBCName,
		DBC:       s.DBC,
		TraceName: s.TraceName,
		Trace:     s.Trace,
	}
}

// HasCSV reports whether a decoded CSV is ready for download
func (s *Session) HasCSV() bool {
	return len(s.CSV) > 0
}

// Run sources
const (
	SourceWeb = "web"
	SourceCLI = "cli"
	SourceAPI = "api"
)

// NewRun summarizes a decode result for storage
func NewRun(source string, result *decode.Result) *Run {
	run := &Run{
		Source:           source,
		DBCName:          result.DBCName,
		TraceName:        result.TraceName,
		TraceVersion:     result.Trace.Version,
		Format:           result.Trace.Format.String(),
		Lines:            result.Trace.Lines,
		Records:          result.Trace.Records,
		Skipped:          result.Trace.Skipped,
		Malformed:        result.Trace.Malformed,
		LengthMismatches: result.Trace.LengthMismatches,
		Decoded:          result.Decode.Decoded,
		Unresolved:       result.Decode.Unresolved,
		Meta: JSONData{
			"elapsed_ms": float64(result.Elapsed.Microseconds()) / 1000,
		},
	}
	if result.Table != nil {
		run.Rows = result.Table.Rows()
		run.Columns = result.Table.ColumnNames()
	}
	if len(result.Decode.UnresolvedIDs) > 0 {
		ids := make([]string, len(result.Decode.UnresolvedIDs))
		for i, id := range result.Decode.UnresolvedIDs {
			ids[i] = fmt.Sprintf("0x%X", id)
		}
		run.Meta["unresolved_ids"] = ids
	}
	if len(result.Units) > 0 {
		run.Meta["units"] = result.Units
	}
	return run
}

// Units returns the signal units recorded with the run
func (r *Run) Units() map[string]string {
	switch units := r.Meta["units"].(type) {
	case map[string]string:
		return units
	case map[string]interface{}:
		out := make(map[string]string, len(units))
		for name, unit := range units {
			if s, ok := unit.(string); ok {
				out[name] = s
			}
		}
		return out
	}
	return nil
}

// Plottable mirrors decode.Result.Plottable for a stored run
func (r *Run) Plottable() bool {
	return r.Rows > 0 && len(r.Columns) >= 2
}

// JSONData is a custom type for storing JSON in SQLite
type JSONData map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONData) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONData) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	data, err := scanBytes(value, "JSONData")
	if err != nil {
		return err
	}
	return json.Unmarshal(data, j)
}

// StringList stores an ordered list of names as a JSON array
type StringList []string

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	data, err := scanBytes(value, "StringList")
	if err != nil {
		return err
	}
	return json.Unmarshal(data, l)
}

func scanBytes(value interface{}, into string) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot scan type %T into %s", value, into)
	}
}

// RunFilter represents filters for querying runs
type RunFilter struct {
	Source    string
	DBCName   string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// ExportFormat represents the format for exporting data
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)
