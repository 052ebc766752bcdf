package db

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/candecode/pkg/decode"
	"github.com/mscrnt/candecode/pkg/trace"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "candecode.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testResult() *decode.Result {
	speed := 10.0
	return &decode.Result{
		DBCName:   "vehicle.dbc",
		TraceName: "run.trc",
		Table: &decode.Table{
			Timestamps: []float64{1841.3, 1842.0},
			Columns:    []decode.Column{{Name: "Speed", Values: []*float64{&speed, nil}}},
		},
		Trace:  trace.Stats{Version: "1.1", Format: trace.FormatV11, Lines: 5, Records: 2, Skipped: 3},
		Decode: decode.Stats{Records: 2, Decoded: 1, Unresolved: 1, UnresolvedIDs: []uint32{0x7FF}},
		Units:  map[string]string{"Speed": "km/h"},
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	db := openTestDB(t)
	assert.FileExists(t, db.Path())
}

func TestCompressRoundTrip(t *testing.T) {
	db := openTestDB(t)

	data := []byte(strings.Repeat("Timestamp,Speed\n1.5,10\n", 100))
	packed := db.compress(data)
	assert.Less(t, len(packed), len(data))

	back, err := db.decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, data, back)

	assert.Nil(t, db.compress(nil))
	back, err = db.decompress(nil)
	require.NoError(t, err)
	assert.Nil(t, back)

	_, err = db.decompress([]byte("not zstd"))
	assert.Error(t, err)
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	result := testResult()
	csvData, err := result.Table.CSV()
	require.NoError(t, err)

	run := NewRun(SourceCLI, result)
	require.NoError(t, db.CreateRun(run, csvData))
	require.NotZero(t, run.ID)

	got, err := db.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceCLI, got.Source)
	assert.Equal(t, "vehicle.dbc", got.DBCName)
	assert.Equal(t, "1.1", got.Format)
	assert.Equal(t, 3, got.Skipped)
	assert.Equal(t, 1, got.Unresolved)
	assert.Equal(t, 2, got.Rows)
	assert.Equal(t, StringList{"Timestamp", "Speed"}, got.Columns)
	assert.Equal(t, []interface{}{"0x7FF"}, got.Meta["unresolved_ids"])
	assert.Equal(t, result.Units, got.Units())
	assert.True(t, got.Plottable())

	stored, err := db.GetRunCSV(run.ID)
	require.NoError(t, err)
	assert.Equal(t, csvData, stored)

	table, err := db.RunTable(run.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Table, table)

	require.NoError(t, db.DeleteRun(run.ID))
	_, err = db.GetRun(run.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteRun(run.ID), ErrNotFound)
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetRun(42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetRunCSV(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, source := range []string{SourceWeb, SourceCLI, SourceWeb} {
		run := NewRun(source, testResult())
		run.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, db.CreateRun(run, nil))
	}

	tests := []struct {
		name   string
		filter RunFilter
		want   int
	}{
		{"all", RunFilter{}, 3},
		{"by source", RunFilter{Source: SourceWeb}, 2},
		{"by dbc", RunFilter{DBCName: "other.dbc"}, 0},
		{"limit", RunFilter{Limit: 1}, 1},
		{"since", RunFilter{StartTime: ptrTime(base.Add(90 * time.Minute))}, 1},
		{"until", RunFilter{EndTime: ptrTime(base.Add(30 * time.Minute))}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := db.ListRuns(tt.filter)
			require.NoError(t, err)
			assert.Len(t, runs, tt.want)
		})
	}

	runs, err := db.ListRuns(RunFilter{})
	require.NoError(t, err)
	assert.True(t, runs[0].CreatedAt.After(runs[1].CreatedAt), "newest first")
}

func TestSessionUploadsAndResult(t *testing.T) {
	db := openTestDB(t)
	id := "5a4c0a0e-1111-4b7e-9d55-000000000001"

	_, err := db.GetSession(id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.SaveUpload(id, UploadDBC, "vehicle.dbc", []byte("VERSION \"\"")))
	s, err := db.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, "vehicle.dbc", s.DBCName)
	assert.False(t, s.Input().Ready())

	require.NoError(t, db.SaveUpload(id, UploadTrace, "run.trc", []byte(";$FILEVERSION=2.1\n")))
	s, err = db.GetSession(id)
	require.NoError(t, err)
	assert.True(t, s.Input().Ready())
	assert.Equal(t, []byte(";$FILEVERSION=2.1\n"), s.Trace)
	assert.False(t, s.HasCSV())

	run := NewRun(SourceWeb, testResult())
	require.NoError(t, db.CreateRun(run, []byte("Timestamp,Speed\n")))
	require.NoError(t, db.SaveResult(id, []byte("Timestamp,Speed\n1,2\n"), &run.ID))

	s, err = db.GetSession(id)
	require.NoError(t, err)
	assert.True(t, s.HasCSV())
	require.NotNil(t, s.RunID)
	assert.Equal(t, run.ID, *s.RunID)

	// A new upload invalidates the previous decode
	require.NoError(t, db.SaveUpload(id, UploadTrace, "second.trc", []byte("x")))
	s, err = db.GetSession(id)
	require.NoError(t, err)
	assert.False(t, s.HasCSV())
	assert.Nil(t, s.RunID)
	assert.Equal(t, "second.trc", s.TraceName)

	assert.Error(t, db.SaveUpload(id, UploadKind("pdf"), "x.pdf", []byte("x")))
	assert.ErrorIs(t, db.SaveResult("missing", nil, nil), ErrNotFound)
}

func TestPruneSessions(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.EnsureSession("a"))
	require.NoError(t, db.EnsureSession("b"))
	require.NoError(t, db.EnsureSession("a"))

	n, err := db.CountSessions()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pruned, err := db.PruneSessions(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pruned)

	pruned, err = db.PruneSessions(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)
}

func TestPruneRuns(t *testing.T) {
	db := openTestDB(t)
	old := NewRun(SourceWeb, testResult())
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.CreateRun(old, nil))
	fresh := NewRun(SourceWeb, testResult())
	require.NoError(t, db.CreateRun(fresh, nil))

	n, err := db.PruneRuns(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetRun(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetRun(fresh.ID)
	assert.NoError(t, err)
}

func TestExport(t *testing.T) {
	db := openTestDB(t)
	result := testResult()
	csvData, err := result.Table.CSV()
	require.NoError(t, err)

	run := NewRun(SourceAPI, result)
	require.NoError(t, db.CreateRun(run, csvData))

	var buf bytes.Buffer
	require.NoError(t, db.ExportCSV(&buf, run.ID))
	assert.Equal(t, string(csvData), buf.String())

	buf.Reset()
	require.NoError(t, db.ExportJSON(&buf, run.ID))
	var export struct {
		Run   Run          `json:"run"`
		Table decode.Table `json:"table"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, run.ID, export.Run.ID)
	assert.Equal(t, []float64{1841.3, 1842.0}, export.Table.Timestamps)

	buf.Reset()
	require.NoError(t, db.ExportRunsCSV(&buf, RunFilter{}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Run ID,Source"))
	assert.Contains(t, lines[1], "Timestamp;Speed")

	assert.ErrorIs(t, db.ExportCSV(&buf, 999), ErrNotFound)
}

func ptrTime(t time.Time) *time.Time { return &t }
