// Package trace reads PEAK CAN trace (.trc) files into timestamped frames.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// maxLineSize bounds a single trace line
const maxLineSize = 1 << 20

// Record is one CAN frame read from a trace
type Record struct {
	Timestamp float64 `json:"timestamp"` // Relative time in milliseconds
	ID        uint32  `json:"id"`
	Length    int     `json:"length"` // Declared data length, not validated
	Data      []byte  `json:"data"`
}

// Stats describes how a trace was read
type Stats struct {
	Version          string `json:"version"` // Version token from the header, may be empty
	Format           Format `json:"format"`
	Lines            int    `json:"lines"`
	Records          int    `json:"records"`
	Skipped          int    `json:"skipped"`           // Lines not matching the grammar
	Malformed        int    `json:"malformed"`         // Matching lines with unparseable fields
	LengthMismatches int    `json:"length_mismatches"` // Records whose payload differs from the declared length
}

// ReadFile reads the trace at path
func ReadFile(path string) ([]Record, Stats, error) {
	f, err := os.Open(path) // #nosec G304 -- path is a user-specified trace file
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open trace: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Read(f)
}

// Read scans a trace, selecting the grammar from the header version marker.
// Lines the grammar does not match are skipped and counted, never rejected.
func Read(r io.Reader) ([]Record, Stats, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	// Buffer the header window so the version is known before parsing
	var header []string
	for len(header) < headerWindow && scanner.Scan() {
		header = append(header, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("failed to read trace header: %w", err)
	}

	stats := Stats{Version: DetectVersion(header)}
	stats.Format = FormatForVersion(stats.Version)
	p := newLineParser(stats.Format)

	var records []Record
	consume := func(line string) {
		stats.Lines++
		rec, ok, err := p.parse(line)
		switch {
		case err != nil:
			stats.Malformed++
		case !ok:
			stats.Skipped++
		default:
			if rec.Length != len(rec.Data) {
				stats.LengthMismatches++
			}
			records = append(records, rec)
		}
	}

	for _, line := range header {
		consume(line)
	}
	for scanner.Scan() {
		consume(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("failed to read trace: %w", err)
	}

	stats.Records = len(records)
	return records, stats, nil
}

// lineParser applies one grammar to trace lines
type lineParser struct {
	g grammar
}

func newLineParser(f Format) *lineParser {
	return &lineParser{g: grammars[f]}
}

// parse returns ok=false for lines outside the grammar and an error for
// lines that match but carry fields that cannot be converted.
func (p *lineParser) parse(line string) (Record, bool, error) {
	m := p.g.pattern.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false, nil
	}

	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Record{}, true, fmt.Errorf("invalid timestamp %q: %w", m[1], err)
	}

	id, err := ParseID(m[2])
	if err != nil {
		return Record{}, true, err
	}

	length, err := strconv.Atoi(m[3])
	if err != nil {
		return Record{}, true, fmt.Errorf("invalid length %q: %w", m[3], err)
	}

	data, err := ParsePayload(m[4])
	if err != nil {
		return Record{}, true, err
	}

	return Record{Timestamp: ts, ID: id, Length: length, Data: data}, true, nil
}

// ParseID parses a hexadecimal frame id, case-insensitively
func ParseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid frame id %q: %w", s, err)
	}
	return uint32(id), nil
}

// ParsePayload parses whitespace separated hex byte tokens in order
func ParsePayload(s string) ([]byte, error) {
	tokens := strings.Fields(s)
	data := make([]byte, 0, len(tokens))
	for _, tok := range tokens {
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid payload byte %q: %w", tok, err)
		}
		data = append(data, byte(b))
	}
	return data, nil
}
