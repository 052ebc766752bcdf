package trace

import (
	"regexp"
	"strings"
)

// Format identifies one of the supported trace line grammars
type Format int

const (
	// FormatV11 is the PCAN-View 1.1 layout: "N)  time  Rx  ID  DLC  bytes"
	FormatV11 Format = iota
	// FormatV20 is the 2.0 layout with a DT type column, bus number and Rx direction
	FormatV20
	// FormatV21 is the 2.1 layout, like 2.0 plus a "-" reserved column before the DLC
	FormatV21
)

// DefaultFormat is used when the header carries no version or an unknown one
const DefaultFormat = FormatV21

// versionMarker prefixes the file version line in the trace header
const versionMarker = ";$FILEVERSION="

// headerWindow is the number of leading lines searched for the version marker
const headerWindow = 10

// grammar carries the line pattern for a format. Submatches are always
// timestamp, frame id, declared length, payload.
type grammar struct {
	version string
	pattern *regexp.Regexp
}

var grammars = map[Format]grammar{
	FormatV11: {
		version: "1.1",
		pattern: regexp.MustCompile(`^\s*\d+\)\s+(\d+\.\d+)\s+\w+\s+([0-9A-Fa-f]+)\s+(\d+)\s+([0-9A-Fa-f\s]+)`),
	},
	FormatV20: {
		version: "2.0",
		pattern: regexp.MustCompile(`^\s*\d+\s+(\d+\.\d+)\s+DT\s+\d+\s+([0-9A-Fa-f]+)\s+Rx\s+(\d+)\s+([0-9A-Fa-f\s]+)`),
	},
	FormatV21: {
		version: "2.1",
		pattern: regexp.MustCompile(`^\s*\d+\s+(\d+\.\d+)\s+DT\s+\d+\s+([0-9A-Fa-f]+)\s+Rx\s+-\s+(\d+)\s+([0-9A-Fa-f\s]+)`),
	},
}

// String returns the file version the format corresponds to
func (f Format) String() string {
	if g, ok := grammars[f]; ok {
		return g.version
	}
	return "unknown"
}

// MarshalText encodes the format as its version string
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes a version string, defaulting like FormatForVersion
func (f *Format) UnmarshalText(text []byte) error {
	*f = FormatForVersion(string(text))
	return nil
}

// FormatForVersion maps a header version token to its grammar.
// Unknown or empty versions fall back to DefaultFormat.
func FormatForVersion(version string) Format {
	version = strings.TrimSpace(version)
	for f, g := range grammars {
		if g.version == version {
			return f
		}
	}
	return DefaultFormat
}

// DetectVersion returns the version token from the first header lines,
// or "" when no marker is present.
func DetectVersion(lines []string) string {
	n := len(lines)
	if n > headerWindow {
		n = headerWindow
	}
	for _, line := range lines[:n] {
		if !strings.Contains(line, versionMarker) {
			continue
		}
		line = strings.TrimSpace(line)
		return line[strings.LastIndex(line, "=")+1:]
	}
	return ""
}
