package decode

import (
	"math"
)

// TimestampColumn is the name of the leading column of every table
const TimestampColumn = "Timestamp"

// Column holds one signal across all rows. A nil cell means the owning
// message was not observed on that row.
type Column struct {
	Name   string     `json:"name"`
	Values []*float64 `json:"values"`
}

// Table is the wide decode result: one row per trace record, one column per signal
type Table struct {
	Timestamps []float64 `json:"timestamps"`
	Columns    []Column  `json:"columns"`
}

// Summary describes the present cells of a column
type Summary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Rows returns the number of rows
func (t *Table) Rows() int {
	return len(t.Timestamps)
}

// ColumnNames returns the header, Timestamp first
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns)+1)
	names = append(names, TimestampColumn)
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// Column returns a signal column by name
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Prune drops every signal column with no present cell
func (t *Table) Prune() {
	kept := t.Columns[:0]
	for _, c := range t.Columns {
		if c.Present() > 0 {
			kept = append(kept, c)
		}
	}
	t.Columns = kept
}

// Present counts the non-absent cells
func (c *Column) Present() int {
	n := 0
	for _, v := range c.Values {
		if v != nil {
			n++
		}
	}
	return n
}

// Points returns the present cells paired with their timestamps
func (c *Column) Points(timestamps []float64) (xs, ys []float64) {
	for i, v := range c.Values {
		if v == nil || i >= len(timestamps) {
			continue
		}
		xs = append(xs, timestamps[i])
		ys = append(ys, *v)
	}
	return xs, ys
}

// Summary computes count, min, max and mean over present cells
func (c *Column) Summary() Summary {
	s := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range c.Values {
		if v == nil {
			continue
		}
		s.Count++
		sum += *v
		s.Min = math.Min(s.Min, *v)
		s.Max = math.Max(s.Max, *v)
	}
	if s.Count == 0 {
		return Summary{}
	}
	s.Mean = sum / float64(s.Count)
	return s
}
