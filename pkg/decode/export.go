package decode

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes the table with a Timestamp,<signal>... header.
// Absent cells are written as empty fields.
func (t *Table) WriteCSV(w io.Writer) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(t.ColumnNames()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	row := make([]string, len(t.Columns)+1)
	for i, ts := range t.Timestamps {
		row[0] = formatFloat(ts)
		for j, c := range t.Columns {
			row[j+1] = ""
			if i < len(c.Values) && c.Values[i] != nil {
				row[j+1] = formatFloat(*c.Values[i])
			}
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// CSV returns the table as CSV bytes
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV parses a table written by WriteCSV
func ReadCSV(r io.Reader) (*Table, error) {
	csvReader := csv.NewReader(r)

	header, err := csvReader.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}
	if header[0] != TimestampColumn {
		return nil, fmt.Errorf("first column is %q, expected %q", header[0], TimestampColumn)
	}

	table := &Table{Columns: make([]Column, len(header)-1)}
	for i, name := range header[1:] {
		table.Columns[i].Name = name
	}

	for line := 2; ; line++ {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}

		ts, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp on row %d: %w", line, err)
		}
		table.Timestamps = append(table.Timestamps, ts)

		for j, field := range record[1:] {
			var cell *float64
			if field != "" {
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid %s value on row %d: %w", header[j+1], line, err)
				}
				cell = &v
			}
			table.Columns[j].Values = append(table.Columns[j].Values, cell)
		}
	}

	return table, nil
}

// WriteJSON writes the result as indented JSON
func (r *Result) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
