// Package chart renders decoded signal columns as time-series line charts.
package chart

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/image/colornames"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/mscrnt/candecode/pkg/decode"
)

// XLabel is the horizontal axis label of every chart
const XLabel = "Time (ms)"

// Supported output formats
const (
	FormatSVG = "svg"
	FormatPNG = "png"
)

// Options controls chart size and encoding
type Options struct {
	Width  int               // points
	Height int               // points
	Format string            // svg or png
	Units  map[string]string // signal name to unit, shown on the y axis
}

// DefaultOptions returns a wide, short SVG layout
func DefaultOptions() Options {
	return Options{Width: 720, Height: 260, Format: FormatSVG}
}

// Validate checks size and format
func (o Options) Validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("chart size must be positive, got %dx%d", o.Width, o.Height)
	}
	switch o.Format {
	case FormatSVG, FormatPNG:
		return nil
	default:
		return fmt.Errorf("unsupported chart format %q", o.Format)
	}
}

// Chart is one rendered signal
type Chart struct {
	Signal string
	Format string
	Data   []byte
}

// MIMEType returns the content type of the encoded chart
func (c Chart) MIMEType() string {
	if c.Format == FormatPNG {
		return "image/png"
	}
	return "image/svg+xml"
}

// DataURI embeds the chart for an <img> tag
func (c Chart) DataURI() template.URL {
	// #nosec G203 -- payload is base64 produced here, not user input
	return template.URL("data:" + c.MIMEType() + ";base64," + base64.StdEncoding.EncodeToString(c.Data))
}

// Render draws one signal column against the table timestamps.
// Only present cells are plotted; gaps are bridged by the line.
func Render(table *decode.Table, column string, opts Options) (Chart, error) {
	if err := opts.Validate(); err != nil {
		return Chart{}, err
	}

	col, ok := table.Column(column)
	if !ok {
		return Chart{}, fmt.Errorf("unknown signal column %q", column)
	}

	xs, ys := col.Points(table.Timestamps)
	if len(xs) == 0 {
		return Chart{}, fmt.Errorf("signal %s has no values", column)
	}

	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}

	p := plot.New()
	p.Title.Text = column
	p.X.Label.Text = XLabel
	p.Y.Label.Text = column
	if unit := opts.Units[column]; unit != "" {
		p.Y.Label.Text = fmt.Sprintf("%s (%s)", column, unit)
	}
	p.BackgroundColor = colornames.White
	p.Add(plotter.NewGrid())

	p.Legend.Top = true
	p.Legend.Padding = vg.Points(5)

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return Chart{}, fmt.Errorf("failed to build %s series: %w", column, err)
	}
	line.Color = colornames.Steelblue
	points.Shape = draw.CircleGlyph{}
	points.Color = colornames.Steelblue
	points.Radius = vg.Points(1.5)
	p.Add(line, points)
	p.Legend.Add(column, line, points)

	w, err := p.WriterTo(vg.Points(float64(opts.Width)), vg.Points(float64(opts.Height)), opts.Format)
	if err != nil {
		return Chart{}, fmt.Errorf("failed to render %s chart: %w", column, err)
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return Chart{}, fmt.Errorf("failed to encode %s chart: %w", column, err)
	}

	return Chart{Signal: column, Format: opts.Format, Data: buf.Bytes()}, nil
}

// RenderAll draws one chart per signal column in table order
func RenderAll(table *decode.Table, opts Options) ([]Chart, error) {
	charts := make([]Chart, 0, len(table.Columns))
	for _, col := range table.Columns {
		c, err := Render(table, col.Name, opts)
		if err != nil {
			return nil, err
		}
		charts = append(charts, c)
	}
	return charts, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns a filesystem-safe name for a chart
func (c Chart) FileName() string {
	return unsafeFileChars.ReplaceAllString(c.Signal, "_") + "." + c.Format
}

// SaveAll renders every signal column into dir and returns the written paths
func SaveAll(dir string, table *decode.Table, opts Options) ([]string, error) {
	charts, err := RenderAll(table, opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(charts))
	for _, c := range charts {
		path := filepath.Join(dir, c.FileName())
		if err := os.WriteFile(path, c.Data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write chart: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
