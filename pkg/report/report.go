// Package report renders stored decode runs as HTML and PDF documents.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mscrnt/candecode/pkg/chart"
	"github.com/mscrnt/candecode/pkg/db"
	"github.com/mscrnt/candecode/pkg/decode"
)

// RunSource loads stored runs and their tables
type RunSource interface {
	GetRun(id int64) (*db.Run, error)
	RunTable(id int64) (*decode.Table, error)
}

// ReportData contains all data needed for report generation
type ReportData struct {
	Run         *db.Run
	GeneratedAt time.Time
	Quality     []StatDisplay
	Signals     []SignalDisplay
	Charts      []chart.Chart
	Message     string
}

// StatDisplay is one data-quality counter
type StatDisplay struct {
	Name  string
	Value string
	Warn  bool
}

// SignalDisplay summarizes one decoded column
type SignalDisplay struct {
	Name    string
	Unit    string
	Samples int
	Min     string
	Max     string
	Mean    string
}

// Generator creates reports from stored runs
type Generator struct {
	source RunSource
	charts chart.Options
}

// NewGenerator creates a new report generator
func NewGenerator(source RunSource, charts chart.Options) *Generator {
	return &Generator{
		source: source,
		charts: charts,
	}
}

// GenerateHTML generates an HTML report for a run
func (g *Generator) GenerateHTML(runID int64) (string, error) {
	data, err := g.loadReportData(runID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := Render(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render executes the report template
func Render(w io.Writer, data *ReportData) error {
	tmpl, err := loadHTMLTemplate()
	if err != nil {
		return err
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// loadReportData loads all data needed for a report
func (g *Generator) loadReportData(runID int64) (*ReportData, error) {
	run, err := g.source.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	table, err := g.source.RunTable(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run table: %w", err)
	}

	data := &ReportData{
		Run:         run,
		GeneratedAt: time.Now(),
		Quality:     QualityStats(run),
		Signals:     signalSummaries(table, run.Units()),
	}

	if table.Rows() == 0 || len(table.Columns) == 0 {
		data.Message = "No data to plot."
		return data, nil
	}

	// Reports always embed SVG charts
	opts := g.charts
	opts.Format = chart.FormatSVG
	opts.Units = run.Units()
	data.Charts, err = chart.RenderAll(table, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to render charts: %w", err)
	}

	return data, nil
}

// QualityStats lists the data-quality counters of a run for display
func QualityStats(run *db.Run) []StatDisplay {
	stats := []StatDisplay{
		{Name: "Trace version", Value: versionText(run)},
		{Name: "Lines read", Value: strconv.Itoa(run.Lines)},
		{Name: "Frames parsed", Value: strconv.Itoa(run.Records)},
		{Name: "Lines skipped", Value: strconv.Itoa(run.Skipped)},
		{Name: "Malformed lines", Value: strconv.Itoa(run.Malformed), Warn: run.Malformed > 0},
		{Name: "Length mismatches", Value: strconv.Itoa(run.LengthMismatches), Warn: run.LengthMismatches > 0},
		{Name: "Frames decoded", Value: strconv.Itoa(run.Decoded)},
		{Name: "Unknown frame ids", Value: strconv.Itoa(run.Unresolved), Warn: run.Unresolved > 0},
	}
	var names []string
	switch ids := run.Meta["unresolved_ids"].(type) {
	case []string:
		names = ids
	case []interface{}:
		for _, id := range ids {
			names = append(names, fmt.Sprint(id))
		}
	}
	if len(names) > 0 {
		stats = append(stats, StatDisplay{Name: "Unknown ids", Value: strings.Join(names, ", "), Warn: true})
	}
	return stats
}

func versionText(run *db.Run) string {
	if run.TraceVersion == "" {
		return fmt.Sprintf("none (parsed as %s)", run.Format)
	}
	if run.TraceVersion != run.Format {
		return fmt.Sprintf("%s (parsed as %s)", run.TraceVersion, run.Format)
	}
	return run.TraceVersion
}

func signalSummaries(table *decode.Table, units map[string]string) []SignalDisplay {
	out := make([]SignalDisplay, 0, len(table.Columns))
	for i := range table.Columns {
		s := table.Columns[i].Summary()
		out = append(out, SignalDisplay{
			Name:    table.Columns[i].Name,
			Unit:    units[table.Columns[i].Name],
			Samples: s.Count,
			Min:     formatValue(s.Min),
			Max:     formatValue(s.Max),
			Mean:    formatValue(s.Mean),
		})
	}
	return out
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// loadHTMLTemplate loads the HTML report template
func loadHTMLTemplate() (*template.Template, error) {
	funcMap := template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"join": func(items []string) string {
			return strings.Join(items, ", ")
		},
	}

	tmpl, err := template.New("report").Funcs(funcMap).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

// htmlTemplate is the default HTML report template
const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>CAN Decode Report - Run #{{.Run.ID}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1100px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container {
            background-color: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            padding: 30px;
        }
        h1, h2 {
            color: #2c3e50;
        }
        .header {
            border-bottom: 3px solid #2563EB;
            padding-bottom: 20px;
            margin-bottom: 30px;
        }
        .info-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin: 20px 0;
        }
        .info-card {
            background-color: #f8f9fa;
            padding: 15px;
            border-radius: 4px;
            border-left: 4px solid #2563EB;
        }
        .info-card h3 {
            margin: 0 0 10px 0;
            color: #666;
            font-size: 0.9em;
            text-transform: uppercase;
        }
        .info-card p {
            margin: 0;
            font-size: 1.1em;
            font-weight: 500;
            word-break: break-all;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            margin-bottom: 30px;
        }
        th, td {
            padding: 8px 10px;
            text-align: left;
            border-bottom: 1px solid #e0e0e0;
        }
        th {
            background-color: #f8f9fa;
            font-weight: 600;
            color: #666;
        }
        td.warn {
            color: #B45309;
            font-weight: 600;
        }
        .chart {
            page-break-inside: avoid;
            margin-bottom: 20px;
        }
        .chart img {
            width: 100%;
        }
        .message {
            padding: 15px;
            background-color: #FEF3C7;
            border-radius: 4px;
        }
        .footer {
            margin-top: 40px;
            padding-top: 20px;
            border-top: 1px solid #e0e0e0;
            text-align: center;
            color: #666;
            font-size: 0.9em;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>CAN Decode Report</h1>
            <p>Run ID: #{{.Run.ID}} | Source: {{.Run.Source}} | Created: {{formatTime .Run.CreatedAt}}</p>
        </div>

        <div class="info-grid">
            <div class="info-card">
                <h3>Signal Database</h3>
                <p>{{.Run.DBCName}}</p>
            </div>
            <div class="info-card">
                <h3>Trace</h3>
                <p>{{.Run.TraceName}}</p>
            </div>
            <div class="info-card">
                <h3>Rows</h3>
                <p>{{.Run.Rows}}</p>
            </div>
            <div class="info-card">
                <h3>Columns</h3>
                <p>{{join .Run.Columns}}</p>
            </div>
        </div>

        <h2>Data Quality</h2>
        <table>
            <tbody>
                {{range .Quality}}
                <tr>
                    <td>{{.Name}}</td>
                    <td{{if .Warn}} class="warn"{{end}}>{{.Value}}</td>
                </tr>
                {{end}}
            </tbody>
        </table>

        {{if .Signals}}
        <h2>Signals</h2>
        <table>
            <thead>
                <tr>
                    <th>Signal</th>
                    <th>Unit</th>
                    <th>Samples</th>
                    <th>Min</th>
                    <th>Max</th>
                    <th>Mean</th>
                </tr>
            </thead>
            <tbody>
                {{range .Signals}}
                <tr>
                    <td>{{.Name}}</td>
                    <td>{{.Unit}}</td>
                    <td>{{.Samples}}</td>
                    <td>{{.Min}}</td>
                    <td>{{.Max}}</td>
                    <td>{{.Mean}}</td>
                </tr>
                {{end}}
            </tbody>
        </table>
        {{end}}

        {{if .Message}}
        <p class="message">{{.Message}}</p>
        {{end}}

        {{range .Charts}}
        <div class="chart">
            <img src="{{.DataURI}}" alt="{{.Signal}}">
        </div>
        {{end}}

        <div class="footer">
            <p>Generated by candecode on {{formatTime .GeneratedAt}}</p>
        </div>
    </div>
</body>
</html>
`
