package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/mscrnt/candecode/pkg/chart"
	"github.com/mscrnt/candecode/pkg/db"
	"github.com/mscrnt/candecode/pkg/report"
)

// pageData feeds the index template
type pageData struct {
	Status      string
	Message     string
	Error       bool
	CanDownload bool
	RunID       int64
	Quality     []report.StatDisplay
	Charts      []chart.Chart
}

func newPageData(sess *db.Session) *pageData {
	page := &pageData{
		Status:      uploadStatus(sess),
		CanDownload: sess.HasCSV(),
	}
	if sess.RunID != nil {
		page.RunID = *sess.RunID
	}
	return page
}

var pageTemplate = template.Must(template.New("index").Parse(indexTemplate))

func (s *Server) renderPage(w http.ResponseWriter, status int, page *pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		s.serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>CAN Decoder</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 960px;
            margin: 0 auto;
            padding: 20px;
            color: #333;
        }
        h1 { color: #2c3e50; }
        form { margin: 12px 0; }
        .status { padding: 8px 12px; background: #ecf0f1; border-radius: 4px; }
        .message { padding: 8px 12px; margin: 12px 0; border-left: 4px solid #3498db; background: #f4f9fd; }
        .message.error { border-color: #e74c3c; background: #fdf3f2; }
        .actions a, .actions button { margin-right: 8px; }
        .warn { color: #c0392b; font-weight: bold; }
        table { border-collapse: collapse; margin: 12px 0; }
        td { padding: 4px 12px; border-bottom: 1px solid #eee; }
        figure { margin: 16px 0; }
        figure img { max-width: 100%; }
    </style>
</head>
<body>
    <h1>CAN Decoder</h1>

    <form action="/upload" method="post" enctype="multipart/form-data">
        <label>DBC file <input type="file" name="dbc" accept=".dbc"></label>
        <label>Trace file <input type="file" name="trace" accept=".trc"></label>
        <button type="submit">Upload</button>
    </form>
    <p class="status">{{.Status}}</p>

    <div class="actions">
        <form action="/decode" method="post" style="display:inline">
            <button type="submit">Decode and plot</button>
        </form>
        {{if .CanDownload}}<a href="/download"><button type="button">Download CSV</button></a>{{else}}<button type="button" disabled>Download CSV</button>{{end}}
        {{if .RunID}}<a href="/runs/{{.RunID}}/report">Report</a>{{end}}
    </div>

    {{if .Message}}<p class="message{{if .Error}} error{{end}}">{{.Message}}</p>{{end}}

    {{if .Quality}}
    <table>
        {{range .Quality}}
        <tr><td>{{.Name}}</td><td{{if .Warn}} class="warn"{{end}}>{{.Value}}</td></tr>
        {{end}}
    </table>
    {{end}}

    {{range .Charts}}
    <figure>
        <img src="{{.DataURI}}" alt="{{.Signal}}">
    </figure>
    {{end}}
</body>
</html>
`
