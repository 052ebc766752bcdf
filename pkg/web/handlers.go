package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mscrnt/candecode/pkg/chart"
	"github.com/mscrnt/candecode/pkg/db"
	"github.com/mscrnt/candecode/pkg/decode"
	"github.com/mscrnt/candecode/pkg/report"
)

// User-facing decode outcomes
const (
	msgMissingInput = "Please upload both files."
	msgNoData       = "No data to plot."
)

// uploadFields maps form fields to session slots
var uploadFields = []struct {
	field string
	kind  db.UploadKind
}{
	{"dbc", db.UploadDBC},
	{"trace", db.UploadTrace},
}

// handleIndex shows the upload forms and the session state
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.renderPage(w, http.StatusOK, newPageData(sess))
}

// handleUpload stores the dbc and/or trace files of a multipart form
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, err)
		return
	}

	files, err := s.readUploads(w, r)
	if err != nil {
		s.uploadError(w, err)
		return
	}

	for _, f := range uploadFields {
		upload, ok := files[f.field]
		if !ok {
			continue
		}
		if err := s.store.SaveUpload(sess.ID, f.kind, upload.name, upload.data); err != nil {
			s.serverError(w, err)
			return
		}
		s.logger.Printf("Session %s uploaded %s %q (%d bytes)", sess.ID, f.kind, upload.name, len(upload.data))
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleDecode decodes the session uploads, stores the CSV and renders charts
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	page := newPageData(sess)

	result, err := decode.Process(sess.Input())
	if err != nil {
		if clearErr := s.store.SaveResult(sess.ID, nil, nil); clearErr != nil {
			s.serverError(w, clearErr)
			return
		}
		page.CanDownload, page.RunID = false, 0
		if errors.Is(err, decode.ErrMissingInput) {
			page.Message = msgMissingInput
			s.renderPage(w, http.StatusOK, page)
			return
		}
		page.Message = fmt.Sprintf("Decode failed: %v", err)
		page.Error = true
		s.renderPage(w, http.StatusUnprocessableEntity, page)
		return
	}

	run := db.NewRun(db.SourceWeb, result)
	page.Quality = report.QualityStats(run)

	if !result.Plottable() {
		if err := s.store.SaveResult(sess.ID, nil, nil); err != nil {
			s.serverError(w, err)
			return
		}
		page.CanDownload, page.RunID = false, 0
		page.Message = msgNoData
		s.renderPage(w, http.StatusOK, page)
		return
	}

	// The CSV is stored before charts are rendered so download never recomputes
	csvData, err := result.Table.CSV()
	if err != nil {
		s.serverError(w, err)
		return
	}
	if err := s.store.CreateRun(run, csvData); err != nil {
		s.serverError(w, err)
		return
	}
	if err := s.store.SaveResult(sess.ID, csvData, &run.ID); err != nil {
		s.serverError(w, err)
		return
	}
	page.CanDownload = true
	page.RunID = run.ID

	opts := s.config.Charts
	opts.Units = result.Units
	page.Charts, err = chart.RenderAll(result.Table, opts)
	if err != nil {
		s.serverError(w, err)
		return
	}

	s.logger.Printf("Session %s decoded run %d: %d rows, %d signals",
		sess.ID, run.ID, result.Table.Rows(), len(result.Table.Columns))
	s.renderPage(w, http.StatusOK, page)
}

// handleDownload serves the stored CSV of the last successful decode
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !sess.HasCSV() {
		http.Error(w, "No decoded data available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="decoded.csv"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(sess.CSV)))
	_, _ = w.Write(sess.CSV)
}

// handleReport renders the HTML report of a stored run
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	html, err := s.reports.GenerateHTML(id)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

type upload struct {
	name string
	data []byte
}

// readUploads reads the known file fields of a multipart request.
// Absent and zero-byte files are left out.
func (s *Server) readUploads(w http.ResponseWriter, r *http.Request) (map[string]upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("failed to parse upload: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := make(map[string]upload)
	for _, f := range uploadFields {
		file, header, err := r.FormFile(f.field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s upload: %w", f.field, err)
		}
		data, err := readFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s upload: %w", f.field, err)
		}
		if len(data) == 0 {
			continue
		}
		files[f.field] = upload{name: header.Filename, data: data}
	}
	return files, nil
}

func readFile(file multipart.File) ([]byte, error) {
	defer func() { _ = file.Close() }()
	return io.ReadAll(file)
}

func (s *Server) uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Printf("Error: %v", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func runID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}
