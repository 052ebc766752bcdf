package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/candecode/pkg/db"
)

const testDBC = `VERSION ""

BS_:

BU_: ECU

BO_ 256 Vehicle: 2 ECU
 SG_ Speed : 0|16@1+ (0.1,0) [0|6553.5] "km/h" Vector__XXX
`

const testTrace = `;$FILEVERSION=1.1
;$STARTTIME=43129.6029812616
     1)      1841.3  Rx         0100  2  64 00
`

const noFramesTrace = `;$FILEVERSION=1.1
;   Message Number
`

type formFile struct {
	field   string
	name    string
	content string
}

type client struct {
	handler http.Handler
	cookies []*http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			c.cookies = []*http.Cookie{ck}
		}
	}
	return rec
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (c *client) post(target string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodPost, target, nil))
}

func newTestServer(t *testing.T, modify ...func(*Config)) (*Server, *db.DB) {
	store, err := db.Open(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Version = "test"
	for _, m := range modify {
		m(&cfg)
	}

	srv, err := NewServer(cfg, store)
	require.NoError(t, err)
	return srv, store
}

func multipartRequest(t *testing.T, target string, files ...formFile) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func bothFiles(traceContent string) []formFile {
	return []formFile{
		{field: "dbc", name: "vehicle.dbc", content: testDBC},
		{field: "trace", name: "drive.trc", content: traceContent},
	}
}

func TestIndexSetsSessionCookie(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	rec := c.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "DBC uploaded: none | TRC uploaded: none")
	assert.Contains(t, rec.Body.String(), "disabled>Download CSV")

	require.Len(t, c.cookies, 1)
	_, err := uuid.Parse(c.cookies[0].Value)
	assert.NoError(t, err)
	assert.True(t, c.cookies[0].HttpOnly)

	// The same session is reused
	rec = c.get("/")
	assert.Empty(t, rec.Result().Cookies())
}

func TestInvalidSessionCookieReplaced(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{
		handler: srv.Handler(),
		cookies: []*http.Cookie{{Name: SessionCookie, Value: "not-a-uuid"}},
	}

	rec := c.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, "not-a-uuid", c.cookies[0].Value)
}

func TestDecodeMissingInput(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	rec := c.post("/decode")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), msgMissingInput)
	assert.NotContains(t, rec.Body.String(), "<img")

	// Only a DBC is still missing input
	rec = c.do(multipartRequest(t, "/upload", formFile{field: "dbc", name: "vehicle.dbc", content: testDBC}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = c.post("/decode")
	assert.Contains(t, rec.Body.String(), msgMissingInput)
}

func TestUploadDecodeDownload(t *testing.T) {
	srv, store := newTestServer(t)
	c := &client{handler: srv.Handler()}

	rec := c.do(multipartRequest(t, "/upload", bothFiles(testTrace)...))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = c.get("/")
	assert.Contains(t, rec.Body.String(), "DBC uploaded: vehicle.dbc | TRC uploaded: drive.trc")

	rec = c.post("/decode")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "data:image/svg")
	assert.Contains(t, body, `alt="Speed"`)
	assert.Contains(t, body, `href="/download"`)
	assert.Contains(t, body, "/runs/1/report")
	assert.NotContains(t, body, msgNoData)

	rec = c.get("/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "decoded.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Timestamp,Speed\n1841.3,"))

	runs, err := store.ListRuns(db.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.SourceWeb, runs[0].Source)
	assert.Equal(t, "drive.trc", runs[0].TraceName)

	rec = c.get("/runs/1/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CAN Decode Report - Run #1")
	assert.Contains(t, rec.Body.String(), "km/h")
}

func TestNewUploadClearsDownload(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	c.do(multipartRequest(t, "/upload", bothFiles(testTrace)...))
	require.Equal(t, http.StatusOK, c.post("/decode").Code)
	require.Equal(t, http.StatusOK, c.get("/download").Code)

	c.do(multipartRequest(t, "/upload", formFile{field: "trace", name: "other.trc", content: testTrace}))
	assert.Equal(t, http.StatusNotFound, c.get("/download").Code)
	assert.Contains(t, c.get("/").Body.String(), "TRC uploaded: other.trc")
}

func TestDecodeNoData(t *testing.T) {
	srv, store := newTestServer(t)
	c := &client{handler: srv.Handler()}

	c.do(multipartRequest(t, "/upload", bothFiles(noFramesTrace)...))
	rec := c.post("/decode")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), msgNoData)
	assert.Contains(t, rec.Body.String(), "disabled>Download CSV")
	assert.Equal(t, http.StatusNotFound, c.get("/download").Code)

	runs, err := store.ListRuns(db.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDecodeInvalidDBC(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	c.do(multipartRequest(t, "/upload",
		formFile{field: "dbc", name: "broken.dbc", content: "BO_ nope"},
		formFile{field: "trace", name: "drive.trc", content: testTrace},
	))
	rec := c.post("/decode")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Decode failed")
}

func TestEmptyUploadIgnored(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	c.do(multipartRequest(t, "/upload", formFile{field: "dbc", name: "empty.dbc", content: ""}))
	assert.Contains(t, c.get("/").Body.String(), "DBC uploaded: none")
}

func TestUploadTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) { c.MaxUploadBytes = 64 })
	c := &client{handler: srv.Handler()}

	rec := c.do(multipartRequest(t, "/upload", bothFiles(testTrace)...))
	assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
	assert.Contains(t, c.get("/").Body.String(), "DBC uploaded: none")
}

func TestUploadNotMultipart(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	rec := c.do(httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("dbc=x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadWithoutResult(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	assert.Equal(t, http.StatusNotFound, c.get("/download").Code)
}

func TestReportNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	assert.Equal(t, http.StatusNotFound, c.get("/runs/42/report").Code)
}

func TestMethods(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodDelete, "/", http.StatusMethodNotAllowed},
		{http.MethodGet, "/decode", http.StatusMethodNotAllowed},
		{http.MethodGet, "/upload", http.StatusMethodNotAllowed},
		{http.MethodPost, "/download", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAPIDecode(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	rec := c.do(multipartRequest(t, "/api/decode", bothFiles(testTrace)...))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, c.cookies, "the API does not use sessions")

	var resp DecodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Plottable)
	require.NotZero(t, resp.RunID)
	assert.Equal(t, []float64{1841.3}, resp.Result.Table.Timestamps)
	assert.Equal(t, "km/h", resp.Result.Units["Speed"])

	rec = c.get(fmt.Sprintf("/api/runs/%d", resp.RunID))
	require.Equal(t, http.StatusOK, rec.Code)
	var run db.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, db.SourceAPI, run.Source)
	assert.Equal(t, db.StringList{"Timestamp", "Speed"}, run.Columns)

	rec = c.get(fmt.Sprintf("/api/runs/%d/csv", resp.RunID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Timestamp,Speed\n"))

	rec = c.get("/api/runs?source=api")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []db.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestAPIDecodeErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name       string
		files      []formFile
		wantStatus int
	}{
		{"missing trace", []formFile{{field: "dbc", name: "a.dbc", content: testDBC}}, http.StatusBadRequest},
		{"no files", nil, http.StatusBadRequest},
		{"invalid dbc", []formFile{
			{field: "dbc", name: "a.dbc", content: "BO_ nope"},
			{field: "trace", name: "a.trc", content: testTrace},
		}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, "/api/decode", tt.files...)
			req.Header.Set("X-Request-ID", "req-123")
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, "req-123", resp.RequestID)
		})
	}
}

func TestAPIDecodeNoData(t *testing.T) {
	srv, store := newTestServer(t)
	c := &client{handler: srv.Handler()}

	rec := c.do(multipartRequest(t, "/api/decode", bothFiles(noFramesTrace)...))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DecodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Plottable)
	assert.Equal(t, msgNoData, resp.Message)
	assert.Zero(t, resp.RunID)

	runs, err := store.ListRuns(db.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestAPIRuns(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}

	rec := c.get("/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, c.get("/api/runs?limit=many").Code)
	assert.Equal(t, http.StatusNotFound, c.get("/api/runs/9").Code)
	assert.Equal(t, http.StatusNotFound, c.get("/api/runs/9/csv").Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{handler: srv.Handler()}
	c.get("/")

	rec := c.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 1, resp.Sessions)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := requestIDMiddleware(srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "panic-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "panic-1", resp.RequestID)
}
