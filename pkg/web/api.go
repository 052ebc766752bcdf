package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mscrnt/candecode/pkg/db"
	"github.com/mscrnt/candecode/pkg/decode"
)

// defaultRunLimit caps /api/runs when no limit is given
const defaultRunLimit = 50

// DecodeResponse is returned by POST /api/decode
type DecodeResponse struct {
	RunID     int64          `json:"run_id,omitempty"`
	Plottable bool           `json:"plottable"`
	Message   string         `json:"message,omitempty"`
	Result    *decode.Result `json:"result"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status     string      `json:"status"`
	Version    string      `json:"version,omitempty"`
	Sessions   int         `json:"sessions"`
	HostUptime uint64      `json:"host_uptime_seconds,omitempty"`
	Memory     *MemoryInfo `json:"memory,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// MemoryInfo contains host memory information
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// handleAPIDecode decodes a dbc+trace multipart request without touching sessions
func (s *Server) handleAPIDecode(w http.ResponseWriter, r *http.Request) {
	files, err := s.readUploads(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in := decode.Input{
		DBCName:   files["dbc"].name,
		DBC:       files["dbc"].data,
		TraceName: files["trace"].name,
		Trace:     files["trace"].data,
	}

	result, err := decode.Process(in)
	if errors.Is(err, decode.ErrMissingInput) {
		writeError(w, r, http.StatusBadRequest, msgMissingInput)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := DecodeResponse{Result: result, Plottable: result.Plottable()}
	if !resp.Plottable {
		resp.Message = msgNoData
		writeJSON(w, http.StatusOK, resp)
		return
	}

	csvData, err := result.Table.CSV()
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	run := db.NewRun(db.SourceAPI, result)
	if err := s.store.CreateRun(run, csvData); err != nil {
		s.apiError(w, r, err)
		return
	}
	resp.RunID = run.ID

	writeJSON(w, http.StatusOK, resp)
}

// handleAPIListRuns lists stored runs, newest first
func (s *Server) handleAPIListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := db.RunFilter{
		Source:  query.Get("source"),
		DBCName: query.Get("dbc"),
		Limit:   defaultRunLimit,
	}

	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := query.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid %s: %s", key, v))
				return
			}
			*dst = n
		}
	}

	runs, err := s.store.ListRuns(filter)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleAPIGetRun returns one run summary
func (s *Server) handleAPIGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.store.GetRun(id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleAPIRunCSV serves the CSV artifact of a stored run
func (s *Server) handleAPIRunCSV(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid run id")
		return
	}

	data, err := s.store.GetRunCSV(id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.apiError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%d.csv"`, id))
	_, _ = w.Write(data)
}

// handleHealth reports store and host status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   s.config.Version,
		Timestamp: time.Now().UTC(),
	}

	sessions, err := s.store.CountSessions()
	if err != nil {
		s.logger.Printf("Health check failed: %v", err)
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Sessions = sessions

	// Host metrics are best effort
	if uptime, err := host.Uptime(); err == nil {
		resp.HostUptime = uptime
	}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		resp.Memory = &MemoryInfo{
			Total:       vmStat.Total,
			Available:   vmStat.Available,
			UsedPercent: vmStat.UsedPercent,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) apiError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Printf("Error: %v", err)
	writeError(w, r, http.StatusInternalServerError, "internal server error")
}
