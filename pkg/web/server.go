// Package web serves the upload, decode, plot and download UI together with a
// small JSON API over stored runs.
package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/mscrnt/candecode/pkg/db"
	"github.com/mscrnt/candecode/pkg/decode"
	"github.com/mscrnt/candecode/pkg/report"
)

// Store is the persistence the server needs; *db.DB satisfies it
type Store interface {
	EnsureSession(id string) error
	SaveUpload(id string, kind db.UploadKind, name string, data []byte) error
	SaveResult(id string, csv []byte, runID *int64) error
	GetSession(id string) (*db.Session, error)
	CountSessions() (int, error)

	CreateRun(run *db.Run, csv []byte) error
	GetRun(id int64) (*db.Run, error)
	GetRunCSV(id int64) ([]byte, error)
	ListRuns(filter db.RunFilter) ([]*db.Run, error)
	RunTable(runID int64) (*decode.Table, error)
}

// Server represents the web server
type Server struct {
	config     Config
	store      Store
	reports    *report.Generator
	router     *mux.Router
	httpServer *http.Server
	logger     *log.Logger
	logFile    *os.File
}

// NewServer creates a new web server
func NewServer(config Config, store Store) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := config.LoadTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	// Setup logger
	logger := log.New(os.Stdout, "[web] ", log.LstdFlags)
	var logFile *os.File
	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		logger = log.New(f, "[web] ", log.LstdFlags)
	}

	server := &Server{
		config:  config,
		store:   store,
		reports: report.NewGenerator(store, config.Charts),
		logger:  logger,
		logFile: logFile,
	}
	server.router = server.routes()

	server.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      server.router,
		TLSConfig:    tlsConfig,
		ErrorLog:     logger,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.loggingMiddleware, s.recoveryMiddleware)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/decode", s.handleDecode).Methods(http.MethodPost)
	r.HandleFunc("/download", s.handleDownload).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id:[0-9]+}/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/decode", s.handleAPIDecode).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleAPIListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id:[0-9]+}", s.handleAPIGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id:[0-9]+}/csv", s.handleAPIRunCSV).Methods(http.MethodGet)

	return r
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	var err error
	if s.config.TLSEnabled() {
		s.logger.Printf("Starting web server on %s with TLS", s.config.Addr)
		// Certificates are already in the TLS config
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		s.logger.Printf("Starting web server on %s", s.config.Addr)
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Println("Shutting down web server...")
	err := s.httpServer.Shutdown(ctx)
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
	return err
}
