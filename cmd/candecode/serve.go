package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/candecode/internal/version"
	"github.com/mscrnt/candecode/pkg/db"
	"github.com/mscrnt/candecode/pkg/schedule"
	"github.com/mscrnt/candecode/pkg/web"
)

// retentionSchedule runs the run retention job
const retentionSchedule = "@hourly"

func serveCmd() *cobra.Command {
	var (
		addr     string
		certFile string
		keyFile  string
		logFile  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		Long: `Start the web UI for uploading a DBC and a trace, plotting decoded signals
and downloading the CSV.

Each browser gets its own session; uploads and the last CSV are kept in the
database until the session has been idle for [sessions] ttl.

Endpoints:
  /                 - Upload, decode and plot
  /download         - CSV of the last decode
  /runs/{id}/report - HTML report of a stored run
  /api/decode       - Multipart dbc+trace decode returning JSON
  /api/runs         - Stored runs
  /health           - Health check

Examples:
  # Serve on the default address
  candecode serve

  # Serve with TLS on a custom port
  candecode serve --addr :8443 --cert server.pem --key server-key.pem

  # Using environment variables
  export CANDECODE_ADDR=:8080
  export CANDECODE_DB_PATH=/var/lib/candecode/candecode.db
  candecode serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("cert") {
				cfg.Server.CertFile = certFile
			}
			if cmd.Flags().Changed("key") {
				cfg.Server.KeyFile = keyFile
			}
			if cmd.Flags().Changed("log") {
				cfg.Server.LogFile = logFile
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			database, err := db.Open(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = database.Close() }()

			server, err := web.NewServer(web.Config{
				Addr:           cfg.Server.Addr,
				CertFile:       cfg.Server.CertFile,
				KeyFile:        cfg.Server.KeyFile,
				LogFile:        cfg.Server.LogFile,
				MaxUploadBytes: cfg.Server.MaxUploadBytes(),
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				Charts:         cfg.Charts.Options(),
				Version:        version.GetVersion(buildVersion, buildCommit, buildTime),
			}, database)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			runner := schedule.NewRunner(log.New(os.Stdout, "[schedule] ", log.LstdFlags))
			if err := runner.Register(cfg.Sessions.PruneSchedule, &schedule.SessionPruner{
				Store:  database,
				TTL:    cfg.Sessions.TTL,
				Logger: log.New(os.Stdout, "[schedule] ", log.LstdFlags),
			}); err != nil {
				return err
			}
			if cfg.Store.Retention > 0 {
				if err := runner.Register(retentionSchedule, &schedule.RunRetention{
					Store:  database,
					MaxAge: cfg.Store.Retention,
					Logger: log.New(os.Stdout, "[schedule] ", log.LstdFlags),
				}); err != nil {
					return err
				}
			}
			runner.Start()

			// Setup signal handling
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Start()
			}()

			scheme := "http"
			if cfg.Server.TLSEnabled() {
				scheme = "https"
			}
			fmt.Printf("Web UI listening on %s://%s\n", scheme, cfg.Server.Addr)
			fmt.Printf("Database: %s\n", cfg.Store.Path)
			fmt.Println("\nPress Ctrl+C to stop...")

			select {
			case sig := <-sigChan:
				fmt.Printf("\nReceived signal: %v\n", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				runner.Stop(ctx)
				if err := server.Shutdown(ctx); err != nil {
					return fmt.Errorf("shutdown error: %w", err)
				}
				fmt.Println("Server stopped gracefully")
				return nil

			case err := <-errChan:
				runner.Stop(context.Background())
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :5050)")
	cmd.Flags().StringVar(&certFile, "cert", "", "Server certificate file (enables TLS)")
	cmd.Flags().StringVar(&keyFile, "key", "", "Server private key file")
	cmd.Flags().StringVar(&logFile, "log", "", "Log file path (optional)")

	return cmd
}
