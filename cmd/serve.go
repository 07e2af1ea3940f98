/*
serve.go - HTTP API server command

PURPOSE:
  Runs the salary engine HTTP API: opens the SQLite store, wires the
  handler and router, optionally starts the automatic generation
  scheduler, and serves until SIGINT/SIGTERM with a graceful drain.

STARTUP SEQUENCE:
  1. Load configuration from the environment (flags override)
  2. Open the SQLite store
  3. Wire the API handler and chi router
  4. Start the generation scheduler when AUTO_GENERATE=true
  5. Serve until SIGINT/SIGTERM, then drain for up to 30s

CONFIGURATION:
  PORT, DB_PATH, CORS_ORIGINS, AUTO_GENERATE, GENERATE_INTERVAL
  (see config/config.go). --port and --db override the environment.

EXAMPLES:
  # File-backed database on the default port
  salaryd serve --db ./data/salary.db

  # In-memory database for demos
  salaryd serve --db :memory:

  # Check for newly closed months every 30 minutes
  AUTO_GENERATE=true GENERATE_INTERVAL=30m salaryd serve

SEE ALSO:
  - api/server.go: router configuration
  - api/scheduler.go: automatic generation
  - store/sqlite/sqlite.go: database implementation
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian/salary-engine/api"
	"github.com/meridian/salary-engine/config"
	"github.com/meridian/salary-engine/logger"
	"github.com/meridian/salary-engine/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the salary engine HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "HTTP server port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer store.Close()

	handler := api.NewHandler(store)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	scheduler := api.NewGenerationScheduler(handler.Generator)
	scheduler.Enabled = cfg.AutoGenerate
	scheduler.CheckInterval = cfg.GenerateInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("db", cfg.DBPath).
			Bool("auto_generate", cfg.AutoGenerate).
			Msg("Salary engine API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}
