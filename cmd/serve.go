package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openclinic/cliniq/internal/api"
	"github.com/openclinic/cliniq/internal/app"
	"github.com/openclinic/cliniq/internal/config"
	"github.com/openclinic/cliniq/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the application and starts the HTTP API server.
// The server runs until SIGINT or SIGTERM, then shuts down gracefully.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting cliniq", "version", AppVersion, "provider", cfg.Provider)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server := api.NewServer(a.Engine, a.Store, a.DBPool, api.Options{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   float64(cfg.RateLimitRPS),
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	logger.Info("HTTP server ready",
		"addr", cfg.ListenAddr(),
		"api", "/api/*",
		"health", "/health, /ready")

	return server.Run(ctx, cfg.ListenAddr())
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) log.Logger {
	return log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
}
