// Package main is the entry point for the rasterscope session server.
// It dispatches two subcommands, serve and version, via a switch on os.Args.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rasterscope/rasterscope/internal/api"
	"github.com/rasterscope/rasterscope/internal/catalog"
	"github.com/rasterscope/rasterscope/internal/config"
	"github.com/rasterscope/rasterscope/internal/coordinator"
	"github.com/rasterscope/rasterscope/internal/storage"
	"github.com/rasterscope/rasterscope/internal/telemetry"

	// Import storage backends to register them
	_ "github.com/rasterscope/rasterscope/internal/storage/azure"
	_ "github.com/rasterscope/rasterscope/internal/storage/gcs"
	_ "github.com/rasterscope/rasterscope/internal/storage/local"
	_ "github.com/rasterscope/rasterscope/internal/storage/s3"
)

const (
	version = "0.1.0"

	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return serve(cfg)
	case "version":
		fmt.Printf("rasterscope v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, nil)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Metrics are served on their own port, away from the session API.
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	resolver, err := storage.NewResolver(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialise storage signers: %w", err)
	}

	catalogClient, err := catalog.NewFromConfig(&cfg.Catalog)
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	coord, err := coordinator.NewFromConfig(&cfg.Session, catalogClient, resolver)
	if err != nil {
		return fmt.Errorf("failed to create session coordinator: %w", err)
	}

	// The listing loads in the background; the API serves its loading state meanwhile.
	if err := coord.LoadOrganisations(); err != nil {
		coord.Close()
		return fmt.Errorf("failed to start organisation load: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      api.NewRouter(cfg, coord),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	server.RegisterOnShutdown(coord.CloseSubscriptions)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting session server",
			"addr", server.Addr,
			"catalog", cfg.Catalog.BaseURL,
			"viewport_mode", cfg.Session.ViewportMode,
			"signing_schemes", resolver.Schemes(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("http drain incomplete", "error", err)
	}

	coord.Close()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("server stopped gracefully")
	return nil
}
