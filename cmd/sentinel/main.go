package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/cache"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/observability"
	"github.com/raaihank/pii-sentinel/internal/server"
	"github.com/raaihank/pii-sentinel/internal/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("PII-Sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck(cfg.Server.Port)
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting PII-Sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	server.Version = version
	opts, cleanup := backends(cfg, log)
	defer cleanup()

	srv, err := server.New(cfg, log, opts...)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	// Hot reload of the detector selection
	err = config.Watch(*configPath, log.Logger, func(updated *config.Config) {
		if err := srv.Reload(updated); err != nil {
			log.Error("Failed to apply reloaded configuration", zap.Error(err))
		}
	})
	if err != nil && !errors.Is(err, config.ErrNoConfigFile) {
		log.Warn("Configuration watch disabled", zap.Error(err))
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// backends connects the optional result store, result cache and metrics
func backends(cfg *config.Config, log *logger.Logger) ([]server.Option, func()) {
	var (
		opts    []server.Option
		closers []func() error
	)

	if cfg.Store.Enabled {
		s, err := store.NewStore(&cfg.Store.Config, log.WithComponent("store").Logger)
		if err != nil {
			log.Fatal("Failed to initialize result store", zap.Error(err))
		}
		opts = append(opts, server.WithStore(s))
		closers = append(closers, s.Close)
	}

	if cfg.Cache.Enabled {
		c, err := cache.NewResultCache(&cfg.Cache.Config, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Result cache unavailable, continuing without it", zap.Error(err))
		} else {
			opts = append(opts, server.WithCache(c))
			closers = append(closers, c.Close)
		}
	}

	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(observability.NewMetrics(cfg.Metrics.Namespace)))
	}

	return opts, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("Failed to close backend", zap.Error(err))
			}
		}
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(port int) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
