// Package cli holds the start-up steps shared by cmd/tally, cmd/tally-worker
// and cmd/tallyctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tally/internal/backend"
	"tally/internal/cache"
	"tally/internal/config"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger at the configured level and makes it
// the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     cfg.SlogLevel(),
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads the .env file and the environment, sets up
// logging and runs Validate plus any extra checks. It exits the process on
// validation failure.
func LoadAndValidateConfig(component string, extra ...func(*config.Config) error) (*config.Config, *applog.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)

	checks := append([]func(*config.Config) error{(*config.Config).Validate}, extra...)
	for _, check := range checks {
		if err := check(cfg); err != nil {
			logger.Error("Configuration validation failed", "error", err)
			os.Exit(1)
		}
	}
	return cfg, logger
}

// OpenBackend creates the configured key-value backend.
func OpenBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	res, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}
	return res, nil
}

// InitBackend is OpenBackend for long-running binaries: it exits on failure.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	res, err := OpenBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// NewTrackerService wires the counter stores over res with the configured
// zone and persistence mode. publisher and summaries may be nil.
func NewTrackerService(ctx context.Context, logger *applog.Logger, cfg *config.Config, res *backend.BackendResult,
	publisher services.EventPublisher, summaries *cache.LRUCache[core.RangeSummary]) (*services.TrackerService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	return services.NewTrackerService(ctx, res.Store, services.Options{
		Location:     loc,
		Logger:       logger.WithComponent(applog.ComponentCounter).Logger,
		BestEffort:   cfg.BestEffortPersistence,
		Publisher:    publisher,
		SummaryCache: summaries,
	})
}

// ShutdownContext returns a context that is cancelled on SIGINT or SIGTERM.
// The received signal is logged.
func ShutdownContext(parent context.Context, logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
