package cli

import (
	"context"
	"log/slog"
	"testing"

	"tally/internal/config"
	applog "tally/internal/log"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.DataBackend = "memory"
	cfg.Timezone = "UTC"
	return cfg
}

func TestSetupLogger_UsesConfiguredLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogLevel = "warn"
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger(cfg, applog.ComponentCLI)

	if logger.Component() != applog.ComponentCLI {
		t.Errorf("component = %q", logger.Component())
	}
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info must be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn must be enabled")
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	logger := applog.New(applog.DefaultConfig())

	cfg := testConfig(t)
	cfg.DataBackend = "file"
	cfg.DataDir = t.TempDir()
	res, err := OpenBackend(ctx, logger, cfg)
	if err != nil {
		t.Fatalf("OpenBackend(file) error = %v", err)
	}
	defer res.Cleanup()

	cfg.DataBackend = "postgres"
	if _, err := OpenBackend(ctx, logger, cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewTrackerService(t *testing.T) {
	ctx := context.Background()
	logger := applog.New(applog.DefaultConfig())
	cfg := testConfig(t)

	res, err := OpenBackend(ctx, logger, cfg)
	if err != nil {
		t.Fatalf("OpenBackend() error = %v", err)
	}

	svc, err := NewTrackerService(ctx, logger, cfg, res, nil, nil)
	if err != nil {
		t.Fatalf("NewTrackerService() error = %v", err)
	}
	if _, err := svc.RecordEvent(ctx, "moods", "happy"); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	cfg.Timezone = "Mars/Olympus_Mons"
	if _, err := NewTrackerService(ctx, logger, cfg, res, nil, nil); err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestShutdownContext_CancelStopsWatcher(t *testing.T) {
	ctx, cancel := ShutdownContext(context.Background(), applog.New(applog.DefaultConfig()))
	cancel()
	<-ctx.Done()
	if ctx.Err() == nil {
		t.Fatal("expected cancelled context")
	}
}
