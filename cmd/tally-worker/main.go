package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/cache"
	"tally/internal/cli"
	"tally/internal/config"
	applog "tally/internal/log"
	"tally/internal/sheets"
	gsheet "tally/internal/sheets/google"
	mem "tally/internal/sheets/memory"
	"tally/internal/worker"
)

const dedupCleanupInterval = 5 * time.Minute

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker, (*config.Config).ValidateWorker)
	ctx, stop := cli.ShutdownContext(context.Background(), logger)
	defer stop()

	logger.Info("Starting tally-worker")
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	appender, err := newAppender(ctx, cfg, logger)
	if err != nil {
		return err
	}

	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connect to AMQP: %w", err)
	}
	defer client.Close()

	w := worker.NewExportWorker(appender, nil)
	manager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	manager.Register(w.Seen())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(gctx, dedupCleanupInterval)
	})
	g.Go(func() error {
		err := client.ConsumeEventRecorded(gctx, w.HandleEventRecorded)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("consume events: %w", err)
	})
	return g.Wait()
}

// newAppender returns the Google Sheets client, or an in-memory appender
// when no spreadsheet is configured.
func newAppender(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.RowAppender, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided; exported rows are kept in memory")
		return mem.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
