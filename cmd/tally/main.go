package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/cache"
	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/core"
	apphttp "tally/internal/http"
	applog "tally/internal/log"
	"tally/internal/services"
)

const (
	cacheCleanupInterval = time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)
	ctx, stop := cli.ShutdownContext(context.Background(), logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	res := cli.InitBackend(ctx, logger, cfg)

	// A nil interface, not a nil *amqp.Client, disables the change feed.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("AMQP unavailable; running without change feed", "error", err)
		} else {
			publisher = client
			logger.Info("Change feed enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	summaries := cache.NewLRUCache[core.RangeSummary](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	svc, err := cli.NewTrackerService(ctx, logger, cfg, res, publisher, summaries)
	if err != nil {
		if res.Cleanup != nil {
			_ = res.Cleanup()
		}
		return fmt.Errorf("create tracker service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close tracker service", "error", err)
		}
	}()

	manager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	manager.Register(summaries)

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SummaryCache:       summaries,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(gctx, cacheCleanupInterval)
	})
	g.Go(func() error {
		logger.Info("Starting tally server", "port", cfg.Port, "backend", cfg.DataBackend, "timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
