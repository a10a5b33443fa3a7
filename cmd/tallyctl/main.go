// Command tallyctl records and inspects tracker counts directly against the
// configured backend.
package main

import (
	"context"
	"fmt"
	"os"

	"tally/internal/cli"
	"tally/internal/config"
	applog "tally/internal/log"
	"tally/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	// Logs go to stderr so command output stays pipeable.
	logger := applog.New(applog.Config{
		Level:     cfg.SlogLevel(),
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "tallyctl:", err)
		os.Exit(1)
	}

	a := &app{
		open: func(ctx context.Context) (*services.TrackerService, error) {
			res, err := cli.OpenBackend(ctx, logger, cfg)
			if err != nil {
				return nil, err
			}
			svc, err := cli.NewTrackerService(ctx, logger, cfg, res, nil, nil)
			if err != nil {
				if res.Cleanup != nil {
					_ = res.Cleanup()
				}
				return nil, err
			}
			return svc, nil
		},
	}

	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "tallyctl:", err)
		os.Exit(1)
	}
}
