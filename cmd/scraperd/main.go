// Command scraperd runs the match-data scraping service: an HTTP API for
// enqueueing scrape tasks and a worker that drains the queue against the
// target site.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/poolspel/matchdata-crawler/internal/app"
	"github.com/poolspel/matchdata-crawler/internal/config"
	"github.com/poolspel/matchdata-crawler/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	logger.Info("scraperd starting", zap.Int("port", cfg.Server.Port))
	if err := a.Start(ctx); err != nil {
		shutdown(a)
		return err
	}

	logger.Info("signal received, shutting down")
	shutdown(a)
	return nil
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.Stop(ctx)
}
