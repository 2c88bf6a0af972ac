package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"

	"podsnip/internal/config"
	"podsnip/internal/deps"
	"podsnip/internal/feed"
	"podsnip/internal/logging"
	"podsnip/internal/notifications"
	"podsnip/internal/pipeline"
	"podsnip/internal/server"
	"podsnip/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("podsnipd: %v", err)
	}
}

func run(configPath string) error {
	// Local .env files hold the API keys in development setups.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, resolvedPath, exists, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !exists {
		fmt.Fprintf(os.Stderr, "no config file at %s, using defaults\n", resolvedPath)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	// A second daemon against the same data directory would fight over
	// episode claims and artifact files.
	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "podsnipd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another podsnipd instance is already running against %s", cfg.Paths.DataDir)
	}
	defer lock.Unlock() //nolint:errcheck

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	reset, err := st.ResetStuckProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset stuck episodes: %w", err)
	}
	if reset > 0 {
		logger.Info("reset episodes stuck in processing", logging.Int64("count", reset))
	}

	// Missing binaries only fail the episodes that need them, so report
	// them up front instead of at first request.
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		if !status.Available {
			logger.Warn("external dependency missing",
				logging.String("name", status.Name),
				logging.String("detail", status.Detail))
		}
	}

	notifier := notifications.NewService(cfg)
	processor := pipeline.NewProcessor(cfg, st, notifier, logger)
	coordinator := pipeline.NewCoordinator(cfg, st, processor, logger)
	coordinator.StartReclaim()
	defer coordinator.Close()

	fetcher := feed.NewFetcher(feed.FetcherOptions{
		TimeoutSeconds: cfg.Feeds.FetchTimeoutSeconds,
		UserAgent:      cfg.Feeds.UserAgent,
		FetchesPerMin:  cfg.Feeds.FetchesPerMin,
	})
	refresher := feed.NewRefresher(st, fetcher, cfg.Paths.DataDir, logger)
	refresher.OnError(func(podcast *store.Podcast, err error) {
		if notifyErr := notifier.NotifyRefreshError(ctx, podcast.Slug, err); notifyErr != nil {
			logger.Warn("refresh error notification", logging.Error(notifyErr))
		}
	})

	interval := time.Duration(cfg.Feeds.RefreshIntervalMinutes) * time.Minute
	if err := refresher.Start(ctx, interval); err != nil {
		return fmt.Errorf("start refresher: %w", err)
	}
	defer refresher.Stop()

	// Bring subscriptions current before serving.
	if err := refresher.RefreshAll(ctx); err != nil {
		logger.Warn("initial refresh", logging.Error(err))
	}

	srv := server.New(cfg, st, coordinator, refresher, notifier, logger, processor.Checkers()...)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("podsnipd shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", logging.Error(err))
	}
	return nil
}
