package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/daslan/birdwatch/internal/config"
	"github.com/daslan/birdwatch/internal/domain"
	"github.com/daslan/birdwatch/internal/driver"
	"github.com/daslan/birdwatch/internal/httpserver"
	"github.com/daslan/birdwatch/internal/hub"
	"github.com/daslan/birdwatch/internal/source"
	"github.com/daslan/birdwatch/internal/sqlite"
	"github.com/daslan/birdwatch/internal/twitter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("BIRDWATCH_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	repo, err := sqlite.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()
	logger.Info("opened database", "path", cfg.DatabasePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	wsHub := hub.NewHub(logger)
	go wsHub.Run(ctx)

	pipeline := domain.NewPipeline(repo, repo, wsHub, logger)

	src, err := buildSource(cfg, repo, logger)
	if err != nil {
		return err
	}

	drv := driver.New(src, pipeline, wsHub, driver.Config{
		Streaming:    cfg.Source.Mode == config.ModeStream,
		PollInterval: cfg.Driver.PollInterval,
		Backoff:      cfg.Driver.Backoff,
		FetchTimeout: cfg.Driver.FetchTimeout,
	}, logger)

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		if err := drv.Run(ctx); err != nil {
			logger.Error("driver exited with error", "error", err)
		}
	}()

	server := httpserver.NewServer(cfg.Port, repo, wsHub, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("monitor started", "port", cfg.Port, "mode", cfg.Source.Mode)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	// Let the in-flight batch finish publishing before the process exits.
	<-driverDone

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}

func buildSource(cfg *config.Config, repo *sqlite.Repository, logger *slog.Logger) (domain.Source, error) {
	switch cfg.Source.Mode {
	case config.ModePoll:
		client := twitter.NewClient(cfg.Twitter.BaseURL, cfg.Twitter.BearerToken)
		return source.NewPollSource(client, cfg.Twitter.ListID), nil
	case config.ModeStream:
		client := twitter.NewClient(cfg.Twitter.BaseURL, cfg.Twitter.BearerToken)
		return source.NewStreamSource(client, cfg.Twitter.Accounts, logger), nil
	case config.ModeScrape:
		return source.NewScrapeSource(cfg.Source.SnapshotURL, repo, cfg.Twitter.Accounts, logger), nil
	default:
		return nil, fmt.Errorf("unknown source mode %q", cfg.Source.Mode)
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
