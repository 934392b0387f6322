package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"creator_ingest/internal/config"
	"creator_ingest/internal/fetcher"
	"creator_ingest/internal/lock"
	"creator_ingest/internal/orchestrator"
	"creator_ingest/internal/pagemeta"
	"creator_ingest/internal/storage"
	"creator_ingest/internal/summarizer"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	store  *storage.SQLite
	orch   *orchestrator.Orchestrator
	meta   *pagemeta.Reader
	queue  *summarizer.Queue
	worker *summarizer.Worker

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	client := &http.Client{Timeout: 60 * time.Second}
	registry := fetcher.NewDefaultRegistry(cfg.Credentials(), client)
	if missing := registry.Disabled(); len(missing) > 0 {
		log.Warn("fetchers disabled", "platforms", strings.Join(missing, ","))
	}

	a.orch = orchestrator.New(store, registry, log)
	a.orch.SetBatching(cfg.LinkedInBatchSize, cfg.LinkedInBatchDelay)
	a.meta = pagemeta.New(client, pagemeta.DefaultTimeout)

	if cfg.RedisAddr != "" {
		rdb, err := lock.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		a.orch.SetLocker(lock.NewRedis(rdb, log))
		log.Info("using redis creator lock", "addr", cfg.RedisAddr)
	}

	if cfg.AnthropicAPIKey != "" {
		a.queue = summarizer.NewQueue(log)
		a.closers = append(a.closers, a.queue.Close)
		a.orch.SetPublisher(a.queue)
		a.worker = summarizer.NewWorker(store,
			summarizer.NewAnthropic(cfg.AnthropicAPIKey, cfg.SummaryModel),
			cfg.SummaryLimit, cfg.SummaryBatchSize, log)
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", "error", err)
		}
	}
	a.closers = nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
