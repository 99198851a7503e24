package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fitsync/fitsync/internal/config"
	"github.com/fitsync/fitsync/internal/gateway"
	"github.com/fitsync/fitsync/internal/snapshot"
	"github.com/fitsync/fitsync/internal/store"
	"github.com/fitsync/fitsync/internal/sync"
	"github.com/fitsync/fitsync/internal/tableconfig"
)

func toDuration(d config.Duration) time.Duration { return time.Duration(d) }

// bootstrap wires config, logger, registry, store, gateway, and engine the
// way root.go's run() does for the teacher's HTTP server, minus the HTTP
// server itself (fitsyncd has no inbound server of its own; the mock
// gateway is the only listener, started separately by serve-mock).
type bootstrap struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *tableconfig.Registry
	store       *store.SQLiteStore
	engine      *sync.Engine
	backupCoord *snapshot.Coordinator
}

func newBootstrap(userID func() string) (*bootstrap, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	registry := tableconfig.NewRegistry()
	if err := tableconfig.RegisterDefaults(registry); err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Database.Path, registry, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	gw := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)

	engine := sync.New(st, gw, registry, userID,
		sync.WithLogger(logger),
		sync.WithDebounceDelay(toDuration(cfg.Sync.DebounceDelay)),
	)

	uploader, err := snapshot.NewUploader(cfg.Backup)
	if err != nil {
		return nil, err
	}
	backupCoord := snapshot.NewCoordinator(st, uploader, userID(), toDuration(cfg.Backup.Interval))
	if cfg.Backup.Bucket != "" {
		logger.Info("backup upload enabled", "bucket", cfg.Backup.Bucket, "endpoint", cfg.Backup.Endpoint)
	}

	return &bootstrap{cfg: cfg, logger: logger, registry: registry, store: st, engine: engine, backupCoord: backupCoord}, nil
}

func (b *bootstrap) Close() error {
	return b.store.Close()
}

func (b *bootstrap) Initialize(ctx context.Context) error {
	return b.store.Initialize(ctx)
}

// StartBackupCoordinator launches the optional backup loop in the
// background; it starts nothing when no bucket is configured.
func (b *bootstrap) StartBackupCoordinator(ctx context.Context) {
	if b.cfg.Backup.Bucket == "" {
		return
	}
	go b.backupCoord.Run(ctx)
}
