package snapshot

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Backuper produces a consistent point-in-time copy of the local store at
// destPath. *store.SQLiteStore satisfies this via VACUUM INTO.
type Backuper interface {
	Backup(ctx context.Context, destPath string) error
}

// Coordinator periodically backs up the local store and uploads it,
// grounded on the teacher's SnapshotGenerationWorker: same
// generate-immediately-then-tick loop, generalized from "generate a
// snapshot row in the database" to "VACUUM INTO a temp file, then upload."
type Coordinator struct {
	store    Backuper
	uploader Uploader
	deviceID string
	interval time.Duration
	tempDir  string
}

func NewCoordinator(store Backuper, uploader Uploader, deviceID string, interval time.Duration) *Coordinator {
	return &Coordinator{store: store, uploader: uploader, deviceID: deviceID, interval: interval, tempDir: os.TempDir()}
}

// Run blocks until ctx is cancelled, backing up immediately and then on
// every interval tick.
func (c *Coordinator) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}
	slog.Info("backup coordinator started", "component", "snapshot", "device_id", c.deviceID)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.backupOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("backup coordinator stopped", "component", "snapshot", "reason", "context_cancelled")
			return
		case <-ticker.C:
			c.backupOnce(ctx)
		}
	}
}

func (c *Coordinator) backupOnce(ctx context.Context) {
	destPath := filepath.Join(c.tempDir, c.deviceID+"-backup.db")
	defer os.Remove(destPath)

	if err := c.store.Backup(ctx, destPath); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("backup generation failed", "component", "snapshot", "error", err)
		return
	}
	if err := c.uploader.Upload(ctx, c.deviceID, destPath); err != nil {
		slog.Warn("backup upload failed", "component", "snapshot", "error", err)
	}
}
