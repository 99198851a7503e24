package store

import (
	"context"

	"github.com/fitsync/fitsync/internal/tableconfig"
)

// Store is the narrow contract the Sync Engine depends on, satisfied by
// *SQLiteStore in production and by hand-written fakes in tests.
type Store interface {
	Initialize(ctx context.Context) error

	Upsert(ctx context.Context, cfg tableconfig.Config, row map[string]any, synced bool) error
	GetByID(ctx context.Context, cfg tableconfig.Config, id string, includeDeleted bool) (map[string]any, bool, error)
	GetAllUnsynced(ctx context.Context, cfg tableconfig.Config) ([]map[string]any, error)
	GetAll(ctx context.Context, cfg tableconfig.Config, includeDeleted bool, orderBy string) ([]map[string]any, error)
	GetAllIDs(ctx context.Context, cfg tableconfig.Config) (map[string]struct{}, error)
	UpdateSyncFlag(ctx context.Context, cfg tableconfig.Config, id string, synced bool) error
	SoftDelete(ctx context.Context, cfg tableconfig.Config, id, updatedAt string) error
	HardDelete(ctx context.Context, cfg tableconfig.Config, id string) error
	Cleanup(ctx context.Context) (int64, error)

	Enqueue(ctx context.Context, table string, op Op, recordID, payload, createdAt string) error
	Drain(ctx context.Context, readyOnly bool, nowISO string) ([]OutboxEntry, error)
	RemoveOutboxEntry(ctx context.Context, id int64) error
	IncrementRetry(ctx context.Context, id int64, nextRetryAt string) error
	OutboxSize(ctx context.Context) (int, error)

	Close() error
}

var _ Store = (*SQLiteStore)(nil)
