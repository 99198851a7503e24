// Package sync implements the Sync Engine: the end-to-end replication
// protocol (push, pull, realtime, outbox drain, status) orchestrated
// across the registered table set via the generic table adapter.
package sync

import (
	"context"
	"time"
)

// Gateway is the narrow contract the Sync Engine needs from the Remote
// Gateway, satisfied by internal/gateway.Client in production and by a
// mock in tests. Errors returned by any method must be classified via
// internal/sync/gatewayerr.
type Gateway interface {
	// Upsert writes rows to table, using onConflict as the server-side
	// uniqueness key when non-empty.
	Upsert(ctx context.Context, table string, rows []map[string]any, onConflict string) error
	// Delete removes a row by primary key.
	Delete(ctx context.Context, table, id string) error
	// GetUpdatedAt performs the push protocol's single-row read. ok=false
	// with a nil error means the row does not exist remotely.
	GetUpdatedAt(ctx context.Context, table, id string) (updatedAt string, ok bool, err error)
	// ListAll performs the pull protocol's range read, filtered by userID
	// when userScoped is true.
	ListAll(ctx context.Context, table, userID string, userScoped bool) ([]map[string]any, error)
	// Changes opens one long-poll change-feed round trip for table, scoped
	// by userID when userScoped is true (spec §6). The returned channel is
	// closed when the round trip ends; a persistent subscription means
	// calling Changes again, which is the realtime subscription loop's job
	// rather than this interface's.
	Changes(ctx context.Context, table, userID string, userScoped bool) (<-chan Delta, error)
}

// DeltaKind tags a realtime change-feed event, replacing the loosely typed
// payload the source used (spec §9) with an explicit variant.
type DeltaKind int

const (
	DeltaInsertOrUpdate DeltaKind = iota
	DeltaDelete
)

// Delta is one realtime change-feed event for a single table.
type Delta struct {
	Table string
	Kind  DeltaKind
	New   map[string]any // present on DeltaInsertOrUpdate
	OldID string         // present on DeltaDelete
}

// State is the Sync Engine's observable lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the observable sync status record, broadcast to subscribers on
// every state transition, queue-size refresh, and unhandled error.
type Status struct {
	State       State
	QueueSize   int
	LastError   string
	LastErrorAt time.Time
}
