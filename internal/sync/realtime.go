package sync

import (
	"context"
	"sync"
	"time"

	"github.com/fitsync/fitsync/internal/tableconfig"
)

// conflictDebouncer implements the conflict-triggered re-push debounce
// (spec §4.2): a single-armed timer, not a ticker, so repeated conflicts
// during the window coalesce into exactly one re-push instead of queuing
// one per conflict.
type conflictDebouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fire  func()
}

func newConflictDebouncer(delay time.Duration, fire func()) conflictDebouncer {
	return conflictDebouncer{delay: delay, fire: fire}
}

// Schedule arms (or re-arms) the debounce timer. Concurrent calls within
// the window collapse into a single eventual fire.
func (d *conflictDebouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Reset(d.delay)
		return
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		d.fire()
	})
}

// Cancel stops a pending debounce, used by CleanupRealtimeSync.
func (d *conflictDebouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (e *Engine) triggerDebouncedSync() {
	if err := e.TriggerSync(context.Background()); err != nil {
		e.logger.Error("debounced re-push failed", "error", err)
	}
}

// ApplyDelta handles one realtime change-feed event (spec §4.2's realtime
// protocol). Deltas are applied in the order the feed delivers them; the
// engine does not reorder or batch them.
func (e *Engine) ApplyDelta(ctx context.Context, delta Delta) {
	cfg, ok := e.registry.Get(delta.Table)
	if !ok {
		e.logger.Warn("realtime delta for unregistered table", "table", delta.Table)
		return
	}

	if delta.Kind == DeltaDelete {
		if err := e.store.HardDelete(ctx, cfg, delta.OldID); err != nil {
			e.logger.Error("failed to apply realtime delete", "table", cfg.LocalName, "id", delta.OldID, "error", err)
			return
		}
		e.notifyMutation()
		return
	}

	remote := delta.New
	if cfg.RemoteToLocal != nil {
		remote = cfg.RemoteToLocal(remote)
	}
	id, _ := remote[cfg.PrimaryKey].(string)
	if id == "" {
		return
	}

	local, found, err := e.store.GetByID(ctx, cfg, id, true)
	if err != nil {
		e.logger.Error("failed to read local row for realtime delta", "table", cfg.LocalName, "id", id, "error", err)
		return
	}
	if found && !truthy(local["synced"]) {
		// Local unsynced edit exists: defer and schedule a debounced
		// re-push rather than overwriting it with the remote value.
		e.conflictIntent.Schedule()
		return
	}

	if err := e.store.Upsert(ctx, cfg, remote, true); err != nil {
		e.logger.Error("failed to apply realtime delta", "table", cfg.LocalName, "id", id, "error", err)
		return
	}
	e.notifyMutation()
}

// CleanupRealtimeSync cancels the debounce timer only. The change-feed
// goroutines started by StartRealtimeSync are not stopped here; they stop
// when the ctx passed to StartRealtimeSync is cancelled.
func (e *Engine) CleanupRealtimeSync() {
	e.conflictIntent.Cancel()
}

// realtimeReconnectDelay is the pause between one change-feed round trip
// ending and the next one starting, whether it ended because the server
// closed the connection or because the attempt to open it failed.
const realtimeReconnectDelay = 2 * time.Second

// StartRealtimeSync opens one change-feed subscription per registered
// table (spec §4.2: "for each replicated table the engine opens one named
// subscription scoped by user_id when applicable") and applies every
// delta it receives via ApplyDelta. It returns immediately; each
// subscription runs in its own goroutine until ctx is cancelled,
// reconnecting on its own schedule when a round trip ends. Calling it again
// starts a further set of goroutines; there is no duplicate-call guard.
func (e *Engine) StartRealtimeSync(ctx context.Context) {
	for _, cfg := range e.registry.All() {
		go e.subscribeTable(ctx, cfg)
	}
}

func (e *Engine) subscribeTable(ctx context.Context, cfg tableconfig.Config) {
	for {
		if ctx.Err() != nil {
			return
		}

		userID := ""
		if cfg.UserScoped {
			userID = e.userID()
		}
		deltas, err := e.gateway.Changes(ctx, cfg.RemoteName, userID, cfg.UserScoped)
		if err != nil {
			e.logger.Error("change-feed subscription failed", "table", cfg.LocalName, "error", err)
			if !waitOrDone(ctx, realtimeReconnectDelay) {
				return
			}
			continue
		}

		for delta := range deltas {
			delta.Table = cfg.LocalName
			e.ApplyDelta(ctx, delta)
		}

		if !waitOrDone(ctx, realtimeReconnectDelay) {
			return
		}
	}
}

// waitOrDone pauses for d, reporting false (without having waited) if ctx
// is cancelled first.
func waitOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
