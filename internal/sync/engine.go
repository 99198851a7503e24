package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fitsync/fitsync/internal/store"
	"github.com/fitsync/fitsync/internal/tableconfig"
)

// Clock is injected so tests can control "now" instead of depending on
// wall-clock time, matching the teacher's StoreOption-style dependency
// injection for anything that would otherwise be a hidden global.
type Clock func() time.Time

// Engine is the Sync Engine. It is constructed with explicit dependencies
// at startup (spec §9: no package-level singleton) and owns exactly one
// sync pass at a time for the process's lifetime.
type Engine struct {
	store    store.Store
	gateway  Gateway
	registry *tableconfig.Registry
	userID   func() string
	clock    Clock
	logger   *slog.Logger

	fullSyncGroup singleflight.Group
	isSyncing     atomic.Bool

	status         *statusBroadcaster
	syncComplete   *signal
	conflictIntent conflictDebouncer
}

// New constructs an Engine. userID returns the active session's user id
// (used to scope pull reads and change-feed subscriptions of user-scoped
// tables);
// passing a function rather than a fixed string lets the caller swap users
// on sign-out/sign-in without reconstructing the engine.
func New(st store.Store, gw Gateway, registry *tableconfig.Registry, userID func() string, opts ...Opt) *Engine {
	e := &Engine{
		store:        st,
		gateway:      gw,
		registry:     registry,
		userID:       userID,
		clock:        time.Now,
		logger:       slog.Default(),
		status:       newStatusBroadcaster(),
		syncComplete: newSignal(),
	}
	e.conflictIntent = newConflictDebouncer(750*time.Millisecond, e.triggerDebouncedSync)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Opt configures an Engine at construction time.
type Opt func(*Engine)

func WithClock(c Clock) Opt                { return func(e *Engine) { e.clock = c } }
func WithLogger(l *slog.Logger) Opt        { return func(e *Engine) { e.logger = l } }
func WithDebounceDelay(d time.Duration) Opt { return func(e *Engine) { e.conflictIntent.delay = d } }

// SubscribeStatus registers a status observer, synchronously delivering
// the current status.
func (e *Engine) SubscribeStatus() (<-chan Status, func()) { return e.status.Subscribe() }

// SubscribeSyncComplete registers a no-payload sync-complete observer.
func (e *Engine) SubscribeSyncComplete() (<-chan struct{}, func()) { return e.syncComplete.Subscribe() }

// Status returns the current status without subscribing.
func (e *Engine) Status() Status { return e.status.Current() }

// FullSync runs the complete replication protocol: pull all tables, push
// all tables, drain the outbox, run the cleanup pass. It is single-flight:
// concurrent callers receive the same result as the in-flight call.
func (e *Engine) FullSync(ctx context.Context) error {
	_, err, _ := e.fullSyncGroup.Do("fullsync", func() (any, error) {
		return nil, e.runFullSync(ctx)
	})
	return err
}

// TriggerSync attempts a sync but, unlike FullSync, refuses to run (instead
// of joining) when a pass is already in flight — the gate the realtime
// debounce path uses so a deferred conflict re-push never queues behind an
// ordinary sync instead of being coalesced into it.
func (e *Engine) TriggerSync(ctx context.Context) error {
	if e.isSyncing.Load() {
		e.logger.Debug("sync already in flight, skipping triggered re-push")
		return nil
	}
	return e.FullSync(ctx)
}

func (e *Engine) runFullSync(ctx context.Context) (err error) {
	e.isSyncing.Store(true)
	e.setStatus(Status{State: StateSyncing})
	defer e.isSyncing.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during full sync: %v", r)
		}
		if err != nil {
			e.logger.Error("full sync failed", "error", err)
			e.setStatus(Status{State: StateError, LastError: err.Error(), LastErrorAt: e.clock(), QueueSize: e.queueSizeOrZero(ctx)})
			// The engine never propagates the error past this boundary
			// (spec §7): callers observe failure only via status.
			err = nil
			return
		}
		e.setStatus(Status{State: StateIdle, QueueSize: e.queueSizeOrZero(ctx)})
	}()

	for _, cfg := range e.registry.All() {
		if perr := e.pullTable(ctx, cfg); perr != nil {
			e.logger.Error("pull failed for table", "table", cfg.LocalName, "error", perr)
		}
	}
	for _, cfg := range e.registry.All() {
		if perr := e.pushTable(ctx, cfg); perr != nil {
			e.logger.Error("push failed for table", "table", cfg.LocalName, "error", perr)
		}
	}
	e.drainOutbox(ctx)
	if _, cerr := e.store.Cleanup(ctx); cerr != nil {
		e.logger.Error("cleanup pass failed", "error", cerr)
	}
	return nil
}

func (e *Engine) setStatus(s Status) { e.status.Set(s) }

func (e *Engine) queueSizeOrZero(ctx context.Context) int {
	n, err := e.store.OutboxSize(ctx)
	if err != nil {
		return 0
	}
	return n
}

func (e *Engine) notifyMutation() { e.syncComplete.Fire() }
