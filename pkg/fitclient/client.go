// Package fitclient is the thin application-facing wrapper over the
// Embedded Store and Sync Engine, grounded on the teacher's pkg/recall
// client: one struct owning both halves, exposing domain-shaped methods
// instead of the generic schema-driven calls underneath.
package fitclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fitsync/fitsync/internal/gateway"
	"github.com/fitsync/fitsync/internal/store"
	"github.com/fitsync/fitsync/internal/sync"
	"github.com/fitsync/fitsync/internal/tableconfig"
)

// Options configures a Client.
type Options struct {
	DatabasePath string
	GatewayURL   string
	APIKey       string
	UserID       func() string
	AutoSync     bool
	SyncInterval time.Duration
}

// Client is the application-facing handle: one local SQLite store plus one
// sync engine, matching the teacher's single-struct-owns-both-halves
// shape.
type Client struct {
	store  *store.SQLiteStore
	engine *sync.Engine
	opts   Options

	mu             sync.Mutex
	closed         bool
	stopSync       chan struct{}
	realtimeCancel context.CancelFunc
}

// New constructs a Client. It does not initialize the store or perform any
// I/O; call Initialize for that.
func New(opts Options) (*Client, error) {
	if opts.DatabasePath == "" {
		return nil, errors.New("fitclient: DatabasePath is required")
	}
	if opts.UserID == nil {
		opts.UserID = func() string { return "" }
	}
	if opts.SyncInterval == 0 {
		opts.SyncInterval = 5 * time.Minute
	}

	registry := tableconfig.NewRegistry()
	if err := tableconfig.RegisterDefaults(registry); err != nil {
		return nil, err
	}

	st, err := store.New(opts.DatabasePath, registry)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(opts.GatewayURL, opts.APIKey)
	engine := sync.New(st, gw, registry, opts.UserID)

	return &Client{store: st, engine: engine, opts: opts, stopSync: make(chan struct{})}, nil
}

// Initialize runs migrations, legacy backfill, and catalogue seeding, then
// performs one foreground sync pass before returning. If AutoSync is set,
// a background sync loop is started on SyncInterval.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.store.Initialize(ctx); err != nil {
		return err
	}
	if err := c.engine.FullSync(ctx); err != nil {
		return err
	}
	if c.opts.AutoSync {
		realtimeCtx, cancel := context.WithCancel(context.Background())
		c.realtimeCancel = cancel
		c.engine.StartRealtimeSync(realtimeCtx)
		go c.syncLoop()
	}
	return nil
}

func (c *Client) syncLoop() {
	ticker := time.NewTicker(c.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSync:
			return
		case <-ticker.C:
			_ = c.engine.FullSync(context.Background())
		}
	}
}

// Store exposes the underlying Embedded Store for domain-specific reads
// and writes.
func (c *Client) Store() store.Store { return c.store }

// TriggerSync requests an immediate sync pass, joining one already in
// flight rather than queuing behind it.
func (c *Client) TriggerSync(ctx context.Context) error { return c.engine.TriggerSync(ctx) }

// SubscribeStatus observes sync status transitions.
func (c *Client) SubscribeStatus() (<-chan sync.Status, func()) { return c.engine.SubscribeStatus() }

// SubscribeSyncComplete observes locally-applied mutations from any
// source (push, pull, or realtime).
func (c *Client) SubscribeSyncComplete() (<-chan struct{}, func()) {
	return c.engine.SubscribeSyncComplete()
}

// Close stops the background sync loop (if running) and closes the store.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.opts.AutoSync {
		close(c.stopSync)
		if c.realtimeCancel != nil {
			c.realtimeCancel()
		}
		c.engine.CleanupRealtimeSync()
	}
	return c.store.Close()
}
