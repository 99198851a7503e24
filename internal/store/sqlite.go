package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
	"golang.org/x/sync/singleflight"

	"github.com/fitsync/fitsync/internal/tableconfig"
	"github.com/fitsync/fitsync/migrations"
	"github.com/pressly/goose/v3"
)

// initRetrySchedule is the Embedded Store's initialization back-off
// schedule: after an immediate first attempt, up to three retries, waiting
// roughly 100ms, 300ms, 900ms before each.
var initRetrySchedule = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond}

// SQLiteStore is the Embedded Store: a durable, typed, per-table CRUD
// surface plus the retry outbox, backed by a single on-disk (or in-memory)
// SQLite database. It has no awareness of the network.
type SQLiteStore struct {
	db       *sql.DB
	dbPath   string
	registry *tableconfig.Registry
	logger   *slog.Logger

	initGroup singleflight.Group
	initDone  bool
}

// Option configures a SQLiteStore at construction time.
type Option func(*SQLiteStore)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) { s.logger = l }
}

// New opens (without yet initializing) a SQLiteStore at dbPath against the
// given table registry. Pass ":memory:" for an ephemeral store, matching
// the teacher's in-memory test mode.
func New(dbPath string, registry *tableconfig.Registry, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, newError(CodeInitFailed, false, fmt.Errorf("open database: %w", err))
	}

	// A single logical connection: SQLite serializes writers anyway, and a
	// single conn avoids "database is locked" errors under WAL without a
	// busy-timeout race, matching the teacher's :memory: handling
	// generalized to the on-disk case as the specification requires.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:       db,
		dbPath:   dbPath,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, newError(CodeInitFailed, false, err)
	}

	return s, nil
}

func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

// Initialize runs the idempotent initialization contract: apply schema
// migrations, run the one-shot legacy migration, and seed the catalogue.
// Concurrent callers join the same in-flight call via singleflight.
// ensureInitialized wraps this with up to three retries on initRetrySchedule.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	_, err, _ := s.initGroup.Do("initialize", func() (any, error) {
		return nil, s.ensureInitialized(ctx)
	})
	return err
}

func (s *SQLiteStore) ensureInitialized(ctx context.Context) error {
	if s.initDone {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= len(initRetrySchedule); attempt++ {
		if attempt > 0 {
			delay := initRetrySchedule[attempt-1]
			s.logger.Warn("store init retrying", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return newError(CodeInitFailed, false, ctx.Err())
			}
		}
		if err := s.initializeOnce(ctx); err != nil {
			lastErr = err
			continue
		}
		s.initDone = true
		return nil
	}
	return newError(CodeInitFailed, true, fmt.Errorf("initialization failed after %d attempts: %w", len(initRetrySchedule)+1, lastErr))
}

func (s *SQLiteStore) initializeOnce(ctx context.Context) error {
	if err := s.runMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if err := s.runLegacyMigration(ctx); err != nil {
		return fmt.Errorf("legacy migration: %w", err)
	}
	if err := s.ensureColumns(ctx); err != nil {
		return fmt.Errorf("ensure columns: %w", err)
	}
	if err := s.seedCatalogue(ctx); err != nil {
		return fmt.Errorf("seed catalogue: %w", err)
	}
	return nil
}

// runMigrations applies all pending schema migrations using goose against
// the embedded SQL files.
func (s *SQLiteStore) runMigrations() error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// ensureColumns runs the best-effort schema-evolution sweep (spec §4.1)
// across every registered table: a column the table config declares but
// the physical schema is missing gets added with TEXT affinity (SQLite's
// dynamic typing means affinity, not a real constraint, is all a
// best-effort ALTER can promise), and a physical column the config
// doesn't know about is logged as drift rather than touched. This exists
// for a store that was initialized against an older registry and is
// opening against a newer one without a migration in between; real schema
// changes still belong in migrations/.
func (s *SQLiteStore) ensureColumns(ctx context.Context) error {
	for _, cfg := range s.registry.All() {
		physical, err := s.tableColumns(ctx, cfg.LocalName)
		if err != nil {
			return fmt.Errorf("inspect columns for %s: %w", cfg.LocalName, err)
		}
		for col := range cfg.ColumnSet() {
			if _, ok := physical[col]; !ok {
				s.AddColumnIfMissing(cfg.LocalName, col, "TEXT")
			}
		}
		for col := range physical {
			if col == "synced" || col == "deleted" {
				continue
			}
			if !cfg.HasColumn(col) {
				s.logger.Debug("physical column not declared in table config", "table", cfg.LocalName, "column", col)
			}
		}
	}
	return nil
}

// tableColumns introspects a table's physical columns via PRAGMA
// table_info. table is always a registry-validated identifier, never
// caller input, so interpolating it is safe.
func (s *SQLiteStore) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

// AddColumnIfMissing attempts a best-effort ALTER TABLE ADD COLUMN,
// swallowing the "duplicate column" case silently and logging (without
// failing initialization) any other ALTER failure.
func (s *SQLiteStore) AddColumnIfMissing(table, column, ddl string) {
	_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl))
	if err == nil {
		return
	}
	if isDuplicateColumnError(err) {
		return
	}
	s.logger.Warn("best-effort column addition failed", "table", table, "column", column, "error", err)
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
