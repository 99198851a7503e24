package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fitsync/fitsync/internal/tableconfig"
)

// allColumns returns the full physical column list for a table, including
// the control columns the generic adapter never sends over the wire.
func allColumns(cfg tableconfig.Config) []string {
	cols := append([]string{}, cfg.Columns...)
	cols = append(cols, "synced")
	if cfg.SupportsSoftDelete {
		cols = append(cols, "deleted")
	}
	return cols
}

// Upsert inserts or updates a row by primary key. INSERT ... ON CONFLICT
// DO UPDATE is used rather than INSERT OR REPLACE, because several tables
// here have children keyed by foreign key (session_exercises, session_sets,
// ...): REPLACE would delete-then-reinsert the parent row and cascade
// unintended deletes onto them.
func (s *SQLiteStore) Upsert(ctx context.Context, cfg tableconfig.Config, row map[string]any, synced bool) error {
	cols := append([]string{}, cfg.Columns...)
	cols = append(cols, "synced")
	if cfg.SupportsSoftDelete {
		cols = append(cols, "deleted")
	}

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = "?"
		switch col {
		case "synced":
			args[i] = boolToInt(synced)
		case "deleted":
			args[i] = 0
		default:
			args[i] = row[col]
		}
	}

	updateCols := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		if col == cfg.PrimaryKey {
			continue
		}
		updateCols = append(updateCols, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	updateCols = append(updateCols, "synced = excluded.synced")

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		cfg.LocalName,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		cfg.PrimaryKey,
		strings.Join(updateCols, ", "),
	)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return classifyExecError(err)
	}
	return nil
}

// GetByID returns a single row by primary key. includeDeleted controls
// whether a soft-deleted tombstone is visible to the caller.
func (s *SQLiteStore) GetByID(ctx context.Context, cfg tableconfig.Config, id string, includeDeleted bool) (map[string]any, bool, error) {
	cols := allColumns(cfg)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(cols, ", "), cfg.LocalName, cfg.PrimaryKey)
	args := []any{id}
	if cfg.SupportsSoftDelete && !includeDeleted {
		query += " AND deleted = 0"
	}

	row, err := scanOneRow(s.db.QueryRowContext(ctx, query, args...), cols)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classifyExecError(err)
	}
	return row, true, nil
}

// GetAllUnsynced returns every row with synced=0, whatever its user_id: the
// store has no notion of "the active session's user", and the push layer
// does not filter by user either. A row owned by another user is pushed
// like any other and purged locally when the gateway rejects it as an
// authorization failure.
func (s *SQLiteStore) GetAllUnsynced(ctx context.Context, cfg tableconfig.Config) ([]map[string]any, error) {
	cols := allColumns(cfg)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE synced = 0", strings.Join(cols, ", "), cfg.LocalName)
	return s.queryRows(ctx, query, cols)
}

// GetAll returns every row, optionally including soft-deleted tombstones,
// optionally ordered.
func (s *SQLiteStore) GetAll(ctx context.Context, cfg tableconfig.Config, includeDeleted bool, orderBy string) ([]map[string]any, error) {
	cols := allColumns(cfg)
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), cfg.LocalName)
	if cfg.SupportsSoftDelete && !includeDeleted {
		query += " WHERE deleted = 0"
	}
	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}
	return s.queryRows(ctx, query, cols)
}

// GetAllIDs returns just the primary keys of every non-tombstoned row, used
// by the puller's authoritative-delete sweep.
func (s *SQLiteStore) GetAllIDs(ctx context.Context, cfg tableconfig.Config) (map[string]struct{}, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", cfg.PrimaryKey, cfg.LocalName)
	if cfg.SupportsSoftDelete {
		query += " WHERE deleted = 0"
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyExecError(err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classifyExecError(err)
		}
		ids[id] = struct{}{}
	}
	return ids, classifyExecError(rows.Err())
}

// UpdateSyncFlag flips the synced column for a single row.
func (s *SQLiteStore) UpdateSyncFlag(ctx context.Context, cfg tableconfig.Config, id string, synced bool) error {
	query := fmt.Sprintf("UPDATE %s SET synced = ? WHERE %s = ?", cfg.LocalName, cfg.PrimaryKey)
	_, err := s.db.ExecContext(ctx, query, boolToInt(synced), id)
	return classifyExecError(err)
}

// SoftDelete marks a row as a pending-delete tombstone: deleted=1,
// synced=0 (invariant 2). Only valid on tables that support soft delete.
func (s *SQLiteStore) SoftDelete(ctx context.Context, cfg tableconfig.Config, id, updatedAt string) error {
	if !cfg.SupportsSoftDelete {
		return newError(CodeConstraintViolation, false, fmt.Errorf("table %s does not support soft delete", cfg.LocalName))
	}
	query := fmt.Sprintf("UPDATE %s SET deleted = 1, synced = 0, updated_at = ? WHERE %s = ?", cfg.LocalName, cfg.PrimaryKey)
	_, err := s.db.ExecContext(ctx, query, updatedAt, id)
	return classifyExecError(err)
}

// HardDelete physically removes a row, used by the cleanup pass and by
// authorization-purge handling.
func (s *SQLiteStore) HardDelete(ctx context.Context, cfg tableconfig.Config, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", cfg.LocalName, cfg.PrimaryKey)
	_, err := s.db.ExecContext(ctx, query, id)
	return classifyExecError(err)
}

// Cleanup deletes every row with deleted=1 AND synced=1 across every
// soft-delete-capable table in the registry. Called at the tail of every
// successful FullSync.
func (s *SQLiteStore) Cleanup(ctx context.Context) (int64, error) {
	var total int64
	for _, cfg := range s.registry.All() {
		if !cfg.SupportsSoftDelete {
			continue
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE deleted = 1 AND synced = 1", cfg.LocalName)
		res, err := s.db.ExecContext(ctx, query)
		if err != nil {
			return total, classifyExecError(err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *SQLiteStore) queryRows(ctx context.Context, query string, cols []string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyExecError(err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row, err := scanRowInto(rows, cols)
		if err != nil {
			return nil, classifyExecError(err)
		}
		out = append(out, row)
	}
	return out, classifyExecError(rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOneRow(row *sql.Row, cols []string) (map[string]any, error) {
	return scanRowInto(row, cols)
}

func scanRowInto(s scanner, cols []string) (map[string]any, error) {
	dest := make([]any, len(cols))
	holders := make([]any, len(cols))
	for i := range dest {
		dest[i] = &holders[i]
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = normalizeValue(holders[i])
	}
	return row, nil
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func classifyExecError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint") {
		return newError(CodeConstraintViolation, false, err)
	}
	if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
		return newError(CodeSchemaMismatch, false, err)
	}
	return newError(CodeUnavailable, true, err)
}
