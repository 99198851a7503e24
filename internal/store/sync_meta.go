package store

import (
	"context"
	"database/sql"
)

// GetSyncMeta reads a single key from the local sync_meta KV table, used
// for one-shot markers like the legacy-migration sentinel.
func (s *SQLiteStore) GetSyncMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, classifyExecError(err)
	}
	return value, true, nil
}

// SetSyncMeta upserts a key/value pair in sync_meta.
func (s *SQLiteStore) SetSyncMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_meta (key, value) VALUES (?, ?)
	                                  ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return classifyExecError(err)
}
