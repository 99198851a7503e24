package store

import (
	"context"
	"fmt"
)

// Backup writes a consistent copy of the database to destPath using
// SQLite's VACUUM INTO, which is safe to run against a live connection
// without blocking readers or writers for the duration of normal use.
func (s *SQLiteStore) Backup(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return newError(CodeUnavailable, true, fmt.Errorf("vacuum into %q: %w", destPath, err))
	}
	return nil
}
