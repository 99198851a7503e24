package store

import (
	"context"
	"database/sql"
)

// Op identifies the kind of operation a durable outbox entry replays.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// OutboxEntry is a durable, append-ordered retry-queue row. Payload is kept
// as an opaque string at rest and decoded only at drain time using the
// table configuration, per the specification's explicit instruction not to
// decode JSON at enqueue time.
type OutboxEntry struct {
	ID          int64
	TableName   string
	Op          Op
	RecordID    string
	Payload     string
	CreatedAt   string
	RetryCount  int
	NextRetryAt sql.NullString
}

// Enqueue appends a retry-queue entry, or refreshes the payload of an
// existing one. Called by the push path every time an inline attempt fails
// with any error other than an authorization rejection (or a malformed id
// on health_summaries), which for a row that keeps failing means every
// FullSync pass calls this again for the same (table, record_id) — so the
// insert is an upsert keyed on that pair rather than a plain append:
// without it, a row stuck failing for N passes would queue N duplicate
// entries instead of advancing the retry count on one. retry_count and
// next_retry_at are left untouched on conflict; only the drain loop
// advances those.
func (s *SQLiteStore) Enqueue(ctx context.Context, table string, op Op, recordID, payload, createdAt string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox_entries (table_name, op, record_id, payload, created_at, retry_count, next_retry_at)
		 VALUES (?, ?, ?, ?, ?, 0, NULL)
		 ON CONFLICT(table_name, record_id) DO UPDATE SET
		   op = excluded.op,
		   payload = excluded.payload`,
		table, op, recordID, payload, createdAt,
	)
	return classifyExecError(err)
}

// Drain returns outbox entries ordered by coalesce(next_retry_at,
// created_at) ASC, id ASC. When readyOnly is true, entries whose
// next_retry_at is still in the future are excluded; the caller (the Sync
// Engine's drain loop) is expected to pass the current time.
func (s *SQLiteStore) Drain(ctx context.Context, readyOnly bool, nowISO string) ([]OutboxEntry, error) {
	query := `SELECT id, table_name, op, record_id, payload, created_at, retry_count, next_retry_at
	          FROM outbox_entries`
	args := []any{}
	if readyOnly {
		query += ` WHERE next_retry_at IS NULL OR next_retry_at <= ?`
		args = append(args, nowISO)
	}
	query += ` ORDER BY coalesce(next_retry_at, created_at) ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyExecError(err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.TableName, &e.Op, &e.RecordID, &e.Payload, &e.CreatedAt, &e.RetryCount, &e.NextRetryAt); err != nil {
			return nil, classifyExecError(err)
		}
		entries = append(entries, e)
	}
	return entries, classifyExecError(rows.Err())
}

// RemoveOutboxEntry deletes an entry after a successful replay or after
// dead-lettering.
func (s *SQLiteStore) RemoveOutboxEntry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbox_entries WHERE id = ?`, id)
	return classifyExecError(err)
}

// IncrementRetry bumps retry_count and sets the next attempt time after a
// failed replay.
func (s *SQLiteStore) IncrementRetry(ctx context.Context, id int64, nextRetryAt string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_entries SET retry_count = retry_count + 1, next_retry_at = ? WHERE id = ?`,
		nextRetryAt, id,
	)
	return classifyExecError(err)
}

// OutboxSize reports the current queue depth, used to populate the
// observable sync status's QueueSize field.
func (s *SQLiteStore) OutboxSize(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_entries`).Scan(&n)
	return n, classifyExecError(err)
}
