package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// legacyMigrationDoneKey is the one-shot sentinel tracked in sync_meta,
// analogous to the teacher's plugin_migrations tracking table but scoped
// to a single migration that needs its own bespoke translation logic
// rather than a bare SQL statement.
const legacyMigrationDoneKey = "legacy_migration_done"

type legacyRow struct {
	id, userID, exerciseName, loggedAt string
	sets, reps                         int
	weightKg                           float64
}

// runLegacyMigration translates every row of legacy_workout_log into a
// (workout_sessions, session_exercises, session_sets) triple, preserving
// the legacy id as the session root. A legacy row whose exercise name has
// no catalogue match is skipped, not fabricated, per the specification's
// preserved "skip" policy. Runs exactly once per install.
func (s *SQLiteStore) runLegacyMigration(ctx context.Context) error {
	_, done, err := s.GetSyncMeta(ctx, legacyMigrationDoneKey)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	legacy, err := s.readLegacyRows(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range legacy {
		exerciseID, found, err := s.findCatalogueIDByName(ctx, r.exerciseName)
		if err != nil {
			return err
		}
		if !found {
			s.logger.Warn("legacy migration skipping row with no catalogue match", "legacy_id", r.id, "exercise_name", r.exerciseName)
			continue
		}
		if err := s.migrateLegacyRow(ctx, r, exerciseID, now); err != nil {
			return err
		}
	}

	return s.SetSyncMeta(ctx, legacyMigrationDoneKey, now)
}

func (s *SQLiteStore) readLegacyRows(ctx context.Context) ([]legacyRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, exercise_name, sets, reps, weight_kg, logged_at FROM legacy_workout_log`)
	if err != nil {
		return nil, classifyExecError(err)
	}
	defer rows.Close()

	var out []legacyRow
	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.id, &r.userID, &r.exerciseName, &r.sets, &r.reps, &r.weightKg, &r.loggedAt); err != nil {
			return nil, classifyExecError(err)
		}
		out = append(out, r)
	}
	return out, classifyExecError(rows.Err())
}

func (s *SQLiteStore) findCatalogueIDByName(ctx context.Context, name string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM exercises WHERE name = ? AND deleted = 0`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classifyExecError(err)
	}
	return id, true, nil
}

// migrateLegacyRow writes the session/session-exercise/session-set triple
// for one legacy row inside its own transaction, so a failure partway
// through never leaves an orphaned child row.
func (s *SQLiteStore) migrateLegacyRow(ctx context.Context, r legacyRow, exerciseID, now string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyExecError(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workout_sessions (id, user_id, template_id, started_at, ended_at, notes, updated_at, synced, deleted)
		 VALUES (?, ?, NULL, ?, ?, '', ?, 0, 0)`,
		r.id, r.userID, r.loggedAt, r.loggedAt, now,
	); err != nil {
		return classifyExecError(err)
	}

	sessionExerciseID := ulid.Make().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_exercises (id, session_id, exercise_id, sort_order, updated_at, synced, deleted)
		 VALUES (?, ?, ?, 0, ?, 0, 0)`,
		sessionExerciseID, r.id, exerciseID, now,
	); err != nil {
		return classifyExecError(err)
	}

	setCount := r.sets
	if setCount < 1 {
		setCount = 1
	}
	for i := 0; i < setCount; i++ {
		setID := ulid.Make().String()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_sets (id, session_exercise_id, sort_order, reps, weight_kg, rpe, updated_at, synced, deleted)
			 VALUES (?, ?, ?, ?, ?, 0, ?, 0, 0)`,
			setID, sessionExerciseID, i, r.reps, r.weightKg, now,
		); err != nil {
			return classifyExecError(err)
		}
	}

	return classifyExecError(tx.Commit())
}
