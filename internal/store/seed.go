package store

import (
	"context"
	"time"
)

// seedIDPrefix marks catalogue rows as system-originated.
const seedIDPrefix = "seed-"

type seedExercise struct {
	id, name, muscleGroup, equipment string
}

var defaultCatalogue = []seedExercise{
	{id: seedIDPrefix + "barbell-back-squat", name: "Barbell Back Squat", muscleGroup: "legs", equipment: "barbell"},
	{id: seedIDPrefix + "bench-press", name: "Bench Press", muscleGroup: "chest", equipment: "barbell"},
	{id: seedIDPrefix + "deadlift", name: "Deadlift", muscleGroup: "back", equipment: "barbell"},
	{id: seedIDPrefix + "pull-up", name: "Pull-Up", muscleGroup: "back", equipment: "bodyweight"},
	{id: seedIDPrefix + "overhead-press", name: "Overhead Press", muscleGroup: "shoulders", equipment: "barbell"},
	{id: seedIDPrefix + "plank", name: "Plank", muscleGroup: "core", equipment: "bodyweight"},
}

// seedCatalogue inserts the fixed exercise catalogue as synced=0 rows on
// first initialization only, detected by counting the exercises table.
func (s *SQLiteStore) seedCatalogue(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exercises`).Scan(&count); err != nil {
		return classifyExecError(err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyExecError(err)
	}
	defer tx.Rollback()

	for _, ex := range defaultCatalogue {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO exercises (id, name, muscle_group, equipment, updated_at, synced, deleted)
			 VALUES (?, ?, ?, ?, ?, 0, 0)`,
			ex.id, ex.name, ex.muscleGroup, ex.equipment, now,
		)
		if err != nil {
			return classifyExecError(err)
		}
	}
	return classifyExecError(tx.Commit())
}
