package tableconfig

// RegisterDefaults registers every record table named in the data model
// into r. Called once at startup by cmd/fitsyncd before the Embedded Store
// and Sync Engine are constructed.
func RegisterDefaults(r *Registry) error {
	for _, cfg := range defaultConfigs() {
		if err := r.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}

func defaultConfigs() []Config {
	return []Config{
		{
			LocalName:          "meal_entries",
			RemoteName:         "meal_entries",
			PrimaryKey:         "id",
			UserScoped:         true,
			SupportsSoftDelete: true,
			Columns:            []string{"id", "user_id", "logged_at", "description", "calories", "protein_g", "carbs_g", "fat_g", "updated_at"},
		},
		{
			LocalName:          "exercise_entries",
			RemoteName:         "exercise_entries",
			PrimaryKey:         "id",
			UserScoped:         true,
			SupportsSoftDelete: true,
			Columns:            []string{"id", "user_id", "logged_at", "exercise_id", "sets", "reps", "weight_kg", "updated_at"},
		},
		{
			LocalName:          "health_summaries",
			RemoteName:         "health_summaries",
			PrimaryKey:         "id",
			UserScoped:         true,
			SupportsSoftDelete: true,
			OnConflict:         "user_id,summary_date",
			Columns:            []string{"id", "user_id", "summary_date", "steps", "active_calories", "resting_heart_rate", "sleep_minutes", "updated_at"},
		},
		{
			LocalName:          "nutrition_targets",
			RemoteName:         "nutrition_targets",
			PrimaryKey:         "id",
			UserScoped:         true,
			SupportsSoftDelete: true,
			OnConflict:         "user_id",
			Columns:            []string{"id", "user_id", "calorie_target", "protein_target_g", "carb_target_g", "fat_target_g", "updated_at"},
		},
		{
			LocalName:          "workout_sessions",
			RemoteName:         "workout_sessions",
			PrimaryKey:         "id",
			UserScoped:         true,
			SupportsSoftDelete: true,
			Columns:            []string{"id", "user_id", "template_id", "started_at", "ended_at", "notes", "updated_at"},
		},
		{
			LocalName:          "session_exercises",
			RemoteName:         "session_exercises",
			PrimaryKey:         "id",
			UserScoped:         false,
			SupportsSoftDelete: true,
			Columns:            []string{"id", "session_id", "exercise_id", "sort_order", "updated_at"},
		},
		{
			LocalName:          "session_sets",
			RemoteName:         "session_sets",
			PrimaryKey:         "id",
			UserScoped:         false,
			SupportsSoftDelete: true,
			Columns:            []string{"id", "session_exercise_id", "sort_order", "reps", "weight_kg", "rpe", "updated_at"},
		},
		{
			LocalName:          "workout_templates",
			RemoteName:         "workout_templates",
			PrimaryKey:         "id",
			UserScoped:         true,
			SupportsSoftDelete: true,
			Columns:            []string{"id", "user_id", "name", "updated_at"},
		},
		{
			LocalName:          "template_exercises",
			RemoteName:         "template_exercises",
			PrimaryKey:         "id",
			UserScoped:         false,
			SupportsSoftDelete: true,
			Columns:            []string{"id", "template_id", "exercise_id", "sort_order", "updated_at"},
		},
		{
			LocalName:          "template_sets",
			RemoteName:         "template_sets",
			PrimaryKey:         "id",
			UserScoped:         false,
			SupportsSoftDelete: true,
			Columns:            []string{"id", "template_exercise_id", "sort_order", "reps", "weight_kg", "updated_at"},
		},
		{
			LocalName:  "workout_events",
			RemoteName: "workout_events",
			PrimaryKey: "id",
			UserScoped: true,
			AppendOnly: true,
			Columns:    []string{"id", "user_id", "session_id", "event_type", "payload", "occurred_at", "updated_at"},
		},
		{
			LocalName:          "exercises",
			RemoteName:         "exercises",
			PrimaryKey:         "id",
			UserScoped:         false,
			SupportsSoftDelete: true,
			Columns:            []string{"id", "name", "muscle_group", "equipment", "updated_at"},
		},
	}
}
