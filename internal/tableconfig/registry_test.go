package tableconfig

import "testing"

func TestRegisterDefaultsIsReusableAcrossAllTables(t *testing.T) {
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}

	all := r.All()
	if len(all) != len(defaultConfigs()) {
		t.Fatalf("got %d tables, want %d", len(all), len(defaultConfigs()))
	}

	cfg, ok := r.Get("workout_events")
	if !ok {
		t.Fatal("workout_events not registered")
	}
	if !cfg.AppendOnly {
		t.Error("workout_events should be append-only")
	}
	if cfg.SupportsSoftDelete {
		t.Error("append-only table must not support soft delete")
	}
}

func TestRegisterRejectsUnsafeIdentifier(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Config{LocalName: "bad; drop table x", PrimaryKey: "id"})
	if err == nil {
		t.Fatal("expected error for unsafe table name")
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	cfg := Config{LocalName: "exercises", PrimaryKey: "id", Columns: []string{"id"}}
	if err := r.Register(cfg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(cfg); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}

func TestMustGetPanicsOnUnknownTable(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewRegistry().MustGet("nope")
}
