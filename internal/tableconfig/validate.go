package tableconfig

import "fmt"

// ValidationError represents a single field validation failure on a pushed
// or replayed row.
type ValidationError struct {
	Table   string
	RowID   string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s[%s].%s: %s", e.Table, e.RowID, e.Field, e.Message)
}

// Collector accumulates validation errors without failing on the first one,
// so a caller can report every problem with a batch in one pass.
type Collector struct {
	errors []ValidationError
}

func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

func (c *Collector) HasErrors() bool { return len(c.errors) > 0 }

func (c *Collector) Errors() []ValidationError { return c.errors }

// ValidateRow checks that a decoded payload carries every required column
// for the table (the primary key and, when applicable, user_id) before it
// is allowed to reach the store.
func ValidateRow(cfg Config, row map[string]any) []ValidationError {
	var c Collector

	id, _ := row[cfg.PrimaryKey].(string)
	if id == "" {
		c.Add(&ValidationError{Table: cfg.LocalName, Field: cfg.PrimaryKey, Message: "required"})
	}
	if cfg.UserScoped {
		if uid, _ := row["user_id"].(string); uid == "" {
			c.Add(&ValidationError{Table: cfg.LocalName, RowID: id, Field: "user_id", Message: "required for user-scoped table"})
		}
	}
	if ts, _ := row["updated_at"].(string); ts == "" {
		c.Add(&ValidationError{Table: cfg.LocalName, RowID: id, Field: "updated_at", Message: "required"})
	}
	return c.Errors()
}
