// Package tableconfig implements the generic table adapter: a table-agnostic
// description of how a record table participates in replication, so that
// adding a table is a data change rather than a new code path.
package tableconfig

// Transform reshapes a row's column values between the local and remote
// representations, e.g. encoding a structured payload as a JSON string
// locally while sending structured data to the gateway.
type Transform func(row map[string]any) map[string]any

// Config describes one replicated table to both the Embedded Store and the
// Sync Engine. A Config is immutable once registered; the adapter holds no
// state of its own and is handed a fresh Config on every call.
type Config struct {
	// LocalName and RemoteName are usually identical but may diverge.
	LocalName  string
	RemoteName string

	// PrimaryKey is the column treated as the row's stable id.
	PrimaryKey string

	// UserScoped means the remote table carries a user_id column and
	// range reads must filter by it. The adapter does not inject or strip
	// user_id: it is stored locally and sent as an ordinary column listed
	// in Columns.
	UserScoped bool

	// SupportsSoftDelete means the local schema has a deleted column and
	// the tombstone path applies. Disabled for append-only tables and for
	// the shared catalogue is still true (catalogue rows can be retired).
	SupportsSoftDelete bool

	// AppendOnly disables conflict checks, server-delete detection, and
	// deletes entirely. Rows are only ever inserted.
	AppendOnly bool

	// Columns is the full projection list sent on upserts, excluding the
	// control columns `synced` and `deleted`, which are never sent
	// remotely.
	Columns []string

	// OnConflict is an optional server-side uniqueness key used for
	// upserts, e.g. "user_id,summary_date" or "user_id".
	OnConflict string

	// LocalToRemote and RemoteToLocal are optional shape transforms
	// applied when crossing the wire. Nil means no transform.
	LocalToRemote Transform
	RemoteToLocal Transform
}

// ColumnSet returns Columns as a set for membership checks.
func (c Config) ColumnSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Columns))
	for _, col := range c.Columns {
		set[col] = struct{}{}
	}
	return set
}

// HasColumn reports whether name is part of the table's projection.
func (c Config) HasColumn(name string) bool {
	for _, col := range c.Columns {
		if col == name {
			return true
		}
	}
	return false
}
