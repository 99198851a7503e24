package gatewaytest

import (
	"regexp"
	"sort"
	"sync"

	"github.com/fitsync/fitsync/internal/tableconfig"
)

// ulidPattern approximates a Crockford base32 ULID: 26 characters, the
// alphabet excluding I L O U. health_summaries is the one table the
// engine still evicts on a malformed-identifier rejection (legacy
// pre-ULID rows); every other table's ids are accepted as opaque strings.
var ulidPattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

// changeEvent is one queued change-feed line, mirroring the wire shape
// internal/gateway.Client decodes: `{event_type, new, old}`.
type changeEvent struct {
	table     string
	eventType string
	new       map[string]any
	old       map[string]any
}

// memoryStore is the mock Remote Gateway's backing data: one row set per
// table, keyed by primary key, plus a per-table backlog of change events
// for the mock's changesFeed handler to drain.
type memoryStore struct {
	mu       sync.RWMutex
	tables   map[string]map[string]map[string]any
	changes  map[string][]changeEvent
	authUser string
	registry *tableconfig.Registry
}

func newMemoryStore(authUser string, registry *tableconfig.Registry) *memoryStore {
	return &memoryStore{
		tables:   make(map[string]map[string]map[string]any),
		changes:  make(map[string][]changeEvent),
		authUser: authUser,
		registry: registry,
	}
}

func (m *memoryStore) table(name string) map[string]map[string]any {
	t, ok := m.tables[name]
	if !ok {
		t = make(map[string]map[string]any)
		m.tables[name] = t
	}
	return t
}

// authorize reports whether row may be written/read by the mock's single
// configured user. A row with no user_id field is table-unscoped and
// always allowed.
func (m *memoryStore) authorize(row map[string]any) bool {
	uid, ok := row["user_id"].(string)
	if !ok || uid == "" {
		return true
	}
	return uid == m.authUser
}

func isMalformedID(table, id string) bool {
	return table == "health_summaries" && !ulidPattern.MatchString(id)
}

func (m *memoryStore) upsert(table string, row map[string]any) (rejected string) {
	id, _ := row["id"].(string)
	if isMalformedID(table, id) {
		return typeMalformedID
	}
	if cfg, ok := m.registry.Get(table); ok {
		if errs := tableconfig.ValidateRow(cfg, row); len(errs) > 0 {
			return typeBadRequest
		}
	}
	if !m.authorize(row) {
		return typePermissionDenied
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table(table)[id] = row
	m.recordChange(table, changeEvent{table: table, eventType: "update", new: row})
	return ""
}

func (m *memoryStore) delete(table, id string) (rejected string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isMalformedID(table, id) {
		return typeMalformedID
	}
	old, existed := m.table(table)[id]
	delete(m.table(table), id)
	if existed {
		m.recordChange(table, changeEvent{table: table, eventType: "delete", old: old})
	}
	return ""
}

// recordChange appends to a table's change backlog. Callers must hold mu.
func (m *memoryStore) recordChange(table string, ev changeEvent) {
	m.changes[table] = append(m.changes[table], ev)
}

// drainChanges removes and returns every queued change for table, filtered
// to userID's rows when userScoped is true. A real change feed would hold
// the request open for new events; this mock answers with whatever is
// already queued and lets the caller reconnect for more, same as the
// production long-poll contract from the subscriber's point of view.
func (m *memoryStore) drainChanges(table, userID string, userScoped bool) []changeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.changes[table]
	m.changes[table] = nil
	if !userScoped {
		return pending
	}
	out := make([]changeEvent, 0, len(pending))
	for _, ev := range pending {
		row := ev.new
		if row == nil {
			row = ev.old
		}
		if uid, _ := row["user_id"].(string); uid == userID {
			out = append(out, ev)
		}
	}
	return out
}

func (m *memoryStore) getUpdatedAt(table, id string) (string, bool, string) {
	if isMalformedID(table, id) {
		return "", false, typeMalformedID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.table(table)[id]
	if !ok {
		return "", false, typeNotFound
	}
	if !m.authorize(row) {
		return "", false, typePermissionDenied
	}
	updatedAt, _ := row["updated_at"].(string)
	return updatedAt, true, ""
}

func (m *memoryStore) listAll(table, userID string, userScoped bool) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]map[string]any, 0, len(m.table(table)))
	for _, row := range m.table(table) {
		if userScoped {
			if uid, _ := row["user_id"].(string); uid != userID {
				continue
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		ci, _ := rows[i]["created_at"].(string)
		cj, _ := rows[j]["created_at"].(string)
		return ci > cj
	})
	return rows
}
