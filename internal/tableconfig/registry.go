package tableconfig

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// identifierRegex guards every table and column name that ends up
// interpolated into dynamic SQL. Registration fails closed rather than
// trusting caller-supplied strings.
var identifierRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Registry is a thread-safe collection of table configurations keyed by
// LocalName. The Sync Engine and Embedded Store both consume it to drive
// the generic adapter across the registered table set.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]Config
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]Config)}
}

// Register validates and adds a table configuration. It returns an error
// if the table name or any column/conflict-key identifier would be unsafe
// to interpolate into SQL, or if the table is already registered.
func (r *Registry) Register(cfg Config) error {
	if err := validateIdentifier("table", cfg.LocalName); err != nil {
		return err
	}
	if err := validateIdentifier("column", cfg.PrimaryKey); err != nil {
		return err
	}
	for _, col := range cfg.Columns {
		if err := validateIdentifier("column", col); err != nil {
			return err
		}
	}
	if cfg.OnConflict != "" {
		for _, key := range splitConflictKey(cfg.OnConflict) {
			if err := validateIdentifier("conflict key", key); err != nil {
				return err
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[cfg.LocalName]; exists {
		return fmt.Errorf("tableconfig: table %q already registered", cfg.LocalName)
	}
	r.tables[cfg.LocalName] = cfg
	return nil
}

// Get returns the configuration for a table by its local name.
func (r *Registry) Get(localName string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.tables[localName]
	return cfg, ok
}

// MustGet panics if the table is not registered. Intended for startup-time
// wiring where an unregistered table is a programming error.
func (r *Registry) MustGet(localName string) Config {
	cfg, ok := r.Get(localName)
	if !ok {
		panic(fmt.Sprintf("tableconfig: table %q not registered", localName))
	}
	return cfg
}

// All returns every registered configuration. The slice order is
// unspecified; the Sync Engine treats cross-table ordering as insignificant
// per the concurrency model.
func (r *Registry) All() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, 0, len(r.tables))
	for _, cfg := range r.tables {
		out = append(out, cfg)
	}
	return out
}

func validateIdentifier(kind, name string) error {
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("tableconfig: invalid %s identifier %q", kind, name)
	}
	return nil
}

func splitConflictKey(key string) []string {
	raw := strings.Split(key, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
