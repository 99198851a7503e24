package sync

import (
	"context"
	"sync"

	"github.com/fitsync/fitsync/internal/tableconfig"

	"github.com/fitsync/fitsync/internal/store"
)

// fakeStore is an in-memory stand-in for store.Store, built the way the
// teacher's worker package mocks its store dependencies: a plain struct
// implementing the interface directly, with mutex-guarded state and
// error-injection fields rather than a generated mock.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]any
	outbox []store.OutboxEntry
	nextID int64

	cleanupCalls  int
	cleanupErr    error
	hardDeleted   []string
	syncFlagCalls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]map[string]map[string]any)}
}

func (f *fakeStore) table(name string) map[string]map[string]any {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]any)
		f.tables[name] = t
	}
	return t
}

func (f *fakeStore) seed(table string, row map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := row["id"].(string)
	f.table(table)[id] = cloneRow(row)
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func (f *fakeStore) Initialize(ctx context.Context) error { return nil }

func (f *fakeStore) Upsert(ctx context.Context, cfg tableconfig.Config, row map[string]any, synced bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := row[cfg.PrimaryKey].(string)
	stored := cloneRow(row)
	stored["synced"] = synced
	f.table(cfg.LocalName)[id] = stored
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, cfg tableconfig.Config, id string, includeDeleted bool) (map[string]any, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.table(cfg.LocalName)[id]
	if !ok {
		return nil, false, nil
	}
	if !includeDeleted && truthy(row["deleted"]) {
		return nil, false, nil
	}
	return cloneRow(row), true, nil
}

func (f *fakeStore) GetAllUnsynced(ctx context.Context, cfg tableconfig.Config) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, row := range f.table(cfg.LocalName) {
		if !truthy(row["synced"]) {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

func (f *fakeStore) GetAll(ctx context.Context, cfg tableconfig.Config, includeDeleted bool, orderBy string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, row := range f.table(cfg.LocalName) {
		if !includeDeleted && truthy(row["deleted"]) {
			continue
		}
		out = append(out, cloneRow(row))
	}
	return out, nil
}

func (f *fakeStore) GetAllIDs(ctx context.Context, cfg tableconfig.Config) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{})
	for id := range f.table(cfg.LocalName) {
		out[id] = struct{}{}
	}
	return out, nil
}

func (f *fakeStore) UpdateSyncFlag(ctx context.Context, cfg tableconfig.Config, id string, synced bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncFlagCalls = append(f.syncFlagCalls, id)
	if row, ok := f.table(cfg.LocalName)[id]; ok {
		row["synced"] = synced
	}
	return nil
}

func (f *fakeStore) SoftDelete(ctx context.Context, cfg tableconfig.Config, id, updatedAt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.table(cfg.LocalName)[id]; ok {
		row["deleted"] = true
		row["synced"] = false
		row["updated_at"] = updatedAt
	}
	return nil
}

func (f *fakeStore) HardDelete(ctx context.Context, cfg tableconfig.Config, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hardDeleted = append(f.hardDeleted, id)
	delete(f.table(cfg.LocalName), id)
	return nil
}

func (f *fakeStore) Cleanup(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	return 0, f.cleanupErr
}

func (f *fakeStore) Enqueue(ctx context.Context, table string, op store.Op, recordID, payload, createdAt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.outbox {
		if e.TableName == table && e.RecordID == recordID {
			f.outbox[i].Op = op
			f.outbox[i].Payload = payload
			return nil
		}
	}
	f.nextID++
	f.outbox = append(f.outbox, store.OutboxEntry{
		ID: f.nextID, TableName: table, Op: op, RecordID: recordID, Payload: payload, CreatedAt: createdAt,
	})
	return nil
}

func (f *fakeStore) Drain(ctx context.Context, readyOnly bool, nowISO string) ([]store.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.OutboxEntry, 0, len(f.outbox))
	for _, e := range f.outbox {
		if readyOnly && e.NextRetryAt.Valid && e.NextRetryAt.String > nowISO {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) RemoveOutboxEntry(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.outbox {
		if e.ID == id {
			f.outbox = append(f.outbox[:i], f.outbox[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) IncrementRetry(ctx context.Context, id int64, nextRetryAt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.outbox {
		if f.outbox[i].ID == id {
			f.outbox[i].RetryCount++
			f.outbox[i].NextRetryAt.String = nextRetryAt
			f.outbox[i].NextRetryAt.Valid = true
		}
	}
	return nil
}

func (f *fakeStore) OutboxSize(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.outbox), nil
}

func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)

// fakeGateway is a hand-written Gateway double, tracking calls the way the
// teacher's mockEmbedder tracks invocation counts, plus per-id error
// injection for exercising the push/pull error paths.
type fakeGateway struct {
	mu     sync.Mutex
	remote map[string]map[string]map[string]any

	upsertErr      map[string]error
	deleteErr      map[string]error
	getUpdatedAtErr map[string]error
	listAllErr     error

	upsertCalls       []string
	deleteCalls       []string
	getUpdatedAtCalls []string
	listAllCalls      int

	changesQueue map[string][]Delta
	changesErr   error
	changesCalls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		remote:          make(map[string]map[string]map[string]any),
		upsertErr:       make(map[string]error),
		deleteErr:       make(map[string]error),
		getUpdatedAtErr: make(map[string]error),
		changesQueue:    make(map[string][]Delta),
	}
}

// queueChange arms one change-feed round trip for table with the given
// deltas, delivered and the channel closed as soon as Changes is called.
func (g *fakeGateway) queueChange(table string, deltas ...Delta) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.changesQueue[table] = append(g.changesQueue[table], deltas...)
}

func (g *fakeGateway) table(name string) map[string]map[string]any {
	t, ok := g.remote[name]
	if !ok {
		t = make(map[string]map[string]any)
		g.remote[name] = t
	}
	return t
}

func (g *fakeGateway) seedRemote(table string, row map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, _ := row["id"].(string)
	g.table(table)[id] = cloneRow(row)
}

func (g *fakeGateway) Upsert(ctx context.Context, table string, rows []map[string]any, onConflict string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, row := range rows {
		id, _ := row["id"].(string)
		g.upsertCalls = append(g.upsertCalls, id)
		if err, ok := g.upsertErr[id]; ok {
			return err
		}
		g.table(table)[id] = cloneRow(row)
	}
	return nil
}

func (g *fakeGateway) Delete(ctx context.Context, table, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteCalls = append(g.deleteCalls, id)
	if err, ok := g.deleteErr[id]; ok {
		return err
	}
	delete(g.table(table), id)
	return nil
}

func (g *fakeGateway) GetUpdatedAt(ctx context.Context, table, id string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getUpdatedAtCalls = append(g.getUpdatedAtCalls, id)
	if err, ok := g.getUpdatedAtErr[id]; ok {
		return "", false, err
	}
	row, ok := g.table(table)[id]
	if !ok {
		return "", false, nil
	}
	updatedAt, _ := row["updated_at"].(string)
	return updatedAt, true, nil
}

func (g *fakeGateway) ListAll(ctx context.Context, table, userID string, userScoped bool) ([]map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listAllCalls++
	if g.listAllErr != nil {
		return nil, g.listAllErr
	}
	var out []map[string]any
	for _, row := range g.table(table) {
		if userScoped && userID != "" {
			if rowUser, _ := row["user_id"].(string); rowUser != userID {
				continue
			}
		}
		out = append(out, cloneRow(row))
	}
	return out, nil
}

// Changes delivers any deltas queued via queueChange for table, then
// closes the channel, standing in for one long-poll round trip.
func (g *fakeGateway) Changes(ctx context.Context, table, userID string, userScoped bool) (<-chan Delta, error) {
	g.mu.Lock()
	g.changesCalls = append(g.changesCalls, table)
	if g.changesErr != nil {
		err := g.changesErr
		g.mu.Unlock()
		return nil, err
	}
	pending := g.changesQueue[table]
	g.changesQueue[table] = nil
	g.mu.Unlock()

	out := make(chan Delta, len(pending))
	for _, d := range pending {
		out <- d
	}
	close(out)
	return out, nil
}

var _ Gateway = (*fakeGateway)(nil)

func testConfig(name string) tableconfig.Config {
	return tableconfig.Config{
		LocalName:          name,
		RemoteName:         name,
		PrimaryKey:         "id",
		SupportsSoftDelete: true,
		Columns:            []string{"id", "user_id", "updated_at", "value"},
	}
}

func testRegistry(cfgs ...tableconfig.Config) *tableconfig.Registry {
	r := tableconfig.NewRegistry()
	for _, cfg := range cfgs {
		if err := r.Register(cfg); err != nil {
			panic(err)
		}
	}
	return r
}
