package sync

import (
	"context"
	"testing"
	"time"

	"github.com/fitsync/fitsync/internal/sync/gatewayerr"
	"github.com/fitsync/fitsync/internal/store"
)

func TestDrainOutbox_DeadLettersExhaustedEntries(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	st.outbox = []store.OutboxEntry{
		{ID: 1, TableName: "workouts", Op: store.OpUpsert, RecordID: "w1", Payload: `{"id":"w1"}`, RetryCount: 5},
	}

	e.drainOutbox(context.Background())

	if len(st.outbox) != 0 {
		t.Fatalf("expected the exhausted entry to be dead-lettered, got %v", st.outbox)
	}
	if len(gw.upsertCalls) != 0 {
		t.Fatal("a dead-lettered entry must never be replayed")
	}
}

func TestDrainOutbox_SuccessfulReplayRemovesEntryAndMarksSynced(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	cfg := testConfig("workouts")
	registry := testRegistry(cfg)
	e := New(st, gw, registry, func() string { return "user-1" })

	st.seed("workouts", map[string]any{"id": "w1", "user_id": "user-1", "updated_at": "2026-01-01T00:00:00Z", "synced": false})
	st.outbox = []store.OutboxEntry{
		{ID: 1, TableName: "workouts", Op: store.OpUpsert, RecordID: "w1", Payload: `{"id":"w1","user_id":"user-1","updated_at":"2026-01-01T00:00:00Z"}`},
	}

	e.drainOutbox(context.Background())

	if len(st.outbox) != 0 {
		t.Fatalf("expected the replayed entry to be removed, got %v", st.outbox)
	}
	if len(gw.upsertCalls) != 1 || gw.upsertCalls[0] != "w1" {
		t.Fatalf("expected the payload to be replayed via Upsert, got %v", gw.upsertCalls)
	}
	row, _, _ := st.GetByID(context.Background(), cfg, "w1", true)
	if !truthy(row["synced"]) {
		t.Error("expected the row to be marked synced after a successful drain")
	}
}

func TestDrainOutbox_DeleteOpReplaysAsGatewayDelete(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	st.outbox = []store.OutboxEntry{
		{ID: 1, TableName: "workouts", Op: store.OpDelete, RecordID: "w1"},
	}

	e.drainOutbox(context.Background())

	if len(gw.deleteCalls) != 1 || gw.deleteCalls[0] != "w1" {
		t.Fatalf("expected a delete-op entry to call gateway.Delete, got %v", gw.deleteCalls)
	}
}

func TestDrainOutbox_AuthFailurePurgesLocalAndRemovesEntry(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	gw.upsertErr["w1"] = gatewayerr.Auth(context.Canceled)
	st.seed("workouts", map[string]any{"id": "w1", "user_id": "user-1", "updated_at": "2026-01-01T00:00:00Z", "synced": false})
	st.outbox = []store.OutboxEntry{
		{ID: 1, TableName: "workouts", Op: store.OpUpsert, RecordID: "w1", Payload: `{"id":"w1"}`},
	}

	e.drainOutbox(context.Background())

	if len(st.hardDeleted) != 1 {
		t.Fatalf("expected an auth failure to purge the local row, got %v", st.hardDeleted)
	}
	if len(st.outbox) != 0 {
		t.Fatalf("expected the purged entry to be removed from the outbox, got %v", st.outbox)
	}
}

func TestDrainOutbox_TransportFailureReschedulesWithBackoff(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	gw.upsertErr["w1"] = gatewayerr.Transport(context.DeadlineExceeded)
	st.outbox = []store.OutboxEntry{
		{ID: 1, TableName: "workouts", Op: store.OpUpsert, RecordID: "w1", Payload: `{"id":"w1"}`, RetryCount: 1},
	}

	e.drainOutbox(context.Background())

	if len(st.outbox) != 1 {
		t.Fatalf("expected the entry to remain queued after a transport failure, got %v", st.outbox)
	}
	if st.outbox[0].RetryCount != 2 {
		t.Fatalf("expected retry_count to be incremented, got %d", st.outbox[0].RetryCount)
	}
	if !st.outbox[0].NextRetryAt.Valid {
		t.Fatal("expected next_retry_at to be set")
	}
}

func TestDrainOutbox_UnregisteredTableIsDropped(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry()
	e := New(st, gw, registry, func() string { return "user-1" })

	st.outbox = []store.OutboxEntry{
		{ID: 1, TableName: "ghost_table", Op: store.OpUpsert, RecordID: "w1", Payload: `{}`},
	}

	e.drainOutbox(context.Background())

	if len(st.outbox) != 0 {
		t.Fatalf("expected an entry for an unregistered table to be dropped, got %v", st.outbox)
	}
}

func TestBackoffDelay_GrowsExponentiallyAndCapsAt60s(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{6, 60 * time.Second},
		{20, 60 * time.Second},
	}
	for _, c := range cases {
		if got := backoffDelay(c.retryCount); got != c.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", c.retryCount, got, c.want)
		}
	}
}
