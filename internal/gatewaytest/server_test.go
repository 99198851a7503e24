package gatewaytest

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/fitsync/fitsync/internal/gateway"
	"github.com/fitsync/fitsync/internal/sync"
	"github.com/fitsync/fitsync/internal/sync/gatewayerr"
)

func newTestClient(t *testing.T) (*gateway.Client, *Server) {
	t.Helper()
	srv := NewServer("test-key", "user-1")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return gateway.New(ts.URL, "test-key"), srv
}

func TestUpsertThenGetUpdatedAtRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	row := map[string]any{"id": "abc123", "user_id": "user-1", "updated_at": "2026-01-01T00:00:00Z"}
	if err := client.Upsert(ctx, "meal_entries", []map[string]any{row}, "id"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	updatedAt, ok, err := client.GetUpdatedAt(ctx, "meal_entries", "abc123")
	if err != nil {
		t.Fatalf("get updated_at: %v", err)
	}
	if !ok || updatedAt != "2026-01-01T00:00:00Z" {
		t.Fatalf("unexpected result: %q %v", updatedAt, ok)
	}
}

func TestGetUpdatedAtNotFound(t *testing.T) {
	client, _ := newTestClient(t)
	_, ok, err := client.GetUpdatedAt(context.Background(), "meal_entries", "does-not-exist")
	if err != nil {
		t.Fatalf("expected nil error on not-found, got %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing row")
	}
}

func TestUpsertForeignUserIsRejectedAsAuth(t *testing.T) {
	client, _ := newTestClient(t)
	row := map[string]any{"id": "foreign-row", "user_id": "someone-else", "updated_at": "2026-01-01T00:00:00Z"}
	err := client.Upsert(context.Background(), "meal_entries", []map[string]any{row}, "id")
	if !gatewayerr.Is(err, gatewayerr.KindAuth) {
		t.Fatalf("expected auth kind, got %v", err)
	}
}

func TestUpsertMalformedHealthSummaryIDIsRejected(t *testing.T) {
	client, _ := newTestClient(t)
	row := map[string]any{"id": "not-a-ulid", "user_id": "user-1", "updated_at": "2026-01-01T00:00:00Z"}
	err := client.Upsert(context.Background(), "health_summaries", []map[string]any{row}, "id")
	if !gatewayerr.Is(err, gatewayerr.KindMalformed) {
		t.Fatalf("expected malformed kind, got %v", err)
	}
}

func TestUpsertMissingUpdatedAtIsRejectedAsBadRequest(t *testing.T) {
	client, _ := newTestClient(t)
	row := map[string]any{"id": "m1", "user_id": "user-1"}
	err := client.Upsert(context.Background(), "meal_entries", []map[string]any{row}, "id")
	if !gatewayerr.Is(err, gatewayerr.KindOther) {
		t.Fatalf("expected other kind for a validation rejection, got %v", err)
	}
}

func TestChangesFeedDeliversQueuedUpsertAndDelete(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	row := map[string]any{"id": "m1", "user_id": "user-1", "updated_at": "2026-01-01T00:00:00Z"}
	if err := client.Upsert(ctx, "meal_entries", []map[string]any{row}, "id"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	deltas, err := client.Changes(ctx, "meal_entries", "user-1", true)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	var got []sync.Delta
	for d := range deltas {
		got = append(got, d)
	}
	if len(got) != 1 || got[0].Kind != sync.DeltaInsertOrUpdate || got[0].New["id"] != "m1" {
		t.Fatalf("unexpected deltas: %+v", got)
	}

	if err := client.Delete(ctx, "meal_entries", "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	deltas, err = client.Changes(ctx, "meal_entries", "user-1", true)
	if err != nil {
		t.Fatalf("changes after delete: %v", err)
	}
	got = nil
	for d := range deltas {
		got = append(got, d)
	}
	if len(got) != 1 || got[0].Kind != sync.DeltaDelete || got[0].OldID != "m1" {
		t.Fatalf("unexpected deltas after delete: %+v", got)
	}
}

func TestListAllFiltersByUser(t *testing.T) {
	client, srv := newTestClient(t)
	srv.SeedRow("meal_entries", map[string]any{"id": "m1", "user_id": "user-1", "created_at": "2026-01-01T00:00:00Z"})
	srv.SeedRow("meal_entries", map[string]any{"id": "m2", "user_id": "someone-else", "created_at": "2026-01-02T00:00:00Z"})

	rows, err := client.ListAll(context.Background(), "meal_entries", "user-1", true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != "m1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
