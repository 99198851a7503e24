package fitclient

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/fitsync/fitsync/internal/gatewaytest"
)

func TestInitializeRunsMigrationsAndFirstSync(t *testing.T) {
	mock := gatewaytest.NewServer("test-key", "user-1")
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)

	c, err := New(Options{
		DatabasePath: ":memory:",
		GatewayURL:   ts.URL,
		APIKey:       "test-key",
		UserID:       func() string { return "user-1" },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ch, unsubscribe := c.SubscribeStatus()
	defer unsubscribe()
	status := <-ch
	if status.State.String() == "" {
		t.Fatalf("expected a populated status")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := New(Options{DatabasePath: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
