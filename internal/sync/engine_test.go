package sync

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFullSync_SetsIdleStatusOnSuccess(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	if err := e.FullSync(context.Background()); err != nil {
		t.Fatalf("FullSync returned an error: %v", err)
	}

	status := e.Status()
	if status.State != StateIdle {
		t.Fatalf("expected StateIdle after a clean pass, got %v", status.State)
	}
	if st.cleanupCalls != 1 {
		t.Fatalf("expected cleanup to run once per pass, got %d", st.cleanupCalls)
	}
}

func TestFullSync_NeverPropagatesErrorsPastTheBoundary(t *testing.T) {
	st := newFakeStore()
	st.cleanupErr = context.DeadlineExceeded
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	if err := e.FullSync(context.Background()); err != nil {
		t.Fatalf("FullSync must never propagate internal errors, got %v", err)
	}

	// A cleanup failure is logged, not surfaced as an error status: the
	// pass as a whole still completed.
	if e.Status().State != StateIdle {
		t.Fatalf("expected StateIdle even after a cleanup failure, got %v", e.Status().State)
	}
}

func TestFullSync_IsSingleFlightAcrossConcurrentCallers(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.FullSync(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
}

func TestTriggerSync_SkipsInsteadOfJoiningWhenAlreadySyncing(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	e.isSyncing.Store(true)
	if err := e.TriggerSync(context.Background()); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	if gw.listAllCalls != 0 {
		t.Fatalf("TriggerSync must skip entirely while a pass is in flight, got %d pull calls", gw.listAllCalls)
	}
}

func TestTriggerSync_RunsWhenIdle(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	if err := e.TriggerSync(context.Background()); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	if gw.listAllCalls == 0 {
		t.Fatal("expected TriggerSync to run a full pass while idle")
	}
}

func TestSubscribeStatus_DeliversCurrentStatusImmediately(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	registry := testRegistry(testConfig("workouts"))
	e := New(st, gw, registry, func() string { return "user-1" })

	ch, unsubscribe := e.SubscribeStatus()
	defer unsubscribe()

	select {
	case s := <-ch:
		if s.State != StateIdle {
			t.Fatalf("expected the initial status to be idle, got %v", s.State)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the current status to be delivered synchronously on subscribe")
	}
}

func TestSubscribeSyncComplete_FiresOnMutation(t *testing.T) {
	st := newFakeStore()
	gw := newFakeGateway()
	cfg := testConfig("workouts")
	registry := testRegistry(cfg)
	e := New(st, gw, registry, func() string { return "user-1" })

	ch, unsubscribe := e.SubscribeSyncComplete()
	defer unsubscribe()

	gw.seedRemote("workouts", map[string]any{"id": "w1", "user_id": "user-1", "updated_at": "2026-01-01T00:00:00Z"})
	if err := e.FullSync(context.Background()); err != nil {
		t.Fatalf("FullSync: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a sync-complete notification after a mutating pull")
	}
}
