package channel

import (
	"context"
	"testing"
	"time"
)

func TestJanitorSweepRemovesIdleSessions(t *testing.T) {
	store := NewMemoryStore(10)
	current := time.Now()
	store.now = func() time.Time { return current }

	router := NewRouter(store)
	ctx := context.Background()

	if _, err := router.Route(ctx, RouteInput{SessionID: "stale", AgentID: "a1", Raw: "old news"}); err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	j := NewJanitor(router, time.Hour)

	// A session inside the retention window survives a sweep.
	j.Sweep(ctx)
	msgs, err := router.History(ctx, "stale", HistoryQuery{})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("History() returned %d messages after early sweep, want 1", len(msgs))
	}

	// Two hours later the stale session is swept; a freshly active one
	// is not.
	current = current.Add(2 * time.Hour)
	if _, err := router.Route(ctx, RouteInput{SessionID: "active", AgentID: "a1", Raw: "fresh"}); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	j.Sweep(ctx)

	msgs, err = router.History(ctx, "stale", HistoryQuery{})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("stale session still has %d messages after sweep", len(msgs))
	}

	msgs, err = router.History(ctx, "active", HistoryQuery{})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("active session has %d messages after sweep, want 1", len(msgs))
	}
}

func TestJanitorRetentionDefault(t *testing.T) {
	j := NewJanitor(NewRouter(NewMemoryStore(10)), 0)
	if j.retention != DefaultRetention {
		t.Errorf("retention = %v, want %v", j.retention, DefaultRetention)
	}
}

func TestJanitorStartStop(t *testing.T) {
	j := NewJanitor(NewRouter(NewMemoryStore(10)), time.Hour)

	if err := j.Start("not a cron spec"); err == nil {
		t.Fatal("Start() accepted an invalid schedule")
	}
	if err := j.Start(""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	j.Stop()
}
