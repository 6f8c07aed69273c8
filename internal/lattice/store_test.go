package lattice

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognitivelattice/web-agent/internal/model"
)

func TestStoreIndexAndQueryEvents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	store, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	sessionID := "session-1"
	events := []model.LatticeEvent{
		{Type: model.EventPlanGenerated, Timestamp: time.Now(), Payload: map[string]any{"step": float64(1)}},
		{Type: model.EventWebDecision, Timestamp: time.Now().Add(time.Second), Payload: map[string]any{"step": float64(2)}},
	}
	for _, ev := range events {
		if err := store.IndexEvent(ctx, sessionID, ev); err != nil {
			t.Fatalf("IndexEvent: %v", err)
		}
	}

	got, err := store.EventsForSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("EventsForSession: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 indexed events, got %d", len(got))
	}
	if got[0].Type != model.EventPlanGenerated || got[1].Type != model.EventWebDecision {
		t.Fatalf("expected events ordered by occurred_at, got %+v", got)
	}
}

func TestStoreEventsForUnknownSessionIsEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	store, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	got, err := store.EventsForSession(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("EventsForSession: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events for an unknown session, got %d", len(got))
	}
}
