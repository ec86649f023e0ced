package db

import (
	"context"
	"testing"
	"time"

	"github.com/robsonhq/tradeguard/internal/intent"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/policy"
	"github.com/robsonhq/tradeguard/internal/position"
)

func TestMemoryIntents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	it := &intent.Intent{
		ID:         "it-1",
		Symbol:     "BTC-USDT",
		Side:       position.Long,
		EntryPrice: 100,
		StopPrice:  98,
		Status:     intent.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.SaveIntent(ctx, it); err != nil {
		t.Fatalf("SaveIntent failed: %v", err)
	}

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := m.GetIntent(ctx, "it-1")
		if err != nil {
			t.Fatalf("GetIntent failed: %v", err)
		}
		got.Status = intent.StatusExecuted
		again, _ := m.GetIntent(ctx, "it-1")
		if again.Status != intent.StatusPending {
			t.Error("Mutating a returned intent leaked into the store")
		}
	})

	t.Run("unknown id returns nil", func(t *testing.T) {
		got, err := m.GetIntent(ctx, "nope")
		if err != nil || got != nil {
			t.Errorf("Expected nil, nil, got %v, %v", got, err)
		}
	})

	t.Run("list filters by status", func(t *testing.T) {
		it2 := &intent.Intent{ID: "it-2", Symbol: "ETH-USDT", Side: position.Short,
			EntryPrice: 100, StopPrice: 102, Status: intent.StatusExecuted,
			CreatedAt: now.Add(time.Second), UpdatedAt: now.Add(time.Second)}
		if err := m.SaveIntent(ctx, it2); err != nil {
			t.Fatalf("SaveIntent failed: %v", err)
		}
		pending, _ := m.ListIntents(ctx, intent.StatusPending)
		if len(pending) != 1 || pending[0].ID != "it-1" {
			t.Errorf("Expected only it-1 pending, got %v", pending)
		}
		all, _ := m.ListIntents(ctx, "")
		if len(all) != 2 {
			t.Errorf("Expected 2 intents, got %d", len(all))
		}
	})

	t.Run("save without id rejected", func(t *testing.T) {
		if err := m.SaveIntent(ctx, &intent.Intent{}); err == nil {
			t.Error("Expected error for missing ID")
		}
	})
}

func TestMemoryPositions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	open, err := position.FromFill("p-1", "it-1", "BTC-USDT", position.Long, 1, 100, 98, 0, now)
	if err != nil {
		t.Fatalf("FromFill failed: %v", err)
	}
	closed, _ := position.FromFill("p-2", "it-2", "BTC-USDT", position.Short, 1, 100, 102, 0, now)
	closed.Status = position.StatusStoppedOut
	closed.ClosedAt = now

	if err := m.SavePosition(ctx, open); err != nil {
		t.Fatalf("SavePosition failed: %v", err)
	}
	if err := m.SavePosition(ctx, closed); err != nil {
		t.Fatalf("SavePosition failed: %v", err)
	}

	list, err := m.ListActivePositions(ctx)
	if err != nil {
		t.Fatalf("ListActivePositions failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "p-1" {
		t.Errorf("Expected only p-1 active, got %v", list)
	}

	n, _ := m.CountOpenPositions(ctx)
	if n != 1 {
		t.Errorf("Expected 1 open position, got %d", n)
	}
}

func TestMemoryPolicyState(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got, err := m.GetPolicyState(ctx)
	if err != nil || got != nil {
		t.Fatalf("Expected nil state initially, got %v, %v", got, err)
	}

	s := policy.NewState(10000, time.Now().UTC())
	if err := m.SavePolicyState(ctx, s); err != nil {
		t.Fatalf("SavePolicyState failed: %v", err)
	}
	got, _ = m.GetPolicyState(ctx)
	if got == nil || got.StartingCapital != 10000 {
		t.Fatalf("Expected saved state back, got %+v", got)
	}
	// Returned state is a copy.
	got.DailyRealizedLoss = 999
	again, _ := m.GetPolicyState(ctx)
	if again.DailyRealizedLoss != 0 {
		t.Error("Mutating a returned state leaked into the store")
	}
}

func TestMemoryJournal(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	events := []journal.Event{
		{IntentID: "it-1", Type: journal.TypeIntentPlanned, Time: now},
		{IntentID: "it-1", PositionID: "p-1", Type: journal.TypeIntentExecuted, Time: now.Add(time.Second)},
		{IntentID: "it-2", Type: journal.TypeIntentPlanned, Time: now.Add(2 * time.Second)},
	}
	for _, e := range events {
		if err := m.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	byIntent, _ := m.ByIntent(ctx, "it-1")
	if len(byIntent) != 2 {
		t.Errorf("Expected 2 events for it-1, got %d", len(byIntent))
	}
	byPos, _ := m.ByPosition(ctx, "p-1")
	if len(byPos) != 1 {
		t.Errorf("Expected 1 event for p-1, got %d", len(byPos))
	}
	all, _ := m.AllEvents(ctx)
	if len(all) != 3 {
		t.Errorf("Expected 3 events, got %d", len(all))
	}
	for _, e := range all {
		if e.ID == "" {
			t.Error("Expected an assigned event ID")
		}
	}
}
