package monitor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/robsonhq/tradeguard/internal/db"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/position"
)

func newAdjuster(storage *db.MemoryStorage, gw *fakeGateway, feePercent float64) *TrailingAdjuster {
	return NewTrailingAdjuster(storage, gw, storage, NewLockRegistry(), feePercent, time.Minute)
}

func TestCandidateLong(t *testing.T) {
	// Entry 100, initial stop 98: span 2. No fee cushion so break-even is
	// exactly the entry.
	adj := newAdjuster(db.NewMemory(), &fakeGateway{}, 0)
	pos, _ := position.FromFill("p-1", "it-1", "BTC-USDT", position.Long, 1, 100, 98, 0, time.Now().UTC())

	cases := []struct {
		price float64
		want  float64
		ok    bool
	}{
		{99, 0, false},     // inside the first span
		{101.9, 0, false},  // still under one whole span
		{102, 100, true},   // one span: break-even
		{103.9, 100, true}, // still one whole span
		{104, 102, true},   // two spans: entry + 1 span
		{106, 104, true},   // three spans: entry + 2 spans
	}
	for _, tc := range cases {
		got, _, ok := adj.Candidate(pos, tc.price)
		if ok != tc.ok {
			t.Errorf("price=%v: expected ok=%v, got %v", tc.price, tc.ok, ok)
			continue
		}
		if ok && math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("price=%v: expected candidate %v, got %v", tc.price, tc.want, got)
		}
	}
}

func TestCandidateShort(t *testing.T) {
	adj := newAdjuster(db.NewMemory(), &fakeGateway{}, 0)
	pos, _ := position.FromFill("p-1", "it-1", "BTC-USDT", position.Short, 1, 100, 102, 0, time.Now().UTC())

	cases := []struct {
		price float64
		want  float64
		ok    bool
	}{
		{101, 0, false},
		{98, 100, true}, // one span: break-even
		{96, 98, true},  // two spans
		{94, 96, true},  // three spans
	}
	for _, tc := range cases {
		got, _, ok := adj.Candidate(pos, tc.price)
		if ok != tc.ok {
			t.Errorf("price=%v: expected ok=%v, got %v", tc.price, tc.ok, ok)
			continue
		}
		if ok && math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("price=%v: expected candidate %v, got %v", tc.price, tc.want, got)
		}
	}
}

func TestCandidateFeeCushion(t *testing.T) {
	adj := newAdjuster(db.NewMemory(), &fakeGateway{}, 0.15)

	long, _ := position.FromFill("p-1", "it-1", "BTC-USDT", position.Long, 1, 100, 98, 0, time.Now().UTC())
	got, _, ok := adj.Candidate(long, 102)
	if !ok || math.Abs(got-100.15) > 1e-9 {
		t.Errorf("Expected long break-even 100.15, got %v (ok=%v)", got, ok)
	}

	short, _ := position.FromFill("p-2", "it-2", "BTC-USDT", position.Short, 1, 100, 102, 0, time.Now().UTC())
	got, _, ok = adj.Candidate(short, 98)
	if !ok || math.Abs(got-99.85) > 1e-9 {
		t.Errorf("Expected short break-even 99.85, got %v (ok=%v)", got, ok)
	}
}

func TestAdjusterRatchet(t *testing.T) {
	storage := db.NewMemory()
	gw := &fakeGateway{}
	adj := newAdjuster(storage, gw, 0)
	ctx := context.Background()

	pos := openPosition(t, storage, position.Long, 100, 98, 0)

	// One span of profit moves the stop to break-even.
	gw.setQuote(102, 102.1)
	adj.RunOnce(ctx)
	fresh, _ := storage.GetPosition(ctx, pos.ID)
	if fresh.StopPrice != 100 {
		t.Fatalf("Expected stop at 100, got %v", fresh.StopPrice)
	}

	// Two spans move it to entry plus one span.
	gw.setQuote(104, 104.1)
	adj.RunOnce(ctx)
	fresh, _ = storage.GetPosition(ctx, pos.ID)
	if fresh.StopPrice != 102 {
		t.Fatalf("Expected stop at 102, got %v", fresh.StopPrice)
	}

	// A retrace never moves the stop back.
	gw.setQuote(99, 99.1)
	adj.RunOnce(ctx)
	fresh, _ = storage.GetPosition(ctx, pos.ID)
	if fresh.StopPrice != 102 {
		t.Fatalf("Expected stop to hold at 102 on retrace, got %v", fresh.StopPrice)
	}

	// The span itself never changed.
	if fresh.Span() != 2 {
		t.Errorf("Expected span fixed at 2, got %v", fresh.Span())
	}

	// Each move is on the ledger.
	events, _ := storage.ByPosition(ctx, pos.ID)
	adjusted := 0
	for _, e := range events {
		if e.Type == journal.TypeStopAdjusted {
			adjusted++
		}
	}
	if adjusted != 2 {
		t.Errorf("Expected 2 stop_adjusted events, got %d", adjusted)
	}
}

func TestAdjusterSkipsClosedPositions(t *testing.T) {
	storage := db.NewMemory()
	gw := &fakeGateway{}
	adj := newAdjuster(storage, gw, 0)
	ctx := context.Background()

	pos := openPosition(t, storage, position.Long, 100, 98, 0)
	pos.Status = position.StatusStoppedOut
	pos.ClosedAt = time.Now().UTC()
	if err := storage.SavePosition(ctx, pos); err != nil {
		t.Fatalf("SavePosition failed: %v", err)
	}

	gw.setQuote(104, 104.1)
	adj.RunOnce(ctx)

	fresh, _ := storage.GetPosition(ctx, pos.ID)
	if fresh.StopPrice != 98 {
		t.Errorf("Expected closed position untouched, got stop %v", fresh.StopPrice)
	}
}
