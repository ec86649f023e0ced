package monitor

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/robsonhq/tradeguard/internal/exchange"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/monitoring"
	"github.com/robsonhq/tradeguard/internal/position"
)

// DefaultFeeCushionPercent pads the break-even stop so a fill at it covers
// round-trip trading costs instead of realizing a small loss.
const DefaultFeeCushionPercent = 0.15

// TrailingAdjuster ratchets protective stops in whole spans of the original
// entry-to-stop distance. The span is fixed at fill time; the stop only ever
// moves toward profit and never within the first span.
type TrailingAdjuster struct {
	store      position.Store
	gateway    exchange.Gateway
	journal    journal.Journaler
	locks      *LockRegistry
	feePercent float64
	interval   time.Duration
}

func NewTrailingAdjuster(store position.Store, gw exchange.Gateway, jrnl journal.Journaler, locks *LockRegistry, feePercent float64, interval time.Duration) *TrailingAdjuster {
	if feePercent < 0 {
		feePercent = DefaultFeeCushionPercent
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &TrailingAdjuster{
		store:      store,
		gateway:    gw,
		journal:    jrnl,
		locks:      locks,
		feePercent: feePercent,
		interval:   interval,
	}
}

// Run adjusts on a fixed ticker until the context ends.
func (a *TrailingAdjuster) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	log.Printf("TrailingAdjuster | running every %v", a.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("TrailingAdjuster | stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single adjustment pass over all open positions.
func (a *TrailingAdjuster) RunOnce(ctx context.Context) {
	positions, err := a.store.ListActivePositions(ctx)
	if err != nil {
		log.Printf("TrailingAdjuster | list active positions: %v", err)
		return
	}
	for _, pos := range positions {
		if err := a.adjust(ctx, pos); err != nil {
			log.Printf("TrailingAdjuster | position %s: %v", pos.ID, err)
		}
	}
}

// adjust moves one position's stop if price has earned it.
func (a *TrailingAdjuster) adjust(ctx context.Context, pos *position.Position) error {
	if pos.Span() <= 0 {
		return nil
	}
	quote, err := a.gateway.GetPrice(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("get price: %w", err)
	}
	price := closePrice(quote, pos.Side)

	candidate, spans, ok := a.Candidate(pos, price)
	if !ok || !pos.MoreFavorable(candidate) {
		return nil
	}

	lock := a.locks.For(pos.ID)
	lock.Lock()
	defer lock.Unlock()

	// The stop monitor may have closed or the stop may have moved since the
	// check above; re-verify on fresh state.
	fresh, err := a.store.GetPosition(ctx, pos.ID)
	if err != nil {
		return fmt.Errorf("reload position: %w", err)
	}
	if fresh == nil || fresh.Status != position.StatusOpen || !fresh.MoreFavorable(candidate) {
		return nil
	}

	old := fresh.StopPrice
	fresh.StopPrice = candidate
	fresh.UpdatedAt = time.Now().UTC()
	if err := a.store.SavePosition(ctx, fresh); err != nil {
		return fmt.Errorf("save adjusted stop: %w", err)
	}

	if err := a.journal.Record(ctx, journal.Event{
		IntentID:    fresh.IntentID,
		PositionID:  fresh.ID,
		Type:        journal.TypeStopAdjusted,
		Description: fmt.Sprintf("stop %.2f -> %.2f at %d spans of profit", old, candidate, spans),
		Data: map[string]any{
			"old_stop": old,
			"new_stop": candidate,
			"spans":    spans,
			"price":    price,
		},
		Time: fresh.UpdatedAt,
	}); err != nil {
		log.Printf("TrailingAdjuster | journal record failed: %v", err)
	}
	monitoring.RecordStopAdjustment(fresh.Symbol)
	log.Printf("TrailingAdjuster | %s %s stop %.2f -> %.2f (%d spans)", fresh.Side, fresh.Symbol, old, candidate, spans)
	return nil
}

// Candidate computes the stop the ratchet would set at the given price.
// Below one whole span of profit there is no candidate. At exactly one span
// the stop goes to break-even plus the fee cushion; at n spans it goes to
// entry plus n-1 spans, always trailing a full span behind price.
func (a *TrailingAdjuster) Candidate(pos *position.Position, price float64) (float64, int, bool) {
	span := pos.Span()
	if span <= 0 {
		return 0, 0, false
	}

	var profit float64
	if pos.Side == position.Long {
		profit = price - pos.EntryPrice
	} else {
		profit = pos.EntryPrice - price
	}
	spans := int(math.Floor(profit / span))
	if spans < 1 {
		return 0, spans, false
	}

	breakEven := pos.EntryPrice * (1 + a.feePercent/100)
	if pos.Side == position.Short {
		breakEven = pos.EntryPrice * (1 - a.feePercent/100)
	}
	if spans == 1 {
		return breakEven, spans, true
	}

	var candidate float64
	if pos.Side == position.Long {
		candidate = pos.EntryPrice + float64(spans-1)*span
		if candidate < breakEven {
			candidate = breakEven
		}
	} else {
		candidate = pos.EntryPrice - float64(spans-1)*span
		if candidate > breakEven {
			candidate = breakEven
		}
	}
	return candidate, spans, true
}
