package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robsonhq/tradeguard/internal/exchange"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/monitoring"
	"github.com/robsonhq/tradeguard/internal/notifier"
	"github.com/robsonhq/tradeguard/internal/position"
)

// Closer is the piece of the coordinator the monitor reports closes to.
type Closer interface {
	RecordClose(ctx context.Context, pos *position.Position, eventType string) error
}

// StopMonitor scans open positions and closes the ones whose protective stop
// or profit target has been breached. It is the enforcement of last resort:
// even when a resting stop order exists on the venue, the monitor checks the
// book itself.
type StopMonitor struct {
	store    position.Store
	gateway  exchange.Gateway
	closer   Closer
	journal  journal.Journaler
	locks    *LockRegistry
	notifier notifier.Notifier
	interval time.Duration
}

func NewStopMonitor(store position.Store, gw exchange.Gateway, closer Closer, jrnl journal.Journaler, locks *LockRegistry, ntf notifier.Notifier, interval time.Duration) *StopMonitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if ntf == nil {
		ntf = notifier.Noop{}
	}
	return &StopMonitor{
		store:    store,
		gateway:  gw,
		closer:   closer,
		journal:  jrnl,
		locks:    locks,
		notifier: ntf,
		interval: interval,
	}
}

// Run scans on a fixed ticker until the context ends.
func (m *StopMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	log.Printf("StopMonitor | running every %v", m.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("StopMonitor | stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan. One broken symbol must not stop the rest
// of the book from being checked, so per-position errors are logged and
// swallowed.
func (m *StopMonitor) RunOnce(ctx context.Context) {
	positions, err := m.store.ListActivePositions(ctx)
	if err != nil {
		log.Printf("StopMonitor | list active positions: %v", err)
		return
	}
	monitoring.SetOpenPositions(len(positions))
	for _, pos := range positions {
		if err := m.check(ctx, pos); err != nil {
			log.Printf("StopMonitor | position %s: %v", pos.ID, err)
		}
	}
}

// check evaluates one position and closes it if a trigger fires. The trigger
// is re-verified under the position lock against a fresh quote, since another
// scan or the trailing adjuster may have moved things in between.
func (m *StopMonitor) check(ctx context.Context, pos *position.Position) error {
	quote, err := m.gateway.GetPrice(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("get price: %w", err)
	}
	price := closePrice(quote, pos.Side)
	if !pos.StopHit(price) && !pos.TakeProfitHit(price) {
		return nil
	}

	lock := m.locks.For(pos.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read everything under the lock.
	fresh, err := m.store.GetPosition(ctx, pos.ID)
	if err != nil {
		return fmt.Errorf("reload position: %w", err)
	}
	if fresh == nil || fresh.Status != position.StatusOpen {
		return nil
	}
	quote, err = m.gateway.GetPrice(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("get price under lock: %w", err)
	}
	price = closePrice(quote, fresh.Side)

	var eventType string
	switch {
	case fresh.StopHit(price):
		eventType = journal.TypeStopTriggered
	case fresh.TakeProfitHit(price):
		eventType = journal.TypeTakeProfitTriggered
	default:
		return nil
	}

	return m.close(ctx, fresh, price, eventType)
}

// close exits the position at market. The position is only marked closed on
// a confirmed fill; a rejected or errored exit leaves it OPEN for the next
// scan and raises an alert instead.
func (m *StopMonitor) close(ctx context.Context, pos *position.Position, triggerPrice float64, eventType string) error {
	now := time.Now().UTC()
	pos.Status = position.StatusClosing
	pos.UpdatedAt = now
	if err := m.store.SavePosition(ctx, pos); err != nil {
		return fmt.Errorf("mark closing: %w", err)
	}

	side := "sell"
	if pos.Side == position.Short {
		side = "buy"
	}
	order, err := m.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     side,
		Type:     exchange.Market,
		Quantity: pos.Quantity,
	})
	if err != nil || order.FilledQty <= 0 {
		// No confirmed fill: back to OPEN, retry next scan.
		pos.Status = position.StatusOpen
		pos.UpdatedAt = time.Now().UTC()
		if saveErr := m.store.SavePosition(ctx, pos); saveErr != nil {
			log.Printf("StopMonitor | position %s: revert to open: %v", pos.ID, saveErr)
		}
		if alertErr := m.notifier.SendWithRetry(fmt.Sprintf("STOP CLOSE FAILED %s %s @ %.2f: %v", pos.Side, pos.Symbol, triggerPrice, err)); alertErr != nil {
			log.Printf("StopMonitor | alert send failed: %v", alertErr)
		}
		return fmt.Errorf("close order: %w", err)
	}

	exitPrice := order.AvgPrice
	if exitPrice <= 0 {
		exitPrice = triggerPrice
	}

	pos.ExitPrice = exitPrice
	pos.RealizedPnL = pos.PnL(exitPrice)
	pos.ClosedAt = time.Now().UTC()
	pos.UpdatedAt = pos.ClosedAt
	if eventType == journal.TypeTakeProfitTriggered {
		pos.Status = position.StatusTakeProfit
	} else {
		pos.Status = position.StatusStoppedOut
	}
	if err := m.store.SavePosition(ctx, pos); err != nil {
		return fmt.Errorf("save closed position: %w", err)
	}

	if err := m.closer.RecordClose(ctx, pos, eventType); err != nil {
		log.Printf("StopMonitor | position %s: record close: %v", pos.ID, err)
	}
	monitoring.RecordClose(pos.Symbol, pos.RealizedPnL)
	log.Printf("StopMonitor | %s %s closed @ %.2f pnl %.2f (%s)", pos.Side, pos.Symbol, exitPrice, pos.RealizedPnL, eventType)
	return nil
}

// closePrice is the price at which the position could actually be exited:
// the bid for a long close, the ask for a short close.
func closePrice(q exchange.Quote, side position.Side) float64 {
	if side == position.Long {
		return q.Bid
	}
	return q.Ask
}
