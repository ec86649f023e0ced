package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/robsonhq/tradeguard/internal/db"
	"github.com/robsonhq/tradeguard/internal/exchange"
	"github.com/robsonhq/tradeguard/internal/guard"
	"github.com/robsonhq/tradeguard/internal/intent"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/position"
	"github.com/robsonhq/tradeguard/internal/sizing"
)

// spyGateway records every order and can be scripted to fail stop orders.
type spyGateway struct {
	mu        sync.Mutex
	placed    []exchange.OrderRequest
	balance   float64
	failStops bool
	seq       int
}

func (s *spyGateway) Name() string { return "spy" }

func (s *spyGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStops && req.Type == exchange.StopLimit {
		return exchange.OrderResult{}, fmt.Errorf("stop rejected: %w", exchange.ErrRejected)
	}
	s.seq++
	s.placed = append(s.placed, req)
	return exchange.OrderResult{
		OrderID:   fmt.Sprintf("spy-%d", s.seq),
		Status:    "FILLED",
		FilledQty: req.Quantity,
		AvgPrice:  req.Price,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (s *spyGateway) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (s *spyGateway) GetOrderStatus(ctx context.Context, orderID string) (exchange.OrderResult, error) {
	return exchange.OrderResult{OrderID: orderID, Status: "FILLED"}, nil
}

func (s *spyGateway) GetPrice(ctx context.Context, symbol string) (exchange.Quote, error) {
	return exchange.Quote{Symbol: symbol, Bid: 95000, Ask: 95010, Time: time.Now().UTC()}, nil
}

func (s *spyGateway) GetBalance(ctx context.Context, asset string) (exchange.Balance, error) {
	return exchange.Balance{Asset: asset, Free: s.balance}, nil
}

func (s *spyGateway) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.placed)
}

// alertRecorder captures notifier traffic.
type alertRecorder struct {
	mu     sync.Mutex
	alerts []string
}

func (a *alertRecorder) Send(msg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, msg)
	return nil
}

func (a *alertRecorder) SendWithRetry(msg string) error { return a.Send(msg) }

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

func newTestCoordinator(t *testing.T, mode Mode, spy *spyGateway) (*Coordinator, *db.MemoryStorage) {
	t.Helper()
	storage := db.NewMemory()
	cfg := Config{
		Mode:            mode,
		QuoteAsset:      "USDT",
		StartingCapital: 10000,
		StopRetries:     2,
		StopRetryDelay:  time.Millisecond,
	}
	coord := New(cfg, storage, storage, spy, sizing.New(), guard.StandardChain(guard.DefaultLimits()), nil)
	return coord, storage
}

func planAndValidate(t *testing.T, coord *Coordinator) *intent.Intent {
	t.Helper()
	ctx := context.Background()
	it, err := coord.Plan(ctx, PlanRequest{
		Symbol:     "BTC-USDT",
		Side:       position.Long,
		EntryPrice: 95000,
		StopPrice:  93500,
		Capital:    10000,
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	it, err = coord.Validate(ctx, it.ID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return it
}

func TestPlanRejectsInvalidParameters(t *testing.T) {
	spy := &spyGateway{balance: 20000}
	coord, storage := newTestCoordinator(t, Live, spy)
	ctx := context.Background()

	cases := []struct {
		name string
		req  PlanRequest
	}{
		{"unknown side", PlanRequest{Symbol: "BTC-USDT", Side: "SIDEWAYS", EntryPrice: 95000, StopPrice: 93500, Capital: 10000}},
		{"missing symbol", PlanRequest{Side: position.Long, EntryPrice: 95000, StopPrice: 93500, Capital: 10000}},
		{"zero entry", PlanRequest{Symbol: "BTC-USDT", Side: position.Long, EntryPrice: 0, StopPrice: 93500, Capital: 10000}},
		{"long stop above entry", PlanRequest{Symbol: "BTC-USDT", Side: position.Long, EntryPrice: 95000, StopPrice: 96000, Capital: 10000}},
		{"short stop below entry", PlanRequest{Symbol: "BTC-USDT", Side: position.Short, EntryPrice: 95000, StopPrice: 94000, Capital: 10000}},
		{"long target below entry", PlanRequest{Symbol: "BTC-USDT", Side: position.Long, EntryPrice: 95000, StopPrice: 93500, TakeProfitPrice: 94000, Capital: 10000}},
		{"negative capital", PlanRequest{Symbol: "BTC-USDT", Side: position.Long, EntryPrice: 95000, StopPrice: 93500, Capital: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := coord.Plan(ctx, tc.req); !errors.Is(err, ErrInvalidParameters) {
				t.Errorf("Expected ErrInvalidParameters, got %v", err)
			}
		})
	}

	// Nothing was persisted and nothing reached the venue.
	intents, _ := storage.ListIntents(ctx, "")
	if len(intents) != 0 {
		t.Errorf("Expected no stored intents, got %d", len(intents))
	}
	if spy.orderCount() != 0 {
		t.Errorf("Expected no orders, got %d", spy.orderCount())
	}
}

func TestDryRunTouchesNoLiveVenue(t *testing.T) {
	spy := &spyGateway{balance: 20000}
	coord, storage := newTestCoordinator(t, DryRun, spy)
	ctx := context.Background()

	it := planAndValidate(t, coord)
	result, err := coord.Execute(ctx, it.ID, ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Mode != string(DryRun) {
		t.Errorf("Expected DRY_RUN result, got %s", result.Mode)
	}
	if spy.orderCount() != 0 {
		t.Errorf("Expected zero live orders in dry run, got %d", spy.orderCount())
	}

	// The lifecycle is otherwise indistinguishable from live.
	stored, _ := storage.GetIntent(ctx, it.ID)
	if stored.Status != intent.StatusExecuted {
		t.Errorf("Expected EXECUTED, got %s", stored.Status)
	}
	pos, _ := storage.GetPosition(ctx, result.PositionID)
	if pos == nil || pos.Status != position.StatusOpen {
		t.Fatalf("Expected an open position, got %+v", pos)
	}
	if pos.InitialStop != 93500 {
		t.Errorf("Expected initial stop carried onto the position, got %v", pos.InitialStop)
	}
}

func TestLiveRequiresRiskAcknowledgement(t *testing.T) {
	spy := &spyGateway{balance: 20000}
	coord, storage := newTestCoordinator(t, Live, spy)
	ctx := context.Background()

	it := planAndValidate(t, coord)
	_, err := coord.Execute(ctx, it.ID, ExecuteOptions{})
	if !errors.Is(err, ErrRiskNotAcknowledged) {
		t.Fatalf("Expected ErrRiskNotAcknowledged, got %v", err)
	}
	// Refused before anything reached the venue.
	if spy.orderCount() != 0 {
		t.Errorf("Expected zero orders, got %d", spy.orderCount())
	}
	stored, _ := storage.GetIntent(ctx, it.ID)
	if stored.Status != intent.StatusValidated {
		t.Errorf("Expected intent to stay VALIDATED, got %s", stored.Status)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	spy := &spyGateway{balance: 20000}
	coord, _ := newTestCoordinator(t, Live, spy)
	ctx := context.Background()

	it := planAndValidate(t, coord)
	first, err := coord.Execute(ctx, it.ID, ExecuteOptions{AcknowledgeRisk: true})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if spy.orderCount() != 2 { // entry + protective stop
		t.Fatalf("Expected 2 orders, got %d", spy.orderCount())
	}

	second, err := coord.Execute(ctx, it.ID, ExecuteOptions{AcknowledgeRisk: true})
	if err != nil {
		t.Fatalf("Second execute failed: %v", err)
	}
	if second.EntryOrderID != first.EntryOrderID || second.PositionID != first.PositionID {
		t.Errorf("Expected the recorded result, got %+v vs %+v", second, first)
	}
	if spy.orderCount() != 2 {
		t.Errorf("Second execute placed new orders: %d total", spy.orderCount())
	}
}

func TestStopPlacementFailureRaisesExposure(t *testing.T) {
	spy := &spyGateway{balance: 20000, failStops: true}
	storage := db.NewMemory()
	alerts := &alertRecorder{}
	coord := New(Config{
		Mode:            Live,
		QuoteAsset:      "USDT",
		StartingCapital: 10000,
		StopRetries:     2,
		StopRetryDelay:  time.Millisecond,
	}, storage, storage, spy, sizing.New(), guard.StandardChain(guard.DefaultLimits()), alerts)
	ctx := context.Background()

	it := planAndValidate(t, coord)
	result, err := coord.Execute(ctx, it.ID, ExecuteOptions{AcknowledgeRisk: true})

	var exposure *PartialFillExposureError
	if !errors.As(err, &exposure) {
		t.Fatalf("Expected PartialFillExposureError, got %v", err)
	}
	if result == nil || result.StopOrderID != "" {
		t.Fatalf("Expected a result without a stop order, got %+v", result)
	}
	if result.StopRetries != 2 {
		t.Errorf("Expected 2 recorded attempts, got %d", result.StopRetries)
	}

	// The entry fill is real: intent EXECUTED, position open, and the
	// incident on the ledger.
	stored, _ := storage.GetIntent(ctx, it.ID)
	if stored.Status != intent.StatusExecuted {
		t.Errorf("Expected EXECUTED, got %s", stored.Status)
	}
	events, _ := storage.ByIntent(ctx, it.ID)
	found := false
	for _, e := range events {
		if e.Type == journal.TypeUnprotectedExposure {
			found = true
		}
	}
	if !found {
		t.Error("Expected an unprotected_exposure event on the ledger")
	}
	if alerts.count() != 1 {
		t.Errorf("Expected one exposure alert, got %d", alerts.count())
	}
}

func TestExecuteConcurrentCallsShareOneFill(t *testing.T) {
	spy := &spyGateway{balance: 20000}
	coord, _ := newTestCoordinator(t, Live, spy)
	ctx := context.Background()

	it := planAndValidate(t, coord)

	const callers = 8
	results := make([]*intent.ExecutionResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Execute(ctx, it.ID, ExecuteOptions{AcknowledgeRisk: true})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: Execute failed: %v", i, errs[i])
		}
	}
	// One entry and one stop, no matter how many racers.
	if spy.orderCount() != 2 {
		t.Fatalf("Expected 2 orders total, got %d", spy.orderCount())
	}
	for i := 1; i < callers; i++ {
		if results[i].EntryOrderID != results[0].EntryOrderID || results[i].PositionID != results[0].PositionID {
			t.Errorf("caller %d got a different result: %+v vs %+v", i, results[i], results[0])
		}
	}
}

func TestValidateBlockedStaysPending(t *testing.T) {
	spy := &spyGateway{balance: 10} // cannot cover the position value
	coord, storage := newTestCoordinator(t, Live, spy)
	ctx := context.Background()

	it, err := coord.Plan(ctx, PlanRequest{
		Symbol:     "BTC-USDT",
		Side:       position.Long,
		EntryPrice: 95000,
		StopPrice:  93500,
		Capital:    10000,
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	_, err = coord.Validate(ctx, it.ID)
	var failure *guard.FailureError
	if !errors.As(err, &failure) {
		t.Fatalf("Expected FailureError, got %v", err)
	}
	if len(failure.Report.Failed()) == 0 {
		t.Error("Expected at least one failed guard in the report")
	}

	stored, _ := storage.GetIntent(ctx, it.ID)
	if stored.Status != intent.StatusPending {
		t.Errorf("Expected intent to stay PENDING, got %s", stored.Status)
	}
	if stored.ValidationResult == nil {
		t.Error("Expected the failing report to be attached")
	}
	events, _ := storage.ByIntent(ctx, it.ID)
	found := false
	for _, e := range events {
		if e.Type == journal.TypeIntentBlocked {
			found = true
		}
	}
	if !found {
		t.Error("Expected an intent_blocked event on the ledger")
	}

	// Execute is refused without a passing validation.
	if _, err := coord.Execute(ctx, it.ID, ExecuteOptions{AcknowledgeRisk: true}); !errors.Is(err, ErrNotValidated) {
		t.Errorf("Expected ErrNotValidated, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	spy := &spyGateway{balance: 20000}
	coord, _ := newTestCoordinator(t, Live, spy)
	ctx := context.Background()

	t.Run("pending intent cancels", func(t *testing.T) {
		it, err := coord.Plan(ctx, PlanRequest{
			Symbol: "BTC-USDT", Side: position.Long,
			EntryPrice: 95000, StopPrice: 93500, Capital: 10000,
		})
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		cancelled, err := coord.Cancel(ctx, it.ID, "changed my mind")
		if err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if cancelled.Status != intent.StatusCancelled {
			t.Errorf("Expected CANCELLED, got %s", cancelled.Status)
		}
	})

	t.Run("executed intent refuses", func(t *testing.T) {
		it := planAndValidate(t, coord)
		if _, err := coord.Execute(ctx, it.ID, ExecuteOptions{AcknowledgeRisk: true}); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if _, err := coord.Cancel(ctx, it.ID, ""); !errors.Is(err, ErrNotCancellable) {
			t.Errorf("Expected ErrNotCancellable, got %v", err)
		}
	})
}

func TestRecordCloseSuspendsOnDrawdown(t *testing.T) {
	spy := &spyGateway{balance: 20000}
	coord, storage := newTestCoordinator(t, Live, spy)
	ctx := context.Background()

	now := time.Now().UTC()
	pos, err := position.FromFill("p-1", "it-1", "BTC-USDT", position.Long, 1, 100, 98, 0, now)
	if err != nil {
		t.Fatalf("FromFill failed: %v", err)
	}
	pos.Status = position.StatusStoppedOut
	pos.ExitPrice = 98
	pos.RealizedPnL = -450 // 4.5% of starting capital
	pos.ClosedAt = now

	if err := coord.RecordClose(ctx, pos, journal.TypeStopTriggered); err != nil {
		t.Fatalf("RecordClose failed: %v", err)
	}

	pol, _ := storage.GetPolicyState(ctx)
	if pol == nil || !pol.Suspended {
		t.Fatalf("Expected trading suspended, got %+v", pol)
	}

	// The next validation is blocked by the drawdown guard.
	it, err := coord.Plan(ctx, PlanRequest{
		Symbol: "BTC-USDT", Side: position.Long,
		EntryPrice: 95000, StopPrice: 93500, Capital: 10000,
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	_, err = coord.Validate(ctx, it.ID)
	var failure *guard.FailureError
	if !errors.As(err, &failure) {
		t.Fatalf("Expected FailureError after suspension, got %v", err)
	}
}
