// Package executor drives a trading intent through its lifecycle:
// PENDING -> VALIDATED -> EXECUTING -> EXECUTED or FAILED.
//
// The coordinator is the single writer for intent state and the only
// component that mutates policy state. Monitors report closes back through
// RecordClose instead of touching the accumulators themselves.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robsonhq/tradeguard/internal/exchange"
	"github.com/robsonhq/tradeguard/internal/guard"
	"github.com/robsonhq/tradeguard/internal/intent"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/monitoring"
	"github.com/robsonhq/tradeguard/internal/notifier"
	"github.com/robsonhq/tradeguard/internal/policy"
	"github.com/robsonhq/tradeguard/internal/position"
	"github.com/robsonhq/tradeguard/internal/sizing"
)

// Mode selects where orders go.
type Mode string

const (
	DryRun Mode = "DRY_RUN"
	Live   Mode = "LIVE"
)

var (
	// ErrInvalidParameters rejects a malformed plan request before anything
	// is persisted or sent to a venue.
	ErrInvalidParameters = errors.New("invalid intent parameters")
	// ErrRiskNotAcknowledged blocks live execution without an explicit
	// acknowledgement. Checked before anything irreversible happens.
	ErrRiskNotAcknowledged = errors.New("live execution requires risk acknowledgement")
	// ErrIntentNotFound for lookups of unknown IDs.
	ErrIntentNotFound = errors.New("intent not found")
	// ErrNotValidated means Execute was called before a passing validation.
	ErrNotValidated = errors.New("intent is not validated")
	// ErrNotCancellable means the intent already moved past the point of no return.
	ErrNotCancellable = errors.New("intent can no longer be cancelled")
)

// PartialFillExposureError reports an entry that filled while every attempt
// to place its protective stop failed. The position is open and unprotected;
// callers must treat this as a live incident, not a failed execution.
type PartialFillExposureError struct {
	IntentID     string
	PositionID   string
	EntryOrderID string
	Exposure     time.Duration
	LastErr      error
}

func (e *PartialFillExposureError) Error() string {
	return fmt.Sprintf("position %s is open without a protective stop (exposed %s): %v",
		e.PositionID, e.Exposure, e.LastErr)
}

func (e *PartialFillExposureError) Unwrap() error { return e.LastErr }

// Store is the persistence the coordinator needs.
type Store interface {
	intent.Store
	position.Store
	policy.Store
}

// Config for the coordinator.
type Config struct {
	Mode            Mode
	QuoteAsset      string  // asset the capital is denominated in, e.g. "USDT"
	StartingCapital float64 // seeds policy state on first run
	StopRetries     int     // protective stop placement attempts, default 3
	StopRetryDelay  time.Duration
}

// Coordinator owns the intent lifecycle.
type Coordinator struct {
	cfg      Config
	store    Store
	journal  journal.Journaler
	live     exchange.Gateway
	sim      *exchange.Simulator
	sizer    *sizing.Sizer
	guards   *guard.Chain
	notifier notifier.Notifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-intent, single writer
}

// New builds a coordinator. The simulator is always constructed so a dry run
// never touches the live gateway for order placement.
func New(cfg Config, store Store, jrnl journal.Journaler, gw exchange.Gateway, sizer *sizing.Sizer, guards *guard.Chain, ntf notifier.Notifier) *Coordinator {
	if cfg.StopRetries <= 0 {
		cfg.StopRetries = 3
	}
	if cfg.StopRetryDelay <= 0 {
		cfg.StopRetryDelay = 2 * time.Second
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if ntf == nil {
		ntf = notifier.Noop{}
	}
	sim := exchange.NewSimulator()
	sim.SetBalance(cfg.QuoteAsset, cfg.StartingCapital)
	return &Coordinator{
		cfg:      cfg,
		store:    store,
		journal:  jrnl,
		live:     gw,
		sim:      sim,
		sizer:    sizer,
		guards:   guards,
		notifier: ntf,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Mode reports the configured execution mode.
func (c *Coordinator) Mode() Mode { return c.cfg.Mode }

// Simulator exposes the dry-run venue so callers can seed quotes.
func (c *Coordinator) Simulator() *exchange.Simulator { return c.sim }

// lockFor returns the mutex serializing all writes for one intent.
func (c *Coordinator) lockFor(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

// gateway returns where orders go for the configured mode.
func (c *Coordinator) gateway() exchange.Gateway {
	if c.cfg.Mode == Live {
		return c.live
	}
	return c.sim
}

// PlanRequest describes a proposed trade before sizing.
type PlanRequest struct {
	Symbol          string
	Side            position.Side
	EntryPrice      float64
	StopPrice       float64
	TakeProfitPrice float64
	Capital         float64 // 0 means read the free balance from the venue
	Strategy        string
	Provenance      intent.Provenance
	Confidence      float64
	Reason          string
}

// validate rejects malformed requests. The direction checks mirror
// position.FromFill so a bad intent can never get as far as an order.
func (r PlanRequest) validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidParameters)
	}
	if !r.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidParameters, r.Side)
	}
	if r.EntryPrice <= 0 || r.StopPrice <= 0 {
		return fmt.Errorf("%w: entry and stop must be positive, got entry=%v stop=%v", ErrInvalidParameters, r.EntryPrice, r.StopPrice)
	}
	if r.Side == position.Long && r.StopPrice >= r.EntryPrice {
		return fmt.Errorf("%w: long stop %v must be below entry %v", ErrInvalidParameters, r.StopPrice, r.EntryPrice)
	}
	if r.Side == position.Short && r.StopPrice <= r.EntryPrice {
		return fmt.Errorf("%w: short stop %v must be above entry %v", ErrInvalidParameters, r.StopPrice, r.EntryPrice)
	}
	if r.TakeProfitPrice != 0 {
		if r.Side == position.Long && r.TakeProfitPrice <= r.EntryPrice {
			return fmt.Errorf("%w: long target %v must be above entry %v", ErrInvalidParameters, r.TakeProfitPrice, r.EntryPrice)
		}
		if r.Side == position.Short && r.TakeProfitPrice >= r.EntryPrice {
			return fmt.Errorf("%w: short target %v must be below entry %v", ErrInvalidParameters, r.TakeProfitPrice, r.EntryPrice)
		}
	}
	if r.Capital < 0 {
		return fmt.Errorf("%w: capital must not be negative, got %v", ErrInvalidParameters, r.Capital)
	}
	return nil
}

// Plan sizes the trade and persists a PENDING intent. Nothing is sent to the
// exchange and no guard runs yet.
func (c *Coordinator) Plan(ctx context.Context, req PlanRequest) (*intent.Intent, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	capital := req.Capital
	if capital <= 0 {
		bal, err := c.gateway().GetBalance(ctx, c.cfg.QuoteAsset)
		if err != nil {
			return nil, fmt.Errorf("plan: read balance: %w", err)
		}
		capital = bal.Free
	}

	sized, err := c.sizer.Size(capital, req.EntryPrice, req.StopPrice, req.Side)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	now := time.Now().UTC()
	provenance := req.Provenance
	if provenance == "" {
		provenance = intent.ProvenanceManual
	}
	it := &intent.Intent{
		ID:              uuid.NewString(),
		Symbol:          req.Symbol,
		Side:            req.Side,
		Strategy:        req.Strategy,
		EntryPrice:      req.EntryPrice,
		StopPrice:       req.StopPrice,
		TakeProfitPrice: req.TakeProfitPrice,
		Quantity:        sized.Quantity,
		Capital:         capital,
		RiskAmount:      sized.MaxRisk,
		RiskPercent:     sized.RiskPercent,
		Status:          intent.StatusPending,
		Provenance:      provenance,
		Confidence:      req.Confidence,
		Reason:          req.Reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.store.SaveIntent(ctx, it); err != nil {
		return nil, fmt.Errorf("plan: save intent: %w", err)
	}

	c.record(ctx, journal.Event{
		IntentID:    it.ID,
		Type:        journal.TypeIntentPlanned,
		Description: fmt.Sprintf("%s %s %s qty %.5f entry %.2f stop %.2f", it.Strategy, it.Side, it.Symbol, it.Quantity, it.EntryPrice, it.StopPrice),
		Data: map[string]any{
			"risk_amount":  it.RiskAmount,
			"risk_percent": it.RiskPercent,
			"warnings":     sized.Warnings,
		},
		Time: now,
	})
	log.Printf("Executor | planned intent %s: %s %s qty %.5f", it.ID, it.Side, it.Symbol, it.Quantity)
	return it, nil
}

// Validate runs the guard chain. A FAIL leaves the intent PENDING and returns
// a FailureError carrying the full report; PASS and WARNING both move it to
// VALIDATED with the report attached.
func (c *Coordinator) Validate(ctx context.Context, id string) (*intent.Intent, error) {
	lock := c.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	it, err := c.store.GetIntent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if it == nil {
		return nil, fmt.Errorf("validate %s: %w", id, ErrIntentNotFound)
	}
	if it.Status != intent.StatusPending {
		return nil, fmt.Errorf("validate %s: expected PENDING, got %s", id, it.Status)
	}

	snap, err := c.snapshot(ctx, it)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", id, err)
	}

	now := time.Now().UTC()
	report := c.guards.Validate(snap)
	it.ValidationResult = toValidationResult(report, now)

	if report.Status == guard.Fail {
		// Stays PENDING so the caller can adjust and re-validate.
		if err := c.store.SaveIntent(ctx, it); err != nil {
			return nil, fmt.Errorf("validate: save intent: %w", err)
		}
		c.record(ctx, journal.Event{
			IntentID:    it.ID,
			Type:        journal.TypeIntentBlocked,
			Description: fmt.Sprintf("blocked by %s", strings.Join(report.Failed(), ", ")),
			Data:        map[string]any{"checks": checkSummaries(report)},
			Time:        now,
		})
		for _, name := range report.Failed() {
			monitoring.RecordGuardFailure(name)
		}
		log.Printf("Executor | intent %s blocked by guards: %v", it.ID, report.Failed())
		return it, &guard.FailureError{Report: report}
	}

	if err := it.Transition(intent.StatusValidated, now); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if err := c.store.SaveIntent(ctx, it); err != nil {
		return nil, fmt.Errorf("validate: save intent: %w", err)
	}
	c.record(ctx, journal.Event{
		IntentID:    it.ID,
		Type:        journal.TypeIntentValidated,
		Description: fmt.Sprintf("validation %s", report.Status),
		Data:        map[string]any{"checks": checkSummaries(report)},
		Time:        now,
	})
	log.Printf("Executor | intent %s validated (%s)", it.ID, report.Status)
	return it, nil
}

// snapshot collects the world state the guards evaluate against.
func (c *Coordinator) snapshot(ctx context.Context, it *intent.Intent) (guard.Snapshot, error) {
	bal, err := c.gateway().GetBalance(ctx, c.cfg.QuoteAsset)
	if err != nil {
		return guard.Snapshot{}, fmt.Errorf("read balance: %w", err)
	}
	open, err := c.store.CountOpenPositions(ctx)
	if err != nil {
		return guard.Snapshot{}, fmt.Errorf("count open positions: %w", err)
	}
	pol, err := c.policyState(ctx)
	if err != nil {
		return guard.Snapshot{}, err
	}
	return guard.Snapshot{
		Intent:        it,
		FreeBalance:   bal.Free,
		OpenPositions: open,
		Policy:        pol,
	}, nil
}

// policyState loads the accumulator, creating and rolling it as needed.
func (c *Coordinator) policyState(ctx context.Context) (*policy.State, error) {
	now := time.Now().UTC()
	pol, err := c.store.GetPolicyState(ctx)
	if err != nil {
		return nil, fmt.Errorf("get policy state: %w", err)
	}
	if pol == nil {
		pol = policy.NewState(c.cfg.StartingCapital, now)
		if err := c.store.SavePolicyState(ctx, pol); err != nil {
			return nil, fmt.Errorf("save policy state: %w", err)
		}
		return pol, nil
	}
	before := pol.Month
	pol.Rollover(now)
	if pol.Month != before || pol.Day != now.Format("2006-01-02") {
		// Rollover mutated; persist so restarts agree.
		if err := c.store.SavePolicyState(ctx, pol); err != nil {
			return nil, fmt.Errorf("save policy state: %w", err)
		}
	}
	return pol, nil
}

// ExecuteOptions gate live execution.
type ExecuteOptions struct {
	// AcknowledgeRisk must be true for LIVE mode. Ignored in DRY_RUN.
	AcknowledgeRisk bool
}

// Execute places the entry order and its protective stop as one logical unit.
// Calling it again on an executed intent returns the recorded result without
// touching the exchange.
func (c *Coordinator) Execute(ctx context.Context, id string, opts ExecuteOptions) (*intent.ExecutionResult, error) {
	lock := c.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	it, err := c.store.GetIntent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	if it == nil {
		return nil, fmt.Errorf("execute %s: %w", id, ErrIntentNotFound)
	}

	// Idempotency: an executed intent answers from its record.
	if it.Status == intent.StatusExecuted && it.ExecutionResult != nil {
		return it.ExecutionResult, nil
	}
	if it.Status != intent.StatusValidated {
		return nil, fmt.Errorf("execute %s: status %s: %w", id, it.Status, ErrNotValidated)
	}
	if c.cfg.Mode == Live && !opts.AcknowledgeRisk {
		return nil, fmt.Errorf("execute %s: %w", id, ErrRiskNotAcknowledged)
	}

	now := time.Now().UTC()
	if err := it.Transition(intent.StatusExecuting, now); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	if err := c.store.SaveIntent(ctx, it); err != nil {
		return nil, fmt.Errorf("execute: save intent: %w", err)
	}
	c.record(ctx, journal.Event{
		IntentID: it.ID, Type: journal.TypeIntentExecuting,
		Description: fmt.Sprintf("mode %s", c.cfg.Mode), Time: now,
	})

	gw := c.gateway()
	if c.cfg.Mode == DryRun {
		c.sim.SetQuote(it.Symbol, it.EntryPrice, it.EntryPrice)
	}

	entry, err := gw.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   it.Symbol,
		Side:     entrySide(it.Side),
		Type:     exchange.Market,
		Quantity: it.Quantity,
	})
	if err != nil {
		return nil, c.failIntent(ctx, it, fmt.Errorf("entry order: %w", err))
	}
	c.record(ctx, journal.Event{
		IntentID: it.ID, Type: journal.TypeOrderPlaced,
		Description: fmt.Sprintf("entry %s filled %.5f @ %.2f", entry.OrderID, entry.FilledQty, entry.AvgPrice),
		Data:        map[string]any{"order_id": entry.OrderID, "role": "entry"},
		Time:        time.Now().UTC(),
	})

	fillPrice := entry.AvgPrice
	if fillPrice <= 0 {
		fillPrice = it.EntryPrice
	}
	fillQty := entry.FilledQty
	if fillQty <= 0 {
		fillQty = it.Quantity
	}

	pos, err := position.FromFill(uuid.NewString(), it.ID, it.Symbol, it.Side,
		fillQty, fillPrice, it.StopPrice, it.TakeProfitPrice, time.Now().UTC())
	if err != nil {
		return nil, c.failIntent(ctx, it, fmt.Errorf("open position: %w", err))
	}
	if err := c.store.SavePosition(ctx, pos); err != nil {
		return nil, c.failIntent(ctx, it, fmt.Errorf("save position: %w", err))
	}

	// The fill exists on the venue now. From here on the stop is retried,
	// never abandoned silently.
	exposedSince := time.Now().UTC()
	stopOrder, retries, stopErr := c.placeStop(ctx, gw, it, fillQty)
	exposure := time.Since(exposedSince)

	result := &intent.ExecutionResult{
		Mode:             string(c.cfg.Mode),
		EntryOrderID:     entry.OrderID,
		PositionID:       pos.ID,
		FillPrice:        fillPrice,
		FillQuantity:     fillQty,
		StopRetries:      retries,
		ExposureDuration: exposure.String(),
		ExecutedAt:       time.Now().UTC(),
	}
	if stopErr == nil {
		result.StopOrderID = stopOrder.OrderID
	}

	it.ExecutionResult = result
	if err := it.Transition(intent.StatusExecuted, result.ExecutedAt); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	if stopErr != nil {
		it.ErrorMessage = fmt.Sprintf("protective stop not placed: %v", stopErr)
	}
	if err := c.store.SaveIntent(ctx, it); err != nil {
		return nil, fmt.Errorf("execute: save intent: %w", err)
	}
	c.record(ctx, journal.Event{
		IntentID: it.ID, PositionID: pos.ID, Type: journal.TypeIntentExecuted,
		Description: fmt.Sprintf("filled %.5f @ %.2f (%s)", fillQty, fillPrice, c.cfg.Mode),
		Data:        map[string]any{"entry_order_id": entry.OrderID, "stop_order_id": result.StopOrderID},
		Time:        result.ExecutedAt,
	})
	monitoring.RecordIntent(it.Symbol, "executed")
	log.Printf("Executor | intent %s executed: position %s filled %.5f @ %.2f", it.ID, pos.ID, fillQty, fillPrice)

	if stopErr != nil {
		expErr := &PartialFillExposureError{
			IntentID:     it.ID,
			PositionID:   pos.ID,
			EntryOrderID: entry.OrderID,
			Exposure:     exposure,
			LastErr:      stopErr,
		}
		c.record(ctx, journal.Event{
			IntentID: it.ID, PositionID: pos.ID, Type: journal.TypeUnprotectedExposure,
			Description: expErr.Error(),
			Data:        map[string]any{"retries": retries, "exposure": exposure.String()},
			Time:        time.Now().UTC(),
		})
		if err := c.notifier.SendWithRetry(fmt.Sprintf("UNPROTECTED POSITION %s %s: entry filled, stop placement failed after %d attempts", it.Symbol, it.Side, retries)); err != nil {
			log.Printf("Executor | alert send failed: %v", err)
		}
		log.Printf("Executor | UNPROTECTED position %s: %v", pos.ID, stopErr)
		return result, expErr
	}
	return result, nil
}

// placeStop submits the protective stop, retrying with backoff.
func (c *Coordinator) placeStop(ctx context.Context, gw exchange.Gateway, it *intent.Intent, qty float64) (exchange.OrderResult, int, error) {
	req := exchange.OrderRequest{
		Symbol:    it.Symbol,
		Side:      exitSide(it.Side),
		Type:      exchange.StopLimit,
		Price:     it.StopPrice,
		StopPrice: it.StopPrice,
		Quantity:  qty,
	}
	var lastErr error
	for attempt := 1; attempt <= c.cfg.StopRetries; attempt++ {
		order, err := gw.PlaceOrder(ctx, req)
		if err == nil {
			c.record(ctx, journal.Event{
				IntentID: it.ID, Type: journal.TypeOrderPlaced,
				Description: fmt.Sprintf("protective stop %s @ %.2f", order.OrderID, it.StopPrice),
				Data:        map[string]any{"order_id": order.OrderID, "role": "stop", "attempt": attempt},
				Time:        time.Now().UTC(),
			})
			return order, attempt - 1, nil
		}
		lastErr = err
		log.Printf("Executor | stop placement attempt %d/%d for intent %s failed: %v", attempt, c.cfg.StopRetries, it.ID, err)
		select {
		case <-ctx.Done():
			return exchange.OrderResult{}, attempt, ctx.Err()
		case <-time.After(c.cfg.StopRetryDelay):
		}
	}
	return exchange.OrderResult{}, c.cfg.StopRetries, lastErr
}

// Cancel withdraws an intent that has not begun executing.
func (c *Coordinator) Cancel(ctx context.Context, id, reason string) (*intent.Intent, error) {
	lock := c.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	it, err := c.store.GetIntent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	if it == nil {
		return nil, fmt.Errorf("cancel %s: %w", id, ErrIntentNotFound)
	}
	now := time.Now().UTC()
	if err := it.Transition(intent.StatusCancelled, now); err != nil {
		return nil, fmt.Errorf("cancel %s: status %s: %w", id, it.Status, ErrNotCancellable)
	}
	if reason != "" {
		it.ErrorMessage = reason
	}
	if err := c.store.SaveIntent(ctx, it); err != nil {
		return nil, fmt.Errorf("cancel: save intent: %w", err)
	}
	c.record(ctx, journal.Event{
		IntentID: it.ID, Type: journal.TypeIntentCancelled,
		Description: reason, Time: now,
	})
	monitoring.RecordIntent(it.Symbol, "cancelled")
	log.Printf("Executor | intent %s cancelled", it.ID)
	return it, nil
}

// Get returns the current record of an intent.
func (c *Coordinator) Get(ctx context.Context, id string) (*intent.Intent, error) {
	it, err := c.store.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("get %s: %w", id, ErrIntentNotFound)
	}
	return it, nil
}

// RecordClose folds a realized close into policy state and the ledger.
// Monitors call this after they confirm an exit fill; they never write the
// accumulators directly.
func (c *Coordinator) RecordClose(ctx context.Context, pos *position.Position, eventType string) error {
	pol, err := c.policyState(ctx)
	if err != nil {
		return fmt.Errorf("record close: %w", err)
	}
	now := time.Now().UTC()
	wasSuspended := pol.Suspended
	pol.RecordPnL(pos.RealizedPnL, now)
	if err := c.store.SavePolicyState(ctx, pol); err != nil {
		return fmt.Errorf("record close: save policy state: %w", err)
	}

	c.record(ctx, journal.Event{
		IntentID: pos.IntentID, PositionID: pos.ID, Type: eventType,
		Description: fmt.Sprintf("%s %s closed @ %.2f pnl %.2f", pos.Side, pos.Symbol, pos.ExitPrice, pos.RealizedPnL),
		Data: map[string]any{
			"exit_price":   pos.ExitPrice,
			"realized_pnl": pos.RealizedPnL,
			"daily_loss":   pol.DailyRealizedLoss,
			"monthly_loss": pol.MonthlyRealizedLoss,
		},
		Time: now,
	})

	monitoring.SetPolicyLevels(pol.DailyLossPercent(), pol.MonthlyDrawdownPercent())

	if pol.Suspended && !wasSuspended {
		c.record(ctx, journal.Event{
			Type:        journal.TypePolicySuspended,
			Description: pol.SuspendedReason,
			Data:        map[string]any{"monthly_drawdown_percent": pol.MonthlyDrawdownPercent()},
			Time:        now,
		})
		if err := c.notifier.SendWithRetry(fmt.Sprintf("TRADING SUSPENDED: monthly drawdown %.2f%%", pol.MonthlyDrawdownPercent())); err != nil {
			log.Printf("Executor | alert send failed: %v", err)
		}
		log.Printf("Executor | trading suspended: monthly drawdown %.2f%%", pol.MonthlyDrawdownPercent())
	}
	return nil
}

// failIntent moves an executing intent to FAILED and reports the cause.
func (c *Coordinator) failIntent(ctx context.Context, it *intent.Intent, cause error) error {
	now := time.Now().UTC()
	it.ErrorMessage = cause.Error()
	if err := it.Transition(intent.StatusFailed, now); err != nil {
		log.Printf("Executor | intent %s: %v", it.ID, err)
	}
	if err := c.store.SaveIntent(ctx, it); err != nil {
		log.Printf("Executor | intent %s: save failed state: %v", it.ID, err)
	}
	c.record(ctx, journal.Event{
		IntentID: it.ID, Type: journal.TypeIntentFailed,
		Description: cause.Error(), Time: now,
	})
	monitoring.RecordIntent(it.Symbol, "failed")
	monitoring.RecordError("execution")
	log.Printf("Executor | intent %s failed: %v", it.ID, cause)
	return fmt.Errorf("execute %s: %w", it.ID, cause)
}

// record appends to the ledger. Journal failures are logged, never allowed to
// abort the trading path.
func (c *Coordinator) record(ctx context.Context, e journal.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if err := c.journal.Record(ctx, e); err != nil {
		log.Printf("Executor | journal record failed (%s): %v", e.Type, err)
	}
}

func entrySide(s position.Side) string {
	if s == position.Long {
		return "buy"
	}
	return "sell"
}

func exitSide(s position.Side) string {
	if s == position.Long {
		return "sell"
	}
	return "buy"
}

func toValidationResult(r guard.Report, now time.Time) *intent.ValidationResult {
	vr := &intent.ValidationResult{Status: string(r.Status), Time: now}
	for _, ch := range r.Checks {
		vr.Checks = append(vr.Checks, intent.ValidationCheck{
			Name: ch.Name, Status: string(ch.Status), Message: ch.Message,
		})
	}
	return vr
}

func checkSummaries(r guard.Report) []string {
	var out []string
	for _, ch := range r.Checks {
		out = append(out, fmt.Sprintf("%s=%s", ch.Name, ch.Status))
	}
	return out
}
