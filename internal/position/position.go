// Package position
package position

import (
	"fmt"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == Long || s == Short }

// Opposite returns the exit direction for s.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Status of a position. Transitions only move forward.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusOpen       Status = "OPEN"
	StatusClosing    Status = "CLOSING"
	StatusClosed     Status = "CLOSED"
	StatusStoppedOut Status = "STOPPED_OUT"
	StatusTakeProfit Status = "TAKE_PROFIT"
	StatusLiquidated Status = "LIQUIDATED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusClosed, StatusStoppedOut, StatusTakeProfit, StatusLiquidated:
		return true
	}
	return false
}

// rank orders statuses so transitions are monotonic forward.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusOpen:
		return 1
	case StatusClosing:
		return 2
	case StatusClosed, StatusStoppedOut, StatusTakeProfit, StatusLiquidated:
		return 3
	}
	return -1
}

// CanTransition reports whether s may move to next. Backward moves are
// rejected so a stopped-out position can never reopen.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Position is an open exposure on the exchange. It only ever comes into
// existence from an executed intent: there is no constructor that accepts a
// quantity without the entry and stop it was derived from.
type Position struct {
	ID       string  `json:"id"`
	IntentID string  `json:"intent_id"`
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`

	EntryPrice      float64 `json:"entry_price"`
	InitialStop     float64 `json:"initial_stop"`
	StopPrice       float64 `json:"stop_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	Leverage        float64 `json:"leverage"`

	Status   Status    `json:"status"`
	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at"`

	ExitPrice   float64 `json:"exit_price"`
	RealizedPnL float64 `json:"realized_pnl"`

	UpdatedAt time.Time `json:"updated_at"`
}

// FromFill builds an OPEN position out of an executed entry. The quantity
// always travels together with the entry and stop it was sized from.
func FromFill(id, intentID, symbol string, side Side, quantity, entryPrice, stopPrice, takeProfitPrice float64, openedAt time.Time) (*Position, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", quantity)
	}
	if entryPrice <= 0 || stopPrice <= 0 {
		return nil, fmt.Errorf("entry and stop must be positive, got entry=%v stop=%v", entryPrice, stopPrice)
	}
	if side == Long && stopPrice >= entryPrice {
		return nil, fmt.Errorf("long stop %v must be below entry %v", stopPrice, entryPrice)
	}
	if side == Short && stopPrice <= entryPrice {
		return nil, fmt.Errorf("short stop %v must be above entry %v", stopPrice, entryPrice)
	}
	return &Position{
		ID:              id,
		IntentID:        intentID,
		Symbol:          symbol,
		Side:            side,
		Quantity:        quantity,
		EntryPrice:      entryPrice,
		InitialStop:     stopPrice,
		StopPrice:       stopPrice,
		TakeProfitPrice: takeProfitPrice,
		Status:          StatusOpen,
		OpenedAt:        openedAt,
		UpdatedAt:       openedAt,
	}, nil
}

// Span is the distance between entry and the initial technical stop. It is
// fixed for the life of the position and is the unit the trailing ratchet
// moves in.
func (p *Position) Span() float64 {
	d := p.EntryPrice - p.InitialStop
	if d < 0 {
		return -d
	}
	return d
}

// PnL computes realized profit for a close at exitPrice.
func (p *Position) PnL(exitPrice float64) float64 {
	if p.Side == Long {
		return (exitPrice - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - exitPrice) * p.Quantity
}

// StopHit reports whether price breaches the protective stop.
func (p *Position) StopHit(price float64) bool {
	if p.StopPrice <= 0 {
		return false
	}
	if p.Side == Long {
		return price <= p.StopPrice
	}
	return price >= p.StopPrice
}

// TakeProfitHit reports whether price reaches the profit target.
func (p *Position) TakeProfitHit(price float64) bool {
	if p.TakeProfitPrice <= 0 {
		return false
	}
	if p.Side == Long {
		return price >= p.TakeProfitPrice
	}
	return price <= p.TakeProfitPrice
}

// MoreFavorable reports whether candidate is strictly better protection than
// the current stop.
func (p *Position) MoreFavorable(candidate float64) bool {
	if p.Side == Long {
		return candidate > p.StopPrice
	}
	return candidate < p.StopPrice
}
