// Package exchange
package exchange

import (
	"context"
	"errors"
	"log"
	"time"
)

var (
	// ErrTimeout marks a gateway call that did not get a definitive answer.
	ErrTimeout = errors.New("exchange timeout")
	// ErrRejected marks an order the exchange refused.
	ErrRejected = errors.New("exchange rejected order")
)

// OrderType of a request.
type OrderType string

const (
	Market    OrderType = "market"
	Limit     OrderType = "limit"
	StopLimit OrderType = "stop-limit"
)

// OrderRequest represents a new order to be submitted.
type OrderRequest struct {
	Symbol    string
	Side      string // "buy" or "sell"
	Type      OrderType
	Price     float64
	StopPrice float64 // for stop-limit orders
	Quantity  float64
}

// OrderResult represents the response from the exchange.
type OrderResult struct {
	OrderID   string
	Status    string
	FilledQty float64
	AvgPrice  float64
	Symbol    string
	Side      string
	Type      OrderType
	Price     float64
	Quantity  float64
	Timestamp time.Time
}

// Quote is the current top of book for a symbol.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Balance for a single asset.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Gateway is the port to a venue. The core never constructs exchange SDK
// objects directly; adapters do. Price and balance reads are idempotent and
// may be retried; PlaceOrder must never be blindly retried since a retry of
// a possibly-succeeded order risks duplicate execution.
type Gateway interface {
	Name() string
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error)
	GetPrice(ctx context.Context, symbol string) (Quote, error)
	GetBalance(ctx context.Context, asset string) (Balance, error)
}

// retry wraps an idempotent read with backoff. Capped so a dead venue does
// not wedge a monitor tick forever.
func retry(ctx context.Context, attempts int, delay time.Duration, name string, fn func() error) error {
	backoff := delay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		log.Printf("Exchange | %s retry %d/%d failed: %v, backing off %v", name, i, attempts, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
	return err
}
