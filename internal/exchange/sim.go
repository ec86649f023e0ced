package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Simulator is an in-process gateway with no network side effects. Dry-run
// executions route through it so the rest of the pipeline runs unchanged;
// tests drive it directly. Orders fill immediately and in full.
type Simulator struct {
	mu       sync.Mutex
	quotes   map[string]Quote
	balances map[string]Balance
	orders   map[string]OrderResult
	seq      int
}

// NewSimulator starts with empty books. Seed quotes and balances before use.
func NewSimulator() *Simulator {
	return &Simulator{
		quotes:   make(map[string]Quote),
		balances: make(map[string]Balance),
		orders:   make(map[string]OrderResult),
	}
}

func (s *Simulator) Name() string { return "simulator" }

// SetQuote seeds or moves the top of book for a symbol.
func (s *Simulator) SetQuote(symbol string, bid, ask float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[normalizeSymbol(symbol)] = Quote{Symbol: symbol, Bid: bid, Ask: ask, Time: time.Now().UTC()}
}

// SetBalance seeds the free balance for an asset.
func (s *Simulator) SetBalance(asset string, free float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[asset] = Balance{Asset: asset, Free: free}
}

func (s *Simulator) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	if req.Quantity <= 0 {
		return OrderResult{}, fmt.Errorf("%s PlaceOrder: %w: quantity must be positive", s.Name(), ErrRejected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fillPrice := req.Price
	if req.Type == Market {
		q, ok := s.quotes[normalizeSymbol(req.Symbol)]
		if !ok {
			return OrderResult{}, fmt.Errorf("%s PlaceOrder: no quote for %s", s.Name(), req.Symbol)
		}
		// Market buys lift the ask, market sells hit the bid.
		if req.Side == "buy" {
			fillPrice = q.Ask
		} else {
			fillPrice = q.Bid
		}
	}

	s.seq++
	result := OrderResult{
		OrderID:   fmt.Sprintf("sim-%06d", s.seq),
		Status:    "FILLED",
		FilledQty: req.Quantity,
		AvgPrice:  fillPrice,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timestamp: time.Now().UTC(),
	}
	s.orders[result.OrderID] = result
	return result, nil
}

func (s *Simulator) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%s CancelOrder: order %s not found", s.Name(), orderID)
	}
	if o.Status == "FILLED" {
		return fmt.Errorf("%s CancelOrder: order %s already filled", s.Name(), orderID)
	}
	o.Status = "CANCELED"
	s.orders[orderID] = o
	return nil
}

func (s *Simulator) GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return OrderResult{}, fmt.Errorf("%s GetOrderStatus: order %s not found", s.Name(), orderID)
	}
	return o, nil
}

func (s *Simulator) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[normalizeSymbol(symbol)]
	if !ok {
		return Quote{}, fmt.Errorf("%s GetPrice: no quote for %s", s.Name(), symbol)
	}
	return q, nil
}

func (s *Simulator) GetBalance(ctx context.Context, asset string) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[asset], nil
}
