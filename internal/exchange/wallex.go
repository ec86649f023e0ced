package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	wallex "github.com/wallexchange/wallex-go"
)

// WallexGateway adapts the Wallex spot API to the Gateway port.
type WallexGateway struct {
	client *wallex.Client
}

// NewWallexGateway builds a gateway from an API key. The client is
// constructed here and injected nowhere else; tests use the simulator.
func NewWallexGateway(apiKey string) *WallexGateway {
	return &WallexGateway{
		client: wallex.New(wallex.ClientOptions{APIKey: apiKey}),
	}
}

func (w *WallexGateway) Name() string { return "wallex" }

func (w *WallexGateway) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	select {
	case <-ctx.Done():
		return OrderResult{}, fmt.Errorf("%s PlaceOrder: %w", w.Name(), ErrTimeout)
	default:
	}

	params := &wallex.OrderParams{
		Symbol:   normalizeSymbol(req.Symbol),
		Type:     strings.ToUpper(string(req.Type)),
		Side:     strings.ToUpper(req.Side),
		Price:    wallex.Number(strconv.FormatFloat(req.Price, 'f', 8, 64)),
		Quantity: wallex.Number(strconv.FormatFloat(req.Quantity, 'f', 8, 64)),
	}
	resp, err := w.client.PlaceOrder(params)
	if err != nil {
		return OrderResult{}, fmt.Errorf("%s PlaceOrder: %w", w.Name(), err)
	}

	return OrderResult{
		OrderID:   resp.ClientOrderID,
		Status:    strings.ToUpper(resp.Status),
		FilledQty: numberValue(resp.ExecutedQty),
		AvgPrice:  numberValue(resp.ExecutedPrice),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timestamp: resp.CreatedAt.UTC(),
	}, nil
}

func (w *WallexGateway) CancelOrder(ctx context.Context, orderID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return w.client.CancelOrder(orderID)
	}
}

func (w *WallexGateway) GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error) {
	select {
	case <-ctx.Done():
		return OrderResult{}, ctx.Err()
	default:
	}

	resp, err := w.client.Order(orderID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("%s GetOrderStatus: %w", w.Name(), err)
	}
	return OrderResult{
		OrderID:   resp.ClientOrderID,
		Status:    strings.ToUpper(resp.Status),
		FilledQty: numberValue(resp.ExecutedQty),
		AvgPrice:  numberValue(resp.ExecutedPrice),
		Symbol:    resp.Symbol,
		Side:      strings.ToLower(resp.Side),
		Type:      OrderType(strings.ToLower(resp.Type)),
		Timestamp: resp.CreatedAt.UTC(),
	}, nil
}

func (w *WallexGateway) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	var asks, bids []*wallex.MarketOrder
	err := retry(ctx, 3, 2*time.Second, w.Name(), func() error {
		var err error
		asks, bids, err = w.client.MarketOrders(normalizeSymbol(symbol))
		return err
	})
	if err != nil {
		return Quote{}, fmt.Errorf("%s GetPrice %s: %w", w.Name(), symbol, err)
	}

	q := Quote{Symbol: symbol, Time: time.Now().UTC()}
	// Best bid is the highest buy, best ask the lowest sell.
	for _, b := range bids {
		if p, err := strconv.ParseFloat(string(b.Price), 64); err == nil && p > q.Bid {
			q.Bid = p
		}
	}
	for _, a := range asks {
		if p, err := strconv.ParseFloat(string(a.Price), 64); err == nil && (q.Ask == 0 || p < q.Ask) {
			q.Ask = p
		}
	}
	if q.Bid == 0 && q.Ask == 0 {
		return Quote{}, fmt.Errorf("%s GetPrice %s: empty order book", w.Name(), symbol)
	}
	return q, nil
}

func (w *WallexGateway) GetBalance(ctx context.Context, asset string) (Balance, error) {
	var balances map[string]*wallex.Balance
	err := retry(ctx, 3, 2*time.Second, w.Name(), func() error {
		var err error
		balances, err = w.client.Balances()
		return err
	})
	if err != nil {
		return Balance{}, fmt.Errorf("%s GetBalance %s: %w", w.Name(), asset, err)
	}

	wb, ok := balances[asset]
	if !ok {
		return Balance{Asset: asset}, nil
	}
	free, _ := strconv.ParseFloat(string(wb.Value), 64)
	locked, _ := strconv.ParseFloat(string(wb.Locked), 64)
	return Balance{Asset: asset, Free: free, Locked: locked}, nil
}

// normalizeSymbol turns "BTC-USDT" into the venue form "BTCUSDT".
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}

func numberValue(n *wallex.Number) float64 {
	if n == nil {
		return 0
	}
	v, _ := strconv.ParseFloat(string(*n), 64)
	return v
}
