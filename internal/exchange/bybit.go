package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// BybitGateway adapts the Bybit v5 unified trading API to the Gateway port.
// Category is fixed at construction; one gateway per market type.
type BybitGateway struct {
	client   *bybit_api.Client
	category string
}

// NewBybitGateway builds a gateway for the given category ("spot" or
// "linear"). An empty baseURL targets production.
func NewBybitGateway(apiKey, apiSecret, category, baseURL string) *BybitGateway {
	if category == "" {
		category = "spot"
	}
	if baseURL == "" {
		baseURL = bybit_api.MAINNET
	}
	return &BybitGateway{
		client:   bybit_api.NewBybitHttpClient(apiKey, apiSecret, bybit_api.WithBaseURL(baseURL)),
		category: category,
	}
}

func (b *BybitGateway) Name() string { return "bybit" }

func (b *BybitGateway) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	params := map[string]interface{}{
		"category": b.category,
		"symbol":   normalizeSymbol(req.Symbol),
		"side":     titleSide(req.Side),
		"qty":      strconv.FormatFloat(req.Quantity, 'f', -1, 64),
	}
	switch req.Type {
	case Market:
		params["orderType"] = "Market"
	default:
		params["orderType"] = "Limit"
		params["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		params["timeInForce"] = "GTC"
	}
	if req.Type == StopLimit && req.StopPrice > 0 {
		params["triggerPrice"] = strconv.FormatFloat(req.StopPrice, 'f', -1, 64)
	}

	resp, err := b.client.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("%s PlaceOrder: %w", b.Name(), err)
	}
	result, err := decodeResult(resp)
	if err != nil {
		return OrderResult{}, fmt.Errorf("%s PlaceOrder: %w", b.Name(), err)
	}

	var placed struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(result, &placed); err != nil {
		return OrderResult{}, fmt.Errorf("%s PlaceOrder: unmarshal result: %w", b.Name(), err)
	}

	return OrderResult{
		OrderID:   placed.OrderID,
		Status:    "NEW",
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (b *BybitGateway) CancelOrder(ctx context.Context, orderID string) error {
	params := map[string]interface{}{
		"category": b.category,
		"orderId":  orderID,
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("%s CancelOrder %s: %w", b.Name(), orderID, err)
	}
	if _, err := decodeResult(resp); err != nil {
		return fmt.Errorf("%s CancelOrder %s: %w", b.Name(), orderID, err)
	}
	return nil
}

func (b *BybitGateway) GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error) {
	params := map[string]interface{}{
		"category": b.category,
		"orderId":  orderID,
		"openOnly": 2, // include recently closed orders
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("%s GetOrderStatus %s: %w", b.Name(), orderID, err)
	}
	result, err := decodeResult(resp)
	if err != nil {
		return OrderResult{}, fmt.Errorf("%s GetOrderStatus %s: %w", b.Name(), orderID, err)
	}

	var list struct {
		List []struct {
			OrderID     string `json:"orderId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			OrderType   string `json:"orderType"`
			OrderStatus string `json:"orderStatus"`
			Price       string `json:"price"`
			Qty         string `json:"qty"`
			CumExecQty  string `json:"cumExecQty"`
			AvgPrice    string `json:"avgPrice"`
			UpdatedTime string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return OrderResult{}, fmt.Errorf("%s GetOrderStatus %s: unmarshal result: %w", b.Name(), orderID, err)
	}
	if len(list.List) == 0 {
		return OrderResult{}, fmt.Errorf("%s GetOrderStatus: order %s not found", b.Name(), orderID)
	}

	o := list.List[0]
	ms, _ := strconv.ParseInt(o.UpdatedTime, 10, 64)
	price, _ := strconv.ParseFloat(o.Price, 64)
	qty, _ := strconv.ParseFloat(o.Qty, 64)
	filled, _ := strconv.ParseFloat(o.CumExecQty, 64)
	avg, _ := strconv.ParseFloat(o.AvgPrice, 64)
	return OrderResult{
		OrderID:   o.OrderID,
		Status:    strings.ToUpper(o.OrderStatus),
		FilledQty: filled,
		AvgPrice:  avg,
		Symbol:    o.Symbol,
		Side:      strings.ToLower(o.Side),
		Type:      OrderType(strings.ToLower(o.OrderType)),
		Price:     price,
		Quantity:  qty,
		Timestamp: time.UnixMilli(ms).UTC(),
	}, nil
}

func (b *BybitGateway) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	params := map[string]interface{}{
		"category": b.category,
		"symbol":   normalizeSymbol(symbol),
	}

	var result json.RawMessage
	err := retry(ctx, 3, 2*time.Second, b.Name(), func() error {
		resp, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
		if err != nil {
			return err
		}
		result, err = decodeResult(resp)
		return err
	})
	if err != nil {
		return Quote{}, fmt.Errorf("%s GetPrice %s: %w", b.Name(), symbol, err)
	}

	var tickers struct {
		List []struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &tickers); err != nil {
		return Quote{}, fmt.Errorf("%s GetPrice %s: unmarshal result: %w", b.Name(), symbol, err)
	}
	if len(tickers.List) == 0 {
		return Quote{}, fmt.Errorf("%s GetPrice %s: no ticker data", b.Name(), symbol)
	}

	t := tickers.List[0]
	bid, _ := strconv.ParseFloat(t.Bid1Price, 64)
	ask, _ := strconv.ParseFloat(t.Ask1Price, 64)
	if bid == 0 && ask == 0 {
		// Some spot tickers omit top of book; fall back to last trade.
		last, _ := strconv.ParseFloat(t.LastPrice, 64)
		bid, ask = last, last
	}
	return Quote{Symbol: symbol, Bid: bid, Ask: ask, Time: time.Now().UTC()}, nil
}

func (b *BybitGateway) GetBalance(ctx context.Context, asset string) (Balance, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
		"coin":        strings.ToUpper(asset),
	}

	var result json.RawMessage
	err := retry(ctx, 3, 2*time.Second, b.Name(), func() error {
		resp, err := b.client.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
		if err != nil {
			return err
		}
		result, err = decodeResult(resp)
		return err
	})
	if err != nil {
		return Balance{}, fmt.Errorf("%s GetBalance %s: %w", b.Name(), asset, err)
	}

	var wallet struct {
		List []struct {
			Coin []struct {
				Coin             string `json:"coin"`
				WalletBalance    string `json:"walletBalance"`
				AvailableToTrade string `json:"availableToTrade"`
				TotalOrderIM     string `json:"totalOrderIM"`
				TotalPositionIM  string `json:"totalPositionIM"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &wallet); err != nil {
		return Balance{}, fmt.Errorf("%s GetBalance %s: unmarshal result: %w", b.Name(), asset, err)
	}

	for _, acct := range wallet.List {
		for _, c := range acct.Coin {
			if !strings.EqualFold(c.Coin, asset) {
				continue
			}
			total, _ := strconv.ParseFloat(c.WalletBalance, 64)
			free, _ := strconv.ParseFloat(c.AvailableToTrade, 64)
			orderIM, _ := strconv.ParseFloat(c.TotalOrderIM, 64)
			posIM, _ := strconv.ParseFloat(c.TotalPositionIM, 64)
			locked := orderIM + posIM
			if free == 0 && total > locked {
				free = total - locked
			}
			return Balance{Asset: asset, Free: free, Locked: locked}, nil
		}
	}
	return Balance{Asset: asset}, nil
}

// decodeResult unwraps a v5 envelope, surfacing API-level errors that arrive
// with HTTP 200.
func decodeResult(resp interface{}) (json.RawMessage, error) {
	serverResp, ok := resp.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type %T", resp)
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("%w: %s (code %d)", ErrRejected, serverResp.RetMsg, serverResp.RetCode)
	}
	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return raw, nil
}

// titleSide maps "buy"/"sell" to the venue's "Buy"/"Sell".
func titleSide(side string) string {
	if side == "" {
		return side
	}
	return strings.ToUpper(side[:1]) + strings.ToLower(side[1:])
}
