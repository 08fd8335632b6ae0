package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

type OrderRequest struct {
	Symbol        string
	Qty           int
	Side          alpaca.Side
	Type          alpaca.OrderType
	TimeInForce   alpaca.TimeInForce
	ClientOrderID string
	ExtendedHours bool
	LimitPrice    *float64
	StopLoss      *float64
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Status        string
}

type Position struct {
	Symbol   string
	Qty      int
	AvgEntry float64
}

type Account struct {
	Equity      float64
	BuyingPower float64
}

type Client struct {
	client  *alpaca.Client
	limiter *rate.Limiter
}

// DefaultRequestsPerMinute stays below Alpaca's trading API quota.
const DefaultRequestsPerMinute = 180

func New(apiKey, apiSecret, baseURL string, requestsPerMinute int) *Client {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{
		client:  alpaca.NewClient(opts),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 5),
	}
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("broker rate limit: %w", err)
	}
	return nil
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if err := c.wait(ctx); err != nil {
		return OrderRef{}, err
	}
	qty := decimal.NewFromInt(int64(req.Qty))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
		ExtendedHours: req.ExtendedHours,
	}
	if req.LimitPrice != nil {
		limitPrice := decimal.NewFromFloat(*req.LimitPrice).Round(2)
		orderReq.LimitPrice = &limitPrice
	}
	if req.StopLoss != nil {
		stopPrice := decimal.NewFromFloat(*req.StopLoss).Round(2)
		orderReq.OrderClass = alpaca.OTO
		orderReq.StopLoss = &alpaca.StopLoss{StopPrice: &stopPrice}
	}

	order, err := c.client.PlaceOrder(orderReq)
	if err != nil {
		slog.Error("place order failed", "side", req.Side, "symbol", req.Symbol, "qty", req.Qty, "type", req.Type, "error", err)
		return OrderRef{}, err
	}

	slog.Info("place order success", "order_id", order.ID, "side", req.Side, "symbol", req.Symbol, "qty", req.Qty, "type", req.Type, "status", order.Status)
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Status:        string(order.Status),
	}, nil
}

func (c *Client) OpenOrders(ctx context.Context) ([]OrderRef, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req := alpaca.GetOrdersRequest{
		Status: "open",
		Nested: true,
	}
	orders, err := c.client.GetOrders(req)
	if err != nil {
		slog.Error("fetch open orders failed", "error", err)
		return nil, err
	}
	slog.Info("open orders fetched", "count", len(orders))
	refs := make([]OrderRef, 0, len(orders))
	for _, order := range orders {
		refs = append(refs, OrderRef{
			ID:            order.ID,
			ClientOrderID: order.ClientOrderID,
			Symbol:        order.Symbol,
			Status:        string(order.Status),
		})
		for _, leg := range order.Legs {
			refs = append(refs, OrderRef{
				ID:            leg.ID,
				ClientOrderID: leg.ClientOrderID,
				Symbol:        leg.Symbol,
				Status:        string(leg.Status),
			})
		}
	}
	return refs, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if err := c.client.CancelOrder(orderID); err != nil {
		slog.Error("cancel order failed", "order_id", orderID, "error", err)
		return err
	}
	slog.Info("cancel order success", "order_id", orderID)
	return nil
}

// Position returns the symbol's position. A symbol without a position is
// reported as flat rather than as an error.
func (c *Client) Position(ctx context.Context, symbol string) (Position, error) {
	if err := c.wait(ctx); err != nil {
		return Position{}, err
	}
	pos, err := c.client.GetPosition(symbol)
	if IsNotFound(err) {
		return Position{Symbol: symbol}, nil
	}
	if err != nil {
		slog.Error("fetch position failed", "symbol", symbol, "error", err)
		return Position{}, err
	}
	qty := int(pos.Qty.IntPart())
	avgEntry, _ := pos.AvgEntryPrice.Float64()

	slog.Info("position fetched", "symbol", symbol, "qty", qty, "avg_entry", avgEntry)
	return Position{
		Symbol:   pos.Symbol,
		Qty:      qty,
		AvgEntry: avgEntry,
	}, nil
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	if err := c.wait(ctx); err != nil {
		return Account{}, err
	}
	acct, err := c.client.GetAccount()
	if err != nil {
		slog.Error("fetch account failed", "error", err)
		return Account{}, err
	}
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()

	slog.Info("account fetched", "equity", equity, "buying_power", buyingPower)
	return Account{Equity: equity, BuyingPower: buyingPower}, nil
}

func IsNotFound(err error) bool {
	var apiErr *alpaca.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
