package engine

import (
	"context"
	"log/slog"
	"time"

	"tradecore/internal/state"
)

func ReconcileLoop(ctx context.Context, brokerClient Broker, store *state.Store, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcileOnce(ctx, brokerClient, store, symbols)
		}
	}
}

// reconcileOnce replaces the store's orders and positions with the broker's.
// Failed lookups leave the previous values in place.
func reconcileOnce(ctx context.Context, brokerClient Broker, store *state.Store, symbols []string) {
	orders, err := brokerClient.OpenOrders(ctx)
	if err != nil {
		slog.Warn("reconcile open orders failed", "error", err)
	} else {
		openOrders := make(map[string]state.OpenOrder, len(orders))
		for _, order := range orders {
			openOrders[order.ClientOrderID] = state.OpenOrder{
				ClientOrderID: order.ClientOrderID,
				OrderID:       order.ID,
				Symbol:        order.Symbol,
				Status:        order.Status,
			}
		}
		store.SetOpenOrders(openOrders)
	}

	for _, symbol := range symbols {
		position, err := brokerClient.Position(ctx, symbol)
		if err != nil {
			slog.Warn("reconcile position failed", "symbol", symbol, "error", err)
			continue
		}
		store.UpdatePosition(symbol, state.Position{Qty: position.Qty, AvgEntry: position.AvgEntry})
	}

	account, err := brokerClient.Account(ctx)
	if err != nil {
		slog.Warn("reconcile account failed", "error", err)
	} else {
		slog.Info("account", "equity", account.Equity, "buying_power", account.BuyingPower)
	}
}
