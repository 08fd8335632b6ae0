package risk

import (
	"fmt"
	"log/slog"
	"time"

	"tradecore/internal/strategy"
)

// RiskContext carries the host-side limits an order intent is checked against.
// Zero MaxQty or MaxNotional means unlimited.
type RiskContext struct {
	Now            time.Time
	Price          float64
	PositionQty    int
	OpenOrderCount int
	LastTradeTime  time.Time
	MaxQty         int
	MaxNotional    float64
	Cooldown       time.Duration
	KillSwitch     bool
	ExtendedHours  bool
	OrderType      string
	TimeInForce    string
}

type ApprovedIntent struct {
	Intent strategy.OrderIntent
	Reason string
}

type Gate struct{}

func (g Gate) Evaluate(intent strategy.OrderIntent, ctx RiskContext) (ApprovedIntent, error) {
	qty := intent.AbsQty()
	notional := ctx.Price * float64(qty)

	slog.Info("risk evaluation", "symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty, "liquidate", intent.Liquidate, "position", ctx.PositionQty, "price", ctx.Price, "notional", notional)

	if ctx.KillSwitch {
		slog.Info("risk rejected", "reason", "kill_switch_enabled")
		return ApprovedIntent{}, fmt.Errorf("kill_switch_enabled")
	}
	if qty <= 0 {
		slog.Info("risk rejected", "reason", "invalid_quantity", "qty", intent.Qty)
		return ApprovedIntent{}, fmt.Errorf("invalid_quantity")
	}
	if (intent.Side == strategy.Buy) != (intent.Qty > 0) {
		slog.Info("risk rejected", "reason", "side_quantity_mismatch", "side", intent.Side, "qty", intent.Qty)
		return ApprovedIntent{}, fmt.Errorf("side_quantity_mismatch")
	}
	if ctx.ExtendedHours {
		if ctx.OrderType != "limit" || ctx.TimeInForce != "day" {
			slog.Info("risk rejected", "reason", "extended_hours_requires_limit_day")
			return ApprovedIntent{}, fmt.Errorf("extended_hours_requires_limit_day")
		}
	}

	if intent.Liquidate {
		if ctx.PositionQty == 0 {
			slog.Info("risk rejected", "reason", "no_position_to_close")
			return ApprovedIntent{}, fmt.Errorf("no_position_to_close")
		}
		slog.Info("risk approved", "symbol", intent.Symbol, "qty", intent.Qty, "reason", intent.Reason)
		return ApprovedIntent{Intent: intent, Reason: "liquidation"}, nil
	}

	if ctx.OpenOrderCount > 0 {
		slog.Info("risk rejected", "reason", "open_order_exists", "count", ctx.OpenOrderCount)
		return ApprovedIntent{}, fmt.Errorf("open_order_exists")
	}
	if !ctx.LastTradeTime.IsZero() && ctx.Now.Sub(ctx.LastTradeTime) < ctx.Cooldown {
		remaining := ctx.Cooldown - ctx.Now.Sub(ctx.LastTradeTime)
		slog.Info("risk rejected", "reason", "cooldown_active", "remaining", remaining)
		return ApprovedIntent{}, fmt.Errorf("cooldown_active")
	}
	if ctx.MaxQty > 0 && abs(ctx.PositionQty+intent.Qty) > ctx.MaxQty {
		slog.Info("risk rejected", "reason", "max_position_exceeded", "new_qty", ctx.PositionQty+intent.Qty, "max", ctx.MaxQty)
		return ApprovedIntent{}, fmt.Errorf("max_position_exceeded")
	}
	if ctx.MaxNotional > 0 && notional > ctx.MaxNotional {
		slog.Info("risk rejected", "reason", "max_notional_exceeded", "notional", notional, "max", ctx.MaxNotional)
		return ApprovedIntent{}, fmt.Errorf("max_notional_exceeded")
	}

	slog.Info("risk approved", "symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty, "reason", intent.Reason)
	return ApprovedIntent{Intent: intent, Reason: "approved"}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
