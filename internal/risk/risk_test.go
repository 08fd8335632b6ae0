package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/strategy"
)

func buyIntent(qty int) strategy.OrderIntent {
	return strategy.OrderIntent{Symbol: "AAPL", Qty: qty, Side: strategy.Buy, Reason: "long_breakout"}
}

func TestGateRejectsCooldown(t *testing.T) {
	ctx := RiskContext{
		Now:           time.Now(),
		LastTradeTime: time.Now().Add(-30 * time.Second),
		Cooldown:      time.Minute,
		Price:         100,
	}

	_, err := Gate{}.Evaluate(buyIntent(1), ctx)
	require.Error(t, err)
	assert.Equal(t, "cooldown_active", err.Error())
}

func TestGateRejectsMaxNotional(t *testing.T) {
	ctx := RiskContext{Now: time.Now(), Price: 100, MaxQty: 5, MaxNotional: 150}

	_, err := Gate{}.Evaluate(buyIntent(2), ctx)
	require.Error(t, err)
	assert.Equal(t, "max_notional_exceeded", err.Error())
}

func TestGateRejectsMaxPositionOnShortSide(t *testing.T) {
	intent := strategy.OrderIntent{Symbol: "AAPL", Qty: -6, Side: strategy.Sell}
	ctx := RiskContext{Now: time.Now(), Price: 100, MaxQty: 5}

	_, err := Gate{}.Evaluate(intent, ctx)
	require.Error(t, err)
	assert.Equal(t, "max_position_exceeded", err.Error())
}

func TestGateApprovesValidEntries(t *testing.T) {
	ctx := RiskContext{Now: time.Now(), Price: 100}

	approved, err := Gate{}.Evaluate(buyIntent(40), ctx)
	require.NoError(t, err)
	assert.Equal(t, "approved", approved.Reason)

	short := strategy.OrderIntent{Symbol: "AAPL", Qty: -40, Side: strategy.Sell}
	_, err = Gate{}.Evaluate(short, ctx)
	assert.NoError(t, err)
}

func TestGateRejectsMismatchedSide(t *testing.T) {
	intent := strategy.OrderIntent{Symbol: "AAPL", Qty: 3, Side: strategy.Sell}

	_, err := Gate{}.Evaluate(intent, RiskContext{Now: time.Now(), Price: 100})
	assert.Error(t, err)
}

func TestGateLetsLiquidationPastEntryLimits(t *testing.T) {
	intent := strategy.OrderIntent{Symbol: "AAPL", Qty: -10, Side: strategy.Sell, Liquidate: true}
	ctx := RiskContext{
		Now:            time.Now(),
		Price:          100,
		PositionQty:    10,
		OpenOrderCount: 1,
		LastTradeTime:  time.Now(),
		Cooldown:       time.Hour,
		MaxNotional:    10,
	}

	approved, err := Gate{}.Evaluate(intent, ctx)
	require.NoError(t, err)
	assert.Equal(t, "liquidation", approved.Reason)

	ctx.PositionQty = 0
	_, err = Gate{}.Evaluate(intent, ctx)
	assert.Error(t, err)
}

func TestGateRejectsKillSwitchAndExtendedHours(t *testing.T) {
	_, err := Gate{}.Evaluate(buyIntent(1), RiskContext{Now: time.Now(), Price: 100, KillSwitch: true})
	assert.Error(t, err)

	ctx := RiskContext{
		Now:           time.Now(),
		Price:         100,
		ExtendedHours: true,
		OrderType:     "market",
		TimeInForce:   "day",
	}
	_, err = Gate{}.Evaluate(buyIntent(1), ctx)
	assert.Error(t, err)
}
