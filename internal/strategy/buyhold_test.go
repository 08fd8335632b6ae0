package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuyAndHoldEntersOnce(t *testing.T) {
	cfg := Config{Kind: KindBuyAndHold, Ticker: "MSFT"}
	st, err := Configure(cfg)
	require.NoError(t, err)

	var intents []OrderIntent
	for i := 0; i < 5; i++ {
		var out Outcome
		st, out = Iterate(cfg, st, priced(410, 100000))
		intents = append(intents, out.Intents...)
		if i > 0 {
			assert.Equal(t, "already_entered", out.Reason)
		}
	}

	require.Len(t, intents, 1)
	assert.Equal(t, OrderIntent{Symbol: "MSFT", Qty: 243, Side: Buy, Reason: "first_iteration"}, intents[0])
	assert.True(t, st.(*BuyAndHoldState).Entered)
}

func TestBuyAndHoldFirstTickIsFinal(t *testing.T) {
	cfg := Config{Kind: KindBuyAndHold, Ticker: "MSFT"}
	st, _ := Configure(cfg)

	st, out := Iterate(cfg, st, Inputs{PortfolioValue: 100000})
	assert.Empty(t, out.Intents)
	assert.Equal(t, "missing_price", out.Reason)
	assert.True(t, st.(*BuyAndHoldState).Entered)

	_, out = Iterate(cfg, st, priced(410, 100000))
	assert.Empty(t, out.Intents)
}

func TestBuyAndHoldDailyResetIsNoop(t *testing.T) {
	cfg := Config{Kind: KindBuyAndHold, Ticker: "MSFT"}
	st, _ := Configure(cfg)

	next, out := DailyReset(cfg, st, Inputs{Position: Position{Qty: 10}})
	assert.Empty(t, out.Intents)
	assert.Equal(t, st, next)
}
