package strategy

import "tradecore/internal/sizing"

// BuyAndHoldState records whether the single lifetime entry has happened.
type BuyAndHoldState struct {
	Entered bool `json:"entered"`
}

func (s *BuyAndHoldState) Kind() Kind { return KindBuyAndHold }

func (s *BuyAndHoldState) clone() State {
	c := *s
	return &c
}

// iterate acts on the first tick of the strategy's lifetime only. The state
// moves to Entered on that tick even when no order could be sized.
func (s *BuyAndHoldState) iterate(cfg Config, in Inputs) Outcome {
	if s.Entered {
		return hold("already_entered")
	}
	s.Entered = true

	if !in.HasPrice {
		return hold("missing_price")
	}
	qty := sizing.Size(in.PortfolioValue, 1, in.Price)
	if qty <= 0 {
		return hold("sizing_zero")
	}
	return emit("first_iteration", OrderIntent{
		Symbol: cfg.Ticker,
		Qty:    qty,
		Side:   Buy,
		Reason: "first_iteration",
	})
}
