package strategy

import (
	"errors"

	"tradecore/internal/md"
	"tradecore/internal/sizing"
)

// CrossoverState keeps the averages computed on the last tick for logging.
// Decisions never read them: both are recomputed from the window every tick.
type CrossoverState struct {
	FastSMA float64 `json:"fast_sma"`
	SlowSMA float64 `json:"slow_sma"`
}

func (s *CrossoverState) Kind() Kind { return KindSMACrossover }

func (s *CrossoverState) clone() State {
	c := *s
	return &c
}

func (s *CrossoverState) iterate(cfg Config, in Inputs) Outcome {
	fast, errFast := in.Window.SMA(cfg.FastPeriod)
	slow, errSlow := in.Window.SMA(cfg.SlowPeriod)
	if errors.Is(errFast, md.ErrNotEnoughData) || errors.Is(errSlow, md.ErrNotEnoughData) {
		return hold("insufficient_history")
	}
	if errFast != nil || errSlow != nil {
		return hold("invalid_period")
	}
	s.FastSMA, s.SlowSMA = fast, slow

	if fast == 0 || slow == 0 {
		return hold("zero_sma")
	}

	pos := in.Position
	switch {
	case fast > slow && pos.Flat():
		last, _ := in.Window.Last(0)
		qty := sizing.SizeAtLeastOne(in.PortfolioValue, cfg.AllocationFraction, last.Close)
		if qty <= 0 {
			return hold("sizing_zero")
		}
		return emit("bullish_entry", OrderIntent{
			Symbol: cfg.Ticker,
			Qty:    qty,
			Side:   Buy,
			Reason: "bullish_entry",
		})
	case fast > slow && pos.Short():
		return emit("bullish_close_short", liquidate(cfg.Ticker, pos, "bullish_close_short"))
	case fast < slow && pos.Long():
		return emit("bearish_exit", liquidate(cfg.Ticker, pos, "bearish_exit"))
	case fast > slow:
		return hold("bullish_holding")
	case fast < slow:
		return hold("bearish_flat")
	default:
		return hold("no_signal")
	}
}
