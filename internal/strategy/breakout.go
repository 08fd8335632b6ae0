package strategy

import (
	"math"

	"tradecore/internal/sizing"
)

type Phase string

const (
	AwaitingReset Phase = "awaiting_reset"
	RangeSet      Phase = "range_set"
	EnteredToday  Phase = "entered_today"
)

// DayRange is the previous completed session's high and low.
type DayRange struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// NewDayRange rejects ranges whose high is below their low.
func NewDayRange(high, low float64) (*DayRange, bool) {
	if high < low || math.IsNaN(high) || math.IsNaN(low) {
		return nil, false
	}
	return &DayRange{High: high, Low: low}, true
}

// BreakoutState is the opening range breakout state for one symbol. A nil
// Range means no usable range for the session and disables iteration.
type BreakoutState struct {
	Range        *DayRange `json:"range,omitempty"`
	EnteredToday bool      `json:"entered_today"`
}

func (s *BreakoutState) Kind() Kind { return KindOpeningRangeBreakout }

func (s *BreakoutState) clone() State {
	c := *s
	if s.Range != nil {
		r := *s.Range
		c.Range = &r
	}
	return &c
}

func (s *BreakoutState) Phase() Phase {
	switch {
	case s.Range == nil:
		return AwaitingReset
	case s.EnteredToday:
		return EnteredToday
	default:
		return RangeSet
	}
}

func (s *BreakoutState) dailyReset(cfg Config, in Inputs) Outcome {
	s.EnteredToday = false

	var intents []OrderIntent
	if !in.Position.Flat() {
		intents = append(intents, liquidate(cfg.Ticker, in.Position, "close_previous_session"))
	}

	// the newest bar may still be forming, the one before it is the last
	// completed session
	prev, ok := in.Window.Last(1)
	if !ok {
		s.Range = nil
		return emit("insufficient_history", intents...)
	}
	r, ok := NewDayRange(prev.High, prev.Low)
	if !ok {
		s.Range = nil
		return emit("invalid_range", intents...)
	}
	s.Range = r
	return emit("range_set", intents...)
}

func (s *BreakoutState) iterate(cfg Config, in Inputs) Outcome {
	if s.Range == nil {
		return hold("range_unset")
	}
	if s.EnteredToday {
		return hold("already_entered")
	}
	if !in.HasPrice {
		return hold("missing_price")
	}

	switch {
	case in.Price > s.Range.High:
		qty := sizing.Size(in.PortfolioValue, cfg.RiskFraction, in.Price)
		if qty <= 0 {
			return hold("sizing_zero")
		}
		stop := s.Range.Low
		s.EnteredToday = true
		return emit("long_breakout", OrderIntent{
			Symbol:   cfg.Ticker,
			Qty:      qty,
			Side:     Buy,
			StopLoss: &stop,
			Reason:   "long_breakout",
		})
	case in.Price < s.Range.Low:
		qty := sizing.Size(in.PortfolioValue, cfg.RiskFraction, in.Price)
		if qty <= 0 {
			return hold("sizing_zero")
		}
		stop := s.Range.High
		s.EnteredToday = true
		return emit("short_breakout", OrderIntent{
			Symbol:   cfg.Ticker,
			Qty:      -qty,
			Side:     Sell,
			StopLoss: &stop,
			Reason:   "short_breakout",
		})
	default:
		return hold("inside_range")
	}
}
