// Package strategy holds the decision engine: per-variant signal evaluators
// and the state machine that carries their state across iterations.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tradecore/internal/md"
)

var ErrInvalidConfig = errors.New("invalid strategy config")

type Kind string

const (
	KindBuyAndHold           Kind = "buy_and_hold"
	KindOpeningRangeBreakout Kind = "opening_range_breakout"
	KindSMACrossover         Kind = "sma_crossover"
)

// ParseKind accepts kind names, common short aliases and the numeric strategy
// ids used by the web launcher.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "buy_and_hold", "buy-and-hold", "buyandhold":
		return KindBuyAndHold, nil
	case "2", "opening_range_breakout", "orb", "breakout", "daily_range_breakout":
		return KindOpeningRangeBreakout, nil
	case "3", "sma_crossover", "sma", "sma-crossover":
		return KindSMACrossover, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, value)
	}
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Position is the broker-held holding for one symbol. Qty is signed and the
// zero value means flat.
type Position struct {
	Symbol string
	Qty    int
}

func (p Position) Flat() bool  { return p.Qty == 0 }
func (p Position) Long() bool  { return p.Qty > 0 }
func (p Position) Short() bool { return p.Qty < 0 }

// OrderIntent is an order the host should route. Qty is the signed change in
// position: a short entry carries a negative quantity with side sell.
type OrderIntent struct {
	Symbol    string
	Qty       int
	Side      Side
	StopLoss  *float64
	Liquidate bool
	Reason    string
}

func (o OrderIntent) AbsQty() int {
	if o.Qty < 0 {
		return -o.Qty
	}
	return o.Qty
}

func liquidate(symbol string, pos Position, reason string) OrderIntent {
	side := Sell
	if pos.Short() {
		side = Buy
	}
	return OrderIntent{
		Symbol:    symbol,
		Qty:       -pos.Qty,
		Side:      side,
		Liquidate: true,
		Reason:    reason,
	}
}

type Config struct {
	Kind               Kind    `yaml:"kind" json:"kind"`
	Ticker             string  `yaml:"ticker" json:"ticker"`
	RiskFraction       float64 `yaml:"risk_fraction" json:"risk_fraction"`
	AllocationFraction float64 `yaml:"allocation_fraction" json:"allocation_fraction"`
	FastPeriod         int     `yaml:"fast_period" json:"fast_period"`
	SlowPeriod         int     `yaml:"slow_period" json:"slow_period"`
}

const (
	DefaultTicker             = "AAPL"
	DefaultRiskFraction       = 0.1
	DefaultAllocationFraction = 0.8
	DefaultFastPeriod         = 50
	DefaultSlowPeriod         = 200
)

// WithDefaults fills zero-valued parameters of the config's kind.
func (c Config) WithDefaults() Config {
	if c.Ticker == "" {
		c.Ticker = DefaultTicker
	}
	c.Ticker = strings.ToUpper(strings.TrimSpace(c.Ticker))
	switch c.Kind {
	case KindOpeningRangeBreakout:
		if c.RiskFraction == 0 {
			c.RiskFraction = DefaultRiskFraction
		}
	case KindSMACrossover:
		if c.AllocationFraction == 0 {
			c.AllocationFraction = DefaultAllocationFraction
		}
		if c.FastPeriod == 0 {
			c.FastPeriod = DefaultFastPeriod
		}
		if c.SlowPeriod == 0 {
			c.SlowPeriod = DefaultSlowPeriod
		}
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Ticker) == "" {
		return fmt.Errorf("%w: ticker is required", ErrInvalidConfig)
	}
	switch c.Kind {
	case KindBuyAndHold:
		return nil
	case KindOpeningRangeBreakout:
		if !fractionOK(c.RiskFraction) {
			return fmt.Errorf("%w: risk_fraction must be in (0, 1], got %v", ErrInvalidConfig, c.RiskFraction)
		}
		return nil
	case KindSMACrossover:
		if !fractionOK(c.AllocationFraction) {
			return fmt.Errorf("%w: allocation_fraction must be in (0, 1], got %v", ErrInvalidConfig, c.AllocationFraction)
		}
		if c.FastPeriod < 1 {
			return fmt.Errorf("%w: fast_period must be >= 1", ErrInvalidConfig)
		}
		if c.FastPeriod >= c.SlowPeriod {
			return fmt.Errorf("%w: fast_period (%d) must be < slow_period (%d)", ErrInvalidConfig, c.FastPeriod, c.SlowPeriod)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown strategy kind %q", ErrInvalidConfig, c.Kind)
	}
}

func fractionOK(f float64) bool {
	return f > 0 && f <= 1 && !math.IsNaN(f)
}

// Name is the human readable strategy name used in logs.
func (c Config) Name() string {
	switch c.Kind {
	case KindBuyAndHold:
		return "Buy and Hold"
	case KindOpeningRangeBreakout:
		return "Daily Range Breakout"
	case KindSMACrossover:
		return "SMA Crossover (" + strconv.Itoa(c.FastPeriod) + "/" + strconv.Itoa(c.SlowPeriod) + ")"
	default:
		return string(c.Kind)
	}
}

// Cadence is how often the host should call Iterate.
func (c Config) Cadence() md.Granularity {
	if c.Kind == KindOpeningRangeBreakout {
		return md.Minute
	}
	return md.Day
}

// HistoryBars is the number of daily bars each hook needs.
func (c Config) HistoryBars() int {
	switch c.Kind {
	case KindOpeningRangeBreakout:
		return 2
	case KindSMACrossover:
		return c.SlowPeriod + 1
	default:
		return 0
	}
}

// State is the per-variant mutable record owned by one Machine.
type State interface {
	Kind() Kind
	clone() State
}

// Configure validates cfg and returns the initial state of its variant.
func Configure(cfg Config) (State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindOpeningRangeBreakout:
		return &BreakoutState{}, nil
	case KindSMACrossover:
		return &CrossoverState{}, nil
	default:
		return &BuyAndHoldState{}, nil
	}
}

// Inputs is everything an evaluator reads for one call, supplied by the host.
type Inputs struct {
	Now            time.Time
	Position       Position
	Window         md.Window
	Price          float64
	HasPrice       bool
	PortfolioValue float64
}

// Outcome is the result of one hook. An empty Intents slice is a hold; Reason
// tells a deliberate hold from one forced by missing data.
type Outcome struct {
	Intents []OrderIntent
	Reason  string
}

func hold(reason string) Outcome {
	return Outcome{Reason: reason}
}

func emit(reason string, intents ...OrderIntent) Outcome {
	return Outcome{Intents: intents, Reason: reason}
}

// DailyReset runs the session-start hook of cfg's variant on a copy of st.
func DailyReset(cfg Config, st State, in Inputs) (State, Outcome) {
	next := st.clone()
	switch s := next.(type) {
	case *BreakoutState:
		return s, s.dailyReset(cfg, in)
	case *CrossoverState:
		return s, hold("no_daily_reset")
	case *BuyAndHoldState:
		return s, hold("no_daily_reset")
	default:
		return next, hold("unknown_state")
	}
}

// Iterate runs one scheduled tick of cfg's variant on a copy of st.
func Iterate(cfg Config, st State, in Inputs) (State, Outcome) {
	next := st.clone()
	switch s := next.(type) {
	case *BreakoutState:
		return s, s.iterate(cfg, in)
	case *CrossoverState:
		return s, s.iterate(cfg, in)
	case *BuyAndHoldState:
		return s, s.iterate(cfg, in)
	default:
		return next, hold("unknown_state")
	}
}
