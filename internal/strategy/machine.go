package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tradecore/internal/md"
)

// Market is the read-only view of the host runtime a Machine queries.
type Market interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
	HistoricalPrices(ctx context.Context, symbol string, count int, granularity md.Granularity) (md.Window, error)
	Position(ctx context.Context, symbol string) (Position, error)
	PortfolioValue(ctx context.Context) (float64, error)
	Now() time.Time
}

// Machine owns one strategy instance's state for one symbol. Calls must not
// overlap; the host orders DailyReset before the session's Iterate calls.
type Machine struct {
	cfg    Config
	state  State
	market Market
	logger *slog.Logger
}

type MachineOption func(*Machine)

func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithState restores a previously checkpointed state of the same kind.
func WithState(st State) MachineOption {
	return func(m *Machine) {
		if st != nil && st.Kind() == m.cfg.Kind {
			m.state = st.clone()
		}
	}
}

func NewMachine(cfg Config, market Market, opts ...MachineOption) (*Machine, error) {
	st, err := Configure(cfg)
	if err != nil {
		return nil, err
	}
	m := &Machine{
		cfg:    cfg,
		state:  st,
		market: market,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("strategy", cfg.Name(), "symbol", cfg.Ticker)
	m.logger.Info("strategy initialized", "kind", cfg.Kind, "cadence", cfg.Cadence())
	return m, nil
}

func (m *Machine) Config() Config { return m.cfg }

// State returns a copy of the current state.
func (m *Machine) State() State { return m.state.clone() }

func (m *Machine) DailyReset(ctx context.Context) (Outcome, error) {
	in, err := m.inputs(ctx, false)
	if err != nil {
		return Outcome{}, err
	}
	next, out := DailyReset(m.cfg, m.state, in)
	m.state = next
	m.log("daily reset", in, out)
	return out, nil
}

func (m *Machine) Iterate(ctx context.Context) (Outcome, error) {
	// the breakout machine skips market queries when it cannot trade anyway
	if s, ok := m.state.(*BreakoutState); ok && s.Phase() != RangeSet {
		_, out := Iterate(m.cfg, m.state, Inputs{Now: m.market.Now()})
		return out, nil
	}
	in, err := m.inputs(ctx, true)
	if err != nil {
		return Outcome{}, err
	}
	next, out := Iterate(m.cfg, m.state, in)
	m.state = next
	m.log("iteration", in, out)
	return out, nil
}

func (m *Machine) inputs(ctx context.Context, iteration bool) (Inputs, error) {
	symbol := m.cfg.Ticker
	in := Inputs{Now: m.market.Now()}

	pos, err := m.market.Position(ctx, symbol)
	if err != nil {
		return Inputs{}, fmt.Errorf("position %s: %w", symbol, err)
	}
	pos.Symbol = symbol
	in.Position = pos

	needWindow := (!iteration && m.cfg.Kind == KindOpeningRangeBreakout) ||
		(iteration && m.cfg.Kind == KindSMACrossover)
	if n := m.cfg.HistoryBars(); needWindow && n > 0 {
		window, err := m.market.HistoricalPrices(ctx, symbol, n, md.Day)
		if err != nil {
			// treated as short history, the evaluator holds
			m.logger.Warn("historical prices unavailable", "error", err)
			window = md.Window{}
		}
		in.Window = window
	}

	if !iteration {
		return in, nil
	}

	price, err := m.market.LastPrice(ctx, symbol)
	switch {
	case errors.Is(err, md.ErrNoPrice):
	case err != nil:
		m.logger.Warn("last price unavailable", "error", err)
	case price > 0:
		in.Price, in.HasPrice = price, true
	}

	value, err := m.market.PortfolioValue(ctx)
	if err != nil {
		return Inputs{}, fmt.Errorf("portfolio value: %w", err)
	}
	in.PortfolioValue = value
	return in, nil
}

func (m *Machine) log(hook string, in Inputs, out Outcome) {
	attrs := []any{
		"hook", hook,
		"reason", out.Reason,
		"position", in.Position.Qty,
		"intents", len(out.Intents),
		"at", in.Now,
	}
	if in.HasPrice {
		attrs = append(attrs, "price", in.Price)
	}
	switch s := m.state.(type) {
	case *BreakoutState:
		attrs = append(attrs, "phase", s.Phase())
		if s.Range != nil {
			attrs = append(attrs, "prev_high", s.Range.High, "prev_low", s.Range.Low)
		}
	case *CrossoverState:
		attrs = append(attrs, "fast_sma", s.FastSMA, "slow_sma", s.SlowSMA)
	}
	if len(out.Intents) > 0 {
		m.logger.Info("strategy decision", attrs...)
		return
	}
	m.logger.Debug("strategy decision", attrs...)
}
