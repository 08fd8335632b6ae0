package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"tradecore/internal/config"
	"tradecore/internal/md"
	"tradecore/internal/state"
	"tradecore/internal/strategy"
)

var errNoHistory = errors.New("no history provider configured")

// hostMarket is the strategy.Market one symbol's machine sees. It is only
// called while the engine holds its lock.
type hostMarket struct {
	engine *Engine
	runner *symbolRunner
}

func (m *hostMarket) Now() time.Time {
	if m.runner.now.IsZero() {
		return m.engine.now()
	}
	return m.runner.now
}

func (m *hostMarket) LastPrice(ctx context.Context, symbol string) (float64, error) {
	bar, ok := m.runner.bars.Latest()
	if !ok || bar.Close <= 0 {
		return 0, md.ErrNoPrice
	}
	return bar.Close, nil
}

// HistoricalPrices serves minute bars from the stream buffer and daily bars from
// the history provider. When the provider has no bar for the current session
// yet, one is folded from the session's minute bars so the newest daily bar is
// always today's.
func (m *hostMarket) HistoricalPrices(ctx context.Context, symbol string, count int, granularity md.Granularity) (md.Window, error) {
	if granularity == md.Minute {
		return m.runner.bars.Window().Tail(count), nil
	}
	if m.engine.history == nil {
		return nil, errNoHistory
	}
	window, err := m.engine.history.Bars(ctx, symbol, count, granularity)
	if err != nil {
		return nil, err
	}

	session := m.engine.Session(m.Now())
	if last, ok := window.Last(0); ok && m.engine.Session(last.Time) == session {
		return window, nil
	}
	today := md.Window(lo.Filter(m.runner.bars.Window(), func(bar md.Bar, _ int) bool {
		return m.engine.Session(bar.Time) == session
	}))
	partial, ok := today.Aggregate()
	if !ok {
		return window, nil
	}
	partial.Symbol = symbol
	return append(window, partial).Tail(count), nil
}

func (m *hostMarket) Position(ctx context.Context, symbol string) (strategy.Position, error) {
	if m.engine.cfg.Mode == config.ModeStream {
		pos := m.engine.state.Snapshot().Positions[symbol]
		return strategy.Position{Symbol: symbol, Qty: pos.Qty}, nil
	}
	pos, err := m.engine.broker.Position(ctx, symbol)
	if err != nil {
		return strategy.Position{}, fmt.Errorf("broker position: %w", err)
	}
	m.engine.state.UpdatePosition(symbol, state.Position{Qty: pos.Qty, AvgEntry: pos.AvgEntry})
	return strategy.Position{Symbol: symbol, Qty: pos.Qty}, nil
}

func (m *hostMarket) PortfolioValue(ctx context.Context) (float64, error) {
	if m.engine.cfg.Mode == config.ModeStream {
		return m.engine.cfg.Cash, nil
	}
	account, err := m.engine.broker.Account(ctx)
	if err != nil {
		return 0, fmt.Errorf("broker account: %w", err)
	}
	return account.Equity, nil
}
