package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"tradecore/internal/broker"
	"tradecore/internal/config"
	"tradecore/internal/md"
	"tradecore/internal/risk"
	"tradecore/internal/state"
	"tradecore/internal/strategy"
)

const (
	hookDailyReset = "daily_reset"
	hookIteration  = "iteration"

	resultHold        = "hold"
	resultDryRun      = "dry_run"
	resultSubmitted   = "order_submitted"
	resultRejected    = "rejected"
	resultBuildFailed = "order_build_failed"
	resultOrderFailed = "order_failed"
)

// Broker is the slice of the trading API the engine and reconciler use.
type Broker interface {
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error)
	OpenOrders(ctx context.Context) ([]broker.OrderRef, error)
	CancelOrder(ctx context.Context, orderID string) error
	Position(ctx context.Context, symbol string) (broker.Position, error)
	Account(ctx context.Context) (broker.Account, error)
}

// History serves completed bars, newest last.
type History interface {
	Bars(ctx context.Context, symbol string, count int, granularity md.Granularity) (md.Window, error)
}

type symbolRunner struct {
	machine  *strategy.Machine
	bars     *md.RingBuffer
	session  string
	iterated string
	now      time.Time
}

// Engine drives one strategy machine per symbol from the minute bar stream.
// It resets each machine once per session and iterates it at its cadence.
type Engine struct {
	mu          sync.Mutex
	cfg         config.Config
	gate        risk.Gate
	broker      Broker
	history     History
	state       *state.Store
	decisions   *DecisionLogger
	logger      *slog.Logger
	location    *time.Location
	now         func() time.Time
	runID       string
	orderSeqNum uint64
	symbols     map[string]*symbolRunner
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(cfg config.Config, gate risk.Gate, brokerClient Broker, history History, stateStore *state.Store, decisions *DecisionLogger, opts ...Option) (*Engine, error) {
	if cfg.Mode == config.ModePaper && brokerClient == nil {
		return nil, errors.New("paper mode requires a broker")
	}
	location, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load market time zone: %w", err)
	}
	e := &Engine{
		cfg:       cfg,
		gate:      gate,
		broker:    brokerClient,
		history:   history,
		state:     stateStore,
		decisions: decisions,
		logger:    slog.Default(),
		location:  location,
		now:       time.Now,
		runID:     decisions.RunID(),
		symbols:   make(map[string]*symbolRunner, len(cfg.Strategies)),
	}
	for _, opt := range opts {
		opt(e)
	}

	snapshot := stateStore.Snapshot()
	for _, sc := range cfg.Strategies {
		runner := &symbolRunner{bars: md.NewRingBuffer(cfg.BarsWindow)}
		machineOpts := []strategy.MachineOption{strategy.WithLogger(e.logger)}
		if snap, ok := snapshot.Strategies[sc.Ticker]; ok {
			restored, err := strategy.DecodeState(snap)
			switch {
			case err != nil:
				e.logger.Warn("discarding checkpointed strategy state", "symbol", sc.Ticker, "error", err)
			case restored.Kind() != sc.Kind:
				e.logger.Warn("checkpointed strategy kind changed", "symbol", sc.Ticker, "checkpoint", restored.Kind(), "config", sc.Kind)
			default:
				machineOpts = append(machineOpts, strategy.WithState(restored))
				runner.session = snapshot.Sessions[sc.Ticker]
				runner.iterated = snapshot.Iterations[sc.Ticker]
			}
		}
		machine, err := strategy.NewMachine(sc, &hostMarket{engine: e, runner: runner}, machineOpts...)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.Ticker, err)
		}
		runner.machine = machine
		e.symbols[sc.Ticker] = runner
	}
	return e, nil
}

// Session is the America/New_York trading date of t.
func (e *Engine) Session(t time.Time) string {
	return t.In(e.location).Format(time.DateOnly)
}

func (e *Engine) OnBar(ctx context.Context, bar md.Bar) {
	e.mu.Lock()
	defer e.mu.Unlock()

	runner, ok := e.symbols[bar.Symbol]
	if !ok {
		e.logger.Debug("bar for unconfigured symbol", "symbol", bar.Symbol)
		return
	}
	runner.bars.Add(bar)
	runner.now = bar.Time
	e.state.SetLastBarTime(bar.Time)
	e.logger.Debug("bar received", "symbol", bar.Symbol, "close", bar.Close, "time", bar.Time.Format(time.RFC3339))

	session := e.Session(bar.Time)
	if runner.session != session {
		out, err := runner.machine.DailyReset(ctx)
		if err != nil {
			e.logger.Error("daily reset failed", "symbol", bar.Symbol, "session", session, "error", err)
			return
		}
		runner.session = session
		e.apply(ctx, runner, bar, hookDailyReset, out)
		e.checkpoint(bar.Symbol, runner)
	}

	if runner.machine.Config().Cadence() == md.Day && runner.iterated == session {
		return
	}
	out, err := runner.machine.Iterate(ctx)
	if err != nil {
		e.logger.Error("iteration failed", "symbol", bar.Symbol, "session", session, "error", err)
		return
	}
	runner.iterated = session
	e.state.SetIterated(bar.Symbol, session)
	e.apply(ctx, runner, bar, hookIteration, out)
	e.checkpoint(bar.Symbol, runner)
}

func (e *Engine) checkpoint(symbol string, runner *symbolRunner) {
	snap, err := strategy.EncodeState(runner.machine.State())
	if err != nil {
		e.logger.Error("checkpoint strategy state failed", "symbol", symbol, "error", err)
		return
	}
	e.state.SetStrategy(symbol, snap, runner.session)
}

func (e *Engine) apply(ctx context.Context, runner *symbolRunner, bar md.Bar, hook string, out strategy.Outcome) {
	cfg := runner.machine.Config()
	base := Decision{
		RunID:     e.runID,
		Timestamp: e.now().UTC(),
		BarTime:   bar.Time,
		Session:   runner.session,
		Symbol:    bar.Symbol,
		Strategy:  cfg.Name(),
		Hook:      hook,
		Close:     bar.Close,
		Reason:    out.Reason,
	}
	if len(out.Intents) == 0 {
		base.Result = resultHold
		e.decisions.Append(base)
		return
	}
	for _, intent := range out.Intents {
		decision := base
		decision.Reason = intent.Reason
		decision.Side = intent.Side
		decision.IntentQty = intent.Qty
		decision.StopLoss = intent.StopLoss
		decision.Liquidate = intent.Liquidate
		e.submit(ctx, bar, intent, decision)
	}
}

func (e *Engine) submit(ctx context.Context, bar md.Bar, intent strategy.OrderIntent, decision Decision) {
	snapshot := e.state.Snapshot()
	position := snapshot.Positions[intent.Symbol]
	riskCtx := risk.RiskContext{
		Now:            e.now().UTC(),
		Price:          bar.Close,
		PositionQty:    position.Qty,
		OpenOrderCount: snapshot.OpenOrdersFor(intent.Symbol),
		LastTradeTime:  snapshot.LastTradeTime,
		MaxQty:         e.cfg.MaxQty,
		MaxNotional:    e.cfg.MaxNotional,
		Cooldown:       e.cfg.Cooldown,
		KillSwitch:     e.cfg.KillSwitch,
		ExtendedHours:  e.cfg.ExtendedHours,
		OrderType:      e.cfg.OrderType,
		TimeInForce:    e.cfg.TimeInForce,
	}

	approved, err := e.gate.Evaluate(intent, riskCtx)
	if err != nil {
		decision.Result = resultRejected
		decision.RejectReason = err.Error()
		e.decisions.Append(decision)
		e.logger.Info("intent rejected", "symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty, "reason", err.Error())
		return
	}
	decision.ApprovalReason = approved.Reason

	if e.cfg.Mode == config.ModeStream {
		decision.Result = resultDryRun
		e.decisions.Append(decision)
		e.state.UpdatePosition(intent.Symbol, simulateFill(position, intent.Qty, bar.Close))
		e.state.SetLastTradeTime(riskCtx.Now)
		e.logger.Info("dry run", "symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty, "reason", intent.Reason)
		return
	}

	if intent.Liquidate {
		e.cancelOpenOrders(ctx, intent.Symbol, snapshot)
	}

	orderReq, err := e.buildOrder(bar.Close, approved.Intent)
	if err != nil {
		decision.Result = resultBuildFailed
		decision.RejectReason = err.Error()
		e.decisions.Append(decision)
		e.logger.Error("order build failed", "symbol", intent.Symbol, "error", err)
		return
	}

	orderRef, err := e.broker.PlaceOrder(ctx, orderReq)
	if err != nil {
		decision.Result = resultOrderFailed
		decision.RejectReason = err.Error()
		e.decisions.Append(decision)
		e.logger.Error("order failed", "symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty, "error", err)
		return
	}

	decision.Result = resultSubmitted
	decision.OrderID = orderRef.ID
	decision.ClientOrderID = orderRef.ClientOrderID
	e.decisions.Append(decision)
	e.logger.Info("order submitted", "symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty, "order_id", orderRef.ID, "client_order_id", orderRef.ClientOrderID)

	e.state.SetLastTradeTime(riskCtx.Now)
	e.state.AddOpenOrder(state.OpenOrder{
		ClientOrderID: orderRef.ClientOrderID,
		OrderID:       orderRef.ID,
		Symbol:        intent.Symbol,
		Status:        orderRef.Status,
	})
}

// cancelOpenOrders cancels the symbol's resting orders, stop-loss legs
// included, ahead of a liquidation.
func (e *Engine) cancelOpenOrders(ctx context.Context, symbol string, snapshot state.Snapshot) {
	remaining := make(map[string]state.OpenOrder, len(snapshot.OpenOrders))
	for id, order := range snapshot.OpenOrders {
		if order.Symbol != symbol {
			remaining[id] = order
			continue
		}
		if err := e.broker.CancelOrder(ctx, order.OrderID); err != nil {
			e.logger.Warn("cancel order failed", "symbol", symbol, "order_id", order.OrderID, "error", err)
			remaining[id] = order
			continue
		}
		e.logger.Info("order canceled", "symbol", symbol, "order_id", order.OrderID)
	}
	e.state.SetOpenOrders(remaining)
}

func (e *Engine) buildOrder(price float64, intent strategy.OrderIntent) (broker.OrderRequest, error) {
	orderType, err := parseOrderType(e.cfg.OrderType)
	if err != nil {
		return broker.OrderRequest{}, err
	}
	tif, err := parseTimeInForce(e.cfg.TimeInForce)
	if err != nil {
		return broker.OrderRequest{}, err
	}
	side := alpaca.Buy
	if intent.Side == strategy.Sell {
		side = alpaca.Sell
	}

	req := broker.OrderRequest{
		Symbol:        intent.Symbol,
		Qty:           intent.AbsQty(),
		Side:          side,
		Type:          orderType,
		TimeInForce:   tif,
		ClientOrderID: e.nextClientOrderID(),
		ExtendedHours: e.cfg.ExtendedHours,
		StopLoss:      intent.StopLoss,
	}

	if orderType == alpaca.Limit {
		req.LimitPrice = &price
	}

	return req, nil
}

func (e *Engine) nextClientOrderID() string {
	seq := atomic.AddUint64(&e.orderSeqNum, 1)
	return fmt.Sprintf("%s-%d", e.runID, seq)
}

// simulateFill applies a dry-run fill of delta shares at price.
func simulateFill(pos state.Position, delta int, price float64) state.Position {
	qty := pos.Qty + delta
	switch {
	case qty == 0:
		return state.Position{}
	case pos.Qty == 0 || (pos.Qty > 0) != (qty > 0):
		return state.Position{Qty: qty, AvgEntry: price}
	case abs(qty) > abs(pos.Qty):
		cost := pos.AvgEntry*float64(abs(pos.Qty)) + price*float64(abs(delta))
		return state.Position{Qty: qty, AvgEntry: cost / float64(abs(qty))}
	default:
		return state.Position{Qty: qty, AvgEntry: pos.AvgEntry}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func parseOrderType(value string) (alpaca.OrderType, error) {
	switch value {
	case "market":
		return alpaca.Market, nil
	case "limit":
		return alpaca.Limit, nil
	default:
		return "", fmt.Errorf("unsupported order type: %s", value)
	}
}

func parseTimeInForce(value string) (alpaca.TimeInForce, error) {
	switch value {
	case "day":
		return alpaca.Day, nil
	case "gtc":
		return alpaca.GTC, nil
	default:
		return "", fmt.Errorf("unsupported time in force: %s", value)
	}
}
