package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"tradecore/internal/broker"
	"tradecore/internal/config"
	"tradecore/internal/engine"
	"tradecore/internal/md"
	"tradecore/internal/risk"
	"tradecore/internal/state"
	"tradecore/internal/strategy"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = time.Minute
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}

	app := &cli.App{
		Name:     "bot",
		HelpName: "bot",
		Usage:    "Run daily strategies against Alpaca market data",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Stream minute bars and drive the configured strategies",
				Flags:  config.Flags(),
				Action: run,
			},
			{
				Name:   "validate",
				Usage:  "Resolve and check the configuration without connecting",
				Flags:  config.Flags(),
				Action: validate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	runID := generateRunID()
	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID)
	if err != nil {
		return fmt.Errorf("decision logger error: %w", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			slog.Error("failed to close decision logger", "error", err)
		}
	}()

	store := state.NewStore()
	if err := store.Load(cfg.CheckpointPath); err == nil {
		slog.Info("loaded checkpoint", "path", cfg.CheckpointPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("checkpoint not loaded", "path", cfg.CheckpointPath, "error", err)
	}

	var (
		brokerClient engine.Broker
		history      engine.History
	)
	if cfg.APIKey != "" && cfg.APISecret != "" {
		history = md.NewHistoryClient(cfg.APIKey, cfg.APISecret, cfg.Feed)
	}
	if cfg.Mode == config.ModePaper {
		brokerClient = broker.New(cfg.APIKey, cfg.APISecret, cfg.PaperBaseURL, cfg.RequestsPerMinute)
	}

	engineImpl, err := engine.New(cfg, risk.Gate{}, brokerClient, history, store, decisions, engine.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("engine error: %w", err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	if cfg.Mode == config.ModePaper {
		go engine.ReconcileLoop(ctx, brokerClient, store, cfg.Tickers(), cfg.ReconcileInterval)
	}

	slog.Info("starting bot", "run_id", runID, "mode", cfg.Mode, "symbols", cfg.Tickers(), "feed", cfg.Feed)
	streamBars(ctx, cfg, func(bar md.Bar) {
		engineImpl.OnBar(ctx, bar)
	})

	if err := store.Save(cfg.CheckpointPath); err != nil {
		slog.Error("failed to save checkpoint", "path", cfg.CheckpointPath, "error", err)
	}
	decisions.Summary(os.Stdout)
	slog.Info("bot shutdown complete")
	return nil
}

// streamBars keeps the minute bar stream connected until ctx is done,
// backing off between reconnects.
func streamBars(ctx context.Context, cfg config.Config, handler md.BarHandler) {
	delay := minReconnectDelay
	for {
		err := md.StartStream(ctx, cfg.APIKey, cfg.APISecret, cfg.Feed, cfg.Tickers(), handler)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("market data stream stopped", "error", err, "retry_in", delay)
		if err := broker.WaitForContext(ctx, delay); err != nil {
			return
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func validate(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "mode=%s feed=%s max_qty=%d max_notional=%.2f kill_switch=%t\n",
		cfg.Mode, cfg.Feed, cfg.MaxQty, cfg.MaxNotional, cfg.KillSwitch)

	table := tablewriter.NewWriter(c.App.Writer)
	table.SetHeader([]string{"ticker", "strategy", "cadence", "history bars", "parameters"})
	for _, sc := range cfg.Strategies {
		table.Append([]string{sc.Ticker, sc.Name(), string(sc.Cadence()), strconv.Itoa(sc.HistoryBars()), parameters(sc)})
	}
	table.Render()
	return nil
}

func parameters(sc strategy.Config) string {
	switch sc.Kind {
	case strategy.KindOpeningRangeBreakout:
		return fmt.Sprintf("risk_fraction=%g", sc.RiskFraction)
	case strategy.KindSMACrossover:
		return fmt.Sprintf("allocation_fraction=%g fast=%d slow=%d", sc.AllocationFraction, sc.FastPeriod, sc.SlowPeriod)
	default:
		return "-"
	}
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	return timestamp + "-" + uuid.NewString()[:8]
}
