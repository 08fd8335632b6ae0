package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"tradecore/internal/strategy"
)

type Mode string

const (
	ModeStream Mode = "stream"
	ModePaper  Mode = "paper"
)

type Config struct {
	Mode               Mode              `yaml:"mode"`
	Feed               string            `yaml:"feed"`
	Strategy           string            `yaml:"strategy"`
	Symbols            []string          `yaml:"symbols"`
	RiskFraction       float64           `yaml:"riskFraction"`
	AllocationFraction float64           `yaml:"allocationFraction"`
	FastPeriod         int               `yaml:"fastPeriod"`
	SlowPeriod         int               `yaml:"slowPeriod"`
	Strategies         []strategy.Config `yaml:"strategies"`
	BarsWindow         int               `yaml:"barsWindow"`
	MaxQty             int               `yaml:"maxQty"`
	MaxNotional        float64           `yaml:"maxNotional"`
	Cash               float64           `yaml:"cash"`
	Cooldown           time.Duration     `yaml:"cooldown"`
	ReconcileInterval  time.Duration     `yaml:"reconcileInterval"`
	KillSwitch         bool              `yaml:"killSwitch"`
	ExtendedHours      bool              `yaml:"extendedHours"`
	OrderType          string            `yaml:"orderType"`
	TimeInForce        string            `yaml:"timeInForce"`
	DecisionsPath      string            `yaml:"decisionsPath"`
	CheckpointPath     string            `yaml:"checkpointPath"`
	PaperBaseURL       string            `yaml:"paperBaseURL"`
	RequestsPerMinute  int               `yaml:"requestsPerMinute"`
	LogLevel           string            `yaml:"logLevel"`
	APIKey             string            `yaml:"apiKey"`
	APISecret          string            `yaml:"apiSecret"`
}

func Default() Config {
	return Config{
		Mode:              ModeStream,
		Strategy:          string(strategy.KindBuyAndHold),
		BarsWindow:        390,
		Cash:              100000,
		ReconcileInterval: 10 * time.Second,
		OrderType:         "market",
		TimeInForce:       "day",
		DecisionsPath:     "decisions.ndjson",
		CheckpointPath:    "checkpoint.db",
		PaperBaseURL:      "https://paper-api.alpaca.markets",
		RequestsPerMinute: 180,
		LogLevel:          "info",
	}
}

// Flags are the CLI flags FromContext reads. Each one can also come from the
// environment.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML or JSON config file", EnvVars: []string{"BOT_CONFIG"}},
		&cli.StringFlag{Name: "mode", Usage: "run mode: stream or paper", EnvVars: []string{"BOT_MODE"}},
		&cli.StringFlag{Name: "feed", Usage: "market data feed: iex, sip or test", EnvVars: []string{"BOT_FEED"}},
		&cli.StringFlag{Name: "strategy", Aliases: []string{"s"}, Usage: "buy_and_hold, opening_range_breakout or sma_crossover", EnvVars: []string{"BOT_STRATEGY"}},
		&cli.StringSliceFlag{Name: "symbol", Usage: "ticker to trade, repeatable", EnvVars: []string{"BOT_SYMBOLS"}},
		&cli.Float64Flag{Name: "risk-fraction", Usage: "breakout: portfolio fraction per entry", EnvVars: []string{"BOT_RISK_FRACTION"}},
		&cli.Float64Flag{Name: "allocation-fraction", Usage: "sma: portfolio fraction per entry", EnvVars: []string{"BOT_ALLOCATION_FRACTION"}},
		&cli.IntFlag{Name: "fast-period", Usage: "sma: fast average length in days", EnvVars: []string{"BOT_FAST_PERIOD"}},
		&cli.IntFlag{Name: "slow-period", Usage: "sma: slow average length in days", EnvVars: []string{"BOT_SLOW_PERIOD"}},
		&cli.IntFlag{Name: "bars-window", Usage: "minute bars kept per symbol", EnvVars: []string{"BOT_BARS_WINDOW"}},
		&cli.IntFlag{Name: "max-qty", Usage: "max absolute position, 0 for no limit", EnvVars: []string{"BOT_MAX_QTY"}},
		&cli.Float64Flag{Name: "max-notional", Usage: "max notional per entry, 0 for no limit", EnvVars: []string{"BOT_MAX_NOTIONAL"}},
		&cli.Float64Flag{Name: "cash", Usage: "portfolio value used in stream mode", EnvVars: []string{"BOT_CASH"}},
		&cli.DurationFlag{Name: "cooldown", Usage: "cooldown between entries", EnvVars: []string{"BOT_COOLDOWN"}},
		&cli.DurationFlag{Name: "reconcile-interval", Usage: "reconciliation interval", EnvVars: []string{"BOT_RECONCILE_INTERVAL"}},
		&cli.BoolFlag{Name: "kill-switch", Usage: "if true, never place orders", EnvVars: []string{"BOT_KILL_SWITCH"}},
		&cli.BoolFlag{Name: "extended-hours", Usage: "allow extended hours (limit+day only)", EnvVars: []string{"BOT_EXTENDED_HOURS"}},
		&cli.StringFlag{Name: "order-type", Usage: "order type: market or limit", EnvVars: []string{"BOT_ORDER_TYPE"}},
		&cli.StringFlag{Name: "time-in-force", Usage: "time in force: day or gtc", EnvVars: []string{"BOT_TIME_IN_FORCE"}},
		&cli.StringFlag{Name: "decisions-path", Usage: "path to decisions log", EnvVars: []string{"BOT_DECISIONS_PATH"}},
		&cli.StringFlag{Name: "checkpoint-path", Usage: "path to checkpoint database", EnvVars: []string{"BOT_CHECKPOINT_PATH"}},
		&cli.StringFlag{Name: "paper-base-url", Usage: "paper trading base URL", EnvVars: []string{"BOT_PAPER_BASE_URL"}},
		&cli.IntFlag{Name: "requests-per-minute", Usage: "broker REST request budget", EnvVars: []string{"BOT_REQUESTS_PER_MINUTE"}},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVars: []string{"BOT_LOG_LEVEL"}},
		&cli.StringFlag{Name: "api-key", Usage: "Alpaca API key id", EnvVars: []string{"APCA_API_KEY_ID"}},
		&cli.StringFlag{Name: "api-secret", Usage: "Alpaca API secret", EnvVars: []string{"APCA_API_SECRET_KEY"}},
	}
}

// FromContext resolves the run config: defaults, then the --config file, then
// environment and CLI flags.
func FromContext(c *cli.Context) (Config, error) {
	cfg := Default()
	if path := c.String("config"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	shorthand := false
	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setString("feed", &cfg.Feed)
	setString("order-type", &cfg.OrderType)
	setString("time-in-force", &cfg.TimeInForce)
	setString("decisions-path", &cfg.DecisionsPath)
	setString("checkpoint-path", &cfg.CheckpointPath)
	setString("paper-base-url", &cfg.PaperBaseURL)
	setString("log-level", &cfg.LogLevel)
	setString("api-key", &cfg.APIKey)
	setString("api-secret", &cfg.APISecret)
	if c.IsSet("mode") {
		cfg.Mode = Mode(c.String("mode"))
	}
	if c.IsSet("strategy") {
		cfg.Strategy = c.String("strategy")
		shorthand = true
	}
	if c.IsSet("symbol") {
		cfg.Symbols = c.StringSlice("symbol")
		shorthand = true
	}
	if c.IsSet("risk-fraction") {
		cfg.RiskFraction = c.Float64("risk-fraction")
		shorthand = true
	}
	if c.IsSet("allocation-fraction") {
		cfg.AllocationFraction = c.Float64("allocation-fraction")
		shorthand = true
	}
	if c.IsSet("fast-period") {
		cfg.FastPeriod = c.Int("fast-period")
		shorthand = true
	}
	if c.IsSet("slow-period") {
		cfg.SlowPeriod = c.Int("slow-period")
		shorthand = true
	}
	if c.IsSet("bars-window") {
		cfg.BarsWindow = c.Int("bars-window")
	}
	if c.IsSet("max-qty") {
		cfg.MaxQty = c.Int("max-qty")
	}
	if c.IsSet("max-notional") {
		cfg.MaxNotional = c.Float64("max-notional")
	}
	if c.IsSet("cash") {
		cfg.Cash = c.Float64("cash")
	}
	if c.IsSet("cooldown") {
		cfg.Cooldown = c.Duration("cooldown")
	}
	if c.IsSet("reconcile-interval") {
		cfg.ReconcileInterval = c.Duration("reconcile-interval")
	}
	if c.IsSet("kill-switch") {
		cfg.KillSwitch = c.Bool("kill-switch")
	}
	if c.IsSet("extended-hours") {
		cfg.ExtendedHours = c.Bool("extended-hours")
	}
	if c.IsSet("requests-per-minute") {
		cfg.RequestsPerMinute = c.Int("requests-per-minute")
	}

	if err := cfg.resolve(shorthand); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// resolve fills mode dependent defaults and turns the single-strategy
// shorthand into Strategies when no explicit list applies.
func (cfg *Config) resolve(shorthand bool) error {
	if cfg.Mode == ModeStream {
		if len(cfg.Symbols) == 0 && len(cfg.Strategies) == 0 {
			cfg.Symbols = []string{"FAKEPACA"}
		}
		if cfg.Feed == "" {
			cfg.Feed = "test"
		}
	}
	if cfg.Mode == ModePaper {
		if len(cfg.Symbols) == 0 && len(cfg.Strategies) == 0 {
			cfg.Symbols = []string{strategy.DefaultTicker}
		}
		if cfg.Feed == "" {
			cfg.Feed = "iex"
		}
	}

	if shorthand || len(cfg.Strategies) == 0 {
		kind, err := strategy.ParseKind(cfg.Strategy)
		if err != nil {
			return err
		}
		cfg.Strategies = cfg.Strategies[:0]
		for _, symbol := range cfg.Symbols {
			cfg.Strategies = append(cfg.Strategies, strategy.Config{
				Kind:               kind,
				Ticker:             symbol,
				RiskFraction:       cfg.RiskFraction,
				AllocationFraction: cfg.AllocationFraction,
				FastPeriod:         cfg.FastPeriod,
				SlowPeriod:         cfg.SlowPeriod,
			})
		}
	} else {
		for i, sc := range cfg.Strategies {
			kind, err := strategy.ParseKind(string(sc.Kind))
			if err != nil {
				return err
			}
			cfg.Strategies[i].Kind = kind
		}
	}
	for i := range cfg.Strategies {
		cfg.Strategies[i] = cfg.Strategies[i].WithDefaults()
	}
	return nil
}

// Tickers lists the symbols of the configured strategies in config order.
func (cfg Config) Tickers() []string {
	tickers := make([]string, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		tickers = append(tickers, sc.Ticker)
	}
	return tickers
}

func validate(cfg Config) error {
	if cfg.Mode != ModeStream && cfg.Mode != ModePaper {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		if cfg.Mode == ModePaper {
			return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required in paper mode")
		}
	}
	if len(cfg.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	seen := make(map[string]bool, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("strategy %s: %w", sc.Ticker, err)
		}
		if seen[sc.Ticker] {
			return fmt.Errorf("symbol %s is configured more than once", sc.Ticker)
		}
		seen[sc.Ticker] = true
	}
	if cfg.BarsWindow < 1 {
		return fmt.Errorf("bars-window must be > 0")
	}
	if cfg.MaxQty < 0 {
		return fmt.Errorf("max-qty must be >= 0")
	}
	if cfg.MaxNotional < 0 {
		return fmt.Errorf("max-notional must be >= 0")
	}
	if cfg.Mode == ModeStream && cfg.Cash <= 0 {
		return fmt.Errorf("cash must be > 0 in stream mode")
	}
	if cfg.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile-interval must be > 0")
	}
	if cfg.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0")
	}
	if cfg.OrderType != "market" && cfg.OrderType != "limit" {
		return fmt.Errorf("unsupported order type: %s", cfg.OrderType)
	}
	if cfg.TimeInForce != "day" && cfg.TimeInForce != "gtc" {
		return fmt.Errorf("unsupported time in force: %s", cfg.TimeInForce)
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

func ParseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q", value)
	}
	return level, nil
}
