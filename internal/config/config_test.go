package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"tradecore/internal/strategy"
)

func loadArgs(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	var (
		cfg     Config
		loadErr error
	)
	app := &cli.App{
		Name:  "bot",
		Flags: Flags(),
		Action: func(c *cli.Context) error {
			cfg, loadErr = FromContext(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"bot"}, args...)))
	return cfg, loadErr
}

func TestValidateConfigRejectsInvalidValues(t *testing.T) {
	cfg := Default()
	cfg.Mode = ModePaper
	cfg.APIKey, cfg.APISecret = "key", "secret"
	cfg.Strategies = []strategy.Config{{Kind: strategy.KindBuyAndHold, Ticker: "AAPL"}}
	require.NoError(t, validate(cfg))

	bad := cfg
	bad.MaxQty = -1
	assert.Error(t, validate(bad))

	bad = cfg
	bad.APISecret = ""
	assert.Error(t, validate(bad))

	bad = cfg
	bad.Strategies = []strategy.Config{{Kind: strategy.KindSMACrossover, Ticker: "AAPL", AllocationFraction: 0.8, FastPeriod: 200, SlowPeriod: 50}}
	assert.ErrorIs(t, validate(bad), strategy.ErrInvalidConfig)

	bad = cfg
	bad.Strategies = append(bad.Strategies, strategy.Config{Kind: strategy.KindBuyAndHold, Ticker: "AAPL"})
	assert.Error(t, validate(bad))

	bad = cfg
	bad.OrderType = "stop"
	assert.Error(t, validate(bad))
}

func TestLoadDefaultsForStreamMode(t *testing.T) {
	clearBotEnv(t)

	cfg, err := loadArgs(t)
	require.NoError(t, err)
	assert.Equal(t, ModeStream, cfg.Mode)
	assert.Equal(t, "test", cfg.Feed)
	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, strategy.Config{Kind: strategy.KindBuyAndHold, Ticker: "FAKEPACA"}, cfg.Strategies[0])
}

func TestLoadConfigPrecedence(t *testing.T) {
	clearBotEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.json")
	configContents := `{
  "mode": "stream",
  "feed": "iex",
  "strategy": "sma",
  "symbols": ["TSLA"],
  "maxQty": 5,
  "cooldown": "2m",
  "apiKey": "config-key"
}`
	require.NoError(t, os.WriteFile(configPath, []byte(configContents), 0o600))

	t.Setenv("BOT_FEED", "sip")
	t.Setenv("APCA_API_KEY_ID", "env-key")

	cfg, err := loadArgs(t,
		"--config", configPath,
		"--strategy", "orb",
		"--max-qty", "2",
		"--risk-fraction", "0.8",
	)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxQty, "max qty from CLI")
	assert.Equal(t, "sip", cfg.Feed, "feed from env")
	assert.Equal(t, "env-key", cfg.APIKey, "API key from env")
	assert.Equal(t, 2*time.Minute, cfg.Cooldown, "cooldown from file")
	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, strategy.KindOpeningRangeBreakout, cfg.Strategies[0].Kind, "strategy from CLI")
	assert.Equal(t, "TSLA", cfg.Strategies[0].Ticker, "symbol from file")
	assert.Equal(t, 0.8, cfg.Strategies[0].RiskFraction)
}

func TestLoadStrategyListFromYAML(t *testing.T) {
	clearBotEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yml")
	configContents := `
mode: stream
strategies:
  - kind: opening_range_breakout
    ticker: tsla
    risk_fraction: 0.8
  - kind: sma_crossover
    ticker: SPY
  - kind: "1"
    ticker: MSFT
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContents), 0o600))

	cfg, err := loadArgs(t, "--config", configPath)
	require.NoError(t, err)
	require.Len(t, cfg.Strategies, 3)
	assert.Equal(t, []string{"TSLA", "SPY", "MSFT"}, cfg.Tickers())
	assert.Equal(t, 0.8, cfg.Strategies[0].RiskFraction)
	assert.Equal(t, 50, cfg.Strategies[1].FastPeriod)
	assert.Equal(t, 200, cfg.Strategies[1].SlowPeriod)
	assert.Equal(t, strategy.KindBuyAndHold, cfg.Strategies[2].Kind)
}

func TestLoadRejectsBadStrategyFlags(t *testing.T) {
	clearBotEnv(t)

	_, err := loadArgs(t, "--strategy", "sma", "--symbol", "AAPL", "--fast-period", "30", "--slow-period", "10")
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)

	_, err = loadArgs(t, "--strategy", "momentum")
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)

	_, err = loadArgs(t, "--mode", "paper")
	assert.Error(t, err, "paper mode needs credentials")
}

func clearBotEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"BOT_CONFIG", "BOT_MODE", "BOT_FEED", "BOT_STRATEGY", "BOT_SYMBOLS", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY"} {
		unsetEnv(t, key)
	}
}
