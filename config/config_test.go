package config

import (
	"testing"
	"time"

	"fxHistory/internal/adapters/logger"
	"fxHistory/internal/domain"
	"fxHistory/internal/fxt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"HISTORY_DIR", "SYMBOLS", "DEFAULT_DIGITS", "HISTORY_FORMAT", "SERVER_TIMEZONE", "FEED", "DUKASCOPY_DIR",
	"BINANCE_API_KEY", "BINANCE_API_SECRET", "IS_TESTNET", "SYNC_INTERVAL_SECONDS", "SYNC_OVERLAP_MINUTES",
	"INITIAL_LOOKBACK_DAYS", "DB_PATH", "LOG_LEVEL", "LOG_FORMAT", "RECONNECT_DELAY_SECONDS",
	"MAX_RECONNECT_ATTEMPTS", "METRICS_ADDR",
}

// clearEnv blanks every key so values from the host environment or a .env file do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "./history", cfg.HistoryDir)
	assert.Equal(t, []SymbolSpec{{Name: "EURUSD", Digits: 5}}, cfg.Symbols)
	assert.Equal(t, domain.FormatV400, cfg.Format)
	assert.Equal(t, fxt.BaseFXT, cfg.TimeBase)
	assert.Equal(t, FeedSQLite, cfg.Feed)
	assert.Equal(t, time.Duration(0), cfg.SyncInterval)
	assert.Equal(t, time.Hour, cfg.SyncOverlap)
	assert.Equal(t, 30*24*time.Hour, cfg.InitialLookback)
	assert.Equal(t, "./data/history.db", cfg.DBPath)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYMBOLS", "EURUSD:5, USDJPY:3, XAUUSD")
	t.Setenv("DEFAULT_DIGITS", "2")
	t.Setenv("HISTORY_FORMAT", "401")
	t.Setenv("SERVER_TIMEZONE", "utc")
	t.Setenv("FEED", "binance")
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")
	t.Setenv("IS_TESTNET", "false")
	t.Setenv("SYNC_INTERVAL_SECONDS", "60")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ADDR", ":9100")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []SymbolSpec{{"EURUSD", 5}, {"USDJPY", 3}, {"XAUUSD", 2}}, cfg.Symbols)
	assert.Equal(t, domain.FormatV401, cfg.Format)
	assert.Equal(t, fxt.BaseUTC, cfg.TimeBase)
	assert.Equal(t, FeedBinance, cfg.Feed)
	assert.Equal(t, "key", cfg.APIKey)
	assert.False(t, cfg.IsTestnet)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestLoadConfig_CollectsErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("HISTORY_FORMAT", "402")
	t.Setenv("FEED", "binance")
	t.Setenv("SYNC_OVERLAP_MINUTES", "abc")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := LoadConfig()
	require.Error(t, err)
	for _, want := range []string{
		"HISTORY_FORMAT must be 400 or 401",
		"BINANCE_API_KEY must be set",
		"BINANCE_API_SECRET must be set",
		"invalid SYNC_OVERLAP_MINUTES",
		"LOG_FORMAT must be text or json",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParseSymbols(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []SymbolSpec
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{name: "default digits", input: "EURUSD,GBPUSD", want: []SymbolSpec{{"EURUSD", 4}, {"GBPUSD", 4}}},
		{name: "explicit digits", input: "USDJPY:3", want: []SymbolSpec{{"USDJPY", 3}}},
		{name: "trailing comma", input: "EURUSD:5,", want: []SymbolSpec{{"EURUSD", 5}}},
		{name: "symbol too long", input: "ABCDEFGHIJKL", wantErr: true},
		{name: "bad digits", input: "EURUSD:x", wantErr: true},
		{name: "duplicate ignoring case", input: "EURUSD,eurusd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSymbols(tt.input, 4)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
