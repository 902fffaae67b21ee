package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fxHistory/internal/adapters/logger" // Import the logger package for LogLevel
	"fxHistory/internal/domain"
	"fxHistory/internal/fxt"
)

// Feed names accepted by FEED.
const (
	FeedSQLite    = "sqlite"
	FeedBinance   = "binance"
	FeedDukascopy = "dukascopy"
)

// SymbolSpec is one entry of SYMBOLS.
type SymbolSpec struct {
	Name   string
	Digits int
}

// Config holds all application configuration.
type Config struct {
	// History files
	HistoryDir    string
	Symbols       []SymbolSpec
	DefaultDigits int
	Format        domain.FormatVersion
	TimeBase      fxt.TimeBase

	// Bar feed
	Feed         string
	DukascopyDir string

	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Sync loop
	SyncInterval    time.Duration // 0 runs a single pass
	SyncOverlap     time.Duration
	InitialLookback time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "text" or "json"

	// Connection Settings (Binance client)
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Metrics endpoint, empty disables it
	MetricsAddr string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// History files
	cfg.HistoryDir = getEnv("HISTORY_DIR", "./history")

	cfg.DefaultDigits, err = getEnvAsIntRequired("DEFAULT_DIGITS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_DIGITS: %v", err))
	} else if cfg.DefaultDigits < 0 || cfg.DefaultDigits > 8 {
		errs = append(errs, "DEFAULT_DIGITS must be between 0 and 8")
	}

	cfg.Symbols, err = ParseSymbols(getEnv("SYMBOLS", "EURUSD:5"), cfg.DefaultDigits)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYMBOLS: %v", err))
	} else if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must name at least one symbol")
	}

	format, err := getEnvAsIntRequired("HISTORY_FORMAT", int(domain.FormatV400))
	cfg.Format = domain.FormatVersion(format)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HISTORY_FORMAT: %v", err))
	} else if !cfg.Format.Valid() {
		errs = append(errs, "HISTORY_FORMAT must be 400 or 401")
	}

	cfg.TimeBase, err = fxt.ParseTimeBase(getEnv("SERVER_TIMEZONE", "FXT"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SERVER_TIMEZONE: %v", err))
	}

	// Bar feed
	cfg.Feed = strings.ToLower(getEnv("FEED", FeedSQLite))
	cfg.DukascopyDir = getEnv("DUKASCOPY_DIR", "./dukascopy")
	switch cfg.Feed {
	case FeedSQLite, FeedDukascopy:
	case FeedBinance:
		// Binance API
		cfg.APIKey = getEnv("BINANCE_API_KEY", "")
		cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
		cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	default:
		errs = append(errs, fmt.Sprintf("FEED must be one of %s, %s, %s", FeedSQLite, FeedBinance, FeedDukascopy))
	}

	// Sync loop
	interval, err := getEnvAsIntRequired("SYNC_INTERVAL_SECONDS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYNC_INTERVAL_SECONDS: %v", err))
	} else if interval < 0 {
		errs = append(errs, "SYNC_INTERVAL_SECONDS cannot be negative")
	}
	cfg.SyncInterval = time.Duration(interval) * time.Second

	overlap, err := getEnvAsIntRequired("SYNC_OVERLAP_MINUTES", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYNC_OVERLAP_MINUTES: %v", err))
	} else if overlap < 0 {
		errs = append(errs, "SYNC_OVERLAP_MINUTES cannot be negative")
	}
	cfg.SyncOverlap = time.Duration(overlap) * time.Minute

	lookback, err := getEnvAsIntRequired("INITIAL_LOOKBACK_DAYS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_LOOKBACK_DAYS: %v", err))
	} else if lookback <= 0 {
		errs = append(errs, "INITIAL_LOOKBACK_DAYS must be positive")
	}
	cfg.InitialLookback = time.Duration(lookback) * 24 * time.Hour

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/history.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// ParseSymbols parses a comma separated list of SYMBOL or SYMBOL:DIGITS entries.
func ParseSymbols(s string, defaultDigits int) ([]SymbolSpec, error) {
	var specs []SymbolSpec
	seen := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, digitsStr, hasDigits := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if !domain.IsValidSymbol(name) {
			return nil, fmt.Errorf("invalid symbol %q", name)
		}
		digits := defaultDigits
		if hasDigits {
			d, err := strconv.Atoi(strings.TrimSpace(digitsStr))
			if err != nil || d < 0 || d > 8 {
				return nil, fmt.Errorf("invalid digits %q for symbol %s", digitsStr, name)
			}
			digits = d
		}
		if seen[strings.ToUpper(name)] {
			return nil, fmt.Errorf("duplicate symbol %s", name)
		}
		seen[strings.ToUpper(name)] = true
		specs = append(specs, SymbolSpec{Name: name, Digits: digits})
	}
	return specs, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
