package app

import (
	"fmt"

	"fxHistory/config"
	"fxHistory/internal/adapters/binanceclient"
	"fxHistory/internal/adapters/dukascopy"
	"fxHistory/internal/ports"
)

// NewBarSource returns the bar source selected by cfg.Feed. The sqlite feed reads the minute bars
// previously stored in repo.
func NewBarSource(cfg *config.Config, logger ports.Logger, repo ports.MinuteBarRepository) (ports.BarSource, error) {
	switch cfg.Feed {
	case config.FeedSQLite:
		if repo == nil {
			return nil, fmt.Errorf("sqlite feed needs a repository: %w", ports.ErrConfigurationError)
		}
		return repo, nil
	case config.FeedBinance:
		return binanceclient.New(binanceclient.Config{
			APIKey:               cfg.APIKey,
			SecretKey:            cfg.SecretKey,
			UseTestnet:           cfg.IsTestnet,
			Logger:               logger,
			TimeBase:             cfg.TimeBase,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
	case config.FeedDukascopy:
		digits := make(map[string]int, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			digits[s.Name] = s.Digits
		}
		return dukascopy.New(dukascopy.Config{
			Root:     cfg.DukascopyDir,
			Digits:   digits,
			Default:  cfg.DefaultDigits,
			TimeBase: cfg.TimeBase,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("unknown feed %q: %w", cfg.Feed, ports.ErrConfigurationError)
	}
}
