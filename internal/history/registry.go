package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fxHistory/internal/domain"
	"fxHistory/internal/ports"
)

// Options configures a Registry.
type Options struct {
	Logger  ports.Logger
	Metrics ports.HistoryMetrics
	// DefaultFormat is used by GetOrCreate for series without any history file. Defaults to 400.
	DefaultFormat domain.FormatVersion
}

// Registry keeps at most one open SymbolSeries per (symbol, server directory). It assumes a single
// writing process; files shared with other processes are not locked.
type Registry struct {
	mu     sync.Mutex
	series map[Key]*SymbolSeries
	format domain.FormatVersion
	cfg    StoreConfig
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) (*Registry, error) {
	cfg, err := StoreConfig{Logger: opts.Logger, Metrics: opts.Metrics}.check()
	if err != nil {
		return nil, err
	}
	format := opts.DefaultFormat
	if format == 0 {
		format = domain.FormatV400
	}
	if !format.Valid() {
		return nil, fmt.Errorf("invalid default format %d: %w", format, ports.ErrInvalidArgument)
	}
	return &Registry{
		series: make(map[Key]*SymbolSeries),
		format: format,
		cfg:    cfg,
	}, nil
}

// DefaultFormat returns the format used for series created by GetOrCreate.
func (r *Registry) DefaultFormat() domain.FormatVersion { return r.format }

// Create creates a fresh series, truncating all of its history files. An open series with the same
// key is closed first.
func (r *Registry) Create(symbol string, digits int, format domain.FormatVersion, dir string) (*SymbolSeries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(symbol, digits, format, dir)
}

func (r *Registry) create(symbol string, digits int, format domain.FormatVersion, dir string) (*SymbolSeries, error) {
	if !domain.IsValidSymbol(symbol) {
		return nil, fmt.Errorf("invalid symbol %q: %w", symbol, ports.ErrInvalidArgument)
	}
	serverDir, err := CanonicalDir(dir)
	if err != nil {
		return nil, err
	}
	key := Key{Symbol: strings.ToUpper(symbol), Dir: serverDir}

	if prev := r.series[key]; prev != nil {
		if _, err := prev.Close(); err != nil {
			r.cfg.Logger.Error(context.Background(), err, "Failed to close previous series", map[string]interface{}{"key": key.String()})
		}
		delete(r.series, key)
	}

	s := newSeries(symbol, digits, format, serverDir, r.cfg)
	for i, tf := range domain.StandardTimeframes {
		st, err := CreateStore(symbol, tf, digits, format, serverDir, r.cfg)
		if err != nil {
			s.close()
			return nil, err
		}
		s.stores[i] = st
	}
	r.series[key] = s
	r.cfg.Metrics.SeriesOpened(symbol)
	r.cfg.Logger.Info(context.Background(), "History series created", map[string]interface{}{
		"symbol": symbol,
		"digits": digits,
		"format": int(format),
		"dir":    serverDir,
	})
	return s, nil
}

// Get returns the open series of a symbol and directory. Without one, the history files are searched
// by ascending timeframe and the first usable file is attached; the other timeframes follow on first
// use. Files too small to hold a header are skipped. If nothing usable exists Get returns nil, nil.
func (r *Registry) Get(symbol, dir string) (*SymbolSeries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(symbol, dir)
}

func (r *Registry) get(symbol, dir string) (*SymbolSeries, error) {
	if !domain.IsValidSymbol(symbol) {
		return nil, fmt.Errorf("invalid symbol %q: %w", symbol, ports.ErrInvalidArgument)
	}
	serverDir, err := CanonicalDir(dir)
	if err != nil {
		return nil, err
	}
	key := Key{Symbol: strings.ToUpper(symbol), Dir: serverDir}

	if s := r.series[key]; s != nil {
		if !s.IsClosed() {
			return s, nil
		}
		delete(r.series, key)
	}

	for i, tf := range domain.StandardTimeframes {
		path, found := lookupFile(serverDir, FileName(symbol, tf))
		if !found {
			continue
		}
		st, err := OpenStore(path, r.cfg)
		if err != nil {
			if errors.Is(err, ports.ErrFileTooSmall) {
				r.cfg.Logger.Warn(context.Background(), "Skipping history file too small", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
				continue
			}
			return nil, err
		}

		s := newSeries(st.Symbol(), st.Digits(), st.Format(), serverDir, r.cfg)
		s.stores[i] = st
		r.series[key] = s
		r.cfg.Metrics.SeriesOpened(s.symbol)
		return s, nil
	}
	return nil, nil
}

// GetOrCreate returns the series of a symbol, creating it with the default format if no history
// exists. The digits of an existing series must match.
func (r *Registry) GetOrCreate(symbol string, digits int, dir string) (*SymbolSeries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.get(symbol, dir)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return r.create(symbol, digits, r.format, dir)
	}
	if s.Digits() != digits {
		return nil, fmt.Errorf("%s: history has %d digits, expected %d: %w", s.Key(), s.Digits(), digits, ports.ErrIntegrity)
	}
	return s, nil
}

// Open returns the number of open series.
func (r *Registry) Open() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.series {
		if !s.IsClosed() {
			n++
		}
	}
	return n
}

// CloseAll closes every open series. Close failures are logged.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, s := range r.series {
		if _, err := s.Close(); err != nil {
			r.cfg.Logger.Error(ctx, err, "Failed to close history series", map[string]interface{}{"key": key.String()})
		}
		delete(r.series, key)
	}
}
