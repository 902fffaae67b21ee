package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fxHistory/internal/domain"
	"fxHistory/internal/ports"
)

// Key identifies a SymbolSeries: the uppercased symbol and the canonical server directory.
type Key struct {
	Symbol string
	Dir    string
}

func (k Key) String() string {
	return k.Symbol + "@" + k.Dir
}

// BufferInfo describes the state of one timeframe store of a series.
type BufferInfo struct {
	Timeframe    domain.Timeframe
	Path         string
	Format       domain.FormatVersion
	Bars         int64 // bars including the open bucket
	Buffered     int   // bars held in memory
	LastBarTime  int64
	LastSyncTime int64
}

// SymbolSeries owns the history files of one symbol in one server directory, one per standard
// timeframe. Stores are materialized on first use. All methods are safe for concurrent use.
type SymbolSeries struct {
	mu     sync.Mutex
	symbol string
	digits int
	format domain.FormatVersion
	dir    string
	key    Key
	stores [len(domain.StandardTimeframes)]*Store
	closed bool

	cfg StoreConfig
}

func newSeries(symbol string, digits int, format domain.FormatVersion, dir string, cfg StoreConfig) *SymbolSeries {
	return &SymbolSeries{
		symbol: symbol,
		digits: digits,
		format: format,
		dir:    dir,
		key:    Key{Symbol: strings.ToUpper(symbol), Dir: dir},
		cfg:    cfg,
	}
}

// Symbol returns the symbol as used in the file names.
func (s *SymbolSeries) Symbol() string { return s.symbol }

// Digits returns the price precision shared by all timeframes.
func (s *SymbolSeries) Digits() int { return s.digits }

// Format returns the bar format used for newly created files.
func (s *SymbolSeries) Format() domain.FormatVersion { return s.format }

// ServerDirectory returns the canonical directory of the history files.
func (s *SymbolSeries) ServerDirectory() string { return s.dir }

// ServerName returns the last element of the server directory.
func (s *SymbolSeries) ServerName() string { return filepath.Base(s.dir) }

// Key returns the registry key of the series.
func (s *SymbolSeries) Key() Key { return s.key }

// IsClosed reports whether the series was closed.
func (s *SymbolSeries) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AppendBars adds minute bars to every timeframe. Timeframes are updated independently: a failure in
// one store does not roll back bars already written to the stores before it.
func (s *SymbolSeries) AppendBars(bars []domain.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, tf := range domain.StandardTimeframes {
		st, err := s.store(tf, true)
		if err != nil {
			return err
		}
		if err := st.AppendBars(bars); err != nil {
			return err
		}
	}
	return nil
}

// Synchronize corrects the minute history with authoritative bars.
func (s *SymbolSeries) Synchronize(bars []domain.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	st, err := s.store(domain.M1, true)
	if err != nil {
		return err
	}
	return st.Synchronize(bars)
}

// LastSyncTime returns the sync watermark of the series. Only the minute history is consulted.
func (s *SymbolSeries) LastSyncTime() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	st, err := s.store(domain.M1, false)
	if err != nil || st == nil {
		return 0, err
	}
	return st.LastSyncTime(), nil
}

// LastSyncTimeAll returns the oldest sync watermark across all timeframes. A missing file counts as
// never synchronized.
func (s *SymbolSeries) LastSyncTimeAll() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var oldest int64 = -1
	for _, tf := range domain.StandardTimeframes {
		st, err := s.store(tf, false)
		if err != nil {
			return 0, err
		}
		var t int64
		if st != nil {
			t = st.LastSyncTime()
		}
		if oldest < 0 || t < oldest {
			oldest = t
		}
	}
	return oldest, nil
}

// LastBarTime returns the open time of the newest bar of a timeframe, 0 if it holds no bars.
func (s *SymbolSeries) LastBarTime(tf domain.Timeframe) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	st, err := s.store(tf, false)
	if err != nil || st == nil {
		return 0, err
	}
	return st.LastBarTime(), nil
}

// ReadBars returns the stored bars of a timeframe with from <= time <= to (to == 0: no limit).
func (s *SymbolSeries) ReadBars(tf domain.Timeframe, from, to int64) ([]domain.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	st, err := s.store(tf, false)
	if err != nil || st == nil {
		return nil, err
	}
	return st.ReadBars(from, to)
}

// BufferSummary reports the materialized stores of the series.
func (s *SymbolSeries) BufferSummary() []BufferInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var infos []BufferInfo
	for _, st := range s.stores {
		if st == nil || st.IsClosed() {
			continue
		}
		infos = append(infos, BufferInfo{
			Timeframe:    st.Timeframe(),
			Path:         st.Path(),
			Format:       st.Format(),
			Bars:         st.BarCount(),
			Buffered:     len(st.BufferedBars()),
			LastBarTime:  st.LastBarTime(),
			LastSyncTime: st.LastSyncTime(),
		})
	}
	return infos
}

// Flush writes the open bars of all materialized stores to disk.
func (s *SymbolSeries) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	var errs []error
	for _, st := range s.stores {
		if st != nil {
			if err := st.Flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes all stores of the series. It returns false if the series was already closed. Failing
// stores do not stop the remaining ones from being closed.
func (s *SymbolSeries) Close() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

func (s *SymbolSeries) close() (bool, error) {
	if s.closed {
		return false, nil
	}
	s.closed = true

	var errs []error
	for i, st := range s.stores {
		if st == nil {
			continue
		}
		if _, err := st.Close(); err != nil {
			errs = append(errs, err)
		}
		s.stores[i] = nil
	}
	s.cfg.Metrics.SeriesClosed(s.symbol)
	return true, errors.Join(errs...)
}

func (s *SymbolSeries) checkOpen() error {
	if s.closed {
		return fmt.Errorf("series %s is closed: %w", s.key, ports.ErrIllegalState)
	}
	return nil
}

// store returns the store of a timeframe. An existing file is attached, a missing or too small one is
// created if create is set. Without create a missing file yields a nil store.
func (s *SymbolSeries) store(tf domain.Timeframe, create bool) (*Store, error) {
	i := tf.Index()
	if i < 0 {
		return nil, fmt.Errorf("invalid timeframe %d: %w", int(tf), ports.ErrInvalidArgument)
	}
	if st := s.stores[i]; st != nil {
		return st, nil
	}

	var st *Store
	path, found := lookupFile(s.dir, FileName(s.symbol, tf))
	if found {
		var err error
		st, err = OpenStore(path, s.cfg)
		switch {
		case err == nil:
			if st.Digits() != s.digits {
				st.release()
				s.close()
				return nil, fmt.Errorf("%s: digits %d do not match series digits %d: %w", path, st.Digits(), s.digits, ports.ErrIntegrity)
			}
		case errors.Is(err, ports.ErrFileTooSmall):
			s.cfg.Logger.Warn(context.Background(), "History file too small, it will be recreated", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		default:
			return nil, err
		}
	}
	if st == nil {
		if !create {
			return nil, nil
		}
		var err error
		if st, err = CreateStore(s.symbol, tf, s.digits, s.format, s.dir, s.cfg); err != nil {
			return nil, err
		}
	}
	s.stores[i] = st
	return st, nil
}

// lookupFile finds a file in dir by name, ignoring case if there is no exact match.
func lookupFile(dir, name string) (string, bool) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), name) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}
