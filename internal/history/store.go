// Package history manages MetaTrader history files: one Store per (symbol, timeframe) file, one
// SymbolSeries per (symbol, server directory) and a Registry that keeps a single writer per series.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"fxHistory/internal/domain"
	"fxHistory/internal/mt4"
	"fxHistory/internal/ports"
)

// StoreConfig holds the collaborators of a Store.
type StoreConfig struct {
	Logger  ports.Logger
	Metrics ports.HistoryMetrics
}

func (c StoreConfig) check() (StoreConfig, error) {
	if c.Logger == nil {
		return c, fmt.Errorf("logger is required for history store: %w", ports.ErrInvalidArgument)
	}
	if c.Metrics == nil {
		c.Metrics = ports.NopMetrics{}
	}
	return c, nil
}

// Store owns the history file of a single symbol and timeframe.
//
// The file holds `count` finalized bars followed by at most one copy of the open bucket. The open
// bucket is the bar of the current period which may still change; it is kept in memory and written
// in place on Flush and Close. A Store is not safe for concurrent use.
type Store struct {
	symbol string
	tf     domain.Timeframe
	digits int
	format domain.FormatVersion
	dir    string
	path   string

	codec  *mt4.BarCodec
	header mt4.HistoryHeader
	file   historyFile

	count    int64       // finalized records on disk
	onDisk   int64       // records physically present (count or count+1)
	open     *domain.Bar // open bucket
	lastSync int64
	closed   bool

	logger  ports.Logger
	metrics ports.HistoryMetrics
}

// historyFile is the part of *os.File a Store uses.
type historyFile interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
	Close() error
}

// FileName returns the history file name of a symbol and timeframe, e.g. "EURUSD15.hst".
func FileName(symbol string, tf domain.Timeframe) string {
	return symbol + strconv.Itoa(tf.Minutes()) + ".hst"
}

// CreateStore creates a new empty history file in dir, truncating an existing one.
func CreateStore(symbol string, tf domain.Timeframe, digits int, format domain.FormatVersion, dir string, cfg StoreConfig) (*Store, error) {
	cfg, err := cfg.check()
	if err != nil {
		return nil, err
	}
	if !domain.IsValidSymbol(symbol) {
		return nil, fmt.Errorf("invalid symbol %q: %w", symbol, ports.ErrInvalidArgument)
	}
	if !tf.IsStandard() {
		return nil, fmt.Errorf("invalid timeframe %d: %w", int(tf), ports.ErrInvalidArgument)
	}
	if digits < 0 {
		return nil, fmt.Errorf("invalid digits %d: %w", digits, ports.ErrInvalidArgument)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("invalid format %d (must be 400 or 401): %w", format, ports.ErrInvalidArgument)
	}
	serverDir, err := CanonicalDir(dir)
	if err != nil {
		return nil, err
	}
	codec, err := mt4.NewBarCodec(format)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(serverDir, FileName(symbol, tf))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %v: %w", path, err, ports.ErrIO)
	}

	s := &Store{
		symbol: symbol,
		tf:     tf,
		digits: digits,
		format: format,
		dir:    serverDir,
		path:   path,
		codec:  codec,
		header: mt4.HistoryHeader{
			Version:   format,
			Copyright: mt4.DefaultCopyright,
			Symbol:    symbol,
			Period:    tf,
			Digits:    digits,
			TimeSign:  time.Now().Unix(),
		},
		file:    f,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}

	s.logger.Debug(context.Background(), "History file created", map[string]interface{}{
		"path":   path,
		"format": int(format),
		"digits": digits,
	})
	return s, nil
}

// OpenStore attaches to an existing history file. A file shorter than its header fails with
// ports.ErrFileTooSmall, which callers may treat as "file does not exist yet".
func OpenStore(path string, cfg StoreConfig) (*Store, error) {
	cfg, err := cfg.check()
	if err != nil {
		return nil, err
	}
	serverDir, err := CanonicalDir(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	path = filepath.Join(serverDir, filepath.Base(path))

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("history file %s: %w", path, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %v: %w", path, err, ports.ErrIO)
	}

	s, err := attach(f, path, serverDir, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.logger.Debug(context.Background(), "History file attached", map[string]interface{}{
		"path": path,
		"bars": s.BarCount(),
	})
	return s, nil
}

func attach(f *os.File, path, serverDir string, cfg StoreConfig) (*Store, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %v: %w", path, err, ports.ErrIO)
	}
	size := info.Size()
	if size < mt4.HeaderSize {
		return nil, fmt.Errorf("%s: %d bytes: %w", path, size, ports.ErrFileTooSmall)
	}

	raw := make([]byte, mt4.HeaderSize)
	if _, err := f.ReadAt(raw, 0); err != nil {
		return nil, fmt.Errorf("read header of %s: %v: %w", path, err, ports.ErrIO)
	}
	h, err := mt4.DecodeHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !h.Period.IsStandard() {
		return nil, fmt.Errorf("%s: invalid period %d in header: %w", path, int(h.Period), ports.ErrIntegrity)
	}
	if !strings.EqualFold(filepath.Base(path), FileName(h.Symbol, h.Period)) {
		return nil, fmt.Errorf("%s: header describes %s: %w", path, FileName(h.Symbol, h.Period), ports.ErrIntegrity)
	}
	codec, err := mt4.NewBarCodec(h.Version)
	if err != nil {
		return nil, err
	}
	rs := int64(codec.RecordSize())
	if trailing := (size - mt4.HeaderSize) % rs; trailing != 0 {
		return nil, fmt.Errorf("%s: %d trailing bytes after the last full bar: %w", path, trailing, ports.ErrIntegrity)
	}

	s := &Store{
		symbol:   h.Symbol,
		tf:       h.Period,
		digits:   h.Digits,
		format:   h.Version,
		dir:      serverDir,
		path:     path,
		codec:    codec,
		header:   h,
		file:     f,
		onDisk:   (size - mt4.HeaderSize) / rs,
		lastSync: h.LastSync,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if s.onDisk > 0 {
		last, err := s.readRecord(s.onDisk - 1)
		if err != nil {
			return nil, err
		}
		s.count = s.onDisk - 1
		s.open = &last
	}
	return s, nil
}

// Symbol returns the symbol as written to the file header.
func (s *Store) Symbol() string { return s.symbol }

// Timeframe returns the period of the store.
func (s *Store) Timeframe() domain.Timeframe { return s.tf }

// Digits returns the price precision of the store.
func (s *Store) Digits() int { return s.digits }

// Format returns the bar format version of the file.
func (s *Store) Format() domain.FormatVersion { return s.format }

// Path returns the full file name.
func (s *Store) Path() string { return s.path }

// ServerDirectory returns the canonical directory holding the file.
func (s *Store) ServerDirectory() string { return s.dir }

// ServerName returns the last element of the server directory.
func (s *Store) ServerName() string { return filepath.Base(s.dir) }

// IsClosed reports whether Close was called.
func (s *Store) IsClosed() bool { return s.closed }

// LastSyncTime returns the time of the newest bar stored by Synchronize, 0 if the store was never synchronized.
func (s *Store) LastSyncTime() int64 { return s.lastSync }

// BarCount returns the number of bars including the open bucket.
func (s *Store) BarCount() int64 {
	if s.open != nil {
		return s.count + 1
	}
	return s.count
}

// LastBarTime returns the open time of the newest bar, 0 if the store is empty.
func (s *Store) LastBarTime() int64 {
	if s.open != nil {
		return s.open.Time
	}
	if s.count == 0 || s.closed {
		return 0
	}
	t, err := s.readTime(s.count - 1)
	if err != nil {
		return 0
	}
	return t
}

// BufferedBars returns the bars held in memory that may still change.
func (s *Store) BufferedBars() []domain.Bar {
	if s.open == nil {
		return nil
	}
	return []domain.Bar{*s.open}
}

// AppendBars aggregates minute bars into the period of the store. Bars must not be older than the
// open bucket. The batch is validated completely before anything is written.
func (s *Store) AppendBars(bars []domain.Bar) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}

	var open *domain.Bar
	if s.open != nil {
		b := *s.open
		open = &b
	}
	var done []domain.Bar

	for _, b := range bars {
		nb, err := s.codec.Check(s.digits, b)
		if err != nil {
			s.metrics.BarsRejected(s.symbol, s.tf, "invalid")
			return fmt.Errorf("%s %s: %w", s.symbol, s.tf, err)
		}
		start := s.tf.OpenTime(nb.Time)

		switch {
		case open == nil:
		case start < open.Time:
			s.metrics.BarsRejected(s.symbol, s.tf, "ordering")
			return fmt.Errorf("%s %s: bar of %s is older than the open bar of %s: %w", s.symbol, s.tf,
				nb.OpenTime().Format(time.DateTime), open.OpenTime().Format(time.DateTime), ports.ErrOrdering)
		case start == open.Time:
			open.Merge(nb)
			continue
		default:
			done = append(done, *open)
		}
		nb.Time = start
		open = &nb
	}

	if _, err := s.codec.Check(s.digits, *open); err != nil {
		return fmt.Errorf("%s %s: %w", s.symbol, s.tf, err)
	}
	if len(done) > 0 {
		buf, err := s.encode(done)
		if err != nil {
			return err
		}
		if err := s.writeRecords(s.count, buf); err != nil {
			return err
		}
		s.count += int64(len(done))
		s.onDisk = s.count
		s.metrics.BarsWritten(s.symbol, s.tf, len(done))
	}
	s.open = open
	return nil
}

// Synchronize replaces all bars at or after the first incoming bar with the incoming minute bars and
// moves the sync watermark to the newest of them. Bars before that time are not touched. Only the
// M1 store can be synchronized; higher timeframes have to be rebuilt from the minute series.
func (s *Store) Synchronize(bars []domain.Bar) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.tf != domain.M1 {
		return fmt.Errorf("synchronize is not supported for %s: %w", s.tf, ports.ErrInvalidArgument)
	}
	if len(bars) == 0 {
		return nil
	}

	incoming := make([]domain.Bar, len(bars))
	for i, b := range bars {
		nb, err := s.codec.Check(s.digits, b)
		if err != nil {
			s.metrics.BarsRejected(s.symbol, s.tf, "invalid")
			return fmt.Errorf("%s %s: %w", s.symbol, s.tf, err)
		}
		nb.Time = s.tf.OpenTime(nb.Time)
		if i > 0 && nb.Time <= incoming[i-1].Time {
			s.metrics.BarsRejected(s.symbol, s.tf, "ordering")
			return fmt.Errorf("%s %s: synchronized bars must be strictly ascending, %s follows %s: %w", s.symbol, s.tf,
				nb.OpenTime().Format(time.DateTime), incoming[i-1].OpenTime().Format(time.DateTime), ports.ErrOrdering)
		}
		incoming[i] = nb
	}
	t0 := incoming[0].Time

	keep, err := s.search(t0)
	if err != nil {
		return err
	}
	tail := incoming
	if keep == s.count && s.open != nil && s.open.Time < t0 {
		tail = append([]domain.Bar{*s.open}, incoming...)
	}
	buf, err := s.encode(tail)
	if err != nil {
		return err
	}

	// the replaced region is saved to restore it if the write fails halfway
	rs := int64(s.codec.RecordSize())
	saved := make([]byte, (s.onDisk-keep)*rs)
	if len(saved) > 0 {
		if _, err := s.file.ReadAt(saved, s.offset(keep)); err != nil {
			return fmt.Errorf("read %s: %v: %w", s.path, err, ports.ErrIO)
		}
	}
	if err := s.replaceTail(keep, buf); err != nil {
		s.restoreTail(keep, saved)
		return err
	}
	last := incoming[len(incoming)-1]
	prevSync := s.header.LastSync
	s.header.LastSync = last.Time
	if err := s.writeHeader(); err != nil {
		s.header.LastSync = prevSync
		if herr := s.writeHeader(); herr != nil {
			s.logger.Error(context.Background(), herr, "Failed to restore history header after write error",
				map[string]interface{}{"path": s.path})
		}
		s.restoreTail(keep, saved)
		return err
	}

	s.count = keep + int64(len(tail)) - 1
	s.onDisk = s.count + 1
	s.open = &last
	s.lastSync = last.Time
	s.metrics.BarsSynchronized(s.symbol, len(incoming))
	return nil
}

// Flush writes the open bucket to disk without finalizing it.
func (s *Store) Flush() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.flush()
}

func (s *Store) flush() error {
	if s.open == nil {
		return nil
	}
	buf, err := s.encode([]domain.Bar{*s.open})
	if err != nil {
		return err
	}
	if err := s.writeRecords(s.count, buf); err != nil {
		return err
	}
	s.onDisk = s.count + 1
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %v: %w", s.path, err, ports.ErrIO)
	}
	return nil
}

// Close flushes the open bucket and releases the file. It returns false if the store was already closed.
func (s *Store) Close() (bool, error) {
	if s.closed {
		return false, nil
	}
	s.closed = true
	ferr := s.flush()
	if err := s.file.Close(); err != nil && ferr == nil {
		ferr = fmt.Errorf("close %s: %v: %w", s.path, err, ports.ErrIO)
	}
	return true, ferr
}

// release closes the file without writing the open bucket.
func (s *Store) release() {
	if s.closed {
		return
	}
	s.closed = true
	s.file.Close()
}

// ReadBars returns the bars with from <= time <= to. A zero to means no upper bound.
func (s *Store) ReadBars(from, to int64) ([]domain.Bar, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	first, err := s.search(from)
	if err != nil {
		return nil, err
	}
	var bars []domain.Bar
	rs := int64(s.codec.RecordSize())
	if n := s.count - first; n > 0 {
		buf := make([]byte, n*rs)
		if _, err := s.file.ReadAt(buf, s.offset(first)); err != nil {
			return nil, fmt.Errorf("read %s: %v: %w", s.path, err, ports.ErrIO)
		}
		for i := int64(0); i < n; i++ {
			b, err := s.codec.Decode(buf[i*rs:])
			if err != nil {
				return nil, err
			}
			if to > 0 && b.Time > to {
				return bars, nil
			}
			bars = append(bars, b)
		}
	}
	if s.open != nil && s.open.Time >= from && (to <= 0 || s.open.Time <= to) {
		bars = append(bars, *s.open)
	}
	return bars, nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return fmt.Errorf("history file %s is closed: %w", s.path, ports.ErrIllegalState)
	}
	return nil
}

func (s *Store) offset(i int64) int64 {
	return mt4.HeaderSize + i*int64(s.codec.RecordSize())
}

func (s *Store) encode(bars []domain.Bar) ([]byte, error) {
	rs := s.codec.RecordSize()
	buf := make([]byte, len(bars)*rs)
	for i, b := range bars {
		if err := s.codec.EncodeTo(buf[i*rs:], s.digits, b); err != nil {
			s.metrics.BarsRejected(s.symbol, s.tf, "invalid")
			return nil, fmt.Errorf("%s %s: %w", s.symbol, s.tf, err)
		}
	}
	return buf, nil
}

// writeRecords writes encoded records starting at record index i. On failure the file is cut back to
// the finalized records so no torn record remains.
func (s *Store) writeRecords(i int64, buf []byte) error {
	if _, err := s.file.WriteAt(buf, s.offset(i)); err != nil {
		if terr := s.file.Truncate(s.offset(s.count)); terr == nil {
			s.onDisk = s.count
		}
		return fmt.Errorf("write %s: %v: %w", s.path, err, ports.ErrIO)
	}
	return nil
}

func (s *Store) replaceTail(i int64, buf []byte) error {
	if _, err := s.file.WriteAt(buf, s.offset(i)); err != nil {
		return fmt.Errorf("write %s: %v: %w", s.path, err, ports.ErrIO)
	}
	if err := s.file.Truncate(s.offset(i) + int64(len(buf))); err != nil {
		return fmt.Errorf("truncate %s: %v: %w", s.path, err, ports.ErrIO)
	}
	return nil
}

// restoreTail puts back the records saved before a failed Synchronize.
func (s *Store) restoreTail(i int64, saved []byte) {
	if err := s.replaceTail(i, saved); err != nil {
		s.logger.Error(context.Background(), err, "Failed to restore history file after write error",
			map[string]interface{}{"path": s.path})
	}
}

func (s *Store) writeHeader() error {
	if _, err := s.file.WriteAt(s.header.Encode(), 0); err != nil {
		return fmt.Errorf("write header of %s: %v: %w", s.path, err, ports.ErrIO)
	}
	return nil
}

func (s *Store) readRecord(i int64) (domain.Bar, error) {
	buf := make([]byte, s.codec.RecordSize())
	if _, err := s.file.ReadAt(buf, s.offset(i)); err != nil {
		return domain.Bar{}, fmt.Errorf("read bar %d of %s: %v: %w", i, s.path, err, ports.ErrIO)
	}
	return s.codec.Decode(buf)
}

func (s *Store) readTime(i int64) (int64, error) {
	var buf [4]byte
	if _, err := s.file.ReadAt(buf[:], s.offset(i)); err != nil {
		return 0, fmt.Errorf("read bar %d of %s: %v: %w", i, s.path, err, ports.ErrIO)
	}
	return s.codec.DecodeTime(buf[:]), nil
}

// search returns the index of the first finalized record with time >= t.
func (s *Store) search(t int64) (int64, error) {
	var rerr error
	i := sort.Search(int(s.count), func(i int) bool {
		if rerr != nil {
			return true
		}
		rt, err := s.readTime(int64(i))
		if err != nil {
			rerr = err
			return true
		}
		return rt >= t
	})
	return int64(i), rerr
}

// CanonicalDir returns the absolute, symlink-free form of an existing directory.
func CanonicalDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("empty directory name: %w", ports.ErrInvalidArgument)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("directory %q: %v: %w", dir, err, ports.ErrInvalidArgument)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("directory %q not found: %w", dir, ports.ErrInvalidArgument)
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("not a directory: %q: %w", dir, ports.ErrInvalidArgument)
	}
	return resolved, nil
}
