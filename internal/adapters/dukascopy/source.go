// Package dukascopy reads Dukascopy minute candle archives (.bi5) from a local mirror of the datafeed
// directory tree and serves them as minute bars.
package dukascopy

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fxHistory/internal/domain"
	"fxHistory/internal/fxt"
	"fxHistory/internal/ports"

	"github.com/ulikunitz/xz/lzma"
)

const (
	// CandleSize is the size of one decompressed candle record.
	CandleSize = 24

	// CandleFile is the name of the daily BID minute candle archive.
	CandleFile = "BID_candles_min_1.bi5"
)

// Candle is one decoded record. Prices are integer points, Offset is seconds since 00:00 UTC of the file's day.
type Candle struct {
	Offset uint32
	Open   uint32
	Close  uint32
	Low    uint32
	High   uint32
	Volume float32
}

// Config holds configuration of a Source.
type Config struct {
	Root     string         // root of the mirrored datafeed tree
	Digits   map[string]int // point digits per symbol (upper case)
	Default  int            // point digits of symbols missing from Digits
	TimeBase fxt.TimeBase
	Logger   ports.Logger
}

// Source implements ports.BarSource over a local Dukascopy mirror.
type Source struct {
	root   string
	digits map[string]int
	def    int
	base   fxt.TimeBase
	logger ports.Logger
}

// New creates a Source.
func New(cfg Config) (*Source, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for dukascopy source: %w", ports.ErrConfigurationError)
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("dukascopy root directory is required: %w", ports.ErrConfigurationError)
	}
	if st, err := os.Stat(cfg.Root); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("dukascopy root %q is not a directory: %w", cfg.Root, ports.ErrConfigurationError)
	}
	def := cfg.Default
	if def <= 0 {
		def = 5
	}
	digits := make(map[string]int, len(cfg.Digits))
	for k, v := range cfg.Digits {
		digits[strings.ToUpper(k)] = v
	}
	return &Source{root: cfg.Root, digits: digits, def: def, base: cfg.TimeBase, logger: cfg.Logger}, nil
}

// CandlePath returns the archive path of a symbol's candles for the UTC day of t. Months are zero based.
func CandlePath(root, symbol string, t time.Time) string {
	t = t.UTC()
	return filepath.Join(root,
		strings.ToUpper(symbol),
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())-1),
		fmt.Sprintf("%02d", t.Day()),
		CandleFile)
}

// MinuteBars returns the bars with from <= time < to. Missing day files are skipped. Candles without
// volume or outside the FXT trading week (weekends, January 1st, December 25th) are dropped.
func (s *Source) MinuteBars(ctx context.Context, symbol string, from, to int64) ([]domain.Bar, error) {
	if to <= from {
		return nil, nil
	}
	digits, ok := s.digits[strings.ToUpper(symbol)]
	if !ok {
		digits = s.def
	}
	scale := math.Pow10(digits)

	start := s.base.ToUTC(from)
	end := s.base.ToUTC(to)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	var bars []domain.Bar
	for ; day.Before(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reading dukascopy candles: %w: %w", ports.ErrContextCanceled, err)
		}
		if !tradingDay(day) {
			continue
		}
		path := CandlePath(s.root, symbol, day)
		candles, err := ReadCandleFile(path)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				s.logger.Debug(ctx, "No dukascopy candles for day", map[string]interface{}{"path": path})
				continue
			}
			return nil, err
		}
		for _, c := range candles {
			if c.Volume <= 0 {
				continue
			}
			utc := day.Add(time.Duration(c.Offset) * time.Second)
			if !fxt.IsTradingDay(fxt.FromUTC(utc)) {
				continue
			}
			t := s.base.FromUTC(utc)
			if t < from || t >= to {
				continue
			}
			bars = append(bars, c.Bar(t, scale))
		}
	}
	return bars, nil
}

// tradingDay reports whether any minute of a UTC day falls on an FXT trading day.
func tradingDay(day time.Time) bool {
	return fxt.IsTradingDay(fxt.FromUTC(day)) || fxt.IsTradingDay(fxt.FromUTC(day.Add(24*time.Hour-time.Minute)))
}

// Bar converts a candle with a resolved time. Tick count and volume are the rounded candle volume, at
// least one.
func (c Candle) Bar(t int64, scale float64) domain.Bar {
	vol := int64(math.Max(1, math.Round(float64(c.Volume))))
	return domain.Bar{
		Time:   t,
		Open:   float64(c.Open) / scale,
		High:   float64(c.High) / scale,
		Low:    float64(c.Low) / scale,
		Close:  float64(c.Close) / scale,
		Ticks:  vol,
		Volume: vol,
	}
}

// ReadCandleFile reads and decompresses one archive. A missing file yields ErrNotFound, an empty one no
// candles.
func ReadCandleFile(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("opening %s: %w: %w", path, ports.ErrIO, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %w", path, ports.ErrIO, err)
	}
	if st.Size() == 0 {
		return nil, nil
	}

	r, err := lzma.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w: %w", path, ports.ErrFormat, err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w: %w", path, ports.ErrFormat, err)
	}
	candles, err := DecodeCandles(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return candles, nil
}

// DecodeCandles decodes decompressed candle records (big endian).
func DecodeCandles(raw []byte) ([]Candle, error) {
	if len(raw)%CandleSize != 0 {
		return nil, fmt.Errorf("candle data of %d bytes is not a multiple of %d: %w", len(raw), CandleSize, ports.ErrFormat)
	}
	candles := make([]Candle, len(raw)/CandleSize)
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, candles); err != nil {
		return nil, fmt.Errorf("decoding candles: %w: %w", ports.ErrFormat, err)
	}
	return candles, nil
}

// EncodeCandles is the inverse of DecodeCandles.
func EncodeCandles(candles []Candle) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(candles)*CandleSize))
	_ = binary.Write(buf, binary.BigEndian, candles)
	return buf.Bytes()
}

// WriteCandleFile compresses candles into an archive at path, creating parent directories.
func WriteCandleFile(path string, candles []Candle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w: %w", filepath.Dir(path), ports.ErrIO, err)
	}
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("compressing candles: %w", err)
	}
	if _, err := w.Write(EncodeCandles(candles)); err != nil {
		return fmt.Errorf("compressing candles: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("compressing candles: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w: %w", path, ports.ErrIO, err)
	}
	return nil
}
