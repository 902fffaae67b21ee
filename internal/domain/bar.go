package domain

import (
	"math"
	"strconv"
	"time"
)

// MaxCounter is the largest tick count or volume a 32-bit record field holds. Aggregated counters
// saturate at this value.
const MaxCounter = math.MaxUint32

// Bar represents a single OHLC price candle as stored in a history file.
type Bar struct {
	Time   int64   // Bar open time, seconds in the server time base
	Open   float64 // Opening price
	High   float64 // Highest price
	Low    float64 // Lowest price
	Close  float64 // Closing price
	Ticks  int64   // Tick count (must be positive)
	Spread int32   // Only persisted by format 401
	Volume int64   // Real volume, only persisted by format 401
}

// OpenTime returns the bar time as a UTC time.Time.
func (b Bar) OpenTime() time.Time {
	return time.Unix(b.Time, 0).UTC()
}

// Merge folds a later bar of the same period into b: high/low extend, close moves, ticks and volume
// add up to at most MaxCounter.
func (b *Bar) Merge(next Bar) {
	if next.High > b.High {
		b.High = next.High
	}
	if next.Low < b.Low {
		b.Low = next.Low
	}
	b.Close = next.Close
	b.Ticks = addCounter(b.Ticks, next.Ticks)
	b.Volume = addCounter(b.Volume, next.Volume)
	b.Spread = next.Spread
}

func addCounter(a, b int64) int64 {
	if b > 0 && a > MaxCounter-b {
		return max(a, MaxCounter)
	}
	return a + b
}

// FormatVersion identifies the on-disk record layout of a history file.
type FormatVersion int32

const (
	FormatV400 FormatVersion = 400 // MetaTrader <= build 509
	FormatV401 FormatVersion = 401 // MetaTrader > build 509
)

// Valid reports whether v is a supported format.
func (v FormatVersion) Valid() bool {
	return v == FormatV400 || v == FormatV401
}

func (v FormatVersion) String() string {
	return strconv.Itoa(int(v))
}

// RecordSize returns the size of one bar record in bytes, or 0 for unknown versions.
func (v FormatVersion) RecordSize() int {
	switch v {
	case FormatV400:
		return 44
	case FormatV401:
		return 60
	default:
		return 0
	}
}
