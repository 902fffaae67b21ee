package ports

import (
	"time"

	"fxHistory/internal/domain"
)

// HistoryMetrics receives counters from the history engine. A nil HistoryMetrics is never called;
// the engine substitutes a no-op implementation.
type HistoryMetrics interface {
	BarsWritten(symbol string, tf domain.Timeframe, n int)
	BarsSynchronized(symbol string, n int)
	BarsRejected(symbol string, tf domain.Timeframe, reason string)
	SeriesOpened(symbol string)
	SeriesClosed(symbol string)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) BarsWritten(string, domain.Timeframe, int)     {}
func (NopMetrics) BarsSynchronized(string, int)                  {}
func (NopMetrics) BarsRejected(string, domain.Timeframe, string) {}
func (NopMetrics) SeriesOpened(string)                           {}
func (NopMetrics) SeriesClosed(string)                           {}

// SyncMetrics receives observations of the sync service.
type SyncMetrics interface {
	SyncRunFinished(symbol, status string, elapsed time.Duration)
}

func (NopMetrics) SyncRunFinished(string, string, time.Duration) {}
