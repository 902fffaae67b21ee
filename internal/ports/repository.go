package ports

import (
	"context"
	"time"

	"fxHistory/internal/domain"
)

// SyncRun records one synchronization pass of a symbol.
type SyncRun struct {
	ID           string    // ULID of the run
	Symbol       string    // Symbol that was synchronized
	Feed         string    // Name of the bar source
	StartedAt    time.Time // Wall clock start
	FinishedAt   time.Time // Wall clock end
	Appended     int       // Minute bars appended
	Synchronized int       // Minute bars that replaced existing history
	LastSyncTime int64     // Series watermark after the run (server time)
	Error        string    // Empty on success
}

// MinuteBarRepository stores and retrieves minute bars.
type MinuteBarRepository interface {
	// SaveMinuteBars inserts or replaces bars of a symbol and returns the number of rows written.
	SaveMinuteBars(ctx context.Context, symbol string, bars []domain.Bar) (int, error)
	// MinuteBars retrieves bars with from <= time < to ordered by time.
	MinuteBars(ctx context.Context, symbol string, from, to int64) ([]domain.Bar, error)
	// LatestMinuteBarTime returns the newest stored bar time of a symbol. ok is false if there is none.
	LatestMinuteBarTime(ctx context.Context, symbol string) (t int64, ok bool, err error)
}

// SyncRunRepository keeps a journal of synchronization passes.
type SyncRunRepository interface {
	// CreateSyncRun saves a finished run.
	CreateSyncRun(ctx context.Context, run *SyncRun) error
	// LastSyncRun returns the most recent run of a symbol, or nil if there is none.
	LastSyncRun(ctx context.Context, symbol string) (*SyncRun, error)
}
