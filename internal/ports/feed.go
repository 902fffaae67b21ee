package ports

import (
	"context"
	"time"

	"fxHistory/internal/domain"
)

// BarSource supplies minute bars for a symbol. Times on both sides of the interface are in the
// server time base (see package fxt); remote feeds convert to and from UTC themselves.
type BarSource interface {
	// MinuteBars returns the M1 bars with from <= time < to ordered by ascending time.
	MinuteBars(ctx context.Context, symbol string, from, to int64) ([]domain.Bar, error)
}

// FeedChecker is implemented by remote bar sources that can be checked before a sync pass.
type FeedChecker interface {
	// Ping checks the connectivity to the feed.
	Ping(ctx context.Context) error
	// GetServerTime retrieves the current time of the feed's server.
	GetServerTime(ctx context.Context) (time.Time, error)
}
