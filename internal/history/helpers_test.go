package history

import (
	"context"
	"sync"
	"testing"

	"fxHistory/internal/domain"
	"fxHistory/internal/mt4"

	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing and remembers warnings
type mockLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []error
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

func (m *mockLogger) warnings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.warns)
}

// monday is 2024-01-01 00:00:00 UTC, a Monday and the 1st of a month.
const monday int64 = 1704067200

// minuteBars returns n valid M1 bars starting at start, already rounded to 5 digits.
func minuteBars(start int64, n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		open := 1.1 + float64(i%17)*0.0001
		bars[i] = domain.Bar{
			Time:  start + int64(i)*60,
			Open:  mt4.RoundPrice(open, 5),
			High:  mt4.RoundPrice(open+0.0005, 5),
			Low:   mt4.RoundPrice(open-0.0004, 5),
			Close: mt4.RoundPrice(open+0.0002, 5),
			Ticks: int64(i + 1),
		}
	}
	return bars
}

func testConfig() StoreConfig {
	return StoreConfig{Logger: &mockLogger{}}
}

func newTestStore(t *testing.T, tf domain.Timeframe, format domain.FormatVersion) *Store {
	t.Helper()
	s, err := CreateStore("EURUSD", tf, 5, format, t.TempDir(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRegistry(t *testing.T) (*Registry, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	r, err := NewRegistry(Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { r.CloseAll(context.Background()) })
	return r, logger
}
