package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframe_OpenTime(t *testing.T) {
	ts := func(y int, m time.Month, d, h, min int) int64 {
		return time.Date(y, m, d, h, min, 0, 0, time.UTC).Unix()
	}
	// 2024-03-14 is a Thursday
	now := ts(2024, 3, 14, 13, 47)

	tests := []struct {
		tf   Timeframe
		want int64
	}{
		{M1, ts(2024, 3, 14, 13, 47)},
		{M5, ts(2024, 3, 14, 13, 45)},
		{M15, ts(2024, 3, 14, 13, 45)},
		{M30, ts(2024, 3, 14, 13, 30)},
		{H1, ts(2024, 3, 14, 13, 0)},
		{H4, ts(2024, 3, 14, 12, 0)},
		{D1, ts(2024, 3, 14, 0, 0)},
		{W1, ts(2024, 3, 11, 0, 0)},
		{MN1, ts(2024, 3, 1, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.tf.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tf.OpenTime(now))
			assert.Equal(t, tt.want, tt.tf.OpenTime(tt.want), "bucket start maps onto itself")
		})
	}

	// Monday and Sunday edges of a week
	assert.Equal(t, ts(2024, 3, 11, 0, 0), W1.OpenTime(ts(2024, 3, 11, 0, 0)))
	assert.Equal(t, ts(2024, 3, 11, 0, 0), W1.OpenTime(ts(2024, 3, 17, 23, 59)))
}

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in      string
		want    Timeframe
		wantErr bool
	}{
		{"M15", M15, false},
		{"PERIOD_H4", H4, false},
		{"mn1", MN1, false},
		{"1440", D1, false},
		{" w1 ", W1, false},
		{"7", 0, true},
		{"M2", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeframe(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeframe_Index(t *testing.T) {
	for i, tf := range StandardTimeframes {
		assert.Equal(t, i, tf.Index())
		assert.True(t, tf.IsStandard())
	}
	assert.Equal(t, -1, Timeframe(3).Index())
	assert.Equal(t, "Timeframe(3)", Timeframe(3).String())
}

func TestIsValidSymbol(t *testing.T) {
	valid := []string{"EURUSD", "XAUUSD.m", "#US30", "BRENT_Q4", "A&B", "O'NEIL", "X~Y-Z", "ABCDEFGHIJK"}
	invalid := []string{"", "EUR USD", "ABCDEFGHIJKL", "EUR/USD", "EURUSD!"}

	for _, s := range valid {
		assert.True(t, IsValidSymbol(s), s)
	}
	for _, s := range invalid {
		assert.False(t, IsValidSymbol(s), s)
	}
}

func TestBar_Merge(t *testing.T) {
	b := Bar{Time: 60, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15, Ticks: 3, Volume: 10}
	b.Merge(Bar{Time: 120, Open: 1.15, High: 1.3, Low: 1.05, Close: 1.25, Ticks: 2, Spread: 4, Volume: 5})

	assert.Equal(t, Bar{Time: 60, Open: 1.1, High: 1.3, Low: 1.0, Close: 1.25, Ticks: 5, Spread: 4, Volume: 15}, b)
}

func TestBar_MergeSaturatesCounters(t *testing.T) {
	b := Bar{Time: 60, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15, Ticks: 3, Volume: 3_000_000_000}
	b.Merge(Bar{Time: 120, Open: 1.15, High: 1.2, Low: 1.0, Close: 1.1, Ticks: MaxCounter, Volume: 3_000_000_000})

	assert.Equal(t, int64(MaxCounter), b.Ticks)
	assert.Equal(t, int64(MaxCounter), b.Volume)

	// a counter already past the limit is not reduced
	b = Bar{Ticks: MaxCounter + 10, Volume: 1}
	b.Merge(Bar{Ticks: 5, Volume: 2})
	assert.Equal(t, int64(MaxCounter+10), b.Ticks)
	assert.Equal(t, int64(3), b.Volume)
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, 44, FormatV400.RecordSize())
	assert.Equal(t, 60, FormatV401.RecordSize())
	assert.Equal(t, 0, FormatVersion(402).RecordSize())
	assert.False(t, FormatVersion(402).Valid())
	assert.Equal(t, "401", FormatV401.String())
}
