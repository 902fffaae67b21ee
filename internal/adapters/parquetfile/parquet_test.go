package parquetfile

import (
	"os"
	"path/filepath"
	"testing"

	"fxHistory/internal/domain"
	"fxHistory/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBars_ReadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "EURUSD15."+Extension)
	bars := []domain.Bar{
		{Time: 1704067200, Open: 1.10, High: 1.12, Low: 1.09, Close: 1.11, Ticks: 42, Spread: 3, Volume: 1000},
		{Time: 1704068100, Open: 1.11, High: 1.11, Low: 1.10, Close: 1.105, Ticks: 7},
	}

	require.NoError(t, WriteBars(path, "EURUSD", domain.M15, bars))

	rows, err := ReadRows(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for i, r := range rows {
		assert.Equal(t, "EURUSD", r.Symbol)
		assert.Equal(t, int32(15), r.Period)
		assert.Equal(t, bars[i], r.Bar())
	}
}

func TestWriteBars_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty."+Extension)
	require.NoError(t, WriteBars(path, "EURUSD", domain.H1, nil))

	rows, err := ReadRows(path)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadRows_NotParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad."+Extension)
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := ReadRows(path)
	assert.ErrorIs(t, err, ports.ErrFormat)
}
