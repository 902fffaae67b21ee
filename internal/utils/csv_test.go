package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fxHistory/internal/domain"
	"fxHistory/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBarsCSV(t *testing.T) {
	var buf bytes.Buffer
	bars := []domain.Bar{
		{Time: 1704067200, Open: 1.1, High: 1.10025, Low: 1.09, Close: 1.1, Ticks: 12, Spread: 2, Volume: 100},
	}
	require.NoError(t, WriteBarsCSV(&buf, bars, 5))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "time,open,high,low,close,ticks,spread,volume", lines[0])
	assert.Equal(t, "2024-01-01 00:00:00,1.10000,1.10025,1.09000,1.10000,12,2,100", lines[1])
}

func TestReadBarsCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []domain.Bar
		wantErr bool
	}{
		{
			name:  "with header",
			input: "time,open,high,low,close,ticks,spread,volume\n2024-01-01 00:01:00,1.1,1.2,1.0,1.15,3,1,50\n",
			want:  []domain.Bar{{Time: 1704067260, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15, Ticks: 3, Spread: 1, Volume: 50}},
		},
		{
			name:  "unix seconds without optional columns",
			input: "1704067200,1.1,1.2,1.0,1.15,3\n1704067260, 1.15, 1.16, 1.14, 1.15, 1\n",
			want: []domain.Bar{
				{Time: 1704067200, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15, Ticks: 3},
				{Time: 1704067260, Open: 1.15, High: 1.16, Low: 1.14, Close: 1.15, Ticks: 1},
			},
		},
		{
			name:  "metatrader time layout",
			input: "2024.01.01 00:02,1,1,1,1,1\n",
			want:  []domain.Bar{{Time: 1704067320, Open: 1, High: 1, Low: 1, Close: 1, Ticks: 1}},
		},
		{name: "bad price", input: "1704067200,x,1,1,1,1\n", wantErr: true},
		{name: "bad time", input: "yesterday,1,1,1,1,1\n", wantErr: true},
		{name: "too few columns", input: "1704067200,1,1,1\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadBarsCSV(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ports.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteBarsCSVFile_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	bars := []domain.Bar{
		{Time: 1704067200, Open: 141.512, High: 141.541, Low: 141.5, Close: 141.53, Ticks: 5},
		{Time: 1704067260, Open: 141.53, High: 141.533, Low: 141.515, Close: 141.52, Ticks: 2, Volume: 7},
	}
	require.NoError(t, WriteBarsCSVFile(path, bars, 3))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadBarsCSV(f)
	require.NoError(t, err)
	assert.Equal(t, bars, got)
}
