package history

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fxHistory/internal/domain"
	"fxHistory/internal/mt4"
	"fxHistory/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func TestCreateStore_InvalidArguments(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		symbol string
		tf     domain.Timeframe
		digits int
		format domain.FormatVersion
		dir    string
	}{
		{"empty symbol", "", domain.M1, 5, domain.FormatV400, dir},
		{"symbol with space", "EUR USD", domain.M1, 5, domain.FormatV400, dir},
		{"symbol too long", "EURUSDEURUSD", domain.M1, 5, domain.FormatV400, dir},
		{"non-standard timeframe", "EURUSD", domain.Timeframe(2), 5, domain.FormatV400, dir},
		{"negative digits", "EURUSD", domain.M1, -1, domain.FormatV400, dir},
		{"unsupported format", "EURUSD", domain.M1, 5, domain.FormatVersion(402), dir},
		{"missing directory", "EURUSD", domain.M1, 5, domain.FormatV400, filepath.Join(dir, "missing")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateStore(tt.symbol, tt.tf, tt.digits, tt.format, tt.dir, testConfig())
			assert.ErrorIs(t, err, ports.ErrInvalidArgument)
		})
	}

	_, err := CreateStore("EURUSD", domain.M1, 5, domain.FormatV400, dir, StoreConfig{})
	assert.ErrorIs(t, err, ports.ErrInvalidArgument, "logger is required")
}

func TestCreateStore_WritesHeader(t *testing.T) {
	s := newTestStore(t, domain.M15, domain.FormatV401)

	assert.Equal(t, "EURUSD15.hst", filepath.Base(s.Path()))
	assert.Equal(t, int64(mt4.HeaderSize), fileSize(t, s.Path()))
	assert.Equal(t, int64(0), s.BarCount())
	assert.Equal(t, int64(0), s.LastSyncTime())
	assert.Equal(t, filepath.Base(s.ServerDirectory()), s.ServerName())

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	h, err := mt4.DecodeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.FormatV401, h.Version)
	assert.Equal(t, "EURUSD", h.Symbol)
	assert.Equal(t, domain.M15, h.Period)
	assert.Equal(t, 5, h.Digits)
}

func TestStore_AppendBarsAndReopen(t *testing.T) {
	for _, format := range []domain.FormatVersion{domain.FormatV400, domain.FormatV401} {
		t.Run(format.String(), func(t *testing.T) {
			s := newTestStore(t, domain.M1, format)
			bars := minuteBars(monday, 10)

			require.NoError(t, s.AppendBars(bars[:4]))
			require.NoError(t, s.AppendBars(bars[4:]))
			assert.Equal(t, int64(10), s.BarCount())
			assert.Len(t, s.BufferedBars(), 1)
			assert.Equal(t, bars[9].Time, s.LastBarTime())

			closed, err := s.Close()
			require.NoError(t, err)
			assert.True(t, closed)
			assert.Equal(t, int64(mt4.HeaderSize+10*format.RecordSize()), fileSize(t, s.Path()))

			reopened, err := OpenStore(s.Path(), testConfig())
			require.NoError(t, err)
			defer reopened.Close()

			assert.Equal(t, format, reopened.Format())
			assert.Equal(t, 5, reopened.Digits())
			got, err := reopened.ReadBars(0, 0)
			require.NoError(t, err)
			assert.Equal(t, bars, got)

			// the last bar is the open bucket again
			next := minuteBars(bars[9].Time, 1)[0]
			next.High += 0.001
			require.NoError(t, reopened.AppendBars([]domain.Bar{next}))
			assert.Equal(t, int64(10), reopened.BarCount())
			assert.Equal(t, bars[9].Ticks+next.Ticks, reopened.BufferedBars()[0].Ticks)
		})
	}
}

func TestStore_AppendBars_AggregatesBucket(t *testing.T) {
	s := newTestStore(t, domain.M15, domain.FormatV400)
	bars := minuteBars(monday, 16)

	want := domain.Bar{Time: monday, Open: bars[0].Open, High: bars[0].High, Low: bars[0].Low, Close: bars[14].Close}
	for _, b := range bars[:15] {
		want.High = max(want.High, b.High)
		want.Low = min(want.Low, b.Low)
		want.Ticks += b.Ticks
	}

	require.NoError(t, s.AppendBars(bars))
	assert.Equal(t, int64(2), s.BarCount())

	got, err := s.ReadBars(0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want, got[0])
	assert.Equal(t, monday+900, got[1].Time)
	assert.Equal(t, bars[15].Open, got[1].Open)

	// only the completed bucket is on disk before close
	assert.Equal(t, int64(mt4.HeaderSize+44), fileSize(t, s.Path()))
	require.NoError(t, s.Flush())
	assert.Equal(t, int64(mt4.HeaderSize+2*44), fileSize(t, s.Path()))
}

func TestStore_AppendBars_Rejections(t *testing.T) {
	s := newTestStore(t, domain.M5, domain.FormatV400)
	bars := minuteBars(monday, 12)
	require.NoError(t, s.AppendBars(bars))
	require.NoError(t, s.Flush())
	size := fileSize(t, s.Path())

	t.Run("older than open bucket", func(t *testing.T) {
		err := s.AppendBars(minuteBars(monday, 1))
		assert.ErrorIs(t, err, ports.ErrOrdering)
	})

	t.Run("invalid bar aborts the batch", func(t *testing.T) {
		batch := minuteBars(monday+3600, 20)
		batch[15].Low = batch[15].High + 0.001
		err := s.AppendBars(batch)
		assert.ErrorIs(t, err, ports.ErrInvalidBar)
	})

	t.Run("zero ticks", func(t *testing.T) {
		batch := minuteBars(monday+3600, 1)
		batch[0].Ticks = 0
		err := s.AppendBars(batch)
		assert.ErrorIs(t, err, ports.ErrInvalidBar)
	})

	assert.Equal(t, size, fileSize(t, s.Path()))
	assert.Equal(t, int64(3), s.BarCount())
}

func TestStore_Synchronize_ReplacesTail(t *testing.T) {
	s := newTestStore(t, domain.M1, domain.FormatV400)
	require.NoError(t, s.AppendBars(minuteBars(monday, 3)))
	require.NoError(t, s.Flush())

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	firstBefore := raw[mt4.HeaderSize : mt4.HeaderSize+44]

	replacement := minuteBars(monday+60, 3)
	for i := range replacement {
		replacement[i].Close = replacement[i].Low
		replacement[i].Ticks = 100
	}
	require.NoError(t, s.Synchronize(replacement))
	assert.Equal(t, monday+180, s.LastSyncTime())

	got, err := s.ReadBars(0, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, minuteBars(monday, 1)[0], got[0])
	assert.Equal(t, replacement, got[1:])

	raw, err = os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, firstBefore, raw[mt4.HeaderSize:mt4.HeaderSize+44], "bars before t0 are untouched")
	assert.Equal(t, int64(mt4.HeaderSize+4*44), int64(len(raw)))

	_, err = s.Close()
	require.NoError(t, err)
	reopened, err := OpenStore(s.Path(), testConfig())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, monday+180, reopened.LastSyncTime())
	assert.Equal(t, int64(4), reopened.BarCount())
}

func TestStore_Synchronize_AfterOpenBucket(t *testing.T) {
	s := newTestStore(t, domain.M1, domain.FormatV401)
	bars := minuteBars(monday, 4)
	require.NoError(t, s.AppendBars(bars[:2]))

	require.NoError(t, s.Synchronize(bars[2:]))
	got, err := s.ReadBars(0, 0)
	require.NoError(t, err)
	assert.Equal(t, bars, got)

	// synchronizing the whole range replaces everything
	require.NoError(t, s.Synchronize(bars[:1]))
	got, err = s.ReadBars(0, 0)
	require.NoError(t, err)
	assert.Equal(t, bars[:1], got)
	assert.Equal(t, bars[0].Time, s.LastSyncTime())
}

func TestStore_Synchronize_Errors(t *testing.T) {
	t.Run("only minute store", func(t *testing.T) {
		s := newTestStore(t, domain.H1, domain.FormatV400)
		assert.ErrorIs(t, s.Synchronize(minuteBars(monday, 2)), ports.ErrInvalidArgument)
	})

	t.Run("unordered bars", func(t *testing.T) {
		s := newTestStore(t, domain.M1, domain.FormatV400)
		bars := minuteBars(monday, 3)
		bars[1], bars[2] = bars[2], bars[1]
		assert.ErrorIs(t, s.Synchronize(bars), ports.ErrOrdering)
		assert.Equal(t, int64(0), s.LastSyncTime())
	})

	t.Run("invalid bar", func(t *testing.T) {
		s := newTestStore(t, domain.M1, domain.FormatV400)
		require.NoError(t, s.AppendBars(minuteBars(monday, 3)))
		bars := minuteBars(monday, 3)
		bars[2].Ticks = 0
		assert.ErrorIs(t, s.Synchronize(bars), ports.ErrInvalidBar)
		assert.Equal(t, int64(3), s.BarCount())
	})
}

func TestStore_ReadBarsRange(t *testing.T) {
	s := newTestStore(t, domain.M1, domain.FormatV400)
	bars := minuteBars(monday, 10)
	require.NoError(t, s.AppendBars(bars))

	got, err := s.ReadBars(bars[3].Time, bars[6].Time)
	require.NoError(t, err)
	assert.Equal(t, bars[3:7], got)

	got, err = s.ReadBars(bars[9].Time, 0)
	require.NoError(t, err)
	assert.Equal(t, bars[9:], got)
}

func TestStore_Close(t *testing.T) {
	s := newTestStore(t, domain.M1, domain.FormatV400)
	require.NoError(t, s.AppendBars(minuteBars(monday, 2)))

	closed, err := s.Close()
	require.NoError(t, err)
	assert.True(t, closed)
	assert.True(t, s.IsClosed())

	closed, err = s.Close()
	require.NoError(t, err)
	assert.False(t, closed, "second close reports already closed")

	assert.ErrorIs(t, s.AppendBars(minuteBars(monday+120, 1)), ports.ErrIllegalState)
	assert.ErrorIs(t, s.Synchronize(minuteBars(monday+120, 1)), ports.ErrIllegalState)
	assert.ErrorIs(t, s.Flush(), ports.ErrIllegalState)
	_, err = s.ReadBars(0, 0)
	assert.ErrorIs(t, err, ports.ErrIllegalState)
}

func TestOpenStore_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		return path
	}
	header := func(symbol string, tf domain.Timeframe, version domain.FormatVersion) []byte {
		return mt4.HistoryHeader{Version: version, Symbol: symbol, Period: tf, Digits: 5}.Encode()
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := OpenStore(filepath.Join(dir, "GBPUSD1.hst"), testConfig())
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("smaller than header", func(t *testing.T) {
		_, err := OpenStore(write("EURUSD1.hst", make([]byte, 100)), testConfig())
		assert.ErrorIs(t, err, ports.ErrFileTooSmall)
		assert.ErrorIs(t, err, ports.ErrFormat)
	})

	t.Run("unsupported version", func(t *testing.T) {
		_, err := OpenStore(write("EURUSD5.hst", header("EURUSD", domain.M5, 399)), testConfig())
		assert.ErrorIs(t, err, ports.ErrFormat)
		assert.NotErrorIs(t, err, ports.ErrFileTooSmall)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		data := append(header("EURUSD", domain.M15, domain.FormatV400), make([]byte, 50)...)
		_, err := OpenStore(write("EURUSD15.hst", data), testConfig())
		assert.ErrorIs(t, err, ports.ErrIntegrity)
	})

	t.Run("period does not match file name", func(t *testing.T) {
		_, err := OpenStore(write("EURUSD30.hst", header("EURUSD", domain.H1, domain.FormatV400)), testConfig())
		assert.ErrorIs(t, err, ports.ErrIntegrity)
	})

	t.Run("valid empty file", func(t *testing.T) {
		s, err := OpenStore(write("EURUSD60.hst", header("EURUSD", domain.H1, domain.FormatV401)), testConfig())
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, domain.H1, s.Timeframe())
		assert.Equal(t, "EURUSD", s.Symbol())
		assert.Empty(t, s.BufferedBars())
	})
}

func TestStore_BigEndianFileIsPortable(t *testing.T) {
	s := newTestStore(t, domain.M1, domain.FormatV400)
	bars := minuteBars(monday, 2)
	require.NoError(t, s.AppendBars(bars))
	_, err := s.Close()
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	be, err := mt4.NewBarCodecForHost(domain.FormatV400, binary.BigEndian)
	require.NoError(t, err)
	got, err := be.Decode(raw[mt4.HeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, bars[0], got)
}

// faultyFile fails the first write that fail selects after writing half of the buffer.
type faultyFile struct {
	*os.File
	fail   func(off int64) bool
	failed bool
}

func (f *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if !f.failed && f.fail(off) {
		f.failed = true
		n, _ := f.File.WriteAt(p[:len(p)/2], off)
		return n, errors.New("disk full")
	}
	return f.File.WriteAt(p, off)
}

func TestStore_Synchronize_RestoresOnWriteFailure(t *testing.T) {
	tests := []struct {
		name string
		fail func(off int64) bool
	}{
		{name: "records", fail: func(off int64) bool { return off >= mt4.HeaderSize }},
		{name: "header", fail: func(off int64) bool { return off == 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, domain.M1, domain.FormatV400)
			bars := minuteBars(monday, 3)
			require.NoError(t, s.AppendBars(bars))
			require.NoError(t, s.Flush())
			before, err := os.ReadFile(s.Path())
			require.NoError(t, err)

			s.file = &faultyFile{File: s.file.(*os.File), fail: tt.fail}
			replacement := minuteBars(monday+60, 3)
			for i := range replacement {
				replacement[i].Ticks = 100
			}
			assert.ErrorIs(t, s.Synchronize(replacement), ports.ErrIO)

			after, err := os.ReadFile(s.Path())
			require.NoError(t, err)
			assert.Equal(t, before, after)
			got, err := s.ReadBars(0, 0)
			require.NoError(t, err)
			assert.Equal(t, bars, got)
			assert.Equal(t, int64(0), s.LastSyncTime())
			assert.Equal(t, int64(3), s.BarCount())

			require.NoError(t, s.Synchronize(replacement))
			got, err = s.ReadBars(0, 0)
			require.NoError(t, err)
			assert.Equal(t, replacement, got[1:])
			assert.Equal(t, monday+180, s.LastSyncTime())
		})
	}
}

func TestStore_CountersBeyondRecordRange(t *testing.T) {
	t.Run("aggregated volume saturates", func(t *testing.T) {
		s := newTestStore(t, domain.MN1, domain.FormatV401)
		bars := minuteBars(monday, 3)
		for i := range bars {
			bars[i].Volume = 2_000_000_000
		}
		require.NoError(t, s.AppendBars(bars))
		_, err := s.Close()
		require.NoError(t, err)

		reopened, err := OpenStore(s.Path(), testConfig())
		require.NoError(t, err)
		defer reopened.Close()
		got, err := reopened.ReadBars(0, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(domain.MaxCounter), got[0].Volume)
		assert.Equal(t, int64(6), got[0].Ticks)
	})

	t.Run("single bar that would wrap is rejected", func(t *testing.T) {
		s := newTestStore(t, domain.M1, domain.FormatV401)
		bars := minuteBars(monday, 1)
		bars[0].Volume = 5_000_000_000
		assert.ErrorIs(t, s.AppendBars(bars), ports.ErrInvalidBar)
		assert.Equal(t, int64(0), s.BarCount())
	})
}
