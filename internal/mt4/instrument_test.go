package mt4

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"fxHistory/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstrument(name string) InstrumentRecord {
	r := InstrumentRecord{
		Name:                  name,
		Description:           "Euro vs US Dollar",
		Origin:                "custom",
		BaseCurrency:          "EUR",
		Group:                 1,
		Digits:                5,
		TradeMode:             2,
		ID:                    42,
		Spread:                3,
		SwapEnabled:           true,
		SwapType:              1,
		SwapLongValue:         -6.35,
		SwapShortValue:        1.2,
		SwapTripleRolloverDay: 3,
		ContractSize:          100000,
		StopDistance:          10,
		MarginInit:            1000,
		MarginDivider:         1,
		PointSize:             0.00001,
		PointsPerUnit:         100000,
		MarginCurrency:        "EUR",
	}
	r.Sessions[4][0] = 0xAB
	return r
}

func TestInstrumentRecord_Offsets(t *testing.T) {
	raw := EncodeInstrumentRecord(testInstrument("EURUSD"))
	require.Len(t, raw, InstrumentRecordSize)

	assert.Equal(t, "EURUSD", cString(raw[0:12]))
	assert.Equal(t, "Euro vs US Dollar", cString(raw[12:66]))
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(raw[104:]))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(raw[120:]))
	assert.Equal(t, byte(0xAB), raw[156+4*SessionTableSize])
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(raw[1660:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(raw[1672:]))
	assert.Equal(t, -6.35, math.Float64frombits(binary.LittleEndian.Uint64(raw[1680:])))
	assert.Equal(t, 100000.0, math.Float64frombits(binary.LittleEndian.Uint64(raw[1704:])))
	assert.Equal(t, 0.00001, math.Float64frombits(binary.LittleEndian.Uint64(raw[1776:])))
	assert.Equal(t, "EUR", cString(raw[1816:1828]))
}

func TestInstrumentRecord_RoundTrip(t *testing.T) {
	want := testInstrument("EURUSD")
	got, err := DecodeInstrumentRecord(EncodeInstrumentRecord(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeInstrumentRecord_TooShort(t *testing.T) {
	_, err := DecodeInstrumentRecord(make([]byte, InstrumentRecordSize-1))
	assert.ErrorIs(t, err, ports.ErrFormat)
}

func TestFieldNames(t *testing.T) {
	names := FieldNames()
	require.NotEmpty(t, names)
	assert.Equal(t, "name", names[0])
	assert.Equal(t, "marginCurrency", names[len(names)-1])
	assert.Contains(t, names, "mon")
	assert.Contains(t, names, "sun")
	for _, n := range names {
		assert.NotContains(t, n, "unknown")
		assert.NotContains(t, n, "align")
	}
	assert.Equal(t, names, FieldNames(), "order must be stable")
}

func TestInstrumentRecord_Field(t *testing.T) {
	r := testInstrument("GBPUSD")

	v, ok := r.Field("NAME")
	require.True(t, ok)
	assert.Equal(t, "GBPUSD", v)

	v, ok = r.Field("contractsize")
	require.True(t, ok)
	assert.Equal(t, 100000.0, v)

	v, ok = r.Field("swapEnabled")
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = r.Field("unknown1")
	assert.False(t, ok)

	name, ok := LookupFieldName("POINTSIZE")
	require.True(t, ok)
	assert.Equal(t, "pointSize", name)
}

func TestReadInstrumentFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("records with trailing bytes", func(t *testing.T) {
		var data []byte
		data = append(data, EncodeInstrumentRecord(testInstrument("EURUSD"))...)
		data = append(data, EncodeInstrumentRecord(testInstrument("USDJPY"))...)
		data = append(data, 1, 2, 3)
		path := filepath.Join(dir, "symbols.raw")
		require.NoError(t, os.WriteFile(path, data, 0o644))

		records, trailing, err := ReadInstrumentFile(path)
		require.NoError(t, err)
		assert.Equal(t, 3, trailing)
		require.Len(t, records, 2)
		assert.Equal(t, "EURUSD", records[0].Name)
		assert.Equal(t, "USDJPY", records[1].Name)
	})

	t.Run("file too small", func(t *testing.T) {
		path := filepath.Join(dir, "small.raw")
		require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o644))

		_, _, err := ReadInstrumentFile(path)
		assert.ErrorIs(t, err, ports.ErrFormat)
	})
}
