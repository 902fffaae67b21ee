package mt4

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"fxHistory/internal/ports"
)

// InstrumentRecordSize is the size of one SYMBOL record in a symbols.raw file.
const InstrumentRecordSize = 1936

// SessionTableSize is the size of one daily trading-session table.
const SessionTableSize = 208

// InstrumentRecord is the instrument metadata stored in symbols.raw.
type InstrumentRecord struct {
	Name            string
	Description     string
	Origin          string
	AltName         string
	BaseCurrency    string
	Group           uint32
	Digits          uint32
	TradeMode       uint32
	BackgroundColor uint32
	ArrayKey        uint32
	ID              uint32

	// Weekly trading sessions, Monday to Sunday.
	Sessions [7][SessionTableSize]byte

	Spread                uint32
	SwapEnabled           bool
	SwapType              uint32
	SwapLongValue         float64
	SwapShortValue        float64
	SwapTripleRolloverDay uint32
	ContractSize          float64
	StopDistance          uint32
	MarginInit            float64
	MarginMaintenance     float64
	MarginHedged          float64
	MarginDivider         float64
	PointSize             float64
	PointsPerUnit         float64
	MarginCurrency        string
}

type instrumentField struct {
	name   string
	offset int
	size   int
	ref    func(r *InstrumentRecord) any
}

// instrumentFields is the SYMBOL layout in canonical order. Unknown and alignment regions
// (unknown1 @124, unknown2..unknown7 @1612..1671, unknown8 @1712, unknown9 @1732, unknown10 @1792,
// unknown11 @1828, unknown12 @1932) are not part of the table.
var instrumentFields = []instrumentField{
	{"name", 0, 12, func(r *InstrumentRecord) any { return &r.Name }},
	{"description", 12, 54, func(r *InstrumentRecord) any { return &r.Description }},
	{"origin", 66, 10, func(r *InstrumentRecord) any { return &r.Origin }},
	{"altName", 76, 12, func(r *InstrumentRecord) any { return &r.AltName }},
	{"baseCurrency", 88, 12, func(r *InstrumentRecord) any { return &r.BaseCurrency }},
	{"group", 100, 4, func(r *InstrumentRecord) any { return &r.Group }},
	{"digits", 104, 4, func(r *InstrumentRecord) any { return &r.Digits }},
	{"tradeMode", 108, 4, func(r *InstrumentRecord) any { return &r.TradeMode }},
	{"backgroundColor", 112, 4, func(r *InstrumentRecord) any { return &r.BackgroundColor }},
	{"arrayKey", 116, 4, func(r *InstrumentRecord) any { return &r.ArrayKey }},
	{"id", 120, 4, func(r *InstrumentRecord) any { return &r.ID }},
	{"mon", 156, SessionTableSize, func(r *InstrumentRecord) any { return &r.Sessions[0] }},
	{"tue", 364, SessionTableSize, func(r *InstrumentRecord) any { return &r.Sessions[1] }},
	{"wed", 572, SessionTableSize, func(r *InstrumentRecord) any { return &r.Sessions[2] }},
	{"thu", 780, SessionTableSize, func(r *InstrumentRecord) any { return &r.Sessions[3] }},
	{"fri", 988, SessionTableSize, func(r *InstrumentRecord) any { return &r.Sessions[4] }},
	{"sat", 1196, SessionTableSize, func(r *InstrumentRecord) any { return &r.Sessions[5] }},
	{"sun", 1404, SessionTableSize, func(r *InstrumentRecord) any { return &r.Sessions[6] }},
	{"spread", 1660, 4, func(r *InstrumentRecord) any { return &r.Spread }},
	{"swapEnabled", 1672, 4, func(r *InstrumentRecord) any { return &r.SwapEnabled }},
	{"swapType", 1676, 4, func(r *InstrumentRecord) any { return &r.SwapType }},
	{"swapLongValue", 1680, 8, func(r *InstrumentRecord) any { return &r.SwapLongValue }},
	{"swapShortValue", 1688, 8, func(r *InstrumentRecord) any { return &r.SwapShortValue }},
	{"swapTripleRolloverDay", 1696, 4, func(r *InstrumentRecord) any { return &r.SwapTripleRolloverDay }},
	{"contractSize", 1704, 8, func(r *InstrumentRecord) any { return &r.ContractSize }},
	{"stopDistance", 1728, 4, func(r *InstrumentRecord) any { return &r.StopDistance }},
	{"marginInit", 1744, 8, func(r *InstrumentRecord) any { return &r.MarginInit }},
	{"marginMaintenance", 1752, 8, func(r *InstrumentRecord) any { return &r.MarginMaintenance }},
	{"marginHedged", 1760, 8, func(r *InstrumentRecord) any { return &r.MarginHedged }},
	{"marginDivider", 1768, 8, func(r *InstrumentRecord) any { return &r.MarginDivider }},
	{"pointSize", 1776, 8, func(r *InstrumentRecord) any { return &r.PointSize }},
	{"pointsPerUnit", 1784, 8, func(r *InstrumentRecord) any { return &r.PointsPerUnit }},
	{"marginCurrency", 1816, 12, func(r *InstrumentRecord) any { return &r.MarginCurrency }},
}

// FieldNames returns the instrument field names in canonical order.
func FieldNames() []string {
	names := make([]string, len(instrumentFields))
	for i, f := range instrumentFields {
		names[i] = f.name
	}
	return names
}

// LookupFieldName returns the canonical spelling of a case-insensitive field name.
func LookupFieldName(name string) (string, bool) {
	for _, f := range instrumentFields {
		if strings.EqualFold(f.name, name) {
			return f.name, true
		}
	}
	return "", false
}

// Field returns the value of the named field (case-insensitive). Strings, uint32, bool and float64
// values are returned as such, session tables as [208]byte.
func (r *InstrumentRecord) Field(name string) (any, bool) {
	for _, f := range instrumentFields {
		if !strings.EqualFold(f.name, name) {
			continue
		}
		switch p := f.ref(r).(type) {
		case *string:
			return *p, true
		case *uint32:
			return *p, true
		case *bool:
			return *p, true
		case *float64:
			return *p, true
		case *[SessionTableSize]byte:
			return *p, true
		}
	}
	return nil, false
}

// DecodeInstrumentRecord unpacks a single SYMBOL record.
func DecodeInstrumentRecord(b []byte) (InstrumentRecord, error) {
	var r InstrumentRecord
	if len(b) < InstrumentRecordSize {
		return r, fmt.Errorf("symbol record of %d bytes, need %d: %w", len(b), InstrumentRecordSize, ports.ErrFormat)
	}
	for _, f := range instrumentFields {
		src := b[f.offset : f.offset+f.size]
		switch p := f.ref(&r).(type) {
		case *string:
			*p = cString(src)
		case *uint32:
			*p = binary.LittleEndian.Uint32(src)
		case *bool:
			*p = binary.LittleEndian.Uint32(src) != 0
		case *float64:
			*p = math.Float64frombits(binary.LittleEndian.Uint64(src))
		case *[SessionTableSize]byte:
			copy(p[:], src)
		}
	}
	return r, nil
}

// EncodeInstrumentRecord packs r into a SYMBOL record. Unknown regions are zero-filled.
func EncodeInstrumentRecord(r InstrumentRecord) []byte {
	buf := make([]byte, InstrumentRecordSize)
	for _, f := range instrumentFields {
		dst := buf[f.offset : f.offset+f.size]
		switch p := f.ref(&r).(type) {
		case *string:
			putCString(dst, *p)
		case *uint32:
			binary.LittleEndian.PutUint32(dst, *p)
		case *bool:
			if *p {
				binary.LittleEndian.PutUint32(dst, 1)
			}
		case *float64:
			binary.LittleEndian.PutUint64(dst, math.Float64bits(*p))
		case *[SessionTableSize]byte:
			copy(dst, p[:])
		}
	}
	return buf
}

// ReadInstrumentFile reads all records of a symbols.raw file. The number of trailing bytes that do not
// form a complete record is returned alongside, it is up to the caller to report them.
func ReadInstrumentFile(path string) ([]InstrumentRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %v: %w", path, err, ports.ErrIO)
	}
	size := info.Size()
	if size < InstrumentRecordSize {
		return nil, 0, fmt.Errorf("invalid or unsupported format, file size (%d) < MinFileSize (%d): %w",
			size, InstrumentRecordSize, ports.ErrFormat)
	}

	n := int(size / InstrumentRecordSize)
	trailing := int(size % InstrumentRecordSize)
	records := make([]InstrumentRecord, 0, n)
	buf := make([]byte, InstrumentRecordSize)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, trailing, fmt.Errorf("read record %d of %s: %v: %w", i, path, err, ports.ErrIO)
		}
		r, err := DecodeInstrumentRecord(buf)
		if err != nil {
			return nil, trailing, err
		}
		records = append(records, r)
	}
	return records, trailing, nil
}
