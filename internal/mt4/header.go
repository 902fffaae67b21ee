package mt4

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"fxHistory/internal/domain"
	"fxHistory/internal/ports"
)

// HeaderSize is the size of the header at the start of every history file.
const HeaderSize = 148

// DefaultCopyright is written into the header of newly created history files.
const DefaultCopyright = "(C)opyright 2003, MetaQuotes Software Corp."

// HistoryHeader is the fixed header of a history file.
//
//	offset  field       type
//	0       version     int32
//	4       copyright   char[64]
//	68      symbol      char[12]
//	80      period      int32
//	84      digits      int32
//	88      timeSign    int32   creation time
//	92      lastSync    int32   last synchronization time
//	96      reserved    int32[13]
type HistoryHeader struct {
	Version   domain.FormatVersion
	Copyright string
	Symbol    string
	Period    domain.Timeframe
	Digits    int
	TimeSign  int64
	LastSync  int64
}

// Encode packs the header into HeaderSize bytes.
func (h HistoryHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(h.Version))
	putCString(buf[4:68], h.Copyright)
	putCString(buf[68:80], h.Symbol)
	binary.LittleEndian.PutUint32(buf[80:], uint32(h.Period))
	binary.LittleEndian.PutUint32(buf[84:], uint32(h.Digits))
	binary.LittleEndian.PutUint32(buf[88:], uint32(h.TimeSign))
	binary.LittleEndian.PutUint32(buf[92:], uint32(h.LastSync))
	return buf
}

// DecodeHeader unpacks a history file header.
func DecodeHeader(b []byte) (HistoryHeader, error) {
	if len(b) < HeaderSize {
		return HistoryHeader{}, fmt.Errorf("header of %d bytes, need %d: %w", len(b), HeaderSize, ports.ErrFormat)
	}
	h := HistoryHeader{
		Version:   domain.FormatVersion(binary.LittleEndian.Uint32(b[0:])),
		Copyright: cString(b[4:68]),
		Symbol:    cString(b[68:80]),
		Period:    domain.Timeframe(binary.LittleEndian.Uint32(b[80:])),
		Digits:    int(int32(binary.LittleEndian.Uint32(b[84:]))),
		TimeSign:  int64(binary.LittleEndian.Uint32(b[88:])),
		LastSync:  int64(binary.LittleEndian.Uint32(b[92:])),
	}
	if !h.Version.Valid() {
		return h, fmt.Errorf("version.unsupported: %d (must be 400 or 401): %w", h.Version, ports.ErrFormat)
	}
	return h, nil
}

// cString returns the bytes of b up to the first NUL.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// putCString copies s into dst, truncated so that at least one terminating NUL remains.
func putCString(dst []byte, s string) {
	clear(dst)
	copy(dst[:len(dst)-1], s)
}
