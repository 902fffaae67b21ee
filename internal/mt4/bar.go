// Package mt4 describes the MetaTrader binary structures used by history files (*.hst) and symbol
// files (symbols.raw) and converts between raw records and typed values.
package mt4

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"fxHistory/internal/domain"
	"fxHistory/internal/ports"
)

// BarCodec packs and unpacks history bars of one format version.
//
// Floating point fields are produced in the host byte order and then normalized, so the stored bytes
// are IEEE-754 little-endian regardless of the machine the file is written on. Integer fields are
// always written little-endian.
type BarCodec struct {
	version   domain.FormatVersion
	size      int
	host      binary.ByteOrder
	bigEndian bool
}

// NewBarCodec returns a codec for version v using the native byte order of the running host.
func NewBarCodec(v domain.FormatVersion) (*BarCodec, error) {
	return NewBarCodecForHost(v, binary.NativeEndian)
}

// NewBarCodecForHost returns a codec for version v that behaves as if running on a host with the given
// byte order. Used to verify files stay portable between little- and big-endian machines.
func NewBarCodecForHost(v domain.FormatVersion, host binary.ByteOrder) (*BarCodec, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("version.unsupported: %d (must be 400 or 401): %w", v, ports.ErrFormat)
	}
	return &BarCodec{
		version:   v,
		size:      v.RecordSize(),
		host:      host,
		bigEndian: host.Uint16([]byte{0, 1}) == 1,
	}, nil
}

// Version returns the format version handled by the codec.
func (c *BarCodec) Version() domain.FormatVersion { return c.version }

// RecordSize returns the size of one encoded bar.
func (c *BarCodec) RecordSize() int { return c.size }

// Encode validates b against the instrument digits and returns its binary record.
func (c *BarCodec) Encode(digits int, b domain.Bar) ([]byte, error) {
	buf := make([]byte, c.size)
	if err := c.EncodeTo(buf, digits, b); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo validates b and packs it into dst, which must hold at least RecordSize bytes.
func (c *BarCodec) EncodeTo(dst []byte, digits int, b domain.Bar) error {
	if len(dst) < c.size {
		return fmt.Errorf("encode buffer of %d bytes, need %d: %w", len(dst), c.size, ports.ErrInvalidArgument)
	}
	nb, err := c.Check(digits, b)
	if err != nil {
		return err
	}
	c.pack(dst[:c.size], nb)
	return nil
}

// maxExactTicks is the largest tick count a v400 record stores exactly in its float64 volume field.
const maxExactTicks = 1 << 53

// Check runs ValidateBar and rejects counters the record layout cannot hold without loss.
func (c *BarCodec) Check(digits int, b domain.Bar) (domain.Bar, error) {
	nb, err := ValidateBar(digits, b)
	if err != nil {
		return nb, err
	}
	switch c.version {
	case domain.FormatV400:
		if nb.Ticks > maxExactTicks {
			return nb, fmt.Errorf("bar of %s: ticks %d exceed the v400 range: %w",
				nb.OpenTime().Format(time.DateTime), nb.Ticks, ports.ErrInvalidBar)
		}
	case domain.FormatV401:
		if nb.Ticks > domain.MaxCounter || nb.Volume < 0 || nb.Volume > domain.MaxCounter {
			return nb, fmt.Errorf("bar of %s: ticks %d or volume %d outside [0, %d]: %w",
				nb.OpenTime().Format(time.DateTime), nb.Ticks, nb.Volume, uint32(domain.MaxCounter), ports.ErrInvalidBar)
		}
	}
	return nb, nil
}

func (c *BarCodec) pack(dst []byte, b domain.Bar) {
	clear(dst)
	binary.LittleEndian.PutUint32(dst[0:], uint32(b.Time))

	switch c.version {
	case domain.FormatV400:
		c.putFloat(dst[4:], b.Open)
		c.putFloat(dst[12:], b.Low)
		c.putFloat(dst[20:], b.High)
		c.putFloat(dst[28:], b.Close)
		c.putFloat(dst[36:], float64(b.Ticks))
	case domain.FormatV401:
		c.putFloat(dst[8:], b.Open)
		c.putFloat(dst[16:], b.High)
		c.putFloat(dst[24:], b.Low)
		c.putFloat(dst[32:], b.Close)
		binary.LittleEndian.PutUint32(dst[40:], uint32(b.Ticks))
		binary.LittleEndian.PutUint32(dst[48:], uint32(b.Spread))
		binary.LittleEndian.PutUint32(dst[52:], uint32(b.Volume))
	}
}

// Decode unpacks one bar record.
func (c *BarCodec) Decode(src []byte) (domain.Bar, error) {
	if len(src) < c.size {
		return domain.Bar{}, fmt.Errorf("bar record of %d bytes, need %d: %w", len(src), c.size, ports.ErrFormat)
	}
	b := domain.Bar{Time: int64(binary.LittleEndian.Uint32(src[0:]))}

	switch c.version {
	case domain.FormatV400:
		b.Open = c.getFloat(src[4:])
		b.Low = c.getFloat(src[12:])
		b.High = c.getFloat(src[20:])
		b.Close = c.getFloat(src[28:])
		b.Ticks = int64(c.getFloat(src[36:]))
	case domain.FormatV401:
		b.Open = c.getFloat(src[8:])
		b.High = c.getFloat(src[16:])
		b.Low = c.getFloat(src[24:])
		b.Close = c.getFloat(src[32:])
		b.Ticks = int64(binary.LittleEndian.Uint32(src[40:]))
		b.Spread = int32(binary.LittleEndian.Uint32(src[48:]))
		b.Volume = int64(binary.LittleEndian.Uint32(src[52:]))
	}
	return b, nil
}

// DecodeTime reads only the timestamp of a record.
func (c *BarCodec) DecodeTime(src []byte) int64 {
	return int64(binary.LittleEndian.Uint32(src[0:]))
}

func (c *BarCodec) putFloat(dst []byte, v float64) {
	c.host.PutUint64(dst, math.Float64bits(v))
	if c.bigEndian {
		reverse(dst[:8])
	}
}

func (c *BarCodec) getFloat(src []byte) float64 {
	var tmp [8]byte
	copy(tmp[:], src[:8])
	if c.bigEndian {
		reverse(tmp[:])
	}
	return math.Float64frombits(c.host.Uint64(tmp[:]))
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// ValidateBar rounds the prices of b to digits decimal places and checks the bar invariants
// (finite prices, low <= open,close <= high and ticks > 0). The normalized bar is returned.
func ValidateBar(digits int, b domain.Bar) (domain.Bar, error) {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return b, fmt.Errorf("bar of %s has a non-finite price: O=%v H=%v L=%v C=%v: %w",
				b.OpenTime().Format(time.DateTime), b.Open, b.High, b.Low, b.Close, ports.ErrInvalidBar)
		}
	}
	b.Open = RoundPrice(b.Open, digits)
	b.High = RoundPrice(b.High, digits)
	b.Low = RoundPrice(b.Low, digits)
	b.Close = RoundPrice(b.Close, digits)

	// H >= O >= L and H >= C >= L imply H >= L
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low || b.Ticks <= 0 {
		return b, fmt.Errorf("illegal history bar of %s: O=%v H=%v L=%v C=%v V=%d: %w",
			b.OpenTime().Format("Mon, 02-Jan-2006 15:04"), b.Open, b.High, b.Low, b.Close, b.Ticks, ports.ErrInvalidBar)
	}
	if b.Time < 0 || b.Time > math.MaxUint32 {
		return b, fmt.Errorf("bar time %d out of range: %w", b.Time, ports.ErrInvalidBar)
	}
	return b, nil
}

// RoundPrice rounds v to the given number of decimal places.
func RoundPrice(v float64, digits int) float64 {
	if digits < 0 {
		return v
	}
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}
