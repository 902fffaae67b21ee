package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeframe is a bar period in minutes.
type Timeframe int

const (
	M1  Timeframe = 1
	M5  Timeframe = 5
	M15 Timeframe = 15
	M30 Timeframe = 30
	H1  Timeframe = 60
	H4  Timeframe = 240
	D1  Timeframe = 1440
	W1  Timeframe = 10080
	MN1 Timeframe = 43200
)

// StandardTimeframes lists the MetaTrader standard timeframes in ascending order.
var StandardTimeframes = [...]Timeframe{M1, M5, M15, M30, H1, H4, D1, W1, MN1}

// Index returns the position of tf in StandardTimeframes, or -1.
func (tf Timeframe) Index() int {
	for i, t := range StandardTimeframes {
		if t == tf {
			return i
		}
	}
	return -1
}

// IsStandard reports whether tf is one of the standard timeframes.
func (tf Timeframe) IsStandard() bool {
	return tf.Index() >= 0
}

// Minutes returns the period length in minutes.
func (tf Timeframe) Minutes() int {
	return int(tf)
}

// Seconds returns the nominal period length in seconds.
func (tf Timeframe) Seconds() int64 {
	return int64(tf) * 60
}

// String returns the MetaTrader description, e.g. "M15" or "MN1".
func (tf Timeframe) String() string {
	switch tf {
	case M1:
		return "M1"
	case M5:
		return "M5"
	case M15:
		return "M15"
	case M30:
		return "M30"
	case H1:
		return "H1"
	case H4:
		return "H4"
	case D1:
		return "D1"
	case W1:
		return "W1"
	case MN1:
		return "MN1"
	default:
		return fmt.Sprintf("Timeframe(%d)", int(tf))
	}
}

// OpenTime returns the start of the period containing t. Intraday and daily periods are aligned by
// modulo; weekly bars open on Monday 00:00 and monthly bars on the 1st of the month.
func (tf Timeframe) OpenTime(t int64) int64 {
	switch tf {
	case W1:
		day := t - mod(t, 86400)
		dow := int64(time.Unix(day, 0).UTC().Weekday())
		return day - ((dow+6)%7)*86400
	case MN1:
		d := time.Unix(t, 0).UTC()
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).Unix()
	default:
		return t - mod(t, tf.Seconds())
	}
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// ParseTimeframe accepts "M15", "PERIOD_M15", "m15" or the minute count "15".
func ParseTimeframe(s string) (Timeframe, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "PERIOD_")
	if n, err := strconv.Atoi(v); err == nil {
		if tf := Timeframe(n); tf.IsStandard() {
			return tf, nil
		}
		return 0, fmt.Errorf("not a standard timeframe: %s", s)
	}
	for _, tf := range StandardTimeframes {
		if tf.String() == v {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("not a standard timeframe: %s", s)
}
