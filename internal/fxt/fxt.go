// Package fxt converts between UTC and FXT, the time base of MetaTrader forex servers
// (New York time shifted by 7 hours, so that the trading week starts Monday 00:00 and daily bars
// close at 17:00 New York).
package fxt

import (
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // America/New_York must resolve on hosts without zoneinfo
)

const shift = 7 * 60 * 60

var newYork = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("fxt: %v", err))
	}
	return loc
})

// offset returns the New York UTC offset in seconds at a UTC instant.
func offset(utc int64) int64 {
	_, off := time.Unix(utc, 0).In(newYork()).Zone()
	return int64(off)
}

// FromUTC returns the FXT timestamp of a UTC instant.
func FromUTC(t time.Time) int64 {
	utc := t.Unix()
	return utc + offset(utc) + shift
}

// ToUTC returns the UTC instant of an FXT timestamp.
func ToUTC(fxt int64) time.Time {
	guess := fxt - shift + 5*60*60
	utc := fxt - shift - offset(guess)
	if off := offset(utc); utc+off+shift != fxt {
		// DST switch between guess and result
		utc = fxt - shift - off
	}
	return time.Unix(utc, 0).UTC()
}

// IsWeekend reports whether an FXT timestamp falls on a Saturday or Sunday.
func IsWeekend(fxt int64) bool {
	switch time.Unix(fxt, 0).UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// IsHoliday reports whether an FXT timestamp falls on a forex holiday (January 1st, December 25th).
func IsHoliday(fxt int64) bool {
	_, m, d := time.Unix(fxt, 0).UTC().Date()
	return (m == time.January && d == 1) || (m == time.December && d == 25)
}

// IsTradingDay reports whether an FXT timestamp falls on a trading day.
func IsTradingDay(fxt int64) bool {
	return !IsWeekend(fxt) && !IsHoliday(fxt)
}

// TimeBase is the time base history files are written in.
type TimeBase int

const (
	BaseFXT TimeBase = iota
	BaseUTC
)

// ParseTimeBase accepts "FXT" or "UTC"/"GMT" (case-insensitive).
func ParseTimeBase(s string) (TimeBase, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FXT", "":
		return BaseFXT, nil
	case "UTC", "GMT":
		return BaseUTC, nil
	default:
		return 0, fmt.Errorf("unknown time base: %q", s)
	}
}

func (b TimeBase) String() string {
	if b == BaseUTC {
		return "UTC"
	}
	return "FXT"
}

// FromUTC converts a UTC instant into a timestamp of the time base.
func (b TimeBase) FromUTC(t time.Time) int64 {
	if b == BaseUTC {
		return t.Unix()
	}
	return FromUTC(t)
}

// ToUTC converts a timestamp of the time base into a UTC instant.
func (b TimeBase) ToUTC(ts int64) time.Time {
	if b == BaseUTC {
		return time.Unix(ts, 0).UTC()
	}
	return ToUTC(ts)
}
