package plist

import (
	"math"
	"time"
)

const (
	secondsPerMinute       = 60
	secondsPerHour         = 60 * secondsPerMinute
	secondsPerDay          = 24 * secondsPerHour
	unixToCocoa      int64 = (31*365 + 31/4 + 1) * secondsPerDay
)

// Date is a point in time as seconds since 2001-01-01T00:00:00Z.
type Date float64

// DateFromTime converts t to a Date, keeping nanosecond precision.
func DateFromTime(t time.Time) Date {
	return Date(float64(t.Unix()-unixToCocoa) + float64(t.Nanosecond())/1e9)
}

// Valid reports whether d maps to a calendar time.
func (d Date) Valid() bool {
	f := float64(d)
	return !math.IsNaN(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<62
}

// Time returns d in UTC, rounded to the nearest nanosecond. Invalid dates
// map to the zero time.
func (d Date) Time() time.Time {
	if !d.Valid() {
		return time.Time{}
	}
	sec := math.Floor(float64(d))
	nsec := math.Round((float64(d) - sec) * 1e9)
	return time.Unix(int64(sec)+unixToCocoa, int64(nsec)).UTC()
}

func (d Date) String() string {
	return d.Time().Format(time.RFC3339Nano)
}
