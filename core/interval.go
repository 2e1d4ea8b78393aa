package core

import (
	"time"
)

// =============================================================================
// INTERVAL - Half-open stay [CheckIn, CheckOut)
// =============================================================================

// Interval is the span a booking reserves. CheckOut is exclusive: a stay
// ending on Jan 4 does not conflict with one starting on Jan 4.
type Interval struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// NewInterval builds an interval normalized to UTC at second precision.
func NewInterval(checkIn, checkOut time.Time) Interval {
	return Interval{CheckIn: normalize(checkIn), CheckOut: normalize(checkOut)}
}

// Days builds an interval covering whole calendar days in UTC.
func Days(year int, month time.Month, fromDay, toDay int) Interval {
	return Interval{
		CheckIn:  time.Date(year, month, fromDay, 0, 0, 0, 0, time.UTC),
		CheckOut: time.Date(year, month, toDay, 0, 0, 0, 0, time.UTC),
	}
}

func normalize(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }

// Valid reports whether CheckOut is strictly after CheckIn.
func (i Interval) Valid() bool {
	return !i.CheckIn.IsZero() && !i.CheckOut.IsZero() && i.CheckOut.After(i.CheckIn)
}

// Overlaps reports whether two half-open intervals share at least one instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.CheckIn.Before(o.CheckOut) && i.CheckOut.After(o.CheckIn)
}

// Nights returns ceil((CheckOut - CheckIn) / 24h), never less than 1.
func (i Interval) Nights() int {
	d := i.CheckOut.Sub(i.CheckIn)
	n := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// NightDates returns the calendar day (UTC midnight) of each night of the stay.
func (i Interval) NightDates() []time.Time {
	n := i.Nights()
	start := StartOfDay(i.CheckIn)
	dates := make([]time.Time, n)
	for k := 0; k < n; k++ {
		dates[k] = start.AddDate(0, 0, k)
	}
	return dates
}

func (i Interval) String() string {
	return "[" + i.CheckIn.Format(time.RFC3339) + ", " + i.CheckOut.Format(time.RFC3339) + ")"
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WithinDays reports whether day falls in [from, to] compared by calendar day.
func WithinDays(day, from, to time.Time) bool {
	d := StartOfDay(day)
	return !d.Before(StartOfDay(from)) && !d.After(StartOfDay(to))
}
