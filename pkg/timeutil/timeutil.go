// Package timeutil provides calendar-day helpers.
// Deadlines and reminders are counted in calendar days, not 24h spans.
// Every helper works in the location of its first argument; convert to the
// service zone before calling.
package timeutil

import (
	"math"
	"time"
)

// Common date formats.
const (
	// FormatDate is the wire and database date format (YYYY-MM-DD).
	FormatDate = time.DateOnly
	// FormatHumanDate is used in reminder texts.
	FormatHumanDate = "2 January 2006"
)

// StartOfDay returns midnight of the day of t, in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from t1 to t2, counted in
// the location of t1. Negative when t2 is on an earlier day.
func DaysBetween(t1, t2 time.Time) int {
	a := StartOfDay(t1)
	b := StartOfDay(t2.In(t1.Location()))
	// DST: a calendar day is 23 or 25 hours long.
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// FormatDateStr formats t as YYYY-MM-DD. The zero time gives "".
func FormatDateStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(FormatDate)
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(FormatDate, value, loc)
}
