// Package timewindow computes Monday-to-Sunday calendar weeks. All functions
// work in the location of the instant they receive.
package timewindow

import (
	"time"
)

// KeyLayout is the layout of week keys (the ISO date of the week's Monday).
const KeyLayout = "2006-01-02"

const displayLayout = "02/01/2006"

// WeekStart returns Monday 00:00:00.000 of the week containing t. Sunday
// belongs to the week that started six days earlier.
func WeekStart(t time.Time) time.Time {
	offset := int(t.Weekday()) - 1
	if t.Weekday() == time.Sunday {
		offset = 6
	}
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
}

// WeekEnd returns Sunday 23:59:59.999 of the week containing t.
func WeekEnd(t time.Time) time.Time {
	start := WeekStart(t)
	return time.Date(start.Year(), start.Month(), start.Day()+6, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// WeekKey returns the YYYY-MM-DD date of WeekStart(t).
func WeekKey(t time.Time) string {
	return WeekStart(t).Format(KeyLayout)
}

// FormatRange renders a week range for pt-BR readers, e.g.
// "09/02/2026 a 15/02/2026".
func FormatRange(start, end time.Time) string {
	return start.Format(displayLayout) + " a " + end.Format(displayLayout)
}

func IsSunday(t time.Time) bool {
	return t.Weekday() == time.Sunday
}
