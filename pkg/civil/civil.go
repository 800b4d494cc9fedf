// Package civil converts absolute instants to wall-clock fields in a named
// IANA timezone and evaluates the daily-report trigger window.
package civil

import (
	"time"
)

const (
	reportHour          = 8
	reportWindowMinutes = 15
)

// Moment is the civil date, hour and minute of an instant in a fixed
// timezone.
type Moment struct {
	Date   string // YYYY-MM-DD
	Hour   int
	Minute int
}

// At converts an instant to its civil representation in loc, applying the
// zone's DST and offset rules valid at that instant.
//
// On DST-transition days a civil time in the trigger window can map to zero
// or two instants; we take whatever single conversion the timezone database
// gives for the instant and live with the result. Worst case the window is
// skipped or hit twice a year, which the daily watermark absorbs anyway.
func At(t time.Time, loc *time.Location) Moment {
	local := t.In(loc)
	return Moment{
		Date:   local.Format("2006-01-02"),
		Hour:   local.Hour(),
		Minute: local.Minute(),
	}
}

// InWindow reports whether m falls inside the daily-report firing window,
// 08:00 to 08:14 inclusive local time.
func InWindow(m Moment) bool {
	return m.Hour == reportHour && m.Minute < reportWindowMinutes
}
