// Package util contains small helpers shared by the commands and the driver.
package util

import "time"

// Throttler passes at most one progress report per period, and always the
// final report of a run. It counts the reports dropped in between.
type Throttler struct {
	d       time.Duration
	last    time.Time
	skipped int

	now func() time.Time
}

func NewThrottler(d time.Duration) *Throttler {
	tt := &Throttler{d: d, last: time.Date(0, 0, 0, 0, 0, 0, 0, time.UTC), now: time.Now}
	return tt
}

// Ok reports whether a report should be emitted, and the number of reports
// dropped since the previous emitted one.
// A final report is always emitted.
func (tt *Throttler) Ok(final bool) (bool, int) {
	now := tt.now()
	if !final && now.Before(tt.last.Add(tt.d)) {
		tt.skipped++
		return false, 0
	}

	skipped := tt.skipped
	tt.last, tt.skipped = now, 0
	return true, skipped
}
