/*
busdate.go - Business-date resolver

PURPOSE:
  Maps (timezone, reset hour, wall-clock now) to the calendar date string
  that partitions all ledger data. A tenant whose reset hour is 4 keeps
  recording onto "yesterday's" ledger until 04:00 local time.

CONTRACT:
  Pure and total. No I/O beyond the zone database lookup, no failure mode:
  an unknown timezone degrades to UTC rather than erroring, because every
  read and write path must always resolve to SOME date.

BOUNDARY:
  Inclusive on the reset hour. At 03:59 local the business date is
  yesterday; at 04:00 it is today.

SEE ALSO:
  - engine.go: every ledger operation resolves the date through here
  - chronos: the rollover trigger compares local hour against the same
    reset hour this resolver partitions by
*/
package ledger

import "time"

// DateLayout is the business-date partition key format.
const DateLayout = "2006-01-02"

// BusinessDate resolves the logical accounting date for a tenant.
// If the local hour is strictly before resetHour the date is yesterday
// in that timezone, otherwise today.
func BusinessDate(timezone string, resetHour int, now time.Time) string {
	loc := locationOrUTC(timezone)
	local := now.In(loc)
	if local.Hour() < resetHour {
		local = local.AddDate(0, 0, -1)
	}
	return local.Format(DateLayout)
}

// LocalDay returns the calendar date of t in the given timezone, ignoring
// the reset hour. Used for the scheduler's same-day stamp comparison.
func LocalDay(timezone string, t time.Time) string {
	return t.In(locationOrUTC(timezone)).Format(DateLayout)
}

// SameLocalDay reports whether a and b fall on the same calendar day in
// the tenant's timezone.
func SameLocalDay(timezone string, a, b time.Time) bool {
	return LocalDay(timezone, a) == LocalDay(timezone, b)
}

func locationOrUTC(timezone string) *time.Location {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
