package schedule

import (
	"fmt"
	"time"
)

// LeapDayPolicy decides when a Feb 29 birthday fires in non-leap years.
// It is applied in exactly one place (the candidate-date match below) so
// the rule cannot drift across the codebase.
type LeapDayPolicy string

const (
	LeapDayFeb28 LeapDayPolicy = "feb28"
	LeapDayMar01 LeapDayPolicy = "mar01"
)

// Resolution is the outcome of a successful resolve: the local calendar
// date the event pertains to and the UTC instant to deliver at.
type Resolution struct {
	OccurrenceDate  time.Time // date-only, midnight UTC encoding of the local calendar date
	ScheduledForUTC time.Time
}

// Resolver computes, for a user's birth month/day and zone, the trigger
// instant for "today" in that zone. It is a pure function of its inputs
// and the supplied now; it holds no state and performs no I/O.
type Resolver struct {
	TargetHour int           // local wall-clock hour to fire at, e.g. 9
	Grace      time.Duration // how far in the past a target may lie and still resolve
	Policy     LeapDayPolicy
}

// LoadZone resolves an IANA zone identifier. An unresolvable zone is a
// data-quality error owned by the registry, distinct from a SKIP.
func LoadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unresolvable time zone %q: %w", name, err)
	}
	return loc, nil
}

// Resolve determines whether today (in loc, as of nowUTC) is the user's
// event date and, if so, the UTC instant corresponding to TargetHour:00
// local. The second return is false for SKIP: either today is not the
// event date, or the target instant is already more than Grace in the
// past (truly missed occurrences are the recovery sweeper's job, not the
// resolver's).
func (r *Resolver) Resolve(birthMonth time.Month, birthDay int, loc *time.Location, nowUTC time.Time) (Resolution, bool) {
	localNow := nowUTC.In(loc)
	year, month, day := localNow.Date()

	wantMonth, wantDay := birthMonth, birthDay
	if birthMonth == time.February && birthDay == 29 && !isLeapYear(year) {
		switch r.Policy {
		case LeapDayMar01:
			wantMonth, wantDay = time.March, 1
		default:
			wantMonth, wantDay = time.February, 28
		}
	}
	if month != wantMonth || day != wantDay {
		return Resolution{}, false
	}

	scheduled := localInstant(year, wantMonth, wantDay, r.TargetHour, loc)
	if scheduled.Before(nowUTC.Add(-r.Grace)) {
		return Resolution{}, false
	}

	return Resolution{
		OccurrenceDate:  time.Date(year, wantMonth, wantDay, 0, 0, 0, 0, time.UTC),
		ScheduledForUTC: scheduled.UTC(),
	}, true
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// localInstant maps the wall clock hour:00 on the given local date to a
// UTC-comparable instant, resolving DST edge cases deterministically:
//   - fall-back overlap (the wall time occurs twice): the earlier instant;
//   - spring-forward gap (the wall time does not exist): the first valid
//     wall-clock instant at or after the target.
func localInstant(year int, month time.Month, day, hour int, loc *time.Location) time.Time {
	t := time.Date(year, month, day, hour, 0, 0, 0, loc)
	if wallMatches(t, year, month, day, hour, 0) {
		// The instant exists; it may still be ambiguous. Probe earlier
		// offsets (zones shift by 30m, 1h or 2h) and keep the earliest
		// instant showing the same wall clock.
		earliest := t
		for _, back := range []time.Duration{30 * time.Minute, time.Hour, 2 * time.Hour} {
			c := t.Add(-back)
			if wallMatches(c, year, month, day, hour, 0) && c.Before(earliest) {
				earliest = c
			}
		}
		return earliest
	}

	// The target fell in a DST gap. Gaps are at most a few hours; probe
	// forward minute by minute for the first wall time that exists.
	for min := 1; min <= 3*60; min++ {
		c := time.Date(year, month, day, hour, min, 0, 0, loc)
		wantHour, wantMin := hour+min/60, min%60
		if wallMatches(c, year, month, day, wantHour, wantMin) {
			return c
		}
	}
	return t
}

func wallMatches(t time.Time, year int, month time.Month, day, hour, min int) bool {
	y, m, d := t.Date()
	return y == year && m == month && d == day && t.Hour() == hour && t.Minute() == min
}
