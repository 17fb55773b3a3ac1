package voting

import (
	"fmt"
	"time"
)

// =============================================================================
// WEEK EPOCH - ISO-8601 week identification
// =============================================================================

// WeekEpoch identifies an ISO-8601 week. Week 1 is the week containing
// the year's first Thursday; Year is the ISO year, which near January 1
// can differ from the calendar year.
type WeekEpoch struct {
	Year int
	Week int
}

// WeekEpochOf maps a timestamp to its ISO week. This is the sole
// boundary for "already voted this week", so the computation must stay
// stable: normalize to midnight, shift the date to the Thursday of its
// own week, then count whole weeks from January 1 of the Thursday's year.
func WeekEpochOf(t time.Time) WeekEpoch {
	// Take the wall-clock date in t's own location, then do the day
	// arithmetic in UTC so DST transitions cannot skew the day count.
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	// Monday=1 .. Sunday=7
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	thursday := d.AddDate(0, 0, 4-weekday)

	jan1 := time.Date(thursday.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	days := int(thursday.Sub(jan1).Hours() / 24)

	// week = ceil((days + 1) / 7)
	return WeekEpoch{
		Year: thursday.Year(),
		Week: (days + 7) / 7,
	}
}

// Equal reports whether two epochs identify the same ISO week.
func (e WeekEpoch) Equal(other WeekEpoch) bool {
	return e.Year == other.Year && e.Week == other.Week
}

// Before reports whether e is an earlier ISO week than other.
func (e WeekEpoch) Before(other WeekEpoch) bool {
	if e.Year != other.Year {
		return e.Year < other.Year
	}
	return e.Week < other.Week
}

func (e WeekEpoch) String() string {
	return fmt.Sprintf("%d-W%02d", e.Year, e.Week)
}
