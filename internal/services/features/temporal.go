package features

import "time"

// TemporalFields are calendar features of a timestamp.
type TemporalFields struct {
	MinuteOfHour int
	HourOfDay    int
	DayOfWeek    int // Monday=0
	WeekOfYear   int // ISO week
}

// Temporal extracts calendar fields in loc. A nil loc means UTC.
func Temporal(ts time.Time, loc *time.Location) TemporalFields {
	if loc == nil {
		loc = time.UTC
	}
	t := ts.In(loc)
	_, week := t.ISOWeek()
	return TemporalFields{
		MinuteOfHour: t.Minute(),
		HourOfDay:    t.Hour(),
		DayOfWeek:    (int(t.Weekday()) + 6) % 7,
		WeekOfYear:   week,
	}
}
