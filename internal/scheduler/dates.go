package scheduler

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format for calendar dates.
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format for wall-clock start times.
	ClockLayout = "15:04"
)

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	in := t.In(loc)
	return time.Date(in.Year(), in.Month(), in.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek returns the Monday that starts t's week.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	return StartOfWeekOn(t, loc, time.Monday)
}

// StartOfWeekOn returns the most recent day on or before t that falls on weekStart.
func StartOfWeekOn(t time.Time, loc *time.Location, weekStart time.Weekday) time.Time {
	start := StartOfDay(t, loc)
	offset := (int(start.Weekday()) - int(weekStart) + 7) % 7
	return start.AddDate(0, 0, -offset)
}

// StartOfMonth returns the first day of t's month.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	start := StartOfDay(t, loc)
	return time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
}

// DateKey formats the calendar day of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return StartOfDay(t, loc).Format(DateLayout)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DateKey(a, loc) == DateKey(b, loc)
}

// ParseDate parses a YYYY-MM-DD value as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid date %q: %w", value, err)
	}
	return date, nil
}

// ParseClock combines a HH:MM value with the calendar day of date.
func ParseClock(date time.Time, value string) (time.Time, error) {
	clock, err := time.Parse(ClockLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid time %q: %w", value, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, date.Location()), nil
}
