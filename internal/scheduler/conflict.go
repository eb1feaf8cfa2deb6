package scheduler

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval builds the interval starting at start and lasting d.
func NewInterval(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

// Overlaps reports whether the two half-open intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Booking is an occupied interval attributed to a confirmed meeting.
type Booking struct {
	MeetingID string
	Interval
}

// Conflict details an existing booking that overlaps a candidate interval.
type Conflict struct {
	WithMeetingID string
	Interval      Interval
}

// DetectConflicts returns every existing booking that overlaps the candidate, in input order.
func DetectConflicts(existing []Booking, candidate Interval) []Conflict {
	var conflicts []Conflict
	for _, booking := range existing {
		if !booking.Overlaps(candidate) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithMeetingID: booking.MeetingID,
			Interval:      booking.Interval,
		})
	}
	return conflicts
}

// IsFree reports whether the candidate interval overlaps none of the booked intervals.
func IsFree(booked []Interval, candidate Interval) bool {
	for _, interval := range booked {
		if interval.Overlaps(candidate) {
			return false
		}
	}
	return true
}

// Intervals extracts the occupied intervals of the bookings.
func Intervals(bookings []Booking) []Interval {
	if len(bookings) == 0 {
		return nil
	}
	out := make([]Interval, len(bookings))
	for i, booking := range bookings {
		out[i] = booking.Interval
	}
	return out
}
