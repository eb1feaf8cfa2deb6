package scheduler

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 11, hour, minute, 0, 0, time.UTC)
}

func TestDetectConflicts(t *testing.T) {
	t.Parallel()

	existing := []Booking{
		{MeetingID: "meeting-1", Interval: Interval{Start: at(10, 0), End: at(10, 30)}},
		{MeetingID: "meeting-2", Interval: Interval{Start: at(13, 0), End: at(14, 0)}},
	}

	t.Run("overlapping interval produces conflict", func(t *testing.T) {
		t.Parallel()
		conflicts := DetectConflicts(existing, Interval{Start: at(10, 15), End: at(10, 45)})
		if len(conflicts) != 1 {
			t.Fatalf("expected 1 conflict, got %d", len(conflicts))
		}
		if conflicts[0].WithMeetingID != "meeting-1" {
			t.Fatalf("expected conflict with meeting-1, got %s", conflicts[0].WithMeetingID)
		}
	})

	t.Run("interval spanning several bookings reports each", func(t *testing.T) {
		t.Parallel()
		conflicts := DetectConflicts(existing, Interval{Start: at(9, 0), End: at(18, 0)})
		if len(conflicts) != 2 {
			t.Fatalf("expected 2 conflicts, got %d", len(conflicts))
		}
	})

	t.Run("touching intervals do not conflict", func(t *testing.T) {
		t.Parallel()
		if conflicts := DetectConflicts(existing, Interval{Start: at(10, 30), End: at(11, 0)}); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %v", conflicts)
		}
		if conflicts := DetectConflicts(existing, Interval{Start: at(9, 30), End: at(10, 0)}); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %v", conflicts)
		}
	})

	t.Run("non-overlapping schedules yield no conflicts", func(t *testing.T) {
		t.Parallel()
		if conflicts := DetectConflicts(existing, Interval{Start: at(15, 0), End: at(16, 0)}); conflicts != nil {
			t.Fatalf("expected nil conflicts, got %v", conflicts)
		}
	})
}

func TestIsFreeMatchesDetectConflicts(t *testing.T) {
	t.Parallel()

	existing := []Booking{
		{MeetingID: "a", Interval: Interval{Start: at(9, 0), End: at(9, 30)}},
		{MeetingID: "b", Interval: Interval{Start: at(11, 0), End: at(12, 0)}},
	}
	booked := Intervals(existing)

	for start := at(8, 0); start.Before(at(13, 0)); start = start.Add(15 * time.Minute) {
		for _, d := range []time.Duration{15 * time.Minute, 30 * time.Minute, time.Hour} {
			candidate := NewInterval(start, d)
			free := IsFree(booked, candidate)
			conflicts := DetectConflicts(existing, candidate)
			if free != (len(conflicts) == 0) {
				t.Fatalf("IsFree=%v but %d conflicts for %s+%s", free, len(conflicts), start.Format(ClockLayout), d)
			}
		}
	}
}
