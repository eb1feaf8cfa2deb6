package scheduler

import "time"

// TimeSlot is a concrete bookable window derived from a policy. Slots are
// identified by their date and start time and are never persisted.
type TimeSlot struct {
	Date      time.Time
	Start     time.Time
	Duration  time.Duration
	Available bool
}

// End returns the instant the slot finishes.
func (s TimeSlot) End() time.Time {
	return s.Start.Add(s.Duration)
}

// Interval returns the occupied range of the slot.
func (s TimeSlot) Interval() Interval {
	return NewInterval(s.Start, s.Duration)
}

// Clock returns the HH:MM start time of the slot.
func (s TimeSlot) Clock() string {
	return s.Start.Format(ClockLayout)
}

// GenerateSlots expands the policy into the free slots of date.
//
// Candidates start at every multiple of the slot duration inside each hour
// from StartHour up to, but excluding, EndHour. A candidate is dropped when
// it overlaps any booked interval. Slots that start before EndHour are kept
// even if they end after it. Disabled or blocked days yield no slots.
//
// The result is ordered by start time. The function is pure: the same inputs
// always produce the same output.
func GenerateSlots(policy Policy, date time.Time, booked []Interval) []TimeSlot {
	setting := policy.Setting(date.Weekday())
	if !setting.Available() || policy.SlotDurationMinutes <= 0 {
		return nil
	}

	day := StartOfDay(date, date.Location())
	duration := policy.SlotDuration()

	var slots []TimeSlot
	for hour := setting.StartHour; hour < setting.EndHour; hour++ {
		for minute := 0; minute < 60; minute += policy.SlotDurationMinutes {
			start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
			if !IsFree(booked, NewInterval(start, duration)) {
				continue
			}
			slots = append(slots, TimeSlot{
				Date:      day,
				Start:     start,
				Duration:  duration,
				Available: true,
			})
		}
	}
	return slots
}

// FindSlot returns the slot starting at start, if present.
func FindSlot(slots []TimeSlot, start time.Time) (TimeSlot, bool) {
	for _, slot := range slots {
		if slot.Start.Equal(start) {
			return slot, true
		}
	}
	return TimeSlot{}, false
}
