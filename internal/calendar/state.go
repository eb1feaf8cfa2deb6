package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/portal-scheduler/internal/scheduler"
)

// Filter selects the time window a calendar view displays.
type Filter string

const (
	FilterToday Filter = "today"
	FilterWeek  Filter = "week"
	FilterMonth Filter = "month"
	FilterAll   Filter = "all"
)

// Filters lists the supported filters in display order.
var Filters = []Filter{FilterToday, FilterWeek, FilterMonth, FilterAll}

// ParseFilter resolves the wire name of a filter. An empty value selects FilterMonth.
func ParseFilter(value string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return FilterMonth, nil
	case FilterToday:
		return FilterToday, nil
	case FilterWeek, "this_week":
		return FilterWeek, nil
	case FilterMonth, "this_month":
		return FilterMonth, nil
	case FilterAll:
		return FilterAll, nil
	}
	return "", fmt.Errorf("calendar: unknown filter %q", value)
}

// MonthBased reports whether the filter renders a padded month grid.
func (f Filter) MonthBased() bool {
	return f == FilterMonth || f == FilterAll
}

// State is the expansion and navigation state of one calendar view. It is a
// plain value: transitions return a new State and never mutate the receiver.
type State struct {
	Filter            Filter
	VisibleMonth      time.Time
	ExpandedDayKey    string
	ExpandedMeetingID string
}

// NewState returns the initial state: the month filter on the current month
// with nothing expanded.
func NewState(now time.Time, loc *time.Location) State {
	return State{
		Filter:       FilterMonth,
		VisibleMonth: scheduler.StartOfMonth(now, loc),
	}
}

// SetFilter switches the filter and collapses everything. Switching to a
// month-based filter also moves the visible month back to the current month.
func (s State) SetFilter(filter Filter, now time.Time, loc *time.Location) State {
	next := s.collapsed()
	next.Filter = filter
	if filter.MonthBased() || next.VisibleMonth.IsZero() {
		next.VisibleMonth = scheduler.StartOfMonth(now, loc)
	}
	return next
}

// NextMonth advances the visible month by one and collapses everything.
func (s State) NextMonth() State {
	return s.shiftMonth(1)
}

// PrevMonth moves the visible month back by one and collapses everything.
func (s State) PrevMonth() State {
	return s.shiftMonth(-1)
}

func (s State) shiftMonth(delta int) State {
	next := s.collapsed()
	month := s.VisibleMonth
	next.VisibleMonth = time.Date(month.Year(), month.Month()+time.Month(delta), 1, 0, 0, 0, 0, month.Location())
	return next
}

// ToggleDay expands the day identified by key, or collapses it when it is
// already expanded. Days without meetings never expand. The expanded meeting
// is left untouched.
func (s State) ToggleDay(key string, meetingCount int) State {
	next := s
	switch {
	case s.ExpandedDayKey == key:
		next.ExpandedDayKey = ""
	case meetingCount > 0:
		next.ExpandedDayKey = key
	}
	return next
}

// ToggleMeeting expands the meeting, collapsing any other expanded meeting,
// or collapses it when it is already the expanded one.
func (s State) ToggleMeeting(id string) State {
	next := s
	if s.ExpandedMeetingID == id {
		next.ExpandedMeetingID = ""
	} else {
		next.ExpandedMeetingID = id
	}
	return next
}

func (s State) collapsed() State {
	next := s
	next.ExpandedDayKey = ""
	next.ExpandedMeetingID = ""
	return next
}
