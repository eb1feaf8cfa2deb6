package calendar

import (
	"sort"
	"time"

	"github.com/example/portal-scheduler/internal/scheduler"
)

// Meeting is a confirmed meeting as the calendar displays it.
type Meeting struct {
	ID          string
	RequesterID string
	Title       string
	Description string
	Date        time.Time
	Start       time.Time
	End         time.Time
	CreatedAt   time.Time
}

// MeetingView pairs a meeting with its expansion flag inside a rendered grid.
type MeetingView struct {
	Meeting
	Expanded bool
}

// Cell is one day of a rendered grid.
type Cell struct {
	Date           time.Time
	Key            string
	InVisibleMonth bool
	Today          bool
	Expanded       bool
	Meetings       []MeetingView
}

// Grid is the rendered result of a calendar view.
type Grid struct {
	Filter       Filter
	VisibleMonth time.Time
	RangeStart   time.Time
	RangeEnd     time.Time
	Cells        []Cell
	Count        int
}

// Weeks splits the cells into rows of seven. Today grids form a single short row.
func (g Grid) Weeks() [][]Cell {
	if len(g.Cells) < 7 {
		if len(g.Cells) == 0 {
			return nil
		}
		return [][]Cell{g.Cells}
	}
	rows := make([][]Cell, 0, len(g.Cells)/7)
	for i := 0; i+7 <= len(g.Cells); i += 7 {
		rows = append(rows, g.Cells[i:i+7])
	}
	return rows
}

// Options configures a View.
type Options struct {
	// Location is the single zone dates are bucketed in. Defaults to UTC.
	Location *time.Location
	// WeekStart is the first column of month grids. Defaults to Monday.
	WeekStart *time.Weekday
}

// View renders calendar grids.
type View struct {
	location  *time.Location
	weekStart time.Weekday
}

// NewView constructs a View from options.
func NewView(opts Options) *View {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	weekStart := time.Monday
	if opts.WeekStart != nil {
		weekStart = *opts.WeekStart
	}
	return &View{location: loc, weekStart: weekStart}
}

// Location returns the zone dates are bucketed in.
func (v *View) Location() *time.Location {
	return v.location
}

// Window returns the closed date range [start, end] the state displays
// relative to now. The all filter returns the padded month grid bounds.
func (v *View) Window(state State, now time.Time) (time.Time, time.Time) {
	switch state.Filter {
	case FilterToday:
		today := scheduler.StartOfDay(now, v.location)
		return today, today
	case FilterWeek:
		start := scheduler.StartOfWeek(now, v.location)
		return start, start.AddDate(0, 0, 6)
	default:
		return v.monthGridBounds(v.visibleMonth(state, now))
	}
}

// Render builds the grid for the state.
//
// Today renders the current date, the week filter renders the seven days of
// the current Monday-start week and the month-based filters render the
// visible month padded to whole weeks. Meetings are bucketed by their date.
// The count is the number of meetings matching the filter; for the all filter
// it is the unfiltered total.
func (v *View) Render(state State, now time.Time, meetings []Meeting) Grid {
	month := v.visibleMonth(state, now)
	start, end := v.Window(state, now)
	todayKey := scheduler.DateKey(now, v.location)

	buckets := make(map[string][]Meeting)
	for _, meeting := range meetings {
		key := scheduler.DateKey(meeting.Date, v.location)
		buckets[key] = append(buckets[key], meeting)
	}
	for key := range buckets {
		sortMeetings(buckets[key])
	}

	grid := Grid{
		Filter:       state.Filter,
		VisibleMonth: month,
		RangeStart:   start,
		RangeEnd:     end,
	}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(scheduler.DateLayout)
		bucket := buckets[key]
		cell := Cell{
			Date:           day,
			Key:            key,
			InVisibleMonth: !state.Filter.MonthBased() || (day.Year() == month.Year() && day.Month() == month.Month()),
			Today:          key == todayKey,
			Expanded:       key == state.ExpandedDayKey && len(bucket) > 0,
		}
		if len(bucket) > 0 {
			cell.Meetings = make([]MeetingView, 0, len(bucket))
			for _, meeting := range bucket {
				cell.Meetings = append(cell.Meetings, MeetingView{
					Meeting:  meeting,
					Expanded: meeting.ID == state.ExpandedMeetingID,
				})
			}
		}
		grid.Cells = append(grid.Cells, cell)
	}

	grid.Count = len(v.Filter(state, now, meetings))
	return grid
}

// Filter returns the meetings matching the state's filter, ordered by start.
// Today matches the current date, the week and month filters match closed
// date intervals and the all filter matches everything.
func (v *View) Filter(state State, now time.Time, meetings []Meeting) []Meeting {
	var from, to time.Time
	switch state.Filter {
	case FilterAll:
		out := append([]Meeting(nil), meetings...)
		sortMeetings(out)
		return out
	case FilterMonth:
		from = v.visibleMonth(state, now)
		to = from.AddDate(0, 1, -1)
	default:
		from, to = v.Window(state, now)
	}

	var out []Meeting
	for _, meeting := range meetings {
		date := scheduler.StartOfDay(meeting.Date, v.location)
		if date.Before(from) || date.After(to) {
			continue
		}
		out = append(out, meeting)
	}
	sortMeetings(out)
	return out
}

// FetchRange returns the closed date range a caller must load meetings for to
// render the state. The all filter returns a zero range, meaning everything.
func (v *View) FetchRange(state State, now time.Time) (time.Time, time.Time, bool) {
	if state.Filter == FilterAll {
		return time.Time{}, time.Time{}, false
	}
	start, end := v.Window(state, now)
	return start, end, true
}

func (v *View) visibleMonth(state State, now time.Time) time.Time {
	if state.VisibleMonth.IsZero() {
		return scheduler.StartOfMonth(now, v.location)
	}
	return scheduler.StartOfMonth(state.VisibleMonth, v.location)
}

func (v *View) monthGridBounds(month time.Time) (time.Time, time.Time) {
	first := month
	last := month.AddDate(0, 1, -1)
	lead := (int(first.Weekday()) - int(v.weekStart) + 7) % 7
	trail := (int(v.weekStart) + 6 - int(last.Weekday()) + 7) % 7
	return first.AddDate(0, 0, -lead), last.AddDate(0, 0, trail)
}

func sortMeetings(meetings []Meeting) {
	sort.SliceStable(meetings, func(i, j int) bool {
		if meetings[i].Start.Equal(meetings[j].Start) {
			return meetings[i].ID < meetings[j].ID
		}
		return meetings[i].Start.Before(meetings[j].Start)
	})
}
