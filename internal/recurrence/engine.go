package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/portal-scheduler/internal/scheduler"
)

var jst = time.FixedZone("JST", 9*60*60)

// DefaultMaxWindowDays bounds a single expansion request.
const DefaultMaxWindowDays = 366

// ErrInvalidWindow indicates the requested range ends before it starts.
var ErrInvalidWindow = errors.New("recurrence: window end precedes start")

// ErrWindowTooLarge indicates the requested range exceeds the configured limit.
var ErrWindowTooLarge = errors.New("recurrence: window exceeds maximum span")

// OpenDay is a calendar date on which the availability policy accepts bookings.
type OpenDay struct {
	Date    time.Time
	Opens   time.Time
	Closes  time.Time
	Setting scheduler.DaySetting
}

// Engine expands the weekly availability policy into concrete open days.
type Engine struct {
	location      *time.Location
	maxWindowDays int
}

// NewEngine constructs an Engine that normalizes results to the provided location.
// If loc is nil, Asia/Tokyo (JST) is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = jst
	}
	return &Engine{location: loc, maxWindowDays: DefaultMaxWindowDays}
}

// Location returns the zone all results are expressed in.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return jst
	}
	return e.location
}

// OpenDays lists the dates within [from, to] (inclusive, by calendar day) on
// which the policy has an available weekday.
//
// The weekly policy is expressed as an RRULE with FREQ=WEEKLY and one BYDAY
// entry per available weekday; its occurrences between the bounds are the
// open days.
func (e *Engine) OpenDays(policy scheduler.Policy, from, to time.Time) ([]OpenDay, error) {
	loc := e.Location()
	start := scheduler.StartOfDay(from, loc)
	end := scheduler.StartOfDay(to, loc)
	if end.Before(start) {
		return nil, ErrInvalidWindow
	}
	if limit := e.maxWindowDays; limit > 0 && end.Sub(start) > time.Duration(limit)*24*time.Hour {
		return nil, ErrWindowTooLarge
	}

	rule, err := e.weeklyRule(policy, start, end)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, nil
	}

	dates := rule.Between(start, end, true)
	days := make([]OpenDay, 0, len(dates))
	for _, date := range dates {
		days = append(days, openDay(policy, scheduler.StartOfDay(date, loc)))
	}
	return days, nil
}

// NextOpenDay returns the first open day on or after from. The boolean is
// false when the policy has no available weekday.
func (e *Engine) NextOpenDay(policy scheduler.Policy, from time.Time) (OpenDay, bool, error) {
	loc := e.Location()
	start := scheduler.StartOfDay(from, loc)

	rule, err := e.weeklyRule(policy, start, time.Time{})
	if err != nil {
		return OpenDay{}, false, err
	}
	if rule == nil {
		return OpenDay{}, false, nil
	}

	next := rule.After(start, true)
	if next.IsZero() {
		return OpenDay{}, false, nil
	}
	return openDay(policy, scheduler.StartOfDay(next, loc)), true, nil
}

func (e *Engine) weeklyRule(policy scheduler.Policy, start, until time.Time) (*rrule.RRule, error) {
	weekdays := policy.AvailableWeekdays()
	if len(weekdays) == 0 {
		return nil, nil
	}

	byDay := make([]rrule.Weekday, 0, len(weekdays))
	for _, day := range weekdays {
		byDay = append(byDay, toRRuleWeekday(day))
	}

	opts := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   start,
		Byweekday: byDay,
		Wkst:      rrule.MO,
	}
	if !until.IsZero() {
		opts.Until = until
	}

	rule, err := rrule.NewRRule(opts)
	if err != nil {
		return nil, fmt.Errorf("recurrence: build weekly rule: %w", err)
	}
	return rule, nil
}

func openDay(policy scheduler.Policy, date time.Time) OpenDay {
	setting := policy.Setting(date.Weekday())
	y, m, d := date.Date()
	return OpenDay{
		Date:    date,
		Opens:   time.Date(y, m, d, setting.StartHour, 0, 0, 0, date.Location()),
		Closes:  time.Date(y, m, d, setting.EndHour, 0, 0, 0, date.Location()),
		Setting: setting,
	}
}

func toRRuleWeekday(day time.Weekday) rrule.Weekday {
	switch day {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
