package scheduler

import (
	"strings"
	"time"
)

// DefaultSlotDurationMinutes is the slot length used by DefaultPolicy.
const DefaultSlotDurationMinutes = 30

// Weekdays lists every weekday in Monday-first order.
var Weekdays = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
	time.Sunday,
}

// DaySetting describes the bookable window configured for one weekday.
type DaySetting struct {
	Enabled   bool
	Blocked   bool
	StartHour int
	EndHour   int
}

// Available reports whether meetings may be booked on a day with this setting.
func (d DaySetting) Available() bool {
	return d.Enabled && !d.Blocked
}

// Policy is the recurring, per-weekday availability rule set maintained by administrators.
type Policy struct {
	SlotDurationMinutes int
	Daily               map[time.Weekday]DaySetting
}

// DefaultPolicy returns the policy used before an administrator saves one:
// Monday to Friday open from 09:00 to 17:00, weekends disabled.
func DefaultPolicy() Policy {
	daily := make(map[time.Weekday]DaySetting, len(Weekdays))
	for _, day := range Weekdays {
		daily[day] = DaySetting{
			Enabled:   day != time.Saturday && day != time.Sunday,
			StartHour: 9,
			EndHour:   17,
		}
	}
	return Policy{
		SlotDurationMinutes: DefaultSlotDurationMinutes,
		Daily:               daily,
	}
}

// Setting returns the configuration for the weekday. Missing weekdays are reported as disabled.
func (p Policy) Setting(day time.Weekday) DaySetting {
	if p.Daily == nil {
		return DaySetting{}
	}
	return p.Daily[day]
}

// SlotDuration returns the configured slot length.
func (p Policy) SlotDuration() time.Duration {
	return time.Duration(p.SlotDurationMinutes) * time.Minute
}

// AvailableWeekdays returns the weekdays that can receive bookings, Monday first.
func (p Policy) AvailableWeekdays() []time.Weekday {
	days := make([]time.Weekday, 0, len(Weekdays))
	for _, day := range Weekdays {
		if p.Setting(day).Available() {
			days = append(days, day)
		}
	}
	return days
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p Policy) Clone() Policy {
	out := Policy{SlotDurationMinutes: p.SlotDurationMinutes}
	if p.Daily != nil {
		out.Daily = make(map[time.Weekday]DaySetting, len(p.Daily))
		for day, setting := range p.Daily {
			out.Daily[day] = setting
		}
	}
	return out
}

// Normalize fills weekdays missing from the policy with the defaults and
// replaces a non-positive slot duration with DefaultSlotDurationMinutes.
func (p Policy) Normalize() Policy {
	out := p.Clone()
	defaults := DefaultPolicy()
	if out.Daily == nil {
		out.Daily = make(map[time.Weekday]DaySetting, len(Weekdays))
	}
	for _, day := range Weekdays {
		if _, ok := out.Daily[day]; !ok {
			out.Daily[day] = defaults.Daily[day]
		}
	}
	if out.SlotDurationMinutes <= 0 {
		out.SlotDurationMinutes = DefaultSlotDurationMinutes
	}
	return out
}

// Validate reports policy problems keyed by field path, such as
// "daily.monday.end_hour". An empty result means the policy is usable.
func (p Policy) Validate() map[string]string {
	problems := make(map[string]string)
	if p.SlotDurationMinutes <= 0 {
		problems["slot_duration_minutes"] = "slot duration must be positive"
	} else if p.SlotDurationMinutes > 24*60 {
		problems["slot_duration_minutes"] = "slot duration must not exceed one day"
	}
	if len(p.Daily) != len(Weekdays) {
		problems["daily"] = "all seven weekdays must be configured"
	}
	for _, day := range Weekdays {
		setting, ok := p.Daily[day]
		if !ok {
			continue
		}
		prefix := "daily." + WeekdayName(day)
		if setting.StartHour < 0 || setting.StartHour > 23 {
			problems[prefix+".start_hour"] = "hour must be between 0 and 23"
		}
		if setting.EndHour < 0 || setting.EndHour > 23 {
			problems[prefix+".end_hour"] = "hour must be between 0 and 23"
		}
		if setting.Available() && setting.StartHour >= setting.EndHour {
			problems[prefix+".end_hour"] = "end hour must be after start hour"
		}
	}
	return problems
}

// WeekdayName returns the lower-case English name used in configuration keys.
func WeekdayName(day time.Weekday) string {
	return strings.ToLower(day.String())
}

// ParseWeekday resolves a weekday name (case-insensitive, full or three-letter form).
func ParseWeekday(name string) (time.Weekday, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, day := range Weekdays {
		full := WeekdayName(day)
		if normalized == full || normalized == full[:3] {
			return day, true
		}
	}
	return time.Sunday, false
}
