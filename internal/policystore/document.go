// Package policystore persists the availability policy. Every store
// serializes the same Document, which keys day settings by weekday name so
// files stay readable and hand-editable.
package policystore

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/portal-scheduler/internal/scheduler"
)

// DayDocument is the serialized form of a scheduler.DaySetting.
type DayDocument struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	Blocked   bool `yaml:"blocked" json:"blocked"`
	StartHour int  `yaml:"start_hour" json:"start_hour"`
	EndHour   int  `yaml:"end_hour" json:"end_hour"`
}

// Document is the serialized form of a scheduler.Policy.
type Document struct {
	SlotDurationMinutes int                    `yaml:"slot_duration_minutes" json:"slot_duration_minutes"`
	Days                map[string]DayDocument `yaml:"days" json:"days"`
}

// FromPolicy converts a policy into its document form.
func FromPolicy(policy scheduler.Policy) Document {
	doc := Document{
		SlotDurationMinutes: policy.SlotDurationMinutes,
		Days:                make(map[string]DayDocument, len(policy.Daily)),
	}
	for day, setting := range policy.Daily {
		doc.Days[scheduler.WeekdayName(day)] = DayDocument{
			Enabled:   setting.Enabled,
			Blocked:   setting.Blocked,
			StartHour: setting.StartHour,
			EndHour:   setting.EndHour,
		}
	}
	return doc
}

// Policy converts the document back into a policy. Unknown weekday names are
// an error; weekdays the document omits stay missing so callers can decide
// whether to normalize.
func (d Document) Policy() (scheduler.Policy, error) {
	policy := scheduler.Policy{
		SlotDurationMinutes: d.SlotDurationMinutes,
		Daily:               make(map[time.Weekday]scheduler.DaySetting, len(d.Days)),
	}

	names := make([]string, 0, len(d.Days))
	for name := range d.Days {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		day, ok := scheduler.ParseWeekday(name)
		if !ok {
			return scheduler.Policy{}, fmt.Errorf("policystore: unknown weekday %q", name)
		}
		if _, dup := policy.Daily[day]; dup {
			return scheduler.Policy{}, fmt.Errorf("policystore: weekday %q configured twice", name)
		}
		setting := d.Days[name]
		policy.Daily[day] = scheduler.DaySetting{
			Enabled:   setting.Enabled,
			Blocked:   setting.Blocked,
			StartHour: setting.StartHour,
			EndHour:   setting.EndHour,
		}
	}
	return policy, nil
}
