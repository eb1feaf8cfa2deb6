package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/portal-scheduler/internal/application"
	"github.com/example/portal-scheduler/internal/calendar"
	"github.com/example/portal-scheduler/internal/persistence"
	"github.com/example/portal-scheduler/internal/scheduler"
)

var (
	requestCounter   uint64
	meetingCounter   uint64
	requesterCounter uint64
)

// JST is the zone fixtures are expressed in.
var JST = time.FixedZone("JST", 9*60*60)

var referenceTime = time.Date(2024, time.May, 1, 9, 0, 0, 0, JST)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It precedes BookingDay so fixture slots are always in the future.
func ReferenceTime() time.Time {
	return referenceTime
}

// BookingDay returns the Monday fixtures book slots on by default.
func BookingDay() time.Time {
	return time.Date(2024, time.May, 6, 0, 0, 0, 0, JST)
}

// At returns the given wall-clock time on BookingDay.
func At(hour, minute int) time.Time {
	day := BookingDay()
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, JST)
}

// NewRequesterID returns a deterministic UUID-shaped requester identifier.
func NewRequesterID() string {
	idx := atomic.AddUint64(&requesterCounter, 1)
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", idx)
}

// defaultSlot spreads fixtures over the sixteen default half-hour slots.
func defaultSlot(idx uint64) time.Time {
	return At(9, 0).Add(time.Duration((idx-1)%16) * 30 * time.Minute)
}

// ---------------------------- Policy fixtures ----------------------------

// PolicyOption configures the generated policy.
type PolicyOption func(*scheduler.Policy)

// NewPolicy returns the default policy with optional overrides.
func NewPolicy(opts ...PolicyOption) scheduler.Policy {
	policy := scheduler.DefaultPolicy()
	for _, opt := range opts {
		opt(&policy)
	}
	return policy
}

// WithSlotDuration overrides the slot duration.
func WithSlotDuration(minutes int) PolicyOption {
	return func(p *scheduler.Policy) {
		p.SlotDurationMinutes = minutes
	}
}

// WithDayHours enables the weekday with the given hours.
func WithDayHours(day time.Weekday, startHour, endHour int) PolicyOption {
	return func(p *scheduler.Policy) {
		p.Daily[day] = scheduler.DaySetting{Enabled: true, StartHour: startHour, EndHour: endHour}
	}
}

// WithBlockedDay blocks the weekday while keeping its hours.
func WithBlockedDay(day time.Weekday) PolicyOption {
	return func(p *scheduler.Policy) {
		setting := p.Daily[day]
		setting.Blocked = true
		p.Daily[day] = setting
	}
}

// WithDisabledDay disables the weekday.
func WithDisabledDay(day time.Weekday) PolicyOption {
	return func(p *scheduler.Policy) {
		setting := p.Daily[day]
		setting.Enabled = false
		p.Daily[day] = setting
	}
}

// ---------------------------- Request fixtures ---------------------------

// RequestFixture represents a deterministic meeting request that can be
// materialised for application or persistence tests.
type RequestFixture struct {
	ID              string
	RequesterID     string
	Start           time.Time
	DurationMinutes int
	Title           string
	Description     *string
	Status          persistence.RequestStatus
	RejectionReason *string
	CreatedAt       time.Time
	DecidedAt       *time.Time
}

// RequestOption configures the generated request fixture.
type RequestOption func(*RequestFixture)

// NewRequestFixture returns a pending request for a default slot on BookingDay.
func NewRequestFixture(opts ...RequestOption) RequestFixture {
	idx := atomic.AddUint64(&requestCounter, 1)
	fixture := RequestFixture{
		ID:              fmt.Sprintf("request-%03d", idx),
		RequesterID:     NewRequesterID(),
		Start:           defaultSlot(idx),
		DurationMinutes: scheduler.DefaultSlotDurationMinutes,
		Title:           fmt.Sprintf("Request %03d", idx),
		Status:          persistence.RequestPending,
		CreatedAt:       referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRequestID overrides the generated request ID.
func WithRequestID(id string) RequestOption {
	return func(f *RequestFixture) {
		f.ID = id
	}
}

// WithRequester overrides the requester ID.
func WithRequester(id string) RequestOption {
	return func(f *RequestFixture) {
		f.RequesterID = id
	}
}

// WithRequestStart overrides the slot start. The date follows the start.
func WithRequestStart(start time.Time) RequestOption {
	return func(f *RequestFixture) {
		f.Start = start
	}
}

// WithRequestDuration overrides the requested duration.
func WithRequestDuration(minutes int) RequestOption {
	return func(f *RequestFixture) {
		f.DurationMinutes = minutes
	}
}

// WithRequestTitle overrides the generated title.
func WithRequestTitle(title string) RequestOption {
	return func(f *RequestFixture) {
		f.Title = title
	}
}

// WithRequestDescription sets the optional description.
func WithRequestDescription(description string) RequestOption {
	return func(f *RequestFixture) {
		value := description
		f.Description = &value
	}
}

// WithRequestStatus overrides the status.
func WithRequestStatus(status persistence.RequestStatus) RequestOption {
	return func(f *RequestFixture) {
		f.Status = status
	}
}

// WithRequestCreatedAt sets the created timestamp on the fixture.
func WithRequestCreatedAt(t time.Time) RequestOption {
	return func(f *RequestFixture) {
		f.CreatedAt = t
	}
}

// Date returns the calendar day of the request.
func (f RequestFixture) Date() time.Time {
	return scheduler.StartOfDay(f.Start, f.Start.Location())
}

// End returns the end of the requested slot.
func (f RequestFixture) End() time.Time {
	return f.Start.Add(time.Duration(f.DurationMinutes) * time.Minute)
}

// Persistence returns the fixture as a persistence.MeetingRequest value.
func (f RequestFixture) Persistence() persistence.MeetingRequest {
	return persistence.MeetingRequest{
		ID:              f.ID,
		RequesterID:     f.RequesterID,
		Date:            f.Date(),
		Start:           f.Start,
		DurationMinutes: f.DurationMinutes,
		Title:           f.Title,
		Description:     copyStringPtr(f.Description),
		Status:          f.Status,
		RejectionReason: copyStringPtr(f.RejectionReason),
		CreatedAt:       f.CreatedAt,
		DecidedAt:       copyTimePtr(f.DecidedAt),
	}
}

// Application returns the fixture as an application.MeetingRequest value.
func (f RequestFixture) Application() application.MeetingRequest {
	return application.MeetingRequest{
		ID:              f.ID,
		RequesterID:     f.RequesterID,
		Date:            f.Date(),
		Start:           f.Start,
		DurationMinutes: f.DurationMinutes,
		Title:           f.Title,
		Description:     derefString(f.Description),
		Status:          application.RequestStatus(f.Status),
		RejectionReason: derefString(f.RejectionReason),
		CreatedAt:       f.CreatedAt,
		DecidedAt:       copyTimePtr(f.DecidedAt),
	}
}

// Input returns the submit input that would create this request.
func (f RequestFixture) Input() application.SubmitRequestInput {
	return application.SubmitRequestInput{
		RequesterID:     f.RequesterID,
		Date:            f.Start.Format(scheduler.DateLayout),
		StartTime:       f.Start.Format(scheduler.ClockLayout),
		DurationMinutes: f.DurationMinutes,
		Title:           f.Title,
		Description:     derefString(f.Description),
	}
}

// Principal returns the requester as a non-admin principal.
func (f RequestFixture) Principal() application.Principal {
	return application.Principal{UserID: f.RequesterID}
}

// Meeting returns the meeting a confirmation of this request would create.
func (f RequestFixture) Meeting(opts ...MeetingOption) MeetingFixture {
	base := []MeetingOption{
		WithMeetingRequest(f),
	}
	return NewMeetingFixture(append(base, opts...)...)
}

// ---------------------------- Meeting fixtures ---------------------------

// MeetingFixture represents a deterministic confirmed meeting.
type MeetingFixture struct {
	ID          string
	RequestID   string
	RequesterID string
	Start       time.Time
	End         time.Time
	Title       string
	Description *string
	CreatedAt   time.Time
}

// MeetingOption configures the generated meeting fixture.
type MeetingOption func(*MeetingFixture)

// NewMeetingFixture returns a confirmed meeting in a default slot on BookingDay.
func NewMeetingFixture(opts ...MeetingOption) MeetingFixture {
	idx := atomic.AddUint64(&meetingCounter, 1)
	start := defaultSlot(idx)
	fixture := MeetingFixture{
		ID:          fmt.Sprintf("meeting-%03d", idx),
		RequestID:   fmt.Sprintf("request-for-meeting-%03d", idx),
		RequesterID: NewRequesterID(),
		Start:       start,
		End:         start.Add(scheduler.DefaultSlotDurationMinutes * time.Minute),
		Title:       fmt.Sprintf("Meeting %03d", idx),
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMeetingID overrides the generated meeting ID.
func WithMeetingID(id string) MeetingOption {
	return func(f *MeetingFixture) {
		f.ID = id
	}
}

// WithMeetingInterval overrides the meeting's start and end.
func WithMeetingInterval(start, end time.Time) MeetingOption {
	return func(f *MeetingFixture) {
		f.Start = start
		f.End = end
	}
}

// WithMeetingTitle overrides the generated title.
func WithMeetingTitle(title string) MeetingOption {
	return func(f *MeetingFixture) {
		f.Title = title
	}
}

// WithMeetingRequest copies the slot and requester of a request fixture.
func WithMeetingRequest(request RequestFixture) MeetingOption {
	return func(f *MeetingFixture) {
		f.RequestID = request.ID
		f.RequesterID = request.RequesterID
		f.Start = request.Start
		f.End = request.End()
		f.Title = request.Title
		f.Description = copyStringPtr(request.Description)
	}
}

// Date returns the calendar day of the meeting.
func (f MeetingFixture) Date() time.Time {
	return scheduler.StartOfDay(f.Start, f.Start.Location())
}

// Persistence returns the fixture as a persistence.ConfirmedMeeting value.
func (f MeetingFixture) Persistence() persistence.ConfirmedMeeting {
	return persistence.ConfirmedMeeting{
		ID:          f.ID,
		RequestID:   f.RequestID,
		RequesterID: f.RequesterID,
		MeetingDate: f.Date(),
		Start:       f.Start,
		End:         f.End,
		Title:       f.Title,
		Description: copyStringPtr(f.Description),
		CreatedAt:   f.CreatedAt,
	}
}

// Application returns the fixture as an application.ConfirmedMeeting value.
func (f MeetingFixture) Application() application.ConfirmedMeeting {
	return application.ConfirmedMeeting{
		ID:          f.ID,
		RequestID:   f.RequestID,
		RequesterID: f.RequesterID,
		Date:        f.Date(),
		Start:       f.Start,
		End:         f.End,
		Title:       f.Title,
		Description: derefString(f.Description),
		CreatedAt:   f.CreatedAt,
	}
}

// Calendar returns the fixture as a calendar.Meeting value.
func (f MeetingFixture) Calendar() calendar.Meeting {
	return calendar.Meeting{
		ID:          f.ID,
		RequesterID: f.RequesterID,
		Title:       f.Title,
		Description: derefString(f.Description),
		Date:        f.Date(),
		Start:       f.Start,
		End:         f.End,
		CreatedAt:   f.CreatedAt,
	}
}

// Confirmation returns the store confirmation that books this meeting.
func (f MeetingFixture) Confirmation(at time.Time) persistence.Confirmation {
	return persistence.Confirmation{
		RequestID:   f.RequestID,
		Meeting:     f.Persistence(),
		ConfirmedAt: at,
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func derefString(src *string) string {
	if src == nil {
		return ""
	}
	return *src
}
