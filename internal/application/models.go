package application

import (
	"context"
	"time"

	"github.com/example/portal-scheduler/internal/scheduler"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// RequestStatus is the lifecycle state of a meeting request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestConfirmed RequestStatus = "confirmed"
	RequestRejected  RequestStatus = "rejected"
)

// Terminal reports whether the status allows no further transition.
func (s RequestStatus) Terminal() bool {
	return s == RequestConfirmed || s == RequestRejected
}

// ParseRequestStatus resolves the wire name of a status. An empty value means no filter.
func ParseRequestStatus(value string) (RequestStatus, bool) {
	switch RequestStatus(value) {
	case "":
		return "", true
	case RequestPending, RequestConfirmed, RequestRejected:
		return RequestStatus(value), true
	}
	return "", false
}

// MeetingRequest is a requester's proposal for one generated slot.
type MeetingRequest struct {
	ID              string
	RequesterID     string
	Date            time.Time
	Start           time.Time
	DurationMinutes int
	Title           string
	Description     string
	Status          RequestStatus
	RejectionReason string
	CreatedAt       time.Time
	DecidedAt       *time.Time
}

// End returns the instant the requested slot finishes.
func (r MeetingRequest) End() time.Time {
	return r.Start.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// ConfirmedMeeting is a booked meeting created by confirming a request.
type ConfirmedMeeting struct {
	ID          string
	RequestID   string
	RequesterID string
	Date        time.Time
	Start       time.Time
	End         time.Time
	Title       string
	Description string
	CreatedAt   time.Time
}

// Booking returns the occupied interval of the meeting.
func (m ConfirmedMeeting) Booking() scheduler.Booking {
	return scheduler.Booking{MeetingID: m.ID, Interval: scheduler.Interval{Start: m.Start, End: m.End}}
}

// SlotList is the result of a slot query. It echoes the query parameters so
// callers can discard results that no longer match what they display.
type SlotList struct {
	Date                time.Time
	SlotDurationMinutes int
	Slots               []scheduler.TimeSlot
	GeneratedAt         time.Time
}

// SubmitRequestInput captures caller provided request fields. Date uses the
// YYYY-MM-DD layout and StartTime the HH:MM layout. A zero DurationMinutes
// selects the policy's slot duration.
type SubmitRequestInput struct {
	RequesterID     string
	Date            string
	StartTime       string
	DurationMinutes int
	Title           string
	Description     string
}

// SubmitRequestParams wraps the data required to submit a request.
type SubmitRequestParams struct {
	Principal Principal
	Input     SubmitRequestInput
}

// DecideRequestParams identifies the request an administrator confirms or rejects.
type DecideRequestParams struct {
	Principal Principal
	RequestID string
	Reason    string
}

// ListRequestsParams filters request listings. Non-admin principals only
// ever see their own requests.
type ListRequestsParams struct {
	Principal   Principal
	RequesterID string
	Status      RequestStatus
}

// RequestFilter narrows repository request queries.
type RequestFilter struct {
	RequesterID string
	Status      RequestStatus
}

// MeetingRange narrows repository meeting queries to an inclusive date range.
// Nil bounds are open.
type MeetingRange struct {
	From *time.Time
	To   *time.Time
}

// Confirmation is the atomic confirm operation handed to the repository.
type Confirmation struct {
	RequestID   string
	Meeting     ConfirmedMeeting
	ConfirmedAt time.Time
}

// BookingRepository abstracts persistence of requests and confirmed meetings.
// ConfirmRequest must reject an overlapping meeting on the same date and a
// request that is no longer pending without changing any state.
type BookingRepository interface {
	CreateRequest(ctx context.Context, request MeetingRequest) (MeetingRequest, error)
	GetRequest(ctx context.Context, id string) (MeetingRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]MeetingRequest, error)
	RejectRequest(ctx context.Context, id, reason string, decidedAt time.Time) (MeetingRequest, error)
	ConfirmRequest(ctx context.Context, confirmation Confirmation) (ConfirmedMeeting, error)
	GetConfirmedMeeting(ctx context.Context, id string) (ConfirmedMeeting, error)
	ListConfirmedMeetings(ctx context.Context, r MeetingRange) ([]ConfirmedMeeting, error)
	DeleteConfirmedMeeting(ctx context.Context, id string) error
	DeleteAllConfirmedMeetings(ctx context.Context) (int, error)
}

// PolicyStore loads and saves the process-wide availability policy.
type PolicyStore interface {
	LoadPolicy(ctx context.Context) (scheduler.Policy, error)
	SavePolicy(ctx context.Context, policy scheduler.Policy) error
}

// RefreshPublisher is notified after every durable booking mutation.
type RefreshPublisher interface {
	Publish(ctx context.Context)
}

// BookingRecorder receives booking workflow measurements.
type BookingRecorder interface {
	ObserveSubmitted(status string)
	ObserveDecision(outcome string)
	ObserveDeleted(mode string, count int)
	ObserveConfirmLatency(seconds float64)
	ObserveSlotCache(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSubmitted(string) {}
func (nopRecorder) ObserveDecision(string) {}
func (nopRecorder) ObserveDeleted(string, int) {}
func (nopRecorder) ObserveConfirmLatency(float64) {}
func (nopRecorder) ObserveSlotCache(bool) {}
