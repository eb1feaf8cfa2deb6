package persistence

import "time"

// RequestStatus is the lifecycle state of a meeting request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestConfirmed RequestStatus = "confirmed"
	RequestRejected  RequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestConfirmed || s == RequestRejected
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestConfirmed, RequestRejected:
		return true
	}
	return false
}

// MeetingRequest is a requester's proposal for a slot, awaiting administrator review.
type MeetingRequest struct {
	ID              string
	RequesterID     string
	Date            time.Time
	Start           time.Time
	DurationMinutes int
	Title           string
	Description     *string
	Status          RequestStatus
	RejectionReason *string
	CreatedAt       time.Time
	DecidedAt       *time.Time
}

// End returns the instant the requested slot finishes.
func (r MeetingRequest) End() time.Time {
	return r.Start.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// ConfirmedMeeting is a booked meeting. It is created only by confirming a request.
type ConfirmedMeeting struct {
	ID          string
	RequestID   string
	RequesterID string
	MeetingDate time.Time
	Start       time.Time
	End         time.Time
	Title       string
	Description *string
	CreatedAt   time.Time
}

// Confirmation carries everything a store needs to atomically confirm a request.
type Confirmation struct {
	RequestID   string
	Meeting     ConfirmedMeeting
	ConfirmedAt time.Time
}
