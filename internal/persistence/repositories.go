package persistence

import (
	"context"
	"time"
)

// RequestFilter narrows request queries. Zero values match everything.
type RequestFilter struct {
	RequesterID string
	Status      RequestStatus
}

// MeetingFilter narrows confirmed meeting queries to an inclusive date range.
type MeetingFilter struct {
	From *time.Time
	To   *time.Time
}

// BookingRepository stores meeting requests and confirmed meetings.
//
// ConfirmRequest is the authoritative double-booking guard: in a single atomic
// step it verifies the request is still pending, verifies no confirmed meeting
// on the same date overlaps the new one, inserts the meeting and marks the
// request confirmed. It returns ErrStateConflict or ErrOverlap otherwise and
// leaves the store unchanged.
type BookingRepository interface {
	CreateRequest(ctx context.Context, request MeetingRequest) error
	GetRequest(ctx context.Context, id string) (MeetingRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]MeetingRequest, error)
	RejectRequest(ctx context.Context, id string, reason *string, decidedAt time.Time) (MeetingRequest, error)
	ConfirmRequest(ctx context.Context, confirmation Confirmation) (ConfirmedMeeting, error)

	GetConfirmedMeeting(ctx context.Context, id string) (ConfirmedMeeting, error)
	ListConfirmedMeetings(ctx context.Context, filter MeetingFilter) ([]ConfirmedMeeting, error)
	DeleteConfirmedMeeting(ctx context.Context, id string) error
	DeleteAllConfirmedMeetings(ctx context.Context) (int, error)
}
