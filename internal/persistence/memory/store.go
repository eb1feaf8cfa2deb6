// Package memory provides a process-local BookingRepository guarded by a
// single RWMutex. Reads observe consistent snapshots and every mutation,
// including the confirmation compare-and-swap, happens under the write lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/portal-scheduler/internal/persistence"
	"github.com/example/portal-scheduler/internal/scheduler"
)

// Store is an in-memory persistence.BookingRepository.
type Store struct {
	mu       sync.RWMutex
	requests map[string]persistence.MeetingRequest
	meetings map[string]persistence.ConfirmedMeeting
}

var _ persistence.BookingRepository = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		requests: make(map[string]persistence.MeetingRequest),
		meetings: make(map[string]persistence.ConfirmedMeeting),
	}
}

// Close releases resources held by the store. No-op for the in-memory implementation.
func (s *Store) Close() error {
	return nil
}

// CreateRequest stores a new pending request.
func (s *Store) CreateRequest(ctx context.Context, request persistence.MeetingRequest) error {
	if request.ID == "" || !request.Status.Valid() {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[request.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (persistence.MeetingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[id]
	if !ok {
		return persistence.MeetingRequest{}, persistence.ErrNotFound
	}
	return cloneRequest(request), nil
}

// ListRequests returns matching requests ordered by CreatedAt ascending.
func (s *Store) ListRequests(ctx context.Context, filter persistence.RequestFilter) ([]persistence.MeetingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requests := make([]persistence.MeetingRequest, 0, len(s.requests))
	for _, request := range s.requests {
		if filter.RequesterID != "" && request.RequesterID != filter.RequesterID {
			continue
		}
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		requests = append(requests, cloneRequest(request))
	}

	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests, nil
}

// RejectRequest moves a pending request to rejected.
func (s *Store) RejectRequest(ctx context.Context, id string, reason *string, decidedAt time.Time) (persistence.MeetingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok {
		return persistence.MeetingRequest{}, persistence.ErrNotFound
	}
	if request.Status != persistence.RequestPending {
		return persistence.MeetingRequest{}, persistence.ErrStateConflict
	}

	request.Status = persistence.RequestRejected
	request.RejectionReason = cloneString(reason)
	decided := decidedAt
	request.DecidedAt = &decided
	s.requests[id] = request
	return cloneRequest(request), nil
}

// ConfirmRequest atomically confirms a pending request and books its meeting.
func (s *Store) ConfirmRequest(ctx context.Context, confirmation persistence.Confirmation) (persistence.ConfirmedMeeting, error) {
	meeting := confirmation.Meeting
	if meeting.ID == "" || !meeting.Start.Before(meeting.End) {
		return persistence.ConfirmedMeeting{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[confirmation.RequestID]
	if !ok {
		return persistence.ConfirmedMeeting{}, persistence.ErrNotFound
	}
	if request.Status != persistence.RequestPending {
		return persistence.ConfirmedMeeting{}, persistence.ErrStateConflict
	}
	if _, exists := s.meetings[meeting.ID]; exists {
		return persistence.ConfirmedMeeting{}, persistence.ErrDuplicate
	}

	candidate := scheduler.Interval{Start: meeting.Start, End: meeting.End}
	dateKey := scheduler.DateKey(meeting.MeetingDate, nil)
	for _, existing := range s.meetings {
		if scheduler.DateKey(existing.MeetingDate, nil) != dateKey {
			continue
		}
		if candidate.Overlaps(scheduler.Interval{Start: existing.Start, End: existing.End}) {
			return persistence.ConfirmedMeeting{}, persistence.ErrOverlap
		}
	}

	s.meetings[meeting.ID] = cloneMeeting(meeting)

	request.Status = persistence.RequestConfirmed
	decided := confirmation.ConfirmedAt
	request.DecidedAt = &decided
	s.requests[request.ID] = request

	return cloneMeeting(meeting), nil
}

// GetConfirmedMeeting retrieves a confirmed meeting by ID.
func (s *Store) GetConfirmedMeeting(ctx context.Context, id string) (persistence.ConfirmedMeeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meeting, ok := s.meetings[id]
	if !ok {
		return persistence.ConfirmedMeeting{}, persistence.ErrNotFound
	}
	return cloneMeeting(meeting), nil
}

// ListConfirmedMeetings returns meetings within the filter's inclusive date
// range ordered by start time.
func (s *Store) ListConfirmedMeetings(ctx context.Context, filter persistence.MeetingFilter) ([]persistence.ConfirmedMeeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var from, to string
	if filter.From != nil {
		from = scheduler.DateKey(*filter.From, nil)
	}
	if filter.To != nil {
		to = scheduler.DateKey(*filter.To, nil)
	}

	meetings := make([]persistence.ConfirmedMeeting, 0, len(s.meetings))
	for _, meeting := range s.meetings {
		key := scheduler.DateKey(meeting.MeetingDate, nil)
		if from != "" && key < from {
			continue
		}
		if to != "" && key > to {
			continue
		}
		meetings = append(meetings, cloneMeeting(meeting))
	}

	sort.Slice(meetings, func(i, j int) bool {
		if meetings[i].Start.Equal(meetings[j].Start) {
			return meetings[i].ID < meetings[j].ID
		}
		return meetings[i].Start.Before(meetings[j].Start)
	})
	return meetings, nil
}

// DeleteConfirmedMeeting removes a confirmed meeting by ID.
func (s *Store) DeleteConfirmedMeeting(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.meetings, id)
	return nil
}

// DeleteAllConfirmedMeetings removes every confirmed meeting and reports how many were removed.
func (s *Store) DeleteAllConfirmedMeetings(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.meetings)
	s.meetings = make(map[string]persistence.ConfirmedMeeting)
	return removed, nil
}

func cloneRequest(request persistence.MeetingRequest) persistence.MeetingRequest {
	clone := request
	clone.Description = cloneString(request.Description)
	clone.RejectionReason = cloneString(request.RejectionReason)
	if request.DecidedAt != nil {
		decided := *request.DecidedAt
		clone.DecidedAt = &decided
	}
	return clone
}

func cloneMeeting(meeting persistence.ConfirmedMeeting) persistence.ConfirmedMeeting {
	clone := meeting
	clone.Description = cloneString(meeting.Description)
	return clone
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
