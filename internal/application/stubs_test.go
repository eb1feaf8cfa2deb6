package application

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/portal-scheduler/internal/persistence"
	"github.com/example/portal-scheduler/internal/scheduler"
)

var jst = time.FixedZone("JST", 9*60*60)

const requesterID = "3f1c6a52-8a8e-4b8e-9d8e-2b9f5a0c1d11"

var (
	admin     = Principal{UserID: "admin-1", IsAdmin: true}
	requester = Principal{UserID: requesterID}
)

// monday is 2024-05-06, a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2024, 5, 6, hour, minute, 0, 0, jst)
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 9, 0, 0, 0, jst)
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

// bookingRepoStub mimics the atomic confirmation contract of the real stores.
type bookingRepoStub struct {
	mu       sync.Mutex
	requests map[string]MeetingRequest
	meetings map[string]ConfirmedMeeting

	listErr          error
	createErr        error
	overlapOnConfirm bool
	confirmCalls     int
}

func newBookingRepoStub() *bookingRepoStub {
	return &bookingRepoStub{
		requests: make(map[string]MeetingRequest),
		meetings: make(map[string]ConfirmedMeeting),
	}
}

func (s *bookingRepoStub) CreateRequest(ctx context.Context, request MeetingRequest) (MeetingRequest, error) {
	if s.createErr != nil {
		return MeetingRequest{}, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; ok {
		return MeetingRequest{}, persistence.ErrDuplicate
	}
	s.requests[request.ID] = request
	return request, nil
}

func (s *bookingRepoStub) GetRequest(ctx context.Context, id string) (MeetingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return MeetingRequest{}, persistence.ErrNotFound
	}
	return request, nil
}

func (s *bookingRepoStub) ListRequests(ctx context.Context, filter RequestFilter) ([]MeetingRequest, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MeetingRequest
	for _, request := range s.requests {
		if filter.RequesterID != "" && request.RequesterID != filter.RequesterID {
			continue
		}
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		out = append(out, request)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *bookingRepoStub) RejectRequest(ctx context.Context, id, reason string, decidedAt time.Time) (MeetingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return MeetingRequest{}, persistence.ErrNotFound
	}
	if request.Status != RequestPending {
		return MeetingRequest{}, persistence.ErrStateConflict
	}
	request.Status = RequestRejected
	request.RejectionReason = reason
	request.DecidedAt = &decidedAt
	s.requests[id] = request
	return request, nil
}

func (s *bookingRepoStub) ConfirmRequest(ctx context.Context, confirmation Confirmation) (ConfirmedMeeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmCalls++
	request, ok := s.requests[confirmation.RequestID]
	if !ok {
		return ConfirmedMeeting{}, persistence.ErrNotFound
	}
	if request.Status != RequestPending {
		return ConfirmedMeeting{}, persistence.ErrStateConflict
	}
	if s.overlapOnConfirm {
		return ConfirmedMeeting{}, persistence.ErrOverlap
	}
	candidate := scheduler.Interval{Start: confirmation.Meeting.Start, End: confirmation.Meeting.End}
	for _, existing := range s.meetings {
		if !scheduler.SameDay(existing.Date, confirmation.Meeting.Date, nil) {
			continue
		}
		if candidate.Overlaps(existing.Booking().Interval) {
			return ConfirmedMeeting{}, persistence.ErrOverlap
		}
	}
	s.meetings[confirmation.Meeting.ID] = confirmation.Meeting
	request.Status = RequestConfirmed
	confirmedAt := confirmation.ConfirmedAt
	request.DecidedAt = &confirmedAt
	s.requests[request.ID] = request
	return confirmation.Meeting, nil
}

func (s *bookingRepoStub) GetConfirmedMeeting(ctx context.Context, id string) (ConfirmedMeeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meeting, ok := s.meetings[id]
	if !ok {
		return ConfirmedMeeting{}, persistence.ErrNotFound
	}
	return meeting, nil
}

func (s *bookingRepoStub) ListConfirmedMeetings(ctx context.Context, r MeetingRange) ([]ConfirmedMeeting, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ConfirmedMeeting
	for _, meeting := range s.meetings {
		key := scheduler.DateKey(meeting.Date, nil)
		if r.From != nil && key < scheduler.DateKey(*r.From, nil) {
			continue
		}
		if r.To != nil && key > scheduler.DateKey(*r.To, nil) {
			continue
		}
		out = append(out, meeting)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *bookingRepoStub) DeleteConfirmedMeeting(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.meetings, id)
	return nil
}

func (s *bookingRepoStub) DeleteAllConfirmedMeetings(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := len(s.meetings)
	s.meetings = make(map[string]ConfirmedMeeting)
	return removed, nil
}

func (s *bookingRepoStub) addMeeting(id string, start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[id] = ConfirmedMeeting{
		ID:          id,
		RequestID:   "req-" + id,
		RequesterID: requesterID,
		Date:        scheduler.StartOfDay(start, nil),
		Start:       start,
		End:         end,
		Title:       "Existing",
	}
}

func (s *bookingRepoStub) meetingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.meetings)
}

type policyStoreStub struct {
	mu      sync.Mutex
	policy  *scheduler.Policy
	loadErr error
	saveErr error
	saves   int
}

func (p *policyStoreStub) LoadPolicy(ctx context.Context) (scheduler.Policy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return scheduler.Policy{}, p.loadErr
	}
	if p.policy == nil {
		return scheduler.DefaultPolicy(), nil
	}
	return p.policy.Clone(), nil
}

func (p *policyStoreStub) SavePolicy(ctx context.Context, policy scheduler.Policy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	clone := policy.Clone()
	p.policy = &clone
	p.saves++
	return nil
}

// publisherStub counts publishes and forwards them to subscribers.
type publisherStub struct {
	mu          sync.Mutex
	count       int
	subscribers []func(ctx context.Context)
}

func (p *publisherStub) Publish(ctx context.Context) {
	p.mu.Lock()
	p.count++
	subscribers := append(([]func(ctx context.Context))(nil), p.subscribers...)
	p.mu.Unlock()
	for _, fn := range subscribers {
		fn(ctx)
	}
}

func (p *publisherStub) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

type recorderStub struct {
	mu        sync.Mutex
	decisions map[string]int
	submitted map[string]int
	deleted   map[string]int
	latencies []float64
}

func newRecorderStub() *recorderStub {
	return &recorderStub{decisions: map[string]int{}, submitted: map[string]int{}, deleted: map[string]int{}}
}

func (r *recorderStub) ObserveSubmitted(status string) {
	r.mu.Lock()
	r.submitted[status]++
	r.mu.Unlock()
}

func (r *recorderStub) ObserveDecision(outcome string) {
	r.mu.Lock()
	r.decisions[outcome]++
	r.mu.Unlock()
}

func (r *recorderStub) ObserveDeleted(mode string, count int) {
	r.mu.Lock()
	r.deleted[mode] += count
	r.mu.Unlock()
}

func (r *recorderStub) ObserveConfirmLatency(seconds float64) {
	r.mu.Lock()
	r.latencies = append(r.latencies, seconds)
	r.mu.Unlock()
}

func (r *recorderStub) ObserveSlotCache(bool) {}

type harness struct {
	repo         *bookingRepoStub
	policies     *policyStoreStub
	publisher    *publisherStub
	recorder     *recorderStub
	availability *AvailabilityService
	bookings     *BookingService
}

func newHarness() *harness {
	repo := newBookingRepoStub()
	policies := &policyStoreStub{}
	publisher := &publisherStub{}
	recorder := newRecorderStub()

	availability := NewAvailabilityService(policies, repo, jst, fixedNow).
		WithPublisher(publisher).
		WithRecorder(recorder)
	bookings := NewBookingService(repo, availability, sequentialIDs("id"), fixedNow).
		WithPublisher(publisher).
		WithRecorder(recorder)
	publisher.subscribers = append(publisher.subscribers, availability.Invalidate)

	return &harness{
		repo:         repo,
		policies:     policies,
		publisher:    publisher,
		recorder:     recorder,
		availability: availability,
		bookings:     bookings,
	}
}

func (h *harness) submit(ctx context.Context, start string) (MeetingRequest, error) {
	return h.bookings.SubmitRequest(ctx, SubmitRequestParams{
		Principal: requester,
		Input: SubmitRequestInput{
			RequesterID: requesterID,
			Date:        "2024-05-06",
			StartTime:   start,
			Title:       "Quarterly review",
		},
	})
}
