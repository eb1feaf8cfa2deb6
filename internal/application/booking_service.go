package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/portal-scheduler/internal/persistence"
	"github.com/example/portal-scheduler/internal/scheduler"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxReasonLength      = 500

	// ConflictRejectionReason is recorded on requests rejected because their slot was taken.
	ConflictRejectionReason = "slot already booked"
)

// BookingService runs the request, review and confirmation workflow.
//
// Confirmation is the only place where double-booking is prevented: requests
// for the same date are confirmed one at a time in this process and the
// repository re-checks the overlap atomically, which covers other processes
// sharing the store.
type BookingService struct {
	bookings     BookingRepository
	availability *AvailabilityService
	publisher    RefreshPublisher
	recorder     BookingRecorder
	tracer       trace.Tracer
	locks        *dateLocks
	grace        time.Duration
	wait         func(ctx context.Context, d time.Duration)
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(bookings BookingRepository, availability *AvailabilityService, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, availability, idGenerator, now, nil)
}

// NewBookingServiceWithLogger constructs a booking service with a specified logger.
func NewBookingServiceWithLogger(bookings BookingRepository, availability *AvailabilityService, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:     bookings,
		availability: availability,
		recorder:     nopRecorder{},
		tracer:       otel.Tracer("portal-scheduler.internal.application.booking"),
		locks:        newDateLocks(),
		wait:         sleepContext,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// WithPublisher sets the refresh publisher notified after every durable mutation.
func (s *BookingService) WithPublisher(publisher RefreshPublisher) *BookingService {
	s.publisher = publisher
	return s
}

// WithRecorder sets the recorder receiving workflow measurements.
func (s *BookingService) WithRecorder(recorder BookingRecorder) *BookingService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	s.recorder = recorder
	return s
}

// WithConfirmGrace sets how long a confirmation waits before publishing a refresh.
func (s *BookingService) WithConfirmGrace(grace time.Duration) *BookingService {
	if grace < 0 {
		grace = 0
	}
	s.grace = grace
	return s
}

// WithWaiter replaces how the grace period is waited out.
func (s *BookingService) WithWaiter(wait func(ctx context.Context, d time.Duration)) *BookingService {
	if wait == nil {
		wait = sleepContext
	}
	s.wait = wait
	return s
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// SubmitRequest validates the input against the currently generated slots and
// stores a pending request.
func (s *BookingService) SubmitRequest(ctx context.Context, params SubmitRequestParams) (request MeetingRequest, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	input := params.Input
	principal := params.Principal
	if strings.TrimSpace(input.RequesterID) == "" {
		input.RequesterID = principal.UserID
	}

	logger := s.loggerWith(ctx, "SubmitRequest",
		"principal_id", principal.UserID,
		"date", input.Date,
		"start_time", input.StartTime,
	)
	defer func() {
		if err != nil {
			s.recorder.ObserveSubmitted(ErrorKind(err))
			logger.ErrorContext(ctx, "failed to submit request", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.recorder.ObserveSubmitted("accepted")
		logger.With("request_id", request.ID).InfoContext(ctx, "request submitted")
	}()

	if input.RequesterID != principal.UserID && !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	if s.availability == nil {
		err = fmt.Errorf("BookingService has no availability service")
		return
	}

	vErr := &ValidationError{}
	date, start := validateSubmitInput(input, s.availability.Location(), vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	slots, err := s.availability.CurrentSlots(ctx, date)
	if err != nil {
		return MeetingRequest{}, err
	}

	duration := input.DurationMinutes
	if duration == 0 {
		duration = slots.SlotDurationMinutes
	}
	if duration != slots.SlotDurationMinutes {
		vErr.add("duration_minutes", "duration must match the slot duration")
	}
	if !start.After(s.now()) {
		vErr.add("start_time", "slot has already started")
	}
	if _, ok := scheduler.FindSlot(slots.Slots, start); !ok {
		vErr.add("start_time", "slot is not available")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	request = MeetingRequest{
		ID:              s.idGenerator(),
		RequesterID:     input.RequesterID,
		Date:            date,
		Start:           start,
		DurationMinutes: duration,
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		Status:          RequestPending,
		CreatedAt:       s.now(),
	}

	if s.bookings == nil {
		return request, nil
	}
	persisted, cerr := s.bookings.CreateRequest(ctx, request)
	if cerr != nil {
		err = mapRepoError("create request", cerr)
		return
	}
	return persisted, nil
}

// ConfirmRequest re-checks the slot and books it. When the slot has been
// taken in the meantime the request is rejected and a *ConflictError is returned.
func (s *BookingService) ConfirmRequest(ctx context.Context, params DecideRequestParams) (meeting ConfirmedMeeting, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	ctx, span := s.tracer.Start(ctx, "booking.confirm_request",
		trace.WithAttributes(attribute.String("request.id", params.RequestID)))
	defer span.End()

	logger := s.loggerWith(ctx, "ConfirmRequest",
		"principal_id", params.Principal.UserID,
		"request_id", params.RequestID,
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, ErrorKind(err))
			logger.ErrorContext(ctx, "failed to confirm request", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("meeting_id", meeting.ID).InfoContext(ctx, "request confirmed")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.bookings == nil {
		err = ErrNotFound
		return
	}

	request, gerr := s.bookings.GetRequest(ctx, params.RequestID)
	if gerr != nil {
		err = mapRepoError("get request", gerr)
		return
	}
	if request.Status != RequestPending {
		err = &InvalidStateError{RequestID: request.ID, Status: request.Status, Operation: "confirm"}
		return
	}

	dateKey := request.Date.Format(scheduler.DateLayout)
	span.SetAttributes(attribute.String("meeting.date", dateKey))

	started := s.now()
	unlock := s.locks.Lock(dateKey)
	meeting, err = s.confirmLocked(ctx, request)
	unlock()
	s.recorder.ObserveConfirmLatency(s.now().Sub(started).Seconds())
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.recorder.ObserveDecision("conflict")
		}
		return ConfirmedMeeting{}, err
	}
	s.recorder.ObserveDecision("confirmed")

	// Only the publish is delayed; local slot lists must drop the booked slot now.
	s.availability.Invalidate(ctx)
	s.wait(ctx, s.grace)
	s.publish(ctx)
	return meeting, nil
}

func (s *BookingService) confirmLocked(ctx context.Context, request MeetingRequest) (ConfirmedMeeting, error) {
	day := request.Date
	existing, err := s.bookings.ListConfirmedMeetings(ctx, MeetingRange{From: &day, To: &day})
	if err != nil {
		return ConfirmedMeeting{}, mapRepoError("list confirmed meetings", err)
	}

	bookings := make([]scheduler.Booking, 0, len(existing))
	for _, meeting := range existing {
		bookings = append(bookings, meeting.Booking())
	}
	candidate := scheduler.Interval{Start: request.Start, End: request.End()}
	if conflicts := scheduler.DetectConflicts(bookings, candidate); len(conflicts) > 0 {
		ids := make([]string, 0, len(conflicts))
		for _, conflict := range conflicts {
			ids = append(ids, conflict.WithMeetingID)
		}
		return ConfirmedMeeting{}, s.rejectForConflict(ctx, request, ids)
	}

	now := s.now()
	meeting := ConfirmedMeeting{
		ID:          s.idGenerator(),
		RequestID:   request.ID,
		RequesterID: request.RequesterID,
		Date:        request.Date,
		Start:       request.Start,
		End:         request.End(),
		Title:       request.Title,
		Description: request.Description,
		CreatedAt:   now,
	}
	confirmed, err := s.bookings.ConfirmRequest(ctx, Confirmation{RequestID: request.ID, Meeting: meeting, ConfirmedAt: now})
	switch {
	case err == nil:
		return confirmed, nil
	case errors.Is(err, persistence.ErrOverlap):
		return ConfirmedMeeting{}, s.rejectForConflict(ctx, request, nil)
	case errors.Is(err, persistence.ErrStateConflict):
		return ConfirmedMeeting{}, s.invalidState(ctx, request.ID, "confirm")
	default:
		return ConfirmedMeeting{}, mapRepoError("confirm request", err)
	}
}

func (s *BookingService) rejectForConflict(ctx context.Context, request MeetingRequest, conflicts []string) error {
	_, err := s.bookings.RejectRequest(ctx, request.ID, ConflictRejectionReason, s.now())
	switch {
	case err == nil:
	case errors.Is(err, persistence.ErrStateConflict):
		return s.invalidState(ctx, request.ID, "confirm")
	default:
		return mapRepoError("reject request", err)
	}
	s.publish(ctx)
	return &ConflictError{RequestID: request.ID, Conflicts: conflicts}
}

// RejectRequest moves a pending request to rejected.
func (s *BookingService) RejectRequest(ctx context.Context, params DecideRequestParams) (request MeetingRequest, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	ctx, span := s.tracer.Start(ctx, "booking.reject_request",
		trace.WithAttributes(attribute.String("request.id", params.RequestID)))
	defer span.End()

	logger := s.loggerWith(ctx, "RejectRequest",
		"principal_id", params.Principal.UserID,
		"request_id", params.RequestID,
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, ErrorKind(err))
			logger.ErrorContext(ctx, "failed to reject request", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "request rejected")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	reason := strings.TrimSpace(params.Reason)
	if utf8.RuneCountInString(reason) > maxReasonLength {
		vErr := &ValidationError{}
		vErr.add("reason", "reason is too long")
		err = vErr
		return
	}
	if s.bookings == nil {
		err = ErrNotFound
		return
	}

	request, rerr := s.bookings.RejectRequest(ctx, params.RequestID, reason, s.now())
	switch {
	case rerr == nil:
	case errors.Is(rerr, persistence.ErrStateConflict):
		err = s.invalidState(ctx, params.RequestID, "reject")
		return
	default:
		err = mapRepoError("reject request", rerr)
		return
	}

	s.recorder.ObserveDecision("rejected")
	s.publish(ctx)
	return request, nil
}

// GetRequest returns a request. Requesters may only read their own requests.
func (s *BookingService) GetRequest(ctx context.Context, principal Principal, id string) (MeetingRequest, error) {
	if s == nil {
		return MeetingRequest{}, fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return MeetingRequest{}, ErrNotFound
	}
	request, err := s.bookings.GetRequest(ctx, id)
	if err != nil {
		return MeetingRequest{}, mapRepoError("get request", err)
	}
	if !principal.IsAdmin && request.RequesterID != principal.UserID {
		return MeetingRequest{}, ErrUnauthorized
	}
	return request, nil
}

// ListRequests returns requests ordered by creation time. Non-admin
// principals are restricted to their own requests.
func (s *BookingService) ListRequests(ctx context.Context, params ListRequestsParams) (requests []MeetingRequest, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListRequests",
		"principal_id", params.Principal.UserID,
		"status", string(params.Status),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list requests", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(requests)).DebugContext(ctx, "requests listed")
	}()

	filter := RequestFilter{RequesterID: params.RequesterID, Status: params.Status}
	if !params.Principal.IsAdmin {
		if filter.RequesterID != "" && filter.RequesterID != params.Principal.UserID {
			err = ErrUnauthorized
			return
		}
		filter.RequesterID = params.Principal.UserID
	}
	if s.bookings == nil {
		return nil, nil
	}

	requests, err = s.bookings.ListRequests(ctx, filter)
	if err != nil {
		err = mapRepoError("list requests", err)
		return nil, err
	}
	return requests, nil
}

// ListConfirmedMeetings returns confirmed meetings within the date range.
func (s *BookingService) ListConfirmedMeetings(ctx context.Context, r MeetingRange) ([]ConfirmedMeeting, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return nil, nil
	}
	meetings, err := s.bookings.ListConfirmedMeetings(ctx, r)
	if err != nil {
		return nil, mapRepoError("list confirmed meetings", err)
	}
	return meetings, nil
}

// GetConfirmedMeeting returns a confirmed meeting by ID.
func (s *BookingService) GetConfirmedMeeting(ctx context.Context, id string) (ConfirmedMeeting, error) {
	if s == nil {
		return ConfirmedMeeting{}, fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return ConfirmedMeeting{}, ErrNotFound
	}
	meeting, err := s.bookings.GetConfirmedMeeting(ctx, id)
	if err != nil {
		return ConfirmedMeeting{}, mapRepoError("get confirmed meeting", err)
	}
	return meeting, nil
}

// DeleteConfirmedMeeting removes one confirmed meeting for administrators.
func (s *BookingService) DeleteConfirmedMeeting(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteConfirmedMeeting",
		"principal_id", principal.UserID,
		"meeting_id", id,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting deleted")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if s.bookings == nil {
		return ErrNotFound
	}
	if derr := s.bookings.DeleteConfirmedMeeting(ctx, id); derr != nil {
		return mapRepoError("delete confirmed meeting", derr)
	}

	s.recorder.ObserveDeleted("single", 1)
	s.publish(ctx)
	return nil
}

// DeleteAllConfirmedMeetings removes every confirmed meeting for administrators.
func (s *BookingService) DeleteAllConfirmedMeetings(ctx context.Context, principal Principal) (removed int, err error) {
	if s == nil {
		return 0, fmt.Errorf("BookingService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteAllConfirmedMeetings", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete meetings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", removed).InfoContext(ctx, "meetings deleted")
	}()

	if !principal.IsAdmin {
		return 0, ErrUnauthorized
	}
	if s.bookings == nil {
		return 0, nil
	}
	removed, err = s.bookings.DeleteAllConfirmedMeetings(ctx)
	if err != nil {
		return 0, mapRepoError("delete all confirmed meetings", err)
	}

	s.recorder.ObserveDeleted("all", removed)
	s.publish(ctx)
	return removed, nil
}

func (s *BookingService) invalidState(ctx context.Context, id, operation string) error {
	request, err := s.bookings.GetRequest(ctx, id)
	if err != nil {
		return mapRepoError("get request", err)
	}
	return &InvalidStateError{RequestID: id, Status: request.Status, Operation: operation}
}

func (s *BookingService) publish(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(context.WithoutCancel(ctx))
}

func validateSubmitInput(input SubmitRequestInput, loc *time.Location, vErr *ValidationError) (time.Time, time.Time) {
	if _, err := uuid.Parse(strings.TrimSpace(input.RequesterID)); err != nil {
		vErr.add("requester_id", "requester id must be a UUID")
	}

	title := strings.TrimSpace(input.Title)
	switch {
	case title == "":
		vErr.add("title", "title is required")
	case utf8.RuneCountInString(title) > maxTitleLength:
		vErr.add("title", "title is too long")
	}
	if utf8.RuneCountInString(strings.TrimSpace(input.Description)) > maxDescriptionLength {
		vErr.add("description", "description is too long")
	}
	if input.DurationMinutes < 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}

	date, err := scheduler.ParseDate(strings.TrimSpace(input.Date), loc)
	if err != nil {
		vErr.add("date", "date must use the YYYY-MM-DD format")
		return time.Time{}, time.Time{}
	}
	start, err := scheduler.ParseClock(date, strings.TrimSpace(input.StartTime))
	if err != nil {
		vErr.add("start_time", "start time must use the HH:MM format")
		return date, time.Time{}
	}
	return date, start
}

func mapRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("request", "request violates storage constraints")
		return vErr
	}
	return &PersistenceError{Op: op, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// dateLocks serializes confirmations per calendar date.
type dateLocks struct {
	mu    sync.Mutex
	locks map[string]*dateLock
}

type dateLock struct {
	mu   sync.Mutex
	refs int
}

func newDateLocks() *dateLocks {
	return &dateLocks{locks: make(map[string]*dateLock)}
}

// Lock acquires the lock for key and returns its release function.
func (l *dateLocks) Lock(key string) func() {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &dateLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *dateLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
