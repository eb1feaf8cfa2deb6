package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/portal-scheduler/internal/recurrence"
	"github.com/example/portal-scheduler/internal/scheduler"
)

// AvailabilityService exposes the availability policy and the slots it generates.
type AvailabilityService struct {
	policies  PolicyStore
	bookings  BookingRepository
	engine    *recurrence.Engine
	location  *time.Location
	cache     *slotCache
	publisher RefreshPublisher
	recorder  BookingRecorder
	now       func() time.Time
	logger    *slog.Logger
}

// NewAvailabilityService constructs an availability service with the provided dependencies.
func NewAvailabilityService(policies PolicyStore, bookings BookingRepository, loc *time.Location, now func() time.Time) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(policies, bookings, loc, now, nil)
}

// NewAvailabilityServiceWithLogger constructs an availability service with a specified logger.
// Dates are interpreted in loc, the single configured zone.
func NewAvailabilityServiceWithLogger(policies PolicyStore, bookings BookingRepository, loc *time.Location, now func() time.Time, logger *slog.Logger) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	engine := recurrence.NewEngine(loc)
	return &AvailabilityService{
		policies: policies,
		bookings: bookings,
		engine:   engine,
		location: engine.Location(),
		cache:    newSlotCache(time.Minute, 256, now),
		recorder: nopRecorder{},
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// WithPublisher sets the refresh publisher notified after the policy changes.
func (s *AvailabilityService) WithPublisher(publisher RefreshPublisher) *AvailabilityService {
	s.publisher = publisher
	return s
}

// WithRecorder sets the recorder receiving slot cache measurements.
func (s *AvailabilityService) WithRecorder(recorder BookingRecorder) *AvailabilityService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	s.recorder = recorder
	return s
}

// Location returns the zone dates are interpreted in.
func (s *AvailabilityService) Location() *time.Location {
	return s.location
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// Invalidate drops cached slot lists. It is registered as a refresh subscriber.
func (s *AvailabilityService) Invalidate(ctx context.Context) {
	if s == nil {
		return
	}
	s.cache.Invalidate()
	s.loggerWith(ctx, "Invalidate").DebugContext(ctx, "slot cache invalidated")
}

// LoadPolicy returns the stored policy with missing weekdays filled from the defaults.
func (s *AvailabilityService) LoadPolicy(ctx context.Context) (scheduler.Policy, error) {
	if s == nil {
		return scheduler.Policy{}, fmt.Errorf("AvailabilityService is nil")
	}
	if s.policies == nil {
		return scheduler.DefaultPolicy(), nil
	}
	policy, err := s.policies.LoadPolicy(ctx)
	if err != nil {
		return scheduler.Policy{}, &PersistenceError{Op: "load policy", Err: err}
	}
	policy = policy.Normalize()
	// Stored documents can be edited by hand, so they are held to the same rules as SavePolicy.
	if problems := policy.Validate(); len(problems) > 0 {
		vErr := &ValidationError{}
		for field, message := range problems {
			vErr.add(field, message)
		}
		return scheduler.Policy{}, &PersistenceError{Op: "load policy", Err: fmt.Errorf("stored policy is invalid: %s", vErr.Error())}
	}
	return policy, nil
}

// SavePolicy validates and stores a new policy. Only administrators may change it.
func (s *AvailabilityService) SavePolicy(ctx context.Context, principal Principal, policy scheduler.Policy) (saved scheduler.Policy, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SavePolicy", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to save policy", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("slot_duration_minutes", saved.SlotDurationMinutes).InfoContext(ctx, "policy saved")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	for field, message := range policy.Validate() {
		vErr.add(field, message)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	saved = policy.Clone()
	if s.policies != nil {
		if serr := s.policies.SavePolicy(ctx, saved); serr != nil {
			err = &PersistenceError{Op: "save policy", Err: serr}
			return
		}
	}

	s.cache.Invalidate()
	if s.publisher != nil {
		s.publisher.Publish(ctx)
	}
	return saved, nil
}

// GenerateSlots returns the free slots of date under the current policy.
// Results are served from the slot cache when present.
func (s *AvailabilityService) GenerateSlots(ctx context.Context, date time.Time) (SlotList, error) {
	return s.generateSlots(ctx, "GenerateSlots", date, true)
}

// CurrentSlots is GenerateSlots without the cache read. It is used where a
// stale list would let a taken slot through, and refreshes the cache entry.
func (s *AvailabilityService) CurrentSlots(ctx context.Context, date time.Time) (SlotList, error) {
	return s.generateSlots(ctx, "CurrentSlots", date, false)
}

func (s *AvailabilityService) generateSlots(ctx context.Context, operation string, date time.Time, useCache bool) (list SlotList, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}

	day := scheduler.StartOfDay(date, s.location)
	key := day.Format(scheduler.DateLayout)
	logger := s.loggerWith(ctx, operation, "date", key)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to generate slots", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(list.Slots)).DebugContext(ctx, "slots generated")
	}()

	if useCache {
		if cached, ok := s.cache.Get(key); ok {
			s.recorder.ObserveSlotCache(true)
			return cached, nil
		}
		s.recorder.ObserveSlotCache(false)
	}

	policy, err := s.LoadPolicy(ctx)
	if err != nil {
		return SlotList{}, err
	}
	meetings, err := s.meetingsOn(ctx, day)
	if err != nil {
		return SlotList{}, err
	}

	bookings := make([]scheduler.Booking, 0, len(meetings))
	for _, meeting := range meetings {
		bookings = append(bookings, meeting.Booking())
	}

	list = SlotList{
		Date:                day,
		SlotDurationMinutes: policy.SlotDurationMinutes,
		Slots:               scheduler.GenerateSlots(policy, day, scheduler.Intervals(bookings)),
		GeneratedAt:         s.now(),
	}
	s.cache.Store(key, list)
	return list, nil
}

// IsAvailable reports whether [start, start+duration) on date overlaps no confirmed meeting.
func (s *AvailabilityService) IsAvailable(ctx context.Context, date, start time.Time, durationMinutes int) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("AvailabilityService is nil")
	}
	if durationMinutes <= 0 {
		vErr := &ValidationError{}
		vErr.add("duration_minutes", "duration must be positive")
		return false, vErr
	}

	day := scheduler.StartOfDay(date, s.location)
	meetings, err := s.meetingsOn(ctx, day)
	if err != nil {
		return false, err
	}
	booked := make([]scheduler.Interval, 0, len(meetings))
	for _, meeting := range meetings {
		booked = append(booked, meeting.Booking().Interval)
	}
	return scheduler.IsFree(booked, scheduler.NewInterval(start, time.Duration(durationMinutes)*time.Minute)), nil
}

// OpenDays lists the dates within [from, to] on which the policy accepts bookings.
func (s *AvailabilityService) OpenDays(ctx context.Context, from, to time.Time) ([]recurrence.OpenDay, error) {
	if s == nil {
		return nil, fmt.Errorf("AvailabilityService is nil")
	}
	policy, err := s.LoadPolicy(ctx)
	if err != nil {
		return nil, err
	}
	days, err := s.engine.OpenDays(policy, from, to)
	switch {
	case errors.Is(err, recurrence.ErrInvalidWindow):
		vErr := &ValidationError{}
		vErr.add("to", "end date must not precede start date")
		return nil, vErr
	case errors.Is(err, recurrence.ErrWindowTooLarge):
		vErr := &ValidationError{}
		vErr.add("to", "date range is too large")
		return nil, vErr
	case err != nil:
		return nil, err
	}
	return days, nil
}

func (s *AvailabilityService) meetingsOn(ctx context.Context, day time.Time) ([]ConfirmedMeeting, error) {
	if s.bookings == nil {
		return nil, nil
	}
	meetings, err := s.bookings.ListConfirmedMeetings(ctx, MeetingRange{From: &day, To: &day})
	if err != nil {
		return nil, mapRepoError("list confirmed meetings", err)
	}
	return meetings, nil
}
