package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/portal-scheduler/internal/application"
	"github.com/example/portal-scheduler/internal/calendar"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    JST,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = JST
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation overrides the zone services interpret dates in.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// AvailabilityServiceDeps captures dependencies for constructing an availability service.
type AvailabilityServiceDeps struct {
	Policies  application.PolicyStore
	Bookings  application.BookingRepository
	Publisher application.RefreshPublisher
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewAvailabilityService builds an availability service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewAvailabilityService(deps AvailabilityServiceDeps) *application.AvailabilityService {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	svc := application.NewAvailabilityServiceWithLogger(deps.Policies, deps.Bookings, f.Location, now, deps.Logger)
	if deps.Publisher != nil {
		svc.WithPublisher(deps.Publisher)
	}
	return svc
}

// BookingServiceDeps captures dependencies for constructing a booking service.
type BookingServiceDeps struct {
	Bookings     application.BookingRepository
	Availability *application.AvailabilityService
	Publisher    application.RefreshPublisher
	Recorder     application.BookingRecorder
	ConfirmGrace time.Duration
	IDGenerator  func() string
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewBookingService builds a booking service. The confirmation grace period
// is waited out on the factory clock, so tests never block on it.
func (f *ServiceFactory) NewBookingService(deps BookingServiceDeps) *application.BookingService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	availability := deps.Availability
	if availability == nil {
		availability = f.NewAvailabilityService(AvailabilityServiceDeps{Bookings: deps.Bookings, Now: now, Logger: deps.Logger})
	}
	return application.NewBookingServiceWithLogger(deps.Bookings, availability, idGen, now, deps.Logger).
		WithPublisher(deps.Publisher).
		WithRecorder(deps.Recorder).
		WithConfirmGrace(deps.ConfirmGrace).
		WithWaiter(f.Clock.Sleep)
}

// NewCalendarService builds a calendar service over the booking service with a
// Monday-start view in the factory location.
func (f *ServiceFactory) NewCalendarService(bookings *application.BookingService, logger *slog.Logger) *application.CalendarService {
	view := calendar.NewView(calendar.Options{Location: f.Location})
	return application.NewCalendarServiceWithLogger(bookings, view, f.Clock.NowFunc(), logger)
}
