package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/portal-scheduler/internal/application"
)

// capturingBookingRepo keeps the last request and confirms unconditionally.
type capturingBookingRepo struct {
	created   application.MeetingRequest
	confirmed application.ConfirmedMeeting
}

func (c *capturingBookingRepo) CreateRequest(ctx context.Context, request application.MeetingRequest) (application.MeetingRequest, error) {
	c.created = request
	return request, nil
}

func (c *capturingBookingRepo) GetRequest(ctx context.Context, id string) (application.MeetingRequest, error) {
	if c.created.ID != id {
		return application.MeetingRequest{}, application.ErrNotFound
	}
	return c.created, nil
}

func (c *capturingBookingRepo) ListRequests(ctx context.Context, filter application.RequestFilter) ([]application.MeetingRequest, error) {
	return nil, nil
}

func (c *capturingBookingRepo) RejectRequest(ctx context.Context, id, reason string, decidedAt time.Time) (application.MeetingRequest, error) {
	return application.MeetingRequest{}, application.ErrNotFound
}

func (c *capturingBookingRepo) ConfirmRequest(ctx context.Context, confirmation application.Confirmation) (application.ConfirmedMeeting, error) {
	c.confirmed = confirmation.Meeting
	c.created.Status = application.RequestConfirmed
	return confirmation.Meeting, nil
}

func (c *capturingBookingRepo) GetConfirmedMeeting(ctx context.Context, id string) (application.ConfirmedMeeting, error) {
	return application.ConfirmedMeeting{}, application.ErrNotFound
}

func (c *capturingBookingRepo) ListConfirmedMeetings(ctx context.Context, r application.MeetingRange) ([]application.ConfirmedMeeting, error) {
	return nil, nil
}

func (c *capturingBookingRepo) DeleteConfirmedMeeting(ctx context.Context, id string) error {
	return nil
}

func (c *capturingBookingRepo) DeleteAllConfirmedMeetings(ctx context.Context) (int, error) {
	return 0, nil
}

type countingPublisher struct {
	count int
}

func (p *countingPublisher) Publish(ctx context.Context) {
	p.count++
}

func TestServiceFactoryNewBookingService(t *testing.T) {
	factory := NewServiceFactory()
	repo := &capturingBookingRepo{}
	publisher := &countingPublisher{}

	svc := factory.NewBookingService(BookingServiceDeps{
		Bookings:     repo,
		Publisher:    publisher,
		ConfirmGrace: 2 * time.Second,
	})

	fixture := NewRequestFixture(WithRequestStart(At(10, 0)))
	request, err := svc.SubmitRequest(context.Background(), application.SubmitRequestParams{
		Principal: fixture.Principal(),
		Input:     fixture.Input(),
	})
	if err != nil {
		t.Fatalf("SubmitRequest returned error: %v", err)
	}

	if request.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", request.ID)
	}
	if repo.created.ID != request.ID {
		t.Fatalf("repository received unexpected ID: %q", repo.created.ID)
	}
	if !request.CreatedAt.Equal(factory.Clock.Current()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Current(), request.CreatedAt)
	}

	admin := application.Principal{UserID: "admin", IsAdmin: true}
	meeting, err := svc.ConfirmRequest(context.Background(), application.DecideRequestParams{Principal: admin, RequestID: request.ID})
	if err != nil {
		t.Fatalf("ConfirmRequest returned error: %v", err)
	}
	if meeting.ID != "id-2" {
		t.Fatalf("expected meeting ID id-2, got %q", meeting.ID)
	}
	if slept := factory.Clock.Slept(); len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("expected the grace period to run on the fake clock, got %v", slept)
	}
	if publisher.count != 1 {
		t.Fatalf("expected one publish, got %d", publisher.count)
	}
}

func TestServiceFactoryCalendarUsesFactoryLocation(t *testing.T) {
	factory := NewServiceFactory(WithLocation(time.UTC))
	bookings := factory.NewBookingService(BookingServiceDeps{Bookings: &capturingBookingRepo{}})
	svc := factory.NewCalendarService(bookings, nil)

	state := svc.InitialState()
	if state.VisibleMonth.Location() != time.UTC {
		t.Fatalf("expected UTC visible month, got %v", state.VisibleMonth.Location())
	}
}

func TestRequestFixtureConversions(t *testing.T) {
	fixture := NewRequestFixture(WithRequestStart(At(13, 30)), WithRequestDescription("agenda"))

	stored := fixture.Persistence()
	if stored.Date.Format("2006-01-02") != "2024-05-06" {
		t.Fatalf("expected booking day, got %v", stored.Date)
	}
	if stored.Description == nil || *stored.Description != "agenda" {
		t.Fatalf("expected description to be copied")
	}

	input := fixture.Input()
	if input.StartTime != "13:30" || input.Date != "2024-05-06" {
		t.Fatalf("unexpected input: %+v", input)
	}

	meeting := fixture.Meeting()
	if meeting.RequestID != fixture.ID || !meeting.End.Equal(At(14, 0)) {
		t.Fatalf("unexpected meeting fixture: %+v", meeting)
	}
}
