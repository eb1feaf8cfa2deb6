package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/portal-scheduler/internal/calendar"
)

// CalendarService renders confirmed meetings through calendar views.
type CalendarService struct {
	bookings  *BookingService
	view      *calendar.View
	productID string
	now       func() time.Time
	logger    *slog.Logger
}

// NewCalendarService constructs a calendar service with the provided dependencies.
func NewCalendarService(bookings *BookingService, view *calendar.View, now func() time.Time) *CalendarService {
	return NewCalendarServiceWithLogger(bookings, view, now, nil)
}

// NewCalendarServiceWithLogger constructs a calendar service with a specified logger.
func NewCalendarServiceWithLogger(bookings *BookingService, view *calendar.View, now func() time.Time, logger *slog.Logger) *CalendarService {
	if view == nil {
		view = calendar.NewView(calendar.Options{})
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarService{
		bookings:  bookings,
		view:      view,
		productID: calendar.DefaultProductID,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (s *CalendarService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CalendarService", operation, attrs...)
}

// InitialState returns the state a new calendar view starts in.
func (s *CalendarService) InitialState() calendar.State {
	return calendar.NewState(s.now(), s.view.Location())
}

// SetFilter applies a filter switch relative to the current time.
func (s *CalendarService) SetFilter(state calendar.State, filter calendar.Filter) calendar.State {
	return state.SetFilter(filter, s.now(), s.view.Location())
}

// Render loads the meetings the state's window needs and renders the grid.
func (s *CalendarService) Render(ctx context.Context, state calendar.State) (grid calendar.Grid, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Render", "filter", string(state.Filter))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to render calendar", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", grid.Count).DebugContext(ctx, "calendar rendered")
	}()

	now := s.now()
	// The all filter counts every meeting, so it loads without bounds.
	var r MeetingRange
	if from, to, ok := s.view.FetchRange(state, now); ok {
		r = MeetingRange{From: &from, To: &to}
	}

	meetings, err := s.bookings.ListConfirmedMeetings(ctx, r)
	if err != nil {
		return calendar.Grid{}, err
	}
	return s.view.Render(state, now, toCalendarMeetings(meetings)), nil
}

// ExportICS serializes the confirmed meetings within the range as iCalendar text.
func (s *CalendarService) ExportICS(ctx context.Context, r MeetingRange) (string, error) {
	if s == nil {
		return "", fmt.Errorf("CalendarService is nil")
	}
	meetings, err := s.bookings.ListConfirmedMeetings(ctx, r)
	if err != nil {
		s.loggerWith(ctx, "ExportICS").ErrorContext(ctx, "failed to export calendar", "error", err, "error_kind", ErrorKind(err))
		return "", err
	}
	return calendar.ExportICS(toCalendarMeetings(meetings), s.productID, s.now()), nil
}

func toCalendarMeetings(meetings []ConfirmedMeeting) []calendar.Meeting {
	if len(meetings) == 0 {
		return nil
	}
	out := make([]calendar.Meeting, 0, len(meetings))
	for _, meeting := range meetings {
		out = append(out, calendar.Meeting{
			ID:          meeting.ID,
			RequesterID: meeting.RequesterID,
			Title:       meeting.Title,
			Description: meeting.Description,
			Date:        meeting.Date,
			Start:       meeting.Start,
			End:         meeting.End,
			CreatedAt:   meeting.CreatedAt,
		})
	}
	return out
}
