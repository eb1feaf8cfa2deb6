package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/portal-scheduler/internal/application"
	"github.com/example/portal-scheduler/internal/calendar"
	"github.com/example/portal-scheduler/internal/policystore"
	"github.com/example/portal-scheduler/internal/recurrence"
	"github.com/example/portal-scheduler/internal/refresh"
	"github.com/example/portal-scheduler/internal/scheduler"
)

const requesterID = "7b0c3f5e-4d1c-4a8e-9a4f-3f0b9d3e2a11"

var (
	testLocation = time.FixedZone("JST", 9*60*60)
	testNow      = time.Date(2026, 10, 14, 8, 0, 0, 0, testLocation)
	requester    = application.Principal{UserID: requesterID}
	admin        = application.Principal{UserID: "admin-1", IsAdmin: true}
)

type stubAvailability struct {
	policy      scheduler.Policy
	saveErr     error
	saved       *scheduler.Policy
	savedBy     application.Principal
	slots       application.SlotList
	available   bool
	gotDuration int
	openDays    []recurrence.OpenDay
}

func (s *stubAvailability) LoadPolicy(ctx context.Context) (scheduler.Policy, error) {
	return s.policy, nil
}

func (s *stubAvailability) SavePolicy(ctx context.Context, principal application.Principal, policy scheduler.Policy) (scheduler.Policy, error) {
	if s.saveErr != nil {
		return scheduler.Policy{}, s.saveErr
	}
	s.saved = &policy
	s.savedBy = principal
	return policy, nil
}

func (s *stubAvailability) GenerateSlots(ctx context.Context, date time.Time) (application.SlotList, error) {
	list := s.slots
	list.Date = date
	return list, nil
}

func (s *stubAvailability) IsAvailable(ctx context.Context, date, start time.Time, durationMinutes int) (bool, error) {
	s.gotDuration = durationMinutes
	return s.available, nil
}

func (s *stubAvailability) OpenDays(ctx context.Context, from, to time.Time) ([]recurrence.OpenDay, error) {
	return s.openDays, nil
}

func (s *stubAvailability) Location() *time.Location {
	return testLocation
}

type stubBookings struct {
	mu         sync.Mutex
	submitted  application.SubmitRequestParams
	submitErr  error
	confirmErr error
	rejected   application.DecideRequestParams
	listParams application.ListRequestsParams
	meetingRng application.MeetingRange
	request    application.MeetingRequest
	meeting    application.ConfirmedMeeting
	deleted    []string
	removedAll int
}

func (s *stubBookings) SubmitRequest(ctx context.Context, params application.SubmitRequestParams) (application.MeetingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = params
	return s.request, s.submitErr
}

func (s *stubBookings) ConfirmRequest(ctx context.Context, params application.DecideRequestParams) (application.ConfirmedMeeting, error) {
	if s.confirmErr != nil {
		return application.ConfirmedMeeting{}, s.confirmErr
	}
	return s.meeting, nil
}

func (s *stubBookings) RejectRequest(ctx context.Context, params application.DecideRequestParams) (application.MeetingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = params
	request := s.request
	request.Status = application.RequestRejected
	request.RejectionReason = params.Reason
	return request, nil
}

func (s *stubBookings) GetRequest(ctx context.Context, principal application.Principal, id string) (application.MeetingRequest, error) {
	if id != s.request.ID {
		return application.MeetingRequest{}, application.ErrNotFound
	}
	return s.request, nil
}

func (s *stubBookings) ListRequests(ctx context.Context, params application.ListRequestsParams) ([]application.MeetingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listParams = params
	return []application.MeetingRequest{s.request}, nil
}

func (s *stubBookings) ListConfirmedMeetings(ctx context.Context, r application.MeetingRange) ([]application.ConfirmedMeeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetingRng = r
	return []application.ConfirmedMeeting{s.meeting}, nil
}

func (s *stubBookings) GetConfirmedMeeting(ctx context.Context, id string) (application.ConfirmedMeeting, error) {
	if id != s.meeting.ID {
		return application.ConfirmedMeeting{}, application.ErrNotFound
	}
	return s.meeting, nil
}

func (s *stubBookings) DeleteConfirmedMeeting(ctx context.Context, principal application.Principal, id string) error {
	if !principal.IsAdmin {
		return application.ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubBookings) DeleteAllConfirmedMeetings(ctx context.Context, principal application.Principal) (int, error) {
	if !principal.IsAdmin {
		return 0, application.ErrUnauthorized
	}
	return s.removedAll, nil
}

type stubCalendar struct {
	view     *calendar.View
	meetings []calendar.Meeting
	rendered calendar.State
	exported application.MeetingRange
}

func (s *stubCalendar) InitialState() calendar.State {
	return calendar.NewState(testNow, testLocation)
}

func (s *stubCalendar) SetFilter(state calendar.State, filter calendar.Filter) calendar.State {
	return state.SetFilter(filter, testNow, testLocation)
}

func (s *stubCalendar) Render(ctx context.Context, state calendar.State) (calendar.Grid, error) {
	s.rendered = state
	return s.view.Render(state, testNow, s.meetings), nil
}

func (s *stubCalendar) ExportICS(ctx context.Context, r application.MeetingRange) (string, error) {
	s.exported = r
	return "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", nil
}

type fixture struct {
	availability *stubAvailability
	bookings     *stubBookings
	calendar     *stubCalendar
	coordinator  *refresh.Coordinator
	handler      http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	date := time.Date(2026, 10, 15, 0, 0, 0, 0, testLocation)
	start := time.Date(2026, 10, 15, 10, 0, 0, 0, testLocation)
	f := &fixture{
		availability: &stubAvailability{
			policy: scheduler.DefaultPolicy(),
			slots: application.SlotList{
				SlotDurationMinutes: 30,
				Slots: []scheduler.TimeSlot{
					{Date: date, Start: start, Duration: 30 * time.Minute, Available: true},
				},
				GeneratedAt: testNow,
			},
			available: true,
		},
		bookings: &stubBookings{
			request: application.MeetingRequest{
				ID:              "req-1",
				RequesterID:     requesterID,
				Date:            date,
				Start:           start,
				DurationMinutes: 30,
				Title:           "Design review",
				Status:          application.RequestPending,
				CreatedAt:       testNow,
			},
			meeting: application.ConfirmedMeeting{
				ID:          "mtg-1",
				RequestID:   "req-1",
				RequesterID: requesterID,
				Date:        date,
				Start:       start,
				End:         start.Add(30 * time.Minute),
				Title:       "Design review",
				CreatedAt:   testNow,
			},
			removedAll: 3,
		},
		calendar: &stubCalendar{
			view: calendar.NewView(calendar.Options{Location: testLocation}),
			meetings: []calendar.Meeting{{
				ID:          "mtg-1",
				RequesterID: requesterID,
				Title:       "Design review",
				Description: "agenda",
				Date:        date,
				Start:       start,
				End:         start.Add(30 * time.Minute),
			}},
		},
		coordinator: refresh.NewCoordinator(nil),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.handler = NewRouter(RouterConfig{
		Sessions:     NewSessionHandler(NewTokenAuthenticator("secret", "", nil), time.Hour, logger),
		Availability: NewAvailabilityHandler(f.availability, logger),
		Bookings:     NewBookingHandler(f.bookings, testLocation, logger),
		Calendar:     NewCalendarHandler(f.calendar, testLocation, logger),
		Refresh:      NewRefreshHandler(f.coordinator, logger),
		Validator: stubValidator{principals: map[string]application.Principal{
			"requester": requester,
			"admin":     admin,
		}},
		Logger: logger,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected healthz to be public, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/slots?date=2026-10-15", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPatch, "/policy", "admin", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestAvailabilityHandlers(t *testing.T) {
	t.Parallel()

	t.Run("get policy", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/policy", "requester", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		doc := decode[policystore.Document](t, rec)
		if doc.SlotDurationMinutes != 30 || len(doc.Days) != 7 {
			t.Fatalf("unexpected policy document %+v", doc)
		}
		if !doc.Days["monday"].Enabled || doc.Days["sunday"].Enabled {
			t.Fatalf("unexpected weekday settings %+v", doc.Days)
		}
	})

	t.Run("put policy", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		doc := policystore.FromPolicy(scheduler.DefaultPolicy())
		doc.SlotDurationMinutes = 45
		rec := f.do(t, http.MethodPut, "/policy", "admin", doc)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if f.availability.saved == nil || f.availability.saved.SlotDurationMinutes != 45 {
			t.Fatalf("expected policy to be saved, got %+v", f.availability.saved)
		}
		if f.availability.savedBy != admin {
			t.Fatalf("expected admin principal, got %+v", f.availability.savedBy)
		}
	})

	t.Run("put policy with unknown weekday", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		doc := policystore.Document{SlotDurationMinutes: 30, Days: map[string]policystore.DayDocument{"someday": {}}}
		rec := f.do(t, http.MethodPut, "/policy", "admin", doc)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("put policy as requester", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.availability.saveErr = application.ErrUnauthorized

		rec := f.do(t, http.MethodPut, "/policy", "requester", policystore.FromPolicy(scheduler.DefaultPolicy()))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
		if body := decode[errorResponse](t, rec); body.ErrorCode != "AUTH_FORBIDDEN" {
			t.Fatalf("unexpected error code %q", body.ErrorCode)
		}
	})

	t.Run("slots", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/slots?date=2026-10-15", "requester", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode[slotListDTO](t, rec)
		if body.Date != "2026-10-15" || body.SlotDurationMinutes != 30 {
			t.Fatalf("unexpected slot list %+v", body)
		}
		if len(body.Slots) != 1 || body.Slots[0].Start != "10:00" || body.Slots[0].End != "10:30" {
			t.Fatalf("unexpected slots %+v", body.Slots)
		}
	})

	t.Run("slots with invalid date", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/slots?date=15/10/2026", "requester", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if body := decode[errorResponse](t, rec); body.Message != errInvalidDate.Error() {
			t.Fatalf("unexpected message %q", body.Message)
		}
	})

	t.Run("availability", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/availability?date=2026-10-15&start=10:00&duration=30", "requester", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode[availabilityResponse](t, rec)
		if !body.Available || body.Start != "10:00" || f.availability.gotDuration != 30 {
			t.Fatalf("unexpected availability %+v", body)
		}

		for _, target := range []string{
			"/availability?date=2026-10-15&start=10:00",
			"/availability?date=2026-10-15&start=10:00&duration=-5",
			"/availability?date=2026-10-15&start=ten&duration=30",
		} {
			if rec := f.do(t, http.MethodGet, target, "requester", nil); rec.Code != http.StatusBadRequest {
				t.Fatalf("%s: expected 400, got %d", target, rec.Code)
			}
		}
	})

	t.Run("open days", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		day := time.Date(2026, 10, 19, 0, 0, 0, 0, testLocation)
		f.availability.openDays = []recurrence.OpenDay{{
			Date:   day,
			Opens:  day.Add(9 * time.Hour),
			Closes: day.Add(17 * time.Hour),
		}}

		rec := f.do(t, http.MethodGet, "/open-days?from=2026-10-19&to=2026-10-25", "requester", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode[openDaysResponse](t, rec)
		want := openDayDTO{Date: "2026-10-19", Weekday: "monday", Opens: "09:00", Closes: "17:00"}
		if len(body.Days) != 1 || body.Days[0] != want {
			t.Fatalf("unexpected open days %+v", body.Days)
		}
	})
}

func TestBookingHandlers(t *testing.T) {
	t.Parallel()

	t.Run("submit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/requests", "requester", map[string]any{
			"date":       "2026-10-15",
			"start_time": " 10:00 ",
			"title":      "Design review",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		body := decode[requestResponse](t, rec)
		if body.Request.ID != "req-1" || body.Request.Status != "pending" || body.Request.StartTime != "10:00" {
			t.Fatalf("unexpected request %+v", body.Request)
		}
		if f.bookings.submitted.Principal != requester || f.bookings.submitted.Input.StartTime != "10:00" {
			t.Fatalf("unexpected submit params %+v", f.bookings.submitted)
		}
	})

	t.Run("submit with validation errors", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.bookings.submitErr = &application.ValidationError{FieldErrors: map[string]string{
			"start_time": "slot is not available",
		}}

		rec := f.do(t, http.MethodPost, "/requests", "requester", map[string]any{"date": "2026-10-15"})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		body := decode[errorResponse](t, rec)
		if body.Errors["start_time"] != "この時間枠は予約できません。" {
			t.Fatalf("unexpected localized errors %+v", body.Errors)
		}
	})

	t.Run("submit with malformed body", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer requester")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("list requests", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/requests?status=pending&requester_id="+requesterID, "admin", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decode[listRequestsResponse](t, rec); len(body.Requests) != 1 {
			t.Fatalf("expected one request, got %d", len(body.Requests))
		}
		if f.bookings.listParams.Status != application.RequestPending || f.bookings.listParams.RequesterID != requesterID {
			t.Fatalf("unexpected list params %+v", f.bookings.listParams)
		}

		if rec := f.do(t, http.MethodGet, "/requests?status=archived", "admin", nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
		}
	})

	t.Run("get request", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		if rec := f.do(t, http.MethodGet, "/requests/req-1", "requester", nil); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec := f.do(t, http.MethodGet, "/requests/missing", "requester", nil); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("confirm", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/requests/req-1/confirm", "admin", nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		body := decode[meetingResponse](t, rec)
		if body.Meeting.ID != "mtg-1" || body.Meeting.Start != "10:00" || body.Meeting.End != "10:30" {
			t.Fatalf("unexpected meeting %+v", body.Meeting)
		}
	})

	t.Run("confirm conflict", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.bookings.confirmErr = &application.ConflictError{RequestID: "req-1", Conflicts: []string{"mtg-0"}}

		rec := f.do(t, http.MethodPost, "/requests/req-1/confirm", "admin", nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		body := decode[errorResponse](t, rec)
		if body.ErrorCode != "SLOT_ALREADY_BOOKED" || len(body.Conflicts) != 1 || body.Conflicts[0] != "mtg-0" {
			t.Fatalf("unexpected conflict response %+v", body)
		}
	})

	t.Run("confirm decided request", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.bookings.confirmErr = &application.InvalidStateError{RequestID: "req-1", Status: application.RequestRejected, Operation: "confirm"}

		rec := f.do(t, http.MethodPost, "/requests/req-1/confirm", "admin", nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if body := decode[errorResponse](t, rec); body.ErrorCode != "REQUEST_ALREADY_DECIDED" {
			t.Fatalf("unexpected error code %q", body.ErrorCode)
		}
	})

	t.Run("confirm with storage outage", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.bookings.confirmErr = &application.PersistenceError{Op: "confirm request", Err: errors.New("disk full")}

		if rec := f.do(t, http.MethodPost, "/requests/req-1/confirm", "admin", nil); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("reject", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/requests/req-1/reject", "admin", map[string]string{"reason": " busy "})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode[requestResponse](t, rec)
		if body.Request.Status != "rejected" || body.Request.RejectionReason != "busy" {
			t.Fatalf("unexpected request %+v", body.Request)
		}

		if rec := f.do(t, http.MethodPost, "/requests/req-1/reject", "admin", nil); rec.Code != http.StatusOK {
			t.Fatalf("expected reject without body to succeed, got %d", rec.Code)
		}
	})

	t.Run("meetings", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/meetings?from=2026-10-01&to=2026-10-31", "requester", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decode[listMeetingsResponse](t, rec); len(body.Meetings) != 1 {
			t.Fatalf("expected one meeting, got %d", len(body.Meetings))
		}
		rng := f.bookings.meetingRng
		if rng.From == nil || rng.To == nil || rng.From.Day() != 1 || rng.To.Day() != 31 {
			t.Fatalf("unexpected range %+v", rng)
		}

		if rec := f.do(t, http.MethodGet, "/meetings?from=october", "requester", nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if rec := f.do(t, http.MethodGet, "/meetings/mtg-1", "requester", nil); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("delete meetings", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		if rec := f.do(t, http.MethodDelete, "/meetings/mtg-1", "requester", nil); rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for requester, got %d", rec.Code)
		}
		if rec := f.do(t, http.MethodDelete, "/meetings/mtg-1", "admin", nil); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if len(f.bookings.deleted) != 1 || f.bookings.deleted[0] != "mtg-1" {
			t.Fatalf("unexpected deletions %v", f.bookings.deleted)
		}

		rec := f.do(t, http.MethodDelete, "/meetings", "admin", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decode[deleteAllResponse](t, rec); body.Deleted != 3 {
			t.Fatalf("expected 3 deletions, got %d", body.Deleted)
		}
	})
}

func TestCalendarHandlers(t *testing.T) {
	t.Parallel()

	t.Run("month grid", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/calendar?day=2026-10-15&meeting=mtg-1", "requester", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode[gridDTO](t, rec)
		if body.Filter != "month" || body.VisibleMonth != "2026-10" || body.Count != 1 {
			t.Fatalf("unexpected grid header %+v", body)
		}
		if body.PrevMonth != "2026-09" || body.NextMonth != "2026-11" {
			t.Fatalf("unexpected navigation %q %q", body.PrevMonth, body.NextMonth)
		}
		for _, week := range body.Weeks {
			if len(week) != 7 {
				t.Fatalf("expected full weeks, got %d cells", len(week))
			}
		}

		var found bool
		for _, week := range body.Weeks {
			for _, cell := range week {
				if cell.Date != "2026-10-15" {
					continue
				}
				found = true
				if !cell.Expanded || len(cell.Meetings) != 1 || !cell.Meetings[0].Expanded {
					t.Fatalf("expected expanded day and meeting, got %+v", cell)
				}
				if cell.Meetings[0].Description != "agenda" {
					t.Fatalf("expected description of expanded meeting, got %q", cell.Meetings[0].Description)
				}
			}
		}
		if !found {
			t.Fatalf("expected 2026-10-15 in grid")
		}
	})

	t.Run("explicit month", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/calendar?filter=month&month=2026-11", "requester", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode[gridDTO](t, rec)
		if body.VisibleMonth != "2026-11" || body.Count != 0 {
			t.Fatalf("unexpected grid %+v", body)
		}
	})

	t.Run("week", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/calendar?filter=this_week", "requester", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode[gridDTO](t, rec)
		if body.Filter != "week" || body.RangeStart != "2026-10-12" || body.RangeEnd != "2026-10-18" {
			t.Fatalf("unexpected week grid %+v", body)
		}
		if len(body.Weeks) != 1 || body.PrevMonth != "" {
			t.Fatalf("expected a single week row without navigation, got %+v", body)
		}
	})

	t.Run("invalid parameters", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		for _, target := range []string{
			"/calendar?filter=year",
			"/calendar?month=11-2026",
			"/calendar?day=tomorrow",
		} {
			if rec := f.do(t, http.MethodGet, target, "requester", nil); rec.Code != http.StatusBadRequest {
				t.Fatalf("%s: expected 400, got %d", target, rec.Code)
			}
		}
	})

	t.Run("ics export", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/calendar.ics?from=2026-10-01", "requester", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
			t.Fatalf("unexpected content type %q", ct)
		}
		if !strings.Contains(rec.Body.String(), "BEGIN:VCALENDAR") {
			t.Fatalf("unexpected feed %q", rec.Body.String())
		}
		if f.calendar.exported.From == nil || f.calendar.exported.To != nil {
			t.Fatalf("unexpected export range %+v", f.calendar.exported)
		}
	})
}

func TestSessionHandler(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/sessions", "", map[string]string{"admin_key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when admin key auth is disabled, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/sessions/current", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "session_token" || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected cleared session cookie, got %+v", cookies)
	}
}

func TestRefreshWebsocket(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	server := httptest.NewServer(f.handler)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/refresh/ws"
	header := http.Header{"Authorization": []string{"Bearer requester"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.coordinator.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.coordinator.Publish(context.Background())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg refreshMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read refresh signal: %v", err)
	}
	if msg.Type != "refresh" {
		t.Fatalf("unexpected message %+v", msg)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for f.coordinator.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket never unsubscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
