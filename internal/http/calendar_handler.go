package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/portal-scheduler/internal/application"
	"github.com/example/portal-scheduler/internal/calendar"
	"github.com/example/portal-scheduler/internal/scheduler"
)

const monthLayout = "2006-01"

type calendarService interface {
	InitialState() calendar.State
	SetFilter(state calendar.State, filter calendar.Filter) calendar.State
	Render(ctx context.Context, state calendar.State) (calendar.Grid, error)
	ExportICS(ctx context.Context, r application.MeetingRange) (string, error)
}

// CalendarHandler renders confirmed meetings as calendar grids. The view
// state travels in the query string so every response is reproducible:
// ?filter= selects the window, ?month= the visible month of month based
// filters, ?day= the expanded day and ?meeting= the expanded meeting.
type CalendarHandler struct {
	service   calendarService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

func NewCalendarHandler(service calendarService, loc *time.Location, logger *slog.Logger) *CalendarHandler {
	if loc == nil {
		loc = time.UTC
	}
	base := defaultLogger(logger)
	return &CalendarHandler{service: service, location: loc, responder: newResponder(base), logger: base}
}

func (h *CalendarHandler) Render(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	state, err := h.stateFromQuery(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	grid, err := h.service.Render(r.Context(), state)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toGridDTO(grid, state))
}

// ExportICS writes the confirmed meetings between the optional ?from= and
// ?to= dates as an iCalendar feed.
func (h *CalendarHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	rng, err := parseMeetingRange(r, h.location)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}
	feed, err := h.service.ExportICS(r.Context(), rng)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="meetings.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(feed)); err != nil {
		handlerLogger(r.Context(), h.logger, "CalendarHandler", "ExportICS").ErrorContext(r.Context(), "failed to write calendar feed", "error", err)
	}
}

func (h *CalendarHandler) stateFromQuery(r *http.Request) (calendar.State, error) {
	query := r.URL.Query()
	filter, err := calendar.ParseFilter(query.Get("filter"))
	if err != nil {
		return calendar.State{}, errInvalidFilter
	}

	state := h.service.SetFilter(h.service.InitialState(), filter)
	if value := strings.TrimSpace(query.Get("month")); value != "" && filter.MonthBased() {
		month, err := time.ParseInLocation(monthLayout, value, h.location)
		if err != nil {
			return calendar.State{}, errInvalidMonth
		}
		state.VisibleMonth = month
	}
	if value := strings.TrimSpace(query.Get("day")); value != "" {
		if _, err := scheduler.ParseDate(value, h.location); err != nil {
			return calendar.State{}, errInvalidDate
		}
		state.ExpandedDayKey = value
	}
	state.ExpandedMeetingID = strings.TrimSpace(query.Get("meeting"))
	return state, nil
}

type calendarMeetingDTO struct {
	ID          string `json:"id"`
	RequesterID string `json:"requester_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Expanded    bool   `json:"expanded"`
}

type cellDTO struct {
	Date           string               `json:"date"`
	InVisibleMonth bool                 `json:"in_visible_month"`
	Today          bool                 `json:"today"`
	Expanded       bool                 `json:"expanded"`
	Meetings       []calendarMeetingDTO `json:"meetings"`
}

type gridDTO struct {
	Filter       string      `json:"filter"`
	VisibleMonth string      `json:"visible_month"`
	PrevMonth    string      `json:"prev_month,omitempty"`
	NextMonth    string      `json:"next_month,omitempty"`
	RangeStart   string      `json:"range_start"`
	RangeEnd     string      `json:"range_end"`
	Count        int         `json:"count"`
	Weeks        [][]cellDTO `json:"weeks"`
}

func toGridDTO(grid calendar.Grid, state calendar.State) gridDTO {
	dto := gridDTO{
		Filter:       string(grid.Filter),
		VisibleMonth: grid.VisibleMonth.Format(monthLayout),
		RangeStart:   grid.RangeStart.Format(scheduler.DateLayout),
		RangeEnd:     grid.RangeEnd.Format(scheduler.DateLayout),
		Count:        grid.Count,
		Weeks:        make([][]cellDTO, 0, 6),
	}
	if grid.Filter.MonthBased() {
		dto.PrevMonth = state.PrevMonth().VisibleMonth.Format(monthLayout)
		dto.NextMonth = state.NextMonth().VisibleMonth.Format(monthLayout)
	}

	for _, week := range grid.Weeks() {
		row := make([]cellDTO, 0, len(week))
		for _, cell := range week {
			meetings := make([]calendarMeetingDTO, 0, len(cell.Meetings))
			for _, view := range cell.Meetings {
				meeting := calendarMeetingDTO{
					ID:          view.ID,
					RequesterID: view.RequesterID,
					Title:       view.Title,
					Start:       view.Start.Format(scheduler.ClockLayout),
					End:         view.End.Format(scheduler.ClockLayout),
					Expanded:    view.Expanded,
				}
				if view.Expanded {
					meeting.Description = view.Description
				}
				meetings = append(meetings, meeting)
			}
			row = append(row, cellDTO{
				Date:           cell.Key,
				InVisibleMonth: cell.InVisibleMonth,
				Today:          cell.Today,
				Expanded:       cell.Expanded,
				Meetings:       meetings,
			})
		}
		dto.Weeks = append(dto.Weeks, row)
	}
	return dto
}
