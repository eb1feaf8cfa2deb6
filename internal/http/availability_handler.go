package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/portal-scheduler/internal/application"
	"github.com/example/portal-scheduler/internal/policystore"
	"github.com/example/portal-scheduler/internal/recurrence"
	"github.com/example/portal-scheduler/internal/scheduler"
)

type availabilityService interface {
	LoadPolicy(ctx context.Context) (scheduler.Policy, error)
	SavePolicy(ctx context.Context, principal application.Principal, policy scheduler.Policy) (scheduler.Policy, error)
	GenerateSlots(ctx context.Context, date time.Time) (application.SlotList, error)
	IsAvailable(ctx context.Context, date, start time.Time, durationMinutes int) (bool, error)
	OpenDays(ctx context.Context, from, to time.Time) ([]recurrence.OpenDay, error)
	Location() *time.Location
}

// AvailabilityHandler serves the availability policy and the slots it generates.
type AvailabilityHandler struct {
	service   availabilityService
	responder responder
	logger    *slog.Logger
}

func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	base := defaultLogger(logger)
	return &AvailabilityHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AvailabilityHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	policy, err := h.service.LoadPolicy(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, policystore.FromPolicy(policy))
}

func (h *AvailabilityHandler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var doc policystore.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	policy, err := doc.Policy()
	if err != nil {
		handlerLogger(r.Context(), h.logger, "AvailabilityHandler", "PutPolicy").WarnContext(r.Context(), "policy document rejected", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPolicy)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	saved, err := h.service.SavePolicy(r.Context(), principal, policy)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, policystore.FromPolicy(saved))
}

// Slots lists the free slots of ?date=YYYY-MM-DD.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	date, ok := h.queryDate(w, r, "date")
	if !ok {
		return
	}

	list, err := h.service.GenerateSlots(r.Context(), date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSlotListDTO(list))
}

// Availability reports whether ?start= on ?date= is free for ?duration= minutes.
func (h *AvailabilityHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	date, ok := h.queryDate(w, r, "date")
	if !ok {
		return
	}
	query := r.URL.Query()
	start, err := scheduler.ParseClock(date, strings.TrimSpace(query.Get("start")))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidClock)
		return
	}
	duration, err := strconv.Atoi(strings.TrimSpace(query.Get("duration")))
	if err != nil || duration <= 0 {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDuration)
		return
	}

	free, err := h.service.IsAvailable(r.Context(), date, start, duration)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityResponse{
		Date:            date.Format(scheduler.DateLayout),
		Start:           start.Format(scheduler.ClockLayout),
		DurationMinutes: duration,
		Available:       free,
	})
}

// OpenDays lists the dates between ?from= and ?to= on which bookings are accepted.
func (h *AvailabilityHandler) OpenDays(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	from, ok := h.queryDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := h.queryDate(w, r, "to")
	if !ok {
		return
	}

	days, err := h.service.OpenDays(r.Context(), from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]openDayDTO, 0, len(days))
	for _, day := range days {
		out = append(out, openDayDTO{
			Date:    day.Date.Format(scheduler.DateLayout),
			Weekday: scheduler.WeekdayName(day.Date.Weekday()),
			Opens:   day.Opens.Format(scheduler.ClockLayout),
			Closes:  day.Closes.Format(scheduler.ClockLayout),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, openDaysResponse{Days: out})
}

func (h *AvailabilityHandler) queryDate(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	date, err := scheduler.ParseDate(strings.TrimSpace(r.URL.Query().Get(name)), h.service.Location())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return time.Time{}, false
	}
	return date, true
}

type slotDTO struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	StartsAt  string `json:"starts_at"`
	Available bool   `json:"available"`
}

type slotListDTO struct {
	Date                string    `json:"date"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	GeneratedAt         string    `json:"generated_at"`
	Slots               []slotDTO `json:"slots"`
}

func toSlotListDTO(list application.SlotList) slotListDTO {
	slots := make([]slotDTO, 0, len(list.Slots))
	for _, slot := range list.Slots {
		slots = append(slots, slotDTO{
			Start:     slot.Clock(),
			End:       slot.End().Format(scheduler.ClockLayout),
			StartsAt:  slot.Start.Format(time.RFC3339),
			Available: slot.Available,
		})
	}
	dto := slotListDTO{
		Date:                list.Date.Format(scheduler.DateLayout),
		SlotDurationMinutes: list.SlotDurationMinutes,
		Slots:               slots,
	}
	if !list.GeneratedAt.IsZero() {
		dto.GeneratedAt = list.GeneratedAt.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

type availabilityResponse struct {
	Date            string `json:"date"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
	Available       bool   `json:"available"`
}

type openDayDTO struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Opens   string `json:"opens"`
	Closes  string `json:"closes"`
}

type openDaysResponse struct {
	Days []openDayDTO `json:"days"`
}
