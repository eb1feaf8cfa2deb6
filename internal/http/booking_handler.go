package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/portal-scheduler/internal/application"
	"github.com/example/portal-scheduler/internal/scheduler"
)

type bookingService interface {
	SubmitRequest(ctx context.Context, params application.SubmitRequestParams) (application.MeetingRequest, error)
	ConfirmRequest(ctx context.Context, params application.DecideRequestParams) (application.ConfirmedMeeting, error)
	RejectRequest(ctx context.Context, params application.DecideRequestParams) (application.MeetingRequest, error)
	GetRequest(ctx context.Context, principal application.Principal, id string) (application.MeetingRequest, error)
	ListRequests(ctx context.Context, params application.ListRequestsParams) ([]application.MeetingRequest, error)
	ListConfirmedMeetings(ctx context.Context, r application.MeetingRange) ([]application.ConfirmedMeeting, error)
	GetConfirmedMeeting(ctx context.Context, id string) (application.ConfirmedMeeting, error)
	DeleteConfirmedMeeting(ctx context.Context, principal application.Principal, id string) error
	DeleteAllConfirmedMeetings(ctx context.Context, principal application.Principal) (int, error)
}

// BookingHandler serves meeting requests and the confirmed meetings they turn into.
type BookingHandler struct {
	service   bookingService
	location  *time.Location
	responder responder
}

func NewBookingHandler(service bookingService, loc *time.Location, logger *slog.Logger) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{service: service, location: loc, responder: newResponder(logger)}
}

func (h *BookingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	request, err := h.service.SubmitRequest(r.Context(), application.SubmitRequestParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, requestResponse{Request: toRequestDTO(request)})
}

func (h *BookingHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	status, ok := application.ParseRequestStatus(strings.TrimSpace(query.Get("status")))
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidStatus)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	requests, err := h.service.ListRequests(r.Context(), application.ListRequestsParams{
		Principal:   principal,
		RequesterID: strings.TrimSpace(query.Get("requester_id")),
		Status:      status,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]requestDTO, 0, len(requests))
	for _, request := range requests {
		out = append(out, toRequestDTO(request))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRequestsResponse{Requests: out})
}

func (h *BookingHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.pathID(w, r, errInvalidRequestID)
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	request, err := h.service.GetRequest(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, requestResponse{Request: toRequestDTO(request)})
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.pathID(w, r, errInvalidRequestID)
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	meeting, err := h.service.ConfirmRequest(r.Context(), application.DecideRequestParams{
		Principal: principal,
		RequestID: id,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, meetingResponse{Meeting: toMeetingDTO(meeting)})
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.pathID(w, r, errInvalidRequestID)
	if !ok {
		return
	}

	// The body is optional; an empty one rejects without a reason.
	var req rejectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
	}

	principal, _ := PrincipalFromContext(r.Context())
	request, err := h.service.RejectRequest(r.Context(), application.DecideRequestParams{
		Principal: principal,
		RequestID: id,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, requestResponse{Request: toRequestDTO(request)})
}

// ListMeetings returns confirmed meetings, optionally narrowed by ?from= and ?to=.
func (h *BookingHandler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	rng, err := parseMeetingRange(r, h.location)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}
	meetings, err := h.service.ListConfirmedMeetings(r.Context(), rng)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]meetingDTO, 0, len(meetings))
	for _, meeting := range meetings {
		out = append(out, toMeetingDTO(meeting))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listMeetingsResponse{Meetings: out})
}

func (h *BookingHandler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.pathID(w, r, errInvalidMeetingID)
	if !ok {
		return
	}
	meeting, err := h.service.GetConfirmedMeeting(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, meetingResponse{Meeting: toMeetingDTO(meeting)})
}

func (h *BookingHandler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.pathID(w, r, errInvalidMeetingID)
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteConfirmedMeeting(r.Context(), principal, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *BookingHandler) DeleteAllMeetings(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	removed, err := h.service.DeleteAllConfirmedMeetings(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, deleteAllResponse{Deleted: removed})
}

func (h *BookingHandler) pathID(w http.ResponseWriter, r *http.Request, invalid error) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, invalid)
		return "", false
	}
	return id, true
}

// parseMeetingRange reads the optional ?from= and ?to= dates of a meeting query.
func parseMeetingRange(r *http.Request, loc *time.Location) (application.MeetingRange, error) {
	var rng application.MeetingRange
	query := r.URL.Query()
	if value := strings.TrimSpace(query.Get("from")); value != "" {
		from, err := scheduler.ParseDate(value, loc)
		if err != nil {
			return application.MeetingRange{}, err
		}
		rng.From = &from
	}
	if value := strings.TrimSpace(query.Get("to")); value != "" {
		to, err := scheduler.ParseDate(value, loc)
		if err != nil {
			return application.MeetingRange{}, err
		}
		rng.To = &to
	}
	return rng, nil
}

type submitRequest struct {
	RequesterID     string `json:"requester_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Title           string `json:"title"`
	Description     string `json:"description"`
}

func (r submitRequest) toInput() application.SubmitRequestInput {
	return application.SubmitRequestInput{
		RequesterID:     strings.TrimSpace(r.RequesterID),
		Date:            strings.TrimSpace(r.Date),
		StartTime:       strings.TrimSpace(r.StartTime),
		DurationMinutes: r.DurationMinutes,
		Title:           r.Title,
		Description:     r.Description,
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type requestDTO struct {
	ID              string  `json:"id"`
	RequesterID     string  `json:"requester_id"`
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	DurationMinutes int     `json:"duration_minutes"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Status          string  `json:"status"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	CreatedAt       string  `json:"created_at"`
	DecidedAt       *string `json:"decided_at,omitempty"`
}

func toRequestDTO(request application.MeetingRequest) requestDTO {
	dto := requestDTO{
		ID:              request.ID,
		RequesterID:     request.RequesterID,
		Date:            request.Date.Format(scheduler.DateLayout),
		StartTime:       request.Start.Format(scheduler.ClockLayout),
		DurationMinutes: request.DurationMinutes,
		Title:           request.Title,
		Description:     request.Description,
		Status:          string(request.Status),
		RejectionReason: request.RejectionReason,
		CreatedAt:       request.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if request.DecidedAt != nil {
		decided := request.DecidedAt.UTC().Format(time.RFC3339Nano)
		dto.DecidedAt = &decided
	}
	return dto
}

type meetingDTO struct {
	ID          string `json:"id"`
	RequestID   string `json:"request_id"`
	RequesterID string `json:"requester_id"`
	Date        string `json:"date"`
	Start       string `json:"start"`
	End         string `json:"end"`
	StartsAt    string `json:"starts_at"`
	EndsAt      string `json:"ends_at"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

func toMeetingDTO(meeting application.ConfirmedMeeting) meetingDTO {
	return meetingDTO{
		ID:          meeting.ID,
		RequestID:   meeting.RequestID,
		RequesterID: meeting.RequesterID,
		Date:        meeting.Date.Format(scheduler.DateLayout),
		Start:       meeting.Start.Format(scheduler.ClockLayout),
		End:         meeting.End.Format(scheduler.ClockLayout),
		StartsAt:    meeting.Start.Format(time.RFC3339),
		EndsAt:      meeting.End.Format(time.RFC3339),
		Title:       meeting.Title,
		Description: meeting.Description,
		CreatedAt:   meeting.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type requestResponse struct {
	Request requestDTO `json:"request"`
}

type listRequestsResponse struct {
	Requests []requestDTO `json:"requests"`
}

type meetingResponse struct {
	Meeting meetingDTO `json:"meeting"`
}

type listMeetingsResponse struct {
	Meetings []meetingDTO `json:"meetings"`
}

type deleteAllResponse struct {
	Deleted int `json:"deleted"`
}
