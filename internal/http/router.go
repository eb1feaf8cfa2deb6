package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Sessions     *SessionHandler
	Availability *AvailabilityHandler
	Bookings     *BookingHandler
	Calendar     *CalendarHandler
	Refresh      *RefreshHandler
	// Validator authenticates every route except health, metrics and session creation.
	Validator SessionValidator
	// Metrics is mounted at /metrics when set.
	Metrics    http.Handler
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(cfg.Logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	if cfg.Sessions != nil {
		r.Post("/sessions", cfg.Sessions.Create)
		r.Delete("/sessions/current", cfg.Sessions.Delete)
	}

	r.Group(func(r chi.Router) {
		if cfg.Validator != nil {
			r.Use(RequireSession(cfg.Validator, cfg.Logger))
		}

		if h := cfg.Availability; h != nil {
			r.Get("/policy", h.GetPolicy)
			r.Put("/policy", h.PutPolicy)
			r.Get("/slots", h.Slots)
			r.Get("/availability", h.Availability)
			r.Get("/open-days", h.OpenDays)
		}

		if h := cfg.Bookings; h != nil {
			r.Route("/requests", func(r chi.Router) {
				r.Get("/", h.ListRequests)
				r.Post("/", h.Submit)
				r.Get("/{id}", h.GetRequest)
				r.Post("/{id}/confirm", h.Confirm)
				r.Post("/{id}/reject", h.Reject)
			})
			r.Route("/meetings", func(r chi.Router) {
				r.Get("/", h.ListMeetings)
				r.Delete("/", h.DeleteAllMeetings)
				r.Get("/{id}", h.GetMeeting)
				r.Delete("/{id}", h.DeleteMeeting)
			})
		}

		if h := cfg.Calendar; h != nil {
			r.Get("/calendar", h.Render)
			r.Get("/calendar.ics", h.ExportICS)
		}

		if h := cfg.Refresh; h != nil {
			r.Get("/refresh/ws", h.Serve)
		}
	})

	return r
}
