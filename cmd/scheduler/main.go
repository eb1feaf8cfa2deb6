package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/portal-scheduler/internal/application"
	"github.com/example/portal-scheduler/internal/calendar"
	"github.com/example/portal-scheduler/internal/config"
	httptransport "github.com/example/portal-scheduler/internal/http"
	"github.com/example/portal-scheduler/internal/logging"
	"github.com/example/portal-scheduler/internal/metrics"
	"github.com/example/portal-scheduler/internal/persistence"
	"github.com/example/portal-scheduler/internal/persistence/memory"
	"github.com/example/portal-scheduler/internal/persistence/postgres"
	"github.com/example/portal-scheduler/internal/persistence/sqlite"
	"github.com/example/portal-scheduler/internal/policystore"
	"github.com/example/portal-scheduler/internal/refresh"
)

func main() {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduler terminated", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	bookings, closeBookings, err := openBookingStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBookings()

	var redisClient *redis.Client
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.Error("failed to close redis client", "error", cerr)
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
	}

	policies, err := openPolicyStore(cfg, redisClient)
	if err != nil {
		return err
	}

	coordinator := refresh.NewCoordinator(logger)
	var publisher application.RefreshPublisher = coordinator
	if redisClient != nil {
		bridge := refresh.NewRedisBridge(redisClient, cfg.RefreshChannel, coordinator, logger)
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if cerr := bridge.Close(); cerr != nil {
				logger.Error("failed to close refresh bridge", "error", cerr)
			}
		}()
		publisher = bridge
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewBookingMetrics(registry)

	now := time.Now
	repo := newBookingRepositoryAdapter(bookings)

	availabilityService := application.NewAvailabilityServiceWithLogger(policies, repo, cfg.Location, now, logger).
		WithPublisher(publisher).
		WithRecorder(recorder)
	unsubscribe := coordinator.Subscribe(availabilityService.Invalidate)
	defer unsubscribe()

	bookingService := application.NewBookingServiceWithLogger(repo, availabilityService, nil, now, logger).
		WithPublisher(publisher).
		WithRecorder(recorder).
		WithConfirmGrace(cfg.ConfirmGrace)

	weekStart := cfg.FirstWeekday
	view := calendar.NewView(calendar.Options{Location: cfg.Location, WeekStart: &weekStart})
	calendarService := application.NewCalendarServiceWithLogger(bookingService, view, now, logger)

	authenticator := httptransport.NewTokenAuthenticator(cfg.SessionSecret, cfg.AdminKeyHash, now)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:     httptransport.NewSessionHandler(authenticator, 0, logger),
		Availability: httptransport.NewAvailabilityHandler(availabilityService, logger),
		Bookings:     httptransport.NewBookingHandler(bookingService, cfg.Location, logger),
		Calendar:     httptransport.NewCalendarHandler(calendarService, cfg.Location, logger),
		Refresh:      httptransport.NewRefreshHandler(coordinator, logger),
		Validator:    authenticator,
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening",
		"addr", server.Addr,
		"store", cfg.Store,
		"policy_store", cfg.PolicyStore,
		"timezone", cfg.Location.String(),
		"redis", redisClient != nil,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// openBookingStore opens the configured booking backend. The returned close
// function is always safe to call.
func openBookingStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.BookingRepository, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory booking store; data is lost on restart")
		return memory.New(), func() {}, nil
	case config.StorePostgres:
		store, pool, err := postgres.Open(ctx, cfg.PostgresURL, cfg.Location)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, pool.Close, nil
	case config.StoreSQLite, "":
		store, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.Location, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return store, func() {
			if cerr := store.Close(); cerr != nil {
				logger.Error("failed to close storage", "error", cerr)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func openPolicyStore(cfg config.Config, client *redis.Client) (application.PolicyStore, error) {
	switch cfg.PolicyStore {
	case config.PolicyMemory:
		return policystore.NewMemoryStore(), nil
	case config.PolicyRedis:
		if client == nil {
			return nil, errors.New("redis policy store requires a redis address")
		}
		return policystore.NewRedisStore(client, cfg.PolicyRedisKey), nil
	case config.PolicyFile, "":
		return policystore.NewFileStore(cfg.PolicyFile), nil
	}
	return nil, fmt.Errorf("unknown policy store %q", cfg.PolicyStore)
}

// bookingRepositoryAdapter translates between the application model and the
// persistence model, which stores optional text as nullable columns.
type bookingRepositoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingRepositoryAdapter(repo persistence.BookingRepository) *bookingRepositoryAdapter {
	return &bookingRepositoryAdapter{repo: repo}
}

func (a *bookingRepositoryAdapter) CreateRequest(ctx context.Context, request application.MeetingRequest) (application.MeetingRequest, error) {
	if err := a.repo.CreateRequest(ctx, toPersistenceRequest(request)); err != nil {
		return application.MeetingRequest{}, err
	}
	stored, err := a.repo.GetRequest(ctx, request.ID)
	if err != nil {
		return application.MeetingRequest{}, err
	}
	return toApplicationRequest(stored), nil
}

func (a *bookingRepositoryAdapter) GetRequest(ctx context.Context, id string) (application.MeetingRequest, error) {
	stored, err := a.repo.GetRequest(ctx, id)
	if err != nil {
		return application.MeetingRequest{}, err
	}
	return toApplicationRequest(stored), nil
}

func (a *bookingRepositoryAdapter) ListRequests(ctx context.Context, filter application.RequestFilter) ([]application.MeetingRequest, error) {
	models, err := a.repo.ListRequests(ctx, persistence.RequestFilter{
		RequesterID: filter.RequesterID,
		Status:      persistence.RequestStatus(filter.Status),
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	requests := make([]application.MeetingRequest, 0, len(models))
	for _, model := range models {
		requests = append(requests, toApplicationRequest(model))
	}
	return requests, nil
}

func (a *bookingRepositoryAdapter) RejectRequest(ctx context.Context, id, reason string, decidedAt time.Time) (application.MeetingRequest, error) {
	stored, err := a.repo.RejectRequest(ctx, id, optionalString(reason), decidedAt)
	if err != nil {
		return application.MeetingRequest{}, err
	}
	return toApplicationRequest(stored), nil
}

func (a *bookingRepositoryAdapter) ConfirmRequest(ctx context.Context, confirmation application.Confirmation) (application.ConfirmedMeeting, error) {
	stored, err := a.repo.ConfirmRequest(ctx, persistence.Confirmation{
		RequestID:   confirmation.RequestID,
		Meeting:     toPersistenceMeeting(confirmation.Meeting),
		ConfirmedAt: confirmation.ConfirmedAt,
	})
	if err != nil {
		return application.ConfirmedMeeting{}, err
	}
	return toApplicationMeeting(stored), nil
}

func (a *bookingRepositoryAdapter) GetConfirmedMeeting(ctx context.Context, id string) (application.ConfirmedMeeting, error) {
	stored, err := a.repo.GetConfirmedMeeting(ctx, id)
	if err != nil {
		return application.ConfirmedMeeting{}, err
	}
	return toApplicationMeeting(stored), nil
}

func (a *bookingRepositoryAdapter) ListConfirmedMeetings(ctx context.Context, r application.MeetingRange) ([]application.ConfirmedMeeting, error) {
	models, err := a.repo.ListConfirmedMeetings(ctx, persistence.MeetingFilter{
		From: cloneTime(r.From),
		To:   cloneTime(r.To),
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	meetings := make([]application.ConfirmedMeeting, 0, len(models))
	for _, model := range models {
		meetings = append(meetings, toApplicationMeeting(model))
	}
	return meetings, nil
}

func (a *bookingRepositoryAdapter) DeleteConfirmedMeeting(ctx context.Context, id string) error {
	return a.repo.DeleteConfirmedMeeting(ctx, id)
}

func (a *bookingRepositoryAdapter) DeleteAllConfirmedMeetings(ctx context.Context) (int, error) {
	return a.repo.DeleteAllConfirmedMeetings(ctx)
}

func toApplicationRequest(model persistence.MeetingRequest) application.MeetingRequest {
	return application.MeetingRequest{
		ID:              model.ID,
		RequesterID:     model.RequesterID,
		Date:            model.Date,
		Start:           model.Start,
		DurationMinutes: model.DurationMinutes,
		Title:           model.Title,
		Description:     derefString(model.Description),
		Status:          application.RequestStatus(model.Status),
		RejectionReason: derefString(model.RejectionReason),
		CreatedAt:       model.CreatedAt,
		DecidedAt:       cloneTime(model.DecidedAt),
	}
}

func toPersistenceRequest(request application.MeetingRequest) persistence.MeetingRequest {
	return persistence.MeetingRequest{
		ID:              request.ID,
		RequesterID:     request.RequesterID,
		Date:            request.Date,
		Start:           request.Start,
		DurationMinutes: request.DurationMinutes,
		Title:           request.Title,
		Description:     optionalString(request.Description),
		Status:          persistence.RequestStatus(request.Status),
		RejectionReason: optionalString(request.RejectionReason),
		CreatedAt:       request.CreatedAt,
		DecidedAt:       cloneTime(request.DecidedAt),
	}
}

func toApplicationMeeting(model persistence.ConfirmedMeeting) application.ConfirmedMeeting {
	return application.ConfirmedMeeting{
		ID:          model.ID,
		RequestID:   model.RequestID,
		RequesterID: model.RequesterID,
		Date:        model.MeetingDate,
		Start:       model.Start,
		End:         model.End,
		Title:       model.Title,
		Description: derefString(model.Description),
		CreatedAt:   model.CreatedAt,
	}
}

func toPersistenceMeeting(meeting application.ConfirmedMeeting) persistence.ConfirmedMeeting {
	return persistence.ConfirmedMeeting{
		ID:          meeting.ID,
		RequestID:   meeting.RequestID,
		RequesterID: meeting.RequesterID,
		MeetingDate: meeting.Date,
		Start:       meeting.Start,
		End:         meeting.End,
		Title:       meeting.Title,
		Description: optionalString(meeting.Description),
		CreatedAt:   meeting.CreatedAt,
	}
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	clone := value
	return &clone
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
