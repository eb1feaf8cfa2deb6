package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/portal-scheduler/internal/scheduler"
)

func TestAvailabilityService_GenerateSlots_FullMonday(t *testing.T) {
	t.Parallel()

	h := newHarness()
	list, err := h.availability.GenerateSlots(context.Background(), monday(0, 0))
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}

	if len(list.Slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(list.Slots))
	}
	if got := list.Slots[0].Clock(); got != "09:00" {
		t.Fatalf("expected first slot 09:00, got %s", got)
	}
	if got := list.Slots[15].Clock(); got != "16:30" {
		t.Fatalf("expected last slot 16:30, got %s", got)
	}
	if list.SlotDurationMinutes != 30 {
		t.Fatalf("expected echoed duration 30, got %d", list.SlotDurationMinutes)
	}
	if !list.Date.Equal(monday(0, 0)) {
		t.Fatalf("expected echoed date %v, got %v", monday(0, 0), list.Date)
	}
	if !list.GeneratedAt.Equal(fixedNow()) {
		t.Fatalf("expected generated at %v, got %v", fixedNow(), list.GeneratedAt)
	}
}

func TestAvailabilityService_GenerateSlots_OmitsBookedSlot(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.repo.addMeeting("meeting-1", monday(10, 0), monday(10, 30))

	list, err := h.availability.GenerateSlots(context.Background(), monday(12, 0))
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(list.Slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(list.Slots))
	}
	if _, ok := scheduler.FindSlot(list.Slots, monday(10, 0)); ok {
		t.Fatalf("expected 10:00 to be omitted")
	}
	if _, ok := scheduler.FindSlot(list.Slots, monday(10, 30)); !ok {
		t.Fatalf("expected 10:30 to remain available")
	}
}

func TestAvailabilityService_GenerateSlots_UsesCacheUntilInvalidated(t *testing.T) {
	t.Parallel()

	h := newHarness()
	ctx := context.Background()
	if _, err := h.availability.GenerateSlots(ctx, monday(0, 0)); err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}

	h.repo.addMeeting("meeting-1", monday(9, 0), monday(9, 30))
	cached, err := h.availability.GenerateSlots(ctx, monday(0, 0))
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(cached.Slots) != 16 {
		t.Fatalf("expected cached result with 16 slots, got %d", len(cached.Slots))
	}

	h.availability.Invalidate(ctx)
	fresh, err := h.availability.GenerateSlots(ctx, monday(0, 0))
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(fresh.Slots) != 15 {
		t.Fatalf("expected 15 slots after invalidation, got %d", len(fresh.Slots))
	}
}

func TestAvailabilityService_GenerateSlots_DisabledAndBlockedDays(t *testing.T) {
	t.Parallel()

	h := newHarness()
	policy := scheduler.DefaultPolicy()
	tuesday := policy.Daily[time.Tuesday]
	tuesday.Blocked = true
	policy.Daily[time.Tuesday] = tuesday
	h.policies.policy = &policy

	ctx := context.Background()
	for offset := 0; offset < 14; offset++ {
		date := monday(0, 0).AddDate(0, 0, offset)
		list, err := h.availability.GenerateSlots(ctx, date)
		if err != nil {
			t.Fatalf("GenerateSlots returned error: %v", err)
		}
		switch date.Weekday() {
		case time.Tuesday, time.Saturday, time.Sunday:
			if len(list.Slots) != 0 {
				t.Fatalf("expected no slots on %s, got %d", date.Weekday(), len(list.Slots))
			}
		default:
			if len(list.Slots) != 16 {
				t.Fatalf("expected 16 slots on %s, got %d", date.Weekday(), len(list.Slots))
			}
		}
	}
}

func TestAvailabilityService_GenerateSlots_PersistenceFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.repo.listErr = errors.New("connection refused")

	_, err := h.availability.GenerateSlots(context.Background(), monday(0, 0))
	var pErr *PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}

	h.repo.listErr = nil
	h.policies.loadErr = errors.New("redis down")
	_, err = h.availability.GenerateSlots(context.Background(), monday(0, 0))
	if !errors.As(err, &pErr) {
		t.Fatalf("expected PersistenceError for policy load, got %v", err)
	}
}

func TestAvailabilityService_IsAvailable(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.repo.addMeeting("meeting-1", monday(10, 0), monday(11, 0))
	ctx := context.Background()

	tests := []struct {
		name     string
		start    time.Time
		duration int
		want     bool
	}{
		{name: "before", start: monday(9, 0), duration: 60, want: true},
		{name: "touching end", start: monday(11, 0), duration: 30, want: true},
		{name: "inside", start: monday(10, 15), duration: 15, want: false},
		{name: "straddling start", start: monday(9, 30), duration: 60, want: false},
	}

	for _, tt := range tests {
		got, err := h.availability.IsAvailable(ctx, monday(0, 0), tt.start, tt.duration)
		if err != nil {
			t.Fatalf("%s: IsAvailable returned error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: IsAvailable() = %v, want %v", tt.name, got, tt.want)
		}
	}

	_, err := h.availability.IsAvailable(ctx, monday(0, 0), monday(9, 0), 0)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for zero duration, got %v", err)
	}
}

func TestAvailabilityService_SavePolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("requires admin", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		_, err := h.availability.SavePolicy(ctx, requester, scheduler.DefaultPolicy())
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("rejects invalid policy", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		policy := scheduler.DefaultPolicy()
		policy.SlotDurationMinutes = 0
		setting := policy.Daily[time.Monday]
		setting.EndHour = setting.StartHour
		policy.Daily[time.Monday] = setting

		_, err := h.availability.SavePolicy(ctx, admin, policy)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"slot_duration_minutes", "daily.monday.end_hour"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
		if h.policies.saves != 0 {
			t.Fatalf("expected invalid policy not to be saved")
		}
	})

	t.Run("saves and invalidates", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		if _, err := h.availability.GenerateSlots(ctx, monday(0, 0)); err != nil {
			t.Fatalf("GenerateSlots returned error: %v", err)
		}

		policy := scheduler.DefaultPolicy()
		policy.SlotDurationMinutes = 60
		if _, err := h.availability.SavePolicy(ctx, admin, policy); err != nil {
			t.Fatalf("SavePolicy returned error: %v", err)
		}
		if h.publisher.published() != 1 {
			t.Fatalf("expected one publish, got %d", h.publisher.published())
		}

		list, err := h.availability.GenerateSlots(ctx, monday(0, 0))
		if err != nil {
			t.Fatalf("GenerateSlots returned error: %v", err)
		}
		if len(list.Slots) != 8 {
			t.Fatalf("expected 8 hourly slots after policy change, got %d", len(list.Slots))
		}
	})

	t.Run("wraps store failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		h.policies.saveErr = errors.New("read-only")
		_, err := h.availability.SavePolicy(ctx, admin, scheduler.DefaultPolicy())
		var pErr *PersistenceError
		if !errors.As(err, &pErr) {
			t.Fatalf("expected PersistenceError, got %v", err)
		}
	})
}

func TestAvailabilityService_LoadPolicyNormalizes(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.policies.policy = &scheduler.Policy{
		SlotDurationMinutes: 45,
		Daily:               map[time.Weekday]scheduler.DaySetting{time.Monday: {Enabled: true, StartHour: 8, EndHour: 12}},
	}

	policy, err := h.availability.LoadPolicy(context.Background())
	if err != nil {
		t.Fatalf("LoadPolicy returned error: %v", err)
	}
	if len(policy.Daily) != 7 {
		t.Fatalf("expected all weekdays after normalization, got %d", len(policy.Daily))
	}
	if policy.Daily[time.Monday].StartHour != 8 {
		t.Fatalf("expected stored Monday setting to be kept")
	}
}

func TestAvailabilityService_RejectsInvalidStoredPolicy(t *testing.T) {
	t.Parallel()

	h := newHarness()
	// Written straight to the store, bypassing SavePolicy.
	stored := scheduler.DefaultPolicy()
	stored.SlotDurationMinutes = 60
	stored.Daily[time.Monday] = scheduler.DaySetting{Enabled: true, StartHour: 22, EndHour: 26}
	h.policies.policy = &stored

	ctx := context.Background()
	var pErr *PersistenceError
	if _, err := h.availability.LoadPolicy(ctx); !errors.As(err, &pErr) {
		t.Fatalf("expected PersistenceError from LoadPolicy, got %v", err)
	}

	list, err := h.availability.GenerateSlots(ctx, monday(0, 0))
	if !errors.As(err, &pErr) {
		t.Fatalf("expected PersistenceError from GenerateSlots, got %v", err)
	}
	if len(list.Slots) != 0 {
		t.Fatalf("expected no slots from an invalid policy, got %d", len(list.Slots))
	}

	if _, err := h.submit(ctx, "22:00"); !errors.As(err, &pErr) {
		t.Fatalf("expected PersistenceError from SubmitRequest, got %v", err)
	}
}

func TestAvailabilityService_OpenDays(t *testing.T) {
	t.Parallel()

	h := newHarness()
	ctx := context.Background()

	days, err := h.availability.OpenDays(ctx, monday(0, 0), monday(0, 0).AddDate(0, 0, 13))
	if err != nil {
		t.Fatalf("OpenDays returned error: %v", err)
	}
	if len(days) != 10 {
		t.Fatalf("expected 10 open weekdays over two weeks, got %d", len(days))
	}

	_, err = h.availability.OpenDays(ctx, monday(0, 0), monday(0, 0).AddDate(0, 0, -1))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for inverted window, got %v", err)
	}

	_, err = h.availability.OpenDays(ctx, monday(0, 0), monday(0, 0).AddDate(3, 0, 0))
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for oversized window, got %v", err)
	}
}
