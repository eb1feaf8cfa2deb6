package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/portal-scheduler/internal/persistence"
	"github.com/example/portal-scheduler/internal/persistence/sqlite"
)

// SQLiteHarness provides a booking store backed by a temporary, migrated
// SQLite file for integration-style persistence tests.
type SQLiteHarness struct {
	Bookings persistence.BookingRepository
	Store    *sqlite.BookingStore
	Path     string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a store in tb's temporary directory. Close is
// registered with tb.Cleanup, so calling it explicitly is optional.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "scheduler.db")
	store, err := sqlite.Open(context.Background(), path, JST, nil)
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}

	harness := &SQLiteHarness{
		Bookings: store,
		Store:    store,
		Path:     path,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
