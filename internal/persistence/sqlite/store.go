package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/portal-scheduler/internal/persistence"
	"github.com/example/portal-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/portal-scheduler/internal/scheduler"
)

// timestampLayout stores instants in UTC with a fixed width so that string
// comparison in SQL matches chronological order.
const timestampLayout = "2006-01-02T15:04:05Z"

// BookingStore implements persistence.BookingRepository using SQLite.
//
// Confirmation relies on BEGIN IMMEDIATE transactions: the write lock is
// taken before the pending and overlap checks run, so concurrent
// confirmations are serialized by the database itself.
type BookingStore struct {
	pool     *ConnectionPool
	mapper   *ErrorMapper
	retry    *RetryHelper
	location *time.Location
}

var _ persistence.BookingRepository = (*BookingStore)(nil)

// Open opens the database at path, applies migrations and returns a store
// that reports dates and times in loc.
func Open(ctx context.Context, path string, loc *time.Location, logger *slog.Logger) (*BookingStore, error) {
	pool, err := NewConnectionPool(migration.DefaultSQLiteConfig(path))
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx, logger); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return NewBookingStore(pool, loc), nil
}

// NewBookingStore wraps an already migrated pool.
func NewBookingStore(pool *ConnectionPool, loc *time.Location) *BookingStore {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingStore{
		pool:     pool,
		mapper:   NewErrorMapper(),
		retry:    NewRetryHelper(DefaultRetryConfig()),
		location: loc,
	}
}

// Close closes the underlying pool.
func (s *BookingStore) Close() error {
	return s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *BookingStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateRequest inserts a new request.
func (s *BookingStore) CreateRequest(ctx context.Context, request persistence.MeetingRequest) error {
	if request.ID == "" || !request.Status.Valid() {
		return persistence.ErrConstraintViolation
	}

	return s.retry.WithRetry(ctx, func() error {
		_, err := s.pool.DB().ExecContext(ctx, `
			INSERT INTO meeting_requests (
				id, requester_id, meeting_date, start_at, duration_minutes, title,
				description, status, rejection_reason, created_at, decided_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			request.ID,
			request.RequesterID,
			formatDate(request.Date),
			formatTimestamp(request.Start),
			request.DurationMinutes,
			request.Title,
			nullString(request.Description),
			string(request.Status),
			nullString(request.RejectionReason),
			formatTimestamp(request.CreatedAt),
			nullTimestamp(request.DecidedAt),
		)
		return s.mapper.MapError(err)
	})
}

const requestColumns = `id, requester_id, meeting_date, start_at, duration_minutes, title,
	description, status, rejection_reason, created_at, decided_at`

// GetRequest retrieves a request by ID.
func (s *BookingStore) GetRequest(ctx context.Context, id string) (persistence.MeetingRequest, error) {
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+requestColumns+` FROM meeting_requests WHERE id = ?`, id)
	request, err := s.scanRequest(row)
	if err != nil {
		return persistence.MeetingRequest{}, s.mapper.MapError(err)
	}
	return request, nil
}

// ListRequests returns matching requests ordered by creation time.
func (s *BookingStore) ListRequests(ctx context.Context, filter persistence.RequestFilter) ([]persistence.MeetingRequest, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.RequesterID != "" {
		clauses = append(clauses, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + requestColumns + ` FROM meeting_requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	requests := make([]persistence.MeetingRequest, 0)
	for rows.Next() {
		request, err := s.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapper.MapError(err)
	}
	return requests, nil
}

// RejectRequest moves a pending request to rejected.
func (s *BookingStore) RejectRequest(ctx context.Context, id string, reason *string, decidedAt time.Time) (persistence.MeetingRequest, error) {
	err := s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, `
				UPDATE meeting_requests
				SET status = ?, rejection_reason = ?, decided_at = ?
				WHERE id = ? AND status = ?`,
				string(persistence.RequestRejected),
				nullString(reason),
				formatTimestamp(decidedAt),
				id,
				string(persistence.RequestPending),
			)
			if err != nil {
				return s.mapper.MapError(err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 1 {
				return nil
			}
			return s.missingOrConflict(ctx, tx, id)
		})
	})
	if err != nil {
		return persistence.MeetingRequest{}, err
	}
	return s.GetRequest(ctx, id)
}

// ConfirmRequest atomically confirms a pending request and inserts its meeting.
func (s *BookingStore) ConfirmRequest(ctx context.Context, confirmation persistence.Confirmation) (persistence.ConfirmedMeeting, error) {
	meeting := confirmation.Meeting
	if meeting.ID == "" || !meeting.Start.Before(meeting.End) {
		return persistence.ConfirmedMeeting{}, persistence.ErrConstraintViolation
	}

	err := s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var status string
			err := tx.QueryRowContext(ctx, `SELECT status FROM meeting_requests WHERE id = ?`, confirmation.RequestID).Scan(&status)
			if err != nil {
				return s.mapper.MapError(err)
			}
			if persistence.RequestStatus(status) != persistence.RequestPending {
				return persistence.ErrStateConflict
			}

			var overlapping int
			err = tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM confirmed_meetings
				WHERE meeting_date = ? AND start_at < ? AND end_at > ?`,
				formatDate(meeting.MeetingDate),
				formatTimestamp(meeting.End),
				formatTimestamp(meeting.Start),
			).Scan(&overlapping)
			if err != nil {
				return s.mapper.MapError(err)
			}
			if overlapping > 0 {
				return persistence.ErrOverlap
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO confirmed_meetings (
					id, request_id, requester_id, meeting_date, start_at, end_at,
					title, description, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				meeting.ID,
				confirmation.RequestID,
				meeting.RequesterID,
				formatDate(meeting.MeetingDate),
				formatTimestamp(meeting.Start),
				formatTimestamp(meeting.End),
				meeting.Title,
				nullString(meeting.Description),
				formatTimestamp(meeting.CreatedAt),
			); err != nil {
				return s.mapper.MapError(err)
			}

			if _, err := tx.ExecContext(ctx, `
				UPDATE meeting_requests SET status = ?, decided_at = ? WHERE id = ? AND status = ?`,
				string(persistence.RequestConfirmed),
				formatTimestamp(confirmation.ConfirmedAt),
				confirmation.RequestID,
				string(persistence.RequestPending),
			); err != nil {
				return s.mapper.MapError(err)
			}
			return nil
		})
	})
	if err != nil {
		return persistence.ConfirmedMeeting{}, err
	}
	return s.GetConfirmedMeeting(ctx, meeting.ID)
}

const meetingColumns = `id, request_id, requester_id, meeting_date, start_at, end_at, title, description, created_at`

// GetConfirmedMeeting retrieves a confirmed meeting by ID.
func (s *BookingStore) GetConfirmedMeeting(ctx context.Context, id string) (persistence.ConfirmedMeeting, error) {
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM confirmed_meetings WHERE id = ?`, id)
	meeting, err := s.scanMeeting(row)
	if err != nil {
		return persistence.ConfirmedMeeting{}, s.mapper.MapError(err)
	}
	return meeting, nil
}

// ListConfirmedMeetings returns meetings within the inclusive date range ordered by start.
func (s *BookingStore) ListConfirmedMeetings(ctx context.Context, filter persistence.MeetingFilter) ([]persistence.ConfirmedMeeting, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.From != nil {
		clauses = append(clauses, "meeting_date >= ?")
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "meeting_date <= ?")
		args = append(args, formatDate(*filter.To))
	}

	query := `SELECT ` + meetingColumns + ` FROM confirmed_meetings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_at ASC, id ASC"

	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	meetings := make([]persistence.ConfirmedMeeting, 0)
	for rows.Next() {
		meeting, err := s.scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapper.MapError(err)
	}
	return meetings, nil
}

// DeleteConfirmedMeeting removes a confirmed meeting by ID.
func (s *BookingStore) DeleteConfirmedMeeting(ctx context.Context, id string) error {
	return s.retry.WithRetry(ctx, func() error {
		result, err := s.pool.DB().ExecContext(ctx, `DELETE FROM confirmed_meetings WHERE id = ?`, id)
		if err != nil {
			return s.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// DeleteAllConfirmedMeetings removes every confirmed meeting.
func (s *BookingStore) DeleteAllConfirmedMeetings(ctx context.Context) (int, error) {
	var removed int64
	err := s.retry.WithRetry(ctx, func() error {
		result, err := s.pool.DB().ExecContext(ctx, `DELETE FROM confirmed_meetings`)
		if err != nil {
			return s.mapper.MapError(err)
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (s *BookingStore) missingOrConflict(ctx context.Context, tx *sql.Tx, id string) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM meeting_requests WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	if err != nil {
		return s.mapper.MapError(err)
	}
	return persistence.ErrStateConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *BookingStore) scanRequest(row rowScanner) (persistence.MeetingRequest, error) {
	var (
		request                      persistence.MeetingRequest
		date, start, status, created string
		description, reason, decided sql.NullString
	)
	if err := row.Scan(
		&request.ID,
		&request.RequesterID,
		&date,
		&start,
		&request.DurationMinutes,
		&request.Title,
		&description,
		&status,
		&reason,
		&created,
		&decided,
	); err != nil {
		return persistence.MeetingRequest{}, err
	}

	var err error
	if request.Date, err = s.parseDate(date); err != nil {
		return persistence.MeetingRequest{}, err
	}
	if request.Start, err = s.parseTimestamp(start); err != nil {
		return persistence.MeetingRequest{}, err
	}
	if request.CreatedAt, err = s.parseTimestamp(created); err != nil {
		return persistence.MeetingRequest{}, err
	}
	if decided.Valid {
		at, err := s.parseTimestamp(decided.String)
		if err != nil {
			return persistence.MeetingRequest{}, err
		}
		request.DecidedAt = &at
	}
	request.Status = persistence.RequestStatus(status)
	request.Description = stringPtr(description)
	request.RejectionReason = stringPtr(reason)
	return request, nil
}

func (s *BookingStore) scanMeeting(row rowScanner) (persistence.ConfirmedMeeting, error) {
	var (
		meeting                     persistence.ConfirmedMeeting
		date, start, end, createdAt string
		description                 sql.NullString
	)
	if err := row.Scan(
		&meeting.ID,
		&meeting.RequestID,
		&meeting.RequesterID,
		&date,
		&start,
		&end,
		&meeting.Title,
		&description,
		&createdAt,
	); err != nil {
		return persistence.ConfirmedMeeting{}, err
	}

	var err error
	if meeting.MeetingDate, err = s.parseDate(date); err != nil {
		return persistence.ConfirmedMeeting{}, err
	}
	if meeting.Start, err = s.parseTimestamp(start); err != nil {
		return persistence.ConfirmedMeeting{}, err
	}
	if meeting.End, err = s.parseTimestamp(end); err != nil {
		return persistence.ConfirmedMeeting{}, err
	}
	if meeting.CreatedAt, err = s.parseTimestamp(createdAt); err != nil {
		return persistence.ConfirmedMeeting{}, err
	}
	meeting.Description = stringPtr(description)
	return meeting, nil
}

func (s *BookingStore) parseDate(value string) (time.Time, error) {
	date, err := time.ParseInLocation(scheduler.DateLayout, value, s.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse date %q: %w", value, err)
	}
	return date, nil
}

func (s *BookingStore) parseTimestamp(value string) (time.Time, error) {
	at, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse timestamp %q: %w", value, err)
	}
	return at.In(s.location), nil
}

func formatDate(t time.Time) string {
	return t.Format(scheduler.DateLayout)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	out := value.String
	return &out
}
