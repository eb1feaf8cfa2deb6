package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/portal-scheduler/internal/persistence"
)

const dateLayout = "2006-01-02"

// PgxPool is the subset of *pgxpool.Pool the store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BookingStore implements persistence.BookingRepository on Postgres.
//
// Confirmations on the same date are serialized with a transaction-scoped
// advisory lock keyed by the date; the confirmed_meetings exclusion
// constraint rejects any overlap that slips past it.
type BookingStore struct {
	pool     PgxPool
	location *time.Location
}

var _ persistence.BookingRepository = (*BookingStore)(nil)

// Open connects to databaseURL and returns a store plus its pool.
func Open(ctx context.Context, databaseURL string, loc *time.Location) (*BookingStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return NewBookingStore(pool, loc), pool, nil
}

// NewBookingStore wraps an existing pool. Dates are reported in loc.
func NewBookingStore(pool PgxPool, loc *time.Location) *BookingStore {
	if pool == nil {
		panic("postgres: pgx pool required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BookingStore{pool: pool, location: loc}
}

const requestColumns = `id, requester_id, meeting_date, start_at, duration_minutes, title,
	description, status, rejection_reason, created_at, decided_at`

const meetingColumns = `id, request_id, requester_id, meeting_date, start_at, end_at, title, description, created_at`

// CreateRequest inserts a new request.
func (s *BookingStore) CreateRequest(ctx context.Context, request persistence.MeetingRequest) error {
	if request.ID == "" || !request.Status.Valid() {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO meeting_requests (`+requestColumns+`)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11)`,
		request.ID,
		request.RequesterID,
		request.Date.Format(dateLayout),
		request.Start.UTC(),
		request.DurationMinutes,
		request.Title,
		request.Description,
		string(request.Status),
		request.RejectionReason,
		request.CreatedAt.UTC(),
		utcPtr(request.DecidedAt),
	)
	if err != nil {
		return mapError("create request", err)
	}
	return nil
}

// GetRequest retrieves a request by ID.
func (s *BookingStore) GetRequest(ctx context.Context, id string) (persistence.MeetingRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM meeting_requests WHERE id = $1`, id)
	request, err := s.scanRequest(row)
	if err != nil {
		return persistence.MeetingRequest{}, mapError("get request", err)
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
		args = append(args, filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + requestColumns + ` FROM meeting_requests`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list requests", err)
	}
	defer rows.Close()

	var requests []persistence.MeetingRequest
	for rows.Next() {
		request, err := s.scanRequest(rows)
		if err != nil {
			return nil, mapError("list requests", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list requests", err)
	}
	return requests, nil
}

// RejectRequest moves a pending request to rejected.
func (s *BookingStore) RejectRequest(ctx context.Context, id string, reason *string, decidedAt time.Time) (persistence.MeetingRequest, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE meeting_requests
		SET status = $1, rejection_reason = $2, decided_at = $3
		WHERE id = $4 AND status = $5
		RETURNING `+requestColumns,
		string(persistence.RequestRejected),
		reason,
		decidedAt.UTC(),
		id,
		string(persistence.RequestPending),
	)
	request, err := s.scanRequest(row)
	if err == nil {
		return request, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return persistence.MeetingRequest{}, mapError("reject request", err)
	}
	// Nothing updated: tell a missing request apart from a decided one.
	if _, err := s.GetRequest(ctx, id); err != nil {
		return persistence.MeetingRequest{}, err
	}
	return persistence.MeetingRequest{}, persistence.ErrStateConflict
}

// ConfirmRequest atomically confirms a pending request and inserts its meeting.
func (s *BookingStore) ConfirmRequest(ctx context.Context, confirmation persistence.Confirmation) (persistence.ConfirmedMeeting, error) {
	meeting := confirmation.Meeting
	if meeting.ID == "" || !meeting.Start.Before(meeting.End) {
		return persistence.ConfirmedMeeting{}, persistence.ErrConstraintViolation
	}
	date := meeting.MeetingDate.Format(dateLayout)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return persistence.ConfirmedMeeting{}, fmt.Errorf("postgres: begin confirm: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, date); err != nil {
		return persistence.ConfirmedMeeting{}, mapError("lock date", err)
	}

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM meeting_requests WHERE id = $1 FOR UPDATE`, confirmation.RequestID).Scan(&status)
	if err != nil {
		return persistence.ConfirmedMeeting{}, mapError("load request", err)
	}
	if persistence.RequestStatus(status) != persistence.RequestPending {
		return persistence.ConfirmedMeeting{}, persistence.ErrStateConflict
	}

	var overlapping bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM confirmed_meetings
			WHERE meeting_date = $1::date AND start_at < $2 AND end_at > $3
		)`,
		date,
		meeting.End.UTC(),
		meeting.Start.UTC(),
	).Scan(&overlapping)
	if err != nil {
		return persistence.ConfirmedMeeting{}, mapError("check overlap", err)
	}
	if overlapping {
		return persistence.ConfirmedMeeting{}, persistence.ErrOverlap
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO confirmed_meetings (`+meetingColumns+`)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)`,
		meeting.ID,
		confirmation.RequestID,
		meeting.RequesterID,
		date,
		meeting.Start.UTC(),
		meeting.End.UTC(),
		meeting.Title,
		meeting.Description,
		meeting.CreatedAt.UTC(),
	); err != nil {
		return persistence.ConfirmedMeeting{}, mapError("insert meeting", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE meeting_requests SET status = $1, decided_at = $2 WHERE id = $3 AND status = $4`,
		string(persistence.RequestConfirmed),
		confirmation.ConfirmedAt.UTC(),
		confirmation.RequestID,
		string(persistence.RequestPending),
	); err != nil {
		return persistence.ConfirmedMeeting{}, mapError("mark confirmed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return persistence.ConfirmedMeeting{}, mapError("commit confirm", err)
	}

	stored := meeting
	stored.RequestID = confirmation.RequestID
	stored.MeetingDate = s.dateIn(meeting.MeetingDate)
	stored.Start = meeting.Start.In(s.location)
	stored.End = meeting.End.In(s.location)
	stored.CreatedAt = meeting.CreatedAt.In(s.location)
	return stored, nil
}

// GetConfirmedMeeting retrieves a confirmed meeting by ID.
func (s *BookingStore) GetConfirmedMeeting(ctx context.Context, id string) (persistence.ConfirmedMeeting, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM confirmed_meetings WHERE id = $1`, id)
	meeting, err := s.scanMeeting(row)
	if err != nil {
		return persistence.ConfirmedMeeting{}, mapError("get meeting", err)
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
		args = append(args, filter.From.In(s.location).Format(dateLayout))
		clauses = append(clauses, fmt.Sprintf("meeting_date >= $%d::date", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.In(s.location).Format(dateLayout))
		clauses = append(clauses, fmt.Sprintf("meeting_date <= $%d::date", len(args)))
	}

	query := `SELECT ` + meetingColumns + ` FROM confirmed_meetings`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY start_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list meetings", err)
	}
	defer rows.Close()

	var meetings []persistence.ConfirmedMeeting
	for rows.Next() {
		meeting, err := s.scanMeeting(rows)
		if err != nil {
			return nil, mapError("list meetings", err)
		}
		meetings = append(meetings, meeting)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list meetings", err)
	}
	return meetings, nil
}

// DeleteConfirmedMeeting removes a single meeting.
func (s *BookingStore) DeleteConfirmedMeeting(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM confirmed_meetings WHERE id = $1`, id)
	if err != nil {
		return mapError("delete meeting", err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// DeleteAllConfirmedMeetings removes every meeting and reports how many were deleted.
func (s *BookingStore) DeleteAllConfirmedMeetings(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM confirmed_meetings`)
	if err != nil {
		return 0, mapError("delete meetings", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *BookingStore) scanRequest(row pgx.Row) (persistence.MeetingRequest, error) {
	var (
		request persistence.MeetingRequest
		status  string
	)
	if err := row.Scan(
		&request.ID,
		&request.RequesterID,
		&request.Date,
		&request.Start,
		&request.DurationMinutes,
		&request.Title,
		&request.Description,
		&status,
		&request.RejectionReason,
		&request.CreatedAt,
		&request.DecidedAt,
	); err != nil {
		return persistence.MeetingRequest{}, err
	}
	request.Status = persistence.RequestStatus(status)
	request.Date = s.dateIn(request.Date)
	request.Start = request.Start.In(s.location)
	request.CreatedAt = request.CreatedAt.In(s.location)
	if request.DecidedAt != nil {
		decided := request.DecidedAt.In(s.location)
		request.DecidedAt = &decided
	}
	return request, nil
}

func (s *BookingStore) scanMeeting(row pgx.Row) (persistence.ConfirmedMeeting, error) {
	var meeting persistence.ConfirmedMeeting
	if err := row.Scan(
		&meeting.ID,
		&meeting.RequestID,
		&meeting.RequesterID,
		&meeting.MeetingDate,
		&meeting.Start,
		&meeting.End,
		&meeting.Title,
		&meeting.Description,
		&meeting.CreatedAt,
	); err != nil {
		return persistence.ConfirmedMeeting{}, err
	}
	meeting.MeetingDate = s.dateIn(meeting.MeetingDate)
	meeting.Start = meeting.Start.In(s.location)
	meeting.End = meeting.End.In(s.location)
	meeting.CreatedAt = meeting.CreatedAt.In(s.location)
	return meeting, nil
}

// dateIn re-anchors a calendar date, which Postgres returns at UTC midnight,
// to midnight in the store's zone.
func (s *BookingStore) dateIn(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.location)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
