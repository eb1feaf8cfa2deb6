package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/portal-scheduler/internal/persistence"
)

// Postgres SQLSTATE codes the store translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeExclusionViolation  = "23P01"
)

// mapError translates driver errors into persistence sentinels, keeping the
// driver error in the chain for logging.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s: %v", persistence.ErrDuplicate, op, err)
	case codeExclusionViolation:
		return fmt.Errorf("%w: %s: %v", persistence.ErrOverlap, op, err)
	case codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
		return fmt.Errorf("%w: %s: %v", persistence.ErrConstraintViolation, op, err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
