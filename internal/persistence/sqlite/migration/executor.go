package migration

import (
	"context"
	"database/sql"
	"time"
)

// SQLiteExecutor implements the Executor interface for SQLite databases
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// ExecuteMigration runs a single migration within a transaction
func (e *SQLiteExecutor) ExecuteMigration(ctx context.Context, migration Migration) (time.Duration, error) {
	started := e.now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewDatabaseError(migration.Version, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range SplitStatements(migration.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, NewDatabaseError(migration.Version, "execute statement", err)
		}
	}

	elapsed := e.now().Sub(started)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		migration.Version,
		e.now().UTC().Format(time.RFC3339),
		migration.Checksum,
		elapsed.Milliseconds(),
	); err != nil {
		return 0, NewDatabaseError(migration.Version, "record migration", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, NewDatabaseError(migration.Version, "commit transaction", err)
	}
	return elapsed, nil
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT,
			execution_time_ms INTEGER
		)`)
	if err != nil {
		return NewDatabaseError("", "create schema_migrations table", err)
	}
	return nil
}

// GetAppliedVersions returns all applied migration versions with timestamps
func (e *SQLiteExecutor) GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT version, applied_at, COALESCE(execution_time_ms, 0), COALESCE(checksum, '')
		FROM schema_migrations
		ORDER BY CAST(version AS INTEGER) ASC`)
	if err != nil {
		return nil, NewDatabaseError("", "get applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			version, appliedAt, checksum string
			executionMs                  int64
		)
		if err := rows.Scan(&version, &appliedAt, &executionMs, &checksum); err != nil {
			return nil, NewDatabaseError("", "scan applied migration", err)
		}
		at, err := time.Parse(time.RFC3339, appliedAt)
		if err != nil {
			return nil, NewDatabaseError(version, "parse applied_at", err)
		}
		applied = append(applied, AppliedMigration{
			Version:       version,
			AppliedAt:     at,
			ExecutionTime: time.Duration(executionMs) * time.Millisecond,
			Checksum:      checksum,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", "iterate applied migrations", err)
	}
	return applied, nil
}
