package migration

import (
	"context"
	"time"
)

// Migration represents a database migration with its metadata and SQL content
type Migration struct {
	Version     string // Version identifier (e.g., "001", "002")
	Description string // Human-readable description of the migration
	SQL         string // SQL statements to execute
	FilePath    string // Path of the migration file inside its file system
	Checksum    string // SHA-256 of the SQL content
}

// AppliedMigration represents a migration that has been successfully applied
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status provides information about the current migration state
type Status struct {
	CurrentVersion    string
	PendingCount      int
	AppliedMigrations []AppliedMigration
	PendingMigrations []Migration
}

// FileScanner discovers and parses migration files
type FileScanner interface {
	// ScanMigrations returns every migration ordered by version
	ScanMigrations() ([]Migration, error)
}

// Executor handles the actual execution of migrations against the database
type Executor interface {
	// ExecuteMigration runs a single migration within a transaction and
	// records it in the version table as part of the same transaction
	ExecuteMigration(ctx context.Context, migration Migration) (time.Duration, error)

	// InitializeVersionTable creates the schema_migrations table if it doesn't exist
	InitializeVersionTable(ctx context.Context) error

	// GetAppliedVersions returns all applied migration versions ordered by version
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}
