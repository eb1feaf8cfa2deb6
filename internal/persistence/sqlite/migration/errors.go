package migration

import (
	"errors"
	"fmt"
)

// Migration-specific error types for different failure scenarios
var (
	// ErrMigrationFailed indicates that a migration execution failed
	ErrMigrationFailed = errors.New("migration execution failed")

	// ErrInvalidMigrationFile indicates that a migration file is malformed or invalid
	ErrInvalidMigrationFile = errors.New("invalid migration file format")

	// ErrDuplicateVersion indicates that multiple migrations have the same version
	ErrDuplicateVersion = errors.New("duplicate migration version")

	// ErrVersionConflict indicates applied and available migrations disagree
	ErrVersionConflict = errors.New("migration version conflict")

	// ErrChecksumMismatch indicates an applied migration file was edited afterwards
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

// MigrationError wraps migration-specific errors with additional context
type MigrationError struct {
	Version   string // Migration version that caused the error
	FilePath  string // Path to the migration file
	Operation string // Operation being performed (scan, execute, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *MigrationError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("migration %s (%s): %s: %v", e.Version, e.FilePath, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration error (%s): %s: %v", e.FilePath, e.Operation, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewMigrationError creates a new MigrationError with context
func NewMigrationError(version, filePath, operation string, err error) *MigrationError {
	return &MigrationError{
		Version:   version,
		FilePath:  filePath,
		Operation: operation,
		Err:       err,
	}
}

// DatabaseError wraps database-related errors during migration operations
type DatabaseError struct {
	Version   string // Migration version (if applicable)
	Operation string // Database operation (execute, query, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("database error in migration %s during %s: %v", e.Version, e.Operation, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(version, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Version:   version,
		Operation: operation,
		Err:       err,
	}
}
