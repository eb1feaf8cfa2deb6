package migration

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig holds SQLite-specific database configuration
type SQLiteConfig struct {
	// Path is the database file path, or ":memory:"
	Path string

	// BusyTimeout sets how long to wait for database locks
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF)
	Synchronous string

	// ImmediateTransactions starts every transaction with BEGIN IMMEDIATE so
	// writers serialize at BEGIN instead of failing at the first write
	ImmediateTransactions bool

	// MaxOpenConns sets the maximum number of open connections
	MaxOpenConns int

	// ConnMaxLifetime sets the maximum lifetime of connections
	ConnMaxLifetime time.Duration
}

// DefaultSQLiteConfig returns a SQLite configuration with sensible defaults
func DefaultSQLiteConfig(databasePath string) SQLiteConfig {
	return SQLiteConfig{
		Path:                  databasePath,
		BusyTimeout:           5 * time.Second,
		JournalMode:           "WAL",
		Synchronous:           "NORMAL",
		ImmediateTransactions: true,
		MaxOpenConns:          8,
		ConnMaxLifetime:       5 * time.Minute,
	}
}

// Validate validates the SQLite configuration
func (c SQLiteConfig) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}

	validJournalModes := map[string]bool{"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true}
	if c.JournalMode != "" && !validJournalModes[strings.ToUpper(c.JournalMode)] {
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	}

	validSyncModes := map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
	if c.Synchronous != "" && !validSyncModes[strings.ToUpper(c.Synchronous)] {
		return fmt.Errorf("invalid synchronous mode: %s", c.Synchronous)
	}

	if c.MaxOpenConns < 0 {
		return fmt.Errorf("MaxOpenConns cannot be negative")
	}
	return nil
}

// DSN renders the modernc.org/sqlite connection string. Pragmas are passed
// through the DSN so every pooled connection receives them.
func (c SQLiteConfig) DSN() string {
	query := url.Values{}
	query.Add("_pragma", "foreign_keys(1)")
	if c.BusyTimeout > 0 {
		query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalMode != "" {
		query.Add("_pragma", fmt.Sprintf("journal_mode(%s)", strings.ToUpper(c.JournalMode)))
	}
	if c.Synchronous != "" {
		query.Add("_pragma", fmt.Sprintf("synchronous(%s)", strings.ToUpper(c.Synchronous)))
	}
	if c.ImmediateTransactions {
		query.Set("_txlock", "immediate")
	}
	return "file:" + c.Path + "?" + query.Encode()
}

// Open creates the database directory if needed and returns a configured pool
func Open(config SQLiteConfig) (*sql.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}

	if config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if config.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return db, nil
}
