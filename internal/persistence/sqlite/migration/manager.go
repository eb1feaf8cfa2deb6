package migration

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager orchestrates the migration process
type Manager struct {
	scanner  FileScanner
	executor Executor
	logger   *slog.Logger
}

// NewManager creates a new Manager
func NewManager(scanner FileScanner, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:  scanner,
		executor: executor,
		logger:   logger.With("component", "sqlite_migration"),
	}
}

// RunMigrations executes all pending migrations in sequential order
func (m *Manager) RunMigrations(ctx context.Context) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}

	if status.PendingCount == 0 {
		m.logger.DebugContext(ctx, "database schema up to date", "version", status.CurrentVersion)
		return nil
	}

	m.logger.InfoContext(ctx, "applying migrations", "from_version", status.CurrentVersion, "pending", status.PendingCount)
	for _, migration := range status.PendingMigrations {
		elapsed, err := m.executor.ExecuteMigration(ctx, migration)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "file", migration.FilePath, "error", err)
			return NewMigrationError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"duration", elapsed,
		)
	}
	return nil
}

// Status compares available migrations with the version table.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize version table: %w", err)
	}

	available, err := m.scanner.ScanMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}
	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied versions: %w", err)
	}

	byVersion := make(map[string]Migration, len(available))
	for _, migration := range available {
		byVersion[migration.Version] = migration
	}

	status := &Status{AppliedMigrations: applied}
	appliedSet := make(map[string]bool, len(applied))
	for _, record := range applied {
		migration, ok := byVersion[record.Version]
		if !ok {
			return nil, fmt.Errorf("%w: applied migration %s not found in available migrations", ErrVersionConflict, record.Version)
		}
		if record.Checksum != "" && record.Checksum != migration.Checksum {
			return nil, NewMigrationError(record.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
		appliedSet[record.Version] = true
		if versionNumber(record.Version) > versionNumber(status.CurrentVersion) {
			status.CurrentVersion = record.Version
		}
	}

	for _, migration := range available {
		if appliedSet[migration.Version] {
			continue
		}
		if status.CurrentVersion != "" && versionNumber(migration.Version) < versionNumber(status.CurrentVersion) {
			return nil, fmt.Errorf("%w: migration %s is older than applied version %s", ErrVersionConflict, migration.Version, status.CurrentVersion)
		}
		status.PendingMigrations = append(status.PendingMigrations, migration)
	}
	status.PendingCount = len(status.PendingMigrations)
	return status, nil
}
