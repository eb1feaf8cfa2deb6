// Package migration applies versioned SQL migrations to SQLite databases.
//
// Migrations are read from an fs.FS (normally an embedded directory) and must
// be named {version}_{description}.sql, for example "001_booking_schema.sql".
// Applied versions are tracked in a schema_migrations table together with
// the checksum of the file that was applied, so edits to an applied migration
// are detected instead of silently ignored.
//
// Example usage:
//
//	manager := NewManager(NewFileScanner(migrations.FS), NewSQLiteExecutor(db), logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("run migrations: %w", err)
//	}
package migration
