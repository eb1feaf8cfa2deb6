// Command migrate applies the embedded Postgres schema migrations.
//
// Usage:
//
//	migrate            apply all pending migrations
//	migrate down       roll back one migration
//	migrate force <n>  mark version n as applied without running it
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/example/portal-scheduler/internal/logging"
	pgmigrations "github.com/example/portal-scheduler/internal/persistence/postgres/migrations"
)

type settings struct {
	DatabaseURL string `env:"SCHEDULER_POSTGRES_URL"`
	LogLevel    string `env:"SCHEDULER_LOG_LEVEL" envDefault:"info"`
}

type command struct {
	name    string
	version int
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{name: "up"}, nil
	}
	switch args[0] {
	case "up", "down":
		return command{name: args[0]}, nil
	case "force":
		if len(args) < 2 {
			return command{}, errors.New("force requires a version")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return command{name: "force", version: version}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", args[0])
}

func main() {
	_ = godotenv.Load()

	var cfg settings
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, "text")

	if err := run(cfg, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg settings, args []string, logger *slog.Logger) error {
	cmd, err := parseCommand(args)
	if err != nil {
		return err
	}
	databaseURL := strings.TrimSpace(cfg.DatabaseURL)
	if databaseURL == "" {
		return errors.New("SCHEDULER_POSTGRES_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(pgmigrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch cmd.name {
	case "force":
		if err := m.Force(cmd.version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("forced migration version", "version", cmd.version)
		return nil
	case "down":
		err = m.Steps(-1)
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", cmd.name, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("read version: %w", verr)
	}
	logger.Info("migrations complete", "command", cmd.name, "version", version, "dirty", dirty)
	return nil
}
