package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/cardio-intake/internal/config"
	"github.com/wolfman30/cardio-intake/migrations"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

// migrationsTable keeps the audit schema's version apart from any other
// service sharing the database.
const migrationsTable = "intake_schema_migrations"

const usage = "usage: migrate [up | down | version | force <version>]"

// migrator is the part of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

type command struct {
	name    string
	version int
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{name: "up"}, nil
	}
	switch name := strings.ToLower(args[0]); name {
	case "up", "down", "version":
		if len(args) > 1 {
			return command{}, errors.New(usage)
		}
		return command{name: name}, nil
	case "force":
		if len(args) != 2 {
			return command{}, errors.New(usage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return command{name: name, version: version}, nil
	default:
		return command{}, errors.New(usage)
	}
}

// run applies cmd and returns a line describing the outcome.
func run(m migrator, cmd command) (string, error) {
	switch cmd.name {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				return "audit schema already up to date", nil
			}
			return "", fmt.Errorf("migrate up: %w", err)
		}
		return "audit schema migrated", nil
	case "down":
		if err := m.Steps(-1); err != nil {
			return "", fmt.Errorf("migrate down: %w", err)
		}
		return "rolled back one audit migration", nil
	case "force":
		if err := m.Force(cmd.version); err != nil {
			return "", fmt.Errorf("force version: %w", err)
		}
		return fmt.Sprintf("forced audit schema to version %d", cmd.version), nil
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return "audit schema has no migrations applied", nil
		}
		if err != nil {
			return "", fmt.Errorf("read version: %w", err)
		}
		return fmt.Sprintf("audit schema version %d (dirty=%t)", version, dirty), nil
	default:
		return "", errors.New(usage)
	}
}

func main() {
	envErr := godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		logger.Error("bad arguments", "error", err)
		os.Exit(2)
	}

	databaseURL := strings.TrimSpace(cfg.DatabaseURL)
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required to migrate the audit schema")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to reach audit database", "error", err)
		os.Exit(1)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		logger.Error("failed to create database driver", "error", err)
		os.Exit(1)
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("failed to read embedded migrations", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}

	msg, err := run(m, cmd)
	_, _ = m.Close()
	if err != nil {
		logger.Error("audit migration failed", "command", cmd.name, "error", err)
		os.Exit(1)
	}
	logger.Info(msg, "command", cmd.name, "table", migrationsTable)
}
