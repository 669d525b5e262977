package repo

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// Migrate applies every pending schema migration for provider, using the
// embedded SQL set that ships with the binary so a deployment needs no
// external migration files.
func Migrate(db *sql.DB, provider Provider) error {
	var (
		fsys embed.FS
		path string
	)
	switch provider {
	case ProviderPostgres:
		fsys, path = postgresMigrations, "migrations/postgres"
	default:
		fsys, path = sqliteMigrations, "migrations/sqlite"
	}

	src, err := iofs.New(fsys, path)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	var dbDriver database.Driver
	switch provider {
	case ProviderPostgres:
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(provider), dbDriver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
