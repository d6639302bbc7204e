package migrations

import (
	"context"
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

// Dialect names a supported SQL backend
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// dir returns the embedded migration directory for a dialect
func dir(d Dialect) (string, error) {
	switch d {
	case Postgres:
		return "postgres", nil
	case SQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported migration dialect %q", d)
	}
}

// newMigrate builds a migrate instance over an open connection. The returned
// release func frees what the instance holds without closing db.
func newMigrate(db *sql.DB, d Dialect) (*migrate.Migrate, func(), error) {
	path, err := dir(d)
	if err != nil {
		return nil, nil, err
	}

	source, err := iofs.New(files, path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening embedded migrations: %w", err)
	}

	var (
		driver database.Driver
		conn   *sql.Conn
	)
	switch d {
	case Postgres:
		// the postgres driver pins one pooled connection for its lifetime;
		// taking it ourselves lets release hand it back
		ctx := context.Background()
		if conn, err = db.Conn(ctx); err == nil {
			driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
		}
	case SQLite:
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}

	release := func() {
		source.Close()
		if conn != nil {
			conn.Close()
		}
	}
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("error creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(d), driver)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("error creating migration instance: %w", err)
	}
	return m, release, nil
}

// Up applies every pending migration
func Up(db *sql.DB, d Dialect) error {
	m, release, err := newMigrate(db, d)
	if err != nil {
		return err
	}
	defer release()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}
	return nil
}

// Down rolls back the last applied migration
func Down(db *sql.DB, d Dialect) error {
	m, release, err := newMigrate(db, d)
	if err != nil {
		return err
	}
	defer release()

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("error rolling back migration: %w", err)
	}
	return nil
}

// Version reports the current schema version and whether it is dirty
func Version(db *sql.DB, d Dialect) (uint, bool, error) {
	m, release, err := newMigrate(db, d)
	if err != nil {
		return 0, false, err
	}
	defer release()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
