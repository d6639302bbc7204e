package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ammiranda/knowledge_tree/migrations"
)

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	sqlStore
	db     *sql.DB
	dbPath string
}

// NewSQLiteRepository creates a SQLite repository stored at dbPath. An empty
// path places the database under ~/.knowledge_tree.
func NewSQLiteRepository(dbPath string) *SQLiteRepository {
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		dbPath = filepath.Join(homeDir, ".knowledge_tree", "knowledge_tree.db")
	}
	return &SQLiteRepository{
		sqlStore: sqlStore{dialect: sqliteDialect{}},
		dbPath:   dbPath,
	}
}

// Initialize opens the database file and applies pending migrations
func (r *SQLiteRepository) Initialize(ctx context.Context) error {
	if dir := filepath.Dir(r.dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", r.dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions from
	// failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("error pinging database: %w", err)
	}

	if err := migrations.Up(db, migrations.SQLite); err != nil {
		db.Close()
		return err
	}

	r.db = db
	r.q = db
	return nil
}

// Cleanup closes the database connection
func (r *SQLiteRepository) Cleanup(ctx context.Context) error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithTransaction runs fn in a SQLite transaction
func (r *SQLiteRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return withSQLTransaction(ctx, r.db, r.dialect, nil, fn)
}

// DB returns the underlying connection
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// Dialect returns the migration dialect of the schema
func (r *SQLiteRepository) Dialect() migrations.Dialect {
	return migrations.SQLite
}
