package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ammiranda/knowledge_tree/config"
	"github.com/ammiranda/knowledge_tree/migrations"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	sqlStore
	db     *sql.DB
	config *config.DatabaseConfig
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfgProvider config.Provider) (*PostgresRepository, error) {
	cfg, err := config.GetDatabaseConfig(ctx, cfgProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to get database config: %w", err)
	}

	return &PostgresRepository{
		sqlStore: sqlStore{dialect: postgresDialect{}},
		config:   cfg,
	}, nil
}

// Initialize opens the connection pool and applies pending migrations
func (r *PostgresRepository) Initialize(ctx context.Context) error {
	db, err := sql.Open("postgres", r.config.DSN())
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("error pinging database: %w", err)
	}

	if err := migrations.Up(db, migrations.Postgres); err != nil {
		db.Close()
		return err
	}

	r.db = db
	r.q = db
	return nil
}

// Cleanup closes the database connection
func (r *PostgresRepository) Cleanup(ctx context.Context) error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithTransaction runs fn in a REPEATABLE READ transaction so every read of
// the unit of work sees the same snapshot
func (r *PostgresRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return withSQLTransaction(ctx, r.db, r.dialect, &sql.TxOptions{Isolation: sql.LevelRepeatableRead}, fn)
}

// DB returns the underlying connection pool
func (r *PostgresRepository) DB() *sql.DB {
	return r.db
}

// Dialect returns the migration dialect of the schema
func (r *PostgresRepository) Dialect() migrations.Dialect {
	return migrations.Postgres
}
