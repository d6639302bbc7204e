package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ammiranda/knowledge_tree/config"
	"github.com/ammiranda/knowledge_tree/migrations"
)

// SQLRepository is a Repository backed by a migrated SQL schema
type SQLRepository interface {
	Repository
	DB() *sql.DB
	Dialect() migrations.Dialect
}

var (
	_ SQLRepository = (*PostgresRepository)(nil)
	_ SQLRepository = (*SQLiteRepository)(nil)
	_ Repository    = (*BoltRepository)(nil)
	_ Repository    = (*MockRepository)(nil)
)

// New builds the repository selected by cfg.StorageDriver without
// initializing it. The provider supplies database credentials for postgres.
func New(ctx context.Context, cfg *config.AppConfig, provider config.Provider) (Repository, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return NewPostgresRepository(ctx, provider)
	case config.DriverSQLite:
		return NewSQLiteRepository(cfg.SQLitePath), nil
	case config.DriverBolt:
		return NewBoltRepository(cfg.BoltPath), nil
	case config.DriverMemory:
		return NewMockRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// Open builds and initializes the configured repository
func Open(ctx context.Context, cfg *config.AppConfig, provider config.Provider) (Repository, error) {
	repo, err := New(ctx, cfg, provider)
	if err != nil {
		return nil, err
	}
	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", cfg.StorageDriver, err)
	}
	return repo, nil
}
