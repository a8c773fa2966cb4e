// Package database provides the PostgreSQL connection pool and embedded
// migration runner shared by every repository in pkg/repository.
package database

import (
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"context"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds database connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN returns the libpq connection string for cfg. Exported for callers
// that need their own dedicated connection outside Pool — namely
// pkg/events.NotifyListener, whose LISTEN connection must not be returned
// to the pool between notifications.
func DSN(cfg Config) string {
	return cfg.dsn()
}

func (c Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Client wraps a pgx connection pool. Every repository in pkg/repository
// takes a *Client and issues hand-written SQL against Pool.
type Client struct {
	Pool *pgxpool.Pool
}

// DB returns a database/sql handle backed by the same underlying pool as
// Pool, for collaborators (pkg/events.EventPublisher) written against the
// standard library interface instead of pgx's native one. Closing the
// returned *sql.DB does not close Pool.
func (c *Client) DB() *stdsql.DB {
	return stdlib.OpenDBFromPool(c.Pool)
}

// NewClientFromPool wraps an existing pool, useful for tests that build a
// pool against a testcontainers-managed database.
func NewClientFromPool(pool *pgxpool.Pool) *Client {
	return &Client{Pool: pool}
}

// NewClient opens a connection pool, runs pending migrations, and returns a
// ready-to-use Client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createSearchIndexes(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create search indexes: %w", err)
	}

	return &Client{Pool: pool}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() {
	c.Pool.Close()
}

// runMigrations applies pending schema migrations using golang-migrate
// against an embedded migration set, so a built binary never depends on
// migration files being present on disk at deploy time.
//
// Migration workflow: edit pkg/database/migrations/*.sql directly (there is
// no ORM codegen step in this module), commit, and the binary applies
// pending migrations on startup via this function.
func runMigrations(cfg Config) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found - binary may be built incorrectly")
	}

	db, err := stdsql.Open("pgx", cfg.dsn())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Database, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > 4 && entry.Name()[len(entry.Name())-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}

// createSearchIndexes creates the GIN full-text indexes migrations do not
// express well as plain column definitions.
func createSearchIndexes(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_products_name_gin
		 ON products USING gin(to_tsvector('english', name))`,
		`CREATE INDEX IF NOT EXISTS idx_ingredient_facts_raw_text_gin
		 ON ingredient_facts USING gin(to_tsvector('english', raw_text))`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create search index: %w", err)
		}
	}
	return nil
}
