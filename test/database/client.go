package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"github.com/labelsquor/squorcore/pkg/database"
	"github.com/labelsquor/squorcore/test/util"
)

// NewTestClient creates a fresh PostgreSQL database on the shared test
// container (or the CI service container when CI_DATABASE_URL is set),
// points a *database.Client at it, and lets database.NewClient run
// migrations and create the search indexes. The database is dropped when
// the test completes.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	params := util.GetSharedContainer(t)
	dbName := util.GenerateDatabaseName(t)

	createTestDatabase(t, params, dbName)

	cfg := database.Config{
		Host:         params.Host,
		Port:         params.Port,
		User:         params.User,
		Password:     params.Password,
		Database:     dbName,
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}

	client, err := database.NewClient(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		dropTestDatabase(t, params, dbName)
	})

	return client
}

// TestEnv bundles a migrated *database.Client with the raw connection
// string to the same database, for callers (like the events package) that
// need a stdlib *sql.DB or a bare DSN alongside the pgx pool — e.g. for
// PostgreSQL LISTEN/NOTIFY, which operates on a dedicated connection
// outside the pool.
type TestEnv struct {
	Client *database.Client
	DSN    string
}

// NewTestEnv is NewTestClient plus the raw connection string to the same
// freshly created database.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	ctx := context.Background()

	params := util.GetSharedContainer(t)
	dbName := util.GenerateDatabaseName(t)

	createTestDatabase(t, params, dbName)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		params.User, params.Password, params.Host, params.Port, dbName)

	client, err := database.NewClient(ctx, database.Config{
		Host:         params.Host,
		Port:         params.Port,
		User:         params.User,
		Password:     params.Password,
		Database:     dbName,
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		dropTestDatabase(t, params, dbName)
	})

	return &TestEnv{Client: client, DSN: dsn}
}

// createTestDatabase connects to the admin "postgres" database on the
// shared container and issues CREATE DATABASE for the given name.
func createTestDatabase(t *testing.T, params util.ContainerParams, dbName string) {
	t.Helper()

	db, err := sql.Open("pgx", adminConnString(params))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(context.Background(), fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err, "failed to create test database %s", dbName)
}

func dropTestDatabase(t *testing.T, params util.ContainerParams, dbName string) {
	t.Helper()

	db, err := sql.Open("pgx", adminConnString(params))
	if err != nil {
		t.Logf("warning: could not connect to drop database %s: %v", dbName, err)
		return
	}
	defer func() { _ = db.Close() }()

	// Terminate lingering backends so DROP DATABASE doesn't fail on open connections.
	_, _ = db.ExecContext(context.Background(), fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid()", dbName))

	_, err = db.ExecContext(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
	if err != nil {
		t.Logf("warning: failed to drop database %s: %v", dbName, err)
	}
}

func adminConnString(params util.ContainerParams) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/postgres?sslmode=disable",
		params.User, params.Password, params.Host, params.Port)
}
