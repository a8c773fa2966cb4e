package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labelsquor/squorcore/pkg/database"
	"github.com/labelsquor/squorcore/test/util"
)

// SharedTestDB creates a single PostgreSQL database that can be shared by
// multiple test replicas. Each replica gets its own connection pool via
// NewClient, but all pools point to the same database — enabling
// cross-replica tests that exercise PostgreSQL NOTIFY/LISTEN event
// delivery, since LISTEN/NOTIFY channels are scoped to a database, not a
// connection pool.
type SharedTestDB struct {
	params util.ContainerParams
	dbName string
}

// NewSharedTestDB creates the shared database, runs migrations and the
// search indexes once via database.NewClient, and registers t.Cleanup to
// drop the database once every replica using it has shut down.
// Call NewClient to create independent clients for each replica.
func NewSharedTestDB(t *testing.T) *SharedTestDB {
	t.Helper()
	ctx := context.Background()

	params := util.GetSharedContainer(t)
	dbName := util.GenerateDatabaseName(t)

	createTestDatabase(t, params, dbName)

	// Run migrations and create search indexes once, then close this pool
	// — each replica opens its own via NewClient.
	bootstrap, err := database.NewClient(ctx, database.Config{
		Host:         params.Host,
		Port:         params.Port,
		User:         params.User,
		Password:     params.Password,
		Database:     dbName,
		SSLMode:      "disable",
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	bootstrap.Close()

	s := &SharedTestDB{params: params, dbName: dbName}

	// Drop the database after all replicas have shut down (LIFO order
	// guarantees replica cleanups run before this one).
	t.Cleanup(func() {
		dropTestDatabase(t, params, dbName)
	})

	return s
}

// NewClient creates an independent *database.Client backed by a fresh
// connection pool to the shared database. Each client has its own pool so
// replicas can be shut down independently without races. database.NewClient
// still runs its migration step; after NewSharedTestDB it finds nothing
// left to apply.
func (s *SharedTestDB) NewClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	client, err := database.NewClient(ctx, database.Config{
		Host:         s.params.Host,
		Port:         s.params.Port,
		User:         s.params.User,
		Password:     s.params.Password,
		Database:     s.dbName,
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
	})

	return client
}
