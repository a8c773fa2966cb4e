// Package repository is the pgx-backed persistence layer: the concrete
// implementation of every narrow store interface the rest of the module
// defines (workflow.Store, workflow.Lock, queue.ItemStore,
// factmapper.FactStore, cleanup.RetentionStore, and the events catchup
// querier). It issues hand-written SQL against the pool pkg/database opens;
// there is no ORM and no query builder, matching the teacher's preference
// for explicit SQL over generated code.
package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labelsquor/squorcore/pkg/database"
)

// Repository bundles every store interface this module needs behind a
// single pgx connection pool. Callers pass *Repository wherever a narrower
// interface (workflow.Store, queue.ItemStore, ...) is expected; Go's
// structural typing satisfies each automatically.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository over an already-connected, already-migrated
// database.Client.
func New(client *database.Client) *Repository {
	return &Repository{pool: client.Pool}
}
