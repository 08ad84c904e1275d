package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	// Entry model related methods.
	// CreateEntry assigns DisplayID inside the insert statement and returns
	// ErrDisplayIDConflict when the (owner_id, display_id) constraint fires.
	CreateEntry(ctx context.Context, create *Entry) (*Entry, error)
	ListEntries(ctx context.Context, find *FindEntry) ([]*Entry, error)
	UpdateEntry(ctx context.Context, update *UpdateEntry) error
	DeleteEntry(ctx context.Context, delete *DeleteEntry) error
	NextDisplayID(ctx context.Context, ownerID string) (int32, error)

	// UpdateEntryEmbedding overwrites the embedding of a single entry.
	UpdateEntryEmbedding(ctx context.Context, update *UpdateEntryEmbedding) error
}
