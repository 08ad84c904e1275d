package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/yapper/internal/profile"
	"github.com/hrygo/yapper/store"
)

// PostgreSQL is the production driver. Embeddings live in a pgvector
// column without a fixed dimension so a model change never needs DDL;
// the store enforces the configured length on write.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// Open the PostgreSQL connection
	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	// Verify connection is working before returning
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping database", "error", err)
		return nil, errors.Wrap(err, "failed to ping database")
	}

	var driver store.Driver = &DB{
		db:      db,
		profile: profile,
	}
	return driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS entry (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	display_id INTEGER NOT NULL,
	content TEXT NOT NULL,
	normalized_content TEXT,
	embedding vector,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	CONSTRAINT entry_owner_display_id_key UNIQUE (owner_id, display_id)
);

CREATE INDEX IF NOT EXISTS idx_entry_owner_created ON entry (owner_id, created_ts DESC);
`

// Migrate creates the schema if it is missing. It is safe to run on every start.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
