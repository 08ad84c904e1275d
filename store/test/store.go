// Package test holds store integration tests that run against a real driver.
// DRIVER selects the backend (sqlite by default); postgres needs POSTGRES_TEST_DSN.
package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/yapper/internal/profile"
	"github.com/hrygo/yapper/store"
	"github.com/hrygo/yapper/store/db"
)

// TestDimensions is the embedding length used by the integration tests.
const TestDimensions = 3

func getDriverFromEnv() string {
	if driver := os.Getenv("DRIVER"); driver != "" {
		return driver
	}
	return "sqlite"
}

func getTestingProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p := &profile.Profile{
		Mode:                  "dev",
		Driver:                getDriverFromEnv(),
		AIEmbeddingDimensions: TestDimensions,
	}

	switch p.Driver {
	case "postgres":
		p.DSN = os.Getenv("POSTGRES_TEST_DSN")
		if p.DSN == "" {
			t.Skip("POSTGRES_TEST_DSN not set")
		}
	default:
		p.Data = t.TempDir()
		p.DSN = filepath.Join(p.Data, "yapper_test.db")
	}
	return p
}

// NewTestingStore opens a migrated store and closes it when the test ends.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	p := getTestingProfile(t)

	driver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}
	s := store.New(driver, p)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// newOwner returns an owner id unique to this run so tests can share a database.
func newOwner(name string) string {
	return name + "-" + shortuuid.New()
}
