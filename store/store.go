package store

import (
	"context"

	"github.com/hrygo/yapper/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// dimensions is the only accepted embedding length.
	dimensions int
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	dimensions := profile.AIEmbeddingDimensions
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &Store{
		driver:     driver,
		profile:    profile,
		dimensions: dimensions,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Dimensions returns the configured embedding length.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// Migrate bootstraps the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}
