package store

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryNotFound is returned when an entry does not exist or belongs to another owner.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryChanged is returned by conditional writes when the entry was edited,
	// embedded or deleted since it was read.
	ErrEntryChanged = errors.New("entry changed since it was read")
	// ErrDisplayIDConflict is returned by drivers when a concurrent insert took the same display id.
	ErrDisplayIDConflict = errors.New("display id already taken")
)

// DimensionMismatchError reports a vector whose length differs from the configured dimensions.
type DimensionMismatchError struct {
	EntryID  string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	if e.EntryID == "" {
		return fmt.Sprintf("embedding has %d dimensions, want %d", e.Actual, e.Expected)
	}
	return fmt.Sprintf("embedding for entry %s has %d dimensions, want %d", e.EntryID, e.Actual, e.Expected)
}
