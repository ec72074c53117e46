package hoard

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// GetEntry finds a single entry by ID and writes it as pretty-printed JSON.
func GetEntry(ctx context.Context, lister EntryLister, entryID string, w io.Writer) error {
	if _, err := uuid.Parse(entryID); err != nil {
		return fmt.Errorf("invalid entry ID format: must be a valid UUID")
	}

	entries, _, err := lister.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch entry: %w", err)
	}

	for _, e := range entries {
		if e.ID == entryID {
			if err := FormatSingleJSON(w, e); err != nil {
				return fmt.Errorf("failed to format entry: %w", err)
			}
			return nil
		}
	}
	return &EntryNotFoundError{EntryID: entryID}
}

// EntryNotFoundError reports a missing entry.
type EntryNotFoundError struct {
	EntryID string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("entry with ID '%s' not found", e.EntryID)
}

// IsNotFound returns true if the error is an EntryNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*EntryNotFoundError)
	return ok
}
