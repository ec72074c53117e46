// Package resolver expands short entry ID prefixes to full entry IDs.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/larder/pkg/larder"
	"github.com/google/uuid"
)

// MinShortIDLength is the shortest prefix accepted.
const MinShortIDLength = 6

// maxListed caps how many candidates an ambiguity message shows.
const maxListed = 10

// EntryLister reads every stored entry. *larder.Client implements it.
type EntryLister interface {
	ListEntries(ctx context.Context) ([]*larder.Entry, []error, error)
}

// ResolveEntryID returns the full ID of the single entry whose ID starts
// with prefix. A full UUID is returned as-is when an entry carries it.
func ResolveEntryID(ctx context.Context, lister EntryLister, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))

	full := false
	if _, err := uuid.Parse(prefix); err == nil {
		full = true
	} else if len(prefix) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(prefix))
	}

	entries, _, err := lister.ListEntries(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to search for entry: %w", err)
	}

	var matches []string
	for _, e := range entries {
		if e.ID == prefix || (!full && strings.HasPrefix(e.ID, prefix)) {
			matches = append(matches, e.ID)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: prefix, Matches: matches}
	}
}

// NotFoundError indicates no entry matched the prefix.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no entries found matching '%s'", e.ShortID)
}

// AmbiguousError indicates several entries matched the prefix.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d entries", e.ShortID, len(e.Matches))
}

// Candidates lists the matching IDs, up to ten, then "...and N more".
func (e *AmbiguousError) Candidates() string {
	var b strings.Builder
	for i, id := range e.Matches {
		if i == maxListed {
			fmt.Fprintf(&b, "  ...and %d more\n", len(e.Matches)-maxListed)
			break
		}
		fmt.Fprintf(&b, "  %s\n", id)
	}
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
