// Package hoard lists and inspects the entries held in the result cache.
package hoard

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"time"

	"github.com/dyluth/larder/internal/timespec"
	"github.com/dyluth/larder/pkg/larder"
)

// OutputFormat specifies how to format the entry list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with one-line summaries
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete entries as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// State selects entries by logical expiry.
type State string

const (
	StateAny     State = ""
	StateFresh   State = "fresh"
	StateExpired State = "expired"
)

// EntryLister reads every stored entry. *larder.Client implements it.
type EntryLister interface {
	ListEntries(ctx context.Context) ([]*larder.Entry, []error, error)
}

// FilterCriteria defines filtering options for the entries listing.
// All filters are ANDed together.
type FilterCriteria struct {
	Created  timespec.Range // Creation time window
	KindGlob string         // Glob pattern for the kind, empty = no filter
	UserID   string         // Matches single-user subjects and either pair party
	State    State
}

// matchesFilter returns true if the entry matches all filter criteria.
func (fc *FilterCriteria) matchesFilter(e *larder.Entry, now time.Time) bool {
	if !fc.Created.Contains(e.CreatedAt) {
		return false
	}

	if fc.KindGlob != "" {
		matched, err := filepath.Match(fc.KindGlob, string(e.Kind))
		if err != nil || !matched {
			return false
		}
	}

	if fc.UserID != "" && !slices.Contains(e.Subject.Parties(), fc.UserID) {
		return false
	}

	switch fc.State {
	case StateFresh:
		return !e.Expired(now)
	case StateExpired:
		return e.Expired(now)
	}
	return true
}

// ListEntries writes the matching entries of the namespace, newest first.
// Entries that fail to decode are reported to warn and skipped.
func ListEntries(ctx context.Context, lister EntryLister, namespace string, format OutputFormat, filters *FilterCriteria, now time.Time, w, warn io.Writer) error {
	all, skipped, err := lister.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	for _, err := range skipped {
		fmt.Fprintf(warn, "⚠️  Skipping malformed entry: %v\n", err)
	}

	entries := all[:0]
	for _, e := range all {
		if filters != nil && !filters.matchesFilter(e, now) {
			continue
		}
		entries = append(entries, e)
	}

	switch format {
	case OutputFormatDefault:
		FormatTable(w, entries, namespace, now)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, entries); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
