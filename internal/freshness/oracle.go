// Package freshness decides whether a cached artifact still reflects the
// upstream data it was computed from.
package freshness

import (
	"context"
	"fmt"

	"github.com/dyluth/larder/pkg/larder"
)

// RecordSource returns per-source latest modification times for one user.
// *records.Store implements it.
type RecordSource interface {
	Latest(ctx context.Context, userID string) (larder.Snapshot, error)
}

// Oracle computes freshness snapshots for subjects.
type Oracle struct {
	records RecordSource
}

// NewOracle creates an oracle reading from records.
func NewOracle(records RecordSource) *Oracle {
	return &Oracle{records: records}
}

// Snapshot returns, for every source, the latest modification time across
// the subject's parties. A pair subject takes the per-source maximum of both
// parties; sources without data are Epoch.
func (o *Oracle) Snapshot(ctx context.Context, subject larder.Subject) (larder.Snapshot, error) {
	snapshot := larder.NewSnapshot()
	for _, party := range subject.Parties() {
		latest, err := o.records.Latest(ctx, party)
		if err != nil {
			return nil, fmt.Errorf("failed to read upstream timestamps for %s: %w", party, err)
		}
		snapshot = snapshot.Merge(latest)
	}
	return snapshot, nil
}

// Stale reports whether any relevant source in current is strictly newer
// than in recorded. A nil recorded snapshot is always stale.
func Stale(current, recorded larder.Snapshot, relevant []larder.Source) bool {
	if recorded == nil {
		return true
	}
	for _, src := range relevant {
		if current.Get(src).After(recorded.Get(src)) {
			return true
		}
	}
	return false
}
