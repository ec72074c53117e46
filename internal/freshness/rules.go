package freshness

import (
	"fmt"

	"github.com/dyluth/larder/pkg/larder"
)

// Task categories as assigned to user tasks.
const (
	TaskCategoryProfile   = "profile"
	TaskCategoryDocument  = "document"
	TaskCategoryFinancial = "financial"
	TaskCategoryMatch     = "match"
	TaskCategoryOther     = "other"
)

// SourcesForTaskCategory returns the upstream sources a task verdict of the
// given category depends on. Unknown and "other" categories depend on all
// sources.
func SourcesForTaskCategory(category string) []larder.Source {
	switch category {
	case TaskCategoryProfile:
		return []larder.Source{larder.SourceProfile, larder.SourceExtendedProfile}
	case TaskCategoryDocument:
		return []larder.Source{larder.SourceDocuments}
	case TaskCategoryFinancial:
		return []larder.Source{larder.SourceFinancials}
	case TaskCategoryMatch:
		return []larder.Source{larder.SourceMatches}
	default:
		return larder.AllSources()
	}
}

// Rules maps each kind to the sources its artifacts depend on. Kinds with no
// sources are validated by TTL alone. Task verdicts are always tracked and
// their sources come from the task category.
type Rules struct {
	byKind map[larder.Kind][]larder.Source
}

// NewRules validates and copies the per-kind source lists.
func NewRules(byKind map[larder.Kind][]larder.Source) (*Rules, error) {
	copied := make(map[larder.Kind][]larder.Source, len(byKind))
	for kind, sources := range byKind {
		if err := kind.Validate(); err != nil {
			return nil, err
		}
		for _, src := range sources {
			if err := src.Validate(); err != nil {
				return nil, fmt.Errorf("kind %s: %w", kind, err)
			}
		}
		copied[kind] = append([]larder.Source(nil), sources...)
	}
	return &Rules{byKind: copied}, nil
}

// Tracked reports whether artifacts of kind carry a freshness snapshot.
func (r *Rules) Tracked(kind larder.Kind) bool {
	if kind == larder.KindTaskVerification {
		return true
	}
	return len(r.byKind[kind]) > 0
}

// Relevant returns the sources compared when deciding staleness of kind.
// For task verdicts taskCategory selects the sources; configured sources for
// task verdicts, if any, are added to them.
func (r *Rules) Relevant(kind larder.Kind, taskCategory string) []larder.Source {
	if kind != larder.KindTaskVerification {
		return r.byKind[kind]
	}
	sources := SourcesForTaskCategory(taskCategory)
	for _, extra := range r.byKind[kind] {
		if !contains(sources, extra) {
			sources = append(sources, extra)
		}
	}
	return sources
}

func contains(sources []larder.Source, s larder.Source) bool {
	for _, x := range sources {
		if x == s {
			return true
		}
	}
	return false
}
