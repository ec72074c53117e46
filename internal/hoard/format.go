package hoard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/larder/pkg/larder"
)

// FormatTable writes entries as a formatted table to the provided writer.
// Columns: ID, KIND, SUBJECT, STATE, AGE and a one-line artifact summary.
// Returns the number of entries formatted.
func FormatTable(w io.Writer, entries []*larder.Entry, namespace string, now time.Time) int {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No entries found in namespace '%s'\n", namespace)
		return 0
	}

	fmt.Fprintf(w, "Entries in namespace '%s':\n\n", namespace)

	fmt.Fprintf(w, "%-10s %-8s %-34s %-8s %-8s %s\n",
		"ID", "KIND", "SUBJECT", "STATE", "AGE", "SUMMARY")
	fmt.Fprintf(w, "%-10s %-8s %-34s %-8s %-8s %s\n",
		"----------", "--------", "----------------------------------", "--------", "--------", "------------------------------")

	for _, e := range entries {
		fmt.Fprintf(w, "%-10s %-8s %-34s %-8s %-8s %s\n",
			formatID(e.ID),
			formatKind(e.Kind),
			formatSubject(e.Subject),
			formatState(e, now),
			formatAge(e.CreatedAt, now),
			formatSummary(e.Artifact),
		)
	}

	noun := "entry"
	if len(entries) != 1 {
		noun = "entries"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(entries), noun)

	return len(entries)
}

// FormatJSONL writes entries as line-delimited JSON, one entry per line.
func FormatJSONL(w io.Writer, entries []*larder.Entry) error {
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes a single entry as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, e *larder.Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID truncates entry ID to first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatKind(kind larder.Kind) string {
	switch kind {
	case larder.KindCompatibility:
		return "compat"
	case larder.KindBeliefAnalysis:
		return "belief"
	case larder.KindRecommendations:
		return "recs"
	case larder.KindTaskVerification:
		return "task"
	}
	return string(kind)
}

// formatSubject shortens the subject key to fit its column.
func formatSubject(s larder.Subject) string {
	key := s.Key()
	if len(key) > 34 {
		return key[:31] + "..."
	}
	return key
}

func formatState(e *larder.Entry, now time.Time) string {
	if e.Expired(now) {
		return "expired"
	}
	return "fresh"
}

// formatSummary condenses an artifact into one line.
func formatSummary(a *larder.Artifact) string {
	if a == nil {
		return "-"
	}

	var s string
	switch {
	case a.Compatibility != nil:
		s = fmt.Sprintf("score %d", a.Compatibility.OverallScore)
	case a.BeliefAnalysis != nil:
		s = fmt.Sprintf("match %d, %d mitigations", a.BeliefAnalysis.OverallMatch, len(a.BeliefAnalysis.RiskMitigationRecommendations))
	case a.Recommendations != nil:
		s = plural(len(a.Recommendations.Recommendations), "recommendation")
	case a.Insights != nil:
		s = plural(len(a.Insights.Insights), "insight")
	case a.TaskVerdict != nil && a.TaskVerdict.Completed:
		s = "completed"
	case a.TaskVerdict != nil:
		s = "incomplete: " + a.TaskVerdict.Message
	default:
		return "-"
	}

	if a.SchemaVersion < larder.CurrentSchemaVersion {
		s += fmt.Sprintf(" (v%d)", a.SchemaVersion)
	}
	if len(s) > 40 {
		return s[:37] + "..."
	}
	return s
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// formatAge shows how long ago t was, like "2m ago" or "3d ago".
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
