package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/larder/pkg/larder"
)

func writeEventLine(w io.Writer, ev *larder.EntryEvent) error {
	_, err := fmt.Fprintln(w, formatEvent(ev))
	return err
}

func writeEventJSON(w io.Writer, ev *larder.EntryEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// formatEvent renders one event as a human-readable line.
func formatEvent(ev *larder.EntryEvent) string {
	ts := time.UnixMilli(ev.AtMs).Format("15:04:05")

	switch ev.Type {
	case larder.EventPut:
		return fmt.Sprintf("[%s] 📦 Stored %s for %s (entry %s)", ts, ev.Kind, ev.SubjectKey, shortID(ev.EntryID))
	case larder.EventInvalidate:
		return fmt.Sprintf("[%s] 🗑️  Invalidated %s for %s", ts, ev.Kind, ev.SubjectKey)
	default:
		return fmt.Sprintf("[%s] %s %s for %s", ts, ev.Type, ev.Kind, ev.SubjectKey)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
