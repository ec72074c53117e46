// Package watch follows cache activity: it streams entry events as they are
// published and polls for an entry to appear.
package watch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/larder/pkg/larder"
)

// OutputFormat specifies how streamed events are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// Events is an open event subscription. *larder.Subscription implements it.
type Events interface {
	Events() <-chan *larder.EntryEvent
	Errors() <-chan error
}

// Subscriber opens event subscriptions. *larder.Client implements it.
type Subscriber interface {
	SubscribeEntryEvents(ctx context.Context) (*larder.Subscription, error)
}

// Filter selects events. Empty fields match everything.
type Filter struct {
	Kind          larder.Kind
	SubjectPrefix string // e.g. "user:u1" or "pair:s1"
}

func (f Filter) matches(ev *larder.EntryEvent) bool {
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	return strings.HasPrefix(ev.SubjectKey, f.SubjectPrefix)
}

// StreamEntryEvents subscribes to the namespace's entry events and writes
// them to w until ctx is cancelled.
func StreamEntryEvents(ctx context.Context, sub Subscriber, filter Filter, format OutputFormat, w io.Writer) error {
	s, err := sub.SubscribeEntryEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer s.Close()

	return Stream(ctx, s, filter, format, w)
}

// Stream writes events from an open subscription until ctx is cancelled or
// the subscription closes. Undecodable events are reported inline.
func Stream(ctx context.Context, src Events, filter Filter, format OutputFormat, w io.Writer) error {
	var formatter func(io.Writer, *larder.EntryEvent) error
	switch format {
	case OutputFormatDefault:
		formatter = writeEventLine
	case OutputFormatJSON:
		formatter = writeEventJSON
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	events, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !filter.matches(ev) {
				continue
			}
			if err := formatter(w, ev); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(w, "⚠️  %v\n", err)
		}
	}
}

// EntryGetter reads one entry. *larder.Client implements it.
type EntryGetter interface {
	GetEntry(ctx context.Context, kind larder.Kind, subject larder.Subject) (*larder.Entry, error)
}

// PollForEntry polls until the entry for (kind, subject) exists and returns it.
// Polls every 200ms for the specified timeout duration.
func PollForEntry(ctx context.Context, client EntryGetter, kind larder.Kind, subject larder.Subject, timeout time.Duration) (*larder.Entry, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		entry, err := client.GetEntry(ctx, kind, subject)
		switch {
		case err == nil:
			return entry, nil
		case !larder.IsNotFound(err):
			return nil, fmt.Errorf("failed to query for entry: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for %s entry of %s after %v", kind, subject.Key(), timeout)
		case <-ticker.C:
		}
	}
}
