package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/larder/internal/normalize"
	"github.com/dyluth/larder/pkg/larder"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var subject = larder.Subject{StartupID: "s1", InvestorID: "i1", Perspective: larder.PerspectiveInvestor}

func newClient(t *testing.T) *larder.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := larder.NewClient(&redis.Options{Addr: mr.Addr()}, "test-ns")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func newEntry(t *testing.T) *larder.Entry {
	t.Helper()
	norm, err := normalize.New(nil)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &larder.Entry{
		ID:        uuid.New().String(),
		Kind:      larder.KindCompatibility,
		Subject:   subject,
		Artifact:  norm.Default(larder.KindCompatibility, subject.Perspective),
		CreatedAt: now,
		ExpiresAt: now.Add(5 * 24 * time.Hour),
	}
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPollForEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("returns entry when found immediately", func(t *testing.T) {
		client := newClient(t)
		e := newEntry(t)
		require.NoError(t, client.PutEntry(ctx, e, time.Hour))

		found, err := PollForEntry(ctx, client, larder.KindCompatibility, subject, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, e.ID, found.ID)
	})

	t.Run("returns entry when found after delay", func(t *testing.T) {
		client := newClient(t)
		e := newEntry(t)

		go func() {
			time.Sleep(300 * time.Millisecond)
			_ = client.PutEntry(ctx, e, time.Hour)
		}()

		found, err := PollForEntry(ctx, client, larder.KindCompatibility, subject, 3*time.Second)
		require.NoError(t, err)
		assert.Equal(t, e.ID, found.ID)
	})

	t.Run("times out", func(t *testing.T) {
		client := newClient(t)

		start := time.Now()
		_, err := PollForEntry(ctx, client, larder.KindCompatibility, subject, 500*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout waiting for compatibility entry")
		assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		client := newClient(t)
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		_, err := PollForEntry(cctx, client, larder.KindCompatibility, subject, 5*time.Second)
		assert.True(t, errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "context canceled"), err)
	})
}

type fakeEvents struct {
	events chan *larder.EntryEvent
	errs   chan error
}

func (f *fakeEvents) Events() <-chan *larder.EntryEvent { return f.events }
func (f *fakeEvents) Errors() <-chan error              { return f.errs }

func TestStream(t *testing.T) {
	at := time.Date(2025, 10, 29, 13, 4, 5, 0, time.Local).UnixMilli()
	feed := func() *fakeEvents {
		f := &fakeEvents{events: make(chan *larder.EntryEvent, 4), errs: make(chan error, 1)}
		f.events <- &larder.EntryEvent{Type: larder.EventPut, Kind: larder.KindCompatibility, SubjectKey: "pair:s1:i1:investor", EntryID: "0123456789abcdef", AtMs: at}
		f.events <- &larder.EntryEvent{Type: larder.EventInvalidate, Kind: larder.KindTaskVerification, SubjectKey: "user:u1:any:t1", AtMs: at}
		f.events <- &larder.EntryEvent{Type: larder.EventPut, Kind: larder.KindInsights, SubjectKey: "user:u2:startup", EntryID: "fedcba98", AtMs: at}
		f.errs <- errors.New("failed to unmarshal entry event: bad json")
		close(f.events)
		close(f.errs)
		return f
	}

	t.Run("default format", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Stream(context.Background(), feed(), Filter{}, OutputFormatDefault, &buf))

		output := buf.String()
		assert.Contains(t, output, "[13:04:05] 📦 Stored compatibility for pair:s1:i1:investor (entry 01234567)")
		assert.Contains(t, output, "🗑️  Invalidated task_verification for user:u1:any:t1")
		assert.Contains(t, output, "Stored insights for user:u2:startup")
	})

	t.Run("filters by kind and subject", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Stream(context.Background(), feed(), Filter{SubjectPrefix: "user:u1"}, OutputFormatDefault, &buf))
		assert.Contains(t, buf.String(), "user:u1:any:t1")
		assert.NotContains(t, buf.String(), "pair:s1")

		buf.Reset()
		require.NoError(t, Stream(context.Background(), feed(), Filter{Kind: larder.KindInsights}, OutputFormatDefault, &buf))
		assert.Contains(t, buf.String(), "user:u2:startup")
		assert.NotContains(t, buf.String(), "task_verification")
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Stream(context.Background(), feed(), Filter{Kind: larder.KindCompatibility}, OutputFormatJSON, &buf))

		var lines []string
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if strings.HasPrefix(line, "{") {
				lines = append(lines, line)
			}
		}
		require.Len(t, lines, 1)
		var ev larder.EntryEvent
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
		assert.Equal(t, "0123456789abcdef", ev.EntryID)
	})

	t.Run("unknown format", func(t *testing.T) {
		err := Stream(context.Background(), feed(), Filter{}, OutputFormat("xml"), &bytes.Buffer{})
		assert.ErrorContains(t, err, "unknown output format")
	})
}

func TestStreamEntryEvents(t *testing.T) {
	client := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := client.SubscribeEntryEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- Stream(ctx, sub, Filter{}, OutputFormatDefault, &out) }()

	e := newEntry(t)
	require.NoError(t, client.PutEntry(ctx, e, time.Hour))
	_, err = client.InvalidateEntry(ctx, e.Kind, e.Subject)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "Stored compatibility") && strings.Contains(s, "Invalidated compatibility")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}
