package hoard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/larder/internal/normalize"
	"github.com/dyluth/larder/pkg/larder"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var testNow = time.Now().UTC().Truncate(time.Millisecond)

func newTestClient(t *testing.T) *larder.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := larder.NewClient(&redis.Options{Addr: mr.Addr()}, "test-ns")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func testEntry(t *testing.T, kind larder.Kind, subject larder.Subject, age, ttl time.Duration) *larder.Entry {
	t.Helper()
	norm, err := normalize.New(nil)
	require.NoError(t, err)

	created := testNow.Add(-age)
	return &larder.Entry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Subject:   subject,
		Artifact:  norm.Default(kind, subject.ViewPoint()),
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}
}

func storeEntries(t *testing.T, client *larder.Client, entries ...*larder.Entry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, client.PutEntry(context.Background(), e, 30*day))
	}
}

var (
	pairSubject = larder.Subject{StartupID: "s1", InvestorID: "i1", Perspective: larder.PerspectiveStartup}
	taskSubject = larder.Subject{UserID: "u1", Scope: "t1"}
	dashSubject = larder.Subject{UserID: "s1", Role: larder.PerspectiveStartup}
)
