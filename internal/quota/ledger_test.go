package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/larder/pkg/larder"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testLimits(limit int) map[larder.Kind]int {
	limits := make(map[larder.Kind]int)
	for _, k := range larder.AllKinds() {
		limits[k] = limit
	}
	return limits
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func setupLedger(t *testing.T, limit int, clock *fakeClock) *Ledger {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := larder.NewClient(&redis.Options{Addr: mr.Addr()}, "test-ns")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ledger, err := NewLedger(client, testLimits(limit), WithClock(clock.Now))
	require.NoError(t, err)
	return ledger
}

type brokenStore struct{}

func (brokenStore) ConsumeQuota(context.Context, string, larder.Kind, int, time.Time, *time.Location) (*larder.QuotaCounter, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenStore) GetQuota(context.Context, string, larder.Kind) (*larder.QuotaCounter, error) {
	return nil, errors.New("connection refused")
}

func TestNewLedger(t *testing.T) {
	_, err := NewLedger(nil, testLimits(1))
	assert.Error(t, err)

	limits := testLimits(1)
	delete(limits, larder.KindInsights)
	_, err = NewLedger(brokenStore{}, limits)
	assert.ErrorContains(t, err, "insights")

	limits = testLimits(1)
	limits[larder.KindCompatibility] = -1
	_, err = NewLedger(brokenStore{}, limits)
	assert.Error(t, err)
}

func TestLedger_Ceiling(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	ledger := setupLedger(t, 10, clock)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		u := ledger.Consume(ctx, "u1", larder.KindRecommendations)
		require.True(t, u.Allowed, "call %d", i)
		assert.Equal(t, i, u.Used)
		assert.Equal(t, 10, u.Limit)
	}

	u := ledger.Consume(ctx, "u1", larder.KindRecommendations)
	assert.False(t, u.Allowed)
	assert.Equal(t, 10, u.Used)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), u.ResetAt)

	// Denied calls do not increment
	u = ledger.Consume(ctx, "u1", larder.KindRecommendations)
	assert.False(t, u.Allowed)
	assert.Equal(t, 10, u.Used)
}

func TestLedger_Rollover(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 23, 50, 0, 0, time.UTC)}
	ledger := setupLedger(t, 3, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ledger.Consume(ctx, "u1", larder.KindInsights)
	}
	peek, err := ledger.Peek(ctx, "u1", larder.KindInsights)
	require.NoError(t, err)
	assert.Equal(t, 3, peek.Used)
	assert.False(t, peek.Allowed)

	// Twenty minutes later is a new calendar day
	clock.t = time.Date(2024, 6, 2, 0, 10, 0, 0, time.UTC)

	peek, err = ledger.Peek(ctx, "u1", larder.KindInsights)
	require.NoError(t, err)
	assert.Equal(t, 0, peek.Used)
	assert.True(t, peek.Allowed)

	u := ledger.Consume(ctx, "u1", larder.KindInsights)
	assert.True(t, u.Allowed)
	assert.Equal(t, 1, u.Used)
}

func TestLedger_NoRolloverWithinDay(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 0, 1, 0, 0, time.UTC)}
	ledger := setupLedger(t, 2, clock)
	ctx := context.Background()

	ledger.Consume(ctx, "u1", larder.KindInsights)
	ledger.Consume(ctx, "u1", larder.KindInsights)

	// Almost 24h later but still the same date
	clock.t = time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)
	u := ledger.Consume(ctx, "u1", larder.KindInsights)
	assert.False(t, u.Allowed)
}

func TestLedger_FailOpen(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ledger, err := NewLedger(brokenStore{}, testLimits(0), WithLogger(zap.New(core)))
	require.NoError(t, err)

	u := ledger.Consume(context.Background(), "u1", larder.KindBeliefAnalysis)
	assert.True(t, u.Allowed)
	assert.True(t, u.FailOpen)
	assert.Equal(t, 1, logs.FilterMessage("quota store unavailable, failing open").Len())

	_, err = ledger.Peek(context.Background(), "u1", larder.KindBeliefAnalysis)
	assert.Error(t, err)
}

func TestLedger_PeekAll(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	ledger := setupLedger(t, 5, clock)
	ctx := context.Background()

	ledger.Consume(ctx, "u1", larder.KindCompatibility)

	all, err := ledger.PeekAll(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, len(larder.AllKinds()))
	for _, u := range all {
		if u.Kind == larder.KindCompatibility {
			assert.Equal(t, 1, u.Used)
		} else {
			assert.Equal(t, 0, u.Used)
		}
	}
}
