package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dyluth/larder/pkg/larder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	ids []string
	err error
}

func (f fakeLister) ListEntries(ctx context.Context) ([]*larder.Entry, []error, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	entries := make([]*larder.Entry, 0, len(f.ids))
	for _, id := range f.ids {
		entries = append(entries, &larder.Entry{ID: id})
	}
	return entries, nil, nil
}

func TestResolveEntryID(t *testing.T) {
	ctx := context.Background()
	lister := fakeLister{ids: []string{
		"3f2a8c4e-1b7d-4e2a-9c1f-0d6b5a4e3c21",
		"3f2a8c99-0000-4e2a-9c1f-0d6b5a4e3c21",
		"a1b2c3d4-1b7d-4e2a-9c1f-0d6b5a4e3c21",
	}}

	t.Run("unique prefix", func(t *testing.T) {
		id, err := ResolveEntryID(ctx, lister, "a1b2c3")
		require.NoError(t, err)
		assert.Equal(t, "a1b2c3d4-1b7d-4e2a-9c1f-0d6b5a4e3c21", id)
	})

	t.Run("prefix is case insensitive", func(t *testing.T) {
		id, err := ResolveEntryID(ctx, lister, "A1B2C3D4")
		require.NoError(t, err)
		assert.Equal(t, "a1b2c3d4-1b7d-4e2a-9c1f-0d6b5a4e3c21", id)
	})

	t.Run("full id", func(t *testing.T) {
		id, err := ResolveEntryID(ctx, lister, "3f2a8c4e-1b7d-4e2a-9c1f-0d6b5a4e3c21")
		require.NoError(t, err)
		assert.Equal(t, "3f2a8c4e-1b7d-4e2a-9c1f-0d6b5a4e3c21", id)
	})

	t.Run("unknown full id", func(t *testing.T) {
		_, err := ResolveEntryID(ctx, lister, "00000000-1b7d-4e2a-9c1f-0d6b5a4e3c21")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := ResolveEntryID(ctx, lister, "3f2a8c")
		require.True(t, IsAmbiguousError(err))
		var amb *AmbiguousError
		require.True(t, errors.As(err, &amb))
		assert.Len(t, amb.Matches, 2)
		assert.Contains(t, err.Error(), "matches 2 entries")
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ResolveEntryID(ctx, lister, "3f2a")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 6 characters")
	})

	t.Run("list failure", func(t *testing.T) {
		_, err := ResolveEntryID(ctx, fakeLister{err: fmt.Errorf("connection refused")}, "a1b2c3")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAmbiguousError_Candidates(t *testing.T) {
	err := &AmbiguousError{ShortID: "abcdef"}
	for i := 0; i < 12; i++ {
		err.Matches = append(err.Matches, fmt.Sprintf("abcdef%02d", i))
	}
	out := err.Candidates()
	assert.Contains(t, out, "  abcdef00\n")
	assert.Contains(t, out, "  abcdef09\n")
	assert.NotContains(t, out, "abcdef10")
	assert.Contains(t, out, "...and 2 more")
}
