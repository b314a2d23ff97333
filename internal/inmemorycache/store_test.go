package inmemorycache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mediagraph/internal/cachestore"
	"github.com/vk/mediagraph/internal/graph"
)

func textEntry(id, inputHash, text string) cachestore.Entry {
	return cachestore.Entry{
		ID:        id,
		Name:      id,
		Hash:      "content-" + text,
		InputHash: inputHash,
		Result:    &graph.Result{Items: []graph.Item{{Kind: graph.KindText, Text: text}}},
	}
}

func TestPutAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	// A miss before any write is not an error.
	entry, err := s.Get(ctx, "a", "h1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, s.Put(ctx, textEntry("a", "h1", "hello")))

	entry, err = s.Get(ctx, "a", "h1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "hello", entry.Result.First().Text)
	assert.NotZero(t, entry.Age)
}

func TestGetMissesOnDifferentInputHash(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, textEntry("a", "h1", "hello")))

	entry, err := s.Get(ctx, "a", "h2")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestPutReplacesPriorEntry(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, textEntry("a", "h1", "old")))
	require.NoError(t, s.Put(ctx, textEntry("a", "h2", "new")))

	// The old key no longer hits; only one entry per node exists.
	old, err := s.Get(ctx, "a", "h1")
	require.NoError(t, err)
	assert.Nil(t, old)

	entry, err := s.Get(ctx, "a", "h2")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "new", entry.Result.First().Text)
}

func TestTouchRefreshesAge(t *testing.T) {
	s := New()
	ctx := context.Background()
	stale := textEntry("a", "h1", "hello")
	stale.Age = 1 // effectively ancient
	require.NoError(t, s.Put(ctx, stale))

	require.NoError(t, s.Touch(ctx, "a"))

	entry, err := s.Get(ctx, "a", "h1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Greater(t, entry.Age, int64(1))
	assert.Equal(t, "hello", entry.Result.First().Text, "touch must not alter content")

	// Touching a missing node is a no-op, not an error.
	require.NoError(t, s.Touch(ctx, "missing"))
}

func TestCleanupRemovesExpired(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, textEntry("a", "h1", "x")))
	require.NoError(t, s.Put(ctx, textEntry("b", "h2", "y")))
	require.NoError(t, s.Put(ctx, textEntry("c", "h3", "z")))

	removed, err := s.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entry, err := s.Get(ctx, "a", "h1")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCleanupKeepsFreshEntries(t *testing.T) {
	s := New()
	ctx := context.Background()
	old := textEntry("a", "h1", "x")
	old.Age = time.Now().Add(-time.Hour).UnixMilli()
	require.NoError(t, s.Put(ctx, old))
	require.NoError(t, s.Put(ctx, textEntry("b", "h2", "y")))

	removed, err := s.Cleanup(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entry, err := s.Get(ctx, "b", "h2")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestDeleteForNodes(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, textEntry("a", "h1", "x")))
	require.NoError(t, s.Put(ctx, textEntry("b", "h2", "y")))
	require.NoError(t, s.Put(ctx, textEntry("c", "h3", "z")))

	require.NoError(t, s.DeleteForNode(ctx, "a"))
	require.NoError(t, s.DeleteForNodes(ctx, []string{"b", "missing"}))

	for _, probe := range []struct{ id, hash string }{{"a", "h1"}, {"b", "h2"}} {
		entry, err := s.Get(ctx, probe.id, probe.hash)
		require.NoError(t, err)
		assert.Nil(t, entry)
	}
	entry, err := s.Get(ctx, "c", "h3")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestGetByContentHash(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, textEntry("a", "h1", "shared")))

	entry, err := s.GetByContentHash(ctx, "content-shared")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "a", entry.ID)

	entry, err = s.GetByContentHash(ctx, "content-other")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
