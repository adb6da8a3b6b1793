package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func chunks(texts ...string) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(texts))
	for i, t := range texts {
		out[i] = domain.ScoredChunk{Chunk: domain.Chunk{Text: t, ChunkIndex: i}, Score: 1 / float64(i+1)}
	}
	return out
}

func TestQueryCacheGetPut(t *testing.T) {
	c := NewQueryCache(10, time.Minute)

	_, ok := c.Get("q", 3)
	assert.False(t, ok)

	c.Put("q", 3, chunks("a", "b"))
	got, ok := c.Get("q", 3)
	require.True(t, ok)
	assert.Len(t, got, 2)

	// k is part of the key
	_, ok = c.Get("q", 4)
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 2, misses)
}

func TestQueryCacheReturnsCopies(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("q", 2, chunks("a", "b"))

	got, _ := c.Get("q", 2)
	got[0], got[1] = got[1], got[0]

	again, _ := c.Get("q", 2)
	assert.Equal(t, "a", again[0].Chunk.Text)
}

func TestQueryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Put("a", 1, chunks("a"))
	c.Put("b", 1, chunks("b"))

	_, _ = c.Get("a", 1)
	c.Put("c", 1, chunks("c"))

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("b", 1)
	assert.False(t, ok)
	_, ok = c.Get("a", 1)
	assert.True(t, ok)
}

func TestQueryCacheTTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("q", 1, chunks("a"))
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("q", 1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestQueryCacheInvalidate(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("q", 1, chunks("a"))
	c.Invalidate()

	_, ok := c.Get("q", 1)
	assert.False(t, ok)
}

type countingRetriever struct {
	calls int
	err   error
}

func (r *countingRetriever) Retrieve(_ context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return chunks(query), nil
}

func TestCachedRetriever(t *testing.T) {
	inner := &countingRetriever{}
	r := NewCachedRetriever(inner, NewQueryCache(0, 0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := r.Retrieve(ctx, "breakfast", 3)
		require.NoError(t, err)
		assert.Equal(t, "breakfast", got[0].Chunk.Text)
	}
	assert.Equal(t, 1, inner.calls)

	inner.err = errors.New("boom")
	_, err := r.Retrieve(ctx, "other", 3)
	assert.Error(t, err)
	_, err = r.Retrieve(ctx, "other", 3)
	assert.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}
