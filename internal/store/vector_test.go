package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVector(t *testing.T, dir string) *VectorStore {
	t.Helper()
	s, err := NewVectorStore(dir, NewMemoryIndex(), 10, 1, 8)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVectorSaveAndGet(t *testing.T) {
	s := newTestVector(t, t.TempDir())
	ctx := context.Background()

	meta := map[string]string{"owner_id": "agent-1"}
	require.NoError(t, s.SaveEmbedding(ctx, "sess-1", []float32{1, 0}, meta))

	vec, gotMeta, found, err := s.GetEmbedding(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, meta, gotMeta)

	_, _, found, err = s.GetEmbedding(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVectorSearchOrdering(t *testing.T) {
	s := newTestVector(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.SaveEmbedding(ctx, "exact", []float32{1, 0}, nil))
	require.NoError(t, s.SaveEmbedding(ctx, "orthogonal", []float32{0, 1}, nil))
	require.NoError(t, s.SaveEmbedding(ctx, "diagonal", []float32{1, 1}, nil))

	matches, err := s.SearchSimilar(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "exact", matches[0].SessionID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, "diagonal", matches[1].SessionID)
	assert.Equal(t, "orthogonal", matches[2].SessionID)
	assert.InDelta(t, 0.0, matches[2].Similarity, 1e-6)
}

func TestVectorSearchTopKCut(t *testing.T) {
	s := newTestVector(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.SaveEmbedding(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, s.SaveEmbedding(ctx, "b", []float32{0.9, 0.1}, nil))
	require.NoError(t, s.SaveEmbedding(ctx, "c", []float32{0, 1}, nil))

	matches, err := s.SearchSimilar(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].SessionID)
	assert.Equal(t, "b", matches[1].SessionID)

	matches, err = s.SearchSimilar(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorDimensionMismatchScoresZero(t *testing.T) {
	s := newTestVector(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.SaveEmbedding(ctx, "match", []float32{1, 0}, nil))
	require.NoError(t, s.SaveEmbedding(ctx, "wrong-dims", []float32{1, 0, 0}, nil))

	matches, err := s.SearchSimilar(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "match", matches[0].SessionID)
	assert.Zero(t, matches[1].Similarity)
}

func TestVectorUpsertReplaces(t *testing.T) {
	s := newTestVector(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.SaveEmbedding(ctx, "sess-1", []float32{1, 0}, map[string]string{"v": "1"}))
	require.NoError(t, s.SaveEmbedding(ctx, "sess-1", []float32{0, 1}, map[string]string{"v": "2"}))

	vec, meta, found, err := s.GetEmbedding(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []float32{0, 1}, vec)
	assert.Equal(t, "2", meta["v"])

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestVectorDeleteIdempotent(t *testing.T) {
	s := newTestVector(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.SaveEmbedding(ctx, "sess-1", []float32{1, 0}, nil))
	require.NoError(t, s.DeleteEmbedding(ctx, "sess-1"))

	_, _, found, err := s.GetEmbedding(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.DeleteEmbedding(ctx, "sess-1"))
	require.NoError(t, s.DeleteEmbedding(ctx, "never-existed"))
}

func TestVectorColdStartReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewVectorStore(dir, NewMemoryIndex(), 10, 1, 8)
	require.NoError(t, err)
	require.NoError(t, first.SaveEmbedding(ctx, "sess-1", []float32{1, 0}, map[string]string{"owner_id": "agent-1"}))
	require.NoError(t, first.SaveEmbedding(ctx, "sess-2", []float32{0, 1}, nil))
	require.NoError(t, first.Close())

	// A fresh store over the same directory sees everything.
	second := newTestVector(t, dir)
	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	vec, meta, found, err := second.GetEmbedding(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, "agent-1", meta["owner_id"])

	matches, err := second.SearchSimilar(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sess-2", matches[0].SessionID)
}

func TestVectorRejectsBadInput(t *testing.T) {
	s := newTestVector(t, t.TempDir())
	ctx := context.Background()

	assert.Error(t, s.SaveEmbedding(ctx, "", []float32{1}, nil))
	assert.Error(t, s.SaveEmbedding(ctx, "sess-1", nil, nil))

	_, err := s.SearchSimilar(ctx, nil, 5)
	assert.Error(t, err)
}

func TestMemoryIndexTieBreakInsertionOrder(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	// Identical vectors: ties resolve by insertion order.
	require.NoError(t, idx.Upsert(ctx, "first", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "second", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "third", []float32{1, 0}))

	matches, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "first", matches[0].ID)
	assert.Equal(t, "second", matches[1].ID)
	assert.Equal(t, "third", matches[2].ID)
}
