package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicEmbedIsStable(t *testing.T) {
	e, err := NewDeterministicEngine(64)
	require.NoError(t, err)

	a, err := e.Embed(context.Background(), "fix the database migration")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "fix the database migration")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestDeterministicEmbedIsNormalized(t *testing.T) {
	e, _ := NewDeterministicEngine(128)
	vec, err := e.Embed(context.Background(), "some tokens to hash into buckets")
	require.NoError(t, err)

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(mag), 1e-5)
}

func TestDeterministicEmptyTextIsZeroVector(t *testing.T) {
	e, _ := NewDeterministicEngine(32)
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestDeterministicSimilarityOrdering(t *testing.T) {
	e, _ := NewDeterministicEngine(256)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "refactor auth middleware session handling")
	close1, _ := e.Embed(ctx, "refactor auth middleware session handling again")
	far, _ := e.Embed(ctx, "unrelated grocery shopping list bananas")

	simClose, err := CosineSimilarity(base, close1)
	require.NoError(t, err)
	simFar, err := CosineSimilarity(base, far)
	require.NoError(t, err)

	assert.Greater(t, simClose, simFar)

	self, err := CosineSimilarity(base, base)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, self, 1e-6)
}

func TestCosineSimilarityMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.Error(t, err)

	sim, err := CosineSimilarity([]float32{0, 0}, []float32{0, 0})
	require.NoError(t, err)
	assert.Zero(t, sim)
}

func TestEmbedBatchMatchesSingle(t *testing.T) {
	e, _ := NewDeterministicEngine(64)
	ctx := context.Background()

	texts := []string{"first session", "second session", "third session"}
	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestNewEngineFactory(t *testing.T) {
	e, err := NewEngine(Config{Provider: "deterministic", Dimensions: 128})
	require.NoError(t, err)
	assert.Equal(t, 128, e.Dimensions())
	assert.Equal(t, "deterministic:128", e.Name())

	_, err = NewEngine(Config{Provider: "no-such-provider"})
	assert.Error(t, err)
}
