package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// DeterministicEngine produces embeddings by hashing tokens into a
// fixed-dimension bag-of-words projection. The same text always yields
// the same vector, with no external service involved. It is a stand-in
// for a real embedding model: adequate for exact-duplicate and
// overlapping-vocabulary similarity, useless for true semantics.
type DeterministicEngine struct {
	dims int
}

// NewDeterministicEngine creates the offline hashing engine.
func NewDeterministicEngine(dims int) (*DeterministicEngine, error) {
	if dims <= 0 {
		dims = 256
	}
	return &DeterministicEngine{dims: dims}, nil
}

// Embed hashes each whitespace token into a bucket and L2-normalizes the
// result. An empty text yields the zero vector.
func (e *DeterministicEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dims))
		// Second hash bit decides the sign so collisions cancel rather
		// than always accumulate.
		if (sum>>63)&1 == 1 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v * v)
	}
	if mag > 0 {
		norm := float32(math.Sqrt(mag))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *DeterministicEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *DeterministicEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *DeterministicEngine) Name() string {
	return fmt.Sprintf("deterministic:%d", e.dims)
}
