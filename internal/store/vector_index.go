package store

import (
	"context"
	"math"
	"sort"
	"sync"
)

// IndexMatch is one similarity hit from a VectorIndex search.
type IndexMatch struct {
	ID         string
	Similarity float64
}

// VectorIndex is the pluggable similarity backend behind VectorStore. The
// in-memory implementation is always available; an sqlite-vec backed ANN
// index is compiled in behind the sqlite_vec build tag.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, embedding []float32) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) ([]float32, bool, error)
	Search(ctx context.Context, query []float32, topK int) ([]IndexMatch, error)
	Len(ctx context.Context) (int, error)
	IDs(ctx context.Context) ([]string, error)
	// Persistent reports whether the index survives process restarts on
	// its own. VectorStore skips JSON snapshotting for persistent indexes.
	Persistent() bool
	Close() error
}

// memoryIndex is a brute-force exact-similarity index. Scan cost is
// O(n*d) per query, which is fine for the workloads this targets (soft
// cap of ~10k vectors).
type memoryIndex struct {
	mu         sync.RWMutex
	embeddings map[string][]float32
	order      []string // Insertion order, for deterministic tie-breaking
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() VectorIndex {
	return &memoryIndex{embeddings: make(map[string][]float32)}
}

func (m *memoryIndex) Upsert(ctx context.Context, id string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.embeddings[id]; !exists {
		m.order = append(m.order, id)
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	m.embeddings[id] = vec
	return nil
}

func (m *memoryIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.embeddings[id]; !exists {
		return nil
	}
	delete(m.embeddings, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memoryIndex) Get(ctx context.Context, id string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.embeddings[id]
	if !ok {
		return nil, false, nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true, nil
}

// Search scans every stored vector and returns up to topK matches ordered
// by descending similarity. Ties keep insertion order. Vectors whose
// dimensionality differs from the query score 0 rather than erroring, so
// a mixed-model index degrades instead of failing.
func (m *memoryIndex) Search(ctx context.Context, query []float32, topK int) ([]IndexMatch, error) {
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]IndexMatch, 0, len(m.order))
	for _, id := range m.order {
		matches = append(matches, IndexMatch{
			ID:         id,
			Similarity: cosineSimilarity(query, m.embeddings[id]),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *memoryIndex) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings), nil
}

func (m *memoryIndex) IDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids, nil
}

func (m *memoryIndex) Persistent() bool { return false }

func (m *memoryIndex) Close() error { return nil }

// cosineSimilarity computes cos(a, b). Mismatched dimensions or a
// zero-magnitude operand yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
