package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"agentvault/internal/logging"
	"agentvault/internal/pool"
)

// VectorMatch is one similarity hit returned by SearchSimilar, carrying
// the per-session metadata stored alongside the embedding.
type VectorMatch struct {
	SessionID  string            `json:"session_id"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// VectorStore holds one embedding per session plus a small string
// metadata map, backed by a pluggable VectorIndex. With the default
// in-memory index the store snapshots to a pair of JSON files after
// every mutation and lazily reloads them on first use after a restart.
//
// The soft capacity limit only logs a warning when crossed; inserts are
// never rejected for size.
type VectorStore struct {
	dir        string
	index      VectorIndex
	maxVectors int

	mu       sync.RWMutex
	metadata map[string]map[string]string
	loaded   bool

	pool *pool.Pool
}

const (
	embeddingsSnapshotFile = "embeddings.json"
	metadataSnapshotFile   = "metadata.json"
)

// NewVectorStore creates the snapshot directory and wraps the given
// index. maxVectors <= 0 disables the capacity warning.
func NewVectorStore(dir string, index VectorIndex, maxVectors, workers, queueDepth int) (*VectorStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector directory: %w", err)
	}
	s := &VectorStore{
		dir:        dir,
		index:      index,
		maxVectors: maxVectors,
		metadata:   make(map[string]map[string]string),
		pool:       pool.New("vector", workers, queueDepth),
	}
	logging.Vector("VectorStore ready at %s (persistent_index=%v max_vectors=%d workers=%d)",
		dir, index.Persistent(), maxVectors, workers)
	return s, nil
}

// Close shuts down the pool and the underlying index.
func (s *VectorStore) Close() error {
	s.pool.Close()
	return s.index.Close()
}

// ensureLoaded performs the lazy cold-start reload. Persistent indexes
// manage their own durability, so only the metadata snapshot is read for
// them. Callers must hold no locks.
func (s *VectorStore) ensureLoaded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	metaPath := filepath.Join(s.dir, metadataSnapshotFile)
	if data, err := os.ReadFile(metaPath); err == nil {
		if err := json.Unmarshal(data, &s.metadata); err != nil {
			return storageErr("vector.reload", "", fmt.Errorf("corrupt metadata snapshot: %w", err))
		}
	} else if !os.IsNotExist(err) {
		return storageErr("vector.reload", "", err)
	}

	if !s.index.Persistent() {
		embPath := filepath.Join(s.dir, embeddingsSnapshotFile)
		if data, err := os.ReadFile(embPath); err == nil {
			embeddings := make(map[string][]float32)
			if err := json.Unmarshal(data, &embeddings); err != nil {
				return storageErr("vector.reload", "", fmt.Errorf("corrupt embeddings snapshot: %w", err))
			}
			// Sorted insertion keeps tie-breaking deterministic across
			// restarts.
			ids := make([]string, 0, len(embeddings))
			for id := range embeddings {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				if err := s.index.Upsert(ctx, id, embeddings[id]); err != nil {
					return storageErr("vector.reload", id, err)
				}
			}
			logging.Vector("Reloaded %d embeddings from snapshot", len(ids))
		} else if !os.IsNotExist(err) {
			return storageErr("vector.reload", "", err)
		}
	}

	s.loaded = true
	return nil
}

// snapshot writes the current state to disk via tmp-file renames.
// Callers must hold s.mu for reading metadata.
func (s *VectorStore) snapshot(ctx context.Context) error {
	metaData, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(s.dir, metadataSnapshotFile), metaData); err != nil {
		return err
	}

	if s.index.Persistent() {
		return nil
	}

	ids, err := s.index.IDs(ctx)
	if err != nil {
		return err
	}
	embeddings := make(map[string][]float32, len(ids))
	for _, id := range ids {
		vec, ok, err := s.index.Get(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			embeddings[id] = vec
		}
	}
	embData, err := json.MarshalIndent(embeddings, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.dir, embeddingsSnapshotFile), embData)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// SaveEmbedding upserts the session's embedding and metadata. The
// metadata map is copied; callers keep ownership of theirs.
func (s *VectorStore) SaveEmbedding(ctx context.Context, sessionID string, embedding []float32, metadata map[string]string) error {
	return s.pool.Do(ctx, func() error {
		if sessionID == "" {
			return storageErr("vector.save_embedding", sessionID, fmt.Errorf("session id required"))
		}
		if len(embedding) == 0 {
			return storageErr("vector.save_embedding", sessionID, fmt.Errorf("embedding must be non-empty"))
		}
		if err := s.ensureLoaded(ctx); err != nil {
			return err
		}

		if err := s.index.Upsert(ctx, sessionID, embedding); err != nil {
			return storageErr("vector.save_embedding", sessionID, err)
		}

		s.mu.Lock()
		meta := make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		s.metadata[sessionID] = meta
		err := s.snapshot(ctx)
		s.mu.Unlock()
		if err != nil {
			return storageErr("vector.save_embedding", sessionID, err)
		}

		if s.maxVectors > 0 {
			if n, err := s.index.Len(ctx); err == nil && n > s.maxVectors {
				logging.Get(logging.CategoryVector).Warn(
					"Vector count %d exceeds soft limit %d; similarity scans will slow down", n, s.maxVectors)
			}
		}
		logging.VectorDebug("Saved embedding: session=%s dims=%d", sessionID, len(embedding))
		return nil
	})
}

// GetEmbedding returns the stored embedding and metadata for a session,
// or found=false when the session has none.
func (s *VectorStore) GetEmbedding(ctx context.Context, sessionID string) ([]float32, map[string]string, bool, error) {
	var (
		vec   []float32
		meta  map[string]string
		found bool
	)
	err := s.pool.Do(ctx, func() error {
		if err := s.ensureLoaded(ctx); err != nil {
			return err
		}
		v, ok, err := s.index.Get(ctx, sessionID)
		if err != nil {
			return storageErr("vector.get_embedding", sessionID, err)
		}
		if !ok {
			return nil
		}
		vec = v
		found = true

		s.mu.RLock()
		if m, ok := s.metadata[sessionID]; ok {
			meta = make(map[string]string, len(m))
			for k, val := range m {
				meta[k] = val
			}
		}
		s.mu.RUnlock()
		return nil
	})
	return vec, meta, found, err
}

// SearchSimilar returns up to topK sessions ordered by descending cosine
// similarity to the query embedding. topK <= 0 yields an empty result.
func (s *VectorStore) SearchSimilar(ctx context.Context, query []float32, topK int) ([]VectorMatch, error) {
	var results []VectorMatch
	err := s.pool.Do(ctx, func() error {
		if topK <= 0 {
			return nil
		}
		if len(query) == 0 {
			return storageErr("vector.search_similar", "", fmt.Errorf("query embedding must be non-empty"))
		}
		if err := s.ensureLoaded(ctx); err != nil {
			return err
		}

		timer := logging.StartTimer(logging.CategoryVector, "similarity search")
		matches, err := s.index.Search(ctx, query, topK)
		timer.Stop()
		if err != nil {
			return storageErr("vector.search_similar", "", err)
		}

		s.mu.RLock()
		defer s.mu.RUnlock()
		results = make([]VectorMatch, 0, len(matches))
		for _, m := range matches {
			match := VectorMatch{SessionID: m.ID, Similarity: m.Similarity}
			if meta, ok := s.metadata[m.ID]; ok {
				match.Metadata = make(map[string]string, len(meta))
				for k, v := range meta {
					match.Metadata[k] = v
				}
			}
			results = append(results, match)
		}
		return nil
	})
	return results, err
}

// DeleteEmbedding removes the session's embedding and metadata. Absent
// sessions delete cleanly.
func (s *VectorStore) DeleteEmbedding(ctx context.Context, sessionID string) error {
	return s.pool.Do(ctx, func() error {
		if err := s.ensureLoaded(ctx); err != nil {
			return err
		}
		if err := s.index.Delete(ctx, sessionID); err != nil {
			return storageErr("vector.delete_embedding", sessionID, err)
		}

		s.mu.Lock()
		delete(s.metadata, sessionID)
		err := s.snapshot(ctx)
		s.mu.Unlock()
		if err != nil {
			return storageErr("vector.delete_embedding", sessionID, err)
		}
		logging.VectorDebug("Deleted embedding: session=%s", sessionID)
		return nil
	})
}

// Count returns the number of stored embeddings.
func (s *VectorStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.Do(ctx, func() error {
		if err := s.ensureLoaded(ctx); err != nil {
			return err
		}
		n, err := s.index.Len(ctx)
		if err != nil {
			return storageErr("vector.count", "", err)
		}
		count = int64(n)
		return nil
	})
	return count, err
}
