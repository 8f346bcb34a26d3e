package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentvault/internal/logging"
	"agentvault/internal/pool"
)

// DocumentStore persists one unstructured context blob per session as a
// JSON envelope on disk. Every save stamps the envelope with a timestamp
// and a SHA-256 checksum over the payload bytes; every load recomputes
// the checksum and refuses to return corrupt data.
//
// Concurrent writers to the same session race with last-write-wins; there
// is no optimistic-locking check. Writes go through a tmp-file rename so
// a crash mid-write never leaves a half-written envelope behind.
type DocumentStore struct {
	dir  string
	mu   sync.RWMutex
	pool *pool.Pool
}

// documentEnvelope is the on-disk unit: arbitrary payload plus the two
// bookkeeping fields excluded from the checksum.
type documentEnvelope struct {
	Payload  json.RawMessage `json:"payload"`
	SavedAt  string          `json:"saved_at"` // RFC3339
	Checksum string          `json:"checksum"` // hex sha256 over payload bytes only
}

// NewDocumentStore creates the storage directory and starts the adapter's
// worker pool.
func NewDocumentStore(dir string, workers, queueDepth int) (*DocumentStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}
	s := &DocumentStore{
		dir:  dir,
		pool: pool.New("document", workers, queueDepth),
	}
	logging.Document("DocumentStore ready at %s (workers=%d queue_depth=%d)", dir, workers, queueDepth)
	return s, nil
}

// Close shuts down the worker pool.
func (s *DocumentStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *DocumentStore) path(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, "/\\") || strings.Contains(sessionID, "..") {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}

// checksum computes the hex digest over the canonical payload bytes.
// SavedAt and the checksum itself are not part of the hash.
func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// SaveContextData serializes payload, stamps the envelope and writes it
// as the single document unit for the session.
func (s *DocumentStore) SaveContextData(ctx context.Context, sessionID string, payload interface{}) error {
	return s.pool.Do(ctx, func() error {
		target, err := s.path(sessionID)
		if err != nil {
			return storageErr("document.save_context_data", sessionID, err)
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return storageErr("document.save_context_data", sessionID, err)
		}

		env := documentEnvelope{
			Payload:  raw,
			SavedAt:  time.Now().UTC().Format(time.RFC3339),
			Checksum: checksum(raw),
		}
		// Compact marshal keeps the embedded payload bytes identical to
		// the bytes that were hashed; re-indenting would change them and
		// break verification on read.
		data, err := json.Marshal(env)
		if err != nil {
			return storageErr("document.save_context_data", sessionID, err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		tmp := target + ".tmp"
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			logging.Get(logging.CategoryDocument).Error("Failed to write %s: %v", tmp, err)
			return storageErr("document.save_context_data", sessionID, err)
		}
		if err := os.Rename(tmp, target); err != nil {
			os.Remove(tmp)
			return storageErr("document.save_context_data", sessionID, err)
		}

		logging.DocumentDebug("Saved context blob: session=%s bytes=%d checksum=%s",
			sessionID, len(raw), env.Checksum[:12])
		return nil
	})
}

// LoadContextData reads the session's blob into out. Returns false when
// no blob exists (not an error). A checksum mismatch returns a
// ConsistencyError and nothing is decoded into out.
func (s *DocumentStore) LoadContextData(ctx context.Context, sessionID string, out interface{}) (bool, error) {
	var found bool
	err := s.pool.Do(ctx, func() error {
		target, err := s.path(sessionID)
		if err != nil {
			return storageErr("document.load_context_data", sessionID, err)
		}

		s.mu.RLock()
		data, err := os.ReadFile(target)
		s.mu.RUnlock()
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return storageErr("document.load_context_data", sessionID, err)
		}

		var env documentEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return storageErr("document.load_context_data", sessionID, err)
		}

		if actual := checksum(env.Payload); actual != env.Checksum {
			logging.Get(logging.CategoryDocument).Error(
				"Checksum mismatch for session %s: stored=%s recomputed=%s", sessionID, env.Checksum, actual)
			return &ConsistencyError{SessionID: sessionID, Expected: env.Checksum, Actual: actual}
		}

		if err := json.Unmarshal(env.Payload, out); err != nil {
			return storageErr("document.load_context_data", sessionID, err)
		}
		found = true
		return nil
	})
	return found, err
}

// DeleteContextData removes the session's blob. Deleting absent data is
// success.
func (s *DocumentStore) DeleteContextData(ctx context.Context, sessionID string) error {
	return s.pool.Do(ctx, func() error {
		target, err := s.path(sessionID)
		if err != nil {
			return storageErr("document.delete_context_data", sessionID, err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return storageErr("document.delete_context_data", sessionID, err)
		}
		logging.DocumentDebug("Deleted context blob: session=%s", sessionID)
		return nil
	})
}

// Count returns the number of stored blobs, for the stats surface.
func (s *DocumentStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.Do(ctx, func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return storageErr("document.count", "", err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				count++
			}
		}
		return nil
	})
	return count, err
}
