package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"agentvault/internal/logging"
	"agentvault/internal/pool"
	"agentvault/internal/types"

	_ "modernc.org/sqlite"
)

// RelationalStore persists session metadata and the ordered interaction
// log in SQLite. The database runs in WAL mode (concurrent readers, one
// writer); every call is dispatched to a bounded worker pool and
// database/sql hands each worker its own connection, so no connection is
// ever shared across goroutines.
type RelationalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	pool   *pool.Pool
}

// NewRelationalStore opens (or creates) the SQLite database at path and
// starts the adapter's worker pool.
func NewRelationalStore(path string, workers, queueDepth int) (*RelationalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewRelationalStore")
	defer timer.Stop()

	logging.Store("Initializing RelationalStore at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if workers <= 0 {
		workers = 1
	}
	db.SetMaxOpenConns(workers)
	db.SetMaxIdleConns(workers)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &RelationalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	s.pool = pool.New("relational", workers, queueDepth)
	logging.Store("RelationalStore ready (workers=%d queue_depth=%d)", workers, queueDepth)
	return s, nil
}

// initialize creates the required tables.
func (s *RelationalStore) initialize() error {
	metadataTable := `
	CREATE TABLE IF NOT EXISTS session_metadata (
		session_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		project_path TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		metrics_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_metadata_owner ON session_metadata(owner_id);
	CREATE INDEX IF NOT EXISTS idx_metadata_updated ON session_metadata(updated_at);
	`

	interactionTable := `
	CREATE TABLE IF NOT EXISTS interaction_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		category TEXT,
		operation TEXT,
		timestamp DATETIME NOT NULL,
		input TEXT,
		output TEXT,
		confidence REAL,
		duration_ms INTEGER,
		success BOOLEAN,
		error TEXT,
		FOREIGN KEY(session_id) REFERENCES session_metadata(session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_session ON interaction_log(session_id, timestamp);
	`

	for _, table := range []string{metadataTable, interactionTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close shuts down the worker pool and the database connection.
func (s *RelationalStore) Close() error {
	logging.Store("Closing RelationalStore")
	s.pool.Close()
	return s.db.Close()
}

// SaveMetadata upserts the whole metadata row for a session. Idempotent;
// there is no partial update - every column is replaced.
func (s *RelationalStore) SaveMetadata(ctx context.Context, meta types.SessionMetadata) error {
	return s.pool.Do(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		metricsJSON, err := json.Marshal(meta.Metrics)
		if err != nil {
			return storageErr("relational.save_metadata", meta.SessionID, err)
		}

		logging.StoreDebug("Saving metadata: session=%s owner=%s status=%s",
			meta.SessionID, meta.OwnerID, meta.Status)

		_, err = s.db.Exec(
			`INSERT INTO session_metadata (session_id, owner_id, project_path, status, created_at, updated_at, metrics_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(session_id) DO UPDATE SET
			 owner_id = excluded.owner_id,
			 project_path = excluded.project_path,
			 status = excluded.status,
			 created_at = excluded.created_at,
			 updated_at = excluded.updated_at,
			 metrics_json = excluded.metrics_json`,
			meta.SessionID, meta.OwnerID, meta.ProjectPath, string(meta.Status),
			meta.CreatedAt.UTC(), meta.UpdatedAt.UTC(), string(metricsJSON),
		)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to save metadata for %s: %v", meta.SessionID, err)
			return storageErr("relational.save_metadata", meta.SessionID, err)
		}
		return nil
	})
}

// LoadMetadata returns the metadata for a session, or nil when the
// session is unknown.
func (s *RelationalStore) LoadMetadata(ctx context.Context, sessionID string) (*types.SessionMetadata, error) {
	var meta *types.SessionMetadata
	err := s.pool.Do(ctx, func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		var m types.SessionMetadata
		var status, metricsJSON string
		err := s.db.QueryRow(
			`SELECT session_id, owner_id, project_path, status, created_at, updated_at, metrics_json
			 FROM session_metadata WHERE session_id = ?`,
			sessionID,
		).Scan(&m.SessionID, &m.OwnerID, &m.ProjectPath, &status, &m.CreatedAt, &m.UpdatedAt, &metricsJSON)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to load metadata for %s: %v", sessionID, err)
			return storageErr("relational.load_metadata", sessionID, err)
		}

		m.Status = types.SessionStatus(status)
		if metricsJSON != "" {
			if err := json.Unmarshal([]byte(metricsJSON), &m.Metrics); err != nil {
				return storageErr("relational.load_metadata", sessionID, err)
			}
		}
		meta = &m
		return nil
	})
	return meta, err
}

// SaveInteractions replaces the whole interaction log for a session:
// delete-then-insert in one local transaction. Last writer wins at
// session granularity; records are never merged individually.
func (s *RelationalStore) SaveInteractions(ctx context.Context, sessionID string, records []types.InteractionRecord) error {
	return s.pool.Do(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		logging.StoreDebug("Replacing interaction log: session=%s records=%d", sessionID, len(records))

		tx, err := s.db.Begin()
		if err != nil {
			return storageErr("relational.save_interactions", sessionID, err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec("DELETE FROM interaction_log WHERE session_id = ?", sessionID); err != nil {
			return storageErr("relational.save_interactions", sessionID, err)
		}

		stmt, err := tx.Prepare(
			`INSERT INTO interaction_log (session_id, category, operation, timestamp, input, output, confidence, duration_ms, success, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return storageErr("relational.save_interactions", sessionID, err)
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.Exec(
				sessionID, r.Category, r.Operation, r.Timestamp.UTC(),
				r.Input, r.Output, r.Confidence, r.DurationMS, r.Success, r.Error,
			); err != nil {
				logging.Get(logging.CategoryStore).Error("Failed to insert interaction for %s: %v", sessionID, err)
				return storageErr("relational.save_interactions", sessionID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return storageErr("relational.save_interactions", sessionID, err)
		}
		return nil
	})
}

// LoadInteractions returns the interaction log for a session in ascending
// timestamp order. An unknown session yields an empty list.
func (s *RelationalStore) LoadInteractions(ctx context.Context, sessionID string) ([]types.InteractionRecord, error) {
	var records []types.InteractionRecord
	err := s.pool.Do(ctx, func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		rows, err := s.db.Query(
			`SELECT category, operation, timestamp, input, output, confidence, duration_ms, success, error
			 FROM interaction_log WHERE session_id = ?
			 ORDER BY timestamp ASC, id ASC`,
			sessionID,
		)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to query interactions for %s: %v", sessionID, err)
			return storageErr("relational.load_interactions", sessionID, err)
		}
		defer rows.Close()

		for rows.Next() {
			var r types.InteractionRecord
			if err := rows.Scan(&r.Category, &r.Operation, &r.Timestamp, &r.Input, &r.Output,
				&r.Confidence, &r.DurationMS, &r.Success, &r.Error); err != nil {
				return storageErr("relational.load_interactions", sessionID, err)
			}
			records = append(records, r)
		}
		if err := rows.Err(); err != nil {
			return storageErr("relational.load_interactions", sessionID, err)
		}

		logging.StoreDebug("Loaded %d interactions for session=%s", len(records), sessionID)
		return nil
	})
	return records, err
}

// DeleteSession removes the interaction log and the metadata row in one
// local transaction, children before parent. Deleting an unknown session
// is a successful no-op.
func (s *RelationalStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.pool.Do(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.Begin()
		if err != nil {
			return storageErr("relational.delete_session", sessionID, err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec("DELETE FROM interaction_log WHERE session_id = ?", sessionID); err != nil {
			return storageErr("relational.delete_session", sessionID, err)
		}
		if _, err := tx.Exec("DELETE FROM session_metadata WHERE session_id = ?", sessionID); err != nil {
			return storageErr("relational.delete_session", sessionID, err)
		}
		if err := tx.Commit(); err != nil {
			return storageErr("relational.delete_session", sessionID, err)
		}

		logging.StoreDebug("Deleted session rows: session=%s", sessionID)
		return nil
	})
}

// SearchSessions returns session ids for an owner, most recently updated
// first.
func (s *RelationalStore) SearchSessions(ctx context.Context, ownerID string, limit int) ([]string, error) {
	var ids []string
	err := s.pool.Do(ctx, func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		if limit <= 0 {
			limit = 50
		}

		rows, err := s.db.Query(
			`SELECT session_id FROM session_metadata
			 WHERE owner_id = ?
			 ORDER BY updated_at DESC
			 LIMIT ?`,
			ownerID, limit,
		)
		if err != nil {
			return storageErr("relational.search_sessions", "", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return storageErr("relational.search_sessions", "", err)
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

// Counts returns row counts per table, for the stats surface.
func (s *RelationalStore) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	err := s.pool.Do(ctx, func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		for _, table := range []string{"session_metadata", "interaction_log"} {
			var count int64
			if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
				return storageErr("relational.counts", "", err)
			}
			counts[table] = count
		}
		return nil
	})
	return counts, err
}
