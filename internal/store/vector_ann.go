//go:build sqlite_vec && cgo

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"agentvault/internal/logging"
)

// vecIndex is a VectorIndex backed by the sqlite-vec extension. The vec0
// virtual table does the KNN work; a sibling table maps session ids to
// vec0 rowids because vec0 keys rows by integer rowid only.
//
// Requires the sqlite_vec build tag and cgo (it rides on mattn/go-sqlite3
// rather than the pure-Go driver the relational store uses).
type vecIndex struct {
	db   *sql.DB
	dims int
	mu   sync.Mutex
}

func init() {
	vec.Auto()
}

// NewVecIndex opens (or creates) the sqlite-vec database at path with the
// given embedding dimensionality.
func NewVecIndex(path string, dims int) (VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("vec index dimensions must be positive, got %d", dims)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create vec index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vec index: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_sessions USING vec0(
			embedding FLOAT[%d] distance_metric=cosine
		);
		CREATE TABLE IF NOT EXISTS vec_ids (
			session_id TEXT PRIMARY KEY,
			rowid_ref  INTEGER NOT NULL
		);
	`, dims)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize vec schema: %w", err)
	}

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension not loaded: %w", err)
	}
	logging.Vector("sqlite-vec index ready at %s (vec_version=%s dims=%d)", path, vecVersion, dims)

	return &vecIndex{db: db, dims: dims}, nil
}

func (v *vecIndex) Upsert(ctx context.Context, id string, embedding []float32) error {
	if len(embedding) != v.dims {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(embedding), v.dims)
	}
	blob, err := vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var oldRowid int64
	err = tx.QueryRowContext(ctx, "SELECT rowid_ref FROM vec_ids WHERE session_id = ?", id).Scan(&oldRowid)
	if err == nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_sessions WHERE rowid = ?", oldRowid); err != nil {
			return err
		}
	} else if err != sql.ErrNoRows {
		return err
	}

	res, err := tx.ExecContext(ctx, "INSERT INTO vec_sessions (embedding) VALUES (?)", blob)
	if err != nil {
		return err
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO vec_ids (session_id, rowid_ref) VALUES (?, ?)
		ON CONFLICT(session_id) DO UPDATE SET rowid_ref = excluded.rowid_ref
	`, id, rowid); err != nil {
		return err
	}
	return tx.Commit()
}

func (v *vecIndex) Delete(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rowid int64
	err = tx.QueryRowContext(ctx, "SELECT rowid_ref FROM vec_ids WHERE session_id = ?", id).Scan(&rowid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM vec_sessions WHERE rowid = ?", rowid); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM vec_ids WHERE session_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (v *vecIndex) Get(ctx context.Context, id string) ([]float32, bool, error) {
	var blob []byte
	err := v.db.QueryRowContext(ctx, `
		SELECT s.embedding FROM vec_sessions s
		JOIN vec_ids i ON i.rowid_ref = s.rowid
		WHERE i.session_id = ?
	`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	embedding, err := deserializeFloat32(blob)
	if err != nil {
		return nil, false, fmt.Errorf("failed to deserialize embedding: %w", err)
	}
	return embedding, true, nil
}

// deserializeFloat32 decodes the little-endian float32 blob format vec0
// stores (the inverse of vec.SerializeFloat32).
func deserializeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

func (v *vecIndex) Search(ctx context.Context, query []float32, topK int) ([]IndexMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(query) != v.dims {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(query), v.dims)
	}
	blob, err := vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query: %w", err)
	}

	rows, err := v.db.QueryContext(ctx, `
		SELECT i.session_id, s.distance
		FROM vec_sessions s
		JOIN vec_ids i ON i.rowid_ref = s.rowid
		WHERE s.embedding MATCH ? AND k = ?
		ORDER BY s.distance
	`, blob, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []IndexMatch
	for rows.Next() {
		var (
			id       string
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		// Cosine distance is 1 - cos; invert back to similarity.
		matches = append(matches, IndexMatch{ID: id, Similarity: 1 - distance})
	}
	return matches, rows.Err()
}

func (v *vecIndex) Len(ctx context.Context) (int, error) {
	var count int
	err := v.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_ids").Scan(&count)
	return count, err
}

func (v *vecIndex) IDs(ctx context.Context) ([]string, error) {
	rows, err := v.db.QueryContext(ctx, "SELECT session_id FROM vec_ids ORDER BY session_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (v *vecIndex) Persistent() bool { return true }

func (v *vecIndex) Close() error { return v.db.Close() }
