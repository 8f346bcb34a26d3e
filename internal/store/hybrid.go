package store

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"agentvault/internal/embedding"
	"agentvault/internal/logging"
	"agentvault/internal/types"
)

// HybridStore is the single entry point callers use. It fans session
// state out across the three adapters - structured rows to SQLite, the
// unstructured blob to the document store, the embedding to the vector
// store - and groups each multi-backend write under a coordinator
// transaction so partial failures leave an audit trail.
type HybridStore struct {
	relational *RelationalStore
	document   *DocumentStore
	vector     *VectorStore
	txns       *Coordinator
	engine     embedding.EmbeddingEngine

	saves    atomic.Int64
	loads    atomic.Int64
	searches atomic.Int64
	deletes  atomic.Int64
	errors   atomic.Int64
}

// contextPayload is the document-store half of a SessionContext: every
// field that is not structured metadata or the interaction log.
type contextPayload struct {
	Tasks           []types.Task           `json:"tasks,omitempty"`
	KnowledgeGraph  map[string]interface{} `json:"knowledge_graph,omitempty"`
	ErrorPatterns   []string               `json:"error_patterns,omitempty"`
	SuccessPatterns []string               `json:"success_patterns,omitempty"`
	Cache           map[string]interface{} `json:"cache,omitempty"`
	Snapshots       []types.Snapshot       `json:"snapshots,omitempty"`
}

// SearchResult pairs a similarity score with the fully loaded session it
// belongs to.
type SearchResult struct {
	SessionID  string                `json:"session_id"`
	Similarity float64               `json:"similarity"`
	Context    *types.SessionContext `json:"context,omitempty"`
	Metadata   map[string]string     `json:"metadata,omitempty"`
}

// Stats is the snapshot returned by Stats().
type Stats struct {
	Sessions      int64      `json:"sessions"`
	Interactions  int64      `json:"interactions"`
	Documents     int64      `json:"documents"`
	Embeddings    int64      `json:"embeddings"`
	EmbeddingName string     `json:"embedding_engine"`
	Saves         int64      `json:"saves"`
	Loads         int64      `json:"loads"`
	Searches      int64      `json:"searches"`
	Deletes       int64      `json:"deletes"`
	Errors        int64      `json:"errors"`
	Transactions  []TxRecord `json:"transactions,omitempty"`
}

// NewHybridStore wires the three adapters, the coordinator and the
// embedding engine into one facade. The facade owns the adapters and
// closes them on Close.
func NewHybridStore(relational *RelationalStore, document *DocumentStore, vector *VectorStore, engine embedding.EmbeddingEngine) *HybridStore {
	logging.Boot("HybridStore assembled (embedding=%s)", engine.Name())
	return &HybridStore{
		relational: relational,
		document:   document,
		vector:     vector,
		txns:       NewCoordinator(),
		engine:     engine,
	}
}

// Close shuts the adapters down in reverse dependency order and flushes
// logs. Errors are collected; the first one wins.
func (h *HybridStore) Close() error {
	var first error
	for _, c := range []func() error{h.vector.Close, h.document.Close, h.relational.Close} {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	logging.Sync()
	return first
}

// SaveSession persists the full session context across all backends
// under one coordinator transaction. Writes are ordered relational,
// document, vector; a failure rolls the transaction record back with the
// failing participant named, and earlier writes stay in place.
func (h *HybridStore) SaveSession(ctx context.Context, sc *types.SessionContext) error {
	if sc == nil {
		return storageErr("hybrid.save_session", "", fmt.Errorf("session context is nil"))
	}
	if sc.Metadata.SessionID == "" {
		return storageErr("hybrid.save_session", "", fmt.Errorf("session id required"))
	}
	sessionID := sc.Metadata.SessionID

	timer := logging.StartTimer(logging.CategorySession, "SaveSession "+sessionID)
	defer timer.StopWithThreshold(500 * time.Millisecond)

	txID, err := h.txns.Begin("")
	if err != nil {
		h.errors.Add(1)
		return storageErr("hybrid.save_session", sessionID, err)
	}

	fail := func(participant string, err error) error {
		h.errors.Add(1)
		h.txns.Rollback(txID, fmt.Sprintf("%s: %v", participant, err))
		return storageErr("hybrid.save_session", sessionID, err)
	}

	h.txns.Join(txID, "relational")
	if err := h.relational.SaveMetadata(ctx, sc.Metadata); err != nil {
		return fail("relational", err)
	}
	if err := h.relational.SaveInteractions(ctx, sessionID, sc.Interactions); err != nil {
		return fail("relational", err)
	}

	h.txns.Join(txID, "document")
	payload := contextPayload{
		Tasks:           sc.Tasks,
		KnowledgeGraph:  sc.KnowledgeGraph,
		ErrorPatterns:   sc.ErrorPatterns,
		SuccessPatterns: sc.SuccessPatterns,
		Cache:           sc.Cache,
		Snapshots:       sc.Snapshots,
	}
	if err := h.document.SaveContextData(ctx, sessionID, payload); err != nil {
		return fail("document", err)
	}

	vec, model, err := h.sessionEmbedding(ctx, sc)
	if err != nil {
		return fail("vector", err)
	}
	if vec != nil {
		h.txns.Join(txID, "vector")
		meta := map[string]string{
			"owner_id":        sc.Metadata.OwnerID,
			"status":          string(sc.Metadata.Status),
			"embedding_model": model,
		}
		if err := h.vector.SaveEmbedding(ctx, sessionID, vec, meta); err != nil {
			return fail("vector", err)
		}
	}

	if err := h.txns.Commit(txID); err != nil {
		h.errors.Add(1)
		return storageErr("hybrid.save_session", sessionID, err)
	}

	h.saves.Add(1)
	logging.Session("Saved session %s (interactions=%d snapshots=%d embedded=%v)",
		sessionID, len(sc.Interactions), len(sc.Snapshots), vec != nil)
	return nil
}

// sessionEmbedding picks the vector to index for a session: the latest
// snapshot's embedding when one is attached, otherwise a fresh embedding
// of the session's summary text. Sessions with no snapshots and no
// summarizable text skip the vector store entirely.
func (h *HybridStore) sessionEmbedding(ctx context.Context, sc *types.SessionContext) ([]float32, string, error) {
	if snap := sc.LatestSnapshot(); snap != nil && len(snap.Embedding) > 0 {
		return snap.Embedding, snap.EmbeddingModel, nil
	}

	text := summaryText(sc)
	if text == "" {
		return nil, "", nil
	}
	vec, err := h.engine.Embed(ctx, text)
	if err != nil {
		return nil, "", fmt.Errorf("embedding failed: %w", err)
	}
	return vec, h.engine.Name(), nil
}

// summaryText flattens the searchable parts of a session into one string
// for embedding.
func summaryText(sc *types.SessionContext) string {
	var b strings.Builder
	b.WriteString(sc.Metadata.ProjectPath)
	for _, t := range sc.Tasks {
		b.WriteString(" ")
		b.WriteString(t.Title)
	}
	for _, p := range sc.ErrorPatterns {
		b.WriteString(" ")
		b.WriteString(p)
	}
	for _, p := range sc.SuccessPatterns {
		b.WriteString(" ")
		b.WriteString(p)
	}
	for _, r := range sc.Interactions {
		b.WriteString(" ")
		b.WriteString(r.Operation)
	}
	return strings.TrimSpace(b.String())
}

// LoadSession reassembles the full session context from all backends.
// An unknown session returns (nil, nil). A session whose document blob
// is missing still loads with the unstructured fields empty; a corrupt
// blob surfaces the ConsistencyError unchanged.
func (h *HybridStore) LoadSession(ctx context.Context, sessionID string) (*types.SessionContext, error) {
	sc, err := h.loadSession(ctx, sessionID)
	if err != nil {
		h.errors.Add(1)
		return nil, err
	}
	if sc != nil {
		h.loads.Add(1)
	}
	return sc, nil
}

// loadSession is LoadSession without the operation counters, so internal
// callers (search candidate loading) do not inflate caller-visible stats.
func (h *HybridStore) loadSession(ctx context.Context, sessionID string) (*types.SessionContext, error) {
	timer := logging.StartTimer(logging.CategorySession, "LoadSession "+sessionID)
	defer timer.Stop()

	meta, err := h.relational.LoadMetadata(ctx, sessionID)
	if err != nil {
		return nil, storageErr("hybrid.load_session", sessionID, err)
	}
	if meta == nil {
		logging.SessionDebug("LoadSession: session %s not found", sessionID)
		return nil, nil
	}

	var (
		interactions []types.InteractionRecord
		payload      contextPayload
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		interactions, err = h.relational.LoadInteractions(gctx, sessionID)
		return err
	})
	g.Go(func() error {
		_, err := h.document.LoadContextData(gctx, sessionID, &payload)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storageErr("hybrid.load_session", sessionID, err)
	}

	return &types.SessionContext{
		Metadata:        *meta,
		Tasks:           payload.Tasks,
		KnowledgeGraph:  payload.KnowledgeGraph,
		ErrorPatterns:   payload.ErrorPatterns,
		SuccessPatterns: payload.SuccessPatterns,
		Interactions:    interactions,
		Cache:           payload.Cache,
		Snapshots:       payload.Snapshots,
	}, nil
}

// SearchSimilarSessions embeds the query text, runs a top-k similarity
// search and loads each hit's full context concurrently. When ownerID is
// non-empty the hits are filtered by owner after the top-k cut, so fewer
// than topK results may come back even when more matching sessions
// exist.
func (h *HybridStore) SearchSimilarSessions(ctx context.Context, query string, topK int, ownerID string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, storageErr("hybrid.search_similar", "", fmt.Errorf("query text required"))
	}

	timer := logging.StartTimer(logging.CategorySession, "SearchSimilarSessions")
	defer timer.Stop()

	queryVec, err := h.engine.Embed(ctx, query)
	if err != nil {
		h.errors.Add(1)
		return nil, storageErr("hybrid.search_similar", "", fmt.Errorf("query embedding failed: %w", err))
	}

	matches, err := h.vector.SearchSimilar(ctx, queryVec, topK)
	if err != nil {
		h.errors.Add(1)
		return nil, storageErr("hybrid.search_similar", "", err)
	}

	results := make([]SearchResult, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range matches {
		g.Go(func() error {
			sc, err := h.loadSession(gctx, m.SessionID)
			if err != nil {
				return err
			}
			results[i] = SearchResult{
				SessionID:  m.SessionID,
				Similarity: m.Similarity,
				Context:    sc,
				Metadata:   m.Metadata,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.errors.Add(1)
		return nil, storageErr("hybrid.search_similar", "", err)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Context == nil {
			// Vector hit with no relational row: stale index entry.
			logging.SessionDebug("Search hit %s has no metadata row, skipping", r.SessionID)
			continue
		}
		if ownerID != "" && r.Context.Metadata.OwnerID != ownerID {
			continue
		}
		filtered = append(filtered, r)
	}

	h.searches.Add(1)
	logging.Session("Search returned %d/%d hits (top_k=%d owner_filter=%v)",
		len(filtered), len(matches), topK, ownerID != "")
	return filtered, nil
}

// DeleteSession removes the session from every backend under one
// coordinator transaction. Deleting an unknown session succeeds.
func (h *HybridStore) DeleteSession(ctx context.Context, sessionID string) error {
	txID, err := h.txns.Begin("")
	if err != nil {
		h.errors.Add(1)
		return storageErr("hybrid.delete_session", sessionID, err)
	}

	fail := func(participant string, err error) error {
		h.errors.Add(1)
		h.txns.Rollback(txID, fmt.Sprintf("%s: %v", participant, err))
		return storageErr("hybrid.delete_session", sessionID, err)
	}

	h.txns.Join(txID, "relational")
	if err := h.relational.DeleteSession(ctx, sessionID); err != nil {
		return fail("relational", err)
	}
	h.txns.Join(txID, "document")
	if err := h.document.DeleteContextData(ctx, sessionID); err != nil {
		return fail("document", err)
	}
	h.txns.Join(txID, "vector")
	if err := h.vector.DeleteEmbedding(ctx, sessionID); err != nil {
		return fail("vector", err)
	}

	if err := h.txns.Commit(txID); err != nil {
		h.errors.Add(1)
		return storageErr("hybrid.delete_session", sessionID, err)
	}

	h.deletes.Add(1)
	logging.Session("Deleted session %s from all backends", sessionID)
	return nil
}

// SearchSessionsByOwner lists a caller's sessions from the relational
// store, most recently updated first.
func (h *HybridStore) SearchSessionsByOwner(ctx context.Context, ownerID string, limit int) ([]string, error) {
	ids, err := h.relational.SearchSessions(ctx, ownerID, limit)
	if err != nil {
		h.errors.Add(1)
		return nil, err
	}
	return ids, nil
}

// Transactions exposes the coordinator's audit log.
func (h *HybridStore) Transactions() []TxRecord {
	return h.txns.Records()
}

// Stats gathers counters from every backend plus the facade's own
// operation tallies.
func (h *HybridStore) Stats(ctx context.Context) (*Stats, error) {
	counts, err := h.relational.Counts(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := h.document.Count(ctx)
	if err != nil {
		return nil, err
	}
	vecs, err := h.vector.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Sessions:      counts["session_metadata"],
		Interactions:  counts["interaction_log"],
		Documents:     docs,
		Embeddings:    vecs,
		EmbeddingName: h.engine.Name(),
		Saves:         h.saves.Load(),
		Loads:         h.loads.Load(),
		Searches:      h.searches.Load(),
		Deletes:       h.deletes.Load(),
		Errors:        h.errors.Load(),
		Transactions:  h.txns.Records(),
	}, nil
}
