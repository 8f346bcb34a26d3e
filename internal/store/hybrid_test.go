package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentvault/internal/types"
)

// stubEngine returns canned 2-d vectors per text so search ordering in
// tests is exact instead of hash-dependent.
type stubEngine struct {
	vectors map[string][]float32
}

func (s *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 1}, nil
}

func (s *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEngine) Dimensions() int { return 2 }
func (s *stubEngine) Name() string    { return "stub:2" }

func newTestHybrid(t *testing.T, dir string, engine *stubEngine) *HybridStore {
	t.Helper()
	relational, err := NewRelationalStore(filepath.Join(dir, "sessions.db"), 2, 8)
	require.NoError(t, err)
	document, err := NewDocumentStore(filepath.Join(dir, "contexts"), 2, 8)
	require.NoError(t, err)
	vector, err := NewVectorStore(filepath.Join(dir, "vectors"), NewMemoryIndex(), 100, 1, 8)
	require.NoError(t, err)

	if engine == nil {
		engine = &stubEngine{}
	}
	h := NewHybridStore(relational, document, vector, engine)
	t.Cleanup(func() { h.Close() })
	return h
}

func testSession(id, owner string, embedding []float32) *types.SessionContext {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.SessionContext{
		Metadata: types.SessionMetadata{
			SessionID:   id,
			OwnerID:     owner,
			ProjectPath: "/work/" + id,
			CreatedAt:   now.Add(-time.Hour),
			UpdatedAt:   now,
			Status:      types.StatusActive,
			Metrics:     types.SessionMetrics{TokensSaved: 100},
		},
		Tasks: []types.Task{
			{ID: "t1", Title: "investigate flaky test", Status: "done", CreatedAt: now},
		},
		KnowledgeGraph:  map[string]interface{}{"service": "payments"},
		ErrorPatterns:   []string{"timeout on retry"},
		SuccessPatterns: []string{"smaller batches"},
		Interactions: []types.InteractionRecord{
			{Category: "coding", Operation: "patch", Timestamp: now, Confidence: 0.9, DurationMS: 50, Success: true},
		},
		Cache: map[string]interface{}{"branch": "main"},
		Snapshots: []types.Snapshot{
			{
				Payload:        map[string]interface{}{"summary": "session " + id},
				Embedding:      embedding,
				EmbeddingModel: "stub:2",
				Timestamp:      now,
			},
		},
	}
}

func TestHybridSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	h := newTestHybrid(t, dir, nil)
	ctx := context.Background()

	in := testSession("sess-1", "agent-1", []float32{1, 0})
	require.NoError(t, h.SaveSession(ctx, in))

	out, err := h.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Empty(t, cmp.Diff(in, out, timeEqual))
}

func TestHybridLoadUnknownSession(t *testing.T) {
	h := newTestHybrid(t, t.TempDir(), nil)

	out, err := h.LoadSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHybridReloadWithFreshAdapters(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	in := testSession("sess-1", "agent-1", []float32{1, 0})
	{
		h := newTestHybrid(t, dir, nil)
		require.NoError(t, h.SaveSession(ctx, in))
		require.NoError(t, h.Close())
	}

	// A brand-new facade over the same directories recovers everything.
	h := newTestHybrid(t, dir, nil)
	out, err := h.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Empty(t, cmp.Diff(in, out, timeEqual))

	stats, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Sessions)
	assert.Equal(t, int64(1), stats.Documents)
	assert.Equal(t, int64(1), stats.Embeddings)
}

func TestHybridSearchSimilarSessions(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{
		"payments timeout": {1, 0},
	}}
	h := newTestHybrid(t, t.TempDir(), engine)
	ctx := context.Background()

	require.NoError(t, h.SaveSession(ctx, testSession("close", "agent-1", []float32{0.95, 0.05})))
	require.NoError(t, h.SaveSession(ctx, testSession("far", "agent-1", []float32{0, 1})))
	require.NoError(t, h.SaveSession(ctx, testSession("middle", "agent-2", []float32{0.7, 0.7})))

	results, err := h.SearchSimilarSessions(ctx, "payments timeout", 3, "")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "close", results[0].SessionID)
	assert.Equal(t, "middle", results[1].SessionID)
	assert.Equal(t, "far", results[2].SessionID)
	require.NotNil(t, results[0].Context)
	assert.Equal(t, "agent-1", results[0].Context.Metadata.OwnerID)
}

func TestHybridSearchOwnerFilterAfterTopK(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{
		"query": {1, 0},
	}}
	h := newTestHybrid(t, t.TempDir(), engine)
	ctx := context.Background()

	// The two best hits belong to another owner; with top_k=2 the
	// caller's own weaker session is cut before the filter runs.
	require.NoError(t, h.SaveSession(ctx, testSession("best", "other", []float32{1, 0})))
	require.NoError(t, h.SaveSession(ctx, testSession("second", "other", []float32{0.9, 0.1})))
	require.NoError(t, h.SaveSession(ctx, testSession("mine", "agent-1", []float32{0.5, 0.5})))

	results, err := h.SearchSimilarSessions(ctx, "query", 2, "agent-1")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = h.SearchSimilarSessions(ctx, "query", 3, "agent-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mine", results[0].SessionID)
}

func TestHybridSearchRejectsEmptyQuery(t *testing.T) {
	h := newTestHybrid(t, t.TempDir(), nil)
	_, err := h.SearchSimilarSessions(context.Background(), "   ", 5, "")
	assert.Error(t, err)
}

func TestHybridDeleteSession(t *testing.T) {
	h := newTestHybrid(t, t.TempDir(), nil)
	ctx := context.Background()

	require.NoError(t, h.SaveSession(ctx, testSession("sess-1", "agent-1", []float32{1, 0})))
	require.NoError(t, h.DeleteSession(ctx, "sess-1"))

	out, err := h.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, out)

	stats, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Sessions)
	assert.Equal(t, int64(0), stats.Documents)
	assert.Equal(t, int64(0), stats.Embeddings)

	// Deleting again still succeeds.
	require.NoError(t, h.DeleteSession(ctx, "sess-1"))
}

func TestHybridSessionWithoutEmbeddingUsesEngine(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{}}
	h := newTestHybrid(t, t.TempDir(), engine)
	ctx := context.Background()

	sc := testSession("sess-1", "agent-1", nil)
	sc.Snapshots = nil // no snapshot embedding; the facade embeds the summary
	require.NoError(t, h.SaveSession(ctx, sc))

	stats, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Embeddings)
}

func TestHybridSaveValidation(t *testing.T) {
	h := newTestHybrid(t, t.TempDir(), nil)
	ctx := context.Background()

	assert.Error(t, h.SaveSession(ctx, nil))
	assert.Error(t, h.SaveSession(ctx, &types.SessionContext{}))
}

func TestHybridTransactionAudit(t *testing.T) {
	h := newTestHybrid(t, t.TempDir(), nil)
	ctx := context.Background()

	require.NoError(t, h.SaveSession(ctx, testSession("sess-1", "agent-1", []float32{1, 0})))
	require.NoError(t, h.DeleteSession(ctx, "sess-1"))

	recs := h.Transactions()
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, TxCommitted, rec.Status)
		assert.Contains(t, rec.Participants, "relational")
	}
}

func TestHybridStatsCounters(t *testing.T) {
	h := newTestHybrid(t, t.TempDir(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.SaveSession(ctx, testSession(fmt.Sprintf("sess-%d", i), "agent-1", []float32{1, 0})))
	}
	_, err := h.LoadSession(ctx, "sess-0")
	require.NoError(t, err)
	_, err = h.SearchSimilarSessions(ctx, "anything", 2, "")
	require.NoError(t, err)

	stats, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Saves)
	assert.Equal(t, int64(1), stats.Searches)
	// Candidate loading inside search does not count as caller loads;
	// only the one direct LoadSession does.
	assert.Equal(t, int64(1), stats.Loads)
	assert.Equal(t, int64(0), stats.Errors)
	assert.Equal(t, "stub:2", stats.EmbeddingName)
}
