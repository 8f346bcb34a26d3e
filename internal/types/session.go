// Package types defines the session domain model shared by the storage
// adapters and the hybrid facade. External callers (agent coordination,
// APIs) construct a SessionContext and hand it to the facade; the types
// here carry no behavior beyond small accessors.
package types

import "time"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusArchived  SessionStatus = "archived"
)

// SessionMetrics aggregates per-session quality and efficiency numbers.
// The whole struct is replaced on every save (no field-level merging).
type SessionMetrics struct {
	TokensSaved             int64              `json:"tokens_saved"`
	CompressionRatio        float64            `json:"compression_ratio"`
	ResponseTimeImprovement float64            `json:"response_time_improvement"`
	InteractionCounts       map[string]int     `json:"interaction_counts,omitempty"`
	LastConsultation        time.Time          `json:"last_consultation,omitempty"`
	QualityScores           map[string]float64 `json:"quality_scores,omitempty"`
}

// SessionMetadata is the structured row for a session. Saves use
// replace-whole-row semantics keyed by SessionID.
type SessionMetadata struct {
	SessionID   string         `json:"session_id"`
	OwnerID     string         `json:"owner_id"`
	ProjectPath string         `json:"project_path"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Status      SessionStatus  `json:"status"`
	Metrics     SessionMetrics `json:"metrics"`
}

// InteractionRecord is one entry in a session's ordered interaction log.
// Input and Output are opaque payloads; Confidence is expected in [0,1].
type InteractionRecord struct {
	Category   string    `json:"category"`
	Operation  string    `json:"operation"`
	Timestamp  time.Time `json:"timestamp"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	Confidence float64   `json:"confidence"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// Task is one unit of tracked work inside a session context.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a point-in-time capture of session context. A snapshot may
// carry an embedding; the facade pushes the latest embedded snapshot into
// the vector adapter on save.
type Snapshot struct {
	Payload        map[string]interface{} `json:"payload"`
	Embedding      []float32              `json:"embedding,omitempty"`
	EmbeddingModel string                 `json:"embedding_model,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// SessionContext is the full retained state for one session: structured
// metadata plus the unstructured context blob fields and the ordered
// interaction log.
type SessionContext struct {
	Metadata        SessionMetadata        `json:"metadata"`
	Tasks           []Task                 `json:"tasks,omitempty"`
	KnowledgeGraph  map[string]interface{} `json:"knowledge_graph,omitempty"`
	ErrorPatterns   []string               `json:"error_patterns,omitempty"`
	SuccessPatterns []string               `json:"success_patterns,omitempty"`
	Interactions    []InteractionRecord    `json:"interactions,omitempty"`
	Cache           map[string]interface{} `json:"cache,omitempty"`
	Snapshots       []Snapshot             `json:"snapshots,omitempty"`
}

// LatestSnapshot returns the last snapshot in the ordered list, or nil
// when the session has none.
func (c *SessionContext) LatestSnapshot() *Snapshot {
	if len(c.Snapshots) == 0 {
		return nil
	}
	return &c.Snapshots[len(c.Snapshots)-1]
}
