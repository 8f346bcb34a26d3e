package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentvault/internal/logging"
)

// TxStatus is the lifecycle state of a coordinated transaction.
type TxStatus string

const (
	TxActive     TxStatus = "active"
	TxCommitted  TxStatus = "committed"
	TxRolledBack TxStatus = "rolled_back"
)

// TxRecord is the audit entry for one cross-backend transaction. The
// coordinator is bookkeeping only: a rollback marks the record, it does
// not undo writes that already landed in a backend.
type TxRecord struct {
	ID           string    `json:"id"`
	Status       TxStatus  `json:"status"`
	Participants []string  `json:"participants"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	Reason       string    `json:"reason,omitempty"` // Set on rollback
}

// Coordinator tracks cross-backend write groups so partial failures are
// auditable. Records live in memory for the life of the process.
type Coordinator struct {
	mu      sync.Mutex
	records map[string]*TxRecord
}

// NewCoordinator returns an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{records: make(map[string]*TxRecord)}
}

// Begin opens a new transaction record. An empty id gets a generated
// UUID. Reusing a live or finished id is an error.
func (c *Coordinator) Begin(id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.records[id]; exists {
		return "", &TransactionError{TxID: id, Reason: "transaction id already in use"}
	}
	c.records[id] = &TxRecord{
		ID:        id,
		Status:    TxActive,
		StartedAt: time.Now().UTC(),
	}
	logging.TxnDebug("Begin tx=%s", id)
	return id, nil
}

// Join records that a backend participated in the transaction. Joining
// the same participant twice is harmless.
func (c *Coordinator) Join(id, participant string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.active(id)
	if err != nil {
		return err
	}
	for _, p := range rec.Participants {
		if p == participant {
			return nil
		}
	}
	rec.Participants = append(rec.Participants, participant)
	logging.TxnDebug("Join tx=%s participant=%s", id, participant)
	return nil
}

// Commit finalizes an active transaction.
func (c *Coordinator) Commit(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.active(id)
	if err != nil {
		return err
	}
	rec.Status = TxCommitted
	rec.FinishedAt = time.Now().UTC()
	logging.Txn("Commit tx=%s participants=%v", id, rec.Participants)
	return nil
}

// Rollback marks an active transaction as failed with the given reason.
// Backend writes that already happened stay; the record is the audit
// trail for the inconsistency.
func (c *Coordinator) Rollback(id, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.active(id)
	if err != nil {
		return err
	}
	rec.Status = TxRolledBack
	rec.FinishedAt = time.Now().UTC()
	rec.Reason = reason
	logging.Get(logging.CategoryTxn).Warn("Rollback tx=%s reason=%s participants=%v", id, reason, rec.Participants)
	return nil
}

// active looks up a record and verifies it can still transition.
// Caller holds c.mu.
func (c *Coordinator) active(id string) (*TxRecord, error) {
	rec, ok := c.records[id]
	if !ok {
		return nil, &TransactionError{TxID: id, Reason: "unknown transaction"}
	}
	if rec.Status != TxActive {
		return nil, &TransactionError{TxID: id, Reason: "transaction already " + string(rec.Status)}
	}
	return rec, nil
}

// Record returns a copy of one transaction's audit entry.
func (c *Coordinator) Record(id string) (TxRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return TxRecord{}, false
	}
	return copyRecord(rec), true
}

// Records returns copies of every audit entry, newest first.
func (c *Coordinator) Records() []TxRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TxRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// ActiveCount returns the number of transactions still open.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, rec := range c.records {
		if rec.Status == TxActive {
			n++
		}
	}
	return n
}

func copyRecord(rec *TxRecord) TxRecord {
	out := *rec
	out.Participants = append([]string(nil), rec.Participants...)
	return out
}
