package store

import "fmt"

// StorageError is the generic backend fault. It always wraps the
// underlying cause; callers can errors.As/errors.Unwrap to reach it.
type StorageError struct {
	Op        string // Operation that failed, e.g. "relational.save_metadata"
	SessionID string // Session involved, when known
	Err       error
}

func (e *StorageError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("storage: %s (session %s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err unless it is already one of this package's typed
// errors, so a ConsistencyError surfacing through the facade keeps its
// identity.
func storageErr(op, sessionID string, err error) error {
	switch err.(type) {
	case *StorageError, *ConsistencyError, *TransactionError:
		return err
	}
	return &StorageError{Op: op, SessionID: sessionID, Err: err}
}

// ConsistencyError reports a checksum mismatch on a document read. The
// stored payload is never silently repaired or returned.
type ConsistencyError struct {
	SessionID string
	Expected  string // Checksum recorded at save time
	Actual    string // Checksum recomputed at read time
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency: context data for session %s is corrupt (checksum %s, recomputed %s)",
		e.SessionID, e.Expected, e.Actual)
}

// TransactionError reports coordinator misuse: an unknown transaction id
// or an invalid state transition.
type TransactionError struct {
	TxID   string
	Reason string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s: %s", e.TxID, e.Reason)
}
