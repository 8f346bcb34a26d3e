package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorLifecycle(t *testing.T) {
	c := NewCoordinator()

	id, err := c.Begin("")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, c.Join(id, "relational"))
	require.NoError(t, c.Join(id, "document"))
	require.NoError(t, c.Join(id, "relational")) // duplicate join is harmless

	require.NoError(t, c.Commit(id))

	rec, ok := c.Record(id)
	require.True(t, ok)
	assert.Equal(t, TxCommitted, rec.Status)
	assert.Equal(t, []string{"relational", "document"}, rec.Participants)
	assert.False(t, rec.FinishedAt.IsZero())
}

func TestCoordinatorRollbackKeepsReason(t *testing.T) {
	c := NewCoordinator()

	id, err := c.Begin("tx-explicit")
	require.NoError(t, err)
	assert.Equal(t, "tx-explicit", id)

	require.NoError(t, c.Join(id, "vector"))
	require.NoError(t, c.Rollback(id, "vector: disk full"))

	rec, ok := c.Record(id)
	require.True(t, ok)
	assert.Equal(t, TxRolledBack, rec.Status)
	assert.Equal(t, "vector: disk full", rec.Reason)
}

func TestCoordinatorUnknownTransaction(t *testing.T) {
	c := NewCoordinator()

	for _, op := range []func() error{
		func() error { return c.Join("nope", "relational") },
		func() error { return c.Commit("nope") },
		func() error { return c.Rollback("nope", "reason") },
	} {
		err := op()
		require.Error(t, err)
		var txErr *TransactionError
		require.True(t, errors.As(err, &txErr))
		assert.Equal(t, "nope", txErr.TxID)
	}
}

func TestCoordinatorTerminalStateIsFinal(t *testing.T) {
	c := NewCoordinator()

	id, _ := c.Begin("")
	require.NoError(t, c.Commit(id))

	var txErr *TransactionError
	err := c.Commit(id)
	require.True(t, errors.As(err, &txErr))
	err = c.Rollback(id, "too late")
	require.True(t, errors.As(err, &txErr))
	err = c.Join(id, "document")
	require.True(t, errors.As(err, &txErr))

	rec, _ := c.Record(id)
	assert.Equal(t, TxCommitted, rec.Status)
}

func TestCoordinatorDuplicateID(t *testing.T) {
	c := NewCoordinator()

	_, err := c.Begin("dup")
	require.NoError(t, err)
	_, err = c.Begin("dup")
	require.Error(t, err)
}

func TestCoordinatorRecordsAndActiveCount(t *testing.T) {
	c := NewCoordinator()

	a, _ := c.Begin("")
	b, _ := c.Begin("")
	_, _ = c.Begin("")

	require.NoError(t, c.Commit(a))
	require.NoError(t, c.Rollback(b, "failed"))

	assert.Equal(t, 1, c.ActiveCount())
	assert.Len(t, c.Records(), 3)

	// Returned records are copies; mutating them must not leak back.
	recs := c.Records()
	recs[0].Status = TxRolledBack
	recs[0].Participants = append(recs[0].Participants, "bogus")
	fresh, ok := c.Record(a)
	require.True(t, ok)
	assert.Equal(t, TxCommitted, fresh.Status)
	assert.Empty(t, fresh.Participants)
}
