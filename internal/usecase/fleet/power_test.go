package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-console/internal/state"
)

func TestPowerMutationCommit(t *testing.T) {
	store := state.NewStore()
	store.SetPower("d1", false)

	m := BeginPowerMutation(store, "d1", true)
	assert.Equal(t, MutationPending, m.State())

	// The optimistic value is visible before the command is confirmed.
	on, _ := store.PowerFor("d1")
	assert.True(t, on)

	m.Commit()
	assert.Equal(t, MutationCommitted, m.State())
	on, _ = store.PowerFor("d1")
	assert.True(t, on)

	// A committed mutation can no longer roll back.
	m.Rollback(store)
	assert.Equal(t, MutationCommitted, m.State())
	on, _ = store.PowerFor("d1")
	assert.True(t, on)
}

func TestPowerMutationRollback(t *testing.T) {
	store := state.NewStore()
	store.SetPower("d1", true)

	m := BeginPowerMutation(store, "d1", false)
	on, _ := store.PowerFor("d1")
	require.False(t, on)

	m.Rollback(store)
	assert.Equal(t, MutationRolledBack, m.State())
	on, _ = store.PowerFor("d1")
	assert.True(t, on)

	// Commit after rollback is a no-op.
	m.Commit()
	assert.Equal(t, MutationRolledBack, m.State())
}

func TestPowerMutationAbsentPriorValue(t *testing.T) {
	store := state.NewStore()

	m := BeginPowerMutation(store, "d1", true)
	m.Rollback(store)

	on, ok := store.PowerFor("d1")
	require.True(t, ok)
	assert.False(t, on)
}
