package fleet

import (
	"device-console/internal/state"
)

// MutationState tracks an optimistic local write through its lifecycle.
type MutationState string

const (
	MutationPending    MutationState = "pending"
	MutationCommitted  MutationState = "committed"
	MutationRolledBack MutationState = "rolled_back"
)

// PowerMutation is the optimistic power-toggle record: the map is written
// before the command is confirmed, and the previous value is restored when
// the command fails. This is the only place a local mutation is applied
// ahead of server confirmation.
type PowerMutation struct {
	deviceID string
	prev     bool
	state    MutationState
}

// BeginPowerMutation captures the prior value and applies the new one.
func BeginPowerMutation(store *state.Store, deviceID string, next bool) *PowerMutation {
	prev, _ := store.PowerFor(deviceID)
	m := &PowerMutation{
		deviceID: deviceID,
		prev:     prev,
		state:    MutationPending,
	}
	store.SetPower(deviceID, next)
	return m
}

// Commit finalizes the mutation; the optimistic value stands.
func (m *PowerMutation) Commit() {
	if m.state == MutationPending {
		m.state = MutationCommitted
	}
}

// Rollback restores the captured prior value. Only a pending mutation can
// roll back.
func (m *PowerMutation) Rollback(store *state.Store) {
	if m.state != MutationPending {
		return
	}
	store.SetPower(m.deviceID, m.prev)
	m.state = MutationRolledBack
}

// State reports the mutation lifecycle state.
func (m *PowerMutation) State() MutationState {
	return m.state
}
