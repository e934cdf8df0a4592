package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-console/internal/domain/device"
)

func TestLogStoreAppendDeduplicates(t *testing.T) {
	store := NewLogStore()

	entry := device.DeviceLog{ID: "a", Message: "first", Timestamp: "2026-08-01T10:00:00Z"}
	store.Append("S1", entry)
	store.Append("S1", entry)

	entries := store.Entries("S1", 0)
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Message)

	// Same id again replaces the stored entry.
	store.Append("S1", device.DeviceLog{ID: "a", Message: "second", Timestamp: "2026-08-01T10:00:00Z"})
	entries = store.Entries("S1", 0)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Message)
}

func TestLogStoreOrdersNewestFirst(t *testing.T) {
	store := NewLogStore()

	store.Append("S1",
		device.DeviceLog{ID: "old", Timestamp: "2026-08-01T09:00:00Z"},
		device.DeviceLog{ID: "untimed"},
		device.DeviceLog{ID: "new", Timestamp: "2026-08-01T11:00:00Z"},
	)
	store.Append("S1", device.DeviceLog{ID: "newest", Timestamp: "2026-08-01T12:00:00Z"})

	entries := store.Entries("S1", 0)
	require.Len(t, entries, 4)
	assert.Equal(t, "newest", entries[0].ID)
	assert.Equal(t, "new", entries[1].ID)
	assert.Equal(t, "old", entries[2].ID)
	assert.Equal(t, "untimed", entries[3].ID)
}

func TestLogStoreOrdersWithinOneMillisecond(t *testing.T) {
	store := NewLogStore()

	store.Append("S1",
		device.DeviceLog{ID: "first", Type: device.LogTypeLWT, Message: "ONLINE", Timestamp: "2026-08-01T10:00:00.0001Z"},
		device.DeviceLog{ID: "second", Type: device.LogTypeLWT, Message: "OFFLINE", Timestamp: "2026-08-01T10:00:00.0009Z"},
	)

	entries := store.Entries("S1", 0)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].ID)
	assert.Equal(t, "first", entries[1].ID)

	// Newest-first scans must see the later signal.
	assert.Equal(t, device.ConnOffline, store.LatestConnectionState("S1"))
}

func TestLogStoreBounded(t *testing.T) {
	store := NewLogStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < LogCap+25; i++ {
		store.Append("S1", device.DeviceLog{
			ID:        fmt.Sprintf("log-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		})
	}

	entries := store.Entries("S1", 0)
	require.Len(t, entries, LogCap)
	// The newest survive, the oldest are evicted.
	assert.Equal(t, fmt.Sprintf("log-%d", LogCap+24), entries[0].ID)
	assert.Equal(t, "log-25", entries[LogCap-1].ID)
}

func TestLogStoreEntriesLimitAndIsolation(t *testing.T) {
	store := NewLogStore()
	store.Append("S1",
		device.DeviceLog{ID: "a", Timestamp: "2026-08-01T10:00:00Z"},
		device.DeviceLog{ID: "b", Timestamp: "2026-08-01T11:00:00Z"},
	)
	store.Append("S2", device.DeviceLog{ID: "c"})

	limited := store.Entries("S1", 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].ID)

	assert.Len(t, store.Entries("S2", 0), 1)
	assert.Empty(t, store.Entries("missing", 0))

	// Mutating a returned slice must not leak into the store.
	entries := store.Entries("S1", 0)
	entries[0].Message = "mutated"
	assert.Empty(t, store.Entries("S1", 0)[0].Message)
}

func TestLogStoreLatestConnectionState(t *testing.T) {
	store := NewLogStore()

	assert.Equal(t, device.ConnUnknown, store.LatestConnectionState("S1"))

	store.Append("S1",
		device.DeviceLog{ID: "a", Type: device.LogTypeLWT, Message: "OFFLINE", Timestamp: "2026-08-01T09:00:00Z"},
		device.DeviceLog{ID: "b", Type: device.LogTypeLog, Message: "ONLINE", Timestamp: "2026-08-01T10:00:00Z"},
	)
	// Only LWT/SYSTEM entries count, so the newer LOG entry is skipped.
	assert.Equal(t, device.ConnOffline, store.LatestConnectionState("S1"))

	store.Append("S1", device.DeviceLog{ID: "c", Type: device.LogTypeSystem, Message: "back ONLINE", Timestamp: "2026-08-01T11:00:00Z"})
	assert.Equal(t, device.ConnOnline, store.LatestConnectionState("S1"))
}

func TestLogStoreLatestRelayState(t *testing.T) {
	store := NewLogStore()

	assert.Equal(t, device.RelayUnknown, store.LatestRelayState("S1"))

	store.Append("S1",
		device.DeviceLog{ID: "a", Payload: map[string]any{"relay_state": "OFF"}, Timestamp: "2026-08-01T09:00:00Z"},
		device.DeviceLog{ID: "b", Message: "no relay here", Timestamp: "2026-08-01T10:00:00Z"},
	)
	assert.Equal(t, device.RelayOff, store.LatestRelayState("S1"))

	store.Append("S1", device.DeviceLog{ID: "c", Payload: `{"relay":"ON"}`, Timestamp: "2026-08-01T11:00:00Z"})
	assert.Equal(t, device.RelayOn, store.LatestRelayState("S1"))
}
