package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-console/internal/domain/device"
	"device-console/internal/state"
)

func newTestProcessor(t *testing.T) (*Processor, *state.Store) {
	t.Helper()
	store := state.NewStore()
	store.ReplaceDevices([]device.Device{
		{ID: "d1", Serial: "S1"},
		{ID: "d2", MacAddress: "AA:BB"},
	})
	return NewProcessor(store, NewMetricsTracker(), zap.NewNop()), store
}

func TestProcessorStatusEvent(t *testing.T) {
	p, store := newTestProcessor(t)

	p.Handle(EventStatus, device.Raw{"deviceId": "S1", "status": "OFFLINE"})

	got, ok := store.ConnectivityFor("S1")
	require.True(t, ok)
	assert.Equal(t, device.StatusOffline, got)

	logs := store.Logs("S1", 0)
	require.Len(t, logs, 1)
	assert.Equal(t, device.LogTypeStatus, logs[0].Type)
	assert.Equal(t, "OFFLINE", logs[0].Message)

	// Power is untouched by a pure connectivity status.
	_, ok = store.PowerFor("d1")
	assert.False(t, ok)
}

func TestProcessorStatusEventPowerTokens(t *testing.T) {
	p, store := newTestProcessor(t)

	p.Handle(EventStatus, device.Raw{"deviceId": "S1", "status": "ON"})
	on, ok := store.PowerFor("d1")
	require.True(t, ok)
	assert.True(t, on)
	// ON/OFF speaks to power, not connectivity.
	_, ok = store.ConnectivityFor("S1")
	assert.False(t, ok)

	p.Handle(EventStatus, device.Raw{"deviceId": "S1", "status": "off"})
	on, _ = store.PowerFor("d1")
	assert.False(t, on)

	p.Handle(EventStatus, device.Raw{
		"deviceId": "S1",
		"status":   "running",
		"payload":  map[string]any{"relay_state": "ON"},
	})
	on, _ = store.PowerFor("d1")
	assert.True(t, on)
}

func TestProcessorLogEvent(t *testing.T) {
	p, store := newTestProcessor(t)

	p.Handle(EventLog, device.Raw{
		"deviceId": "S1",
		"message":  "relay switched",
		"payload":  map[string]any{"relay_state": "ON"},
	})

	logs := store.Logs("S1", 0)
	require.Len(t, logs, 1)
	assert.Equal(t, "relay switched", logs[0].Message)
	assert.NotEmpty(t, logs[0].ID)

	on, ok := store.PowerFor("d1")
	require.True(t, ok)
	assert.True(t, on)

	// A plain log never changes connectivity.
	_, ok = store.ConnectivityFor("S1")
	assert.False(t, ok)
}

func TestProcessorLWTLogEvent(t *testing.T) {
	p, store := newTestProcessor(t)

	p.Handle(EventLog, device.Raw{
		"deviceId": "S1",
		"type":     "LWT",
		"message":  "OFFLINE",
	})

	got, ok := store.ConnectivityFor("S1")
	require.True(t, ok)
	assert.Equal(t, device.StatusOffline, got)
}

func TestProcessorConnectionEvent(t *testing.T) {
	p, store := newTestProcessor(t)

	p.Handle(EventConnection, device.Raw{"deviceId": "S1", "status": "ONLINE"})
	got, _ := store.ConnectivityFor("S1")
	assert.Equal(t, device.StatusOnline, got)

	// Anything short of an explicit ONLINE reads as the will going off.
	p.Handle(EventConnection, device.Raw{"deviceId": "S1", "status": "gone"})
	got, _ = store.ConnectivityFor("S1")
	assert.Equal(t, device.StatusOffline, got)

	logs := store.Logs("S1", 0)
	require.Len(t, logs, 2)
	assert.Equal(t, device.LogTypeLWT, logs[0].Type)
}

func TestProcessorAvailabilityEvent(t *testing.T) {
	p, store := newTestProcessor(t)

	p.Handle(EventAvailability, device.Raw{"deviceId": "AA:BB", "available": true})
	got, _ := store.ConnectivityFor("d2")
	assert.Equal(t, device.StatusOnline, got)

	p.Handle(EventAvailability, device.Raw{"deviceId": "AA:BB", "available": false})
	got, _ = store.ConnectivityFor("d2")
	assert.Equal(t, device.StatusOffline, got)

	logs := store.Logs("d2", 0)
	require.Len(t, logs, 2)
	assert.Equal(t, "UNAVAILABLE", logs[0].Message)
	assert.Equal(t, device.LogTypeAvailability, logs[0].Type)
}

func TestProcessorUnknownDeviceDroppedSilently(t *testing.T) {
	p, store := newTestProcessor(t)

	p.Handle(EventStatus, device.Raw{"deviceId": "ghost", "status": "offline"})
	p.Handle(EventLog, device.Raw{"message": "no device id"})

	assert.Empty(t, store.Connectivity())
	assert.Empty(t, store.LogsSnapshot())

	snap := p.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.EventsReceived)
	assert.Equal(t, int64(2), snap.EventsDropped)
	assert.Equal(t, int64(0), snap.EventsProcessed)
}

func TestProcessorUnknownEventDropped(t *testing.T) {
	p, store := newTestProcessor(t)

	p.Handle("device-telemetry", device.Raw{"deviceId": "S1"})

	assert.Empty(t, store.LogsSnapshot())
	snap := p.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.EventsDropped)
}

func TestProcessorPerDeviceIsolation(t *testing.T) {
	p, store := newTestProcessor(t)

	p.Handle(EventStatus, device.Raw{"deviceId": "S1", "status": "offline"})

	_, ok := store.ConnectivityFor("d2")
	assert.False(t, ok)
	assert.Empty(t, store.Logs("d2", 0))
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"event":"device-log","data":{"deviceId":"S1"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventLog, env.Event)

	raw, err := DecodeRecord(env.Data)
	require.NoError(t, err)
	assert.Equal(t, "S1", raw["deviceId"])

	_, err = ParseEnvelope([]byte(`{`))
	assert.Error(t, err)
	_, err = ParseEnvelope([]byte(`{"data":{}}`))
	assert.Error(t, err)

	raw, err = DecodeRecord(nil)
	require.NoError(t, err)
	assert.Empty(t, raw)
	_, err = DecodeRecord([]byte(`[1,2]`))
	assert.Error(t, err)
}
