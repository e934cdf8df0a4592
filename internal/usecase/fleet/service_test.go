package fleet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-console/internal/backend"
	"device-console/internal/config"
	"device-console/internal/domain/device"
	"device-console/internal/state"
	apperrors "device-console/pkg/errors"
)

// fakeBackend is a minimal in-process stand-in for the device backend.
type fakeBackend struct {
	mu       sync.Mutex
	devices  []map[string]any
	groups   []map[string]any
	members  map[string][]map[string]any
	statuses map[string]map[string]any
	logs     map[string][]map[string]any

	failDevices bool
	failGroups  bool
	failCmd     bool
	commands    []string
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /devices", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failDevices {
			http.Error(w, `{"message":"device service unavailable"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, f.devices)
	})
	mux.HandleFunc("GET /devices/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		snap, ok := f.statuses[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, snap)
	})
	mux.HandleFunc("GET /device-logs/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, f.logs[r.PathValue("id")])
	})
	mux.HandleFunc("POST /devices/{id}/cmd", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failCmd {
			http.Error(w, `{"message":"device unreachable"}`, http.StatusBadGateway)
			return
		}
		var body struct {
			Payload struct {
				Command string `json:"command"`
			} `json:"payload"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.commands = append(f.commands, r.PathValue("id")+":"+body.Payload.Command)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /groups", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failGroups {
			http.Error(w, `{"message":"group service unavailable"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, f.groups)
	})
	mux.HandleFunc("GET /groups/{id}/devices", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, f.members[r.PathValue("id")])
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestService(t *testing.T, fake *fakeBackend) (*Service, *state.Store, func()) {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	client := backend.NewClient(config.BackendConfig{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, zap.NewNop())

	store := state.NewStore()
	svc := NewService(client, store, 50, zap.NewNop())
	return svc, store, srv.Close
}

func defaultFake() *fakeBackend {
	return &fakeBackend{
		devices: []map[string]any{
			{"id": "d1", "serialNumber": "S1", "name": "Pump", "status": "OFFLINE"},
			{"id": "d2", "serialNumber": "S2", "name": "Fan", "status": "online"},
			{"id": "d3", "serialNumber": device.SentinelID, "name": "Placeholder", "status": "online"},
		},
		groups: []map[string]any{
			{"id": "g1", "name": "Floor 1"},
		},
		members: map[string][]map[string]any{
			"g1": {
				{"device": map[string]any{"id": "d1", "serialNumber": "S1"}},
				{"device": map[string]any{"id": "d3", "serialNumber": device.SentinelID}},
			},
		},
		statuses: map[string]map[string]any{
			"S1": {"status": "connected", "lastSeenAt": "2026-08-01T10:30:00Z"},
			"S2": {"status": "disconnected"},
		},
		logs: map[string][]map[string]any{
			"S1": {
				{"id": "l1", "eventType": "LOG", "payload": map[string]any{"relay_state": "ON"}, "createdAt": "2026-08-01T10:00:00Z"},
			},
		},
	}
}

func TestServiceLoad(t *testing.T) {
	svc, store, done := newTestService(t, defaultFake())
	defer done()

	require.NoError(t, svc.Load(context.Background()))

	phase, errMsg := svc.Phase()
	assert.Equal(t, PhaseReady, phase)
	assert.Empty(t, errMsg)

	// The status poll corrects the snapshot's coarse guess both ways.
	d1, ok := store.FindDevice("d1")
	require.True(t, ok)
	assert.Equal(t, device.StatusOnline, d1.Status)
	assert.NotEqual(t, "-", d1.LastSeen)

	conn, _ := store.ConnectivityFor("S2")
	assert.Equal(t, device.StatusOffline, conn)

	// Relay evidence in the preloaded history overrides the power guess.
	on, ok := store.PowerFor("d1")
	require.True(t, ok)
	assert.True(t, on)

	// REST poll results never touch power: S2 going offline leaves the
	// coarse guess from the snapshot standing.
	on, ok = store.PowerFor("d2")
	require.True(t, ok)
	assert.True(t, on)

	logs, err := svc.Logs("S1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "l1", logs[0].ID)
}

func TestServiceLoadSentinelHandling(t *testing.T) {
	svc, _, done := newTestService(t, defaultFake())
	defer done()

	require.NoError(t, svc.Load(context.Background()))

	for _, view := range svc.DeviceViews() {
		assert.False(t, view.IsSentinel())
	}
	assert.Len(t, svc.VisibleDevices(), 2)

	stats := svc.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Online)
	assert.Equal(t, 1, stats.Offline)
	assert.Equal(t, 1, stats.Groups)

	// Sentinel aliases still get announced on the realtime channel.
	assert.Contains(t, svc.ChannelKeys(), device.SentinelID)

	_, err := svc.DeviceView(device.SentinelID)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
}

func TestServiceGroupViews(t *testing.T) {
	svc, _, done := newTestService(t, defaultFake())
	defer done()

	require.NoError(t, svc.Load(context.Background()))

	views := svc.GroupViews()
	require.Len(t, views, 2)

	all := views[0]
	assert.Equal(t, device.GroupAll, all.ID)
	assert.Equal(t, 2, all.DeviceCount)

	g1 := views[1]
	assert.Equal(t, "g1", g1.ID)
	// The membership envelope is unwrapped and the sentinel removed.
	require.Equal(t, 1, g1.DeviceCount)
	assert.Equal(t, "d1", g1.Devices[0].ID)
	assert.Equal(t, "g1", g1.Devices[0].GroupID)
}

func TestServiceLoadDeviceListFailure(t *testing.T) {
	fake := defaultFake()
	fake.failDevices = true
	svc, store, done := newTestService(t, fake)
	defer done()

	err := svc.Load(context.Background())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "LOAD_DEVICES_FAILED", appErr.Code)

	phase, msg := svc.Phase()
	assert.Equal(t, PhaseError, phase)
	assert.Equal(t, "device service unavailable", msg)

	assert.Empty(t, store.Devices())
}

func TestServiceLoadGroupFailureIsNotFatal(t *testing.T) {
	fake := defaultFake()
	fake.failGroups = true
	svc, store, done := newTestService(t, fake)
	defer done()

	require.NoError(t, svc.Load(context.Background()))

	phase, _ := svc.Phase()
	assert.Equal(t, PhaseReady, phase)
	assert.Empty(t, store.Groups())
	assert.Len(t, store.Devices(), 3)
}

func TestServiceAnnounceRunsAfterDeviceLoad(t *testing.T) {
	svc, _, done := newTestService(t, defaultFake())
	defer done()

	var mu sync.Mutex
	announced := 0
	svc.SetAnnounce(func() {
		mu.Lock()
		announced++
		mu.Unlock()
	})

	require.NoError(t, svc.Load(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, announced)
}

func TestTogglePower(t *testing.T) {
	fake := defaultFake()
	svc, store, done := newTestService(t, fake)
	defer done()

	require.NoError(t, svc.Load(context.Background()))

	// d1 is powered from relay evidence; turn it off via its serial.
	require.NoError(t, svc.TogglePower(context.Background(), "S1", false))

	on, _ := store.PowerFor("d1")
	assert.False(t, on)

	fake.mu.Lock()
	commands := append([]string(nil), fake.commands...)
	fake.mu.Unlock()
	require.Len(t, commands, 1)
	assert.Equal(t, "S1:OFF", commands[0])
}

func TestTogglePowerRollsBackOnFailure(t *testing.T) {
	fake := defaultFake()
	svc, store, done := newTestService(t, fake)
	defer done()

	require.NoError(t, svc.Load(context.Background()))

	fake.mu.Lock()
	fake.failCmd = true
	fake.mu.Unlock()

	err := svc.TogglePower(context.Background(), "S1", false)
	require.Error(t, err)

	on, _ := store.PowerFor("d1")
	assert.True(t, on)
}

func TestTogglePowerUnknownDevice(t *testing.T) {
	svc, _, done := newTestService(t, defaultFake())
	defer done()

	err := svc.TogglePower(context.Background(), "ghost", true)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
}

func TestGroupMutationsGuardReservedGroup(t *testing.T) {
	svc, _, done := newTestService(t, defaultFake())
	defer done()

	ctx := context.Background()
	assert.ErrorIs(t, svc.AssignToGroup(ctx, device.GroupAll, "d1"), device.ErrGroupReserved)
	assert.ErrorIs(t, svc.RemoveFromGroup(ctx, device.GroupAll, "d1"), device.ErrGroupReserved)
	assert.ErrorIs(t, svc.UpdateGroup(ctx, device.GroupAll, &UpdateGroupRequest{Name: "x"}), device.ErrGroupReserved)
	assert.ErrorIs(t, svc.DeleteGroup(ctx, device.GroupAll), device.ErrGroupReserved)
}
