package state

import (
	"sync"

	"device-console/internal/domain/device"
)

// Store is the single shared holder of reconciled fleet state: the device
// and group lists, the connectivity and power maps, and the log store. All
// of it is derived and in-memory only; it is rebuilt from scratch on every
// load cycle. Mutations are last-write-wins per key.
//
// Ownership: the reconciler populates the maps during a load cycle, the
// realtime processor overlays incremental updates, everything else reads.
type Store struct {
	mu sync.RWMutex

	devices []device.Device
	groups  []device.DeviceGroup

	// connectivity is keyed by device key (serial, falling back to id).
	connectivity map[string]device.Status
	// power is keyed by device id.
	power map[string]bool

	logs *LogStore
}

func NewStore() *Store {
	return &Store{
		connectivity: make(map[string]device.Status),
		power:        make(map[string]bool),
		logs:         NewLogStore(),
	}
}

// ---- devices ----

func (s *Store) ReplaceDevices(devices []device.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append([]device.Device(nil), devices...)
}

func (s *Store) Devices() []device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]device.Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// FindDevice resolves a realtime identifier against every known alias.
func (s *Store) FindDevice(id string) (device.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.Matches(id) {
			return d, true
		}
	}
	return device.Device{}, false
}

// UpdateDevice applies fn to the device addressed by id. Identity fields
// must not change; fn only sees a copy that is written back afterwards.
func (s *Store) UpdateDevice(id string, fn func(*device.Device)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.devices {
		if s.devices[i].Matches(id) {
			fn(&s.devices[i])
			return true
		}
	}
	return false
}

// ---- groups ----

func (s *Store) ReplaceGroups(groups []device.DeviceGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append([]device.DeviceGroup(nil), groups...)
}

func (s *Store) Groups() []device.DeviceGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]device.DeviceGroup, len(s.groups))
	copy(out, s.groups)
	return out
}

// ---- connectivity map ----

func (s *Store) SetConnectivity(key string, status device.Status) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectivity[key] = status
}

// ReplaceConnectivity swaps the whole map; used by the reconciler when
// seeding from a fresh snapshot.
func (s *Store) ReplaceConnectivity(m map[string]device.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectivity = make(map[string]device.Status, len(m))
	for k, v := range m {
		s.connectivity[k] = v
	}
}

func (s *Store) ConnectivityFor(key string) (device.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.connectivity[key]
	return v, ok
}

func (s *Store) Connectivity() map[string]device.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]device.Status, len(s.connectivity))
	for k, v := range s.connectivity {
		out[k] = v
	}
	return out
}

// ---- power map ----

func (s *Store) SetPower(deviceID string, powered bool) {
	if deviceID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power[deviceID] = powered
}

func (s *Store) ReplacePower(m map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = make(map[string]bool, len(m))
	for k, v := range m {
		s.power[k] = v
	}
}

func (s *Store) PowerFor(deviceID string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.power[deviceID]
	return v, ok
}

func (s *Store) Power() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.power))
	for k, v := range s.power {
		out[k] = v
	}
	return out
}

// ---- logs ----

func (s *Store) AppendLogs(key string, entries ...device.DeviceLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs.Append(key, entries...)
}

func (s *Store) Logs(key string, limit int) []device.DeviceLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.Entries(key, limit)
}

func (s *Store) LogsSnapshot() map[string][]device.DeviceLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.Snapshot()
}

func (s *Store) LatestRelayState(key string) device.RelayState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.LatestRelayState(key)
}

// ---- derived connectivity ----

// ConnectionStatusFor resolves the display connectivity of a device by
// precedence: an explicit map entry, then the LWT/SYSTEM state inferred from
// stored logs, then online. Absence of negative evidence reads as online.
func (s *Store) ConnectionStatusFor(d device.Device) device.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := d.Key()
	if mapped, ok := s.connectivity[key]; ok {
		return mapped
	}

	if inferred := s.logs.LatestConnectionState(key); inferred == device.ConnOffline {
		return device.StatusOffline
	}
	return device.StatusOnline
}
