package state

import (
	"sort"
	"strings"

	"device-console/internal/domain/device"
)

// LogCap is the canonical per-device retention bound. Narrower UI contexts
// may cap further on read, never on write.
const LogCap = 50

// LogStore keeps a bounded, append-only log history per device key,
// deduplicated by entry id and ordered newest-first. It is not goroutine-safe
// on its own; Store serializes access.
type LogStore struct {
	entries map[string][]device.DeviceLog
}

func NewLogStore() *LogStore {
	return &LogStore{
		entries: make(map[string][]device.DeviceLog),
	}
}

// Append merges entries into the list for key. An entry with an id already
// present replaces the stored one, so appending the same entry twice leaves
// the store unchanged. After the merge the list is re-sorted newest-first
// (missing timestamps sort as oldest, ties keep merge order) and truncated
// to the LogCap most recent.
func (s *LogStore) Append(key string, entries ...device.DeviceLog) {
	if key == "" || len(entries) == 0 {
		return
	}

	existing := s.entries[key]
	merged := make([]device.DeviceLog, 0, len(existing)+len(entries))
	index := make(map[string]int, len(existing)+len(entries))

	for _, batch := range [][]device.DeviceLog{existing, entries} {
		for _, entry := range batch {
			if pos, seen := index[entry.ID]; seen {
				merged[pos] = entry
				continue
			}
			index[entry.ID] = len(merged)
			merged = append(merged, entry)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return logEpoch(merged[i]) > logEpoch(merged[j])
	})

	if len(merged) > LogCap {
		merged = merged[:LogCap]
	}

	s.entries[key] = merged
}

// Entries returns a copy of the stored list for key, newest first. A
// non-zero limit caps the result.
func (s *LogStore) Entries(key string, limit int) []device.DeviceLog {
	stored := s.entries[key]
	if limit > 0 && limit < len(stored) {
		stored = stored[:limit]
	}
	out := make([]device.DeviceLog, len(stored))
	copy(out, stored)
	return out
}

// LatestConnectionState scans newest-first for LWT/SYSTEM entries and
// returns the connection signal of the first one carrying any.
func (s *LogStore) LatestConnectionState(key string) device.ConnectionState {
	for _, entry := range s.entries[key] {
		t := strings.ToUpper(string(entry.Type))
		if !strings.Contains(t, "LWT") && !strings.Contains(t, "SYSTEM") {
			continue
		}
		if state := device.ExtractConnectionState(entry); state != device.ConnUnknown {
			return state
		}
	}
	return device.ConnUnknown
}

// LatestRelayState returns the first relay signal found scanning
// newest-first.
func (s *LogStore) LatestRelayState(key string) device.RelayState {
	for _, entry := range s.entries[key] {
		if relay := device.ExtractRelayState(entry.Payload); relay != device.RelayUnknown {
			return relay
		}
	}
	return device.RelayUnknown
}

// Snapshot copies the full store, keyed by device key.
func (s *LogStore) Snapshot() map[string][]device.DeviceLog {
	out := make(map[string][]device.DeviceLog, len(s.entries))
	for key, list := range s.entries {
		copied := make([]device.DeviceLog, len(list))
		copy(copied, list)
		out[key] = copied
	}
	return out
}

// logEpoch is the sort key: unix nanos of the parsed timestamp, or zero for
// absent/unparseable values so they sink to the oldest end. Full precision
// matters: realtime entries arriving in one burst differ only below the
// millisecond.
func logEpoch(entry device.DeviceLog) int64 {
	t, ok := device.ParseTimestamp(entry.Timestamp)
	if !ok {
		return 0
	}
	return t.UnixNano()
}
