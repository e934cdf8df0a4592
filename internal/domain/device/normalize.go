package device

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Raw is an arbitrary decoded API or realtime record. Normalizer functions
// are total over it: no shape panics, unknown fields are ignored.
type Raw = map[string]any

// NormalizeCollection adapts the two response shapes the backend is known to
// produce (a bare array, or an array nested under "data") into a uniform
// record slice. Anything else normalizes to empty.
func NormalizeCollection(v any) []Raw {
	items, ok := v.([]any)
	if !ok {
		if wrapper, isMap := v.(map[string]any); isMap {
			items, _ = wrapper["data"].([]any)
		}
	}

	records := make([]Raw, 0, len(items))
	for _, item := range items {
		if rec, isMap := item.(map[string]any); isMap {
			records = append(records, rec)
		}
	}
	return records
}

// NormalizeCoordinate accepts a number or numeric string; anything
// non-finite or unparseable yields nil.
func NormalizeCoordinate(v any) *float64 {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return &val
	case json.Number:
		f, err := val.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return &f
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// ToDevice converts an arbitrary API record into a canonical Device. The id
// resolution order is id, serialNumber, macAddress, then a synthesized uuid
// that stays stable for the session only.
func ToDevice(raw Raw) Device {
	id := strField(raw, "id", "serialNumber", "macAddress")
	if id == "" {
		id = uuid.NewString()
	}

	serial := strField(raw, "serialNumber", "macAddress")

	name := strField(raw, "name", "serialNumber")
	if name == "" {
		name = "Unknown device"
	}

	groupID := strField(raw, "groupId")
	if groupID == "" {
		if group, ok := raw["group"].(map[string]any); ok {
			groupID = strField(group, "id")
		}
	}
	if groupID == "" {
		groupID = GroupAll
	}

	location := strField(raw, "location")
	if location == "" {
		location = "-"
	}

	lastSeenAt := strField(raw, "lastSeenAt")

	return Device{
		ID:          id,
		Serial:      serial,
		MacAddress:  strField(raw, "macAddress"),
		Name:        name,
		Status:      NormalizeStatus(strField(raw, "status")),
		LastSeen:    FormatLastSeen(lastSeenAt),
		LastSeenAt:  lastSeenAt,
		Location:    location,
		Description: strField(raw, "description"),
		Latitude:    NormalizeCoordinate(raw["latitude"]),
		Longitude:   NormalizeCoordinate(raw["longitude"]),
		GroupID:     groupID,
	}
}

// ToGroup converts a raw group record. The group's membership list is
// authoritative: every embedded device is forced to carry the parent id.
func ToGroup(raw Raw) DeviceGroup {
	id := strField(raw, "id")
	if id == "" {
		id = uuid.NewString()
	}

	name := strField(raw, "name")
	if name == "" {
		name = "Unnamed Group"
	}

	var members []Device
	if rawDevices, ok := raw["devices"].([]any); ok {
		members = make([]Device, 0, len(rawDevices))
		for _, entry := range rawDevices {
			rec, isMap := entry.(map[string]any)
			if !isMap {
				continue
			}
			// Group listing endpoints sometimes wrap the device in a
			// membership envelope.
			if nested, hasNested := rec["device"].(map[string]any); hasNested {
				rec = nested
			}
			member := ToDevice(rec)
			member.GroupID = id
			members = append(members, member)
		}
	}

	return DeviceGroup{
		ID:          id,
		Name:        name,
		Description: strField(raw, "description"),
		Site:        strField(raw, "site"),
		Devices:     members,
	}
}

// ToLog converts a raw log record fetched for dev. The index keeps the
// fallback id stable across repeated calls so deduplication holds.
func ToLog(dev Device, raw Raw, idx int) DeviceLog {
	id := strField(raw, "id")
	if id == "" {
		id = fmt.Sprintf("%s-%d", dev.ID, idx)
	}

	deviceID := strField(raw, "deviceId")
	if deviceID == "" {
		deviceID = dev.Key()
	}

	logType := strField(raw, "eventType", "type")
	if logType == "" {
		logType = string(LogTypeLog)
	}

	payload := raw["payload"]

	return DeviceLog{
		ID:        id,
		DeviceID:  deviceID,
		Type:      LogType(logType),
		Message:   buildLogMessage(raw, payload),
		Payload:   payload,
		Timestamp: strField(raw, "createdAt", "timestamp"),
	}
}

// buildLogMessage assembles a human line from whichever fragments the record
// carries. The record's own message is a fallback used only when no fragment
// is present. The result is never empty: the final fallback is the JSON
// encoding of the payload, or of the whole record.
func buildLogMessage(raw Raw, payload any) string {
	var parts []string

	if tag := strField(raw, "eventType", "type"); tag != "" {
		parts = append(parts, tag)
	}
	if cmd := strField(raw, "command"); cmd != "" {
		parts = append(parts, cmd)
	}
	if relay := ExtractRelayState(payload); relay != RelayUnknown {
		parts = append(parts, "relay="+string(relay))
	}
	if s, ok := payload.(string); ok && s != "" {
		parts = append(parts, s)
	}

	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	if msg := strField(raw, "message"); msg != "" {
		return msg
	}

	subject := payload
	if subject == nil {
		subject = raw
	}
	encoded, err := json.Marshal(subject)
	if err != nil || len(encoded) == 0 {
		return fmt.Sprint(subject)
	}
	return string(encoded)
}

// FormatLastSeen renders a backend timestamp for display, or "-" when the
// value is absent or unparseable.
func FormatLastSeen(raw string) string {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return "-"
	}
	return t.Local().Format("02 Jan 2006 15:04:05")
}

// ParseTimestamp accepts the timestamp layouts the backend has been seen to
// emit.
func ParseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// strField returns the first non-empty string value among keys. Numeric
// values are rendered rather than dropped; backends have emitted numeric ids.
func strField(raw Raw, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
