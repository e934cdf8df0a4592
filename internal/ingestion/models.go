package ingestion

import (
	"encoding/json"
	"fmt"

	"device-console/internal/domain/device"
)

// Event names carried on the realtime channel.
const (
	EventLog          = "device-log"
	EventStatus       = "device-status"
	EventConnection   = "device-connection"
	EventAvailability = "device-availability"
	EventJoinDevice   = "join-device"
)

// Envelope is one realtime frame: a named event plus an arbitrary JSON
// object.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseEnvelope decodes a raw frame. Frames with no event name are rejected.
func ParseEnvelope(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed realtime frame: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("realtime frame carries no event name")
	}
	return &env, nil
}

// DecodeRecord decodes an event body into a raw record. A missing body
// decodes to an empty record, not an error; handlers decide what is
// required.
func DecodeRecord(data json.RawMessage) (device.Raw, error) {
	if len(data) == 0 {
		return device.Raw{}, nil
	}
	var raw device.Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed event body: %w", err)
	}
	if raw == nil {
		raw = device.Raw{}
	}
	return raw, nil
}

// rawString returns the first non-empty string among keys.
func rawString(raw device.Raw, keys ...string) string {
	for _, key := range keys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// resolveEventDevice extracts the device identifier of an event, trying the
// known key-naming variants in order.
func resolveEventDevice(raw device.Raw) string {
	return rawString(raw, "deviceId", "macAddress", "serialNumber")
}

// encodeRaw renders a record for use as a fallback log message.
func encodeRaw(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(encoded)
}
