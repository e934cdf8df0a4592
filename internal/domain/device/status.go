package device

import (
	"encoding/json"
	"strings"
)

// NormalizeStatus classifies a raw free-text status/connection string into
// the fixed vocabulary. The checks run in order; the first match wins.
// Unknown and empty values classify as offline: an unrecognized status is
// treated as not-reachable, never silently online.
func NormalizeStatus(raw string) Status {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return StatusOffline
	}

	switch {
	case strings.Contains(v, "error"):
		return StatusError
	case v == "online" || v == "on" || strings.Contains(v, "connected") && !strings.Contains(v, "disconnected"):
		return StatusOnline
	case v == "offline" || v == "off" || strings.Contains(v, "disconnected"):
		return StatusOffline
	default:
		return StatusOffline
	}
}

// ExtractRelayState looks for relay evidence in a payload, which may be a
// JSON-encoded string or an already-decoded object. Only exact ON/OFF values
// (after uppercasing) count; malformed JSON yields RelayUnknown, not an error.
func ExtractRelayState(payload any) RelayState {
	if payload == nil {
		return RelayUnknown
	}

	var obj map[string]any

	switch p := payload.(type) {
	case string:
		if err := json.Unmarshal([]byte(p), &obj); err != nil {
			return RelayUnknown
		}
	case map[string]any:
		obj = p
	default:
		return RelayUnknown
	}

	var val string
	for _, key := range []string{"relay_state", "relayState", "relay"} {
		if s, ok := obj[key].(string); ok && s != "" {
			val = s
			break
		}
	}
	if val == "" {
		return RelayUnknown
	}

	switch strings.ToUpper(val) {
	case "ON":
		return RelayOn
	case "OFF":
		return RelayOff
	default:
		return RelayUnknown
	}
}

// ExtractConnectionState pulls an explicit ONLINE/OFFLINE signal out of a log
// entry. Checked in order: a known field inside a structured payload, the
// payload itself when it is a string, then the log message. First hit wins.
func ExtractConnectionState(log DeviceLog) ConnectionState {
	if obj, ok := log.Payload.(map[string]any); ok {
		for _, key := range []string{"device_connection", "connection", "status"} {
			if hit := connTokenOf(obj[key]); hit != ConnUnknown {
				return hit
			}
		}
	}

	if hit := connTokenOf(log.Payload); hit != ConnUnknown {
		return hit
	}

	return connTokenOf(log.Message)
}

func connTokenOf(v any) ConnectionState {
	s, ok := v.(string)
	if !ok {
		return ConnUnknown
	}

	up := strings.ToUpper(s)
	if strings.Contains(up, "OFFLINE") {
		return ConnOffline
	}
	if strings.Contains(up, "ONLINE") {
		return ConnOnline
	}
	return ConnUnknown
}
