package device

// Status is the fixed connectivity vocabulary every raw status string is
// classified into.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// RelayState is the actuation state of a device's controlled output. It is
// independent of network connectivity.
type RelayState string

const (
	RelayOn  RelayState = "ON"
	RelayOff RelayState = "OFF"
	// RelayUnknown means no relay evidence was found in a payload.
	RelayUnknown RelayState = ""
)

// ConnectionState is an explicit online/offline signal extracted from a log
// entry or realtime payload.
type ConnectionState string

const (
	ConnOnline  ConnectionState = "ONLINE"
	ConnOffline ConnectionState = "OFFLINE"
	ConnUnknown ConnectionState = ""
)

// LogType tags the origin of a log entry.
type LogType string

const (
	LogTypeLog          LogType = "LOG"
	LogTypeStatus       LogType = "STATUS"
	LogTypeLWT          LogType = "LWT"
	LogTypeAvailability LogType = "AVAILABILITY"
	LogTypeCommand      LogType = "COMMAND"
	LogTypeSystem       LogType = "SYSTEM"
	LogTypeError        LogType = "ERROR"
)

// GroupAll is the synthetic group holding the unfiltered device set. It is
// derived on read, never stored, and must never be updated or deleted.
const GroupAll = "all"

// SentinelID is a placeholder/test device identifier that must be filtered
// from every user-facing view and count.
const SentinelID = "000000000000"

// Device is the canonical device record produced by the normalizer.
type Device struct {
	ID          string   `json:"id"`
	Serial      string   `json:"serial,omitempty"`
	MacAddress  string   `json:"macAddress,omitempty"`
	Name        string   `json:"name"`
	Status      Status   `json:"status"`
	LastSeen    string   `json:"lastSeen"`
	LastSeenAt  string   `json:"lastSeenAt,omitempty"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	GroupID     string   `json:"groupId"`
}

// Key is the realtime channel key: serial when present, id otherwise.
func (d Device) Key() string {
	if d.Serial != "" {
		return d.Serial
	}
	return d.ID
}

// Aliases returns every distinct identifier the device may be announced or
// addressed under. Backends have drifted between serial, mac and id keying,
// so realtime subscriptions cover all of them.
func (d Device) Aliases() []string {
	seen := make(map[string]struct{}, 3)
	aliases := make([]string, 0, 3)
	for _, a := range []string{d.Serial, d.MacAddress, d.ID} {
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		aliases = append(aliases, a)
	}
	return aliases
}

// Matches reports whether the given realtime identifier addresses this device.
func (d Device) Matches(id string) bool {
	if id == "" {
		return false
	}
	return id == d.ID || id == d.Serial || id == d.MacAddress
}

// IsSentinel reports whether the device is the known placeholder record.
func (d Device) IsSentinel() bool {
	return d.ID == SentinelID || d.Serial == SentinelID
}

// DeviceGroup owns a device membership list. A device appearing in Devices is
// a member regardless of its own GroupID.
type DeviceGroup struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Site        string   `json:"site"`
	Devices     []Device `json:"devices"`
}

// DeviceLog is one immutable log entry. Payload keeps the raw structured or
// string data so relay/connection state can be re-extracted later.
type DeviceLog struct {
	ID        string  `json:"id"`
	DeviceID  string  `json:"deviceId"`
	Type      LogType `json:"type"`
	Message   string  `json:"message"`
	Payload   any     `json:"payload,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}
