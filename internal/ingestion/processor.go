package ingestion

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"device-console/internal/domain/device"
	"device-console/internal/state"
)

// Processor folds realtime events into the shared fleet state. After the
// reconciler's initial load it is the only writer of incremental updates.
// Each handler touches only the addressed device; events that resolve to no
// known device are dropped silently, since frames can arrive before the
// first load cycle finishes.
type Processor struct {
	store   *state.Store
	metrics *MetricsTracker
	logger  *zap.Logger
}

func NewProcessor(store *state.Store, metrics *MetricsTracker, logger *zap.Logger) *Processor {
	return &Processor{
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

func (p *Processor) Metrics() *MetricsTracker {
	return p.metrics
}

// Handle dispatches one named event.
func (p *Processor) Handle(event string, raw device.Raw) {
	p.metrics.Update(func(m *IngestMetrics) {
		m.EventsReceived++
		m.LastEventAt = time.Now()
	})

	var ok bool
	switch event {
	case EventLog:
		ok = p.handleLog(raw)
	case EventStatus:
		ok = p.handleStatus(raw)
	case EventConnection:
		ok = p.handleConnection(raw)
	case EventAvailability:
		ok = p.handleAvailability(raw)
	default:
		p.logger.Debug("ignoring unknown realtime event", zap.String("event", event))
		p.metrics.Update(func(m *IngestMetrics) { m.EventsDropped++ })
		return
	}

	p.metrics.Update(func(m *IngestMetrics) {
		if ok {
			m.EventsProcessed++
		} else {
			m.EventsDropped++
		}
	})
}

// resolve finds the addressed device, or reports a silent drop.
func (p *Processor) resolve(raw device.Raw) (device.Device, bool) {
	id := resolveEventDevice(raw)
	if id == "" {
		return device.Device{}, false
	}
	dev, found := p.store.FindDevice(id)
	if !found {
		p.logger.Debug("event for unknown device dropped", zap.String("device_id", id))
		return device.Device{}, false
	}
	return dev, true
}

func (p *Processor) handleLog(raw device.Raw) bool {
	dev, found := p.resolve(raw)
	if !found {
		return false
	}

	payload := raw["payload"]
	entry := device.DeviceLog{
		ID:        uuid.NewString(),
		DeviceID:  resolveEventDevice(raw),
		Type:      logTypeOf(raw),
		Message:   logMessageOf(raw, payload),
		Payload:   payload,
		Timestamp: eventTimestamp(raw),
	}

	key := dev.Key()
	p.store.AppendLogs(key, entry)

	if relay := device.ExtractRelayState(payload); relay != device.RelayUnknown {
		p.store.SetPower(dev.ID, relay == device.RelayOn)
	}

	if strings.Contains(strings.ToUpper(string(entry.Type)), "LWT") {
		switch device.ExtractConnectionState(entry) {
		case device.ConnOnline:
			p.store.SetConnectivity(key, device.StatusOnline)
		case device.ConnOffline:
			p.store.SetConnectivity(key, device.StatusOffline)
		}
	}

	return true
}

func (p *Processor) handleStatus(raw device.Raw) bool {
	dev, found := p.resolve(raw)
	if !found {
		return false
	}

	key := dev.Key()
	statusStr := rawString(raw, "status")
	normalized := strings.ToLower(strings.TrimSpace(statusStr))

	indicatesConnection := normalized == "online" ||
		normalized == "offline" ||
		strings.Contains(normalized, "connected") ||
		strings.Contains(normalized, "disconnected")

	if indicatesConnection {
		next := device.StatusOnline
		if normalized == "offline" || strings.Contains(normalized, "disconnected") {
			next = device.StatusOffline
		}
		p.store.SetConnectivity(key, next)
	}

	payload := raw["payload"]
	if normalized == "on" || normalized == "off" {
		p.store.SetPower(dev.ID, normalized == "on")
	} else if relay := device.ExtractRelayState(payload); relay != device.RelayUnknown {
		p.store.SetPower(dev.ID, relay == device.RelayOn)
	}

	message := statusStr
	if message == "" {
		message = encodeRaw(raw)
	}
	p.store.AppendLogs(key, device.DeviceLog{
		ID:        uuid.NewString(),
		DeviceID:  resolveEventDevice(raw),
		Type:      device.LogTypeStatus,
		Message:   message,
		Payload:   payload,
		Timestamp: eventTimestamp(raw),
	})

	return true
}

func (p *Processor) handleConnection(raw device.Raw) bool {
	dev, found := p.resolve(raw)
	if !found {
		return false
	}

	key := dev.Key()
	probe := device.DeviceLog{
		Message: rawString(raw, "status"),
		Payload: map[string]any(raw),
	}

	// LWT semantics: anything short of an explicit ONLINE is offline.
	next := device.StatusOffline
	if device.ExtractConnectionState(probe) == device.ConnOnline {
		next = device.StatusOnline
	}
	p.store.SetConnectivity(key, next)

	message := rawString(raw, "status")
	if message == "" {
		message = encodeRaw(raw)
	}
	p.store.AppendLogs(key, device.DeviceLog{
		ID:        uuid.NewString(),
		DeviceID:  resolveEventDevice(raw),
		Type:      device.LogTypeLWT,
		Message:   message,
		Payload:   map[string]any(raw),
		Timestamp: eventTimestamp(raw),
	})

	return true
}

func (p *Processor) handleAvailability(raw device.Raw) bool {
	dev, found := p.resolve(raw)
	if !found {
		return false
	}

	available, _ := raw["available"].(bool)

	key := dev.Key()
	if available {
		p.store.SetConnectivity(key, device.StatusOnline)
	} else {
		p.store.SetConnectivity(key, device.StatusOffline)
	}

	message := "UNAVAILABLE"
	if available {
		message = "AVAILABLE"
	}
	p.store.AppendLogs(key, device.DeviceLog{
		ID:        uuid.NewString(),
		DeviceID:  resolveEventDevice(raw),
		Type:      device.LogTypeAvailability,
		Message:   message,
		Payload:   map[string]any(raw),
		Timestamp: eventTimestamp(raw),
	})

	return true
}

func logTypeOf(raw device.Raw) device.LogType {
	if t := rawString(raw, "type", "eventType"); t != "" {
		return device.LogType(t)
	}
	return device.LogTypeLog
}

func logMessageOf(raw device.Raw, payload any) string {
	if msg := rawString(raw, "message"); msg != "" {
		return msg
	}
	if payload != nil {
		return encodeRaw(payload)
	}
	return encodeRaw(raw)
}

// eventTimestamp prefers the event's own timestamp and falls back to arrival
// time, so realtime entries sort correctly against preloaded history.
func eventTimestamp(raw device.Raw) string {
	if ts := rawString(raw, "createdAt", "timestamp"); ts != "" {
		return ts
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}
