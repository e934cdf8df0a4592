package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"device-console/internal/domain/device"
	pkgmqtt "device-console/pkg/mqtt"
)

// MQTTBridgeConfig describes the topic layout and connection parameters of
// an optional broker-side feed. Topics follow <prefix>/<deviceKey>/<kind>,
// where kind is log, status, connection (the LWT topic) or availability.
type MQTTBridgeConfig struct {
	ClientConfig *pkgmqtt.Config
	TopicPrefix  string
	QoS          byte
}

// MQTTBridge feeds broker messages into the same processor the websocket
// session uses. The two transports can run side by side; state updates are
// last-write-wins either way.
type MQTTBridge struct {
	cfg       *MQTTBridgeConfig
	client    *pkgmqtt.Client
	processor *Processor
	logger    *zap.Logger

	mu            sync.Mutex
	started       bool
	subscriptions []string
}

var topicKinds = map[string]string{
	"log":          EventLog,
	"status":       EventStatus,
	"connection":   EventConnection,
	"lwt":          EventConnection,
	"availability": EventAvailability,
}

// NewMQTTBridge builds the bridge. The broker connection is not opened
// until Start.
func NewMQTTBridge(cfg *MQTTBridgeConfig, processor *Processor, logger *zap.Logger) (*MQTTBridge, error) {
	if cfg == nil || cfg.ClientConfig == nil {
		return nil, errors.New("mqtt bridge config is not configured")
	}
	if processor == nil {
		return nil, errors.New("processor is required")
	}

	b := &MQTTBridge{
		cfg:       cfg,
		processor: processor,
		logger:    logger,
	}
	b.client = pkgmqtt.NewClient(cfg.ClientConfig, logger)
	b.client.OnReconnect(b.resubscribe)
	return b, nil
}

// Start establishes the MQTT connection and subscribes to the device topics.
func (b *MQTTBridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}

	if err := b.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	prefix := strings.TrimRight(b.cfg.TopicPrefix, "/")
	for kind := range topicKinds {
		topic := fmt.Sprintf("%s/+/%s", prefix, kind)
		if err := b.client.Subscribe(topic, b.cfg.QoS, b.handleMessage); err != nil {
			return err
		}
		b.subscriptions = append(b.subscriptions, topic)
	}

	b.started = true
	return nil
}

// Stop unsubscribes and disconnects.
func (b *MQTTBridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return
	}
	if len(b.subscriptions) > 0 {
		if err := b.client.Unsubscribe(b.subscriptions...); err != nil {
			b.logger.Warn("failed to unsubscribe mqtt topics", zap.Error(err))
		}
	}
	b.client.Disconnect()
	b.started = false
}

func (b *MQTTBridge) resubscribe() {
	b.mu.Lock()
	topics := append([]string(nil), b.subscriptions...)
	qos := b.cfg.QoS
	b.mu.Unlock()

	for _, topic := range topics {
		if err := b.client.Subscribe(topic, qos, b.handleMessage); err != nil {
			b.logger.Warn("failed to resubscribe", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// handleMessage converts one broker message into a realtime event. The
// device key comes from the topic; a deviceId inside the payload wins when
// present.
func (b *MQTTBridge) handleMessage(topic string, payload []byte) {
	deviceKey, kind, ok := b.parseTopic(topic)
	if !ok {
		b.logger.Debug("ignoring message on unrecognized topic", zap.String("topic", topic))
		return
	}

	var raw device.Raw
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		// Bare-string payloads are common on LWT topics ("OFFLINE").
		raw = device.Raw{"payload": string(payload), "status": string(payload)}
	}
	if resolveEventDevice(raw) == "" {
		raw["deviceId"] = deviceKey
	}

	b.processor.Handle(kind, raw)
}

func (b *MQTTBridge) parseTopic(topic string) (deviceKey, kind string, ok bool) {
	prefix := strings.TrimRight(b.cfg.TopicPrefix, "/") + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", "", false
	}

	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) != 2 {
		return "", "", false
	}

	kind, known := topicKinds[parts[1]]
	if !known {
		return "", "", false
	}
	return parts[0], kind, true
}
