package ingestion

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"device-console/internal/config"
)

// SocketSession is the long-lived realtime subscription. It dials the
// backend's websocket endpoint, announces interest in every known device
// channel, feeds received frames into the processor, and reconnects with
// backoff on any failure. No ordering is assumed across a reconnect; the
// reconciler's status poll corrects whatever was missed.
type SocketSession struct {
	cfg       config.RealtimeConfig
	processor *Processor
	devices   func() []string
	logger    *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSocketSession builds a session. devices returns the current set of
// channel keys (every alias of every known device) to announce.
func NewSocketSession(cfg config.RealtimeConfig, processor *Processor, devices func() []string, logger *zap.Logger) *SocketSession {
	return &SocketSession{
		cfg:       cfg,
		processor: processor,
		devices:   devices,
		logger:    logger,
	}
}

// Run connects and consumes frames until ctx is cancelled. It blocks; run
// it on its own goroutine.
func (s *SocketSession) Run(ctx context.Context) {
	backoff := s.cfg.ReconnectMin
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("realtime session ended, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)
		s.processor.Metrics().Update(func(m *IngestMetrics) { m.Reconnects++ })

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if max := s.cfg.ReconnectMax; max > 0 && backoff > max {
			backoff = max
		}
	}
}

func (s *SocketSession) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.logger.Info("realtime session connected", zap.String("url", s.cfg.URL))
	s.Announce()

	// Close the connection when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if s.cfg.PingInterval > 0 {
		go s.pingLoop(done, conn)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.dispatch(frame)
	}
}

func (s *SocketSession) pingLoop(done <-chan struct{}, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (s *SocketSession) dispatch(frame []byte) {
	env, err := ParseEnvelope(frame)
	if err != nil {
		s.logger.Debug("dropping unparseable frame", zap.Error(err))
		s.processor.Metrics().Update(func(m *IngestMetrics) { m.EventsFailed++ })
		return
	}

	raw, err := DecodeRecord(env.Data)
	if err != nil {
		s.logger.Debug("dropping unparseable event body",
			zap.String("event", env.Event),
			zap.Error(err),
		)
		s.processor.Metrics().Update(func(m *IngestMetrics) { m.EventsFailed++ })
		return
	}

	s.processor.Handle(env.Event, raw)
}

// Announce (re)subscribes every known device channel. Call it after the
// device list changes; it is a no-op while disconnected, since connecting
// announces anyway.
func (s *SocketSession) Announce() {
	keys := s.devices()

	// The lock is held across the writes: gorilla connections support only
	// one concurrent writer.
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conn
	if conn == nil {
		return
	}

	for _, key := range keys {
		if key == "" {
			continue
		}
		data, err := json.Marshal(map[string]string{"deviceId": key})
		if err != nil {
			continue
		}
		frame := Envelope{Event: EventJoinDevice, Data: data}

		if s.cfg.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Warn("failed to announce device channel",
				zap.String("device_key", key),
				zap.Error(err),
			)
			return
		}
	}

	s.logger.Debug("announced device channels", zap.Int("count", len(keys)))
}
