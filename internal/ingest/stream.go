package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/logger"
)

const (
	// Reconnect settings
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 5 * time.Minute

	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// streamEvent is one element of an Alpaca stream envelope. Every frame on
// the wire is a JSON array of these, discriminated by T: "success" and
// "error" for control flow, "subscription" for acks, "b" for minute bars.
type streamEvent struct {
	Type    string    `json:"T"`
	Message string    `json:"msg,omitempty"`
	Code    int       `json:"code,omitempty"`
	Symbol  string    `json:"S,omitempty"`
	Open    float64   `json:"o,omitempty"`
	High    float64   `json:"h,omitempty"`
	Low     float64   `json:"l,omitempty"`
	Close   float64   `json:"c,omitempty"`
	Volume  int64     `json:"v,omitempty"`
	Time    time.Time `json:"t,omitempty"`
	Bars    []string  `json:"bars,omitempty"`
}

// Stream keeps a live minute-bar subscription against the Alpaca data
// stream and writes every bar through the store.
// ⭐ SSOT: the websocket connection and its subscription live only here
type Stream struct {
	cfg     config.AlpacaConfig
	store   BarWriter
	symbols []string
	metrics *metrics.Recorder
	logger  *logger.Logger

	connMu sync.RWMutex
	conn   *websocket.Conn

	stopCh chan struct{}
	doneCh chan struct{}

	reconnectMu  sync.Mutex
	reconnecting bool
}

func NewStream(cfg config.AlpacaConfig, store BarWriter, symbols []string, rec *metrics.Recorder, log *logger.Logger) *Stream {
	return &Stream{
		cfg:     cfg,
		store:   store,
		symbols: symbols,
		metrics: rec,
		logger:  log,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start dials, authenticates, and subscribes, then runs the read and ping
// loops until Stop or ctx cancellation.
func (s *Stream) Start(ctx context.Context) error {
	s.logger.Info("Starting Alpaca bar stream")

	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("initial connection failed: %w", err)
	}

	go s.readLoop(ctx)
	go s.pingLoop(ctx)

	return nil
}

// Stop closes the connection and waits for the read loop to exit. Only
// valid after a successful Start.
func (s *Stream) Stop() {
	s.logger.Info("Stopping Alpaca bar stream")

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	<-s.doneCh
}

// connect establishes the connection and walks the handshake.
func (s *Stream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.logger.WithField("url", s.cfg.StreamURL).Debug("Connecting to Alpaca stream")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.StreamURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	if err := s.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.conn = conn
	s.logger.WithField("symbols", len(s.symbols)).Info("Connected to Alpaca stream")

	return nil
}

// handshake walks the connect protocol: greeting, auth, bar subscription.
func (s *Stream) handshake(conn *websocket.Conn) error {
	if err := expectSuccess(conn, "connected"); err != nil {
		return fmt.Errorf("greeting: %w", err)
	}

	auth := map[string]string{"action": "auth", "key": s.cfg.APIKey, "secret": s.cfg.APISecret}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	if err := expectSuccess(conn, "authenticated"); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	sub := map[string]interface{}{"action": "subscribe", "bars": s.symbols}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	return nil
}

// expectSuccess reads one envelope and requires the success event
// carrying msg; an error event surfaces its code and message instead.
func expectSuccess(conn *websocket.Conn, msg string) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return err
	}

	var events []streamEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if len(events) == 0 {
		return errors.New("empty envelope")
	}

	ev := events[0]
	if ev.Type == "error" {
		return fmt.Errorf("stream error %d: %s", ev.Code, ev.Message)
	}
	if ev.Type != "success" || ev.Message != msg {
		return fmt.Errorf("expected %q, got %s/%s", msg, ev.Type, ev.Message)
	}
	return nil
}

// readLoop reads envelopes until stopped, reconnecting on read failure.
func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()

		if conn == nil {
			time.Sleep(1 * time.Second)
			continue
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			default:
			}
			s.logger.WithError(err).Error("Stream read failed")
			s.handleDisconnect(ctx)
			continue
		}

		if err := s.handleEnvelope(ctx, payload); err != nil {
			s.logger.WithError(err).Error("Stream message rejected")
		}
	}
}

// handleEnvelope decodes one frame and dispatches its events.
func (s *Stream) handleEnvelope(ctx context.Context, payload []byte) error {
	var events []streamEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	for _, ev := range events {
		switch ev.Type {
		case "b":
			s.ingestBar(ctx, ev)
		case "error":
			s.logger.WithFields(map[string]interface{}{
				"code": ev.Code,
				"msg":  ev.Message,
			}).Error("Stream error event")
			s.metrics.RecordError("stream")
		case "subscription":
			s.logger.WithField("bars", len(ev.Bars)).Debug("Subscription acknowledged")
		}
	}
	return nil
}

// ingestBar writes one live minute bar through the store.
func (s *Stream) ingestBar(ctx context.Context, ev streamEvent) {
	bar := contracts.Candle{
		Time:   ev.Time.UTC(),
		Open:   ev.Open,
		High:   ev.High,
		Low:    ev.Low,
		Close:  ev.Close,
		Volume: ev.Volume,
	}

	if err := s.store.Upsert(ctx, ev.Symbol, contracts.Timeframe1m, []contracts.Candle{bar}); err != nil {
		s.logger.WithError(err).WithField("symbol", ev.Symbol).Warn("Live bar write failed")
		s.metrics.RecordError("store")
		return
	}
	s.metrics.RecordBarsIngested(contracts.Timeframe1m, 1)
}

// handleDisconnect reconnects with exponential backoff.
func (s *Stream) handleDisconnect(ctx context.Context) {
	s.reconnectMu.Lock()
	if s.reconnecting {
		s.reconnectMu.Unlock()
		return
	}
	s.reconnecting = true
	s.reconnectMu.Unlock()

	defer func() {
		s.reconnectMu.Lock()
		s.reconnecting = false
		s.reconnectMu.Unlock()
	}()

	s.logger.Warn("Stream disconnected, attempting to reconnect")

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-time.After(delay):
		}

		if err := s.connect(ctx); err != nil {
			s.logger.WithError(err).WithField("delay", delay).Error("Reconnect failed, retrying")

			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		s.logger.Info("Reconnected to Alpaca stream")
		return
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				s.logger.WithError(err).Error("Failed to send ping")
			}
		}
	}
}
