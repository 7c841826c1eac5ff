package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsMessage is the frame pushed by a websocket producer. Type is "signal"
// or "heartbeat".
type wsMessage struct {
	Type   string         `json:"type"`
	Signal *domain.Signal `json:"signal,omitempty"`
}

// WSSource dials a websocket producer and reads signal frames. Pongs and
// heartbeat frames count as heartbeats.
type WSSource struct {
	name   string
	url    string
	header http.Header
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSSource dials url with header on Connect.
func NewWSSource(name, url string, header http.Header, logger *slog.Logger) *WSSource {
	return &WSSource{
		name:   name,
		url:    url,
		header: header,
		logger: logger.With(slog.String("component", "ws_source"), slog.String("source", name)),
	}
}

func (s *WSSource) Name() string { return s.name }

// Connect dials the websocket.
func (s *WSSource) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return fmt.Errorf("feed: %s: dial: %w", s.name, err)
	}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Listen emits decoded signals until the connection drops. Pongs count
// as heartbeats.
func (s *WSSource) Listen(ctx context.Context, emit Emitter) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("feed: %s: %w", s.name, domain.ErrWSDisconnect)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		emit.Heartbeat()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: %s: read: %w: %v", s.name, domain.ErrWSDisconnect, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug("undecodable frame", slog.String("error", err.Error()))
			continue
		}
		switch msg.Type {
		case "heartbeat":
			emit.Heartbeat()
		case "signal", "":
			if msg.Signal != nil {
				emit.Emit(*msg.Signal)
			}
		default:
			s.logger.Debug("unknown frame type", slog.String("type", msg.Type))
		}
	}
}

func (s *WSSource) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close sends a close frame and closes the connection.
func (s *WSSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	err := s.conn.Close()
	s.conn = nil
	return err
}
