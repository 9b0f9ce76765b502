package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/justprosound/miclink/internal/hub"
)

const (
	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long a viewer may stay silent before the read side
	// gives up. Control pings are sent at pingPeriod to keep it fed.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxCommandSize bounds inbound viewer messages. Viewers only ever
	// send small JSON commands.
	maxCommandSize = 512

	// sendBuffer is the per-viewer outbound queue. A viewer that lets it
	// fill is dropped rather than allowed to stall the hub.
	sendBuffer = 64
)

// pongReply is the fixed answer to a viewer ping.
var pongReply = []byte(`{"type":"pong"}`)

// Session binds one viewer WebSocket to the broadcast hub.
//
// The session subscribes itself to its topics when [Session.Run] starts and
// detaches when the viewer goes away. Delivery is at-most-once: a full
// outbound queue or a dead socket ends the session instead of blocking
// publishers.
type Session struct {
	id     string
	conn   *websocket.Conn
	hub    *hub.Hub
	topics []string
	logger *slog.Logger

	send chan []byte
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New wraps an upgraded connection in a session subscribed to topics. A nil
// logger defaults to slog.Default(). The caller must invoke [Session.Run].
func New(conn *websocket.Conn, h *hub.Hub, topics []string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   conn,
		hub:    h,
		topics: topics,
		logger: logger.With("session", id),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Send queues one envelope for the viewer. It implements [hub.Sink].
//
// A closed session returns an error so the hub unregisters it. A session
// whose queue is full is shut down and also reports failure; a viewer that
// cannot drain its queue must not hold everyone else up.
func (s *Session) Send(msg []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("session %s is closed", s.id)
	default:
	}
	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return fmt.Errorf("session %s is closed", s.id)
	default:
		s.teardown("viewer cannot keep up")
		return fmt.Errorf("session %s cannot keep up", s.id)
	}
}

// Run subscribes the session to its topics and pumps the socket until the
// viewer disconnects, misbehaves, or ctx is cancelled. It blocks for the
// session's lifetime and detaches from the hub on the way out.
func (s *Session) Run(ctx context.Context) {
	subs := make([]*hub.Subscription, 0, len(s.topics))
	for _, topic := range s.topics {
		sub, err := s.hub.Subscribe(topic, s)
		if err != nil {
			s.logger.Warn("subscribe failed", "topic", topic, "error", err)
			s.teardown("subscribe failed")
			break
		}
		subs = append(subs, sub)
	}
	defer func() {
		for _, sub := range subs {
			s.hub.Unsubscribe(sub)
		}
	}()

	s.wg.Add(1)
	go s.writePump()
	go func() {
		select {
		case <-ctx.Done():
			s.teardown("server shutting down")
		case <-s.done:
		}
	}()

	s.logger.Debug("viewer connected", "topics", s.topics)
	s.readPump()
	s.wg.Wait()
}

func (s *Session) readPump() {
	defer s.teardown("viewer disconnected")

	s.conn.SetReadLimit(maxCommandSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("viewer read failed", "error", err)
			}
			return
		}
		s.handleCommand(raw)
	}
}

// handleCommand interprets one inbound viewer message. Anything that is not
// a known command is ignored; viewers are never disconnected for sending
// garbage.
func (s *Session) handleCommand(raw []byte) {
	var cmd struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.logger.Debug("ignoring malformed viewer message", "error", err)
		return
	}

	switch cmd.Command {
	case "ping":
		select {
		case s.send <- pongReply:
		case <-s.done:
		default:
		}
	case "":
		s.logger.Debug("ignoring viewer message without command")
	default:
		s.logger.Debug("ignoring unknown viewer command", "command", cmd.Command)
	}
}

func (s *Session) writePump() {
	defer s.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.teardown("viewer write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.teardown("viewer ping failed")
				return
			}
		case <-s.done:
			return
		}
	}
}

// teardown closes the session exactly once. WriteControl is safe alongside
// the write pump, so the close frame goes out best effort from any caller.
func (s *Session) teardown(reason string) {
	s.once.Do(func() {
		close(s.done)
		deadline := time.Now().Add(writeWait)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
		s.logger.Debug("viewer session closed", "reason", reason)
	})
}
