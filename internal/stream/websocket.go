package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = 2 * time.Second
)

// WSDialer opens WebSocket streams to device endpoints.
//
// Vendor configurations frequently list http(s) URLs for their socket
// endpoints; Dial rewrites those schemes to ws(s) before connecting.
// Control frames are handled by the library; every text or binary message
// becomes one payload.
type WSDialer struct {
	dialer *websocket.Dialer
}

// NewWSDialer creates a [WSDialer] with a bounded handshake timeout.
func NewWSDialer() *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
	}
}

// Dial opens the stream. The returned Stream is live until the peer closes
// it, the context is cancelled, or Close is called.
func (d *WSDialer) Dial(ctx context.Context, target Target) (Stream, error) {
	header := http.Header{}
	for key, value := range target.Headers {
		header.Set(key, value)
	}

	conn, resp, err := d.dialer.DialContext(ctx, wsScheme(target.Address), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: status %d: %w", target.Address, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", target.Address, err)
	}

	s := &wsStream{pipe: newPipe(), conn: conn}
	go s.read()
	return s, nil
}

// wsScheme maps http(s) URLs onto their ws(s) equivalents.
func wsScheme(address string) string {
	switch {
	case strings.HasPrefix(address, "https://"):
		return "wss://" + strings.TrimPrefix(address, "https://")
	case strings.HasPrefix(address, "http://"):
		return "ws://" + strings.TrimPrefix(address, "http://")
	default:
		return address
	}
}

type wsStream struct {
	*pipe
	conn      *websocket.Conn
	closeOnce sync.Once
}

// read pumps messages from the socket into the pipe until the peer ends
// the connection. Runs in its own goroutine.
func (s *wsStream) read() {
	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = io.EOF
			}
			s.finish(err)
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if !s.deliver(payload) {
			return
		}
	}
}

func (s *wsStream) Next(ctx context.Context) ([]byte, error) {
	return s.next(ctx)
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.close()
		deadline := time.Now().Add(closeWriteTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}
