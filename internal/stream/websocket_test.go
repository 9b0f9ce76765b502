package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsEchoServer(t *testing.T, send func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		send(conn)
	}))
}

func TestWSDialAndReceive(t *testing.T) {
	srv := wsEchoServer(t, func(conn *websocket.Conn) {
		for _, m := range []string{"one", "two", "three"} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		// wait for the client's close response before tearing down
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	d := NewWSDialer()
	s, err := d.Dial(context.Background(), Target{DeviceID: "rx-1", Address: srv.URL})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i, want := range []string{"one", "two", "three"} {
		payload, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if string(payload) != want {
			t.Errorf("Next() #%d = %q, want %q", i, payload, want)
		}
	}

	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after close frame = %v, want io.EOF", err)
	}
}

func TestWSBinaryMessagesDelivered(t *testing.T) {
	srv := wsEchoServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
		time.Sleep(50 * time.Millisecond)
	})
	defer srv.Close()

	d := NewWSDialer()
	s, err := d.Dial(context.Background(), Target{Address: srv.URL})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(payload) != 2 || payload[0] != 0x01 || payload[1] != 0x02 {
		t.Errorf("Next() = %v, want [1 2]", payload)
	}
}

func TestWSDialFailsOnPlainHTTPEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWSDialer()
	if _, err := d.Dial(context.Background(), Target{Address: srv.URL}); err == nil {
		t.Fatal("Dial() error = nil, want handshake failure")
	}
}

func TestWSNextHonorsContext(t *testing.T) {
	srv := wsEchoServer(t, func(conn *websocket.Conn) {
		time.Sleep(2 * time.Second)
	})
	defer srv.Close()

	d := NewWSDialer()
	s, err := d.Dial(context.Background(), Target{Address: srv.URL})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestWSScheme(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://host/stream", "ws://host/stream"},
		{"https://host/stream", "wss://host/stream"},
		{"ws://host/stream", "ws://host/stream"},
		{"wss://host/stream", "wss://host/stream"},
	}

	for _, tt := range tests {
		if got := wsScheme(tt.in); got != tt.want {
			t.Errorf("wsScheme(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
