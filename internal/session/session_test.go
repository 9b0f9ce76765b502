package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/justprosound/miclink/internal/hub"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// startViewer runs a session server for one viewer and dials it. The session
// subscribes to topics and pumps until the returned conn is closed.
func startViewer(t *testing.T, ctx context.Context, h *hub.Hub, topics ...string) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		New(conn, h, topics, testLogger()).Run(ctx)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	for _, topic := range topics {
		topic := topic
		waitFor(t, 5*time.Second, func() bool { return h.Subscribers(topic) > 0 },
			"session never subscribed to "+topic)
	}
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	return string(raw)
}

func TestSessionReceivesPublishedEnvelopes(t *testing.T) {
	h := hub.New(testLogger())
	defer h.Close()

	conn := startViewer(t, context.Background(), h, hub.DeviceTopic("rx-1"), hub.TopicStatus)

	h.PublishEnvelope(hub.DeviceTopic("rx-1"), hub.DeviceUpdate("rx-1", []byte(`{"ch":3}`)))
	if got, want := readText(t, conn), `{"type":"device_update","device":"rx-1","data":{"ch":3}}`; got != want {
		t.Errorf("viewer received %s, want %s", got, want)
	}

	h.PublishEnvelope(hub.TopicStatus, hub.StatusNotice("device rx-1 connected"))
	if got, want := readText(t, conn), `{"type":"status","message":"device rx-1 connected"}`; got != want {
		t.Errorf("viewer received %s, want %s", got, want)
	}
}

func TestSessionAnswersPing(t *testing.T) {
	h := hub.New(testLogger())
	defer h.Close()

	conn := startViewer(t, context.Background(), h, hub.TopicStatus)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"ping"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if got := readText(t, conn); got != `{"type":"pong"}` {
		t.Errorf("ping answered with %s, want pong", got)
	}
}

func TestSessionIgnoresMalformedMessages(t *testing.T) {
	h := hub.New(testLogger())
	defer h.Close()

	conn := startViewer(t, context.Background(), h, hub.TopicStatus)

	for _, raw := range []string{"not json at all", `{"command":42}`, `{"command":"dance"}`, `{}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("WriteMessage(%q) error = %v", raw, err)
		}
	}

	// the connection survived all of it
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"ping"}`)); err != nil {
		t.Fatalf("WriteMessage(ping) error = %v", err)
	}
	if got := readText(t, conn); got != `{"type":"pong"}` {
		t.Errorf("after garbage, ping answered with %s, want pong", got)
	}
}

func TestSessionDetachesOnDisconnect(t *testing.T) {
	h := hub.New(testLogger())
	defer h.Close()

	conn := startViewer(t, context.Background(), h, hub.DeviceTopic("rx-1"))
	if got := h.Subscribers(hub.DeviceTopic("rx-1")); got != 1 {
		t.Fatalf("Subscribers() = %d, want 1", got)
	}

	conn.Close()
	waitFor(t, 5*time.Second, func() bool { return h.Subscribers(hub.DeviceTopic("rx-1")) == 0 },
		"session stayed subscribed after viewer disconnect")
}

func TestSessionClosesOnContextCancel(t *testing.T) {
	h := hub.New(testLogger())
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	conn := startViewer(t, ctx, h, hub.TopicStatus)

	cancel()
	waitFor(t, 5*time.Second, func() bool { return h.Subscribers(hub.TopicStatus) == 0 },
		"session survived context cancel")

	// the viewer sees the socket close
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage() succeeded after cancel, want close")
	}
}

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (s *countingSink) Send([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func TestSessionThatCannotKeepUpIsDropped(t *testing.T) {
	h := hub.New(testLogger())
	defer h.Close()

	// hold the server half of a socket without running its pumps, so the
	// session's queue backs up deterministically
	release := make(chan struct{})
	connCh := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()
	serverConn := <-connCh

	stuck := New(serverConn, h, nil, testLogger())
	if _, err := h.Subscribe(hub.DeviceTopic("rx-1"), stuck); err != nil {
		t.Fatalf("Subscribe(stuck) error = %v", err)
	}
	healthy := &countingSink{}
	if _, err := h.Subscribe(hub.DeviceTopic("rx-1"), healthy); err != nil {
		t.Fatalf("Subscribe(healthy) error = %v", err)
	}

	total := sendBuffer + 1
	for i := 0; i < total; i++ {
		h.PublishEnvelope(hub.DeviceTopic("rx-1"), hub.DeviceUpdate("rx-1", []byte(`{}`)))
	}

	if got := h.Subscribers(hub.DeviceTopic("rx-1")); got != 1 {
		t.Errorf("Subscribers() = %d after overload, want only the healthy one", got)
	}
	if healthy.count() != total {
		t.Errorf("healthy sink got %d messages, want %d", healthy.count(), total)
	}
}
