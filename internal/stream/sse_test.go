package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sseHandler(events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprint(w, e)
			fl.Flush()
		}
	}
}

func TestSSEDialAndReceive(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		": keep-alive\n\n",
		"data: first\n\n",
		"event: update\ndata: line1\ndata: line2\n\n",
	))
	defer srv.Close()

	d := NewSSEDialer()
	s, err := d.Dial(context.Background(), Target{DeviceID: "rx-1", Address: srv.URL})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	want := []string{"first", "line1\nline2"}
	for i, w := range want {
		payload, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if string(payload) != w {
			t.Errorf("Next() #%d = %q, want %q", i, payload, w)
		}
	}

	// handler returned, so the stream ends cleanly
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after end = %v, want io.EOF", err)
	}
}

func TestSSEDialSendsStreamHeaders(t *testing.T) {
	var gotAccept, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		sseHandler("data: ok\n\n")(w, r)
	}))
	defer srv.Close()

	d := NewSSEDialer()
	s, err := d.Dial(context.Background(), Target{
		DeviceID: "rx-1",
		Address:  srv.URL,
		Headers:  map[string]string{"Authorization": "Bearer abc"},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close()

	if gotAccept != "text/event-stream" {
		t.Errorf("Accept header = %q, want %q", gotAccept, "text/event-stream")
	}
	if gotAuth != "Bearer abc" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer abc")
	}
}

func TestSSEDialRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewSSEDialer()
	if _, err := d.Dial(context.Background(), Target{Address: srv.URL}); err == nil {
		t.Fatal("Dial() error = nil, want status error")
	}
}

func TestSSEDialRejectsWrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>not a stream</html>")
	}))
	defer srv.Close()

	d := NewSSEDialer()
	if _, err := d.Dial(context.Background(), Target{Address: srv.URL}); err == nil {
		t.Fatal("Dial() error = nil, want content type error")
	}
}

func TestSSENextHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	d := NewSSEDialer()
	s, err := d.Dial(context.Background(), Target{Address: srv.URL})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = s.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Next() did not return promptly on context deadline")
	}
}

func TestSSECloseUnblocksNext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	d := NewSSEDialer()
	s, err := d.Dial(context.Background(), Target{Address: srv.URL})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Logf("Close() error = %v", err)
	}

	select {
	case err := <-errc:
		if err == nil {
			t.Error("Next() error = nil after Close, want error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next() still blocked after Close")
	}
}
