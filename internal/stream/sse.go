package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transport limits for long-lived vendor streams. Header receipt is bounded
// so a dead endpoint fails the dial instead of hanging; the body itself has
// no deadline, it stays open for the life of the stream.
const (
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultIdleConnTimeout       = 60 * time.Second
	maxEventLineSize             = 1 << 20 // 1MB
)

// SSEDialer opens Server-Sent Events streams to device endpoints.
//
// The dialer issues a GET with Accept: text/event-stream and keeps the
// response body open, parsing events as they arrive. Comment lines (the
// usual keep-alive mechanism) are ignored; multi-line data fields are
// joined with newlines per the SSE wire format.
type SSEDialer struct {
	client *http.Client
}

// NewSSEDialer creates an [SSEDialer] with its own pooled transport.
func NewSSEDialer() *SSEDialer {
	return &SSEDialer{
		client: &http.Client{
			// no client timeout: the stream body stays open indefinitely
			Transport: &http.Transport{
				ResponseHeaderTimeout: defaultResponseHeaderTimeout,
				IdleConnTimeout:       defaultIdleConnTimeout,
			},
		},
	}
}

// Dial opens the stream. The returned Stream is live until the server ends
// it, the context is cancelled, or Close is called.
func (d *SSEDialer) Dial(ctx context.Context, target Target) (Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, target.Address, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sse dial %s: %w", target.Address, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for key, value := range target.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sse dial %s: %w", target.Address, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse dial %s: unexpected status %d", target.Address, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse dial %s: unexpected content type %q", target.Address, ct)
	}

	s := &sseStream{
		pipe:   newPipe(),
		body:   resp.Body,
		cancel: cancel,
	}
	go s.read()
	return s, nil
}

type sseStream struct {
	*pipe
	body   io.ReadCloser
	cancel context.CancelFunc
}

// read parses the event stream and pushes each complete data payload into
// the pipe. Runs in its own goroutine until the body ends.
func (s *sseStream) read() {
	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineSize)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		// blank line dispatches the accumulated event
		if line == "" {
			if len(data) > 0 {
				payload := strings.Join(data, "\n")
				data = nil
				if !s.deliver([]byte(payload)) {
					return
				}
			}
			continue
		}
		// comment / keep-alive
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			data = append(data, value)
		}
		// event, id and retry fields carry no payload for our vendors
	}

	s.finish(scanner.Err())
}

func (s *sseStream) Next(ctx context.Context) ([]byte, error) {
	return s.next(ctx)
}

func (s *sseStream) Close() error {
	s.close()
	s.cancel()
	return s.body.Close()
}
