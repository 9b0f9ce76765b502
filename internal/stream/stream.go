package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Next after Close has been called on the stream.
var ErrClosed = errors.New("stream is closed")

// Target describes one device's upstream stream endpoint.
type Target struct {
	// DeviceID is the monitored device this stream belongs to.
	DeviceID string

	// Address is the URL of the stream endpoint.
	Address string

	// Headers are extra request headers, typically vendor auth tokens.
	Headers map[string]string
}

// Stream yields payloads from an open device stream.
type Stream interface {
	// Next blocks until the next payload arrives, the stream ends, or
	// ctx is done. An orderly end of stream returns io.EOF; transport
	// failures return the underlying error.
	Next(ctx context.Context) ([]byte, error)

	// Close tears the stream down. Safe to call more than once and
	// concurrently with Next.
	Close() error
}

// Dialer opens a stream to a device endpoint.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Stream, error)
}

// pipe hands payloads from a transport's reader goroutine to Next callers.
// The reader is the only sender: it pushes payloads with deliver, then
// records one terminal error and closes the channel. Next drains payloads
// until the channel closes, at which point it keeps returning the terminal
// error.
type pipe struct {
	items chan []byte
	done  chan struct{}
	once  sync.Once

	mu       sync.Mutex
	terminal error
}

func newPipe() *pipe {
	return &pipe{
		items: make(chan []byte),
		done:  make(chan struct{}),
	}
}

// deliver hands one payload to a Next caller. Returns false when the pipe
// closed before the payload could be handed over.
func (p *pipe) deliver(payload []byte) bool {
	select {
	case p.items <- payload:
		return true
	case <-p.done:
		return false
	}
}

// finish records the terminal error and stops delivery. A nil err is
// recorded as io.EOF. Only the reader goroutine calls finish.
func (p *pipe) finish(err error) {
	if err == nil {
		err = io.EOF
	}
	p.mu.Lock()
	p.terminal = err
	p.mu.Unlock()
	close(p.items)
}

func (p *pipe) terminalError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminal == nil {
		return io.EOF
	}
	return p.terminal
}

func (p *pipe) next(ctx context.Context) ([]byte, error) {
	select {
	case payload, ok := <-p.items:
		if !ok {
			return nil, p.terminalError()
		}
		return payload, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close releases Next callers and tells the reader to stop. Idempotent.
func (p *pipe) close() {
	p.once.Do(func() { close(p.done) })
}
