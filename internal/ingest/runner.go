package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/justprosound/miclink/internal/alert"
	"github.com/justprosound/miclink/internal/connstate"
	"github.com/justprosound/miclink/internal/hub"
	"github.com/justprosound/miclink/internal/journal"
	"github.com/justprosound/miclink/internal/reconnect"
	"github.com/justprosound/miclink/internal/stream"
)

// finalizeTimeout bounds the persistence call made while the loop is
// already shutting down and its own context is gone.
const finalizeTimeout = 2 * time.Second

// Config carries the collaborators wired into one device's [Runner].
type Config struct {
	// Target is the device's stream endpoint.
	Target stream.Target

	// Dialer opens the upstream connection. Chosen per the device's
	// transport by the caller.
	Dialer stream.Dialer

	// Machine holds and persists the device's connection record.
	Machine *connstate.Machine

	// Hub receives device payloads and status notices.
	Hub *hub.Hub

	// Policy schedules backoff between reconnect attempts.
	Policy reconnect.Policy

	// StaleAfter tears the stream down when no payload arrives within
	// this window. Zero or negative disables staleness detection.
	StaleAfter time.Duration

	// Notifier is told when the retry budget is exhausted.
	Notifier alert.Notifier

	// Journal records transitions. May be nil.
	Journal *journal.Journal

	// Logger for loop events. Nil defaults to slog.Default().
	Logger *slog.Logger
}

// Runner owns the ingest loop for a single device.
//
// The loop is: mark connecting, dial, mark connected, receive payloads
// (each one advances the record and is published to the device topic),
// classify the failure when the stream ends, back off, retry. The loop
// exits when its context is cancelled or [Runner.Stop] is called, marking
// the record stopped exactly once on the way out.
//
// All lifecycle methods are safe for concurrent use.
type Runner struct {
	cfg    Config
	logger *slog.Logger

	resumec chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// NewRunner creates a runner for the device described by cfg. The runner
// must be started with [Runner.Start].
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger.With("device", cfg.Target.DeviceID),
		resumec: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// DeviceID returns the device this runner monitors.
func (r *Runner) DeviceID() string { return r.cfg.Target.DeviceID }

// State returns the device's current connection record.
func (r *Runner) State() connstate.State { return r.cfg.Machine.State() }

// Start launches the loop in a background goroutine. Start is idempotent;
// calls after the first, or after Stop, are no-ops.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	go r.run(runCtx)
}

// Stop cancels the loop and waits for it to exit. The record is marked
// stopped on the way out. Stop is idempotent and interrupts a pending
// dial, receive or backoff wait promptly. Calling Stop before Start is a
// safe no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancel
	started := r.started
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-r.done
	}
}

// Alive reports whether the loop goroutine is still running.
func (r *Runner) Alive() bool {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// RequestResume re-arms a runner that parked after exhausting its retry
// budget. The signal is buffered; sending to a runner that is not parked
// is harmless.
func (r *Runner) RequestResume() {
	select {
	case r.resumec <- struct{}{}:
	default:
	}
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)
	defer r.finalize()

	id := r.cfg.Target.DeviceID
	for {
		if ctx.Err() != nil {
			return
		}

		r.transition(ctx, "", func(c context.Context) (connstate.State, error) {
			return r.cfg.Machine.MarkConnecting(c)
		})

		st, err := r.cfg.Dialer.Dial(ctx, r.cfg.Target)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			reason := fmt.Sprintf("connect failed: %v", err)
			r.logger.Warn("connect failed", "error", err)
			r.transition(ctx, reason, func(c context.Context) (connstate.State, error) {
				return r.cfg.Machine.MarkError(c, reason)
			})
			if !r.backoffOrPark(ctx) {
				return
			}
			continue
		}

		state := r.transition(ctx, "", func(c context.Context) (connstate.State, error) {
			return r.cfg.Machine.MarkConnected(c)
		})
		r.logger.Info("connected", "transport", state.ConnType.String())
		r.cfg.Hub.PublishEnvelope(hub.TopicStatus,
			hub.StatusNotice(fmt.Sprintf("device %s connected", id)))

		reason, failed := r.receive(ctx, st)
		_ = st.Close()
		if ctx.Err() != nil {
			return
		}

		r.logger.Warn("stream ended", "reason", reason)
		if failed {
			r.transition(ctx, reason, func(c context.Context) (connstate.State, error) {
				return r.cfg.Machine.MarkError(c, reason)
			})
		} else {
			r.transition(ctx, reason, func(c context.Context) (connstate.State, error) {
				return r.cfg.Machine.MarkDisconnected(c, reason)
			})
		}
		r.cfg.Hub.PublishEnvelope(hub.TopicStatus,
			hub.StatusNotice(fmt.Sprintf("device %s connection lost: %s", id, reason)))

		if !r.backoffOrPark(ctx) {
			return
		}
	}
}

// receive pumps payloads until the stream ends. The returned reason
// describes why; failed distinguishes transport errors (marked as error)
// from endings the state machine records as disconnects.
func (r *Runner) receive(ctx context.Context, st stream.Stream) (reason string, failed bool) {
	id := r.cfg.Target.DeviceID
	for {
		nextCtx := ctx
		var cancel context.CancelFunc
		if r.cfg.StaleAfter > 0 {
			nextCtx, cancel = context.WithTimeout(ctx, r.cfg.StaleAfter)
		}
		payload, err := st.Next(nextCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return "shutting down", false
			case errors.Is(err, context.DeadlineExceeded):
				return fmt.Sprintf("no data within %s", r.cfg.StaleAfter), false
			case errors.Is(err, io.EOF):
				return "stream ended", false
			default:
				return err.Error(), true
			}
		}

		r.transition(ctx, "", func(c context.Context) (connstate.State, error) {
			return r.cfg.Machine.ReceivedMessage(c)
		})
		r.cfg.Hub.PublishEnvelope(hub.DeviceTopic(id), hub.DeviceUpdate(id, payload))
	}
}

// backoffOrPark decides what happens after a failure. While the retry
// budget lasts it waits out the backoff, counts the attempt and returns
// true so the loop redials. Once the budget is exhausted it alerts exactly
// once and parks until an operator resume or shutdown. Returns false when
// the loop should exit.
func (r *Runner) backoffOrPark(ctx context.Context) bool {
	id := r.cfg.Target.DeviceID

	state := r.cfg.Machine.State()
	if state.ShouldReconnect() {
		delay := r.cfg.Policy.Delay(state.ReconnectAttempts)
		r.logger.Info("reconnecting",
			"attempt", state.ReconnectAttempts+1,
			"max_attempts", state.MaxReconnectAttempts,
			"delay", delay)
		if err := r.cfg.Policy.Wait(ctx, state.ReconnectAttempts); err != nil {
			return false
		}
		r.transition(ctx, "", func(c context.Context) (connstate.State, error) {
			return r.cfg.Machine.IncrementReconnectAttempt(c)
		})
		return true
	}

	reason := fmt.Sprintf("reconnect attempts exhausted after %d tries", state.ReconnectAttempts)
	r.logger.Error("giving up until operator intervention", "attempts", state.ReconnectAttempts)
	if r.cfg.Notifier != nil {
		r.cfg.Notifier.Notify(ctx, id, reason)
	}
	r.cfg.Hub.PublishEnvelope(hub.TopicStatus,
		hub.StatusNotice(fmt.Sprintf("device %s requires manual intervention: %s", id, reason)))

	// The record stays in its failed state, visibly broken, while the
	// loop waits. Only a resume or shutdown moves it on.
	select {
	case <-ctx.Done():
		return false
	case <-r.resumec:
		r.transition(ctx, "operator resume", func(c context.Context) (connstate.State, error) {
			return r.cfg.Machine.Resume(c)
		})
		r.logger.Info("resumed by operator")
		return true
	}
}

// transition applies one state machine operation, logs persistence
// failures, and journals the change when the status actually moved.
func (r *Runner) transition(ctx context.Context, reason string, op func(context.Context) (connstate.State, error)) connstate.State {
	before := r.cfg.Machine.State()
	after, err := op(ctx)
	if err != nil {
		r.logger.Error("persisting connection state", "error", err)
	}
	if before.Status != after.Status {
		if err := r.cfg.Journal.Record(journal.Entry{
			DeviceID: after.DeviceID,
			From:     string(before.Status),
			To:       string(after.Status),
			Reason:   reason,
		}); err != nil {
			r.logger.Warn("journal write failed", "error", err)
		}
	}
	return after
}

// finalize marks the record stopped as the loop exits. The loop's own
// context is gone by now, so persistence gets a short one of its own.
func (r *Runner) finalize() {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	r.transition(ctx, "monitoring stopped", func(c context.Context) (connstate.State, error) {
		return r.cfg.Machine.MarkStopped(c)
	})
	r.cfg.Hub.PublishEnvelope(hub.TopicStatus,
		hub.StatusNotice(fmt.Sprintf("device %s monitoring stopped", r.cfg.Target.DeviceID)))
	r.logger.Info("monitoring stopped")
}
