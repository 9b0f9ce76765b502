package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnknownDevice is returned for operations on a device the supervisor
// does not manage.
var ErrUnknownDevice = errors.New("unknown device")

// Supervisor owns the set of device runners.
//
// Devices are registered before Start; Start launches one loop per device.
// Stopping one device never disturbs the others. All methods are safe for
// concurrent use.
type Supervisor struct {
	logger *slog.Logger

	mu      sync.Mutex
	runners map[string]*Runner
	baseCtx context.Context
	started bool
	stopped bool
}

// NewSupervisor creates an empty supervisor. A nil logger defaults to
// slog.Default().
func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:  logger,
		runners: make(map[string]*Runner),
	}
}

// Register adds a device loop. Registering the same device twice is an
// error. Devices registered after Start are launched immediately.
func (s *Supervisor) Register(cfg Config) error {
	id := cfg.Target.DeviceID
	if id == "" {
		return errors.New("device ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("supervisor is stopped")
	}
	if _, ok := s.runners[id]; ok {
		return fmt.Errorf("device %s already registered", id)
	}

	r := NewRunner(cfg)
	s.runners[id] = r
	if s.started {
		r.Start(s.baseCtx)
	}
	return nil
}

// Start launches all registered runners. Later Register calls start their
// runner with the same context. Start is idempotent.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	s.baseCtx = ctx
	runners := s.snapshot()
	s.mu.Unlock()

	for _, r := range runners {
		r.Start(ctx)
	}
	s.logger.Info("ingest started", "devices", len(runners))
}

// StopDevice stops one device's loop and waits for it to exit. The device
// stays registered so it can be resumed later.
func (s *Supervisor) StopDevice(deviceID string) error {
	s.mu.Lock()
	r, ok := s.runners[deviceID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	r.Stop()
	return nil
}

// ResumeDevice restarts monitoring for a device. A runner parked on an
// exhausted retry budget is re-armed in place; a stopped runner is replaced
// with a fresh loop after the record's retry budget is reset.
func (s *Supervisor) ResumeDevice(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runners[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	if s.stopped {
		return errors.New("supervisor is stopped")
	}

	if r.Alive() {
		r.RequestResume()
		return nil
	}

	if _, err := r.cfg.Machine.Resume(ctx); err != nil {
		s.logger.Error("persisting resume", "device", deviceID, "error", err)
	}
	fresh := NewRunner(r.cfg)
	s.runners[deviceID] = fresh
	if s.started {
		fresh.Start(s.baseCtx)
	}
	return nil
}

// Runner returns the loop for a device.
func (s *Supervisor) Runner(deviceID string) (*Runner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[deviceID]
	return r, ok
}

// StopAll stops every runner and waits for all of them to exit. Idempotent.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	s.stopped = true
	runners := s.snapshot()
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			r.Stop()
		}(r)
	}
	wg.Wait()
	s.logger.Info("ingest stopped", "devices", len(runners))
}

// snapshot copies the runner set. Callers hold the lock.
func (s *Supervisor) snapshot() []*Runner {
	out := make([]*Runner, 0, len(s.runners))
	for _, r := range s.runners {
		out = append(out, r)
	}
	return out
}
