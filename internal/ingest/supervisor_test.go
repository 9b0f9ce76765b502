package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/justprosound/miclink/internal/connstate"
	"github.com/justprosound/miclink/internal/hub"
	"github.com/justprosound/miclink/internal/stream"
)

// freshStreamDialer hands out a new blocking stream on every dial.
func freshStreamDialer() *fakeDialer {
	return &fakeDialer{dial: func(int) (stream.Stream, error) {
		return newScriptedStream(), nil
	}}
}

func TestSupervisorStartsAndStopsAllDevices(t *testing.T) {
	sup := NewSupervisor(nil)

	cfg1, _, _ := testConfig(t, "rx-1", 5, freshStreamDialer())
	cfg2, _, _ := testConfig(t, "rx-2", 5, freshStreamDialer())
	if err := sup.Register(cfg1); err != nil {
		t.Fatalf("Register(rx-1) error = %v", err)
	}
	if err := sup.Register(cfg2); err != nil {
		t.Fatalf("Register(rx-2) error = %v", err)
	}

	sup.Start(context.Background())

	for _, id := range []string{"rx-1", "rx-2"} {
		r, ok := sup.Runner(id)
		if !ok {
			t.Fatalf("Runner(%s) not found", id)
		}
		waitFor(t, 5*time.Second, func() bool { return r.State().IsActive() },
			id+" never connected")
	}

	sup.StopAll()
	sup.StopAll()

	for _, id := range []string{"rx-1", "rx-2"} {
		r, _ := sup.Runner(id)
		if r.Alive() {
			t.Errorf("%s still alive after StopAll", id)
		}
		if got := r.State().Status; got != connstate.StatusStopped {
			t.Errorf("%s Status = %q, want %q", id, got, connstate.StatusStopped)
		}
	}
}

func TestSupervisorRegisterValidation(t *testing.T) {
	sup := NewSupervisor(nil)

	cfg, _, _ := testConfig(t, "rx-1", 5, freshStreamDialer())
	if err := sup.Register(cfg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := sup.Register(cfg); err == nil {
		t.Error("Register() twice succeeded, want error")
	}

	empty := cfg
	empty.Target.DeviceID = ""
	if err := sup.Register(empty); err == nil {
		t.Error("Register() with empty device ID succeeded, want error")
	}

	sup.StopAll()
	cfg2, _, _ := testConfig(t, "rx-2", 5, freshStreamDialer())
	if err := sup.Register(cfg2); err == nil {
		t.Error("Register() after StopAll succeeded, want error")
	}
}

func TestSupervisorRegisterAfterStartLaunchesImmediately(t *testing.T) {
	sup := NewSupervisor(nil)
	sup.Start(context.Background())
	defer sup.StopAll()

	cfg, _, _ := testConfig(t, "rx-1", 5, freshStreamDialer())
	if err := sup.Register(cfg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	r, ok := sup.Runner("rx-1")
	if !ok {
		t.Fatal("Runner(rx-1) not found")
	}
	waitFor(t, 5*time.Second, func() bool { return r.State().IsActive() },
		"late-registered device never connected")
}

func TestSupervisorStopDeviceLeavesOthersRunning(t *testing.T) {
	sup := NewSupervisor(nil)

	cfg1, _, _ := testConfig(t, "rx-1", 5, freshStreamDialer())

	s2 := newScriptedStream()
	d2 := &fakeDialer{dial: func(int) (stream.Stream, error) { return s2, nil }}
	cfg2, h2, _ := testConfig(t, "rx-2", 5, d2)
	sink := &collectSink{}
	if _, err := h2.Subscribe(hub.DeviceTopic("rx-2"), sink); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := sup.Register(cfg1); err != nil {
		t.Fatalf("Register(rx-1) error = %v", err)
	}
	if err := sup.Register(cfg2); err != nil {
		t.Fatalf("Register(rx-2) error = %v", err)
	}
	sup.Start(context.Background())
	defer sup.StopAll()

	r1, _ := sup.Runner("rx-1")
	r2, _ := sup.Runner("rx-2")
	waitFor(t, 5*time.Second, func() bool { return r1.State().IsActive() && r2.State().IsActive() },
		"devices never connected")

	if err := sup.StopDevice("rx-1"); err != nil {
		t.Fatalf("StopDevice(rx-1) error = %v", err)
	}

	if r1.Alive() {
		t.Error("rx-1 still alive after StopDevice")
	}
	if got := r1.State().Status; got != connstate.StatusStopped {
		t.Errorf("rx-1 Status = %q, want %q", got, connstate.StatusStopped)
	}
	if !r2.Alive() {
		t.Error("rx-2 stopped alongside rx-1")
	}

	// the surviving device still flows end to end
	s2.push(`{"rf":42}`)
	waitFor(t, 5*time.Second, func() bool { return len(sink.messages()) == 1 },
		"rx-2 stopped delivering after rx-1 was stopped")
}

func TestSupervisorUnknownDevice(t *testing.T) {
	sup := NewSupervisor(nil)

	if err := sup.StopDevice("ghost"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("StopDevice(ghost) error = %v, want ErrUnknownDevice", err)
	}
	if err := sup.ResumeDevice(context.Background(), "ghost"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("ResumeDevice(ghost) error = %v, want ErrUnknownDevice", err)
	}
}

func TestSupervisorResumeParksRunnerInPlace(t *testing.T) {
	var mu sync.Mutex
	healthy := false
	dialer := &fakeDialer{dial: func(int) (stream.Stream, error) {
		mu.Lock()
		defer mu.Unlock()
		if !healthy {
			return nil, errors.New("connection refused")
		}
		return newScriptedStream(), nil
	}}
	cfg, _, _ := testConfig(t, "rx-1", 1, dialer)
	notifier := &recordingNotifier{}
	cfg.Notifier = notifier

	sup := NewSupervisor(nil)
	if err := sup.Register(cfg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	sup.Start(context.Background())
	defer sup.StopAll()

	waitFor(t, 5*time.Second, func() bool { return notifier.count() == 1 },
		"runner never parked")

	before, _ := sup.Runner("rx-1")
	mu.Lock()
	healthy = true
	mu.Unlock()
	if err := sup.ResumeDevice(context.Background(), "rx-1"); err != nil {
		t.Fatalf("ResumeDevice() error = %v", err)
	}

	after, _ := sup.Runner("rx-1")
	if before != after {
		t.Error("parked runner was replaced, want re-armed in place")
	}
	waitFor(t, 5*time.Second, func() bool { return after.State().IsActive() },
		"runner never reconnected after resume")
}

func TestSupervisorResumeStoppedDeviceStartsFreshRunner(t *testing.T) {
	cfg, _, _ := testConfig(t, "rx-1", 5, freshStreamDialer())

	sup := NewSupervisor(nil)
	if err := sup.Register(cfg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	sup.Start(context.Background())
	defer sup.StopAll()

	before, _ := sup.Runner("rx-1")
	waitFor(t, 5*time.Second, func() bool { return before.State().IsActive() },
		"device never connected")

	if err := sup.StopDevice("rx-1"); err != nil {
		t.Fatalf("StopDevice() error = %v", err)
	}
	if err := sup.ResumeDevice(context.Background(), "rx-1"); err != nil {
		t.Fatalf("ResumeDevice() error = %v", err)
	}

	after, _ := sup.Runner("rx-1")
	if before == after {
		t.Error("stopped runner was reused, want a fresh loop")
	}
	waitFor(t, 5*time.Second, func() bool { return after.State().IsActive() },
		"device never reconnected after resume")
	if got := after.State().ReconnectAttempts; got != 0 {
		t.Errorf("ReconnectAttempts = %d after resume, want 0", got)
	}
}
