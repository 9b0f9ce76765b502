// Package journal appends connection transitions to a rotating JSONL file.
//
// One line per transition, machine-readable, kept outside the primary store
// so operators can reconstruct what a device connection did and when even
// after the record itself moved on. A nil *Journal is valid and records
// nothing, which is how the feature stays off when no path is configured.
package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings for the journal file.
const (
	maxSizeMB  = 10
	maxBackups = 5
	maxAgeDays = 28
)

// Entry is one journal line.
type Entry struct {
	// Time is when the transition was applied.
	Time time.Time `json:"ts"`

	// DeviceID is the device whose connection transitioned.
	DeviceID string `json:"device"`

	// From is the status before the transition.
	From string `json:"from"`

	// To is the status after the transition.
	To string `json:"to"`

	// Reason carries the error text or operator action, when there is one.
	Reason string `json:"reason,omitempty"`
}

// Journal writes entries as JSON lines. Safe for concurrent use.
type Journal struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// New opens a journal at path with size-based rotation.
func New(path string) *Journal {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	return &Journal{w: lj, c: lj}
}

// NewWithWriter returns a journal writing to w, for tests and custom sinks.
func NewWithWriter(w io.Writer) *Journal {
	return &Journal{w: w}
}

// Record appends one entry. An unset Time is stamped with the current time.
// Recording on a nil journal is a no-op.
func (j *Journal) Record(e Entry) error {
	if j == nil {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding journal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(line); err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}

// Close closes the underlying file. Closing a nil journal is a no-op.
func (j *Journal) Close() error {
	if j == nil || j.c == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.c.Close()
}
