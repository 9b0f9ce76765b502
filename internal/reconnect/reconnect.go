// Package reconnect computes retry delays for device stream connections.
//
// This package is internal to miclink. A [Policy] turns a retry attempt
// number into an exponential backoff delay: base, 2x base, 4x base and so
// on, capped at a configured maximum. The policy is stateless; the attempt
// counter lives in the device's connection record, so nothing here needs to
// be persisted or synchronized.
package reconnect

import (
	"context"
	"time"
)

// Defaults applied by NewPolicy when a value is zero or negative.
const (
	DefaultBaseDelay = 1 * time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// Policy describes exponential backoff between reconnect attempts.
// The zero value is not useful; construct with [NewPolicy].
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Cap bounds the delay regardless of attempt count.
	Cap time.Duration
}

// NewPolicy returns a Policy with the given base and cap, substituting
// defaults for non-positive values. A cap below the base is raised to the
// base so that Delay is monotonic.
func NewPolicy(base, cap time.Duration) Policy {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if cap <= 0 {
		cap = DefaultMaxDelay
	}
	if cap < base {
		cap = base
	}
	return Policy{Base: base, Cap: cap}
}

// Delay returns the backoff before retry number attempts+1: base doubled
// attempts times, capped. Attempts below zero are treated as zero.
func (p Policy) Delay(attempts int) time.Duration {
	d := p.Base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= p.Cap || d <= 0 {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Wait blocks for Delay(attempts) or until ctx is done, whichever comes
// first, returning ctx.Err in the latter case.
func (p Policy) Wait(ctx context.Context, attempts int) error {
	timer := time.NewTimer(p.Delay(attempts))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
