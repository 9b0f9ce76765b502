// Package alert defines the notification seam used when a device exhausts
// its reconnect budget. The real notification transport (pager, chat hook,
// ticketing) lives outside miclink; this package carries the contract and a
// logging default.
package alert

import (
	"context"
	"log/slog"
)

// Notifier is told when a device needs manual intervention. Implementations
// must tolerate concurrent calls from independent device loops and should
// not block for long; the calling loop is parked but still cancellable.
type Notifier interface {
	Notify(ctx context.Context, deviceID, reason string)
}

// Func adapts a function to the [Notifier] interface.
type Func func(ctx context.Context, deviceID, reason string)

// Notify calls f.
func (f Func) Notify(ctx context.Context, deviceID, reason string) {
	f(ctx, deviceID, reason)
}

// LogNotifier surfaces alerts through structured logging. It is the default
// when no external notifier is wired in.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier. A nil logger defaults to
// slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the alert at error level.
func (n *LogNotifier) Notify(_ context.Context, deviceID, reason string) {
	n.logger.Error("device connection needs manual intervention",
		"device", deviceID, "reason", reason)
}
