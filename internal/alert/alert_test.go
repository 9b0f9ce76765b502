package alert

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestFuncAdapter(t *testing.T) {
	var gotDevice, gotReason string
	n := Func(func(_ context.Context, deviceID, reason string) {
		gotDevice, gotReason = deviceID, reason
	})

	n.Notify(context.Background(), "rx-1", "reconnect attempts exhausted")

	if gotDevice != "rx-1" {
		t.Errorf("deviceID = %q, want %q", gotDevice, "rx-1")
	}
	if gotReason != "reconnect attempts exhausted" {
		t.Errorf("reason = %q, want %q", gotReason, "reconnect attempts exhausted")
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	NewLogNotifier(logger).Notify(context.Background(), "rx-2", "gone quiet")

	out := buf.String()
	if !strings.Contains(out, "rx-2") {
		t.Errorf("log output missing device ID: %s", out)
	}
	if !strings.Contains(out, "gone quiet") {
		t.Errorf("log output missing reason: %s", out)
	}
	if !strings.Contains(out, "level=ERROR") {
		t.Errorf("log output not at error level: %s", out)
	}
}

func TestLogNotifierNilLogger(t *testing.T) {
	n := NewLogNotifier(nil)
	// must not panic
	n.Notify(context.Background(), "rx-3", "x")
}
