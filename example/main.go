package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/justprosound/miclink"
)

func main() {
	// start mock receiver bank (see mock_server.go)
	go StartMockReceiverServer(":9999")
	time.Sleep(100 * time.Millisecond)

	// grid API: 2 racks × 2 units = 4 devices from one declaration
	devices, err := miclink.NewDeviceGrid("rx",
		miclink.WithAddressTemplate("http://localhost:9999/stream?rack={{.rack}}&unit={{.unit}}"),
		miclink.WithGridDimensions(map[string][]string{
			"rack": {"7", "8"},
			"unit": {"21", "22"},
		}),
	)
	if err != nil {
		slog.Error("failed to create device grid", "error", err)
		os.Exit(1)
	}

	// add a receiver that is not plugged in to demonstrate parking and alerts
	ghost, _ := miclink.NewDevice("rx-ghost", "http://localhost:9998/stream",
		miclink.WithName("Unplugged Receiver"),
		miclink.WithMaxReconnectAttempts(3),
	)
	devices = append(devices, ghost)

	// the state callback fires on every record update, so track the last
	// status per device and only log actual transitions
	var mu sync.Mutex
	lastStatus := make(map[string]miclink.Status)

	mon, err := miclink.New(
		miclink.WithDevices(devices...),
		miclink.WithListenAddr(":8080"),
		miclink.WithStaleAfter(10*time.Second),
		miclink.WithReconnectPolicy(500*time.Millisecond, 10*time.Second, 3),
		miclink.WithStateCallback(func(s miclink.ConnState) {
			mu.Lock()
			prev, seen := lastStatus[s.DeviceID]
			lastStatus[s.DeviceID] = s.Status
			mu.Unlock()
			if seen && prev == s.Status {
				return
			}
			slog.Info("link state", "device", s.DeviceID, "status", s.Status.String())
		}),
		miclink.WithAlertCallback(func(deviceID, reason string) {
			slog.Warn("receiver needs attention", "device", deviceID, "reason", reason)
		}),
	)
	if err != nil {
		slog.Error("failed to create monitor", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   miclink Demo                                        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   REST API:  http://localhost:8080/api/devices        ║")
	fmt.Println("  ║   Live feed: ws://localhost:8080/ws                   ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Devices:                                            ║")
	fmt.Println("  ║   • 4 mock receivers (2 racks × 2 units via grid)     ║")
	fmt.Println("  ║   • 1 unplugged (parks after 3 failed redials)        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mon.Start(ctx); err != nil {
		slog.Error("miclink error", "error", err)
		os.Exit(1)
	}
}
