// Standalone mock receiver bank for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/miclink serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"
)

func main() {
	fmt.Println("Mock receiver bank starting on :9999")
	fmt.Println("Streams emit a telemetry reading every second")
	fmt.Println("and drop the connection every 20-60 seconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	http.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		rack := r.URL.Query().Get("rack")
		unit := r.URL.Query().Get("unit")
		key := rack + "-" + unit

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		dropAfter := time.Duration(20+rand.Intn(41)) * time.Second
		deadline := time.NewTimer(dropAfter)
		defer deadline.Stop()

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		slog.Info("stream opened", "receiver", key)

		battery := 80 + rand.Intn(20)
		for {
			select {
			case <-r.Context().Done():
				slog.Info("stream closed by client", "receiver", key)
				return
			case <-deadline.C:
				slog.Info("dropping stream", "receiver", key, "after", dropAfter.String())
				return
			case <-ticker.C:
				if battery > 5 && rand.Intn(10) == 0 {
					battery--
				}
				fmt.Fprintf(w, "data: {\"receiver\":%q,\"battery\":%d,\"rssi\":%d,\"audio_level\":%d}\n\n",
					key, battery, -40-rand.Intn(30), rand.Intn(100))
				flusher.Flush()
			}
		}
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
