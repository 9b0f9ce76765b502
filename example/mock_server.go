package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// StartMockReceiverServer runs a mock receiver bank that serves SSE
// telemetry streams. Each stream emits a reading every second and drops
// the connection after 20-60 seconds so reconnect handling can be
// observed. Call this in a goroutine before creating miclink devices.
func StartMockReceiverServer(addr string) {
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

		// drop the connection after 20-60 seconds to exercise reconnects
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

	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("mock receiver error", "error", err)
	}
}
