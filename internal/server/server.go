package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/justprosound/miclink/internal/connstate"
	"github.com/justprosound/miclink/internal/hub"
	"github.com/justprosound/miclink/internal/ingest"
	"github.com/justprosound/miclink/internal/session"
	"github.com/justprosound/miclink/internal/store"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 5 * time.Second

// Controller is the slice of the monitor core the HTTP layer needs.
type Controller interface {
	// States returns the connection records of every registered device.
	States(ctx context.Context) ([]connstate.State, error)

	// State returns one device's connection record. Unknown devices
	// return an error wrapping [store.ErrNotFound].
	State(ctx context.Context, deviceID string) (connstate.State, error)

	// StopDevice halts a device's ingest loop.
	StopDevice(deviceID string) error

	// ResumeDevice restarts a stopped or parked device loop.
	ResumeDevice(ctx context.Context, deviceID string) error

	// DeviceIDs lists the registered devices.
	DeviceIDs() []string
}

// Server handles HTTP requests for the miclink API and viewer sockets.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	ctrl       Controller
	hub        *hub.Hub
	addr       string
	logger     *slog.Logger
	httpServer *http.Server
	boundAddr  string

	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP [Server] listening on addr once started.
// The server is not started until [Server.Start] is called.
func NewServer(ctrl Controller, h *hub.Hub, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ctrl:   ctrl,
		hub:    h,
		addr:   addr,
		logger: logger,
		upgrader: websocket.Upgrader{
			// viewers are dashboards served from arbitrary origins; the
			// API carries no credentials to protect
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Addr returns the bound listen address. Empty until Start succeeds.
func (s *Server) Addr() string { return s.boundAddr }

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server runs until the context is cancelled, at which
// point it initiates a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify the address synchronously
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.addr, err)
	}
	s.boundAddr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler: s.routes(),
		// BaseContext derives all request contexts from the server
		// context, so viewer sessions also wind down on shutdown.
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", s.boundAddr)
	return nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{device}", s.handleDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{device}/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/devices/{device}/resume", s.handleResume).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleViewer).Methods(http.MethodGet)
	r.HandleFunc("/ws/{device}", s.handleDeviceViewer).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": len(s.ctrl.DeviceIDs()),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	states, err := s.ctrl.States(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device"]
	state, err := s.ctrl.State(r.Context(), deviceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device"]
	if err := s.ctrl.StopDevice(deviceID); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("device stopped via api", "device", deviceID)
	state, err := s.ctrl.State(r.Context(), deviceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device"]
	if err := s.ctrl.ResumeDevice(r.Context(), deviceID); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("device resumed via api", "device", deviceID)
	state, err := s.ctrl.State(r.Context(), deviceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// handleViewer upgrades a viewer socket subscribed to every device plus the
// status topic.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	topics := []string{hub.TopicStatus}
	for _, id := range s.ctrl.DeviceIDs() {
		topics = append(topics, hub.DeviceTopic(id))
	}
	s.serveViewer(w, r, topics)
}

// handleDeviceViewer upgrades a viewer socket narrowed to one device.
func (s *Server) handleDeviceViewer(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device"]
	if _, err := s.ctrl.State(r.Context(), deviceID); err != nil {
		s.writeError(w, err)
		return
	}
	s.serveViewer(w, r, []string{hub.TopicStatus, hub.DeviceTopic(deviceID)})
}

func (s *Server) serveViewer(w http.ResponseWriter, r *http.Request, topics []string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Debug("viewer upgrade failed", "error", err)
		return
	}
	sess := session.New(conn, s.hub, topics, s.logger)
	s.logger.Debug("viewer session started", "session", sess.ID(), "remote", r.RemoteAddr)
	sess.Run(r.Context())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, ingest.ErrUnknownDevice) {
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
