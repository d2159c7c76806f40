package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const liveUpdateInterval = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server exposes the live telemetry view over HTTP: a polling JSON endpoint
// and a websocket that pushes updates once per second.
type Server struct {
	orchestrator *Orchestrator
	logger       *slog.Logger
	httpServer   *http.Server
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, orchestrator *Orchestrator, logger *slog.Logger) *Server {
	s := Server{
		orchestrator: orchestrator,
		logger:       logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.websocketHandler)
	r.HandleFunc("/api/live", s.liveHandler).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &s
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	s.logger.Info("live server listening", slog.String("addr", s.httpServer.Addr))

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.orchestrator.Live()); err != nil {
		s.logger.Error("encoding live view", slog.Any("error", err))
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(liveUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.orchestrator.Live()); err != nil {
				return // connection closed
			}
		}
	}
}
