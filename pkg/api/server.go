package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wayfare/wayfare/config"
	"github.com/wayfare/wayfare/pkg/api/events"
	"github.com/wayfare/wayfare/pkg/api/handlers"
	"github.com/wayfare/wayfare/pkg/logger"
)

// Server defines the interface for HTTP server lifecycle management.
type Server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// HTTPServer implements the Server interface.
type HTTPServer struct {
	config   *config.Config
	server   *http.Server
	router   chi.Router
	logger   logger.Logger
	handlers *Handlers
	events   *events.Broadcaster
	pumpStop context.CancelFunc
	pumpDone chan struct{}
}

// NewHTTPServer creates a new HTTP server instance. The broadcaster is
// optional; when set, its events are pumped to the websocket handler.
func NewHTTPServer(cfg *config.Config, log logger.Logger, h *Handlers, broadcaster *events.Broadcaster) *HTTPServer {
	router := NewRouter(cfg, log, h)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	return &HTTPServer{
		config:   cfg,
		server:   srv,
		router:   router,
		logger:   log,
		handlers: h,
		events:   broadcaster,
	}
}

// Start starts the HTTP server and the event pump.
func (s *HTTPServer) Start() error {
	s.startEventPump()

	s.logger.Info("starting HTTP server",
		"addr", s.server.Addr,
		"read_timeout", s.config.Server.HTTP.ReadTimeout,
		"write_timeout", s.config.Server.HTTP.WriteTimeout,
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("HTTP server failed", "error", err)
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.pumpStop != nil {
		s.pumpStop()
		<-s.pumpDone
	}
	if s.handlers.WebSocket != nil {
		s.handlers.WebSocket.Close()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown failed", "error", err)
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// startEventPump forwards broadcaster events to websocket clients.
func (s *HTTPServer) startEventPump() {
	if s.events == nil || s.handlers.WebSocket == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.pumpStop = cancel
	s.pumpDone = make(chan struct{})
	sub := s.events.Subscribe(64)

	go func() {
		defer close(s.pumpDone)
		defer s.events.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sub:
				if !ok {
					return
				}
				_ = s.handlers.WebSocket.Broadcast(handlers.EventMessage{
					Type:      event.Type,
					Timestamp: event.Timestamp,
					Payload:   event.Payload,
				})
			}
		}
	}()
}
