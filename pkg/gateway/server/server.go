// Package server wires the gateway: routes, middleware chain, and the
// shared lifecycle plumbing used for graceful shutdown.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/voxlink/livebridge/pkg/gateway/config"
	"github.com/voxlink/livebridge/pkg/gateway/handlers"
	"github.com/voxlink/livebridge/pkg/gateway/lifecycle"
	"github.com/voxlink/livebridge/pkg/gateway/live/sessions"
	"github.com/voxlink/livebridge/pkg/gateway/mw"
	"github.com/voxlink/livebridge/pkg/gateway/tools/mcp"
	"github.com/voxlink/livebridge/pkg/gateway/upstream"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycle    *lifecycle.Lifecycle
	liveSessions *sessions.Tracker
	connector    upstream.Connector
	tools        *mcp.Gateway
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		mux:          http.NewServeMux(),
		lifecycle:    &lifecycle.Lifecycle{},
		liveSessions: sessions.NewTracker(),
		connector:    upstream.NewGeminiConnector(cfg.GeminiAPIKey),
		tools:        mcp.New(cfg.MCPServerURL, logger),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	s.mux.Handle("GET /ws", handlers.LiveHandler{
		Config:       s.cfg,
		Logger:       s.logger,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
		Upstream:     s.connector,
		Tools:        s.tools,
	})

	tools := handlers.ToolsHandler{Gateway: s.tools, Logger: s.logger}
	s.mux.HandleFunc("GET /mcp/products", tools.Products)
	s.mux.HandleFunc("GET /mcp/products/search", tools.SearchProducts)
	s.mux.HandleFunc("GET /mcp/appointments", tools.Appointments)
	s.mux.HandleFunc("POST /mcp/appointments", tools.CreateAppointment)
	s.mux.HandleFunc("PATCH /mcp/appointments/{id}", tools.UpdateAppointment)

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness and makes the live handler refuse new
// sessions; existing sessions keep running.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// WarnLiveSessionsDraining tells connected clients shutdown is coming.
func (s *Server) WarnLiveSessionsDraining() {
	sent := s.liveSessions.NotifyAll("gateway is draining")
	if sent > 0 {
		s.logger.Info("notified live sessions of draining", "count", sent)
	}
}

// WaitLiveSessions blocks until every live session ends or ctx is done.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.liveSessions.Wait(ctx)
}

// CancelLiveSessions force-cancels whatever sessions remain.
func (s *Server) CancelLiveSessions() {
	canceled := s.liveSessions.CancelAll()
	if canceled > 0 {
		s.logger.Warn("canceled live sessions at shutdown", "count", canceled)
	}
}
