// Package api is the HTTP shell: the JSON-RPC endpoint, the SSE and
// WebSocket event streams, health, and the middleware stack.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/progress"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/version"
)

// Config wires the server's collaborators and listen address.
type Config struct {
	Addr       string
	Dispatcher *mcp.Dispatcher
	Tracker    *progress.Tracker

	// WSWriteTimeout bounds individual WebSocket sends. Default 10s.
	WSWriteTimeout time.Duration
}

// Server is the echo application plus its HTTP listener.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	dispatcher *mcp.Dispatcher
	tracker    *progress.Tracker
	ws         *wsManager
	started    time.Time
}

// NewServer builds the echo application and registers all routes.
func NewServer(cfg Config) *Server {
	if cfg.WSWriteTimeout <= 0 {
		cfg.WSWriteTimeout = 10 * time.Second
	}

	e := echo.New()
	s := &Server{
		echo:       e,
		dispatcher: cfg.Dispatcher,
		tracker:    cfg.Tracker,
		ws:         newWSManager(cfg.Tracker, cfg.WSWriteTimeout),
		started:    time.Now(),
	}

	e.Use(requestLogger())
	e.Use(securityHeaders())

	e.POST("/mcp", s.mcpHandler, mcpContentNegotiation())
	e.GET("/mcp/events/:operation_id", s.sseHandler)
	e.GET("/mcp/ws", s.wsHandler)
	e.GET("/health", s.healthHandler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the echo application for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr, "version", version.GitCommit)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
