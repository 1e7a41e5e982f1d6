// Package mcp exposes the advisory engine over the Model Context Protocol
// so agent clients can convene decisions, inspect sessions, and track
// funnel events as tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/synod-labs/synod/internal/domain/advice"
	"github.com/synod-labs/synod/internal/port/database"
	"github.com/synod-labs/synod/internal/service"
)

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	// APIKey enables bearer-token auth when non-empty.
	APIKey string
}

// Adviser convenes a decision from a context.
type Adviser interface {
	Convene(ctx context.Context, in *advice.Context) (*advice.Decision, error)
}

// SessionReader reads persisted convene sessions.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*advice.Session, error)
	ListSessions(ctx context.Context, cursor string, limit int) (*database.SessionPage, error)
}

// FunnelTracker records funnel actions and serves stage aggregates.
type FunnelTracker interface {
	TrackEvent(ctx context.Context, req service.TrackRequest) (*advice.FunnelEvent, error)
	Summary(ctx context.Context) ([]advice.StageSummary, error)
}

// AdvisorLister exposes the registered advisors and their fusion weights.
type AdvisorLister interface {
	Advisors() []advice.Kind
	Weights() advice.Weights
}

// ServerDeps holds the service dependencies for tools and resources. A nil
// dependency turns its tools into explicit "not configured" errors instead
// of panics, so a partial wiring still serves.
type ServerDeps struct {
	Adviser  Adviser
	Sessions SessionReader
	Funnel   FunnelTracker
	Advisors AdvisorLister
}

// Server wraps an MCP server plus its SSE transport and HTTP listener.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	sse       *mcpserver.SSEServer
	httpSrv   *http.Server
}

// NewServer creates an MCP server with all advisory tools and resources
// registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(true, true),
		),
	}
	s.registerTools()
	s.registerResources()
	s.sse = mcpserver.NewSSEServer(s.mcpServer)

	handler := http.Handler(s.sse)
	if cfg.APIKey != "" {
		handler = AuthMiddleware(cfg.APIKey, handler)
	}
	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: handler}

	return s
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves the SSE transport in the background. The returned error only
// covers startup; serve failures after startup are logged.
func (s *Server) Start() error {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "addr", s.cfg.Addr, "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
