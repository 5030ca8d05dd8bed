// Package mcp exposes plan execution and the run audit trail over the
// Model Context Protocol, so agent frontends can submit plans without
// going through the REST API.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/gatehouse-io/gatehouse/internal/domain/project"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
	"github.com/gatehouse-io/gatehouse/internal/service"
)

// ProjectReader reads projects for tool and resource handlers.
type ProjectReader interface {
	GetProject(ctx context.Context, id string) (*project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)
}

// RunReader reads runs for the audit tools.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*run.SandboxRun, error)
	ListRunsByProject(ctx context.Context, projectID string) ([]run.SandboxRun, error)
}

// PlanExecutor submits a plan and blocks until its terminal outcome.
type PlanExecutor interface {
	Execute(ctx context.Context, req service.ExecuteRequest) (*run.Outcome, error)
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// ServerDeps are the collaborators behind the tools. Nil deps degrade to
// tool error results rather than panics.
type ServerDeps struct {
	Projects ProjectReader
	Runs     RunReader
	Executor PlanExecutor
}

// Server wraps an MCP server with the registered tools and resources.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	tools     map[string]mcpserver.ServerTool
	httpSrv   *http.Server
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
		tools: make(map[string]mcpserver.ServerTool),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Tools returns the registered tools keyed by name.
func (s *Server) Tools() map[string]mcpserver.ServerTool { return s.tools }

func (s *Server) addTools(tools ...mcpserver.ServerTool) {
	s.mcpServer.AddTools(tools...)
	for _, t := range tools {
		s.tools[t.Tool.Name] = t
	}
}

// Start serves the MCP protocol over streamable HTTP on cfg.Addr. It
// returns once the listener is running.
func (s *Server) Start() error {
	handler := mcpserver.NewStreamableHTTPServer(s.mcpServer)
	s.httpSrv = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: AuthMiddleware(s.cfg.APIKey, handler),
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server stopped", "error", err)
		}
	}()
	slog.Info("mcp server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop shuts the MCP HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
