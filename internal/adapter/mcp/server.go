package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/querylens/querylens/internal/core/service"
	"github.com/querylens/querylens/internal/session"
	"go.opentelemetry.io/otel/trace"
)

// Services groups the application services exposed as tools.
type Services struct {
	Analysis *service.AnalysisService
	Query    *service.QueryService
	Workload *service.WorkloadService
}

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, svc Services, sessions *session.Registry, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(ToolCallHooks(logger, sessions, tracer, inst)),
		server.WithRecovery(),
	)

	RegisterTools(s, svc.Analysis, svc.Query, svc.Workload, logger)

	return s
}
