package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/querylens/querylens/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type toolCall struct {
	tool    string
	session string
	start   time.Time
	span    trace.Span
}

// toolCallTracker pairs the before/after hooks of one tools/call request by
// its JSON-RPC id.
type toolCallTracker struct {
	logger   *slog.Logger
	sessions *session.Registry
	tracer   trace.Tracer
	inst     port.Instrumentation

	inflight sync.Map // id -> *toolCall
}

// sessionID returns the MCP session id carried by ctx, or "" for stdio.
func sessionID(ctx context.Context) string {
	if s := server.ClientSessionFromContext(ctx); s != nil {
		return s.SessionID()
	}
	return ""
}

func (t *toolCallTracker) begin(ctx context.Context, id any, req *mcp.CallToolRequest) {
	call := &toolCall{
		tool:    req.Params.Name,
		session: sessionID(ctx),
		start:   time.Now(),
	}
	if t.sessions != nil {
		t.sessions.Touch(ctx, call.session)
	}
	if t.tracer != nil {
		_, call.span = t.tracer.Start(ctx, "mcp.tool.call",
			trace.WithAttributes(
				attribute.String("mcp.tool", call.tool),
				attribute.String("mcp.session.id", call.session),
			),
		)
	}
	t.inflight.Store(id, call)
}

// finish closes the call registered under id. Calls that never went through
// begin are ignored.
func (t *toolCallTracker) finish(ctx context.Context, id any, callErr error) {
	v, ok := t.inflight.LoadAndDelete(id)
	if !ok {
		return
	}
	call := v.(*toolCall)
	elapsed := time.Since(call.start)

	attrs := []slog.Attr{
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", call.tool),
		slog.Duration("duration", elapsed),
		slog.Bool("error", callErr != nil),
	}
	if call.session != "" {
		attrs = append(attrs, slog.String("mcp.session.id", call.session))
	}
	level := slog.LevelInfo
	if callErr != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error.message", callErr.Error()))
	}
	t.logger.LogAttrs(ctx, level, "tool call", attrs...)

	if t.inst != nil {
		t.inst.RecordToolCall(ctx, call.tool, float64(elapsed.Milliseconds()), callErr != nil)
	}

	if call.span != nil {
		if callErr != nil {
			call.span.RecordError(callErr)
			call.span.SetStatus(codes.Error, callErr.Error())
		}
		call.span.End()
	}
}

// resultError turns an IsError tool result into an error carrying its text.
func resultError(result any) error {
	r, ok := result.(*mcp.CallToolResult)
	if !ok || !r.IsError {
		return nil
	}
	for _, c := range r.Content {
		if text, ok := mcp.AsTextContent(c); ok && text.Text != "" {
			return errors.New(text.Text)
		}
	}
	return errors.New("tool returned error")
}

// ToolCallHooks creates MCP hooks that log tool calls, keep the session
// registry current and optionally record OTel spans and metrics. sessions,
// tracer and inst may be nil.
func ToolCallHooks(logger *slog.Logger, sessions *session.Registry, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	t := &toolCallTracker{logger: logger, sessions: sessions, tracer: tracer, inst: inst}
	hooks := &server.Hooks{}

	hooks.AddBeforeCallTool(t.begin)
	hooks.AddAfterCallTool(func(ctx context.Context, id any, _ *mcp.CallToolRequest, result any) {
		t.finish(ctx, id, resultError(result))
	})
	hooks.AddOnError(func(ctx context.Context, id any, _ mcp.MCPMethod, _ any, err error) {
		t.finish(ctx, id, err)
	})

	if sessions != nil {
		hooks.AddOnUnregisterSession(func(ctx context.Context, s server.ClientSession) {
			if sessions.Remove(s.SessionID()) {
				logger.LogAttrs(ctx, slog.LevelInfo, "session closed",
					slog.String("mcp.session.id", s.SessionID()),
				)
			}
		})
	}

	return hooks
}
