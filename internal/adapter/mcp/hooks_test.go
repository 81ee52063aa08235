package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordedToolCall struct {
	tool   string
	failed bool
}

type toolCallRecorder struct {
	port.NoopInstrumentation
	calls []recordedToolCall
}

func (r *toolCallRecorder) RecordToolCall(_ context.Context, tool string, _ float64, failed bool) {
	r.calls = append(r.calls, recordedToolCall{tool: tool, failed: failed})
}

func runHooks(hooks *server.Hooks, id any, tool string, result any, callErr error) {
	ctx := context.Background()
	req := &mcp.CallToolRequest{}
	req.Params.Name = tool
	for _, fn := range hooks.OnBeforeCallTool {
		fn(ctx, id, req)
	}
	if callErr != nil {
		for _, fn := range hooks.OnError {
			fn(ctx, id, mcp.MethodToolsCall, req, callErr)
		}
		return
	}
	for _, fn := range hooks.OnAfterCallTool {
		fn(ctx, id, req, result)
	}
}

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestToolCallHooks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     any
		callErr    error
		wantFailed bool
		wantLevel  string
		wantMsg    string
	}{
		{
			name:      "success",
			result:    mcp.NewToolResultText("{}"),
			wantLevel: "INFO",
		},
		{
			name:       "tool error result",
			result:     mcp.NewToolResultError("query rejected: only SELECT statements are allowed"),
			wantFailed: true,
			wantLevel:  "ERROR",
			wantMsg:    "query rejected: only SELECT statements are allowed",
		},
		{
			name:       "protocol error",
			callErr:    errors.New("invalid params"),
			wantFailed: true,
			wantLevel:  "ERROR",
			wantMsg:    "invalid params",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
			rec := &toolCallRecorder{}

			hooks := ToolCallHooks(logger, nil, tp.Tracer("test"), rec)
			runHooks(hooks, 7, "analyze_query", tt.result, tt.callErr)

			lines := decodeLogLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, "tool call", lines[0]["msg"])
			assert.Equal(t, tt.wantLevel, lines[0]["level"])
			assert.Equal(t, "analyze_query", lines[0]["mcp.tool"])
			assert.Equal(t, tt.wantFailed, lines[0]["error"])
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, lines[0]["error.message"])
			}

			assert.Equal(t, []recordedToolCall{{tool: "analyze_query", failed: tt.wantFailed}}, rec.calls)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, "mcp.tool.call", spans[0].Name)
			if tt.wantFailed {
				assert.Equal(t, codes.Error, spans[0].Status.Code)
			} else {
				assert.NotEqual(t, codes.Error, spans[0].Status.Code)
			}
		})
	}
}

func TestToolCallHooks_UnknownIDIgnored(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := &toolCallRecorder{}
	hooks := ToolCallHooks(slog.New(slog.NewJSONHandler(&buf, nil)), nil, nil, rec)

	for _, fn := range hooks.OnError {
		fn(context.Background(), 99, mcp.MethodInitialize, nil, errors.New("bad handshake"))
	}

	assert.Empty(t, buf.String())
	assert.Empty(t, rec.calls)
}

func TestResultError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, resultError(mcp.NewToolResultText("ok")))
	assert.NoError(t, resultError(nil))
	assert.EqualError(t, resultError(mcp.NewToolResultError("table not found")), "table not found")
	assert.EqualError(t, resultError(&mcp.CallToolResult{IsError: true}), "tool returned error")
}
