// Package mcp is the tool backend gateway. It talks to an MCP server
// over streamable HTTP, one short-lived connection per discovery or
// call, and normalizes every result into a plain JSON object payload.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	clientName    = "livebridge"
	clientVersion = "0.1.0"
)

// DiscoveryError reports a failed tool listing. The session decides
// whether discovery failure is fatal.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("mcp discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ToolError reports a failed tool invocation: transport fault or a
// backend-reported error result. Never fatal to the session.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// ToolDescriptor is the subset of an MCP tool definition the upstream
// session needs. InputSchema is the tool's JSON schema, carried opaquely.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema any
}

// Gateway issues discovery and call requests against one MCP endpoint.
// It holds no connection state; every operation dials its own session.
type Gateway struct {
	endpoint string
	logger   *slog.Logger
	connect  func(ctx context.Context) (toolSession, error)
}

// toolSession is the slice of *mcp.ClientSession the gateway uses.
type toolSession interface {
	ListTools(ctx context.Context, params *mcpsdk.ListToolsParams) (*mcpsdk.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

func New(endpoint string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{endpoint: endpoint, logger: logger}
	g.connect = g.dial
	return g
}

func (g *Gateway) dial(ctx context.Context) (toolSession, error) {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: g.endpoint}, nil)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Endpoint returns the configured MCP server URL.
func (g *Gateway) Endpoint() string { return g.endpoint }

// List discovers the backend's tools. Called once per session; failures
// come back as *DiscoveryError.
func (g *Gateway) List(ctx context.Context) ([]ToolDescriptor, error) {
	session, err := g.connect(ctx)
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}
	defer session.Close()

	res, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}

	descriptors := make([]ToolDescriptor, 0, len(res.Tools))
	for _, tool := range res.Tools {
		if tool == nil || strings.TrimSpace(tool.Name) == "" {
			continue
		}
		descriptors = append(descriptors, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	g.logger.Debug("mcp tools discovered", "endpoint", g.endpoint, "count", len(descriptors))
	return descriptors, nil
}

// Call invokes one tool and returns the normalized payload. A backend
// result that merely reports "no data" is still a payload; only
// transport faults and backend-flagged errors become *ToolError.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	session, err := g.connect(ctx)
	if err != nil {
		return nil, &ToolError{Tool: name, Message: err.Error()}
	}
	defer session.Close()

	if args == nil {
		args = map[string]any{}
	}
	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, &ToolError{Tool: name, Message: err.Error()}
	}
	if res.IsError {
		return nil, &ToolError{Tool: name, Message: firstText(res)}
	}
	return normalizeResult(res), nil
}

// normalizeResult flattens an MCP call result into one JSON object:
// structured content verbatim, else textual content parsed as JSON,
// else the text wrapped as {text: ...}, else an empty-response marker.
func normalizeResult(res *mcpsdk.CallToolResult) map[string]any {
	if res == nil {
		return map[string]any{"error": "empty_tool_response", "raw": "<nil>"}
	}

	if res.StructuredContent != nil {
		if obj, ok := res.StructuredContent.(map[string]any); ok {
			return obj
		}
		return map[string]any{"output": res.StructuredContent}
	}

	if text := firstText(res); text != "" {
		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err == nil && parsed != nil {
			if obj, ok := parsed.(map[string]any); ok {
				return obj
			}
			// Valid JSON that is not an object (an array, say) keeps its
			// parsed form instead of being demoted to a text blob.
			return map[string]any{"output": parsed}
		}
		return map[string]any{"text": text}
	}

	return map[string]any{"error": "empty_tool_response", "raw": fmt.Sprintf("%+v", res)}
}

func firstText(res *mcpsdk.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, content := range res.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok && strings.TrimSpace(text.Text) != "" {
			return text.Text
		}
	}
	return ""
}
