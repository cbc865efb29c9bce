package claudeagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// McpServer is an in-process MCP server whose tool calls are routed
// through the control channel instead of a subprocess. Register tools
// with AddTool before handing the server to WithMcpServer.
type McpServer struct {
	name    string
	version string
	tools   map[string]*toolEntry
}

// toolEntry stores a tool's definition, resolved input schema, and
// handler.
type toolEntry struct {
	def      ToolDef
	resolved *jsonschema.Resolved
	handler  func(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

// ToolDef describes an MCP tool. InputSchema, if set, overrides the
// schema AddTool would otherwise derive from the handler's Args type.
type ToolDef struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ToolContent is one element of a ToolResult.
type ToolContent struct {
	Type     string `json:"type"` // "text" or "resource"
	Text     string `json:"text,omitempty"`
	Resource string `json:"resource,omitempty"`
}

// ToolRegistrar registers a tool with a server. Build one with Tool.
type ToolRegistrar func(*McpServer)

// McpServerOptions configures an in-process MCP server.
type McpServerOptions struct {
	Name    string
	Version string
	Tools   []ToolRegistrar
}

// CreateMcpServer builds a server and runs every registrar in Tools
// against it.
func CreateMcpServer(opts McpServerOptions) *McpServer {
	version := opts.Version
	if version == "" {
		version = "1.0.0"
	}

	server := &McpServer{
		name:    opts.Name,
		version: version,
		tools:   make(map[string]*toolEntry),
	}

	for _, registrar := range opts.Tools {
		registrar(server)
	}
	return server
}

// Tool builds a ToolRegistrar for a typed handler. The Args type's
// JSON-tagged fields are used to derive the tool's JSON Schema, which
// every call is validated against before the handler runs.
func Tool[Args any](
	name, description string,
	handler func(ctx context.Context, args Args) (ToolResult, error),
) ToolRegistrar {
	return func(s *McpServer) {
		addTool(s, ToolDef{Name: name, Description: description}, handler)
	}
}

// AddTool registers a typed tool handler on an already-created server.
// The generic Args type specifies the expected input shape; arguments
// are schema-validated, then unmarshaled into Args before handler runs.
func AddTool[Args any](
	server *McpServer,
	def ToolDef,
	handler func(ctx context.Context, args Args) (ToolResult, error),
) {
	addTool(server, def, handler)
}

// addTool is the shared generic implementation behind Tool and AddTool.
// Methods cannot carry their own type parameters in Go, so this lives
// as a package-level function instead of a method on *McpServer.
func addTool[Args any](s *McpServer, def ToolDef, handler func(ctx context.Context, args Args) (ToolResult, error)) {
	schema := def.InputSchema
	if schema == nil {
		var err error
		schema, err = jsonschema.For[Args](nil)
		if err != nil {
			// A Go struct that can't produce a schema is a programming
			// error in the tool definition, surfaced at registration
			// time rather than deferred to the first call.
			panic(fmt.Sprintf("mcp: tool %q: deriving schema: %v", def.Name, err))
		}
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("mcp: tool %q: resolving schema: %v", def.Name, err))
	}

	s.tools[def.Name] = &toolEntry{
		def:      def,
		resolved: resolved,
		handler: func(ctx context.Context, rawArgs json.RawMessage) (ToolResult, error) {
			var generic interface{}
			if len(rawArgs) > 0 {
				if err := json.Unmarshal(rawArgs, &generic); err != nil {
					return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
				}
				if err := resolved.Validate(generic); err != nil {
					return ToolResult{}, &ErrSchemaViolation{Field: def.Name, Detail: err.Error()}
				}
			}

			var args Args
			if len(rawArgs) > 0 {
				if err := json.Unmarshal(rawArgs, &args); err != nil {
					return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
				}
			}
			return handler(ctx, args)
		},
	}
}

// AddToolUntyped registers a tool that receives raw, schema-validated
// JSON arguments instead of a typed struct. Use this when the input
// shape is only known at runtime (e.g. loaded from configuration).
func AddToolUntyped(
	server *McpServer,
	def ToolDef,
	handler func(ctx context.Context, args json.RawMessage) (ToolResult, error),
) {
	schema := def.InputSchema
	if schema == nil {
		schema = &jsonschema.Schema{Type: "object"}
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("mcp: tool %q: resolving schema: %v", def.Name, err))
	}

	server.tools[def.Name] = &toolEntry{
		def:      def,
		resolved: resolved,
		handler: func(ctx context.Context, rawArgs json.RawMessage) (ToolResult, error) {
			if len(rawArgs) > 0 {
				var generic interface{}
				if err := json.Unmarshal(rawArgs, &generic); err != nil {
					return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
				}
				if err := resolved.Validate(generic); err != nil {
					return ToolResult{}, &ErrSchemaViolation{Field: def.Name, Detail: err.Error()}
				}
			}
			return handler(ctx, rawArgs)
		},
	}
}

// Name returns the server name.
func (s *McpServer) Name() string { return s.name }

// Version returns the server version.
func (s *McpServer) Version() string { return s.version }

// ToolNames returns the names of all registered tools.
func (s *McpServer) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

// ToolDefs returns the definitions of all registered tools.
func (s *McpServer) ToolDefs() []ToolDef {
	defs := make([]ToolDef, 0, len(s.tools))
	for _, entry := range s.tools {
		defs = append(defs, entry.def)
	}
	return defs
}

// CallTool invokes a registered tool by name, validating args against
// its schema first. An unknown tool name is reported as ErrToolNotFound;
// a schema violation as ErrSchemaViolation. Arguments that do not decode
// come back as a ToolResult with IsError set; an error returned by the
// tool's handler is passed through as the Go error.
func (s *McpServer) CallTool(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	entry, ok := s.tools[name]
	if !ok {
		return ToolResult{}, &ErrToolNotFound{Name: name}
	}
	return entry.handler(ctx, args)
}

// TextResult creates a successful tool result with text content.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}

// ErrorResult creates an error tool result with text content.
func ErrorResult(text string) ToolResult {
	return ToolResult{Content: []ToolContent{{Type: "text", Text: text}}, IsError: true}
}

// ResourceResult creates a successful tool result with resource content.
func ResourceResult(resource string) ToolResult {
	return ToolResult{Content: []ToolContent{{Type: "resource", Resource: resource}}}
}

// MultiContentResult creates a result with multiple content items.
func MultiContentResult(contents ...ToolContent) ToolResult {
	return ToolResult{Content: contents}
}

// TextContent creates a text content item.
func TextContent(text string) ToolContent { return ToolContent{Type: "text", Text: text} }

// ResourceContent creates a resource content item.
func ResourceContent(resource string) ToolContent {
	return ToolContent{Type: "resource", Resource: resource}
}

// routeMCPJSONRPC dispatches one JSON-RPC envelope from an mcp_message
// control request to server, implementing the subset of the Model
// Context Protocol the CLI needs from an in-process server: initialize,
// notifications/initialized, tools/list, and tools/call.
func routeMCPJSONRPC(ctx context.Context, server *McpServer, envelope map[string]interface{}) (map[string]interface{}, error) {
	method, _ := envelope["method"].(string)
	id := envelope["id"]

	switch method {
	case "initialize":
		return jsonrpcResult(id, map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]interface{}{
				"name":    server.Name(),
				"version": server.Version(),
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		}), nil

	case "notifications/initialized":
		// Notifications carry no id and expect no response.
		return nil, nil

	case "tools/list":
		tools := make([]map[string]interface{}, 0, len(server.tools))
		for _, def := range server.ToolDefs() {
			entry := map[string]interface{}{
				"name":        def.Name,
				"description": def.Description,
			}
			if s := server.tools[def.Name].resolved; s != nil {
				entry["inputSchema"] = s.Schema()
			}
			tools = append(tools, entry)
		}
		return jsonrpcResult(id, map[string]interface{}{"tools": tools}), nil

	case "tools/call":
		params, _ := envelope["params"].(map[string]interface{})
		name, _ := params["name"].(string)
		argsJSON, err := marshalPayload(params["arguments"])
		if err != nil {
			return jsonrpcError(id, err.Error()), nil
		}

		result, err := server.CallTool(ctx, name, argsJSON)
		if err != nil {
			return jsonrpcError(id, err.Error()), nil
		}
		resultMap := map[string]interface{}{
			"content": result.Content,
			"isError": result.IsError,
		}
		return jsonrpcResult(id, resultMap), nil

	default:
		return jsonrpcError(id, fmt.Sprintf("unsupported mcp method: %s", method)), nil
	}
}

func jsonrpcResult(id interface{}, result interface{}) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
}

func jsonrpcError(id interface{}, message string) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]interface{}{
			"code":    -32000,
			"message": message,
		},
	}
}
