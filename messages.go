package claudeagent

import (
	"encoding/json"
	"time"
)

// Message is the base interface for all messages exchanged with the
// Claude Code CLI, whether application-level (user/assistant/result) or
// control-protocol-level (control_request/control_response/...).
type Message interface {
	MessageType() string
}

// UserMessage represents a user prompt sent to Claude.
//
// This message type initiates or continues a conversation. The ParentToolUseID
// field links this message to a specific tool call when providing tool results.
type UserMessage struct {
	Type            string         `json:"type"`                      // Always "user"
	UUID            string         `json:"uuid,omitempty"`            // Unique message ID
	SessionID       string         `json:"session_id"`                // Session identifier
	Message         APIUserMessage `json:"message"`                   // Message content
	ParentToolUseID *string        `json:"parent_tool_use_id"`        // For tool results (null if not tool result)
	IsSynthetic     bool           `json:"isSynthetic,omitempty"`     // True for system-generated messages
	ToolUseResult   interface{}    `json:"tool_use_result,omitempty"` // Tool result JSON if applicable
}

// APIUserMessage represents the message content in Anthropic API format.
type APIUserMessage struct {
	Role    string             `json:"role"`    // Always "user"
	Content []UserContentBlock `json:"content"` // Array of content blocks
}

// UserContentBlock represents a content block in a user message.
type UserContentBlock struct {
	Type string `json:"type"`           // "text" or other types
	Text string `json:"text,omitempty"` // Text content
}

// MessageType implements Message.
func (m UserMessage) MessageType() string { return "user" }

// AssistantMessage represents a response from Claude.
//
// Assistant messages contain one or more content blocks that can be text,
// tool use requests, or thinking blocks. Each message includes usage
// information for billing and rate limiting.
type AssistantMessage struct {
	Type      string `json:"type"`                 // Always "assistant"
	UUID      string `json:"uuid,omitempty"`       // Unique message ID
	SessionID string `json:"session_id,omitempty"` // Session identifier
	Message   struct {
		Role    string         `json:"role"`    // Always "assistant"
		Content []ContentBlock `json:"content"` // Response content blocks
	} `json:"message"`
	ParentToolUseID *string `json:"parent_tool_use_id,omitempty"` // Parent tool use if in subagent
	Usage           *Usage  `json:"usage,omitempty"`              // Token usage for this message
}

// MessageType implements Message.
func (m AssistantMessage) MessageType() string { return "assistant" }

// ContentText returns the concatenated text from all text content blocks.
func (m AssistantMessage) ContentText() string {
	var text string
	for _, block := range m.Message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}

// ContentBlock represents a single content element in an assistant message.
type ContentBlock struct {
	Type  string          `json:"type"`            // "text", "tool_use", or "thinking"
	Text  string          `json:"text,omitempty"`  // For text and thinking blocks
	ID    string          `json:"id,omitempty"`    // For tool_use blocks (unique ID)
	Name  string          `json:"name,omitempty"`  // For tool_use blocks (tool name)
	Input json.RawMessage `json:"input,omitempty"` // For tool_use blocks (arguments)
}

// BlockType returns the type of this content block.
func (c ContentBlock) BlockType() string { return c.Type }

// ResultMessage represents the final outcome of a conversation turn.
type ResultMessage struct {
	Type   string `json:"type"`   // Always "result"
	Status string `json:"status"` // "success" or "error" (deprecated: use Subtype)

	// Subtype indicates the result type. Values: "success",
	// "error_max_turns", "error_during_execution",
	// "error_max_budget_usd", "error_max_structured_output_retries".
	Subtype string `json:"subtype,omitempty"`

	UUID      string `json:"uuid,omitempty"`       // Unique message ID
	SessionID string `json:"session_id,omitempty"` // Session identifier

	Result string   `json:"result,omitempty"` // Result text (for success)
	Errors []string `json:"errors,omitempty"` // Error messages (for errors)

	DurationMs    int64 `json:"duration_ms,omitempty"`     // Total duration in milliseconds
	DurationAPIMs int64 `json:"duration_api_ms,omitempty"` // API call duration in milliseconds
	IsError       bool  `json:"is_error,omitempty"`        // Whether this is an error result
	NumTurns      int   `json:"num_turns,omitempty"`       // Number of conversation turns

	TotalCostUSD float64 `json:"total_cost_usd,omitempty"` // Total cost in USD

	Usage      *NonNullableUsage     `json:"usage,omitempty"`      // Token usage
	ModelUsage map[string]ModelUsage `json:"modelUsage,omitempty"` // Per-model usage

	PermissionDenials []PermissionDenial `json:"permission_denials,omitempty"` // Denied permissions
	StructuredOutput  interface{}        `json:"structured_output,omitempty"`  // Structured output (if OutputFormat set)
}

// MessageType implements Message.
func (m ResultMessage) MessageType() string { return "result" }

// StreamEvent represents a progressive delta update during streaming.
type StreamEvent struct {
	Type      string    `json:"type"`  // Always "stream_event"
	Event     string    `json:"event"` // "delta" or "done"
	Delta     string    `json:"delta,omitempty"`
	Timestamp time.Time `json:"timestamp"` // Event timestamp
}

// MessageType implements Message.
func (m StreamEvent) MessageType() string { return "stream_event" }

// TodoUpdateMessage contains task tracking updates from Claude.
type TodoUpdateMessage struct {
	Type  string     `json:"type"` // Always "todo_update"
	Items []TodoItem `json:"items"`
}

// MessageType implements Message.
func (m TodoUpdateMessage) MessageType() string { return "todo_update" }

// TodoItem represents a single task in Claude's task list.
type TodoItem struct {
	Content    string     `json:"content"`    // Task description (imperative form)
	ActiveForm string     `json:"activeForm"` // In-progress form (continuous)
	Status     TodoStatus `json:"status"`     // Lifecycle state
}

// TodoStatus represents the lifecycle state of a todo item.
type TodoStatus string

const (
	TodoStatusPending    TodoStatus = "pending"
	TodoStatusInProgress TodoStatus = "in_progress"
	TodoStatusCompleted  TodoStatus = "completed"
)

// SubagentResultMessage contains the result of a subagent invocation.
type SubagentResultMessage struct {
	Type      string `json:"type"`       // Always "subagent_result"
	AgentName string `json:"agent_name"` // Subagent identifier
	Status    string `json:"status"`     // "success" or "error"
	Result    string `json:"result"`     // Subagent output
}

// MessageType implements Message.
func (m SubagentResultMessage) MessageType() string { return "subagent_result" }

// SDKControlRequest represents a control protocol request sent between
// the SDK and the CLI, in either direction: the SDK sends "initialize"
// and the control-operation subtypes, while the CLI sends "can_use_tool",
// "hook_callback" and "mcp_message" on this same envelope shape.
type SDKControlRequest struct {
	Type      string                `json:"type"`       // Always "control_request"
	RequestID string                `json:"request_id"` // Unique request ID (snake_case)
	Request   SDKControlRequestBody `json:"request"`    // Nested request payload
}

// SDKControlRequestBody contains the actual request data. This is a
// union type - different fields are populated for different subtypes.
type SDKControlRequestBody struct {
	Subtype               string                              `json:"subtype"`
	Hooks                 map[string][]SDKHookCallbackMatcher `json:"hooks,omitempty"`
	SDKMCPServers         []string                            `json:"sdkMcpServers,omitempty"`
	JSONSchema            map[string]interface{}              `json:"jsonSchema,omitempty"`
	SystemPrompt          string                              `json:"systemPrompt,omitempty"`
	AppendSystemPrompt    string                              `json:"appendSystemPrompt,omitempty"`
	Agents                map[string]interface{}              `json:"agents,omitempty"`
	ToolName              string                              `json:"tool_name,omitempty"`
	Input                 map[string]interface{}              `json:"input,omitempty"`
	ToolUseID             string                              `json:"tool_use_id,omitempty"`
	AgentID               string                              `json:"agent_id,omitempty"`
	BlockedPath           string                              `json:"blocked_path,omitempty"`
	DecisionReason        string                              `json:"decision_reason,omitempty"`
	PermissionSuggestions []PermissionUpdate                  `json:"permission_suggestions,omitempty"`
	CallbackID            string                              `json:"callback_id,omitempty"`
	Mode                  string                              `json:"mode,omitempty"`
	Model                 string                              `json:"model,omitempty"`
	MaxThinkingTokens     *int                                `json:"max_thinking_tokens,omitempty"`
	UserMessageID         string                              `json:"user_message_id,omitempty"`
	ServerName            string                              `json:"server_name,omitempty"`
	Message               map[string]interface{}              `json:"message,omitempty"`
	McpServers            map[string]interface{}              `json:"mcpServers,omitempty"`
	McpServerName         string                              `json:"mcpServerName,omitempty"`
	McpEnabled            *bool                               `json:"mcpEnabled,omitempty"`
}

// SDKHookCallbackMatcher defines hook callback matching configuration.
type SDKHookCallbackMatcher struct {
	Matcher         string   `json:"matcher,omitempty"`
	HookCallbackIDs []string `json:"hookCallbackIds"`
	Timeout         int      `json:"timeout,omitempty"` // Timeout in seconds
}

// MessageType implements Message.
func (m SDKControlRequest) MessageType() string { return "control_request" }

// SDKControlResponse represents a control protocol response, correlated
// to a request via RequestID, containing either a result payload or an
// error.
type SDKControlResponse struct {
	Type     string                 `json:"type"` // Always "control_response"
	Response SDKControlResponseBody `json:"response"`
}

// SDKControlResponseBody contains the actual response data.
type SDKControlResponseBody struct {
	Subtype    string                 `json:"subtype"`             // "success" or "error"
	RequestID  string                 `json:"request_id"`          // Correlates to request
	Response   map[string]interface{} `json:"response,omitempty"`  // Success response data
	Error      string                 `json:"error,omitempty"`     // Error message
	Async      bool                   `json:"async,omitempty"`     // True if the decision is deferred
	AsyncTimeoutSec int               `json:"asyncTimeout,omitempty"`
}

// MessageType implements Message.
func (m SDKControlResponse) MessageType() string { return "control_response" }

// SDKControlCancelRequest cancels a pending control request.
type SDKControlCancelRequest struct {
	Type      string `json:"type"`       // Always "control_cancel_request"
	RequestID string `json:"request_id"` // Request to cancel
}

// MessageType implements Message.
func (m SDKControlCancelRequest) MessageType() string { return "control_cancel_request" }

// KeepAliveMessage is a heartbeat message.
type KeepAliveMessage struct {
	Type string `json:"type"` // Always "keep_alive"
}

// MessageType implements Message.
func (m KeepAliveMessage) MessageType() string { return "keep_alive" }

// ToolProgressMessage reports tool execution progress.
type ToolProgressMessage struct {
	Type               string  `json:"type"`                 // Always "tool_progress"
	ToolUseID          string  `json:"tool_use_id"`          // Tool invocation ID
	ToolName           string  `json:"tool_name"`            // Tool name
	ParentToolUseID    *string `json:"parent_tool_use_id"`   // Parent tool if nested
	ElapsedTimeSeconds float64 `json:"elapsed_time_seconds"` // Time elapsed
	UUID               string  `json:"uuid"`                 // Message UUID
	SessionID          string  `json:"session_id"`           // Session ID
}

// MessageType implements Message.
func (m ToolProgressMessage) MessageType() string { return "tool_progress" }

// UnknownMessage preserves a Regular frame whose "type" field did not
// match any message kind this SDK knows how to decode further. Per the
// frame parser's contract, an unrecognized type is never an error.
type UnknownMessage struct {
	Type string
	Raw  map[string]interface{}
}

// MessageType implements Message.
func (m UnknownMessage) MessageType() string { return m.Type }

// Usage tracks token consumption and cost for billing.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`  // Prompt tokens
	OutputTokens int     `json:"output_tokens"` // Completion tokens
	TotalTokens  int     `json:"total_tokens"`  // Sum of input + output
	Cost         float64 `json:"cost"`          // Estimated cost in USD
}

// SystemMessage represents the initialization message from Claude Code.
type SystemMessage struct {
	Type           string          `json:"type"`           // Always "system"
	Subtype        string          `json:"subtype"`        // "init" or "compact_boundary"
	UUID           string          `json:"uuid"`           // Unique message ID
	SessionID      string          `json:"session_id"`     // Session identifier
	APIKeySource   string          `json:"apiKeySource"`   // Where the API key comes from
	Cwd            string          `json:"cwd"`            // Current working directory
	Tools          []string        `json:"tools"`          // Available tools
	MCPServers     []MCPServerInfo `json:"mcp_servers"`    // MCP server status
	Model          string          `json:"model"`          // Active model
	PermissionMode PermissionMode  `json:"permissionMode"` // Current permission mode
	SlashCommands  []string        `json:"slash_commands"` // Available slash commands
	OutputStyle    string          `json:"output_style"`   // Output formatting style
}

// MessageType implements Message.
func (m SystemMessage) MessageType() string { return "system" }

// MCPServerInfo contains status information about an MCP server.
type MCPServerInfo struct {
	Name   string `json:"name"`   // Server name
	Status string `json:"status"` // Connection status
}

// CompactBoundaryMessage marks a context compaction boundary.
type CompactBoundaryMessage struct {
	Type            string          `json:"type"`             // Always "system"
	Subtype         string          `json:"subtype"`          // "compact_boundary"
	UUID            string          `json:"uuid"`             // Unique message ID
	SessionID       string          `json:"session_id"`       // Session identifier
	CompactMetadata CompactMetadata `json:"compact_metadata"` // Compaction details
}

// MessageType implements Message.
func (m CompactBoundaryMessage) MessageType() string { return "system" }

// CompactMetadata contains details about a compaction event.
type CompactMetadata struct {
	Trigger   string `json:"trigger"`    // "manual" or "auto"
	PreTokens int    `json:"pre_tokens"` // Token count before compaction
}

// PermissionDenial tracks a denied permission request.
type PermissionDenial struct {
	ToolName  string          `json:"tool_name"`  // Tool that was denied
	ToolInput json.RawMessage `json:"tool_input"` // Input that triggered denial
	Reason    string          `json:"reason"`     // Why permission was denied
}

// ModelUsage tracks usage statistics per model.
type ModelUsage struct {
	InputTokens              int     `json:"inputTokens"`
	OutputTokens             int     `json:"outputTokens"`
	CacheReadInputTokens     int     `json:"cacheReadInputTokens"`
	CacheCreationInputTokens int     `json:"cacheCreationInputTokens"`
	WebSearchRequests        int     `json:"webSearchRequests"`
	CostUSD                  float64 `json:"costUSD"`
	ContextWindow            int     `json:"contextWindow"`
}

// NonNullableUsage is the token usage reported on a ResultMessage; its
// fields are plain ints and read as zero when the CLI omits them.
type NonNullableUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// DecodeRegularMessage turns a Regular frame into the most specific
// Message type this SDK knows about, falling back to UnknownMessage
// rather than ever returning an error - the frame already parsed as
// valid JSON, so decoding further can only narrow the type.
func DecodeRegularMessage(frame Frame) Message {
	typeVal, _ := frame.Raw["type"].(string)

	switch typeVal {
	case "user":
		var msg UserMessage
		if json.Unmarshal(frame.Line, &msg) == nil {
			return msg
		}
	case "assistant":
		var msg AssistantMessage
		if json.Unmarshal(frame.Line, &msg) == nil {
			return msg
		}
	case "result":
		var msg ResultMessage
		if json.Unmarshal(frame.Line, &msg) == nil {
			return msg
		}
	case "stream_event":
		var msg StreamEvent
		if json.Unmarshal(frame.Line, &msg) == nil {
			return msg
		}
	case "system":
		subtype, _ := frame.Raw["subtype"].(string)
		if subtype == "compact_boundary" {
			var msg CompactBoundaryMessage
			if json.Unmarshal(frame.Line, &msg) == nil {
				return msg
			}
		}
		var msg SystemMessage
		if json.Unmarshal(frame.Line, &msg) == nil {
			return msg
		}
	case "todo_update":
		var msg TodoUpdateMessage
		if json.Unmarshal(frame.Line, &msg) == nil {
			return msg
		}
	case "subagent_result":
		var msg SubagentResultMessage
		if json.Unmarshal(frame.Line, &msg) == nil {
			return msg
		}
	case "tool_progress":
		var msg ToolProgressMessage
		if json.Unmarshal(frame.Line, &msg) == nil {
			return msg
		}
	}

	return UnknownMessage{Type: typeVal, Raw: frame.Raw}
}
