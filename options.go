package claudeagent

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// Options holds configuration for a Claude agent session.
//
// Options are provided via functional options passed to Query. All
// fields have sensible defaults and can be selectively
// overridden.
type Options struct {
	// SystemPrompt is the system prompt sent to Claude.
	SystemPrompt string

	// SystemPromptPreset uses a preset system prompt configuration.
	SystemPromptPreset *SystemPromptConfig

	// Model specifies which Claude model to use.
	Model string

	// FallbackModel is the model to use if primary fails.
	FallbackModel string

	// CLIPath is the path to the Claude Code CLI executable.
	CLIPath string

	// Cwd is the current working directory for the agent.
	Cwd string

	// AdditionalDirectories are additional directories Claude can access.
	AdditionalDirectories []string

	// Env holds environment variables to pass to the CLI subprocess.
	Env map[string]string

	// PermissionMode controls tool execution permissions.
	PermissionMode PermissionMode

	// AllowDangerouslySkipPermissions enables bypassing permissions.
	AllowDangerouslySkipPermissions bool

	// CanUseTool is a callback invoked before tool execution.
	CanUseTool CanUseToolFunc

	// Hooks register lifecycle callbacks for events like tool use.
	Hooks map[HookType][]HookConfig

	// Agents defines specialized subagents for task delegation.
	Agents map[string]AgentDefinition

	// SessionOptions configure session behavior (create/resume/fork).
	SessionOptions SessionOptions

	// MCPServers configure external (subprocess) MCP servers.
	MCPServers map[string]MCPServerConfig

	// SettingSources controls which filesystem settings to load.
	SettingSources []SettingSource

	// Sandbox configures sandbox behavior programmatically.
	Sandbox *SandboxSettings

	// Betas enables beta features.
	Betas []string

	// Plugins loads custom plugins from local paths.
	Plugins []PluginConfig

	// OutputFormat defines structured output format for agent results.
	OutputFormat *OutputFormat

	// AllowedTools is a list of allowed tool names. Empty means all tools.
	AllowedTools []string

	// DisallowedTools is a list of disallowed tool names.
	DisallowedTools []string

	// Tools configures available tools.
	Tools *ToolsConfig

	// MaxBudgetUsd is the maximum budget in USD for the query.
	MaxBudgetUsd *float64

	// MaxThinkingTokens is the maximum tokens for thinking process.
	MaxThinkingTokens *int

	// MaxTurns is the maximum conversation turns.
	MaxTurns *int

	// EnableFileCheckpointing enables file change tracking for rewinding.
	EnableFileCheckpointing bool

	// IncludePartialMessages includes partial message events in stream.
	IncludePartialMessages bool

	// Continue continues the most recent conversation.
	Continue bool

	// Stderr is a callback for stderr output from the CLI.
	Stderr func(data string)

	// Verbose enables debug logging from the CLI.
	Verbose bool

	// NoSessionPersistence disables session persistence.
	NoSessionPersistence bool

	// ConfigDir overrides the Claude config directory.
	ConfigDir string

	// StrictMCPConfig restricts MCP servers to the MCPServers config.
	StrictMCPConfig bool

	// SDKMcpServers are in-process MCP servers routed through the
	// control channel instead of a subprocess.
	SDKMcpServers map[string]*McpServer

	// Logger receives diagnostic events (control-protocol violations,
	// hook failures, transport lifecycle). Zero value discards them.
	Logger zerolog.Logger

	// HookCallbackTimeout is the default per-callback timeout applied
	// when a HookConfig does not specify its own.
	HookCallbackTimeout int
}

// SystemPromptConfig represents system prompt configuration.
type SystemPromptConfig struct {
	Type   string // "preset"
	Preset string // "claude_code"
	Append string // Additional instructions to append
}

// SettingSource represents a filesystem settings source.
type SettingSource string

const (
	SettingSourceUser    SettingSource = "user"
	SettingSourceProject SettingSource = "project"
	SettingSourceLocal   SettingSource = "local"
)

// SandboxSettings configures sandbox behavior.
type SandboxSettings struct {
	Enabled                   bool
	AutoAllowBashIfSandboxed  bool
	ExcludedCommands          []string
	AllowUnsandboxedCommands  bool
	Network                   *NetworkSandboxSettings
	IgnoreViolations          *SandboxIgnoreViolations
	EnableWeakerNestedSandbox bool
}

// NetworkSandboxSettings configures network-specific sandbox behavior.
type NetworkSandboxSettings struct {
	AllowLocalBinding   bool
	AllowUnixSockets    []string
	AllowAllUnixSockets bool
	HttpProxyPort       *int
	SocksProxyPort      *int
}

// SandboxIgnoreViolations configures which sandbox violations to ignore.
type SandboxIgnoreViolations struct {
	File    []string
	Network []string
}

// PluginConfig configures a plugin to load.
type PluginConfig struct {
	Type string
	Path string
}

// OutputFormat defines structured output format for agent results.
type OutputFormat struct {
	Type   string
	Schema interface{}
}

// ToolsConfig configures available tools.
type ToolsConfig struct {
	Type   string
	Preset string
	Tools  []string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Model:               "claude-sonnet-4-5-20250929",
		PermissionMode:      PermissionModeDefault,
		Env:                 make(map[string]string),
		Hooks:               make(map[HookType][]HookConfig),
		Agents:              make(map[string]AgentDefinition),
		MCPServers:          make(map[string]MCPServerConfig),
		HookCallbackTimeout: 60,
		Verbose:             false,
	}
}

// Option is a functional option for configuring a session.
type Option func(*Options)

// WithSystemPrompt sets the system prompt sent to Claude.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) { o.SystemPrompt = prompt }
}

// WithModel specifies which Claude model to use.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithCLIPath sets the path to the Claude Code CLI executable.
func WithCLIPath(path string) Option {
	return func(o *Options) { o.CLIPath = path }
}

// WithEnv adds environment variables for the CLI subprocess.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithPermissionMode sets the permission mode for tool execution.
func WithPermissionMode(mode PermissionMode) Option {
	return func(o *Options) { o.PermissionMode = mode }
}

// WithCanUseTool sets a callback for runtime permission decisions.
func WithCanUseTool(fn CanUseToolFunc) Option {
	return func(o *Options) { o.CanUseTool = fn }
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks map[HookType][]HookConfig) Option {
	return func(o *Options) { o.Hooks = hooks }
}

// WithAgents defines specialized subagents for task delegation.
func WithAgents(agents map[string]AgentDefinition) Option {
	return func(o *Options) { o.Agents = agents }
}

// WithSessionOptions configures session behavior.
func WithSessionOptions(opts SessionOptions) Option {
	return func(o *Options) { o.SessionOptions = opts }
}

// WithResume resumes an existing session by ID.
func WithResume(sessionID string) Option {
	return func(o *Options) { o.SessionOptions.Resume = sessionID }
}

// WithForkSession creates a branch from an existing session.
func WithForkSession(sessionID string) Option {
	return func(o *Options) { o.SessionOptions.ForkFrom = sessionID }
}

// WithMCPServers configures external (subprocess) MCP servers.
func WithMCPServers(servers map[string]MCPServerConfig) Option {
	return func(o *Options) { o.MCPServers = servers }
}

// WithMcpServer adds an in-process MCP server whose tool calls are
// routed through the control channel instead of a subprocess.
func WithMcpServer(name string, server *McpServer) Option {
	return func(o *Options) {
		if o.SDKMcpServers == nil {
			o.SDKMcpServers = make(map[string]*McpServer)
		}
		o.SDKMcpServers[name] = server
	}
}

// WithVerbose enables debug logging from the CLI.
func WithVerbose(verbose bool) Option {
	return func(o *Options) { o.Verbose = verbose }
}

// WithLogger sets the structured logger used for diagnostic events
// (control-protocol violations, hook failures, transport lifecycle).
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithStderr sets a callback for stderr output from the CLI.
func WithStderr(callback func(data string)) Option {
	return func(o *Options) { o.Stderr = callback }
}

// WithCwd sets the current working directory for the agent.
func WithCwd(cwd string) Option {
	return func(o *Options) { o.Cwd = cwd }
}

// WithAllowedTools sets the list of allowed tool names.
func WithAllowedTools(tools []string) Option {
	return func(o *Options) { o.AllowedTools = tools }
}

// WithDisallowedTools sets the list of disallowed tool names.
func WithDisallowedTools(tools []string) Option {
	return func(o *Options) { o.DisallowedTools = tools }
}

// WithMaxThinkingTokens sets the maximum tokens for thinking process.
func WithMaxThinkingTokens(tokens int) Option {
	return func(o *Options) { o.MaxThinkingTokens = &tokens }
}

// WithMaxTurns sets the maximum conversation turns.
func WithMaxTurns(turns int) Option {
	return func(o *Options) { o.MaxTurns = &turns }
}

// WithNoSessionPersistence disables session persistence.
func WithNoSessionPersistence() Option {
	return func(o *Options) { o.NoSessionPersistence = true }
}

// WithConfigDir sets a custom config directory for full isolation.
func WithConfigDir(dir string) Option {
	return func(o *Options) { o.ConfigDir = dir }
}

// WithHookCallbackTimeout overrides the default per-callback timeout, in
// seconds, applied to hook callbacks that don't specify their own.
func WithHookCallbackTimeout(seconds int) Option {
	return func(o *Options) { o.HookCallbackTimeout = seconds }
}

// PermissionMode controls how tool execution permissions are handled.
type PermissionMode string

const (
	// PermissionModeDefault uses standard permission checks.
	PermissionModeDefault PermissionMode = "default"

	// PermissionModeAcceptEdits auto-approves file operations.
	PermissionModeAcceptEdits PermissionMode = "acceptEdits"

	// PermissionModeBypassAll skips all permission checks.
	PermissionModeBypassAll PermissionMode = "bypassPermissions"

	// PermissionModePlan is planning mode (no tool execution).
	PermissionModePlan PermissionMode = "plan"

	// PermissionModeDelegate defers permission decisions to a
	// delegate/supervisor process rather than prompting directly.
	PermissionModeDelegate PermissionMode = "delegate"

	// PermissionModeDontAsk never prompts; unauthorized tools are
	// denied outright rather than bypassed.
	PermissionModeDontAsk PermissionMode = "dontAsk"
)

// CanUseToolFunc is a callback invoked before tool execution.
type CanUseToolFunc func(ctx context.Context, req ToolPermissionRequest) PermissionResult

// ToolPermissionRequest contains details about a tool execution request.
type ToolPermissionRequest struct {
	ToolName  string
	Arguments json.RawMessage
	Context   PermissionContext
}

// PermissionContext provides additional context for permission decisions.
type PermissionContext struct {
	SessionID             string
	ToolUseID             string
	AgentID               string
	BlockedPath           string
	DecisionReason        string
	PermissionSuggestions []PermissionUpdate
	Metadata              map[string]interface{}
}

// PermissionResult is the outcome of a permission check.
type PermissionResult interface {
	IsAllow() bool
}

// PermissionAllow indicates permission granted. UpdatedInput, when set,
// replaces the tool's original arguments; UpdatedPermissions lets the
// callback push permanent rule changes alongside a one-off allow.
type PermissionAllow struct {
	UpdatedInput       json.RawMessage
	UpdatedPermissions []PermissionUpdate
	ToolUseID          string
}

// IsAllow implements PermissionResult.
func (PermissionAllow) IsAllow() bool { return true }

// PermissionDeny indicates permission denied. Interrupt requests that
// the CLI abort the turn entirely rather than just skip this tool call.
type PermissionDeny struct {
	Message   string
	Interrupt bool
	ToolUseID string
}

// IsAllow implements PermissionResult.
func (PermissionDeny) IsAllow() bool { return false }

// HookType identifies a lifecycle event.
type HookType string

const (
	HookTypePreToolUse         HookType = "PreToolUse"
	HookTypePostToolUse        HookType = "PostToolUse"
	HookTypePostToolUseFailure HookType = "PostToolUseFailure"
	HookTypeNotification       HookType = "Notification"
	HookTypeUserPromptSubmit   HookType = "UserPromptSubmit"
	HookTypeSessionStart       HookType = "SessionStart"
	HookTypeSessionEnd         HookType = "SessionEnd"
	HookTypeStop               HookType = "Stop"
	HookTypeSubagentStart      HookType = "SubagentStart"
	HookTypeSubagentStop       HookType = "SubagentStop"
	HookTypePreCompact         HookType = "PreCompact"
	HookTypePermissionRequest  HookType = "PermissionRequest"
	HookTypeSetup              HookType = "Setup"
	HookTypeTeammateIdle       HookType = "TeammateIdle"
	HookTypeTaskCompleted      HookType = "TaskCompleted"
)

// HookConfig defines a lifecycle callback.
type HookConfig struct {
	Type     HookType
	Matcher  string
	Callback HookCallback
	// TimeoutSeconds overrides Options.HookCallbackTimeout for this
	// callback specifically. Zero uses the session default.
	TimeoutSeconds int
}

// HookCallback is invoked when a hook event fires.
type HookCallback func(ctx context.Context, input HookInput) (HookResult, error)

// HookInput is the base interface for hook inputs.
type HookInput interface {
	HookType() HookType
	Base() BaseHookInput
}

// BaseHookInput contains common fields for all hook inputs.
type BaseHookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	PermissionMode string `json:"permission_mode,omitempty"`
}

// PreToolUseInput contains data for PreToolUse hooks. TypedInput holds
// the result of decoding ToolInput into one of the tool_inputs.go
// structs for known builtin tools (e.g. *BashInput for ToolName
// "Bash"), or nil for a tool this SDK doesn't know the shape of.
type PreToolUseInput struct {
	BaseHookInput
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input"`
	TypedInput interface{}     `json:"-"`
}

func (PreToolUseInput) HookType() HookType   { return HookTypePreToolUse }
func (i PreToolUseInput) Base() BaseHookInput { return i.BaseHookInput }

// PostToolUseInput contains data for PostToolUse hooks. TypedInput is
// the decoded ToolInput, as for PreToolUseInput.
type PostToolUseInput struct {
	BaseHookInput
	ToolName     string          `json:"tool_name"`
	ToolInput    json.RawMessage `json:"tool_input"`
	ToolResponse json.RawMessage `json:"tool_response"`
	TypedInput   interface{}     `json:"-"`
}

func (PostToolUseInput) HookType() HookType    { return HookTypePostToolUse }
func (i PostToolUseInput) Base() BaseHookInput { return i.BaseHookInput }

// UserPromptSubmitInput contains data for UserPromptSubmit hooks.
type UserPromptSubmitInput struct {
	BaseHookInput
	Prompt string `json:"prompt"`
}

func (UserPromptSubmitInput) HookType() HookType    { return HookTypeUserPromptSubmit }
func (i UserPromptSubmitInput) Base() BaseHookInput { return i.BaseHookInput }

// StopInput contains data for Stop hooks.
type StopInput struct {
	BaseHookInput
}

func (StopInput) HookType() HookType    { return HookTypeStop }
func (i StopInput) Base() BaseHookInput { return i.BaseHookInput }

// SubagentStopInput contains data for SubagentStop hooks.
type SubagentStopInput struct {
	BaseHookInput
	AgentName string `json:"agent_name"`
	Status    string `json:"status"`
	Result    string `json:"result"`
}

func (SubagentStopInput) HookType() HookType    { return HookTypeSubagentStop }
func (i SubagentStopInput) Base() BaseHookInput { return i.BaseHookInput }

// PreCompactInput contains data for PreCompact hooks.
type PreCompactInput struct {
	BaseHookInput
	Trigger            string  `json:"trigger"` // "manual" or "auto"
	CustomInstructions *string `json:"custom_instructions,omitempty"`
	MessageCount       int     `json:"message_count"`
}

func (PreCompactInput) HookType() HookType    { return HookTypePreCompact }
func (i PreCompactInput) Base() BaseHookInput { return i.BaseHookInput }

// PostToolUseFailureInput contains data for PostToolUseFailure hooks.
// TypedInput is the decoded ToolInput, as for PreToolUseInput.
type PostToolUseFailureInput struct {
	BaseHookInput
	ToolName    string          `json:"tool_name"`
	ToolInput   json.RawMessage `json:"tool_input"`
	Error       string          `json:"error"`
	IsInterrupt bool            `json:"is_interrupt,omitempty"`
	TypedInput  interface{}     `json:"-"`
}

func (PostToolUseFailureInput) HookType() HookType    { return HookTypePostToolUseFailure }
func (i PostToolUseFailureInput) Base() BaseHookInput { return i.BaseHookInput }

// NotificationInput contains data for Notification hooks.
type NotificationInput struct {
	BaseHookInput
	Message string `json:"message"`
	Title   string `json:"title,omitempty"`
}

func (NotificationInput) HookType() HookType    { return HookTypeNotification }
func (i NotificationInput) Base() BaseHookInput { return i.BaseHookInput }

// SessionStartInput contains data for SessionStart hooks.
type SessionStartInput struct {
	BaseHookInput
	Source string `json:"source"` // "startup", "resume", "clear", or "compact"
}

func (SessionStartInput) HookType() HookType    { return HookTypeSessionStart }
func (i SessionStartInput) Base() BaseHookInput { return i.BaseHookInput }

// SessionEndInput contains data for SessionEnd hooks.
type SessionEndInput struct {
	BaseHookInput
	Reason string `json:"reason"`
}

func (SessionEndInput) HookType() HookType    { return HookTypeSessionEnd }
func (i SessionEndInput) Base() BaseHookInput { return i.BaseHookInput }

// SubagentStartInput contains data for SubagentStart hooks.
type SubagentStartInput struct {
	BaseHookInput
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
}

func (SubagentStartInput) HookType() HookType    { return HookTypeSubagentStart }
func (i SubagentStartInput) Base() BaseHookInput { return i.BaseHookInput }

// PermissionRequestInput contains data for PermissionRequest hooks.
type PermissionRequestInput struct {
	BaseHookInput
	ToolName              string             `json:"tool_name"`
	ToolInput             json.RawMessage    `json:"tool_input"`
	PermissionSuggestions []PermissionUpdate `json:"permission_suggestions,omitempty"`
}

func (PermissionRequestInput) HookType() HookType    { return HookTypePermissionRequest }
func (i PermissionRequestInput) Base() BaseHookInput { return i.BaseHookInput }

// SetupInput contains data for Setup hooks, fired once before the first
// turn of a freshly started session so project-level bootstrapping can
// run before any tool is available to the model.
type SetupInput struct {
	BaseHookInput
}

func (SetupInput) HookType() HookType    { return HookTypeSetup }
func (i SetupInput) Base() BaseHookInput { return i.BaseHookInput }

// TeammateIdleInput contains data for TeammateIdle hooks, fired when a
// delegated teammate/subagent has no pending work.
type TeammateIdleInput struct {
	BaseHookInput
	AgentID string `json:"agent_id"`
}

func (TeammateIdleInput) HookType() HookType    { return HookTypeTeammateIdle }
func (i TeammateIdleInput) Base() BaseHookInput { return i.BaseHookInput }

// TaskCompletedInput contains data for TaskCompleted hooks, fired when
// a tracked unit of work reaches a terminal state.
type TaskCompletedInput struct {
	BaseHookInput
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (TaskCompletedInput) HookType() HookType    { return HookTypeTaskCompleted }
func (i TaskCompletedInput) Base() BaseHookInput { return i.BaseHookInput }

// PermissionUpdate represents an operation for updating permissions.
// The CLI sends these camelCase-keyed as the permission_suggestions
// field of a can_use_tool request, and the SDK encodes them back the
// same way in an allow response's updatedPermissions field.
type PermissionUpdate struct {
	Type        string             `json:"type"`
	Rules       []PermissionRule   `json:"rules,omitempty"`
	Behavior    PermissionBehavior `json:"behavior,omitempty"`
	Destination string             `json:"destination,omitempty"`
	Mode        PermissionMode     `json:"mode,omitempty"`
	Directories []string           `json:"directories,omitempty"`
}

// PermissionRule represents a permission rule value.
type PermissionRule struct {
	ToolName    string `json:"toolName"`
	RuleContent string `json:"ruleContent"`
}

// PermissionBehavior controls permission behavior for rules.
type PermissionBehavior string

const (
	PermissionBehaviorAllow PermissionBehavior = "allow"
	PermissionBehaviorDeny  PermissionBehavior = "deny"
	PermissionBehaviorAsk   PermissionBehavior = "ask"
)

// HookResult is the outcome of a hook callback.
//
// Decision/Reason/SystemMessage populate the Stop/SubagentStop response
// shape; Continue/Modify populate the shape used by every other event.
// AsyncTimeoutSec, when non-zero, tells the CLI this hook's decision is
// deferred rather than final.
//
// PermissionDecision/PermissionDecisionReason/UpdatedInput/
// AdditionalContext populate the event-specific hook_specific_output
// object - PermissionDecision for PreToolUse/PermissionRequest hooks,
// AdditionalContext for UserPromptSubmit/SessionStart hooks that inject
// extra context into the conversation.
type HookResult struct {
	Continue        bool
	Modify          map[string]interface{}
	Decision        string // "approve" or "block"
	Reason          string
	SystemMessage   string
	AsyncTimeoutSec int

	PermissionDecision       string // "allow", "deny", or "ask"
	PermissionDecisionReason string
	UpdatedInput             map[string]interface{}
	AdditionalContext        string
}

// AgentDefinition defines a specialized subagent.
type AgentDefinition struct {
	Name        string
	Description string
	Prompt      string
	Tools       []string
	Model       string
}

// SessionOptions configures session behavior.
type SessionOptions struct {
	SessionID       string
	Resume          string
	ForkFrom        string
	ForkSession     bool
	ResumeSessionAt string
}

// MCPServerConfig configures an external (subprocess) MCP server.
type MCPServerConfig struct {
	Type    string
	Command string
	Args    []string
	Env     map[string]string
	Address string
}
