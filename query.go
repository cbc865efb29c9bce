package claudeagent

import (
	"context"
	"iter"
)

// Handle represents one running conversation: a prompt already sent to
// Claude plus the live control channel needed to steer it (interrupt,
// change model or permission mode, rewind files, inspect MCP status).
//
// A Handle must be closed when no longer needed.
type Handle struct {
	session *Session
}

// Query sends prompt to a freshly started CLI session configured by
// opts and returns a Handle for reading the response stream and
// issuing control operations against it.
func Query(ctx context.Context, prompt string, opts ...Option) (*Handle, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if err := validateOptions(&options); err != nil {
		return nil, err
	}

	session, err := newSession(ctx, &options)
	if err != nil {
		return nil, err
	}

	if err := session.Send(ctx, prompt); err != nil {
		session.Close()
		return nil, err
	}

	return &Handle{session: session}, nil
}

// Messages returns an iterator over the conversation's response
// messages. It ends after yielding a ResultMessage, when the
// underlying transport closes, or when the consumer stops ranging.
// The yielded error is always nil: a transport read error, including
// ErrProcessTerminated, ends the iteration without being yielded.
func (h *Handle) Messages() iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for msg := range h.session.Messages() {
			if !yield(msg, nil) {
				return
			}
			if _, ok := msg.(ResultMessage); ok {
				return
			}
		}
	}
}

// Send submits another prompt on the same session, for multi-turn use
// after the initial Query call.
func (h *Handle) Send(ctx context.Context, prompt string) error {
	return h.session.Send(ctx, prompt)
}

// Interrupt stops the current generation.
func (h *Handle) Interrupt(ctx context.Context) error {
	_, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "interrupt"})
	return err
}

// SetModel dynamically changes the model used for subsequent turns.
// Pass an empty string to reset to the configured default.
func (h *Handle) SetModel(ctx context.Context, model string) error {
	_, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "set_model", Model: model})
	return err
}

// SetPermissionMode dynamically changes the permission mode.
func (h *Handle) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	_, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "set_permission_mode", Mode: string(mode)})
	return err
}

// SetMaxThinkingTokens dynamically changes the thinking token budget.
// Pass nil to remove the limit.
func (h *Handle) SetMaxThinkingTokens(ctx context.Context, tokens *int) error {
	_, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "set_max_thinking_tokens", MaxThinkingTokens: tokens})
	return err
}

// RewindFiles restores files to the checkpoint recorded at
// userMessageUUID. Requires Options.EnableFileCheckpointing.
func (h *Handle) RewindFiles(ctx context.Context, userMessageUUID string) error {
	_, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "rewind_files", UserMessageID: userMessageUUID})
	return err
}

// McpStatus returns the connection status of every configured MCP
// server.
func (h *Handle) McpStatus(ctx context.Context) ([]McpServerStatus, error) {
	resp, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "mcp_status"})
	if err != nil {
		return nil, err
	}

	servers, ok := resp.Response["servers"].([]interface{})
	if !ok {
		return nil, &ErrProtocolViolation{Message: "invalid mcp_status response"}
	}

	result := make([]McpServerStatus, 0, len(servers))
	for _, raw := range servers {
		srvMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		status := McpServerStatus{
			Name:   getString(srvMap, "name"),
			Status: McpServerState(getString(srvMap, "status")),
		}
		if info, ok := srvMap["serverInfo"].(map[string]interface{}); ok {
			status.ServerInfo = &McpServerInfo{
				Name:    getString(info, "name"),
				Version: getString(info, "version"),
			}
		}
		result = append(result, status)
	}
	return result, nil
}

// McpSetServers replaces the session's external MCP server
// configuration at runtime.
func (h *Handle) McpSetServers(ctx context.Context, servers map[string]MCPServerConfig) error {
	encoded := make(map[string]interface{}, len(servers))
	for name, cfg := range servers {
		encoded[name] = map[string]interface{}{
			"command": cfg.Command,
			"args":    cfg.Args,
			"env":     cfg.Env,
		}
	}
	_, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "mcp_set_servers", McpServers: encoded})
	return err
}

// McpReconnect forces a reconnect attempt for one named MCP server.
func (h *Handle) McpReconnect(ctx context.Context, serverName string) error {
	_, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "mcp_reconnect", McpServerName: serverName})
	return err
}

// McpToggle enables or disables one named MCP server without removing
// its configuration.
func (h *Handle) McpToggle(ctx context.Context, serverName string, enabled bool) error {
	_, err := h.session.Control(ctx, SDKControlRequestBody{
		Subtype:       "mcp_toggle",
		McpServerName: serverName,
		McpEnabled:    &enabled,
	})
	return err
}

// SupportedCommands returns the slash commands available in this
// session.
func (h *Handle) SupportedCommands(ctx context.Context) ([]SlashCommand, error) {
	resp, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "supported_commands"})
	if err != nil {
		return nil, err
	}

	commands, ok := resp.Response["commands"].([]interface{})
	if !ok {
		return nil, &ErrProtocolViolation{Message: "invalid supported_commands response"}
	}

	result := make([]SlashCommand, 0, len(commands))
	for _, raw := range commands {
		cmdMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		result = append(result, SlashCommand{
			Name:         getString(cmdMap, "name"),
			Description:  getString(cmdMap, "description"),
			ArgumentHint: getString(cmdMap, "argumentHint"),
		})
	}
	return result, nil
}

// SupportedModels returns the models available in this session.
func (h *Handle) SupportedModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "supported_models"})
	if err != nil {
		return nil, err
	}

	models, ok := resp.Response["models"].([]interface{})
	if !ok {
		return nil, &ErrProtocolViolation{Message: "invalid supported_models response"}
	}

	result := make([]ModelInfo, 0, len(models))
	for _, raw := range models {
		modelMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		result = append(result, ModelInfo{
			Value:       getString(modelMap, "value"),
			DisplayName: getString(modelMap, "displayName"),
			Description: getString(modelMap, "description"),
		})
	}
	return result, nil
}

// AccountInfo returns account information for the authenticated user.
func (h *Handle) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	resp, err := h.session.Control(ctx, SDKControlRequestBody{Subtype: "account_info"})
	if err != nil {
		return nil, err
	}
	return &AccountInfo{
		Email:            getString(resp.Response, "email"),
		Organization:     getString(resp.Response, "organization"),
		SubscriptionType: getString(resp.Response, "subscriptionType"),
		TokenSource:      getString(resp.Response, "tokenSource"),
		APIKeySource:     getString(resp.Response, "apiKeySource"),
	}, nil
}

// SessionID returns the underlying CLI session identifier.
func (h *Handle) SessionID() string {
	return h.session.SessionID()
}

// Close terminates the session's subprocess and releases its
// resources.
func (h *Handle) Close() error {
	return h.session.Close()
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
