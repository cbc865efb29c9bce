package claudeagent

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHandleCanUseToolNilCallbackReturnsError(t *testing.T) {
	bridge := NewPermissionBridge("s1", nil, zerolog.Nop())

	_, err := bridge.HandleCanUseTool(context.Background(), SDKControlRequestBody{
		ToolName: "Bash",
		Input:    map[string]interface{}{"command": "ls"},
	})
	var noHandler *ErrNoPermissionHandler
	require.ErrorAs(t, err, &noHandler)
}

func TestHandleCanUseToolAllowBackfillsToolUseID(t *testing.T) {
	canUse := func(ctx context.Context, req ToolPermissionRequest) PermissionResult {
		return PermissionAllow{} // no ToolUseID set
	}
	bridge := NewPermissionBridge("s1", canUse, zerolog.Nop())

	resp, err := bridge.HandleCanUseTool(context.Background(), SDKControlRequestBody{
		ToolName:  "Bash",
		ToolUseID: "tu_42",
		Input:     map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, "allow", resp["behavior"])
	assert.Equal(t, "tu_42", resp["toolUseId"])
}

func TestHandleCanUseToolAllowRespectsExplicitToolUseID(t *testing.T) {
	canUse := func(ctx context.Context, req ToolPermissionRequest) PermissionResult {
		return PermissionAllow{ToolUseID: "tu_explicit"}
	}
	bridge := NewPermissionBridge("s1", canUse, zerolog.Nop())

	resp, err := bridge.HandleCanUseTool(context.Background(), SDKControlRequestBody{
		ToolName:  "Bash",
		ToolUseID: "tu_from_request",
		Input:     map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, "tu_explicit", resp["toolUseId"])
}

func TestHandleCanUseToolDenyBackfillsToolUseID(t *testing.T) {
	canUse := func(ctx context.Context, req ToolPermissionRequest) PermissionResult {
		return PermissionDeny{Message: "not allowed"}
	}
	bridge := NewPermissionBridge("s1", canUse, zerolog.Nop())

	resp, err := bridge.HandleCanUseTool(context.Background(), SDKControlRequestBody{
		ToolName:  "Bash",
		ToolUseID: "tu_99",
		Input:     map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, "deny", resp["behavior"])
	assert.Equal(t, "not allowed", resp["message"])
	assert.Equal(t, "tu_99", resp["toolUseId"])
}

func TestHandleCanUseToolPassesContextFields(t *testing.T) {
	var captured ToolPermissionRequest
	canUse := func(ctx context.Context, req ToolPermissionRequest) PermissionResult {
		captured = req
		return PermissionAllow{}
	}
	bridge := NewPermissionBridge("session-xyz", canUse, zerolog.Nop())

	_, err := bridge.HandleCanUseTool(context.Background(), SDKControlRequestBody{
		ToolName:       "Write",
		ToolUseID:      "tu_1",
		AgentID:        "agent-1",
		BlockedPath:    "/etc/passwd",
		DecisionReason: "sandbox violation",
		Input:          map[string]interface{}{"path": "/etc/passwd"},
	})
	require.NoError(t, err)
	assert.Equal(t, "session-xyz", captured.Context.SessionID)
	assert.Equal(t, "agent-1", captured.Context.AgentID)
	assert.Equal(t, "/etc/passwd", captured.Context.BlockedPath)
	assert.Equal(t, "sandbox violation", captured.Context.DecisionReason)
}

func TestHandleCanUseToolPassesPermissionSuggestions(t *testing.T) {
	var captured ToolPermissionRequest
	canUse := func(ctx context.Context, req ToolPermissionRequest) PermissionResult {
		captured = req
		return PermissionAllow{}
	}
	bridge := NewPermissionBridge("s1", canUse, zerolog.Nop())

	_, err := bridge.HandleCanUseTool(context.Background(), SDKControlRequestBody{
		ToolName: "Bash",
		Input:    map[string]interface{}{},
		PermissionSuggestions: []PermissionUpdate{
			{Type: "addRules", Behavior: PermissionBehaviorAllow, Rules: []PermissionRule{{ToolName: "Bash", RuleContent: "ls *"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, captured.Context.PermissionSuggestions, 1)
	assert.Equal(t, "addRules", captured.Context.PermissionSuggestions[0].Type)
	assert.Equal(t, PermissionBehaviorAllow, captured.Context.PermissionSuggestions[0].Behavior)
}

func TestHandleCanUseToolUnrecognizedResultReturnsError(t *testing.T) {
	canUse := func(ctx context.Context, req ToolPermissionRequest) PermissionResult {
		return nil
	}
	bridge := NewPermissionBridge("s1", canUse, zerolog.Nop())

	_, err := bridge.HandleCanUseTool(context.Background(), SDKControlRequestBody{
		ToolName: "Bash",
		Input:    map[string]interface{}{},
	})
	var invalid *ErrInvalidPermissionResult
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Bash", invalid.ToolName)
}

// TestToolUseIDBackfillInvariant checks that the response always carries
// a non-empty toolUseId: the callback's own value when set, the inbound
// request's otherwise, and a manufactured one only when both are empty.
func TestToolUseIDBackfillInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		decided := rapid.SampledFrom([]string{"", "tu_from_callback"}).Draw(rt, "decided")
		fallback := rapid.SampledFrom([]string{"", "tu_from_request"}).Draw(rt, "fallback")

		got := resolveToolUseID(decided, fallback)
		require.NotEmpty(rt, got)

		switch {
		case decided != "":
			assert.Equal(rt, decided, got)
		case fallback != "":
			assert.Equal(rt, fallback, got)
		default:
			assert.Contains(rt, got, "tu_")
		}
	})
}
