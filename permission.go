package claudeagent

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PermissionBridge translates the CLI's "can_use_tool" control requests
// into calls against the host-supplied CanUseToolFunc, and translates
// the resulting PermissionResult back into the wire response shape.
type PermissionBridge struct {
	sessionID string
	canUse    CanUseToolFunc
	logger    zerolog.Logger
}

// NewPermissionBridge creates a bridge that asks canUse for every
// tool-execution decision. canUse may be nil, in which case every
// can_use_tool request is answered with ErrNoPermissionHandler rather
// than silently allowed - a session wiring WithCanUseTool is expected
// to always supply one once any tool needs a decision.
func NewPermissionBridge(sessionID string, canUse CanUseToolFunc, logger zerolog.Logger) *PermissionBridge {
	return &PermissionBridge{sessionID: sessionID, canUse: canUse, logger: logger}
}

// HandleCanUseTool answers one can_use_tool control request.
func (b *PermissionBridge) HandleCanUseTool(ctx context.Context, req SDKControlRequestBody) (map[string]interface{}, error) {
	inputJSON, err := marshalPayload(req.Input)
	if err != nil {
		return nil, &ErrInvalidMessage{Detail: err.Error()}
	}

	if b.canUse == nil {
		return nil, &ErrNoPermissionHandler{}
	}

	permReq := ToolPermissionRequest{
		ToolName:  req.ToolName,
		Arguments: inputJSON,
		Context: PermissionContext{
			SessionID:             b.sessionID,
			ToolUseID:             req.ToolUseID,
			AgentID:               req.AgentID,
			BlockedPath:           req.BlockedPath,
			DecisionReason:        req.DecisionReason,
			PermissionSuggestions: req.PermissionSuggestions,
		},
	}

	result := b.canUse(ctx, permReq)

	switch r := result.(type) {
	case PermissionAllow:
		return b.buildAllow(r, req.ToolUseID), nil
	case PermissionDeny:
		return b.buildDeny(r, req.ToolUseID), nil
	default:
		b.logger.Warn().Str("tool_name", req.ToolName).Msg("can_use_tool callback returned unrecognized result type")
		return nil, &ErrInvalidPermissionResult{ToolName: req.ToolName}
	}
}

// buildAllow fills the wire response for an allow decision. Per the
// back-fill invariant, a ToolUseID left empty by the host callback is
// replaced with the ID from the inbound request. The CLI always sends
// one, so the manufactured uuid fallback only guards against a
// malformed inbound request.
func (b *PermissionBridge) buildAllow(a PermissionAllow, fallbackToolUseID string) map[string]interface{} {
	resp := map[string]interface{}{
		"behavior":  "allow",
		"toolUseId": resolveToolUseID(a.ToolUseID, fallbackToolUseID),
	}

	if len(a.UpdatedInput) > 0 {
		var updated map[string]interface{}
		if json.Unmarshal(a.UpdatedInput, &updated) == nil {
			resp["updatedInput"] = updated
		}
	}
	if len(a.UpdatedPermissions) > 0 {
		resp["updatedPermissions"] = encodePermissionUpdates(a.UpdatedPermissions)
	}
	return resp
}

// buildDeny fills the wire response for a deny decision, applying the
// same tool_use_id back-fill as buildAllow.
func (b *PermissionBridge) buildDeny(d PermissionDeny, fallbackToolUseID string) map[string]interface{} {
	return map[string]interface{}{
		"behavior":  "deny",
		"message":   d.Message,
		"interrupt": d.Interrupt,
		"toolUseId": resolveToolUseID(d.ToolUseID, fallbackToolUseID),
	}
}

// resolveToolUseID applies invariant 6: prefer the callback's own
// ToolUseID, fall back to the inbound request's, and only mint a new
// one if somehow neither was supplied.
func resolveToolUseID(decided, fallback string) string {
	if decided != "" {
		return decided
	}
	if fallback != "" {
		return fallback
	}
	return "tu_" + uuid.NewString()
}

func encodePermissionUpdates(updates []PermissionUpdate) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(updates))
	for _, u := range updates {
		entry := map[string]interface{}{
			"type": u.Type,
		}
		if u.Behavior != "" {
			entry["behavior"] = string(u.Behavior)
		}
		if u.Destination != "" {
			entry["destination"] = u.Destination
		}
		if u.Mode != "" {
			entry["mode"] = string(u.Mode)
		}
		if len(u.Directories) > 0 {
			entry["directories"] = u.Directories
		}
		if len(u.Rules) > 0 {
			rules := make([]map[string]interface{}, 0, len(u.Rules))
			for _, r := range u.Rules {
				rules = append(rules, map[string]interface{}{
					"toolName":    r.ToolName,
					"ruleContent": r.RuleContent,
				})
			}
			entry["rules"] = rules
		}
		out = append(out, entry)
	}
	return out
}
