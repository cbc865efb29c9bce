package claudeagent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HookRegistry tracks lifecycle callbacks and answers the CLI's
// hook_callback control requests. Each request names one callback id,
// and only that callback is invoked.
type HookRegistry struct {
	logger         zerolog.Logger
	defaultTimeout time.Duration

	mu        sync.Mutex
	callbacks map[string]registeredCallback
	byType    map[HookType][]string // callback IDs in registration order
}

type registeredCallback struct {
	id       string
	hookType HookType
	matcher  string
	fn       HookCallback
	timeout  time.Duration
}

// NewHookRegistry creates an empty registry. defaultTimeoutSeconds is
// applied to any HookConfig that doesn't set its own TimeoutSeconds.
func NewHookRegistry(defaultTimeoutSeconds int, logger zerolog.Logger) *HookRegistry {
	if defaultTimeoutSeconds <= 0 {
		defaultTimeoutSeconds = 60
	}
	return &HookRegistry{
		logger:         logger,
		defaultTimeout: time.Duration(defaultTimeoutSeconds) * time.Second,
		callbacks:      make(map[string]registeredCallback),
		byType:         make(map[HookType][]string),
	}
}

// Register installs every HookConfig in configs, keyed by its HookType,
// and returns the hooks map to send in the initialize control request
// (matcher string, evaluated by the CLI, plus callback IDs).
func (r *HookRegistry) Register(configs map[HookType][]HookConfig) map[string][]SDKHookCallbackMatcher {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]SDKHookCallbackMatcher)

	for hookType, cfgs := range configs {
		for _, cfg := range cfgs {
			id := "hook_" + uuid.NewString()

			timeout := r.defaultTimeout
			if cfg.TimeoutSeconds > 0 {
				timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
			}

			r.callbacks[id] = registeredCallback{
				id:       id,
				hookType: hookType,
				matcher:  cfg.Matcher,
				fn:       cfg.Callback,
				timeout:  timeout,
			}
			r.byType[hookType] = append(r.byType[hookType], id)

			out[string(hookType)] = append(out[string(hookType)], SDKHookCallbackMatcher{
				Matcher:         cfg.Matcher,
				HookCallbackIDs: []string{id},
				Timeout:         int(timeout.Seconds()),
			})
		}
	}
	return out
}

// HandleCallback answers one hook_callback control request. The CLI has
// already decided which registered hooks match the event and sends one
// hook_callback per matched callback id, so this looks the callback up
// by id and invokes it directly - there is no SDK-side re-match against
// the matcher string.
func (r *HookRegistry) HandleCallback(ctx context.Context, req SDKControlRequestBody) (map[string]interface{}, error) {
	r.mu.Lock()
	cb, ok := r.callbacks[req.CallbackID]
	r.mu.Unlock()
	if !ok {
		return nil, &ErrHookCallbackNotFound{ID: req.CallbackID}
	}

	input, _, err := decodeHookInput(cb.hookType, req.Message)
	if err != nil {
		return nil, &ErrHookInvalidInput{Event: string(cb.hookType), Detail: err.Error()}
	}

	var result HookResult
	var callErr error
	err = waitWithTimeout(ctx, cb.timeout, func(cctx context.Context) error {
		result, callErr = cb.fn(cctx, input)
		return callErr
	})
	if err != nil {
		if err == context.DeadlineExceeded {
			return nil, &ErrHookCallbackTimeout{ID: cb.id}
		}
		return nil, &ErrHookFailed{HookType: string(cb.hookType), Cause: err}
	}

	return buildHookResponse(cb.hookType, result), nil
}

// buildHookResponse translates a HookResult into the wire shape the CLI
// expects. Stop/SubagentStop hooks use Decision/Reason/SystemMessage;
// every other event kind uses Continue/Modify. A non-zero
// AsyncTimeoutSec marks the decision as deferred: the CLI should treat
// this callback as still pending rather than resolved.
//
// PermissionDecision/UpdatedInput/AdditionalContext nest under
// hook_specific_output, keyed by camelCase field names
// (hookEventName, permissionDecision, permissionDecisionReason,
// updatedInput, additionalContext) per the wire contract's historical
// casing split between the envelope and this nested object.
func buildHookResponse(hookType HookType, result HookResult) map[string]interface{} {
	resp := make(map[string]interface{})

	if result.AsyncTimeoutSec > 0 {
		resp["async"] = true
		resp["asyncTimeout"] = result.AsyncTimeoutSec
		return resp
	}

	if result.Decision != "" {
		resp["decision"] = result.Decision
	}
	if result.Reason != "" {
		resp["reason"] = result.Reason
	}
	if result.SystemMessage != "" {
		resp["systemMessage"] = result.SystemMessage
	}
	if result.Decision == "" {
		resp["continue"] = result.Continue
	}

	if specific := buildHookSpecificOutput(hookType, result); specific != nil {
		resp["hook_specific_output"] = specific
	}

	for k, v := range result.Modify {
		resp[k] = v
	}
	return resp
}

// buildHookSpecificOutput assembles the event-keyed hook_specific_output
// object, or nil if the callback set none of its fields.
func buildHookSpecificOutput(hookType HookType, result HookResult) map[string]interface{} {
	if result.PermissionDecision == "" && result.UpdatedInput == nil && result.AdditionalContext == "" {
		return nil
	}

	out := map[string]interface{}{"hookEventName": string(hookType)}
	if result.PermissionDecision != "" {
		out["permissionDecision"] = result.PermissionDecision
	}
	if result.PermissionDecisionReason != "" {
		out["permissionDecisionReason"] = result.PermissionDecisionReason
	}
	if result.UpdatedInput != nil {
		out["updatedInput"] = result.UpdatedInput
	}
	if result.AdditionalContext != "" {
		out["additionalContext"] = result.AdditionalContext
	}
	return out
}

// decodeHookInput unmarshals the control request's raw message field
// into the typed HookInput for hookType, also returning its "subject"
// string (tool or agent name, where applicable). HandleCallback ignores
// the subject, since matching is done by the CLI.
func decodeHookInput(hookType HookType, raw map[string]interface{}) (HookInput, string, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, "", err
	}

	switch hookType {
	case HookTypePreToolUse:
		var in PreToolUseInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		in.TypedInput, _ = DecodeToolInput(in.ToolName, in.ToolInput)
		return in, in.ToolName, nil
	case HookTypePostToolUse:
		var in PostToolUseInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		in.TypedInput, _ = DecodeToolInput(in.ToolName, in.ToolInput)
		return in, in.ToolName, nil
	case HookTypePostToolUseFailure:
		var in PostToolUseFailureInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		in.TypedInput, _ = DecodeToolInput(in.ToolName, in.ToolInput)
		return in, in.ToolName, nil
	case HookTypeUserPromptSubmit:
		var in UserPromptSubmitInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, "", nil
	case HookTypeStop:
		var in StopInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, "", nil
	case HookTypeSubagentStop:
		var in SubagentStopInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, in.AgentName, nil
	case HookTypePreCompact:
		var in PreCompactInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, "", nil
	case HookTypeNotification:
		var in NotificationInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, "", nil
	case HookTypeSessionStart:
		var in SessionStartInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, "", nil
	case HookTypeSessionEnd:
		var in SessionEndInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, "", nil
	case HookTypeSubagentStart:
		var in SubagentStartInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, in.AgentType, nil
	case HookTypePermissionRequest:
		var in PermissionRequestInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, in.ToolName, nil
	case HookTypeSetup:
		var in SetupInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, "", nil
	case HookTypeTeammateIdle:
		var in TeammateIdleInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, in.AgentID, nil
	case HookTypeTaskCompleted:
		var in TaskCompletedInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, "", err
		}
		return in, "", nil
	default:
		return nil, "", &ErrHookInvalidInput{Event: string(hookType), Detail: "unrecognized hook type"}
	}
}
