package claudeagent

import (
	"fmt"
)

// Transport errors.

// ErrTransportClosed indicates an attempt to use a transport that has
// already terminated or was never started.
type ErrTransportClosed struct{}

// Error implements the error interface.
func (e *ErrTransportClosed) Error() string {
	return "transport is closed"
}

// ErrTransportAlreadyAttached indicates a second attempt to attach a
// frame consumer to a transport that already has one. It unwraps to
// ErrTransportClosed, so errors.As matches either type.
type ErrTransportAlreadyAttached struct{}

// Error implements the error interface.
func (e *ErrTransportAlreadyAttached) Error() string {
	return "transport already has an attached frame consumer"
}

// Unwrap implements the unwrap interface for error chains.
func (e *ErrTransportAlreadyAttached) Unwrap() error {
	return &ErrTransportClosed{}
}

// ErrProcessTerminated indicates the CLI subprocess exited with a
// non-zero status.
type ErrProcessTerminated struct {
	Code int
}

// Error implements the error interface.
func (e *ErrProcessTerminated) Error() string {
	return fmt.Sprintf("cli subprocess terminated with exit code %d", e.Code)
}

// ErrSubprocessFailed indicates that the Claude Code CLI subprocess failed
// to start or terminated unexpectedly.
type ErrSubprocessFailed struct {
	Cause error
}

// Error implements the error interface.
func (e *ErrSubprocessFailed) Error() string {
	return fmt.Sprintf("subprocess failed: %v", e.Cause)
}

// Unwrap implements the unwrap interface for error chains.
func (e *ErrSubprocessFailed) Unwrap() error {
	return e.Cause
}

// ErrCLINotFound indicates that the Claude Code CLI executable could not
// be located in the system PATH or at the configured path.
type ErrCLINotFound struct {
	Path string
}

// Error implements the error interface.
func (e *ErrCLINotFound) Error() string {
	if e.Path == "" {
		return "claude CLI not found in PATH"
	}
	return fmt.Sprintf("claude CLI not found at: %s", e.Path)
}

// ErrCLIVersionIncompatible indicates that the installed Claude Code CLI
// version does not meet the minimum required version.
type ErrCLIVersionIncompatible struct {
	Found    string
	Required string
}

// Error implements the error interface.
func (e *ErrCLIVersionIncompatible) Error() string {
	return fmt.Sprintf("claude CLI version %s is incompatible (required: %s)", e.Found, e.Required)
}

// Control protocol errors.

// ErrControlTimeout indicates a control request received no response
// within its deadline.
type ErrControlTimeout struct {
	RequestID string
}

// Error implements the error interface.
func (e *ErrControlTimeout) Error() string {
	return fmt.Sprintf("control request %s timed out", e.RequestID)
}

// ErrControlCancelled indicates a control request was cancelled before a
// response arrived, either by the peer or by context cancellation.
type ErrControlCancelled struct {
	RequestID string
}

// Error implements the error interface.
func (e *ErrControlCancelled) Error() string {
	return fmt.Sprintf("control request %s was cancelled", e.RequestID)
}

// ErrControlResponse wraps an error response returned by the CLI for a
// control request.
type ErrControlResponse struct {
	RequestID string
	Message   string
}

// Error implements the error interface.
func (e *ErrControlResponse) Error() string {
	return fmt.Sprintf("control request %s failed: %s", e.RequestID, e.Message)
}

// ErrUnknownSubtype indicates an inbound control request named a subtype
// with no registered handler.
type ErrUnknownSubtype struct {
	Subtype string
}

// Error implements the error interface.
func (e *ErrUnknownSubtype) Error() string {
	return fmt.Sprintf("unknown control request subtype: %s", e.Subtype)
}

// ErrProtocolViolation indicates that the CLI sent a message that violates
// the control protocol specification.
type ErrProtocolViolation struct {
	Message string
}

// Error implements the error interface.
func (e *ErrProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Message)
}

// ErrInvalidMessage indicates a frame could not be interpreted as a
// well-formed message of its declared type.
type ErrInvalidMessage struct {
	Detail string
}

// Error implements the error interface.
func (e *ErrInvalidMessage) Error() string {
	return fmt.Sprintf("invalid message: %s", e.Detail)
}

// Hook errors.

// ErrHookCallbackNotFound indicates a hook_callback control request named
// a callback ID the registry never registered.
type ErrHookCallbackNotFound struct {
	ID string
}

// Error implements the error interface.
func (e *ErrHookCallbackNotFound) Error() string {
	return fmt.Sprintf("unknown hook callback id: %s", e.ID)
}

// ErrHookInvalidInput indicates a hook_callback payload could not be
// decoded into the input shape of its event kind (a field of the wrong
// JSON type), or named an unrecognized hook type. Fields absent from the
// payload are left at their zero values and are not reported.
type ErrHookInvalidInput struct {
	Event  string
	Detail string
}

// Error implements the error interface.
func (e *ErrHookInvalidInput) Error() string {
	return fmt.Sprintf("invalid input for hook %s: %s", e.Event, e.Detail)
}

// ErrHookCallbackTimeout indicates a hook callback did not return within
// its configured timeout.
type ErrHookCallbackTimeout struct {
	ID string
}

// Error implements the error interface.
func (e *ErrHookCallbackTimeout) Error() string {
	return fmt.Sprintf("hook callback %s timed out", e.ID)
}

// ErrHookFailed indicates that a hook callback returned an error.
type ErrHookFailed struct {
	HookType string
	Cause    error
}

// Error implements the error interface.
func (e *ErrHookFailed) Error() string {
	return fmt.Sprintf("hook %s failed: %v", e.HookType, e.Cause)
}

// Unwrap implements the unwrap interface for error chains.
func (e *ErrHookFailed) Unwrap() error {
	return e.Cause
}

// Tool routing errors.

// ErrToolNotFound indicates a tools/call named a tool not registered on
// the target server.
type ErrToolNotFound struct {
	Name string
}

// Error implements the error interface.
func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// ErrSchemaViolation indicates tool call arguments failed JSON-Schema
// validation against the tool's declared input schema.
type ErrSchemaViolation struct {
	Field  string
	Detail string
}

// Error implements the error interface.
func (e *ErrSchemaViolation) Error() string {
	return fmt.Sprintf("schema violation on field %q: %s", e.Field, e.Detail)
}

// Query / session errors.

// ErrQueryAlreadyConsumed indicates an attempt to read a message stream
// that has already been fully drained and closed.
type ErrQueryAlreadyConsumed struct{}

// Error implements the error interface.
func (e *ErrQueryAlreadyConsumed) Error() string { return "query result already consumed" }

// ErrSessionNotInitialized indicates a control operation was attempted
// before the initialize handshake completed.
type ErrSessionNotInitialized struct{}

// Error implements the error interface.
func (e *ErrSessionNotInitialized) Error() string { return "session is not initialized" }

// ErrPermissionDenied indicates that a tool execution was denied by the
// permission system.
type ErrPermissionDenied struct {
	ToolName string
	Reason   string
}

// Error implements the error interface.
func (e *ErrPermissionDenied) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("permission denied for tool: %s", e.ToolName)
	}
	return fmt.Sprintf("permission denied for tool %s: %s", e.ToolName, e.Reason)
}

// ErrNoPermissionHandler indicates a can_use_tool request arrived for a
// session configured with no CanUseToolFunc.
type ErrNoPermissionHandler struct{}

// Error implements the error interface.
func (e *ErrNoPermissionHandler) Error() string { return "no permission handler installed" }

// ErrInvalidPermissionResult indicates a CanUseToolFunc returned a
// PermissionResult implementation other than PermissionAllow or
// PermissionDeny.
type ErrInvalidPermissionResult struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrInvalidPermissionResult) Error() string {
	return fmt.Sprintf("can_use_tool callback for %q returned an unrecognized permission result", e.ToolName)
}

// ErrSessionNotFound indicates that an attempt was made to resume or fork
// a session that does not exist.
type ErrSessionNotFound struct {
	SessionID string
}

// Error implements the error interface.
func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// ErrInvalidConfiguration indicates that client configuration is invalid.
type ErrInvalidConfiguration struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ErrInvalidConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}
