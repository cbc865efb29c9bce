package claudeagent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSession bundles a Session with the MockSubprocessRunner behind its
// transport, so tests can inject CLI-side frames and inspect what the
// session writes back.
type testSession struct {
	session *Session
	runner  *MockSubprocessRunner
}

// newTestSession builds a Session directly against a MockSubprocessRunner,
// bypassing newSession's CLI discovery (DiscoverCLIPath requires a real
// "claude" executable on PATH). It then answers the initialize handshake
// automatically so callers get back a ready-to-use session.
func newTestSession(t *testing.T, options *Options) *testSession {
	t.Helper()

	runner := NewMockSubprocessRunner()
	transport := NewTransportWithRunner(runner, options)
	require.NoError(t, transport.Connect(context.Background()))

	control := NewControlEngine(transport, options.Logger)
	hooks := NewHookRegistry(options.HookCallbackTimeout, options.Logger)
	perms := NewPermissionBridge(options.SessionOptions.SessionID, options.CanUseTool, options.Logger)

	s := &Session{
		options:   options,
		id:        options.SessionOptions.SessionID,
		transport: transport,
		control:   control,
		hooks:     hooks,
		perms:     perms,
		msgCh:     make(chan Message, 64),
	}
	control.RegisterHandler("can_use_tool", perms.HandleCanUseTool)
	control.RegisterHandler("hook_callback", hooks.HandleCallback)
	control.RegisterHandler("mcp_message", s.handleMCPMessage)

	s.pumpCtx, s.pumpCancel = context.WithCancel(context.Background())
	go s.pump()

	ts := &testSession{session: s, runner: runner}
	go ts.autoAckInitialize(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := control.Send(ctx, SDKControlRequestBody{Subtype: "initialize"})
	require.NoError(t, err)
	require.Equal(t, "success", resp.Subtype)

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	return ts
}

// autoAckInitialize reads the first line the session writes to its mock
// stdin (the initialize control_request) and immediately answers it with
// a success control_response, mirroring what the real CLI does.
func (ts *testSession) autoAckInitialize(t *testing.T) {
	t.Helper()

	line, err := readLine(ts.runner.StdinPipe)
	if err != nil {
		return
	}
	var req SDKControlRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return
	}

	resp := SDKControlResponse{
		Type: "control_response",
		Response: SDKControlResponseBody{
			RequestID: req.RequestID,
			Subtype:   "success",
		},
	}
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	require.NoError(t, ts.runner.StdoutPipe.WriteString(string(out)+"\n"))
}

// readLine pulls one newline-delimited chunk from a MockPipe.
func readLine(p *MockPipe) ([]byte, error) {
	buf := make([]byte, 4096)
	n, err := p.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func testOptions() *Options {
	options := DefaultOptions()
	options.Model = "claude-sonnet-4-5-20250929"
	options.SessionOptions.SessionID = "sess_test"
	options.Logger = zerolog.Nop()
	return &options
}

func TestNewSessionCompletesInitializeHandshake(t *testing.T) {
	ts := newTestSession(t, testOptions())
	defer ts.session.Close()

	assert.True(t, ts.session.initialized)
}

func TestSessionSendWritesUserMessage(t *testing.T) {
	ts := newTestSession(t, testOptions())
	defer ts.session.Close()

	require.NoError(t, ts.session.Send(context.Background(), "hello there"))

	line, err := readLine(ts.runner.StdinPipe)
	require.NoError(t, err)

	var msg UserMessage
	require.NoError(t, json.Unmarshal(line, &msg))
	assert.Equal(t, "sess_test", msg.SessionID)
	require.Len(t, msg.Message.Content, 1)
	assert.Equal(t, "hello there", msg.Message.Content[0].Text)
}

func TestSessionPumpRoutesRegularFrameToMessages(t *testing.T) {
	ts := newTestSession(t, testOptions())
	defer ts.session.Close()

	require.NoError(t, ts.runner.StdoutPipe.WriteString(
		`{"type":"result","status":"success","session_id":"sess_test"}`+"\n",
	))

	select {
	case msg := <-ts.session.Messages():
		result, ok := msg.(ResultMessage)
		require.True(t, ok, "expected ResultMessage, got %T", msg)
		assert.Equal(t, "success", result.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded message")
	}
}

func TestSessionLearnsSessionIDFromInitFrame(t *testing.T) {
	options := testOptions()
	options.SessionOptions.SessionID = ""
	ts := newTestSession(t, options)
	defer ts.session.Close()

	require.NoError(t, ts.runner.StdoutPipe.WriteString(
		`{"type":"system","subtype":"init","session_id":"sess_from_cli"}`+"\n",
	))

	select {
	case msg := <-ts.session.Messages():
		sys, ok := msg.(SystemMessage)
		require.True(t, ok, "expected SystemMessage, got %T", msg)
		assert.Equal(t, "sess_from_cli", sys.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded init message")
	}

	assert.Eventually(t, func() bool {
		return ts.session.SessionID() == "sess_from_cli"
	}, time.Second, 10*time.Millisecond)
}

func TestSessionPumpDispatchesCanUseToolRequest(t *testing.T) {
	options := testOptions()
	options.CanUseTool = func(ctx context.Context, req ToolPermissionRequest) PermissionResult {
		return PermissionAllow{}
	}
	ts := newTestSession(t, options)
	defer ts.session.Close()

	inbound := SDKControlRequest{
		Type:      "control_request",
		RequestID: "req_from_cli_1",
		Request: SDKControlRequestBody{
			Subtype:   "can_use_tool",
			ToolName:  "Bash",
			ToolUseID: "tu_1",
			Input:     map[string]interface{}{"command": "ls"},
		},
	}
	out, err := json.Marshal(inbound)
	require.NoError(t, err)
	require.NoError(t, ts.runner.StdoutPipe.WriteString(string(out)+"\n"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		line, err := readLineCtx(ctx, ts.runner.StdinPipe)
		require.NoError(t, err)

		var resp SDKControlResponse
		if json.Unmarshal(line, &resp) == nil && resp.Response.RequestID == "req_from_cli_1" {
			assert.Equal(t, "success", resp.Response.Subtype)
			assert.Equal(t, "allow", resp.Response.Response["behavior"])
			return
		}
	}
}

// readLineCtx is readLine with a deadline, since a malformed test could
// otherwise block a MockPipe.Read forever.
func readLineCtx(ctx context.Context, p *MockPipe) ([]byte, error) {
	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := readLine(p)
		ch <- result{line, err}
	}()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSessionPumpDispatchesMcpToolCall(t *testing.T) {
	options := testOptions()
	options.SDKMcpServers = map[string]*McpServer{"math": newAddServer()}
	ts := newTestSession(t, options)
	defer ts.session.Close()

	inbound := SDKControlRequest{
		Type:      "control_request",
		RequestID: "r-7",
		Request: SDKControlRequestBody{
			Subtype:    "mcp_message",
			ServerName: "math",
			Message: map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      float64(1),
				"method":  "tools/call",
				"params": map[string]interface{}{
					"name":      "add",
					"arguments": map[string]interface{}{"a": float64(2), "b": float64(3)},
				},
			},
		},
	}
	out, err := json.Marshal(inbound)
	require.NoError(t, err)
	require.NoError(t, ts.runner.StdoutPipe.WriteString(string(out)+"\n"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		line, err := readLineCtx(ctx, ts.runner.StdinPipe)
		require.NoError(t, err)

		var resp SDKControlResponse
		if json.Unmarshal(line, &resp) == nil && resp.Response.RequestID == "r-7" {
			assert.Equal(t, "success", resp.Response.Subtype)
			mcpResp, ok := resp.Response.Response["mcp_response"].(map[string]interface{})
			require.True(t, ok, "expected mcp_response in control response")
			assert.Equal(t, "2.0", mcpResp["jsonrpc"])
			result, ok := mcpResp["result"].(map[string]interface{})
			require.True(t, ok)
			content, ok := result["content"].([]interface{})
			require.True(t, ok)
			require.Len(t, content, 1)
			first := content[0].(map[string]interface{})
			assert.Equal(t, "5", first["text"])
			return
		}
	}
}

func TestSessionCloseStopsMessagePump(t *testing.T) {
	ts := newTestSession(t, testOptions())

	require.NoError(t, ts.session.Close())

	select {
	case _, ok := <-ts.session.Messages():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message channel to close")
	}
}

func TestValidateOptionsRejectsMissingModel(t *testing.T) {
	options := DefaultOptions()
	err := validateOptions(&options)
	var invalid *ErrInvalidConfiguration
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Model", invalid.Field)
}

func TestValidateOptionsRejectsConflictingResumeAndFork(t *testing.T) {
	options := DefaultOptions()
	options.Model = "claude-sonnet-4-5-20250929"
	options.SessionOptions.Resume = "sess_a"
	options.SessionOptions.ForkFrom = "sess_b"

	err := validateOptions(&options)
	var invalid *ErrInvalidConfiguration
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "SessionOptions", invalid.Field)
}

func TestValidateOptionsRejectsUnknownPermissionMode(t *testing.T) {
	options := DefaultOptions()
	options.Model = "claude-sonnet-4-5-20250929"
	options.PermissionMode = PermissionMode("not-a-real-mode")

	err := validateOptions(&options)
	var invalid *ErrInvalidConfiguration
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "PermissionMode", invalid.Field)
}
