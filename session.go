package claudeagent

import (
	"context"
	"fmt"
	"sync"
)

// Session orchestrates a single CLI subprocess conversation: it owns
// the Transport, the ControlEngine that rides on top of it, and the
// HookRegistry/PermissionBridge/tool router that answer the CLI's
// inbound control requests. Session is not exported API surface on its
// own - Query and Handle in query.go are the public entry points.
type Session struct {
	options *Options
	id      string

	transport *Transport
	control   *ControlEngine
	hooks     *HookRegistry
	perms     *PermissionBridge

	msgCh      chan Message
	pumpCtx    context.Context
	pumpCancel context.CancelFunc

	mu          sync.Mutex
	initialized bool
}

// SessionID returns the session identifier supplied via
// SessionOptions.SessionID, or, when none was supplied, the one observed
// from the CLI's first system.init frame (empty until that arrives).
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// newSession builds a Session from already-validated options, connects
// the transport, wires every control-request handler, and performs the
// initialize handshake.
func newSession(ctx context.Context, options *Options) (*Session, error) {
	transport, err := NewTransport(options)
	if err != nil {
		return nil, err
	}
	if options.Stderr != nil {
		transport.SetStderrLogger(&stderrWriter{fn: options.Stderr})
	}

	if err := transport.Connect(ctx); err != nil {
		return nil, err
	}

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

	hookMatchers := hooks.Register(options.Hooks)

	sdkServerNames := make([]string, 0, len(options.SDKMcpServers))
	for name := range options.SDKMcpServers {
		sdkServerNames = append(sdkServerNames, name)
	}

	initBody := SDKControlRequestBody{
		Subtype:       "initialize",
		Hooks:         hookMatchers,
		SDKMCPServers: sdkServerNames,
	}
	if _, err := control.Send(ctx, initBody); err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize handshake failed: %w", err)
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	return s, nil
}

// stderrWriter adapts an Options.Stderr callback to io.Writer so it can
// be installed via Transport.SetStderrLogger.
type stderrWriter struct{ fn func(string) }

func (w *stderrWriter) Write(p []byte) (int, error) {
	w.fn(string(p))
	return len(p), nil
}

// pump reads frames off the transport and routes them: control frames
// go to the ControlEngine, everything else is decoded into a Message
// and handed to msgCh for the Query/Handle layer to consume.
func (s *Session) pump() {
	defer close(s.msgCh)

	for frame, err := range s.transport.ReadFrames(s.pumpCtx) {
		if err != nil {
			s.options.Logger.Debug().Err(err).Msg("transport read loop ended")
			return
		}

		switch frame.Kind {
		case FrameControlRequest:
			go s.control.DeliverRequest(s.pumpCtx, *frame.ControlRequest)
		case FrameControlResponse:
			s.control.DeliverResponse(*frame.ControlResp)
		case FrameControlCancel:
			s.control.DeliverCancel(*frame.CancelRequest)
		case FrameKeepAlive:
			// No-op: keep-alives exist only to hold the pipe open.
		default:
			msg := DecodeRegularMessage(frame)
			if sys, ok := msg.(SystemMessage); ok && sys.Subtype == "init" && sys.SessionID != "" {
				s.mu.Lock()
				if s.id == "" {
					s.id = sys.SessionID
				}
				s.mu.Unlock()
			}
			select {
			case s.msgCh <- msg:
			case <-s.pumpCtx.Done():
				return
			}
		}
	}
}

// handleMCPMessage answers an mcp_message control request by routing
// its JSON-RPC envelope to the named in-process server and wrapping the
// reply under "mcp_response", per the control response's wire contract
// for this subtype.
func (s *Session) handleMCPMessage(ctx context.Context, req SDKControlRequestBody) (map[string]interface{}, error) {
	server, ok := s.options.SDKMcpServers[req.ServerName]
	if !ok {
		return nil, &ErrToolNotFound{Name: req.ServerName}
	}
	reply, err := routeMCPJSONRPC(ctx, server, req.Message)
	if err != nil {
		return nil, err
	}
	// reply is nil for notifications/initialized, which carries no id
	// and expects no JSON-RPC reply; the control_response envelope
	// itself is still sent, just with an empty mcp_response.
	return map[string]interface{}{"mcp_response": reply}, nil
}

// Send writes a user message into the conversation.
func (s *Session) Send(ctx context.Context, prompt string) error {
	msg := UserMessage{
		Type:      "user",
		SessionID: s.SessionID(),
		Message: APIUserMessage{
			Role:    "user",
			Content: []UserContentBlock{{Type: "text", Text: prompt}},
		},
	}
	return s.transport.Write(ctx, msg)
}

// Control issues a control request and returns its raw response body.
// Query/Handle methods build typed wrappers around this for each
// supported operation.
func (s *Session) Control(ctx context.Context, body SDKControlRequestBody) (SDKControlResponseBody, error) {
	return s.control.Send(ctx, body)
}

// Messages exposes the channel of decoded application messages. The
// channel closes when the transport's read loop ends.
func (s *Session) Messages() <-chan Message {
	return s.msgCh
}

// Close shuts down the pump, control engine, and transport.
func (s *Session) Close() error {
	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	if s.control != nil {
		s.control.Close()
	}
	if s.transport != nil {
		return s.transport.Close()
	}
	return nil
}

func validateOptions(opts *Options) error {
	if opts.Model == "" {
		return &ErrInvalidConfiguration{Field: "Model", Reason: "model must be specified"}
	}

	validModes := map[PermissionMode]bool{
		PermissionModeDefault:     true,
		PermissionModePlan:        true,
		PermissionModeAcceptEdits: true,
		PermissionModeBypassAll:   true,
		PermissionModeDelegate:    true,
		PermissionModeDontAsk:     true,
	}
	if opts.PermissionMode != "" && !validModes[opts.PermissionMode] {
		return &ErrInvalidConfiguration{
			Field:  "PermissionMode",
			Reason: fmt.Sprintf("invalid permission mode: %s", opts.PermissionMode),
		}
	}

	if opts.SessionOptions.Resume != "" && opts.SessionOptions.ForkFrom != "" {
		return &ErrInvalidConfiguration{
			Field:  "SessionOptions",
			Reason: "cannot specify both Resume and ForkFrom",
		}
	}

	return nil
}
