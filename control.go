package claudeagent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FrameWriter is the minimal interface ControlEngine needs to emit
// frames; Transport satisfies it.
type FrameWriter interface {
	Write(ctx context.Context, msg Message) error
}

// InboundHandler answers one inbound control request subtype. Handlers
// are registered by the hook registry, permission bridge, and tool
// router, each owning a disjoint set of subtypes.
type InboundHandler func(ctx context.Context, req SDKControlRequestBody) (map[string]interface{}, error)

// pendingCall tracks an outbound control request awaiting its response.
type pendingCall struct {
	resultCh chan controlOutcome
}

type controlOutcome struct {
	body SDKControlResponseBody
	err  error
}

// ControlEngine mints and correlates control_request/control_response
// envelopes over a Transport, and dispatches inbound control requests
// (can_use_tool, hook_callback, mcp_message, ...) to registered
// handlers keyed by subtype.
//
// Every outbound request gets an ID of the form req_{counter}_{hex8}:
// the counter guarantees ordering within a process, the random suffix
// keeps IDs from colliding across concurrent SDK instances sharing a
// log stream.
type ControlEngine struct {
	writer FrameWriter
	logger zerolog.Logger

	counter atomic.Uint64

	mu      sync.Mutex
	pending map[string]*pendingCall

	handlersMu sync.RWMutex
	handlers   map[string]InboundHandler
}

// NewControlEngine creates a control engine that writes outbound frames
// through writer and logs protocol diagnostics to logger.
func NewControlEngine(writer FrameWriter, logger zerolog.Logger) *ControlEngine {
	return &ControlEngine{
		writer:   writer,
		logger:   logger,
		pending:  make(map[string]*pendingCall),
		handlers: make(map[string]InboundHandler),
	}
}

// RegisterHandler installs the handler responsible for inbound control
// requests of the given subtype, e.g. "can_use_tool". Registering the
// same subtype twice replaces the previous handler.
func (c *ControlEngine) RegisterHandler(subtype string, handler InboundHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[subtype] = handler
}

// nextRequestID mints a new, process-unique control request ID.
func (c *ControlEngine) nextRequestID() string {
	n := c.counter.Add(1)

	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back
		// to the counter alone rather than panicking mid-request.
		return fmt.Sprintf("req_%d", n)
	}
	return fmt.Sprintf("req_%d_%s", n, hex.EncodeToString(suffix[:]))
}

// Send issues an outbound control request and blocks until a matching
// control_response arrives, ctx is cancelled, or the engine is closed.
func (c *ControlEngine) Send(ctx context.Context, body SDKControlRequestBody) (SDKControlResponseBody, error) {
	id := c.nextRequestID()
	call := &pendingCall{resultCh: make(chan controlOutcome, 1)}

	c.mu.Lock()
	c.pending[id] = call
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := SDKControlRequest{
		Type:      "control_request",
		RequestID: id,
		Request:   body,
	}
	if err := c.writer.Write(ctx, req); err != nil {
		return SDKControlResponseBody{}, err
	}

	select {
	case outcome := <-call.resultCh:
		if outcome.err != nil {
			return SDKControlResponseBody{}, outcome.err
		}
		return outcome.body, nil
	case <-ctx.Done():
		cancel := SDKControlCancelRequest{Type: "control_cancel_request", RequestID: id}
		_ = c.writer.Write(context.Background(), cancel)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return SDKControlResponseBody{}, &ErrControlTimeout{RequestID: id}
		}
		return SDKControlResponseBody{}, &ErrControlCancelled{RequestID: id}
	}
}

// DeliverResponse routes a control_response frame to the Send call
// awaiting it. A response with no matching pending request is logged
// and dropped - the CLI may legitimately respond after a Send's caller
// gave up and cancelled.
func (c *ControlEngine) DeliverResponse(resp SDKControlResponse) {
	id := resp.Response.RequestID

	c.mu.Lock()
	call, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug().Str("request_id", id).Msg("control response for unknown request")
		return
	}

	outcome := controlOutcome{body: resp.Response}
	if resp.Response.Subtype == "error" {
		outcome.err = &ErrControlResponse{RequestID: id, Message: resp.Response.Error}
	}

	select {
	case call.resultCh <- outcome:
	default:
	}
}

// DeliverCancel handles a control_cancel_request arriving from the CLI.
// If it names an outbound request still awaiting its response, that
// Send call is released with ErrControlCancelled; a cancel for any other
// id is logged and otherwise ignored.
func (c *ControlEngine) DeliverCancel(cancel SDKControlCancelRequest) {
	c.mu.Lock()
	call, ok := c.pending[cancel.RequestID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug().Str("request_id", cancel.RequestID).Msg("control cancel for unknown request")
		return
	}

	select {
	case call.resultCh <- controlOutcome{err: &ErrControlCancelled{RequestID: cancel.RequestID}}:
	default:
	}
}

// DeliverRequest dispatches an inbound control_request to the handler
// registered for its subtype and writes back a control_response. An
// unrecognized subtype produces an error response rather than a panic
// or a dropped frame, per the protocol's obligation to always answer.
func (c *ControlEngine) DeliverRequest(ctx context.Context, req SDKControlRequest) {
	subtype := req.Request.Subtype

	c.handlersMu.RLock()
	handler, ok := c.handlers[subtype]
	c.handlersMu.RUnlock()

	var respBody SDKControlResponseBody
	respBody.RequestID = req.RequestID

	if !ok {
		err := &ErrUnknownSubtype{Subtype: subtype}
		c.logger.Warn().Str("subtype", subtype).Msg("no handler registered for control request subtype")
		respBody.Subtype = "error"
		respBody.Error = err.Error()
	} else {
		result, err := handler(ctx, req.Request)
		if err != nil {
			respBody.Subtype = "error"
			respBody.Error = err.Error()
		} else {
			respBody.Subtype = "success"
			respBody.Response = result
		}
	}

	resp := SDKControlResponse{Type: "control_response", Response: respBody}
	if err := c.writer.Write(ctx, resp); err != nil {
		c.logger.Error().Err(err).Str("request_id", req.RequestID).Msg("failed to write control response")
	}
}

// Close releases every outstanding Send call with ErrControlCancelled, so
// callers blocked awaiting a response don't hang forever once the
// underlying transport has gone away.
func (c *ControlEngine) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, call := range c.pending {
		select {
		case call.resultCh <- controlOutcome{err: &ErrControlCancelled{RequestID: id}}:
		default:
		}
		delete(c.pending, id)
	}
}

// marshalPayload is a small helper used by handlers to turn a decoded
// request field back into json.RawMessage for further typed decoding.
func marshalPayload(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}

// waitWithTimeout runs fn, returning ErrHookCallbackTimeout-shaped
// behavior if it does not complete within d. Used by the hook registry
// to bound callback execution.
func waitWithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(cctx)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return cctx.Err()
	}
}
