package claudeagent

import (
	"context"
	"encoding/hex"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []Message
}

func (f *fakeWriter) Write(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeWriter) last() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

var requestIDPattern = regexp.MustCompile(`^req_\d+_[0-9a-f]{8}$`)

func TestNextRequestIDFormat(t *testing.T) {
	engine := NewControlEngine(&fakeWriter{}, zerolog.Nop())

	first := engine.nextRequestID()
	second := engine.nextRequestID()

	assert.Regexp(t, requestIDPattern, first)
	assert.Regexp(t, requestIDPattern, second)
	assert.NotEqual(t, first, second)

	_, err := hex.DecodeString(first[len(first)-8:])
	assert.NoError(t, err)
}

func TestControlEngineSendDeliverResponseRoundTrip(t *testing.T) {
	writer := &fakeWriter{}
	engine := NewControlEngine(writer, zerolog.Nop())

	resultCh := make(chan SDKControlResponseBody, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := engine.Send(context.Background(), SDKControlRequestBody{Subtype: "interrupt"})
		resultCh <- resp
		errCh <- err
	}()

	require.Eventually(t, func() bool { return writer.last() != nil }, time.Second, time.Millisecond)
	sent := writer.last().(SDKControlRequest)

	engine.DeliverResponse(SDKControlResponse{
		Type: "control_response",
		Response: SDKControlResponseBody{
			Subtype:   "success",
			RequestID: sent.RequestID,
			Response:  map[string]interface{}{"ok": true},
		},
	})

	resp := <-resultCh
	require.NoError(t, <-errCh)
	assert.Equal(t, true, resp.Response["ok"])
}

func TestControlEngineSendErrorResponse(t *testing.T) {
	writer := &fakeWriter{}
	engine := NewControlEngine(writer, zerolog.Nop())

	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Send(context.Background(), SDKControlRequestBody{Subtype: "interrupt"})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return writer.last() != nil }, time.Second, time.Millisecond)
	sent := writer.last().(SDKControlRequest)

	engine.DeliverResponse(SDKControlResponse{
		Response: SDKControlResponseBody{Subtype: "error", RequestID: sent.RequestID, Error: "boom"},
	})

	err := <-errCh
	var ctrlErr *ErrControlResponse
	require.ErrorAs(t, err, &ctrlErr)
	assert.Equal(t, "boom", ctrlErr.Message)
}

func TestControlEngineSendCancelsOnContextDone(t *testing.T) {
	writer := &fakeWriter{}
	engine := NewControlEngine(writer, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Send(ctx, SDKControlRequestBody{Subtype: "interrupt"})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return writer.last() != nil }, time.Second, time.Millisecond)
	cancel()

	err := <-errCh
	var cancelled *ErrControlCancelled
	assert.ErrorAs(t, err, &cancelled)

	require.Eventually(t, func() bool {
		_, ok := writer.last().(SDKControlCancelRequest)
		return ok
	}, time.Second, time.Millisecond)
}

func TestControlEngineSendTimesOutWithoutResponse(t *testing.T) {
	writer := &fakeWriter{}
	engine := NewControlEngine(writer, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := engine.Send(ctx, SDKControlRequestBody{Subtype: "interrupt"})
	var timedOut *ErrControlTimeout
	require.ErrorAs(t, err, &timedOut)

	engine.mu.Lock()
	_, stillPending := engine.pending[timedOut.RequestID]
	engine.mu.Unlock()
	assert.False(t, stillPending, "timed-out request should be removed from the pending map")
}

func TestControlEngineDeliverRequestUnknownSubtype(t *testing.T) {
	writer := &fakeWriter{}
	engine := NewControlEngine(writer, zerolog.Nop())

	engine.DeliverRequest(context.Background(), SDKControlRequest{
		RequestID: "req_1_aaaaaaaa",
		Request:   SDKControlRequestBody{Subtype: "mystery"},
	})

	resp := writer.last().(SDKControlResponse)
	assert.Equal(t, "error", resp.Response.Subtype)
	assert.Contains(t, resp.Response.Error, "mystery")
}

func TestControlEngineDeliverRequestDispatchesToHandler(t *testing.T) {
	writer := &fakeWriter{}
	engine := NewControlEngine(writer, zerolog.Nop())

	engine.RegisterHandler("ping", func(ctx context.Context, req SDKControlRequestBody) (map[string]interface{}, error) {
		return map[string]interface{}{"pong": true}, nil
	})

	engine.DeliverRequest(context.Background(), SDKControlRequest{
		RequestID: "req_2_bbbbbbbb",
		Request:   SDKControlRequestBody{Subtype: "ping"},
	})

	resp := writer.last().(SDKControlResponse)
	assert.Equal(t, "success", resp.Response.Subtype)
	assert.Equal(t, true, resp.Response.Response["pong"])
}

func TestControlEngineCloseFailsPendingCalls(t *testing.T) {
	writer := &fakeWriter{}
	engine := NewControlEngine(writer, zerolog.Nop())

	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Send(context.Background(), SDKControlRequestBody{Subtype: "interrupt"})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return writer.last() != nil }, time.Second, time.Millisecond)
	engine.Close()

	err := <-errCh
	var cancelled *ErrControlCancelled
	assert.ErrorAs(t, err, &cancelled)
}
