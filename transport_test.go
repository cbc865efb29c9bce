package claudeagent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T) (*Transport, *MockSubprocessRunner) {
	t.Helper()
	runner := NewMockSubprocessRunner()
	opts := &Options{Model: "claude-sonnet-4-5-20250929"}
	transport := NewTransportWithRunner(runner, opts)
	require.NoError(t, transport.Connect(context.Background()))
	return transport, runner
}

func TestTransportReadFramesBasic(t *testing.T) {
	transport, runner := newTestTransport(t)
	defer transport.Close()

	require.NoError(t, runner.StdoutPipe.WriteString(`{"type":"keep_alive"}`+"\n"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for frame, err := range transport.ReadFrames(ctx) {
		require.NoError(t, err)
		assert.Equal(t, FrameKeepAlive, frame.Kind)
		return
	}
	t.Fatal("expected a frame")
}

func TestTransportReadFramesBuffersBeforeAttach(t *testing.T) {
	transport, runner := newTestTransport(t)
	defer transport.Close()

	require.NoError(t, runner.StdoutPipe.WriteString(`{"type":"keep_alive"}`+"\n"))
	time.Sleep(50 * time.Millisecond) // let pumpFrames consume it into the queue

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := 0
	for frame, err := range transport.ReadFrames(ctx) {
		require.NoError(t, err)
		assert.Equal(t, FrameKeepAlive, frame.Kind)
		got++
		return
	}
	assert.Equal(t, 1, got)
}

func TestTransportReadFramesAttachOnce(t *testing.T) {
	transport, _ := newTestTransport(t)
	defer transport.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := transport.ReadFrames(ctx)
	go func() {
		for range first {
		}
	}()
	time.Sleep(10 * time.Millisecond)

	second := transport.ReadFrames(ctx)
	for _, err := range second {
		var already *ErrTransportAlreadyAttached
		assert.ErrorAs(t, err, &already)
		return
	}
	t.Fatal("expected ErrTransportAlreadyAttached")
}

func TestTransportWriteWritesNewlineDelimitedJSON(t *testing.T) {
	transport, runner := newTestTransport(t)
	defer transport.Close()

	err := transport.Write(context.Background(), KeepAliveMessage{Type: "keep_alive"})
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := runner.StdinPipe.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `"type":"keep_alive"`)
	assert.Equal(t, byte('\n'), buf[n-1])
}

func TestTransportWriteAfterCloseFails(t *testing.T) {
	transport, _ := newTestTransport(t)
	require.NoError(t, transport.Close())

	err := transport.Write(context.Background(), KeepAliveMessage{Type: "keep_alive"})
	var closed *ErrTransportClosed
	assert.ErrorAs(t, err, &closed)
}

func TestTransportIsAliveTracksRunnerState(t *testing.T) {
	transport, runner := newTestTransport(t)
	assert.True(t, transport.IsAlive())

	runner.Exit(nil)
	require.NoError(t, transport.Close())
	assert.False(t, transport.IsAlive())
}

func TestTransportReadFramesSurfacesProcessTerminatedOnNonzeroExit(t *testing.T) {
	transport, runner := newTestTransport(t)
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	framesCh := transport.ReadFrames(ctx)
	errCh := make(chan error, 1)
	go func() {
		for _, err := range framesCh {
			if err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	runner.Exit(errors.New("exit status 1"))

	select {
	case err := <-errCh:
		var terminated *ErrProcessTerminated
		require.ErrorAs(t, err, &terminated)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ProcessTerminated")
	}
}

func TestTransportReadFramesCleanExitProducesNoError(t *testing.T) {
	transport, runner := newTestTransport(t)
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	framesCh := transport.ReadFrames(ctx)
	errCh := make(chan error, 1)
	go func() {
		var lastErr error
		for _, err := range framesCh {
			lastErr = err
		}
		errCh <- lastErr
	}()

	runner.Exit(nil)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for clean finish")
	}
}

func TestTransportStateMachineMonotonic(t *testing.T) {
	transport, _ := newTestTransport(t)
	assert.Equal(t, TransportRunning, transport.State())

	require.NoError(t, transport.Close())
	assert.Equal(t, TransportTerminated, transport.State())

	// Closing again is a no-op and must not regress the state.
	require.NoError(t, transport.Close())
	assert.Equal(t, TransportTerminated, transport.State())
}
