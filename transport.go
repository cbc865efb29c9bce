package claudeagent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// TransportState tracks a Transport's lifecycle. Transitions are
// monotonic: Unstarted -> Running -> Terminating -> Terminated.
// Terminated is permanent.
type TransportState int32

const (
	TransportUnstarted TransportState = iota
	TransportRunning
	TransportTerminating
	TransportTerminated
)

// writerRef wraps an io.Writer for atomic storage.
type writerRef struct {
	w io.Writer
}

// Transport manages the Claude Code CLI subprocess lifecycle: spawning
// it with the right arguments, writing outbound frames to its stdin,
// and handing inbound frames from its stdout to a single attached
// consumer.
//
// Frames read from stdout before any consumer calls ReadFrames are
// buffered internally rather than dropped, so a slow-starting consumer
// still sees everything the CLI has sent.
type Transport struct {
	runner  SubprocessRunner
	options *Options
	cliPath string // set only when runner targets a real local executable

	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	state     atomic.Int32
	writeMu   sync.Mutex
	errLogger atomic.Pointer[writerRef]

	pumps errgroup.Group // pumpStderr + pumpFrames, joined on Close

	queueMu      sync.Mutex
	queueCnd     *sync.Cond
	queue        []Frame
	stdoutClosed bool
	attached     atomic.Bool

	reapOnce   sync.Once
	waitDone   chan struct{}
	processErr error // nil once reaped if the subprocess exited 0
}

// NewTransport creates a transport for the Claude CLI, discovering the
// CLI path from options or PATH. The transport is not connected until
// Connect is called.
func NewTransport(options *Options) (*Transport, error) {
	cliPath, err := DiscoverCLIPath(options)
	if err != nil {
		return nil, err
	}
	t := NewTransportWithRunner(NewLocalSubprocessRunner(cliPath), options)
	t.cliPath = cliPath
	return t, nil
}

// NewTransportWithRunner creates a transport with a custom subprocess
// runner, primarily for testing with MockSubprocessRunner.
func NewTransportWithRunner(runner SubprocessRunner, options *Options) *Transport {
	t := &Transport{
		runner:  runner,
		options: options,
	}
	t.queueCnd = sync.NewCond(&t.queueMu)
	t.errLogger.Store(&writerRef{w: io.Discard})
	t.waitDone = make(chan struct{})
	return t
}

// SetStderrLogger sets where CLI stderr output is forwarded. By
// default it is discarded. The writer must be safe for concurrent use,
// since it is written to from a background goroutine.
func (t *Transport) SetStderrLogger(w io.Writer) {
	t.errLogger.Store(&writerRef{w: w})
}

// State returns the transport's current lifecycle state.
func (t *Transport) State() TransportState {
	return TransportState(t.state.Load())
}

// Connect spawns the Claude CLI subprocess with arguments derived from
// options and starts the background frame reader.
func (t *Transport) Connect(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(TransportUnstarted), int32(TransportRunning)) {
		return &ErrTransportClosed{}
	}

	args := t.buildArgs()
	env := t.buildEnv()

	var stdin io.WriteCloser
	var stdout, stderr io.ReadCloser

	// The version check is an independent subprocess invocation, so it
	// runs concurrently with spawning the session's own CLI process
	// rather than serialized in front of it.
	var startGroup errgroup.Group
	if t.cliPath != "" {
		startGroup.Go(func() error { return ValidateCLIVersion(t.cliPath) })
	}
	startGroup.Go(func() error {
		var startErr error
		stdin, stdout, stderr, startErr = t.runner.Start(ctx, args, env, t.options.Cwd)
		return startErr
	})
	if err := startGroup.Wait(); err != nil {
		t.state.Store(int32(TransportTerminated))
		return &ErrSubprocessFailed{Cause: err}
	}

	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr

	t.pumps.Go(func() error { t.pumpStderr(stderr); return nil })
	t.pumps.Go(func() error { t.pumpFrames(stdout); return nil })

	return nil
}

func (t *Transport) buildArgs() []string {
	o := t.options

	args := []string{
		"--output-format", "stream-json",
		"--verbose",
		"--input-format", "stream-json",
	}

	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.SystemPrompt != "" {
		args = append(args, "--system-prompt", o.SystemPrompt)
	}
	if o.PermissionMode != "" {
		args = append(args, "--permission-mode", string(o.PermissionMode))
	}
	if o.AllowDangerouslySkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if o.CanUseTool != nil {
		args = append(args, "--permission-prompt-tool", "stdio")
	}
	if len(o.SettingSources) > 0 {
		sources := make([]string, len(o.SettingSources))
		for i, s := range o.SettingSources {
			sources[i] = string(s)
		}
		args = append(args, "--setting-sources", joinStrings(sources, ","))
	}

	for name, config := range o.MCPServers {
		mcpConfig := map[string]interface{}{"command": config.Command}
		if len(config.Args) > 0 {
			mcpConfig["args"] = config.Args
		}
		if len(config.Env) > 0 {
			mcpConfig["env"] = config.Env
		}
		wrapper := map[string]interface{}{
			"mcpServers": map[string]interface{}{name: mcpConfig},
		}
		if jsonBytes, err := json.Marshal(wrapper); err == nil {
			args = append(args, "--mcp-config", string(jsonBytes))
		}
	}

	if o.StrictMCPConfig {
		args = append(args, "--strict-mcp-config")
	}
	if o.NoSessionPersistence {
		args = append(args, "--no-session-persistence")
	}
	if o.SessionOptions.Resume != "" {
		args = append(args, "--resume", o.SessionOptions.Resume)
	}
	if o.SessionOptions.ForkSession {
		args = append(args, "--fork-session")
	}
	if o.MaxTurns != nil {
		args = append(args, "--max-turns", fmt.Sprintf("%d", *o.MaxTurns))
	}
	if len(o.Betas) > 0 {
		args = append(args, "--betas", joinStrings(o.Betas, ","))
	}

	return args
}

func (t *Transport) buildEnv() []string {
	env := os.Environ()
	for k, v := range t.options.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	env = append(env,
		"CLAUDE_CODE_ENTRYPOINT=sdk-go",
		"CLAUDE_AGENT_SDK_VERSION=0.1.0",
	)
	if t.options.ConfigDir != "" {
		env = append(env, "CLAUDE_CONFIG_DIR="+t.options.ConfigDir)
	}
	return env
}

func joinStrings(vals []string, sep string) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += sep
		}
		out += v
	}
	return out
}

// pumpStderr forwards CLI stderr lines to the configured logger.
func (t *Transport) pumpStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if ref := t.errLogger.Load(); ref != nil && ref.w != nil {
			fmt.Fprintln(ref.w, scanner.Text())
		}
	}
}

// pumpFrames reads stdout, feeds it to a FrameParser, and appends the
// resulting frames to the internal queue, waking any blocked consumer.
// It runs for the lifetime of the subprocess, independent of whether a
// consumer has attached yet, so no frame is lost to a slow start.
func (t *Transport) pumpFrames(stdout io.ReadCloser) {
	parser := NewFrameParser()
	reader := bufio.NewReader(stdout)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			frames := parser.Feed(line)
			if len(frames) > 0 {
				t.queueMu.Lock()
				t.queue = append(t.queue, frames...)
				t.queueCnd.Broadcast()
				t.queueMu.Unlock()
			}
		}
		if err != nil {
			t.queueMu.Lock()
			t.stdoutClosed = true
			t.queueCnd.Broadcast()
			t.queueMu.Unlock()
			// The CLI closing stdout means it has exited or is about
			// to; reap it so a self-triggered exit surfaces the same
			// ErrProcessTerminated a Close()-driven shutdown would.
			t.reap()
			return
		}
	}
}

// reap blocks until the subprocess exits and records the outcome,
// exactly once regardless of how many callers invoke it concurrently
// (pumpFrames on stdout EOF, Close on host-initiated shutdown).
func (t *Transport) reap() {
	t.reapOnce.Do(func() {
		err := t.runner.Wait()
		t.queueMu.Lock()
		t.processErr = err
		t.queueCnd.Broadcast()
		t.queueMu.Unlock()
		close(t.waitDone)
	})
}

// exitTerminationError translates a SubprocessRunner.Wait error into the
// ErrProcessTerminated shape the spec's error taxonomy calls for, or nil
// for a clean (exit code 0) termination.
func exitTerminationError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ErrProcessTerminated{Code: exitErr.ExitCode()}
	}
	return &ErrProcessTerminated{Code: -1}
}

// Write sends a message to the CLI stdin as a single JSON line. Writes
// are serialized so concurrent callers never interleave partial lines.
func (t *Transport) Write(ctx context.Context, msg Message) error {
	if t.State() != TransportRunning {
		return &ErrTransportClosed{}
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	done := make(chan error, 1)
	go func() {
		_, err := t.stdin.Write(data)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// ReadFrames returns an iterator over frames read from the CLI. It may
// be called at most once per transport; a second call returns a stream
// that yields ErrTransportAlreadyAttached (which unwraps to
// ErrTransportClosed) immediately rather than racing the first consumer
// for frames.
func (t *Transport) ReadFrames(ctx context.Context) iter.Seq2[Frame, error] {
	if !t.attached.CompareAndSwap(false, true) {
		return func(yield func(Frame, error) bool) {
			yield(Frame{}, &ErrTransportAlreadyAttached{})
		}
	}

	return func(yield func(Frame, error) bool) {
		for {
			t.queueMu.Lock()
			for len(t.queue) == 0 && !t.terminalLocked() {
				done := make(chan struct{})
				go func() {
					select {
					case <-ctx.Done():
						t.queueCnd.Broadcast()
					case <-done:
					}
				}()
				t.queueCnd.Wait()
				close(done)

				if ctx.Err() != nil {
					t.queueMu.Unlock()
					return
				}
			}

			if len(t.queue) == 0 {
				termErr := exitTerminationError(t.processErr)
				t.queueMu.Unlock()
				if termErr != nil {
					yield(Frame{}, termErr)
				}
				return
			}

			frame := t.queue[0]
			t.queue = t.queue[1:]
			t.queueMu.Unlock()

			if !yield(frame, nil) {
				return
			}
		}
	}
}

// terminalLocked reports whether the transport has reached a state
// where ReadFrames can stop waiting for more frames: stdout is closed
// and the subprocess has been reaped. Callers must hold queueMu.
func (t *Transport) terminalLocked() bool {
	select {
	case <-t.waitDone:
		return t.stdoutClosed
	default:
		return false
	}
}

// Close terminates the CLI subprocess. It first attempts a graceful
// shutdown by closing stdin, giving the process 5 seconds to exit
// before force-killing it.
func (t *Transport) Close() error {
	prev := t.state.Swap(int32(TransportTerminating))
	if prev == int32(TransportTerminated) {
		t.state.Store(int32(TransportTerminated))
		return nil
	}

	if t.stdin != nil {
		t.stdin.Close()
	}

	if t.runner != nil {
		go t.reap()

		select {
		case <-t.waitDone:
		case <-time.After(5 * time.Second):
			_ = t.runner.Kill()
			<-t.waitDone
		}
	}

	if t.stdout != nil {
		t.stdout.Close()
	}
	if t.stderr != nil {
		t.stderr.Close()
	}

	// Closing the pipes above unblocks both pump goroutines; join them so
	// Close doesn't return while a pump is still touching t.queue.
	_ = t.pumps.Wait()

	t.state.Store(int32(TransportTerminated))

	t.queueMu.Lock()
	t.queueCnd.Broadcast()
	t.queueMu.Unlock()

	return nil
}

// IsAlive reports whether the subprocess is still running.
func (t *Transport) IsAlive() bool {
	if t.State() != TransportRunning {
		return false
	}
	if t.runner == nil {
		return false
	}
	return t.runner.IsAlive()
}
