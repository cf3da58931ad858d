package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const stderrTailLimit = 4 * 1024 // retained for spawn-failure reporting

// StdioTransport communicates with a tool server via stdin/stdout of a
// spawned child process. Frames are newline-delimited JSON-RPC; a dedicated
// reader goroutine dispatches responses to pending calls by request id.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	log    *slog.Logger

	writeMu sync.Mutex // serializes writes to stdin, preserving wire order

	pending map[int]chan JSONRPCResponse
	pendMu  sync.Mutex

	stderrMu   sync.Mutex
	stderrTail bytes.Buffer

	exited    chan struct{} // closed when the child process exits
	done      chan struct{} // closed when the reader goroutine exits
	closeOnce sync.Once
	stopGrace time.Duration
}

// NewStdioTransport spawns a child process and returns a transport that
// communicates via JSON-RPC over its stdin/stdout. The process inherits the
// parent environment plus any additional env vars specified. Its stderr is
// drained line-by-line into the logger.
func NewStdioTransport(command string, args []string, env map[string]string, logger *slog.Logger) (*StdioTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(command, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	t := &StdioTransport{
		cmd:       cmd,
		stdin:     stdinPipe,
		stdout:    stdoutPipe,
		log:       logger,
		pending:   make(map[int]chan JSONRPCResponse),
		exited:    make(chan struct{}),
		done:      make(chan struct{}),
		stopGrace: 5 * time.Second,
	}

	go t.drainStderr(stderrPipe)
	go func() {
		cmd.Wait()
		close(t.exited)
	}()
	go t.readLoop()

	return t, nil
}

// waitReady blocks for the grace period and reports whether the process
// survived it. If the process exited immediately, the buffered stderr tail is
// returned in the error.
func (t *StdioTransport) waitReady(grace time.Duration) error {
	select {
	case <-t.exited:
		return fmt.Errorf("process exited during startup: %s", t.stderrText())
	case <-time.After(grace):
		return nil
	}
}

// drainStderr logs every stderr line and retains a capped tail for error
// reporting. Stderr content never affects the connection.
func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 16*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		t.stderrMu.Lock()
		if t.stderrTail.Len() < stderrTailLimit {
			t.stderrTail.WriteString(line)
			t.stderrTail.WriteByte('\n')
		}
		t.stderrMu.Unlock()
		t.log.Debug("server stderr", "line", line)
	}
}

func (t *StdioTransport) stderrText() string {
	t.stderrMu.Lock()
	defer t.stderrMu.Unlock()
	return t.stderrTail.String()
}

// readLoop decodes frames from stdout and dispatches responses to pending
// calls. Malformed lines and unmatched frames are logged and skipped; the
// loop never crashes on bad input.
func (t *StdioTransport) readLoop() {
	defer close(t.done)

	scanner := bufio.NewScanner(t.stdout)
	// Allow large JSON payloads (1 MB)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp, err := DecodeFrame(line)
		if err != nil {
			t.log.Warn("dropping unparseable frame", "error", err)
			continue
		}
		if resp.IsNotification() {
			// Out-of-band server notification; nothing waits for these.
			t.log.Debug("discarding notification", "method", resp.Method)
			continue
		}

		t.pendMu.Lock()
		ch, ok := t.pending[*resp.ID]
		if ok {
			delete(t.pending, *resp.ID)
		}
		t.pendMu.Unlock()

		if !ok {
			// Late frame for an abandoned request.
			t.log.Debug("discarding unmatched response", "id", *resp.ID)
			continue
		}
		ch <- resp
	}
}

// Send writes a JSON-RPC request to stdin and waits for the correlated
// response, the context deadline, or transport death, whichever comes first.
// A timed-out call unregisters itself; if its response arrives later the
// reader loop discards it, so the connection stays usable.
func (t *StdioTransport) Send(ctx context.Context, req JSONRPCRequest) (JSONRPCResponse, error) {
	if req.ID == nil {
		return JSONRPCResponse{}, fmt.Errorf("Send requires a request with an ID; use Notify for notifications")
	}
	id := *req.ID

	// Register the pending channel before writing to avoid a race with the reader.
	ch := make(chan JSONRPCResponse, 1)
	t.pendMu.Lock()
	t.pending[id] = ch
	t.pendMu.Unlock()

	unregister := func() {
		t.pendMu.Lock()
		delete(t.pending, id)
		t.pendMu.Unlock()
	}

	data, err := EncodeFrame(req)
	if err != nil {
		unregister()
		return JSONRPCResponse{}, err
	}

	t.writeMu.Lock()
	_, writeErr := t.stdin.Write(data)
	t.writeMu.Unlock()

	if writeErr != nil {
		unregister()
		return JSONRPCResponse{}, fmt.Errorf("write to stdin: %w", writeErr)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		unregister()
		return JSONRPCResponse{}, ctx.Err()
	case <-t.done:
		unregister()
		return JSONRPCResponse{}, fmt.Errorf("transport closed: %s", t.stderrText())
	}
}

// Notify writes a JSON-RPC notification (no ID, no response expected).
func (t *StdioTransport) Notify(_ context.Context, method string, params any) error {
	data, err := EncodeFrame(newNotification(method, params))
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// Close terminates the child process: close stdin, SIGTERM, bounded wait,
// then SIGKILL. Idempotent.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.stdin.Close()

		if t.cmd.Process != nil {
			_ = t.cmd.Process.Signal(syscall.SIGTERM)
		}

		select {
		case <-t.exited:
		case <-time.After(t.stopGrace):
			if t.cmd.Process != nil {
				_ = t.cmd.Process.Kill()
			}
			<-t.exited
		}

		// Wait for the reader to finish draining stdout.
		<-t.done
	})
	return nil
}
