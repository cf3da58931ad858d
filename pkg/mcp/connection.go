package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ServerConnection manages the lifecycle and state of a single tool server
// process: spawn, handshake, request traffic, termination.
//
// State transitions are one-directional: Starting → Connected or Failed,
// Connected → Stopped. Failed is terminal; retry policy, if any, belongs to
// the Manager.
type ServerConnection struct {
	Name      string
	Config    ServerConfig
	Status    ConnectionStatus
	Info      *ServerInfo
	Tools     []ToolInfo
	Transport Transport
	ErrorMsg  string

	instanceID string // correlates log lines across this connection's lifetime
	log        *slog.Logger

	mu      sync.Mutex
	nextID  atomic.Int64
	stopped bool
}

// newServerConnection creates a connection in Starting state.
func newServerConnection(name string, config ServerConfig, logger *slog.Logger) *ServerConnection {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &ServerConnection{
		Name:       name,
		Config:     config,
		Status:     StatusStarting,
		instanceID: id,
		log:        logger.With("server", name, "conn", id[:8]),
	}
}

// connect spawns the process, verifies it survives the startup grace period,
// and runs the initialization handshake.
func (sc *ServerConnection) connect(ctx context.Context, tf transportFactory, opts connectOptions) error {
	sc.mu.Lock()
	transport, err := tf(sc.Config, sc.log)
	if err != nil {
		sc.Status = StatusFailed
		sc.ErrorMsg = err.Error()
		sc.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	sc.Transport = transport
	sc.mu.Unlock()

	// Detect immediate exit before attempting the handshake.
	if st, ok := transport.(*StdioTransport); ok {
		if err := st.waitReady(opts.spawnGrace); err != nil {
			sc.fail(err)
			transport.Close()
			return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
	}

	hctx, cancel := context.WithTimeout(ctx, opts.handshakeTimeout)
	defer cancel()
	return sc.runHandshake(hctx)
}

// runHandshake performs the initialize request / initialized notification
// exchange on an already-created transport. Separated from connect() so
// tests can drive it with injected mock transports.
func (sc *ServerConnection) runHandshake(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	transport := sc.Transport

	initParams := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      ClientInfo{Name: "atomd", Version: "0.1.0"},
	}
	resp, err := transport.Send(ctx, newRequest(sc.nextRequestID(), MethodInitialize, initParams))
	if err != nil {
		sc.failLocked(err)
		transport.Close()
		sc.Transport = nil
		return fmt.Errorf("%w: initialize: %v", ErrHandshakeFailed, err)
	}
	if resp.Error != nil {
		sc.failLocked(resp.Error)
		transport.Close()
		sc.Transport = nil
		return fmt.Errorf("%w: initialize error: %s", ErrHandshakeFailed, resp.Error.Message)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(resp.Result, &initResult); err != nil {
		sc.failLocked(err)
		transport.Close()
		sc.Transport = nil
		return fmt.Errorf("%w: parse initialize result: %v", ErrHandshakeFailed, err)
	}
	sc.Info = &initResult.ServerInfo

	if err := transport.Notify(ctx, MethodInitialized, nil); err != nil {
		sc.failLocked(err)
		transport.Close()
		sc.Transport = nil
		return fmt.Errorf("%w: send initialized: %v", ErrHandshakeFailed, err)
	}

	// Only after the initialized notification is the connection usable.
	sc.Status = StatusConnected
	sc.ErrorMsg = ""
	sc.log.Info("connected", "serverName", initResult.ServerInfo.Name, "serverVersion", initResult.ServerInfo.Version)
	return nil
}

// ListTools sends tools/list and returns the server's tool descriptors.
// Failures here are non-fatal to the rest of the system: callers log the
// error and carry on with an empty list.
func (sc *ServerConnection) ListTools(ctx context.Context) ([]ToolInfo, error) {
	transport, err := sc.liveTransport()
	if err != nil {
		return nil, err
	}

	resp, err := transport.Send(ctx, newRequest(sc.nextRequestID(), MethodToolsList, nil))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: tools/list on %s", ErrRequestTimeout, sc.Name)
		}
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ToolError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	var result ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parse tools/list result: %w", err)
	}

	sc.mu.Lock()
	sc.Tools = result.Tools
	sc.mu.Unlock()
	return result.Tools, nil
}

// CallTool sends tools/call and returns the concatenated text content of the
// result. A deadline miss returns ErrCallTimeout without killing the
// connection; a JSON-RPC error object becomes a ToolError.
func (sc *ServerConnection) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	transport, err := sc.liveTransport()
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}

	resp, err := transport.Send(ctx, newRequest(sc.nextRequestID(), MethodToolsCall, ToolCallParams{
		Name:      name,
		Arguments: args,
	}))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s on %s", ErrCallTimeout, name, sc.Name)
		}
		return "", err
	}
	if resp.Error != nil {
		return "", &ToolError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	var result ToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("parse tool result: %w", err)
	}

	var b strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(block.Text)
		}
	}
	if result.IsError {
		return "", &ToolError{Message: b.String()}
	}
	return b.String(), nil
}

// Stop terminates the connection: graceful signal, bounded wait, forceful
// kill. Stopping an already-stopped connection is a no-op.
func (sc *ServerConnection) Stop() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.stopped {
		return nil
	}
	sc.stopped = true
	sc.Status = StatusStopped

	if sc.Transport != nil {
		err := sc.Transport.Close()
		sc.Transport = nil
		sc.log.Info("stopped")
		return err
	}
	return nil
}

// liveTransport returns the transport if the connection is usable.
func (sc *ServerConnection) liveTransport() (Transport, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.Status != StatusConnected || sc.Transport == nil {
		return nil, fmt.Errorf("%w: %s", ErrServerNotConnected, sc.Name)
	}
	return sc.Transport, nil
}

func (sc *ServerConnection) fail(err error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.failLocked(err)
}

func (sc *ServerConnection) failLocked(err error) {
	sc.Status = StatusFailed
	sc.ErrorMsg = err.Error()
	sc.log.Warn("connection failed", "error", err)
}

func (sc *ServerConnection) nextRequestID() int {
	return int(sc.nextID.Add(1))
}

func (sc *ServerConnection) status() ServerStatus {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return ServerStatus{
		Name:       sc.Name,
		Status:     sc.Status,
		ServerInfo: sc.Info,
		Error:      sc.ErrorMsg,
		Tools:      sc.Tools,
	}
}
