package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// mockTransport implements Transport with pre-programmed responses.
type mockTransport struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage // method → result JSON
	errors    map[string]*JSONRPCError   // method → error object
	delays    map[string]time.Duration   // method → artificial latency
	closed    bool
	notified  []string // methods that were notified
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		responses: make(map[string]json.RawMessage),
		errors:    make(map[string]*JSONRPCError),
		delays:    make(map[string]time.Duration),
	}
}

// withInitialize configures the mock to complete the handshake.
func (m *mockTransport) withInitialize() *mockTransport {
	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: "mock-server", Version: "1.0"},
	}
	data, _ := json.Marshal(result)
	m.responses[MethodInitialize] = data
	return m
}

// withTools configures the mock to respond to tools/list with the given tools.
func (m *mockTransport) withTools(tools []ToolInfo) *mockTransport {
	result := ToolsListResult{Tools: tools}
	data, _ := json.Marshal(result)
	m.responses[MethodToolsList] = data
	return m
}

// withToolCall configures the mock to respond to tools/call with the given result.
func (m *mockTransport) withToolCall(result ToolResult) *mockTransport {
	data, _ := json.Marshal(result)
	m.responses[MethodToolsCall] = data
	return m
}

// withError configures a JSON-RPC error object for a method.
func (m *mockTransport) withError(method string, code int, message string) *mockTransport {
	m.errors[method] = &JSONRPCError{Code: code, Message: message}
	return m
}

// withDelay makes a method block for the given duration (or until the
// caller's context expires).
func (m *mockTransport) withDelay(method string, d time.Duration) *mockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[method] = d
	return m
}

func (m *mockTransport) clearDelay(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.delays, method)
}

func (m *mockTransport) Send(ctx context.Context, req JSONRPCRequest) (JSONRPCResponse, error) {
	m.mu.Lock()
	delay := m.delays[req.Method]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return JSONRPCResponse{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return JSONRPCResponse{}, fmt.Errorf("transport closed")
	}

	id := 0
	if req.ID != nil {
		id = *req.ID
	}

	if rpcErr, ok := m.errors[req.Method]; ok {
		return JSONRPCResponse{JSONRPC: "2.0", ID: &id, Error: rpcErr}, nil
	}

	result, ok := m.responses[req.Method]
	if !ok {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      &id,
			Error:   &JSONRPCError{Code: -32601, Message: "Method not found: " + req.Method},
		}, nil
	}

	return JSONRPCResponse{JSONRPC: "2.0", ID: &id, Result: result}, nil
}

func (m *mockTransport) Notify(_ context.Context, method string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("transport closed")
	}
	m.notified = append(m.notified, method)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// pongTransport builds a mock that handshakes and serves one "ping" tool
// returning "pong".
func pongTransport() *mockTransport {
	return newMockTransport().
		withInitialize().
		withTools([]ToolInfo{{Name: "ping", Description: "returns pong", InputSchema: json.RawMessage(`{}`)}}).
		withToolCall(ToolResult{Content: []ContentBlock{{Type: "text", Text: "pong"}}})
}

// mockFactory returns a transport factory serving pong mocks. The
// "missing-binary" command simulates a spawn failure.
func mockFactory() transportFactory {
	return func(cfg ServerConfig, _ *slog.Logger) (Transport, error) {
		if cfg.Command == "missing-binary" {
			return nil, fmt.Errorf("exec %q: no such file or directory", cfg.Command)
		}
		return pongTransport(), nil
	}
}

// connectedConn builds a ServerConnection in Connected state over the given
// mock transport.
func connectedConn(name string, transport Transport) (*ServerConnection, error) {
	conn := newServerConnection(name, ServerConfig{Command: "mock"}, slog.Default())
	conn.Transport = transport
	if err := conn.runHandshake(context.Background()); err != nil {
		return nil, err
	}
	return conn, nil
}
