package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawnFailed means the server process could not start or exited
	// during the startup grace period.
	ErrSpawnFailed = errors.New("server process failed to start")

	// ErrHandshakeFailed means the initialize/initialized exchange did not complete.
	ErrHandshakeFailed = errors.New("initialize handshake failed")

	// ErrMalformedFrame means a line could not be parsed as a JSON-RPC message.
	ErrMalformedFrame = errors.New("malformed JSON-RPC frame")

	// ErrRequestTimeout means no response arrived within the request deadline.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrCallTimeout means a tool call exceeded its deadline. The connection
	// survives and remains usable for subsequent calls.
	ErrCallTimeout = errors.New("tool call timed out")

	// ErrServerNotConnected means a qualified tool name resolved to no live connection.
	ErrServerNotConnected = errors.New("server not connected")

	// ErrConfigParse means the configuration file is not valid JSON/YAML or
	// is missing required fields.
	ErrConfigParse = errors.New("config parse error")
)

// ToolError is a JSON-RPC error object returned by a tool server in place of
// a result.
type ToolError struct {
	Code    int
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error %d: %s", e.Code, e.Message)
}
