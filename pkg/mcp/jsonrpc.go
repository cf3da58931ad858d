package mcp

import (
	"encoding/json"
	"fmt"
)

// JSONRPCRequest is a JSON-RPC 2.0 request message.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int   `json:"id,omitempty"` // nil for notifications
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response or server-initiated notification.
// Notifications carry a Method and no ID.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// IsNotification reports whether the message is a server-initiated
// notification rather than a response to one of our requests.
func (r *JSONRPCResponse) IsNotification() bool { return r.ID == nil }

// JSONRPCError is the error object in a JSON-RPC 2.0 response.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string { return e.Message }

// EncodeFrame serializes a JSON-RPC message as one newline-terminated frame.
// Message boundaries are newlines: no batching, no length prefix.
func EncodeFrame(req JSONRPCRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeFrame parses one frame back into a response or notification. A parse
// failure yields ErrMalformedFrame so the reader loop can log and continue.
func DecodeFrame(line []byte) (JSONRPCResponse, error) {
	var resp JSONRPCResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return JSONRPCResponse{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return resp, nil
}

// newRequest creates a JSON-RPC 2.0 request with the given ID, method, and params.
func newRequest(id int, method string, params any) JSONRPCRequest {
	return JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
		Params:  params,
	}
}

// newNotification creates a JSON-RPC 2.0 notification (no ID, no response expected).
func newNotification(method string, params any) JSONRPCRequest {
	return JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}
