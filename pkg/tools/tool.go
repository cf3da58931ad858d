package tools

import "context"

// ToolOutput is the result of a tool execution.
type ToolOutput struct {
	Content string // text content for the tool result
	IsError bool   // when true, content is an error message
}

// Tool is the interface every catalog entry implements.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any // JSON Schema object for the tools array
	Execute(ctx context.Context, input map[string]any) (ToolOutput, error)
}

// Invoker dispatches a tool call to the server that owns it. Implemented by
// the connection manager.
type Invoker interface {
	Invoke(ctx context.Context, serverName, toolName string, args map[string]any) (string, error)
}
