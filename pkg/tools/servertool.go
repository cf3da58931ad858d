package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ServerTool is a catalog entry for a single tool exposed by a tool server.
type ServerTool struct {
	Server    string
	Tool      string
	Desc      string
	RawSchema []byte // inputSchema JSON as received from the server
	Invoker   Invoker
}

func (s *ServerTool) Name() string { return QualifyName(s.Server, s.Tool) }

func (s *ServerTool) Description() string { return s.Desc }

func (s *ServerTool) InputSchema() map[string]any {
	if len(s.RawSchema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(s.RawSchema, &schema); err == nil {
			return schema
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (s *ServerTool) Execute(ctx context.Context, input map[string]any) (ToolOutput, error) {
	text, err := s.Invoker.Invoke(ctx, s.Server, s.Tool, input)
	if err != nil {
		// Per-call failures surface as short result strings the model can
		// react to, never as a process-ending error.
		return ToolOutput{
			Content: fmt.Sprintf("Error: %s", err),
			IsError: true,
		}, nil
	}
	return ToolOutput{Content: text}, nil
}
