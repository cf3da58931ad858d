package tools

import (
	"context"
	"fmt"
	"testing"
)

// stubInvoker returns canned results per server/tool pair.
type stubInvoker struct {
	results map[string]string // "server/tool" → text
	err     error
}

func (s *stubInvoker) Invoke(_ context.Context, serverName, toolName string, _ map[string]any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.results[serverName+"/"+toolName], nil
}

func TestQualifyName(t *testing.T) {
	cases := []struct {
		server, tool, want string
	}{
		{"memory", "search_nodes", "mcp_memory_search_nodes"},
		{"sequential-thinking", "think", "mcp_sequential_thinking_think"},
		{"a-b-c", "x", "mcp_a_b_c_x"},
	}
	for _, tc := range cases {
		if got := QualifyName(tc.server, tc.tool); got != tc.want {
			t.Errorf("QualifyName(%q, %q) = %q, want %q", tc.server, tc.tool, got, tc.want)
		}
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	inv := &stubInvoker{results: map[string]string{"echo/ping": "pong"}}

	r.RegisterServerTool("echo", "ping", "returns pong", []byte(`{}`), inv)

	tool, ok := r.Get("mcp_echo_ping")
	if !ok {
		t.Fatal("tool not resolvable by qualified name")
	}

	out, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Content != "pong" || out.IsError {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestRegistry_ExecuteErrorBecomesResult(t *testing.T) {
	r := NewRegistry()
	inv := &stubInvoker{err: fmt.Errorf("server not connected")}
	r.RegisterServerTool("echo", "ping", "", nil, inv)

	tool, _ := r.Get("mcp_echo_ping")
	out, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("invocation failures surface as results, not errors: %v", err)
	}
	if !out.IsError || out.Content != "Error: server not connected" {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestRegistry_UnregisterServerTools(t *testing.T) {
	r := NewRegistry()
	inv := &stubInvoker{}
	r.RegisterServerTool("memory", "search_nodes", "", nil, inv)
	r.RegisterServerTool("memory", "open_nodes", "", nil, inv)
	r.RegisterServerTool("other", "ping", "", nil, inv)

	r.UnregisterServerTools("memory")

	names := r.Names()
	if len(names) != 1 || names[0] != "mcp_other_ping" {
		t.Errorf("unexpected survivors: %v", names)
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	inv := &stubInvoker{}
	r.RegisterServerTool("zeta", "a", "", nil, inv)
	r.RegisterServerTool("alpha", "b", "", nil, inv)

	names := r.Names()
	if len(names) != 2 || names[0] != "mcp_alpha_b" || names[1] != "mcp_zeta_a" {
		t.Errorf("names not sorted: %v", names)
	}
}

func TestServerTool_SchemaFallback(t *testing.T) {
	st := &ServerTool{Server: "s", Tool: "t"}
	schema := st.InputSchema()
	if schema["type"] != "object" {
		t.Errorf("expected empty object schema fallback, got %v", schema)
	}

	st.RawSchema = []byte(`{"type":"object","properties":{"q":{"type":"string"}}}`)
	schema = st.InputSchema()
	props, _ := schema["properties"].(map[string]any)
	if _, ok := props["q"]; !ok {
		t.Errorf("schema not parsed: %v", schema)
	}
}

func TestDeclarations_Conversion(t *testing.T) {
	r := NewRegistry()
	inv := &stubInvoker{}
	schema := []byte(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "search query"},
			"limit": {"type": "integer"}
		},
		"required": ["query"]
	}`)
	r.RegisterServerTool("memory", "search_nodes", "search the graph", schema, inv)

	decls := r.Declarations()
	if len(decls) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(decls))
	}

	d := decls[0]
	if d.Name != "mcp_memory_search_nodes" {
		t.Errorf("got name %q", d.Name)
	}
	if d.Description != "[MCP:memory] search the graph" {
		t.Errorf("got description %q", d.Description)
	}
	if d.Parameters["type"] != "OBJECT" {
		t.Errorf("got parameters type %v", d.Parameters["type"])
	}

	props := d.Parameters["properties"].(map[string]any)
	query := props["query"].(map[string]any)
	if query["type"] != "STRING" || query["description"] != "search query" {
		t.Errorf("unexpected query property: %v", query)
	}
	limit := props["limit"].(map[string]any)
	if limit["type"] != "INTEGER" {
		t.Errorf("unexpected limit property: %v", limit)
	}
	// Property without a description falls back to its name.
	if limit["description"] != "limit" {
		t.Errorf("unexpected limit description: %v", limit["description"])
	}

	required := d.Parameters["required"].([]any)
	if len(required) != 1 || required[0] != "query" {
		t.Errorf("required not carried through: %v", required)
	}
}

func TestDeclarations_EmptyDescriptionUsesToolName(t *testing.T) {
	r := NewRegistry()
	r.RegisterServerTool("echo", "ping", "", nil, &stubInvoker{})

	decls := r.Declarations()
	if decls[0].Description != "[MCP:echo] ping" {
		t.Errorf("got %q", decls[0].Description)
	}
}

func TestPermitted(t *testing.T) {
	cases := []struct {
		name              string
		allowed, disabled []string
		want              bool
	}{
		{"search_nodes", nil, nil, true},
		{"delete_entities", nil, []string{"delete_*"}, false},
		{"search_nodes", []string{"search_*"}, nil, true},
		{"open_nodes", []string{"search_*"}, nil, false},
		{"search_nodes", []string{"search_*"}, []string{"search_nodes"}, false},
		{"exact", []string{"exact"}, nil, true},
	}
	for _, tc := range cases {
		if got := Permitted(tc.name, tc.allowed, tc.disabled); got != tc.want {
			t.Errorf("Permitted(%q, %v, %v) = %v, want %v", tc.name, tc.allowed, tc.disabled, got, tc.want)
		}
	}
}
