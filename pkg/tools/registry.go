package tools

import (
	"sort"
	"strings"
	"sync"
)

// NamePrefix marks qualified tool-server tool names.
const NamePrefix = "mcp_"

// QualifyName flattens a server/tool pair into the single namespace the
// model sees. Dashes in server names become underscores.
func QualifyName(serverName, toolName string) string {
	return NamePrefix + strings.ReplaceAll(serverName, "-", "_") + "_" + toolName
}

// Registry holds the flat namespaced view of every available tool and
// resolves them by qualified name. Safe for concurrent use: catalog
// refreshes replace entries while callers resolve and execute.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry, replacing any previous entry with
// the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get retrieves a tool by qualified name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterServerTool adds one discovered server tool to the registry.
func (r *Registry) RegisterServerTool(serverName, toolName, description string, schema []byte, invoker Invoker) {
	r.Register(&ServerTool{
		Server:    serverName,
		Tool:      toolName,
		Desc:      description,
		RawSchema: schema,
		Invoker:   invoker,
	})
}

// UnregisterServerTools removes every tool belonging to a server.
func (r *Registry) UnregisterServerTools(serverName string) {
	prefix := NamePrefix + strings.ReplaceAll(serverName, "-", "_") + "_"

	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.tools {
		if strings.HasPrefix(name, prefix) {
			delete(r.tools, name)
		}
	}
}
