package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/atomikhq/atomd/pkg/tools"
)

// transportFactory creates the transport for a server definition. Swapped
// out in tests to drive connections with mock transports.
type transportFactory func(cfg ServerConfig, logger *slog.Logger) (Transport, error)

type connectOptions struct {
	spawnGrace       time.Duration
	handshakeTimeout time.Duration
}

// Manager owns the full set of tool-server connections: config-driven
// startup, qualified-name tool dispatch, catalog maintenance, and shutdown.
// Construct one explicitly and hand it to whatever dispatches tool calls;
// there is no process-wide instance.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*ServerConnection

	bridges  *bridgeSet
	registry *tools.Registry
	cache    *ToolCache
	log      *slog.Logger

	newTransport transportFactory

	spawnGrace       time.Duration
	handshakeTimeout time.Duration
	listTimeout      time.Duration
	callTimeout      time.Duration
	bridgeSettle     time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured log sink.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.log = logger }
}

// WithRegistry registers discovered tools into the given registry so the
// AI-provider schema builder can see them.
func WithRegistry(r *tools.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithCatalogCache persists discovered tool descriptors so declarations
// survive slow server startups.
func WithCatalogCache(c *ToolCache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithCallTimeout overrides the default tool-call deadline. The default is
// deliberately long (minutes) to accommodate slow external tools.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) { m.callTimeout = d }
}

// WithBridgeSettle overrides how long ConnectAll waits after starting a
// bridge before connecting the server that depends on it.
func WithBridgeSettle(d time.Duration) Option {
	return func(m *Manager) { m.bridgeSettle = d }
}

// NewManager creates a Manager with no connections.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		servers:          make(map[string]*ServerConnection),
		log:              slog.Default(),
		spawnGrace:       time.Second,
		handshakeTimeout: 10 * time.Second,
		listTimeout:      5 * time.Second,
		callTimeout:      20 * time.Minute,
		bridgeSettle:     3 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bridges = newBridgeSet(m.log)
	m.newTransport = func(cfg ServerConfig, logger *slog.Logger) (Transport, error) {
		return NewStdioTransport(cfg.Command, cfg.Args, cfg.Env, logger)
	}
	return m
}

// Connect establishes a connection to one server and fills its catalog
// entries. Failed connections are kept for status reporting but excluded
// from dispatch and discovery.
func (m *Manager) Connect(ctx context.Context, name string, config ServerConfig) error {
	conn := newServerConnection(name, config, m.log)

	err := conn.connect(ctx, m.newTransport, connectOptions{
		spawnGrace:       m.spawnGrace,
		handshakeTimeout: m.handshakeTimeout,
	})

	m.mu.Lock()
	m.servers[name] = conn
	m.mu.Unlock()

	if err != nil {
		return err
	}

	m.refreshServer(ctx, conn)
	return nil
}

// ConnectAll starts configured bridges, then connects every server
// concurrently. It returns the number of servers that connected; a single
// server's failure never aborts the others.
func (m *Manager) ConnectAll(ctx context.Context, cfg *Config) int {
	if cfg == nil || len(cfg.Servers) == 0 {
		m.log.Info("no tool servers configured")
		return 0
	}

	for name, server := range cfg.Servers {
		if server.Bridge == nil {
			continue
		}
		if err := m.bridges.start(name, *server.Bridge); err != nil {
			// Non-fatal: the main connection attempt proceeds regardless.
			m.log.Warn("bridge start failed", "server", name, "error", err)
			continue
		}
		time.Sleep(m.bridgeSettle)
	}

	var wg sync.WaitGroup
	var connected int
	var countMu sync.Mutex

	for name, server := range cfg.Servers {
		wg.Add(1)
		go func(name string, server ServerConfig) {
			defer wg.Done()
			if err := m.Connect(ctx, name, server); err != nil {
				m.log.Warn("server connect failed", "server", name, "error", err)
				return
			}
			countMu.Lock()
			connected++
			countMu.Unlock()
		}(name, server)
	}
	wg.Wait()

	return connected
}

// Invoke calls a tool on a named server and returns its text result.
// Implements tools.Invoker.
func (m *Manager) Invoke(ctx context.Context, serverName, toolName string, args map[string]any) (string, error) {
	m.mu.RLock()
	conn, ok := m.servers[serverName]
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrServerNotConnected, serverName)
	}

	ctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	return conn.CallTool(ctx, toolName, args)
}

// CallTool resolves a qualified tool name of the form mcp_<server>_<tool>
// (server dashes normalized to underscores) against the connected set and
// dispatches the call.
func (m *Manager) CallTool(ctx context.Context, qualifiedName string, args map[string]any) (string, error) {
	serverName, toolName, err := m.resolveTool(qualifiedName)
	if err != nil {
		return "", err
	}
	return m.Invoke(ctx, serverName, toolName, args)
}

// resolveTool matches the qualified name's prefix against connected server
// names. Server names may contain dashes; qualified names normalize them to
// underscores, so the scan compares normalized prefixes.
func (m *Manager) resolveTool(qualifiedName string) (serverName, toolName string, err error) {
	rest, ok := strings.CutPrefix(qualifiedName, tools.NamePrefix)
	if !ok {
		return "", "", fmt.Errorf("not a tool-server name: %s", qualifiedName)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, conn := range m.servers {
		if conn.Status != StatusConnected {
			continue
		}
		prefix := strings.ReplaceAll(name, "-", "_") + "_"
		if strings.HasPrefix(rest, prefix) {
			return name, rest[len(prefix):], nil
		}
	}
	return "", "", fmt.Errorf("%w: no server matches %s", ErrServerNotConnected, qualifiedName)
}

// ListAllTools returns the flat namespaced catalog across all connected
// servers, for consumers that build provider function-calling schemas.
func (m *Manager) ListAllTools() []ToolDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var descriptors []ToolDescriptor
	for name, conn := range m.servers {
		if conn.Status != StatusConnected {
			continue
		}
		conn.mu.Lock()
		infos := conn.Tools
		conn.mu.Unlock()
		for _, t := range infos {
			descriptors = append(descriptors, ToolDescriptor{
				Server:      name,
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	return descriptors
}

// RefreshCatalog re-queries every connected server for its tool list and
// rebuilds the registry and cache entries wholesale.
func (m *Manager) RefreshCatalog(ctx context.Context) {
	m.mu.RLock()
	conns := make([]*ServerConnection, 0, len(m.servers))
	for _, conn := range m.servers {
		if conn.Status == StatusConnected {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		m.refreshServer(ctx, conn)
	}
}

// refreshServer fetches one server's tools and updates the registry and
// cache. Listing failures are non-fatal: the last cached descriptors, if
// any, stay in effect.
func (m *Manager) refreshServer(ctx context.Context, conn *ServerConnection) {
	lctx, cancel := context.WithTimeout(ctx, m.listTimeout)
	defer cancel()

	infos, err := conn.ListTools(lctx)
	if err != nil {
		m.log.Warn("tool listing failed", "server", conn.Name, "error", err)
		if m.cache != nil {
			if cached, ok := m.cache.Lookup(conn.Name); ok {
				m.log.Info("using cached tool list", "server", conn.Name, "tools", len(cached))
				conn.mu.Lock()
				conn.Tools = cached
				conn.mu.Unlock()
				infos = cached
			}
		}
		if infos == nil {
			return
		}
	} else if m.cache != nil {
		if err := m.cache.Update(conn.Name, infos); err != nil {
			m.log.Warn("tool cache update failed", "server", conn.Name, "error", err)
		}
	}

	if m.registry == nil {
		return
	}
	m.registry.UnregisterServerTools(conn.Name)
	for _, t := range infos {
		if !tools.Permitted(t.Name, conn.Config.AllowedTools, conn.Config.DisabledTools) {
			continue
		}
		m.registry.RegisterServerTool(conn.Name, t.Name, t.Description, t.InputSchema, m)
	}
}

// Disconnect stops one connection and removes its catalog entries.
func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	conn, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown server: %q", name)
	}
	delete(m.servers, name)
	m.mu.Unlock()

	if m.registry != nil {
		m.registry.UnregisterServerTools(name)
	}
	if m.cache != nil {
		m.cache.Remove(name)
	}
	return conn.Stop()
}

// DisconnectAll stops every connection and every running bridge. Individual
// stop failures are logged, not propagated.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		if err := m.Disconnect(name); err != nil {
			m.log.Warn("disconnect failed", "server", name, "error", err)
		}
	}
	m.bridges.stopAll()
	m.log.Info("all servers disconnected")
}

// SetServers reconciles the connection set against a new desired
// configuration: servers no longer present are disconnected, new ones are
// connected, unchanged ones are left alone.
func (m *Manager) SetServers(ctx context.Context, servers map[string]ServerConfig) *ReloadResult {
	result := &ReloadResult{Errors: make(map[string]string)}

	m.mu.RLock()
	existing := make(map[string]bool, len(m.servers))
	for name := range m.servers {
		existing[name] = true
	}
	m.mu.RUnlock()

	for name := range existing {
		if _, ok := servers[name]; ok {
			continue
		}
		if err := m.Disconnect(name); err != nil {
			result.Errors[name] = err.Error()
		} else {
			result.Removed = append(result.Removed, name)
		}
	}

	for name, config := range servers {
		if existing[name] {
			continue
		}
		if config.Bridge != nil {
			if err := m.bridges.start(name, *config.Bridge); err != nil {
				m.log.Warn("bridge start failed", "server", name, "error", err)
			} else {
				time.Sleep(m.bridgeSettle)
			}
		}
		if err := m.Connect(ctx, name, config); err != nil {
			result.Errors[name] = err.Error()
		} else {
			result.Added = append(result.Added, name)
		}
	}

	return result
}

// ConnectedServers returns the names of servers currently in Connected state.
func (m *Manager) ConnectedServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, conn := range m.servers {
		if conn.Status == StatusConnected {
			names = append(names, name)
		}
	}
	return names
}

// Status returns the status of all server connections, including failed ones.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(m.servers))
	for _, conn := range m.servers {
		statuses = append(statuses, conn.status())
	}
	return statuses
}
