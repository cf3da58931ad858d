package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	toolCacheVersion  = 1
	toolCacheFileName = "toolcache.json"
	cacheLockTimeout  = 2 * time.Second
)

// ToolCache persists the last-discovered tool descriptors per server beside
// the config file, so declarations are available before slow servers finish
// reconnecting. Entries are replaced wholesale on each refresh. A lock file
// guards against concurrent assistant instances sharing a config directory.
type ToolCache struct {
	path string

	mu   sync.RWMutex
	file toolCacheFile
}

type toolCacheFile struct {
	Version int                        `json:"version"`
	Servers map[string]serverToolCache `json:"servers"`
}

type serverToolCache struct {
	Tools     []ToolInfo `json:"tools"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewToolCache creates or loads the tool cache co-located with the given
// config path. A missing or unreadable cache file starts empty.
func NewToolCache(configPath string) (*ToolCache, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}
	tc := &ToolCache{
		path: filepath.Join(filepath.Dir(abs), toolCacheFileName),
		file: toolCacheFile{
			Version: toolCacheVersion,
			Servers: make(map[string]serverToolCache),
		},
	}
	tc.load()
	return tc, nil
}

func (tc *ToolCache) load() {
	data, err := os.ReadFile(tc.path)
	if err != nil {
		return
	}
	var file toolCacheFile
	if err := json.Unmarshal(data, &file); err != nil || file.Version != toolCacheVersion {
		return
	}
	if file.Servers == nil {
		file.Servers = make(map[string]serverToolCache)
	}
	tc.file = file
}

// Update replaces the cached tool list for a server and persists the cache.
func (tc *ToolCache) Update(serverName string, tools []ToolInfo) error {
	tc.mu.Lock()
	tc.file.Servers[serverName] = serverToolCache{
		Tools:     tools,
		UpdatedAt: time.Now().UTC(),
	}
	tc.mu.Unlock()
	return tc.save()
}

// Lookup returns the cached tools for a server, if any.
func (tc *ToolCache) Lookup(serverName string) ([]ToolInfo, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	entry, ok := tc.file.Servers[serverName]
	if !ok || len(entry.Tools) == 0 {
		return nil, false
	}
	return entry.Tools, true
}

// Remove drops a server's cache entry and persists the cache.
func (tc *ToolCache) Remove(serverName string) error {
	tc.mu.Lock()
	delete(tc.file.Servers, serverName)
	tc.mu.Unlock()
	return tc.save()
}

func (tc *ToolCache) save() error {
	tc.mu.RLock()
	data, err := json.MarshalIndent(tc.file, "", "  ")
	tc.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(tc.path), 0755); err != nil {
		return err
	}

	// Cross-process safety: another assistant instance may share this config dir.
	fl := flock.New(tc.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), cacheLockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("tool cache lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("tool cache lock timeout")
	}
	defer fl.Unlock()

	return os.WriteFile(tc.path, data, 0644)
}
