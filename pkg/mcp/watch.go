package mcp

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// WatchConfig monitors the configuration file and reconciles the connection
// set when it changes. The method blocks until ctx is cancelled. A config
// that fails to parse leaves the current server set untouched.
//
// The parent directory is watched rather than the file itself, because
// editors and deploy tools typically replace config files atomically.
func (m *Manager) WatchConfig(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var (
		debounceTimer *time.Timer
		mu            sync.Mutex
		pending       bool
	)

	doReload := func() {
		mu.Lock()
		pending = false
		mu.Unlock()

		cfg, err := LoadConfig(abs)
		if err != nil {
			m.log.Warn("config reload skipped", "path", abs, "error", err)
			return
		}
		result := m.SetServers(ctx, cfg.Servers)
		m.log.Info("config reloaded", "added", len(result.Added), "removed", len(result.Removed), "errors", len(result.Errors))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			// Debounce: reset the timer on each event
			mu.Lock()
			if !pending {
				pending = true
				debounceTimer = time.AfterFunc(watchDebounce, doReload)
			} else {
				debounceTimer.Reset(watchDebounce)
			}
			mu.Unlock()

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are not fatal
		}
	}
}
