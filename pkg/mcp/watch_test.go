package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForServers(t *testing.T, m *Manager, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(m.ConnectedServers()) == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected %d connected servers, have %v", want, m.ConnectedServers())
}

func TestWatchConfig_ReconcilesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	if err := os.WriteFile(path, []byte(`{"mcpServers": {"alpha": {"command": "mock"}}}`), 0644); err != nil {
		t.Fatal(err)
	}

	m := testManager(t)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	m.ConnectAll(context.Background(), cfg)
	waitForServers(t, m, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan error, 1)
	go func() { watchDone <- m.WatchConfig(ctx, path) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	update := `{"mcpServers": {"alpha": {"command": "mock"}, "beta": {"command": "mock"}}}`
	if err := os.WriteFile(path, []byte(update), 0644); err != nil {
		t.Fatal(err)
	}
	waitForServers(t, m, 2)

	// Removing a server disconnects it.
	if err := os.WriteFile(path, []byte(`{"mcpServers": {"beta": {"command": "mock"}}}`), 0644); err != nil {
		t.Fatal(err)
	}
	waitForServers(t, m, 1)
	if got := m.ConnectedServers(); len(got) != 1 || got[0] != "beta" {
		t.Errorf("expected only beta, got %v", got)
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop on context cancellation")
	}
}

func TestWatchConfig_MalformedUpdateKeepsCurrentSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	if err := os.WriteFile(path, []byte(`{"mcpServers": {"alpha": {"command": "mock"}}}`), 0644); err != nil {
		t.Fatal(err)
	}

	m := testManager(t)
	cfg, _ := LoadConfig(path)
	m.ConnectAll(context.Background(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.WatchConfig(ctx, path)
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"mcpServers": {`), 0644); err != nil {
		t.Fatal(err)
	}

	// The broken config must not tear anything down.
	time.Sleep(500 * time.Millisecond)
	if got := m.ConnectedServers(); len(got) != 1 || got[0] != "alpha" {
		t.Errorf("server set changed on malformed config: %v", got)
	}
}
