package mcp

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// bridgeSet supervises long-lived helper processes that some tool servers
// depend on. Bridges are keyed by server name and have no RPC protocol:
// this is pure process lifecycle, independent of the JSON-RPC connection.
type bridgeSet struct {
	mu    sync.Mutex
	procs map[string]*exec.Cmd
	log   *slog.Logger
}

func newBridgeSet(logger *slog.Logger) *bridgeSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &bridgeSet{
		procs: make(map[string]*exec.Cmd),
		log:   logger,
	}
}

// start launches the bridge for a server unless one is already alive, in
// which case it is a no-op. At most one bridge runs per name.
func (b *bridgeSet) start(name string, cfg BridgeConfig) error {
	if cfg.Command == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if cmd, ok := b.procs[name]; ok && processAlive(cmd) {
		b.log.Info("bridge already running", "server", name, "pid", cmd.Process.Pid)
		return nil
	}

	cmd := exec.Command(cfg.Command)
	cmd.Dir = cfg.Cwd
	// Detach into its own process group so it outlives transient signals
	// aimed at the parent.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start bridge for %s: %w", name, err)
	}
	go cmd.Wait() // reap

	b.procs[name] = cmd
	b.log.Info("bridge started", "server", name, "pid", cmd.Process.Pid)
	return nil
}

// stopAll terminates every running bridge: SIGTERM, bounded wait, SIGKILL.
// Individual failures are logged, not propagated.
func (b *bridgeSet) stopAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, cmd := range b.procs {
		if !processAlive(cmd) {
			continue
		}
		if err := terminateProcess(cmd); err != nil {
			b.log.Warn("bridge stop failed", "server", name, "error", err)
			continue
		}
		b.log.Info("bridge stopped", "server", name)
	}
	b.procs = make(map[string]*exec.Cmd)
}

// processAlive probes liveness with signal 0, which checks existence without
// delivering a signal.
func processAlive(cmd *exec.Cmd) bool {
	if cmd == nil || cmd.Process == nil {
		return false
	}
	return cmd.Process.Signal(syscall.Signal(0)) == nil
}

func terminateProcess(cmd *exec.Cmd) error {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return cmd.Process.Kill()
	}

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline:
			return cmd.Process.Kill()
		case <-tick.C:
			if !processAlive(cmd) {
				return nil
			}
		}
	}
}
