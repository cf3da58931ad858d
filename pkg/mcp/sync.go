package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CallSync invokes a qualified tool and blocks until the result or the
// timeout. It is safe to call from any goroutine, including callbacks
// running outside the manager's own machinery: each connection's reader and
// writer live on their own goroutines, so a synchronous wait here cannot
// deadlock the connection it is waiting on.
func (m *Manager) CallSync(qualifiedName string, args map[string]any, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	invocation := uuid.NewString()[:8]
	start := time.Now()
	m.log.Debug("tool invocation", "id", invocation, "tool", qualifiedName)

	text, err := m.CallTool(ctx, qualifiedName, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrCallTimeout
		}
		m.log.Warn("tool invocation failed", "id", invocation, "tool", qualifiedName, "elapsed", time.Since(start), "error", err)
		return "", err
	}

	m.log.Debug("tool invocation done", "id", invocation, "tool", qualifiedName, "elapsed", time.Since(start))
	return text, nil
}
