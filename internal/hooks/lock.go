package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Lock reasons passed to the hook as WALLETD_LOCK_REASON.
const (
	ReasonInactivity = "inactivity"
	ReasonManual     = "manual"
)

// LockHook runs a command each time the wallet locks.
type LockHook struct {
	command string
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewLockHook returns nil when command is empty; a nil *LockHook is safe
// to Fire and Wait on.
func NewLockHook(command string, timeout time.Duration, logger *slog.Logger) *LockHook {
	if command == "" {
		return nil
	}
	return &LockHook{command: command, timeout: timeout, logger: logger}
}

// Fire runs the hook in the background. Failures are logged.
func (h *LockHook) Fire(reason string) {
	if h == nil {
		return
	}
	lockedAt := time.Now().UTC()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		res := Execute(context.Background(), h.command, h.timeout, map[string]string{
			"WALLETD_LOCK_REASON": reason,
			"WALLETD_LOCKED_AT":   lockedAt.Format(time.RFC3339),
		})
		if res.Err != nil {
			h.logger.Warn("lock hook failed", "reason", reason, "exit_code", res.ExitCode, "err", res.Err, "output", res.Output)
			return
		}
		h.logger.Debug("lock hook ran", "reason", reason, "duration", res.Duration, "output", res.Output)
	}()
}

// Wait blocks until every fired hook has finished.
func (h *LockHook) Wait() {
	if h == nil {
		return
	}
	h.wg.Wait()
}
