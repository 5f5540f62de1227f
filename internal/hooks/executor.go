// Package hooks runs operator-configured shell commands on wallet
// lifecycle events.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 5 * time.Minute

	// maxOutput bounds how much of a hook's output is kept for logging.
	maxOutput = 2048
	// waitDelay is how long a timed-out hook's pipes may stay open after
	// the shell is killed, e.g. held by a backgrounded child.
	waitDelay = 2 * time.Second
)

// Result describes one hook run. ExitCode is -1 when the command did not
// exit normally (killed, or never started).
type Result struct {
	Output   string
	ExitCode int
	Err      error
	Duration time.Duration
}

func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultTimeout
	case d > MaxTimeout:
		return MaxTimeout
	}
	return d
}

// Execute runs command with "sh -c". env entries are appended to the
// daemon's environment in key order. Output is stdout, or stderr when
// stdout is empty, trimmed to its last maxOutput bytes.
func Execute(ctx context.Context, command string, timeout time.Duration, env map[string]string) Result {
	ctx, cancel := context.WithTimeout(ctx, clampTimeout(timeout))
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // operator-supplied
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(), envList(env)...)

	start := time.Now()
	err := cmd.Run()
	res := Result{Err: err, Duration: time.Since(start), ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Err = errors.Join(context.DeadlineExceeded, err)
	}

	out := stdout.Bytes()
	if len(bytes.TrimSpace(out)) == 0 {
		out = stderr.Bytes()
	}
	if len(out) > maxOutput {
		out = out[len(out)-maxOutput:]
	}
	res.Output = strings.TrimSpace(string(out))
	return res
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + env[k]
	}
	return out
}
