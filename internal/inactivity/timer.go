// Package inactivity locks the wallet after a configurable idle period.
//
// Two mechanisms back the timer. A volatile timer lives in process memory.
// A persistent alarm is stored and rescheduled after a restart, which is
// what a host that may suspend the daemon needs.
package inactivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/walletd/internal/alarm"
	"github.com/alfredjeanlab/walletd/internal/model"
)

// AlarmName is the persistent alarm used for the auto-lock timeout.
const AlarmName = "AUTO_LOCK_TIMEOUT_ALARM"

// Mechanism arms and clears a single pending expiry.
type Mechanism interface {
	Arm(ctx context.Context, d time.Duration) error
	Clear(ctx context.Context) error
}

// State is a snapshot of the timer.
type State struct {
	TimeoutMinutes model.Minutes `json:"timeoutMinutes"`
	Armed          bool          `json:"armed"`
	ArmedAt        *time.Time    `json:"armedAt,omitempty"`
	Persistent     bool          `json:"persistent"`
}

// Config configures a Timer.
type Config struct {
	// Suspendable selects the persistent alarm mechanism. Alarms must be
	// set when it is true.
	Suspendable bool
	Alarms      *alarm.Manager
	// OnInactive runs when the timeout elapses. It must not block for long.
	OnInactive func()
	Logger     *slog.Logger
}

// Option customizes a Timer.
type Option func(*Timer)

// WithMechanism overrides the mechanism picked from Config.
func WithMechanism(mech Mechanism) Option {
	return func(t *Timer) { t.mech = mech }
}

// Timer owns the inactivity timeout and at most one armed mechanism.
type Timer struct {
	mech       Mechanism
	persistent bool
	onInactive func()
	logger     *slog.Logger

	mu      sync.Mutex
	timeout model.Minutes
	armed   bool
	armedAt time.Time
}

// New creates a timer with the given initial timeout. It does not arm;
// call ResetActivity or SetTimeout.
func New(cfg Config, timeout model.Minutes, opts ...Option) *Timer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := &Timer{
		onInactive: cfg.OnInactive,
		logger:     logger,
		timeout:    model.CoerceMinutes(timeout),
		persistent: cfg.Suspendable,
	}
	if cfg.Suspendable && cfg.Alarms != nil {
		t.mech = NewPersistentAlarm(cfg.Alarms, t.expire, logger)
	} else {
		t.persistent = false
		t.mech = NewVolatileTimer(t.expire)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetTimeout stores a new timeout and re-arms. Invalid values (negative,
// NaN) disable the timer.
func (t *Timer) SetTimeout(ctx context.Context, m model.Minutes) error {
	m = model.CoerceMinutes(m)
	t.mu.Lock()
	t.timeout = m
	t.mu.Unlock()
	return t.rearm(ctx)
}

// ResetActivity re-arms the timer using the current timeout.
func (t *Timer) ResetActivity(ctx context.Context) error {
	return t.rearm(ctx)
}

// Timeout returns the configured timeout.
func (t *Timer) Timeout() model.Minutes {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

// State returns a snapshot.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := State{TimeoutMinutes: t.timeout, Armed: t.armed, Persistent: t.persistent}
	if t.armed {
		at := t.armedAt
		s.ArmedAt = &at
	}
	return s
}

// Stop clears any armed mechanism.
func (t *Timer) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
	return t.mech.Clear(ctx)
}

// rearm always clears before arming so no more than one mechanism is
// ever pending.
func (t *Timer) rearm(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.mech.Clear(ctx); err != nil {
		t.logger.Warn("inactivity: clear failed", "err", err)
	}
	t.armed = false
	if t.timeout.IsZero() {
		return nil
	}
	if err := t.mech.Arm(ctx, t.timeout.Duration()); err != nil {
		return err
	}
	t.armed = true
	t.armedAt = time.Now().UTC()
	return nil
}

func (t *Timer) expire() {
	t.mu.Lock()
	t.armed = false
	t.mu.Unlock()

	t.logger.Info("inactivity timeout reached", "timeout_minutes", t.Timeout().String())
	if t.onInactive != nil {
		t.onInactive()
	}
}
