// Package appstate is the wallet's app-state controller. It owns the
// unlock gate, the inactivity timer and the polling token registry,
// persists their durable fields, and announces every change on the
// messenger as AppStateController:stateChange.
package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/walletd/internal/alarm"
	"github.com/alfredjeanlab/walletd/internal/inactivity"
	"github.com/alfredjeanlab/walletd/internal/lockstate"
	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
	"github.com/alfredjeanlab/walletd/internal/polling"
	"github.com/alfredjeanlab/walletd/internal/store"
	"github.com/alfredjeanlab/walletd/internal/unlock"
)

// Persisted state keys.
const (
	namespace             = "appstate"
	keyTimeoutMinutes     = namespace + ":timeoutMinutes"
	keyBrowserEnvironment = namespace + ":browserEnvironment"
	keyQRHardware         = namespace + ":qrHardware"
)

func pollingKey(c model.PollingCategory) string {
	return namespace + ":" + string(c)
}

// Config wires a Controller to its collaborators.
type Config struct {
	Messenger *messenger.Messenger
	Store     store.Store
	Lock      *lockstate.Source
	// Approver raises the unlock approval. Nil disables the approval UI.
	Approver unlock.Approver
	// Alarms backs the persistent inactivity alarm when Suspendable is set.
	Alarms      *alarm.Manager
	Suspendable bool
	// DefaultTimeout applies when no timeout has been persisted yet.
	DefaultTimeout model.Minutes
	// OnInactiveTimeout locks the wallet. Required.
	OnInactiveTimeout func()
	Logger            *slog.Logger

	// TimerOptions are passed to inactivity.New.
	TimerOptions []inactivity.Option
}

// Controller is the app-state controller.
type Controller struct {
	messenger *messenger.Messenger
	store     store.Store
	lock      *lockstate.Source
	logger    *slog.Logger

	gate    *unlock.Gate
	timer   *inactivity.Timer
	polling *polling.Registry

	mu             sync.Mutex
	browserEnv     map[string]string
	qrHardware     json.RawMessage
	currentPopupID int
	lastActiveAt   *time.Time
	unsubs         []func()
	registered     bool
}

// New builds the controller and restores persisted state. Call Start to
// hook it up to the messenger.
func New(ctx context.Context, cfg Config) (*Controller, error) {
	if cfg.Messenger == nil || cfg.Store == nil || cfg.Lock == nil {
		return nil, errors.New("appstate: messenger, store and lock are required")
	}
	if cfg.OnInactiveTimeout == nil {
		return nil, errors.New("appstate: OnInactiveTimeout is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		messenger: cfg.Messenger,
		store:     cfg.Store,
		lock:      cfg.Lock,
		logger:    logger,
	}
	c.gate = unlock.New(cfg.Lock.IsUnlocked, cfg.Approver, c.emit, logger)
	c.polling = polling.New(c.persistPolling)

	timeout, err := c.restore(ctx, cfg.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	c.timer = inactivity.New(inactivity.Config{
		Suspendable: cfg.Suspendable,
		Alarms:      cfg.Alarms,
		OnInactive:  cfg.OnInactiveTimeout,
		Logger:      logger,
	}, timeout, cfg.TimerOptions...)

	return c, nil
}

func (c *Controller) restore(ctx context.Context, fallback model.Minutes) (model.Minutes, error) {
	recs, err := c.store.ListState(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("appstate: loading state: %w", err)
	}

	timeout := model.CoerceMinutes(fallback)
	tokens := model.PollingTokens{}
	for _, rec := range recs {
		switch rec.Key {
		case keyTimeoutMinutes:
			var m model.Minutes
			if err := json.Unmarshal(rec.Value, &m); err != nil {
				c.logger.Warn("appstate: malformed persisted timeout, disabling", "value", string(rec.Value), "err", err)
			}
			timeout = m
		case keyBrowserEnvironment:
			var env map[string]string
			if err := json.Unmarshal(rec.Value, &env); err == nil {
				c.browserEnv = env
			}
		case keyQRHardware:
			c.qrHardware = rec.Value
		default:
			for _, cat := range model.PollingCategories {
				if rec.Key == pollingKey(cat) {
					var toks []string
					if err := json.Unmarshal(rec.Value, &toks); err == nil {
						tokens[cat] = toks
					}
				}
			}
		}
	}
	c.polling.Load(tokens)
	return timeout, nil
}

// Start subscribes to preference and keyring events, applies the current
// preferences, registers AppStateController:getState and arms the timer.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.registered {
		c.mu.Unlock()
		return nil
	}
	c.registered = true
	c.mu.Unlock()

	err := c.messenger.RegisterActionHandler(messenger.ActionAppStateGetState, func(context.Context, ...any) (any, error) {
		return c.State(), nil
	})
	if err != nil {
		return fmt.Errorf("appstate: %w", err)
	}

	unsubs := []func(){
		c.messenger.Subscribe(messenger.EventPreferencesStateChange, func(payload any) {
			prefs, err := messenger.Decode[messenger.PreferencesState](payload)
			if err != nil {
				c.logger.Warn("appstate: undecodable preferences", "err", err)
				return
			}
			limit := prefs.Preferences.AutoLockTimeLimit
			if limit == nil || *limit == c.timer.Timeout() {
				return
			}
			if err := c.SetInactiveTimeout(context.Background(), *limit); err != nil {
				c.logger.Error("appstate: applying auto-lock preference", "err", err)
			}
		}),
		c.messenger.Subscribe(messenger.EventQRKeyringStateChange, func(payload any) {
			raw, err := messenger.Decode[json.RawMessage](payload)
			if err != nil {
				c.logger.Warn("appstate: undecodable qr keyring state", "err", err)
				return
			}
			c.setQRHardware(raw)
		}),
	}
	c.lock.AddLockListener(c.emit)
	c.lock.AddUnlockListener(c.gate.OnUnlocked)

	c.mu.Lock()
	c.unsubs = append(c.unsubs, unsubs...)
	c.mu.Unlock()

	applied, err := c.applyPreferences(ctx)
	if err != nil {
		return err
	}
	if !applied {
		if err := c.timer.ResetActivity(ctx); err != nil {
			return fmt.Errorf("appstate: arming timer: %w", err)
		}
	}
	return nil
}

// applyPreferences reads the preferences controller's current
// auto-lock limit. A missing preferences controller is not an error.
func (c *Controller) applyPreferences(ctx context.Context) (bool, error) {
	res, err := c.messenger.Call(ctx, messenger.ActionPreferencesGetState)
	if errors.Is(err, messenger.ErrNoHandler) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("appstate: reading preferences: %w", err)
	}
	prefs, err := messenger.Decode[messenger.PreferencesState](res)
	if err != nil {
		return false, fmt.Errorf("appstate: decoding preferences: %w", err)
	}
	if prefs.Preferences.AutoLockTimeLimit == nil {
		return false, nil
	}
	return true, c.SetInactiveTimeout(ctx, *prefs.Preferences.AutoLockTimeLimit)
}

// Close detaches from the messenger and disarms the timer.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	registered := c.registered
	c.registered = false
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if registered {
		c.messenger.UnregisterActionHandler(messenger.ActionAppStateGetState)
	}
	return c.timer.Stop(ctx)
}

// State returns the current app state.
func (c *Controller) State() model.AppState {
	tokens := c.polling.Snapshot()
	timer := c.timer.State()
	s := model.AppState{
		TimeoutMinutes:            timer.TimeoutMinutes,
		PopupGasPollTokens:        tokens[model.PollingPopup],
		NotificationGasPollTokens: tokens[model.PollingNotification],
		FullScreenGasPollTokens:   tokens[model.PollingFullScreen],
		Unlocked:                  c.lock.IsUnlocked(),
		WaitingForUnlock:          c.gate.Waiting(),
		ApprovalID:                c.gate.ApprovalID(),
		TimerArmed:                timer.Armed,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s.BrowserEnvironment = c.browserEnv
	s.QRHardware = c.qrHardware
	s.CurrentPopupID = c.currentPopupID
	s.LastActiveAt = c.lastActiveAt
	return s
}

// Timer exposes the inactivity timer state.
func (c *Controller) Timer() inactivity.State {
	return c.timer.State()
}

// AwaitUnlock returns a channel closed once the wallet is unlocked.
func (c *Controller) AwaitUnlock(showApprovalUI bool) <-chan struct{} {
	return c.gate.AwaitUnlock(showApprovalUI)
}

// WaitForUnlock blocks until the wallet is unlocked or ctx ends.
func (c *Controller) WaitForUnlock(ctx context.Context, showApprovalUI bool) error {
	return c.gate.Wait(ctx, showApprovalUI)
}

// SetLastActiveTime records user activity and re-arms the timer.
func (c *Controller) SetLastActiveTime(ctx context.Context) error {
	now := time.Now().UTC()
	c.mu.Lock()
	c.lastActiveAt = &now
	c.mu.Unlock()

	if err := c.timer.ResetActivity(ctx); err != nil {
		return fmt.Errorf("appstate: resetting timer: %w", err)
	}
	return nil
}

// SetInactiveTimeout persists a new auto-lock timeout and re-arms.
func (c *Controller) SetInactiveTimeout(ctx context.Context, m model.Minutes) error {
	m = model.CoerceMinutes(m)
	if err := c.put(ctx, keyTimeoutMinutes, m); err != nil {
		return err
	}
	if err := c.timer.SetTimeout(ctx, m); err != nil {
		return fmt.Errorf("appstate: arming timer: %w", err)
	}
	c.emit()
	return nil
}

// AddPollingToken tracks token under category. It reports false when the
// category is rejected.
func (c *Controller) AddPollingToken(token string, category model.PollingCategory) bool {
	return c.polling.Add(token, category)
}

// RemovePollingToken drops every occurrence of token from category.
func (c *Controller) RemovePollingToken(token string, category model.PollingCategory) bool {
	return c.polling.Remove(token, category)
}

// ClearPollingTokens empties every category.
func (c *Controller) ClearPollingTokens() {
	c.polling.Clear()
}

// PollingTokens returns a snapshot of every category.
func (c *Controller) PollingTokens() model.PollingTokens {
	return c.polling.Snapshot()
}

// SetBrowserEnvironment records the host OS and browser.
func (c *Controller) SetBrowserEnvironment(ctx context.Context, os, browser string) error {
	env := map[string]string{"os": os, "browser": browser}
	if err := c.put(ctx, keyBrowserEnvironment, env); err != nil {
		return err
	}
	c.mu.Lock()
	c.browserEnv = env
	c.mu.Unlock()
	c.emit()
	return nil
}

// SetCurrentPopupID records the id of the open popup window.
func (c *Controller) SetCurrentPopupID(id int) {
	c.mu.Lock()
	c.currentPopupID = id
	c.mu.Unlock()
	c.emit()
}

// CurrentPopupID returns the last recorded popup id.
func (c *Controller) CurrentPopupID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPopupID
}

func (c *Controller) setQRHardware(raw json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.put(ctx, keyQRHardware, raw); err != nil {
		c.logger.Error("appstate: persisting qr hardware state", "err", err)
	}
	c.mu.Lock()
	c.qrHardware = raw
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) persistPolling(tokens model.PollingTokens) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.store.RunInTransaction(ctx, func(tx store.Store) error {
		for _, cat := range model.PollingCategories {
			data, err := json.Marshal(tokens[cat])
			if err != nil {
				return err
			}
			if err := tx.SetState(ctx, &model.StateRecord{Key: pollingKey(cat), Value: data}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("appstate: persisting polling tokens", "err", err)
	}
	c.emit()
}

func (c *Controller) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("appstate: encoding %s: %w", key, err)
	}
	if err := c.store.SetState(ctx, &model.StateRecord{Key: key, Value: data}); err != nil {
		return fmt.Errorf("appstate: saving %s: %w", key, err)
	}
	return nil
}

func (c *Controller) emit() {
	c.messenger.Publish(messenger.EventAppStateChange, c.State())
}
