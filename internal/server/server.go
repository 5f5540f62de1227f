package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/walletd/internal/approval"
	"github.com/alfredjeanlab/walletd/internal/appstate"
	"github.com/alfredjeanlab/walletd/internal/bridgestatus"
	"github.com/alfredjeanlab/walletd/internal/lockstate"
	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
	"github.com/alfredjeanlab/walletd/internal/store"
)

// recordTimeout bounds each event log write made from the messenger tap.
const recordTimeout = 5 * time.Second

// Deps are the components a WalletServer fronts.
type Deps struct {
	App       *appstate.Controller
	Locker    *lockstate.Announcer
	Approvals *approval.Controller
	Bridge    *bridgestatus.Watcher
	Messenger *messenger.Messenger
	Store     store.Store
	Logger    *slog.Logger
}

// WalletServer serves the wallet control surface over HTTP and gRPC.
type WalletServer struct {
	app       *appstate.Controller
	locker    *lockstate.Announcer
	approvals *approval.Controller
	bridge    *bridgestatus.Watcher
	messenger *messenger.Messenger
	store     store.Store
	logger    *slog.Logger
	stream    *eventStream

	untap func()
}

// NewWalletServer returns a server over d. It starts recording messenger
// events immediately; call Close to stop.
func NewWalletServer(d Deps) *WalletServer {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &WalletServer{
		app:       d.App,
		locker:    d.Locker,
		approvals: d.Approvals,
		bridge:    d.Bridge,
		messenger: d.Messenger,
		store:     d.Store,
		logger:    logger,
		stream:    newEventStream(),
	}
	s.untap = d.Messenger.Tap(s.recordEvent)
	return s
}

// Close detaches the server from the messenger.
func (s *WalletServer) Close() {
	if s.untap != nil {
		s.untap()
	}
}

// recordEvent persists a messenger event and fans it out to SSE clients.
// Both are best-effort; failures are logged but never reach the publisher.
func (s *WalletServer) recordEvent(env messenger.Envelope) {
	payload, err := marshalPayload(env.Payload)
	if err != nil {
		s.logger.Warn("failed to marshal event", "topic", env.Event, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	e := &model.Event{Topic: env.Event, Payload: payload, Remote: env.Remote}
	if err := s.store.RecordEvent(ctx, e); err != nil {
		s.logger.Warn("failed to record event", "topic", env.Event, "err", err)
		e.ID = 0
	}
	s.stream.broadcast(e)
}

func marshalPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("null"), nil
		}
		return p, nil
	}
	return json.Marshal(v)
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

func isInputError(err error) bool {
	var ie inputError
	return errors.As(err, &ie)
}

// lock locks the wallet on behalf of an operator.
func (s *WalletServer) lock() bool {
	return s.locker.Lock("manual")
}

// waitForUnlock blocks until the wallet unlocks, timeout elapses, or ctx
// ends. A zero timeout waits for ctx alone.
func (s *WalletServer) waitForUnlock(ctx context.Context, showApprovalUI bool, timeout time.Duration) error {
	if timeout < 0 {
		return inputError("timeout must not be negative")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.app.WaitForUnlock(ctx, showApprovalUI)
}

// setTimeout coerces raw and applies it. A value that is neither zero nor
// a valid number is logged and treated as disabled.
func (s *WalletServer) setTimeout(ctx context.Context, raw any) (model.Minutes, error) {
	m := model.CoerceMinutes(raw)
	if m == 0 && !isZeroValue(raw) {
		s.logger.Warn("malformed inactivity timeout, disabling", "value", raw)
	}
	if err := s.app.SetInactiveTimeout(ctx, m); err != nil {
		return 0, err
	}
	return m, nil
}

func isZeroValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return x == 0
	case string:
		m, ok := model.ParseMinutes(x)
		return ok && m == 0
	}
	return false
}
