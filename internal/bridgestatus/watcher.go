// Package bridgestatus watches cross-chain bridge transfers. Fetching the
// status too early makes the bridge API fail, so a transfer is only looked
// up once its source transaction is confirmed.
package bridgestatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
)

// Fetcher looks up the status of a bridge transfer.
type Fetcher interface {
	FetchStatus(ctx context.Context, req model.StatusRequest) (model.StatusResponse, error)
}

// State is the payload of BridgeStatusController:stateChange.
type State struct {
	TxStatuses map[string]model.StatusResponse `json:"txStatuses"`
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithErrorHandler routes fetch failures to fn instead of the error log.
func WithErrorHandler(fn func(req model.StatusRequest, err error)) Option {
	return func(w *Watcher) { w.onError = fn }
}

// WithFetchTimeout bounds each status lookup. The default is 30s.
func WithFetchTimeout(d time.Duration) Option {
	return func(w *Watcher) { w.fetchTimeout = d }
}

// Watcher subscribes to transaction confirmations and memoizes the bridge
// status of watched transfers by source transaction hash.
type Watcher struct {
	messenger    *messenger.Messenger
	fetcher      Fetcher
	logger       *slog.Logger
	onError      func(model.StatusRequest, error)
	fetchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	statuses map[string]model.StatusResponse
	watches  map[string]func()
	closed   bool
}

// New creates a watcher.
func New(m *messenger.Messenger, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		messenger:    m,
		fetcher:      fetcher,
		logger:       logger,
		fetchTimeout: 30 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		statuses:     make(map[string]model.StatusResponse),
		watches:      make(map[string]func()),
	}
	w.onError = func(req model.StatusRequest, err error) {
		w.logger.Error("bridge status fetch failed", "src_tx_hash", req.SrcTxHash, "bridge_id", req.BridgeID, "err", err)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register exposes StartWatching as the
// BridgeStatusController:startPollingForBridgeTxStatus action.
func (w *Watcher) Register() error {
	return w.messenger.RegisterActionHandler(messenger.ActionStartPollingForBridgeTxStatus, func(_ context.Context, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, errors.New("bridgestatus: missing status request")
		}
		req, err := messenger.Decode[model.StatusRequest](args[0])
		if err != nil {
			return nil, fmt.Errorf("bridgestatus: decoding status request: %w", err)
		}
		return nil, w.StartWatching(req)
	})
}

// StartWatching subscribes to transaction confirmations for req. When a
// confirmation for req.SrcTxHash arrives the status is fetched once in the
// background. Watching the same hash twice keeps the first subscription.
func (w *Watcher) StartWatching(req model.StatusRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("bridgestatus: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("bridgestatus: watcher closed")
	}
	if _, ok := w.watches[req.SrcTxHash]; ok {
		return nil
	}
	w.watches[req.SrcTxHash] = w.messenger.Subscribe(messenger.EventTransactionConfirmed, func(payload any) {
		tx, err := messenger.Decode[messenger.TransactionConfirmed](payload)
		if err != nil {
			w.logger.Warn("bridgestatus: undecodable transaction event", "err", err)
			return
		}
		if tx.Hash != req.SrcTxHash {
			return
		}
		w.startFetch(req)
	})
	w.logger.Debug("watching bridge transfer", "src_tx_hash", req.SrcTxHash)
	return nil
}

// Watching reports whether hash has an active subscription.
func (w *Watcher) Watching(hash string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watches[hash]
	return ok
}

func (w *Watcher) startFetch(req model.StatusRequest) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		w.fetch(req)
	}()
}

func (w *Watcher) fetch(req model.StatusRequest) {
	ctx, cancel := context.WithTimeout(w.ctx, w.fetchTimeout)
	defer cancel()

	status, err := w.fetcher.FetchStatus(ctx, req)
	if err != nil {
		w.onError(req, err)
		return
	}

	// Merge into the latest map so concurrent fetches for different
	// hashes never overwrite each other.
	w.mu.Lock()
	w.statuses[req.SrcTxHash] = status
	snap := maps.Clone(w.statuses)
	w.mu.Unlock()

	w.emit(snap)
}

// Statuses returns a copy of every known status keyed by source tx hash.
func (w *Watcher) Statuses() map[string]model.StatusResponse {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.statuses)
}

// Status returns the last-known status for hash.
func (w *Watcher) Status(hash string) (model.StatusResponse, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.statuses[hash]
	return s, ok
}

// ResetState forgets every known status. Active subscriptions stay.
func (w *Watcher) ResetState() {
	w.mu.Lock()
	w.statuses = make(map[string]model.StatusResponse)
	w.mu.Unlock()

	w.emit(map[string]model.StatusResponse{})
}

// Wait blocks until in-flight fetches finish.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// Close drops every subscription and cancels in-flight fetches.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	unsubs := make([]func(), 0, len(w.watches))
	for _, unsub := range w.watches {
		unsubs = append(unsubs, unsub)
	}
	w.watches = make(map[string]func())
	w.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Watcher) emit(statuses map[string]model.StatusResponse) {
	w.messenger.Publish(messenger.EventBridgeStatusStateChange, State{TxStatuses: statuses})
}
