// Package unlock implements the wait-for-unlock gate: callers that need an
// unlocked wallet queue up until the unlock signal fires, and at most one
// "please unlock" approval request is shown to the user at a time.
package unlock

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/walletd/internal/model"
)

// Approver raises and accepts user approval requests.
type Approver interface {
	// AddRequest registers req and returns a channel that yields the
	// outcome once the request is resolved.
	AddRequest(ctx context.Context, req model.ApprovalRequest) (<-chan error, error)
	AcceptRequest(id string) error
}

// Gate queues unlock waiters. It is safe for concurrent use.
type Gate struct {
	isUnlocked func() bool
	approver   Approver
	notify     func()
	logger     *slog.Logger
	newID      func() string

	mu         sync.Mutex
	waiters    []chan struct{}
	approvalID string
	registered bool

	// approvalMu serializes registering and accepting the approval request
	// so an unlock can never race ahead of the request it must accept.
	approvalMu sync.Mutex
}

// New creates a gate. notify is called whenever the waiter queue changes;
// approver may be nil, in which case no approval UI is ever requested.
func New(isUnlocked func() bool, approver Approver, notify func(), logger *slog.Logger) *Gate {
	if notify == nil {
		notify = func() {}
	}
	return &Gate{
		isUnlocked: isUnlocked,
		approver:   approver,
		notify:     notify,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// AwaitUnlock returns a channel that is closed once the wallet is unlocked.
// If it already is, the channel is closed on return. When showApprovalUI is
// set and no unlock approval is outstanding, one is requested.
func (g *Gate) AwaitUnlock(showApprovalUI bool) <-chan struct{} {
	return g.enqueue(showApprovalUI)
}

func (g *Gate) enqueue(showApprovalUI bool) chan struct{} {
	g.mu.Lock()
	if g.isUnlocked() {
		g.mu.Unlock()
		return closedCh
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)

	var id string
	if showApprovalUI && g.approvalID == "" && g.approver != nil {
		id = g.newID()
		g.approvalID = id
	}
	g.mu.Unlock()

	g.notify()
	if id != "" {
		g.requestApproval(id)
	}
	return ch
}

// Wait blocks until the wallet is unlocked or ctx ends. A waiter whose ctx
// ends leaves the queue; an outstanding approval request is kept.
func (g *Gate) Wait(ctx context.Context, showApprovalUI bool) error {
	ch := g.enqueue(showApprovalUI)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		if g.forget(ch) {
			g.notify()
		}
		return ctx.Err()
	}
}

// forget drops ch from the queue. It reports false when an unlock already
// released it.
func (g *Gate) forget(ch chan struct{}) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, w := range g.waiters {
		if w == ch {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (g *Gate) requestApproval(id string) {
	g.approvalMu.Lock()
	defer g.approvalMu.Unlock()

	g.mu.Lock()
	current := g.approvalID == id
	g.mu.Unlock()
	if !current {
		// Unlocked before the request was raised.
		return
	}

	result, err := g.approver.AddRequest(context.Background(), model.ApprovalRequest{
		ID:     id,
		Origin: model.OriginWallet,
		Type:   model.ApprovalTypeUnlock,
	})
	if err != nil {
		g.logger.Warn("unlock: approval request failed", "id", id, "err", err)
		g.clearApproval(id)
		return
	}

	g.mu.Lock()
	if g.approvalID == id {
		g.registered = true
	}
	g.mu.Unlock()

	go func() {
		// Whatever the outcome, a later waiter may raise a fresh request.
		if err := <-result; err != nil {
			g.logger.Debug("unlock: approval request ended without accept", "id", id, "err", err)
		}
		g.clearApproval(id)
	}()
}

func (g *Gate) clearApproval(id string) {
	g.mu.Lock()
	if g.approvalID == id {
		g.approvalID = ""
		g.registered = false
	}
	g.mu.Unlock()
}

// OnUnlocked releases every waiter in FIFO order and accepts the pending
// approval request, if any. Accept failures are logged.
func (g *Gate) OnUnlocked() {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	if len(waiters) > 0 {
		g.notify()
	}

	g.approvalMu.Lock()
	defer g.approvalMu.Unlock()

	g.mu.Lock()
	id, registered := g.approvalID, g.registered
	g.approvalID = ""
	g.registered = false
	g.mu.Unlock()

	if id == "" || !registered {
		return
	}
	if err := g.approver.AcceptRequest(id); err != nil {
		g.logger.Error("unlock: failed to accept approval request", "id", id, "err", err)
	}
}

// Waiting returns the number of queued waiters.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

// ApprovalID returns the outstanding approval request id, or "".
func (g *Gate) ApprovalID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.approvalID
}
