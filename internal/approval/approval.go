// Package approval tracks requests that need an explicit user decision,
// such as "unlock the wallet". A request stays pending until it is
// accepted, rejected, or its context is cancelled.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
)

var (
	ErrNotFound  = errors.New("approval: request not found")
	ErrDuplicate = errors.New("approval: request already pending")
	ErrRejected  = errors.New("approval: request rejected")
)

// Controller is safe for concurrent use.
type Controller struct {
	messenger *messenger.Messenger
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingRequest
	order   []string
}

type pendingRequest struct {
	req    model.ApprovalRequest
	result chan error
	done   chan struct{}
}

// New creates an approval controller that announces changes on m.
func New(m *messenger.Messenger, logger *slog.Logger) *Controller {
	return &Controller{
		messenger: m,
		logger:    logger,
		pending:   make(map[string]*pendingRequest),
	}
}

// Register exposes AddRequest and AcceptRequest as messenger actions.
func (c *Controller) Register() error {
	err := c.messenger.RegisterActionHandler(messenger.ActionApprovalAddRequest, func(ctx context.Context, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, errors.New("approval: missing request")
		}
		req, err := messenger.Decode[model.ApprovalRequest](args[0])
		if err != nil {
			return nil, fmt.Errorf("approval: decoding request: %w", err)
		}
		return nil, c.Request(ctx, req)
	})
	if err != nil {
		return err
	}
	return c.messenger.RegisterActionHandler(messenger.ActionApprovalAcceptRequest, func(_ context.Context, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, errors.New("approval: missing request id")
		}
		id, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("approval: request id must be a string, got %T", args[0])
		}
		return nil, c.AcceptRequest(id)
	})
}

// AddRequest registers req and returns a channel that receives exactly one
// value when the request is resolved: nil on accept, an ErrRejected-wrapped
// error on reject, or ctx.Err() if ctx ends first. An empty ID is filled
// with a random UUID.
func (c *Controller) AddRequest(ctx context.Context, req model.ApprovalRequest) (<-chan error, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Origin == "" {
		req.Origin = model.OriginWallet
	}
	if req.Type == "" {
		return nil, errors.New("approval: type is required")
	}
	req.CreatedAt = time.Now().UTC()

	p := &pendingRequest{
		req:    req,
		result: make(chan error, 1),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if _, ok := c.pending[req.ID]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, req.ID)
	}
	c.pending[req.ID] = p
	c.order = append(c.order, req.ID)
	c.mu.Unlock()

	c.logger.Info("approval: request added", "id", req.ID, "type", req.Type, "origin", req.Origin)
	c.emit()

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				_ = c.resolve(req.ID, ctx.Err())
			case <-p.done:
			}
		}()
	}
	return p.result, nil
}

// Request adds req and blocks until it is resolved.
func (c *Controller) Request(ctx context.Context, req model.ApprovalRequest) error {
	result, err := c.AddRequest(ctx, req)
	if err != nil {
		return err
	}
	return <-result
}

// AcceptRequest resolves the request successfully.
func (c *Controller) AcceptRequest(id string) error {
	return c.resolve(id, nil)
}

// RejectRequest resolves the request with an error.
func (c *Controller) RejectRequest(id, reason string) error {
	if reason == "" {
		reason = "user rejected the request"
	}
	return c.resolve(id, fmt.Errorf("%w: %s", ErrRejected, reason))
}

func (c *Controller) resolve(id string, result error) error {
	c.mu.Lock()
	p, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(c.pending, id)
	for i, pid := range c.order {
		if pid == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	close(p.done)
	c.mu.Unlock()

	p.result <- result
	c.logger.Info("approval: request resolved", "id", id, "accepted", result == nil)
	c.emit()
	return nil
}

// List returns pending requests, oldest first.
func (c *Controller) List() []model.ApprovalRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ApprovalRequest, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.pending[id].req)
	}
	return out
}

// Get returns a pending request by id.
func (c *Controller) Get(id string) (model.ApprovalRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return model.ApprovalRequest{}, false
	}
	return p.req, true
}

func (c *Controller) emit() {
	c.messenger.Publish(messenger.EventApprovalStateChange, map[string]any{
		"pendingApprovals": c.List(),
	})
}
