// Package client provides a transport-agnostic interface for the walletd
// control surface, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/walletd/internal/inactivity"
	"github.com/alfredjeanlab/walletd/internal/model"
)

// WalletClient is the interface the walletd CLI uses for the core lock and
// inactivity commands. It is implemented by HTTPClient (default) and
// GRPCClient.
type WalletClient interface {
	Health(ctx context.Context) (string, error)
	GetState(ctx context.Context) (*model.AppState, error)

	// Lock and Unlock report whether the lock state changed.
	Lock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) (bool, error)
	// WaitForUnlock blocks until the wallet unlocks. A zero timeout waits
	// until ctx ends.
	WaitForUnlock(ctx context.Context, showApprovalUI bool, timeout time.Duration) error

	RecordActivity(ctx context.Context) (*inactivity.State, error)
	// SetTimeout sends minutes as given; the server coerces numeric strings.
	SetTimeout(ctx context.Context, minutes string) (*TimeoutResponse, error)

	Close() error
}

// TimeoutResponse is the result of SetTimeout.
type TimeoutResponse struct {
	TimeoutMinutes model.Minutes    `json:"timeoutMinutes"`
	Timer          inactivity.State `json:"timer"`
}

// AddPollingTokenResponse is the result of HTTPClient.AddPollingToken.
type AddPollingTokenResponse struct {
	Token    string                `json:"token"`
	Category model.PollingCategory `json:"category"`
	Accepted bool                  `json:"accepted"`
}

// ListEventsRequest filters HTTPClient.ListEvents.
type ListEventsRequest struct {
	Topic   string
	AfterID int64
	Limit   int
}
