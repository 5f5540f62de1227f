package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/walletd/internal/model"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("store: not found")

// EventFilter narrows ListEvents.
type EventFilter struct {
	Topic   string // exact match; empty means all topics
	AfterID int64  // only events with a larger ID
	Limit   int    // 0 means the default of 100
}

// Store defines the persistence interface for walletd.
type Store interface {
	// Controller state, as "{namespace}:{name}" keyed JSON values.
	GetState(ctx context.Context, key string) (*model.StateRecord, error)
	SetState(ctx context.Context, rec *model.StateRecord) error
	ListState(ctx context.Context, namespace string) ([]*model.StateRecord, error)
	DeleteState(ctx context.Context, key string) error

	// Alarms
	SaveAlarm(ctx context.Context, a model.Alarm) error
	DeleteAlarm(ctx context.Context, name string) error
	ListAlarms(ctx context.Context) ([]model.Alarm, error)

	// Event log
	RecordEvent(ctx context.Context, event *model.Event) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
