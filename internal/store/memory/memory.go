// Package memory implements store.Store in process memory. It backs the
// daemon when no database is configured and stands in for Postgres in
// tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/walletd/internal/model"
	"github.com/alfredjeanlab/walletd/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu     sync.RWMutex
	state  map[string]model.StateRecord
	alarms map[string]model.Alarm
	events []model.Event
	nextID int64
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		state:  make(map[string]model.StateRecord),
		alarms: make(map[string]model.Alarm),
	}
}

func (s *Store) GetState(_ context.Context, key string) (*model.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.state[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.Value = slices.Clone(rec.Value)
	return &rec, nil
}

func (s *Store) SetState(_ context.Context, rec *model.StateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	stored := *rec
	stored.Value = slices.Clone(rec.Value)
	s.state[rec.Key] = stored
	return nil
}

func (s *Store) ListState(_ context.Context, namespace string) ([]*model.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := namespace + ":"
	var out []*model.StateRecord
	for k, rec := range s.state {
		if namespace != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		rec.Value = slices.Clone(rec.Value)
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) DeleteState(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.state, key)
	return nil
}

func (s *Store) SaveAlarm(_ context.Context, a model.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms[a.Name] = a
	return nil
}

func (s *Store) DeleteAlarm(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alarms, name)
	return nil
}

func (s *Store) ListAlarms(_ context.Context) ([]model.Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) RecordEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = time.Now().UTC()
	stored := *e
	stored.Payload = slices.Clone(e.Payload)
	s.events = append(s.events, stored)
	return nil
}

func (s *Store) ListEvents(_ context.Context, filter store.EventFilter) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var out []*model.Event
	for _, e := range s.events {
		if e.ID <= filter.AfterID {
			continue
		}
		if filter.Topic != "" && e.Topic != filter.Topic {
			continue
		}
		e.Payload = slices.Clone(e.Payload)
		out = append(out, &e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// RunInTransaction runs fn against s. Writes are not rolled back on error.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *Store) Close() error { return nil }
