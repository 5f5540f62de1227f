// Package messenger is the in-process publish/subscribe bus the controllers
// use to talk to each other. Events are delivered synchronously to local
// subscribers in registration order; actions are request/response handlers
// registered by name. A Relay bridges the bus to NATS so controllers living
// in other processes can take part.
package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoHandler is returned by Call when no handler is registered.
	ErrNoHandler = errors.New("messenger: no action handler registered")
	// ErrHandlerExists is returned when registering a duplicate action.
	ErrHandlerExists = errors.New("messenger: action handler already registered")
)

// Handler receives an event payload. Payloads published locally keep their
// Go type; payloads relayed from NATS arrive as json.RawMessage. Use Decode
// to handle both.
type Handler func(payload any)

// ActionHandler serves a named action.
type ActionHandler func(ctx context.Context, args ...any) (any, error)

// Envelope is what taps observe for every published event.
type Envelope struct {
	Event   string
	Payload any
	// Remote is set for events injected from another process.
	Remote bool
}

type subscription struct {
	id      uint64
	handler Handler
}

type tap struct {
	id uint64
	fn func(Envelope)
}

// Messenger is safe for concurrent use.
type Messenger struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[string][]subscription
	taps    []tap
	actions map[string]ActionHandler
}

// New returns an empty messenger.
func New() *Messenger {
	return &Messenger{
		subs:    make(map[string][]subscription),
		actions: make(map[string]ActionHandler),
	}
}

// Subscribe registers h for event and returns a function that removes it.
func (m *Messenger) Subscribe(event string, h Handler) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[event] = append(m.subs[event], subscription{id: id, handler: h})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			list := m.subs[event]
			for i, s := range list {
				if s.id == id {
					m.subs[event] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(m.subs[event]) == 0 {
				delete(m.subs, event)
			}
		})
	}
}

// Tap registers fn to observe every event, local or remote. Taps run after
// the event's subscribers.
func (m *Messenger) Tap(fn func(Envelope)) (untap func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.taps = append(m.taps, tap{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, t := range m.taps {
			if t.id == id {
				m.taps = append(m.taps[:i:i], m.taps[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers payload to every subscriber of event.
func (m *Messenger) Publish(event string, payload any) {
	m.deliver(Envelope{Event: event, Payload: payload})
}

// Inject delivers an event that originated in another process.
func (m *Messenger) Inject(event string, data json.RawMessage) {
	m.deliver(Envelope{Event: event, Payload: data, Remote: true})
}

func (m *Messenger) deliver(env Envelope) {
	// Snapshot under the lock so handlers may subscribe or publish.
	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.subs[env.Event]))
	for _, s := range m.subs[env.Event] {
		handlers = append(handlers, s.handler)
	}
	taps := make([]func(Envelope), 0, len(m.taps))
	for _, t := range m.taps {
		taps = append(taps, t.fn)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(env.Payload)
	}
	for _, fn := range taps {
		fn(env)
	}
}

// RegisterActionHandler registers h under name.
func (m *Messenger) RegisterActionHandler(name string, h ActionHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[name]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerExists, name)
	}
	m.actions[name] = h
	return nil
}

// UnregisterActionHandler removes the handler for name, if any.
func (m *Messenger) UnregisterActionHandler(name string) {
	m.mu.Lock()
	delete(m.actions, name)
	m.mu.Unlock()
}

// Call invokes the action registered under name.
func (m *Messenger) Call(ctx context.Context, name string, args ...any) (any, error) {
	m.mu.RLock()
	h, ok := m.actions[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, name)
	}
	return h(ctx, args...)
}

// Decode converts an event payload to T. It accepts a T (or *T) published
// locally and raw JSON relayed from another process.
func Decode[T any](payload any) (T, error) {
	var out T
	switch v := payload.(type) {
	case T:
		return v, nil
	case *T:
		if v == nil {
			return out, errors.New("messenger: nil payload")
		}
		return *v, nil
	case json.RawMessage:
		err := json.Unmarshal(v, &out)
		return out, err
	case []byte:
		err := json.Unmarshal(v, &out)
		return out, err
	default:
		// Fall back to a JSON round trip for structurally compatible types.
		data, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("messenger: encoding payload: %w", err)
		}
		err = json.Unmarshal(data, &out)
		return out, err
	}
}
