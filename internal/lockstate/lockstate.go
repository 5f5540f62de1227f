// Package lockstate holds the wallet's locked/unlocked flag and notifies
// listeners on transitions. The keyring owns the real secret material;
// this is only the signal other components gate on.
package lockstate

import (
	"sync"

	"github.com/alfredjeanlab/walletd/internal/messenger"
)

// Source is the lock signal. The zero value is not usable; call New.
type Source struct {
	mu       sync.Mutex
	unlocked bool
	onUnlock []func()
	onLock   []func()
}

// New returns a source in the given initial state.
func New(unlocked bool) *Source {
	return &Source{unlocked: unlocked}
}

// IsUnlocked reports the current state.
func (s *Source) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// AddUnlockListener registers cb to run on every locked→unlocked transition.
func (s *Source) AddUnlockListener(cb func()) {
	s.mu.Lock()
	s.onUnlock = append(s.onUnlock, cb)
	s.mu.Unlock()
}

// AddLockListener registers cb to run on every unlocked→locked transition.
func (s *Source) AddLockListener(cb func()) {
	s.mu.Lock()
	s.onLock = append(s.onLock, cb)
	s.mu.Unlock()
}

// Unlock marks the wallet unlocked. Listeners run after the state flips,
// outside the lock, and only when the state actually changed.
func (s *Source) Unlock() bool {
	return s.set(true)
}

// Lock marks the wallet locked.
func (s *Source) Lock() bool {
	return s.set(false)
}

func (s *Source) set(unlocked bool) bool {
	s.mu.Lock()
	if s.unlocked == unlocked {
		s.mu.Unlock()
		return false
	}
	s.unlocked = unlocked
	listeners := s.onLock
	if unlocked {
		listeners = s.onUnlock
	}
	listeners = append([]func(){}, listeners...)
	s.mu.Unlock()

	for _, cb := range listeners {
		cb()
	}
	return true
}

// Follow mirrors keyring lock/unlock events from the messenger, so a
// keyring running in another process can drive the signal.
func (s *Source) Follow(m *messenger.Messenger) (stop func()) {
	unsubUnlock := m.Subscribe(messenger.EventKeyringUnlock, func(any) { s.Unlock() })
	unsubLock := m.Subscribe(messenger.EventKeyringLock, func(any) { s.Lock() })
	return func() {
		unsubUnlock()
		unsubLock()
	}
}
