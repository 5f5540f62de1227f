package lockstate

import (
	"github.com/alfredjeanlab/walletd/internal/hooks"
	"github.com/alfredjeanlab/walletd/internal/messenger"
)

// Announcer flips a Source and tells the rest of the system about it: the
// keyring events go out on the messenger and a lock runs the lock hook.
type Announcer struct {
	src  *Source
	m    *messenger.Messenger
	hook *hooks.LockHook
}

// NewAnnouncer wraps src. hook may be nil.
func NewAnnouncer(src *Source, m *messenger.Messenger, hook *hooks.LockHook) *Announcer {
	return &Announcer{src: src, m: m, hook: hook}
}

// Source returns the wrapped lock signal.
func (a *Announcer) Source() *Source { return a.src }

// Lock locks the wallet. It reports whether the state changed; nothing is
// announced when it was already locked.
func (a *Announcer) Lock(reason string) bool {
	if !a.src.Lock() {
		return false
	}
	a.m.Publish(messenger.EventKeyringLock, map[string]string{"reason": reason})
	a.hook.Fire(reason)
	return true
}

// Unlock unlocks the wallet and reports whether the state changed.
func (a *Announcer) Unlock() bool {
	if !a.src.Unlock() {
		return false
	}
	a.m.Publish(messenger.EventKeyringUnlock, nil)
	return true
}
