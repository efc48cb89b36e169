// Package presence tracks the live notification streams of connected users.
package presence

import (
	"sync"
)

// Notification kinds
const (
	KindSyncSucceeded = "roadmap-sync-succeeded"
	KindSyncFailed    = "roadmap-sync-failed"
)

type Notification struct {
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Registry maps a user to the channel of their latest stream. A new registration replaces the previous one.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]chan Notification
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]chan Notification)}
}

func (reg *Registry) Register(userID string, ch chan Notification) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.streams[userID] = ch
}

func (reg *Registry) Lookup(userID string) (chan Notification, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ch, ok := reg.streams[userID]
	return ch, ok
}

// Unregister removes ch wherever it is registered. Channels registered since are left alone.
func (reg *Registry) Unregister(ch chan Notification) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for userID, c := range reg.streams {
		if c == ch {
			delete(reg.streams, userID)
		}
	}
}

// Len is the number of connected users.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.streams)
}

// Notifier pushes notifications to connected users.
type Notifier struct {
	registry *Registry
}

func NewNotifier(registry *Registry) *Notifier {
	return &Notifier{registry: registry}
}

// Notify delivers n to userID without blocking. It reports whether n was delivered;
// offline users and full streams miss it.
func (nf *Notifier) Notify(userID string, n Notification) bool {
	if nf == nil || userID == "" {
		return false
	}
	// the read lock keeps Unregister from racing with the send on a stream being closed
	nf.registry.mu.RLock()
	defer nf.registry.mu.RUnlock()

	ch, ok := nf.registry.streams[userID]
	if !ok {
		return false
	}
	select {
	case ch <- n:
		return true
	default:
		return false
	}
}
