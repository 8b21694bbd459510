// Package storage holds what the KV store implementations share: change
// fan-out to subscribers and change-set computation.
package storage

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
)

// Re-export storage types from core/ports for the store packages.
type (
	KVStore        = ports.KVStore
	Change         = ports.Change
	ChangeListener = ports.ChangeListener
)

// Notifier fans committed change sets out to subscribers. The zero value is
// ready to use. Listeners run synchronously on the committing goroutine and
// must not call back into the store that notified them.
type Notifier struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]ChangeListener
}

// Subscribe registers a listener and returns its unsubscribe function.
func (n *Notifier) Subscribe(listener ChangeListener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listeners == nil {
		n.listeners = make(map[int]ChangeListener)
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Notify delivers a change set. Empty sets are dropped.
func (n *Notifier) Notify(changes map[string]Change) {
	if len(changes) == 0 {
		return
	}

	n.mu.RLock()
	listeners := make([]ChangeListener, 0, len(n.listeners))
	for _, l := range n.listeners {
		listeners = append(listeners, l)
	}
	n.mu.RUnlock()

	for _, l := range listeners {
		l(changes)
	}
}

// Diff records a key transition into changes unless the value is unchanged.
// A nil value means absent.
func Diff(changes map[string]Change, key string, oldValue, newValue json.RawMessage) {
	if oldValue == nil && newValue == nil {
		return
	}
	if oldValue != nil && newValue != nil && bytes.Equal(oldValue, newValue) {
		return
	}
	changes[key] = Change{OldValue: clone(oldValue), NewValue: clone(newValue)}
}

func clone(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}

// Clone copies a value so callers cannot alias store memory.
func Clone(b json.RawMessage) json.RawMessage {
	return clone(b)
}
