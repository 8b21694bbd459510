package ports

import (
	"context"
	"encoding/json"
)

// Change describes one key's transition in a KVStore.
// OldValue is nil when the key did not exist, NewValue is nil when it was removed.
type Change struct {
	OldValue json.RawMessage
	NewValue json.RawMessage
}

// ChangeListener receives every batch of changes committed by a store.
type ChangeListener func(changes map[string]Change)

// KVStore is the persisted key-value store shared by the contexts.
// Values are JSON documents; a store never interprets them.
type KVStore interface {
	// Get returns the values of the requested keys that exist.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)

	// Set writes all items in one commit.
	Set(ctx context.Context, items map[string]json.RawMessage) error

	// Remove deletes the keys in one commit. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error

	// Subscribe registers a listener and returns its unsubscribe function.
	Subscribe(listener ChangeListener) (unsubscribe func())

	// Close closes the storage connection
	Close() error
}
