package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tjfontaine/polyglot-feed-filter/internal/storage"
)

// Store is an in-memory implementation of KVStore
type Store struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
	storage.Notifier
}

var _ storage.KVStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		values: make(map[string]json.RawMessage),
	}
}

func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if v, ok := s.values[key]; ok {
			result[key] = storage.Clone(v)
		}
	}
	return result, nil
}

func (s *Store) Set(ctx context.Context, items map[string]json.RawMessage) error {
	s.mu.Lock()
	changes := make(map[string]storage.Change, len(items))
	for key, value := range items {
		storage.Diff(changes, key, s.values[key], value)
		s.values[key] = storage.Clone(value)
	}
	s.mu.Unlock()

	s.Notify(changes)
	return nil
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	changes := make(map[string]storage.Change, len(keys))
	for _, key := range keys {
		if old, ok := s.values[key]; ok {
			storage.Diff(changes, key, old, nil)
			delete(s.values, key)
		}
	}
	s.mu.Unlock()

	s.Notify(changes)
	return nil
}

func (s *Store) Close() error {
	return nil
}
