// Package cache keeps evaluation verdicts in the persisted KV store as a
// bounded LRU.
//
// Two keys are used: ValuesKey holds the id→verdict object and OrderKey the
// recency list, least recently used first. Get, Set and Clear hold one lock
// across their whole read-modify-write cycle. Has and GetBatch read without
// the lock and may observe a slightly stale cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/syncx"
	"github.com/tjfontaine/polyglot-feed-filter/internal/telemetry"
)

const (
	ValuesKey = "tweet-filter-cache"
	OrderKey  = "tweet-filter-cache-order"

	DefaultMaxEntries = 500
)

// Manager is the evaluation cache.
type Manager struct {
	store      ports.KVStore
	maxEntries int
	lock       *syncx.Lock
	logger     *slog.Logger
}

// NewManager creates a cache over store. maxEntries <= 0 selects DefaultMaxEntries.
func NewManager(store ports.KVStore, maxEntries int, logger *slog.Logger) *Manager {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      store,
		maxEntries: maxEntries,
		lock:       syncx.NewLock(),
		logger:     logger,
	}
}

type snapshot struct {
	values map[string]bool
	order  []string
}

// load reads both keys. The order list is sanitized so it never names an id
// twice or an id missing from values.
func (m *Manager) load(ctx context.Context) (snapshot, error) {
	raw, err := m.store.Get(ctx, ValuesKey, OrderKey)
	if err != nil {
		return snapshot{}, domain.ErrStorage("read cache", err)
	}

	snap := snapshot{values: map[string]bool{}}
	if v, ok := raw[ValuesKey]; ok {
		if err := json.Unmarshal(v, &snap.values); err != nil {
			return snapshot{}, domain.ErrCorruption(fmt.Sprintf("decode %s", ValuesKey), err)
		}
		if snap.values == nil {
			snap.values = map[string]bool{}
		}
	}

	var order []string
	if v, ok := raw[OrderKey]; ok {
		if err := json.Unmarshal(v, &order); err != nil {
			return snapshot{}, domain.ErrCorruption(fmt.Sprintf("decode %s", OrderKey), err)
		}
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if _, ok := snap.values[id]; !ok || seen[id] {
			continue
		}
		seen[id] = true
		snap.order = append(snap.order, id)
	}
	return snap, nil
}

// reset wipes both keys after a failed read. Caller holds the lock.
func (m *Manager) reset(ctx context.Context, cause error) {
	telemetry.CacheResets.Inc()
	m.logger.Warn("evaluation cache unreadable, resetting", slog.String("error", cause.Error()))
	if err := m.store.Remove(ctx, ValuesKey, OrderKey); err != nil {
		m.logger.Warn("failed to reset evaluation cache", slog.String("error", err.Error()))
	}
}

func (m *Manager) save(ctx context.Context, snap snapshot, includeValues bool) error {
	items := make(map[string]json.RawMessage, 2)

	order := snap.order
	if order == nil {
		order = []string{}
	}
	b, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode cache order: %w", err)
	}
	items[OrderKey] = b

	if includeValues {
		b, err := json.Marshal(snap.values)
		if err != nil {
			return fmt.Errorf("encode cache values: %w", err)
		}
		items[ValuesKey] = b
	}

	if err := m.store.Set(ctx, items); err != nil {
		return domain.ErrStorage("write cache", err)
	}
	return nil
}

func moveToTail(order []string, id string) []string {
	if i := slices.Index(order, id); i >= 0 {
		order = slices.Delete(order, i, i+1)
	}
	return append(order, id)
}

// Get returns the cached verdict and promotes the entry. Unreadable cache
// state resets the cache and reads as a miss.
func (m *Manager) Get(ctx context.Context, id string) (show bool, ok bool) {
	release, err := m.lock.Acquire(ctx)
	if err != nil {
		return false, false
	}
	defer release()

	snap, err := m.load(ctx)
	if err != nil {
		m.reset(ctx, err)
		telemetry.CacheLookups.WithLabelValues("miss").Inc()
		return false, false
	}

	show, ok = snap.values[id]
	if !ok {
		telemetry.CacheLookups.WithLabelValues("miss").Inc()
		return false, false
	}
	telemetry.CacheLookups.WithLabelValues("hit").Inc()

	snap.order = moveToTail(snap.order, id)
	if err := m.save(ctx, snap, false); err != nil {
		m.logger.Warn("failed to promote cache entry", slog.String("id", id), slog.String("error", err.Error()))
	}
	return show, true
}

// Set stores a verdict as the most recently used entry, evicting one entry
// first when a new id would exceed the bound. Both keys are written in one
// store commit.
func (m *Manager) Set(ctx context.Context, id string, show bool) error {
	release, err := m.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cache lock: %w", err)
	}
	defer release()

	snap, err := m.load(ctx)
	if err != nil {
		m.reset(ctx, err)
		snap = snapshot{values: map[string]bool{}}
	}

	if _, exists := snap.values[id]; !exists && len(snap.values) >= m.maxEntries {
		m.evictOne(&snap)
	}

	snap.values[id] = show
	snap.order = moveToTail(snap.order, id)
	return m.save(ctx, snap, true)
}

// evictOne removes the least recently used entry. With no recency
// information it removes the smallest id so the choice is deterministic.
func (m *Manager) evictOne(snap *snapshot) {
	var victim string
	if len(snap.order) > 0 {
		victim = snap.order[0]
		snap.order = snap.order[1:]
	} else {
		for id := range snap.values {
			if victim == "" || id < victim {
				victim = id
			}
		}
	}
	delete(snap.values, victim)
	telemetry.CacheEvictions.Inc()
}

// readValues reads the verdict map without the lock. Errors read as empty.
func (m *Manager) readValues(ctx context.Context) map[string]bool {
	raw, err := m.store.Get(ctx, ValuesKey)
	if err != nil {
		return nil
	}
	v, ok := raw[ValuesKey]
	if !ok {
		return nil
	}
	var values map[string]bool
	if err := json.Unmarshal(v, &values); err != nil {
		return nil
	}
	return values
}

// Has reports whether id is cached. It does not promote.
func (m *Manager) Has(ctx context.Context, id string) bool {
	_, ok := m.readValues(ctx)[id]
	return ok
}

// GetBatch returns the verdicts of the requested ids that are cached.
// Missing ids are omitted. It does not promote.
func (m *Manager) GetBatch(ctx context.Context, ids []string) map[string]bool {
	values := m.readValues(ctx)
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if show, ok := values[id]; ok {
			out[id] = show
		}
	}
	return out
}

// Clear removes the cache from the store.
func (m *Manager) Clear(ctx context.Context) error {
	release, err := m.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cache lock: %w", err)
	}
	defer release()

	if err := m.store.Remove(ctx, ValuesKey, OrderKey); err != nil {
		return domain.ErrStorage("clear cache", err)
	}
	m.logger.Info("evaluation cache cleared")
	return nil
}

// Len returns the number of cached verdicts.
func (m *Manager) Len(ctx context.Context) int {
	return len(m.readValues(ctx))
}
