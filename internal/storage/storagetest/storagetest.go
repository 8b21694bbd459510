// Package storagetest is a behavioral test suite shared by KVStore
// implementations.
package storagetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/tjfontaine/polyglot-feed-filter/internal/storage"
)

// Run exercises a store produced by open. Each subtest gets a fresh store.
func Run(t *testing.T, open func(t *testing.T) storage.KVStore) {
	ctx := context.Background()

	t.Run("get missing keys", func(t *testing.T) {
		s := open(t)
		got, err := s.Get(ctx, "nope", "also-nope")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Get() = %v, want empty", got)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		s := open(t)
		err := s.Set(ctx, map[string]json.RawMessage{
			"a": json.RawMessage(`{"x":1}`),
			"b": json.RawMessage(`["y"]`),
		})
		if err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		got, err := s.Get(ctx, "a", "b", "c")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Get() returned %d keys, want 2", len(got))
		}
		if string(got["a"]) != `{"x":1}` {
			t.Errorf("a = %s", got["a"])
		}
		if string(got["b"]) != `["y"]` {
			t.Errorf("b = %s", got["b"])
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "k", `1`)
		mustSet(t, s, "k", `2`)

		got, _ := s.Get(ctx, "k")
		if string(got["k"]) != `2` {
			t.Errorf("k = %s, want 2", got["k"])
		}
	})

	t.Run("remove", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "k", `true`)
		if err := s.Remove(ctx, "k", "never-existed"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		got, _ := s.Get(ctx, "k")
		if _, ok := got["k"]; ok {
			t.Error("key still present after Remove()")
		}
	})

	t.Run("subscribers see changes", func(t *testing.T) {
		s := open(t)

		var (
			mu   sync.Mutex
			seen []map[string]storage.Change
		)
		unsubscribe := s.Subscribe(func(changes map[string]storage.Change) {
			mu.Lock()
			seen = append(seen, changes)
			mu.Unlock()
		})

		mustSet(t, s, "k", `1`)
		mustSet(t, s, "k", `1`) // unchanged, no event
		mustSet(t, s, "k", `2`)
		if err := s.Remove(ctx, "k"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		unsubscribe()
		mustSet(t, s, "k", `3`)

		mu.Lock()
		defer mu.Unlock()
		if len(seen) != 3 {
			t.Fatalf("got %d change sets, want 3: %v", len(seen), seen)
		}
		if c := seen[0]["k"]; c.OldValue != nil || string(c.NewValue) != `1` {
			t.Errorf("create change = %+v", c)
		}
		if c := seen[1]["k"]; string(c.OldValue) != `1` || string(c.NewValue) != `2` {
			t.Errorf("update change = %+v", c)
		}
		if c := seen[2]["k"]; string(c.OldValue) != `2` || c.NewValue != nil {
			t.Errorf("remove change = %+v", c)
		}
	})

	t.Run("returned values are not aliased", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "k", `"abc"`)

		got, _ := s.Get(ctx, "k")
		got["k"][1] = 'z'

		again, _ := s.Get(ctx, "k")
		if string(again["k"]) != `"abc"` {
			t.Errorf("stored value mutated through Get result: %s", again["k"])
		}
	})
}

func mustSet(t *testing.T, s storage.KVStore, key, value string) {
	t.Helper()
	if err := s.Set(context.Background(), map[string]json.RawMessage{key: json.RawMessage(value)}); err != nil {
		t.Fatalf("Set(%s) error = %v", key, err)
	}
}
