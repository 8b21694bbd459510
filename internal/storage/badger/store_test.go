package badger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tjfontaine/polyglot-feed-filter/internal/storage"
	"github.com/tjfontaine/polyglot-feed-filter/internal/storage/storagetest"
)

func TestBadgerStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.KVStore {
		store, err := Open(InMemoryConfig())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestBadgerStore_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Set(ctx, map[string]json.RawMessage{"tweet-filter-cache": json.RawMessage(`{"t1":true}`)}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "tweet-filter-cache")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got["tweet-filter-cache"]) != `{"t1":true}` {
		t.Errorf("value = %s", got["tweet-filter-cache"])
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("Open() without path should fail")
	}
}
