// Package badger implements the KV store on an embedded BadgerDB.
//
// Keys are stored under a fixed prefix so the database can be shared with
// other data. Each Set or Remove is one Badger transaction, so a combined
// write of several keys is atomic.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tjfontaine/polyglot-feed-filter/internal/storage"
)

const keyPrefix = "kv/"

// Config holds configuration for a BadgerDB-backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64

	// Logger receives BadgerDB's internal logs. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns defaults for persistent use at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a BadgerDB implementation of KVStore.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
	gcDone chan struct{}
	storage.Notifier
}

var _ storage.KVStore = (*Store)(nil)

// Open opens (creating if needed) a store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

func dbKey(key string) []byte {
	return []byte(keyPrefix + key)
}

func readValue(txn *badger.Txn, key string) (json.RawMessage, error) {
	item, err := txn.Get(dbKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	result := make(map[string]json.RawMessage, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			v, err := readValue(txn, key)
			if err != nil {
				return fmt.Errorf("read %s: %w", key, err)
			}
			if v != nil {
				result[key] = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) Set(ctx context.Context, items map[string]json.RawMessage) error {
	changes := make(map[string]storage.Change, len(items))
	err := s.db.Update(func(txn *badger.Txn) error {
		for key, value := range items {
			old, err := readValue(txn, key)
			if err != nil {
				return fmt.Errorf("read %s: %w", key, err)
			}
			if err := txn.Set(dbKey(key), storage.Clone(value)); err != nil {
				return fmt.Errorf("write %s: %w", key, err)
			}
			storage.Diff(changes, key, old, value)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Notify(changes)
	return nil
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	changes := make(map[string]storage.Change, len(keys))
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			old, err := readValue(txn, key)
			if err != nil {
				return fmt.Errorf("read %s: %w", key, err)
			}
			if old == nil {
				continue
			}
			if err := txn.Delete(dbKey(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			storage.Diff(changes, key, old, nil)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Notify(changes)
	return nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	return s.db.Close()
}
