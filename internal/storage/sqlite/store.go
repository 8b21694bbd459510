package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-feed-filter/internal/storage"
)

// Store is a SQLite implementation of KVStore
type Store struct {
	db *sqlx.DB
	storage.Notifier
}

var _ storage.KVStore = (*Store)(nil)

type kvRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// New creates a new SQLite store. dbPath may be ":memory:".
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range pragmaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	return err
}

func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	result := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT key, value FROM kv WHERE key IN (?)`, keys)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []kvRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select keys: %w", err)
	}
	for _, row := range rows {
		result[row.Key] = json.RawMessage(row.Value)
	}
	return result, nil
}

func currentValue(ctx context.Context, tx *sqlx.Tx, key string) (json.RawMessage, error) {
	var value string
	err := tx.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value), nil
}

func (s *Store) Set(ctx context.Context, items map[string]json.RawMessage) error {
	changes := make(map[string]storage.Change, len(items))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range items {
		old, err := currentValue(ctx, tx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		_, err = tx.ExecContext(ctx, upsertKV, key, string(value), now)
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		storage.Diff(changes, key, old, value)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.Notify(changes)
	return nil
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	changes := make(map[string]storage.Change, len(keys))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		old, err := currentValue(ctx, tx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if old == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		storage.Diff(changes, key, old, nil)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.Notify(changes)
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
