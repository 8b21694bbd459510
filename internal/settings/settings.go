// Package settings reads and writes the persisted user settings record.
//
// Reads are lenient: a missing or malformed record yields the defaults and
// an unsupported language falls back to English. The record belongs to the
// options surface; this package never rejects what it finds there.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
)

// Key is the KV key of the settings record.
const Key = "settings"

type record struct {
	Enabled        *bool   `json:"enabled"`
	Prompt         *string `json:"prompt"`
	ShowStatistics *bool   `json:"showStatistics"`
	OutputLanguage *string `json:"outputLanguage"`
}

// Decode parses a stored record leniently. Absent fields keep their default.
func Decode(raw json.RawMessage) (domain.Settings, error) {
	s := domain.DefaultSettings()
	if raw == nil {
		return s, nil
	}

	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return s, domain.ErrCorruption("decode settings", err)
	}
	if r.Enabled != nil {
		s.Enabled = *r.Enabled
	}
	if r.Prompt != nil {
		s.Prompt = *r.Prompt
	}
	if r.ShowStatistics != nil {
		s.ShowStatistics = *r.ShowStatistics
	}
	if r.OutputLanguage != nil {
		if lang, ok := domain.ParseOutputLanguage(*r.OutputLanguage); ok {
			s.OutputLanguage = lang
		}
	}
	return s, nil
}

// Store reads and writes settings in a KV store.
type Store struct {
	kv     ports.KVStore
	logger *slog.Logger
}

// NewStore creates a settings store.
func NewStore(kv ports.KVStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Load returns the current settings. Storage and decode failures are logged
// and read as defaults.
func (s *Store) Load(ctx context.Context) domain.Settings {
	settings, err := s.Read(ctx)
	if err != nil {
		s.logger.Warn("failed to read settings, using defaults", slog.String("error", err.Error()))
		return domain.DefaultSettings()
	}
	return settings
}

// Read returns the current settings, or an error when the store cannot be
// read. A malformed record is logged and read as defaults.
func (s *Store) Read(ctx context.Context) (domain.Settings, error) {
	raw, err := s.kv.Get(ctx, Key)
	if err != nil {
		return domain.DefaultSettings(), domain.ErrStorage("read settings", err)
	}
	settings, err := Decode(raw[Key])
	if err != nil {
		s.logger.Warn("malformed settings record, using defaults", slog.String("error", err.Error()))
	}
	return settings, nil
}

// Save writes the settings record.
func (s *Store) Save(ctx context.Context, settings domain.Settings) error {
	b, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.kv.Set(ctx, map[string]json.RawMessage{Key: b}); err != nil {
		return domain.ErrStorage("write settings", err)
	}
	return nil
}

// Changed extracts the old and new settings from a store change set.
// ok is false when the set does not touch the record.
func Changed(changes map[string]ports.Change) (before, after domain.Settings, ok bool) {
	c, ok := changes[Key]
	if !ok {
		return before, after, false
	}
	before, _ = Decode(c.OldValue)
	after, _ = Decode(c.NewValue)
	return before, after, true
}
