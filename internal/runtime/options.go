package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/polyglot-feed-filter/internal/adapters/config/file"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/storage/badger"
	"github.com/tjfontaine/polyglot-feed-filter/internal/storage/memory"
	"github.com/tjfontaine/polyglot-feed-filter/internal/storage/sqlite"
)

// Option is a functional option for configuring a Runtime.
type Option func(*Runtime) error

// WithFileConfig uses file-based configuration with hot-reload.
// Edits to the filter section are written to the persisted settings.
func WithFileConfig(path string) Option {
	return func(r *Runtime) error {
		provider, err := file.NewProvider(path, r.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		r.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(r *Runtime) error {
		r.config = provider
		return nil
	}
}

// WithBadger stores settings and cached verdicts in BadgerDB at path.
func WithBadger(path string) Option {
	return func(r *Runtime) error {
		cfg := badger.DefaultConfig(path)
		cfg.Logger = r.logger
		store, err := badger.Open(cfg)
		if err != nil {
			return fmt.Errorf("create badger storage: %w", err)
		}
		r.kv = store
		return nil
	}
}

// WithSQLite stores settings and cached verdicts in SQLite at path.
func WithSQLite(path string) Option {
	return func(r *Runtime) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		r.kv = store
		return nil
	}
}

// WithMemoryStorage keeps everything in process memory.
func WithMemoryStorage() Option {
	return func(r *Runtime) error {
		r.kv = memory.New()
		return nil
	}
}

// WithKVStore sets a custom store. The runtime closes it on shutdown.
func WithKVStore(kv ports.KVStore) Option {
	return func(r *Runtime) error {
		r.kv = kv
		return nil
	}
}

// WithLanguageModel replaces the Ollama backend.
func WithLanguageModel(model ports.LanguageModel) Option {
	return func(r *Runtime) error {
		r.model = model
		return nil
	}
}

// WithImageFetcher replaces the HTTP image fetcher.
func WithImageFetcher(fetcher ports.ImageFetcher) Option {
	return func(r *Runtime) error {
		r.fetcher = fetcher
		return nil
	}
}

// WithLogger sets a custom logger. Put it first so later options log through it.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) error {
		r.logger = logger
		return nil
	}
}

// WithoutServer keeps the HTTP binding off regardless of configuration.
func WithoutServer() Option {
	return func(r *Runtime) error {
		r.noServer = true
		return nil
	}
}
