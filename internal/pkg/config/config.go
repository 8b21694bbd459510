package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when no explicit config file is given.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes every environment override, e.g. FEEDFILTER_SERVER__PORT.
const EnvPrefix = "FEEDFILTER_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Ollama    OllamaConfig    `koanf:"ollama"`
	Cache     CacheConfig     `koanf:"cache"`
	Timeouts  TimeoutConfig   `koanf:"timeouts"`
	Document  DocumentConfig  `koanf:"document"`
	Fetch     FetchConfig     `koanf:"fetch"`
	Filter    FilterConfig    `koanf:"filter"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Port    int    `koanf:"port" validate:"min=0,max=65535"`
	Timeout string `koanf:"timeout"` // request timeout for the HTTP binding, e.g. "60s"
}

type StorageConfig struct {
	Type   string       `koanf:"type" validate:"oneof=badger sqlite memory"`
	Badger BadgerConfig `koanf:"badger"`
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type BadgerConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// OllamaConfig points the inference backend at a local Ollama server.
type OllamaConfig struct {
	BaseURL     string `koanf:"base_url" validate:"required,url"`
	TextModel   string `koanf:"text_model" validate:"required"`
	VisionModel string `koanf:"vision_model"` // empty disables the multimodal tier
}

type CacheConfig struct {
	MaxEntries int `koanf:"max_entries" validate:"min=1"`
}

// TimeoutConfig bounds every suspension point.
type TimeoutConfig struct {
	Prompt     time.Duration `koanf:"prompt" validate:"gt=0"`
	ImageFetch time.Duration `koanf:"image_fetch" validate:"gt=0"`
	Evaluate   time.Duration `koanf:"evaluate" validate:"gt=0"`
	Control    time.Duration `koanf:"control" validate:"gt=0"` // cache check, status
	Init       time.Duration `koanf:"init" validate:"gt=0"`
}

type DocumentConfig struct {
	InitAttempts int           `koanf:"init_attempts" validate:"min=1"`
	SettleDelay  time.Duration `koanf:"settle_delay" validate:"min=0"`
	RetryBackoff time.Duration `koanf:"retry_backoff" validate:"min=0"`
}

type FetchConfig struct {
	MaxBytes int64 `koanf:"max_bytes" validate:"min=1"`
	// AllowPrivate permits media on loopback and private networks.
	AllowPrivate bool `koanf:"allow_private"`
	// RatePerSecond bounds image downloads. Zero disables the limit.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"min=0"`
	Burst         int     `koanf:"burst" validate:"min=0"`
}

// FilterConfig seeds the persisted settings record.
type FilterConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Prompt         string `koanf:"prompt"`
	ShowStatistics bool   `koanf:"show_statistics"`
	OutputLanguage string `koanf:"output_language" validate:"omitempty,oneof=en es ja"`
}

type TelemetryConfig struct {
	Tracing bool `koanf:"tracing"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads DefaultPath and the environment.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the given YAML file (a missing file is fine), applies
// environment overrides and defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Ollama.BaseURL = substituteEnvVars(cfg.Ollama.BaseURL)
	cfg.Filter.Prompt = substituteEnvVars(cfg.Filter.Prompt)
	cfg.Storage.Badger.Path = substituteEnvVars(cfg.Storage.Badger.Path)
	cfg.Storage.SQLite.Path = substituteEnvVars(cfg.Storage.SQLite.Path)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":            8080,
		"server.timeout":         "60s",
		"storage.type":           "badger",
		"storage.badger.path":    "./data/feedfilter",
		"storage.sqlite.path":    "./data/feedfilter.db",
		"ollama.base_url":        "http://localhost:11434",
		"ollama.text_model":      "llama3.2",
		"ollama.vision_model":    "llava",
		"cache.max_entries":      500,
		"timeouts.prompt":        "10s",
		"timeouts.image_fetch":   "5s",
		"timeouts.evaluate":      "30s",
		"timeouts.control":       "15s",
		"timeouts.init":          "30s",
		"document.init_attempts": 3,
		"document.settle_delay":  "100ms",
		"document.retry_backoff": "500ms",
		"fetch.max_bytes":        10 << 20,
		"fetch.rate_per_second":  8,
		"fetch.burst":            4,
		"filter.enabled":         true,
		"filter.output_language": "en",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
