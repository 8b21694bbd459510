package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Cache.MaxEntries != 500 {
			t.Errorf("cache.max_entries = %v, want 500", cfg.Cache.MaxEntries)
		}
		if cfg.Timeouts.Prompt != 10*time.Second {
			t.Errorf("timeouts.prompt = %v, want 10s", cfg.Timeouts.Prompt)
		}
		if cfg.Timeouts.ImageFetch != 5*time.Second {
			t.Errorf("timeouts.image_fetch = %v, want 5s", cfg.Timeouts.ImageFetch)
		}
		if cfg.Document.InitAttempts != 3 {
			t.Errorf("document.init_attempts = %v, want 3", cfg.Document.InitAttempts)
		}
		if cfg.Storage.Type != "badger" {
			t.Errorf("storage.type = %q, want badger", cfg.Storage.Type)
		}
		if !cfg.Filter.Enabled {
			t.Error("filter.enabled should default to true")
		}
	})

	t.Run("env var port override", func(t *testing.T) {
		t.Setenv("FEEDFILTER_SERVER__PORT", "9000")

		cfg, err := LoadFile("")
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.Port != 9000 {
			t.Errorf("port = %v, want 9000", cfg.Server.Port)
		}
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
storage:
  type: sqlite
  sqlite:
    path: ${FEEDFILTER_TEST_DIR}/kv.db
filter:
  prompt: "hide crypto"
  output_language: ja
timeouts:
  prompt: 2s
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		t.Setenv("FEEDFILTER_TEST_DIR", "/tmp/ff")

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if cfg.Storage.Type != "sqlite" {
			t.Errorf("storage.type = %q, want sqlite", cfg.Storage.Type)
		}
		if cfg.Storage.SQLite.Path != "/tmp/ff/kv.db" {
			t.Errorf("sqlite.path = %q, want /tmp/ff/kv.db", cfg.Storage.SQLite.Path)
		}
		if cfg.Filter.Prompt != "hide crypto" || cfg.Filter.OutputLanguage != "ja" {
			t.Errorf("filter = %+v", cfg.Filter)
		}
		if cfg.Timeouts.Prompt != 2*time.Second {
			t.Errorf("timeouts.prompt = %v, want 2s", cfg.Timeouts.Prompt)
		}
	})

	t.Run("validation rejects unknown storage", func(t *testing.T) {
		t.Setenv("FEEDFILTER_STORAGE__TYPE", "postgres")

		if _, err := LoadFile(""); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("validation rejects unsupported language", func(t *testing.T) {
		t.Setenv("FEEDFILTER_FILTER__OUTPUT_LANGUAGE", "fr")

		if _, err := LoadFile(""); err == nil {
			t.Fatal("expected validation error")
		}
	})
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
