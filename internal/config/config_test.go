package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	_, err := LoadFile("")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("TRIAGE_MAX_RETRIES", "5")
	t.Setenv("TRIAGE_BASE_BACKOFF", "250ms")
	t.Setenv("TRIAGE_RETRY_CLASSIFICATION", "true")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "secret" {
		t.Fatalf("api key not loaded")
	}
	if cfg.Workflow.MaxRetries != 5 {
		t.Fatalf("expected 5 retries, got %d", cfg.Workflow.MaxRetries)
	}
	if cfg.Workflow.BaseBackoff != 250*time.Millisecond {
		t.Fatalf("unexpected backoff %s", cfg.Workflow.BaseBackoff)
	}
	if !cfg.Workflow.RetryClassification {
		t.Fatalf("expected classification retry enabled")
	}
	if cfg.Store.Backend != "memory" || cfg.LLM.Provider != "gemini" {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Store, cfg.LLM)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("LLM_MODEL", "from-env")

	path := filepath.Join(t.TempDir(), "triage.yaml")
	body := []byte(`
store:
  backend: sqlite
sqlite:
  path: /tmp/x.db
llm:
  model: from-file
workflow:
  maxRetries: 1
  baseBackoff: 2s
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != "sqlite" || cfg.SQLite.Path != "/tmp/x.db" {
		t.Fatalf("yaml store not applied: %+v", cfg.SQLite)
	}
	if cfg.Workflow.MaxRetries != 1 || cfg.Workflow.BaseBackoff != 2*time.Second {
		t.Fatalf("yaml workflow not applied: %+v", cfg.Workflow)
	}
	if cfg.LLM.Model != "from-env" {
		t.Fatalf("env must override file, got %q", cfg.LLM.Model)
	}
}

func TestValidateRejectsRedisWithoutAddr(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "k"
	cfg.Workflow.Journal = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error without REDIS_ADDR")
	}
	cfg.Redis.Addr = "localhost:6379"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
