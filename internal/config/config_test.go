package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

// TestLoadConfigDefaults verifies defaults fill unset keys and hours are converted.
func TestLoadConfigDefaults(t *testing.T) {
	uploads := filepath.Join(t.TempDir(), "uploads")
	dir := writeConfig(t, `
database:
  driver: sqlite
  path: test.db
storage:
  local_path: `+uploads+`
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Server.Mode != "debug" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.JWT.ExpireTime != 24*time.Hour || cfg.JWT.RefreshExpireTime != 168*time.Hour {
		t.Fatalf("unexpected jwt expiry %v %v", cfg.JWT.ExpireTime, cfg.JWT.RefreshExpireTime)
	}
	if cfg.Evaluator.Provider != "heuristic" || cfg.Evaluator.Timeout() != 30*time.Second {
		t.Fatalf("unexpected evaluator config %+v", cfg.Evaluator)
	}
	if _, err := os.Stat(uploads); err != nil {
		t.Fatalf("expected local upload dir to be created: %v", err)
	}
}

// TestLoadConfigEnvOverride verifies bound environment variables win over the file.
func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: sqlite
storage:
  local_path: `+t.TempDir()+`
jwt:
  secret: from-file
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("EVALUATOR_PROVIDER", "openai")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Fatalf("expected env secret, got %q", cfg.JWT.Secret)
	}
	if cfg.Evaluator.Provider != "openai" {
		t.Fatalf("expected env provider, got %q", cfg.Evaluator.Provider)
	}
}

// TestValidate verifies invalid combinations are rejected.
func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:    ServerConfig{Mode: "debug"},
			Database:  DatabaseConfig{Driver: "sqlite"},
			Evaluator: EvaluatorConfig{Provider: "heuristic"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(*Config){
		"JWT secret":         func(c *Config) { c.Server.Mode = "release"; c.JWT.Secret = "short" },
		"database driver":    func(c *Config) { c.Database.Driver = "oracle" },
		"evaluator provider": func(c *Config) { c.Evaluator.Provider = "magic" },
		"vector search":      func(c *Config) { c.VectorSearch.Enabled = true },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}
}

// TestEvaluatorLockTTL verifies the lock outlives the evaluator timeout by default.
func TestEvaluatorLockTTL(t *testing.T) {
	c := EvaluatorConfig{TimeoutSeconds: 5}
	if c.LockTTL() != 15*time.Second {
		t.Fatalf("expected 15s, got %v", c.LockTTL())
	}
	c.LockSeconds = 60
	if c.LockTTL() != time.Minute {
		t.Fatalf("expected 1m, got %v", c.LockTTL())
	}
}
