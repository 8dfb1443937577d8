package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("default addr: %q", cfg.HTTPAddr)
	}
	if cfg.Engine != EnginePebble {
		t.Fatalf("default engine: %q", cfg.Engine)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dueue.yaml")
	data := `
httpAddr: ":9090"
engine: postgres
ackDeadline: 30s
postgres:
  url: postgres://localhost/dueue
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.Engine != EnginePostgres {
		t.Fatalf("loaded: %+v", cfg)
	}
	if cfg.AckDeadline != 30*time.Second {
		t.Fatalf("ackDeadline: %v", cfg.AckDeadline)
	}
	if cfg.Postgres.URL != "postgres://localhost/dueue" {
		t.Fatalf("postgres url: %q", cfg.Postgres.URL)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level: %q", cfg.Log.Level)
	}
	// Untouched fields keep their defaults.
	if cfg.Log.Format != "text" {
		t.Fatalf("log format: %q", cfg.Log.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dueue.json")
	data := `{"engine": "memory", "pebble": {"fsync": "always"}}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine != EngineMemory || cfg.Pebble.Fsync != "always" {
		t.Fatalf("loaded: %+v", cfg)
	}
}

func TestFromEnvOverlays(t *testing.T) {
	t.Setenv("DUEUE_ENGINE", "supabase")
	t.Setenv("DUEUE_SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("DUEUE_SUPABASE_KEY", "anon-key")
	t.Setenv("DUEUE_ACK_DEADLINE", "90s")

	cfg := Default()
	if err := FromEnv(&cfg); err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Engine != EngineSupabase {
		t.Fatalf("engine: %q", cfg.Engine)
	}
	if cfg.Supabase.URL == "" || cfg.Supabase.Key == "" {
		t.Fatalf("supabase: %+v", cfg.Supabase)
	}
	if cfg.AckDeadline != 90*time.Second {
		t.Fatalf("ackDeadline: %v", cfg.AckDeadline)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cfg := Default()
	cfg.Engine = "tape"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown engine accepted")
	}

	cfg = Default()
	cfg.Engine = EnginePostgres
	if err := cfg.Validate(); err == nil {
		t.Fatal("postgres engine without url accepted")
	}

	cfg = Default()
	cfg.AckDeadline = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative ackDeadline accepted")
	}
}
