package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	logpkg "github.com/tombailey/dueue/pkg/log"
)

// Engine names accepted in Config.Engine.
const (
	EngineMemory   = "memory"
	EnginePebble   = "pebble"
	EnginePostgres = "postgres"
	EngineDocstore = "docstore"
	EngineSupabase = "supabase"
)

// Config is the top-level configuration loaded from file and env.
type Config struct {
	// HTTPAddr is the listen address of the HTTP API.
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr" env:"DUEUE_HTTP_ADDR"`
	// Engine selects the durability backend.
	Engine string `json:"engine" yaml:"engine" env:"DUEUE_ENGINE"`
	// AckDeadline is the default acknowledgement deadline applied when a
	// receive request does not name one.
	AckDeadline time.Duration `json:"ackDeadline" yaml:"ackDeadline" env:"DUEUE_ACK_DEADLINE"`

	Log      logpkg.Config  `json:"log" yaml:"log"`
	Pebble   PebbleConfig   `json:"pebble" yaml:"pebble"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Docstore DocstoreConfig `json:"docstore" yaml:"docstore"`
	Supabase SupabaseConfig `json:"supabase" yaml:"supabase"`
}

// PebbleConfig tunes the embedded engine.
type PebbleConfig struct {
	// DataDir is the database directory. Empty selects a directory under
	// the user's home.
	DataDir string `json:"dataDir" yaml:"dataDir" env:"DUEUE_DATA_DIR"`
	// Fsync is one of "always", "interval", "never" or empty for the
	// built-in default.
	Fsync string `json:"fsync" yaml:"fsync" env:"DUEUE_FSYNC"`
	// FsyncIntervalMs bounds group-commit latency when Fsync is "interval".
	FsyncIntervalMs int `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs" env:"DUEUE_FSYNC_INTERVAL_MS"`
}

// PostgresConfig locates the PostgreSQL backend.
type PostgresConfig struct {
	URL string `json:"url" yaml:"url" env:"DUEUE_POSTGRES_URL"`
}

// DocstoreConfig locates the document-store backend.
type DocstoreConfig struct {
	URL string `json:"url" yaml:"url" env:"DUEUE_DOCSTORE_URL"`
}

// SupabaseConfig locates the Supabase backend.
type SupabaseConfig struct {
	URL   string `json:"url" yaml:"url" env:"DUEUE_SUPABASE_URL"`
	Key   string `json:"key" yaml:"key" env:"DUEUE_SUPABASE_KEY"`
	Table string `json:"table" yaml:"table" env:"DUEUE_SUPABASE_TABLE"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Engine:   EnginePebble,
		Log: logpkg.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineMemory, EnginePebble:
	case EnginePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("config: postgres engine needs postgres.url")
		}
	case EngineDocstore:
		if c.Docstore.URL == "" {
			return fmt.Errorf("config: docstore engine needs docstore.url")
		}
	case EngineSupabase:
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return fmt.Errorf("config: supabase engine needs supabase.url and supabase.key")
		}
	default:
		return fmt.Errorf("config: unknown engine %q", c.Engine)
	}
	if c.AckDeadline < 0 {
		return fmt.Errorf("config: ackDeadline must not be negative")
	}
	return nil
}
