// Package engine selects and constructs the durability backend named by the
// configuration. Every backend satisfies dueue.Engine; the delivery service
// never knows which one it runs on.
package engine

import (
	"context"
	"fmt"
	"time"

	cfgpkg "github.com/tombailey/dueue/internal/config"
	"github.com/tombailey/dueue/internal/dueue"
	"github.com/tombailey/dueue/internal/engine/docstore"
	"github.com/tombailey/dueue/internal/engine/memory"
	pebbleengine "github.com/tombailey/dueue/internal/engine/pebble"
	"github.com/tombailey/dueue/internal/engine/postgres"
	"github.com/tombailey/dueue/internal/engine/supabase"
	pebblestore "github.com/tombailey/dueue/internal/storage/pebble"
)

// Options carries everything backends may need at construction time.
type Options struct {
	Config cfgpkg.Config
	// StorageMetrics instruments the embedded engine. Optional.
	StorageMetrics pebblestore.MetricsHook
}

// Open constructs the engine named by opts.Config.Engine.
func Open(ctx context.Context, opts Options) (dueue.Engine, error) {
	cfg := opts.Config
	switch cfg.Engine {
	case cfgpkg.EngineMemory:
		return memory.New(), nil
	case cfgpkg.EnginePebble:
		fsync, err := pebblestore.ParseFsyncMode(cfg.Pebble.Fsync)
		if err != nil {
			return nil, err
		}
		dataDir := cfg.Pebble.DataDir
		if dataDir == "" {
			dataDir = cfgpkg.DefaultDataDir()
		}
		return pebbleengine.Open(pebbleengine.Options{
			DataDir:       dataDir,
			Fsync:         fsync,
			FsyncInterval: time.Duration(cfg.Pebble.FsyncIntervalMs) * time.Millisecond,
			Metrics:       opts.StorageMetrics,
		})
	case cfgpkg.EnginePostgres:
		return postgres.Open(ctx, cfg.Postgres.URL)
	case cfgpkg.EngineDocstore:
		return docstore.Open(ctx, cfg.Docstore.URL)
	case cfgpkg.EngineSupabase:
		return supabase.Open(cfg.Supabase.URL, cfg.Supabase.Key, cfg.Supabase.Table)
	default:
		return nil, fmt.Errorf("engine: unknown engine %q", cfg.Engine)
	}
}
