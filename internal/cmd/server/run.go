package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/tombailey/dueue/internal/config"
	"github.com/tombailey/dueue/internal/dueue"
	"github.com/tombailey/dueue/internal/engine"
	"github.com/tombailey/dueue/internal/metrics"
	httpserver "github.com/tombailey/dueue/internal/server/http"
	logpkg "github.com/tombailey/dueue/pkg/log"
)

// Options configures a server run.
type Options struct {
	Config cfgpkg.Config
}

// Run opens the configured engine, seeds the queue index and serves the HTTP
// API, blocking until ctx is cancelled or a termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers that
	// pass context.Background still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logpkg.ApplyConfig(&cfg.Log)
	if err != nil {
		logger = logpkg.New(logpkg.WithLevel(logpkg.InfoLevel))
	}
	// Stdlib logs (e.g. Pebble's) flow through the same sink.
	logpkg.RedirectStdLog(logger)

	logger.Info("starting dueue server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("engine", cfg.Engine),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	eng, err := engine.Open(sctx, engine.Options{
		Config:         cfg,
		StorageMetrics: m.StorageHook(),
	})
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer eng.Close()

	svc, err := dueue.New(sctx, dueue.Options{
		Engine:          eng,
		Logger:          logger,
		Metrics:         m,
		DefaultDeadline: cfg.AckDeadline,
	})
	if err != nil {
		return fmt.Errorf("start delivery service: %w", err)
	}

	hsrv := httpserver.New(httpserver.Options{
		Service:  svc,
		Logger:   logger,
		Engine:   eng,
		Gatherer: registry,
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			select {
			case errCh <- err:
			default:
			}
			stop()
		}
	}()

	<-sctx.Done()
	// Shut the server down before closing the engine to avoid handlers
	// racing a closed store.
	hsrv.Close()
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
