package cli

import (
	"context"
	"fmt"

	"github.com/stockroom-app/stockroom/internal/api"
	"github.com/stockroom-app/stockroom/internal/engine"
	"github.com/stockroom-app/stockroom/internal/schema"
	"github.com/stockroom-app/stockroom/internal/store"
)

// app bundles the wired components every command operates on. Commands
// are short-lived processes: open, load persisted state, act, close.
type app struct {
	cfg      Config
	store    *store.Store
	queue    *engine.MutationQueue
	graph    *engine.DependencyGraph
	registry *engine.TempIDRegistry
	cache    *engine.LocalCache
	adapter  *engine.PendingStateAdapter
	engine   *engine.SyncEngine
}

// openApp resolves configuration, opens the store, and reloads the queue
// and registry from it.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts.ConfigDir)
	if err != nil {
		return nil, err
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.APIURL != "" {
		cfg.APIURL = opts.APIURL
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	validator, err := schema.New()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	registry := engine.NewTempIDRegistry(s, nil)
	if err := registry.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load temp ids: %w", err)
	}

	cache := engine.NewLocalCache(s)
	queue := engine.NewMutationQueue(s, cache, registry, validator)
	if err := queue.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load mutation queue: %w", err)
	}

	graph := engine.NewDependencyGraph(queue, registry)
	executor := api.New(cfg.APIURL, 0)
	backoff := engine.Backoff{Base: cfg.BackoffBase, MaxAttempts: cfg.MaxAttempts}

	return &app{
		cfg:      cfg,
		store:    s,
		queue:    queue,
		graph:    graph,
		registry: registry,
		cache:    cache,
		adapter:  engine.NewPendingStateAdapter(queue, registry, cache),
		engine:   engine.NewSyncEngine(queue, graph, registry, cache, executor, nil, backoff),
	}, nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}
