package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/vk/mediagraph/internal/boltcache"
	"github.com/vk/mediagraph/internal/cachestore"
	"github.com/vk/mediagraph/internal/ctxlog"
	"github.com/vk/mediagraph/internal/engine"
	"github.com/vk/mediagraph/internal/graph"
	"github.com/vk/mediagraph/internal/pipeline"
	"github.com/vk/mediagraph/internal/queue"
	"github.com/vk/mediagraph/internal/registry"
	"github.com/vk/mediagraph/internal/transform"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
}

// NewApp is the constructor for the main application. It returns an App
// with its own isolated logger; nothing heavy happens until Run.
func NewApp(outW io.Writer, config *Config) *App {
	return &App{
		outW:   outW,
		logger: ctxlog.New(config.LogLevel, config.LogFormat, outW),
		config: config,
	}
}

// Run executes one headless pass over the configured pipeline: every
// source node is processed through its downstream chain and the per-node
// outcomes are reported. Returns an error if any node failed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	store, err := pipeline.Load(ctx, a.config.PipelinePath)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}
	snap := store.Snapshot()

	var cache cachestore.Store
	if a.config.CachePath != "" {
		cache, err = boltcache.Open(a.config.CachePath)
		if err != nil {
			return fmt.Errorf("failed to open result cache: %w", err)
		}
		a.logger.Debug("Durable result cache opened.", "path", a.config.CachePath)
	}

	ops := transform.Default()
	procs, err := registry.Default(ops)
	if err != nil {
		return err
	}
	if err := procs.Validate(snap); err != nil {
		return fmt.Errorf("pipeline references unknown node types: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	hits := make(map[string]bool)

	eng, err := engine.New(runCtx, engine.Options{
		Snapshots:  store,
		Sink:       store,
		Cache:      cache,
		Transforms: ops,
		Processors: procs,
		Drains:     a.config.Drains,
		PoolSize:   a.config.Workers,
		OnCacheHit: func(nodeID string, entry *cachestore.Entry) {
			mu.Lock()
			hits[nodeID] = true
			mu.Unlock()
		},
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	roots := sourceNodes(snap)
	if len(roots) == 0 {
		a.logger.Warn("Pipeline has no source nodes, nothing to process.")
		return nil
	}
	a.logger.Info("🚀 Processing pipeline...", "sources", len(roots), "nodes", len(snap.Nodes))

	// Submit everything before waiting. A node reachable from several
	// sources is resubmitted; only its latest settlement is reported.
	settled := make(map[string]<-chan queue.Settled)
	for _, root := range roots {
		ids := append([]string{root}, snap.OrderedDownstream(root)...)
		for i, ch := range eng.ProcessDownstream(root) {
			settled[ids[i]] = ch
		}
	}

	failed := 0
	for _, node := range snap.Nodes {
		ch, ok := settled[node.ID]
		if !ok {
			continue
		}
		outcome := <-ch

		switch {
		case errors.Is(outcome.Err, queue.ErrCancelled):
			fmt.Fprintf(a.outW, "-- %s (%s): superseded\n", node.ID, node.Type)
		case outcome.Err != nil:
			failed++
			fmt.Fprintf(a.outW, "!! %s (%s): %v\n", node.ID, node.Type, outcome.Err)
		case !outcome.Outcome.Success:
			failed++
			fmt.Fprintf(a.outW, "!! %s (%s): %s\n", node.ID, node.Type, outcome.Outcome.Error)
		default:
			mu.Lock()
			fromCache := hits[node.ID]
			mu.Unlock()
			suffix := ""
			if fromCache {
				suffix = " [cached]"
			}
			fmt.Fprintf(a.outW, "ok %s (%s): %s%s\n", node.ID, node.Type, describe(outcome.Outcome.NewResult), suffix)
		}
	}

	a.logger.Info("🏁 Pipeline finished.", "processed", len(settled), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("pipeline finished with %d failed node(s)", failed)
	}
	return nil
}

// sourceNodes returns the IDs of nodes with no incoming edges, in
// snapshot order.
func sourceNodes(snap graph.Snapshot) []string {
	var roots []string
	for _, node := range snap.Nodes {
		if len(snap.Incoming(node.ID)) == 0 {
			roots = append(roots, node.ID)
		}
	}
	return roots
}

// describe renders a short preview of a committed result for the summary.
func describe(result *graph.Result) string {
	item := result.First()
	if item == nil {
		return "empty result"
	}
	switch {
	case item.Kind == graph.KindText:
		text := item.Text
		if len(text) > 48 {
			text = text[:48] + "..."
		}
		return fmt.Sprintf("text %q", text)
	case item.File != nil:
		return fmt.Sprintf("%s file %s", item.Kind, item.File.ID)
	case item.Data != "":
		return fmt.Sprintf("%s data (%d bytes)", item.Kind, len(item.Data))
	default:
		return string(item.Kind)
	}
}
