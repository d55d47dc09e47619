package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/codeintel-engine/codeintel/internal/config"
	"github.com/codeintel-engine/codeintel/internal/graph"
	"github.com/codeintel-engine/codeintel/internal/indexer"
	"github.com/codeintel-engine/codeintel/internal/orchestrator"
	"github.com/codeintel-engine/codeintel/internal/scanner"
	"github.com/codeintel-engine/codeintel/internal/store"
	"github.com/codeintel-engine/codeintel/internal/worker"
)

// pipeline bundles the collaborators every subcommand needs: the content
// store, relationship graph, embedding orchestrator, and the indexer that
// drives them. close tears all of it down in the right order.
type pipeline struct {
	Store        *store.ContentStore
	Graph        *graph.Graph
	Orchestrator *orchestrator.Orchestrator
	Indexer      *indexer.Indexer

	supervisor *worker.Supervisor
}

func (p *pipeline) Close() {
	if p.Indexer != nil {
		p.Indexer.Close()
	}
	if p.supervisor != nil {
		_ = p.supervisor.Shutdown()
	}
	if p.Store != nil {
		_ = p.Store.Close()
	}
}

// buildPipeline wires a store, graph, orchestrator, and indexer from the
// loaded config, the way each cmd/ subcommand needs them. root must already
// be resolved to the project root (config.FindProjectRoot).
func buildPipeline(ctx context.Context, cfg *config.Config, root string) (*pipeline, error) {
	provider, supervisor, err := buildProvider(ctx, cfg, cfg.Embeddings.Primary)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	orch := orchestrator.New(orchestratorConfig(cfg.Orchestrator), provider)

	// A fallback provider is wired only when named, and never owns a
	// worker-pool supervisor itself: at most one process pool runs per
	// command invocation, so "worker-pool" as a fallback type reuses the
	// primary's supervisor instead of spawning a second one.
	if cfg.Embeddings.Fallback != "" && cfg.Embeddings.Fallback != cfg.Embeddings.Primary {
		if cfg.Embeddings.Fallback == "worker-pool" && supervisor != nil {
			orch.SetFallback(orchestrator.NewWorkerPoolProvider(supervisor, orchestrator.WorkerPoolProviderConfig{
				ProviderID:   "worker-pool",
				ModelID:      cfg.Embeddings.Model,
				Dimensions:   provider.Dimensions(),
				MaxBatchSize: cfg.Embeddings.MaxBatchSize,
			}))
		} else if fallback, _, err := buildProvider(ctx, cfg, cfg.Embeddings.Fallback); err == nil {
			orch.SetFallback(fallback)
		}
	}
	orch.StartResourceGuard(ctx)

	localDir := filepath.Join(root, ".codeintel")
	cs, err := store.OpenContentStore(store.ContentStoreConfig{
		ProjectID:      projectID(root),
		LocalDir:       localDir,
		GlobalDir:      filepath.Join(cfg.Store.GlobalDir, projectID(root)),
		ProviderID:     provider.ProviderID(),
		ModelID:        provider.ModelID(),
		Dimensions:     provider.Dimensions(),
		StaleThreshold: cfg.Store.StaleThreshold,
		CacheSizeMB:    cfg.Store.SQLiteCacheMB,
	})
	if err != nil {
		if supervisor != nil {
			_ = supervisor.Shutdown()
		}
		return nil, fmt.Errorf("open content store: %w", err)
	}

	g := graph.New()

	sc, err := scanner.New()
	if err != nil {
		_ = cs.Close()
		if supervisor != nil {
			_ = supervisor.Shutdown()
		}
		return nil, fmt.Errorf("new scanner: %w", err)
	}

	ix, err := indexer.New(cfg.Indexer, root, cfg.Paths.Exclude, indexer.Deps{
		Store:        cs,
		Graph:        g,
		Orchestrator: orch,
		Scanner:      sc,
		ModelID:      provider.ModelID(),
	})
	if err != nil {
		_ = cs.Close()
		if supervisor != nil {
			_ = supervisor.Shutdown()
		}
		return nil, fmt.Errorf("new indexer: %w", err)
	}

	return &pipeline{Store: cs, Graph: g, Orchestrator: orch, Indexer: ix, supervisor: supervisor}, nil
}

// buildProvider constructs the embedding provider named by providerType.
// "worker-pool" spawns a supervised pool of OS processes running this same
// binary in __worker__ mode (the returned supervisor must be shut down by
// the caller); "remote-http" dials an external embedding endpoint and owns
// no subprocess.
func buildProvider(ctx context.Context, cfg *config.Config, providerType string) (orchestrator.Provider, *worker.Supervisor, error) {
	switch providerType {
	case "remote-http":
		if cfg.Embeddings.RemoteEndpoint == "" {
			return nil, nil, fmt.Errorf("embeddings.remote_endpoint is required for the remote-http provider")
		}
		p := orchestrator.NewHTTPProvider(orchestrator.HTTPProviderConfig{
			ProviderID:   "remote-http",
			ModelID:      cfg.Embeddings.Model,
			Endpoint:     cfg.Embeddings.RemoteEndpoint,
			Dimensions:   cfg.Embeddings.Dimensions,
			MaxBatchSize: cfg.Embeddings.MaxBatchSize,
			Timeout:      cfg.Embeddings.BatchTimeout,
		})
		return p, nil, nil
	case "worker-pool", "":
		poolSize := cfg.Embeddings.WorkerPoolSize
		if poolSize <= 0 {
			poolSize = 1
		}
		supCfg := worker.DefaultSupervisorConfig()
		supCfg.PoolSize = poolSize
		sup, err := worker.NewSupervisor(ctx, supCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("start worker pool: %w", err)
		}
		dimensions := cfg.Embeddings.Dimensions
		if dimensions <= 0 {
			dimensions = 768
		}
		p := orchestrator.NewWorkerPoolProvider(sup, orchestrator.WorkerPoolProviderConfig{
			ProviderID:   "worker-pool",
			ModelID:      cfg.Embeddings.Model,
			Dimensions:   dimensions,
			MaxBatchSize: cfg.Embeddings.MaxBatchSize,
		})
		return p, sup, nil
	default:
		return nil, nil, fmt.Errorf("unknown embeddings provider %q (want worker-pool or remote-http)", providerType)
	}
}

func orchestratorConfig(c config.OrchestratorConfig) orchestrator.Config {
	return orchestrator.Config{
		ConcurrencyMin:          c.ConcurrencyMin,
		ConcurrencyMax:          c.ConcurrencyMax,
		ConcurrencyInitial:      c.ConcurrencyInitial,
		TargetLatencyLowMs:      c.TargetLatencyLowMs,
		TargetLatencyHighMs:     c.TargetLatencyHighMs,
		RateLimitCapacity:       c.RateLimitCapacity,
		RateLimitRefillPerSec:   c.RateLimitRefillPerSec,
		CircuitMaxFailures:      c.CircuitMaxFailures,
		CircuitResetTimeout:     c.CircuitResetTimeout,
		CircuitSuccessThreshold: c.CircuitSuccessThreshold,
		RetryMaxAttempts:        c.RetryMaxAttempts,
		RetryInitialDelay:       c.RetryInitialDelay,
		RetryMaxDelay:           c.RetryMaxDelay,
		ResourceSampleInterval:  c.ResourceSampleInterval,
		MemoryStopThreshold:     c.MemoryStopThreshold,
		MemoryResumeThreshold:   c.MemoryResumeThreshold,
		CPUGuardThreshold:       c.CPUGuardThreshold,
	}
}

// projectID derives the per-repo identifier the content store's global
// tier is keyed by: sha256(abs repo path)[:16], per StoreConfig's doc.
func projectID(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}
