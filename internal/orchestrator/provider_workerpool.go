package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	pipelineerrors "github.com/codeintel-engine/codeintel/internal/errors"
	"github.com/codeintel-engine/codeintel/internal/worker"
)

// WorkerPoolProvider adapts an in-process worker.Supervisor to the
// Provider contract, so the orchestrator can drive OS-process embedding
// workers the same way it drives a remote HTTP endpoint.
type WorkerPoolProvider struct {
	supervisor    *worker.Supervisor
	providerID    string
	modelID       string
	dimensions    int
	maxBatchSize  int
	normalization string

	requestCount int64
	errorCount   int64
	totalLatency int64
}

// WorkerPoolProviderConfig describes the static identity of a worker-pool
// provider; dimensions and model identity come from the model the workers
// load, so these are supplied by the caller who knows what it configured.
type WorkerPoolProviderConfig struct {
	ProviderID    string
	ModelID       string
	Dimensions    int
	MaxBatchSize  int
	Normalization string
}

// NewWorkerPoolProvider wraps an already-running supervisor.
func NewWorkerPoolProvider(s *worker.Supervisor, cfg WorkerPoolProviderConfig) *WorkerPoolProvider {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 32
	}
	if cfg.Normalization == "" {
		cfg.Normalization = "l2"
	}
	return &WorkerPoolProvider{
		supervisor:    s,
		providerID:    cfg.ProviderID,
		modelID:       cfg.ModelID,
		dimensions:    cfg.Dimensions,
		maxBatchSize:  cfg.MaxBatchSize,
		normalization: cfg.Normalization,
	}
}

func (p *WorkerPoolProvider) ProviderID() string    { return p.providerID }
func (p *WorkerPoolProvider) ModelID() string        { return p.modelID }
func (p *WorkerPoolProvider) Dimensions() int        { return p.dimensions }
func (p *WorkerPoolProvider) MaxBatchSize() int      { return p.maxBatchSize }
func (p *WorkerPoolProvider) Normalization() string  { return p.normalization }

func (p *WorkerPoolProvider) EmbedBatch(ctx context.Context, texts []string, opts EmbedOptions) (EmbedResult, error) {
	start := time.Now()
	embeddings, err := p.supervisor.EmbedBatch(ctx, texts)
	atomic.AddInt64(&p.requestCount, 1)
	atomic.AddInt64(&p.totalLatency, time.Since(start).Milliseconds())
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return EmbedResult{}, pipelineerrors.ProviderUnavailable("worker pool embed_batch failed", err)
	}
	return EmbedResult{Embeddings: embeddings}, nil
}

func (p *WorkerPoolProvider) Health(ctx context.Context) HealthStatus {
	if p.supervisor.Size() == 0 {
		return HealthStatus{State: HealthUnavailable, Message: "no live workers"}
	}
	return HealthStatus{State: HealthReady}
}

func (p *WorkerPoolProvider) Metrics() ProviderMetrics {
	return ProviderMetrics{
		RequestCount:   atomic.LoadInt64(&p.requestCount),
		ErrorCount:     atomic.LoadInt64(&p.errorCount),
		TotalLatencyMs: atomic.LoadInt64(&p.totalLatency),
	}
}
