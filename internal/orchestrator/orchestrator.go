package orchestrator

import (
	"context"
	"time"

	pipelineerrors "github.com/codeintel-engine/codeintel/internal/errors"
)

// Config ties together all of an Orchestrator's tunables, mirroring
// internal/config.OrchestratorConfig field-for-field so callers can build
// one directly from the loaded application config.
type Config struct {
	ConcurrencyMin, ConcurrencyMax, ConcurrencyInitial int
	TargetLatencyLowMs, TargetLatencyHighMs            int

	RateLimitCapacity     int
	RateLimitRefillPerSec float64

	CircuitMaxFailures      int
	CircuitResetTimeout     time.Duration
	CircuitSuccessThreshold int

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	ResourceSampleInterval time.Duration
	MemoryStopThreshold    float64
	MemoryResumeThreshold  float64
	CPUGuardThreshold      float64
}

// route is one configured provider and the machinery that guards calls to
// it: its own rate limiter and circuit breaker, since failures on one
// provider must never bleed into another's budget.
type route struct {
	provider Provider
	limiter  *RateLimiter
	breaker  *pipelineerrors.CircuitBreaker
}

// Orchestrator dispatches embed_batch calls across one primary provider and
// an optional fallback, applying adaptive concurrency, per-provider rate
// limiting, circuit breaking, retries, and failover, per spec §4.5.
type Orchestrator struct {
	cfg Config

	concurrency *AdaptiveConcurrency
	guard       *ResourceGuard
	retryCfg    pipelineerrors.RetryConfig

	primary  route
	fallback *route
}

// New constructs an Orchestrator with primary as the sole provider. Call
// SetFallback to wire in a failover provider once one is available.
func New(cfg Config, primary Provider) *Orchestrator {
	o := &Orchestrator{
		cfg: cfg,
		concurrency: NewAdaptiveConcurrency(AdaptiveConcurrencyConfig{
			Min:        cfg.ConcurrencyMin,
			Max:        cfg.ConcurrencyMax,
			Initial:    cfg.ConcurrencyInitial,
			TargetLow:  time.Duration(cfg.TargetLatencyLowMs) * time.Millisecond,
			TargetHigh: time.Duration(cfg.TargetLatencyHighMs) * time.Millisecond,
		}),
		guard: NewResourceGuard(ResourceGuardConfig{
			SampleInterval:        cfg.ResourceSampleInterval,
			MemoryStopThreshold:   cfg.MemoryStopThreshold,
			MemoryResumeThreshold: cfg.MemoryResumeThreshold,
			CPUGuardThreshold:     cfg.CPUGuardThreshold,
		}),
		retryCfg: pipelineerrors.RetryConfig{
			MaxRetries:   cfg.RetryMaxAttempts,
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
		primary: newRoute(cfg, primary),
	}
	return o
}

func newRoute(cfg Config, p Provider) route {
	return route{
		provider: p,
		limiter: NewRateLimiter(RateLimiterConfig{
			Capacity:     cfg.RateLimitCapacity,
			RefillPerSec: cfg.RateLimitRefillPerSec,
		}),
		breaker: pipelineerrors.NewCircuitBreaker(
			p.ProviderID(),
			pipelineerrors.WithMaxFailures(cfg.CircuitMaxFailures),
			pipelineerrors.WithResetTimeout(cfg.CircuitResetTimeout),
			pipelineerrors.WithSuccessThreshold(cfg.CircuitSuccessThreshold),
		),
	}
}

// SetFallback wires in a failover provider. Per spec §4.5, failover is only
// valid when the fallback's dimensions and model_id match the primary's —
// otherwise downstream consumers (the content store, the vector index)
// would silently receive embeddings of the wrong shape or identity, so
// failover is disabled rather than risking that.
func (o *Orchestrator) SetFallback(p Provider) {
	if p.Dimensions() != o.primary.provider.Dimensions() || p.ModelID() != o.primary.provider.ModelID() {
		return
	}
	r := newRoute(o.cfg, p)
	o.fallback = &r
}

// StartResourceGuard runs the resource guard's polling loop until ctx is
// cancelled. Run this in its own goroutine alongside the orchestrator.
func (o *Orchestrator) StartResourceGuard(ctx context.Context) {
	o.guard.Start(ctx)
}

// AllowSpawnWorker reports whether the resource guard currently permits
// adding one more worker beyond currentWorkers, for callers (e.g. the
// worker supervisor) that scale their own pool size dynamically.
func (o *Orchestrator) AllowSpawnWorker(currentWorkers int) bool {
	return o.guard.AllowSpawn(currentWorkers)
}

// EmbedBatch embeds texts, splitting into sub-batches no larger than the
// active provider's MaxBatchSize, and returns embeddings in the same order
// as the input texts regardless of how sub-batches completed. Concurrency,
// rate limiting, circuit breaking with failover, and retries are all
// applied per sub-batch.
func (o *Orchestrator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	maxBatch := o.primary.provider.MaxBatchSize()
	if maxBatch <= 0 {
		maxBatch = len(texts)
	}

	results := make([][]float32, len(texts))
	chunks := splitBatches(texts, maxBatch)

	for _, c := range chunks {
		if err := o.concurrency.Acquire(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		embeddings, err := o.embedOneBatch(ctx, c.texts, c.index, len(chunks))
		latency := time.Since(start)

		rateLimitedOrTimedOut := pipelineerrors.GetKind(err) == pipelineerrors.KindRateLimited ||
			pipelineerrors.GetKind(err) == pipelineerrors.KindTimeout
		o.concurrency.Release(err == nil, latency, rateLimitedOrTimedOut)

		if err != nil {
			return nil, err
		}
		for i, e := range embeddings {
			results[c.offset+i] = e
		}
	}

	return results, nil
}

type batchChunk struct {
	texts  []string
	offset int
	index  int
}

// splitBatches slices texts into chunks no larger than maxBatch, each
// remembering its offset into the original slice so results can be
// written back in input order.
func splitBatches(texts []string, maxBatch int) []batchChunk {
	var chunks []batchChunk
	for offset := 0; offset < len(texts); offset += maxBatch {
		end := offset + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		chunks = append(chunks, batchChunk{texts: texts[offset:end], offset: offset, index: len(chunks)})
	}
	return chunks
}

// embedOneBatch runs a single sub-batch through the rate limiter, circuit
// breaker (with failover to o.fallback if configured), and retry policy.
func (o *Orchestrator) embedOneBatch(ctx context.Context, texts []string, batchIndex, totalBatches int) ([][]float32, error) {
	opts := EmbedOptions{BatchIndex: batchIndex, IsFinalBatch: batchIndex == totalBatches-1}

	call := func(r *route) ([][]float32, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, pipelineerrors.Timeout("rate limiter wait cancelled", err)
		}
		return pipelineerrors.RetryWithResult(ctx, o.retryCfg, func() ([][]float32, error) {
			res, err := r.provider.EmbedBatch(ctx, texts, opts)
			if err != nil {
				return nil, err
			}
			return res.Embeddings, nil
		})
	}

	if o.fallback == nil {
		return pipelineerrors.CircuitExecuteWithResult(o.primary.breaker,
			func() ([][]float32, error) { return call(&o.primary) },
			func() ([][]float32, error) {
				return nil, pipelineerrors.ProviderUnavailable("circuit open, no fallback configured", pipelineerrors.ErrCircuitOpen)
			},
		)
	}

	return pipelineerrors.CircuitExecuteWithResult(o.primary.breaker,
		func() ([][]float32, error) { return call(&o.primary) },
		func() ([][]float32, error) {
			return pipelineerrors.CircuitExecuteWithResult(o.fallback.breaker,
				func() ([][]float32, error) { return call(o.fallback) },
				func() ([][]float32, error) {
					return nil, pipelineerrors.ProviderUnavailable("primary and fallback circuits both open", pipelineerrors.ErrCircuitOpen)
				},
			)
		},
	)
}
