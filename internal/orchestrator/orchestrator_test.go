package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider is a controllable Provider stand-in for exercising the
// orchestrator's batching, retry, and failover logic without a real
// worker pool or HTTP endpoint.
type mockProvider struct {
	id           string
	modelID      string
	dims         int
	maxBatch     int
	failN        int32 // number of leading calls that fail
	calls        int32
	embedFn      func(texts []string) ([][]float32, error)
}

func (m *mockProvider) ProviderID() string   { return m.id }
func (m *mockProvider) ModelID() string      { return m.modelID }
func (m *mockProvider) Dimensions() int      { return m.dims }
func (m *mockProvider) MaxBatchSize() int    { return m.maxBatch }
func (m *mockProvider) Normalization() string { return "l2" }

func (m *mockProvider) EmbedBatch(ctx context.Context, texts []string, opts EmbedOptions) (EmbedResult, error) {
	n := atomic.AddInt32(&m.calls, 1)
	if n <= atomic.LoadInt32(&m.failN) {
		return EmbedResult{}, fmt.Errorf("mock failure %d", n)
	}
	if m.embedFn != nil {
		embeddings, err := m.embedFn(texts)
		return EmbedResult{Embeddings: embeddings}, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return EmbedResult{Embeddings: out}, nil
}

func (m *mockProvider) Health(ctx context.Context) HealthStatus {
	return HealthStatus{State: HealthReady}
}

func (m *mockProvider) Metrics() ProviderMetrics { return ProviderMetrics{} }

func testOrchestratorConfig() Config {
	return Config{
		ConcurrencyMin: 1, ConcurrencyMax: 4, ConcurrencyInitial: 2,
		TargetLatencyLowMs: 50, TargetLatencyHighMs: 2000,
		RateLimitCapacity: 100, RateLimitRefillPerSec: 1000,
		CircuitMaxFailures: 3, CircuitResetTimeout: 50 * time.Millisecond, CircuitSuccessThreshold: 1,
		RetryMaxAttempts: 2, RetryInitialDelay: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond,
		ResourceSampleInterval: time.Second, MemoryStopThreshold: 0.78, MemoryResumeThreshold: 0.70, CPUGuardThreshold: 0.55,
	}
}

func TestOrchestrator_EmbedBatch_ReturnsEmbeddingsInInputOrder(t *testing.T) {
	p := &mockProvider{id: "p", modelID: "m", dims: 1, maxBatch: 2}
	o := New(testOrchestratorConfig(), p)

	embeddings, err := o.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, embeddings, 5)
	for i, e := range embeddings {
		require.Len(t, e, 1)
		assert.Equal(t, float32(i%2), e[0])
	}
}

func TestOrchestrator_EmbedBatch_EmptyInput(t *testing.T) {
	p := &mockProvider{id: "p", modelID: "m", dims: 1, maxBatch: 2}
	o := New(testOrchestratorConfig(), p)

	embeddings, err := o.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, embeddings)
}

func TestOrchestrator_EmbedBatch_RetriesTransientFailure(t *testing.T) {
	p := &mockProvider{id: "p", modelID: "m", dims: 1, maxBatch: 10, failN: 1}
	o := New(testOrchestratorConfig(), p)

	embeddings, err := o.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, embeddings, 1)
}

func TestOrchestrator_SetFallback_RejectsMismatchedDimensions(t *testing.T) {
	primary := &mockProvider{id: "primary", modelID: "m", dims: 768, maxBatch: 10}
	fallback := &mockProvider{id: "fallback", modelID: "m", dims: 384, maxBatch: 10}
	o := New(testOrchestratorConfig(), primary)

	o.SetFallback(fallback)
	assert.Nil(t, o.fallback)
}

func TestOrchestrator_SetFallback_AcceptsMatchingProvider(t *testing.T) {
	primary := &mockProvider{id: "primary", modelID: "m", dims: 768, maxBatch: 10}
	fallback := &mockProvider{id: "fallback", modelID: "m", dims: 768, maxBatch: 10}
	o := New(testOrchestratorConfig(), primary)

	o.SetFallback(fallback)
	require.NotNil(t, o.fallback)
}

func TestOrchestrator_EmbedBatch_FailsOverToFallbackWhenPrimaryFails(t *testing.T) {
	primary := &mockProvider{id: "primary", modelID: "m", dims: 1, maxBatch: 10, failN: 1000}
	fallback := &mockProvider{id: "fallback", modelID: "m", dims: 1, maxBatch: 10}

	cfg := testOrchestratorConfig()
	cfg.CircuitMaxFailures = 1
	cfg.RetryMaxAttempts = 0
	o := New(cfg, primary)
	o.SetFallback(fallback)

	embeddings, err := o.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, embeddings, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fallback.calls))

	// Subsequent calls short-circuit straight to the fallback since the
	// primary breaker has now tripped open.
	_, err = o.EmbedBatch(context.Background(), []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primary.calls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&fallback.calls))
}

func TestOrchestrator_AllowSpawnWorker_PermissiveBeforeSample(t *testing.T) {
	p := &mockProvider{id: "p", modelID: "m", dims: 1, maxBatch: 10}
	o := New(testOrchestratorConfig(), p)
	assert.True(t, o.AllowSpawnWorker(0))
}
