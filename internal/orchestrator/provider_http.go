package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	pipelineerrors "github.com/codeintel-engine/codeintel/internal/errors"
)

// HTTPProviderConfig configures a remote HTTP embedding provider.
//
// Grounded on internal/embed/ollama.go's OllamaEmbedder: a pooled
// http.Client with per-request context timeouts rather than a static
// client timeout, so callers can apply their own deadline per sub-batch.
type HTTPProviderConfig struct {
	ProviderID    string
	ModelID       string
	Endpoint      string
	Dimensions    int
	MaxBatchSize  int
	Normalization string
	PoolSize      int
	Timeout       time.Duration
}

// httpEmbedRequest mirrors OllamaEmbedRequest's shape: a model identifier
// plus a batch of strings as input.
type httpEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type httpEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// HTTPProvider is a Provider backed by a remote HTTP embedding endpoint
// (e.g. a hosted embedding API reachable over the network rather than an
// in-process worker).
type HTTPProvider struct {
	cfg       HTTPProviderConfig
	client    *http.Client
	transport *http.Transport

	requestCount int64
	errorCount   int64
	totalLatency int64
}

// NewHTTPProvider constructs an HTTPProvider with a connection-pooled
// client, the same MaxIdleConnsPerHost/MaxConnsPerHost pooling shape
// OllamaEmbedder uses.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 32
	}
	if cfg.Normalization == "" {
		cfg.Normalization = "l2"
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &HTTPProvider{
		cfg:       cfg,
		client:    &http.Client{Transport: transport},
		transport: transport,
	}
}

func (p *HTTPProvider) ProviderID() string   { return p.cfg.ProviderID }
func (p *HTTPProvider) ModelID() string      { return p.cfg.ModelID }
func (p *HTTPProvider) Dimensions() int      { return p.cfg.Dimensions }
func (p *HTTPProvider) MaxBatchSize() int    { return p.cfg.MaxBatchSize }
func (p *HTTPProvider) Normalization() string { return p.cfg.Normalization }

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string, opts EmbedOptions) (EmbedResult, error) {
	start := time.Now()
	embeddings, err := p.doEmbed(ctx, texts)
	atomic.AddInt64(&p.requestCount, 1)
	atomic.AddInt64(&p.totalLatency, time.Since(start).Milliseconds())
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return EmbedResult{}, err
	}
	return EmbedResult{Embeddings: embeddings}, nil
}

func (p *HTTPProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	reqBody := httpEmbedRequest{Model: p.cfg.ModelID, Input: texts}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, pipelineerrors.Internal("failed to marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pipelineerrors.Internal("failed to build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pipelineerrors.Timeout("embed request timed out", err)
		}
		return nil, pipelineerrors.ProviderUnavailable("failed to reach embedding endpoint", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, pipelineerrors.RateLimited(fmt.Sprintf("provider rate limited: %s", respBody), nil)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, pipelineerrors.ProviderUnavailable(
			fmt.Sprintf("embed request failed with status %d: %s", resp.StatusCode, respBody), nil)
	}

	var result httpEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pipelineerrors.Internal("failed to decode embed response", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, pipelineerrors.BadInput(
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)), nil)
	}
	return result.Embeddings, nil
}

func (p *HTTPProvider) Health(ctx context.Context) HealthStatus {
	_, err := p.doEmbed(ctx, []string{"health check"})
	if err != nil {
		return HealthStatus{State: HealthUnavailable, Message: err.Error()}
	}
	return HealthStatus{State: HealthReady}
}

func (p *HTTPProvider) Metrics() ProviderMetrics {
	return ProviderMetrics{
		RequestCount:   atomic.LoadInt64(&p.requestCount),
		ErrorCount:     atomic.LoadInt64(&p.errorCount),
		TotalLatencyMs: atomic.LoadInt64(&p.totalLatency),
	}
}

// Close releases pooled connections.
func (p *HTTPProvider) Close() {
	p.transport.CloseIdleConnections()
}
