package worker

import (
	"context"

	"github.com/codeintel-engine/codeintel/internal/embed"
)

// Model is the minimal contract a worker process needs from an embedding
// model: batch embedding plus identity. A worker process loads exactly one
// Model and invokes it sequentially, under Process's mutex.
type Model interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}

// staticModel adapts the static hash embedder to the Model contract so a
// worker process is exercisable without a live Ollama/MLX server.
type staticModel struct {
	e *embed.StaticEmbedder768
}

// NewStaticModel returns the default in-process model a worker loads when
// no external model process is configured.
func NewStaticModel() Model {
	return &staticModel{e: embed.NewStaticEmbedder768()}
}

func (m *staticModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return m.e.EmbedBatch(ctx, texts)
}

func (m *staticModel) Dimensions() int   { return m.e.Dimensions() }
func (m *staticModel) ModelName() string { return m.e.ModelName() }
func (m *staticModel) Close() error      { return m.e.Close() }
