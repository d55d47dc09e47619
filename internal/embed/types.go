// Package embed provides the fallback embedder used when no worker
// process is available: a deterministic, dimension-compatible hash
// embedding that needs no model weights or external process.
package embed

import (
	"context"
	"math"
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error

	// SetBatchIndex sets the batch index for thermal timeout progression.
	// BUG-050: Used when resuming from checkpoint to maintain correct batch position.
	SetBatchIndex(idx int)

	// SetFinalBatch marks the embedder as processing the final batch.
	// BUG-050: Triggers a 1.5x timeout boost for peak thermal throttling.
	SetFinalBatch(isFinal bool)
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
