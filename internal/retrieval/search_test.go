package retrieval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel-engine/codeintel/internal/config"
	"github.com/codeintel-engine/codeintel/internal/errors"
	"github.com/codeintel-engine/codeintel/internal/store"
)

func newTestStore(t *testing.T, dims int) *store.ContentStore {
	t.Helper()
	tmp := t.TempDir()
	cs, err := store.OpenContentStore(store.ContentStoreConfig{
		ProjectID:  "proj-retrieval",
		LocalDir:   filepath.Join(tmp, "local"),
		ProviderID: "static",
		ModelID:    "static-dims",
		Dimensions: dims,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func seedChunk(t *testing.T, cs *store.ContentStore, id, path, content string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	fileID, err := cs.EnsureFile(ctx, path, int64(len(content)), time.Now(), "", "go", store.ContentTypeCode)
	require.NoError(t, err)
	chunk := &store.Chunk{ID: id, FileID: fileID, FilePath: path, Content: content, ContentType: store.ContentTypeCode}
	require.NoError(t, cs.Upsert(ctx, []*store.Chunk{chunk}))
	require.NoError(t, cs.AddEmbeddings(ctx, []string{id}, [][]float32{vec}, "static-dims"))
}

func TestVectorSearcher_Search_ExactScanRanksByDotProductDescending(t *testing.T) {
	cs := newTestStore(t, 3)
	seedChunk(t, cs, "c1", "a.go", "func a() {}", []float32{1, 0, 0})
	seedChunk(t, cs, "c2", "b.go", "func b() {}", []float32{0, 1, 0})
	seedChunk(t, cs, "c3", "c.go", "func c() {}", []float32{0.9, 0.1, 0})

	searcher := NewVectorSearcher(cs, config.RetrievalConfig{ExactScanThreshold: 500_000})
	results, err := searcher.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.Equal(t, "c3", results[1].Chunk.ID)
}

func TestVectorSearcher_Search_DimensionMismatchIsFatal(t *testing.T) {
	cs := newTestStore(t, 3)
	seedChunk(t, cs, "c1", "a.go", "func a() {}", []float32{1, 0, 0})

	searcher := NewVectorSearcher(cs, config.RetrievalConfig{})
	_, err := searcher.Search(context.Background(), []float32{1, 0}, 5)
	require.Error(t, err)

	var pe *errors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, errors.ErrCodeDimensionMismatch, pe.Code)
}

func TestVectorSearcher_Search_ZeroKReturnsNoResults(t *testing.T) {
	cs := newTestStore(t, 3)
	seedChunk(t, cs, "c1", "a.go", "func a() {}", []float32{1, 0, 0})

	searcher := NewVectorSearcher(cs, config.RetrievalConfig{})
	results, err := searcher.Search(context.Background(), []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestVectorSearcher_Search_UsesApproximatePathAboveThreshold(t *testing.T) {
	cs := newTestStore(t, 3)
	seedChunk(t, cs, "c1", "a.go", "func a() {}", []float32{1, 0, 0})
	seedChunk(t, cs, "c2", "b.go", "func b() {}", []float32{0, 1, 0})

	searcher := NewVectorSearcher(cs, config.RetrievalConfig{ExactScanThreshold: 1})
	results, err := searcher.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestDot_ComputesInnerProduct(t *testing.T) {
	assert.InDelta(t, 1.0, dot([]float32{1, 0, 0}, []float32{1, 0, 0}), 1e-9)
	assert.InDelta(t, 0.0, dot([]float32{1, 0, 0}, []float32{0, 1, 0}), 1e-9)
}
