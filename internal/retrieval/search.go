// Package retrieval implements query-time search: exact/approximate
// vector search (C8), relationship-graph traversal (C9), and MMR-based
// candidate selection (C10). Together they turn an embedded query into
// the context package a caller actually wants back.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/codeintel-engine/codeintel/internal/config"
	"github.com/codeintel-engine/codeintel/internal/errors"
	"github.com/codeintel-engine/codeintel/internal/store"
)

// Candidate is a scored chunk produced by vector search, before
// traversal expansion or MMR selection narrow it further.
type Candidate struct {
	Chunk *store.Chunk
	Score float64 // cosine similarity, inner product on L2-normalized vectors
}

// VectorSearcher implements similarity_search (C8): exact linear scan
// below ExactScanThreshold, the content store's approximate HNSW index
// above it, behind the same return shape either way.
type VectorSearcher struct {
	store *store.ContentStore
	cfg   config.RetrievalConfig
}

// NewVectorSearcher constructs a searcher over store, using cfg's
// exact-scan threshold to pick a search strategy per call.
func NewVectorSearcher(cs *store.ContentStore, cfg config.RetrievalConfig) *VectorSearcher {
	return &VectorSearcher{store: cs, cfg: cfg}
}

// Search returns the top-k most similar chunks to queryVec. Ties are
// broken by chunk ID lexicographic order for determinism. A dimension
// mismatch between queryVec and the index is a fatal ModelMismatch,
// never a silently degraded result.
func (v *VectorSearcher) Search(ctx context.Context, queryVec []float32, k int) ([]Candidate, error) {
	stats := v.store.Stats()
	if stats.Dimensions != 0 && len(queryVec) != stats.Dimensions {
		return nil, errors.ModelMismatch(fmt.Sprintf(
			"query vector has %d dimensions, index expects %d", len(queryVec), stats.Dimensions))
	}
	if k <= 0 {
		return nil, nil
	}

	threshold := v.cfg.ExactScanThreshold
	if threshold <= 0 {
		threshold = 500_000
	}

	if v.store.ChunkCount() <= threshold {
		return v.exactSearch(ctx, queryVec, k)
	}
	return v.approximateSearch(ctx, queryVec, k)
}

// exactSearch computes cosine similarity (inner product on normalized
// vectors) against every embedded chunk, the same linear-scan shape
// already used by the teacher's RRF fusion scoring loops, just over raw
// embeddings instead of precomputed BM25/vector ranks.
func (v *VectorSearcher) exactSearch(ctx context.Context, queryVec []float32, k int) ([]Candidate, error) {
	embeddings, err := v.store.AllEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load embeddings for exact scan: %w", err)
	}

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(embeddings))
	for id, vec := range embeddings {
		ranked = append(ranked, scored{id: id, score: dot(queryVec, vec)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	ids := make([]string, len(ranked))
	scores := make([]float64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
		scores[i] = r.score
	}
	return v.hydrate(ctx, ids, scores)
}

// approximateSearch delegates to the content store's HNSW index.
func (v *VectorSearcher) approximateSearch(ctx context.Context, queryVec []float32, k int) ([]Candidate, error) {
	results, err := v.store.SimilaritySearch(ctx, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("approximate search: %w", err)
	}
	ids := make([]string, len(results))
	scores := make([]float64, len(results))
	for i, r := range results {
		ids[i] = r.ID
		scores[i] = float64(r.Score)
	}
	return v.hydrate(ctx, ids, scores)
}

func (v *VectorSearcher) hydrate(ctx context.Context, ids []string, scores []float64) ([]Candidate, error) {
	return hydrateCandidates(ctx, v.store, ids, scores)
}

// hydrateCandidates loads chunks by ID and pairs each with its score,
// shared by VectorSearcher and KeywordSearcher so both search paths
// produce the same Candidate shape regardless of which index found the
// ID. A stale index entry whose chunk row no longer exists is skipped
// rather than surfaced as an error.
func hydrateCandidates(ctx context.Context, cs *store.ContentStore, ids []string, scores []float64) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(ids))
	for i, id := range ids {
		c, err := cs.GetChunk(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", id, err)
		}
		if c == nil {
			continue
		}
		candidates = append(candidates, Candidate{Chunk: c, Score: scores[i]})
	}
	return candidates, nil
}

// KeywordSearcher implements the keyword-recall channel: literal
// term/identifier matches from the content store's BM25 index, meant to
// be merged into the vector search candidate pool before critical-term
// marking so an exact identifier or path match isn't lost to whatever
// the embedding model under-weights.
type KeywordSearcher struct {
	store *store.ContentStore
}

// NewKeywordSearcher constructs a keyword searcher over store's BM25
// index.
func NewKeywordSearcher(cs *store.ContentStore) *KeywordSearcher {
	return &KeywordSearcher{store: cs}
}

// Search returns up to limit chunks whose content matches query by BM25
// score. An empty or whitespace-only query yields no candidates rather
// than an error, since callers may invoke this unconditionally alongside
// vector search.
func (k *KeywordSearcher) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	hits, err := k.store.KeywordSearch(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	ids := make([]string, len(hits))
	scores := make([]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
		scores[i] = h.Score
	}
	return hydrateCandidates(ctx, k.store, ids, scores)
}

func dot(a []float32, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

