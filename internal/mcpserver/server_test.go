package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeintel-engine/codeintel/internal/retrieval"
	"github.com/codeintel-engine/codeintel/internal/store"
)

func chunkCandidate(id, path, language string, symbols []*store.Symbol, score float64) retrieval.Candidate {
	return retrieval.Candidate{
		Chunk: &store.Chunk{ID: id, FilePath: path, Language: language, Symbols: symbols},
		Score: score,
	}
}

func TestClampLimit_UsesDefaultWhenZeroOrNegative(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 10, clampLimit(-5, 10, 1, 50))
}

func TestClampLimit_ClampsToRange(t *testing.T) {
	assert.Equal(t, 1, clampLimit(0, 0, 1, 50))
	assert.Equal(t, 50, clampLimit(1000, 10, 1, 50))
}

func TestClampLimit_PassesThroughWithinRange(t *testing.T) {
	assert.Equal(t, 25, clampLimit(25, 10, 1, 50))
}

func TestSeedSymbolIDs_BuildsFilePathNameLineScheme(t *testing.T) {
	candidates := []retrieval.Candidate{
		chunkCandidate("c1", "pkg/a.go", "go", []*store.Symbol{{Name: "DoThing", StartLine: 12}}, 0.9),
	}
	ids := seedSymbolIDs(candidates)
	assert.Equal(t, []string{"pkg/a.go:DoThing:12"}, ids)
}

func TestSeedSymbolIDs_DeduplicatesAcrossChunks(t *testing.T) {
	sym := []*store.Symbol{{Name: "DoThing", StartLine: 12}}
	candidates := []retrieval.Candidate{
		chunkCandidate("c1", "pkg/a.go", "go", sym, 0.9),
		chunkCandidate("c2", "pkg/a.go", "go", sym, 0.5),
	}
	ids := seedSymbolIDs(candidates)
	assert.Len(t, ids, 1)
}

func TestMergeCandidates_SkipsDuplicateChunkIDs(t *testing.T) {
	base := []retrieval.Candidate{chunkCandidate("c1", "a.go", "go", nil, 0.9)}
	extra := []retrieval.Candidate{
		chunkCandidate("c1", "a.go", "go", nil, 0.1),
		chunkCandidate("c2", "b.go", "go", nil, 0.4),
	}
	merged := mergeCandidates(base, extra)
	assert.Len(t, merged, 2)
	assert.Equal(t, "c1", merged[0].Chunk.ID)
	assert.Equal(t, "c2", merged[1].Chunk.ID)
}

func TestFilterByLanguage_EmptyFilterPassesThrough(t *testing.T) {
	candidates := []retrieval.Candidate{chunkCandidate("c1", "a.go", "go", nil, 0.9)}
	assert.Len(t, filterByLanguage(candidates, ""), 1)
}

func TestFilterByLanguage_IsCaseInsensitive(t *testing.T) {
	candidates := []retrieval.Candidate{
		chunkCandidate("c1", "a.go", "Go", nil, 0.9),
		chunkCandidate("c2", "b.py", "python", nil, 0.5),
	}
	filtered := filterByLanguage(candidates, "go")
	assert.Len(t, filtered, 1)
	assert.Equal(t, "c1", filtered[0].Chunk.ID)
}

func TestFilterByScope_MatchesAnyPrefix(t *testing.T) {
	candidates := []retrieval.Candidate{
		chunkCandidate("c1", "internal/store/chunk.go", "go", nil, 0.9),
		chunkCandidate("c2", "internal/retrieval/mmr.go", "go", nil, 0.8),
		chunkCandidate("c3", "cmd/main.go", "go", nil, 0.7),
	}
	filtered := filterByScope(candidates, []string{"internal/store", "cmd"})
	assert.Len(t, filtered, 2)
	assert.Equal(t, "c1", filtered[0].Chunk.ID)
	assert.Equal(t, "c3", filtered[1].Chunk.ID)
}

func TestFilterByScope_EmptyScopePassesThrough(t *testing.T) {
	candidates := []retrieval.Candidate{chunkCandidate("c1", "a.go", "go", nil, 0.9)}
	assert.Len(t, filterByScope(candidates, nil), 1)
}

func TestToSearchResultOutput_UsesPrimarySymbol(t *testing.T) {
	sel := retrieval.Selected{
		Chunk: &store.Chunk{
			FilePath:  "pkg/a.go",
			Content:   "func DoThing() {}",
			Language:  "go",
			StartLine: 10,
			EndLine:   12,
			Symbols:   []*store.Symbol{{Name: "DoThing", Signature: "func DoThing()"}},
		},
		Score:    0.8,
		Critical: true,
	}
	out := toSearchResultOutput(sel)
	assert.Equal(t, "pkg/a.go", out.FilePath)
	assert.Equal(t, "DoThing", out.Symbol)
	assert.Equal(t, "func DoThing()", out.Signature)
	assert.True(t, out.Critical)
}

func TestToSearchResultOutput_NoSymbolsLeavesFieldsEmpty(t *testing.T) {
	sel := retrieval.Selected{Chunk: &store.Chunk{FilePath: "README.md", Content: "# Title"}}
	out := toSearchResultOutput(sel)
	assert.Empty(t, out.Symbol)
	assert.Empty(t, out.Signature)
}
