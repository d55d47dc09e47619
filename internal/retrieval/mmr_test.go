package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel-engine/codeintel/internal/store"
)

func candidate(id, path, content string, score float64) Candidate {
	return Candidate{
		Chunk: &store.Chunk{ID: id, FilePath: path, Content: content},
		Score: score,
	}
}

func TestExtractCriticalTerms_FindsFilePathsIdentifiersAndQuotes(t *testing.T) {
	terms := ExtractCriticalTerms(`how does parseConfig work in internal/config/config.go and "retry budget"?`)
	assert.Contains(t, terms, "internal/config/config.go")
	assert.Contains(t, terms, "parseConfig")
	assert.Contains(t, terms, "retry budget")
}

func TestExtractCriticalTerms_DeduplicatesRepeatedTerms(t *testing.T) {
	terms := ExtractCriticalTerms("parseConfig calls parseConfig again")
	count := 0
	for _, term := range terms {
		if term == "parseConfig" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestMarkCritical_TagsMatchingFilePath(t *testing.T) {
	candidates := []Candidate{
		candidate("1", "internal/config/config.go", "package config", 0.9),
		candidate("2", "internal/store/contentstore.go", "package store", 0.8),
	}
	marked := MarkCritical(candidates, []string{"internal/config/config.go"})
	assert.True(t, isCritical(marked[0].Chunk))
	assert.False(t, isCritical(marked[1].Chunk))
}

func TestMarkCritical_TagsMatchingSymbolName(t *testing.T) {
	c := candidate("1", "a.go", "func parseConfig() {}", 0.5)
	c.Chunk.Symbols = []*store.Symbol{{Name: "parseConfig"}}
	marked := MarkCritical([]Candidate{c}, []string{"parseConfig"})
	assert.True(t, isCritical(marked[0].Chunk))
}

func TestMarkCritical_NoTermsReturnsUnchanged(t *testing.T) {
	candidates := []Candidate{candidate("1", "a.go", "x", 0.5)}
	marked := MarkCritical(candidates, nil)
	assert.Same(t, candidates[0].Chunk, marked[0].Chunk)
}

func TestSelect_FallsBackWhenCandidatesAtOrBelowFallbackSize(t *testing.T) {
	weights := DefaultWeights()
	weights.FallbackSize = 5
	candidates := []Candidate{
		candidate("1", "a.go", "aaaa", 0.9),
		candidate("2", "b.go", "bbbb", 0.8),
	}

	selected, metrics := Select(candidates, 1000, weights, nil)
	require.Len(t, selected, 2)
	assert.Equal(t, 0.0, float64(metrics.SelectionTime))
	assert.Equal(t, 1.0, metrics.CriticalCoverage)
}

func TestSelect_IncludesCriticalCandidatesAheadOfHigherScoredNonCritical(t *testing.T) {
	weights := DefaultWeights()
	weights.FallbackSize = 0 // force the MMR path even with few candidates

	candidates := make([]Candidate, 0, 12)
	for i := 0; i < 10; i++ {
		candidates = append(candidates, candidate(
			string(rune('a'+i)), "file"+string(rune('a'+i))+".go", "filler content words here", 0.95-float64(i)*0.01))
	}
	critical := candidate("critical-1", "internal/config/config.go", "package config", 0.1)
	candidates = append(candidates, critical)
	candidates = MarkCritical(candidates, []string{"internal/config/config.go"})

	selected, metrics := Select(candidates, 10_000, weights, JaccardSimilarity)

	var sawCritical bool
	for _, s := range selected {
		if s.Chunk.ID == "critical-1" {
			sawCritical = true
		}
	}
	assert.True(t, sawCritical, "low-scored critical candidate should still be selected")
	assert.Greater(t, metrics.CriticalCoverage, 0.0)
}

func TestSelect_RespectsTokenBudget(t *testing.T) {
	weights := DefaultWeights()
	weights.FallbackSize = 0
	weights.Cushion = 0

	longContent := make([]byte, 4000) // ~1000 tokens at TokensPerChar=4
	for i := range longContent {
		longContent[i] = 'x'
	}
	candidates := []Candidate{
		candidate("1", "a.go", string(longContent), 0.9),
		candidate("2", "b.go", string(longContent), 0.8),
		candidate("3", "c.go", string(longContent), 0.7),
	}

	selected, metrics := Select(candidates, 1500, weights, JaccardSimilarity)
	total := 0
	for _, s := range selected {
		total += s.TokenCost
	}
	assert.LessOrEqual(t, total, 1500)
	assert.LessOrEqual(t, metrics.BudgetUtilization, 1.0)
}

func TestSelect_DeterministicTieBreakOnEqualScores(t *testing.T) {
	weights := DefaultWeights()
	weights.FallbackSize = 0
	weights.Lambda = 1 // pure relevance, no diversity penalty, to isolate tie-break

	candidates := []Candidate{
		candidate("z", "z.go", "unique words zzzz", 0.5),
		candidate("a", "a.go", "unique words aaaa", 0.5),
	}

	selected, _ := Select(candidates, 10_000, weights, JaccardSimilarity)
	require.Len(t, selected, 2)
	assert.Equal(t, "a", selected[0].Chunk.ID, "equal scores should break ties toward the lower chunk ID first")
}

func TestJaccardSimilarity_IdenticalContentIsOne(t *testing.T) {
	a := &store.Chunk{Content: "alpha beta gamma"}
	b := &store.Chunk{Content: "alpha beta gamma"}
	assert.Equal(t, 1.0, JaccardSimilarity(a, b))
}

func TestJaccardSimilarity_DisjointContentIsZero(t *testing.T) {
	a := &store.Chunk{Content: "alpha beta"}
	b := &store.Chunk{Content: "gamma delta"}
	assert.Equal(t, 0.0, JaccardSimilarity(a, b))
}

func TestJaccardSimilarity_EmptyContentIsZero(t *testing.T) {
	a := &store.Chunk{Content: ""}
	b := &store.Chunk{Content: "alpha"}
	assert.Equal(t, 0.0, JaccardSimilarity(a, b))
}

func TestFromConfig_FallsBackToDefaultsForZeroValues(t *testing.T) {
	w := FromConfig(0, 0, 0, 0)
	assert.Equal(t, DefaultWeights(), w)
}

func TestFromConfig_OverridesProvidedValues(t *testing.T) {
	w := FromConfig(0.7, 0.9, 0.1, 50)
	assert.Equal(t, 0.7, w.Lambda)
	assert.Equal(t, 0.9, w.CriticalCoverage)
	assert.Equal(t, 0.1, w.Cushion)
	assert.Equal(t, 50, w.FallbackSize)
}

func TestDiversityScore_SingleSelectionIsOne(t *testing.T) {
	score := diversityScore([]Selected{{Chunk: &store.Chunk{Content: "a"}}}, JaccardSimilarity)
	assert.Equal(t, 1.0, score)
}
