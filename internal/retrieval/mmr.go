package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/codeintel-engine/codeintel/internal/chunk"
	"github.com/codeintel-engine/codeintel/internal/store"
)

// Compiled once, the same pattern-matching approach the teacher's
// PatternClassifier uses for query classification (internal/search/
// patterns.go), narrowed here to just the identifier/path shapes a
// critical-set extraction cares about.
var (
	criticalFilePathPattern = regexp.MustCompile(`(?i)[\w\-./\\]+\.(go|ts|tsx|js|jsx|py|md|json|yaml|yml|toml|rs|java|kt|c|cpp|h|hpp|rb|php|sh)\b`)
	criticalIdentPattern    = regexp.MustCompile(`\b([a-z]+(?:[A-Z][a-z0-9]*)+|[A-Z][a-zA-Z0-9]*(?:[A-Z][a-z0-9]*)+|[a-z]+(?:_[a-z0-9]+)+|[A-Z]+(?:_[A-Z0-9]+)+)\b`)
	criticalQuotedPattern   = regexp.MustCompile(`["']([^"']+)["']`)
)

// ExtractCriticalTerms pulls file paths, quoted phrases, and
// camelCase/PascalCase/snake_case/SCREAMING_SNAKE identifiers out of a
// query — the deterministic pattern matcher spec.md §4.10 calls for to
// build the critical set K.
func ExtractCriticalTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		terms = append(terms, s)
	}
	for _, m := range criticalFilePathPattern.FindAllString(query, -1) {
		add(m)
	}
	for _, m := range criticalQuotedPattern.FindAllStringSubmatch(query, -1) {
		add(m[1])
	}
	for _, m := range criticalIdentPattern.FindAllString(query, -1) {
		add(m)
	}
	return terms
}

// Weights configures the MMR algorithm's parameters (spec.md §4.10).
type Weights struct {
	Lambda           float64 // λ: relevance vs diversity tradeoff
	CriticalCoverage float64 // c_min: minimum fraction of K to include
	Cushion          float64 // token-budget cushion reserved during selection
	FallbackSize     int     // candidate count at or below which MMR is skipped
}

// DefaultWeights returns the weights named in spec.md §4.10.
func DefaultWeights() Weights {
	return Weights{Lambda: 0.5, CriticalCoverage: 0.95, Cushion: 0.20, FallbackSize: 20}
}

// FromConfig builds Weights from the retrieval section of the module
// config, falling back to the spec defaults for any zero-valued field.
func FromConfig(lambda, criticalCoverage, cushion float64, fallbackSize int) Weights {
	w := DefaultWeights()
	if lambda > 0 {
		w.Lambda = lambda
	}
	if criticalCoverage > 0 {
		w.CriticalCoverage = criticalCoverage
	}
	if cushion > 0 {
		w.Cushion = cushion
	}
	if fallbackSize > 0 {
		w.FallbackSize = fallbackSize
	}
	return w
}

// SimilarityFunc scores the pairwise similarity s(i,j) between two
// candidate chunks, used to penalize redundancy in the MMR loop.
type SimilarityFunc func(a, b *store.Chunk) float64

// JaccardSimilarity is the token-overlap similarity function used when no
// embedding-based one is supplied — cosine on embeddings and a configured
// hybrid are both valid per spec.md §4.10; this is the always-available
// fallback since it needs nothing beyond chunk content already in hand.
func JaccardSimilarity(a, b *store.Chunk) float64 {
	ta := tokenSet(a.Content)
	tb := tokenSet(b.Content)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	intersection := 0
	for t := range ta {
		if tb[t] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(content string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(content) {
		set[strings.ToLower(f)] = true
	}
	return set
}

// Selected is one chunk chosen by the MMR loop, in selection order.
type Selected struct {
	Chunk     *store.Chunk
	Score     float64 // r_i at time of selection
	Critical  bool
	TokenCost int
}

// Metrics reports the quantitative outcome of an MMR selection pass.
type Metrics struct {
	CriticalCoverage float64 // fraction of K actually selected
	DiversityScore   float64 // 1 - mean pairwise similarity of the selection
	BudgetUtilization float64 // tokens used / budget
	SelectionTime    time.Duration
}

// Select runs the MMR algorithm contract from spec.md §4.10: critical
// inclusion, then a greedy relevance/diversity loop bounded by a token
// budget, with deterministic tie-breaking throughout.
func Select(candidates []Candidate, budget int, weights Weights, sim SimilarityFunc) ([]Selected, Metrics) {
	if sim == nil {
		sim = JaccardSimilarity
	}

	if len(candidates) <= weights.FallbackSize {
		selected := make([]Selected, len(candidates))
		for i, c := range candidates {
			selected[i] = Selected{Chunk: c.Chunk, Score: c.Score, Critical: isCritical(c.Chunk), TokenCost: tokenCost(c.Chunk)}
		}
		return selected, Metrics{
			CriticalCoverage:  1,
			DiversityScore:    diversityScore(selected, sim),
			BudgetUtilization: budgetUtilization(selected, budget),
			SelectionTime:     0,
		}
	}

	start := time.Now()
	critical := make(map[string]bool)
	criticalCount := 0
	for _, c := range candidates {
		if isCritical(c.Chunk) {
			critical[c.Chunk.ID] = true
			criticalCount++
		}
	}

	ordered := append([]Candidate(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool {
		return lessCandidate(ordered[j], ordered[i])
	})

	var selected []Selected
	chosen := make(map[string]bool)
	remaining := budget

	// Step 1: critical inclusion.
	criticalSelected := 0
	targetCritical := int(math.Ceil(weights.CriticalCoverage * float64(criticalCount)))
	for _, c := range ordered {
		if criticalSelected >= targetCritical {
			break
		}
		if !critical[c.Chunk.ID] {
			continue
		}
		cost := tokenCost(c.Chunk)
		if cost > remaining {
			continue // budget pressure forbids this critical item
		}
		selected = append(selected, Selected{Chunk: c.Chunk, Score: c.Score, Critical: true, TokenCost: cost})
		chosen[c.Chunk.ID] = true
		remaining -= cost
		criticalSelected++
	}

	// Step 2: greedy MMR loop.
	for {
		smallestRemainingCost := smallestCost(ordered, chosen)
		if smallestRemainingCost < 0 || remaining < smallestRemainingCost {
			break
		}

		bestIdx := -1
		var bestMMRScore float64
		for i, c := range ordered {
			if chosen[c.Chunk.ID] {
				continue
			}
			maxSim := 0.0
			for _, s := range selected {
				if v := sim(c.Chunk, s.Chunk); v > maxSim {
					maxSim = v
				}
			}
			mmrScore := weights.Lambda*c.Score - (1-weights.Lambda)*maxSim

			if bestIdx == -1 || mmrScore > bestMMRScore ||
				(mmrScore == bestMMRScore && mmrBetter(mmrScore, c, ordered[bestIdx])) {
				bestIdx = i
				bestMMRScore = mmrScore
			}
		}
		if bestIdx == -1 {
			break
		}

		best := ordered[bestIdx]
		cost := tokenCost(best.Chunk)
		if float64(cost) > float64(remaining)-weights.Cushion*float64(budget) {
			// This candidate doesn't fit within the cushioned remaining
			// budget; mark it chosen so the loop doesn't retry it forever,
			// but don't select it.
			chosen[best.Chunk.ID] = true
			continue
		}

		selected = append(selected, Selected{Chunk: best.Chunk, Score: best.Score, Critical: critical[best.Chunk.ID], TokenCost: cost})
		chosen[best.Chunk.ID] = true
		remaining -= cost
	}

	metrics := Metrics{
		DiversityScore:    diversityScore(selected, sim),
		BudgetUtilization: budgetUtilization(selected, budget),
		SelectionTime:     time.Since(start),
	}
	if criticalCount > 0 {
		metrics.CriticalCoverage = float64(criticalSelected) / float64(criticalCount)
	} else {
		metrics.CriticalCoverage = 1
	}

	return selected, metrics
}

// lessCandidate orders a before b by descending relevance, then
// ascending chunk ID — the same tie-break spec.md §4.10 step 3 mandates
// for the MMR loop itself, reused here to make critical inclusion's
// "descending relevance" order deterministic too.
func lessCandidate(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Chunk.ID > b.Chunk.ID
}

// mmrBetter reports whether candidate c (with mmrScore) should replace
// the current best, applying step 3's tie-break: higher r_i, then lower
// chunk_id.
func mmrBetter(mmrScore float64, c, currentBest Candidate) bool {
	// mmrScore here is for c; recompute is avoided by passing it in, but
	// currentBest's own mmr score isn't tracked separately, so ties are
	// resolved purely on r_i/chunk_id as specified.
	if c.Score != currentBest.Score {
		return c.Score > currentBest.Score
	}
	return c.Chunk.ID < currentBest.Chunk.ID
}

func isCritical(c *store.Chunk) bool {
	return c.Metadata["critical"] == "true"
}

// MarkCritical annotates candidates whose file path or symbol names
// match any of the extracted critical terms, so Select's critical-set
// logic (isCritical) can find them without re-running extraction.
func MarkCritical(candidates []Candidate, terms []string) []Candidate {
	if len(terms) == 0 {
		return candidates
	}
	lowerTerms := make([]string, len(terms))
	for i, t := range terms {
		lowerTerms[i] = strings.ToLower(t)
	}

	marked := make([]Candidate, len(candidates))
	for i, c := range candidates {
		marked[i] = c
		if matchesAny(c.Chunk, lowerTerms) {
			marked[i].Chunk = withCriticalMetadata(c.Chunk)
		}
	}
	return marked
}

// MarkAllCritical marks every candidate critical unconditionally. It is
// meant for candidates that already passed a stronger match test than
// MarkCritical's path/symbol heuristic — a keyword-recall hit, for
// instance, matched on content a query term literally appears in.
func MarkAllCritical(candidates []Candidate) []Candidate {
	marked := make([]Candidate, len(candidates))
	for i, c := range candidates {
		marked[i] = c
		marked[i].Chunk = withCriticalMetadata(c.Chunk)
	}
	return marked
}

func withCriticalMetadata(c *store.Chunk) *store.Chunk {
	cp := *c
	if cp.Metadata == nil {
		cp.Metadata = make(map[string]string, 1)
	} else {
		m := make(map[string]string, len(cp.Metadata)+1)
		for k, v := range cp.Metadata {
			m[k] = v
		}
		cp.Metadata = m
	}
	cp.Metadata["critical"] = "true"
	return &cp
}

func matchesAny(c *store.Chunk, lowerTerms []string) bool {
	path := strings.ToLower(c.FilePath)
	for _, t := range lowerTerms {
		if strings.Contains(path, t) {
			return true
		}
	}
	for _, sym := range c.Symbols {
		name := strings.ToLower(sym.Name)
		for _, t := range lowerTerms {
			if name == t {
				return true
			}
		}
	}
	return false
}

func tokenCost(c *store.Chunk) int {
	cost := len(c.Content) / chunk.TokensPerChar
	if cost < 1 {
		return 1
	}
	return cost
}

func smallestCost(candidates []Candidate, chosen map[string]bool) int {
	smallest := -1
	for _, c := range candidates {
		if chosen[c.Chunk.ID] {
			continue
		}
		cost := tokenCost(c.Chunk)
		if smallest == -1 || cost < smallest {
			smallest = cost
		}
	}
	return smallest
}

func diversityScore(selected []Selected, sim SimilarityFunc) float64 {
	if len(selected) < 2 {
		return 1
	}
	var total float64
	var pairs int
	for i := 0; i < len(selected); i++ {
		for j := i + 1; j < len(selected); j++ {
			total += sim(selected[i].Chunk, selected[j].Chunk)
			pairs++
		}
	}
	if pairs == 0 {
		return 1
	}
	return 1 - total/float64(pairs)
}

func budgetUtilization(selected []Selected, budget int) float64 {
	if budget <= 0 {
		return 0
	}
	used := 0
	for _, s := range selected {
		used += s.TokenCost
	}
	return float64(used) / float64(budget)
}
