package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/codeintel-engine/codeintel/internal/graph"
	"github.com/codeintel-engine/codeintel/internal/store"
)

// Direction selects which edges a traversal follows from each frontier
// symbol.
type Direction string

const (
	DirectionForward  Direction = "forward"  // follow Outgoing edges
	DirectionBackward Direction = "backward" // follow Incoming edges
	DirectionBoth     Direction = "both"
)

// PruneStrategy names how a traversal's result list is cut to MaxResults.
// Only PruneByWeight exists: discoveries are sorted by weight and the
// final list is truncated; the frontier itself is not trimmed.
type PruneStrategy string

const (
	// PruneByWeight keeps the highest hop-decayed-weight discoveries.
	PruneByWeight PruneStrategy = "weight"
)

// Options configures a bounded breadth-first expansion over the
// relationship graph (C9).
type Options struct {
	MaxDepth           int
	RelationshipTypes  []graph.RelationshipType
	Direction          Direction
	MinStrength        float64
	MinConfidence      float64
	IncludeTransitive  bool
	PruneStrategy      PruneStrategy
	MaxResults         int // 0 = unbounded
	HopDecay           float64
}

// DefaultOptions returns traversal defaults consistent with
// config.RetrievalConfig's HopDecay/MaxDepth fields.
func DefaultOptions(hopDecay float64, maxDepth int) Options {
	if hopDecay <= 0 {
		hopDecay = 0.8
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return Options{
		MaxDepth:      maxDepth,
		Direction:     DirectionBoth,
		MinStrength:   0,
		MinConfidence: 0,
		PruneStrategy: PruneByWeight,
		HopDecay:      hopDecay,
	}
}

// Discovery is one symbol reached during traversal, tagged with the hop
// depth and decayed weight of the shortest path that reached it.
type Discovery struct {
	Symbol *graph.Symbol
	Depth  int
	Weight float64
}

// PathStep is one edge in the shortest path that reached a discovered
// symbol.
type PathStep struct {
	Relationship *graph.Relationship
	Depth        int
}

// Statistics summarizes a completed traversal.
type Statistics struct {
	DepthDistribution map[int]int
	TypeDistribution  map[graph.RelationshipType]int
	Duration          time.Duration
}

// Result is the output of a bounded BFS expansion (C9).
type Result struct {
	DiscoveredSymbols    []*Discovery
	TraversedRelationships []*graph.Relationship
	Paths                map[string][]PathStep // symbol id -> shortest path from a seed
	Statistics           Statistics
}

// Traverser expands an initial candidate set across the relationship
// graph, tagging each newly discovered symbol with hop depth and a
// hop-decayed weight, and retaining only the shortest (least-decayed)
// path to each symbol.
type Traverser struct {
	graph *graph.Graph
}

// NewTraverser constructs a Traverser over g.
func NewTraverser(g *graph.Graph) *Traverser {
	return &Traverser{graph: g}
}

// Traverse runs a bounded BFS from seedSymbolIDs, expanding up to
// opts.MaxDepth hops. Edges below MinStrength/MinConfidence are skipped
// entirely; they neither count as discoveries nor continue the frontier.
func (tr *Traverser) Traverse(ctx context.Context, seedSymbolIDs []string, opts Options) (*Result, error) {
	start := time.Now()
	decay := opts.HopDecay
	if decay <= 0 {
		decay = 0.8
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}

	best := make(map[string]*Discovery, len(seedSymbolIDs))
	paths := make(map[string][]PathStep)
	var traversed []*graph.Relationship
	depthDist := make(map[int]int)
	typeDist := make(map[graph.RelationshipType]int)

	type frontierEntry struct {
		id     string
		depth  int
		weight float64
		path   []PathStep
	}
	var frontier []frontierEntry
	for _, id := range seedSymbolIDs {
		if sym, ok := tr.graph.GetSymbol(id); ok {
			best[id] = &Discovery{Symbol: sym, Depth: 0, Weight: 1.0}
		}
		frontier = append(frontier, frontierEntry{id: id, depth: 0, weight: 1.0})
	}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []frontierEntry
		for _, fe := range frontier {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			rels, err := tr.edgesFor(fe.id, opts)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				if rel.Strength < opts.MinStrength || rel.Confidence < opts.MinConfidence {
					continue
				}
				neighbor := rel.To
				if neighbor == fe.id {
					continue
				}
				// For Incoming edges the neighbor is the source, not To.
				if isIncomingEdge(fe.id, rel) {
					neighbor = rel.From
				}

				weight := fe.weight * decay
				existing, seen := best[neighbor]
				if seen && existing.Weight >= weight {
					continue // a shorter/stronger path already reached this symbol
				}

				sym, ok := tr.graph.GetSymbol(neighbor)
				if !ok {
					continue
				}
				best[neighbor] = &Discovery{Symbol: sym, Depth: depth + 1, Weight: weight}

				stepPath := append(append([]PathStep{}, fe.path...), PathStep{Relationship: rel, Depth: depth + 1})
				paths[neighbor] = stepPath

				traversed = append(traversed, rel)
				depthDist[depth+1]++
				typeDist[rel.Type]++

				if !opts.IncludeTransitive && depth+1 >= maxDepth {
					continue // don't keep expanding past the requested depth
				}
				next = append(next, frontierEntry{id: neighbor, depth: depth + 1, weight: weight, path: stepPath})
			}
		}
		frontier = next
	}

	discoveries := make([]*Discovery, 0, len(best))
	for _, d := range best {
		discoveries = append(discoveries, d)
	}
	sort.Slice(discoveries, func(i, j int) bool {
		if discoveries[i].Weight != discoveries[j].Weight {
			return discoveries[i].Weight > discoveries[j].Weight
		}
		return discoveries[i].Symbol.ID < discoveries[j].Symbol.ID
	})

	if opts.MaxResults > 0 && len(discoveries) > opts.MaxResults {
		discoveries = discoveries[:opts.MaxResults]
	}

	return &Result{
		DiscoveredSymbols:      discoveries,
		TraversedRelationships: traversed,
		Paths:                  paths,
		Statistics: Statistics{
			DepthDistribution: depthDist,
			TypeDistribution:  typeDist,
			Duration:           time.Since(start),
		},
	}, nil
}

func (tr *Traverser) edgesFor(id string, opts Options) ([]*graph.Relationship, error) {
	switch opts.Direction {
	case DirectionForward:
		return tr.graph.Outgoing(id, opts.RelationshipTypes...)
	case DirectionBackward:
		return tr.graph.Incoming(id, opts.RelationshipTypes...)
	default:
		out, err := tr.graph.Outgoing(id, opts.RelationshipTypes...)
		if err != nil {
			return nil, err
		}
		in, err := tr.graph.Incoming(id, opts.RelationshipTypes...)
		if err != nil {
			return nil, err
		}
		return append(out, in...), nil
	}
}

// isIncomingEdge reports whether rel was reached as an incoming edge to
// fromID (i.e. fromID is the target, not the source), so the traversal
// can follow it toward rel.From instead of rel.To.
func isIncomingEdge(fromID string, rel *graph.Relationship) bool {
	return rel.To == fromID && rel.From != fromID
}

// ChunksFor maps discovered symbols to their owning chunks via each
// symbol's ChunkID, hydrating through the content store and tagging each
// with its traversal weight as a Candidate score.
func ChunksFor(ctx context.Context, cs *store.ContentStore, discoveries []*Discovery) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(discoveries))
	seen := make(map[string]bool)
	for _, d := range discoveries {
		if d.Symbol.ChunkID == "" || seen[d.Symbol.ChunkID] {
			continue
		}
		seen[d.Symbol.ChunkID] = true
		c, err := cs.GetChunk(ctx, d.Symbol.ChunkID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		candidates = append(candidates, Candidate{Chunk: c, Score: d.Weight})
	}
	return candidates, nil
}
