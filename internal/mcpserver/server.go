package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeintel-engine/codeintel/internal/config"
	"github.com/codeintel-engine/codeintel/internal/graph"
	"github.com/codeintel-engine/codeintel/internal/indexer"
	"github.com/codeintel-engine/codeintel/internal/orchestrator"
	"github.com/codeintel-engine/codeintel/internal/retrieval"
	"github.com/codeintel-engine/codeintel/internal/store"
	"github.com/codeintel-engine/codeintel/pkg/version"
)

// Server binds the search, index, handle_file_change, and index_status
// MCP tools onto an already-running indexing/retrieval pipeline. It
// carries no query logic of its own: every handler is a thin conversion
// between the MCP schema and internal/retrieval + internal/indexer
// calls.
type Server struct {
	mcp       *mcp.Server
	searcher  *retrieval.VectorSearcher
	keyword   *retrieval.KeywordSearcher
	traverser *retrieval.Traverser
	graph     *graph.Graph
	store     *store.ContentStore
	indexer   *indexer.Indexer
	embedder  *orchestrator.Orchestrator
	cfg       *config.Config
	rootPath  string
	logger    *slog.Logger

	mu sync.RWMutex
}

// NewServer constructs a Server over the given project's fully-wired
// collaborators. embedder embeds query text into the same vector space
// the content store's chunks were embedded into.
func NewServer(ix *indexer.Indexer, cs *store.ContentStore, g *graph.Graph, embedder *orchestrator.Orchestrator, cfg *config.Config, rootPath string) (*Server, error) {
	if ix == nil || cs == nil || g == nil || embedder == nil {
		return nil, fmt.Errorf("mcpserver: indexer, content store, graph, and embedder are required")
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	s := &Server{
		searcher:  retrieval.NewVectorSearcher(cs, cfg.Retrieval),
		keyword:   retrieval.NewKeywordSearcher(cs),
		traverser: retrieval.NewTraverser(g),
		graph:     g,
		store:     cs,
		indexer:   ix,
		embedder:  embedder,
		cfg:       cfg,
		rootPath:  rootPath,
		logger:    slog.Default(),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "codeintel",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server, for callers that need
// direct access (e.g. to add transports not covered by Serve).
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve blocks, dispatching tool calls over transport until ctx is
// canceled. Only "stdio" is supported; it is the only transport the
// MCP clients this server targets (Claude Code, editors) speak.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.Any("error", err))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases resources the server itself owns. The collaborators it
// was constructed with (indexer, store, graph) are the caller's to close.
func (s *Server) Close() error {
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search",
		Description: "Search the indexed codebase for relevant code and documentation. Runs vector " +
			"similarity search, optionally expands through the relationship graph, and selects a " +
			"diverse, budget-bounded context package via MMR.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index",
		Description: "Run a full, incremental, or reindex pass over the project and report what changed.",
	}, s.handleIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "handle_file_change",
		Description: "Apply a single file upsert or delete to the index, for callers that detect " +
			"file changes themselves rather than relying on the indexer's own watcher.",
	}, s.handleFileChange)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report project metadata, index size, and any indexing run currently in progress.",
	}, s.handleIndexStatus)

	s.logger.Debug("registered MCP tools", slog.Int("count", 4))
}

func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func clampLimit(requested, def, min, max int) int {
	if requested <= 0 {
		requested = def
	}
	if requested < min {
		return min
	}
	if requested > max {
		return max
	}
	return requested
}

// seedSymbolIDs recovers the graph.Symbol IDs owned by each candidate
// chunk, using the same "file_path:name:start_line" scheme
// internal/graph/analyze builds IDs with, so traversal can seed from
// vector-search hits without the content store needing to persist a
// chunk->symbol-ID index of its own.
func seedSymbolIDs(candidates []retrieval.Candidate) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		for _, sym := range c.Chunk.Symbols {
			id := fmt.Sprintf("%s:%s:%d", c.Chunk.FilePath, sym.Name, sym.StartLine)
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// mergeCandidates appends extra candidates onto base, skipping any whose
// chunk ID is already present so traversal expansion never duplicates a
// vector-search hit.
func mergeCandidates(base, extra []retrieval.Candidate) []retrieval.Candidate {
	seen := make(map[string]bool, len(base))
	for _, c := range base {
		seen[c.Chunk.ID] = true
	}
	merged := base
	for _, c := range extra {
		if seen[c.Chunk.ID] {
			continue
		}
		seen[c.Chunk.ID] = true
		merged = append(merged, c)
	}
	return merged
}

func filterByLanguage(candidates []retrieval.Candidate, language string) []retrieval.Candidate {
	if language == "" {
		return candidates
	}
	filtered := make([]retrieval.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.EqualFold(c.Chunk.Language, language) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func filterByScope(candidates []retrieval.Candidate, scope []string) []retrieval.Candidate {
	if len(scope) == 0 {
		return candidates
	}
	filtered := make([]retrieval.Candidate, 0, len(candidates))
	for _, c := range candidates {
		for _, prefix := range scope {
			if strings.HasPrefix(c.Chunk.FilePath, prefix) {
				filtered = append(filtered, c)
				break
			}
		}
	}
	return filtered
}
