package mcpserver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeintel-engine/codeintel/internal/indexer"
	"github.com/codeintel-engine/codeintel/internal/retrieval"
)

// handleSearch implements the search tool: embed the query, vector
// search, optionally expand through the relationship graph, then select
// a diverse, budget-bounded context package via MMR.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	requestID := generateRequestID()

	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	limit := clampLimit(input.Limit, 10, 1, 100)
	budget := input.TokenBudget
	if budget <= 0 {
		budget = 4000
	}
	maxDepth := input.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}

	s.logger.Info("search started", slog.String("request_id", requestID), slog.String("query", input.Query))
	start := time.Now()

	vecs, err := s.embedder.EmbedBatch(ctx, []string{input.Query})
	if err != nil || len(vecs) == 0 {
		if err == nil {
			err = ErrInvalidParams
		}
		return nil, SearchOutput{}, MapError(err)
	}

	candidateK := limit * 4
	if candidateK < 20 {
		candidateK = 20
	}

	candidates, err := s.searcher.Search(ctx, vecs[0], candidateK)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	if input.ExpandRelationships {
		seeds := seedSymbolIDs(candidates)
		if len(seeds) > 0 {
			opts := retrieval.DefaultOptions(s.cfg.Retrieval.HopDecay, maxDepth)
			opts.MaxDepth = maxDepth
			result, terr := s.traverser.Traverse(ctx, seeds, opts)
			if terr == nil {
				expanded, cerr := retrieval.ChunksFor(ctx, s.store, result.DiscoveredSymbols)
				if cerr == nil {
					candidates = mergeCandidates(candidates, expanded)
				}
			}
		}
	}

	keywordHits, kerr := s.keyword.Search(ctx, input.Query, candidateK)
	if kerr != nil {
		s.logger.Warn("keyword search failed, continuing on vector recall alone",
			slog.String("request_id", requestID), slog.Any("error", kerr))
	} else if len(keywordHits) > 0 {
		candidates = mergeCandidates(candidates, retrieval.MarkAllCritical(keywordHits))
	}

	candidates = filterByLanguage(candidates, input.Language)
	candidates = filterByScope(candidates, input.Scope)

	critical := retrieval.ExtractCriticalTerms(input.Query)
	candidates = retrieval.MarkCritical(candidates, critical)

	weights := retrieval.FromConfig(
		s.cfg.Retrieval.MMRLambda,
		s.cfg.Retrieval.MMRCriticalCoverage,
		s.cfg.Retrieval.MMRCushion,
		s.cfg.Retrieval.MMRFallbackSize,
	)
	selected, metrics := retrieval.Select(candidates, budget, weights, nil)
	if len(selected) > limit {
		selected = selected[:limit]
	}

	output := SearchOutput{Results: make([]SearchResultOutput, 0, len(selected))}
	for _, sel := range selected {
		output.Results = append(output.Results, toSearchResultOutput(sel))
	}
	output.Metrics = SearchMetricsOutput{
		CriticalCoverage:  metrics.CriticalCoverage,
		DiversityScore:    metrics.DiversityScore,
		BudgetUtilization: metrics.BudgetUtilization,
		SelectionTimeMs:   metrics.SelectionTime.Milliseconds(),
		CandidateCount:    len(candidates),
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(output.Results)))

	return nil, output, nil
}

func toSearchResultOutput(sel retrieval.Selected) SearchResultOutput {
	out := SearchResultOutput{
		FilePath:  sel.Chunk.FilePath,
		Content:   sel.Chunk.Content,
		Score:     sel.Score,
		Language:  sel.Chunk.Language,
		Critical:  sel.Critical,
		StartLine: sel.Chunk.StartLine,
		EndLine:   sel.Chunk.EndLine,
	}
	if len(sel.Chunk.Symbols) > 0 {
		primary := sel.Chunk.Symbols[0]
		out.Symbol = primary.Name
		out.Signature = primary.Signature
	}
	return out
}

// handleIndex implements the index tool: run a full, incremental, or
// reindex pass and report the resulting delta.
func (s *Server) handleIndex(ctx context.Context, _ *mcp.CallToolRequest, input IndexInput) (
	*mcp.CallToolResult, IndexOutput, error,
) {
	mode := input.Mode
	if mode == "" {
		mode = string(indexer.ModeIncremental)
	}

	s.logger.Info("index started", slog.String("mode", mode))

	var result *indexer.Result
	var err error
	switch indexer.Mode(mode) {
	case indexer.ModeFull:
		result, err = s.indexer.RunFull(ctx)
	case indexer.ModeReindex:
		result, err = s.indexer.Reindex(ctx)
	case indexer.ModeIncremental:
		result, err = s.indexer.RunIncremental(ctx)
	default:
		return nil, IndexOutput{}, NewInvalidParamsError("mode must be one of full, incremental, or reindex")
	}
	if err != nil && result == nil {
		return nil, IndexOutput{}, MapError(err)
	}

	output := IndexOutput{
		Mode:           string(result.Mode),
		FilesScanned:   result.FilesScanned,
		FilesProcessed: result.FilesProcessed,
		ChunksAdded:    result.ChunksAdded,
		ChunksReused:   result.ChunksReused,
		ChunksRemoved:  result.ChunksRemoved,
		ErrorCount:     len(result.Errors),
		DurationMs:     result.Duration.Milliseconds(),
	}

	s.logger.Info("index completed",
		slog.String("mode", output.Mode),
		slog.Int("files_processed", output.FilesProcessed),
		slog.Int("error_count", output.ErrorCount))

	return nil, output, nil
}

// handleFileChange implements the handle_file_change tool: apply a
// single upsert or delete outside a scheduled run.
func (s *Server) handleFileChange(ctx context.Context, _ *mcp.CallToolRequest, input HandleFileChangeInput) (
	*mcp.CallToolResult, HandleFileChangeOutput, error,
) {
	if input.Path == "" {
		return nil, HandleFileChangeOutput{}, NewInvalidParamsError("path parameter is required")
	}

	var remove bool
	switch input.Operation {
	case "upsert", "":
		remove = false
	case "delete":
		remove = true
	default:
		return nil, HandleFileChangeOutput{}, NewInvalidParamsError("operation must be one of upsert or delete")
	}

	result, err := s.indexer.HandleFileChange(ctx, input.Path, remove)
	if err != nil {
		return nil, HandleFileChangeOutput{}, MapError(err)
	}

	op := input.Operation
	if op == "" {
		op = "upsert"
	}
	return nil, HandleFileChangeOutput{
		Path:          input.Path,
		Operation:     op,
		ChunksAdded:   result.Added,
		ChunksReused:  result.Reused,
		ChunksRemoved: result.Removed,
	}, nil
}

// handleIndexStatus implements the index_status tool: project metadata,
// current index size, and any in-progress run.
func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult, IndexStatusOutput, error,
) {
	detector := NewProjectDetector(s.rootPath, s.logger)
	project := detector.Detect()

	stats := s.store.Stats()
	output := IndexStatusOutput{
		Project: *project,
		Stats: IndexStats{
			FileCount:  stats.FileCount,
			ChunkCount: stats.ChunkCount,
		},
	}

	snap := s.indexer.Status().Snapshot()
	if snap.Stage != "" && snap.Stage != indexerStageIdle {
		progress := &Progress{
			Stage:          string(snap.Stage),
			FilesTotal:     snap.FilesTotal,
			FilesProcessed: snap.FilesProcessed,
			ChunksIndexed:  snap.ChunksAdded + snap.ChunksReused,
			ErrorMessage:   snap.ErrorMessage,
		}
		if snap.FilesTotal > 0 {
			progress.ProgressPct = 100 * float64(snap.FilesProcessed) / float64(snap.FilesTotal)
		}
		output.Indexing = progress
	}

	return nil, output, nil
}

const indexerStageIdle = "idle"
