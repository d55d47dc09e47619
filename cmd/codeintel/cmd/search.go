package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeintel-engine/codeintel/internal/config"
	"github.com/codeintel-engine/codeintel/internal/retrieval"
)

type searchOptions struct {
	limit    int
	language string
	scopes   []string
	format   string // "text", "json"
	budget   int
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase: embed the query, run a vector search over
the content store, and select a diverse, budget-bounded result set via MMR.

Examples:
  codeintel search "authentication middleware"
  codeintel search "handleRequest" --language go --limit 5
  codeintel search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g., go, python)")
	cmd.Flags().StringSliceVarP(&opts.scopes, "scope", "s", nil, "Filter by path scope (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntVar(&opts.budget, "budget", 4000, "Token budget for the selected result set")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root = "."
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	p, err := buildPipeline(ctx, cfg, root)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer p.Close()

	searcher := retrieval.NewVectorSearcher(p.Store, cfg.Retrieval)

	vecs, err := p.Orchestrator.EmbedBatch(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return fmt.Errorf("embed query: %w", err)
	}

	candidateK := opts.limit * 4
	if candidateK < 20 {
		candidateK = 20
	}
	candidates, err := searcher.Search(ctx, vecs[0], candidateK)
	if err != nil {
		return fmt.Errorf("vector search: %w", err)
	}

	keywordSearcher := retrieval.NewKeywordSearcher(p.Store)
	if keywordHits, kerr := keywordSearcher.Search(ctx, query, candidateK); kerr == nil && len(keywordHits) > 0 {
		candidates = mergeSearchCandidates(candidates, retrieval.MarkAllCritical(keywordHits))
	}

	candidates = filterByLanguage(candidates, opts.language)
	candidates = filterByScope(candidates, opts.scopes)

	critical := retrieval.ExtractCriticalTerms(query)
	candidates = retrieval.MarkCritical(candidates, critical)

	weights := retrieval.FromConfig(
		cfg.Retrieval.MMRLambda,
		cfg.Retrieval.MMRCriticalCoverage,
		cfg.Retrieval.MMRCushion,
		cfg.Retrieval.MMRFallbackSize,
	)
	selected, _ := retrieval.Select(candidates, opts.budget, weights, nil)
	if len(selected) > opts.limit {
		selected = selected[:opts.limit]
	}

	if len(selected) == 0 {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "No results found for %q\n", query)
		return err
	}

	switch opts.format {
	case "json":
		return formatSearchJSON(cmd, selected)
	default:
		return formatSearchText(cmd, query, selected)
	}
}

func formatSearchText(cmd *cobra.Command, query string, selected []retrieval.Selected) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "Found %d results for %q:\n\n", len(selected), query); err != nil {
		return err
	}
	for i, sel := range selected {
		location := sel.Chunk.FilePath
		if sel.Chunk.StartLine > 0 {
			location = fmt.Sprintf("%s:%d", sel.Chunk.FilePath, sel.Chunk.StartLine)
		}
		if _, err := fmt.Fprintf(out, "%d. %s (score: %.3f)\n", i+1, location, sel.Score); err != nil {
			return err
		}
		for _, line := range snippetLines(sel.Chunk.Content, 3) {
			if _, err := fmt.Fprintf(out, "   %s\n", line); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}
	}
	return nil
}

func formatSearchJSON(cmd *cobra.Command, selected []retrieval.Selected) error {
	results := make([]SearchResultOutputCLI, 0, len(selected))
	for _, sel := range selected {
		results = append(results, SearchResultOutputCLI{
			FilePath:  sel.Chunk.FilePath,
			StartLine: sel.Chunk.StartLine,
			EndLine:   sel.Chunk.EndLine,
			Score:     sel.Score,
			Content:   sel.Chunk.Content,
			Language:  sel.Chunk.Language,
			Critical:  sel.Critical,
		})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// SearchResultOutputCLI is the JSON shape of a search command result; kept
// separate from mcpserver's SearchResultOutput since the CLI and the MCP
// tool surface are free to diverge.
type SearchResultOutputCLI struct {
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Content   string  `json:"content"`
	Language  string  `json:"language,omitempty"`
	Critical  bool    `json:"critical"`
}

func snippetLines(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// mergeSearchCandidates appends extra onto base, skipping any chunk ID
// already present so the keyword-recall channel never duplicates a
// vector-search hit.
func mergeSearchCandidates(base, extra []retrieval.Candidate) []retrieval.Candidate {
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
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if strings.EqualFold(c.Chunk.Language, language) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func filterByScope(candidates []retrieval.Candidate, scopes []string) []retrieval.Candidate {
	if len(scopes) == 0 {
		return candidates
	}
	filtered := candidates[:0:0]
	for _, c := range candidates {
		for _, scope := range scopes {
			if strings.HasPrefix(c.Chunk.FilePath, scope) {
				filtered = append(filtered, c)
				break
			}
		}
	}
	return filtered
}
