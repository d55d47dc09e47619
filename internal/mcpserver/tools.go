package mcpserver

// SearchInput defines the input schema for the search tool, covering the
// Consumer contract's query parameters (spec.md §6).
type SearchInput struct {
	Query             string   `json:"query" jsonschema:"the natural-language or identifier-based search query"`
	Limit             int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Language          string   `json:"language,omitempty" jsonschema:"filter by programming language (go, typescript, python)"`
	Scope             []string `json:"scope,omitempty" jsonschema:"filter by path prefixes (OR logic)"`
	TokenBudget       int      `json:"token_budget,omitempty" jsonschema:"approximate token budget for the returned context package, default 4000"`
	ExpandRelationships bool   `json:"expand_relationships,omitempty" jsonschema:"traverse the relationship graph from the top vector hits before MMR selection"`
	MaxDepth          int      `json:"max_depth,omitempty" jsonschema:"maximum relationship-graph hop count when expand_relationships is set, default 3"`
}

// SearchOutput defines the output schema for the search tool: the selected
// context package plus the metrics MMR selection produced.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of selected chunks, in selection order"`
	Metrics SearchMetricsOutput  `json:"metrics" jsonschema:"selection-quality metrics for this search"`
}

// SearchResultOutput is a single selected chunk with enough context-rich
// metadata for a caller to understand why it matched.
type SearchResultOutput struct {
	FilePath  string  `json:"file_path" jsonschema:"file path relative to project root"`
	Content   string  `json:"content" jsonschema:"matched content snippet"`
	Score     float64 `json:"score" jsonschema:"relevance score used for selection"`
	Language  string  `json:"language,omitempty" jsonschema:"programming language of the file"`
	Symbol    string  `json:"symbol,omitempty" jsonschema:"primary symbol name (function, class, type)"`
	Signature string  `json:"signature,omitempty" jsonschema:"full function/method signature"`
	Critical  bool    `json:"critical,omitempty" jsonschema:"true if this chunk was in the critical set identified from the query"`
	StartLine int     `json:"start_line,omitempty" jsonschema:"first line of the chunk in its file"`
	EndLine   int     `json:"end_line,omitempty" jsonschema:"last line of the chunk in its file"`
}

// SearchMetricsOutput reports the MMR selection pass's quantitative outcome.
type SearchMetricsOutput struct {
	CriticalCoverage  float64 `json:"critical_coverage" jsonschema:"fraction of the critical set that was selected"`
	DiversityScore    float64 `json:"diversity_score" jsonschema:"1 minus mean pairwise similarity of the selection"`
	BudgetUtilization float64 `json:"budget_utilization" jsonschema:"fraction of the token budget used"`
	SelectionTimeMs   int64   `json:"selection_time_ms" jsonschema:"wall-clock time spent on MMR selection"`
	CandidateCount    int     `json:"candidate_count" jsonschema:"number of candidates considered before selection"`
}

// IndexInput defines the input schema for the index tool — the Ingest
// contract's full/incremental indexing operation (spec.md §6).
type IndexInput struct {
	Mode string `json:"mode,omitempty" jsonschema:"one of full, incremental, or reindex; default incremental"`
}

// IndexOutput defines the output schema for the index tool.
type IndexOutput struct {
	Mode           string `json:"mode"`
	FilesScanned   int    `json:"files_scanned"`
	FilesProcessed int    `json:"files_processed"`
	ChunksAdded    int    `json:"chunks_added"`
	ChunksReused   int    `json:"chunks_reused"`
	ChunksRemoved  int    `json:"chunks_removed"`
	ErrorCount     int    `json:"error_count"`
	DurationMs     int64  `json:"duration_ms"`
}

// HandleFileChangeInput defines the input schema for the
// handle_file_change tool — the Ingest contract's single-file upsert or
// delete operation (spec.md §6), for callers that detect file changes
// themselves rather than relying on the indexer's own live-ingress watcher.
type HandleFileChangeInput struct {
	Path      string `json:"path" jsonschema:"file path relative to project root"`
	Operation string `json:"operation" jsonschema:"one of upsert or delete"`
}

// HandleFileChangeOutput defines the output schema for the
// handle_file_change tool.
type HandleFileChangeOutput struct {
	Path          string `json:"path"`
	Operation     string `json:"operation"`
	ChunksAdded   int    `json:"chunks_added"`
	ChunksReused  int    `json:"chunks_reused"`
	ChunksRemoved int    `json:"chunks_removed"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project  ProjectInfo `json:"project"`
	Stats    IndexStats  `json:"stats"`
	Indexing *Progress   `json:"indexing,omitempty"`
}

// Progress mirrors indexer.Status for the index_status tool's output.
type Progress struct {
	Stage          string  `json:"stage"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// ProjectInfo contains information about the indexed project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStats contains statistics about the index.
type IndexStats struct {
	FileCount  int `json:"file_count"`
	ChunkCount int `json:"chunk_count"`
}
