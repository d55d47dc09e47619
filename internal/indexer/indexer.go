package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeintel-engine/codeintel/internal/chunk"
	"github.com/codeintel-engine/codeintel/internal/config"
	"github.com/codeintel-engine/codeintel/internal/graph"
	"github.com/codeintel-engine/codeintel/internal/graph/analyze"
	"github.com/codeintel-engine/codeintel/internal/orchestrator"
	"github.com/codeintel-engine/codeintel/internal/scanner"
	"github.com/codeintel-engine/codeintel/internal/store"
)

// Deps are the already-constructed collaborators the indexer drives. All
// are owned by the caller; the indexer never opens or closes them itself,
// aside from the tree-sitter Parser it uses for C7 analysis.
type Deps struct {
	Store           *store.ContentStore
	Graph           *graph.Graph
	Orchestrator    *orchestrator.Orchestrator
	Scanner         *scanner.Scanner
	CodeChunker     chunk.Chunker
	MarkdownChunker chunk.Chunker
	ConfigChunker   chunk.Chunker
	Parser          *chunk.Parser
	// ModelID identifies the embedding model for ApplyFileDelta's embedding
	// bookkeeping.
	ModelID string
}

// Indexer drives full/incremental/reindex runs and live-ingress file
// change handling over a single project root.
type Indexer struct {
	cfg             config.IndexerConfig
	rootDir         string
	excludePatterns []string
	deps            Deps
	analyzer        *analyze.Analyzer
	resolver        *nameIndex
	status          *Status

	trackedMu sync.RWMutex
	tracked   map[string]struct{}

	liveIngress *liveIngress
}

// New constructs an Indexer. rootDir is the project root to scan;
// excludePatterns augments the scanner's own defaults (vendor, .git, etc).
func New(cfg config.IndexerConfig, rootDir string, excludePatterns []string, deps Deps) (*Indexer, error) {
	if deps.Store == nil || deps.Graph == nil || deps.Orchestrator == nil || deps.Scanner == nil {
		return nil, fmt.Errorf("indexer: Store, Graph, Orchestrator, and Scanner are required")
	}
	if deps.CodeChunker == nil {
		deps.CodeChunker = chunk.NewCodeChunker()
	}
	if deps.MarkdownChunker == nil {
		deps.MarkdownChunker = chunk.NewMarkdownChunker()
	}
	if deps.ConfigChunker == nil {
		deps.ConfigChunker = chunk.NewConfigChunker()
	}
	if deps.Parser == nil {
		deps.Parser = chunk.NewParser()
	}

	resolver := newNameIndex()
	ix := &Indexer{
		cfg:             cfg,
		rootDir:         rootDir,
		excludePatterns: excludePatterns,
		deps:            deps,
		analyzer:        analyze.New(resolver),
		resolver:        resolver,
		status:          NewStatus(),
		tracked:         make(map[string]struct{}),
	}
	ix.liveIngress = newLiveIngress(ix, cfg)
	return ix, nil
}

// Status returns the shared progress tracker, safe to read concurrently
// with a run in progress.
func (ix *Indexer) Status() *Status {
	return ix.status
}

// StartLiveIngress begins watching rootDir for file changes, applying
// each one through the same per-file pipeline a scheduled run uses. It
// returns once the watcher is established; events are handled in the
// background until Close is called.
func (ix *Indexer) StartLiveIngress(ctx context.Context) error {
	return ix.liveIngress.start(ctx, ix.rootDir)
}

// Close releases the indexer's own resources (the tree-sitter parser and
// any chunkers it constructed itself) and stops live-ingress processing.
func (ix *Indexer) Close() {
	ix.liveIngress.stop()
	if c, ok := ix.deps.CodeChunker.(*chunk.CodeChunker); ok {
		c.Close()
	}
	if c, ok := ix.deps.MarkdownChunker.(*chunk.MarkdownChunker); ok {
		c.Close()
	}
	if c, ok := ix.deps.ConfigChunker.(*chunk.ConfigChunker); ok {
		c.Close()
	}
	if deps := ix.deps.Parser; deps != nil {
		deps.Close()
	}
}

// RunFull walks every discoverable file and rechunks it, reusing an
// embedding whenever the produced chunk ID already exists in the store.
func (ix *Indexer) RunFull(ctx context.Context) (*Result, error) {
	return ix.run(ctx, ModeFull, true)
}

// RunIncremental walks every discoverable file but skips any whose
// whole-file content hash is unchanged since it was last indexed.
func (ix *Indexer) RunIncremental(ctx context.Context) (*Result, error) {
	return ix.run(ctx, ModeIncremental, false)
}

// FileChangeResult reports the per-file outcome of HandleFileChange, for
// callers (the handle_file_change MCP tool) that report on a single file
// rather than a whole run.
type FileChangeResult struct {
	Added   int
	Reused  int
	Removed int
}

// HandleFileChange applies a single upsert or delete to the index outside
// a scheduled run or live-ingress watch — the Ingest contract's per-file
// entry point for callers that detect changes themselves. Mirrors
// liveIngress's own handleUpsert/handleDelete.
func (ix *Indexer) HandleFileChange(ctx context.Context, path string, remove bool) (*FileChangeResult, error) {
	if remove {
		if err := ix.deps.Store.RemoveByFile(ctx, path); err != nil {
			return nil, fmt.Errorf("remove file %s: %w", path, err)
		}
		ix.unmarkTracked(path)
		return &FileChangeResult{}, nil
	}

	outcome, err := ix.processFile(ctx, path, false)
	if err != nil {
		return nil, fmt.Errorf("process file %s: %w", path, err)
	}
	ix.markTracked(path)
	return &FileChangeResult{Added: outcome.added, Reused: outcome.reused, Removed: outcome.removed}, nil
}

// Reindex removes every file the current scan discovers from the store
// before running Full, so
// even byte-for-byte unchanged content is re-embedded from scratch — for
// recovering from a corrupt index or a changed embedding model.
func (ix *Indexer) Reindex(ctx context.Context) (*Result, error) {
	if err := ix.clearAll(ctx); err != nil {
		return nil, fmt.Errorf("reindex: clear existing index: %w", err)
	}
	result, err := ix.run(ctx, ModeReindex, true)
	if result != nil {
		result.Mode = ModeReindex
	}
	return result, err
}

func (ix *Indexer) clearAll(ctx context.Context) error {
	paths, err := ix.discoverPaths(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := ix.deps.Store.RemoveByFile(ctx, p); err != nil {
			return err
		}
		ix.unmarkTracked(p)
	}
	return nil
}

// run implements the shared scan-and-dispatch shape for Full/Incremental/
// Reindex: discover the current file set, process each concurrently
// (bounded by a worker count derived from MaxFiles-independent concurrency,
// capped low since embedding calls already parallelize internally via the
// orchestrator's adaptive concurrency), and remove files that vanished.
func (ix *Indexer) run(ctx context.Context, mode Mode, force bool) (*Result, error) {
	start := time.Now()

	paths, err := ix.discoverPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if ix.cfg.MaxFiles > 0 && len(paths) > ix.cfg.MaxFiles {
		paths = paths[:ix.cfg.MaxFiles]
	}

	ix.status.begin(mode, len(paths))
	ix.status.setStage(StageChunking)

	result := &Result{Mode: mode, FilesScanned: len(paths)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyFor(len(paths)))

	var mu sync.Mutex
	for _, p := range paths {
		p := p
		g.Go(func() error {
			outcome, err := ix.processFile(gctx, p, force)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, err)
				return nil // one bad file doesn't abort the run
			}
			result.ChunksAdded += outcome.added
			result.ChunksReused += outcome.reused
			result.ChunksRemoved += outcome.removed
			result.FilesProcessed++
			ix.status.recordFile(outcome.added, outcome.reused, outcome.removed)
			ix.markTracked(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		ix.status.fail(err.Error())
		return result, err
	}

	if err := ix.removeVanished(ctx, paths); err != nil {
		ix.status.fail(err.Error())
		return result, fmt.Errorf("remove vanished files: %w", err)
	}

	ix.status.finish()
	result.Duration = time.Since(start)
	return result, nil
}

// removeVanished deletes tracked files that the current scan no longer
// discovered — the teacher's Coordinator reconciled this the same way
// (scanCurrentFiles vs. tracked files) on every startup/incremental pass.
func (ix *Indexer) removeVanished(ctx context.Context, currentPaths []string) error {
	current := make(map[string]bool, len(currentPaths))
	for _, p := range currentPaths {
		current[p] = true
	}
	tracked, err := ix.trackedPaths(ctx)
	if err != nil {
		return err
	}
	for _, p := range tracked {
		if !current[p] {
			if err := ix.deps.Store.RemoveByFile(ctx, p); err != nil {
				return err
			}
			ix.unmarkTracked(p)
		}
	}
	return nil
}

// trackedPaths lists every path processed in a prior run: internal/store.
// ContentStore exposes no "list every file" call (unlike the teacher's
// MetadataStore.GetFilePathsByProject), so the indexer keeps its own set,
// updated in markTracked/unmarkTracked as each run processes or removes a
// file.
func (ix *Indexer) trackedPaths(ctx context.Context) ([]string, error) {
	ix.trackedMu.RLock()
	defer ix.trackedMu.RUnlock()
	paths := make([]string, 0, len(ix.tracked))
	for p := range ix.tracked {
		paths = append(paths, p)
	}
	return paths, nil
}

func (ix *Indexer) markTracked(path string) {
	ix.trackedMu.Lock()
	ix.tracked[path] = struct{}{}
	ix.trackedMu.Unlock()
}

func (ix *Indexer) unmarkTracked(path string) {
	ix.trackedMu.Lock()
	delete(ix.tracked, path)
	ix.trackedMu.Unlock()
}

func (ix *Indexer) discoverPaths(ctx context.Context) ([]string, error) {
	opts := &scanner.ScanOptions{
		RootDir:          ix.rootDir,
		ExcludePatterns:  ix.excludePatterns,
		RespectGitignore: true,
	}
	results, err := ix.deps.Scanner.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var paths []string
	for r := range results {
		if r.Error != nil {
			continue
		}
		paths = append(paths, r.File.Path)
	}
	return paths, nil
}

// concurrencyFor bounds per-file pipeline concurrency. Each file's own
// embedding calls already fan out through the orchestrator's adaptive
// semaphore, so the outer limit here only needs to keep CPU-bound chunking/
// analysis parallel without oversubscribing.
func concurrencyFor(fileCount int) int {
	const max = 8
	if fileCount < max {
		if fileCount < 1 {
			return 1
		}
		return fileCount
	}
	return max
}
