package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeintel-engine/codeintel/internal/chunk"
	"github.com/codeintel-engine/codeintel/internal/scanner"
	"github.com/codeintel-engine/codeintel/internal/store"
)

// processFile runs the five-step per-file pipeline: detect language, chunk,
// compute the delta against what the content store already has for this
// path, embed the misses, and persist chunks plus relationships atomically.
// force skips the whole-file hash fast path so even unchanged content is
// rechunked (used by ModeFull and ModeReindex); chunks the store already
// holds are still reused rather than re-embedded.
func (ix *Indexer) processFile(ctx context.Context, relPath string, force bool) (fileOutcome, error) {
	absPath := filepath.Join(ix.rootDir, relPath)
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fileOutcome{}, fmt.Errorf("read %s: %w", relPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fileOutcome{}, fmt.Errorf("stat %s: %w", relPath, err)
	}

	wholeHash := hashBytes(content)

	if !force {
		if existing, err := ix.deps.Store.GetFile(ctx, relPath); err == nil && existing != nil && existing.ContentHash == wholeHash {
			return fileOutcome{}, nil // unchanged since last index, nothing to do
		}
	}

	// Step 1: language detection.
	language := scanner.DetectLanguage(relPath)
	contentType := scanner.DetectContentType(language)

	// Step 2: chunking, dispatched by content type.
	input := &chunk.FileInput{Path: relPath, Content: content, Language: language}
	chunker := ix.chunkerFor(contentType)
	chunks, err := chunker.Chunk(ctx, input)
	if err != nil {
		return fileOutcome{}, fmt.Errorf("chunk %s: %w", relPath, err)
	}

	fileID, err := ix.deps.Store.EnsureFile(ctx, relPath, info.Size(), info.ModTime(), wholeHash, language, store.ContentType(contentType))
	if err != nil {
		return fileOutcome{}, fmt.Errorf("ensure file %s: %w", relPath, err)
	}

	// Step 3: delta computation. Chunk IDs are content-addressable
	// (internal/chunk.generateChunkID hashes path+content), so an unchanged
	// chunk re-produces the same ID and is left alone; anything new needs
	// embedding, and anything that disappeared is stale.
	ix.status.setStage(StageDelta)
	previous, err := ix.deps.Store.GetChunksByFile(ctx, relPath)
	if err != nil {
		return fileOutcome{}, fmt.Errorf("load previous chunks %s: %w", relPath, err)
	}
	oldByID := make(map[string]*store.Chunk, len(previous))
	for _, c := range previous {
		oldByID[c.ID] = c
	}

	storeChunks := make([]*store.Chunk, len(chunks))
	newIDs := make(map[string]bool, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = toStoreChunk(c, fileID, relPath)
		newIDs[c.ID] = true
	}

	var toAdd []*store.Chunk
	for _, c := range storeChunks {
		if _, ok := oldByID[c.ID]; !ok {
			toAdd = append(toAdd, c)
		}
	}
	var toRemove []*store.Chunk
	for id, c := range oldByID {
		if !newIDs[id] {
			toRemove = append(toRemove, c)
		}
	}
	reused := len(storeChunks) - len(toAdd)

	// Step 4: embed the misses through the orchestrator, but first check
	// C1's content-hash reverse index (ContentStore.LookupEmbeddingByHash)
	// for each miss — identical content already embedded under a chunk ID
	// from another file (or an earlier version of this one) is reused
	// rather than re-embedded, extending the within-file reuse the delta
	// step above already gets from content-addressable chunk IDs.
	var ids []string
	var vectors [][]float32
	if len(toAdd) > 0 {
		ix.status.setStage(StageEmbedding)
		var missIdx []int
		var missTexts []string
		vectors = make([][]float32, len(toAdd))
		ids = make([]string, len(toAdd))
		for i, c := range toAdd {
			ids[i] = c.ID
			if v, err := ix.deps.Store.LookupEmbeddingByHash(ctx, hashBytes([]byte(c.Content))); err == nil && v != nil {
				vectors[i] = v
				continue
			}
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, c.Content)
		}

		if len(missTexts) > 0 {
			embedded, err := ix.deps.Orchestrator.EmbedBatch(ctx, missTexts)
			if err != nil {
				return fileOutcome{}, fmt.Errorf("embed %s: %w", relPath, err)
			}
			for j, i := range missIdx {
				vectors[i] = embedded[j]
			}
		}
	}

	// Step 5: commit the add and the remove for this file as one critical
	// section (store.ContentStore.ApplyFileDelta), so a concurrent
	// similarity_search or keyword search never observes the new chunks
	// without the stale ones already gone.
	ix.status.setStage(StagePersisting)
	if err := ix.deps.Store.ApplyFileDelta(ctx, toAdd, ids, vectors, ix.deps.ModelID, toRemove); err != nil {
		return fileOutcome{}, fmt.Errorf("apply delta %s: %w", relPath, err)
	}

	// ...and to the relationship graph, only for content types the analyzer
	// understands (code; markdown/config files carry no call/import graph).
	if contentType == scanner.ContentTypeCode {
		if err := ix.analyzeAndReplace(ctx, relPath, content, language, storeChunks); err != nil {
			return fileOutcome{}, fmt.Errorf("analyze %s: %w", relPath, err)
		}
	}

	return fileOutcome{added: len(toAdd), reused: reused, removed: len(toRemove)}, nil
}

// chunkerFor dispatches by content type, the same switch internal/index's
// Coordinator and Runner used to pick between code and markdown chunkers,
// generalized here to also cover config files (C3's fourth chunk kind).
func (ix *Indexer) chunkerFor(ct scanner.ContentType) chunk.Chunker {
	switch ct {
	case scanner.ContentTypeMarkdown:
		return ix.deps.MarkdownChunker
	case scanner.ContentTypeConfig:
		return ix.deps.ConfigChunker
	default:
		return ix.deps.CodeChunker
	}
}

// analyzeAndReplace parses the file for C7, attaches each discovered
// symbol to the chunk whose line range contains it, and installs the
// result into the graph and name index in one atomic swap.
func (ix *Indexer) analyzeAndReplace(ctx context.Context, relPath string, content []byte, language string, chunks []*store.Chunk) error {
	tree, err := ix.deps.Parser.Parse(ctx, content, language)
	if err != nil {
		return nil // unsupported/unparseable language: no relationships, not fatal
	}

	result := ix.analyzer.Analyze(tree, relPath)
	for _, sym := range result.Symbols {
		sym.ChunkID = chunkIDContaining(chunks, sym.StartLine)
	}

	if err := ix.deps.Graph.ReplaceFile(relPath, result.Symbols, result.Relationships); err != nil {
		return err
	}

	entries := make([]nameEntry, len(result.Symbols))
	for i, sym := range result.Symbols {
		entries[i] = nameEntry{Name: sym.Name, ID: sym.ID}
	}
	ix.resolver.replaceFile(relPath, entries)
	return nil
}

// chunkIDContaining returns the ID of the chunk whose [StartLine,EndLine]
// contains line, preferring the smallest (innermost) range, mirroring the
// enclosing-symbol scan in internal/graph/analyze/analyze.go.
func chunkIDContaining(chunks []*store.Chunk, line int) string {
	var best *store.Chunk
	bestSpan := -1
	for _, c := range chunks {
		if line < c.StartLine || line > c.EndLine {
			continue
		}
		span := c.EndLine - c.StartLine
		if best == nil || span < bestSpan {
			best = c
			bestSpan = span
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// toStoreChunk converts a chunked unit into the content store's persistence
// shape, carrying the chunker's content hash through in Metadata since
// store.Chunk has no dedicated field for it.
func toStoreChunk(c *chunk.Chunk, fileID, filePath string) *store.Chunk {
	metadata := make(map[string]string, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		metadata[k] = v
	}
	metadata["content_hash"] = c.ContentHash
	metadata["chunk_type"] = string(c.ChunkType)

	symbols := make([]*store.Symbol, len(c.Symbols))
	for i, s := range c.Symbols {
		symbols[i] = &store.Symbol{
			Name:       s.Name,
			Type:       store.SymbolType(s.Type),
			StartLine:  s.StartLine,
			EndLine:    s.EndLine,
			Signature:  s.Signature,
			DocComment: s.DocComment,
		}
	}

	now := time.Now()
	return &store.Chunk{
		ID:          c.ID,
		FileID:      fileID,
		FilePath:    filePath,
		Content:     c.Content,
		RawContent:  c.RawContent,
		Context:     c.Context,
		ContentType: store.ContentType(c.ContentType),
		Language:    c.Language,
		StartLine:   c.StartLine,
		EndLine:     c.EndLine,
		Symbols:     symbols,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
