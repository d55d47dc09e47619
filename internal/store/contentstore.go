package store

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SnapshotHeader identifies the provider/model a content-store snapshot was
// built with, so reconciliation can tell a stale-but-compatible snapshot
// from one that must not be merged with the active one.
type SnapshotHeader struct {
	SchemaVersion int
	CreatedAt     time.Time
	ProviderID    string
	ModelID       string
	Dimensions    int
	ChunkCount    int
	FileCount     int
}

// persistedSnapshot is the on-disk companion to the SQLite metadata DB and
// HNSW vector index: the reverse content-hash index plus the header used
// to decide reconciliation compatibility. Encoded with gob the same way
// HNSWStore persists its ID map (internal/store/hnsw.go's hnswMetadata).
type persistedSnapshot struct {
	Header    SnapshotHeader
	HashIndex map[string]string // content hash -> chunk id
}

const (
	metadataFileName  = "metadata.db"
	vectorFileName    = "vectors.hnsw"
	snapshotFileName  = "snapshot.gob"
	keywordDirName    = "keyword.bleve"
	snapshotSchemaVer = CurrentSchemaVersion
)

// ContentStoreConfig configures a two-tier content store instance.
type ContentStoreConfig struct {
	ProjectID      string
	LocalDir       string        // e.g. <repo>/.codeintel
	GlobalDir      string        // e.g. ~/.cache/codeintel/<repo-hash>
	ProviderID     string
	ModelID        string
	Dimensions     int
	StaleThreshold time.Duration // T_stale, default 24h
	CacheSizeMB    int
}

// ContentStore is the persistent mapping chunk_id -> Chunk plus the reverse
// content_hash -> chunk_id index and file table, backed by a SQLite
// metadata store and an HNSW vector store. It maintains two tiers (local,
// global) and reconciles them at open time under an exclusive lock.
type ContentStore struct {
	mu  sync.RWMutex
	cfg ContentStoreConfig

	activeDir string
	meta      *SQLiteStore
	vectors   *HNSWStore
	keyword   *BleveBM25Index
	snapshot  persistedSnapshot

	lock *openLock
}

// OpenContentStore reconciles the local and global tiers and returns a
// store ready to serve requests against the winning tier.
func OpenContentStore(cfg ContentStoreConfig) (*ContentStore, error) {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 24 * time.Hour
	}
	if cfg.LocalDir == "" {
		return nil, fmt.Errorf("content store requires a local directory")
	}

	lock := newOpenLock(cfg.LocalDir)
	if err := lock.Lock(); err != nil {
		return nil, err
	}

	activeDir, err := reconcileTiers(cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	cs := &ContentStore{cfg: cfg, activeDir: activeDir, lock: lock}
	if err := cs.openActive(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	return cs, nil
}

func (cs *ContentStore) openActive() error {
	if err := os.MkdirAll(cs.activeDir, 0755); err != nil {
		return fmt.Errorf("failed to create tier directory: %w", err)
	}

	meta, err := NewSQLiteStoreWithConfig(filepath.Join(cs.activeDir, metadataFileName), StoreConfig{CacheSizeMB: cs.cfg.CacheSizeMB})
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	cs.meta = meta

	vectors, err := NewHNSWStore(DefaultVectorStoreConfig(cs.cfg.Dimensions))
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	vectorPath := filepath.Join(cs.activeDir, vectorFileName)
	if _, err := os.Stat(vectorPath); err == nil {
		if err := vectors.Load(vectorPath); err != nil {
			slog.Warn("failed to load vector snapshot, starting empty", slog.String("error", err.Error()))
		}
	}
	cs.vectors = vectors

	keyword, err := NewBleveBM25Index(filepath.Join(cs.activeDir, keywordDirName))
	if err != nil {
		return fmt.Errorf("failed to open keyword index: %w", err)
	}
	cs.keyword = keyword

	snap, err := loadSnapshot(filepath.Join(cs.activeDir, snapshotFileName))
	if err != nil {
		snap = persistedSnapshot{
			Header: SnapshotHeader{
				SchemaVersion: snapshotSchemaVer,
				CreatedAt:     time.Now(),
				ProviderID:    cs.cfg.ProviderID,
				ModelID:       cs.cfg.ModelID,
				Dimensions:    cs.cfg.Dimensions,
			},
			HashIndex: make(map[string]string),
		}
	}
	if snap.HashIndex == nil {
		snap.HashIndex = make(map[string]string)
	}
	cs.snapshot = snap

	return nil
}

// reconcileTiers implements spec §4.1's reconciliation protocol and returns
// the directory that should be opened as the active tier.
func reconcileTiers(cfg ContentStoreConfig) (string, error) {
	localPresent := tierPresent(cfg.LocalDir)
	globalPresent := cfg.GlobalDir != "" && tierPresent(cfg.GlobalDir)

	switch {
	case !localPresent && !globalPresent:
		return cfg.LocalDir, nil

	case localPresent && !globalPresent:
		if cfg.GlobalDir != "" {
			if err := copyTier(cfg.LocalDir, cfg.GlobalDir); err != nil {
				return "", fmt.Errorf("failed to mirror local tier to global: %w", err)
			}
		}
		return cfg.LocalDir, nil

	case !localPresent && globalPresent:
		if err := copyTier(cfg.GlobalDir, cfg.LocalDir); err != nil {
			return "", fmt.Errorf("failed to mirror global tier to local: %w", err)
		}
		return cfg.LocalDir, nil

	default:
		return reconcileBothPresent(cfg)
	}
}

func reconcileBothPresent(cfg ContentStoreConfig) (string, error) {
	localSnap, err := loadSnapshot(filepath.Join(cfg.LocalDir, snapshotFileName))
	if err != nil {
		return cfg.LocalDir, nil // no readable header yet, treat local as authoritative
	}
	globalSnap, err := loadSnapshot(filepath.Join(cfg.GlobalDir, snapshotFileName))
	if err != nil {
		return cfg.LocalDir, nil
	}

	if !compatible(localSnap.Header, globalSnap.Header) {
		// Incompatible: keep both on disk, select the one matching the
		// configured provider/model rather than merging.
		if matchesConfig(localSnap.Header, cfg) {
			return cfg.LocalDir, nil
		}
		if matchesConfig(globalSnap.Header, cfg) {
			return cfg.GlobalDir, nil
		}
		return "", fmt.Errorf("incompatible snapshots at both tiers and neither matches configured provider %q model %q", cfg.ProviderID, cfg.ModelID)
	}

	diff := localSnap.Header.CreatedAt.Sub(globalSnap.Header.CreatedAt)
	if diff < 0 {
		diff = -diff
	}

	newerDir, olderDir := cfg.LocalDir, cfg.GlobalDir
	if globalSnap.Header.CreatedAt.After(localSnap.Header.CreatedAt) {
		newerDir, olderDir = cfg.GlobalDir, cfg.LocalDir
	}

	if diff > cfg.StaleThreshold {
		// Synchronize newer -> older immediately.
		if err := copyTier(newerDir, olderDir); err != nil {
			return "", fmt.Errorf("failed to synchronize stale tier: %w", err)
		}
		return newerDir, nil
	}

	// Within tolerance: use the newer tier in memory. The older tier is
	// left as-is for a lazy update (next Close syncs it).
	return newerDir, nil
}

func compatible(a, b SnapshotHeader) bool {
	return a.SchemaVersion == b.SchemaVersion && a.ProviderID == b.ProviderID &&
		a.ModelID == b.ModelID && a.Dimensions == b.Dimensions
}

func matchesConfig(h SnapshotHeader, cfg ContentStoreConfig) bool {
	return h.ProviderID == cfg.ProviderID && h.ModelID == cfg.ModelID && h.Dimensions == cfg.Dimensions
}

func tierPresent(dir string) bool {
	if dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, metadataFileName))
	return err == nil
}

// copyTier mirrors one tier directory's store files onto another.
func copyTier(src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	for _, name := range []string{metadataFileName, vectorFileName, vectorFileName + ".meta", snapshotFileName} {
		srcPath := filepath.Join(src, name)
		if _, err := os.Stat(srcPath); err != nil {
			continue
		}
		if err := copyFileAtomic(srcPath, filepath.Join(dst, name)); err != nil {
			return err
		}
	}

	keywordSrc := filepath.Join(src, keywordDirName)
	if _, err := os.Stat(keywordSrc); err == nil {
		if err := copyDir(keywordSrc, filepath.Join(dst, keywordDirName)); err != nil {
			return err
		}
	}
	return nil
}

// copyDir recursively copies a directory tree, used to mirror the keyword
// index's multi-file Bleve layout between tiers the same way copyTier
// mirrors the single-file metadata/vector/snapshot stores.
func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFileAtomic(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func loadSnapshot(path string) (persistedSnapshot, error) {
	var snap persistedSnapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return snap, err
	}
	return snap, nil
}

func saveSnapshot(path string, snap persistedSnapshot) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func contentHashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Upsert writes chunks, updates the content-hash reverse index, and bumps
// the snapshot version. Fails if the store's configured dimensions don't
// match the snapshot header (an embedder switch requires a reindex).
func (cs *ContentStore) Upsert(ctx context.Context, chunks []*Chunk) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.upsertLocked(ctx, chunks)
}

// upsertLocked is Upsert's body, factored out so ApplyFileDelta can run it
// inside the same critical section as the paired embeddings-add and
// stale-chunk removal. Callers must hold cs.mu for writing.
func (cs *ContentStore) upsertLocked(ctx context.Context, chunks []*Chunk) error {
	if cs.cfg.Dimensions != 0 && cs.snapshot.Header.Dimensions != 0 && cs.cfg.Dimensions != cs.snapshot.Header.Dimensions {
		return ErrDimensionMismatch{Expected: cs.snapshot.Header.Dimensions, Got: cs.cfg.Dimensions}
	}

	if err := cs.meta.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	docs := make([]*Document, 0, len(chunks))
	for _, c := range chunks {
		cs.snapshot.HashIndex[contentHashOf(c.Content)] = c.ID
		docs = append(docs, &Document{ID: c.ID, Content: c.Content})
	}
	if err := cs.keyword.Index(ctx, docs); err != nil {
		return fmt.Errorf("failed to update keyword index: %w", err)
	}
	cs.snapshot.Header.ChunkCount += len(chunks)
	cs.snapshot.Header.CreatedAt = time.Now()
	if cs.cfg.Dimensions != 0 {
		cs.snapshot.Header.Dimensions = cs.cfg.Dimensions
	}
	cs.snapshot.Header.ProviderID = cs.cfg.ProviderID
	cs.snapshot.Header.ModelID = cs.cfg.ModelID
	cs.snapshot.Header.SchemaVersion = snapshotSchemaVer

	return nil
}

// fileIDFor derives a stable file ID from the project and relative path, the
// same way a chunk ID is derived from path+content (see generateChunkID in
// internal/chunk/code_chunker.go): content-addressable rather than
// position-based, so it survives process restarts without a counter.
func fileIDFor(projectID, path string) string {
	sum := sha256.Sum256([]byte(projectID + ":" + path))
	return hex.EncodeToString(sum[:])[:16]
}

// EnsureFile records or updates the file row a path's chunks attach to via
// Chunk.FileID, and returns that ID. Callers upsert chunks only after
// calling this, since SaveChunks has no file bookkeeping of its own.
func (cs *ContentStore) EnsureFile(ctx context.Context, path string, size int64, modTime time.Time, contentHash, language string, contentType ContentType) (string, error) {
	id := fileIDFor(cs.cfg.ProjectID, path)
	file := &File{
		ID:          id,
		ProjectID:   cs.cfg.ProjectID,
		Path:        path,
		Size:        size,
		ModTime:     modTime,
		ContentHash: contentHash,
		Language:    language,
		ContentType: contentType,
		IndexedAt:   time.Now(),
	}
	if err := cs.meta.SaveFiles(ctx, []*File{file}); err != nil {
		return "", fmt.Errorf("failed to save file %s: %w", path, err)
	}
	return id, nil
}

// GetFile returns the tracked file record for path, or nil if untracked.
func (cs *ContentStore) GetFile(ctx context.Context, path string) (*File, error) {
	return cs.meta.GetFileByPath(ctx, cs.cfg.ProjectID, path)
}

// ListFiles returns a page of tracked files for this store's project, for
// callers (the MCP resource listing) that need "every indexed file" rather
// than a single lookup by path.
func (cs *ContentStore) ListFiles(ctx context.Context, cursor string, limit int) ([]*File, string, error) {
	return cs.meta.ListFiles(ctx, cs.cfg.ProjectID, cursor, limit)
}

// LookupByHash returns the chunk previously stored under this content hash,
// if any — a constant-time reuse check before re-chunking/re-embedding.
func (cs *ContentStore) LookupByHash(ctx context.Context, hash string) (*Chunk, error) {
	cs.mu.RLock()
	chunkID, ok := cs.snapshot.HashIndex[hash]
	cs.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return cs.meta.GetChunk(ctx, chunkID)
}

// LookupEmbeddingByHash returns the embedding already stored for this
// content hash, if any chunk (in this file or another) was indexed with
// identical content. A hit lets the indexer reuse an existing vector
// instead of re-embedding duplicate content across files.
func (cs *ContentStore) LookupEmbeddingByHash(ctx context.Context, hash string) ([]float32, error) {
	cs.mu.RLock()
	chunkID, ok := cs.snapshot.HashIndex[hash]
	cs.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return cs.meta.GetEmbedding(ctx, chunkID)
}

// GetChunk returns a single chunk by ID, used to hydrate vector/exact scan
// hits (which only carry IDs and scores) into full chunk records.
func (cs *ContentStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	return cs.meta.GetChunk(ctx, id)
}

// GetChunksByFile returns the chunks belonging to a tracked file.
func (cs *ContentStore) GetChunksByFile(ctx context.Context, path string) ([]*Chunk, error) {
	file, err := cs.meta.GetFileByPath(ctx, cs.cfg.ProjectID, path)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, nil
	}
	return cs.meta.GetChunksByFile(ctx, file.ID)
}

// RemoveByFile deletes the chunks whose sole referencing file was path,
// along with their vectors and hash-index entries.
func (cs *ContentStore) RemoveByFile(ctx context.Context, path string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	file, err := cs.meta.GetFileByPath(ctx, cs.cfg.ProjectID, path)
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}

	chunks, err := cs.meta.GetChunksByFile(ctx, file.ID)
	if err != nil {
		return err
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		delete(cs.snapshot.HashIndex, contentHashOf(c.Content))
	}

	if err := cs.vectors.Delete(ctx, ids); err != nil {
		return fmt.Errorf("failed to remove vectors: %w", err)
	}
	if err := cs.keyword.Delete(ctx, ids); err != nil {
		return fmt.Errorf("failed to remove keyword entries: %w", err)
	}
	if err := cs.meta.DeleteFile(ctx, file.ID); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}

	cs.snapshot.Header.ChunkCount -= len(ids)
	if cs.snapshot.Header.ChunkCount < 0 {
		cs.snapshot.Header.ChunkCount = 0
	}
	return nil
}

// RemoveChunks deletes a specific subset of a file's chunks — the ones the
// indexer's delta step (toRemove) found stale after re-chunking a modified
// file — without touching the file row or its other, still-current chunks.
// Takes the chunk values themselves, not just IDs, since the hash index is
// keyed by content and has no id-to-hash reverse lookup.
func (cs *ContentStore) RemoveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.removeChunksLocked(ctx, chunks)
}

// removeChunksLocked is RemoveChunks's body, factored out so ApplyFileDelta
// can run it inside the same critical section as the paired upsert and
// embeddings-add. Callers must hold cs.mu for writing.
func (cs *ContentStore) removeChunksLocked(ctx context.Context, chunks []*Chunk) error {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		delete(cs.snapshot.HashIndex, contentHashOf(c.Content))
	}

	if err := cs.vectors.Delete(ctx, ids); err != nil {
		return fmt.Errorf("failed to remove vectors: %w", err)
	}
	if err := cs.keyword.Delete(ctx, ids); err != nil {
		return fmt.Errorf("failed to remove keyword entries: %w", err)
	}
	if err := cs.meta.DeleteChunks(ctx, ids); err != nil {
		return fmt.Errorf("failed to remove chunks: %w", err)
	}

	cs.snapshot.Header.ChunkCount -= len(ids)
	if cs.snapshot.Header.ChunkCount < 0 {
		cs.snapshot.Header.ChunkCount = 0
	}
	return nil
}

// ApplyFileDelta commits a single file's re-chunk delta — the chunks added,
// their freshly computed embeddings, and the now-stale chunks dropped — as
// one critical section under cs.mu, instead of as separate Upsert,
// AddEmbeddings, and RemoveChunks calls. SimilaritySearch and KeywordSearch
// take cs.mu for reading, so a concurrent reader observes either the
// pre-delta or the post-delta state for path, never a mix of old and new
// chunks in between.
func (cs *ContentStore) ApplyFileDelta(ctx context.Context, toAdd []*Chunk, addIDs []string, addVectors [][]float32, model string, toRemove []*Chunk) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if len(toAdd) > 0 {
		if err := cs.upsertLocked(ctx, toAdd); err != nil {
			return err
		}
		if err := cs.vectors.Add(ctx, addIDs, addVectors); err != nil {
			return fmt.Errorf("failed to add vectors: %w", err)
		}
		if err := cs.meta.SaveChunkEmbeddings(ctx, addIDs, addVectors, model); err != nil {
			return fmt.Errorf("failed to save chunk embeddings: %w", err)
		}
	}
	if len(toRemove) > 0 {
		if err := cs.removeChunksLocked(ctx, toRemove); err != nil {
			return err
		}
	}
	return nil
}

// SimilaritySearch delegates to the HNSW vector store (C8's approximate
// path, used above the exact-scan size threshold). Takes cs.mu for reading
// so it never observes a write (ApplyFileDelta, Upsert, RemoveChunks) mid-way.
func (cs *ContentStore) SimilaritySearch(ctx context.Context, queryVec []float32, k int) ([]*VectorResult, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.vectors.Search(ctx, queryVec, k)
}

// KeywordSearch runs the BM25 keyword-recall channel over chunk content,
// surfacing literal identifier/term matches the embedding model's vector
// space may under-weight. Retrieval merges these hits with the vector
// search candidate pool before critical-term marking and MMR selection.
// Takes cs.mu for reading for the same reason SimilaritySearch does.
func (cs *ContentStore) KeywordSearch(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.keyword.Search(ctx, query, limit)
}

// AllEmbeddings returns every chunk's embedding keyed by chunk ID, for C8's
// exact linear-scan path below the size threshold. Delegates to the
// metadata store rather than the HNSW graph since coder/hnsw exposes no
// brute-force scan of its own. Takes cs.mu for reading for the same reason
// SimilaritySearch does.
func (cs *ContentStore) AllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.meta.GetAllEmbeddings(ctx)
}

// ChunkCount returns the current chunk count, used to pick between C8's
// exact and approximate search paths without a full stats call.
func (cs *ContentStore) ChunkCount() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.snapshot.Header.ChunkCount
}

// AddEmbeddings indexes newly computed embeddings into the vector store and
// persists them on the metadata side so HNSW can be rebuilt from SQLite.
func (cs *ContentStore) AddEmbeddings(ctx context.Context, chunkIDs []string, vectors [][]float32, model string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := cs.vectors.Add(ctx, chunkIDs, vectors); err != nil {
		return fmt.Errorf("failed to add vectors: %w", err)
	}
	return cs.meta.SaveChunkEmbeddings(ctx, chunkIDs, vectors, model)
}

// ContentStoreStats summarizes a store's current size and identity.
type ContentStoreStats struct {
	ChunkCount int
	FileCount  int
	ProviderID string
	ModelID    string
	Dimensions int
}

// Stats returns counts, size, and provider+model identity.
func (cs *ContentStore) Stats() ContentStoreStats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return ContentStoreStats{
		ChunkCount: cs.snapshot.Header.ChunkCount,
		FileCount:  cs.snapshot.Header.FileCount,
		ProviderID: cs.snapshot.Header.ProviderID,
		ModelID:    cs.snapshot.Header.ModelID,
		Dimensions: cs.snapshot.Header.Dimensions,
	}
}

// Close persists the active tier's snapshot and vector index, lazily syncs
// the other tier if it was left stale-but-within-tolerance at open time,
// and releases the open-time lock.
func (cs *ContentStore) Close() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	vectorPath := filepath.Join(cs.activeDir, vectorFileName)
	record(cs.vectors.Save(vectorPath))
	record(cs.vectors.Close())
	record(cs.keyword.Close())
	record(saveSnapshot(filepath.Join(cs.activeDir, snapshotFileName), cs.snapshot))
	record(cs.meta.Close())

	otherDir := cs.cfg.GlobalDir
	if cs.activeDir == cs.cfg.GlobalDir {
		otherDir = cs.cfg.LocalDir
	}
	if otherDir != "" && otherDir != cs.activeDir {
		if err := copyTier(cs.activeDir, otherDir); err != nil {
			slog.Warn("failed to lazily sync stale tier", slog.String("dir", otherDir), slog.String("error", err.Error()))
		}
	}

	record(cs.lock.Unlock())
	return firstErr
}
