package indexer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel-engine/codeintel/internal/chunk"
	"github.com/codeintel-engine/codeintel/internal/store"
)

func TestStatus_BeginSetsScanningStage(t *testing.T) {
	s := NewStatus()
	s.begin(ModeFull, 42)

	snap := s.Snapshot()
	assert.Equal(t, ModeFull, snap.Mode)
	assert.Equal(t, StageScanning, snap.Stage)
	assert.Equal(t, 42, snap.FilesTotal)
	assert.Equal(t, 0, snap.FilesProcessed)
	assert.False(t, snap.StartedAt.IsZero())
}

func TestStatus_RecordFileAccumulates(t *testing.T) {
	s := NewStatus()
	s.begin(ModeIncremental, 2)

	s.recordFile(3, 1, 0)
	s.recordFile(0, 2, 1)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.FilesProcessed)
	assert.Equal(t, 3, snap.ChunksAdded)
	assert.Equal(t, 3, snap.ChunksReused)
	assert.Equal(t, 1, snap.ChunksRemoved)
}

func TestStatus_FailSetsStageAndMessage(t *testing.T) {
	s := NewStatus()
	s.begin(ModeFull, 1)

	s.fail("embedding provider unavailable")

	snap := s.Snapshot()
	assert.Equal(t, StageFailed, snap.Stage)
	assert.Equal(t, "embedding provider unavailable", snap.ErrorMessage)
}

func TestStatus_FinishSetsDone(t *testing.T) {
	s := NewStatus()
	s.begin(ModeFull, 1)
	s.setStage(StagePersisting)

	s.finish()

	assert.Equal(t, StageDone, s.Snapshot().Stage)
}

func TestNameIndex_ResolveFindsDeclaredSymbol(t *testing.T) {
	n := newNameIndex()
	n.replaceFile("a.go", []nameEntry{{Name: "Handle", ID: "a.go:Handle:10"}})

	id, ok := n.Resolve("Handle")
	require.True(t, ok)
	assert.Equal(t, "a.go:Handle:10", id)
}

func TestNameIndex_ResolveMissingReturnsFalse(t *testing.T) {
	n := newNameIndex()

	_, ok := n.Resolve("Nope")
	assert.False(t, ok)
}

func TestNameIndex_ReplaceFileDropsStaleEntries(t *testing.T) {
	n := newNameIndex()
	n.replaceFile("a.go", []nameEntry{{Name: "Old", ID: "a.go:Old:1"}})

	n.replaceFile("a.go", []nameEntry{{Name: "New", ID: "a.go:New:2"}})

	_, ok := n.Resolve("Old")
	assert.False(t, ok, "stale name from a previous version of the file should be gone")

	id, ok := n.Resolve("New")
	require.True(t, ok)
	assert.Equal(t, "a.go:New:2", id)
}

func TestNameIndex_ReplaceFileLeavesOtherFilesAlone(t *testing.T) {
	n := newNameIndex()
	n.replaceFile("a.go", []nameEntry{{Name: "Shared", ID: "a.go:Shared:1"}})
	n.replaceFile("b.go", []nameEntry{{Name: "Other", ID: "b.go:Other:1"}})

	n.replaceFile("a.go", nil)

	_, ok := n.Resolve("Other")
	assert.True(t, ok)
}

func TestChunkIDContaining_PrefersSmallestEnclosingRange(t *testing.T) {
	chunks := []*store.Chunk{
		{ID: "outer", StartLine: 1, EndLine: 100},
		{ID: "inner", StartLine: 10, EndLine: 20},
	}

	assert.Equal(t, "inner", chunkIDContaining(chunks, 15))
	assert.Equal(t, "outer", chunkIDContaining(chunks, 50))
}

func TestChunkIDContaining_NoMatchReturnsEmpty(t *testing.T) {
	chunks := []*store.Chunk{{ID: "a", StartLine: 1, EndLine: 5}}

	assert.Equal(t, "", chunkIDContaining(chunks, 99))
}

func TestToStoreChunk_CarriesContentHashAndChunkTypeInMetadata(t *testing.T) {
	c := &chunk.Chunk{
		ID:          "chunk-1",
		FilePath:    "pkg/foo.go",
		Content:     "func Foo() {}",
		ContentType: chunk.ContentTypeCode,
		ChunkType:   chunk.ChunkTypeFunction,
		ContentHash: "deadbeef",
		Language:    "go",
		StartLine:   1,
		EndLine:     3,
		Symbols: []chunk.Symbol{
			{Name: "Foo", Type: chunk.SymbolTypeFunction, StartLine: 1, EndLine: 3, Signature: "func Foo()"},
		},
		Metadata: map[string]string{"package": "pkg"},
	}

	sc := toStoreChunk(c, "file-1", "pkg/foo.go")

	require.NotNil(t, sc)
	assert.Equal(t, "chunk-1", sc.ID)
	assert.Equal(t, "file-1", sc.FileID)
	assert.Equal(t, "pkg/foo.go", sc.FilePath)
	assert.Equal(t, "deadbeef", sc.Metadata["content_hash"])
	assert.Equal(t, string(chunk.ChunkTypeFunction), sc.Metadata["chunk_type"])
	assert.Equal(t, "pkg", sc.Metadata["package"])
	require.Len(t, sc.Symbols, 1)
	assert.Equal(t, "Foo", sc.Symbols[0].Name)
}

func TestConcurrencyFor_BoundsAtMaxAndFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, concurrencyFor(0))
	assert.Equal(t, 3, concurrencyFor(3))
	assert.Equal(t, 8, concurrencyFor(1000))
}

func TestIndexer_TrackedFilesReflectMarkAndUnmark(t *testing.T) {
	ix := &Indexer{tracked: make(map[string]struct{})}

	ix.markTracked("a.go")
	ix.markTracked("b.go")

	paths, err := ix.trackedPaths(nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, paths)

	ix.unmarkTracked("a.go")

	paths, err = ix.trackedPaths(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go"}, paths)
}

func TestHashBytes_IsStableAndDeterministic(t *testing.T) {
	a := hashBytes([]byte("hello"))
	b := hashBytes([]byte("hello"))
	c := hashBytes([]byte("world"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestResult_DurationIsRecorded(t *testing.T) {
	r := &Result{Mode: ModeFull, Duration: 5 * time.Second}
	assert.Equal(t, 5*time.Second, r.Duration)
}
