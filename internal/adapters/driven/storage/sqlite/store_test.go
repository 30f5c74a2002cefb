package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpora/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChunk(id, source, content string, start int) domain.Chunk {
	return domain.Chunk{
		ID:         id,
		SourceFile: source,
		Content:    content,
		StartPos:   start,
		EndPos:     start + len(content),
		Metadata:   map[string]any{"word_count": float64(len(content))},
	}
}

func TestStore_UpsertAndGetChunk(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunk := testChunk("doc.txt_0000", "doc.txt", "hello world", 0)
	require.NoError(t, store.UpsertChunks(ctx, []domain.Chunk{chunk}))

	got, err := store.GetChunk(ctx, "doc.txt_0000")
	require.NoError(t, err)
	assert.Equal(t, chunk.ID, got.ID)
	assert.Equal(t, chunk.SourceFile, got.SourceFile)
	assert.Equal(t, chunk.Content, got.Content)
	assert.Equal(t, float64(11), got.Metadata["word_count"])
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_GetChunkNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetChunk(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpsertReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertChunks(ctx, []domain.Chunk{
		testChunk("doc.txt_0000", "doc.txt", "old content", 0),
	}))
	require.NoError(t, store.UpsertChunks(ctx, []domain.Chunk{
		testChunk("doc.txt_0000", "doc.txt", "new content", 0),
	}))

	got, err := store.GetChunk(ctx, "doc.txt_0000")
	require.NoError(t, err)
	assert.Equal(t, "new content", got.Content)

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestStore_GetFileChunksOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Insert out of order; retrieval must sort by start position.
	require.NoError(t, store.UpsertChunks(ctx, []domain.Chunk{
		testChunk("doc.txt_0002", "doc.txt", "third", 200),
		testChunk("doc.txt_0000", "doc.txt", "first", 0),
		testChunk("doc.txt_0001", "doc.txt", "second", 100),
	}))

	chunks, err := store.GetFileChunks(ctx, "doc.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "first", chunks[0].Content)
	assert.Equal(t, "second", chunks[1].Content)
	assert.Equal(t, "third", chunks[2].Content)
}

func TestStore_GetFileChunksEmptyForUnknownFile(t *testing.T) {
	store := newTestStore(t)

	chunks, err := store.GetFileChunks(context.Background(), "unknown.txt")

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestStore_FileRecordMaintained(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertChunks(ctx, []domain.Chunk{
		testChunk("notes/doc.txt_0000", "notes/doc.txt", "first", 0),
		testChunk("notes/doc.txt_0001", "notes/doc.txt", "second", 100),
	}))

	exists, err := store.FileExists(ctx, "notes/doc.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	rec, err := store.GetFile(ctx, "notes/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", rec.Filename)
	assert.Equal(t, 2, rec.ChunkCount)
	assert.False(t, rec.IngestedAt.IsZero())
}

func TestStore_FileExistsFalse(t *testing.T) {
	store := newTestStore(t)

	exists, err := store.FileExists(context.Background(), "nope.txt")

	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_GetFileNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetFile(context.Background(), "nope.txt")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_SetFileInfo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetFileInfo(ctx, "doc.txt", 2048, modified))

	rec, err := store.GetFile(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), rec.FileSize)
	assert.True(t, rec.LastModified.Equal(modified))

	// Updating size keeps the record, not a duplicate.
	require.NoError(t, store.SetFileInfo(ctx, "doc.txt", 4096, modified))
	rec, err = store.GetFile(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), rec.FileSize)
}

func TestStore_Statistics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertChunks(ctx, []domain.Chunk{
		testChunk("a.txt_0000", "a.txt", "alpha", 0),
		testChunk("a.txt_0001", "a.txt", "beta", 100),
		testChunk("b.md_0000", "b.md", "gamma", 0),
	}))
	require.NoError(t, store.SetFileInfo(ctx, "a.txt", 1024*1024, time.Now()))

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.InDelta(t, 1.0, stats.TotalSizeMB, 0.01)
	assert.Equal(t, 1, stats.FileTypes["txt"])
	assert.Equal(t, 1, stats.FileTypes["md"])
	assert.False(t, stats.LastUpdated.IsZero())
}

func TestStore_StatisticsEmpty(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.Statistics(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)
	assert.Equal(t, 0, stats.TotalFiles)
	assert.Zero(t, stats.TotalSizeMB)
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertChunks(ctx, []domain.Chunk{
		testChunk("doc.txt_0000", "doc.txt", "content", 0),
	}))
	require.NoError(t, store.Clear(ctx))

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)
	assert.Equal(t, 0, stats.TotalFiles)

	_, err = store.GetChunk(ctx, "doc.txt_0000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStore(dir, 2)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Reopening the same database must not rerun applied migrations.
	second, err := NewStore(dir, 2)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
