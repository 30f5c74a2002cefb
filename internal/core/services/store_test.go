package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpora/internal/core/domain"
)

func newTestVectorStore() (*VectorStore, *fakeChunkStore, *fakeIndex) {
	chunks := newFakeChunkStore()
	index := newFakeIndex()
	return NewVectorStore(chunks, index), chunks, index
}

func TestVectorStore_AddChunks(t *testing.T) {
	store, chunkStore, index := newTestVectorStore()
	ctx := context.Background()

	chunks := testChunks("doc.txt", 3)
	err := store.AddChunks(ctx, chunks, testEmbeddings(3, 4))

	require.NoError(t, err)
	assert.Len(t, chunkStore.chunks, 3)
	assert.Equal(t, 3, index.Len())
	assert.Equal(t, 3, store.ChunkCount())
}

func TestVectorStore_AddChunksCountMismatch(t *testing.T) {
	store, chunkStore, index := newTestVectorStore()

	err := store.AddChunks(context.Background(), testChunks("doc.txt", 3), testEmbeddings(2, 4))

	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
	// The failed call must not have written anything.
	assert.Empty(t, chunkStore.chunks)
	assert.Equal(t, 0, index.Len())
	assert.Equal(t, 0, chunkStore.upsertCalls)
}

func TestVectorStore_AddChunksDimensionMismatch(t *testing.T) {
	store, chunkStore, _ := newTestVectorStore()
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, testChunks("a.txt", 1), testEmbeddings(1, 4)))
	before := chunkStore.upsertCalls

	err := store.AddChunks(ctx, testChunks("b.txt", 1), testEmbeddings(1, 8))

	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, before, chunkStore.upsertCalls)
	assert.Equal(t, 1, store.ChunkCount())
}

func TestVectorStore_AddChunksEmptyEmbedding(t *testing.T) {
	store, _, _ := newTestVectorStore()

	err := store.AddChunks(context.Background(), testChunks("doc.txt", 1), [][]float32{{}})

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestVectorStore_AddChunksEmptyInput(t *testing.T) {
	store, chunkStore, _ := newTestVectorStore()

	err := store.AddChunks(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, chunkStore.upsertCalls)
}

func TestVectorStore_AddChunksBatches(t *testing.T) {
	store, chunkStore, index := newTestVectorStore()

	n := upsertBatchSize*2 + 10
	err := store.AddChunks(context.Background(), testChunks("big.txt", n), testEmbeddings(n, 4))

	require.NoError(t, err)
	assert.Equal(t, 3, chunkStore.upsertCalls)
	assert.Equal(t, n, index.Len())
}

func TestVectorStore_AddChunksUpsertFailure(t *testing.T) {
	store, chunkStore, index := newTestVectorStore()
	chunkStore.upsertErr = errors.New("disk full")

	err := store.AddChunks(context.Background(), testChunks("doc.txt", 2), testEmbeddings(2, 4))

	require.Error(t, err)
	assert.Equal(t, 0, index.Len())
}

func TestVectorStore_ConcurrentAdds(t *testing.T) {
	store, _, index := newTestVectorStore()
	ctx := context.Background()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			source := fmt.Sprintf("doc-%d.txt", w)
			errs <- store.AddChunks(ctx, testChunks(source, perWriter), testEmbeddings(perWriter, 4))
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, writers*perWriter, index.Len())
}

func TestVectorStore_StatisticsCached(t *testing.T) {
	store, chunkStore, _ := newTestVectorStore()
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, testChunks("doc.txt", 2), testEmbeddings(2, 4)))

	first, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalChunks)
	assert.Equal(t, 2, first.VectorCount)

	// Mutate the backing store directly; the cached aggregate must win.
	chunkStore.mu.Lock()
	chunkStore.chunks["ghost"] = domain.Chunk{ID: "ghost"}
	chunkStore.mu.Unlock()

	second, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.TotalChunks)
}

func TestVectorStore_AddInvalidatesStatistics(t *testing.T) {
	store, _, _ := newTestVectorStore()
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, testChunks("a.txt", 1), testEmbeddings(1, 4)))

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)

	require.NoError(t, store.AddChunks(ctx, testChunks("b.txt", 1), testEmbeddings(1, 4)))

	stats, err = store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 2, stats.VectorCount)
}

func TestVectorStore_Clear(t *testing.T) {
	store, chunkStore, index := newTestVectorStore()
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, testChunks("doc.txt", 3), testEmbeddings(3, 4)))
	require.NoError(t, store.Clear(ctx))

	assert.Empty(t, chunkStore.chunks)
	assert.Equal(t, 0, index.Len())
	assert.Equal(t, 0, store.ChunkCount())

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)
	assert.Equal(t, 0, stats.VectorCount)
}

func TestVectorStore_GetChunkPassthrough(t *testing.T) {
	store, _, _ := newTestVectorStore()
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, testChunks("doc.txt", 1), testEmbeddings(1, 4)))

	got, err := store.GetChunk(ctx, "doc.txt_0000")
	require.NoError(t, err)
	assert.Equal(t, "doc.txt_0000", got.ID)

	_, err = store.GetChunk(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVectorStore_CloseClosesBoth(t *testing.T) {
	store, chunkStore, index := newTestVectorStore()

	require.NoError(t, store.Close())

	assert.True(t, chunkStore.closed)
	assert.True(t, index.closed)
}

func TestVectorStore_OperationsAfterClose(t *testing.T) {
	store, chunkStore, _ := newTestVectorStore()
	ctx := context.Background()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err := store.AddChunks(ctx, testChunks("doc.txt", 1), testEmbeddings(1, 4))
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
	assert.Zero(t, chunkStore.upsertCalls)

	_, err = store.Search(ctx, []float32{1, 0, 0, 0}, 5, 0.0)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)

	_, err = store.GetChunk(ctx, "doc.txt_0000")
	assert.ErrorIs(t, err, domain.ErrStoreClosed)

	_, err = store.Statistics(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)

	assert.ErrorIs(t, store.SetFileInfo(ctx, "doc.txt", 1, time.Now()), domain.ErrStoreClosed)
	assert.ErrorIs(t, store.Clear(ctx), domain.ErrStoreClosed)
}

func TestVectorStore_StatisticsCopyPerCaller(t *testing.T) {
	store, _, _ := newTestVectorStore()
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, testChunks("doc.txt", 2), testEmbeddings(2, 4)))

	first, err := store.Statistics(ctx)
	require.NoError(t, err)

	// A caller mutating its result must not poison later reads.
	first.TotalChunks = 999
	first.FileTypes["bogus"] = 7

	second, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.TotalChunks)
	assert.NotContains(t, second.FileTypes, "bogus")
	assert.NotSame(t, first, second)
}
