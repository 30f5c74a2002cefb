// Package services implements the core application services behind the
// driving ports: the vector store composition, ingestion, the directory
// watcher and RAG orchestration.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/corpora/internal/cache"
	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driven"
	"github.com/custodia-labs/corpora/internal/core/ports/driving"
	"github.com/custodia-labs/corpora/internal/logger"
)

var _ driving.CorpusStore = (*VectorStore)(nil)

const (
	// statsCacheKey memoizes Statistics for a short window; every
	// mutation deletes it so staleness is bounded by writes, not TTL.
	statsCacheKey = "statistics"
	statsCacheTTL = time.Minute

	// upsertBatchSize bounds the size of each relational/index write so
	// large ingestions do not hold peak memory or a long transaction.
	upsertBatchSize = 100
)

// VectorStore composes the chunk metadata store, the vector index and
// an aggregate cache into the store surface the rest of the engine
// consumes. It owns the lifetimes of both backing stores.
type VectorStore struct {
	chunks driven.ChunkStore
	index  driven.VectorIndex
	stats  *cache.ConcurrentCache
	closed atomic.Bool
}

// NewVectorStore creates a vector store over the given backends.
func NewVectorStore(chunks driven.ChunkStore, index driven.VectorIndex) *VectorStore {
	return &VectorStore{
		chunks: chunks,
		index:  index,
		stats:  cache.NewConcurrent(16, statsCacheTTL),
	}
}

// AddChunks upserts chunks with their embeddings. The chunk and
// embedding counts must match and every embedding must share the
// store's dimension; violations fail with domain.ErrDimensionMismatch
// before any mutation. Writes happen in bounded batches: relational
// rows first, then the index, then the snapshot. Aggregate caches are
// invalidated afterwards.
func (s *VectorStore) AddChunks(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks, %d embeddings",
			domain.ErrDimensionMismatch, len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	dims := s.index.Dimensions()
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return fmt.Errorf("%w: empty embedding for chunk %s", domain.ErrDimensionMismatch, chunks[i].ID)
		}
		if dims == 0 {
			dims = len(emb)
		}
		if len(emb) != dims {
			return fmt.Errorf("%w: chunk %s has dimension %d, store uses %d",
				domain.ErrDimensionMismatch, chunks[i].ID, len(emb), dims)
		}
	}

	defer s.stats.Delete(statsCacheKey)

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		if err := s.chunks.UpsertChunks(ctx, chunks[start:end]); err != nil {
			logger.Error("Chunk upsert failed: %v", err)
			return fmt.Errorf("upserting chunks: %w", err)
		}

		ids := make([]string, end-start)
		for i, c := range chunks[start:end] {
			ids[i] = c.ID
		}
		if err := s.index.Add(ctx, ids, embeddings[start:end]); err != nil {
			return fmt.Errorf("indexing embeddings: %w", err)
		}
	}

	logger.Info("Added %d chunks to vector store", len(chunks))
	return nil
}

// Search ranks stored chunks against the query embedding. An empty
// store yields an empty result, not an error.
func (s *VectorStore) Search(ctx context.Context, query []float32, limit int, threshold float64) ([]domain.SearchHit, error) {
	if s.closed.Load() {
		return nil, domain.ErrStoreClosed
	}
	hits, err := s.index.Search(ctx, query, limit, threshold)
	if err != nil {
		return nil, err
	}
	logger.Debug("Search found %d results above threshold %.2f", len(hits), threshold)
	return hits, nil
}

// GetChunk retrieves a chunk record by ID.
func (s *VectorStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	if s.closed.Load() {
		return nil, domain.ErrStoreClosed
	}
	return s.chunks.GetChunk(ctx, id)
}

// GetFileChunks returns a file's chunks ordered by start position.
func (s *VectorStore) GetFileChunks(ctx context.Context, filepath string) ([]domain.Chunk, error) {
	return s.chunks.GetFileChunks(ctx, filepath)
}

// FileExists reports whether a file has been ingested.
func (s *VectorStore) FileExists(ctx context.Context, filepath string) (bool, error) {
	return s.chunks.FileExists(ctx, filepath)
}

// GetFile retrieves a file record by path.
func (s *VectorStore) GetFile(ctx context.Context, filepath string) (*domain.FileRecord, error) {
	return s.chunks.GetFile(ctx, filepath)
}

// SetFileInfo records size and modification time for a file.
func (s *VectorStore) SetFileInfo(ctx context.Context, filepath string, size int64, modified time.Time) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	defer s.stats.Delete(statsCacheKey)
	return s.chunks.SetFileInfo(ctx, filepath, size, modified)
}

// Statistics returns corpus aggregates. Results are served from a
// short-TTL cache; mutating operations invalidate it.
func (s *VectorStore) Statistics(ctx context.Context) (*domain.Statistics, error) {
	if s.closed.Load() {
		return nil, domain.ErrStoreClosed
	}

	if cached, ok := s.stats.Get(statsCacheKey); ok {
		logger.Debug("Statistics served from cache")
		return copyStatistics(cached.(*domain.Statistics)), nil
	}

	stats, err := s.chunks.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	stats.VectorCount = s.index.Len()

	s.stats.Set(statsCacheKey, stats, statsCacheTTL)
	return copyStatistics(stats), nil
}

// copyStatistics clones a cached aggregate so callers never share the
// cached pointer or its FileTypes map.
func copyStatistics(stats *domain.Statistics) *domain.Statistics {
	out := *stats
	out.FileTypes = make(map[string]int, len(stats.FileTypes))
	for ext, count := range stats.FileTypes {
		out.FileTypes[ext] = count
	}
	return &out
}

// ChunkCount returns the number of embeddings currently held.
func (s *VectorStore) ChunkCount() int {
	return s.index.Len()
}

// Clear irreversibly deletes all chunks, files and embeddings, and
// persists the empty vector snapshot.
func (s *VectorStore) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	if err := s.chunks.Clear(ctx); err != nil {
		return err
	}
	if err := s.index.Clear(ctx); err != nil {
		return err
	}
	s.stats.Clear()
	logger.Info("Vector store cleared")
	return nil
}

// Close flushes the vector snapshot and closes the metadata store.
// Later operations fail with domain.ErrStoreClosed; a second Close is a
// no-op.
func (s *VectorStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(s.index.Close(), s.chunks.Close())
}
