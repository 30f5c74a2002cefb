package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/corpora/internal/core/domain"
)

// CorpusStore is the full vector store surface consumed by outer layers:
// ingestion, retrieval and corpus maintenance.
type CorpusStore interface {
	// AddChunks upserts chunks with their embeddings. chunks and
	// embeddings must have equal length; a mismatch fails with
	// domain.ErrDimensionMismatch before any mutation.
	AddChunks(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error

	// Search ranks stored chunks against the query embedding.
	Search(ctx context.Context, query []float32, limit int, threshold float64) ([]domain.SearchHit, error)

	// GetChunk retrieves a chunk record by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetFileChunks returns a file's chunks ordered by start position.
	GetFileChunks(ctx context.Context, filepath string) ([]domain.Chunk, error)

	// FileExists reports whether a file has been ingested.
	FileExists(ctx context.Context, filepath string) (bool, error)

	// GetFile retrieves a file record by path.
	GetFile(ctx context.Context, filepath string) (*domain.FileRecord, error)

	// SetFileInfo records a file's size and modification time.
	SetFileInfo(ctx context.Context, filepath string, size int64, modified time.Time) error

	// Statistics returns corpus aggregates.
	Statistics(ctx context.Context) (*domain.Statistics, error)

	// ChunkCount returns the number of embeddings currently held.
	ChunkCount() int

	// Clear irreversibly deletes all chunks, files and embeddings.
	Clear(ctx context.Context) error

	// Close flushes and releases resources.
	Close() error
}
