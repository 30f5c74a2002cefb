package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/corpora/internal/core/domain"
)

// ChunkStore persists chunk text and file-level aggregates.
// Backed by SQLite for metadata storage.
type ChunkStore interface {
	// UpsertChunks inserts or replaces chunk rows keyed by chunk ID and
	// refreshes the owning file records, all in one transaction.
	UpsertChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetChunk retrieves a chunk by ID. Returns domain.ErrNotFound when
	// absent.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetFileChunks returns all chunks for a source file, ordered by
	// start position ascending.
	GetFileChunks(ctx context.Context, filepath string) ([]domain.Chunk, error)

	// FileExists reports whether a file record exists.
	FileExists(ctx context.Context, filepath string) (bool, error)

	// GetFile retrieves a file record. Returns domain.ErrNotFound when
	// absent.
	GetFile(ctx context.Context, filepath string) (*domain.FileRecord, error)

	// SetFileInfo records size and modification time for a file.
	SetFileInfo(ctx context.Context, filepath string, size int64, modified time.Time) error

	// Statistics computes corpus aggregates from the relational tables.
	// VectorCount is left zero; the vector index owns that number.
	Statistics(ctx context.Context) (*domain.Statistics, error)

	// Clear deletes all chunk and file rows.
	Clear(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
