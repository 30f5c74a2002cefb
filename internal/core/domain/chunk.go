package domain

import (
	"fmt"
	"time"
)

// Chunk is a contiguous span of source text prepared for embedding.
// Chunks are immutable once created; re-ingesting a file replaces its
// chunks via upsert keyed by ID.
type Chunk struct {
	// ID is unique within a store and deterministic for a given
	// (source, sequence) pair. See ChunkID.
	ID string

	// SourceFile identifies the origin of the text.
	SourceFile string

	// Content is the chunk text.
	Content string

	// StartPos and EndPos are character offsets into the cleaned
	// source text.
	StartPos int
	EndPos   int

	// Metadata contains chunk bookkeeping (chunk_number, word_count)
	// plus any caller-supplied tags.
	Metadata map[string]any

	// CreatedAt is set by the store on insert.
	CreatedAt time.Time
}

// ChunkID builds the deterministic chunk identifier for a source file
// and zero-based sequence number, e.g. "doc.txt_0000".
func ChunkID(sourceFile string, seq int) string {
	return fmt.Sprintf("%s_%04d", sourceFile, seq)
}

// FileRecord is the aggregate bookkeeping row for one ingested source.
type FileRecord struct {
	// Filepath is the primary key.
	Filepath string

	// Filename is the base name of the file.
	Filename string

	// FileSize is the source size in bytes.
	FileSize int64

	// ChunkCount is the number of chunks currently stored for the file.
	ChunkCount int

	// LastModified is the source file's modification time at ingestion.
	LastModified time.Time

	// IngestedAt is when the file was last ingested.
	IngestedAt time.Time
}

// SearchHit is a transient similarity search result.
type SearchHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the cosine similarity in [0,1].
	Score float64
}

// Statistics describes the current corpus.
type Statistics struct {
	// TotalFiles is the number of file records.
	TotalFiles int

	// TotalChunks is the number of chunk rows.
	TotalChunks int

	// TotalSizeMB is the combined source size in megabytes.
	TotalSizeMB float64

	// FileTypes maps file extension (without dot) to file count.
	FileTypes map[string]int

	// LastUpdated is the most recent ingestion time, zero when empty.
	LastUpdated time.Time

	// VectorCount is the number of embeddings held in memory.
	VectorCount int
}
