package driven

import (
	"context"

	"github.com/custodia-labs/corpora/internal/core/domain"
)

// VectorIndex holds the chunk-id to embedding mapping and serves
// similarity search. Implementations keep the map in memory and make it
// durable via an atomic snapshot file.
type VectorIndex interface {
	// Add inserts or replaces embeddings for the given chunk IDs and
	// snapshots the map. Lengths of ids and embeddings must match.
	Add(ctx context.Context, ids []string, embeddings [][]float32) error

	// Search returns hits with cosine similarity >= threshold, sorted
	// descending by score and truncated to limit. An empty index yields
	// an empty result, not an error.
	Search(ctx context.Context, query []float32, limit int, threshold float64) ([]domain.SearchHit, error)

	// Len returns the number of embeddings held.
	Len() int

	// Dimensions returns the fixed embedding dimension, or 0 while the
	// index is empty.
	Dimensions() int

	// Clear empties the map and persists the empty snapshot.
	Clear(ctx context.Context) error

	// Close snapshots and releases resources.
	Close() error
}
