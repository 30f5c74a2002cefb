package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Note: this is separate from VectorIndex, which stores and searches
// vectors. EmbeddingService generates them.
//
// Implementations may include:
//   - Ollama (nomic-embed-text, all-minilm)
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result has
	// the same length and order as texts. Callers are responsible for
	// keeping batches bounded.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 768, 1536).
	// This is fixed per model and must match the store's dimension.
	Dimensions() int

	// ModelName returns the name of the embedding model in use.
	ModelName() string

	// Ping validates the service is reachable with a lightweight request.
	// Callers use it to degrade gracefully instead of failing per call.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
