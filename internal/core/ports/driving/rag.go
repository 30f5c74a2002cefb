package driving

import (
	"context"

	"github.com/custodia-labs/corpora/internal/core/domain"
)

// QueryRequest configures one RAG query.
type QueryRequest struct {
	// Query is the user's question.
	Query string

	// History is the prior conversation, oldest first.
	History []domain.ChatMessage

	// MaxSources caps the number of retrieved chunks (default 5).
	MaxSources int

	// SimilarityThreshold is the minimum retrieval score (default 0.5).
	SimilarityThreshold float64

	// UseContext enables retrieval. When false the query falls back to a
	// plain chat call and the embedding path is never touched.
	UseContext bool
}

// RAGService answers questions grounded on the corpus.
type RAGService interface {
	// Query runs retrieval and generation and returns the full result.
	// Failures degrade to an apology response rather than an error.
	Query(ctx context.Context, req QueryRequest) *domain.RAGResult

	// QueryStream runs the same pipeline but emits the response as
	// sentence-sized events on the returned channel. The channel closes
	// after StreamComplete or StreamError, or silently on cancellation.
	QueryStream(ctx context.Context, req QueryRequest) <-chan domain.StreamEvent

	// Health pings each collaborator.
	Health(ctx context.Context) domain.Health
}

// IngestResult summarises one ingested file.
type IngestResult struct {
	// Filepath is the ingested file.
	Filepath string

	// Chunks is the number of chunks stored.
	Chunks int

	// Skipped is true when the file was already up to date.
	Skipped bool
}

// IngestService turns files into embedded chunks in the store.
type IngestService interface {
	// IngestFile chunks, embeds and stores one file. Already-ingested
	// files whose modification time has not advanced are skipped unless
	// force is set.
	IngestFile(ctx context.Context, path string, force bool) (*IngestResult, error)

	// IngestDir ingests every supported file under dir.
	IngestDir(ctx context.Context, dir string, force bool) ([]IngestResult, error)
}
