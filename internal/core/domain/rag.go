package domain

import "time"

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Source is a citation attached to a RAG response.
type Source struct {
	// ChunkID identifies the cited chunk.
	ChunkID string

	// Content is a short preview of the chunk text for display.
	Content string

	// SourceFile is the origin of the chunk.
	SourceFile string

	// SimilarityScore is the retrieval score in [0,1].
	SimilarityScore float64
}

// RAGResult is the transient outcome of one RAG query. It is returned
// to the caller and never persisted.
type RAGResult struct {
	// Response is the generated answer text.
	Response string

	// Sources cites the chunks the answer was grounded on.
	Sources []Source

	// ContextUsed is the raw context block handed to the LLM.
	ContextUsed string

	// Elapsed is the wall-clock duration of the whole operation.
	Elapsed time.Duration

	// RetrievalCount is the number of chunks retrieved.
	RetrievalCount int
}

// StreamEventType discriminates streaming RAG events.
type StreamEventType int

const (
	// StreamSources carries the citation list, sent before any text.
	StreamSources StreamEventType = iota

	// StreamChunk carries one response segment.
	StreamChunk

	// StreamComplete ends a successful stream.
	StreamComplete

	// StreamError ends a failed stream.
	StreamError
)

// StreamEvent is one element of a streaming RAG response.
type StreamEvent struct {
	// Type discriminates the payload fields below.
	Type StreamEventType

	// Content is the text segment for StreamChunk events.
	Content string

	// Sources is set on StreamSources events.
	Sources []Source

	// Elapsed, TotalLength and SourceCount are set on StreamComplete.
	Elapsed     time.Duration
	TotalLength int
	SourceCount int

	// Err is set on StreamError events.
	Err error
}

// Health reports availability of the RAG collaborators.
type Health struct {
	// LLM is true when the LLM provider answered a ping.
	LLM bool

	// Embedder is true when the embedding provider answered a ping.
	Embedder bool

	// Store is true when the vector store is reachable.
	Store bool
}
