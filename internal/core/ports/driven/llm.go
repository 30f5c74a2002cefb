package driven

import (
	"context"

	"github.com/custodia-labs/corpora/internal/core/domain"
)

// LLMService provides language model generation for the RAG pipeline.
//
// Implementations may include:
//   - Ollama (local models)
//   - OpenAI (GPT-4o, GPT-4o-mini)
type LLMService interface {
	// Generate produces a completion for a single prompt under the given
	// system instruction.
	Generate(ctx context.Context, systemPrompt, prompt string, opts GenerateOptions) (string, error)

	// Chat conducts a multi-turn conversation.
	Chat(ctx context.Context, messages []domain.ChatMessage, opts GenerateOptions) (string, error)

	// GenerateStream produces a completion incrementally. Fragments are
	// sent on the returned channel, which is closed when generation ends.
	// The first error, if any, is delivered on the error channel.
	GenerateStream(ctx context.Context, systemPrompt, prompt string, opts GenerateOptions) (<-chan string, <-chan error)

	// ModelName returns the name of the model in use.
	ModelName() string

	// Ping validates the service is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}
