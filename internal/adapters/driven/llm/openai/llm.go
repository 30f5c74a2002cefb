// Package openai provides an LLM service adapter using the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// LLMService generates text using the OpenAI chat completions API.
type LLMService struct {
	client *openai.Client
	model  string
}

// NewLLMService creates a new OpenAI LLM service.
// An empty model selects gpt-4o-mini.
func NewLLMService(apiKey, model string) (*LLMService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if model == "" {
		model = DefaultModel
	}

	return &LLMService{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Generate produces a completion for a single prompt.
func (s *LLMService) Generate(ctx context.Context, systemPrompt, prompt string, opts driven.GenerateOptions) (string, error) {
	messages := []domain.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}
	return s.Chat(ctx, messages, opts)
}

// Chat conducts a multi-turn conversation.
func (s *LLMService) Chat(ctx context.Context, messages []domain.ChatMessage, opts driven.GenerateOptions) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, s.buildRequest(messages, opts, false))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream produces a completion incrementally.
func (s *LLMService) GenerateStream(ctx context.Context, systemPrompt, prompt string, opts driven.GenerateOptions) (<-chan string, <-chan error) {
	fragments := make(chan string)
	errs := make(chan error, 1)

	messages := []domain.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}

	go func() {
		defer close(fragments)
		defer close(errs)

		stream, err := s.client.CreateChatCompletionStream(ctx, s.buildRequest(messages, opts, true))
		if err != nil {
			errs <- fmt.Errorf("chat completion stream: %w", err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("stream receive: %w", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			select {
			case fragments <- resp.Choices[0].Delta.Content:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return fragments, errs
}

func (s *LLMService) buildRequest(messages []domain.ChatMessage, opts driven.GenerateOptions, stream bool) openai.ChatCompletionRequest {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: chatMessages,
		Stream:   stream,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	return req
}

// ModelName returns the name of the model in use.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping validates the API is reachable.
func (s *LLMService) Ping(ctx context.Context) error {
	_, err := s.client.ListModels(ctx)
	return err
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}
