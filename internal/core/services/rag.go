package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driven"
	"github.com/custodia-labs/corpora/internal/core/ports/driving"
	"github.com/custodia-labs/corpora/internal/logger"
)

var _ driving.RAGService = (*RAGService)(nil)

// Defaults for RAG queries.
const (
	DefaultMaxSources = 5
	DefaultThreshold  = 0.5

	// MaxContextChars bounds the combined context injected into the
	// prompt; longer context is cut with a truncation marker.
	MaxContextChars = 4000

	// sourcePreviewChars is the citation excerpt length.
	sourcePreviewChars = 200

	// ragHistoryTurns and chatHistoryTurns bound how much conversation
	// is replayed into the prompt.
	ragHistoryTurns  = 3
	chatHistoryTurns = 5

	// streamDelay is the pause between emitted response segments.
	streamDelay = 50 * time.Millisecond
)

const ragSystemPrompt = `You are a helpful research assistant. You have access to a user's document corpus and can answer questions based on the provided context.

When answering:
1. Use the provided context to answer questions accurately
2. If the context doesn't contain relevant information, say so clearly
3. Cite sources when possible
4. Be concise but thorough
5. If asked about something not in the context, acknowledge the limitation

Always be helpful, honest, and precise in your responses.`

const chatSystemPrompt = "You are a helpful AI assistant. Be concise, helpful, and friendly."

const apologyResponse = "I apologize, but I encountered an error processing your request. Please try again."

var responseSentence = regexp.MustCompile(`([.!?])\s+`)

// RAGService answers questions grounded on the corpus. It borrows the
// store and the embedding/LLM providers; it owns none of their state.
type RAGService struct {
	store    driving.CorpusStore
	embedder driven.EmbeddingService
	llm      driven.LLMService
}

// NewRAGService creates the orchestrator. embedder may be nil, in which
// case retrieval is skipped and queries fall back to plain chat.
func NewRAGService(store driving.CorpusStore, embedder driven.EmbeddingService, llm driven.LLMService) *RAGService {
	return &RAGService{
		store:    store,
		embedder: embedder,
		llm:      llm,
	}
}

// Query runs retrieval and generation. Any failure degrades to an
// apology result with empty sources; the cause is logged, never
// propagated, so a retrieval or generation error cannot crash a chat.
func (s *RAGService) Query(ctx context.Context, req driving.QueryRequest) *domain.RAGResult {
	start := time.Now()

	result, err := s.run(ctx, req)
	if err != nil {
		logger.Error("RAG pipeline error for query %q: %v", truncate(req.Query, 50), err)
		return &domain.RAGResult{
			Response: apologyResponse,
			Sources:  []domain.Source{},
			Elapsed:  time.Since(start),
		}
	}

	result.Elapsed = time.Since(start)
	logger.Info("RAG query completed in %s with %d sources", result.Elapsed, len(result.Sources))
	return result
}

// run is the fallible pipeline behind Query.
func (s *RAGService) run(ctx context.Context, req driving.QueryRequest) (*domain.RAGResult, error) {
	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}

	maxSources := req.MaxSources
	if maxSources <= 0 {
		maxSources = DefaultMaxSources
	}
	threshold := req.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var sources []domain.Source
	var contextText string

	if req.UseContext && s.embedder != nil && s.store.ChunkCount() > 0 {
		logger.Info("Retrieving context for query: %q", truncate(req.Query, 50))

		var err error
		sources, contextText, err = s.retrieve(ctx, req.Query, maxSources, threshold)
		if err != nil {
			return nil, err
		}
		logger.Info("Retrieved %d relevant sources", len(sources))
	}

	var response string
	var err error

	if req.UseContext && contextText != "" {
		prompt := buildRAGPrompt(req.Query, contextText, req.History)
		response, err = s.llm.Generate(ctx, ragSystemPrompt, prompt, driven.GenerateOptions{})
	} else {
		response, err = s.plainChat(ctx, req.Query, req.History)
	}
	if err != nil {
		return nil, err
	}

	return &domain.RAGResult{
		Response:       response,
		Sources:        sources,
		ContextUsed:    contextText,
		RetrievalCount: len(sources),
	}, nil
}

// retrieve embeds the query, searches the store and assembles the
// citation list and the context block, in descending similarity order.
func (s *RAGService) retrieve(ctx context.Context, query string, maxSources int, threshold float64) ([]domain.Source, string, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, "", fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.store.Search(ctx, embedding, maxSources, threshold)
	if err != nil {
		return nil, "", fmt.Errorf("searching store: %w", err)
	}

	sources := make([]domain.Source, 0, len(hits))
	contextParts := make([]string, 0, len(hits))

	for _, hit := range hits {
		chunk, err := s.store.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue // chunk deleted between scan and lookup
			}
			return nil, "", fmt.Errorf("fetching chunk %s: %w", hit.ChunkID, err)
		}

		sources = append(sources, domain.Source{
			ChunkID:         chunk.ID,
			Content:         truncate(chunk.Content, sourcePreviewChars),
			SourceFile:      chunk.SourceFile,
			SimilarityScore: hit.Score,
		})
		contextParts = append(contextParts, fmt.Sprintf("Source: %s\n%s", chunk.SourceFile, chunk.Content))
	}

	contextText := strings.Join(contextParts, "\n\n---\n\n")
	if len(contextText) > MaxContextChars {
		contextText = contextText[:MaxContextChars] + "...\n[Context truncated]"
	}

	return sources, contextText, nil
}

// plainChat answers without retrieval: system prompt, trailing history,
// current message.
func (s *RAGService) plainChat(ctx context.Context, message string, history []domain.ChatMessage) (string, error) {
	messages := make([]domain.ChatMessage, 0, chatHistoryTurns+2)
	messages = append(messages, domain.ChatMessage{Role: "system", Content: chatSystemPrompt})
	messages = append(messages, tail(history, chatHistoryTurns)...)
	messages = append(messages, domain.ChatMessage{Role: "user", Content: message})

	return s.llm.Chat(ctx, messages, driven.GenerateOptions{})
}

// buildRAGPrompt formats history, the delimited context block and the
// question into one grounded prompt.
func buildRAGPrompt(query, contextText string, history []domain.ChatMessage) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, msg := range tail(history, ragHistoryTurns) {
			if msg.Role == "" || msg.Content == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", titleRole(msg.Role), msg.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Based on the following context from the user's documents:\n")
	b.WriteString("---\n")
	b.WriteString(contextText)
	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Please provide a helpful and accurate answer based on the context above. " +
		"If the context doesn't contain enough information to fully answer the question, please say so.")

	return b.String()
}

// QueryStream runs the same pipeline as Query, then emits the response
// as sentence-sized events separated by a short delay. A request that
// fails validation before the pipeline runs ends the stream with a
// StreamError event. Cancellation stops emission immediately: remaining
// segments and the completion event are suppressed and the channel is
// closed.
func (s *RAGService) QueryStream(ctx context.Context, req driving.QueryRequest) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)
		start := time.Now()

		if strings.TrimSpace(req.Query) == "" {
			emit(ctx, events, domain.StreamEvent{
				Type: domain.StreamError,
				Err:  fmt.Errorf("%w: empty query", domain.ErrInvalidInput),
			})
			return
		}

		result := s.Query(ctx, req)

		if len(result.Sources) > 0 {
			if !emit(ctx, events, domain.StreamEvent{Type: domain.StreamSources, Sources: result.Sources}) {
				return
			}
		}

		for _, sentence := range splitResponseSentences(result.Response) {
			if !emit(ctx, events, domain.StreamEvent{Type: domain.StreamChunk, Content: sentence + " "}) {
				logger.Info("Streaming query cancelled")
				return
			}

			select {
			case <-time.After(streamDelay):
			case <-ctx.Done():
				logger.Info("Streaming query cancelled")
				return
			}
		}

		if ctx.Err() != nil {
			logger.Info("Streaming query cancelled")
			return
		}
		emit(ctx, events, domain.StreamEvent{
			Type:        domain.StreamComplete,
			Elapsed:     time.Since(start),
			TotalLength: len(result.Response),
			SourceCount: len(result.Sources),
		})
	}()

	return events
}

// Health pings each collaborator.
func (s *RAGService) Health(ctx context.Context) domain.Health {
	var h domain.Health

	if s.llm != nil {
		h.LLM = s.llm.Ping(ctx) == nil
	}
	if s.embedder != nil {
		h.Embedder = s.embedder.Ping(ctx) == nil
	}
	h.Store = s.store.ChunkCount() >= 0

	return h
}

// emit sends an event unless ctx is done first. Reports whether the
// event was delivered.
func emit(ctx context.Context, events chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// splitResponseSentences splits generated text on sentence terminators
// for incremental emission.
func splitResponseSentences(text string) []string {
	marked := responseSentence.ReplaceAllString(text, "$1\x00")

	var sentences []string
	for _, part := range strings.Split(marked, "\x00") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

// titleRole capitalises a role name for prompt display ("user" -> "User").
func titleRole(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

// tail returns the last n elements of msgs.
func tail(msgs []domain.ChatMessage, n int) []domain.ChatMessage {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
