package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driving"
)

// newTestRAG wires a RAG service over an in-memory store preloaded with
// n chunks.
func newTestRAG(t *testing.T, n int) (*RAGService, *mockEmbedder, *mockLLM) {
	t.Helper()

	store, _, _ := newTestVectorStore()
	if n > 0 {
		require.NoError(t, store.AddChunks(context.Background(), testChunks("doc.txt", n), testEmbeddings(n, 4)))
	}

	embedder := newMockEmbedder(4)
	llm := &mockLLM{response: "The answer is 42."}
	return NewRAGService(store, embedder, llm), embedder, llm
}

func TestRAGService_QueryWithContext(t *testing.T) {
	rag, embedder, llm := newTestRAG(t, 3)

	result := rag.Query(context.Background(), driving.QueryRequest{
		Query:      "what is the answer?",
		UseContext: true,
	})

	assert.Equal(t, "The answer is 42.", result.Response)
	assert.Equal(t, 3, result.RetrievalCount)
	assert.Len(t, result.Sources, 3)
	assert.Equal(t, 1, embedder.embedCalls)
	assert.Equal(t, 1, llm.generateCalls)
	assert.Equal(t, 0, llm.chatCalls)
	assert.Contains(t, llm.lastPrompt, "Question: what is the answer?")
	assert.Contains(t, llm.lastPrompt, "Source: doc.txt")
	assert.Equal(t, ragSystemPrompt, llm.lastSystem)
	assert.Greater(t, result.Elapsed, time.Duration(0))
}

func TestRAGService_QueryWithoutContextNeverEmbeds(t *testing.T) {
	rag, embedder, llm := newTestRAG(t, 3)

	result := rag.Query(context.Background(), driving.QueryRequest{
		Query:      "hello",
		UseContext: false,
	})

	assert.Equal(t, "The answer is 42.", result.Response)
	assert.Empty(t, result.Sources)
	assert.Equal(t, 0, embedder.embedCalls)
	assert.Equal(t, 0, llm.generateCalls)
	assert.Equal(t, 1, llm.chatCalls)
}

func TestRAGService_EmptyCorpusFallsBackToChat(t *testing.T) {
	rag, embedder, llm := newTestRAG(t, 0)

	result := rag.Query(context.Background(), driving.QueryRequest{
		Query:      "anything indexed?",
		UseContext: true,
	})

	assert.Equal(t, "The answer is 42.", result.Response)
	assert.Equal(t, 0, embedder.embedCalls)
	assert.Equal(t, 1, llm.chatCalls)
}

func TestRAGService_LLMFailureYieldsApology(t *testing.T) {
	rag, _, llm := newTestRAG(t, 2)
	llm.err = errors.New("connection refused")

	result := rag.Query(context.Background(), driving.QueryRequest{
		Query:      "broken?",
		UseContext: true,
	})

	assert.Equal(t, apologyResponse, result.Response)
	assert.NotNil(t, result.Sources)
	assert.Empty(t, result.Sources)
}

func TestRAGService_EmbedFailureYieldsApology(t *testing.T) {
	rag, embedder, _ := newTestRAG(t, 2)
	embedder.err = errors.New("model not loaded")

	result := rag.Query(context.Background(), driving.QueryRequest{
		Query:      "broken?",
		UseContext: true,
	})

	assert.Equal(t, apologyResponse, result.Response)
}

func TestRAGService_NilLLMYieldsApology(t *testing.T) {
	store, _, _ := newTestVectorStore()
	rag := NewRAGService(store, newMockEmbedder(4), nil)

	result := rag.Query(context.Background(), driving.QueryRequest{Query: "hi"})

	assert.Equal(t, apologyResponse, result.Response)
}

func TestRAGService_SourcePreviewTruncated(t *testing.T) {
	store, _, _ := newTestVectorStore()
	ctx := context.Background()

	long := domain.Chunk{
		ID:         "doc.txt_0000",
		SourceFile: "doc.txt",
		Content:    strings.Repeat("x", 500),
	}
	require.NoError(t, store.AddChunks(ctx, []domain.Chunk{long}, testEmbeddings(1, 4)))

	llm := &mockLLM{response: "ok"}
	rag := NewRAGService(store, newMockEmbedder(4), llm)

	result := rag.Query(ctx, driving.QueryRequest{Query: "q", UseContext: true})

	require.Len(t, result.Sources, 1)
	assert.Len(t, result.Sources[0].Content, sourcePreviewChars+3) // "..." suffix
	// The full chunk still reaches the prompt context.
	assert.Contains(t, result.ContextUsed, strings.Repeat("x", 500))
}

func TestRAGService_ContextTruncatedAtLimit(t *testing.T) {
	store, _, _ := newTestVectorStore()
	ctx := context.Background()

	chunks := testChunks("doc.txt", 3)
	for i := range chunks {
		chunks[i].Content = strings.Repeat("y", 2000)
	}
	require.NoError(t, store.AddChunks(ctx, chunks, testEmbeddings(3, 4)))

	llm := &mockLLM{response: "ok"}
	rag := NewRAGService(store, newMockEmbedder(4), llm)

	result := rag.Query(ctx, driving.QueryRequest{Query: "q", UseContext: true})

	assert.True(t, strings.HasSuffix(result.ContextUsed, "...\n[Context truncated]"))
	assert.LessOrEqual(t, len(result.ContextUsed), MaxContextChars+len("...\n[Context truncated]"))
}

func TestRAGService_HistoryInPrompt(t *testing.T) {
	rag, _, llm := newTestRAG(t, 1)

	history := []domain.ChatMessage{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
	}
	rag.Query(context.Background(), driving.QueryRequest{
		Query:      "follow-up",
		History:    history,
		UseContext: true,
	})

	assert.Contains(t, llm.lastPrompt, "Previous conversation:")
	assert.Contains(t, llm.lastPrompt, "User: first question")
	assert.Contains(t, llm.lastPrompt, "Assistant: first answer")
}

func TestRAGService_PlainChatHistoryBounded(t *testing.T) {
	rag, _, llm := newTestRAG(t, 0)

	history := make([]domain.ChatMessage, 12)
	for i := range history {
		history[i] = domain.ChatMessage{Role: "user", Content: "old"}
	}
	rag.Query(context.Background(), driving.QueryRequest{
		Query:      "new question",
		History:    history,
		UseContext: false,
	})

	// System prompt + bounded history + current message.
	require.Len(t, llm.lastMessages, chatHistoryTurns+2)
	assert.Equal(t, "system", llm.lastMessages[0].Role)
	assert.Equal(t, "new question", llm.lastMessages[len(llm.lastMessages)-1].Content)
}

func TestRAGService_QueryStreamEventOrder(t *testing.T) {
	rag, _, _ := newTestRAG(t, 2)

	var events []domain.StreamEvent
	for ev := range rag.QueryStream(context.Background(), driving.QueryRequest{
		Query:      "stream it",
		UseContext: true,
	}) {
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, domain.StreamSources, events[0].Type)
	assert.Len(t, events[0].Sources, 2)

	var text strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		require.Equal(t, domain.StreamChunk, ev.Type)
		text.WriteString(ev.Content)
	}
	assert.Equal(t, "The answer is 42.", strings.TrimSpace(text.String()))

	last := events[len(events)-1]
	assert.Equal(t, domain.StreamComplete, last.Type)
	assert.Equal(t, 2, last.SourceCount)
	assert.Equal(t, len("The answer is 42."), last.TotalLength)
}

func TestRAGService_QueryStreamCancellation(t *testing.T) {
	rag, _, llm := newTestRAG(t, 0)
	llm.response = "One. Two. Three. Four. Five."

	ctx, cancel := context.WithCancel(context.Background())
	events := rag.QueryStream(ctx, driving.QueryRequest{Query: "q", UseContext: false})

	// Take the first chunk, then cancel mid-stream.
	first, ok := <-events
	require.True(t, ok)
	assert.Equal(t, domain.StreamChunk, first.Type)
	cancel()

	var sawComplete bool
	for ev := range events {
		if ev.Type == domain.StreamComplete {
			sawComplete = true
		}
	}
	assert.False(t, sawComplete, "cancelled stream must not emit completion")
}

func TestRAGService_QueryStreamEmptyQuery(t *testing.T) {
	rag, embedder, llm := newTestRAG(t, 3)

	events := rag.QueryStream(context.Background(), driving.QueryRequest{Query: "   ", UseContext: true})

	ev, ok := <-events
	require.True(t, ok)
	assert.Equal(t, domain.StreamError, ev.Type)
	assert.ErrorIs(t, ev.Err, domain.ErrInvalidInput)

	_, ok = <-events
	assert.False(t, ok, "stream must close after the error event")
	assert.Zero(t, embedder.embedCalls)
	assert.Zero(t, llm.generateCalls)
}

func TestRAGService_Health(t *testing.T) {
	rag, embedder, llm := newTestRAG(t, 0)

	h := rag.Health(context.Background())
	assert.True(t, h.LLM)
	assert.True(t, h.Embedder)
	assert.True(t, h.Store)

	llm.pingErr = errors.New("down")
	embedder.pingErr = errors.New("down")

	h = rag.Health(context.Background())
	assert.False(t, h.LLM)
	assert.False(t, h.Embedder)
}

func TestSplitResponseSentences(t *testing.T) {
	sentences := splitResponseSentences("First. Second! Third? Fourth")

	assert.Equal(t, []string{"First.", "Second!", "Third?", "Fourth"}, sentences)
}

func TestSplitResponseSentences_Empty(t *testing.T) {
	assert.Empty(t, splitResponseSentences(""))
	assert.Empty(t, splitResponseSentences("   "))
}
