package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driven"
)

// fakeChunkStore is an in-memory driven.ChunkStore.
type fakeChunkStore struct {
	mu          sync.Mutex
	chunks      map[string]domain.Chunk
	files       map[string]domain.FileRecord
	upsertErr   error
	upsertCalls int
	closed      bool
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{
		chunks: make(map[string]domain.Chunk),
		files:  make(map[string]domain.FileRecord),
	}
}

func (f *fakeChunkStore) UpsertChunks(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, c := range chunks {
		f.chunks[c.ID] = c
		rec := f.files[c.SourceFile]
		rec.Filepath = c.SourceFile
		rec.IngestedAt = time.Now()
		f.files[c.SourceFile] = rec
	}
	return nil
}

func (f *fakeChunkStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (f *fakeChunkStore) GetFileChunks(_ context.Context, filepath string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Chunk
	for _, c := range f.chunks {
		if c.SourceFile == filepath {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) FileExists(_ context.Context, filepath string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.files[filepath]
	return ok, nil
}

func (f *fakeChunkStore) GetFile(_ context.Context, filepath string) (*domain.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.files[filepath]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeChunkStore) SetFileInfo(_ context.Context, filepath string, size int64, modified time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.files[filepath]
	rec.Filepath = filepath
	rec.FileSize = size
	rec.LastModified = modified.UTC()
	f.files[filepath] = rec
	return nil
}

func (f *fakeChunkStore) Statistics(_ context.Context) (*domain.Statistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return &domain.Statistics{
		TotalChunks: len(f.chunks),
		TotalFiles:  len(f.files),
		FileTypes:   map[string]int{},
	}, nil
}

func (f *fakeChunkStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.chunks = make(map[string]domain.Chunk)
	f.files = make(map[string]domain.FileRecord)
	return nil
}

func (f *fakeChunkStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeIndex is an in-memory driven.VectorIndex without persistence.
type fakeIndex struct {
	mu      sync.Mutex
	vectors map[string][]float32
	order   []string
	dims    int
	addErr  error
	closed  bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{vectors: make(map[string][]float32)}
}

func (f *fakeIndex) Add(_ context.Context, ids []string, embeddings [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.addErr != nil {
		return f.addErr
	}
	for i, id := range ids {
		if _, ok := f.vectors[id]; !ok {
			f.order = append(f.order, id)
		}
		f.vectors[id] = embeddings[i]
		f.dims = len(embeddings[i])
	}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, limit int, _ float64) ([]domain.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hits := make([]domain.SearchHit, 0, len(f.order))
	for i, id := range f.order {
		if limit > 0 && i >= limit {
			break
		}
		hits = append(hits, domain.SearchHit{ChunkID: id, Score: 1.0 - float64(i)*0.1})
	}
	return hits, nil
}

func (f *fakeIndex) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vectors)
}

func (f *fakeIndex) Dimensions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dims
}

func (f *fakeIndex) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.vectors = make(map[string][]float32)
	f.order = nil
	f.dims = 0
	return nil
}

func (f *fakeIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// mockEmbedder counts calls and returns a fixed vector.
type mockEmbedder struct {
	mu         sync.Mutex
	embedCalls int
	batchCalls int
	vector     []float32
	err        error
	pingErr    error
}

func newMockEmbedder(dims int) *mockEmbedder {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = 0.5
	}
	return &mockEmbedder{vector: vec}
}

func (m *mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.embedCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchCalls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = m.vector
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int          { return len(m.vector) }
func (m *mockEmbedder) ModelName() string        { return "mock-embedder" }
func (m *mockEmbedder) Ping(context.Context) error { return m.pingErr }
func (m *mockEmbedder) Close() error             { return nil }

// mockLLM records prompts and returns a canned response.
type mockLLM struct {
	mu            sync.Mutex
	response      string
	err           error
	pingErr       error
	generateCalls int
	chatCalls     int
	lastSystem    string
	lastPrompt    string
	lastMessages  []domain.ChatMessage
}

func (m *mockLLM) Generate(_ context.Context, systemPrompt, prompt string, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generateCalls++
	m.lastSystem = systemPrompt
	m.lastPrompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockLLM) Chat(_ context.Context, messages []domain.ChatMessage, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chatCalls++
	m.lastMessages = messages
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockLLM) GenerateStream(ctx context.Context, systemPrompt, prompt string, opts driven.GenerateOptions) (<-chan string, <-chan error) {
	fragments := make(chan string, 1)
	errs := make(chan error, 1)

	resp, err := m.Generate(ctx, systemPrompt, prompt, opts)
	if err != nil {
		errs <- err
	} else {
		fragments <- resp
	}
	close(fragments)
	close(errs)
	return fragments, errs
}

func (m *mockLLM) ModelName() string          { return "mock-llm" }
func (m *mockLLM) Ping(context.Context) error { return m.pingErr }
func (m *mockLLM) Close() error               { return nil }

// testChunks builds n sequential chunks for one source file.
func testChunks(source string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:         domain.ChunkID(source, i),
			SourceFile: source,
			Content:    fmt.Sprintf("chunk %d content", i),
			StartPos:   i * 100,
			EndPos:     i*100 + 90,
		}
	}
	return chunks
}

// testEmbeddings builds n identical embeddings of the given dimension.
func testEmbeddings(n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = float32(i+1) / float32(dims)
		}
		out[i] = vec
	}
	return out
}
