// Package chunker splits raw text into overlapping chunks suitable for
// embedding. It prefers sentence boundaries and falls back to fixed-size
// character windows when sentences pack badly.
package chunker

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/corpora/internal/core/domain"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultMinChunkSize = 100
)

// oversizeFactor triggers the character fallback: if any sentence-based
// chunk exceeds chunkSize * oversizeFactor, re-chunk by fixed windows.
const oversizeFactor = 1.5

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	blankLines    = regexp.MustCompile(`\n\s*\n`)
	// sentenceEnd matches the whitespace after ., ! or ? so a split
	// keeps the terminator with its sentence.
	sentenceEnd = regexp.MustCompile(`([.!?])\s+`)
)

// Chunker splits text into chunks with stable, deterministic IDs.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.chunkOverlap = overlap
		}
	}
}

// WithMinChunkSize sets the minimum size for a chunk to be kept.
func WithMinChunkSize(min int) Option {
	return func(c *Chunker) {
		if min > 0 {
			c.minChunkSize = min
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		minChunkSize: DefaultMinChunkSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave the window a positive step.
	if c.chunkOverlap >= c.chunkSize {
		c.chunkOverlap = c.chunkSize / 4
	}

	return c
}

// Chunk splits text into an ordered sequence of chunks for sourceFile.
// Metadata is copied into every chunk alongside chunk_number,
// total_length and word_count. Text whose cleaned length is below the
// minimum chunk size yields an empty result. The operation is
// deterministic for identical inputs and configuration.
func (c *Chunker) Chunk(text, sourceFile string, metadata map[string]any) []domain.Chunk {
	if len(strings.TrimSpace(text)) < c.minChunkSize {
		return nil
	}

	cleaned := cleanText(text)

	chunks := c.chunkBySentences(cleaned, sourceFile, metadata)

	// Sentence packing can leave a chunk far past the target when a
	// single sentence is huge. Fall back to fixed windows in that case.
	for _, ch := range chunks {
		if float64(len(ch.Content)) > float64(c.chunkSize)*oversizeFactor {
			return c.chunkByCharacters(cleaned, sourceFile, metadata)
		}
	}

	return chunks
}

// cleanText normalises whitespace before chunking.
func cleanText(text string) string {
	text = blankLines.ReplaceAllString(text, "\n")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// splitSentences splits cleaned text on sentence terminators followed by
// whitespace, keeping the terminator with its sentence.
func splitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")

	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// chunkBySentences greedily packs sentences up to the chunk size. Each
// new chunk starts with the trailing overlap characters of the previous
// one, so the overlap is character-level rather than sentence-level.
func (c *Chunker) chunkBySentences(text, sourceFile string, metadata map[string]any) []domain.Chunk {
	sentences := splitSentences(text)

	var chunks []domain.Chunk
	var current string
	currentStart := 0
	seq := 0

	for _, sentence := range sentences {
		if len(current)+len(sentence) > c.chunkSize && current != "" {
			chunks = append(chunks, c.newChunk(
				strings.TrimSpace(current), sourceFile, metadata, seq,
				currentStart, currentStart+len(current)))

			overlapStart := len(current) - c.chunkOverlap
			if overlapStart < 0 {
				overlapStart = 0
			}
			current = current[overlapStart:] + " " + sentence
			currentStart += overlapStart
			seq++
			continue
		}

		if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
	}

	if trimmed := strings.TrimSpace(current); trimmed != "" && len(trimmed) >= c.minChunkSize {
		chunks = append(chunks, c.newChunk(
			trimmed, sourceFile, metadata, seq,
			currentStart, currentStart+len(current)))
	}

	return chunks
}

// chunkByCharacters is the fallback: fixed-size windows stepped by
// chunkSize - chunkOverlap. Windows whose trimmed content is below the
// minimum size are dropped.
func (c *Chunker) chunkByCharacters(text, sourceFile string, metadata map[string]any) []domain.Chunk {
	step := c.chunkSize - c.chunkOverlap

	var chunks []domain.Chunk
	seq := 0

	for i := 0; i < len(text); i += step {
		end := i + c.chunkSize
		if end > len(text) {
			end = len(text)
		}

		window := strings.TrimSpace(text[i:end])
		if len(window) < c.minChunkSize {
			continue
		}

		chunks = append(chunks, c.newChunk(window, sourceFile, metadata, seq, i, end))
		seq++
	}

	return chunks
}

func (c *Chunker) newChunk(content, sourceFile string, metadata map[string]any, seq, startPos, endPos int) domain.Chunk {
	md := make(map[string]any, len(metadata)+3)
	for k, v := range metadata {
		md[k] = v
	}
	md["chunk_number"] = seq
	md["total_length"] = len(content)
	md["word_count"] = len(strings.Fields(content))

	return domain.Chunk{
		ID:         domain.ChunkID(sourceFile, seq),
		SourceFile: sourceFile,
		Content:    content,
		StartPos:   startPos,
		EndPos:     endPos,
		Metadata:   md,
	}
}
