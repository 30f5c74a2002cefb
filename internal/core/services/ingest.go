package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/corpora/internal/chunker"
	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driven"
	"github.com/custodia-labs/corpora/internal/core/ports/driving"
	"github.com/custodia-labs/corpora/internal/logger"
)

var _ driving.IngestService = (*IngestService)(nil)

const (
	// embedBatchSize bounds how many chunks are embedded per provider
	// call so ingestion never fans out unbounded work.
	embedBatchSize = 16

	// embedRateLimit caps embedding batch calls per second to avoid
	// overwhelming a local inference server during bulk ingestion.
	embedRateLimit = rate.Limit(10)
)

// supportedExtensions lists file types ingested as plain text. Rich
// formats (PDF, DOCX) are handled by external extractors and arrive
// here already converted.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// IngestService turns files into embedded chunks in the store.
type IngestService struct {
	store    driving.CorpusStore
	embedder driven.EmbeddingService
	chunker  *chunker.Chunker
	limiter  *rate.Limiter
}

// NewIngestService creates an ingestion service over the given store,
// embedding provider and chunker.
func NewIngestService(store driving.CorpusStore, embedder driven.EmbeddingService, ch *chunker.Chunker) *IngestService {
	return &IngestService{
		store:    store,
		embedder: embedder,
		chunker:  ch,
		limiter:  rate.NewLimiter(embedRateLimit, 1),
	}
}

// IngestFile reads, chunks, embeds and stores one file. A file that is
// already ingested and has not been modified since is skipped unless
// force is set.
func (s *IngestService) IngestFile(ctx context.Context, path string, force bool) (*driving.IngestResult, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, path)
	}
	if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
		return nil, fmt.Errorf("%w: unsupported file type %s", domain.ErrInvalidInput, filepath.Ext(path))
	}

	if !force {
		upToDate, err := s.upToDate(ctx, path, info)
		if err != nil {
			return nil, err
		}
		if upToDate {
			logger.Info("Skipping %s: already ingested", path)
			return &driving.IngestResult{Filepath: path, Skipped: true}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	chunks := s.chunker.Chunk(string(data), path, nil)
	if len(chunks) == 0 {
		logger.Warn("No chunks produced for %s: content too short", path)
		return &driving.IngestResult{Filepath: path, Skipped: true}, nil
	}

	embeddings, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if err := s.store.AddChunks(ctx, chunks, embeddings); err != nil {
		return nil, err
	}
	if err := s.store.SetFileInfo(ctx, path, info.Size(), info.ModTime()); err != nil {
		return nil, err
	}

	logger.Info("Ingested %s: %d chunks", path, len(chunks))
	return &driving.IngestResult{Filepath: path, Chunks: len(chunks)}, nil
}

// IngestDir ingests every supported file under dir. Unsupported files
// are skipped with a warning; per-file failures abort the walk.
func (s *IngestService) IngestDir(ctx context.Context, dir string, force bool) ([]driving.IngestResult, error) {
	var results []driving.IngestResult

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			logger.Warn("Skipping unsupported file %s", path)
			return nil
		}

		res, err := s.IngestFile(ctx, path, force)
		if err != nil {
			return err
		}
		results = append(results, *res)
		return nil
	})
	if err != nil {
		return results, fmt.Errorf("walking %s: %w", dir, err)
	}

	return results, nil
}

// upToDate reports whether path is already ingested with a recorded
// modification time at or after the file's current one.
func (s *IngestService) upToDate(ctx context.Context, path string, info os.FileInfo) (bool, error) {
	exists, err := s.store.FileExists(ctx, path)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	rec, err := s.store.GetFile(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return !rec.LastModified.IsZero() && !rec.LastModified.Before(info.ModTime().UTC()), nil
}

// embedChunks embeds chunk contents in bounded, rate-limited batches.
func (s *IngestService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Content
		}

		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding batch: %w", err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
				domain.ErrDimensionMismatch, len(batch), len(texts))
		}

		embeddings = append(embeddings, batch...)
	}

	return embeddings, nil
}
