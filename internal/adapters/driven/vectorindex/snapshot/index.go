// Package snapshot provides an in-memory vector index made durable via
// an atomic snapshot file. Search is a brute-force cosine scan; there is
// no approximate index structure.
package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driven"
	"github.com/custodia-labs/corpora/internal/logger"
)

var _ driven.VectorIndex = (*Index)(nil)

// Snapshot file format: magic, version, entry count, then per entry the
// id length, id bytes, vector length and little-endian float32 values.
const (
	snapshotMagic   = "CSNP"
	snapshotVersion = uint32(1)
)

// Index holds chunk-id to embedding mappings in memory. All embeddings
// share one dimension, fixed by the first vector added.
type Index struct {
	path string

	mu      sync.RWMutex
	vectors map[string][]float32
	// order preserves insertion order so equal-score search results
	// keep a stable tie-break.
	order []string
	dims  int

	// saveMu serializes snapshot writes. Savers share one temp path, and
	// an unserialized pair could truncate each other's temp file or
	// rename a stale encode over a newer one.
	saveMu sync.Mutex
}

// Open loads the index from path, starting empty when no snapshot
// exists. A leftover temp file from an interrupted write is discarded.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	// An interrupted write leaves a temp file behind; the real snapshot
	// is still the last fully-written state.
	_ = os.Remove(tempPath(path))

	idx := &Index{
		path:    path,
		vectors: make(map[string][]float32),
	}

	if err := idx.load(); err != nil {
		return nil, err
	}

	return idx, nil
}

// Add inserts or replaces embeddings for the given chunk IDs, then
// snapshots the map. A length mismatch or a vector whose dimension
// differs from the index's fails with domain.ErrDimensionMismatch
// before any mutation. A snapshot write failure is logged and leaves
// the in-memory map intact; durability lags until the next write.
func (idx *Index) Add(ctx context.Context, ids []string, embeddings [][]float32) error {
	if len(ids) != len(embeddings) {
		return fmt.Errorf("%w: %d ids, %d embeddings", domain.ErrDimensionMismatch, len(ids), len(embeddings))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	dims := idx.dims
	for _, emb := range embeddings {
		if len(emb) == 0 {
			idx.mu.Unlock()
			return fmt.Errorf("%w: empty embedding", domain.ErrDimensionMismatch)
		}
		if dims == 0 {
			dims = len(emb)
		}
		if len(emb) != dims {
			idx.mu.Unlock()
			return fmt.Errorf("%w: got dimension %d, store uses %d", domain.ErrDimensionMismatch, len(emb), dims)
		}
	}

	idx.dims = dims
	for i, id := range ids {
		if _, exists := idx.vectors[id]; !exists {
			idx.order = append(idx.order, id)
		}
		idx.vectors[id] = embeddings[i]
	}
	idx.mu.Unlock()

	if err := idx.save(); err != nil {
		logger.Error("Snapshot write failed, index remains in memory: %v", err)
	}
	return nil
}

// Search computes cosine similarity against every stored embedding,
// keeps hits at or above threshold, sorts descending by score and
// truncates to limit. Ties keep insertion order. An empty index returns
// an empty result.
func (idx *Index) Search(ctx context.Context, query []float32, limit int, threshold float64) ([]domain.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 {
		return []domain.SearchHit{}, nil
	}

	hits := make([]domain.SearchHit, 0, len(idx.vectors))
	for _, id := range idx.order {
		score := cosineSimilarity(query, idx.vectors[id])
		if score >= threshold {
			hits = append(hits, domain.SearchHit{ChunkID: id, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len returns the number of embeddings held.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Dimensions returns the fixed embedding dimension, 0 while empty.
func (idx *Index) Dimensions() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dims
}

// Clear empties the map and persists the empty snapshot.
func (idx *Index) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.vectors = make(map[string][]float32)
	idx.order = nil
	idx.dims = 0
	idx.mu.Unlock()

	return idx.save()
}

// Close persists the current state.
func (idx *Index) Close() error {
	return idx.save()
}

// load reads the snapshot file; a missing file starts empty, a corrupt
// one is logged and ignored so the index never fails to open.
func (idx *Index) load() error {
	data, err := os.ReadFile(idx.path)
	if os.IsNotExist(err) {
		logger.Info("No vector snapshot at %s, starting empty", idx.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	vectors, order, dims, err := decodeSnapshot(data)
	if err != nil {
		logger.Warn("Discarding unreadable vector snapshot %s: %v", idx.path, err)
		return nil
	}

	idx.vectors = vectors
	idx.order = order
	idx.dims = dims
	logger.Info("Loaded %d vectors from snapshot", len(vectors))
	return nil
}

// save writes the snapshot atomically: serialize a copy taken under the
// read lock, write to a temp file, fsync, rename. A crash mid-write
// leaves the previous snapshot untouched. saveMu keeps whole saves
// ordered, so the rename that lands last always carries the newest
// encode and the durable file never regresses below acknowledged state.
func (idx *Index) save() error {
	idx.saveMu.Lock()
	defer idx.saveMu.Unlock()

	idx.mu.RLock()
	data := encodeSnapshot(idx.vectors, idx.order)
	idx.mu.RUnlock()

	tmp := tempPath(idx.path)

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing snapshot: %w", err)
	}

	if err := os.Rename(tmp, idx.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

func tempPath(path string) string {
	return path + ".tmp"
}

func encodeSnapshot(vectors map[string][]float32, order []string) []byte {
	size := len(snapshotMagic) + 4 + 8
	for _, id := range order {
		size += 4 + len(id) + 4 + len(vectors[id])*4
	}

	buf := make([]byte, 0, size)
	buf = append(buf, snapshotMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, snapshotVersion)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(order)))

	for _, id := range order {
		vec := vectors[id]
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(id)))
		buf = append(buf, id...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vec)))
		for _, v := range vec {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return buf
}

func decodeSnapshot(data []byte) (map[string][]float32, []string, int, error) {
	header := len(snapshotMagic) + 4 + 8
	if len(data) < header {
		return nil, nil, 0, fmt.Errorf("snapshot too short: %d bytes", len(data))
	}
	if string(data[:len(snapshotMagic)]) != snapshotMagic {
		return nil, nil, 0, fmt.Errorf("bad snapshot magic")
	}

	off := len(snapshotMagic)
	version := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if version != snapshotVersion {
		return nil, nil, 0, fmt.Errorf("unsupported snapshot version %d", version)
	}

	count := binary.LittleEndian.Uint64(data[off:])
	off += 8

	vectors := make(map[string][]float32, count)
	order := make([]string, 0, count)
	dims := 0

	for i := uint64(0); i < count; i++ {
		if off+4 > len(data) {
			return nil, nil, 0, fmt.Errorf("truncated snapshot at entry %d", i)
		}
		idLen := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4

		if off+idLen+4 > len(data) {
			return nil, nil, 0, fmt.Errorf("truncated snapshot at entry %d", i)
		}
		id := string(data[off : off+idLen])
		off += idLen

		vecLen := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4

		if off+vecLen*4 > len(data) {
			return nil, nil, 0, fmt.Errorf("truncated snapshot at entry %d", i)
		}
		vec := make([]float32, vecLen)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}

		if dims == 0 {
			dims = vecLen
		}
		vectors[id] = vec
		order = append(order, id)
	}

	return vectors, order, dims, nil
}

// cosineSimilarity returns dot(a,b) / (|a|*|b|), or 0 when either norm
// is zero or the lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
