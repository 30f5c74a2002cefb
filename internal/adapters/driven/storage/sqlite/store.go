// Package sqlite persists chunk metadata and file aggregates in SQLite
// behind a bounded connection pool.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/corpora/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driven"
)

var _ driven.ChunkStore = (*Store)(nil)

// Store is the SQLite-backed chunk metadata store.
type Store struct {
	pool *Pool
	path string
}

// NewStore creates a store at dataDir/corpus.db, creating the directory
// and schema as needed. maxConns bounds the connection pool.
func NewStore(dataDir string, maxConns int) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".corpora", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "corpus.db")

	pool, err := NewPool(dbPath, maxConns)
	if err != nil {
		return nil, err
	}

	s := &Store{
		pool: pool,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Pool exposes the connection pool for stats reporting.
func (s *Store) Pool() *Pool {
	return s.pool
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	ctx := context.Background()

	return s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)
		`)
		if err != nil {
			return fmt.Errorf("creating schema_migrations table: %w", err)
		}

		var currentVersion int
		row := conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
		if err := row.Scan(&currentVersion); err != nil {
			return fmt.Errorf("getting current version: %w", err)
		}

		entries, err := fs.ReadDir(fsys, ".")
		if err != nil {
			return fmt.Errorf("reading migrations directory: %w", err)
		}

		var upFiles []string
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".up.sql") {
				upFiles = append(upFiles, entry.Name())
			}
		}
		sort.Strings(upFiles)

		for _, name := range upFiles {
			var version int
			if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
				continue // skip files that don't match the pattern
			}
			if version <= currentVersion {
				continue // already applied
			}

			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				return fmt.Errorf("reading migration %s: %w", name, err)
			}

			if _, err := conn.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("executing migration %s: %w", name, err)
			}
		}

		return nil
	})
}

// UpsertChunks inserts or replaces chunk rows and refreshes the owning
// file records' chunk counts, all in one transaction. The chunk count
// is recomputed from the chunks table so the aggregate never drifts.
func (s *Store) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	return s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (chunk_id, source_file, content, metadata, start_pos, end_pos)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET
				source_file = excluded.source_file,
				content = excluded.content,
				metadata = excluded.metadata,
				start_pos = excluded.start_pos,
				end_pos = excluded.end_pos
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		files := make(map[string]struct{})
		for _, chunk := range chunks {
			metadataJSON, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("marshalling chunk metadata: %w", err)
			}

			if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.SourceFile, chunk.Content,
				string(metadataJSON), chunk.StartPos, chunk.EndPos); err != nil {
				return fmt.Errorf("saving chunk: %w", err)
			}
			files[chunk.SourceFile] = struct{}{}
		}

		now := time.Now().UTC()
		for file := range files {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO files (filepath, filename, chunk_count, ingested_at)
				VALUES (?, ?, (SELECT COUNT(*) FROM chunks WHERE source_file = ?), ?)
				ON CONFLICT(filepath) DO UPDATE SET
					chunk_count = (SELECT COUNT(*) FROM chunks WHERE source_file = excluded.filepath),
					ingested_at = excluded.ingested_at
			`, file, filepath.Base(file), file, now)
			if err != nil {
				return fmt.Errorf("updating file record: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	})
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	var chunk *domain.Chunk

	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `
			SELECT chunk_id, source_file, content, metadata, start_pos, end_pos, created_at
			FROM chunks WHERE chunk_id = ?
		`, id)

		c, err := scanChunkRow(row)
		if err != nil {
			return err
		}
		chunk = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// GetFileChunks returns all chunks for a source file ordered by start
// position ascending.
func (s *Store) GetFileChunks(ctx context.Context, path string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk

	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT chunk_id, source_file, content, metadata, start_pos, end_pos, created_at
			FROM chunks WHERE source_file = ?
			ORDER BY start_pos
		`, path)
		if err != nil {
			return fmt.Errorf("querying chunks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			chunk, err := scanChunk(rows)
			if err != nil {
				return err
			}
			chunks = append(chunks, *chunk)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// FileExists reports whether a file record exists.
func (s *Store) FileExists(ctx context.Context, path string) (bool, error) {
	var exists bool

	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		var one int
		row := conn.QueryRowContext(ctx, "SELECT 1 FROM files WHERE filepath = ?", path)
		if err := row.Scan(&one); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return fmt.Errorf("checking file existence: %w", err)
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GetFile retrieves a file record.
func (s *Store) GetFile(ctx context.Context, path string) (*domain.FileRecord, error) {
	var rec *domain.FileRecord

	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `
			SELECT filepath, filename, file_size, chunk_count, last_modified, ingested_at
			FROM files WHERE filepath = ?
		`, path)

		var r domain.FileRecord
		var lastModified, ingestedAt sql.NullTime
		if err := row.Scan(&r.Filepath, &r.Filename, &r.FileSize, &r.ChunkCount,
			&lastModified, &ingestedAt); err != nil {
			if err == sql.ErrNoRows {
				return domain.ErrNotFound
			}
			return fmt.Errorf("scanning file record: %w", err)
		}

		if lastModified.Valid {
			r.LastModified = lastModified.Time
		}
		if ingestedAt.Valid {
			r.IngestedAt = ingestedAt.Time
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetFileInfo records size and modification time for a file.
func (s *Store) SetFileInfo(ctx context.Context, path string, size int64, modified time.Time) error {
	return s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO files (filepath, filename, file_size, last_modified)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(filepath) DO UPDATE SET
				file_size = excluded.file_size,
				last_modified = excluded.last_modified
		`, path, filepath.Base(path), size, modified.UTC())
		if err != nil {
			return fmt.Errorf("setting file info: %w", err)
		}
		return nil
	})
}

// Statistics computes corpus aggregates from the relational tables.
// VectorCount is left zero; the vector index owns that number.
func (s *Store) Statistics(ctx context.Context) (*domain.Statistics, error) {
	stats := &domain.Statistics{FileTypes: make(map[string]int)}

	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks")
		if err := row.Scan(&stats.TotalChunks); err != nil {
			return fmt.Errorf("counting chunks: %w", err)
		}

		var totalSize sql.NullInt64
		row = conn.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM files")
		if err := row.Scan(&stats.TotalFiles, &totalSize); err != nil {
			return fmt.Errorf("counting files: %w", err)
		}
		stats.TotalSizeMB = float64(totalSize.Int64) / (1024 * 1024)

		var lastUpdated sql.NullTime
		row = conn.QueryRowContext(ctx, "SELECT MAX(ingested_at) FROM files")
		if err := row.Scan(&lastUpdated); err != nil {
			return fmt.Errorf("reading last ingestion time: %w", err)
		}
		if lastUpdated.Valid {
			stats.LastUpdated = lastUpdated.Time
		}

		rows, err := conn.QueryContext(ctx, "SELECT filename FROM files")
		if err != nil {
			return fmt.Errorf("querying filenames: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scanning filename: %w", err)
			}
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
			if ext == "" {
				ext = "unknown"
			}
			stats.FileTypes[ext]++
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Clear deletes all chunk and file rows.
func (s *Store) Clear(ctx context.Context) error {
	return s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
			return fmt.Errorf("clearing chunks: %w", err)
		}
		if _, err := conn.ExecContext(ctx, "DELETE FROM files"); err != nil {
			return fmt.Errorf("clearing files: %w", err)
		}
		return nil
	})
}

// scanChunk scans a chunk from *sql.Rows.
func scanChunk(rows *sql.Rows) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var metadataJSON sql.NullString
	var createdAt sql.NullTime

	if err := rows.Scan(&chunk.ID, &chunk.SourceFile, &chunk.Content,
		&metadataJSON, &chunk.StartPos, &chunk.EndPos, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	return finishChunk(&chunk, metadataJSON, createdAt)
}

// scanChunkRow scans a chunk from *sql.Row.
func scanChunkRow(row *sql.Row) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var metadataJSON sql.NullString
	var createdAt sql.NullTime

	if err := row.Scan(&chunk.ID, &chunk.SourceFile, &chunk.Content,
		&metadataJSON, &chunk.StartPos, &chunk.EndPos, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	return finishChunk(&chunk, metadataJSON, createdAt)
}

func finishChunk(chunk *domain.Chunk, metadataJSON sql.NullString, createdAt sql.NullTime) (*domain.Chunk, error) {
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
		}
	}
	if createdAt.Valid {
		chunk.CreatedAt = createdAt.Time
	}
	return chunk, nil
}
