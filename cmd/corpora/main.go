// Command corpora is the entry point for the corpora CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/corpora/internal/adapters/driven/config/file"
	ollamaembed "github.com/custodia-labs/corpora/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/corpora/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/custodia-labs/corpora/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/corpora/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/corpora/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/corpora/internal/adapters/driven/vectorindex/snapshot"
	"github.com/custodia-labs/corpora/internal/adapters/driving/cli"
	"github.com/custodia-labs/corpora/internal/chunker"
	"github.com/custodia-labs/corpora/internal/core/ports/driven"
	"github.com/custodia-labs/corpora/internal/core/services"
	"github.com/custodia-labs/corpora/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env if present; real environment takes precedence.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Resolve directories from flags before building services.
	cli.ParseFlags(os.Args[1:])

	cfg, err := file.NewConfigStore(cli.ConfigDir())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dataDir := cli.DataDir()
	if dataDir == "" {
		if dataDir = cfg.GetString("storage.data_dir"); dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			dataDir = filepath.Join(home, ".corpora", "data")
		}
	}

	maxConns := cfg.GetInt("storage.max_connections")
	chunkStore, err := sqlite.NewStore(dataDir, maxConns)
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}

	index, err := snapshot.Open(filepath.Join(dataDir, "vectors.snap"))
	if err != nil {
		chunkStore.Close()
		return fmt.Errorf("open vector index: %w", err)
	}

	store := services.NewVectorStore(chunkStore, index)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("store close: %v", err)
		}
	}()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()

	llm, err := buildLLM(cfg)
	if err != nil {
		return err
	}
	defer llm.Close()

	ch := chunker.New(chunkerOptions(cfg)...)
	ingest := services.NewIngestService(store, embedder, ch)
	watcher := services.NewWatcher(ingest)

	cli.SetServices(&cli.Services{
		RAG:      services.NewRAGService(store, embedder, llm),
		Ingest:   ingest,
		Store:    store,
		Embedder: embedder,
		Watch:    watcher.Watch,
	})

	return cli.Execute(ctx)
}

func buildEmbedder(cfg *file.ConfigStore) (driven.EmbeddingService, error) {
	provider := cfg.GetString("embedding.provider")
	if provider == "" {
		provider = "ollama"
	}

	switch provider {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			key = cfg.GetString("embedding.api_key")
		}
		return openaiembed.NewEmbeddingService(key, cfg.GetString("embedding.model"))
	case "ollama":
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    cfg.GetString("embedding.base_url"),
			Model:      cfg.GetString("embedding.model"),
			Dimensions: cfg.GetInt("embedding.dimensions"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

func buildLLM(cfg *file.ConfigStore) (driven.LLMService, error) {
	provider := cfg.GetString("llm.provider")
	if provider == "" {
		provider = "ollama"
	}

	switch provider {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			key = cfg.GetString("llm.api_key")
		}
		return openaillm.NewLLMService(key, cfg.GetString("llm.model"))
	case "ollama":
		return ollamallm.NewLLMService(ollamallm.Config{
			BaseURL: cfg.GetString("llm.base_url"),
			Model:   cfg.GetString("llm.model"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func chunkerOptions(cfg *file.ConfigStore) []chunker.Option {
	var opts []chunker.Option
	if size := cfg.GetInt("chunking.size"); size > 0 {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap := cfg.GetInt("chunking.overlap"); overlap > 0 {
		opts = append(opts, chunker.WithOverlap(overlap))
	}
	if minSize := cfg.GetInt("chunking.min_size"); minSize > 0 {
		opts = append(opts, chunker.WithMinChunkSize(minSize))
	}
	return opts
}
