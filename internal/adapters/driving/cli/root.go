// Package cli implements the corpora command-line interface.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpora/internal/core/ports/driven"
	"github.com/custodia-labs/corpora/internal/core/ports/driving"
	"github.com/custodia-labs/corpora/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services holds the service implementations the commands run against.
// All dependencies are injected by the composition root; commands never
// construct their own.
type Services struct {
	RAG      driving.RAGService
	Ingest   driving.IngestService
	Store    driving.CorpusStore
	Embedder driven.EmbeddingService
	Watch    func(ctx context.Context, dir string) error
}

var (
	ragService    driving.RAGService
	ingestService driving.IngestService
	corpusStore   driving.CorpusStore
	embedder      driven.EmbeddingService
	watchFunc     func(ctx context.Context, dir string) error
)

var (
	flagVerbose bool
	flagDataDir string
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "corpora",
	Short: "Local document retrieval and question answering",
	Long: `Corpora ingests local documents into a searchable corpus and
answers questions about them using retrieval-augmented generation.

Documents are chunked, embedded and stored locally; queries retrieve
the most relevant chunks and feed them to an LLM as context.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(flagVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default ~/.corpora/data)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config directory (default ~/.corpora)")
}

// SetServices injects the service implementations used by the commands.
func SetServices(s *Services) {
	if s == nil {
		return
	}
	ragService = s.RAG
	ingestService = s.Ingest
	corpusStore = s.Store
	embedder = s.Embedder
	watchFunc = s.Watch
}

// DataDir returns the data directory selected on the command line.
func DataDir() string {
	return flagDataDir
}

// ConfigDir returns the config directory selected on the command line.
func ConfigDir() string {
	return flagConfig
}

// Execute parses flags and runs the selected command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ParseFlags resolves persistent flags without running a command. The
// composition root uses it to learn the data and config directories
// before constructing services.
func ParseFlags(args []string) {
	// Errors surface again during Execute; ignore them here.
	_ = rootCmd.PersistentFlags().Parse(args)
}
