package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driving"
)

var (
	askNoContext   bool
	askStream      bool
	askShowSources bool
	askMaxSources  int
	askThreshold   float64
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the corpus",
	Long: `Retrieves the most relevant chunks for the question and generates
an answer grounded on them. With --no-context the question goes to the
LLM directly without retrieval.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNoContext, "no-context", false, "answer without retrieving corpus context")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it is generated")
	askCmd.Flags().BoolVar(&askShowSources, "sources", false, "list the retrieved sources after the answer")
	askCmd.Flags().IntVarP(&askMaxSources, "limit", "n", 0, "maximum number of sources (default 5)")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", 0, "minimum similarity score (default 0.5)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if ragService == nil {
		return errors.New("RAG service not configured")
	}

	req := driving.QueryRequest{
		Query:               args[0],
		MaxSources:          askMaxSources,
		SimilarityThreshold: askThreshold,
		UseContext:          !askNoContext,
	}

	if askStream {
		return streamAnswer(cmd, req)
	}

	result := ragService.Query(cmd.Context(), req)
	cmd.Println(result.Response)
	if askShowSources {
		printSources(cmd, result.Sources)
	}
	cmd.Println()
	cmd.Println(styles.Muted.Render(fmt.Sprintf("(%d sources, %.2fs)", result.RetrievalCount, result.Elapsed.Seconds())))
	return nil
}

func streamAnswer(cmd *cobra.Command, req driving.QueryRequest) error {
	var sources []domain.Source

	for event := range ragService.QueryStream(cmd.Context(), req) {
		switch event.Type {
		case domain.StreamSources:
			sources = event.Sources
		case domain.StreamChunk:
			cmd.Print(event.Content)
		case domain.StreamComplete:
			cmd.Println()
			if askShowSources {
				printSources(cmd, sources)
			}
			cmd.Println()
			cmd.Println(styles.Muted.Render(fmt.Sprintf("(%d sources, %.2fs)", event.SourceCount, event.Elapsed.Seconds())))
		case domain.StreamError:
			return fmt.Errorf("query failed: %w", event.Err)
		}
	}
	return nil
}

func printSources(cmd *cobra.Command, sources []domain.Source) {
	if len(sources) == 0 {
		return
	}
	cmd.Println()
	cmd.Println(styles.Title.Render("Sources:"))
	for i, s := range sources {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, styles.Source.Render(s.SourceFile), s.SimilarityScore)
		cmd.Printf("      %s\n", styles.Muted.Render(s.Content))
	}
}
