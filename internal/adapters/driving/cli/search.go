package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpora/internal/core/domain"
)

var (
	searchLimit     int
	searchThreshold float64
	searchJSON      bool
)

const searchPreviewChars = 160

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the corpus by semantic similarity",
	Long: `Embeds the query and ranks stored chunks by cosine similarity.
Results below the similarity threshold are omitted.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0.5, "minimum similarity score")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

// searchResult pairs a ranked hit with its chunk content for output.
type searchResult struct {
	ChunkID    string  `json:"chunk_id"`
	SourceFile string  `json:"source_file"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	if corpusStore == nil || embedder == nil {
		return errors.New("search services not configured")
	}

	ctx := cmd.Context()

	query, err := embedder.Embed(ctx, args[0])
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}

	hits, err := corpusStore.Search(ctx, query, searchLimit, searchThreshold)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	results := make([]searchResult, 0, len(hits))
	for _, hit := range hits {
		chunk, err := corpusStore.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return fmt.Errorf("load chunk %s: %w", hit.ChunkID, err)
		}
		results = append(results, searchResult{
			ChunkID:    chunk.ID,
			SourceFile: chunk.SourceFile,
			Score:      hit.Score,
			Content:    chunk.Content,
		})
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println(styles.Title.Render("Results:"))
	cmd.Println()
	for i, r := range results {
		preview := r.Content
		if len(preview) > searchPreviewChars {
			preview = strings.TrimSpace(preview[:searchPreviewChars]) + "..."
		}
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, styles.Source.Render(r.SourceFile), r.Score)
		cmd.Printf("      %s\n", styles.Muted.Render(preview))
		cmd.Println()
	}
	return nil
}
