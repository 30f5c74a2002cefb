package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if corpusStore == nil {
		return errors.New("store not configured")
	}

	stats, err := corpusStore.Statistics(cmd.Context())
	if err != nil {
		return fmt.Errorf("statistics failed: %w", err)
	}

	cmd.Println(styles.Title.Render("Corpus statistics"))
	cmd.Printf("  Files:    %d\n", stats.TotalFiles)
	cmd.Printf("  Chunks:   %d\n", stats.TotalChunks)
	cmd.Printf("  Vectors:  %d\n", stats.VectorCount)
	cmd.Printf("  Size:     %.2f MB\n", stats.TotalSizeMB)
	if !stats.LastUpdated.IsZero() {
		cmd.Printf("  Updated:  %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	if len(stats.FileTypes) > 0 {
		cmd.Println("  Types:")
		for ext, count := range stats.FileTypes {
			cmd.Printf("    %-6s %d\n", ext, count)
		}
	}
	return nil
}
