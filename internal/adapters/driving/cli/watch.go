package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and ingest changed documents",
	Long: `Watches the given directory for created or modified documents and
ingests them automatically. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchFunc == nil {
		return errors.New("watch service not configured")
	}

	dir := args[0]
	cmd.Println(styles.Title.Render(fmt.Sprintf("Watching %s (Ctrl+C to stop)", dir)))

	if err := watchFunc(cmd.Context(), dir); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
