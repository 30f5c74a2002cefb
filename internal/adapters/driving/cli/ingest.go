package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ingestForce bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest a document or directory into the corpus",
	Long: `Chunks, embeds and stores the given file, or every supported file
under the given directory. Unchanged files are skipped unless --force
is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "re-ingest files even if unchanged")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}

	ctx := cmd.Context()

	if info.IsDir() {
		results, err := ingestService.IngestDir(ctx, path, ingestForce)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}

		ingested, skipped, chunks := 0, 0, 0
		for _, r := range results {
			if r.Skipped {
				skipped++
				continue
			}
			ingested++
			chunks += r.Chunks
			cmd.Printf("  %s %s (%d chunks)\n", styles.Success.Render("+"), r.Filepath, r.Chunks)
		}
		cmd.Println(styles.Title.Render(fmt.Sprintf("Ingested %d files (%d chunks), skipped %d unchanged.", ingested, chunks, skipped)))
		return nil
	}

	result, err := ingestService.IngestFile(ctx, path, ingestForce)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	if result.Skipped {
		cmd.Println(styles.Muted.Render(fmt.Sprintf("%s unchanged, skipped.", path)))
		return nil
	}
	cmd.Println(styles.Success.Render(fmt.Sprintf("Ingested %s (%d chunks).", path, result.Chunks)))
	return nil
}
