package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all chunks, files and embeddings",
	Long: `Irreversibly deletes the entire corpus: chunk records, file
records and stored embeddings. Prompts for confirmation unless --yes
is given.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, _ []string) error {
	if corpusStore == nil {
		return errors.New("store not configured")
	}

	if !clearYes {
		cmd.Print(styles.Warning.Render("This deletes the entire corpus. Continue? [y/N]: "))
		scanner := bufio.NewScanner(cmd.InOrStdin())
		if !scanner.Scan() {
			return scanner.Err()
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			cmd.Println("Aborted.")
			return nil
		}
	}

	if err := corpusStore.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	cmd.Println(styles.Success.Render("Corpus cleared."))
	return nil
}
