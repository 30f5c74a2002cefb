package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to the LLM, embedder and store",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	if ragService == nil {
		return errors.New("RAG service not configured")
	}

	health := ragService.Health(cmd.Context())

	printStatus := func(name string, ok bool) {
		if ok {
			cmd.Printf("  %-10s %s\n", name, styles.Success.Render("ok"))
		} else {
			cmd.Printf("  %-10s %s\n", name, styles.Error.Render("unreachable"))
		}
	}

	printStatus("llm", health.LLM)
	printStatus("embedder", health.Embedder)
	printStatus("store", health.Store)

	if !health.LLM || !health.Embedder || !health.Store {
		return errors.New("one or more services are unhealthy")
	}
	return nil
}
