package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpora/internal/core/domain"
	"github.com/custodia-labs/corpora/internal/core/ports/driving"
)

var chatNoContext bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Starts an interactive question-answer loop over the corpus.
Conversation history carries across turns within the session.

Type /sources to toggle source listings, /clear to reset the history,
or /quit to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatNoContext, "no-context", false, "answer without retrieving corpus context")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	if ragService == nil {
		return errors.New("RAG service not configured")
	}

	sessionID := uuid.New().String()
	cmd.Println(styles.Title.Render("corpora chat"))
	cmd.Println(styles.Muted.Render(fmt.Sprintf("session %s - /quit to exit", sessionID[:8])))
	cmd.Println()

	var history []domain.ChatMessage
	showSources := false

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print(styles.Source.Render("you> "))
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/clear":
			history = nil
			cmd.Println(styles.Muted.Render("History cleared."))
			continue
		case "/sources":
			showSources = !showSources
			cmd.Println(styles.Muted.Render(fmt.Sprintf("Source listing: %v", showSources)))
			continue
		}

		result := ragService.Query(cmd.Context(), driving.QueryRequest{
			Query:      line,
			History:    history,
			UseContext: !chatNoContext,
		})

		cmd.Println(result.Response)
		if showSources {
			printSources(cmd, result.Sources)
		}
		cmd.Println()

		history = append(history,
			domain.ChatMessage{Role: "user", Content: line},
			domain.ChatMessage{Role: "assistant", Content: result.Response},
		)
	}
}
