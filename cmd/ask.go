package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"smartnotes/internal/assistant"
	"smartnotes/internal/logger"
	"smartnotes/internal/notes"
)

var askCmd = &cobra.Command{
	Use:   "ask [summary-id] [question]...",
	Short: "Ask the AI assistant about a summary",
	Long: `Ask a question about a stored summary. The summary's pages are sent to the
OpenAI chat model (OPENAI_MODEL) as context and the conversation is stored.

Pass --chat with the chat ID printed by a previous answer to continue that
conversation.

Required environment variables:
  OPENAI_API_KEY - OpenAI API key`,
	Example: `  # Start a conversation
  smartnotes ask 6f1c... "What is the second law of thermodynamics?"

  # Follow up in the same chat
  smartnotes ask 6f1c... --chat 9a2b... "Give an example"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().String("chat", "", "Continue an existing chat")
	askCmd.Flags().Int("timeout", 120, "Request timeout in seconds")
	askCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ask")

	chatID, _ := cmd.Flags().GetString("chat")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	summaryID := args[0]
	question := strings.Join(args[1:], " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireAssistant(); err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	active, err := openActiveStore(ctx, cfg, cmd, log)
	if err != nil {
		return err
	}
	defer active.Close()

	svc, err := assistant.New(cfg.OpenAIAPIKey, active.store, assistant.Config{Model: cfg.OpenAIModel})
	if err != nil {
		return err
	}

	answer, err := svc.Ask(ctx, assistant.AskRequest{
		UserID:    active.userID,
		SummaryID: summaryID,
		ChatID:    chatID,
		Question:  question,
	})
	if err != nil {
		return handleAskError(err, log)
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), answer)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.Text)
	if answer.Truncated {
		fmt.Fprintln(cmd.ErrOrStderr(), "Note: the summary was too long and only its beginning was sent to the assistant.")
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Chat: %s\n", answer.ChatID)
	return nil
}

func handleAskError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Assistant request failed")

	switch {
	case errors.Is(err, assistant.ErrEmptyQuestion):
		return fmt.Errorf("please ask a question")
	case errors.Is(err, notes.ErrNotFound):
		return fmt.Errorf("summary or chat not found: %w", err)
	case errors.Is(err, assistant.ErrNoAnswer):
		return fmt.Errorf("the assistant did not answer, please try again")
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("assistant request timed out, try increasing --timeout")
	}
	return fmt.Errorf("assistant request failed: %w", err)
}
