package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"smartnotes/internal/notes"
)

var summariesCmd = &cobra.Command{
	Use:     "summaries",
	Aliases: []string{"summary"},
	Short:   "Browse and manage stored summaries",
}

var summariesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unsorted summaries, or the summaries of one folder",
	Args:  cobra.NoArgs,
	RunE:  runSummariesList,
}

var summariesShowCmd = &cobra.Command{
	Use:   "show [summary-id]",
	Short: "Print a summary page by page",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummariesShow,
}

var summariesDeleteCmd = &cobra.Command{
	Use:   "delete [summary-id]",
	Short: "Delete a summary with its pages and chats",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummariesDelete,
}

var summariesUnfileCmd = &cobra.Command{
	Use:   "unfile [summary-id]",
	Short: "Take a summary out of its folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummariesUnfile,
}

// SummaryOutput represents a summary with its pages when --json flag is used
type SummaryOutput struct {
	notes.Summary
	Pages []notes.Page `json:"pages"`
}

func init() {
	rootCmd.AddCommand(summariesCmd)
	summariesCmd.AddCommand(summariesListCmd, summariesShowCmd, summariesDeleteCmd, summariesUnfileCmd)

	summariesListCmd.Flags().String("folder", "", "List the summaries of this folder instead of unsorted ones")
	summariesListCmd.Flags().Bool("json", false, "Output as JSON")
	summariesShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSummariesList(cmd *cobra.Command, args []string) error {
	folderID, _ := cmd.Flags().GetString("folder")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withStore(cmd, "summaries", func(ctx context.Context, active *activeStore) error {
		var summaries []notes.Summary
		var err error
		if folderID != "" {
			summaries, err = active.store.ListSummariesByFolder(ctx, active.userID, folderID)
		} else {
			summaries, err = active.store.ListUnsortedSummaries(ctx, active.userID)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), summaries)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No summaries.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tPAGES\tCREATED")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.PageCount, formatDate(s.CreatedAt))
		}
		return w.Flush()
	})
}

func runSummariesShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withStore(cmd, "summaries", func(ctx context.Context, active *activeStore) error {
		summary, pages, err := loadOwnedSummary(ctx, active, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), SummaryOutput{Summary: *summary, Pages: pages})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "=== %s ===\n", summary.Title)
		fmt.Fprintf(out, "Created: %s\n", formatDate(summary.CreatedAt))
		if summary.Unsorted() {
			fmt.Fprintln(out, "Folder: (unsorted)")
		} else {
			fmt.Fprintf(out, "Folder: %s\n", summary.FolderID)
		}
		fmt.Fprintf(out, "Pages: %d\n\n", summary.PageCount)

		texts := make([]string, len(pages))
		for i, p := range pages {
			texts[i] = p.RecognizedText
		}
		_, err = fmt.Fprint(out, formatPages(texts))
		return err
	})
}

func runSummariesDelete(cmd *cobra.Command, args []string) error {
	return withStore(cmd, "summaries", func(ctx context.Context, active *activeStore) error {
		if err := active.store.DeleteSummary(ctx, active.userID, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted summary %s\n", args[0])
		return nil
	})
}

func runSummariesUnfile(cmd *cobra.Command, args []string) error {
	return withStore(cmd, "summaries", func(ctx context.Context, active *activeStore) error {
		if err := active.store.RemoveSummaryFromFolder(ctx, active.userID, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Summary %s is now unsorted\n", args[0])
		return nil
	})
}

// loadOwnedSummary returns the summary and its pages if the session's user owns it.
func loadOwnedSummary(ctx context.Context, active *activeStore, summaryID string) (*notes.Summary, []notes.Page, error) {
	summary, err := active.store.GetSummary(ctx, summaryID)
	if err == nil && summary.UserID != active.userID {
		err = notes.ErrNotFound
	}
	if errors.Is(err, notes.ErrNotFound) {
		return nil, nil, fmt.Errorf("summary %s not found", summaryID)
	}
	if err != nil {
		return nil, nil, err
	}

	pages, err := active.store.ListPages(ctx, summary.ID)
	if err != nil {
		return nil, nil, err
	}
	return summary, pages, nil
}
