package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"smartnotes/internal/logger"
)

const storeTimeout = 30 * time.Second

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Manage folders of summaries",
}

var foldersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders, newest first",
	Args:  cobra.NoArgs,
	RunE:  runFoldersList,
}

var foldersCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runFoldersCreate,
}

var foldersDeleteCmd = &cobra.Command{
	Use:   "delete [folder-id]",
	Short: "Delete a folder",
	Long: `Delete a folder. Its summaries become unsorted unless --with-summaries is
given, in which case they are deleted together with their pages and chats.`,
	Args: cobra.ExactArgs(1),
	RunE: runFoldersDelete,
}

var foldersAddCmd = &cobra.Command{
	Use:   "add [folder-id] [summary-id]...",
	Short: "Move summaries into a folder",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runFoldersAdd,
}

func init() {
	rootCmd.AddCommand(foldersCmd)
	foldersCmd.AddCommand(foldersListCmd, foldersCreateCmd, foldersDeleteCmd, foldersAddCmd)

	foldersListCmd.Flags().Bool("json", false, "Output as JSON")
	foldersCreateCmd.Flags().Bool("json", false, "Output as JSON")
	foldersDeleteCmd.Flags().Bool("with-summaries", false, "Also delete the folder's summaries")
}

// withStore runs fn against the active session's store.
func withStore(cmd *cobra.Command, component string, fn func(ctx context.Context, active *activeStore) error) error {
	log := logger.WithComponent(component)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(storeTimeout, log)
	defer cancel()

	active, err := openActiveStore(ctx, cfg, cmd, log)
	if err != nil {
		return err
	}
	defer active.Close()

	return fn(ctx, active)
}

func runFoldersList(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withStore(cmd, "folders", func(ctx context.Context, active *activeStore) error {
		folders, err := active.store.ListFolders(ctx, active.userID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), folders)
		}
		if len(folders) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No folders yet. Create one with 'smartnotes folders create <title>'.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSUMMARIES\tCREATED")
		for _, f := range folders {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.ID, f.Title, f.SummaryCount, formatDate(f.CreatedAt))
		}
		return w.Flush()
	})
}

func runFoldersCreate(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withStore(cmd, "folders", func(ctx context.Context, active *activeStore) error {
		folder, err := active.store.CreateFolder(ctx, active.userID, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), folder)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created folder %q (%s)\n", folder.Title, folder.ID)
		return nil
	})
}

func runFoldersDelete(cmd *cobra.Command, args []string) error {
	withSummaries, _ := cmd.Flags().GetBool("with-summaries")
	folderID := args[0]

	return withStore(cmd, "folders", func(ctx context.Context, active *activeStore) error {
		if withSummaries {
			if err := active.store.DeleteFolderWithSummaries(ctx, active.userID, folderID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted folder %s and its summaries\n", folderID)
			return nil
		}
		if err := active.store.DeleteFolderMoveSummariesToUnsorted(ctx, active.userID, folderID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted folder %s; its summaries are now unsorted\n", folderID)
		return nil
	})
}

func runFoldersAdd(cmd *cobra.Command, args []string) error {
	folderID, summaryIDs := args[0], args[1:]

	return withStore(cmd, "folders", func(ctx context.Context, active *activeStore) error {
		if err := active.store.AddSummariesToFolder(ctx, active.userID, folderID, summaryIDs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Filed %d summary(s) into folder %s\n", len(summaryIDs), folderID)
		return nil
	})
}
