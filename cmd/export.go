package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"smartnotes/internal/export"
	"smartnotes/internal/logger"
)

var exportCmd = &cobra.Command{
	Use:   "export [summary-id]",
	Short: "Export a summary to Google Sheets",
	Long: `Append a stored summary to a Google Sheet, one row per page.

The worksheet is created with a header row if it does not exist yet.
Text is written as-is, so recognized notes are never evaluated as formulas.

Required environment variables:
  GOOGLE_SHEET_URL                 - URL of the target spreadsheet
  GOOGLE_APPLICATION_CREDENTIALS   - Path to service account JSON
    or GOOGLE_CREDENTIALS          - Service account JSON content

Optional:
  GOOGLE_SHEET_WORKSHEET           - Worksheet name (default: Notes)`,
	Example: `  # Export to the default worksheet
  smartnotes export 6f1c...

  # Export to a worksheet per course
  smartnotes export 6f1c... --sheet "Physics"`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("sheet", "", "Worksheet name (default: GOOGLE_SHEET_WORKSHEET)")
	exportCmd.Flags().Int("timeout", 60, "Export timeout in seconds")
}

func runExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("export")

	sheetName, _ := cmd.Flags().GetString("sheet")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireSheets(); err != nil {
		return err
	}
	if sheetName == "" {
		sheetName = cfg.GoogleSheetWorksheet
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	active, err := openActiveStore(ctx, cfg, cmd, log)
	if err != nil {
		return err
	}
	defer active.Close()

	summary, pages, err := loadOwnedSummary(ctx, active, args[0])
	if err != nil {
		return err
	}

	svc, err := export.NewSheetsService(ctx, cfg.GoogleSheetURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Google Sheets: %w", err)
	}

	rows, err := svc.ExportSummary(ctx, *summary, pages, sheetName)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("export timed out, try increasing --timeout")
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d page(s) of %q to worksheet %q\n", rows, summary.Title, sheetName)
	return nil
}
