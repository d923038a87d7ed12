package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"smartnotes/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "smartnotes",
	Short: "SmartNotes - digitize handwritten notes from the command line",
	Long: `SmartNotes turns photos of handwritten lecture notes into searchable,
page-sized summaries.

Images are recognized with Yandex Vision OCR, Google Cloud Vision or Document AI,
split into pages at paragraph, line or word boundaries and stored in folders.
Stored summaries can be discussed with an AI assistant or exported to Google Sheets.

Start with 'smartnotes session user <name>' for persistent notes or
'smartnotes session guest' to try things out without saving anything.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("SmartNotes CLI executed")

		fmt.Fprintln(cmd.OutOrStdout(), "Welcome to SmartNotes!")
		fmt.Fprintln(cmd.OutOrStdout(), "Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
