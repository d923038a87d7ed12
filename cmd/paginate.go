package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"smartnotes/internal/logger"
)

var paginateCmd = &cobra.Command{
	Use:   "paginate [text-file|-]",
	Short: "Split text into page-sized chunks",
	Long: `Split a text file (or standard input) into pages of at most --max-chars characters.

Pages are cut at the last paragraph break, line break or space inside each
window, as long as the page is at least --min-fill of the budget; otherwise the
window is cut exactly at its end. Characters are counted as Unicode code points.

Defaults come from MAX_CHARS_PER_PAGE and MIN_FILL_RATIO.`,
	Example: `  # Split a transcript with the default budget
  smartnotes paginate lecture.txt

  # Read from stdin with a small budget and print JSON
  cat lecture.txt | smartnotes paginate - --max-chars 500 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPaginate,
}

// PaginateOutput represents the JSON output structure when --json flag is used
type PaginateOutput struct {
	MaxCharsPerPage int      `json:"max_chars_per_page"`
	MinFillRatio    float64  `json:"min_fill_ratio"`
	PageCount       int      `json:"page_count"`
	Pages           []string `json:"pages"`
}

func init() {
	rootCmd.AddCommand(paginateCmd)

	paginateCmd.Flags().Int("max-chars", 0, "Maximum characters per page (default: MAX_CHARS_PER_PAGE)")
	paginateCmd.Flags().Float64("min-fill", 0, "Minimum page fill before a soft break is used, 0..1 (default: MIN_FILL_RATIO)")
	paginateCmd.Flags().Bool("json", false, "Output as JSON")
	paginateCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

func runPaginate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("paginate")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paginator := cfg.Paginator()
	if cmd.Flags().Changed("max-chars") {
		paginator.MaxCharsPerPage, _ = cmd.Flags().GetInt("max-chars")
	}
	if cmd.Flags().Changed("min-fill") {
		paginator.MinFillRatio, _ = cmd.Flags().GetFloat64("min-fill")
	}

	source := "-"
	if len(args) == 1 {
		source = args[0]
	}
	text, err := readTextSource(cmd, source)
	if err != nil {
		return err
	}

	pages, err := paginator.Split(text)
	if err != nil {
		return err
	}

	log.Info().
		Str("source", source).
		Int("max_chars", paginator.MaxCharsPerPage).
		Float64("min_fill", paginator.MinFillRatio).
		Int("pages", len(pages)).
		Msg("Text paginated")

	if jsonOutput {
		var buf strings.Builder
		if err := writeJSON(&buf, PaginateOutput{
			MaxCharsPerPage: paginator.MaxCharsPerPage,
			MinFillRatio:    paginator.MinFillRatio,
			PageCount:       len(pages),
			Pages:           nonNilPages(pages),
		}); err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), []byte(buf.String()), outputPath, log)
	}

	return writeOutput(cmd.OutOrStdout(), []byte(formatPages(pages)), outputPath, log)
}

func readTextSource(cmd *cobra.Command, source string) (string, error) {
	var data []byte
	var err error
	if source == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", source, err)
	}
	return string(data), nil
}

func formatPages(pages []string) string {
	var b strings.Builder
	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- Page %d of %d (%d chars) ---\n", i+1, len(pages), len([]rune(page)))
		b.WriteString(page)
		b.WriteString("\n")
	}
	return b.String()
}

func nonNilPages(pages []string) []string {
	if pages == nil {
		return []string{}
	}
	return pages
}
