package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"smartnotes/internal/config"
	"smartnotes/internal/digitize"
	"smartnotes/internal/logger"
	"smartnotes/internal/ocr"
)

var scanCmd = &cobra.Command{
	Use:   "scan [image-file]...",
	Short: "Digitize photos of handwritten pages into a new summary",
	Long: `Recognize one or more JPEG or PNG photos, join their text in the given order,
split it into pages and store the result as a new summary.

Images that cannot be recognized are skipped and listed. The summary title
defaults to "Notes from DD.MM.YYYY". With --folder the summary is filed into
that folder, otherwise it stays unsorted.

Requires an active session (see 'smartnotes session') and OCR credentials
(see 'smartnotes ocr --help').`,
	Example: `  # Digitize three pages of a lecture
  smartnotes scan page1.jpg page2.jpg page3.jpg --title "Thermodynamics 3"

  # File the summary into a folder and print it as JSON
  smartnotes scan board.png --folder 6f1c... --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("title", "", "Summary title (default: \"Notes from <date>\")")
	scanCmd.Flags().String("folder", "", "Folder ID to file the summary into")
	scanCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
	scanCmd.Flags().Bool("json", false, "Output as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("scan")

	title, _ := cmd.Flags().GetString("title")
	folderID, _ := cmd.Flags().GetString("folder")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeout := time.Duration(timeoutSecs) * time.Second

	images := make([]digitize.Image, 0, len(args))
	for _, path := range args {
		if _, err := validateImageFile(path, log); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read image file: %w", err)
		}
		images = append(images, digitize.Image{Name: filepath.Base(path), Data: data})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	active, err := openActiveStore(ctx, cfg, cmd, log)
	if err != nil {
		return err
	}
	defer active.Close()

	ocrService, err := createOCRService(ctx, cfg, scanOCRSettings(cfg, timeout), log)
	if err != nil {
		return err
	}
	defer ocrService.Close()

	svc, err := digitize.NewService(ocrService, active.store, digitize.Options{
		Paginator:     cfg.Paginator(),
		RetryAttempts: uint(cfg.OCRRetryAttempts),
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("images", len(images)).
		Str("folder", folderID).
		Msg("Starting digitizing")

	result, err := svc.DigitizeImages(ctx, digitize.Request{
		UserID:   active.userID,
		Title:    title,
		FolderID: folderID,
		Images:   images,
	})
	switch {
	case errors.Is(err, digitize.ErrNothingRecognized):
		if result != nil && len(result.Skipped) > 0 {
			return fmt.Errorf("no text could be recognized in: %s", strings.Join(result.Skipped, ", "))
		}
		return fmt.Errorf("no text could be recognized")
	case errors.Is(err, digitize.ErrSaveFailed):
		log.Error().Err(err).Msg("Failed to save summary")
		return fmt.Errorf("recognized text could not be saved: %w", err)
	case err != nil:
		return handleOCRError(err, log)
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saved summary %q (%s) with %d page(s)\n", result.Summary.Title, result.Summary.ID, result.Summary.PageCount)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped: %s\n", strings.Join(result.Skipped, ", "))
	}
	return nil
}

// scanOCRSettings turns off HTTP-level retries: digitize already retries each
// image, and the two layers would multiply.
func scanOCRSettings(cfg *config.Config, timeout time.Duration) ocr.Settings {
	settings := ocrSettings(cfg, timeout)
	settings.Yandex.RetryCount = -1
	return settings
}
