package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"smartnotes/internal/config"
	"smartnotes/internal/logger"
	"smartnotes/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file]",
	Short: "Recognize the text of one photographed page without saving it",
	Long: `Recognize a single JPEG or PNG photo of a handwritten page and print the text.

Nothing is stored; use 'smartnotes scan' to save recognized pages as a summary.
The backend is chosen with OCR_PROVIDER (yandex, google-vision, document-ai).

Required environment variables:
  YANDEX_API_KEY                  - for the yandex provider (default)
  GOOGLE_APPLICATION_CREDENTIALS  - for google-vision and document-ai, OR
  GOOGLE_CREDENTIALS              - inline JSON credentials string
  GOOGLE_CLOUD_PROJECT, DOCUMENT_AI_PROCESSOR_ID - for document-ai`,
	Example: `  # Print the text of one page
  smartnotes ocr page1.jpg

  # Save the text to a file
  smartnotes ocr page1.jpg -o page1.txt

  # Include metadata and output as JSON
  smartnotes ocr page1.png --metadata --json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string    `json:"text"`
	Confidence         float32   `json:"confidence,omitempty"`
	LanguageCodes      []string  `json:"language_codes,omitempty"`
	MimeType           string    `json:"mime_type,omitempty"`
	ProcessedAt        time.Time `json:"processed_at,omitempty"`
	ProcessingDuration string    `json:"processing_duration,omitempty"`
	FileName           string    `json:"file_name"`
	FileSize           int64     `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().BoolP("metadata", "m", false, "Include metadata in output")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	includeMetadata, _ := cmd.Flags().GetBool("metadata")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	log.Info().
		Str("file", imagePath).
		Str("output", outputPath).
		Bool("metadata", includeMetadata).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

	fileInfo, err := validateImageFile(imagePath, log)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	ocrService, err := createOCRService(ctx, cfg, ocrSettings(cfg, time.Duration(timeoutSecs)*time.Second), log)
	if err != nil {
		return err
	}
	defer ocrService.Close()

	imageFile, err := os.Open(imagePath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", imagePath).
			Msg("Failed to open image file")
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() {
		if closeErr := imageFile.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close image file")
		}
	}()

	result, err := ocrService.RecognizeImageWithMetadata(ctx, imageFile)
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Float32("confidence", result.Confidence).
		Dur("duration", result.ProcessingDuration).
		Int("text_length", len(result.Text)).
		Msg("OCR processing completed successfully")

	return outputOCRResult(cmd, result, fileInfo, outputPath, jsonOutput, includeMetadata, log)
}

// validateImageFile checks that the file exists, is a non-empty regular file
// and fits the OCR size limit. The format is checked from content later.
func validateImageFile(imagePath string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", imagePath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Permission denied accessing image file")
			return nil, fmt.Errorf("permission denied accessing image file: %s", imagePath)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", imagePath).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", imagePath)
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", imagePath).
			Msg("Image file is empty")
		return nil, fmt.Errorf("image file is empty: %s", imagePath)
	}

	if fileInfo.Size() > ocr.MaxImageSizeBytes {
		log.Error().
			Str("file", imagePath).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxImageSizeBytes).
			Msg("Image file exceeds maximum size limit")
		return nil, fmt.Errorf("image file too large (%d bytes). Maximum size is %d bytes (10MB)",
			fileInfo.Size(), ocr.MaxImageSizeBytes)
	}

	return fileInfo, nil
}

// createOCRService creates the OCR backend selected in the configuration.
func createOCRService(ctx context.Context, cfg *config.Config, settings ocr.Settings, log zerolog.Logger) (ocr.OCRService, error) {
	if err := cfg.RequireOCR(); err != nil {
		log.Error().Err(err).Str("provider", cfg.OCRProvider).Msg("OCR provider not configured")
		return nil, err
	}

	ocrService, err := ocr.New(ctx, settings)
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			log.Error().
				Err(err).
				Str("provider", cfg.OCRProvider).
				Msg("OCR credentials validation failed")
			return nil, fmt.Errorf("OCR credentials are missing or invalid for provider %s. Please verify:\n\n"+
				"1. YANDEX_API_KEY is set for the yandex provider\n"+
				"2. GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS is set for Google providers\n"+
				"3. The service account has access to the OCR API\n\n"+
				"Original error: %w", cfg.OCRProvider, err)
		}
		log.Error().
			Err(err).
			Msg("Failed to create OCR service")
		return nil, fmt.Errorf("failed to create OCR service: %w", err)
	}

	log.Debug().Str("provider", cfg.OCRProvider).Msg("OCR service created successfully")
	return ocrService, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrImageTooLarge):
		return fmt.Errorf("image is too large (maximum 10MB). Try a smaller resolution")
	case errors.Is(err, ocr.ErrUnsupportedImage):
		return fmt.Errorf("unsupported image format. Only JPEG and PNG photos can be recognized")
	case errors.Is(err, ocr.ErrInvalidImage):
		return fmt.Errorf("invalid or empty image file. Please check the file integrity")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found on the page")
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("OCR authentication failed. Please check YANDEX_API_KEY or your Google Cloud credentials: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Please check your credentials:\n\n"+
			"1. Set GOOGLE_APPLICATION_CREDENTIALS to your service account JSON file path\n"+
			"2. Or set GOOGLE_CREDENTIALS with inline JSON\n"+
			"3. If using Application Default Credentials, run:\n"+
			"   gcloud auth application-default login\n\n"+
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure your service account may call the OCR API")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("OCR API quota exceeded. Check your project quotas")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

// outputOCRResult formats and outputs the OCR result
func outputOCRResult(cmd *cobra.Command, result *ocr.OCRResult, fileInfo os.FileInfo, outputPath string, jsonOutput, includeMetadata bool, log zerolog.Logger) error {
	if jsonOutput {
		out := OCROutput{
			Text:          result.Text,
			FileName:      filepath.Base(fileInfo.Name()),
			FileSize:      fileInfo.Size(),
			Confidence:    result.Confidence,
			LanguageCodes: result.LanguageCodes,
			MimeType:      result.MimeType,
			ProcessedAt:   result.ProcessedAt,
		}
		if includeMetadata {
			out.ProcessingDuration = result.ProcessingDuration.String()
		}
		var buf strings.Builder
		if err := writeJSON(&buf, out); err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return err
		}
		return writeOutput(cmd.OutOrStdout(), []byte(buf.String()), outputPath, log)
	}

	var output strings.Builder
	if includeMetadata {
		fmt.Fprintf(&output, "=== OCR Results for %s ===\n", filepath.Base(fileInfo.Name()))
		fmt.Fprintf(&output, "File size: %d bytes\n", fileInfo.Size())
		if result.MimeType != "" {
			fmt.Fprintf(&output, "Format: %s\n", result.MimeType)
		}
		if result.Confidence > 0 {
			fmt.Fprintf(&output, "Confidence: %.1f%%\n", result.Confidence*100)
		}
		if len(result.LanguageCodes) > 0 {
			fmt.Fprintf(&output, "Languages: %s\n", strings.Join(result.LanguageCodes, ", "))
		}
		fmt.Fprintf(&output, "Processing time: %v\n", result.ProcessingDuration)
		fmt.Fprintf(&output, "Processed at: %s\n", result.ProcessedAt.Format(time.RFC3339))
		output.WriteString("\n=== Extracted Text ===\n\n")
	}
	output.WriteString(result.Text)
	output.WriteString("\n")

	return writeOutput(cmd.OutOrStdout(), []byte(output.String()), outputPath, log)
}
