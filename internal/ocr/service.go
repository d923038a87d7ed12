// Package ocr recognizes text on photographed note pages.
//
// Three backends are supported:
//   - Yandex Vision OCR (HTTP, API key), the default, with a handwriting model
//   - Google Cloud Vision document text detection
//   - Google Document AI with a Document OCR processor
//
// Google backends read credentials from the environment:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//
// Input limits, shared by all backends:
//   - Maximum image size: 10MB
//   - Supported formats: JPEG, PNG (detected from content, not file name)
package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/api/option"
)

// MaxImageSizeBytes is the largest image accepted for recognition (10MB).
const MaxImageSizeBytes = 10 * 1024 * 1024

// Supported OCR providers.
const (
	ProviderYandex       = "yandex"
	ProviderGoogleVision = "google-vision"
	ProviderDocumentAI   = "document-ai"
)

// Supported image content types.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// OCRService defines the interface for OCR text extraction services.
type OCRService interface {
	// RecognizeImage extracts the text of one page image.
	RecognizeImage(ctx context.Context, image io.Reader) (string, error)

	// RecognizeImageWithMetadata extracts text with confidence and language information.
	RecognizeImageWithMetadata(ctx context.Context, image io.Reader) (*OCRResult, error)

	// Close releases the underlying client.
	Close() error
}

// OCRResult contains the results of OCR processing with metadata.
type OCRResult struct {
	// Text is the recognized text, lines separated by newlines and blocks by a blank line.
	Text string `json:"text"`

	// Confidence is the average confidence reported by the backend (0.0 to 1.0).
	// Zero when the backend does not report one.
	Confidence float32 `json:"confidence,omitempty"`

	// LanguageCodes contains the detected languages.
	LanguageCodes []string `json:"language_codes,omitempty"`

	// MimeType is the detected content type of the input image.
	MimeType string `json:"mime_type"`

	// ProcessedAt is the timestamp when the OCR processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long the OCR processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// Settings selects and configures an OCR backend.
type Settings struct {
	Provider  string
	Languages []string
	Timeout   time.Duration

	Yandex     YandexConfig
	DocumentAI DocumentAIConfig
}

// New creates the OCR service named by settings.Provider.
func New(ctx context.Context, settings Settings) (OCRService, error) {
	const op = "New"

	switch settings.Provider {
	case ProviderYandex:
		cfg := settings.Yandex
		if len(cfg.Languages) == 0 {
			cfg.Languages = settings.Languages
		}
		if cfg.Timeout == 0 {
			cfg.Timeout = settings.Timeout
		}
		return NewYandexOCRService(cfg)
	case ProviderGoogleVision:
		return NewGoogleVisionOCRService(ctx, settings.Languages)
	case ProviderDocumentAI:
		cfg := settings.DocumentAI
		if cfg.Timeout == 0 {
			cfg.Timeout = settings.Timeout
		}
		return NewDocumentAIOCRService(ctx, cfg)
	default:
		return nil, WrapOCRError(op, ErrUnknownProvider, fmt.Sprintf("provider %q", settings.Provider))
	}
}

// imageInput is a validated image ready to be sent to a backend.
type imageInput struct {
	data     []byte
	mimeType string
}

// readImage reads and validates an image for recognition.
func readImage(op string, image io.Reader) (*imageInput, error) {
	data, err := io.ReadAll(io.LimitReader(image, MaxImageSizeBytes+1))
	if err != nil {
		return nil, WrapOCRError(op, ErrInvalidImage, fmt.Sprintf("failed to read image data: %v", err))
	}

	if len(data) == 0 {
		return nil, WrapOCRError(op, ErrInvalidImage, "image is empty")
	}

	if len(data) > MaxImageSizeBytes {
		return nil, WrapOCRError(op, ErrImageTooLarge, fmt.Sprintf("more than %d bytes", MaxImageSizeBytes))
	}

	mime := mimetype.Detect(data)
	switch {
	case mime.Is(MimeJPEG):
		return &imageInput{data: data, mimeType: MimeJPEG}, nil
	case mime.Is(MimePNG):
		return &imageInput{data: data, mimeType: MimePNG}, nil
	default:
		return nil, WrapOCRError(op, ErrUnsupportedImage, fmt.Sprintf("detected %s", mime.String()))
	}
}

// finishResult trims the text and stamps timing information.
func finishResult(op string, result *OCRResult, startTime time.Time) (*OCRResult, error) {
	result.Text = strings.TrimSpace(result.Text)
	if result.Text == "" {
		return nil, WrapOCRError(op, ErrEmptyDocument, "")
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)
	return result, nil
}

// googleCredentialOptions resolves credentials for Google clients from the environment.
func googleCredentialOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

// recognizeText is the shared body of RecognizeImage implementations.
func recognizeText(ctx context.Context, svc OCRService, image io.Reader) (string, error) {
	result, err := svc.RecognizeImageWithMetadata(ctx, image)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// sortedKeys returns the set's keys in sorted order.
func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
