package ocr

import (
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrImageTooLarge is returned when the image exceeds MaxImageSizeBytes.
	ErrImageTooLarge = errors.New("image size exceeds the maximum limit (10MB)")

	// ErrInvalidImage is returned when the input is empty or cannot be read.
	ErrInvalidImage = errors.New("invalid or empty image")

	// ErrUnsupportedImage is returned for formats other than JPEG and PNG.
	ErrUnsupportedImage = errors.New("unsupported image format (JPEG or PNG expected)")

	// ErrOCRFailed is returned when the recognition backend fails to process the image.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when the configured provider has no credentials.
	ErrMissingCredentials = errors.New("missing OCR credentials")

	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown OCR provider")

	// ErrEmptyDocument is returned when no text was recognized on the image.
	ErrEmptyDocument = errors.New("image contains no readable text")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "RecognizeImage", "NewYandexOCRService").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(op, err, details)
}

// IsPermanent reports whether retrying the same image cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrImageTooLarge) ||
		errors.Is(err, ErrInvalidImage) ||
		errors.Is(err, ErrUnsupportedImage) ||
		errors.Is(err, ErrEmptyDocument) ||
		errors.Is(err, ErrMissingCredentials)
}
