package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"smartnotes/internal/logger"
)

const (
	// DefaultYandexOCRURL is the synchronous text recognition endpoint.
	DefaultYandexOCRURL = "https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText"

	// DefaultYandexModel recognizes handwriting; "page" suits printed text.
	DefaultYandexModel = "handwritten"

	defaultYandexTimeout = 60 * time.Second
)

// YandexConfig holds settings for the Yandex Vision OCR backend.
type YandexConfig struct {
	// APIKey is a service account API key, sent as "Authorization: Api-Key <key>".
	APIKey string

	// FolderID is sent as x-folder-id. Not needed with a service account key.
	FolderID string

	// URL overrides DefaultYandexOCRURL.
	URL string

	// Model is the recognition model, DefaultYandexModel when empty.
	Model string

	// Languages are the expected language codes, e.g. "ru", "en".
	Languages []string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RetryCount is the number of HTTP-level retries on 5xx/429 responses.
	// Zero means 2; a negative value turns HTTP retries off for callers that
	// retry whole recognitions themselves.
	RetryCount int
}

// YandexOCRService implements OCRService using the Yandex Vision OCR API.
type YandexOCRService struct {
	client *resty.Client
	config YandexConfig
	log    zerolog.Logger
}

type yandexRequest struct {
	MimeType      string   `json:"mimeType"`
	LanguageCodes []string `json:"languageCodes"`
	Model         string   `json:"model"`
	Content       string   `json:"content"`
}

type yandexResponse struct {
	Result struct {
		TextAnnotation *yandexTextAnnotation `json:"textAnnotation"`
	} `json:"result"`
}

type yandexTextAnnotation struct {
	FullText string        `json:"fullText"`
	Blocks   []yandexBlock `json:"blocks"`
}

type yandexBlock struct {
	Lines     []yandexLine `json:"lines"`
	Languages []struct {
		LanguageCode string `json:"languageCode"`
	} `json:"languages"`
}

type yandexLine struct {
	Text         string `json:"text"`
	Alternatives []struct {
		Text string `json:"text"`
	} `json:"alternatives"`
}

// yandexError is the error body returned by Yandex Cloud APIs.
type yandexError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *yandexError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

// NewYandexOCRService creates a Yandex Vision OCR client.
func NewYandexOCRService(config YandexConfig) (OCRService, error) {
	const op = "NewYandexOCRService"

	if config.APIKey == "" {
		return nil, WrapOCRError(op, ErrMissingCredentials, "YANDEX_API_KEY is not set")
	}
	if config.URL == "" {
		config.URL = DefaultYandexOCRURL
	}
	if config.Model == "" {
		config.Model = DefaultYandexModel
	}
	if len(config.Languages) == 0 {
		config.Languages = []string{"ru", "en"}
	}
	if config.Timeout == 0 {
		config.Timeout = defaultYandexTimeout
	}
	switch {
	case config.RetryCount == 0:
		config.RetryCount = 2
	case config.RetryCount < 0:
		config.RetryCount = 0
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Api-Key "+config.APIKey).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)

	if config.FolderID != "" {
		client.SetHeader("x-folder-id", config.FolderID)
	}

	client.AddRetryCondition(retryCondition)

	return &YandexOCRService{
		client: client,
		config: config,
		log:    logger.WithComponent("ocr-yandex"),
	}, nil
}

// retryCondition retries network errors, server errors and throttling.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// RecognizeImage extracts the text of one page image.
func (y *YandexOCRService) RecognizeImage(ctx context.Context, image io.Reader) (string, error) {
	return recognizeText(ctx, y, image)
}

// RecognizeImageWithMetadata extracts text with language information.
func (y *YandexOCRService) RecognizeImageWithMetadata(ctx context.Context, image io.Reader) (*OCRResult, error) {
	const op = "RecognizeImageWithMetadata"
	startTime := time.Now()

	input, err := readImage(op, image)
	if err != nil {
		return nil, err
	}

	body := yandexRequest{
		MimeType:      yandexMimeType(input.mimeType),
		LanguageCodes: y.config.Languages,
		Model:         y.config.Model,
		Content:       base64.StdEncoding.EncodeToString(input.data),
	}

	y.log.Debug().
		Str("mime_type", body.MimeType).
		Str("model", body.Model).
		Int("image_bytes", len(input.data)).
		Msg("Sending Yandex OCR request")

	var parsed yandexResponse
	resp, err := y.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		SetError(&yandexError{}).
		Post(y.config.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, WrapOCRError(op, ctxErr, "request canceled")
		}
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Yandex OCR request failed: %v", err))
	}

	if resp.IsError() {
		details := fmt.Sprintf("HTTP %d", resp.StatusCode())
		if apiErr, ok := resp.Error().(*yandexError); ok && apiErr != nil && apiErr.Message != "" {
			details = fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), apiErr.Message)
		}
		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			return nil, WrapOCRError(op, ErrMissingCredentials, details)
		}
		return nil, WrapOCRError(op, ErrOCRFailed, details)
	}

	y.log.Debug().
		Int("status", resp.StatusCode()).
		Dur("duration", time.Since(startTime)).
		Msg("Received Yandex OCR response")

	result := parseYandexAnnotation(parsed.Result.TextAnnotation)
	result.MimeType = input.mimeType

	return finishResult(op, result, startTime)
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (y *YandexOCRService) Close() error {
	return nil
}

// parseYandexAnnotation collects the recognized lines block by block. Lines
// use "text" or, when empty, the first alternative. Blocks are separated by a
// blank line.
func parseYandexAnnotation(annotation *yandexTextAnnotation) *OCRResult {
	result := &OCRResult{}
	if annotation == nil {
		return result
	}

	var sb strings.Builder
	languages := make(map[string]bool)

	for _, block := range annotation.Blocks {
		for _, lang := range block.Languages {
			if lang.LanguageCode != "" {
				languages[lang.LanguageCode] = true
			}
		}

		wrote := false
		for _, line := range block.Lines {
			text := line.Text
			if strings.TrimSpace(text) == "" && len(line.Alternatives) > 0 {
				text = line.Alternatives[0].Text
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			sb.WriteString(text)
			sb.WriteString("\n")
			wrote = true
		}
		if wrote {
			sb.WriteString("\n")
		}
	}

	result.Text = sb.String()
	if strings.TrimSpace(result.Text) == "" {
		result.Text = annotation.FullText
	}
	result.LanguageCodes = sortedKeys(languages)
	return result
}

func yandexMimeType(mimeType string) string {
	if mimeType == MimePNG {
		return "PNG"
	}
	return "JPEG"
}
