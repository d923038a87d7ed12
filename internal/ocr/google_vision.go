package ocr

import (
	"context"
	"fmt"
	"io"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
)

// GoogleVisionOCRService implements OCRService using Google Cloud Vision API.
type GoogleVisionOCRService struct {
	client    *vision.ImageAnnotatorClient
	languages []string
}

// NewGoogleVisionOCRService creates a new OCR service with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env,
// and falls back to application default credentials.
func NewGoogleVisionOCRService(ctx context.Context, languages []string) (OCRService, error) {
	const op = "NewGoogleVisionOCRService"

	opts := googleCredentialOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return &GoogleVisionOCRService{
		client:    client,
		languages: languages,
	}, nil
}

// NewGoogleVisionOCRServiceWithClient creates a new OCR service with an explicit client (for testing).
func NewGoogleVisionOCRServiceWithClient(client *vision.ImageAnnotatorClient, languages []string) OCRService {
	return &GoogleVisionOCRService{
		client:    client,
		languages: languages,
	}
}

// RecognizeImage extracts the text of one page image.
func (g *GoogleVisionOCRService) RecognizeImage(ctx context.Context, image io.Reader) (string, error) {
	return recognizeText(ctx, g, image)
}

// RecognizeImageWithMetadata extracts text with confidence and language information.
func (g *GoogleVisionOCRService) RecognizeImageWithMetadata(ctx context.Context, image io.Reader) (*OCRResult, error) {
	const op = "RecognizeImageWithMetadata"
	startTime := time.Now()

	input, err := readImage(op, image)
	if err != nil {
		return nil, err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: input.data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{
					LanguageHints: g.languages,
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}

	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	imageResp := resp.Responses[0]
	if imageResp.Error != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", imageResp.Error.Message))
	}

	result := visionResult(imageResp.FullTextAnnotation)
	result.MimeType = input.mimeType

	return finishResult(op, result, startTime)
}

// visionResult extracts text, average page confidence and detected languages.
func visionResult(annotation *visionpb.TextAnnotation) *OCRResult {
	result := &OCRResult{}
	if annotation == nil {
		return result
	}

	var confidenceSum float32
	var confidenceCount int
	languages := make(map[string]bool)

	for _, page := range annotation.Pages {
		if page.Confidence > 0 {
			confidenceSum += page.Confidence
			confidenceCount++
		}
		if page.Property != nil {
			for _, lang := range page.Property.DetectedLanguages {
				if lang.LanguageCode != "" {
					languages[lang.LanguageCode] = true
				}
			}
		}
	}

	result.Text = annotation.Text
	if confidenceCount > 0 {
		result.Confidence = confidenceSum / float32(confidenceCount)
	}
	result.LanguageCodes = sortedKeys(languages)
	return result
}

// Close closes the underlying Vision client.
func (g *GoogleVisionOCRService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
