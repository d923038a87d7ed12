// Package digitize turns photographed note pages into stored summaries:
// recognize every image, join the text, split it into pages and save the
// result.
package digitize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"smartnotes/internal/logger"
	"smartnotes/internal/notes"
	"smartnotes/internal/ocr"
	"smartnotes/internal/paginate"
)

const (
	// DefaultRetryAttempts is how many times one image is sent to OCR.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the base delay between OCR attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	// TitleDateLayout formats the date in default summary titles.
	TitleDateLayout = "02.01.2006"

	pageSeparator = "\n\n"
)

var (
	// ErrNothingRecognized is returned when no image produced any text.
	ErrNothingRecognized = errors.New("no text recognized")

	// ErrSaveFailed is returned when the summary could not be stored.
	ErrSaveFailed = errors.New("failed to save summary")
)

// Recognizer extracts text from one image.
type Recognizer interface {
	RecognizeImage(ctx context.Context, image io.Reader) (string, error)
}

// Image is one photographed page.
type Image struct {
	Name string
	Data []byte
}

// Request describes a batch of images to digitize into one summary.
type Request struct {
	UserID   string
	Title    string
	FolderID string
	Images   []Image
}

// TextRequest stores already recognized text as a summary.
type TextRequest struct {
	UserID   string
	Title    string
	FolderID string
	Text     string
}

// Result is the stored summary with its pages. Skipped names the images that
// produced no text.
type Result struct {
	Summary notes.Summary `json:"summary"`
	Pages   []notes.Page  `json:"pages"`
	Skipped []string      `json:"skipped,omitempty"`
}

// Options tunes the pipeline. Zero values fall back to defaults.
type Options struct {
	Paginator     paginate.Paginator
	RetryAttempts uint
	RetryDelay    time.Duration
}

// Service runs the digitizing pipeline.
type Service struct {
	recognizer Recognizer
	repo       notes.Repository
	paginator  paginate.Paginator
	attempts   uint
	delay      time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewService returns a pipeline that recognizes with recognizer and stores into repo.
func NewService(recognizer Recognizer, repo notes.Repository, opts Options) (*Service, error) {
	if recognizer == nil || repo == nil {
		return nil, fmt.Errorf("recognizer and repository are required")
	}
	if opts.Paginator == (paginate.Paginator{}) {
		opts.Paginator = paginate.Default()
	}
	if err := opts.Paginator.Validate(); err != nil {
		return nil, err
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	return &Service{
		recognizer: recognizer,
		repo:       repo,
		paginator:  opts.Paginator,
		attempts:   opts.RetryAttempts,
		delay:      opts.RetryDelay,
		log:        logger.WithComponent("digitize"),
		now:        time.Now,
	}, nil
}

// DigitizeImages recognizes the images in order and stores the joined text.
// Images that fail or come back blank are skipped and reported in the result.
func (s *Service) DigitizeImages(ctx context.Context, req Request) (*Result, error) {
	var texts, skipped []string

	for i, img := range req.Images {
		name := img.Name
		if name == "" {
			name = fmt.Sprintf("image %d", i+1)
		}

		text, err := s.recognize(ctx, img)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.log.Warn().Err(err).Str("image", name).Msg("Skipping image that could not be recognized")
			skipped = append(skipped, name)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			s.log.Warn().Str("image", name).Msg("Skipping image without text")
			skipped = append(skipped, name)
			continue
		}

		s.log.Debug().Str("image", name).Int("chars", len([]rune(text))).Msg("Image recognized")
		texts = append(texts, text)
	}

	if len(texts) == 0 {
		return &Result{Skipped: skipped}, ErrNothingRecognized
	}

	result, err := s.DigitizeText(ctx, TextRequest{
		UserID:   req.UserID,
		Title:    req.Title,
		FolderID: req.FolderID,
		Text:     strings.Join(texts, pageSeparator),
	})
	if err != nil {
		return nil, err
	}
	result.Skipped = skipped
	return result, nil
}

func (s *Service) recognize(ctx context.Context, img Image) (string, error) {
	var text string
	err := retry.Do(
		func() error {
			var err error
			text, err = s.recognizer.RecognizeImage(ctx, bytes.NewReader(img.Data))
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !ocr.IsPermanent(err) && !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.log.Debug().Err(err).Uint("attempt", n+1).Str("image", img.Name).Msg("Retrying OCR")
		}),
	)
	return text, err
}

// DigitizeText splits text into pages and stores them as a new summary.
func (s *Service) DigitizeText(ctx context.Context, req TextRequest) (*Result, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", notes.ErrInvalidInput)
	}

	chunks, err := s.paginator.Split(req.Text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNothingRecognized
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DefaultTitle(s.now())
	}

	summary := notes.Summary{
		UserID:    req.UserID,
		FolderID:  req.FolderID,
		Title:     title,
		CreatedAt: s.now(),
	}
	summary.ID, err = s.repo.CreateSummary(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	pages, err := s.savePages(ctx, summary.ID, chunks)
	if err != nil {
		if cleanupErr := s.repo.DeleteSummary(context.WithoutCancel(ctx), req.UserID, summary.ID); cleanupErr != nil {
			s.log.Error().Err(cleanupErr).Str("summary_id", summary.ID).Msg("Failed to remove partially saved summary")
		}
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	summary.PageCount = len(pages)

	s.log.Info().
		Str("summary_id", summary.ID).
		Str("title", summary.Title).
		Int("pages", summary.PageCount).
		Msg("Summary saved")

	return &Result{Summary: summary, Pages: pages}, nil
}

func (s *Service) savePages(ctx context.Context, summaryID string, chunks []string) ([]notes.Page, error) {
	pages := make([]notes.Page, 0, len(chunks))
	for i, chunk := range chunks {
		page := notes.Page{
			SummaryID:      summaryID,
			PageNumber:     i + 1,
			RecognizedText: chunk,
			CreatedAt:      s.now(),
		}
		id, err := s.repo.CreatePage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.PageNumber, err)
		}
		page.ID = id
		pages = append(pages, page)
	}
	if err := s.repo.UpdateSummaryPageCount(ctx, summaryID, len(pages)); err != nil {
		return nil, err
	}
	return pages, nil
}

// DefaultTitle is the title given to summaries saved without one.
func DefaultTitle(t time.Time) string {
	return "Notes from " + t.Format(TitleDateLayout)
}
