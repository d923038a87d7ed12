package digitize

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartnotes/internal/notes"
	"smartnotes/internal/ocr"
	"smartnotes/internal/paginate"
)

type reply struct {
	text string
	err  error
}

// fakeRecognizer answers by image content. Each image replays its replies in
// order and repeats the last one.
type fakeRecognizer struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   map[string]int
}

func newFakeRecognizer(replies map[string][]reply) *fakeRecognizer {
	return &fakeRecognizer{replies: replies, calls: make(map[string]int)}
}

func (f *fakeRecognizer) RecognizeImage(ctx context.Context, image io.Reader) (string, error) {
	data, err := io.ReadAll(image)
	if err != nil {
		return "", err
	}
	key := string(data)

	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[key]
	f.calls[key]++

	replies := f.replies[key]
	if len(replies) == 0 {
		return "", ocr.WrapOCRError("fake", ocr.ErrUnsupportedImage, "")
	}
	if n >= len(replies) {
		n = len(replies) - 1
	}
	return replies[n].text, replies[n].err
}

func newTestService(t *testing.T, recognizer Recognizer, repo notes.Repository, maxChars int) *Service {
	t.Helper()
	svc, err := NewService(recognizer, repo, Options{
		Paginator:     paginate.New(maxChars),
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC) }
	return svc
}

func image(name string) Image {
	return Image{Name: name, Data: []byte(name)}
}

func TestDigitizeImages(t *testing.T) {
	ctx := context.Background()
	repo := notes.NewMemoryRepository()
	transient := ocr.WrapOCRError("fake", ocr.ErrOCRFailed, "503")
	recognizer := newFakeRecognizer(map[string][]reply{
		"one.jpg":   {{text: "  First page text  "}},
		"flaky.jpg": {{err: transient}, {text: "Second page text"}},
		"blank.png": {{text: "   "}},
		"empty.png": {{err: ocr.WrapOCRError("fake", ocr.ErrEmptyDocument, "")}},
	})
	svc := newTestService(t, recognizer, repo, 1800)

	result, err := svc.DigitizeImages(ctx, Request{
		UserID: "alice",
		Images: []Image{image("one.jpg"), image("flaky.jpg"), image("blank.png"), image("empty.png"), image("photo.heic")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"blank.png", "empty.png", "photo.heic"}, result.Skipped)
	assert.Equal(t, "Notes from 05.03.2024", result.Summary.Title)
	assert.Equal(t, 1, result.Summary.PageCount)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, "First page text\n\nSecond page text", result.Pages[0].RecognizedText)
	assert.Equal(t, 1, result.Pages[0].PageNumber)

	assert.Equal(t, 2, recognizer.calls["flaky.jpg"], "transient failures are retried")
	assert.Equal(t, 1, recognizer.calls["empty.png"], "permanent failures are not retried")
	assert.Equal(t, 1, recognizer.calls["photo.heic"])

	stored, err := repo.GetSummary(ctx, result.Summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PageCount)
	assert.True(t, stored.Unsorted())
}

func TestDigitizeImages_RetriesExhausted(t *testing.T) {
	recognizer := newFakeRecognizer(map[string][]reply{
		"down.jpg": {{err: ocr.WrapOCRError("fake", ocr.ErrOCRFailed, "503")}},
		"ok.jpg":   {{text: "Readable"}},
	})
	svc := newTestService(t, recognizer, notes.NewMemoryRepository(), 1800)

	result, err := svc.DigitizeImages(context.Background(), Request{
		UserID: "alice",
		Images: []Image{image("down.jpg"), image("ok.jpg")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"down.jpg"}, result.Skipped)
	assert.Equal(t, 3, recognizer.calls["down.jpg"])
}

func TestDigitizeImages_NothingRecognized(t *testing.T) {
	repo := notes.NewMemoryRepository()
	svc := newTestService(t, newFakeRecognizer(nil), repo, 1800)

	result, err := svc.DigitizeImages(context.Background(), Request{
		UserID: "alice",
		Images: []Image{{Data: []byte("x")}},
	})
	require.ErrorIs(t, err, ErrNothingRecognized)
	assert.Equal(t, []string{"image 1"}, result.Skipped)

	summaries, err := repo.ListUnsortedSummaries(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestDigitizeImages_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recognizer := newFakeRecognizer(map[string][]reply{
		"a.jpg": {{err: context.Canceled}},
	})
	svc := newTestService(t, recognizer, notes.NewMemoryRepository(), 1800)

	_, err := svc.DigitizeImages(ctx, Request{UserID: "alice", Images: []Image{image("a.jpg")}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDigitizeText_Pages(t *testing.T) {
	ctx := context.Background()
	repo := notes.NewMemoryRepository()
	folder, err := repo.CreateFolder(ctx, "alice", "Physics")
	require.NoError(t, err)

	svc := newTestService(t, newFakeRecognizer(nil), repo, 16)
	result, err := svc.DigitizeText(ctx, TextRequest{
		UserID:   "alice",
		Title:    " Lecture 4 ",
		FolderID: folder.ID,
		Text:     "The quick brown fox jumps over the lazy dog",
	})
	require.NoError(t, err)

	assert.Equal(t, "Lecture 4", result.Summary.Title)
	assert.Equal(t, folder.ID, result.Summary.FolderID)
	assert.Equal(t, 3, result.Summary.PageCount)

	stored, err := repo.ListPages(ctx, result.Summary.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	texts := make([]string, len(stored))
	for i, p := range stored {
		assert.Equal(t, i+1, p.PageNumber)
		texts[i] = p.RecognizedText
	}
	assert.Equal(t, []string{"The quick brown", "fox jumps over", "the lazy dog"}, texts)

	folders, err := repo.ListFolders(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, folders[0].SummaryCount)
}

func TestDigitizeText_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFakeRecognizer(nil), notes.NewMemoryRepository(), 1800)

	_, err := svc.DigitizeText(ctx, TextRequest{UserID: "alice", Text: " \n\t "})
	require.ErrorIs(t, err, ErrNothingRecognized)

	_, err = svc.DigitizeText(ctx, TextRequest{Text: "text"})
	require.ErrorIs(t, err, notes.ErrInvalidInput)

	_, err = svc.DigitizeText(ctx, TextRequest{UserID: "alice", FolderID: "missing", Text: "text"})
	require.ErrorIs(t, err, ErrSaveFailed)
	require.ErrorIs(t, err, notes.ErrNotFound)
}

// failingRepository fails CreatePage from the given page number on.
type failingRepository struct {
	*notes.MemoryRepository
	failFrom int
}

func (r *failingRepository) CreatePage(ctx context.Context, page notes.Page) (string, error) {
	if page.PageNumber >= r.failFrom {
		return "", errors.New("disk full")
	}
	return r.MemoryRepository.CreatePage(ctx, page)
}

func TestDigitizeText_CleansUpOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepository{MemoryRepository: notes.NewMemoryRepository(), failFrom: 2}
	svc := newTestService(t, newFakeRecognizer(nil), repo, 20)

	_, err := svc.DigitizeText(ctx, TextRequest{
		UserID: "alice",
		Text:   strings.Repeat("word ", 20),
	})
	require.ErrorIs(t, err, ErrSaveFailed)
	assert.Contains(t, err.Error(), "disk full")

	summaries, err := repo.ListUnsortedSummaries(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, notes.NewMemoryRepository(), Options{})
	require.Error(t, err)

	_, err = NewService(newFakeRecognizer(nil), notes.NewMemoryRepository(), Options{Paginator: paginate.New(0)})
	require.ErrorIs(t, err, paginate.ErrInvalidArgument)

	svc, err := NewService(newFakeRecognizer(nil), notes.NewMemoryRepository(), Options{})
	require.NoError(t, err)
	assert.Equal(t, paginate.Default(), svc.paginator)
	assert.Equal(t, uint(DefaultRetryAttempts), svc.attempts)
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "Notes from 31.12.2023", DefaultTitle(time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC)))
}
