package notes

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced folder, summary or chat does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for blank titles, missing ids and similar caller errors.
	ErrInvalidInput = errors.New("invalid input")
)

// Repository is the notes store used by the CLI and the digitize pipeline.
// Listing methods return folders and summaries newest first and pages by
// page number. Deletes of missing entities are no-ops.
type Repository interface {
	ListFolders(ctx context.Context, userID string) ([]Folder, error)
	CreateFolder(ctx context.Context, userID, title string) (*Folder, error)
	DeleteFolderMoveSummariesToUnsorted(ctx context.Context, userID, folderID string) error
	DeleteFolderWithSummaries(ctx context.Context, userID, folderID string) error

	ListUnsortedSummaries(ctx context.Context, userID string) ([]Summary, error)
	ListSummariesByFolder(ctx context.Context, userID, folderID string) ([]Summary, error)
	GetSummary(ctx context.Context, summaryID string) (*Summary, error)
	CreateSummary(ctx context.Context, summary Summary) (string, error)
	DeleteSummary(ctx context.Context, userID, summaryID string) error
	UpdateSummaryPageCount(ctx context.Context, summaryID string, count int) error

	CreatePage(ctx context.Context, page Page) (string, error)
	ListPages(ctx context.Context, summaryID string) ([]Page, error)

	AddSummariesToFolder(ctx context.Context, userID, folderID string, summaryIDs []string) error
	RemoveSummaryFromFolder(ctx context.Context, userID, summaryID string) error
}

// ChatStore keeps assistant conversations.
type ChatStore interface {
	CreateChat(ctx context.Context, chat Chat) (string, error)
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	TouchChat(ctx context.Context, chatID string) error
	AddMessage(ctx context.Context, message Message) (string, error)
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
}

// Store is a Repository that also keeps chats.
type Store interface {
	Repository
	ChatStore
	Close() error
}

// StoreError wraps errors with the repository operation that failed.
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("notes: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
