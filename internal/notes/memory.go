package notes

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memFolder struct {
	Folder
	seq int64
}

type memSummary struct {
	Summary
	seq int64
}

// MemoryRepository is a process-local Store. Guest sessions use it so nothing
// they create outlives the process.
type MemoryRepository struct {
	mu        sync.RWMutex
	seq       int64
	folders   map[string]*memFolder
	summaries map[string]*memSummary
	pages     map[string][]Page
	chats     map[string]*Chat
	messages  map[string][]Message
	now       func() time.Time
}

var _ Store = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		folders:   make(map[string]*memFolder),
		summaries: make(map[string]*memSummary),
		pages:     make(map[string][]Page),
		chats:     make(map[string]*Chat),
		messages:  make(map[string][]Message),
		now:       time.Now,
	}
}

func (m *MemoryRepository) nextSeq() int64 {
	m.seq++
	return m.seq
}

// ListFolders returns the user's folders, newest first.
func (m *MemoryRepository) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*memFolder, 0, len(m.folders))
	for _, f := range m.folders {
		if f.UserID == userID {
			records = append(records, f)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq > records[j].seq })

	folders := make([]Folder, len(records))
	for i, f := range records {
		folders[i] = f.Folder
	}
	return folders, nil
}

// CreateFolder adds an empty folder.
func (m *MemoryRepository) CreateFolder(ctx context.Context, userID, title string) (*Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, wrapStoreError("CreateFolder", invalid("folder title is blank"))
	}
	if userID == "" {
		return nil, wrapStoreError("CreateFolder", invalid("user id is required"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f := &memFolder{
		Folder: Folder{
			ID:        uuid.NewString(),
			UserID:    userID,
			Title:     title,
			CreatedAt: m.now(),
		},
		seq: m.nextSeq(),
	}
	m.folders[f.ID] = f
	out := f.Folder
	return &out, nil
}

// DeleteFolderMoveSummariesToUnsorted deletes the folder and leaves its summaries unsorted.
func (m *MemoryRepository) DeleteFolderMoveSummariesToUnsorted(ctx context.Context, userID, folderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ownedFolder(userID, folderID); !ok {
		return nil
	}
	for _, s := range m.summaries {
		if s.FolderID == folderID {
			s.FolderID = ""
		}
	}
	delete(m.folders, folderID)
	return nil
}

// DeleteFolderWithSummaries deletes the folder together with its summaries, pages and chats.
func (m *MemoryRepository) DeleteFolderWithSummaries(ctx context.Context, userID, folderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ownedFolder(userID, folderID); !ok {
		return nil
	}
	for id, s := range m.summaries {
		if s.FolderID == folderID {
			m.removeSummary(id)
		}
	}
	delete(m.folders, folderID)
	return nil
}

// ListUnsortedSummaries returns the user's summaries outside any folder, newest first.
func (m *MemoryRepository) ListUnsortedSummaries(ctx context.Context, userID string) ([]Summary, error) {
	return m.listSummaries(ctx, userID, "")
}

// ListSummariesByFolder returns the summaries filed in the folder, newest first.
func (m *MemoryRepository) ListSummariesByFolder(ctx context.Context, userID, folderID string) ([]Summary, error) {
	if folderID == "" {
		return nil, wrapStoreError("ListSummariesByFolder", invalid("folder id is required"))
	}
	return m.listSummaries(ctx, userID, folderID)
}

func (m *MemoryRepository) listSummaries(ctx context.Context, userID, folderID string) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*memSummary, 0)
	for _, s := range m.summaries {
		if s.UserID == userID && s.FolderID == folderID {
			records = append(records, s)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq > records[j].seq })

	summaries := make([]Summary, len(records))
	for i, s := range records {
		summaries[i] = s.Summary
	}
	return summaries, nil
}

// GetSummary returns one summary or ErrNotFound.
func (m *MemoryRepository) GetSummary(ctx context.Context, summaryID string) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.summaries[summaryID]
	if !ok {
		return nil, wrapStoreError("GetSummary", notFound("summary", summaryID))
	}
	out := s.Summary
	return &out, nil
}

// CreateSummary stores the summary under a new id. A non-empty FolderID must
// name one of the user's folders, whose count is incremented.
func (m *MemoryRepository) CreateSummary(ctx context.Context, summary Summary) (string, error) {
	const op = "CreateSummary"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if summary.UserID == "" {
		return "", wrapStoreError(op, invalid("user id is required"))
	}
	if summary.PageCount < 0 {
		return "", wrapStoreError(op, invalid("page count %d is negative", summary.PageCount))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if summary.FolderID != "" {
		f, ok := m.ownedFolder(summary.UserID, summary.FolderID)
		if !ok {
			return "", wrapStoreError(op, notFound("folder", summary.FolderID))
		}
		f.SummaryCount++
	}

	summary.ID = uuid.NewString()
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = m.now()
	}
	m.summaries[summary.ID] = &memSummary{Summary: summary, seq: m.nextSeq()}
	return summary.ID, nil
}

// DeleteSummary removes the summary with its pages and chats.
func (m *MemoryRepository) DeleteSummary(ctx context.Context, userID, summaryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.summaries[summaryID]
	if !ok || s.UserID != userID {
		return nil
	}
	if f, ok := m.folders[s.FolderID]; ok {
		f.SummaryCount = decrement(f.SummaryCount)
	}
	m.removeSummary(summaryID)
	return nil
}

// UpdateSummaryPageCount sets the stored page count.
func (m *MemoryRepository) UpdateSummaryPageCount(ctx context.Context, summaryID string, count int) error {
	const op = "UpdateSummaryPageCount"
	if err := ctx.Err(); err != nil {
		return err
	}
	if count < 0 {
		return wrapStoreError(op, invalid("page count %d is negative", count))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.summaries[summaryID]
	if !ok {
		return wrapStoreError(op, notFound("summary", summaryID))
	}
	s.PageCount = count
	return nil
}

// CreatePage stores a page of an existing summary.
func (m *MemoryRepository) CreatePage(ctx context.Context, page Page) (string, error) {
	const op = "CreatePage"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if page.PageNumber < 1 {
		return "", wrapStoreError(op, invalid("page number %d must be at least 1", page.PageNumber))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.summaries[page.SummaryID]; !ok {
		return "", wrapStoreError(op, notFound("summary", page.SummaryID))
	}
	page.ID = uuid.NewString()
	if page.CreatedAt.IsZero() {
		page.CreatedAt = m.now()
	}
	m.pages[page.SummaryID] = append(m.pages[page.SummaryID], page)
	return page.ID, nil
}

// ListPages returns the summary's pages ordered by page number.
func (m *MemoryRepository) ListPages(ctx context.Context, summaryID string) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	pages := append([]Page(nil), m.pages[summaryID]...)
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

// AddSummariesToFolder moves the listed summaries into the folder.
func (m *MemoryRepository) AddSummariesToFolder(ctx context.Context, userID, folderID string, summaryIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(summaryIDs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.ownedFolder(userID, folderID)
	if !ok {
		return wrapStoreError("AddSummariesToFolder", notFound("folder", folderID))
	}
	for _, id := range summaryIDs {
		s, ok := m.summaries[id]
		if !ok || s.UserID != userID || s.FolderID == folderID {
			continue
		}
		if previous, ok := m.folders[s.FolderID]; ok {
			previous.SummaryCount = decrement(previous.SummaryCount)
		}
		s.FolderID = folderID
		target.SummaryCount++
	}
	return nil
}

// RemoveSummaryFromFolder makes the summary unsorted.
func (m *MemoryRepository) RemoveSummaryFromFolder(ctx context.Context, userID, summaryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.summaries[summaryID]
	if !ok || s.UserID != userID || s.FolderID == "" {
		return nil
	}
	if f, ok := m.folders[s.FolderID]; ok {
		f.SummaryCount = decrement(f.SummaryCount)
	}
	s.FolderID = ""
	return nil
}

// CreateChat starts a chat about an existing summary.
func (m *MemoryRepository) CreateChat(ctx context.Context, chat Chat) (string, error) {
	const op = "CreateChat"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.summaries[chat.SummaryID]; !ok {
		return "", wrapStoreError(op, notFound("summary", chat.SummaryID))
	}
	chat.ID = uuid.NewString()
	now := m.now()
	if chat.StartedAt.IsZero() {
		chat.StartedAt = now
	}
	chat.UpdatedAt = chat.StartedAt
	m.chats[chat.ID] = &chat
	return chat.ID, nil
}

// GetChat returns the chat or ErrNotFound.
func (m *MemoryRepository) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, ok := m.chats[chatID]
	if !ok {
		return nil, wrapStoreError("GetChat", notFound("chat", chatID))
	}
	c := *chat
	return &c, nil
}

// TouchChat sets the chat's UpdatedAt to now.
func (m *MemoryRepository) TouchChat(ctx context.Context, chatID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[chatID]
	if !ok {
		return wrapStoreError("TouchChat", notFound("chat", chatID))
	}
	chat.UpdatedAt = m.now()
	return nil
}

// AddMessage appends a message to an existing chat.
func (m *MemoryRepository) AddMessage(ctx context.Context, message Message) (string, error) {
	const op = "AddMessage"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateMessage(message); err != nil {
		return "", wrapStoreError(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chats[message.ChatID]; !ok {
		return "", wrapStoreError(op, notFound("chat", message.ChatID))
	}
	message.ID = uuid.NewString()
	if message.SentAt.IsZero() {
		message.SentAt = m.now()
	}
	m.messages[message.ChatID] = append(m.messages[message.ChatID], message)
	return message.ID, nil
}

// ListMessages returns the chat's messages in the order they were added.
func (m *MemoryRepository) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]Message(nil), m.messages[chatID]...), nil
}

// Close implements Store. The data is dropped with the repository.
func (m *MemoryRepository) Close() error {
	return nil
}

func (m *MemoryRepository) ownedFolder(userID, folderID string) (*memFolder, bool) {
	f, ok := m.folders[folderID]
	if !ok || f.UserID != userID {
		return nil, false
	}
	return f, true
}

// removeSummary drops the summary and everything hanging off it. Callers hold the lock.
func (m *MemoryRepository) removeSummary(summaryID string) {
	delete(m.summaries, summaryID)
	delete(m.pages, summaryID)
	for id, chat := range m.chats {
		if chat.SummaryID == summaryID {
			delete(m.messages, id)
			delete(m.chats, id)
		}
	}
}

func validateMessage(message Message) error {
	if message.Sender != SenderUser && message.Sender != SenderAI {
		return invalid("unknown sender %q", message.Sender)
	}
	if strings.TrimSpace(message.Text) == "" {
		return invalid("message text is blank")
	}
	return nil
}

func decrement(count int) int {
	if count <= 0 {
		return 0
	}
	return count - 1
}
