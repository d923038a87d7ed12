// Package notes stores digitized notes: folders hold summaries, summaries
// hold numbered pages of recognized text.
//
// Two stores implement Repository: MemoryRepository keeps guest data for the
// lifetime of the process, SQLiteRepository persists everything in a local
// SQLite database.
package notes

import "time"

// Message senders.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Folder groups summaries. SummaryCount is maintained by the repository.
type Folder struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	SummaryCount int       `json:"summary_count"`
}

// Summary is one digitized set of notes. An empty FolderID means unsorted.
type Summary struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FolderID  string    `json:"folder_id"`
	Title     string    `json:"title"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Unsorted reports whether the summary is outside any folder.
func (s Summary) Unsorted() bool {
	return s.FolderID == ""
}

// Page is one page-sized chunk of a summary. PageNumber starts at 1.
type Page struct {
	ID             string    `json:"id"`
	SummaryID      string    `json:"summary_id"`
	PageNumber     int       `json:"page_number"`
	ImageURL       string    `json:"image_url,omitempty"`
	RecognizedText string    `json:"recognized_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// Chat is a conversation with the assistant about one summary.
type Chat struct {
	ID        string    `json:"id"`
	SummaryID string    `json:"summary_id"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn of a chat. Sender is SenderUser or SenderAI.
type Message struct {
	ID     string    `json:"id"`
	ChatID string    `json:"chat_id"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}
