package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartnotes/internal/logger"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"
)

// SQLiteConfig holds connection settings for the persistent store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string
	// BusyTimeout is how long to wait for locks.
	BusyTimeout time.Duration
}

// SQLiteRepository is the persistent Store.
type SQLiteRepository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

var _ Store = (*SQLiteRepository)(nil)

// OpenSQLite migrates the database at path and opens the store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	return OpenSQLiteWithConfig(ctx, SQLiteConfig{Path: path, BusyTimeout: 5 * time.Second})
}

// OpenSQLiteWithConfig migrates the database and opens the store.
func OpenSQLiteWithConfig(ctx context.Context, config SQLiteConfig) (*SQLiteRepository, error) {
	log := logger.WithComponent("notes-sqlite")

	migrationConn, err := openConnection(ctx, config)
	if err != nil {
		return nil, wrapStoreError("Open", err)
	}
	if err := MigrateUp(migrationConn); err != nil {
		return nil, wrapStoreError("Migrate", err)
	}

	db, err := openConnection(ctx, config)
	if err != nil {
		return nil, wrapStoreError("Open", err)
	}

	log.Debug().Str("path", config.Path).Msg("Notes database ready")
	return &SQLiteRepository{db: db, log: log, now: time.Now}, nil
}

// openConnection opens a WAL-mode connection with foreign keys enforced. One
// open connection keeps the per-connection pragmas in effect.
func openConnection(ctx context.Context, config SQLiteConfig) (*sql.DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []struct {
		name  string
		query string
	}{
		{"journal_mode", "PRAGMA journal_mode=WAL"},
		{"busy_timeout", fmt.Sprintf("PRAGMA busy_timeout=%d", config.BusyTimeout.Milliseconds())},
		{"foreign_keys", "PRAGMA foreign_keys=ON"},
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.query); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s pragma: %w", p.name, err)
		}
	}

	return db, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// ListFolders returns the user's folders, newest first.
func (r *SQLiteRepository) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at, summary_count
		FROM folders WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, wrapStoreError("ListFolders", err)
	}
	defer rows.Close()

	folders := []Folder{}
	for rows.Next() {
		var f Folder
		var created int64
		if err := rows.Scan(&f.ID, &f.UserID, &f.Title, &created, &f.SummaryCount); err != nil {
			return nil, wrapStoreError("ListFolders", err)
		}
		f.CreatedAt = fromUnixNano(created)
		folders = append(folders, f)
	}
	return folders, wrapStoreError("ListFolders", rows.Err())
}

// CreateFolder adds an empty folder.
func (r *SQLiteRepository) CreateFolder(ctx context.Context, userID, title string) (*Folder, error) {
	const op = "CreateFolder"
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, wrapStoreError(op, invalid("folder title is blank"))
	}
	if userID == "" {
		return nil, wrapStoreError(op, invalid("user id is required"))
	}

	f := Folder{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: r.now(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO folders (id, user_id, title, created_at, summary_count) VALUES (?, ?, ?, ?, 0)`,
		f.ID, f.UserID, f.Title, f.CreatedAt.UnixNano())
	if err != nil {
		return nil, wrapStoreError(op, err)
	}
	return &f, nil
}

// DeleteFolderMoveSummariesToUnsorted deletes the folder and leaves its summaries unsorted.
func (r *SQLiteRepository) DeleteFolderMoveSummariesToUnsorted(ctx context.Context, userID, folderID string) error {
	return r.withTx(ctx, "DeleteFolderMoveSummariesToUnsorted", func(tx *sql.Tx) error {
		owned, err := folderOwned(ctx, tx, userID, folderID)
		if err != nil || !owned {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE summaries SET folder_id = NULL WHERE folder_id = ?`, folderID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, folderID)
		return err
	})
}

// DeleteFolderWithSummaries deletes the folder together with its summaries.
// Pages, chats and messages go with them through cascading foreign keys.
func (r *SQLiteRepository) DeleteFolderWithSummaries(ctx context.Context, userID, folderID string) error {
	return r.withTx(ctx, "DeleteFolderWithSummaries", func(tx *sql.Tx) error {
		owned, err := folderOwned(ctx, tx, userID, folderID)
		if err != nil || !owned {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE folder_id = ?`, folderID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, folderID)
		return err
	})
}

// ListUnsortedSummaries returns the user's summaries outside any folder, newest first.
func (r *SQLiteRepository) ListUnsortedSummaries(ctx context.Context, userID string) ([]Summary, error) {
	return r.querySummaries(ctx, "ListUnsortedSummaries", `
		SELECT id, user_id, folder_id, title, page_count, created_at
		FROM summaries WHERE user_id = ? AND folder_id IS NULL
		ORDER BY created_at DESC, rowid DESC`, userID)
}

// ListSummariesByFolder returns the summaries filed in the folder, newest first.
func (r *SQLiteRepository) ListSummariesByFolder(ctx context.Context, userID, folderID string) ([]Summary, error) {
	const op = "ListSummariesByFolder"
	if folderID == "" {
		return nil, wrapStoreError(op, invalid("folder id is required"))
	}
	return r.querySummaries(ctx, op, `
		SELECT id, user_id, folder_id, title, page_count, created_at
		FROM summaries WHERE user_id = ? AND folder_id = ?
		ORDER BY created_at DESC, rowid DESC`, userID, folderID)
}

func (r *SQLiteRepository) querySummaries(ctx context.Context, op, query string, args ...any) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreError(op, err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, wrapStoreError(op, err)
		}
		summaries = append(summaries, *s)
	}
	return summaries, wrapStoreError(op, rows.Err())
}

// GetSummary returns one summary or ErrNotFound.
func (r *SQLiteRepository) GetSummary(ctx context.Context, summaryID string) (*Summary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, folder_id, title, page_count, created_at
		FROM summaries WHERE id = ?`, summaryID)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrapStoreError("GetSummary", notFound("summary", summaryID))
	}
	if err != nil {
		return nil, wrapStoreError("GetSummary", err)
	}
	return s, nil
}

// CreateSummary stores the summary under a new id. A non-empty FolderID must
// name one of the user's folders, whose count is incremented.
func (r *SQLiteRepository) CreateSummary(ctx context.Context, summary Summary) (string, error) {
	const op = "CreateSummary"
	if summary.UserID == "" {
		return "", wrapStoreError(op, invalid("user id is required"))
	}
	if summary.PageCount < 0 {
		return "", wrapStoreError(op, invalid("page count %d is negative", summary.PageCount))
	}

	summary.ID = uuid.NewString()
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = r.now()
	}

	err := r.withTx(ctx, op, func(tx *sql.Tx) error {
		if summary.FolderID != "" {
			owned, err := folderOwned(ctx, tx, summary.UserID, summary.FolderID)
			if err != nil {
				return err
			}
			if !owned {
				return notFound("folder", summary.FolderID)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE folders SET summary_count = summary_count + 1 WHERE id = ?`, summary.FolderID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO summaries (id, user_id, folder_id, title, page_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			summary.ID, summary.UserID, nullable(summary.FolderID), summary.Title,
			summary.PageCount, summary.CreatedAt.UnixNano())
		return err
	})
	if err != nil {
		return "", err
	}
	return summary.ID, nil
}

// DeleteSummary removes the summary with its pages and chats.
func (r *SQLiteRepository) DeleteSummary(ctx context.Context, userID, summaryID string) error {
	return r.withTx(ctx, "DeleteSummary", func(tx *sql.Tx) error {
		var folderID sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT folder_id FROM summaries WHERE id = ? AND user_id = ?`, summaryID, userID).Scan(&folderID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := decrementFolder(ctx, tx, folderID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM summaries WHERE id = ?`, summaryID)
		return err
	})
}

// UpdateSummaryPageCount sets the stored page count.
func (r *SQLiteRepository) UpdateSummaryPageCount(ctx context.Context, summaryID string, count int) error {
	const op = "UpdateSummaryPageCount"
	if count < 0 {
		return wrapStoreError(op, invalid("page count %d is negative", count))
	}
	res, err := r.db.ExecContext(ctx, `UPDATE summaries SET page_count = ? WHERE id = ?`, count, summaryID)
	if err != nil {
		return wrapStoreError(op, err)
	}
	return wrapStoreError(op, requireAffected(res, "summary", summaryID))
}

// CreatePage stores a page of an existing summary.
func (r *SQLiteRepository) CreatePage(ctx context.Context, page Page) (string, error) {
	const op = "CreatePage"
	if page.PageNumber < 1 {
		return "", wrapStoreError(op, invalid("page number %d must be at least 1", page.PageNumber))
	}
	page.ID = uuid.NewString()
	if page.CreatedAt.IsZero() {
		page.CreatedAt = r.now()
	}

	err := r.withTx(ctx, op, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, `SELECT 1 FROM summaries WHERE id = ?`, "summary", page.SummaryID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pages (id, summary_id, page_number, image_url, recognized_text, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			page.ID, page.SummaryID, page.PageNumber, page.ImageURL, page.RecognizedText, page.CreatedAt.UnixNano())
		return err
	})
	if err != nil {
		return "", err
	}
	return page.ID, nil
}

// ListPages returns the summary's pages ordered by page number.
func (r *SQLiteRepository) ListPages(ctx context.Context, summaryID string) ([]Page, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, summary_id, page_number, image_url, recognized_text, created_at
		FROM pages WHERE summary_id = ?
		ORDER BY page_number, rowid`, summaryID)
	if err != nil {
		return nil, wrapStoreError("ListPages", err)
	}
	defer rows.Close()

	pages := []Page{}
	for rows.Next() {
		var p Page
		var created int64
		if err := rows.Scan(&p.ID, &p.SummaryID, &p.PageNumber, &p.ImageURL, &p.RecognizedText, &created); err != nil {
			return nil, wrapStoreError("ListPages", err)
		}
		p.CreatedAt = fromUnixNano(created)
		pages = append(pages, p)
	}
	return pages, wrapStoreError("ListPages", rows.Err())
}

// AddSummariesToFolder moves the listed summaries into the folder.
func (r *SQLiteRepository) AddSummariesToFolder(ctx context.Context, userID, folderID string, summaryIDs []string) error {
	const op = "AddSummariesToFolder"
	if len(summaryIDs) == 0 {
		return nil
	}
	return r.withTx(ctx, op, func(tx *sql.Tx) error {
		owned, err := folderOwned(ctx, tx, userID, folderID)
		if err != nil {
			return err
		}
		if !owned {
			return notFound("folder", folderID)
		}

		moved := 0
		for _, id := range summaryIDs {
			var current sql.NullString
			err := tx.QueryRowContext(ctx,
				`SELECT folder_id FROM summaries WHERE id = ? AND user_id = ?`, id, userID).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			if current.Valid && current.String == folderID {
				continue
			}
			if err := decrementFolder(ctx, tx, current); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE summaries SET folder_id = ? WHERE id = ?`, folderID, id); err != nil {
				return err
			}
			moved++
		}

		if moved == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE folders SET summary_count = summary_count + ? WHERE id = ?`, moved, folderID)
		return err
	})
}

// RemoveSummaryFromFolder makes the summary unsorted.
func (r *SQLiteRepository) RemoveSummaryFromFolder(ctx context.Context, userID, summaryID string) error {
	return r.withTx(ctx, "RemoveSummaryFromFolder", func(tx *sql.Tx) error {
		var folderID sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT folder_id FROM summaries WHERE id = ? AND user_id = ?`, summaryID, userID).Scan(&folderID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !folderID.Valid) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := decrementFolder(ctx, tx, folderID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE summaries SET folder_id = NULL WHERE id = ?`, summaryID)
		return err
	})
}

// CreateChat starts a chat about an existing summary.
func (r *SQLiteRepository) CreateChat(ctx context.Context, chat Chat) (string, error) {
	const op = "CreateChat"
	chat.ID = uuid.NewString()
	if chat.StartedAt.IsZero() {
		chat.StartedAt = r.now()
	}
	chat.UpdatedAt = chat.StartedAt

	err := r.withTx(ctx, op, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, `SELECT 1 FROM summaries WHERE id = ?`, "summary", chat.SummaryID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chats (id, summary_id, started_at, updated_at) VALUES (?, ?, ?, ?)`,
			chat.ID, chat.SummaryID, chat.StartedAt.UnixNano(), chat.UpdatedAt.UnixNano())
		return err
	})
	if err != nil {
		return "", err
	}
	return chat.ID, nil
}

// GetChat returns the chat or ErrNotFound.
func (r *SQLiteRepository) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var c Chat
	var started, updated int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, summary_id, started_at, updated_at FROM chats WHERE id = ?`, chatID).
		Scan(&c.ID, &c.SummaryID, &started, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrapStoreError("GetChat", notFound("chat", chatID))
	}
	if err != nil {
		return nil, wrapStoreError("GetChat", err)
	}
	c.StartedAt = fromUnixNano(started)
	c.UpdatedAt = fromUnixNano(updated)
	return &c, nil
}

// TouchChat sets the chat's UpdatedAt to now.
func (r *SQLiteRepository) TouchChat(ctx context.Context, chatID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, r.now().UnixNano(), chatID)
	if err != nil {
		return wrapStoreError("TouchChat", err)
	}
	return wrapStoreError("TouchChat", requireAffected(res, "chat", chatID))
}

// AddMessage appends a message to an existing chat.
func (r *SQLiteRepository) AddMessage(ctx context.Context, message Message) (string, error) {
	const op = "AddMessage"
	if err := validateMessage(message); err != nil {
		return "", wrapStoreError(op, err)
	}
	message.ID = uuid.NewString()
	if message.SentAt.IsZero() {
		message.SentAt = r.now()
	}

	err := r.withTx(ctx, op, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, `SELECT 1 FROM chats WHERE id = ?`, "chat", message.ChatID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, sender, text, sent_at) VALUES (?, ?, ?, ?, ?)`,
			message.ID, message.ChatID, message.Sender, message.Text, message.SentAt.UnixNano())
		return err
	})
	if err != nil {
		return "", err
	}
	return message.ID, nil
}

// ListMessages returns the chat's messages in the order they were added.
func (r *SQLiteRepository) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, sender, text, sent_at
		FROM messages WHERE chat_id = ?
		ORDER BY sent_at, rowid`, chatID)
	if err != nil {
		return nil, wrapStoreError("ListMessages", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var sent int64
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Text, &sent); err != nil {
			return nil, wrapStoreError("ListMessages", err)
		}
		m.SentAt = fromUnixNano(sent)
		messages = append(messages, m)
	}
	return messages, wrapStoreError("ListMessages", rows.Err())
}

// withTx runs fn in a transaction and wraps any error with op. The pool holds
// a single connection, so fn must only use tx.
func (r *SQLiteRepository) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreError(op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Warn().Err(rbErr).Str("op", op).Msg("Rollback failed")
		}
		return wrapStoreError(op, err)
	}
	return wrapStoreError(op, tx.Commit())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*Summary, error) {
	var s Summary
	var folderID sql.NullString
	var created int64
	if err := row.Scan(&s.ID, &s.UserID, &folderID, &s.Title, &s.PageCount, &created); err != nil {
		return nil, err
	}
	s.FolderID = folderID.String
	s.CreatedAt = fromUnixNano(created)
	return &s, nil
}

func folderOwned(ctx context.Context, tx *sql.Tx, userID, folderID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM folders WHERE id = ? AND user_id = ?`, folderID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func decrementFolder(ctx context.Context, tx *sql.Tx, folderID sql.NullString) error {
	if !folderID.Valid {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE folders SET summary_count = MAX(summary_count - 1, 0) WHERE id = ?`, folderID.String)
	return err
}

func requireRow(ctx context.Context, tx *sql.Tx, query, kind, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	return err
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n)
}
