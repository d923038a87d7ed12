package notes

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "alice"
	bob   = "bob"
)

type storeFactory func(t *testing.T) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryRepository()
		},
		"sqlite": func(t *testing.T) Store {
			repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "notes.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = repo.Close() })
			return repo
		},
	}
}

func forEachStore(t *testing.T, test func(t *testing.T, ctx context.Context, store Store)) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			test(t, context.Background(), factory(t))
		})
	}
}

func mustSummary(t *testing.T, ctx context.Context, store Store, userID, folderID, title string) string {
	t.Helper()
	id, err := store.CreateSummary(ctx, Summary{UserID: userID, FolderID: folderID, Title: title})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func folderCount(t *testing.T, ctx context.Context, store Store, userID, folderID string) int {
	t.Helper()
	folders, err := store.ListFolders(ctx, userID)
	require.NoError(t, err)
	for _, f := range folders {
		if f.ID == folderID {
			return f.SummaryCount
		}
	}
	t.Fatalf("folder %s not found", folderID)
	return 0
}

func summaryTitles(summaries []Summary) []string {
	titles := make([]string, len(summaries))
	for i, s := range summaries {
		titles[i] = s.Title
	}
	return titles
}

func TestFolders(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		_, err := store.CreateFolder(ctx, alice, "   ")
		require.ErrorIs(t, err, ErrInvalidInput)

		physics, err := store.CreateFolder(ctx, alice, " Physics ")
		require.NoError(t, err)
		assert.Equal(t, "Physics", physics.Title)
		assert.Equal(t, 0, physics.SummaryCount)
		assert.False(t, physics.CreatedAt.IsZero())

		_, err = store.CreateFolder(ctx, alice, "History")
		require.NoError(t, err)
		_, err = store.CreateFolder(ctx, bob, "Bob's folder")
		require.NoError(t, err)

		folders, err := store.ListFolders(ctx, alice)
		require.NoError(t, err)
		require.Len(t, folders, 2)
		assert.Equal(t, "History", folders[0].Title)
		assert.Equal(t, "Physics", folders[1].Title)

		empty, err := store.ListFolders(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestCreateSummary(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		folder, err := store.CreateFolder(ctx, alice, "Physics")
		require.NoError(t, err)

		filed := mustSummary(t, ctx, store, alice, folder.ID, "Lecture 1")
		loose := mustSummary(t, ctx, store, alice, "", "Lecture 2")
		assert.NotEqual(t, filed, loose)

		got, err := store.GetSummary(ctx, filed)
		require.NoError(t, err)
		assert.Equal(t, folder.ID, got.FolderID)
		assert.Equal(t, "Lecture 1", got.Title)
		assert.False(t, got.Unsorted())
		assert.Equal(t, 1, folderCount(t, ctx, store, alice, folder.ID))

		_, err = store.GetSummary(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = store.CreateSummary(ctx, Summary{UserID: alice, FolderID: "missing", Title: "x"})
		require.ErrorIs(t, err, ErrNotFound)

		_, err = store.CreateSummary(ctx, Summary{UserID: bob, FolderID: folder.ID, Title: "x"})
		require.ErrorIs(t, err, ErrNotFound, "folders are scoped to their owner")

		_, err = store.CreateSummary(ctx, Summary{Title: "x"})
		require.ErrorIs(t, err, ErrInvalidInput)

		unsorted, err := store.ListUnsortedSummaries(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, []string{"Lecture 2"}, summaryTitles(unsorted))

		inFolder, err := store.ListSummariesByFolder(ctx, alice, folder.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Lecture 1"}, summaryTitles(inFolder))
	})
}

func TestListSummaries_NewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		for _, title := range []string{"first", "second", "third"} {
			mustSummary(t, ctx, store, alice, "", title)
		}
		summaries, err := store.ListUnsortedSummaries(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, []string{"third", "second", "first"}, summaryTitles(summaries))
	})
}

func TestPages(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		summaryID := mustSummary(t, ctx, store, alice, "", "Lecture")

		for _, n := range []int{2, 1, 3} {
			_, err := store.CreatePage(ctx, Page{SummaryID: summaryID, PageNumber: n, RecognizedText: "page text"})
			require.NoError(t, err)
		}
		require.NoError(t, store.UpdateSummaryPageCount(ctx, summaryID, 3))

		pages, err := store.ListPages(ctx, summaryID)
		require.NoError(t, err)
		require.Len(t, pages, 3)
		for i, p := range pages {
			assert.Equal(t, i+1, p.PageNumber)
			assert.Equal(t, summaryID, p.SummaryID)
			assert.NotEmpty(t, p.ID)
		}

		got, err := store.GetSummary(ctx, summaryID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.PageCount)

		_, err = store.CreatePage(ctx, Page{SummaryID: summaryID, PageNumber: 0, RecognizedText: "x"})
		require.ErrorIs(t, err, ErrInvalidInput)

		_, err = store.CreatePage(ctx, Page{SummaryID: "missing", PageNumber: 1, RecognizedText: "x"})
		require.ErrorIs(t, err, ErrNotFound)

		require.ErrorIs(t, store.UpdateSummaryPageCount(ctx, "missing", 1), ErrNotFound)
		require.ErrorIs(t, store.UpdateSummaryPageCount(ctx, summaryID, -1), ErrInvalidInput)
	})
}

func TestDeleteSummary(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		folder, err := store.CreateFolder(ctx, alice, "Physics")
		require.NoError(t, err)
		summaryID := mustSummary(t, ctx, store, alice, folder.ID, "Lecture")

		_, err = store.CreatePage(ctx, Page{SummaryID: summaryID, PageNumber: 1, RecognizedText: "text"})
		require.NoError(t, err)
		chatID, err := store.CreateChat(ctx, Chat{SummaryID: summaryID})
		require.NoError(t, err)
		_, err = store.AddMessage(ctx, Message{ChatID: chatID, Sender: SenderUser, Text: "hi"})
		require.NoError(t, err)

		require.NoError(t, store.DeleteSummary(ctx, bob, summaryID), "other users cannot delete")
		_, err = store.GetSummary(ctx, summaryID)
		require.NoError(t, err)

		require.NoError(t, store.DeleteSummary(ctx, alice, summaryID))
		_, err = store.GetSummary(ctx, summaryID)
		require.ErrorIs(t, err, ErrNotFound)

		pages, err := store.ListPages(ctx, summaryID)
		require.NoError(t, err)
		assert.Empty(t, pages)

		messages, err := store.ListMessages(ctx, chatID)
		require.NoError(t, err)
		assert.Empty(t, messages)
		require.ErrorIs(t, store.TouchChat(ctx, chatID), ErrNotFound)

		assert.Equal(t, 0, folderCount(t, ctx, store, alice, folder.ID))

		require.NoError(t, store.DeleteSummary(ctx, alice, summaryID), "deleting twice is a no-op")
		assert.Equal(t, 0, folderCount(t, ctx, store, alice, folder.ID))
	})
}

func TestAddSummariesToFolder(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		physics, err := store.CreateFolder(ctx, alice, "Physics")
		require.NoError(t, err)
		history, err := store.CreateFolder(ctx, alice, "History")
		require.NoError(t, err)

		a := mustSummary(t, ctx, store, alice, "", "a")
		b := mustSummary(t, ctx, store, alice, "", "b")
		c := mustSummary(t, ctx, store, alice, history.ID, "c")
		foreign := mustSummary(t, ctx, store, bob, "", "foreign")

		require.NoError(t, store.AddSummariesToFolder(ctx, alice, physics.ID, nil))
		assert.Equal(t, 0, folderCount(t, ctx, store, alice, physics.ID))

		err = store.AddSummariesToFolder(ctx, alice, "missing", []string{a})
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.AddSummariesToFolder(ctx, alice, physics.ID, []string{a, b, c, "unknown", foreign}))
		assert.Equal(t, 3, folderCount(t, ctx, store, alice, physics.ID))
		assert.Equal(t, 0, folderCount(t, ctx, store, alice, history.ID))

		require.NoError(t, store.AddSummariesToFolder(ctx, alice, physics.ID, []string{a, b}))
		assert.Equal(t, 3, folderCount(t, ctx, store, alice, physics.ID), "already filed summaries are not counted twice")

		inFolder, err := store.ListSummariesByFolder(ctx, alice, physics.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, summaryTitles(inFolder))

		got, err := store.GetSummary(ctx, foreign)
		require.NoError(t, err)
		assert.True(t, got.Unsorted())
	})
}

func TestRemoveSummaryFromFolder(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		folder, err := store.CreateFolder(ctx, alice, "Physics")
		require.NoError(t, err)
		id := mustSummary(t, ctx, store, alice, folder.ID, "Lecture")

		require.NoError(t, store.RemoveSummaryFromFolder(ctx, alice, id))
		assert.Equal(t, 0, folderCount(t, ctx, store, alice, folder.ID))

		got, err := store.GetSummary(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Unsorted())

		require.NoError(t, store.RemoveSummaryFromFolder(ctx, alice, id))
		require.NoError(t, store.RemoveSummaryFromFolder(ctx, alice, "unknown"))
		assert.Equal(t, 0, folderCount(t, ctx, store, alice, folder.ID))
	})
}

func TestDeleteFolderMoveSummariesToUnsorted(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		folder, err := store.CreateFolder(ctx, alice, "Physics")
		require.NoError(t, err)
		id := mustSummary(t, ctx, store, alice, folder.ID, "Lecture")

		require.NoError(t, store.DeleteFolderMoveSummariesToUnsorted(ctx, bob, folder.ID))
		folders, err := store.ListFolders(ctx, alice)
		require.NoError(t, err)
		require.Len(t, folders, 1, "other users cannot delete")

		require.NoError(t, store.DeleteFolderMoveSummariesToUnsorted(ctx, alice, folder.ID))
		folders, err = store.ListFolders(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, folders)

		got, err := store.GetSummary(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Unsorted())

		require.NoError(t, store.DeleteFolderMoveSummariesToUnsorted(ctx, alice, folder.ID))
	})
}

func TestDeleteFolderWithSummaries(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		folder, err := store.CreateFolder(ctx, alice, "Physics")
		require.NoError(t, err)
		filed := mustSummary(t, ctx, store, alice, folder.ID, "Lecture")
		loose := mustSummary(t, ctx, store, alice, "", "Loose")
		_, err = store.CreatePage(ctx, Page{SummaryID: filed, PageNumber: 1, RecognizedText: "text"})
		require.NoError(t, err)

		require.NoError(t, store.DeleteFolderWithSummaries(ctx, alice, folder.ID))

		_, err = store.GetSummary(ctx, filed)
		require.ErrorIs(t, err, ErrNotFound)
		pages, err := store.ListPages(ctx, filed)
		require.NoError(t, err)
		assert.Empty(t, pages)

		_, err = store.GetSummary(ctx, loose)
		require.NoError(t, err)

		require.NoError(t, store.DeleteFolderWithSummaries(ctx, alice, "missing"))
	})
}

func TestChats(t *testing.T) {
	forEachStore(t, func(t *testing.T, ctx context.Context, store Store) {
		summaryID := mustSummary(t, ctx, store, alice, "", "Lecture")

		_, err := store.CreateChat(ctx, Chat{SummaryID: "missing"})
		require.ErrorIs(t, err, ErrNotFound)

		chatID, err := store.CreateChat(ctx, Chat{SummaryID: summaryID})
		require.NoError(t, err)

		chat, err := store.GetChat(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, chatID, chat.ID)
		assert.Equal(t, summaryID, chat.SummaryID)
		_, err = store.GetChat(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = store.AddMessage(ctx, Message{ChatID: chatID, Sender: SenderUser, Text: "What is entropy?"})
		require.NoError(t, err)
		_, err = store.AddMessage(ctx, Message{ChatID: chatID, Sender: SenderAI, Text: "A measure of disorder."})
		require.NoError(t, err)
		require.NoError(t, store.TouchChat(ctx, chatID))

		_, err = store.AddMessage(ctx, Message{ChatID: chatID, Sender: "robot", Text: "x"})
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = store.AddMessage(ctx, Message{ChatID: chatID, Sender: SenderUser, Text: "  "})
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = store.AddMessage(ctx, Message{ChatID: "missing", Sender: SenderUser, Text: "x"})
		require.ErrorIs(t, err, ErrNotFound)

		messages, err := store.ListMessages(ctx, chatID)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, SenderUser, messages[0].Sender)
		assert.Equal(t, "What is entropy?", messages[0].Text)
		assert.Equal(t, SenderAI, messages[1].Sender)
	})
}

func TestStoreError(t *testing.T) {
	err := wrapStoreError("outer", wrapStoreError("inner", ErrNotFound))
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "inner", storeErr.Op)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "notes: inner failed: not found", err.Error())
	assert.Nil(t, wrapStoreError("op", nil))
}

func TestMigrations(t *testing.T) {
	ctx := context.Background()
	config := SQLiteConfig{Path: filepath.Join(t.TempDir(), "notes.db")}

	repo, err := OpenSQLiteWithConfig(ctx, config)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	open := func() *sql.DB {
		db, err := openConnection(ctx, config)
		require.NoError(t, err)
		return db
	}

	version, dirty, err := SchemaVersion(open())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is fine.
	repo, err = OpenSQLiteWithConfig(ctx, config)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	require.NoError(t, MigrateDown(open()))
	version, _, err = SchemaVersion(open())
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestMigrations_CloseConnection(t *testing.T) {
	ctx := context.Background()
	config := SQLiteConfig{Path: filepath.Join(t.TempDir(), "notes.db")}

	db, err := openConnection(ctx, config)
	require.NoError(t, err)
	require.NoError(t, MigrateUp(db))
	assert.Error(t, db.PingContext(ctx))

	_, err = newMigrator(nil)
	require.Error(t, err)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLiteWithConfig(context.Background(), SQLiteConfig{})
	require.Error(t, err)
}
