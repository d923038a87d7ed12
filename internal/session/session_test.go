package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartnotes/internal/notes"
)

func TestManager_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	m := NewManager(path)
	assert.Equal(t, path, m.Path())

	state, err := m.Load()
	require.NoError(t, err)
	assert.False(t, state.Active())

	_, err = m.SetGuest()
	require.NoError(t, err)
	state, err = m.Load()
	require.NoError(t, err)
	assert.True(t, state.GuestMode)
	assert.Equal(t, GuestUserID, state.EffectiveUserID())

	_, err = m.SetUser("  alice ")
	require.NoError(t, err)
	state, err = m.Load()
	require.NoError(t, err)
	assert.Equal(t, State{UserID: "alice"}, state)
	assert.Equal(t, "alice", state.EffectiveUserID())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, m.Clear())
	require.NoError(t, m.Clear())
	state, err = m.Load()
	require.NoError(t, err)
	assert.False(t, state.Active())
}

func TestManager_SetUserValidation(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "session.yaml"))

	_, err := m.SetUser(" ")
	require.Error(t, err)

	_, err = m.SetUser(GuestUserID)
	require.Error(t, err)
}

func TestManager_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guest_mode: [not a bool"), 0o600))

	_, err := NewManager(path).Load()
	require.Error(t, err)
}

func TestProvider_Notes(t *testing.T) {
	ctx := context.Background()
	persistent := notes.NewMemoryRepository()
	opened := 0
	p := NewProvider(func(ctx context.Context) (notes.Store, error) {
		opened++
		return persistent, nil
	})

	_, err := p.Notes(ctx, State{})
	require.ErrorIs(t, err, ErrNoSession)

	guest1, err := p.Notes(ctx, State{GuestMode: true})
	require.NoError(t, err)
	guest2, err := p.Notes(ctx, State{GuestMode: true, UserID: "ignored"})
	require.NoError(t, err)
	assert.Same(t, guest1, guest2, "guest data is shared within the process")
	assert.Equal(t, 0, opened)

	store, err := p.Notes(ctx, State{UserID: "alice"})
	require.NoError(t, err)
	assert.Same(t, persistent, store)
	assert.Equal(t, 1, opened)
}

func TestProvider_WithoutOpener(t *testing.T) {
	_, err := NewProvider(nil).Notes(context.Background(), State{UserID: "alice"})
	require.Error(t, err)
}
