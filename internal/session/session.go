// Package session remembers who is using the CLI between invocations and
// picks the notes store that goes with them.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"smartnotes/internal/logger"
	"smartnotes/internal/notes"
)

// GuestUserID owns everything created in guest mode.
const GuestUserID = "guest"

// ErrNoSession is returned when nobody is signed in and guest mode is off.
var ErrNoSession = errors.New("no active session: run 'smartnotes session login <user>' or 'smartnotes session guest'")

// State is the persisted session.
type State struct {
	GuestMode bool   `yaml:"guest_mode"`
	UserID    string `yaml:"user_id,omitempty"`
}

// Active reports whether the state names someone to act as.
func (s State) Active() bool {
	return s.GuestMode || s.UserID != ""
}

// EffectiveUserID returns the user id that owns the session's notes.
func (s State) EffectiveUserID() string {
	if s.GuestMode {
		return GuestUserID
	}
	return s.UserID
}

// Manager reads and writes the session file.
type Manager struct {
	path string
	log  zerolog.Logger
}

// NewManager returns a manager for the session file at path.
func NewManager(path string) *Manager {
	return &Manager{
		path: path,
		log:  logger.WithComponent("session"),
	}
}

// Path returns the session file location.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the session. A missing file is an empty state.
func (m *Manager) Load() (State, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to parse session file %s: %w", m.path, err)
	}
	return state, nil
}

// SetGuest switches to guest mode.
func (m *Manager) SetGuest() (State, error) {
	state := State{GuestMode: true}
	return state, m.save(state)
}

// SetUser signs in as userID and leaves guest mode.
func (m *Manager) SetUser(userID string) (State, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return State{}, fmt.Errorf("user id is required")
	}
	if userID == GuestUserID {
		return State{}, fmt.Errorf("user id %q is reserved for guest mode", GuestUserID)
	}
	state := State{UserID: userID}
	return state, m.save(state)
}

// Clear signs out. Clearing an absent session is not an error.
func (m *Manager) Clear() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	m.log.Debug().Str("path", m.path).Msg("Session cleared")
	return nil
}

func (m *Manager) save(state State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	m.log.Debug().Str("path", m.path).Bool("guest", state.GuestMode).Str("user_id", state.UserID).Msg("Session saved")
	return nil
}

// OpenFunc opens the persistent notes store.
type OpenFunc func(ctx context.Context) (notes.Store, error)

// Provider hands out the notes store for a session. Guest data lives in one
// in-memory repository shared by the whole process.
type Provider struct {
	open OpenFunc

	guestOnce sync.Once
	guest     *notes.MemoryRepository
}

// NewProvider returns a provider that opens persistent stores with open.
func NewProvider(open OpenFunc) *Provider {
	return &Provider{open: open}
}

// Notes returns the store for state.
func (p *Provider) Notes(ctx context.Context, state State) (notes.Store, error) {
	switch {
	case state.GuestMode:
		p.guestOnce.Do(func() { p.guest = notes.NewMemoryRepository() })
		return p.guest, nil
	case state.UserID != "":
		if p.open == nil {
			return nil, fmt.Errorf("no persistent store configured")
		}
		return p.open(ctx)
	default:
		return nil, ErrNoSession
	}
}
