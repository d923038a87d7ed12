package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestSetup_RejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	require.Error(t, Setup(cfg))
}

func TestSetup_SetsGlobalLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	cfg := DefaultConfig()
	cfg.Level = "DEBUG"
	require.NoError(t, Setup(cfg))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestNewOutput_FileIsRotated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartnotes.log")

	out := newOutput(LogConfig{Output: path})
	rotating, ok := out.(*lumberjack.Logger)
	require.True(t, ok)
	t.Cleanup(func() { _ = rotating.Close() })

	assert.Equal(t, path, rotating.Filename)
	assert.Equal(t, DefaultMaxSizeMB, rotating.MaxSize)
	assert.Equal(t, DefaultMaxBackups, rotating.MaxBackups)
	assert.Equal(t, DefaultMaxAgeDays, rotating.MaxAge)

	_, err := rotating.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestNewOutput_StandardStreams(t *testing.T) {
	assert.Equal(t, os.Stdout, newOutput(LogConfig{Output: "stdout"}))
	assert.Equal(t, os.Stderr, newOutput(LogConfig{Output: "stderr"}))
	assert.Equal(t, os.Stderr, newOutput(LogConfig{}))
}

func TestScopedLoggers_AddFields(t *testing.T) {
	previous := log.Logger
	t.Cleanup(func() { log.Logger = previous })

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	componentLog := WithComponent("digitize")
	componentLog.Info().Msg("scanned")
	assert.Contains(t, buf.String(), `"component":"digitize"`)

	buf.Reset()
	userLog := WithUserID("alice")
	userLog.Info().Msg("signed in")
	assert.Contains(t, buf.String(), `"user_id":"alice"`)
}
