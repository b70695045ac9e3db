package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
	for _, l := range Levels {
		assert.True(t, l.Valid(), l)
		assert.NotEqual(t, zerolog.NoLevel, ParseLevel(string(l)))
	}
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(string(ErrorLevel)))
	assert.True(t, LogLevel("Warning").Valid())
	assert.False(t, LogLevel("verbose").Valid())
}

func TestInitWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "recorder.log")
	require.NoError(t, Init(Options{Level: "debug", File: path}))
	t.Cleanup(func() {
		Close()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	WithComponent("test").Debug().Str("key", "value").Msg("hello")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"message":"hello"`)
}
