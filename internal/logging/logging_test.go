package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{" WARNING ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
	}
}

func TestNewHonoursFlagAndEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogJSON, "true")

	var buf bytes.Buffer
	l := New(&buf, ProfileRuntime, "")
	l.Info().Msg("hidden")
	require.Empty(t, buf.String())

	l = New(&buf, ProfileRuntime, "info")
	l.Info().Msg("shown")
	require.Contains(t, buf.String(), `"message":"shown"`)

	buf.Reset()
	t.Setenv(EnvLogLevel, "error")
	l = New(&buf, ProfileTest, "debug")
	l.Warn().Msg("hidden")
	require.Empty(t, buf.String())
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	l := DefaultConfig(ProfileTest).Logger(&buf)
	l.Debug().Str("format", "uper").Msg("compiled")
	require.Contains(t, buf.String(), "compiled")
	require.Contains(t, buf.String(), "format=uper")
	require.NotContains(t, buf.String(), "\x1b[")
}
