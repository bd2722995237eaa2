package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "asnkit.yaml", "default_format: uper\ncache_dir: /tmp/asn\nlog_level: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Config{DefaultFormat: "uper", CacheDir: "/tmp/asn", MaxDepth: 64, LogLevel: "debug"}, cfg)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "asnkit.toml", "default_format = \"xer\"\nmax_depth = 8\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Config{DefaultFormat: "xer", MaxDepth: 8}, cfg)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvConfig, writeFile(t, "env.yaml", "default_format: oer\n"))
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "oer", cfg.DefaultFormat)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		msg  string
	}{
		{"unknown format", "a.yaml", "default_format: cer\n", "default_format"},
		{"negative depth", "b.yaml", "max_depth: -1\n", "max_depth"},
		{"bad level", "c.yaml", "log_level: loud\n", "log_level"},
		{"bad yaml", "d.yaml", "default_format: [\n", "config parse failed"},
		{"bad toml", "e.toml", "default_format = \n", "config parse failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.body))
			require.ErrorContains(t, err, tt.msg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
