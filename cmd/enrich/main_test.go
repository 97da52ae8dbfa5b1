package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_LogsToStderr(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)
	assert.Equal(t, "stderr", cfg.Log.Output)
}

func TestLoadConfig_KeepsLogFile(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "environment: test\nlog:\n  output: /tmp/enrich.log\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/enrich.log", cfg.Log.Output)
}
