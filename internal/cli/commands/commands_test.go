package commands

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"davwatch/internal/common"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configDir, logLevel = "", ""
		stateFolders, stateFiles = false, false
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestConfigCommand_MasksSecrets(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DAVWATCH_CONFIG_DIR", dir)
	t.Setenv("WEBDAV_URL", "https://dav.example.com/webdav")
	t.Setenv("WEBDAV_PASSWORD", "hunter2")
	t.Setenv("DISCORD_WEBHOOK", "https://hooks.example.com/secret-token")

	out, err := execute(t, "config", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "https://dav.example.com/webdav")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, "warning")
}

func TestConfigCommand_WarnsWhenIncomplete(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DAVWATCH_CONFIG_DIR", dir)
	t.Setenv("WEBDAV_URL", "")
	t.Setenv("DISCORD_WEBHOOK", "")

	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "warning")
}

func TestOnceCommand_InvalidConfig(t *testing.T) {
	t.Setenv("DAVWATCH_CONFIG_DIR", t.TempDir())
	t.Setenv("WEBDAV_URL", "")
	t.Setenv("DISCORD_WEBHOOK", "")

	_, err := execute(t, "once")
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))
}

func TestStateCommand_EmptyDatabase(t *testing.T) {
	t.Setenv("DAVWATCH_CONFIG_DIR", t.TempDir())
	t.Setenv("DAVWATCH_DATABASE", "")

	out, err := execute(t, "state")
	require.NoError(t, err)
	assert.Contains(t, out, "Folders:  0")
	assert.Contains(t, out, "Files:    0")

	out, err = execute(t, "state", "--files")
	require.NoError(t, err)
	assert.Contains(t, out, "PATH")
}

func TestFormatBuildDate(t *testing.T) {
	assert.Contains(t, formatBuildDate("1699963200"), "2023-11-1")
	assert.Equal(t, "unknown", formatBuildDate("unknown"))
}
