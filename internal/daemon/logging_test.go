package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogging(t *testing.T) {
	level := log.GetLevel()
	out := log.StandardLogger().Out
	t.Cleanup(func() {
		log.SetLevel(level)
		log.SetOutput(out)
	})
}

func TestSetupLogging_Levels(t *testing.T) {
	restoreLogging(t)
	tests := map[string]log.Level{
		"trace": log.TraceLevel,
		"DEBUG": log.DebugLevel,
		"info":  log.InfoLevel,
		"warn":  log.WarnLevel,
		"":      log.InfoLevel,
	}
	for level, want := range tests {
		c, err := SetupLogging(level, "")
		require.NoError(t, err)
		assert.Equal(t, want, log.GetLevel(), level)
		assert.NoError(t, c.Close())
	}
}

func TestSetupLogging_File(t *testing.T) {
	restoreLogging(t)
	logFile := filepath.Join(t.TempDir(), "logs", "davwatch.log")

	c, err := SetupLogging("info", logFile)
	require.NoError(t, err)
	log.WithField("path", "A/x.txt").Info("hello")
	require.NoError(t, c.Close())
	log.SetOutput(os.Stderr)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "path=A/x.txt")
}

func TestTruncateLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "davwatch.log")
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, strings.Repeat("x", 9))
	}
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(logFile, []byte(content), 0600))

	require.NoError(t, truncateLogFile(logFile, 2000))
	data, _ := os.ReadFile(logFile)
	assert.Len(t, data, len(content))

	require.NoError(t, truncateLogFile(logFile, 500))
	data, _ = os.ReadFile(logFile)
	assert.Less(t, len(data), len(content))
	assert.True(t, strings.HasPrefix(string(data), "xxxxxxxxx\n"), "cut at a line boundary")

	assert.NoError(t, truncateLogFile(filepath.Join(t.TempDir(), "missing.log"), 1))
}
