package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppendsToProjectLog(t *testing.T) {
	projectDir := t.TempDir()
	logger, err := New(projectDir)
	require.NoError(t, err)
	logger.Printf("opened %s\n", "main")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(projectDir, ".pzedit", "logs", "pzedit.log"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "] opened main\n"))
}

func TestTeeWritesBoth(t *testing.T) {
	var first, second bytes.Buffer
	logger := NewWriter(&first)
	logger.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	tee := logger.Tee(&second)
	tee.Printf("reloaded %d", 2)
	assert.Equal(t, "[2024-01-02T03:04:05Z] reloaded 2\n", first.String())
	assert.Equal(t, first.String(), second.String())
}

func TestNilLoggerIsSilent(t *testing.T) {
	var logger *Logger
	logger.Printf("ignored")
	assert.NoError(t, logger.Close())
}
