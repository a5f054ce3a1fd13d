package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LogConfig{Level: "warn", Writer: []string{WriterConsole}}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("cache degraded", "key", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=\"cache degraded\"")
	assert.Contains(t, out, "key=abc")
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("request finished", "id", "req-1")
	assert.Contains(t, buf.String(), `"msg":"request finished"`)
	assert.Contains(t, buf.String(), `"id":"req-1"`)
}

func TestNewLogger_FileOnly(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "courier.log")

	logger, closer, err := NewLogger(LogConfig{
		Level:     "info",
		Writer:    []string{WriterFile},
		File:      path,
		MaxSizeMB: 1,
	}, &console)
	require.NoError(t, err)

	logger.Info("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Empty(t, console.String())
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, _, err := NewLogger(LogConfig{Level: "shout"}, &bytes.Buffer{})
	assert.Error(t, err)
}
