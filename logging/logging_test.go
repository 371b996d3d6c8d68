package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flamingods.net/ledplans/config"
)

type failingWriter struct{}

func (fw *failingWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func TestTUIMode(t *testing.T) {
	require.NoError(t, Init(true, config.LogConfig{Level: "DEBUG", Format: "text"}))

	slog.Info("Initial log")

	var tuiPane bytes.Buffer
	require.NoError(t, SetOutput(&tuiPane))
	assert.Contains(t, tuiPane.String(), "Initial log", "buffered records are flushed on SetOutput")

	slog.Info("Live log")
	assert.Contains(t, tuiPane.String(), "Live log")

	BufferOutput()
	slog.Info("Buffered log")
	assert.NotContains(t, tuiPane.String(), "Buffered log")

	require.NoError(t, SetOutput(&tuiPane))
	assert.Contains(t, tuiPane.String(), "Buffered log")
	require.NoError(t, Close())
}

func TestHWMode_FileLogging(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "ledplans.log")
	require.NoError(t, Init(false, config.LogConfig{Level: "INFO", Format: "json", File: logFile, MaxSizeMB: 1}))

	slog.Debug("Hidden")
	slog.Info("HW log", "key", "value")
	require.NoError(t, Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"HW log"`)
	assert.Contains(t, string(content), `"key":"value"`)
	assert.NotContains(t, string(content), "Hidden")
}

func TestStderrFallback(t *testing.T) {
	require.NoError(t, Init(true, config.LogConfig{Level: "DEBUG"}))
	slog.Info("Shutdown log")

	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	var wg sync.WaitGroup
	wg.Add(1)
	var capturedOutput string
	go func() {
		defer wg.Done()
		buf := make([]byte, 1024)
		n, _ := r.Read(buf)
		capturedOutput = string(buf[:n])
	}()

	require.NoError(t, Close())
	w.Close()
	wg.Wait()
	os.Stderr = oldStderr

	assert.True(t, strings.Contains(capturedOutput, "Shutdown log"), "got %q", capturedOutput)
}

func TestSetOutputFlushError(t *testing.T) {
	require.NoError(t, Init(true, config.LogConfig{}))
	slog.Warn("pending")
	assert.Error(t, SetOutput(&failingWriter{}))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
