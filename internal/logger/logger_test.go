package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel("debug"))
	require.Equal(t, LevelWarn, ParseLevel("WARN"))
	require.Equal(t, LevelError, ParseLevel("error"))
	require.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestConsoleLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(&buf, LevelWarn)

	l.Debug("debug %s", "line")
	l.Info("info %s", "line")
	l.Warn("warn %s", "line")
	l.Error("error %s", "line")

	out := buf.String()
	require.NotContains(t, out, "debug line")
	require.NotContains(t, out, "info line")
	require.Contains(t, out, "warn line")
	require.Contains(t, out, "error line")
}

func TestConsoleLoggerDisablesColorOnNonTTYWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(&buf, LevelInfo)
	require.False(t, l.useColor)
}

func TestFileLoggerWritesRunLogAndLatestSymlink(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, LevelInfo)
	require.NoError(t, err)
	defer fl.Close()

	fl.Info("hello %s", "world")

	latest := filepath.Join(dir, "latest.log")
	target, err := os.Readlink(latest)
	require.NoError(t, err)
	require.Contains(t, target, "run-")

	data, err := os.ReadFile(latest)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello world")
}

func TestFileLoggerFiltersBelowMinLevel(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, LevelError)
	require.NoError(t, err)
	defer fl.Close()

	fl.Warn("should not appear")
	fl.Error("should appear")

	data, err := os.ReadFile(filepath.Join(dir, "latest.log"))
	require.NoError(t, err)
	require.NotContains(t, string(data), "should not appear")
	require.Contains(t, string(data), "should appear")
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	var n Nop
	n.Debug("x")
	n.Info("x")
	n.Warn("x")
	n.Error("x")
}
