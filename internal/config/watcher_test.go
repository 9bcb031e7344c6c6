package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missionctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mission:\n  max_rounds: 5\n"), 0644))

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		changed <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("mission:\n  max_rounds: 20\n"), 0644))

	select {
	case cfg := <-changed:
		require.Equal(t, 20, cfg.Mission.MaxRounds)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherIgnoresUnrelatedFilesInSameDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missionctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mission:\n  max_rounds: 5\n"), 0644))

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		changed <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("noise"), 0644))

	select {
	case <-changed:
		t.Fatal("watcher fired for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherReportsErrorOnMalformedReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missionctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mission:\n  max_rounds: 5\n"), 0644))

	errs := make(chan error, 1)
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	w.OnError = func(e error) { errs <- e }
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("mission: [not a mapping"), 0644))

	select {
	case e := <-errs:
		require.Error(t, e)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
}
