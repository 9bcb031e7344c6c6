package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMissionHomeHonorsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MISSIONCTL_HOME", dir)

	home, err := GetMissionHome()
	require.NoError(t, err)
	require.Equal(t, dir, home)
}

func TestGetMissionHomeFallsBackToCwdDotDir(t *testing.T) {
	t.Setenv("MISSIONCTL_HOME", "")

	dir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(oldWd)

	home, err := GetMissionHome()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ".missionctl"), home)

	info, err := os.Stat(home)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestGetWorkspacePoolDirAndLogDirAreSubdirsOfHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MISSIONCTL_HOME", dir)

	poolDir, err := GetWorkspacePoolDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "workspaces"), poolDir)

	logDir, err := GetLogDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "logs"), logDir)

	dbPath, err := GetEventDBPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "missionctl.db"), dbPath)
}
