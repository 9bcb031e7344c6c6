package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetMissionHome returns the directory Mission Control stores its
// state under (event store database, workspace clones, run logs).
// Priority order:
//  1. MISSIONCTL_HOME environment variable, if set
//  2. <repo root>/.missionctl, where repo root is detected by walking
//     up from the working directory for a go.mod naming this module
//     (or a .missionctl-root marker file)
//  3. <cwd>/.missionctl, as a fallback
//
// The directory is created if it doesn't exist.
func GetMissionHome() (string, error) {
	if home := os.Getenv("MISSIONCTL_HOME"); home != "" {
		return ensureDir(home)
	}

	if repoRoot, err := findRepoRoot(); err == nil && repoRoot != "" {
		return ensureDir(filepath.Join(repoRoot, ".missionctl"))
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return ensureDir(filepath.Join(cwd, ".missionctl"))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create mission home directory: %w", err)
	}
	return dir, nil
}

// findRepoRoot walks up from the working directory looking for a
// .missionctl-root marker file or a go.mod naming this module.
func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	const modulePath = "github.com/missioncontrol/missionctl"

	current := cwd
	for {
		if _, err := os.Stat(filepath.Join(current, ".missionctl-root")); err == nil {
			return current, nil
		}

		if data, err := os.ReadFile(filepath.Join(current, "go.mod")); err == nil {
			if strings.Contains(string(data), modulePath) {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("repository root not found (looking for .missionctl-root or go.mod naming %s)", modulePath)
}

// GetEventDBPath returns the absolute path to the Event Store's sqlite
// database, $MISSIONCTL_HOME/missionctl.db.
func GetEventDBPath() (string, error) {
	home, err := GetMissionHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "missionctl.db"), nil
}

// GetWorkspacePoolDir returns the directory the Workspace Pool clones
// into, $MISSIONCTL_HOME/workspaces.
func GetWorkspacePoolDir() (string, error) {
	home, err := GetMissionHome()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(home, "workspaces"))
}

// GetLogDir returns the directory run logs are written to,
// $MISSIONCTL_HOME/logs.
func GetLogDir() (string, error) {
	home, err := GetMissionHome()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(home, "logs"))
}
