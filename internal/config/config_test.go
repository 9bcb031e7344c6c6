package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 50, cfg.Mission.MaxRounds)
	require.Equal(t, 3, cfg.Mission.StallThreshold)
	require.Equal(t, 4, cfg.Dispatcher.NumWorkers)
	require.Equal(t, "mc/green", cfg.Workspace.GreenBranch)
	require.False(t, cfg.GreenBranch.AutoPush)
	require.Equal(t, 10, cfg.Signal.ExpiryMinutes)
}

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadMergesOverDefaultsLeavingAbsentFieldsUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missionctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mission:
  max_rounds: 10
  objective: "ship it"
dispatcher:
  num_workers: 8
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 10, cfg.Mission.MaxRounds)
	require.Equal(t, "ship it", cfg.Mission.Objective)
	require.Equal(t, 3, cfg.Mission.StallThreshold, "stall_threshold absent from YAML, default preserved")

	require.Equal(t, 8, cfg.Dispatcher.NumWorkers)
	require.Equal(t, 30*time.Minute, cfg.Dispatcher.SessionTimeout, "session_timeout absent from YAML, default preserved")

	require.Equal(t, "mc/green", cfg.Workspace.GreenBranch, "entire workspace block absent from YAML, defaults preserved")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missionctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mission: [this is not a mapping"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadParsesVerificationNodeList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missionctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
verification:
  nodes:
    - kind: pytest
      command: "pytest -q"
      required: true
      weight: 0.6
    - kind: ruff
      command: "ruff check ."
      required: false
      weight: 0.4
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Verification.Nodes, 2)
	require.Equal(t, "pytest", cfg.Verification.Nodes[0].Kind)
	require.True(t, cfg.Verification.Nodes[0].Required)
	require.Equal(t, 0.4, cfg.Verification.Nodes[1].Weight)
}
