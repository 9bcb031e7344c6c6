// Package config loads Mission Control's YAML configuration: one
// top-level Config with a sub-struct per core component, merged over
// sane defaults the same two-step way the teacher's config.go does --
// os.ReadFile then yaml.Unmarshal into a mergeable shape, never failing
// on a missing file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MissionConfig parameterizes the Round Controller's outer loop.
type MissionConfig struct {
	Objective     string        `yaml:"objective"`
	MaxRounds     int           `yaml:"max_rounds"`
	StallThreshold int          `yaml:"stall_threshold"`
	StallEpsilon  float64       `yaml:"stall_epsilon"`
	Cooldown      time.Duration `yaml:"cooldown"`
	WallTimeLimit time.Duration `yaml:"wall_time_limit"`
}

// DispatcherConfig parameterizes the Dependency-Aware Parallel Dispatcher.
type DispatcherConfig struct {
	NumWorkers        int           `yaml:"num_workers"`
	MonitorInterval   time.Duration `yaml:"monitor_interval"`
	SessionTimeout    time.Duration `yaml:"session_timeout"`
	TimeoutMultiplier float64       `yaml:"timeout_multiplier"`
}

// WorkspaceConfig parameterizes the Workspace Pool.
type WorkspaceConfig struct {
	MaxClones   int    `yaml:"max_clones"`
	WarmCount   int    `yaml:"warm_count"`
	SourceRepo  string `yaml:"source_repo"`
	BaseBranch  string `yaml:"base_branch"`
	GreenBranch string `yaml:"green_branch"`
}

// GreenBranchConfig parameterizes the Green-Branch Manager.
type GreenBranchConfig struct {
	AutoPush        bool   `yaml:"auto_push"`
	PushBatchSize   int    `yaml:"push_batch_size"`
	FixupCandidates int    `yaml:"fixup_candidates"`
	// PushMode is "direct" (default) or "pull_request"; see
	// greenbranch.Config.PushMode.
	PushMode string `yaml:"push_mode"`
	// GitHubOwner/GitHubRepo identify the upstream repo a
	// greenbranch.GitHubPublisher opens pull requests against when
	// PushMode is "pull_request". The API token is read from the
	// MISSIONCTL_GITHUB_TOKEN environment variable, never from this
	// file.
	GitHubOwner string `yaml:"github_owner"`
	GitHubRepo  string `yaml:"github_repo"`
}

// VerificationNodeConfig is one configured verification check.
type VerificationNodeConfig struct {
	Kind     string        `yaml:"kind"`
	Command  string        `yaml:"command"`
	Required bool          `yaml:"required"`
	Weight   float64       `yaml:"weight"`
	Timeout  time.Duration `yaml:"timeout"`
}

// VerificationConfig parameterizes the Verification Runner.
type VerificationConfig struct {
	Nodes           []VerificationNodeConfig `yaml:"nodes"`
	FallbackCommand string                   `yaml:"fallback_command"`
}

// SignalConfig parameterizes the Signal Bus.
type SignalConfig struct {
	ExpiryMinutes int `yaml:"expiry_minutes"`
}

// LoggingConfig selects and levels the logging backend.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogDir  string `yaml:"log_dir"`
	ToFile  bool   `yaml:"to_file"`
}

// Config is Mission Control's top-level configuration, loaded from a
// single YAML file.
type Config struct {
	Mission      MissionConfig       `yaml:"mission"`
	Dispatcher   DispatcherConfig    `yaml:"dispatcher"`
	Workspace    WorkspaceConfig     `yaml:"workspace"`
	GreenBranch  GreenBranchConfig   `yaml:"green_branch"`
	Verification VerificationConfig  `yaml:"verification"`
	Signal       SignalConfig        `yaml:"signal"`
	Logging      LoggingConfig       `yaml:"logging"`
}

// DefaultConfig returns Config populated with default values. They do
// not all match the fallback a component's own package applies to a
// zero field: the dispatcher falls back to a 10-minute session timeout,
// and workspace.New applies no fallback for MaxClones.
func DefaultConfig() *Config {
	return &Config{
		Mission: MissionConfig{
			MaxRounds:      50,
			StallThreshold: 3,
			StallEpsilon:   0.02,
			Cooldown:       5 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			NumWorkers:        4,
			MonitorInterval:   2 * time.Second,
			SessionTimeout:    30 * time.Minute,
			TimeoutMultiplier: 1.5,
		},
		Workspace: WorkspaceConfig{
			MaxClones:   8,
			WarmCount:   2,
			BaseBranch:  "main",
			GreenBranch: "mc/green",
		},
		GreenBranch: GreenBranchConfig{
			AutoPush:        false,
			PushBatchSize:   1,
			FixupCandidates: 3,
			PushMode:        "direct",
		},
		Signal: SignalConfig{
			ExpiryMinutes: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path and merges it over DefaultConfig. A missing file is
// not an error -- it returns the defaults, matching the teacher's
// LoadConfig contract. A malformed file is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}
