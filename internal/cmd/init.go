package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/missioncontrol/missionctl/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var sourceRepo string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap a mission home directory and default config.yaml",
		Long: `init creates the mission home directory ($MISSIONCTL_HOME, defaulting to
<repo root>/.missionctl) and writes a default config.yaml there if one
doesn't already exist. It does not open the Event Store or touch the
target repository beyond recording its path.`,
		RunE: func(c *cobra.Command, args []string) error {
			home, err := config.GetMissionHome()
			if err != nil {
				return fmt.Errorf("resolve mission home: %w", err)
			}

			cfgPath := filepath.Join(home, "config.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				fmt.Fprintf(c.OutOrStdout(), "config already exists at %s\n", cfgPath)
				return nil
			}

			cfg := config.DefaultConfig()
			if sourceRepo != "" {
				cfg.Workspace.SourceRepo = sourceRepo
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal default config: %w", err)
			}
			if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Fprintf(c.OutOrStdout(), "initialized mission home at %s\n", home)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceRepo, "source-repo", "", "path to the git repository missions run against")
	return cmd
}
