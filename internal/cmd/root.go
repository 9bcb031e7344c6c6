package cmd

import "github.com/spf13/cobra"

// NewRootCommand builds the missionctl root command and attaches every
// subcommand. Each subcommand constructs its own core components and
// delegates to them; no orchestration logic lives here.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "missionctl",
		Short: "Autonomous development orchestrator",
		Long: `Mission Control drives an objective through repeated rounds of
planning, dependency-aware parallel dispatch, and green-branch
integration until the objective is met or a stop condition fires.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "path to config.yaml (default: $MISSIONCTL_HOME/config.yaml)")

	root.AddCommand(NewInitCommand())
	root.AddCommand(NewStartCommand())
	root.AddCommand(NewMissionCommand())
	root.AddCommand(NewParallelCommand())
	root.AddCommand(NewDiscoverCommand())
	root.AddCommand(NewHistoryCommand())
	root.AddCommand(NewSignalCommand())

	return root
}
