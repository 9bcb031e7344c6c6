package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/missioncontrol/missionctl/internal/config"
	"github.com/missioncontrol/missionctl/internal/store"
)

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand() *cobra.Command {
	var missionID string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List discoveries and concerns handoffs have filed for a mission",
		Long: `discover surfaces what workers have reported back without requiring a
full mission report: every handoff's discoveries and concerns, across
every round the given mission has run, newest round first.`,
		RunE: func(c *cobra.Command, args []string) error {
			if missionID == "" {
				return fmt.Errorf("--mission is required")
			}
			dbPath, err := config.GetEventDBPath()
			if err != nil {
				return err
			}
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			rounds, err := st.ListRoundsByMission(missionID)
			if err != nil {
				return fmt.Errorf("list rounds: %w", err)
			}

			found := false
			for i := len(rounds) - 1; i >= 0; i-- {
				r := rounds[i]
				handoffs, err := st.ListHandoffsByRound(r.ID)
				if err != nil {
					return fmt.Errorf("list handoffs for round %s: %w", r.ID, err)
				}
				for _, h := range handoffs {
					for _, d := range h.Discoveries {
						found = true
						fmt.Fprintf(c.OutOrStdout(), "round %d [discovery] %s\n", r.Number, d)
					}
					for _, conc := range h.Concerns {
						found = true
						fmt.Fprintf(c.OutOrStdout(), "round %d [concern]   %s\n", r.Number, conc)
					}
				}
			}
			if !found {
				fmt.Fprintln(c.OutOrStdout(), "no discoveries or concerns recorded")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&missionID, "mission", "", "mission id to inspect")
	return cmd
}
