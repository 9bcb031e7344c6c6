package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/missioncontrol/missionctl/internal/config"
	"github.com/missioncontrol/missionctl/internal/models"
	"github.com/missioncontrol/missionctl/internal/report"
	"github.com/missioncontrol/missionctl/internal/store"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var missionID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Replay a mission's recorded rounds as a markdown report",
		Long: `history reconstructs a mission's report purely by reading the Event
Store -- the same crash-recovery replay path Mission Control itself
uses, not a live run -- so it works against a mission that crashed,
finished, or is still in progress on another process.`,
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

			mission, err := st.GetMission(missionID)
			if err != nil {
				return fmt.Errorf("get mission %s: %w", missionID, err)
			}

			rounds, err := st.ListRoundsByMission(missionID)
			if err != nil {
				return fmt.Errorf("list rounds: %w", err)
			}
			roundValues := make([]models.Round, 0, len(rounds))
			handoffs := make(report.RoundHandoffs, len(rounds))
			for _, r := range rounds {
				roundValues = append(roundValues, *r)
				hs, err := st.ListHandoffsByRound(r.ID)
				if err != nil {
					return fmt.Errorf("list handoffs for round %s: %w", r.ID, err)
				}
				values := make([]models.Handoff, 0, len(hs))
				for _, h := range hs {
					values = append(values, *h)
				}
				handoffs[r.ID] = values
			}

			fmt.Fprintln(c.OutOrStdout(), report.RenderMission(mission, roundValues, handoffs))
			return nil
		},
	}

	cmd.Flags().StringVar(&missionID, "mission", "", "mission id to replay")
	return cmd
}
