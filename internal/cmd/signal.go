package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/missioncontrol/missionctl/internal/config"
	"github.com/missioncontrol/missionctl/internal/models"
	"github.com/missioncontrol/missionctl/internal/signalbus"
	"github.com/missioncontrol/missionctl/internal/store"
)

// NewSignalCommand creates the signal command: an out-of-band write
// against the same Event Store a running mission's Round Controller
// reads from at its next round boundary.
func NewSignalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Emit a control-plane signal against a running mission",
	}

	var missionID string
	cmd.PersistentFlags().StringVar(&missionID, "mission", "", "mission id to signal")

	cmd.AddCommand(newSignalStopCommand(&missionID))
	cmd.AddCommand(newSignalRetryCommand(&missionID))
	cmd.AddCommand(newSignalAdjustCommand(&missionID))

	return cmd
}

func openBus() (*store.Store, *signalbus.Bus, error) {
	dbPath, err := config.GetEventDBPath()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return st, signalbus.New(st), nil
}

func newSignalStopCommand(missionID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Request the mission stop at its next round boundary",
		RunE: func(c *cobra.Command, args []string) error {
			if *missionID == "" {
				return fmt.Errorf("--mission is required")
			}
			st, bus, err := openBus()
			if err != nil {
				return err
			}
			defer st.Close()
			if _, err := bus.Emit(*missionID, models.SignalStop, ""); err != nil {
				return fmt.Errorf("emit stop signal: %w", err)
			}
			fmt.Fprintln(c.OutOrStdout(), "stop signal recorded")
			return nil
		},
	}
}

func newSignalRetryCommand(missionID *string) *cobra.Command {
	var unitID string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Request a failed work unit be retried at the next round boundary",
		RunE: func(c *cobra.Command, args []string) error {
			if *missionID == "" {
				return fmt.Errorf("--mission is required")
			}
			if unitID == "" {
				return fmt.Errorf("--unit is required")
			}
			st, bus, err := openBus()
			if err != nil {
				return err
			}
			defer st.Close()
			if _, err := bus.Emit(*missionID, models.SignalRetryUnit, unitID); err != nil {
				return fmt.Errorf("emit retry signal: %w", err)
			}
			fmt.Fprintln(c.OutOrStdout(), "retry signal recorded")
			return nil
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "work unit id to retry")
	return cmd
}

func newSignalAdjustCommand(missionID *string) *cobra.Command {
	var numWorkers int
	var maxRounds int
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Request a live change to the dispatcher's worker count or the mission's round budget",
		RunE: func(c *cobra.Command, args []string) error {
			if *missionID == "" {
				return fmt.Errorf("--mission is required")
			}
			if numWorkers <= 0 && maxRounds <= 0 {
				return fmt.Errorf("at least one of --workers or --max-rounds is required")
			}
			payload := adjustPayloadJSON(numWorkers, maxRounds)
			st, bus, err := openBus()
			if err != nil {
				return err
			}
			defer st.Close()
			if _, err := bus.Emit(*missionID, models.SignalAdjust, payload); err != nil {
				return fmt.Errorf("emit adjust signal: %w", err)
			}
			fmt.Fprintln(c.OutOrStdout(), "adjust signal recorded")
			return nil
		},
	}
	cmd.Flags().IntVar(&numWorkers, "workers", 0, "new dispatcher worker count")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "new mission max_rounds")
	return cmd
}

// adjustPayloadJSON builds the JSON body internal/round's
// handleAdjustSignal expects, omitting fields left at their zero value
// so an unspecified field doesn't overwrite the running mission's
// current setting with zero.
func adjustPayloadJSON(numWorkers, maxRounds int) string {
	fields := make([]string, 0, 2)
	if numWorkers > 0 {
		fields = append(fields, fmt.Sprintf(`"num_workers":%d`, numWorkers))
	}
	if maxRounds > 0 {
		fields = append(fields, fmt.Sprintf(`"max_rounds":%d`, maxRounds))
	}
	out := "{"
	for i, f := range fields {
		if i > 0 {
			out += ","
		}
		out += f
	}
	out += "}"
	return out
}
