package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/missioncontrol/missionctl/internal/dispatcher"
	"github.com/missioncontrol/missionctl/internal/models"
	"github.com/missioncontrol/missionctl/internal/planner"
	"github.com/missioncontrol/missionctl/internal/worker"
)

// NewParallelCommand creates the parallel command: plans and dispatches
// a single round's work units without the Round Controller's
// evaluate/stall/chain loop around it, for exercising the Dispatcher in
// isolation or previewing what a round would do.
func NewParallelCommand() *cobra.Command {
	var (
		objective string
		workers   int
		units     int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "parallel",
		Short: "Plan and dispatch one round of work units directly",
		RunE: func(c *cobra.Command, args []string) error {
			if objective == "" {
				return fmt.Errorf("--objective is required")
			}
			configPath, _ := c.Flags().GetString("config")
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Dispatcher.NumWorkers = workers
			}

			comps, err := buildComponents(cfg, false)
			if err != nil {
				return err
			}
			defer comps.Close()

			p := &planner.StubPlanner{UnitsPerRound: units}
			plan, nodes, workUnits, err := p.PlanRound(c.Context(), objective, "", nil, 1, "")
			if err != nil {
				return fmt.Errorf("plan round: %w", err)
			}

			if dryRun {
				fmt.Fprintf(c.OutOrStdout(), "plan %s: %d work unit(s)\n", plan.ID, len(workUnits))
				for _, u := range workUnits {
					fmt.Fprintf(c.OutOrStdout(), "  - %s: %s\n", u.ID, u.Title)
				}
				return nil
			}

			if err := comps.store.InsertPlan(plan); err != nil {
				return fmt.Errorf("insert plan: %w", err)
			}
			for _, n := range nodes {
				if err := comps.store.InsertPlanNode(n); err != nil {
					return fmt.Errorf("insert plan node %s: %w", n.ID, err)
				}
			}
			for _, u := range workUnits {
				if err := comps.store.InsertWorkUnit(u); err != nil {
					return fmt.Errorf("insert work unit %s: %w", u.ID, err)
				}
			}

			promptFn := func(u *models.WorkUnit) string {
				return worker.RenderPrompt(u, worker.PromptParams{
					TargetName:          cfg.Workspace.SourceRepo,
					WorkspacePath:       cfg.Workspace.SourceRepo,
					BranchName:          cfg.Workspace.GreenBranch,
					VerificationCommand: cfg.Verification.FallbackCommand,
				})
			}
			argvFn := func(u *models.WorkUnit, prompt string) []string {
				return worker.DefaultArgv("", "claude-sonnet-4", 5.0, prompt)
			}

			disp := dispatcher.New(dispatcher.Config{
				NumWorkers:        cfg.Dispatcher.NumWorkers,
				MonitorInterval:   cfg.Dispatcher.MonitorInterval,
				DefaultTimeout:    cfg.Dispatcher.SessionTimeout,
				TimeoutMultiplier: cfg.Dispatcher.TimeoutMultiplier,
			}, comps.store, comps.backend, dispatchMerger{comps.green}, promptFn, argvFn)

			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := disp.Run(ctx, "", "", plan.ID); err != nil {
				return fmt.Errorf("dispatch round: %w", err)
			}

			final, err := comps.store.ListWorkUnitsByPlan(plan.ID)
			if err != nil {
				return err
			}
			completed, failed := 0, 0
			for _, u := range final {
				switch u.Status {
				case models.UnitStatusCompleted:
					completed++
				case models.UnitStatusFailed:
					failed++
				}
			}
			fmt.Fprintf(c.OutOrStdout(), "plan %s: %d completed, %d failed, %d total\n", plan.ID, completed, failed, len(final))
			return nil
		},
	}

	cmd.Flags().StringVar(&objective, "objective", "", "the objective to decompose into one round of work units")
	cmd.Flags().IntVar(&workers, "workers", 0, "override dispatcher.num_workers from config (0 = use config)")
	cmd.Flags().IntVar(&units, "units", 1, "number of independent work units to generate")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the planned work units without dispatching them")

	return cmd
}
