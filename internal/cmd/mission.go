package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/missioncontrol/missionctl/internal/dispatcher"
	"github.com/missioncontrol/missionctl/internal/greenbranch"
	"github.com/missioncontrol/missionctl/internal/models"
	"github.com/missioncontrol/missionctl/internal/planner"
	"github.com/missioncontrol/missionctl/internal/report"
	"github.com/missioncontrol/missionctl/internal/round"
	"github.com/missioncontrol/missionctl/internal/signalbus"
	"github.com/missioncontrol/missionctl/internal/worker"
)

// NewMissionCommand creates the mission command: the Round Controller's
// full plan -> dispatch -> merge -> evaluate loop, optionally chained
// into a follow-up objective when the current one is met.
func NewMissionCommand() *cobra.Command {
	var (
		objective      string
		chain          bool
		maxChainDepth  int
		workers        int
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Run the Round Controller to convergence for an objective",
		Long: `mission drives an objective through repeated rounds until the
objective is met, a stall is detected, the round or wall-time budget
is exhausted, or a stop signal arrives. Exits 0 if the final mission
in the chain met its objective, 1 otherwise.

With --chain, a mission whose objective was met is immediately
followed by another mission run against the same objective text, up
to --max-chain-depth times -- Mission Control carries no Strategist to
propose a genuinely new objective for the next link, so the chain
re-drives the same objective rather than stopping after the first
pass, useful for objectives a single round's plan can't exhaust.`,
		RunE: func(c *cobra.Command, args []string) error {
			if objective == "" {
				return fmt.Errorf("--objective is required")
			}
			configPath, _ := c.Flags().GetString("config")
			return runMission(c, configPath, objective, chain, maxChainDepth, workers, verbose)
		},
	}

	cmd.Flags().StringVar(&objective, "objective", "", "the objective to drive the mission toward")
	cmd.Flags().BoolVar(&chain, "chain", false, "re-run the same objective after it's met, up to --max-chain-depth times")
	cmd.Flags().IntVar(&maxChainDepth, "max-chain-depth", 3, "maximum number of chained mission runs")
	cmd.Flags().IntVar(&workers, "workers", 0, "override dispatcher.num_workers from config (0 = use config)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "show debug-level console output")

	return cmd
}

// NewStartCommand creates the start command: a one-shot, non-chaining
// alias of mission for an operator who doesn't want to think about
// chain depth at all.
func NewStartCommand() *cobra.Command {
	var (
		objective string
		workers   int
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run one mission to convergence for an objective (shorthand for mission without --chain)",
		RunE: func(c *cobra.Command, args []string) error {
			if objective == "" {
				return fmt.Errorf("--objective is required")
			}
			configPath, _ := c.Flags().GetString("config")
			return runMission(c, configPath, objective, false, 1, workers, verbose)
		},
	}

	cmd.Flags().StringVar(&objective, "objective", "", "the objective to drive the mission toward")
	cmd.Flags().IntVar(&workers, "workers", 0, "override dispatcher.num_workers from config (0 = use config)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "show debug-level console output")

	return cmd
}

func runMission(c *cobra.Command, configPath, objective string, chain bool, maxChainDepth, workers int, verbose bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Dispatcher.NumWorkers = workers
	}

	comps, err := buildComponents(cfg, verbose)
	if err != nil {
		return err
	}
	defer comps.Close()

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	depth := 1
	if chain {
		depth = maxChainDepth
		if depth <= 0 {
			depth = 1
		}
	}

	var lastMission *models.Mission
	for link := 1; link <= depth; link++ {
		mission, err := runOneMission(ctx, comps, objective)
		if err != nil {
			return err
		}
		lastMission = mission

		rounds, handoffs, repErr := loadMissionReport(comps, mission.ID)
		if repErr != nil {
			comps.log.Warn("failed to load mission report: %v", repErr)
		} else {
			fmt.Fprintln(c.OutOrStdout(), report.RenderMission(mission, rounds, handoffs))
		}

		if !chain || mission.Status != models.MissionStatusCompleted {
			break
		}
		comps.log.Info("chain link %d/%d met its objective; re-driving the same objective", link, depth)
	}

	if lastMission == nil || lastMission.Status != models.MissionStatusCompleted {
		return fmt.Errorf("mission did not meet its objective (stopped_reason=%s)", safeStoppedReason(lastMission))
	}
	return nil
}

func safeStoppedReason(m *models.Mission) string {
	if m == nil {
		return "unknown"
	}
	return m.StoppedReason
}

func runOneMission(ctx context.Context, comps *components, objective string) (*models.Mission, error) {
	signals := signalbus.New(comps.store)
	p := &planner.StubPlanner{UnitsPerRound: 1}

	promptFn := func(u *models.WorkUnit) string {
		return worker.RenderPrompt(u, worker.PromptParams{
			TargetName:          comps.cfg.Workspace.SourceRepo,
			WorkspacePath:       comps.cfg.Workspace.SourceRepo,
			BranchName:          comps.cfg.Workspace.GreenBranch,
			VerificationCommand: comps.cfg.Verification.FallbackCommand,
		})
	}
	argvFn := func(u *models.WorkUnit, prompt string) []string {
		return worker.DefaultArgv("", "claude-sonnet-4", 5.0, prompt)
	}

	disp := dispatcher.New(dispatcher.Config{
		NumWorkers:        comps.cfg.Dispatcher.NumWorkers,
		MonitorInterval:   comps.cfg.Dispatcher.MonitorInterval,
		DefaultTimeout:    comps.cfg.Dispatcher.SessionTimeout,
		TimeoutMultiplier: comps.cfg.Dispatcher.TimeoutMultiplier,
	}, comps.store, comps.backend, dispatchMerger{comps.green}, promptFn, argvFn)

	ctrl := round.New(round.Config{
		MaxRounds:         comps.cfg.Mission.MaxRounds,
		StallThreshold:    comps.cfg.Mission.StallThreshold,
		StallScoreEpsilon: comps.cfg.Mission.StallEpsilon,
		Cooldown:          comps.cfg.Mission.Cooldown,
		WallTimeLimit:     comps.cfg.Mission.WallTimeLimit,
		AutoPush:          comps.cfg.GreenBranch.AutoPush,
		Workspace:         comps.greenWorkspace,
	}, comps.store, disp, comps.green, comps.verifier, p, signals)

	return ctrl.Run(ctx, objective)
}

// dispatchMerger adapts *greenbranch.Manager to dispatcher.Merger.
type dispatchMerger struct {
	green *greenbranch.Manager
}

func (d dispatchMerger) MergeUnit(ctx context.Context, workerWorkspace, branchName, acceptance string) greenbranch.UnitMergeResult {
	return d.green.MergeUnit(ctx, workerWorkspace, branchName, acceptance)
}

func loadMissionReport(comps *components, missionID string) ([]models.Round, report.RoundHandoffs, error) {
	rows, err := comps.store.ListRoundsByMission(missionID)
	if err != nil {
		return nil, nil, err
	}

	rounds := make([]models.Round, 0, len(rows))
	handoffs := make(report.RoundHandoffs, len(rows))
	for _, r := range rows {
		rounds = append(rounds, *r)
		hs, err := comps.store.ListHandoffsByRound(r.ID)
		if err != nil {
			return nil, nil, err
		}
		values := make([]models.Handoff, 0, len(hs))
		for _, h := range hs {
			values = append(values, *h)
		}
		handoffs[r.ID] = values
	}
	return rounds, handoffs, nil
}
