// Package round implements the Round Controller: the outer loop that
// drives one mission through repeated plan -> dispatch -> merge ->
// evaluate rounds until the objective is met or a stop condition
// fires, processing out-of-band stop/retry_unit/adjust signals and
// detecting stalled progress along the way.
package round

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/missioncontrol/missionctl/internal/greenbranch"
	"github.com/missioncontrol/missionctl/internal/metrics"
	"github.com/missioncontrol/missionctl/internal/models"
	"github.com/missioncontrol/missionctl/internal/planner"
	"github.com/missioncontrol/missionctl/internal/signalbus"
	"github.com/missioncontrol/missionctl/internal/verify"
)

// Store is the persistence surface the Round Controller needs against
// the Event Store, satisfied by *store.Store.
type Store interface {
	InsertMission(m *models.Mission) error
	UpdateMission(m *models.Mission) error

	InsertRound(r *models.Round) error
	UpdateRound(r *models.Round) error

	InsertPlan(p *models.Plan) error
	InsertPlanNode(n *models.PlanNode) error
	InsertWorkUnit(u *models.WorkUnit) error

	ListWorkUnitsByPlan(planID string) ([]*models.WorkUnit, error)
	GetWorkUnit(id string) (*models.WorkUnit, error)
	UpdateWorkUnit(u *models.WorkUnit) error

	ListHandoffsByRound(roundID string) ([]*models.Handoff, error)
}

// Dispatcher is the Dependency-Aware Parallel Dispatcher surface the
// Round Controller drives, mirroring *dispatcher.Dispatcher's method
// set so fakes can stand in for it in tests.
type Dispatcher interface {
	Run(ctx context.Context, missionID, roundID, planID string) error
	Adjust(n int)
}

// GreenBranch is the Green-Branch Manager surface the Round Controller
// needs at round boundaries: reading the current integration-branch
// head for a round's snapshot_hash, running the fixup repair flow, and
// pushing upstream when auto-push is configured.
type GreenBranch interface {
	GetGreenHash(ctx context.Context) (string, error)
	RunFixup(ctx context.Context, failureOutput string, runner greenbranch.FixupSessionRunner) greenbranch.FixupResult
	PushGreenToMain(ctx context.Context) bool
}

// Verifier runs the Verification Runner against a workspace directory,
// used here to take the before/after project-health snapshots a round
// evaluates its objective against.
type Verifier interface {
	Verify(ctx context.Context, workspace string) (*models.VerificationReport, error)
}

// Config parameterizes one Controller.
type Config struct {
	MaxRounds         int
	StallThreshold    int
	StallScoreEpsilon float64
	MaxDiscoveryChars int
	Cooldown          time.Duration
	WallTimeLimit     time.Duration // 0 disables the wall-time stop condition
	AutoPush          bool

	// Workspace is the Green-Branch Manager's workspace clone, snapshot
	// before and after a round's dispatch to compute the evaluation delta.
	Workspace string
}

func (c Config) maxRounds() int {
	if c.MaxRounds <= 0 {
		return 50
	}
	return c.MaxRounds
}

func (c Config) stallThreshold() int {
	if c.StallThreshold <= 0 {
		return 3
	}
	return c.StallThreshold
}

func (c Config) stallScoreEpsilon() float64 {
	if c.StallScoreEpsilon <= 0 {
		return 0.02
	}
	return c.StallScoreEpsilon
}

func (c Config) maxDiscoveryChars() int {
	if c.MaxDiscoveryChars <= 0 {
		return defaultMaxDiscoveryChars
	}
	return c.MaxDiscoveryChars
}

func (c Config) cooldown() time.Duration {
	if c.Cooldown <= 0 {
		return 5 * time.Second
	}
	return c.Cooldown
}

// Controller drives one mission's round loop.
type Controller struct {
	cfg        Config
	store      Store
	dispatcher Dispatcher
	green      GreenBranch
	verifier   Verifier
	planner    planner.Planner
	signals    *signalbus.Bus

	mu      sync.Mutex
	running bool
}

// New constructs a Controller.
func New(cfg Config, store Store, disp Dispatcher, green GreenBranch, verifier Verifier, p planner.Planner, signals *signalbus.Bus) *Controller {
	return &Controller{
		cfg:        cfg,
		store:      store,
		dispatcher: disp,
		green:      green,
		verifier:   verifier,
		planner:    p,
		signals:    signals,
		running:    true,
	}
}

// Stop clears the running flag; the in-progress or next round boundary
// observes it and the mission ends with stopped_reason=user_stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Controller) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Run drives mission to completion or a stop condition, returning the
// finalized Mission. Infrastructure errors (context cancellation,
// collaborator failures) still flush a terminal mission update before
// returning, with stopped_reason set to "cancelled" or "error".
func (c *Controller) Run(ctx context.Context, objective string) (*models.Mission, error) {
	mission := &models.Mission{
		ID:        models.NewID(),
		Objective: objective,
		Status:    models.MissionStatusRunning,
		StartedAt: time.Now(),
	}
	if err := c.store.InsertMission(mission); err != nil {
		return nil, fmt.Errorf("insert mission: %w", err)
	}

	var scores []float64
	var discoveries []string
	prevScore := 0.0
	runErr := c.runLoop(ctx, mission, &scores, &discoveries, &prevScore)

	c.finalize(mission, runErr)
	if err := c.store.UpdateMission(mission); err != nil {
		return mission, fmt.Errorf("update mission at finalize: %w", err)
	}
	return mission, runErr
}

func (c *Controller) runLoop(ctx context.Context, mission *models.Mission, scores *[]float64, discoveries *[]string, prevScore *float64) error {
	for roundNumber := 1; ; roundNumber++ {
		if err := c.signals.ExpirePending(time.Now()); err != nil {
			return fmt.Errorf("expire stale signals: %w", err)
		}

		// mission.TotalRounds still reflects rounds actually completed
		// so far (roundNumber-1); shouldStop decides whether round
		// roundNumber is allowed to start.
		if reason, stop := c.shouldStop(mission, roundNumber, *scores); stop {
			mission.StoppedReason = reason
			return nil
		}

		if reason, stop, err := c.handleSignals(mission.ID); err != nil {
			return fmt.Errorf("handle signals: %w", err)
		} else if stop {
			mission.StoppedReason = reason
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		eval, roundDiscoveries, err := c.runRound(ctx, mission, roundNumber, *discoveries, *prevScore)
		if err != nil {
			return fmt.Errorf("round %d: %w", roundNumber, err)
		}

		*scores = append(*scores, eval.Score)
		*prevScore = eval.Score
		*discoveries = CurateDiscoveries(roundDiscoveries, c.cfg.maxDiscoveryChars())
		mission.TotalRounds = roundNumber
		mission.FinalScore = eval.Score
		if err := c.store.UpdateMission(mission); err != nil {
			return fmt.Errorf("update mission after round %d: %w", roundNumber, err)
		}

		if eval.Met {
			mission.StoppedReason = models.StoppedReasonObjectiveMet
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.cooldown()):
		}
	}
}

func (c *Controller) finalize(mission *models.Mission, runErr error) {
	now := time.Now()
	mission.FinishedAt = &now

	switch {
	case mission.StoppedReason != "":
		// already decided by the loop (objective_met, stalled,
		// max_rounds, user_stopped, signal_stopped)
	case runErr != nil && isCancellation(runErr):
		mission.StoppedReason = models.StoppedReasonCancelled
	case runErr != nil:
		mission.StoppedReason = models.StoppedReasonError
	}

	if mission.StoppedReason == models.StoppedReasonObjectiveMet {
		mission.Status = models.MissionStatusCompleted
	} else {
		mission.Status = models.MissionStatusStopped
	}

	metrics.RoundsCompleted.WithLabelValues(mission.StoppedReason).Add(float64(mission.TotalRounds))
}

func isCancellation(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}

// shouldStop checks spec.md §4.6's stop conditions 1, 3, and 4 in
// order. Condition 2 (a pending DB signal) is handled separately by
// handleSignals, since acting on a signal requires more than a yes/no
// answer (retry_unit and adjust mutate state without necessarily
// stopping).
func (c *Controller) shouldStop(mission *models.Mission, roundNumber int, scores []float64) (string, bool) {
	if !c.isRunning() {
		return models.StoppedReasonUserStopped, true
	}
	if c.cfg.WallTimeLimit > 0 && time.Since(mission.StartedAt) > c.cfg.WallTimeLimit {
		return models.StoppedReasonWallTimeExceeded, true
	}
	if roundNumber > c.cfg.maxRounds() {
		return models.StoppedReasonMaxRounds, true
	}
	if stallDetected(scores, c.cfg.stallThreshold(), c.cfg.stallScoreEpsilon()) {
		return models.StoppedReasonStalled, true
	}
	return "", false
}

// handleSignals drains every pending signal for missionID, acting on
// each per spec.md §4.6: stop ends the mission immediately with
// signal_stopped; retry_unit and adjust mutate live state and keep
// going.
func (c *Controller) handleSignals(missionID string) (reason string, stop bool, err error) {
	pending, err := c.signals.Pending(missionID)
	if err != nil {
		return "", false, err
	}

	for _, sig := range pending {
		switch sig.Type {
		case models.SignalStop:
			if err := c.signals.Acknowledge(sig.ID); err != nil {
				return "", false, err
			}
			return models.StoppedReasonSignalStopped, true, nil
		case models.SignalRetryUnit:
			if err := c.handleRetrySignal(sig.Payload); err != nil {
				return "", false, err
			}
			if err := c.signals.Acknowledge(sig.ID); err != nil {
				return "", false, err
			}
		case models.SignalAdjust:
			if err := c.handleAdjustSignal(sig.Payload); err != nil {
				return "", false, err
			}
			if err := c.signals.Acknowledge(sig.ID); err != nil {
				return "", false, err
			}
		}
	}
	return "", false, nil
}

func (c *Controller) handleRetrySignal(unitID string) error {
	unit, err := c.store.GetWorkUnit(unitID)
	if err != nil {
		return nil // unknown unit id: nothing to retry, signal still acknowledged
	}
	if unit.Attempt >= unit.MaxAttempts {
		return nil
	}
	unit.Status = models.UnitStatusPending
	unit.WorkerID = ""
	unit.ClaimedAt = nil
	unit.HeartbeatAt = nil
	unit.StartedAt = nil
	unit.FinishedAt = nil
	return c.store.UpdateWorkUnit(unit)
}

type adjustPayload struct {
	MaxRounds  *int `json:"max_rounds"`
	NumWorkers *int `json:"num_workers"`
}

func (c *Controller) handleAdjustSignal(payload string) error {
	var adj adjustPayload
	if err := json.Unmarshal([]byte(payload), &adj); err != nil {
		return nil // malformed adjust payload: acknowledge and move on
	}
	if adj.MaxRounds != nil {
		c.cfg.MaxRounds = *adj.MaxRounds
	}
	if adj.NumWorkers != nil {
		c.dispatcher.Adjust(*adj.NumWorkers)
	}
	return nil
}

// runRound executes one plan -> dispatch -> merge -> evaluate cycle
// and returns its Evaluation plus the discoveries it harvested (not
// yet curated -- the caller curates across the whole running list).
func (c *Controller) runRound(ctx context.Context, mission *models.Mission, roundNumber int, priorDiscoveries []string, prevScore float64) (Evaluation, []string, error) {
	metrics.RoundsStarted.Inc()
	roundStarted := time.Now()
	defer func() {
		metrics.RoundDuration.Observe(time.Since(roundStarted).Seconds())
	}()

	snapshotHash, err := c.green.GetGreenHash(ctx)
	if err != nil {
		return Evaluation{}, nil, fmt.Errorf("get green hash: %w", err)
	}

	round := &models.Round{
		ID:           models.NewID(),
		MissionID:    mission.ID,
		Number:       roundNumber,
		Status:       models.RoundStatusPlanning,
		SnapshotHash: snapshotHash,
		StartedAt:    time.Now(),
	}
	if err := c.store.InsertRound(round); err != nil {
		return Evaluation{}, nil, fmt.Errorf("insert round: %w", err)
	}

	before, err := c.snapshot(ctx)
	if err != nil {
		return Evaluation{}, nil, fmt.Errorf("snapshot before round: %w", err)
	}

	feedback := plannerFeedback(prevScore, roundNumber)
	plan, nodes, units, err := c.planner.PlanRound(ctx, mission.Objective, snapshotHash, priorDiscoveries, roundNumber, feedback)
	if err != nil {
		return Evaluation{}, nil, fmt.Errorf("plan round: %w", err)
	}
	plan.RoundID = round.ID

	ResolveFileOverlaps(units)

	if err := c.persistPlanTree(plan, nodes, units); err != nil {
		return Evaluation{}, nil, fmt.Errorf("persist plan tree: %w", err)
	}

	round.PlanID = plan.ID
	round.TotalUnits = len(units)
	round.Status = models.RoundStatusExecuting
	if err := c.store.UpdateRound(round); err != nil {
		return Evaluation{}, nil, fmt.Errorf("update round to executing: %w", err)
	}

	if err := c.dispatcher.Run(ctx, mission.ID, round.ID, plan.ID); err != nil {
		return Evaluation{}, nil, fmt.Errorf("dispatch plan %s: %w", plan.ID, err)
	}

	finalUnits, err := c.store.ListWorkUnitsByPlan(plan.ID)
	if err != nil {
		return Evaluation{}, nil, fmt.Errorf("list work units for plan %s: %w", plan.ID, err)
	}

	discoveries, failureOutput := c.harvestHandoffs(round.ID, finalUnits)

	completed, failed := tallyUnits(finalUnits)
	metrics.UnitsDispatched.Add(float64(len(finalUnits)))
	metrics.UnitsCompleted.Add(float64(completed))
	if failed > 0 {
		metrics.UnitsFailed.WithLabelValues("verification").Add(float64(failed))
	}
	round.CompletedUnits = completed
	round.FailedUnits = failed
	round.Status = models.RoundStatusEvaluating
	if err := c.store.UpdateRound(round); err != nil {
		return Evaluation{}, nil, fmt.Errorf("update round to evaluating: %w", err)
	}

	fixupPromoted := false
	if failed > 0 {
		metrics.FixupSessionsRun.Inc()
		fixupResult := c.green.RunFixup(ctx, failureOutput, nil)
		fixupPromoted = fixupResult.Success
		if fixupPromoted && c.cfg.AutoPush {
			c.green.PushGreenToMain(ctx)
		}
	}

	after, err := c.snapshot(ctx)
	if err != nil {
		return Evaluation{}, nil, fmt.Errorf("snapshot after round: %w", err)
	}

	eval := EvaluateObjective(before, after, completed, len(finalUnits), fixupPromoted, prevScore)
	metrics.RoundScore.Observe(eval.Score)

	round.ObjectiveScore = eval.Score
	round.ObjectiveMet = eval.Met
	round.Status = models.RoundStatusCompleted
	now := time.Now()
	round.FinishedAt = &now
	if err := c.store.UpdateRound(round); err != nil {
		return Evaluation{}, nil, fmt.Errorf("update round to completed: %w", err)
	}

	return eval, discoveries, nil
}

func (c *Controller) snapshot(ctx context.Context) (models.Snapshot, error) {
	if c.verifier == nil {
		return models.Snapshot{}, nil
	}
	report, err := c.verifier.Verify(ctx, c.cfg.Workspace)
	if err != nil {
		return models.Snapshot{}, err
	}
	return verify.SnapshotFromReport(report), nil
}

func (c *Controller) persistPlanTree(plan *models.Plan, nodes []*models.PlanNode, units []*models.WorkUnit) error {
	if err := c.store.InsertPlan(plan); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := c.store.InsertPlanNode(n); err != nil {
			return err
		}
	}
	for _, u := range units {
		if err := c.store.InsertWorkUnit(u); err != nil {
			return err
		}
	}
	return nil
}

// harvestHandoffs reads every Handoff recorded for the round and
// returns the concatenated discoveries plus a combined failure-output
// string built from every failed unit's output summary, fed to
// RunFixup as the repair prompt's context.
func (c *Controller) harvestHandoffs(roundID string, units []*models.WorkUnit) (discoveries []string, failureOutput string) {
	handoffs, err := c.store.ListHandoffsByRound(roundID)
	if err == nil {
		for _, h := range handoffs {
			discoveries = append(discoveries, h.Discoveries...)
		}
	}

	var failures []string
	for _, u := range units {
		if u.Status == models.UnitStatusFailed && u.OutputSummary != "" {
			failures = append(failures, u.OutputSummary)
		}
	}
	failureOutput = strings.Join(failures, "\n---\n")
	return discoveries, failureOutput
}

func tallyUnits(units []*models.WorkUnit) (completed, failed int) {
	for _, u := range units {
		switch u.Status {
		case models.UnitStatusCompleted:
			completed++
		case models.UnitStatusFailed:
			failed++
		}
	}
	return completed, failed
}

func plannerFeedback(prevScore float64, roundNumber int) string {
	if roundNumber <= 1 {
		return ""
	}
	return fmt.Sprintf("previous round score: %.3f", prevScore)
}

