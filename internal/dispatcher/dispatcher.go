// Package dispatcher implements the Dependency-Aware Parallel
// Dispatcher: the continuous-readiness scheduler that dispatches each
// work unit the instant its dependencies resolve, bounded by a
// resizable worker-count semaphore and gated by a file-lock registry
// so no two concurrently running units ever claim overlapping paths.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/missioncontrol/missionctl/internal/greenbranch"
	"github.com/missioncontrol/missionctl/internal/models"
	"github.com/missioncontrol/missionctl/internal/worker"
)

// Config parameterizes one Dispatcher.
type Config struct {
	NumWorkers        int
	MonitorInterval   time.Duration
	DefaultTimeout    time.Duration
	TimeoutMultiplier float64
}

func (c Config) numWorkers() int {
	if c.NumWorkers <= 0 {
		return 4
	}
	return c.NumWorkers
}

func (c Config) monitorInterval() time.Duration {
	if c.MonitorInterval <= 0 {
		return 2 * time.Second
	}
	return c.MonitorInterval
}

func (c Config) defaultTimeout() time.Duration {
	if c.DefaultTimeout <= 0 {
		return 10 * time.Minute
	}
	return c.DefaultTimeout
}

func (c Config) timeoutMultiplier() float64 {
	if c.TimeoutMultiplier <= 0 {
		return 1.5
	}
	return c.TimeoutMultiplier
}

func (c Config) effectiveTimeout(unit *models.WorkUnit) time.Duration {
	base := c.defaultTimeout()
	if unit.Timeout != nil && *unit.Timeout > 0 {
		base = *unit.Timeout
	}
	return time.Duration(float64(base) * c.timeoutMultiplier())
}

// Store is the persistence surface the dispatcher needs against the
// Event Store, satisfied by *store.Store.
type Store interface {
	ListWorkUnitsByPlan(planID string) ([]*models.WorkUnit, error)
	UpdateWorkUnit(u *models.WorkUnit) error
	TouchHeartbeat(unitID string, at time.Time) error
	AppendEvent(e *models.UnitEvent) error
	InsertHandoff(h *models.Handoff) error
	InsertMergeRequest(m *models.MergeRequest) error
	UpdateMergeRequest(m *models.MergeRequest) error
	GetNextMergePosition() (int, error)
}

// Backend is the worker-process execution surface the dispatcher
// drives, mirroring *worker.Backend's method set so fakes can stand in
// for it in tests.
type Backend interface {
	ProvisionWorkspace(ctx context.Context, unitID string) (*worker.Handle, error)
	ReleaseWorkspace(ctx context.Context, h *worker.Handle) error
	Spawn(ctx context.Context, h *worker.Handle, argv []string, timeout time.Duration) (*worker.ExecHandle, error)
	CheckStatus(eh *worker.ExecHandle) string
	GetOutput(eh *worker.ExecHandle) string
	Kill(eh *worker.ExecHandle) error
}

// Merger is the Green-Branch Manager surface the dispatcher calls once
// a unit's worker reports a completed status with a commit.
type Merger interface {
	MergeUnit(ctx context.Context, workerWorkspace, branchName, acceptance string) greenbranch.UnitMergeResult
}

// ArgvBuilder renders the argv a unit's worker process is spawned
// with. Kept as a function value rather than a fixed call to
// worker.DefaultArgv so a caller can swap in a different worker
// command without the dispatcher knowing about it.
type ArgvBuilder func(unit *models.WorkUnit, prompt string) []string

// Dispatcher runs the continuous-readiness dispatch loop for one
// plan's work units.
type Dispatcher struct {
	cfg     Config
	store   Store
	backend Backend
	merger  Merger
	argv    ArgvBuilder
	prompt  func(unit *models.WorkUnit) string
	locks   *FileLockRegistry

	mu       sync.Mutex
	running  bool
	adjustCh chan int
}

// New constructs a Dispatcher. promptFn renders a unit's worker prompt
// (typically worker.RenderPrompt with mission-level params bound in by
// the caller); argvFn renders the argv to spawn (typically
// worker.DefaultArgv bound to a model/budget).
func New(cfg Config, store Store, backend Backend, merger Merger, promptFn func(*models.WorkUnit) string, argvFn ArgvBuilder) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		backend:  backend,
		merger:   merger,
		argv:     argvFn,
		prompt:   promptFn,
		locks:    NewFileLockRegistry(),
		running:  true,
		adjustCh: make(chan int, 1),
	}
}

// Stop clears the running flag, causing every in-flight unit's poll
// loop to observe ErrStopped at its next poll tick.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

func (d *Dispatcher) isRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Adjust resizes the worker-count semaphore at runtime, the Go
// rendering of an adjust signal the Round Controller's signal bus
// dispatches mid-round.
func (d *Dispatcher) Adjust(n int) {
	select {
	case d.adjustCh <- n:
	default:
		// A pending resize not yet applied is superseded by this one.
		select {
		case <-d.adjustCh:
		default:
		}
		d.adjustCh <- n
	}
}

// Run executes every work unit belonging to planID to a terminal
// status, dispatching each unit the instant its dependencies resolve,
// and returns once pending is empty and nothing is running. missionID
// and roundID are stamped onto every UnitEvent this run appends, so
// crash-recovery replay can scope a query to either one.
func (d *Dispatcher) Run(ctx context.Context, missionID, roundID, planID string) error {
	units, err := d.store.ListWorkUnitsByPlan(planID)
	if err != nil {
		return fmt.Errorf("list work units for plan %s: %w", planID, err)
	}
	if len(units) == 0 {
		return nil
	}

	byID := make(map[string]*models.WorkUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	depsOf := make(map[string][]string, len(units))
	dependentsOf := make(map[string][]string, len(units))
	for _, u := range units {
		var deps []string
		for _, dep := range u.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue // unknown referenced id: dropped edge
			}
			deps = append(deps, dep)
			dependentsOf[dep] = append(dependentsOf[dep], u.ID)
		}
		depsOf[u.ID] = deps
	}

	cyclic := cyclicUnits(units, depsOf)

	r := &run{
		d:            d,
		missionID:    missionID,
		roundID:      roundID,
		byID:         byID,
		dependentsOf: dependentsOf,
		completed:    make(map[string]bool, len(units)),
		pending:      make(map[string]bool, len(units)),
		running:      make(map[string]bool, len(units)),
		sem:          newResizableSemaphore(d.cfg.numWorkers()),
		done:         make(chan string, len(units)+1),
	}

	for _, u := range units {
		if cyclic[u.ID] {
			r.finishFailed(ctx, u, "Deadlock: circular dependency detected", ErrCyclicDependency)
			r.completed[u.ID] = false
			continue
		}
		r.pending[u.ID] = true
	}

	return r.loop(ctx)
}

// cyclicUnits identifies exactly the units that never get visited by a
// Kahn's-algorithm topological walk -- those are the ones participating
// in (or depending transitively only on) a circular dependency.
// models.HasCyclicDependencies only reports a yes/no boolean over the
// whole set, so the dispatcher needs its own walk to know which units
// specifically to fail.
func cyclicUnits(units []*models.WorkUnit, depsOf map[string][]string) map[string]bool {
	indegree := make(map[string]int, len(units))
	for _, u := range units {
		indegree[u.ID] = len(depsOf[u.ID])
	}

	var queue []string
	for _, u := range units {
		if indegree[u.ID] == 0 {
			queue = append(queue, u.ID)
		}
	}

	dependentsOf := make(map[string][]string, len(units))
	for _, u := range units {
		for _, dep := range depsOf[u.ID] {
			dependentsOf[dep] = append(dependentsOf[dep], u.ID)
		}
	}

	visited := make(map[string]bool, len(units))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited[id] = true
		for _, dependent := range dependentsOf[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	cyclic := make(map[string]bool)
	for _, u := range units {
		if !visited[u.ID] {
			cyclic[u.ID] = true
		}
	}
	return cyclic
}
