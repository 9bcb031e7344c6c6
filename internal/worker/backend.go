// Package worker implements the Worker Backend: the child-process
// contract that provisions a workspace, spawns the unit's worker
// process, and exposes a poll/kill state machine over it. The worker
// process itself -- what it is, what arguments it takes -- is opaque to
// this package; spec'd out as an LLM subprocess invocation that this
// core treats purely as argv plus a terminal sentinel line on stdout.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/missioncontrol/missionctl/internal/claude"
	"github.com/missioncontrol/missionctl/internal/workspace"
)

// Execution status values returned by CheckStatus.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Backend composes a Workspace Pool with child-process execution, the
// local implementation of the worker-backend contract. Remote-shell and
// container backends would implement the same interface and are out of
// core scope.
type Backend struct {
	pool    *workspace.Pool
	breaker *gobreaker.CircuitBreaker
}

// New constructs a local Backend over the given Workspace Pool, named
// "local" for circuit-breaker bookkeeping.
func New(pool *workspace.Pool) *Backend {
	return NewNamed(pool, "local")
}

// NewNamed constructs a Backend whose workspace-provisioning and
// child-process-spawn calls are both wrapped in one circuit breaker
// keyed by name. Repeated infrastructure failures (spec.md §7's
// "infrastructure" error category -- acquiring a workspace, starting a
// process) trip the breaker so a dead backend fails every subsequent
// dispatch attempt immediately instead of retrying a doomed spawn on
// every tick.
func NewNamed(pool *workspace.Pool, name string) *Backend {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Backend{pool: pool, breaker: breaker}
}

// execute runs fn through the breaker when one is configured (via New
// or NewNamed), or directly when b is a zero-value Backend -- tests
// construct Backend literals for Spawn-only coverage and shouldn't
// need to thread a breaker through just to call it.
func (b *Backend) execute(fn func() (interface{}, error)) (interface{}, error) {
	if b.breaker == nil {
		return fn()
	}
	return b.breaker.Execute(fn)
}

// Handle identifies a provisioned workspace for one work unit.
type Handle struct {
	UnitID        string
	WorkspacePath string
}

// ExecHandle tracks one spawned child process.
type ExecHandle struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	output   bytes.Buffer
	status   string
	exitCode int
	done     chan struct{}
}

// ProvisionWorkspace acquires a clone from the pool for the given unit.
// Returns a nil Handle (not an error) if the pool is at capacity.
func (b *Backend) ProvisionWorkspace(ctx context.Context, unitID string) (*Handle, error) {
	path, err := b.execute(func() (interface{}, error) {
		return b.pool.Acquire(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil, fmt.Errorf("acquire workspace for unit %s: %w", unitID, err)
	}
	workspacePath, _ := path.(string)
	if workspacePath == "" {
		return nil, nil
	}
	return &Handle{UnitID: unitID, WorkspacePath: workspacePath}, nil
}

// ReleaseWorkspace returns the handle's workspace to the pool.
func (b *Backend) ReleaseWorkspace(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	return b.pool.Release(ctx, h.WorkspacePath)
}

// Cleanup tears down the entire underlying pool. Called once at
// mission shutdown.
func (b *Backend) Cleanup() error {
	return b.pool.Cleanup()
}

// Spawn starts argv in the handle's workspace and returns immediately;
// progress is observed via CheckStatus/GetOutput. timeout bounds the
// process's total wall-clock lifetime; on expiry the process is killed
// and CheckStatus reports failed.
func (b *Backend) Spawn(ctx context.Context, h *Handle, argv []string, timeout time.Duration) (*ExecHandle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("spawn: %w", ErrEmptyArgv)
	}

	result, err := b.execute(func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
		cmd.Dir = h.WorkspacePath
		claude.SetCleanEnv(cmd)

		eh := &ExecHandle{cmd: cmd, cancel: cancel, status: StatusRunning, done: make(chan struct{})}
		cmd.Stdout = eh
		cmd.Stderr = eh

		if err := cmd.Start(); err != nil {
			cancel()
			return nil, fmt.Errorf("start worker process: %w", err)
		}
		return eh, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil, err
	}

	eh := result.(*ExecHandle)
	go eh.wait()
	return eh, nil
}

// Write implements io.Writer so combined stdout/stderr accumulates
// under the handle's own mutex rather than needing a separate pipe
// reader goroutine.
func (eh *ExecHandle) Write(p []byte) (int, error) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	return eh.output.Write(p)
}

func (eh *ExecHandle) wait() {
	err := eh.cmd.Wait()
	eh.cancel()

	eh.mu.Lock()
	eh.exitCode = eh.cmd.ProcessState.ExitCode()
	if err != nil || eh.exitCode != 0 {
		eh.status = StatusFailed
	} else {
		eh.status = StatusCompleted
	}
	eh.mu.Unlock()
	close(eh.done)
}

// CheckStatus reports the process's current state.
func (b *Backend) CheckStatus(eh *ExecHandle) string {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	return eh.status
}

// GetOutput returns everything captured from the process so far.
func (b *Backend) GetOutput(eh *ExecHandle) string {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	return eh.output.String()
}

// Kill terminates the process if still running and waits for its wait
// goroutine to observe the exit.
func (b *Backend) Kill(eh *ExecHandle) error {
	eh.mu.Lock()
	running := eh.status == StatusRunning
	eh.mu.Unlock()
	if !running {
		return nil
	}
	if eh.cmd.Process != nil {
		if err := eh.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill worker process: %w", err)
		}
	}
	<-eh.done
	return nil
}

// Wait blocks until the process has exited, for callers (tests mainly)
// that want to synchronize without polling CheckStatus.
func (eh *ExecHandle) Wait() {
	<-eh.done
}
