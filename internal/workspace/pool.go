// Package workspace implements the Workspace Pool: a bounded set of git
// "shared" clones that give each worker process an isolated checkout
// without the cost of a full copy of the source repository's object
// store.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/missioncontrol/missionctl/internal/gitutil"
	"github.com/missioncontrol/missionctl/internal/metrics"
)

// Pool manages a bounded set of git --shared clones of a source repo.
// An acquired workspace is exclusively owned by its caller until
// released; the pool never holds more than MaxClones clones total.
type Pool struct {
	sourceRepo  string
	poolDir     string
	maxClones   int
	baseBranch  string
	greenBranch string // optional; empty disables the green-branch reset preference

	mu        sync.Mutex
	available []string
	inUse     map[string]struct{}
}

// New constructs a Pool. greenBranch may be empty.
func New(sourceRepo, poolDir string, maxClones int, baseBranch, greenBranch string) *Pool {
	metrics.WorkspacePoolCapacity.Set(float64(maxClones))
	return &Pool{
		sourceRepo:  sourceRepo,
		poolDir:     poolDir,
		maxClones:   maxClones,
		baseBranch:  baseBranch,
		greenBranch: greenBranch,
		inUse:       make(map[string]struct{}),
	}
}

// TotalClones returns the number of clones currently tracked, available
// plus in-use.
func (p *Pool) TotalClones() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available) + len(p.inUse)
}

// AvailableSlots returns MaxClones minus the number of in-use clones:
// how many more workspaces can be acquired, counting idle clones and
// clones not yet created.
func (p *Pool) AvailableSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxClones - len(p.inUse)
}

// Initialize creates the pool directory and optionally pre-warms
// warmCount clones.
func (p *Pool) Initialize(ctx context.Context, warmCount int) error {
	if err := os.MkdirAll(p.poolDir, 0o755); err != nil {
		return fmt.Errorf("create workspace pool directory: %w", err)
	}
	for i := 0; i < warmCount; i++ {
		clone, err := p.createClone(ctx)
		if err != nil {
			return fmt.Errorf("pre-warm clone %d/%d: %w", i+1, warmCount, err)
		}
		if clone == "" {
			break
		}
		p.mu.Lock()
		p.available = append(p.available, clone)
		p.mu.Unlock()
	}
	return nil
}

// Acquire returns an idle workspace path, creating one if none is idle
// and the pool is under MaxClones. Returns "" (not an error) if the
// pool is at capacity -- the caller must wait or fail the dispatch.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	p.mu.Lock()
	if n := len(p.available); n > 0 {
		workspace := p.available[n-1]
		p.available = p.available[:n-1]
		p.inUse[workspace] = struct{}{}
		inUse := len(p.inUse)
		p.mu.Unlock()
		metrics.WorkspacePoolInUse.Set(float64(inUse))
		return workspace, nil
	}
	p.mu.Unlock()

	clone, err := p.createClone(ctx)
	if err != nil {
		return "", err
	}
	if clone == "" {
		return "", nil
	}

	p.mu.Lock()
	p.inUse[clone] = struct{}{}
	inUse := len(p.inUse)
	p.mu.Unlock()
	metrics.WorkspacePoolInUse.Set(float64(inUse))
	return clone, nil
}

// Release resets a workspace to clean state and returns it to the
// available pool. A workspace not currently tracked as in-use is
// ignored, matching the teacher-source guard against double-release.
func (p *Pool) Release(ctx context.Context, workspace string) error {
	p.mu.Lock()
	if _, ok := p.inUse[workspace]; !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.inUse, workspace)
	inUse := len(p.inUse)
	p.mu.Unlock()
	metrics.WorkspacePoolInUse.Set(float64(inUse))

	if err := p.resetClone(ctx, workspace); err != nil {
		return fmt.Errorf("reset workspace before release: %w", err)
	}

	p.mu.Lock()
	p.available = append(p.available, workspace)
	p.mu.Unlock()
	return nil
}

// Cleanup deletes every clone and the pool directory itself.
func (p *Pool) Cleanup() error {
	p.mu.Lock()
	all := append(append([]string{}, p.available...), keysOf(p.inUse)...)
	p.available = nil
	p.inUse = make(map[string]struct{})
	p.mu.Unlock()

	for _, clone := range all {
		if err := os.RemoveAll(clone); err != nil {
			return fmt.Errorf("remove clone %s: %w", clone, err)
		}
	}
	return os.RemoveAll(p.poolDir)
}

func (p *Pool) createClone(ctx context.Context) (string, error) {
	if p.TotalClones() >= p.maxClones {
		return "", nil
	}

	name := "worker-" + uuid.New().String()[:8]
	clonePath := filepath.Join(p.poolDir, name)

	if _, err := gitutil.Run(ctx, "", "clone", "--shared", p.sourceRepo, clonePath); err != nil {
		return "", fmt.Errorf("create shared clone at %s: %w", clonePath, err)
	}
	return clonePath, nil
}

// resetClone restores a clone to clean state: checkout base, fetch,
// hard-reset, clean -fdx.
//
// checkout MUST happen before reset: resetting while still on a unit
// branch (e.g. mc/unit-X) moves that branch's ref to origin/main,
// destroying the worker's commit before the Green-Branch Manager has
// had a chance to fetch it.
func (p *Pool) resetClone(ctx context.Context, clonePath string) error {
	if _, err := gitutil.Run(ctx, clonePath, "checkout", p.baseBranch); err != nil {
		return fmt.Errorf("checkout base branch: %w", err)
	}
	if _, err := gitutil.Run(ctx, clonePath, "fetch", "origin"); err != nil {
		return fmt.Errorf("fetch origin: %w", err)
	}

	resetRef := "origin/" + p.baseBranch
	if p.greenBranch != "" && gitutil.RevParseVerify(ctx, clonePath, "origin/"+p.greenBranch) {
		resetRef = "origin/" + p.greenBranch
	}

	if _, err := gitutil.Run(ctx, clonePath, "reset", "--hard", resetRef); err != nil {
		return fmt.Errorf("reset --hard %s: %w", resetRef, err)
	}
	if _, err := gitutil.Run(ctx, clonePath, "clean", "-fdx"); err != nil {
		return fmt.Errorf("clean -fdx: %w", err)
	}
	return nil
}

func keysOf(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
