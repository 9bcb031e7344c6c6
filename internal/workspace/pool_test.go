package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// initSourceRepo creates a bare-origin-backed repo on disk so that
// git clone --shared and origin/<branch> resets behave realistically.
func initSourceRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	run("config", "user.email", "mc@example.com")
	run("config", "user.name", "mission control")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial commit")

	return dir
}

func TestPoolAcquireReleaseRespectsCeiling(t *testing.T) {
	ctx := context.Background()
	source := initSourceRepo(t)
	poolDir := filepath.Join(t.TempDir(), "pool")

	p := New(source, poolDir, 2, "main", "")
	require.NoError(t, p.Initialize(ctx, 0))

	w1, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, w1)

	w2, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, w2)
	require.NotEqual(t, w1, w2)

	w3, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Empty(t, w3, "pool is at max_clones, acquire must return empty rather than error")

	require.NoError(t, p.Release(ctx, w1))
	w4, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, w1, w4, "a released clone is reused before a new one is created")
}

func TestPoolReleaseResetsUnitBranchWithoutDestroyingIt(t *testing.T) {
	ctx := context.Background()
	source := initSourceRepo(t)
	poolDir := filepath.Join(t.TempDir(), "pool")

	p := New(source, poolDir, 1, "main", "")
	require.NoError(t, p.Initialize(ctx, 0))

	workspace, err := p.Acquire(ctx)
	require.NoError(t, err)

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = workspace
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("checkout", "-b", "mc/unit-1")
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "unit.txt"), []byte("work\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "unit work")

	require.NoError(t, p.Release(ctx, workspace))

	cmd := exec.Command("git", "rev-parse", "--verify", "mc/unit-1")
	cmd.Dir = workspace
	require.NoError(t, cmd.Run(), "unit branch ref must survive reset, since the checkout-base-first ordering protects it")
}

func TestPoolCleanupRemovesEverything(t *testing.T) {
	ctx := context.Background()
	source := initSourceRepo(t)
	poolDir := filepath.Join(t.TempDir(), "pool")

	p := New(source, poolDir, 1, "main", "")
	require.NoError(t, p.Initialize(ctx, 1))
	require.Equal(t, 1, p.TotalClones())

	require.NoError(t, p.Cleanup())
	_, err := os.Stat(poolDir)
	require.True(t, os.IsNotExist(err))
}
