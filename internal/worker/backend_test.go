package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackendSpawnCompletes(t *testing.T) {
	b := &Backend{}
	h := &Handle{UnitID: "unit-1", WorkspacePath: t.TempDir()}

	eh, err := b.Spawn(context.Background(), h, []string{"sh", "-c", "echo MC_RESULT:'{\"status\":\"completed\"}'"}, 5*time.Second)
	require.NoError(t, err)
	eh.Wait()

	require.Equal(t, StatusCompleted, b.CheckStatus(eh))
	result, ok := ParseMCResult(b.GetOutput(eh))
	require.True(t, ok)
	require.Equal(t, "completed", result.Status)
}

func TestBackendSpawnFailureExitCode(t *testing.T) {
	b := &Backend{}
	h := &Handle{UnitID: "unit-1", WorkspacePath: t.TempDir()}

	eh, err := b.Spawn(context.Background(), h, []string{"sh", "-c", "exit 1"}, 5*time.Second)
	require.NoError(t, err)
	eh.Wait()

	require.Equal(t, StatusFailed, b.CheckStatus(eh))
}

func TestBackendKillStopsLongRunningProcess(t *testing.T) {
	b := &Backend{}
	h := &Handle{UnitID: "unit-1", WorkspacePath: t.TempDir()}

	eh, err := b.Spawn(context.Background(), h, []string{"sleep", "30"}, time.Minute)
	require.NoError(t, err)

	require.Equal(t, StatusRunning, b.CheckStatus(eh))
	require.NoError(t, b.Kill(eh))
	require.Equal(t, StatusFailed, b.CheckStatus(eh))
}

func TestBackendSpawnRespectsTimeout(t *testing.T) {
	b := &Backend{}
	h := &Handle{UnitID: "unit-1", WorkspacePath: t.TempDir()}

	eh, err := b.Spawn(context.Background(), h, []string{"sleep", "30"}, 200*time.Millisecond)
	require.NoError(t, err)
	eh.Wait()

	require.Equal(t, StatusFailed, b.CheckStatus(eh))
}

func TestBackendCircuitOpensAfterConsecutiveSpawnFailures(t *testing.T) {
	b := NewNamed(nil, "flaky-backend-test")
	h := &Handle{UnitID: "unit-1", WorkspacePath: t.TempDir()}

	var lastErr error
	for i := 0; i < 3; i++ {
		_, lastErr = b.Spawn(context.Background(), h, []string{"/no/such/binary-mc-test"}, time.Second)
		require.Error(t, lastErr)
	}

	_, err := b.Spawn(context.Background(), h, []string{"/no/such/binary-mc-test"}, time.Second)
	require.ErrorIs(t, err, ErrBackendUnavailable)
}
