package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/missioncontrol/missionctl/internal/greenbranch"
	"github.com/missioncontrol/missionctl/internal/models"
	"github.com/missioncontrol/missionctl/internal/worker"
)

// fakeStore is an in-memory Store good enough to drive the dispatch
// loop end to end without a real sqlite-backed store.
type fakeStore struct {
	mu            sync.Mutex
	units         map[string]*models.WorkUnit
	events        []models.UnitEvent
	mergeRequests []models.MergeRequest
}

func newFakeStore(units []*models.WorkUnit) *fakeStore {
	s := &fakeStore{units: make(map[string]*models.WorkUnit)}
	for _, u := range units {
		s.units[u.ID] = u
	}
	return s
}

func (s *fakeStore) ListWorkUnitsByPlan(planID string) ([]*models.WorkUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.WorkUnit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u)
	}
	return out, nil
}

func (s *fakeStore) UpdateWorkUnit(u *models.WorkUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.units[u.ID] = &cp
	return nil
}

func (s *fakeStore) TouchHeartbeat(unitID string, at time.Time) error { return nil }

func (s *fakeStore) AppendEvent(e *models.UnitEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

func (s *fakeStore) InsertHandoff(h *models.Handoff) error { return nil }

func (s *fakeStore) InsertMergeRequest(m *models.MergeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeRequests = append(s.mergeRequests, *m)
	return nil
}

func (s *fakeStore) UpdateMergeRequest(m *models.MergeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mergeRequests {
		if s.mergeRequests[i].ID == m.ID {
			s.mergeRequests[i] = *m
		}
	}
	return nil
}

func (s *fakeStore) GetNextMergePosition() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mergeRequests) + 1, nil
}

func (s *fakeStore) statusOf(t *testing.T, id string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	require.True(t, ok)
	return u.Status
}

// scriptedBackend is the fake Backend used by the tests below: it
// bypasses Spawn/CheckStatus/GetOutput's ExecHandle plumbing entirely
// (since constructing a real *worker.ExecHandle requires a real
// process) by completing synchronously inside Spawn and stashing the
// scripted output on a per-unit side channel that CheckStatus/GetOutput
// read back by matching the same *worker.ExecHandle pointer identity.
type scriptedBackend struct {
	mu      sync.Mutex
	outputs map[*worker.ExecHandle]string
	script  map[string]string // unit id -> MC_RESULT output
	fail    map[string]bool   // unit id -> ProvisionWorkspace returns err
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{
		outputs: make(map[*worker.ExecHandle]string),
		script:  make(map[string]string),
		fail:    make(map[string]bool),
	}
}

func (b *scriptedBackend) ProvisionWorkspace(ctx context.Context, unitID string) (*worker.Handle, error) {
	return &worker.Handle{UnitID: unitID, WorkspacePath: "/tmp/" + unitID}, nil
}

func (b *scriptedBackend) ReleaseWorkspace(ctx context.Context, h *worker.Handle) error { return nil }

func (b *scriptedBackend) Spawn(ctx context.Context, h *worker.Handle, argv []string, timeout time.Duration) (*worker.ExecHandle, error) {
	eh := &worker.ExecHandle{}
	b.mu.Lock()
	b.outputs[eh] = b.script[h.UnitID]
	b.mu.Unlock()
	return eh, nil
}

func (b *scriptedBackend) CheckStatus(eh *worker.ExecHandle) string {
	return worker.StatusCompleted
}

func (b *scriptedBackend) GetOutput(eh *worker.ExecHandle) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputs[eh]
}

func (b *scriptedBackend) Kill(eh *worker.ExecHandle) error { return nil }

type fakeMerger struct {
	mu      sync.Mutex
	merged  []string
	failFor map[string]bool
}

func (m *fakeMerger) MergeUnit(ctx context.Context, workerWorkspace, branchName, acceptance string) greenbranch.UnitMergeResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merged = append(m.merged, branchName)
	if m.failFor[branchName] {
		return greenbranch.UnitMergeResult{Merged: false, FailureStage: greenbranch.StagePreMergeVerify, FailureOutput: "scripted failure"}
	}
	return greenbranch.UnitMergeResult{Merged: true, VerificationPassed: true, MergeCommitHash: "deadbeef"}
}

func completedResult(commit string) string {
	if commit == "" {
		return `done MC_RESULT:{"status":"completed","summary":"ok"}`
	}
	return `done MC_RESULT:{"status":"completed","commits":["` + commit + `"],"summary":"ok"}`
}

func newTestDispatcher(store Store, backend Backend, merger Merger) *Dispatcher {
	return New(Config{NumWorkers: 4, MonitorInterval: time.Millisecond}, store, backend, merger,
		func(u *models.WorkUnit) string { return "" },
		func(u *models.WorkUnit, prompt string) []string { return []string{"noop"} },
	)
}

func TestRunDispatchesIndependentUnitsAndMerges(t *testing.T) {
	units := []*models.WorkUnit{
		{ID: "a", PlanID: "p1"},
		{ID: "b", PlanID: "p1"},
	}
	store := newFakeStore(units)
	backend := newScriptedBackend()
	backend.script["a"] = completedResult("c1")
	backend.script["b"] = completedResult("c2")
	merger := &fakeMerger{failFor: map[string]bool{}}

	d := newTestDispatcher(store, backend, merger)
	err := d.Run(context.Background(), "m1", "r1", "p1")
	require.NoError(t, err)

	require.Equal(t, models.UnitStatusCompleted, store.statusOf(t, "a"))
	require.Equal(t, models.UnitStatusCompleted, store.statusOf(t, "b"))
	require.Len(t, merger.merged, 2)
}

func TestRunRespectsDependencyOrdering(t *testing.T) {
	units := []*models.WorkUnit{
		{ID: "a", PlanID: "p1"},
		{ID: "b", PlanID: "p1", DependsOn: []string{"a"}},
	}
	store := newFakeStore(units)
	backend := newScriptedBackend()
	backend.script["a"] = completedResult("c1")
	backend.script["b"] = completedResult("c2")
	merger := &fakeMerger{failFor: map[string]bool{}}

	d := newTestDispatcher(store, backend, merger)
	err := d.Run(context.Background(), "m1", "r1", "p1")
	require.NoError(t, err)

	require.Equal(t, models.UnitStatusCompleted, store.statusOf(t, "a"))
	require.Equal(t, models.UnitStatusCompleted, store.statusOf(t, "b"))
}

func TestRunCascadesFailureToDependents(t *testing.T) {
	units := []*models.WorkUnit{
		{ID: "a", PlanID: "p1"},
		{ID: "b", PlanID: "p1", DependsOn: []string{"a"}},
		{ID: "c", PlanID: "p1", DependsOn: []string{"b"}},
	}
	store := newFakeStore(units)
	backend := newScriptedBackend()
	backend.script["a"] = `done MC_RESULT:{"status":"failed","summary":"broke"}`

	merger := &fakeMerger{}
	d := newTestDispatcher(store, backend, merger)
	err := d.Run(context.Background(), "m1", "r1", "p1")
	require.NoError(t, err)

	require.Equal(t, models.UnitStatusFailed, store.statusOf(t, "a"))
	require.Equal(t, models.UnitStatusFailed, store.statusOf(t, "b"))
	require.Equal(t, models.UnitStatusFailed, store.statusOf(t, "c"))
	require.Empty(t, merger.merged)
}

func TestRunDetectsCyclicDependency(t *testing.T) {
	units := []*models.WorkUnit{
		{ID: "a", PlanID: "p1", DependsOn: []string{"b"}},
		{ID: "b", PlanID: "p1", DependsOn: []string{"a"}},
		{ID: "c", PlanID: "p1"},
	}
	store := newFakeStore(units)
	backend := newScriptedBackend()
	backend.script["c"] = completedResult("")
	merger := &fakeMerger{}

	d := newTestDispatcher(store, backend, merger)
	err := d.Run(context.Background(), "m1", "r1", "p1")
	require.NoError(t, err)

	require.Equal(t, models.UnitStatusFailed, store.statusOf(t, "a"))
	require.Equal(t, models.UnitStatusFailed, store.statusOf(t, "b"))
	require.Equal(t, models.UnitStatusCompleted, store.statusOf(t, "c"))
}

func TestRunMergeFailureMarksUnitFailed(t *testing.T) {
	units := []*models.WorkUnit{{ID: "a", PlanID: "p1"}}
	store := newFakeStore(units)
	backend := newScriptedBackend()
	backend.script["a"] = completedResult("c1")
	merger := &fakeMerger{failFor: map[string]bool{"mc/unit-a": true}}

	d := newTestDispatcher(store, backend, merger)
	err := d.Run(context.Background(), "m1", "r1", "p1")
	require.NoError(t, err)

	require.Equal(t, models.UnitStatusFailed, store.statusOf(t, "a"))
}

func TestFileLockRegistryBlocksOverlappingClaims(t *testing.T) {
	r := NewFileLockRegistry()
	require.Empty(t, r.Claim("unit-1", []string{"src/api/handler.go"}))
	require.NotEmpty(t, r.Claim("unit-2", []string{"src/api/handler.go"}))
	r.Release("unit-1")
	require.Empty(t, r.Claim("unit-2", []string{"src/api/handler.go"}))
}

func TestFileLockRegistryGlobOverlap(t *testing.T) {
	r := NewFileLockRegistry()
	require.Empty(t, r.Claim("unit-1", []string{"src/api/**"}))
	require.True(t, r.HasConflict("unit-2", []string{"src/api/handler.go"}))
	require.False(t, r.HasConflict("unit-3", []string{"src/web/handler.go"}))
}

func TestFileLockRegistryDirectoryContainment(t *testing.T) {
	r := NewFileLockRegistry()
	require.Empty(t, r.Claim("unit-1", []string{"src/api/"}))
	require.True(t, r.HasConflict("unit-2", []string{"src/api/handler.go"}))
}
