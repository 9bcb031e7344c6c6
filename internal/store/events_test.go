package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/missioncontrol/missionctl/internal/models"
)

func TestAppendEventSkipsUnboundUnit(t *testing.T) {
	s := openTestStore(t)
	missionID := models.NewID()

	err := s.AppendEvent(&models.UnitEvent{
		ID:         models.NewID(),
		Timestamp:  time.Now(),
		MissionID:  missionID,
		WorkUnitID: models.NewID(), // no such work_units row
		EventType:  models.EventDispatched,
	})
	require.NoError(t, err)

	events, err := s.ReplayEventsByMission(missionID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReplayEventsByUnitOrdersChronologically(t *testing.T) {
	s := openTestStore(t)
	plan := seedPlan(t, s)
	unit := &models.WorkUnit{ID: models.NewID(), PlanID: plan.ID, Title: "x", Status: models.UnitStatusPending}
	require.NoError(t, s.InsertWorkUnit(unit))

	base := time.Now().UTC().Truncate(time.Second)
	seq := []string{models.EventDispatched, models.EventClaimed, models.EventRunning, models.EventCompleted, models.EventMerged}
	for i, et := range seq {
		require.NoError(t, s.AppendEvent(&models.UnitEvent{
			ID:         models.NewID(),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			MissionID:  plan.RoundID,
			RoundID:    plan.RoundID,
			WorkUnitID: unit.ID,
			EventType:  et,
		}))
	}

	events, err := s.ReplayEventsByUnit(unit.ID)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, et := range seq {
		assert.Equal(t, et, events[i].EventType)
	}
	assert.Equal(t, models.UnitStatusCompleted, models.DeriveStatus(events))
}

func TestDeriveStatusAfterCrashPrefersEventStreamOverStaleColumn(t *testing.T) {
	s := openTestStore(t)
	plan := seedPlan(t, s)

	unit := &models.WorkUnit{ID: models.NewID(), PlanID: plan.ID, Title: "x", Status: models.UnitStatusRunning}
	require.NoError(t, s.InsertWorkUnit(unit))

	for _, et := range []string{models.EventDispatched, models.EventClaimed, models.EventRunning, models.EventCompleted, models.EventMerged} {
		require.NoError(t, s.AppendEvent(&models.UnitEvent{
			ID: models.NewID(), Timestamp: time.Now(), MissionID: plan.RoundID, WorkUnitID: unit.ID, EventType: et,
		}))
	}

	stored, err := s.GetWorkUnit(unit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnitStatusRunning, stored.Status, "mutable column left stale, as a crash would leave it")

	events, err := s.ReplayEventsByUnit(unit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnitStatusCompleted, models.DeriveStatus(events), "derived status is the ground truth crash recovery trusts")
}

func TestReplayEventsByRoundAndMission(t *testing.T) {
	s := openTestStore(t)
	mission := &models.Mission{ID: models.NewID(), Objective: "x", Status: models.MissionStatusRunning, StartedAt: time.Now()}
	require.NoError(t, s.InsertMission(mission))
	round := &models.Round{ID: models.NewID(), MissionID: mission.ID, Number: 1, Status: models.RoundStatusExecuting, StartedAt: time.Now()}
	require.NoError(t, s.InsertRound(round))
	plan := &models.Plan{ID: models.NewID(), RoundID: round.ID, Objective: "x", Status: models.PlanStatusActive}
	require.NoError(t, s.InsertPlan(plan))

	unitA := &models.WorkUnit{ID: models.NewID(), PlanID: plan.ID, Title: "a", Status: models.UnitStatusPending}
	unitB := &models.WorkUnit{ID: models.NewID(), PlanID: plan.ID, Title: "b", Status: models.UnitStatusPending}
	require.NoError(t, s.InsertWorkUnit(unitA))
	require.NoError(t, s.InsertWorkUnit(unitB))

	require.NoError(t, s.AppendEvent(&models.UnitEvent{ID: models.NewID(), Timestamp: time.Now(), MissionID: mission.ID, RoundID: round.ID, WorkUnitID: unitA.ID, EventType: models.EventDispatched}))
	require.NoError(t, s.AppendEvent(&models.UnitEvent{ID: models.NewID(), Timestamp: time.Now(), MissionID: mission.ID, RoundID: round.ID, WorkUnitID: unitB.ID, EventType: models.EventDispatched}))

	byRound, err := s.ReplayEventsByRound(round.ID)
	require.NoError(t, err)
	assert.Len(t, byRound, 2)

	byMission, err := s.ReplayEventsByMission(mission.ID)
	require.NoError(t, err)
	assert.Len(t, byMission, 2)
}
