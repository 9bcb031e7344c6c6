// Package signalbus is a thin query layer over the signals table,
// consumed by the Round Controller at each round boundary to pick up
// stop/retry_unit/adjust control-plane messages issued out of band
// (e.g. from a `missionctl signal` CLI invocation against the same
// store file).
package signalbus

import (
	"time"

	"github.com/missioncontrol/missionctl/internal/models"
)

// Store is the subset of *store.Store the Bus needs, kept narrow so
// tests can substitute an in-memory fake instead of a real sqlite file.
type Store interface {
	InsertSignal(sig *models.Signal) error
	AcknowledgeSignal(id string) error
	ExpireStaleSignals(olderThan time.Time) error
	ListPendingSignals(missionID string) ([]*models.Signal, error)
}

// Bus wraps a Store with the signal-lifecycle operations the Round
// Controller and the `missionctl signal` CLI both need.
type Bus struct {
	store Store
	// MaxAge bounds how long a signal may sit pending before
	// ExpirePending considers it stale. Defaults to 10 minutes: long
	// enough to span one round's execution, short enough that a signal
	// issued against a mission that silently died does not appear to
	// remain actionable forever.
	MaxAge time.Duration
}

// New constructs a Bus over store.
func New(store Store) *Bus {
	return &Bus{store: store, MaxAge: 10 * time.Minute}
}

// Emit issues a new signal of the given type with the given payload.
func (b *Bus) Emit(missionID, signalType, payload string) (*models.Signal, error) {
	sig := &models.Signal{
		ID:        models.NewID(),
		MissionID: missionID,
		Type:      signalType,
		Payload:   payload,
		Status:    models.SignalStatusPending,
		CreatedAt: time.Now(),
	}
	if err := b.store.InsertSignal(sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// Pending returns every pending signal for a mission, in creation order.
func (b *Bus) Pending(missionID string) ([]*models.Signal, error) {
	return b.store.ListPendingSignals(missionID)
}

// Acknowledge marks a signal handled, so it is never reprocessed at a
// later round boundary.
func (b *Bus) Acknowledge(id string) error {
	return b.store.AcknowledgeSignal(id)
}

// ExpirePending expires every signal older than MaxAge still pending,
// so a crashed or unresponsive Round Controller never leaves a signal
// permanently actionable against a mission nobody is driving anymore.
func (b *Bus) ExpirePending(now time.Time) error {
	age := b.MaxAge
	if age <= 0 {
		age = 10 * time.Minute
	}
	return b.store.ExpireStaleSignals(now.Add(-age))
}
