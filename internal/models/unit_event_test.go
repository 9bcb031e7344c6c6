package models

import "testing"

func TestDeriveStatus_Empty(t *testing.T) {
	if got := DeriveStatus(nil); got != UnitStatusPending {
		t.Fatalf("empty sequence should derive to pending, got %q", got)
	}
}

func TestDeriveStatus_CompletedAndMerged(t *testing.T) {
	events := eventsOf(EventDispatched, EventClaimed, EventRunning, EventCompleted, EventMerged)
	if got := DeriveStatus(events); got != UnitStatusCompleted {
		t.Fatalf("expected completed, got %q", got)
	}
}

func TestDeriveStatus_RetryAfterMergeFailureThenSucceeds(t *testing.T) {
	events := eventsOf(
		EventDispatched, EventClaimed, EventRunning, EventCompleted,
		EventMergeFailed, EventRetryQueued, EventDispatched, EventClaimed,
		EventRunning, EventCompleted, EventMerged,
	)
	if got := DeriveStatus(events); got != UnitStatusCompleted {
		t.Fatalf("expected completed after retry succeeds, got %q", got)
	}
}

func TestDeriveStatus_RejectedAfterMergeFailure(t *testing.T) {
	events := eventsOf(
		EventDispatched, EventClaimed, EventRunning, EventCompleted,
		EventMergeFailed, EventRejected,
	)
	if got := DeriveStatus(events); got != UnitStatusFailed {
		t.Fatalf("expected failed, got %q", got)
	}
}

func TestDeriveStatus_UnknownEventTypeSkipped(t *testing.T) {
	events := []UnitEvent{
		{EventType: EventDispatched},
		{EventType: "something_unrecognized"},
		{EventType: EventClaimed},
	}
	if got := DeriveStatus(events); got != UnitStatusClaimed {
		t.Fatalf("unknown event type should be skipped, not reset status; got %q", got)
	}
}

func eventsOf(types ...string) []UnitEvent {
	events := make([]UnitEvent, len(types))
	for i, typ := range types {
		events[i] = UnitEvent{EventType: typ}
	}
	return events
}
