// Package telemetry builds the audit events that accompany ledger mutations.
package telemetry

import (
	"fmt"
	"time"

	"github.com/louisbranch/vouchnet/internal/id"
	"github.com/louisbranch/vouchnet/internal/storage"
)

// Recorder stamps audit events with identity and time. Events are committed
// inside the same mutation as the state they describe, so the journal never
// records an operation that did not land.
type Recorder struct {
	clock func() time.Time
	newID func() (string, error)
}

// NewRecorder creates a recorder backed by the system clock.
func NewRecorder() *Recorder {
	return &Recorder{clock: time.Now, newID: id.NewID}
}

// NewRecorderWith creates a recorder with an injected clock and ID source.
func NewRecorderWith(clock func() time.Time, newID func() (string, error)) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Recorder{clock: clock, newID: newID}
}

// Event builds one audit event for an operation performed by actor on the
// entity. A nil recorder falls back to the system clock.
func (r *Recorder) Event(operation, actor, entityID string, metadata map[string]string) (storage.AuditEvent, error) {
	clock := time.Now
	newID := id.NewID
	if r != nil {
		if r.clock != nil {
			clock = r.clock
		}
		if r.newID != nil {
			newID = r.newID
		}
	}
	eventID, err := newID()
	if err != nil {
		return storage.AuditEvent{}, fmt.Errorf("generate audit event id: %w", err)
	}
	return storage.AuditEvent{
		ID:         eventID,
		Operation:  operation,
		Actor:      actor,
		EntityID:   entityID,
		OccurredAt: clock().UTC(),
		Metadata:   metadata,
	}, nil
}
