package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chirpsyncer/chirpsync-realtime/internal/router"
)

// EventRecord is one realtime event as journaled to realtime_events.
type EventRecord struct {
	ID          uuid.UUID // Primary key, assigned on receipt
	EventType   string    // Wire message type (e.g. "sync.progress")
	OperationID string    // Sync operation, empty for cleanup and unknown events
	RuleID      *int64    // Cleanup rule, nil for sync and unknown events
	Done        *int      // Items processed so far (synced, deleted or current)
	Total       *int      // Items expected, nil when the event carries no total
	Payload     []byte    // JSONB: event payload
	ReceivedAt  int64     // Local receive timestamp (µs since epoch)
}

// Completed reports whether the record marks the end of an operation.
func (r EventRecord) Completed() bool {
	return r.EventType == router.TypeSyncComplete || r.EventType == router.TypeCleanupComplete
}

// NewEventRecord converts a decoded event into a record with a fresh ID.
func NewEventRecord(ev router.Event, receivedAt time.Time) (EventRecord, error) {
	rec := EventRecord{
		ID:         uuid.New(),
		EventType:  ev.Type(),
		ReceivedAt: receivedAt.UnixMicro(),
	}

	switch e := ev.(type) {
	case router.SyncProgress:
		rec.OperationID = e.OperationID
		rec.Done = intPtr(e.Current)
		rec.Total = intPtr(e.Total)
	case router.SyncComplete:
		rec.OperationID = e.OperationID
		rec.Done = intPtr(e.Synced)
	case router.CleanupProgress:
		rec.RuleID = int64Ptr(e.RuleID)
		rec.Done = intPtr(e.Deleted)
		rec.Total = intPtr(e.Total)
	case router.CleanupComplete:
		rec.RuleID = int64Ptr(e.RuleID)
		rec.Done = intPtr(e.Deleted)
	case router.Unknown:
		rec.Payload = e.Payload
		if len(rec.Payload) == 0 {
			rec.Payload = []byte("{}")
		}
		return rec, nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("marshal %s payload: %w", ev.Type(), err)
	}
	rec.Payload = payload
	return rec, nil
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }
