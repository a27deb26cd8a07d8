// Package model defines the persisted form of realtime events.
//
// Types mirror the realtime_events table created by internal/database.
//
// Conventions:
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: uuid.UUID assigned on receipt
//   - Payloads: JSON as decoded from the wire, stored as JSONB
package model
