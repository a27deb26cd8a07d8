// Package writer journals realtime events to PostgreSQL.
//
// The journal writer subscribes to every event type on the registry, hands
// records to a buffer without blocking dispatch, and batch-inserts them into
// realtime_events. Inserts are append-only; a replayed record ID is counted
// as a conflict and skipped.
package writer
