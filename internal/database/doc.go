// Package database provides the PostgreSQL pool and schema used by the
// event journal.
//
// The journal is append-only: one row per realtime event in
// realtime_events, keyed by a UUID assigned on receipt.
package database
