// Package connection implements the realtime Connection Manager.
//
// The Connection Manager:
//   - Owns exactly one WebSocket connection to the backend at a time
//   - Runs a single event loop that serialises open, close, frame and retry events
//   - Reconnects after a fixed delay, up to a capped number of consecutive attempts
//   - Decodes frames and dispatches them to the router.Registry in arrival order
//   - Exposes the connection Status and notifies status listeners on every transition
package connection
