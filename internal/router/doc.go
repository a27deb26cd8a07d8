// Package router decodes realtime frames and fans them out to subscribers.
//
// The router:
//   - Decodes {"type", "payload"} frames into typed events (one Go type per message type)
//   - Keeps unknown message types as Unknown events instead of dropping them
//   - Dispatches each event synchronously to every handler registered for its type
//   - Isolates handler panics so one bad subscriber cannot break delivery to the rest
//   - Hands events to slow consumers through GrowableBuffer
package router
